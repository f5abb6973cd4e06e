package communicator

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains atomic metrics of a command stream.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc,
// see Collectors.
type Metrics struct {
	// CommandsQueued indicates the number of commands accepted by QueueCommand or SendCommandImmediately.
	CommandsQueued atomic.Uint64
	// CommandsSent indicates the number of commands written to the transport.
	CommandsSent atomic.Uint64
	// CommandsCompleted indicates the number of commands acknowledged with ok.
	CommandsCompleted atomic.Uint64
	// CommandsFailed indicates the number of commands acknowledged with an error.
	CommandsFailed atomic.Uint64
	// BytesSent indicates the number of command bytes written, terminators included.
	BytesSent atomic.Uint64
	// RealtimeBytesSent indicates the number of realtime bytes written.
	RealtimeBytesSent atomic.Uint64
	// LinesReceived indicates the number of inbound lines processed.
	LinesReceived atomic.Uint64
	// Cancellations indicates the number of CancelSend calls.
	Cancellations atomic.Uint64
	// BytesInFlight indicates the bytes sent but not yet acknowledged.
	BytesInFlight atomic.Int64
}

// IncLinesReceived increments LinesReceived.
func (m *Metrics) IncLinesReceived() {
	m.LinesReceived.Add(1)
}

func (m *Metrics) incCommandsQueued() {
	m.CommandsQueued.Add(1)
}

func (m *Metrics) incCommandsSent(n int) {
	m.CommandsSent.Add(1)
	m.BytesSent.Add(uint64(n))
}

func (m *Metrics) incCompleted(isError bool) {
	if isError {
		m.CommandsFailed.Add(1)
	} else {
		m.CommandsCompleted.Add(1)
	}
}

func (m *Metrics) incRealtimeBytesSent() {
	m.RealtimeBytesSent.Add(1)
}

func (m *Metrics) incCancellations() {
	m.Cancellations.Add(1)
}

func (m *Metrics) setBytesInFlight(n int) {
	m.BytesInFlight.Store(int64(n))
}

// Collectors returns prometheus collectors reading the metrics.
//
// namespace prefixes every metric name; constLabels are attached to every metric.
func (m *Metrics) Collectors(namespace string, constLabels prometheus.Labels) []prometheus.Collector {
	counter := func(name, help string, v *atomic.Uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "communicator",
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		}, func() float64 { return float64(v.Load()) })
	}

	return []prometheus.Collector{
		counter("commands_queued_total", "Commands accepted into the queue.", &m.CommandsQueued),
		counter("commands_sent_total", "Commands written to the transport.", &m.CommandsSent),
		counter("commands_completed_total", "Commands acknowledged with ok.", &m.CommandsCompleted),
		counter("commands_failed_total", "Commands acknowledged with an error.", &m.CommandsFailed),
		counter("bytes_sent_total", "Command bytes written, terminators included.", &m.BytesSent),
		counter("realtime_bytes_sent_total", "Realtime bytes written.", &m.RealtimeBytesSent),
		counter("lines_received_total", "Inbound lines processed.", &m.LinesReceived),
		counter("cancellations_total", "Queue cancellations.", &m.Cancellations),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "communicator",
			Name:        "bytes_in_flight",
			Help:        "Bytes sent but not yet acknowledged.",
			ConstLabels: constLabels,
		}, func() float64 { return float64(m.BytesInFlight.Load()) }),
	}
}
