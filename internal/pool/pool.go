// Package pool holds pooled resources used by the transport: timers for
// connect and close deadlines, and read buffers for line framing.
package pool

import (
	"sync"
	"time"
)

// ReadBufferSize is the size of buffers handed out by GetReadBuffer.
const ReadBufferSize = 256

var (
	timerPool sync.Pool
	bufPool   = sync.Pool{
		New: func() any {
			buf := make([]byte, ReadBufferSize)
			return &buf
		},
	}
)

// GetTimer returns a timer for the given duration d from the pool.
//
// Return back the timer to the pool with PutTimer.
func GetTimer(d time.Duration) *time.Timer {
	if v := timerPool.Get(); v != nil {
		t, _ := v.(*time.Timer)
		if t.Reset(d) {
			// drain a stale tick left from the previous owner
			select {
			case <-t.C:
			default:
			}
		}

		return t
	}

	return time.NewTimer(d)
}

// PutTimer returns timer to the pool.
//
// t cannot be accessed after returning to the pool.
func PutTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	timerPool.Put(t)
}

// GetReadBuffer returns a ReadBufferSize byte buffer from the pool.
func GetReadBuffer() *[]byte {
	buf, _ := bufPool.Get().(*[]byte)
	return buf
}

// PutReadBuffer returns buf to the pool. Buffers of a foreign size are dropped.
func PutReadBuffer(buf *[]byte) {
	if buf == nil || cap(*buf) != ReadBufferSize {
		return
	}
	*buf = (*buf)[:ReadBufferSize]
	bufPool.Put(buf)
}
