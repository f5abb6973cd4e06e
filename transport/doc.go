/*
Package transport owns the byte-stream connection to the firmware.

A Transport writes whole lines and single realtime bytes, and reads
terminator-delimited lines. The stream may be a serial device
(go.bug.st/serial), a TCP socket ("tcp://host:port"), or a WebSocket
endpoint ("ws://" or "wss://") as exposed by network attached controllers.

Any read or write failure is fatal for the session: the transport closes the
stream and returns an error wrapping ErrClosed. It never reconnects on its own.

Example:

	cfg, err := transport.NewConfig("/dev/ttyUSB0", transport.WithBaudRate(115200))
	if err != nil {
	    return err
	}

	t := transport.New()
	if err := t.Connect(ctx, cfg); err != nil {
	    return err
	}
	defer t.Disconnect()

	_ = t.WriteLine("$I")
	line, err := t.ReadLine()
*/
package transport
