// Package controller implements the firmware controller state machine.
//
// A Controller owns one transport connection at a time. It runs the
// identification handshake, drives the flow-controlled command queue,
// polls status reports, and fans events out to listeners.
//
// Inbound lines are processed by a single event loop goroutine. Every
// listener callback runs on that goroutine, in the order the underlying
// protocol events were committed, so listeners observe a consistent
// sequence of status, console, and command lifecycle events.
//
// Listeners must not block and must not call Connect or Disconnect;
// both wait for the event loop to exit.
//
// Example:
//
//	cfg, _ := transport.NewConfig("/dev/ttyUSB0")
//	ctrl, _ := controller.New(grbl.New())
//	unsubscribe := ctrl.SubscribeStatus(func(st controller.ControllerStatus) {
//	    fmt.Println(st.State(), st.WorkPosition())
//	})
//	defer unsubscribe()
//
//	if err := ctrl.Connect(ctx, cfg); err != nil {
//	    return err
//	}
//	defer ctrl.Disconnect()
//
//	_ = ctrl.WaitForState(ctx, controller.Idle)
//	_, _ = ctrl.QueueCommand("G0 X10")
//	_ = ctrl.StreamCommands()
package controller
