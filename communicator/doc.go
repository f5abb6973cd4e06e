/*
Package communicator implements the flow-controlled command queue between
the controller and the transport.

Commands are written in submission order while the bytes of sent but
unacknowledged commands, terminators included, fit in the firmware receive
buffer ("character counting"). Every ok or error line completes the oldest
unacknowledged command and frees its bytes, after which streaming resumes.
Realtime bytes bypass the queue and the byte budget entirely.

All queue mutations and all transport writes happen inside one critical
section, so a realtime byte can never land inside a queued command's line.
A realtime byte waiting for the critical section is served before the
streamer writes its next command.
*/
package communicator
