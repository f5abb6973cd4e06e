/*
Package firmware describes a firmware family as a strategy value consumed by
the controller: how to recognize and classify response lines, how to run the
identification handshake, which commands unlock, home, or jog the machine,
and which realtime bytes pause, resume, reset, or query it.

Implementations live in the grbl and smoothie sub-packages. They hold no
connection state; per-connection state lives in the Handshake returned by
NewHandshake and in the Classifier.

The package also carries the parsers shared by GRBL-style firmware: status
reports ("<Idle|MPos:0.000,0.000,0.000|FS:0,0>" and the legacy comma
separated form), parser state reports ("[GC:G0 G54 G17 G21 G90 G94 M5 M9 T0 F0 S0]"),
and setting lines ("$110=500.000").
*/
package firmware
