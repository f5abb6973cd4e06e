// Command gsender talks to GRBL and Smoothieware motion controllers over a
// serial port, TCP, or WebSocket.
//
// Usage:
//
//	gsender ports
//	gsender --port /dev/ttyUSB0 status
//	gsender --port tcp://192.168.1.20:23 --firmware smoothie send part.nc
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
