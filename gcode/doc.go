// Package gcode holds the G-code level types shared by the communicator,
// firmware, and controller packages: commands with their sequence numbers,
// machine positions with units, and the parser modal state reported by the
// firmware.
package gcode
