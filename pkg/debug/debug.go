// Package debug provides global debug logging flags
package debug

import "fmt"

// Enabled controls whether debug logging is active
var Enabled bool

// Pupil controls whether per-frame pupil pipeline traces are shown.
// These fire up to 30 times a second per eye, so they have their own flag.
var Pupil bool

// Log prints a message only if debug mode is enabled
func Log(format string, args ...interface{}) {
	if Enabled {
		fmt.Printf(format, args...)
	}
}

// Logln prints a message with newline only if debug mode is enabled
func Logln(msg string) {
	if Enabled {
		fmt.Println(msg)
	}
}

// PupilLog prints a message only if pupil tracing is enabled
func PupilLog(format string, args ...interface{}) {
	if Pupil {
		fmt.Printf(format, args...)
	}
}
