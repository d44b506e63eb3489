// Package obslog is the package-level diagnostic logger used by the
// aligner, the acquisition producers, and cmd/msflow.
// It follows internal/monitoring in the teacher repo: a swappable
// function variable instead of a structured-logging dependency, so
// tests can capture or silence output without a DI container.
package obslog

import (
	"fmt"
	"log"
)

// Logf is the package-level diagnostic logger. Defaults to log.Printf.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Capture temporarily swaps in a capturing logger for the duration of fn,
// then restores the previous logger. Useful in tests that assert on a
// specific warning being emitted (e.g. MapAligner's identity-fallback
// warning).
func Capture(fn func()) []string {
	var lines []string
	prev := Logf
	Logf = func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	}
	defer func() { Logf = prev }()
	fn()
	return lines
}
