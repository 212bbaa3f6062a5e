// Package monitoring holds the diagnostic logger shared by the library
// packages.
package monitoring

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"
)

// Level selects how chatty the library packages are.
type Level int32

const (
	LevelInfo Level = iota
	LevelDebug
)

// ParseLevel accepts the CLI spellings INFO and DEBUG (case-insensitive).
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "INFO":
		return LevelInfo, nil
	case "DEBUG":
		return LevelDebug, nil
	}
	return LevelInfo, fmt.Errorf("unknown verbosity %q (want INFO or DEBUG)", s)
}

var level atomic.Int32

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetLevel changes the verbosity used by Debugf.
func SetLevel(l Level) { level.Store(int32(l)) }

// Debugf logs through Logf only at LevelDebug.
func Debugf(format string, v ...interface{}) {
	if Level(level.Load()) >= LevelDebug {
		Logf("DEBUG "+format, v...)
	}
}
