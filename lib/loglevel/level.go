// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package loglevel defines the ordered log level enumeration shared by
// the data service, the monitor service, and the desktop client itself.
package loglevel

import (
	"fmt"
	"log/slog"
	"strings"
)

// Level is one of FATAL, ERROR, WARN, INFO, DEBUG, TRACE, VERBOSE, in
// increasing verbosity. The zero value is not a valid level.
type Level int

const (
	Fatal Level = iota + 1
	Error
	Warn
	Info
	Debug
	Trace
	Verbose
)

// All lists every level in order of increasing verbosity.
var All = []Level{Fatal, Error, Warn, Info, Debug, Trace, Verbose}

var names = map[Level]string{
	Fatal:   "FATAL",
	Error:   "ERROR",
	Warn:    "WARN",
	Info:    "INFO",
	Debug:   "DEBUG",
	Trace:   "TRACE",
	Verbose: "VERBOSE",
}

// Parse accepts a level name in any case. "WARNING" is accepted as an
// alias of WARN.
func Parse(name string) (Level, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if upper == "WARNING" {
		return Warn, nil
	}
	for level, levelName := range names {
		if levelName == upper {
			return level, nil
		}
	}
	return 0, fmt.Errorf("unknown log level %q", name)
}

// Valid reports whether l is one of the defined levels.
func (l Level) Valid() bool {
	_, ok := names[l]
	return ok
}

func (l Level) String() string {
	if name, ok := names[l]; ok {
		return name
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// MarshalText encodes the level as its name on the wire.
func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid log level %d", int(l))
	}
	return []byte(names[l]), nil
}

// UnmarshalText decodes a level name.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Next returns the following level, wrapping from VERBOSE to FATAL.
func (l Level) Next() Level {
	if l >= Verbose || !l.Valid() {
		return Fatal
	}
	return l + 1
}

// Slog maps the level onto slog's scale. TRACE and VERBOSE sit below
// slog.LevelDebug; FATAL sits above slog.LevelError.
func (l Level) Slog() slog.Level {
	switch l {
	case Fatal:
		return slog.LevelError + 4
	case Error:
		return slog.LevelError
	case Warn:
		return slog.LevelWarn
	case Debug:
		return slog.LevelDebug
	case Trace:
		return slog.LevelDebug - 4
	case Verbose:
		return slog.LevelDebug - 8
	default:
		return slog.LevelInfo
	}
}
