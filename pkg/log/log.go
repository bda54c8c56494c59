// Copyright 2026 The A1 Kernel Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log provides a minimal leveled logging facility.
//
// There is a single shared logger; packages log through the top-level
// Debugf, Infof and Warningf functions. The backing emitter and the
// active level may be swapped at runtime, which tests use to capture or
// silence output.
package log

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"
)

// Level is the log level.
type Level uint32

// The set of levels, in order of increasing verbosity.
const (
	// Warning indicates a problem the caller should know about.
	Warning Level = iota

	// Info is informational output.
	Info

	// Debug is high-volume diagnostic output.
	Debug
)

// String implements fmt.Stringer.
func (l Level) String() string {
	switch l {
	case Warning:
		return "W"
	case Info:
		return "I"
	case Debug:
		return "D"
	default:
		return fmt.Sprintf("L(%d)", l)
	}
}

// Emitter is the final destination for log lines.
type Emitter interface {
	// Emit emits the given log statement.
	Emit(level Level, timestamp time.Time, format string, v ...any)
}

// TextEmitter writes plain text lines to an io.Writer.
type TextEmitter struct {
	Next io.Writer
}

// Emit implements Emitter.Emit.
func (t TextEmitter) Emit(level Level, timestamp time.Time, format string, v ...any) {
	line := fmt.Sprintf(format, v...)
	fmt.Fprintf(t.Next, "%s%s %s\n", level, timestamp.Format("0102 15:04:05.000000"), line)
}

// Logger is a leveled logger bound to an emitter.
type Logger struct {
	level   atomic.Uint32
	emitter atomic.Pointer[Emitter]
}

// Debugf logs a debug statement.
func (l *Logger) Debugf(format string, v ...any) {
	l.logf(Debug, format, v...)
}

// Infof logs an informational statement.
func (l *Logger) Infof(format string, v ...any) {
	l.logf(Info, format, v...)
}

// Warningf logs a warning.
func (l *Logger) Warningf(format string, v ...any) {
	l.logf(Warning, format, v...)
}

// IsLogging returns whether the given level is being logged.
func (l *Logger) IsLogging(level Level) bool {
	return uint32(level) <= l.level.Load()
}

// SetLevel sets the logging level.
func (l *Logger) SetLevel(level Level) {
	l.level.Store(uint32(level))
}

// SetEmitter redirects output to the given emitter.
func (l *Logger) SetEmitter(e Emitter) {
	l.emitter.Store(&e)
}

func (l *Logger) logf(level Level, format string, v ...any) {
	if !l.IsLogging(level) {
		return
	}
	(*l.emitter.Load()).Emit(level, time.Now(), format, v...)
}

var std = func() *Logger {
	l := &Logger{}
	l.SetLevel(Info)
	l.SetEmitter(TextEmitter{Next: os.Stderr})
	return l
}()

// Log returns the process logger.
func Log() *Logger {
	return std
}

// Debugf logs a debug statement to the process logger.
func Debugf(format string, v ...any) {
	std.Debugf(format, v...)
}

// Infof logs an informational statement to the process logger.
func Infof(format string, v ...any) {
	std.Infof(format, v...)
}

// Warningf logs a warning to the process logger.
func Warningf(format string, v ...any) {
	std.Warningf(format, v...)
}

// IsLogging returns whether the process logger logs the given level.
func IsLogging(level Level) bool {
	return std.IsLogging(level)
}

// SetLevel sets the process logger's level.
func SetLevel(level Level) {
	std.SetLevel(level)
}

// SetEmitter redirects the process logger to the given emitter.
func SetEmitter(e Emitter) {
	std.SetEmitter(e)
}
