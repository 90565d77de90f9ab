/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package logger wraps hashicorp/go-hclog with the field-carrying, leveled
// interface the rest of this module logs through. Every domain package takes
// a Logger rather than reaching for the standard library log package
// directly, so a port's log lines can be named and filtered per locality or
// per handler without plumbing a prefix string everywhere.
package logger

import (
	"os"

	"github.com/hashicorp/go-hclog"
)

// Fields is a shallow, copy-on-write set of structured log fields.
type Fields map[string]interface{}

// Add returns a new Fields with k=v merged in, leaving the receiver untouched.
func (f Fields) Add(k string, v interface{}) Fields {
	n := make(Fields, len(f)+1)
	for fk, fv := range f {
		n[fk] = fv
	}
	n[k] = v
	return n
}

func (f Fields) args() []interface{} {
	a := make([]interface{}, 0, len(f)*2)
	for k, v := range f {
		a = append(a, k, v)
	}
	return a
}

// Logger is the leveled, field-carrying logging facade used across the
// module. Debug/Info/Warning/Error accept an optional Fields in addition to
// the hclog-style key/value varargs.
type Logger interface {
	Debug(msg string, fields Fields, args ...interface{})
	Info(msg string, fields Fields, args ...interface{})
	Warning(msg string, fields Fields, args ...interface{})
	Error(msg string, fields Fields, args ...interface{})

	// With returns a child Logger carrying the given field merged into every
	// subsequent call.
	With(key string, value interface{}) Logger

	// Named returns a child Logger whose name is suffixed with the given
	// component name (e.g. "port.tcp").
	Named(name string) Logger

	// HCLog exposes the underlying hclog.Logger for libraries that want to
	// drive their own logging through it (gobreaker, websocket, webrtc).
	HCLog() hclog.Logger
}

type logger struct {
	l hclog.Logger
	f Fields
}

// New builds a Logger named name at the given hclog level, writing to os.Stderr.
func New(name string, level hclog.Level) Logger {
	return &logger{
		l: hclog.New(&hclog.LoggerOptions{
			Name:   name,
			Level:  level,
			Output: os.Stderr,
		}),
		f: make(Fields),
	}
}

func (l *logger) log(fn func(msg string, args ...interface{}), msg string, fields Fields, args ...interface{}) {
	merged := l.f
	for k, v := range fields {
		merged = merged.Add(k, v)
	}
	fn(msg, append(merged.args(), args...)...)
}

func (l *logger) Debug(msg string, fields Fields, args ...interface{}) {
	l.log(l.l.Debug, msg, fields, args...)
}

func (l *logger) Info(msg string, fields Fields, args ...interface{}) {
	l.log(l.l.Info, msg, fields, args...)
}

func (l *logger) Warning(msg string, fields Fields, args ...interface{}) {
	l.log(l.l.Warn, msg, fields, args...)
}

func (l *logger) Error(msg string, fields Fields, args ...interface{}) {
	l.log(l.l.Error, msg, fields, args...)
}

func (l *logger) With(key string, value interface{}) Logger {
	return &logger{l: l.l, f: l.f.Add(key, value)}
}

func (l *logger) Named(name string) Logger {
	return &logger{l: l.l.Named(name), f: l.f}
}

func (l *logger) HCLog() hclog.Logger {
	return l.l
}

// NewNop returns a Logger that discards everything, useful in tests.
func NewNop() Logger {
	return &logger{l: hclog.NewNullLogger(), f: make(Fields)}
}
