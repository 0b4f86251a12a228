// The MIT License
//
// Copyright (c) 2017-2018 by the author(s)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//
// Description:
//
// Logging facility. The call-site API mirrors this codebase family's
// package-level Log()/LogSetLevel()/indent-level functions, backed internally
// by a structured leveled logger instead of a bare *log.Logger per level, so
// log lines carry key/value fields on top of the printf-style message.

package vna

import (
	"os"

	"github.com/charmbracelet/log"
)

// log levels
const (
	LOG_DEBUG int = iota
	LOG_INFO
	LOG_WARN
	LOG_ERR
)

var (
	logger         = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	logIndentLevel uint
	logLevel       = LOG_INFO
)

// Log prints out a log message with a specifiable log level. Unlike the
// facility this one descends from, LOG_ERR does not terminate the process:
// this package is a library and a long-running server, not a one-shot tool,
// so an unrecoverable condition must still be returned to the caller as an
// error rather than exiting underneath it.
func Log(level int, msg string, a ...interface{}) {
	if level < logLevel {
		return
	}

	for i := uint(0); i < logIndentLevel; i++ {
		msg = "... " + msg
	}

	switch level {
	case LOG_DEBUG:
		logger.Debugf(msg, a...)
	case LOG_INFO:
		logger.Infof(msg, a...)
	case LOG_WARN:
		logger.Warnf(msg, a...)
	case LOG_ERR:
		logger.Errorf(msg, a...)
	default:
		logger.Errorf("invalid log level used for message: %s", msg)
	}
}

// LogIncrementIndentLevel increments the indentation level of all further log
// messages.
func LogIncrementIndentLevel() {
	logIndentLevel++
}

// LogDecrementIndentLevel decrements the indentation level of all further log
// messages.
func LogDecrementIndentLevel() {
	if logIndentLevel == 0 {
		Log(LOG_ERR, "logIndentLevel reached negative value. Check your code!")
		return
	}
	logIndentLevel--
}

// LogSetLevel sets the minimum criticality of the messages that are actually
// printed. Log messages below the criticality level are ignored.
func LogSetLevel(level int) {
	if level < LOG_DEBUG || level > LOG_ERR {
		Log(LOG_ERR, "invalid log level")
		return
	}
	logLevel = level
}
