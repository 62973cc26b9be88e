package nvelope

import (
	"fmt"
	"sort"
)

// BasicLogger is the logging interface used throughout nrpc.  Any
// structured logger can be adapted to it.  Fields are passed as maps so
// that no particular logging library is required.
type BasicLogger interface {
	Debug(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
}

// StdLogger is implmented by the base library log.Logger
type StdLogger interface {
	Print(v ...interface{})
}

type wrappedStdLogger struct {
	log StdLogger
}

// LoggerFromStd creates a BasicLogger provider from a StdLogger such as
// *log.Logger.  Fields are printed as key=value in key order.
func LoggerFromStd(log StdLogger) func() BasicLogger {
	return func() BasicLogger {
		return wrappedStdLogger{log: log}
	}
}

func (std wrappedStdLogger) print(level string, msg string, fields []map[string]interface{}) {
	vals := make([]interface{}, 0, len(fields)*4+2)
	vals = append(vals, level, " ", msg)
	for _, m := range fields {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			vals = append(vals, " "+k+"="+fmt.Sprint(m[k]))
		}
	}
	std.log.Print(vals...)
}

func (std wrappedStdLogger) Error(msg string, fields ...map[string]interface{}) {
	std.print("ERROR", msg, fields)
}

func (std wrappedStdLogger) Warn(msg string, fields ...map[string]interface{}) {
	std.print("WARN", msg, fields)
}

func (std wrappedStdLogger) Debug(msg string, fields ...map[string]interface{}) {
	std.print("DEBUG", msg, fields)
}

// NoLogger injects a BasicLogger that discards all inputs
func NoLogger() BasicLogger {
	return nilLogger{}
}

type nilLogger struct{}

var _ BasicLogger = nilLogger{}

func (nilLogger) Error(msg string, fields ...map[string]interface{}) {}
func (nilLogger) Warn(msg string, fields ...map[string]interface{})  {}
func (nilLogger) Debug(msg string, fields ...map[string]interface{}) {}

// WithFields returns a logger that adds fields to every message.  It is
// used to tag all the log lines of one request.
func WithFields(log BasicLogger, fields map[string]interface{}) BasicLogger {
	if len(fields) == 0 {
		return log
	}
	return fieldLogger{log: log, fields: fields}
}

type fieldLogger struct {
	log    BasicLogger
	fields map[string]interface{}
}

func (f fieldLogger) with(fields []map[string]interface{}) []map[string]interface{} {
	return append([]map[string]interface{}{f.fields}, fields...)
}

func (f fieldLogger) Error(msg string, fields ...map[string]interface{}) {
	f.log.Error(msg, f.with(fields)...)
}

func (f fieldLogger) Warn(msg string, fields ...map[string]interface{}) {
	f.log.Warn(msg, f.with(fields)...)
}

func (f fieldLogger) Debug(msg string, fields ...map[string]interface{}) {
	f.log.Debug(msg, f.with(fields)...)
}

// Flush passes through to the underlying logger when it supports
// flushing.
func (f fieldLogger) Flush() {
	if flusher, ok := f.log.(LogFlusher); ok {
		flusher.Flush()
	}
}
