package observability

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"strings"
	"time"
)

// Log levels in increasing severity.
const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
)

var levelNames = map[string]int{
	"debug": levelDebug,
	"info":  levelInfo,
	"warn":  levelWarn,
	"error": levelError,
}

// StdLogger implements Logger with JSON-formatted output, one entry per line,
// suitable for log aggregation systems.
type StdLogger struct {
	fields   map[string]interface{}
	minLevel int
	out      *log.Logger
}

// NewLogger creates a logger writing to w at the given minimum level.
// Unknown level strings default to info.
func NewLogger(w io.Writer, level string) *StdLogger {
	if w == nil {
		w = os.Stdout
	}
	min, ok := levelNames[strings.ToLower(level)]
	if !ok {
		min = levelInfo
	}
	return &StdLogger{
		fields:   make(map[string]interface{}),
		minLevel: min,
		out:      log.New(w, "", 0),
	}
}

func (l *StdLogger) Info(msg string, fields ...interface{})  { l.log(levelInfo, "INFO", msg, fields...) }
func (l *StdLogger) Warn(msg string, fields ...interface{})  { l.log(levelWarn, "WARN", msg, fields...) }
func (l *StdLogger) Error(msg string, fields ...interface{}) { l.log(levelError, "ERROR", msg, fields...) }
func (l *StdLogger) Debug(msg string, fields ...interface{}) { l.log(levelDebug, "DEBUG", msg, fields...) }

// WithFields returns a new Logger with additional persistent fields.
func (l *StdLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &StdLogger{fields: merged, minLevel: l.minLevel, out: l.out}
}

func (l *StdLogger) log(level int, name string, msg string, fields ...interface{}) {
	if level < l.minLevel {
		return
	}

	entry := make(map[string]interface{}, len(l.fields)+len(fields)/2+3)
	entry["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	entry["level"] = name
	entry["message"] = msg

	for k, v := range l.fields {
		entry[k] = v
	}

	// Variadic fields come as key1, value1, key2, value2, ...
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		if err, ok := fields[i+1].(error); ok && err != nil {
			entry[key] = err.Error()
			continue
		}
		entry[key] = fields[i+1]
	}

	data, err := json.Marshal(entry)
	if err != nil {
		l.out.Printf(`{"level":"ERROR","message":"failed to marshal log entry: %v"}`, err)
		return
	}
	l.out.Println(string(data))
}

// NopLogger discards everything. Used in tests.
type NopLogger struct{}

func (NopLogger) Info(string, ...interface{})               {}
func (NopLogger) Warn(string, ...interface{})               {}
func (NopLogger) Error(string, ...interface{})              {}
func (NopLogger) Debug(string, ...interface{})              {}
func (n NopLogger) WithFields(map[string]interface{}) Logger { return n }

var _ Logger = (*StdLogger)(nil)
var _ Logger = NopLogger{}

// Component returns l scoped with a component field, the conventional way the
// engine hands loggers to its parts.
func Component(l Logger, name string) Logger {
	return l.WithFields(map[string]interface{}{"component": name})
}
