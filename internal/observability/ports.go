// Package observability provides the structured logging and metrics ports
// used by every component of the discovery engine, plus the stdout and
// Prometheus adapters behind them.
package observability

// Logger defines the interface for structured logging in the engine.
// Fields are passed as alternating key/value pairs after the message.
type Logger interface {
	// Info logs informational messages for normal operations.
	Info(msg string, fields ...interface{})

	// Warn logs potentially harmful situations that don't prevent operation.
	Warn(msg string, fields ...interface{})

	// Error logs error conditions. Pass the actual error under the "error" key;
	// the implementation extracts its message.
	Error(msg string, fields ...interface{})

	// Debug logs detailed information useful during troubleshooting.
	Debug(msg string, fields ...interface{})

	// WithFields returns a new Logger with the given fields added to all
	// subsequent log entries. Useful for scoping a logger to a component,
	// tenant or configuration.
	WithFields(fields map[string]interface{}) Logger
}

// Metrics defines the interface for recording application metrics.
type Metrics interface {
	// IncrementCounter increments a counter metric by 1.
	// Use for counting discrete events: ticks, claims, errors.
	IncrementCounter(name string, tags map[string]string)

	// RecordHistogram records a value in a histogram distribution.
	// Use for latencies, candidate counts, or anything where distribution matters.
	RecordHistogram(name string, value float64, tags map[string]string)

	// RecordGauge records a point-in-time measurement, e.g. in-flight checks.
	RecordGauge(name string, value float64, tags map[string]string)
}
