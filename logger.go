package promptcache

import (
	"time"
)

// Logger is the structured logging interface consumed by the cache. Adapters
// are provided for zap (NewZapLogger) and slog (NewSlogLogger); NoOpLogger
// disables logging entirely.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// Named returns a Logger scoped with the given subsystem name.
	Named(name string) Logger
}

// FieldKind identifies the value type carried by a Field so adapters can
// convert without reflection on the common paths.
type FieldKind int

const (
	KindAny FieldKind = iota
	KindString
	KindInt
	KindInt64
	KindDuration
	KindTime
	KindError
)

// Field is a structured logging key-value pair.
type Field struct {
	Key   string
	Value interface{}
	Kind  FieldKind
}

// String creates a string field.
func String(key, val string) Field {
	return Field{Key: key, Value: val, Kind: KindString}
}

// Int creates an int field.
func Int(key string, val int) Field {
	return Field{Key: key, Value: val, Kind: KindInt}
}

// Int64 creates an int64 field.
func Int64(key string, val int64) Field {
	return Field{Key: key, Value: val, Kind: KindInt64}
}

// Duration creates a time.Duration field.
func Duration(key string, val time.Duration) Field {
	return Field{Key: key, Value: val, Kind: KindDuration}
}

// Time creates a time.Time field.
func Time(key string, val time.Time) Field {
	return Field{Key: key, Value: val, Kind: KindTime}
}

// Error creates an error field with the key "error".
func Error(err error) Field {
	return Field{Key: "error", Value: err, Kind: KindError}
}

// Any creates a field holding an arbitrary value. Prefer the typed
// constructors where possible.
func Any(key string, val interface{}) Field {
	return Field{Key: key, Value: val, Kind: KindAny}
}

// NoOpLogger discards all log messages. Useful for tests or when logging is
// not wanted.
type NoOpLogger struct{}

func (NoOpLogger) Debug(msg string, fields ...Field) {}
func (NoOpLogger) Info(msg string, fields ...Field)  {}
func (NoOpLogger) Warn(msg string, fields ...Field)  {}
func (NoOpLogger) Error(msg string, fields ...Field) {}
func (n NoOpLogger) Named(name string) Logger        { return n }

// NewNoOpLogger returns a logger that discards everything.
func NewNoOpLogger() Logger { return NoOpLogger{} }
