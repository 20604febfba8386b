package promptcache

import (
	"log/slog"
	"time"
)

// slogLogger adapts the standard library's slog.Logger to the Logger
// interface.
type slogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps an existing slog.Logger. Returns ErrNilLogger if the
// provided logger is nil.
func NewSlogLogger(logger *slog.Logger) (Logger, error) {
	if logger == nil {
		return nil, ErrNilLogger
	}
	return &slogLogger{logger: logger}, nil
}

func (s *slogLogger) Debug(msg string, fields ...Field) {
	s.logger.Debug(msg, slogAttrs(fields)...)
}

func (s *slogLogger) Info(msg string, fields ...Field) {
	s.logger.Info(msg, slogAttrs(fields)...)
}

func (s *slogLogger) Warn(msg string, fields ...Field) {
	s.logger.Warn(msg, slogAttrs(fields)...)
}

func (s *slogLogger) Error(msg string, fields ...Field) {
	s.logger.Error(msg, slogAttrs(fields)...)
}

// Named adds the name as a persistent attribute; slog has no native notion
// of named loggers.
func (s *slogLogger) Named(name string) Logger {
	return &slogLogger{logger: s.logger.With("component", name)}
}

func slogAttrs(fields []Field) []any {
	if len(fields) == 0 {
		return nil
	}

	attrs := make([]any, 0, len(fields))
	for _, f := range fields {
		switch f.Kind {
		case KindString:
			if v, ok := f.Value.(string); ok {
				attrs = append(attrs, slog.String(f.Key, v))
				continue
			}
		case KindInt:
			if v, ok := f.Value.(int); ok {
				attrs = append(attrs, slog.Int(f.Key, v))
				continue
			}
		case KindInt64:
			if v, ok := f.Value.(int64); ok {
				attrs = append(attrs, slog.Int64(f.Key, v))
				continue
			}
		case KindDuration:
			if v, ok := f.Value.(time.Duration); ok {
				attrs = append(attrs, slog.Duration(f.Key, v))
				continue
			}
		case KindTime:
			if v, ok := f.Value.(time.Time); ok {
				attrs = append(attrs, slog.Time(f.Key, v))
				continue
			}
		case KindError:
			if err, ok := f.Value.(error); ok {
				if err != nil {
					attrs = append(attrs, slog.String(f.Key, err.Error()))
				}
				continue
			}
		}
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}
	return attrs
}
