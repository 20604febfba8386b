package promptcache

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapLogger adapts a zap.Logger to the Logger interface.
type zapLogger struct {
	logger *zap.Logger
}

// NewZapLogger wraps an existing zap.Logger. Returns ErrNilLogger if the
// provided logger is nil.
func NewZapLogger(logger *zap.Logger) (Logger, error) {
	if logger == nil {
		return nil, ErrNilLogger
	}
	return &zapLogger{logger: logger}, nil
}

func (z *zapLogger) Debug(msg string, fields ...Field) {
	if ce := z.logger.Check(zapcore.DebugLevel, msg); ce != nil {
		ce.Write(zapFields(fields)...)
	}
}

func (z *zapLogger) Info(msg string, fields ...Field) {
	if ce := z.logger.Check(zapcore.InfoLevel, msg); ce != nil {
		ce.Write(zapFields(fields)...)
	}
}

func (z *zapLogger) Warn(msg string, fields ...Field) {
	if ce := z.logger.Check(zapcore.WarnLevel, msg); ce != nil {
		ce.Write(zapFields(fields)...)
	}
}

func (z *zapLogger) Error(msg string, fields ...Field) {
	if ce := z.logger.Check(zapcore.ErrorLevel, msg); ce != nil {
		ce.Write(zapFields(fields)...)
	}
}

func (z *zapLogger) Named(name string) Logger {
	return &zapLogger{logger: z.logger.Named(name)}
}

// zapFields converts generic Fields to zap.Fields using the field kind to
// avoid reflection where possible.
func zapFields(fields []Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}

	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		switch f.Kind {
		case KindString:
			if v, ok := f.Value.(string); ok {
				out = append(out, zap.String(f.Key, v))
				continue
			}
		case KindInt:
			if v, ok := f.Value.(int); ok {
				out = append(out, zap.Int(f.Key, v))
				continue
			}
		case KindInt64:
			if v, ok := f.Value.(int64); ok {
				out = append(out, zap.Int64(f.Key, v))
				continue
			}
		case KindDuration:
			if v, ok := f.Value.(time.Duration); ok {
				out = append(out, zap.Duration(f.Key, v))
				continue
			}
		case KindTime:
			if v, ok := f.Value.(time.Time); ok {
				out = append(out, zap.Time(f.Key, v))
				continue
			}
		case KindError:
			if err, ok := f.Value.(error); ok {
				if err != nil {
					out = append(out, zap.Error(err))
				}
				continue
			}
		}
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}
