package log

import (
	"context"
	"fmt"
	"os"
)

// clone returns a copy of the logger with its own fields map. The formatter
// and outputs are shared; the slog logger is rebuilt so the bridge handler
// points at the copy.
func (l *BaseLogger) clone() *BaseLogger {
	nl := &BaseLogger{
		level:     l.level,
		fields:    make(Fields, len(l.fields)),
		formatter: l.formatter,
		outputs:   l.outputs,
	}
	for k, v := range l.fields {
		nl.fields[k] = v
	}
	nl.slogLogger = newSlogFor(nl)
	return nl
}

// log emits a single entry at the given level with the logger's base fields
// plus the call-site fields.
func (l *BaseLogger) log(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}
	attrs := attrsFromMap(l.fields)
	attrs = append(attrs, attrsFromFieldSlice(fields)...)
	l.slogLogger.LogAttrs(context.Background(), toSlogLevel(level), msg, attrs...)
}

// Debug logs a message at DebugLevel.
func (l *BaseLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields) }

// Info logs a message at InfoLevel.
func (l *BaseLogger) Info(msg string, fields ...Field) { l.log(InfoLevel, msg, fields) }

// Warn logs a message at WarnLevel.
func (l *BaseLogger) Warn(msg string, fields ...Field) { l.log(WarnLevel, msg, fields) }

// Error logs a message at ErrorLevel.
func (l *BaseLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields) }

// Fatal logs a message at FatalLevel and exits the process.
func (l *BaseLogger) Fatal(msg string, fields ...Field) {
	l.log(FatalLevel, msg, fields)
	os.Exit(1)
}

// Debugf logs a formatted message at DebugLevel.
func (l *BaseLogger) Debugf(format string, args ...interface{}) {
	l.log(DebugLevel, fmt.Sprintf(format, args...), nil)
}

// Infof logs a formatted message at InfoLevel.
func (l *BaseLogger) Infof(format string, args ...interface{}) {
	l.log(InfoLevel, fmt.Sprintf(format, args...), nil)
}

// Warnf logs a formatted message at WarnLevel.
func (l *BaseLogger) Warnf(format string, args ...interface{}) {
	l.log(WarnLevel, fmt.Sprintf(format, args...), nil)
}

// Errorf logs a formatted message at ErrorLevel.
func (l *BaseLogger) Errorf(format string, args ...interface{}) {
	l.log(ErrorLevel, fmt.Sprintf(format, args...), nil)
}

// Fatalf logs a formatted message at FatalLevel and exits the process.
func (l *BaseLogger) Fatalf(format string, args ...interface{}) {
	l.log(FatalLevel, fmt.Sprintf(format, args...), nil)
	os.Exit(1)
}

// WithField returns a logger with an additional field.
func (l *BaseLogger) WithField(key string, value interface{}) Logger {
	nl := l.clone()
	nl.fields[key] = value
	return nl
}

// WithFields returns a logger with additional fields.
func (l *BaseLogger) WithFields(fields Fields) Logger {
	nl := l.clone()
	for k, v := range fields {
		nl.fields[k] = v
	}
	return nl
}

// WithError returns a logger with an "error" field.
func (l *BaseLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

// With returns a logger with additional typed fields.
func (l *BaseLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	nl := l.clone()
	for _, f := range fields {
		nl.fields[f.Key] = f.Value
	}
	return nl
}

// WithContext returns a logger carrying any logging context found in ctx.
func (l *BaseLogger) WithContext(ctx context.Context) Logger {
	extracted := ContextExtractor(ctx)
	if len(extracted) == 0 {
		return l
	}
	return l.WithFields(extracted)
}

// WithComponent tags logs with a component name.
func (l *BaseLogger) WithComponent(component string) Logger {
	return l.WithField(ComponentKey, component)
}

// SetLevel sets the minimum log level.
func (l *BaseLogger) SetLevel(level Level) { l.level = level }

// GetLevel returns the current minimum log level.
func (l *BaseLogger) GetLevel() Level { return l.level }
