package log

import (
	stdlog "log"
	"strings"
)

// stdLogWriter adapts a Logger to io.Writer for the standard library logger.
type stdLogWriter struct {
	logger Logger
}

func (w *stdLogWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	if msg != "" {
		w.logger.Info(msg)
	}
	return len(p), nil
}

// RedirectStdLog routes standard library log output through the given Logger
// at info level. Libraries that log via the stdlib (Pebble among them) then
// share the structured stream.
func RedirectStdLog(logger Logger) {
	stdlog.SetFlags(0)
	stdlog.SetOutput(&stdLogWriter{logger: logger.WithComponent("stdlog")})
}
