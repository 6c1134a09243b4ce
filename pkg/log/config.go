package log

import "os"

// Config declares logger settings in a form suitable for config files and
// environment overlays.
type Config struct {
	// Level is the minimum level name: debug, info, warn, error, fatal.
	Level string `json:"level" yaml:"level"`
	// Format selects the formatter: "text" or "json".
	Format string `json:"format" yaml:"format"`
	// Output selects the destination: "stderr" (default) or "stdout".
	Output string `json:"output" yaml:"output"`
}

// ApplyConfig builds a Logger from a declarative Config. Empty fields fall
// back to info/text/stderr. The error reports an unknown level or format;
// a usable logger is returned either way.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	var firstErr error

	level := InfoLevel
	if cfg.Level != "" {
		parsed, err := ParseLevel(cfg.Level)
		if err != nil {
			firstErr = err
		} else {
			level = parsed
		}
	}

	var formatter Formatter
	switch cfg.Format {
	case "", "text":
		formatter = &TextFormatter{}
	case "json":
		formatter = &JSONFormatter{}
	default:
		formatter = &TextFormatter{}
		if firstErr == nil {
			firstErr = errUnknownFormat(cfg.Format)
		}
	}

	output := NewConsoleOutput()
	if cfg.Output == "stdout" {
		output = NewWriterOutput(os.Stdout)
	}

	logger := NewLogger(
		WithLevel(level),
		WithFormatter(formatter),
		WithOutput(output),
	)
	return logger, firstErr
}

type unknownFormatError string

func (e unknownFormatError) Error() string { return "unknown log format: " + string(e) }

func errUnknownFormat(format string) error { return unknownFormatError(format) }
