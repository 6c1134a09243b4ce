package log

import (
	"io"
	"os"
	"sync"
)

// ConsoleOutput writes formatted entries to a writer, stderr by default.
// Writes are serialized so concurrent loggers do not interleave lines.
type ConsoleOutput struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleOutput creates a ConsoleOutput writing to stderr.
func NewConsoleOutput() *ConsoleOutput {
	return &ConsoleOutput{w: os.Stderr}
}

// NewWriterOutput creates a ConsoleOutput writing to an arbitrary writer.
func NewWriterOutput(w io.Writer) *ConsoleOutput {
	return &ConsoleOutput{w: w}
}

// Write writes one formatted entry.
func (o *ConsoleOutput) Write(_ *Entry, formatted []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.w == nil {
		o.w = os.Stderr
	}
	_, err := o.w.Write(formatted)
	return err
}

// Close is a no-op for console outputs.
func (o *ConsoleOutput) Close() error { return nil }
