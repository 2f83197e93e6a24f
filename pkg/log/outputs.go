package log

import (
	"io"
	"os"
	"sync"
)

// ConsoleOutput writes log entries to the console (stdout/stderr).
type ConsoleOutput struct {
	mu            sync.Mutex
	useStderr     bool
	errorToStderr bool
	writer        io.Writer
	errorWriter   io.Writer
}

// Write writes the log entry to the console.
func (o *ConsoleOutput) Write(entry *Entry, formattedEntry []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var writer io.Writer
	switch {
	case o.writer != nil:
		writer = o.writer
	case o.useStderr:
		writer = os.Stderr
	default:
		writer = os.Stdout
	}

	if (entry.Level == ErrorLevel || entry.Level == FatalLevel) && o.errorToStderr {
		if o.errorWriter != nil {
			writer = o.errorWriter
		} else {
			writer = os.Stderr
		}
	}

	_, err := writer.Write(formattedEntry)
	return err
}

// Close implements the Output interface but does nothing for console output.
func (o *ConsoleOutput) Close() error {
	return nil
}

// ConsoleOutputOption is a function that configures a ConsoleOutput.
type ConsoleOutputOption func(*ConsoleOutput)

// WithStderr configures the ConsoleOutput to use stderr.
func WithStderr() ConsoleOutputOption {
	return func(o *ConsoleOutput) {
		o.useStderr = true
	}
}

// WithCustomWriter configures the ConsoleOutput to use a custom writer for
// every level.
func WithCustomWriter(writer io.Writer) ConsoleOutputOption {
	return func(o *ConsoleOutput) {
		o.writer = writer
		o.errorToStderr = false
	}
}

// NewConsoleOutput creates a new ConsoleOutput with the given options.
// Error and fatal entries go to stderr unless a custom writer is set.
func NewConsoleOutput(options ...ConsoleOutputOption) *ConsoleOutput {
	o := &ConsoleOutput{errorToStderr: true}
	for _, option := range options {
		option(o)
	}
	return o
}

// NullOutput discards every entry.
type NullOutput struct{}

// Write discards the entry.
func (o *NullOutput) Write(entry *Entry, formattedEntry []byte) error {
	return nil
}

// Close does nothing.
func (o *NullOutput) Close() error {
	return nil
}

// NewNullOutput creates an output that drops everything.
func NewNullOutput() *NullOutput {
	return &NullOutput{}
}
