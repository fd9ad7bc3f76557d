package logger

import (
	"io"

	"github.com/rs/zerolog"
)

// MockLogger logs everything, trace included, to a single writer. Test suites pass
// GinkgoWriter so output only shows up for failing specs.
func MockLogger(writer io.Writer) *Logger {
	config := &Config{
		ConsoleWriters: []io.Writer{writer},
		LogLevel:       zerolog.TraceLevel,
	}

	if logger, err := New(config); err == nil {
		return logger
	}
	return nil
}
