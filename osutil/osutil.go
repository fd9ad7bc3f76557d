package osutil

import (
	"os"
	"os/signal"
	"syscall"
)

// The OsInterruptError is used when the process is interrupted by SIGINT, SIGTERM, or SIGQUIT
type OsInterruptError struct {
	Signal os.Signal
}

func (e *OsInterruptError) Error() string {
	if e.Signal == nil {
		return "interrupted by OS signal"
	}
	return "interrupted by OS signal: " + e.Signal.String()
}

func (e *OsInterruptError) Unwrap() error { return nil }

// OsShutdownChan delivers an OsInterruptError the first time the process is told to stop
func OsShutdownChan() <-chan error {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	interrupted := make(chan error, 1)
	go func() {
		sig := <-signals
		signal.Stop(signals)
		interrupted <- &OsInterruptError{Signal: sig}
	}()

	return interrupted
}
