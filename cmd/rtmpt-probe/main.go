package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cenkalti/backoff"

	"rtmpt.io/tunnel/v1/rtmptlib/connection/httpclient"
	"rtmpt.io/tunnel/v1/rtmptlib/connection/pipe"
	"rtmpt.io/tunnel/v1/rtmptlib/connection/transporter"
	"rtmpt.io/tunnel/v1/rtmptlib/connection/transporter/rtmpt"
	"rtmpt.io/tunnel/v1/rtmptlib/connection/tunnel"
	"rtmpt.io/tunnel/v1/rtmptlib/logger"
	"rtmpt.io/tunnel/v1/rtmptlib/osutil"
)

const (
	maximumReconnectWaitTime = 2 * time.Minute
	maxBackoffInterval       = 15 * time.Second
)

func main() {
	s, err := loadSettings(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(2)
	}

	log, err := logger.New(&logger.Config{
		ConsoleWriters: []io.Writer{os.Stderr},
		FilePath:       s.LogFile,
		LogLevel:       logger.ToLogLevel(s.LogLevel),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: failed to start logger: %s\n", err)
		os.Exit(1)
	}

	if err := run(log, s, os.Stdin, os.Stdout); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func run(log *logger.Logger, s *settings, stdin io.Reader, stdout io.Writer) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tun, err := rtmpt.New(log, tunnelOptions(s))
	if err != nil {
		return fmt.Errorf("failed to create tunnel: %w", err)
	}

	if err := dial(ctx, log, tun, s.Reconnect); err != nil {
		return err
	}
	log.Infof("Tunnel %s open to %s:%d", tun.ConnectionId(), s.Host, s.Port)

	// closing the tunnel on a signal makes the pipe return
	shutdown := osutil.OsShutdownChan()
	go func() {
		select {
		case reason := <-shutdown:
			log.Infof("Shutting down: %s", reason)
			tun.Close(reason)
		case <-ctx.Done():
		}
	}()

	runErr := pipe.New(log.GetComponentLogger("Pipe"), tun).Run(ctx, stdin, stdout)
	tun.Close(fmt.Errorf("probe finished"))

	log.Infof("Tunnel throughput: %s", tun.Stats())

	var interrupt *osutil.OsInterruptError
	if errors.As(runErr, &interrupt) {
		return nil
	}
	return runErr
}

func tunnelOptions(s *settings) rtmpt.Options {
	return rtmpt.Options{
		Http: httpclient.Options{
			Host:    s.Host,
			Port:    s.Port,
			Secured: s.Secured,
		},
		Socket: tunnel.Options{
			PollInterval:      s.PollInterval,
			HonorIntervalHint: s.HonorHint,
		},
	}
}

func dial(ctx context.Context, log *logger.Logger, tun transporter.Transporter, reconnect bool) error {
	if !reconnect {
		return tun.Dial(ctx)
	}

	// Setup our exponential backoff parameters
	backoffParams := backoff.NewExponentialBackOff()
	backoffParams.MaxElapsedTime = maximumReconnectWaitTime
	backoffParams.MaxInterval = maxBackoffInterval

	ticker := backoff.NewTicker(backoffParams)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ticker.C:
			if !ok {
				return fmt.Errorf("failed to connect after %s", backoffParams.MaxElapsedTime)
			}

			if err := tun.Dial(ctx); err != nil {
				log.Infof("Retrying in %s because we failed to connect: %s", backoffParams.NextBackOff().Round(time.Millisecond), err)
				continue
			}

			return nil
		}
	}
}
