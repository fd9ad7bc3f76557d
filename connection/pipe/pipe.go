// Package pipe joins a Transporter to a pair of plain byte streams, e.g. stdin/stdout.
package pipe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"rtmpt.io/tunnel/v1/rtmptlib/connection/transporter"
	"rtmpt.io/tunnel/v1/rtmptlib/logger"
)

const (
	chunkSize = 32 * 1024

	DefaultLinger    = time.Second
	DefaultMaxLinger = 10 * time.Second
)

type Pipe struct {
	logger    *logger.Logger
	transport transporter.Transporter

	// Once the source is exhausted we keep writing inbound bytes until none have arrived
	// for Linger, or for at most MaxLinger in total
	Linger    time.Duration
	MaxLinger time.Duration
}

func New(logger *logger.Logger, transport transporter.Transporter) *Pipe {
	return &Pipe{
		logger:    logger,
		transport: transport,
		Linger:    DefaultLinger,
		MaxLinger: DefaultMaxLinger,
	}
}

// Run sends everything read from src through the transport and writes everything the
// transport receives to dst. It returns when src is exhausted and the transport has gone
// quiet, when the transport dies, or when ctx ends.
func (p *Pipe) Run(ctx context.Context, src io.Reader, dst io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks := make(chan []byte)
	readErr := make(chan error, 1)

	// reads can't be interrupted, so this goroutine may outlive Run until src unblocks
	go func() {
		buf := make([]byte, chunkSize)
		for {
			n, err := src.Read(buf)
			if n > 0 {
				select {
				case chunks <- bytes.Clone(buf[:n]):
				case <-ctx.Done():
					return
				}
			}

			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.transport.Done():
			return p.died()
		case chunk := <-chunks:
			if err := p.transport.Send(chunk); err != nil {
				return fmt.Errorf("failed to send %d bytes: %w", len(chunk), err)
			}
		case message := <-p.transport.Inbound():
			if err := p.write(dst, message); err != nil {
				return err
			}
		case err := <-readErr:
			if !errors.Is(err, io.EOF) {
				return fmt.Errorf("failed to read input: %w", err)
			}

			p.logger.Infof("Input exhausted, waiting for remaining inbound bytes")
			return p.linger(ctx, dst)
		}
	}
}

func (p *Pipe) linger(ctx context.Context, dst io.Writer) error {
	absoluteTimeout := time.NewTimer(p.MaxLinger)
	defer absoluteTimeout.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.transport.Done():
			return p.died()
		case message := <-p.transport.Inbound():
			if err := p.write(dst, message); err != nil {
				return err
			}
		case <-time.After(p.Linger):
			return nil
		case <-absoluteTimeout.C:
			p.logger.Errorf("timed out waiting for inbound bytes to stop after %s", p.MaxLinger)
			return nil
		}
	}
}

func (p *Pipe) write(dst io.Writer, message *[]byte) error {
	if _, err := dst.Write(*message); err != nil {
		return fmt.Errorf("failed to write %d received bytes: %w", len(*message), err)
	}
	return nil
}

func (p *Pipe) died() error {
	if err := p.transport.Err(); err != nil {
		return fmt.Errorf("transport died: %w", err)
	}
	return fmt.Errorf("transport closed")
}
