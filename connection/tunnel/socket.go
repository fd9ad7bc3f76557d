/*
Package tunnel emulates a bidirectional byte stream over plain HTTP POST exchanges, the
way RTMPT does for networks that only let outbound HTTP through.

A Socket opens a session with an identify/open/idle-prime handshake, ships buffered
outbound bytes with Flush, pulls inbound bytes by polling, and tears the session down
with Close. Every read and write exchange is addressed with the next number of a single
sequence shared by both directions.

A Socket is owned by one caller at a time. Wrap it (see transporter/rtmpt) before sharing
it between goroutines.
*/
package tunnel

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"rtmpt.io/tunnel/v1/rtmptlib/connection/httpclient"
	"rtmpt.io/tunnel/v1/rtmptlib/logger"
	"rtmpt.io/tunnel/v1/rtmptlib/telemetry/throughputstats"
)

const (
	identPath = "/fcs/ident2"
	openPath  = "/open/1"
)

var primeBody = []byte{0x00}

func idlePath(connectionId string, seq uint64) string {
	return fmt.Sprintf("/idle/%s/%d", connectionId, seq)
}

func sendPath(connectionId string, seq uint64) string {
	return fmt.Sprintf("/send/%s/%d", connectionId, seq)
}

func closePath(connectionId string) string {
	return fmt.Sprintf("/close/%s", connectionId)
}

type Options struct {
	// Carries every exchange. Required.
	Client httpclient.Exchanger

	// Fixed delay between empty polls, defaults to DefaultPollInterval
	PollInterval time.Duration

	// Use the server's interval hint as the delay between empty polls instead of
	// PollInterval. The hint is multiplied by HintUnit and clamped to
	// [MinPollInterval, MaxPollInterval].
	HonorIntervalHint bool
	HintUnit          time.Duration
	MinPollInterval   time.Duration
	MaxPollInterval   time.Duration

	// Optional byte counters
	Stats *throughputstats.ThroughputStats
}

type Socket struct {
	logger *logger.Logger
	client httpclient.Exchanger
	stats  *throughputstats.ThroughputStats

	pollPolicy backoff.BackOff
	wait       func(ctx context.Context, d time.Duration) error

	connectionId string
	connected    bool
	sequence     sequence

	outbound bytes.Buffer

	// payload of the last poll and how much of it has been handed out
	inbound []byte
	cursor  int

	// last interval hint the server sent
	hint byte
}

func New(logger *logger.Logger, options Options) (*Socket, error) {
	if options.Client == nil {
		return nil, fmt.Errorf("cannot create a tunnel socket without an http client")
	}

	if options.PollInterval <= 0 {
		options.PollInterval = DefaultPollInterval
	}

	s := &Socket{
		logger: logger,
		client: options.Client,
		stats:  options.Stats,
		wait:   sleep,
	}

	fixed := backoff.NewConstantBackOff(options.PollInterval)
	if options.HonorIntervalHint {
		if options.HintUnit <= 0 {
			options.HintUnit = DefaultHintUnit
		}
		if options.MinPollInterval <= 0 {
			options.MinPollInterval = DefaultMinPollInterval
		}
		if options.MaxPollInterval <= 0 {
			options.MaxPollInterval = DefaultMaxPollInterval
		}

		s.pollPolicy = &hintBackOff{
			hint:     s.LastIntervalHint,
			unit:     options.HintUnit,
			min:      options.MinPollInterval,
			max:      options.MaxPollInterval,
			fallback: fixed,
		}
	} else {
		s.pollPolicy = fixed
	}

	return s, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Connect runs the open handshake. On failure the socket is left disconnected and clean,
// ready for another attempt.
func (s *Socket) Connect(ctx context.Context) (err error) {
	if s.connected {
		return ErrAlreadyConnected
	}

	defer func() {
		if err != nil {
			s.logger.Errorf("Connection failed: %s", err)
			s.reset()
		}
	}()

	if _, err := s.client.Exchange(ctx, identPath, primeBody); err != nil {
		return newError(KindConnect, identPath, err)
	}

	body, err := s.client.Exchange(ctx, openPath, nil)
	if err != nil {
		return newError(KindConnect, openPath, err)
	}

	connectionId := strings.TrimSpace(string(body))
	if connectionId == "" {
		return newError(KindConnect, openPath, ErrEmptyConnectionId)
	}
	s.connectionId = connectionId

	path := idlePath(s.connectionId, s.sequence.claim())
	if _, err := s.client.Exchange(ctx, path, primeBody); err != nil {
		s.abandon(ctx)
		return newError(KindConnect, path, err)
	}

	s.connected = true
	s.logger.Infof("Connection success, tunnel %s is open", s.connectionId)

	return nil
}

// Close tells the server we are done. Whatever the server says, the socket is reset to
// its initial disconnected state; the returned error is only informational.
func (s *Socket) Close(ctx context.Context) error {
	defer s.reset()

	if s.connectionId == "" {
		return nil
	}

	path := closePath(s.connectionId)
	if _, err := s.client.Exchange(ctx, path, primeBody); err != nil {
		s.logger.Errorf("Close request failed: %s", err)
		return newError(KindClose, path, err)
	}

	s.logger.Infof("Close success, tunnel %s is closed", s.connectionId)
	return nil
}

// abandon asks the server to drop a session that was opened but never primed. Best effort.
func (s *Socket) abandon(ctx context.Context) {
	path := closePath(s.connectionId)
	if _, err := s.client.Exchange(ctx, path, primeBody); err != nil {
		s.logger.Debugf("Server did not drop half-open tunnel %s: %s", s.connectionId, err)
	}
}

func (s *Socket) reset() {
	s.sequence.reset()
	s.connectionId = ""
	s.connected = false
	s.outbound.Reset()
	s.inbound = nil
	s.cursor = 0
	s.hint = 0
}

func (s *Socket) IsConnected() bool {
	return s.connected
}

// IsReachable does not probe anything, a tunnel is reachable exactly when it is connected
func (s *Socket) IsReachable() bool {
	return s.connected
}

func (s *Socket) ConnectionId() string {
	return s.connectionId
}

// Sequence is the number the next exchange will be addressed with
func (s *Socket) Sequence() uint64 {
	return s.sequence.current()
}

// LastIntervalHint is byte 0 of the most recent non-empty poll response
func (s *Socket) LastIntervalHint() byte {
	return s.hint
}

func (s *Socket) Stats() throughputstats.Digest {
	if s.stats == nil {
		return throughputstats.Digest{}
	}
	return s.stats.Digest()
}

// Write queues p for the next Flush. It never fails.
func (s *Socket) Write(p []byte) (int, error) {
	return s.outbound.Write(p)
}

// Buffered is the number of bytes waiting for Flush
func (s *Socket) Buffered() int {
	return s.outbound.Len()
}

// Flush sends everything queued by Write in a single exchange and empties the queue. The
// sequence number is spent even when the exchange fails.
func (s *Socket) Flush(ctx context.Context) error {
	if !s.connected {
		return ErrNotConnected
	}

	path := sendPath(s.connectionId, s.sequence.claim())

	payload := bytes.Clone(s.outbound.Bytes())
	s.outbound.Reset()

	s.logger.Tracef("write bytes: %v", payload)

	// the send reply carries a hint too, but only poll replies pace polling
	if _, err := s.client.Exchange(ctx, path, payload); err != nil {
		return newError(KindWrite, path, err)
	}

	if s.stats != nil {
		s.stats.CountOutbound(len(payload))
	}

	return nil
}

// Read blocks until the server has bytes for us and returns all of them. Empty polls are
// spaced by the poll policy. Cancelling ctx is the only way to stop an idle tunnel from
// polling forever.
func (s *Socket) Read(ctx context.Context) ([]byte, error) {
	if err := s.fill(ctx); err != nil {
		return nil, err
	}

	return s.take(), nil
}

// TryRead is Read without the waiting: it hands out unread payload, or polls exactly once
// if there is none. An empty result means the server had nothing; wait PollDelay before
// trying again.
func (s *Socket) TryRead(ctx context.Context) ([]byte, error) {
	if err := s.pollIfEmpty(ctx); err != nil {
		return nil, err
	}

	return s.take(), nil
}

// PollDelay is how long to wait after an empty poll
func (s *Socket) PollDelay() time.Duration {
	return s.pollPolicy.NextBackOff()
}

func (s *Socket) readInto(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	if err := s.fill(ctx); err != nil {
		return 0, err
	}

	n := copy(p, s.inbound[s.cursor:])
	s.cursor += n

	return n, nil
}

func (s *Socket) unread() int {
	return len(s.inbound) - s.cursor
}

func (s *Socket) take() []byte {
	if s.unread() == 0 {
		return nil
	}

	payload := s.inbound[s.cursor:]
	s.inbound = nil
	s.cursor = 0

	return payload
}

// fill polls until there is at least one unread payload byte
func (s *Socket) fill(ctx context.Context) error {
	policy := backoff.WithContext(s.pollPolicy, ctx)
	policy.Reset()

	for {
		if err := s.pollIfEmpty(ctx); err != nil {
			return err
		}

		if s.unread() > 0 {
			return nil
		}

		delay := policy.NextBackOff()
		if delay == backoff.Stop {
			return newError(KindRead, "", ctx.Err())
		}

		if err := s.wait(ctx, delay); err != nil {
			return newError(KindRead, "", err)
		}
	}
}

func (s *Socket) pollIfEmpty(ctx context.Context) error {
	if !s.connected {
		return ErrNotConnected
	}

	if s.unread() > 0 {
		return nil
	}

	return s.poll(ctx)
}

func (s *Socket) poll(ctx context.Context) error {
	path := idlePath(s.connectionId, s.sequence.claim())

	response, err := s.client.Exchange(ctx, path, nil)
	if err != nil {
		return newError(KindRead, path, err)
	}

	s.logger.Tracef("read bytes: %v", response)

	s.inbound = nil
	s.cursor = 0

	if len(response) == 0 {
		return nil
	}

	s.hint = response[0]
	s.inbound = response[1:]

	if s.stats != nil && len(s.inbound) > 0 {
		s.stats.CountInbound(len(s.inbound))
	}

	return nil
}
