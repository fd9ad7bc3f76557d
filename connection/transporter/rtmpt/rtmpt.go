/*
The rtmpt package turns a tunnel.Socket into a Transporter. The socket is single-owner, so
every call into it happens under one lock; the lock is dropped between polls so Send never
waits for an idle tunnel. Inbound bytes are pulled by a receive loop whose lifetime is
managed by a tomb and pushed, one poll's payload at a time, onto the Inbound channel.
*/

package rtmpt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/tomb.v2"

	"rtmpt.io/tunnel/v1/rtmptlib/connection/httpclient"
	"rtmpt.io/tunnel/v1/rtmptlib/connection/transporter"
	"rtmpt.io/tunnel/v1/rtmptlib/connection/tunnel"
	"rtmpt.io/tunnel/v1/rtmptlib/logger"
	"rtmpt.io/tunnel/v1/rtmptlib/telemetry/throughputstats"
)

const (
	inboundBufferSize = 200

	// how long we give the server to acknowledge a close
	closeTimeout = 5 * time.Second
)

type Options struct {
	Http   httpclient.Options
	Socket tunnel.Options
}

type Tunnel struct {
	tmb    tomb.Tomb
	logger *logger.Logger

	// guards socket and running
	lock    sync.Mutex
	socket  *tunnel.Socket
	running bool

	// counts the current session only
	stats *throughputstats.ThroughputStats

	// Received messages
	inbound chan *[]byte
}

func New(logger *logger.Logger, options Options) (*Tunnel, error) {
	tunnelLogger := logger.GetConnectionLogger(uuid.New().String())

	if options.Socket.Client == nil {
		client, err := httpclient.New(tunnelLogger.GetComponentLogger("HttpClient"), options.Http)
		if err != nil {
			return nil, fmt.Errorf("failed to create http client: %w", err)
		}
		options.Socket.Client = client
	}

	if options.Socket.Stats == nil {
		options.Socket.Stats = throughputstats.New("bytes")
	}

	socket, err := tunnel.New(tunnelLogger.GetComponentLogger("Socket"), options.Socket)
	if err != nil {
		return nil, err
	}

	return &Tunnel{
		logger:  tunnelLogger,
		socket:  socket,
		stats:   options.Socket.Stats,
		inbound: make(chan *[]byte, inboundBufferSize),
	}, nil
}

var _ transporter.Transporter = (*Tunnel)(nil)

func (t *Tunnel) Close(reason error) {
	t.lock.Lock()
	running := t.running
	t.running = false
	t.lock.Unlock()

	if !running {
		t.logger.Infof("Close was called on a tunnel that is not open")
		return
	}

	t.logger.Infof("Tunnel closing because: %s", reason)

	t.tmb.Kill(reason)
	t.tmb.Wait()

	// the receive loop is gone, anything still queued belongs to this session only
	t.drain()

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	t.lock.Lock()
	defer t.lock.Unlock()

	if err := t.socket.Close(ctx); err != nil {
		t.logger.Errorf("server did not acknowledge close: %s", err)
	}
}

func (t *Tunnel) drain() {
	for {
		select {
		case message := <-t.inbound:
			t.logger.Debugf("Dropping %d bytes received before close", len(*message))
		default:
			return
		}
	}
}

func (t *Tunnel) Done() <-chan struct{} {
	return t.tmb.Dead()
}

func (t *Tunnel) Err() error {
	return t.tmb.Err()
}

func (t *Tunnel) Inbound() <-chan *[]byte {
	return t.inbound
}

func (t *Tunnel) Stats() throughputstats.Digest {
	return t.socket.Stats()
}

func (t *Tunnel) ConnectionId() string {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.socket.ConnectionId()
}

// Send queues message and flushes it in its own exchange
func (t *Tunnel) Send(message []byte) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	if !t.running {
		return &tunnel.Error{Kind: tunnel.KindTransport, Err: tunnel.ErrNotConnected}
	}

	t.socket.Write(message)
	return t.socket.Flush(t.tmb.Context(nil))
}

func (t *Tunnel) Dial(ctx context.Context) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.running {
		return tunnel.ErrAlreadyConnected
	}

	if err := t.socket.Connect(ctx); err != nil {
		return fmt.Errorf("error opening tunnel: %w", err)
	}

	// Reinitialize our tomb and counters in case this is post death
	t.tmb = tomb.Tomb{}
	t.stats.Reset()
	t.running = true

	t.tmb.Go(t.receive)

	return nil
}

func (t *Tunnel) receive() error {
	defer t.logger.Infof("Tunnel receive loop stopped")
	t.logger.Infof("Tunnel receive loop started")

	ctx := t.tmb.Context(nil)

	for {
		payload, delay, err := t.poll(ctx)
		if !t.tmb.Alive() {
			return nil
		} else if err != nil {
			t.logger.Error(err)
			return err
		}

		if len(payload) == 0 {
			select {
			case <-t.tmb.Dying():
				return nil
			case <-time.After(delay):
			}
			continue
		}

		t.logger.Tracef("received %d bytes", len(payload))

		select {
		case <-t.tmb.Dying():
			return nil
		case t.inbound <- &payload:
		}
	}
}

func (t *Tunnel) poll(ctx context.Context) ([]byte, time.Duration, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	payload, err := t.socket.TryRead(ctx)
	if err != nil || len(payload) > 0 {
		return payload, 0, err
	}

	return nil, t.socket.PollDelay(), nil
}
