package transporter

import (
	"context"

	"rtmpt.io/tunnel/v1/rtmptlib/telemetry/throughputstats"
)

// Transporter moves raw bytes for the protocol layer above it. Inbound bytes arrive on
// Inbound() until the transporter dies, at which point Done() closes and Err() says why.
type Transporter interface {
	Done() <-chan struct{}
	Err() error
	Inbound() <-chan *[]byte
	Dial(ctx context.Context) error
	Send(message []byte) error
	Close(reason error)
	Stats() throughputstats.Digest
}
