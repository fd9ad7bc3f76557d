// Package throughputstats counts the bytes a tunnel moves in each direction.
package throughputstats

import (
	"encoding/json"
	"fmt"

	"rtmpt.io/tunnel/v1/rtmptlib/telemetry/throughput"
)

// Digest is a point-in-time snapshot of both directions, each a marshalled Throughput
type Digest struct {
	Inbound  json.RawMessage `json:"inbound"`
	Outbound json.RawMessage `json:"outbound"`
}

func (d Digest) String() string {
	return fmt.Sprintf("inbound=%s outbound=%s", d.Inbound, d.Outbound)
}

type ThroughputStats struct {
	received *throughput.Throughput
	sent     *throughput.Throughput
}

func New(unit string) *ThroughputStats {
	return &ThroughputStats{
		received: throughput.New(unit),
		sent:     throughput.New(unit),
	}
}

// Reset starts both directions over, e.g. when a tunnel is redialed
func (s *ThroughputStats) Reset() {
	s.received.Reset()
	s.sent.Reset()
}

// CountInbound records n payload bytes taken from a poll reply
func (s *ThroughputStats) CountInbound(n int) {
	s.received.Observe(n)
}

// CountOutbound records n bytes handed to a send exchange
func (s *ThroughputStats) CountOutbound(n int) {
	s.sent.Observe(n)
}

func (s *ThroughputStats) Digest() Digest {
	return Digest{
		Inbound:  s.received.String(),
		Outbound: s.sent.String(),
	}
}
