package model

import (
	"errors"
	"fmt"
	"net/netip"
	"time"
)

// ErrMalformedPacket marks a packet that was read from the source but lacks the
// layers needed to derive a flow key. The caller skips it and keeps reading.
var ErrMalformedPacket = errors.New("malformed packet")

// FiveTuple represents the directional 5-tuple of a network packet.
type FiveTuple struct {
	SrcIP    netip.Addr
	DstIP    netip.Addr
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}

// PacketInfo holds the header fields extracted from a single captured packet.
type PacketInfo struct {
	Timestamp    time.Time
	FiveTuple    FiveTuple
	Length       int  // IP total length
	HasTransport bool // a TCP or UDP header was present
}

// FlowKey is the canonical, direction-independent identity of a flow.
// IPLow/IPHigh and PortLow/PortHigh are each sorted independently, so the
// ports do not necessarily belong to the address next to them.
type FlowKey struct {
	IPLow    netip.Addr
	IPHigh   netip.Addr
	PortLow  uint16
	PortHigh uint16
	Protocol uint8
}

func (k FlowKey) String() string {
	return fmt.Sprintf("%s:%d<->%s:%d/%d", k.IPLow, k.PortLow, k.IPHigh, k.PortHigh, k.Protocol)
}

// Flow is the mutable accumulator for one connection within a run.
type Flow struct {
	StartTime   time.Time
	LastTime    time.Time
	PacketCount uint64
	ByteCount   uint64
}

// Duration is LastTime - StartTime.
func (f *Flow) Duration() time.Duration {
	return f.LastTime.Sub(f.StartTime)
}

// FlowRecord is a detached copy of a flow together with its key.
type FlowRecord struct {
	Key  FlowKey
	Flow Flow
}

// FeatureRow is the fixed-schema numeric summary of one flow. SrcPort and
// DstPort carry the canonical low/high ports, not the true packet direction.
type FeatureRow struct {
	Duration      float64 `json:"duration"`
	TotalBytes    uint64  `json:"total_bytes"`
	TotalPackets  uint64  `json:"total_packets"`
	BytesPerSec   float64 `json:"bytes_per_sec"`
	PacketsPerSec float64 `json:"packets_per_sec"`
	Proto         uint8   `json:"proto"`
	SrcPort       uint16  `json:"src_port"`
	DstPort       uint16  `json:"dst_port"`
}

// Export is the payload handed to every writer at the end of a run.
type Export struct {
	RunID     string
	Timestamp time.Time
	State     string
	Rows      []FeatureRow
	Records   []FlowRecord // same order as Rows
}
