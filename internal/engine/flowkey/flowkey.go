// Package flowkey derives the canonical, direction-independent identity of a
// packet's connection.
//
// Addresses are ordered with netip.Addr.Compare: every IPv4 address sorts
// before every IPv6 address, and addresses of the same family compare by
// their big-endian bytes. IPv4-mapped IPv6 addresses are unmapped first.
// Ports are ordered numerically. The two orderings are applied
// independently, so a key's PortLow is not necessarily IPLow's port.
package flowkey

import (
	"Go2FlowFeatures/internal/model"
)

// Normalize returns the canonical key for a directional 5-tuple.
func Normalize(ft model.FiveTuple) model.FlowKey {
	a, b := ft.SrcIP.Unmap(), ft.DstIP.Unmap()
	if b.Compare(a) < 0 {
		a, b = b, a
	}
	p, q := ft.SrcPort, ft.DstPort
	if q < p {
		p, q = q, p
	}
	return model.FlowKey{
		IPLow:    a,
		IPHigh:   b,
		PortLow:  p,
		PortHigh: q,
		Protocol: ft.Protocol,
	}
}

// FromPacket is Normalize over a packet's 5-tuple. Ports of packets without a
// transport header are forced to zero.
func FromPacket(info *model.PacketInfo) model.FlowKey {
	ft := info.FiveTuple
	if !info.HasTransport {
		ft.SrcPort, ft.DstPort = 0, 0
	}
	return Normalize(ft)
}
