package protocol

import (
	"Go2FlowFeatures/internal/model"
	"fmt"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ErrNoNetworkLayer is returned for packets that carry no IPv4 or IPv6 header.
var ErrNoNetworkLayer = fmt.Errorf("no network layer: %w", model.ErrMalformedPacket)

const ipv6HeaderLen = 40

// ParsePacket uses gopacket to extract the IP and transport header fields of a packet.
func ParsePacket(packet gopacket.Packet) (*model.PacketInfo, error) {
	info := &model.PacketInfo{}
	if meta := packet.Metadata(); meta != nil {
		info.Timestamp = meta.Timestamp
	}

	var fiveTuple model.FiveTuple

	if l := packet.Layer(layers.LayerTypeIPv4); l != nil {
		ip := l.(*layers.IPv4)
		src, dst, err := addrPair(ip.SrcIP, ip.DstIP)
		if err != nil {
			return nil, err
		}
		fiveTuple.SrcIP, fiveTuple.DstIP = src, dst
		fiveTuple.Protocol = uint8(ip.Protocol)
		info.Length = int(ip.Length)
		if info.Length == 0 {
			// Offloaded captures may leave the total length unset.
			info.Length = len(ip.Contents) + len(ip.Payload)
		}
	} else if l := packet.Layer(layers.LayerTypeIPv6); l != nil {
		ip := l.(*layers.IPv6)
		src, dst, err := addrPair(ip.SrcIP, ip.DstIP)
		if err != nil {
			return nil, err
		}
		fiveTuple.SrcIP, fiveTuple.DstIP = src, dst
		fiveTuple.Protocol = uint8(ip.NextHeader)
		info.Length = int(ip.Length) + ipv6HeaderLen
	} else {
		return nil, ErrNoNetworkLayer
	}

	if l := packet.Layer(layers.LayerTypeTCP); l != nil {
		tcp := l.(*layers.TCP)
		fiveTuple.SrcPort = uint16(tcp.SrcPort)
		fiveTuple.DstPort = uint16(tcp.DstPort)
		info.HasTransport = true
	} else if l := packet.Layer(layers.LayerTypeUDP); l != nil {
		udp := l.(*layers.UDP)
		fiveTuple.SrcPort = uint16(udp.SrcPort)
		fiveTuple.DstPort = uint16(udp.DstPort)
		info.HasTransport = true
	}

	info.FiveTuple = fiveTuple
	return info, nil
}

func addrPair(srcIP, dstIP []byte) (netip.Addr, netip.Addr, error) {
	src, ok := netip.AddrFromSlice(srcIP)
	if !ok {
		return netip.Addr{}, netip.Addr{}, fmt.Errorf("bad source address %v: %w", srcIP, model.ErrMalformedPacket)
	}
	dst, ok := netip.AddrFromSlice(dstIP)
	if !ok {
		return netip.Addr{}, netip.Addr{}, fmt.Errorf("bad destination address %v: %w", dstIP, model.ErrMalformedPacket)
	}
	return src.Unmap(), dst.Unmap(), nil
}
