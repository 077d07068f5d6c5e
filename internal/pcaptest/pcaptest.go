// Package pcaptest builds synthetic frames and capture files for tests.
package pcaptest

import (
	"net"
	"os"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Frame describes one synthetic Ethernet frame.
type Frame struct {
	Time     time.Time
	Src, Dst string // IPv4 or IPv6 literals
	SrcPort  uint16
	DstPort  uint16
	Proto    layers.IPProtocol // TCP, UDP or anything else (no transport header)
	IPLength int               // desired IP total length; 0 means no payload
	ARP      bool              // emit an ARP frame with no IP layer
}

var (
	srcMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	dstMAC = net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xaa}
)

// Bytes serializes the frame.
func (f Frame) Bytes(tb testing.TB) []byte {
	tb.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}

	if f.ARP {
		eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: layers.EthernetBroadcast, EthernetType: layers.EthernetTypeARP}
		arp := &layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         layers.ARPRequest,
			SourceHwAddress:   srcMAC,
			SourceProtAddress: []byte{10, 0, 0, 1},
			DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
			DstProtAddress:    []byte{10, 0, 0, 2},
		}
		if err := gopacket.SerializeLayers(buf, opts, eth, arp); err != nil {
			tb.Fatalf("serialize arp: %v", err)
		}
		return buf.Bytes()
	}

	src, dst := net.ParseIP(f.Src), net.ParseIP(f.Dst)
	v4 := src.To4() != nil

	var (
		stack  []gopacket.SerializableLayer
		ipHdr  = 20
		l4Hdr  = 0
		netLay gopacket.NetworkLayer
	)
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	if v4 {
		ip := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: f.Proto, SrcIP: src.To4(), DstIP: dst.To4()}
		stack = append(stack, eth, ip)
		netLay = ip
	} else {
		eth.EthernetType = layers.EthernetTypeIPv6
		ip := &layers.IPv6{Version: 6, HopLimit: 64, NextHeader: f.Proto, SrcIP: src, DstIP: dst}
		stack = append(stack, eth, ip)
		netLay = ip
		ipHdr = 40
	}

	switch f.Proto {
	case layers.IPProtocolTCP:
		tcp := &layers.TCP{SrcPort: layers.TCPPort(f.SrcPort), DstPort: layers.TCPPort(f.DstPort), ACK: true, Window: 14600}
		if err := tcp.SetNetworkLayerForChecksum(netLay); err != nil {
			tb.Fatalf("tcp checksum: %v", err)
		}
		stack = append(stack, tcp)
		l4Hdr = 20
	case layers.IPProtocolUDP:
		udp := &layers.UDP{SrcPort: layers.UDPPort(f.SrcPort), DstPort: layers.UDPPort(f.DstPort)}
		if err := udp.SetNetworkLayerForChecksum(netLay); err != nil {
			tb.Fatalf("udp checksum: %v", err)
		}
		stack = append(stack, udp)
		l4Hdr = 8
	}

	payload := 0
	if f.IPLength > 0 {
		payload = f.IPLength - ipHdr - l4Hdr
		if payload < 0 {
			tb.Fatalf("ip length %d is smaller than the headers (%d)", f.IPLength, ipHdr+l4Hdr)
		}
	}
	stack = append(stack, gopacket.Payload(make([]byte, payload)))

	if err := gopacket.SerializeLayers(buf, opts, stack...); err != nil {
		tb.Fatalf("serialize frame: %v", err)
	}
	return buf.Bytes()
}

// Packet decodes the frame back into a gopacket.Packet carrying its timestamp.
func (f Frame) Packet(tb testing.TB) gopacket.Packet {
	tb.Helper()
	data := f.Bytes(tb)
	p := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
	md := p.Metadata()
	md.Timestamp = f.Time
	md.CaptureLength = len(data)
	md.Length = len(data)
	return p
}

// WriteFile writes the frames as a classic Ethernet pcap file.
func WriteFile(tb testing.TB, path string, frames []Frame) {
	tb.Helper()
	file, err := os.Create(path)
	if err != nil {
		tb.Fatalf("create %s: %v", path, err)
	}
	defer file.Close()

	w := pcapgo.NewWriter(file)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		tb.Fatalf("pcap header: %v", err)
	}
	for _, f := range frames {
		data := f.Bytes(tb)
		ci := gopacket.CaptureInfo{Timestamp: f.Time, CaptureLength: len(data), Length: len(data)}
		if err := w.WritePacket(ci, data); err != nil {
			tb.Fatalf("write packet: %v", err)
		}
	}
}

// WriteNgFile writes the frames as a pcapng file with one Ethernet interface.
func WriteNgFile(tb testing.TB, path string, frames []Frame) {
	tb.Helper()
	file, err := os.Create(path)
	if err != nil {
		tb.Fatalf("create %s: %v", path, err)
	}
	defer file.Close()

	w, err := pcapgo.NewNgWriter(file, layers.LinkTypeEthernet)
	if err != nil {
		tb.Fatalf("pcapng writer: %v", err)
	}
	for _, f := range frames {
		data := f.Bytes(tb)
		ci := gopacket.CaptureInfo{Timestamp: f.Time, CaptureLength: len(data), Length: len(data)}
		if err := w.WritePacket(ci, data); err != nil {
			tb.Fatalf("write packet: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		tb.Fatalf("flush pcapng: %v", err)
	}
}

// At returns the Unix epoch plus sec seconds (fractions allowed).
func At(sec float64) time.Time {
	return time.Unix(0, int64(sec*float64(time.Second))).UTC()
}
