package protocol

import (
	"Go2FlowFeatures/internal/model"
	"Go2FlowFeatures/internal/pcaptest"
	"net/netip"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePacket_TCP(t *testing.T) {
	frame := pcaptest.Frame{
		Time: pcaptest.At(1.5), Src: "192.168.0.1", Dst: "8.8.8.8",
		SrcPort: 12345, DstPort: 443, Proto: layers.IPProtocolTCP, IPLength: 100,
	}

	info, err := ParsePacket(frame.Packet(t))
	require.NoError(t, err)

	assert.Equal(t, netip.MustParseAddr("192.168.0.1"), info.FiveTuple.SrcIP)
	assert.Equal(t, netip.MustParseAddr("8.8.8.8"), info.FiveTuple.DstIP)
	assert.Equal(t, uint16(12345), info.FiveTuple.SrcPort)
	assert.Equal(t, uint16(443), info.FiveTuple.DstPort)
	assert.Equal(t, uint8(6), info.FiveTuple.Protocol)
	assert.Equal(t, 100, info.Length)
	assert.True(t, info.HasTransport)
	assert.True(t, info.Timestamp.Equal(pcaptest.At(1.5)))
}

func TestParsePacket_UDPv6(t *testing.T) {
	frame := pcaptest.Frame{
		Time: pcaptest.At(2), Src: "2001:db8::1", Dst: "2001:db8::2",
		SrcPort: 5353, DstPort: 53, Proto: layers.IPProtocolUDP, IPLength: 120,
	}

	info, err := ParsePacket(frame.Packet(t))
	require.NoError(t, err)

	assert.Equal(t, netip.MustParseAddr("2001:db8::1"), info.FiveTuple.SrcIP)
	assert.Equal(t, uint8(17), info.FiveTuple.Protocol)
	assert.Equal(t, uint16(53), info.FiveTuple.DstPort)
	assert.Equal(t, 120, info.Length)
}

func TestParsePacket_NoTransportUsesZeroPorts(t *testing.T) {
	frame := pcaptest.Frame{
		Time: pcaptest.At(3), Src: "10.0.0.1", Dst: "10.0.0.2",
		Proto: layers.IPProtocolICMPv4, IPLength: 60,
	}

	info, err := ParsePacket(frame.Packet(t))
	require.NoError(t, err)

	assert.False(t, info.HasTransport)
	assert.Zero(t, info.FiveTuple.SrcPort)
	assert.Zero(t, info.FiveTuple.DstPort)
	assert.Equal(t, uint8(layers.IPProtocolICMPv4), info.FiveTuple.Protocol)
	assert.Equal(t, 60, info.Length)
}

func TestParsePacket_NoNetworkLayer(t *testing.T) {
	frame := pcaptest.Frame{Time: pcaptest.At(4), ARP: true}

	info, err := ParsePacket(frame.Packet(t))
	assert.Nil(t, info)
	assert.ErrorIs(t, err, ErrNoNetworkLayer)
	assert.ErrorIs(t, err, model.ErrMalformedPacket)
}
