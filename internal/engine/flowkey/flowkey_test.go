package flowkey

import (
	"Go2FlowFeatures/internal/model"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func tuple(src, dst string, sp, dp uint16, proto uint8) model.FiveTuple {
	return model.FiveTuple{
		SrcIP:    netip.MustParseAddr(src),
		DstIP:    netip.MustParseAddr(dst),
		SrcPort:  sp,
		DstPort:  dp,
		Protocol: proto,
	}
}

func TestNormalize_BothDirectionsShareKey(t *testing.T) {
	cases := []struct {
		name     string
		fwd, rev model.FiveTuple
	}{
		{"tcp v4", tuple("10.0.0.1", "10.0.0.2", 1000, 1200, 6), tuple("10.0.0.2", "10.0.0.1", 1200, 1000, 6)},
		{"udp v4 high to low", tuple("192.168.1.200", "8.8.8.8", 53000, 53, 17), tuple("8.8.8.8", "192.168.1.200", 53, 53000, 17)},
		{"v6", tuple("2001:db8::10", "2001:db8::2", 443, 60000, 6), tuple("2001:db8::2", "2001:db8::10", 60000, 443, 6)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, Normalize(tc.fwd), Normalize(tc.rev))
		})
	}
}

func TestNormalize_NumericNotTextualOrder(t *testing.T) {
	// "10.0.0.9" > "10.0.0.10" textually but not numerically.
	key := Normalize(tuple("10.0.0.10", "10.0.0.9", 9, 10, 6))
	assert.Equal(t, netip.MustParseAddr("10.0.0.9"), key.IPLow)
	assert.Equal(t, netip.MustParseAddr("10.0.0.10"), key.IPHigh)
	assert.Equal(t, uint16(9), key.PortLow)
	assert.Equal(t, uint16(10), key.PortHigh)
}

func TestNormalize_PortsSortedIndependently(t *testing.T) {
	key := Normalize(tuple("10.0.0.1", "10.0.0.2", 8080, 80, 6))
	assert.Equal(t, netip.MustParseAddr("10.0.0.1"), key.IPLow)
	assert.Equal(t, uint16(80), key.PortLow)
	assert.Equal(t, uint16(8080), key.PortHigh)
}

func TestNormalize_IPv4BeforeIPv6AndUnmapped(t *testing.T) {
	key := Normalize(tuple("::1", "127.0.0.1", 1, 2, 17))
	assert.Equal(t, netip.MustParseAddr("127.0.0.1"), key.IPLow)

	mapped := Normalize(tuple("::ffff:10.0.0.2", "10.0.0.1", 1, 2, 17))
	plain := Normalize(tuple("10.0.0.2", "10.0.0.1", 2, 1, 17))
	assert.Equal(t, plain, mapped)
}

func TestNormalize_SelfTraffic(t *testing.T) {
	ft := tuple("10.0.0.1", "10.0.0.1", 5000, 5000, 17)
	key := Normalize(ft)
	assert.Equal(t, key.IPLow, key.IPHigh)
	assert.Equal(t, key.PortLow, key.PortHigh)
	assert.Equal(t, key, Normalize(ft))
}

func TestFromPacket_NoTransportZeroesPorts(t *testing.T) {
	info := &model.PacketInfo{FiveTuple: tuple("10.0.0.1", "10.0.0.2", 7, 9, 1)}
	key := FromPacket(info)
	assert.Zero(t, key.PortLow)
	assert.Zero(t, key.PortHigh)
	assert.Equal(t, uint8(1), key.Protocol)
}
