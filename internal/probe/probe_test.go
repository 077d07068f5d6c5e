package probe

import (
	"Go2FlowFeatures/internal/model"
	"Go2FlowFeatures/internal/pcaptest"
	"context"
	"io"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePacket() *model.PacketInfo {
	return &model.PacketInfo{
		Timestamp: pcaptest.At(1700000000.123456789),
		FiveTuple: model.FiveTuple{
			SrcIP:    netip.MustParseAddr("2001:db8::1"),
			DstIP:    netip.MustParseAddr("2001:db8::2"),
			SrcPort:  5353,
			DstPort:  53,
			Protocol: 17,
		},
		Length:       88,
		HasTransport: true,
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	in := samplePacket()
	data, err := EncodePacket(in)
	require.NoError(t, err)

	out, err := DecodePacket(data)
	require.NoError(t, err)
	assert.True(t, in.Timestamp.Equal(out.Timestamp))
	assert.Equal(t, in.FiveTuple, out.FiveTuple)
	assert.Equal(t, in.Length, out.Length)
	assert.True(t, out.HasTransport)
}

func TestCodec_Malformed(t *testing.T) {
	_, err := DecodePacket([]byte{0xff, 0xff, 0xff})
	assert.ErrorIs(t, err, model.ErrMalformedPacket)

	_, err = DecodePacket(nil)
	assert.ErrorIs(t, err, model.ErrMalformedPacket, "empty struct has no timestamp")
}

func TestSubscriber_DeliversInOrder(t *testing.T) {
	s := newSubscriber("packets", 4)
	first := samplePacket()
	second := samplePacket()
	second.Length = 40

	for _, p := range []*model.PacketInfo{first, second} {
		data, err := EncodePacket(p)
		require.NoError(t, err)
		s.handle(data)
	}
	s.handle([]byte{0xff})

	ctx := context.Background()
	got, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 88, got.Length)

	got, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 40, got.Length)

	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, model.ErrMalformedPacket)
}

func TestSubscriber_CancelAndClose(t *testing.T) {
	s := newSubscriber("packets", 1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)

	// A late message after close must not block.
	s.handle([]byte{0xff})
	s.handle([]byte{0xff})
}
