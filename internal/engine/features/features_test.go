package features

import (
	"Go2FlowFeatures/internal/model"
	"math"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = model.FlowKey{
	IPLow:    netip.MustParseAddr("10.0.0.1"),
	IPHigh:   netip.MustParseAddr("10.0.0.2"),
	PortLow:  1000,
	PortHigh: 1200,
	Protocol: 6,
}

func TestExtract_SinglePacketUsesEpsilon(t *testing.T) {
	ts := time.Unix(100, 0)
	row := Extract(testKey, model.Flow{StartTime: ts, LastTime: ts, PacketCount: 1, ByteCount: 60})

	assert.Equal(t, EpsilonDuration, row.Duration)
	assert.False(t, math.IsInf(row.BytesPerSec, 0))
	assert.False(t, math.IsNaN(row.BytesPerSec))
	assert.False(t, math.IsInf(row.PacketsPerSec, 0))
	assert.InDelta(t, 60e6, row.BytesPerSec, 1e-3)
	assert.InDelta(t, 1e6, row.PacketsPerSec, 1e-6)
}

func TestExtract_Rates(t *testing.T) {
	row := Extract(testKey, model.Flow{
		StartTime:   time.Unix(0, 0),
		LastTime:    time.Unix(2, 0),
		PacketCount: 4,
		ByteCount:   1000,
	})

	assert.Equal(t, 2.0, row.Duration)
	assert.Equal(t, 500.0, row.BytesPerSec)
	assert.Equal(t, 2.0, row.PacketsPerSec)
	assert.Equal(t, uint8(6), row.Proto)
	assert.Equal(t, uint16(1000), row.SrcPort)
	assert.Equal(t, uint16(1200), row.DstPort)
}

func TestStrings_ColumnOrder(t *testing.T) {
	row := model.FeatureRow{
		Duration: 1, TotalBytes: 350, TotalPackets: 3, BytesPerSec: 350, PacketsPerSec: 3,
		Proto: 6, SrcPort: 1000, DstPort: 1200,
	}
	assert.Equal(t, []string{"1", "350", "3", "350", "3", "6", "1000", "1200"}, Strings(row))
	assert.Len(t, Values(row), len(Columns))
}

func TestParseRow_InvertsStrings(t *testing.T) {
	row := Extract(testKey, model.Flow{
		StartTime:   time.Unix(0, 0),
		LastTime:    time.Unix(0, 123456789),
		PacketCount: 7,
		ByteCount:   4321,
	})

	parsed, err := ParseRow(Strings(row))
	require.NoError(t, err)
	assert.Equal(t, row, parsed)
}

func TestParseRow_Errors(t *testing.T) {
	_, err := ParseRow([]string{"1", "2"})
	assert.Error(t, err)

	_, err = ParseRow([]string{"x", "1", "1", "1", "1", "6", "1", "2"})
	assert.ErrorContains(t, err, "duration")

	_, err = ParseRow([]string{"1", "1", "1", "1", "1", "6", "1", "70000"})
	assert.ErrorContains(t, err, "dst_port")
}
