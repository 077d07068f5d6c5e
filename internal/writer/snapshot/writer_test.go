package snapshot

import (
	"Go2FlowFeatures/internal/model"
	"Go2FlowFeatures/internal/pcaptest"
	"context"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_WriteSnapshot(t *testing.T) {
	records := []model.FlowRecord{
		{
			Key: model.FlowKey{
				IPLow: netip.MustParseAddr("10.0.0.1"), IPHigh: netip.MustParseAddr("10.0.0.2"),
				PortLow: 1000, PortHigh: 1200, Protocol: 6,
			},
			Flow: model.Flow{StartTime: pcaptest.At(0), LastTime: pcaptest.At(1), PacketCount: 3, ByteCount: 350},
		},
		{
			Key: model.FlowKey{
				IPLow: netip.MustParseAddr("2001:db8::1"), IPHigh: netip.MustParseAddr("2001:db8::2"),
				PortLow: 53, PortHigh: 5353, Protocol: 17,
			},
			Flow: model.Flow{StartTime: pcaptest.At(2), LastTime: pcaptest.At(2), PacketCount: 1, ByteCount: 80},
		},
	}
	export := &model.Export{RunID: "run-1", Timestamp: pcaptest.At(1700000000), State: "exhausted", Records: records}

	root := t.TempDir()
	w := NewWriter(root)
	require.NoError(t, w.Write(context.Background(), export))

	dir := w.Dir(export)
	assert.Equal(t, filepath.Join(root, export.Timestamp.Format(TimestampLayout), "run-1"), dir)

	back, err := ReadFlows(dir)
	require.NoError(t, err)
	require.Len(t, back, 2)
	assert.Equal(t, records[0].Key, back[0].Key)
	assert.Equal(t, records[1].Key, back[1].Key)
	assert.True(t, records[0].Flow.LastTime.Equal(back[0].Flow.LastTime))
	assert.Equal(t, uint64(350), back[0].Flow.ByteCount)

	summary, err := ReadSummary(dir)
	require.NoError(t, err)
	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, "exhausted", summary.State)
	assert.Equal(t, 2, summary.TotalFlows)
	assert.Equal(t, uint64(430), summary.TotalBytes)
	assert.Equal(t, uint64(4), summary.TotalPackets)
}

func TestWriter_EmptyExport(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root)
	export := &model.Export{RunID: "empty", Timestamp: pcaptest.At(0)}
	require.NoError(t, w.Write(context.Background(), export))

	_, err := os.Stat(filepath.Join(w.Dir(export), SummaryFile))
	require.NoError(t, err)
	back, err := ReadFlows(w.Dir(export))
	require.NoError(t, err)
	assert.Empty(t, back)
}
