package pipeline

import (
	"Go2FlowFeatures/internal/config"
	"Go2FlowFeatures/internal/engine/runner"
	"Go2FlowFeatures/internal/model"
	"Go2FlowFeatures/internal/pcaptest"
	"Go2FlowFeatures/internal/writer/csvfile"
	"Go2FlowFeatures/internal/writer/snapshot"
	"bytes"
	"context"
	"errors"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listSource struct {
	packets []*model.PacketInfo
	failAt  int // 1-based read that fails, 0 never
	reads   int
}

func (s *listSource) Next(context.Context) (*model.PacketInfo, error) {
	s.reads++
	if s.failAt == s.reads {
		return nil, errors.New("unexpected EOF in record")
	}
	if len(s.packets) == 0 {
		return nil, io.EOF
	}
	p := s.packets[0]
	s.packets = s.packets[1:]
	return p, nil
}

func (s *listSource) Close() error { return nil }

func packet(src, dst string, sport, dport uint16, sec float64, length int) *model.PacketInfo {
	return &model.PacketInfo{
		Timestamp: pcaptest.At(sec),
		FiveTuple: model.FiveTuple{
			SrcIP: netip.MustParseAddr(src), DstIP: netip.MustParseAddr(dst),
			SrcPort: sport, DstPort: dport, Protocol: 6,
		},
		Length:       length,
		HasTransport: true,
	}
}

func scenario() []*model.PacketInfo {
	return []*model.PacketInfo{
		packet("10.0.0.1", "10.0.0.2", 1000, 1200, 0.0, 100),
		packet("10.0.0.2", "10.0.0.1", 1200, 1000, 0.5, 200),
		packet("10.0.0.1", "10.0.0.2", 1000, 1200, 1.0, 50),
	}
}

func TestExecute_WritesAllWriters(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "features.csv")
	cfg := &config.Config{
		Writers: []config.WriterConfig{
			{Type: "csv", Enabled: true, Path: csvPath},
			{Type: "gob", Enabled: true, RootPath: filepath.Join(dir, "snapshots")},
		},
	}

	var preview bytes.Buffer
	res, err := Execute(context.Background(), cfg, &listSource{packets: scenario()}, Options{Preview: 5, PreviewOut: &preview})
	require.NoError(t, err)
	assert.Equal(t, runner.Done, res.State)

	rows, err := csvfile.ReadFile(csvPath)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(350), rows[0].TotalBytes)

	lines := strings.Split(strings.TrimSpace(preview.String()), "\n")
	assert.Len(t, lines, 2)

	snap := snapshot.NewWriter(filepath.Join(dir, "snapshots"))
	summary, err := snapshot.ReadSummary(snap.Dir(res.Payload()))
	require.NoError(t, err)
	assert.Equal(t, res.RunID, summary.RunID)
	assert.Equal(t, uint64(3), summary.TotalPackets)
}

func TestExecute_SourceFailureStillExports(t *testing.T) {
	csvPath := filepath.Join(t.TempDir(), "partial.csv")
	cfg := &config.Config{Writers: []config.WriterConfig{{Type: "csv", Enabled: true, Path: csvPath}}}

	res, err := Execute(context.Background(), cfg, &listSource{packets: scenario(), failAt: 3}, Options{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "unexpected EOF in record")
	assert.Equal(t, runner.SourceFailed, res.Reason)

	rows, err := csvfile.ReadFile(csvPath)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(2), rows[0].TotalPackets)
}

func TestExecute_CancelledRunStillExports(t *testing.T) {
	csvPath := filepath.Join(t.TempDir(), "cancelled.csv")
	cfg := &config.Config{Writers: []config.WriterConfig{{Type: "csv", Enabled: true, Path: csvPath}}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Execute(ctx, cfg, &listSource{packets: scenario()}, Options{})
	require.NoError(t, err)
	assert.Equal(t, runner.Cancelled, res.Reason)

	_, err = os.Stat(csvPath)
	assert.NoError(t, err, "header-only csv is still written")
}

func TestExecute_UnknownWriter(t *testing.T) {
	cfg := &config.Config{Writers: []config.WriterConfig{{Type: "parquet", Enabled: true}}}
	_, err := Execute(context.Background(), cfg, &listSource{}, Options{})
	assert.Error(t, err)
}

func TestExecute_StatusAPI(t *testing.T) {
	cfg := &config.Config{
		API:     config.APIConfig{ListenAddr: "127.0.0.1:0", GRPCAddr: "127.0.0.1:0"},
		Writers: []config.WriterConfig{{Type: "csv", Enabled: true, Path: filepath.Join(t.TempDir(), "f.csv")}},
	}
	res, err := Execute(context.Background(), cfg, &listSource{packets: scenario()}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Flows)
}

func TestRunnerOptions(t *testing.T) {
	opts, err := RunnerOptions(&config.Config{Run: config.RunConfig{PacketBudget: 7, FlowTimeout: "30s", ExpiryInterval: 100}})
	require.NoError(t, err)
	assert.Equal(t, 7, opts.PacketBudget)
	assert.Equal(t, 30*time.Second, opts.FlowTimeout)

	_, err = RunnerOptions(&config.Config{Run: config.RunConfig{FlowTimeout: "later"}})
	assert.Error(t, err)
}

func TestSetOutput(t *testing.T) {
	cfg := &config.Config{Writers: []config.WriterConfig{{Type: "gob"}, {Type: "csv", Path: "a.csv"}}}
	SetOutput(cfg, "b.csv")
	assert.Equal(t, "b.csv", cfg.Writers[1].Path)
	assert.True(t, cfg.Writers[1].Enabled)

	cfg = &config.Config{}
	SetOutput(cfg, "-")
	require.Len(t, cfg.Writers, 1)
	assert.Equal(t, "csv", cfg.Writers[0].Type)
}
