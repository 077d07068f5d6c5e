// Package snapshot persists the raw flow records of a run to disk: a gob
// data file plus a JSON summary, in a timestamped directory per run.
package snapshot

import (
	"Go2FlowFeatures/internal/config"
	"Go2FlowFeatures/internal/factory"
	"Go2FlowFeatures/internal/model"
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// TimestampLayout names the per-run directories.
	TimestampLayout = "2006-01-02_15-04-05"
	FlowsFile       = "flows.dat"
	SummaryFile     = "summary.json"
)

func init() {
	factory.RegisterWriter("gob", func(cfg config.WriterConfig) (model.Writer, error) {
		root := cfg.RootPath
		if root == "" {
			root = cfg.Path
		}
		if root == "" {
			return nil, fmt.Errorf("gob writer requires root_path")
		}
		return NewWriter(root), nil
	})
}

// SummaryData holds the metadata for a snapshot.
type SummaryData struct {
	RunID        string `json:"run_id"`
	State        string `json:"state"`
	TotalFlows   int    `json:"total_flows"`
	TotalBytes   uint64 `json:"total_bytes"`
	TotalPackets uint64 `json:"total_packets"`
	Timestamp    string `json:"timestamp"`
}

// Writer handles writing snapshot data to disk.
type Writer struct {
	rootPath string
}

// NewWriter creates a new snapshot writer rooted at rootPath.
func NewWriter(rootPath string) *Writer {
	return &Writer{rootPath: rootPath}
}

func (w *Writer) Name() string {
	return "gob:" + w.rootPath
}

// Dir returns the directory a given export is written to.
func (w *Writer) Dir(export *model.Export) string {
	return filepath.Join(w.rootPath, export.Timestamp.Format(TimestampLayout), export.RunID)
}

// Write serializes the flow records of the export and its summary.
func (w *Writer) Write(_ context.Context, export *model.Export) error {
	// 1. Create timestamped directory
	runDir := w.Dir(export)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	// 2. Write the flow records
	filePath := filepath.Join(runDir, FlowsFile)
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file '%s': %w", filePath, err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(export.Records); err != nil {
		return fmt.Errorf("failed to encode flows to gob for file '%s': %w", filePath, err)
	}

	// 3. Write summary file
	summary := SummaryData{
		RunID:      export.RunID,
		State:      export.State,
		TotalFlows: len(export.Records),
		Timestamp:  export.Timestamp.UTC().Format(time.RFC3339),
	}
	for _, rec := range export.Records {
		summary.TotalBytes += rec.Flow.ByteCount
		summary.TotalPackets += rec.Flow.PacketCount
	}

	summaryFile, err := os.Create(filepath.Join(runDir, SummaryFile))
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer summaryFile.Close()

	jsonEncoder := json.NewEncoder(summaryFile)
	jsonEncoder.SetIndent("", "  ")
	if err := jsonEncoder.Encode(summary); err != nil {
		return fmt.Errorf("failed to encode summary to json: %w", err)
	}

	log.WithFields(log.Fields{"dir": runDir, "flows": summary.TotalFlows}).Debug("Snapshot written")
	return nil
}

func (w *Writer) Close() error {
	return nil
}

// ReadFlows decodes the flow records of a snapshot directory.
func ReadFlows(dir string) ([]model.FlowRecord, error) {
	file, err := os.Open(filepath.Join(dir, FlowsFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var records []model.FlowRecord
	if err := gob.NewDecoder(file).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode flows: %w", err)
	}
	return records, nil
}

// ReadSummary decodes the summary of a snapshot directory.
func ReadSummary(dir string) (*SummaryData, error) {
	data, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	if err != nil {
		return nil, err
	}
	var summary SummaryData
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}
