// Package features turns finished flows into the fixed-schema rows consumed by
// the anomaly-detection pipeline.
//
// Column order is part of the contract with the model and its scaler:
//
//	duration, total_bytes, total_packets, bytes_per_sec, packets_per_sec, proto, src_port, dst_port
//
// src_port and dst_port hold the canonical low and high ports of the flow
// key. They do not say which endpoint opened the connection.
package features

import (
	"Go2FlowFeatures/internal/model"
	"fmt"
	"strconv"
)

// EpsilonDuration replaces a zero flow duration (seconds) so rates stay finite.
const EpsilonDuration = 1e-6

// Columns is the header of every exported feature table.
var Columns = []string{
	"duration",
	"total_bytes",
	"total_packets",
	"bytes_per_sec",
	"packets_per_sec",
	"proto",
	"src_port",
	"dst_port",
}

// Extract derives the feature row of one flow.
func Extract(key model.FlowKey, flow model.Flow) model.FeatureRow {
	duration := flow.Duration().Seconds()
	if duration == 0 {
		duration = EpsilonDuration
	}
	return model.FeatureRow{
		Duration:      duration,
		TotalBytes:    flow.ByteCount,
		TotalPackets:  flow.PacketCount,
		BytesPerSec:   float64(flow.ByteCount) / duration,
		PacketsPerSec: float64(flow.PacketCount) / duration,
		Proto:         key.Protocol,
		SrcPort:       key.PortLow,
		DstPort:       key.PortHigh,
	}
}

// ExtractRecords derives one row per record, preserving order.
func ExtractRecords(records []model.FlowRecord) []model.FeatureRow {
	rows := make([]model.FeatureRow, len(records))
	for i, rec := range records {
		rows[i] = Extract(rec.Key, rec.Flow)
	}
	return rows
}

// Strings renders a row in column order.
func Strings(row model.FeatureRow) []string {
	return []string{
		formatFloat(row.Duration),
		strconv.FormatUint(row.TotalBytes, 10),
		strconv.FormatUint(row.TotalPackets, 10),
		formatFloat(row.BytesPerSec),
		formatFloat(row.PacketsPerSec),
		strconv.FormatUint(uint64(row.Proto), 10),
		strconv.FormatUint(uint64(row.SrcPort), 10),
		strconv.FormatUint(uint64(row.DstPort), 10),
	}
}

// Values returns the row as a numeric vector in column order.
func Values(row model.FeatureRow) []float64 {
	return []float64{
		row.Duration,
		float64(row.TotalBytes),
		float64(row.TotalPackets),
		row.BytesPerSec,
		row.PacketsPerSec,
		float64(row.Proto),
		float64(row.SrcPort),
		float64(row.DstPort),
	}
}

// ParseRow is the inverse of Strings.
func ParseRow(fields []string) (model.FeatureRow, error) {
	var row model.FeatureRow
	if len(fields) != len(Columns) {
		return row, fmt.Errorf("expected %d columns, got %d", len(Columns), len(fields))
	}
	var err error
	if row.Duration, err = parseFloat(fields, 0); err != nil {
		return row, err
	}
	if row.TotalBytes, err = parseUint(fields, 1, 64); err != nil {
		return row, err
	}
	if row.TotalPackets, err = parseUint(fields, 2, 64); err != nil {
		return row, err
	}
	if row.BytesPerSec, err = parseFloat(fields, 3); err != nil {
		return row, err
	}
	if row.PacketsPerSec, err = parseFloat(fields, 4); err != nil {
		return row, err
	}
	proto, err := parseUint(fields, 5, 8)
	if err != nil {
		return row, err
	}
	src, err := parseUint(fields, 6, 16)
	if err != nil {
		return row, err
	}
	dst, err := parseUint(fields, 7, 16)
	if err != nil {
		return row, err
	}
	row.Proto, row.SrcPort, row.DstPort = uint8(proto), uint16(src), uint16(dst)
	return row, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(fields []string, i int) (float64, error) {
	v, err := strconv.ParseFloat(fields[i], 64)
	if err != nil {
		return 0, fmt.Errorf("column %s: %w", Columns[i], err)
	}
	return v, nil
}

func parseUint(fields []string, i int, bits int) (uint64, error) {
	v, err := strconv.ParseUint(fields[i], 10, bits)
	if err != nil {
		return 0, fmt.Errorf("column %s: %w", Columns[i], err)
	}
	return v, nil
}
