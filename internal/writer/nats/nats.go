// Package nats publishes feature rows to a NATS subject, one protobuf
// encoded structpb.Struct per flow.
package nats

import (
	"Go2FlowFeatures/internal/config"
	"Go2FlowFeatures/internal/factory"
	"Go2FlowFeatures/internal/model"
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	DefaultSubject = "flowfeat.features"
	RunIDHeader    = "Run-Id"
	FlushTimeout   = 5 * time.Second
)

func init() {
	factory.RegisterWriter("nats", func(cfg config.WriterConfig) (model.Writer, error) {
		return NewWriter(cfg.NATS)
	})
}

// publisher is the subset of *nats.Conn the writer uses.
type publisher interface {
	PublishMsg(msg *nats.Msg) error
	FlushTimeout(timeout time.Duration) error
	Drain() error
}

// Writer publishes feature rows to NATS.
type Writer struct {
	conn    publisher
	url     string
	subject string
}

// NewWriter connects to the NATS server in cfg.
func NewWriter(cfg config.NATSConfig) (*Writer, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url,
		nats.Name("flow-builder"),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.WithError(err).Error("NATS error")
		}),
	)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to connect to NATS: %w", err)}
	}
	log.WithField("url", url).Info("Connected to NATS")
	return newWriter(nc, url, cfg.Subject), nil
}

func newWriter(conn publisher, url, subject string) *Writer {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Writer{conn: conn, url: url, subject: subject}
}

func (w *Writer) Name() string {
	return "nats:" + w.subject
}

// Write publishes every row and waits for the server to acknowledge the flush.
func (w *Writer) Write(ctx context.Context, export *model.Export) error {
	for i, row := range export.Rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := EncodeRow(row)
		if err != nil {
			return fmt.Errorf("encode row %d: %w", i, err)
		}
		msg := nats.NewMsg(w.subject)
		msg.Header.Set(RunIDHeader, export.RunID)
		msg.Data = data
		if err := w.conn.PublishMsg(msg); err != nil {
			return &TransportError{Err: fmt.Errorf("failed to publish row %d: %w", i, err)}
		}
	}
	if err := w.conn.FlushTimeout(FlushTimeout); err != nil {
		return &TransportError{Err: fmt.Errorf("failed to flush: %w", err)}
	}
	return nil
}

// Close drains and closes the NATS connection.
func (w *Writer) Close() error {
	return w.conn.Drain()
}

// EncodeRow serializes a feature row as a protobuf Struct keyed by column name.
func EncodeRow(row model.FeatureRow) ([]byte, error) {
	msg := &structpb.Struct{Fields: map[string]*structpb.Value{
		"duration":        structpb.NewNumberValue(row.Duration),
		"total_bytes":     structpb.NewNumberValue(float64(row.TotalBytes)),
		"total_packets":   structpb.NewNumberValue(float64(row.TotalPackets)),
		"bytes_per_sec":   structpb.NewNumberValue(row.BytesPerSec),
		"packets_per_sec": structpb.NewNumberValue(row.PacketsPerSec),
		"proto":           structpb.NewNumberValue(float64(row.Proto)),
		"src_port":        structpb.NewNumberValue(float64(row.SrcPort)),
		"dst_port":        structpb.NewNumberValue(float64(row.DstPort)),
	}}
	return proto.Marshal(msg)
}

// DecodeRow reverses EncodeRow.
func DecodeRow(data []byte) (model.FeatureRow, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return model.FeatureRow{}, err
	}
	num := func(name string) float64 {
		return msg.Fields[name].GetNumberValue()
	}
	return model.FeatureRow{
		Duration:      num("duration"),
		TotalBytes:    uint64(num("total_bytes")),
		TotalPackets:  uint64(num("total_packets")),
		BytesPerSec:   num("bytes_per_sec"),
		PacketsPerSec: num("packets_per_sec"),
		Proto:         uint8(num("proto")),
		SrcPort:       uint16(num("src_port")),
		DstPort:       uint16(num("dst_port")),
	}, nil
}
