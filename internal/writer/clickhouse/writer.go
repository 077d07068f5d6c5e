// Package clickhouse inserts feature rows into a ClickHouse MergeTree table.
package clickhouse

import (
	"Go2FlowFeatures/internal/config"
	"Go2FlowFeatures/internal/factory"
	"Go2FlowFeatures/internal/model"
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultTable = "flow_features"
	DialTimeout  = 5 * time.Second
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS %s (
    Timestamp     DateTime,
    RunID         String,
    IPLow         String,
    IPHigh        String,
    Duration      Float64,
    TotalBytes    UInt64,
    TotalPackets  UInt64,
    BytesPerSec   Float64,
    PacketsPerSec Float64,
    Proto         UInt8,
    SrcPort       UInt16,
    DstPort       UInt16
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (RunID, Timestamp);
`

func init() {
	factory.RegisterWriter("clickhouse", func(cfg config.WriterConfig) (model.Writer, error) {
		return NewClickHouseWriter(cfg.ClickHouse)
	})
}

// ClickHouseWriter implements the model.Writer interface for ClickHouse.
type ClickHouseWriter struct {
	conn  driver.Conn
	table string
	addr  string
}

// NewClickHouseWriter connects to ClickHouse and ensures the table exists.
func NewClickHouseWriter(cfg config.ClickHouseConfig) (*ClickHouseWriter, error) {
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}

	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), fmt.Sprintf(createTableStatement, table)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.WithField("table", table).Info("Connected to ClickHouse and ensured table exists")

	return &ClickHouseWriter{conn: conn, table: table, addr: address(cfg)}, nil
}

func address(cfg config.ClickHouseConfig) string {
	port := cfg.Port
	if port == 0 {
		port = 9000
	}
	return fmt.Sprintf("%s:%d", cfg.Host, port)
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{address(cfg)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: DialTimeout,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), DialTimeout)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

func (w *ClickHouseWriter) Name() string {
	return "clickhouse:" + w.addr + "/" + w.table
}

// Write inserts one row per flow in a single batch.
func (w *ClickHouseWriter) Write(ctx context.Context, export *model.Export) error {
	if len(export.Rows) == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO "+w.table)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for i := range export.Rows {
		if err := batch.Append(rowValues(export, i)...); err != nil {
			return fmt.Errorf("failed to append row %d to batch: %w", i, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	log.WithFields(log.Fields{"rows": len(export.Rows), "table": w.table}).Info("Wrote feature rows to ClickHouse")
	return nil
}

// rowValues returns the column values of row i in table order.
func rowValues(export *model.Export, i int) []interface{} {
	row := export.Rows[i]
	var ipLow, ipHigh string
	if i < len(export.Records) {
		ipLow = export.Records[i].Key.IPLow.String()
		ipHigh = export.Records[i].Key.IPHigh.String()
	}
	return []interface{}{
		export.Timestamp,
		export.RunID,
		ipLow,
		ipHigh,
		row.Duration,
		row.TotalBytes,
		row.TotalPackets,
		row.BytesPerSec,
		row.PacketsPerSec,
		row.Proto,
		row.SrcPort,
		row.DstPort,
	}
}

func (w *ClickHouseWriter) Close() error {
	return w.conn.Close()
}
