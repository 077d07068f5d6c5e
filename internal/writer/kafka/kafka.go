// Package kafka produces feature rows to a Kafka topic as JSON messages
// keyed by the canonical flow key.
package kafka

import (
	"Go2FlowFeatures/internal/config"
	"Go2FlowFeatures/internal/factory"
	"Go2FlowFeatures/internal/model"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sarama "github.com/Shopify/sarama"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultTopic   = "flow-features"
	DefaultVersion = "2.8.0"
)

var compressionCodecs = map[string]sarama.CompressionCodec{
	strings.ToLower(sarama.CompressionNone.String()):   sarama.CompressionNone,
	strings.ToLower(sarama.CompressionGZIP.String()):   sarama.CompressionGZIP,
	strings.ToLower(sarama.CompressionSnappy.String()): sarama.CompressionSnappy,
	strings.ToLower(sarama.CompressionLZ4.String()):    sarama.CompressionLZ4,
	strings.ToLower(sarama.CompressionZSTD.String()):   sarama.CompressionZSTD,
}

func init() {
	factory.RegisterWriter("kafka", func(cfg config.WriterConfig) (model.Writer, error) {
		return NewWriter(cfg.Kafka)
	})
}

// Message is the JSON value of one produced record.
type Message struct {
	RunID string `json:"run_id"`
	Flow  string `json:"flow,omitempty"`
	model.FeatureRow
}

// Writer produces one message per feature row.
type Writer struct {
	producer sarama.SyncProducer
	topic    string
}

// SaramaConfig builds the producer configuration for cfg.
func SaramaConfig(cfg config.KafkaConfig) (*sarama.Config, error) {
	version := cfg.Version
	if version == "" {
		version = DefaultVersion
	}
	kafkaVersion, err := sarama.ParseKafkaVersion(version)
	if err != nil {
		return nil, err
	}

	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Version = kafkaVersion
	kafkaConfig.Producer.Return.Successes = true
	kafkaConfig.Producer.Return.Errors = true
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	kafkaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	if cfg.Compression != "" {
		cc, ok := compressionCodecs[strings.ToLower(cfg.Compression)]
		if !ok {
			return nil, errors.New("compression codec does not exist")
		}
		kafkaConfig.Producer.Compression = cc
	}
	return kafkaConfig, nil
}

// NewWriter connects a sync producer to cfg.Brokers.
func NewWriter(cfg config.KafkaConfig) (*Writer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka writer requires at least one broker")
	}
	kafkaConfig, err := SaramaConfig(cfg)
	if err != nil {
		return nil, err
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	log.WithField("brokers", strings.Join(cfg.Brokers, ",")).Info("Connected to Kafka")
	return NewWithProducer(producer, cfg.Topic), nil
}

// NewWithProducer wraps an existing producer.
func NewWithProducer(producer sarama.SyncProducer, topic string) *Writer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Writer{producer: producer, topic: topic}
}

func (w *Writer) Name() string {
	return "kafka:" + w.topic
}

// Write sends all rows in one batch.
func (w *Writer) Write(_ context.Context, export *model.Export) error {
	if len(export.Rows) == 0 {
		return nil
	}

	msgs := make([]*sarama.ProducerMessage, 0, len(export.Rows))
	for i, row := range export.Rows {
		value := Message{RunID: export.RunID, FeatureRow: row}
		if i < len(export.Records) {
			value.Flow = export.Records[i].Key.String()
		}
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode row %d: %w", i, err)
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: w.topic,
			Key:   sarama.StringEncoder(value.Flow),
			Value: sarama.ByteEncoder(data),
		})
	}

	if err := w.producer.SendMessages(msgs); err != nil {
		var perrs sarama.ProducerErrors
		if errors.As(err, &perrs) {
			return fmt.Errorf("failed to deliver %d of %d rows: %w", len(perrs), len(msgs), perrs[0].Err)
		}
		return fmt.Errorf("failed to deliver rows: %w", err)
	}
	return nil
}

func (w *Writer) Close() error {
	return w.producer.Close()
}
