package probe

import (
	"Go2FlowFeatures/internal/config"
	"Go2FlowFeatures/internal/model"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// Publisher is responsible for publishing packet data to a NATS topic.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(cfg config.ProbeConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("flow-probe"))
	if err != nil {
		return nil, err
	}
	log.WithField("url", cfg.NATSURL).Info("Connected to NATS server")
	return &Publisher{nc: nc, subject: cfg.Subject}, nil
}

// Publish serializes a PacketInfo to Protobuf and publishes it to the configured NATS subject.
func (p *Publisher) Publish(info *model.PacketInfo) error {
	data, err := EncodePacket(info)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, data)
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			log.WithError(err).Warn("NATS drain failed")
		}
		log.Info("NATS connection drained and closed")
	}
}
