package probe

import (
	"Go2FlowFeatures/internal/config"
	"Go2FlowFeatures/internal/model"
	"context"
	"io"
	"sync"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const defaultBuffer = 10000

type delivery struct {
	info *model.PacketInfo
	err  error
}

// Subscriber receives packets published by a probe and serves them as a
// packet source. Messages are decoded on the NATS goroutine and handed to
// the reader through a bounded channel.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string

	packets   chan delivery
	done      chan struct{}
	closeOnce sync.Once
}

// NewSubscriber connects to NATS. Call Start to begin receiving.
func NewSubscriber(cfg config.ProbeConfig) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("flow-builder"))
	if err != nil {
		return nil, err
	}
	log.WithField("url", cfg.NATSURL).Info("Connected to NATS server")
	s := newSubscriber(cfg.Subject, cfg.Buffer)
	s.nc = nc
	return s, nil
}

func newSubscriber(subject string, buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Subscriber{
		subject: subject,
		packets: make(chan delivery, buffer),
		done:    make(chan struct{}),
	}
}

// Start subscribes to the configured subject.
func (s *Subscriber) Start() error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		s.handle(msg.Data)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	log.WithField("subject", s.subject).Info("Subscribed, waiting for packets")
	return nil
}

func (s *Subscriber) handle(data []byte) {
	info, err := DecodePacket(data)
	select {
	case s.packets <- delivery{info: info, err: err}:
	case <-s.done:
	}
}

// Next blocks until a packet arrives, ctx is done or the subscriber is closed.
func (s *Subscriber) Next(ctx context.Context) (*model.PacketInfo, error) {
	select {
	case d := <-s.packets:
		return d.info, d.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, io.EOF
	}
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.sub != nil {
			err = s.sub.Unsubscribe()
		}
		if s.nc != nil {
			s.nc.Close()
			log.Info("NATS connection closed")
		}
	})
	return err
}
