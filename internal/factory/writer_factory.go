package factory

import (
	"Go2FlowFeatures/internal/config"
	"Go2FlowFeatures/internal/model"
	"errors"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"
)

// ErrUnknownWriter is returned for a writer type nobody registered.
var ErrUnknownWriter = errors.New("unknown writer type")

// WriterFactory builds a writer from its configuration block.
type WriterFactory func(cfg config.WriterConfig) (model.Writer, error)

// registry holds the mapping of writer types to their factory functions.
var registry = make(map[string]WriterFactory)

// RegisterWriter registers a new writer type with its factory function.
func RegisterWriter(name string, factory WriterFactory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("writer type '%s' already registered", name))
	}
	registry[name] = factory
}

// Registered returns the registered writer types in sorted order.
func Registered() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateWriters builds every enabled writer in configuration order. On error
// the writers built so far are closed.
func CreateWriters(cfg *config.Config) ([]model.Writer, error) {
	var writers []model.Writer
	for i, wc := range cfg.Writers {
		if !wc.Enabled {
			continue
		}
		factory, ok := registry[wc.Type]
		if !ok {
			CloseAll(writers)
			return nil, fmt.Errorf("writers[%d]: %w: '%s'", i, ErrUnknownWriter, wc.Type)
		}
		w, err := factory(wc)
		if err != nil {
			CloseAll(writers)
			return nil, fmt.Errorf("error creating writer type '%s': %w", wc.Type, err)
		}
		log.WithField("writer", w.Name()).Info("Writer created")
		writers = append(writers, w)
	}
	return writers, nil
}

// CloseAll closes every writer, logging failures.
func CloseAll(writers []model.Writer) {
	for _, w := range writers {
		if err := w.Close(); err != nil {
			log.WithError(err).WithField("writer", w.Name()).Warn("Failed to close writer")
		}
	}
}
