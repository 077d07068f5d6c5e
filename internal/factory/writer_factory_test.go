package factory

import (
	"Go2FlowFeatures/internal/config"
	"Go2FlowFeatures/internal/model"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWriter struct {
	name   string
	closed bool
}

func (w *stubWriter) Name() string { return w.name }
func (w *stubWriter) Write(context.Context, *model.Export) error { return nil }
func (w *stubWriter) Close() error { w.closed = true; return nil }

var built []*stubWriter

func init() {
	RegisterWriter("stub", func(cfg config.WriterConfig) (model.Writer, error) {
		w := &stubWriter{name: "stub:" + cfg.Path}
		built = append(built, w)
		return w, nil
	})
	RegisterWriter("broken", func(config.WriterConfig) (model.Writer, error) {
		return nil, errors.New("no route to host")
	})
}

func TestCreateWriters(t *testing.T) {
	cfg := &config.Config{Writers: []config.WriterConfig{
		{Type: "stub", Enabled: true, Path: "a"},
		{Type: "stub", Enabled: false, Path: "b"},
		{Type: "stub", Enabled: true, Path: "c"},
	}}

	writers, err := CreateWriters(cfg)
	require.NoError(t, err)
	require.Len(t, writers, 2)
	assert.Equal(t, "stub:a", writers[0].Name())
	assert.Equal(t, "stub:c", writers[1].Name())
}

func TestCreateWriters_UnknownType(t *testing.T) {
	built = nil
	cfg := &config.Config{Writers: []config.WriterConfig{
		{Type: "stub", Enabled: true},
		{Type: "parquet", Enabled: true},
	}}

	_, err := CreateWriters(cfg)
	assert.ErrorIs(t, err, ErrUnknownWriter)
	require.Len(t, built, 1)
	assert.True(t, built[0].closed)
}

func TestCreateWriters_FactoryError(t *testing.T) {
	cfg := &config.Config{Writers: []config.WriterConfig{{Type: "broken", Enabled: true}}}
	_, err := CreateWriters(cfg)
	assert.ErrorContains(t, err, "no route to host")
}

func TestRegisterWriter_Duplicate(t *testing.T) {
	assert.Panics(t, func() {
		RegisterWriter("stub", nil)
	})
	assert.Equal(t, []string{"broken", "stub"}, Registered())
}
