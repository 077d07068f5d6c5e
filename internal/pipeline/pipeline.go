// Package pipeline wires a packet source, the run controller, the configured
// writers and the optional status API into one bounded run.
package pipeline

import (
	"Go2FlowFeatures/internal/api"
	"Go2FlowFeatures/internal/config"
	"Go2FlowFeatures/internal/engine/runner"
	"Go2FlowFeatures/internal/factory"
	"Go2FlowFeatures/internal/model"
	"Go2FlowFeatures/internal/writer/csvfile"
	"context"
	"fmt"
	"io"
	"time"

	_ "Go2FlowFeatures/internal/writer/clickhouse" // Registers the clickhouse writer
	_ "Go2FlowFeatures/internal/writer/kafka"      // Registers the kafka writer
	_ "Go2FlowFeatures/internal/writer/nats"       // Registers the nats writer
	_ "Go2FlowFeatures/internal/writer/snapshot"   // Registers the gob writer

	log "github.com/sirupsen/logrus"
)

// Options tune a single invocation beyond the configuration file.
type Options struct {
	// Preview prints the first Preview rows as CSV to PreviewOut after export.
	Preview    int
	PreviewOut io.Writer
}

// RunnerOptions derives the run controller options from cfg.
func RunnerOptions(cfg *config.Config) (runner.Options, error) {
	timeout, err := cfg.Run.FlowTimeoutDuration()
	if err != nil {
		return runner.Options{}, err
	}
	return runner.Options{
		PacketBudget:     cfg.Run.PacketBudget,
		ProgressInterval: cfg.Run.ProgressInterval,
		FlowTimeout:      timeout,
		ExpiryInterval:   cfg.Run.ExpiryInterval,
	}, nil
}

// SetOutput points the first csv writer at path, adding one if none is configured.
func SetOutput(cfg *config.Config, path string) {
	for i := range cfg.Writers {
		if cfg.Writers[i].Type == "csv" {
			cfg.Writers[i].Path = path
			cfg.Writers[i].Enabled = true
			return
		}
	}
	cfg.Writers = append(cfg.Writers, config.WriterConfig{Type: "csv", Enabled: true, Path: path})
}

// Execute runs source to completion and exports the result. The source is
// not closed. A source failure is returned after the partial export.
func Execute(ctx context.Context, cfg *config.Config, source model.PacketSource, opts Options) (*runner.Result, error) {
	runOpts, err := RunnerOptions(cfg)
	if err != nil {
		return nil, err
	}

	writers, err := factory.CreateWriters(cfg)
	if err != nil {
		return nil, err
	}
	defer factory.CloseAll(writers)

	var observers []runner.Observer
	var status *api.Server
	if cfg.API.ListenAddr != "" || cfg.API.GRPCAddr != "" {
		status = api.NewServer()
		if err := status.Start(cfg.API.ListenAddr, cfg.API.GRPCAddr); err != nil {
			return nil, fmt.Errorf("failed to start status API: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := status.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Warn("Status API shutdown failed")
			}
		}()
		observers = append(observers, status)
	}

	r := runner.New(runOpts, observers...)
	res := r.Run(ctx, source)
	if status != nil {
		status.Finished(res)
	}

	// Writers still run when the run itself was cancelled.
	exportErr := r.Export(context.WithoutCancel(ctx), res, writers...)

	if opts.Preview > 0 && opts.PreviewOut != nil {
		n := min(opts.Preview, len(res.Rows))
		if err := csvfile.Encode(opts.PreviewOut, res.Rows[:n]); err != nil {
			log.WithError(err).Warn("Failed to print preview")
		}
	}

	if exportErr != nil {
		return res, exportErr
	}
	if res.Reason == runner.SourceFailed {
		return res, fmt.Errorf("packet source failed after %d packets: %w", res.Packets, res.Err)
	}
	return res, nil
}
