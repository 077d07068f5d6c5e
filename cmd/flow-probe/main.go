package main

import (
	"Go2FlowFeatures/internal/config"
	"Go2FlowFeatures/internal/logging"
	"Go2FlowFeatures/internal/model"
	"Go2FlowFeatures/internal/probe"
	"Go2FlowFeatures/internal/probe/persistent"
	"Go2FlowFeatures/pkg/pcap"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gopacket"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const reportEvery = 1000

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var (
		configFile string
		cfg        *config.Config
	)

	cmd := &cobra.Command{
		Use:   "flow-probe",
		Short: "Capture packets and ship their headers over NATS",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return logging.Setup(cfg.Log.Level, cfg.Log.Format)
		},
	}
	cmd.SilenceUsage = true
	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	cmd.PersistentFlags().String("probe.nats_url", "", "NATS server URL")
	cmd.PersistentFlags().String("probe.subject", "", "Subject packets are published to")
	cmd.PersistentFlags().String("log.level", "info", "Log level")

	pub := &cobra.Command{
		Use:   "pub [interface]",
		Short: "Capture on an interface and publish packet headers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				cfg.Source.Interface = args[0]
			}
			return runPublisher(cmd.Context(), cfg)
		},
	}
	pub.Flags().String("source.bpf", "", "BPF filter applied to the capture")
	pub.Flags().String("source.record_dir", "", "Also record raw frames to a pcap file in this directory")

	tail := &cobra.Command{
		Use:   "tail",
		Short: "Subscribe and print received packets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTail(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(pub, tail)
	return cmd
}

// runPublisher captures packets and publishes them to NATS until interrupted.
func runPublisher(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pub, err := probe.NewPublisher(cfg.Probe)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer pub.Close()

	var recorder *persistent.Recorder
	opts := pcap.LiveOptions{
		Interface: cfg.Source.Interface,
		BPF:       cfg.Source.BPF,
		SnapLen:   int32(cfg.Source.SnapLen),
		Promisc:   cfg.Source.Promisc,
		Tap: func(ci gopacket.CaptureInfo, data []byte) {
			if recorder != nil {
				recorder.Enqueue(ci, data)
			}
		},
	}
	reader, err := pcap.OpenLive(opts)
	if err != nil {
		return err
	}
	defer reader.Close()

	if cfg.Source.RecordDir != "" {
		recorder, err = persistent.NewRecorder(cfg.Source.RecordDir, reader.LinkType(), uint32(cfg.Source.SnapLen), 0)
		if err != nil {
			return err
		}
		defer recorder.Stop()
	}

	published := 0
	for {
		info, err := reader.Next(ctx)
		switch {
		case err == nil:
		case errors.Is(err, model.ErrMalformedPacket):
			continue // non-IP frames are not published
		case errors.Is(err, context.Canceled), errors.Is(err, io.EOF):
			log.WithField("published", published).Info("Probe stopped")
			return nil
		default:
			return err
		}

		if err := pub.Publish(info); err != nil {
			log.WithError(err).Warn("Failed to publish packet")
			continue
		}
		published++
		if published%reportEvery == 0 {
			log.WithField("published", published).Info("Packets published")
		}
	}
}

// runTail prints packets received from NATS until interrupted.
func runTail(ctx context.Context, cfg *config.Config, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub, err := probe.NewSubscriber(cfg.Probe)
	if err != nil {
		return fmt.Errorf("failed to create subscriber: %w", err)
	}
	defer sub.Close()
	if err := sub.Start(); err != nil {
		return err
	}

	for {
		info, err := sub.Next(ctx)
		switch {
		case err == nil:
		case errors.Is(err, model.ErrMalformedPacket):
			log.WithError(err).Warn("Dropping undecodable message")
			continue
		case errors.Is(err, context.Canceled), errors.Is(err, io.EOF):
			return nil
		default:
			return err
		}
		ft := info.FiveTuple
		fmt.Fprintf(out, "%s %s:%d -> %s:%d proto=%d len=%d\n",
			info.Timestamp.Format("2006-01-02 15:04:05.000000"),
			ft.SrcIP, ft.SrcPort, ft.DstIP, ft.DstPort, ft.Protocol, info.Length)
	}
}
