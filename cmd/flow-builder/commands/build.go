package commands

import (
	"Go2FlowFeatures/internal/model"
	"Go2FlowFeatures/internal/pipeline"
	"Go2FlowFeatures/internal/probe"
	"Go2FlowFeatures/internal/probe/persistent"
	"Go2FlowFeatures/pkg/pcap"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gopacket"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type runFlags struct {
	output  string
	preview int
}

func (f *runFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Write the feature CSV to this path ('-' for stdout)")
	cmd.Flags().IntVar(&f.preview, "preview", 0, "Print the first N feature rows after export")
}

// run executes one pipeline pass over source and closes it.
func (f *runFlags) run(cmd *cobra.Command, source model.PacketSource) error {
	defer source.Close()

	cfg, err := configFrom(cmd)
	if err != nil {
		return err
	}
	if f.output != "" {
		pipeline.SetOutput(cfg, f.output)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = pipeline.Execute(ctx, cfg, source, pipeline.Options{
		Preview:    f.preview,
		PreviewOut: cmd.OutOrStdout(),
	})
	return err
}

func newBuildCommand() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "build [capture-file]",
		Short: "Build flow features from a pcap or pcapng file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			path := cfg.Source.Path
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return errors.New("no capture file given (argument or source.path)")
			}

			reader, err := pcap.Open(path)
			if err != nil {
				return err
			}
			log.WithField("path", path).Info("Reading capture file")
			return flags.run(cmd, reader)
		},
	}
	flags.bind(cmd)
	return cmd
}

func newLiveCommand() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "live [interface]",
		Short: "Build flow features from a live interface capture",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			iface := cfg.Source.Interface
			if len(args) == 1 {
				iface = args[0]
			}

			opts := pcap.LiveOptions{
				Interface: iface,
				BPF:       cfg.Source.BPF,
				SnapLen:   int32(cfg.Source.SnapLen),
				Promisc:   cfg.Source.Promisc,
			}
			var recorder *persistent.Recorder
			if cfg.Source.RecordDir != "" {
				// The recorder needs the link type, so it is attached once the handle is open.
				opts.Tap = func(ci gopacket.CaptureInfo, data []byte) {
					if recorder != nil {
						recorder.Enqueue(ci, data)
					}
				}
			}

			reader, err := pcap.OpenLive(opts)
			if err != nil {
				return err
			}
			if cfg.Source.RecordDir != "" {
				recorder, err = persistent.NewRecorder(cfg.Source.RecordDir, reader.LinkType(), uint32(cfg.Source.SnapLen), 0)
				if err != nil {
					reader.Close()
					return err
				}
				defer recorder.Stop()
			}
			return flags.run(cmd, reader)
		},
	}
	cmd.Flags().String("source.bpf", "", "BPF filter applied to the capture")
	cmd.Flags().Int("source.snaplen", 65536, "Capture snapshot length")
	cmd.Flags().Bool("source.promisc", true, "Put the interface in promiscuous mode")
	cmd.Flags().String("source.record_dir", "", "Also record raw frames to a pcap file in this directory")
	flags.bind(cmd)
	return cmd
}

func newSubscribeCommand() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Build flow features from packets published by flow-probe over NATS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			sub, err := probe.NewSubscriber(cfg.Probe)
			if err != nil {
				return err
			}
			if err := sub.Start(); err != nil {
				sub.Close()
				return err
			}
			return flags.run(cmd, sub)
		},
	}
	cmd.Flags().String("probe.nats_url", "", "NATS server URL")
	cmd.Flags().String("probe.subject", "", "Subject the probe publishes packets to")
	flags.bind(cmd)
	return cmd
}

