package commands

import (
	"Go2FlowFeatures/internal/config"
	"Go2FlowFeatures/internal/logging"
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const cliExecutable = "flow-builder"

type configKey struct{}

// NewCommand constructs the flow-builder CLI.
func NewCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   cliExecutable,
		Short: "Aggregate captured packets into per-flow feature rows",
		Long: `flow-builder reads packets from a capture file, a live interface or a probe,
groups them into bidirectional flows and exports one feature row per flow.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			if err := logging.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, cfg))
			return nil
		},
	}
	cmd.SilenceUsage = true

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	bindRunFlags(cmd.PersistentFlags())

	cmd.AddCommand(newBuildCommand())
	cmd.AddCommand(newLiveCommand())
	cmd.AddCommand(newSubscribeCommand())
	cmd.AddCommand(newConfigCommand())
	return cmd
}

// bindRunFlags declares flags named after their configuration keys.
func bindRunFlags(fs *pflag.FlagSet) {
	fs.Int("run.packet_budget", 100000, "Maximum packets per run (0 = unlimited)")
	fs.Int("run.progress_interval", 20000, "Packets between progress reports (0 = off)")
	fs.String("run.flow_timeout", "", "Idle timeout after which a flow is closed, e.g. 2m (empty = never)")
	fs.Int("run.expiry_interval", 10000, "Packets between idle-flow sweeps")
	fs.String("log.level", "info", "Log level (trace, debug, info, warn, error)")
	fs.String("log.format", "text", "Log format (text, json)")
	fs.String("api.listen_addr", "", "Status API listen address (empty = off)")
	fs.String("api.grpc_addr", "", "gRPC health listen address (empty = off)")
}

func configFrom(cmd *cobra.Command) (*config.Config, error) {
	cfg, ok := cmd.Context().Value(configKey{}).(*config.Config)
	if !ok {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			out, err := config.Dump(cfg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), string(out))
			return err
		},
	})
	return cmd
}
