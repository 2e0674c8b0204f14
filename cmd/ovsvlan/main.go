package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ovsnet/ovsvlan/pkg/config"
	"github.com/ovsnet/ovsvlan/pkg/logger"
	"github.com/ovsnet/ovsvlan/pkg/plugin"
)

var (
	configPath  string
	overlayPath string
	logLevel    string

	cfg    *config.Config
	plg    *plugin.Plugin
	ctx    context.Context
	cancel context.CancelFunc
)

var (
	rootCmd = &cobra.Command{
		Use:   "ovsvlan",
		Short: "ovsvlan manages tenant networks and the vlan tags bound to them.",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load(configPath, overlayPath)
			if err != nil {
				return err
			}
			level := cfg.LogLevel
			if cmd.Flags().Changed("log-level") {
				level = logLevel
			}
			if err = logger.SetLevel(level); err != nil {
				return err
			}

			plg, err = plugin.New(cfg)
			if err != nil {
				return err
			}
			ctx, cancel = context.WithCancel(cmd.Context())
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	networkCmd = &cobra.Command{
		Use:   "network",
		Short: "create, delete and list tenant networks.",
	}

	vlanCmd = &cobra.Command{
		Use:   "vlan",
		Short: "inspect vlan tag usage.",
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file, built-in defaults when empty")
	rootCmd.PersistentFlags().StringVar(&overlayPath, "config-overlay", "", "config merged on top of --config as a json merge patch")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level, overrides the config file")

	networkCmd.AddCommand(networkCreateCmd, networkDeleteCmd, networkMoveCmd, networkListCmd)
	vlanCmd.AddCommand(vlanListCmd, vlanStatsCmd)
	rootCmd.AddCommand(networkCmd, vlanCmd, metricsCmd, versionCmd)
}

// execute runs the root command and releases the plugin whether or not the
// command succeeded; cobra skips post run hooks on error.
func execute() error {
	defer closePlugin()
	return rootCmd.Execute()
}

func closePlugin() {
	if cancel != nil {
		cancel()
		cancel = nil
	}
	if plg != nil {
		if err := plg.Close(); err != nil {
			logger.DefaultLogger.Warnf("error close plugin, %v", err)
		}
		plg = nil
	}
}

func main() {
	if err := execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "ovsvlan error: %s\n", err)
		os.Exit(1)
	}
}
