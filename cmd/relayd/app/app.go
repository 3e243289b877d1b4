// Package app builds the relayd command tree.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Alanbenny123/bustrackingnew/cmd/relayd/app/options"
	"github.com/Alanbenny123/bustrackingnew/pkg/log"
)

const (
	commandName = "relayd"
	commandDesc = `The bus relay accepts live position reports from vehicle publishers over
websocket or MQTT and fans them out to subscribers in real time, tracking
per-vehicle liveness along the way.`
)

var configFile string

// NewRelayCommand creates the root command with its subcommands.
func NewRelayCommand() *cobra.Command {
	opts := options.NewServerOptions()

	cmd := &cobra.Command{
		Use:          commandName,
		Short:        "Launch the bus location relay server",
		Long:         commandDesc,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, opts)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"Path to the relayd configuration file.")
	opts.AddFlags(cmd.Flags())

	cmd.AddCommand(newStatusCommand())
	return cmd
}

// loadConfig overlays the optional config file on top of the flag defaults
// and watches it for log level changes.
func loadConfig(cmd *cobra.Command, opts *options.ServerOptions) error {
	if configFile == "" {
		return nil
	}

	viper.SetConfigFile(configFile)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}
	if err := viper.Unmarshal(opts); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Log level is the one knob worth changing on a live process; everything
	// else requires a restart.
	viper.OnConfigChange(func(in fsnotify.Event) {
		lvl := viper.GetString("log.level")
		if lvl == "" {
			return
		}
		log.SetLevel(lvl)
		log.Info("log level updated from config file", "level", lvl)
	})
	viper.WatchConfig()
	return nil
}

func run(opts *options.ServerOptions) error {
	if err := opts.Complete(); err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	log.Init(opts.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := opts.Config()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	server, err := cfg.NewRelayServer()
	if err != nil {
		return fmt.Errorf("failed to create relay server: %w", err)
	}

	return server.Run(ctx)
}
