package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-gsender/logger"
)

type rootFlags struct {
	configPath   string
	port         string
	baud         int
	firmware     string
	buffer       int
	pollInterval time.Duration
	logLevel     string
	metricsAddr  string
}

// app carries the resolved configuration to subcommands.
type app struct {
	flags rootFlags
	cfg   Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "gsender",
		Short: "Stream G-code to GRBL and Smoothieware controllers",
		Long: `gsender connects to a GRBL or Smoothieware motion controller, runs the
identification handshake, and streams G-code with character-counting flow
control.

Ports are serial device paths, tcp://host:port, or ws://host:port/path.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.resolve(cmd)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&a.flags.configPath, "config", "", "YAML config file")
	f.StringVarP(&a.flags.port, "port", "p", "", "port: serial device, tcp://host:port, or ws://host:port/path")
	f.IntVarP(&a.flags.baud, "baud", "b", 0, "serial baud rate")
	f.StringVarP(&a.flags.firmware, "firmware", "f", "", "firmware family: grbl, grbl-0.9, or smoothie")
	f.IntVar(&a.flags.buffer, "buffer", 0, "firmware receive buffer size in bytes")
	f.DurationVar(&a.flags.pollInterval, "poll-interval", 0, "status poll interval")
	f.StringVar(&a.flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	f.StringVar(&a.flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9100")

	cmd.AddCommand(newPortsCmd(), newSendCmd(a), newStatusCmd(a))

	return cmd
}

// resolve merges the config file, the environment, and explicitly set flags.
func (a *app) resolve(cmd *cobra.Command) error {
	cfg, err := loadConfig(a.flags.configPath)
	if err != nil {
		return err
	}

	f := cmd.Flags()
	if f.Changed("port") {
		cfg.Port = a.flags.port
	}
	if f.Changed("baud") {
		cfg.Baud = a.flags.baud
	}
	if f.Changed("firmware") {
		cfg.Firmware = a.flags.firmware
	}
	if f.Changed("buffer") {
		cfg.Buffer = a.flags.buffer
	}
	if f.Changed("poll-interval") {
		cfg.PollInterval = a.flags.pollInterval
	}
	if f.Changed("log-level") {
		cfg.LogLevel = a.flags.logLevel
	}
	if f.Changed("metrics-addr") {
		cfg.MetricsAddr = a.flags.metricsAddr
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logger.SetLevel(level)

	a.cfg = cfg

	return nil
}
