package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/go-gsender/controller"
	"github.com/arloliu/go-gsender/firmware"
	"github.com/arloliu/go-gsender/firmware/grbl"
	"github.com/arloliu/go-gsender/firmware/smoothie"
	"github.com/arloliu/go-gsender/transport"
)

const envPrefix = "GSENDER_"

// Config is the CLI configuration. It is read from a YAML file, then
// overlaid by GSENDER_* environment variables (a .env file is loaded when
// present), then by command-line flags.
type Config struct {
	Port           string        `yaml:"port"`
	Baud           int           `yaml:"baud"`
	Firmware       string        `yaml:"firmware"`
	Buffer         int           `yaml:"buffer"`
	LineTerminator string        `yaml:"line_terminator"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	LogLevel       string        `yaml:"log_level"`
	MetricsAddr    string        `yaml:"metrics_addr"`
}

func defaultConfig() Config {
	return Config{
		Baud:           transport.DefaultBaudRate,
		Firmware:       "grbl",
		Buffer:         transport.DefaultBufferCapacity,
		LineTerminator: transport.DefaultLineTerminator,
		ConnectTimeout: transport.DefaultConnectTimeout,
		PollInterval:   controller.DefaultStatusPollInterval,
		LogLevel:       "info",
	}
}

// loadConfig reads path when not empty, then applies the environment.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(envPrefix + key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = n

		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(envPrefix + key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = d

		return nil
	}

	str("PORT", &c.Port)
	str("FIRMWARE", &c.Firmware)
	str("LOG_LEVEL", &c.LogLevel)
	str("METRICS_ADDR", &c.MetricsAddr)

	return errors.Join(
		num("BAUD", &c.Baud),
		num("BUFFER", &c.Buffer),
		dur("CONNECT_TIMEOUT", &c.ConnectTimeout),
		dur("POLL_INTERVAL", &c.PollInterval),
	)
}

// transportConfig validates the connection settings.
func (c Config) transportConfig() (*transport.Config, error) {
	if strings.TrimSpace(c.Port) == "" {
		return nil, errors.New("no port configured; use --port or GSENDER_PORT")
	}

	return transport.NewConfig(c.Port,
		transport.WithBaudRate(c.Baud),
		transport.WithBufferCapacity(c.Buffer),
		transport.WithLineTerminator(c.LineTerminator),
		transport.WithConnectTimeout(c.ConnectTimeout),
	)
}

func newFirmware(name string) (firmware.Firmware, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "grbl", "grbl-1.1":
		return grbl.New(), nil
	case "grbl-0.9":
		return grbl.NewLegacy(), nil
	case "smoothie", "smoothieware":
		return smoothie.New(), nil
	default:
		return nil, fmt.Errorf("unknown firmware %q (want grbl, grbl-0.9, or smoothie)", name)
	}
}
