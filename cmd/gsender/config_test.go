package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-gsender/controller"
	"github.com/arloliu/go-gsender/transport"
)

func TestDefaultConfig(t *testing.T) {
	require := require.New(t)

	cfg := defaultConfig()
	require.Equal("grbl", cfg.Firmware)
	require.Equal(transport.DefaultBaudRate, cfg.Baud)
	require.Equal(controller.DefaultStatusPollInterval, cfg.PollInterval)

	_, err := cfg.transportConfig()
	require.Error(err, "a port is required")
}

func TestConfig_ApplyEnv(t *testing.T) {
	require := require.New(t)

	env := map[string]string{
		"GSENDER_PORT":          "tcp://10.0.0.5:23",
		"GSENDER_FIRMWARE":      "smoothie",
		"GSENDER_BAUD":          "57600",
		"GSENDER_POLL_INTERVAL": "500ms",
		"GSENDER_LOG_LEVEL":     "",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := defaultConfig()
	require.NoError(cfg.applyEnv(lookup))
	require.Equal("tcp://10.0.0.5:23", cfg.Port)
	require.Equal("smoothie", cfg.Firmware)
	require.Equal(57600, cfg.Baud)
	require.Equal(500*time.Millisecond, cfg.PollInterval)
	require.Equal("info", cfg.LogLevel, "empty values are ignored")

	env["GSENDER_BUFFER"] = "lots"
	env["GSENDER_CONNECT_TIMEOUT"] = "soon"
	err := cfg.applyEnv(lookup)
	require.ErrorContains(err, "GSENDER_BUFFER")
	require.ErrorContains(err, "GSENDER_CONNECT_TIMEOUT")
}

func TestLoadConfig_File(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "gsender.yaml")
	data := "port: /dev/ttyACM0\nfirmware: grbl-0.9\nbuffer: 127\npoll_interval: 1s\n"
	require.NoError(os.WriteFile(path, []byte(data), 0o600))

	cfg, err := loadConfig(path)
	require.NoError(err)
	require.Equal("/dev/ttyACM0", cfg.Port)
	require.Equal("grbl-0.9", cfg.Firmware)
	require.Equal(127, cfg.Buffer)
	require.Equal(time.Second, cfg.PollInterval)

	tcfg, err := cfg.transportConfig()
	require.NoError(err)
	require.Equal("/dev/ttyACM0", tcfg.Port())
	require.Equal(127, tcfg.BufferCapacity())

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(err)
}

func TestNewFirmware(t *testing.T) {
	require := require.New(t)

	for _, name := range []string{"grbl", "GRBL-1.1", "grbl-0.9", "smoothie", " Smoothieware "} {
		fw, err := newFirmware(name)
		require.NoError(err, name)
		require.NotNil(fw)
	}

	_, err := newFirmware("marlin")
	require.ErrorContains(err, "marlin")
}
