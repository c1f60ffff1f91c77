// Copyright 2025 Kkleytt
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Kkleytt/NightScout-New/nightsync"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
upstream:
  host: example.herokuapp.com
  token: reader-abc123
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "example.herokuapp.com", cfg.Upstream.Host)
	require.Equal(t, 100, cfg.Upstream.Count)
	require.True(t, cfg.Streams.Sugar)
	require.True(t, cfg.Streams.Insulin)
	require.True(t, cfg.Streams.Device)
	require.Equal(t, 60*time.Second, cfg.Interval())
	require.Equal(t, "sqlite", cfg.Store.Driver)
	require.Equal(t, "nightsync.db", cfg.Store.SQLitePath)
	require.Equal(t, ":8000", cfg.API.Addr)
	require.Equal(t, int64(1), cfg.Sync.IDFloor)
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
upstream:
  host: example.herokuapp.com
  token: reader-abc123
  count: 50
streams:
  device: false
sync:
  interval_seconds: 120
  mmol_conversion: false
time:
  format: epoch
  offset_hours: 0
store:
  driver: postgres
  postgres_url: postgres://night:pw@localhost:5432/nightsync
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 50, cfg.Upstream.Count)
	require.False(t, cfg.Streams.Device)
	require.True(t, cfg.Streams.Sugar)
	require.Equal(t, 2*time.Minute, cfg.Interval())
	require.False(t, cfg.Sync.MmolConversion)
	require.Equal(t, "postgres", cfg.Store.Driver)

	// Epoch deployments serialize timestamps as unix seconds.
	ts, err := cfg.Normalizer().Normalize("2025-03-01T12:30:00.000Z")
	require.NoError(t, err)
	require.Equal(t, "1740832200", ts.String())
}

func TestLoad_EnvSecrets(t *testing.T) {
	t.Setenv("NIGHTSYNC_UPSTREAM_TOKEN", "env-token")
	t.Setenv("NIGHTSYNC_JWT_SECRET", "env-secret")

	path := writeConfig(t, `
upstream:
  host: example.herokuapp.com
  token: file-token
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "env-token", cfg.Upstream.Token)
	require.Equal(t, "env-secret", cfg.API.JWTSecret)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg := Default()
		cfg.Upstream.Host = "example.herokuapp.com"
		cfg.Upstream.Token = "reader-abc123"
		return cfg
	}

	testCases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid sqlite", func(c *Config) {}, true},
		{"missing host", func(c *Config) { c.Upstream.Host = "" }, false},
		{"missing token", func(c *Config) { c.Upstream.Token = "" }, false},
		{"bad time format", func(c *Config) { c.Time.Format = "iso8601" }, false},
		{"bad driver", func(c *Config) { c.Store.Driver = "mysql" }, false},
		{"sqlite without path", func(c *Config) { c.Store.SQLitePath = "" }, false},
		{"postgres without url", func(c *Config) {
			c.Store.Driver = "postgres"
		}, false},
		{"remote without credentials", func(c *Config) {
			c.Store.Driver = "remote"
			c.Store.Remote.BaseURL = "http://localhost:8000"
		}, false},
		{"remote complete", func(c *Config) {
			c.Store.Driver = "remote"
			c.Store.Remote = Remote{
				BaseURL:  "http://localhost:8000",
				Username: "parser",
				Password: "pw",
			}
		}, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestMirrorNormalizer(t *testing.T) {
	cfg := Default()
	cfg.Time.Format = "wallclock"
	cfg.Store.Mirror.TimeFormat = "epoch"

	ts, err := cfg.Normalizer().Normalize("2025-03-01T12:30:00.000Z")
	require.NoError(t, err)
	converted := cfg.MirrorNormalizer().Convert(ts)
	require.True(t, converted.Equal(ts))
	require.NotEqual(t, ts.String(), converted.String())

	// Unset mirror format falls back to the deployment format.
	cfg.Store.Mirror.TimeFormat = ""
	same := cfg.MirrorNormalizer().Convert(ts)
	require.Equal(t, ts.String(), same.String())
}

func TestClassifierBuilder(t *testing.T) {
	cfg := Default()
	c := cfg.Classifier()
	require.True(t, c.MmolConversion)
	require.Equal(t, 30, c.DurationFloorMin)

	sample, ok := c.ClassifyGlucose(map[string]any{
		"dateString": "2025-03-01T12:30:00.000Z",
		"sgv":        float64(180),
	})
	require.True(t, ok)
	require.Equal(t, 10.0, sample.Value)
	require.Equal(t, "2025-03-01-15-30", sample.Timestamp.String())
}

func TestDeviceNamesBuilder(t *testing.T) {
	cfg := Default()
	cfg.Names = Names{Pump: "754", Phone: "s21", Transmitter: "G6", Insulin: "Fiasp", Sensor: "G6 sensor"}

	names := cfg.DeviceNames()
	require.Equal(t, nightsync.DeviceNames{
		Pump: "754", Phone: "s21", Transmitter: "G6", Insulin: "Fiasp", Sensor: "G6 sensor",
	}, names)
}
