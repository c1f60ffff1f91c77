// Copyright 2025 Kkleytt
// SPDX-License-Identifier: Apache-2.0

// Package config loads deployment configuration from a YAML file with
// environment overrides for secrets. Configuration errors are the only
// errors allowed to abort the whole process, and only at startup.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Kkleytt/NightScout-New/nightsync"
)

// Config is the full deployment configuration.
type Config struct {
	Upstream Upstream `yaml:"upstream"`
	Streams  Streams  `yaml:"streams"`
	Sync     Sync     `yaml:"sync"`
	Time     Time     `yaml:"time"`
	Store    Store    `yaml:"store"`
	API      API      `yaml:"api"`
	Names    Names    `yaml:"names"`
}

// Upstream points at the Nightscout site.
type Upstream struct {
	Host  string `yaml:"host"`
	Token string `yaml:"token"`
	Count int    `yaml:"count"`
}

// Streams enables or disables individual telemetry streams.
type Streams struct {
	Sugar   bool `yaml:"sugar"`
	Insulin bool `yaml:"insulin"`
	Device  bool `yaml:"device"`
}

// Sync holds reconciliation parameters.
type Sync struct {
	IntervalSeconds      int   `yaml:"interval_seconds"`
	MmolConversion       bool  `yaml:"mmol_conversion"`
	DurationFloorMinutes int   `yaml:"duration_floor_minutes"`
	IDFloor              int64 `yaml:"id_floor"`
}

// Time selects the canonical time representation for this deployment.
type Time struct {
	Format      string `yaml:"format"` // "wallclock" or "epoch"
	OffsetHours int    `yaml:"offset_hours"`
}

// Store selects the persistence backend.
type Store struct {
	Driver string `yaml:"driver"` // "sqlite", "postgres" or "remote"

	SQLitePath  string `yaml:"sqlite_path"`
	PostgresURL string `yaml:"postgres_url"`

	Remote Remote `yaml:"remote"`

	// Mirror is the optional backup destination for the mirror command.
	Mirror MirrorTarget `yaml:"mirror"`
}

// Remote configures the facade-backed store of the three-tier deployment.
type Remote struct {
	BaseURL              string `yaml:"base_url"`
	Username             string `yaml:"username"`
	Password             string `yaml:"password"`
	TokenLifetimeMinutes int    `yaml:"token_lifetime_minutes"`
}

// MirrorTarget configures the destination store of the mirror command.
type MirrorTarget struct {
	Driver      string `yaml:"driver"` // "sqlite" or "postgres"
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresURL string `yaml:"postgres_url"`
	TimeFormat  string `yaml:"time_format"` // canonical format of the destination
}

// API configures the REST facade.
type API struct {
	Addr                 string `yaml:"addr"`
	JWTSecret            string `yaml:"jwt_secret"`
	TokenLifetimeMinutes int    `yaml:"token_lifetime_minutes"`
	UsersFile            string `yaml:"users_file"`
}

// Names are the static device labels shown in snapshots and on the console.
type Names struct {
	Pump        string `yaml:"pump"`
	Phone       string `yaml:"phone"`
	Transmitter string `yaml:"transmitter"`
	Insulin     string `yaml:"insulin"`
	Sensor      string `yaml:"sensor"`
}

// Default returns a configuration with working defaults for a local SQLite
// deployment; credentials must still be supplied.
func Default() Config {
	return Config{
		Upstream: Upstream{Count: 100},
		Streams:  Streams{Sugar: true, Insulin: true, Device: true},
		Sync: Sync{
			IntervalSeconds:      60,
			MmolConversion:       true,
			DurationFloorMinutes: 30,
			IDFloor:              1,
		},
		Time: Time{Format: "wallclock", OffsetHours: 3},
		Store: Store{
			Driver:     "sqlite",
			SQLitePath: "nightsync.db",
		},
		API: API{
			Addr:                 ":8000",
			TokenLifetimeMinutes: 30,
			UsersFile:            "users.json",
		},
	}
}

// Load reads the YAML file at path over the defaults and applies
// environment overrides for secrets.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}

	if v := os.Getenv("NIGHTSYNC_UPSTREAM_TOKEN"); v != "" {
		cfg.Upstream.Token = v
	}
	if v := os.Getenv("NIGHTSYNC_JWT_SECRET"); v != "" {
		cfg.API.JWTSecret = v
	}
	if v := os.Getenv("NIGHTSYNC_POSTGRES_URL"); v != "" {
		cfg.Store.PostgresURL = v
	}
	if v := os.Getenv("NIGHTSYNC_REMOTE_PASSWORD"); v != "" {
		cfg.Store.Remote.Password = v
	}

	return cfg, cfg.Validate()
}

// Validate rejects configurations that cannot possibly run.
func (c Config) Validate() error {
	if c.Upstream.Host == "" || c.Upstream.Token == "" {
		return fmt.Errorf("upstream host and token are required")
	}
	switch c.Time.Format {
	case "wallclock", "epoch":
	default:
		return fmt.Errorf("time format must be wallclock or epoch, got %q", c.Time.Format)
	}
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.PostgresURL == "" {
			return fmt.Errorf("store.postgres_url is required for the postgres driver")
		}
	case "remote":
		r := c.Store.Remote
		if r.BaseURL == "" || r.Username == "" || r.Password == "" {
			return fmt.Errorf("store.remote base_url, username and password are required for the remote driver")
		}
	default:
		return fmt.Errorf("store driver must be sqlite, postgres or remote, got %q", c.Store.Driver)
	}
	return nil
}

// Normalizer builds the canonical time normalizer for this deployment.
func (c Config) Normalizer() nightsync.Normalizer {
	return normalizerFor(c.Time.Format, c.Time.OffsetHours)
}

// MirrorNormalizer builds the normalizer of the mirror destination.
func (c Config) MirrorNormalizer() nightsync.Normalizer {
	format := c.Store.Mirror.TimeFormat
	if format == "" {
		format = c.Time.Format
	}
	return normalizerFor(format, c.Time.OffsetHours)
}

func normalizerFor(format string, offsetHours int) nightsync.Normalizer {
	f := nightsync.FormatWallClock
	if format == "epoch" {
		f = nightsync.FormatEpoch
	}
	return nightsync.Normalizer{
		Format: f,
		Offset: time.Duration(offsetHours) * time.Hour,
	}
}

// Classifier builds the record classifier for this deployment.
func (c Config) Classifier() nightsync.Classifier {
	return nightsync.Classifier{
		Normalizer:       c.Normalizer(),
		MmolConversion:   c.Sync.MmolConversion,
		DurationFloorMin: c.Sync.DurationFloorMinutes,
	}
}

// DeviceNames converts the configured labels.
func (c Config) DeviceNames() nightsync.DeviceNames {
	return nightsync.DeviceNames{
		Pump:        c.Names.Pump,
		Phone:       c.Names.Phone,
		Transmitter: c.Names.Transmitter,
		Insulin:     c.Names.Insulin,
		Sensor:      c.Names.Sensor,
	}
}

// Interval returns the polling interval for the loop command.
func (c Config) Interval() time.Duration {
	return time.Duration(c.Sync.IntervalSeconds) * time.Second
}
