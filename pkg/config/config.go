// SPDX-License-Identifier: Apache-2.0

// Package config loads allot settings from defaults, an optional YAML file,
// ALLOT_* environment variables and --set command line overrides, in that
// order of precedence.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/jllopis/allot/pkg/errors"
)

const envPrefix = "ALLOT_"

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Solver    SolverConfig    `koanf:"solver"`
	Reference ReferenceConfig `koanf:"reference"`
	Server    ServerConfig    `koanf:"server"`
	Session   SessionConfig   `koanf:"session"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // none, stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
	Metrics      string `koanf:"metrics"` // otel, prometheus, none
	ServiceName  string `koanf:"service_name"`
}

type SolverConfig struct {
	Timeout   time.Duration `koanf:"timeout"`
	NodeLimit int           `koanf:"node_limit"`
	Tolerance float64       `koanf:"tolerance"`
}

type ReferenceConfig struct {
	Path            string        `koanf:"path"`
	Format          string        `koanf:"format"` // auto, csv, yaml, toml, sqlite
	Watch           bool          `koanf:"watch"`
	DefaultCapacity int           `koanf:"default_capacity"`
	FailureLimit    int           `koanf:"failure_limit"`
	Cooldown        time.Duration `koanf:"cooldown"`
}

type ServerConfig struct {
	HTTPAddr    string   `koanf:"http_addr"`
	GRPCAddr    string   `koanf:"grpc_addr"`
	CORSOrigins []string `koanf:"cors_origins"`
}

type SessionConfig struct {
	Backend string        `koanf:"backend"` // memory, sqlite, none
	DSN     string        `koanf:"dsn"`
	TTL     time.Duration `koanf:"ttl"`
}

func defaults(k *koanf.Koanf) {
	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("telemetry.exporter", "none")
	k.Set("telemetry.otlp_endpoint", "localhost:4317")
	k.Set("telemetry.otlp_insecure", true)
	k.Set("telemetry.metrics", "otel")
	k.Set("telemetry.service_name", "allot")

	k.Set("solver.timeout", "30s")
	k.Set("solver.node_limit", 0)
	k.Set("solver.tolerance", 1e-10)

	k.Set("reference.format", "auto")
	k.Set("reference.watch", false)
	k.Set("reference.default_capacity", 4)
	k.Set("reference.failure_limit", 5)
	k.Set("reference.cooldown", "30s")

	k.Set("server.http_addr", ":8080")
	k.Set("server.grpc_addr", "")
	k.Set("server.cors_origins", []string{"*"})

	k.Set("session.backend", "memory")
	k.Set("session.dsn", "")
	k.Set("session.ttl", "1h")
}

// Load reads configuration from path (if not empty) on top of the defaults,
// then applies ALLOT_* environment variables.
func Load(path string) (*Config, error) {
	return LoadWithProfile(path, "")
}

// LoadWithProfile is Load plus an optional profile overlay: for
// config.yaml and profile "dev" the file config.dev.yaml, when it exists, is
// merged over the base file.
func LoadWithProfile(path, profile string) (*Config, error) {
	k, err := load(path, profile)
	if err != nil {
		return nil, err
	}
	return unmarshal(k)
}

// LoadWithCLI loads configuration using command line arguments. It
// understands --config <path>, --profile <name> (alias --env) and repeated
// --set key=value; the forms --flag=value are accepted too. Unrelated
// arguments are ignored. Values given to --set are decoded as JSON when
// possible, so numbers, booleans, lists and objects keep their type.
func LoadWithCLI(args []string) (*Config, error) {
	opts, sets, err := parseCLIOverrides(args)
	if err != nil {
		return nil, err
	}
	k, err := load(opts.path, opts.profile)
	if err != nil {
		return nil, err
	}
	for _, kv := range sets {
		if err := k.Set(kv.key, kv.value); err != nil {
			return nil, errors.New(errors.CodeInvalidInput, "cannot apply --set "+kv.key, err)
		}
	}
	return unmarshal(k)
}

func load(path, profile string) (*koanf.Koanf, error) {
	k := koanf.New(".")
	defaults(k)

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.New(errors.CodeInvalidInput, "cannot read config file", err).
				WithContext("path", path)
		}
		if profile != "" {
			overlay := profilePath(path, profile)
			if _, err := os.Stat(overlay); err == nil {
				if err := k.Load(file.Provider(overlay), yaml.Parser()); err != nil {
					return nil, errors.New(errors.CodeInvalidInput, "cannot read profile config", err).
						WithContext("path", overlay)
				}
			}
		}
	}

	// ALLOT_SOLVER_NODE_LIMIT -> solver.node_limit
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, envPrefix)), "_", ".", 1)
	}), nil); err != nil {
		return nil, err
	}
	return k, nil
}

func unmarshal(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "invalid configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func profilePath(path, profile string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "." + profile + ext
}

// Validate rejects unknown enum values and non-positive limits.
func (c *Config) Validate() error {
	oneOf := func(key, value string, allowed ...string) error {
		if slices.Contains(allowed, value) {
			return nil
		}
		return errors.Newf(errors.CodeInvalidInput, "%s must be one of %s, got %q",
			key, strings.Join(allowed, "|"), value)
	}
	checks := []error{
		oneOf("log.level", strings.ToLower(c.Log.Level), "debug", "info", "warn", "warning", "error"),
		oneOf("log.format", c.Log.Format, "text", "json"),
		oneOf("telemetry.exporter", c.Telemetry.Exporter, "none", "stdout", "otlp"),
		oneOf("telemetry.metrics", c.Telemetry.Metrics, "otel", "prometheus", "none"),
		oneOf("reference.format", c.Reference.Format, "auto", "csv", "yaml", "toml", "sqlite"),
		oneOf("session.backend", c.Session.Backend, "memory", "sqlite", "none"),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	switch {
	case c.Solver.Timeout < 0:
		return errors.New(errors.CodeInvalidInput, "solver.timeout must not be negative", nil)
	case c.Solver.NodeLimit < 0:
		return errors.New(errors.CodeInvalidInput, "solver.node_limit must not be negative", nil)
	case c.Solver.Tolerance <= 0:
		return errors.New(errors.CodeInvalidInput, "solver.tolerance must be positive", nil)
	case c.Reference.DefaultCapacity <= 0:
		return errors.New(errors.CodeInvalidInput, "reference.default_capacity must be positive", nil)
	case c.Session.Backend == "sqlite" && c.Session.DSN == "":
		return errors.New(errors.CodeInvalidInput, "session.dsn is required for the sqlite backend", nil)
	}
	return nil
}

type cliOptions struct {
	path    string
	profile string
}

type override struct {
	key   string
	value any
}

func parseCLIOverrides(args []string) (cliOptions, []override, error) {
	var (
		opts cliOptions
		sets []override
	)
	for i := 0; i < len(args); i++ {
		name, value, inline := strings.Cut(args[i], "=")
		switch name {
		case "--config", "-config", "--profile", "-profile", "--env", "-env", "--set", "-set":
		default:
			continue
		}
		if !inline {
			if i+1 >= len(args) {
				return opts, nil, errors.Newf(errors.CodeInvalidInput, "missing value for %s", name)
			}
			i++
			value = args[i]
		}
		switch strings.TrimLeft(name, "-") {
		case "config":
			opts.path = value
		case "profile", "env":
			opts.profile = value
		case "set":
			key, raw, ok := strings.Cut(value, "=")
			if !ok || strings.TrimSpace(key) == "" {
				return opts, nil, errors.Newf(errors.CodeInvalidInput, "--set expects key=value, got %q", value)
			}
			sets = append(sets, override{key: strings.TrimSpace(key), value: decodeValue(raw)})
		}
	}
	return opts, sets, nil
}

func decodeValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

// String renders the effective configuration for diagnostics.
func (c *Config) String() string {
	return fmt.Sprintf("log=%s/%s telemetry=%s metrics=%s solver.timeout=%s reference=%s(%s) http=%s grpc=%s session=%s",
		c.Log.Level, c.Log.Format, c.Telemetry.Exporter, c.Telemetry.Metrics, c.Solver.Timeout,
		c.Reference.Path, c.Reference.Format, c.Server.HTTPAddr, c.Server.GRPCAddr, c.Session.Backend)
}
