// Package config loads the oeuvre server configuration.
//
// Example:
//
//	listen: 127.0.0.1:7420
//	immutable_metadata: false
//	pointer_rule:
//	  engine: cel
//	  source: 'scheme in ["ipfs", "ar"]'
//	journal:
//	  kind: sqlite
//	  path: /var/lib/oeuvre/journal.db
//	archive:
//	  dir: /var/lib/oeuvre/archive
//	signer:
//	  algorithm: ed25519
//	  seed_file: /etc/oeuvre/journal.seed
//	tracing:
//	  enabled: true
//	  exporter: otlp
//	  endpoint: collector:4317
//	log:
//	  level: info
//	  format: json
//
// JSON is accepted as well, since it is valid YAML. OEUVRE_* environment
// variables override a few deployment-specific keys.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"xdao.co/oeuvre/journal"
	"xdao.co/oeuvre/keys"
	"xdao.co/oeuvre/rules"
	"xdao.co/oeuvre/tracing"
)

const DefaultListen = "127.0.0.1:7420"

type Config struct {
	Listen string `yaml:"listen"`

	// ImmutableMetadata refuses every edit after mint. The 24h window length
	// itself is fixed.
	ImmutableMetadata bool `yaml:"immutable_metadata"`

	PointerRule PointerRule    `yaml:"pointer_rule"`
	Journal     Journal        `yaml:"journal"`
	Archive     Archive        `yaml:"archive"`
	Signer      Signer         `yaml:"signer"`
	Tracing     tracing.Config `yaml:"tracing"`
	Log         Log            `yaml:"log"`
}

type PointerRule struct {
	Engine string `yaml:"engine"`
	Source string `yaml:"source"`
}

type Journal struct {
	Kind string `yaml:"kind"`
	Path string `yaml:"path"`
}

// Archive keeps minted payloads keyed by their commitment. Dir is a local
// store; Target is a remote archive service. With both set every payload is
// mirrored to each, local first.
type Archive struct {
	Dir    string `yaml:"dir"`
	Target string `yaml:"target"`
}

type Signer struct {
	Algorithm string `yaml:"algorithm"`
	SeedFile  string `yaml:"seed_file"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		Listen:  DefaultListen,
		Journal: Journal{Kind: journal.KindMemory},
		Tracing: tracing.DefaultConfig(),
		Log:     Log{Level: "info", Format: "text"},
	}
}

// Load reads path over Default, applies environment overrides and validates.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.New("config: empty path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config load: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config unmarshal: %w", err)
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyEnvOverrides(c *Config) error {
	if v := os.Getenv("OEUVRE_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("OEUVRE_JOURNAL"); v != "" {
		kind, path, err := journal.ParseSpec(v)
		if err != nil {
			return fmt.Errorf("config: OEUVRE_JOURNAL: %w", err)
		}
		c.Journal = Journal{Kind: kind, Path: path}
	}
	if v := os.Getenv("OEUVRE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("OEUVRE_OTLP_ENDPOINT"); v != "" {
		c.Tracing.Endpoint = v
	}
	return nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return errors.New("config: listen is required")
	}
	if c.PointerRule.Source != "" || c.PointerRule.Engine != "" {
		if _, err := c.PointerRule.Compile(); err != nil {
			return fmt.Errorf("config: pointer_rule: %w", err)
		}
	}
	switch c.Journal.Kind {
	case "", journal.KindMemory:
	case journal.KindJSONL, journal.KindSQLite, journal.KindCAS:
		if c.Journal.Path == "" {
			return fmt.Errorf("config: journal %q needs a path", c.Journal.Kind)
		}
	default:
		return fmt.Errorf("config: unknown journal kind %q", c.Journal.Kind)
	}
	if c.Signer.SeedFile != "" {
		switch c.Signer.Algorithm {
		case "", keys.AlgEd25519, keys.AlgDilithium3:
		default:
			return fmt.Errorf("config: unsupported signer algorithm %q", c.Signer.Algorithm)
		}
	}
	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

// Compile returns the configured rule, or nil if none is configured.
func (p PointerRule) Compile() (rules.Rule, error) {
	if p.Source == "" && p.Engine == "" {
		return nil, nil
	}
	engine := p.Engine
	if engine == "" {
		engine = rules.EngineExpr
	}
	return rules.Compile(engine, p.Source)
}

// Signer loads the journal signer, or returns nil if none is configured.
func (s Signer) Open() (keys.Signer, error) {
	if s.SeedFile == "" {
		return nil, nil
	}
	seed, err := keys.LoadSeedFile(s.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("signer seed: %w", err)
	}
	return keys.NewSigner(s.Algorithm, seed)
}

// Logger builds a slog logger writing to w.
func (l Log) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: log level: %w", err)
	}
	return level, nil
}
