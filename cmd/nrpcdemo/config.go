package main

import (
	"os"
	"strings"
	"time"

	"github.com/muir/nrpc"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Config is the server configuration file.
type Config struct {
	Listen          string        `yaml:"listen"`
	Prefix          string        `yaml:"prefix"`
	Serverless      bool          `yaml:"serverless"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	MetricsPath     string        `yaml:"metrics_path"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Debug           bool          `yaml:"debug"`
	NATS            NATSConfig    `yaml:"nats"`
}

// NATSConfig enables the NATS transport when URL is set.
type NATSConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
	Queue  string `yaml:"queue"`
}

func defaultConfig() Config {
	return Config{
		Listen:          ":8080",
		Prefix:          "/rpc",
		MaxBodyBytes:    10 << 20,
		MetricsPath:     "/metrics",
		ShutdownTimeout: 10 * time.Second,
		NATS: NATSConfig{
			Prefix: "nrpc",
		},
	}
}

// loadConfig reads path over the defaults.  An empty path means
// defaults only.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrap(err, "read config")
		}
		if err := yaml.UnmarshalStrict(raw, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse config %s", path)
		}
	}
	return cfg, cfg.validate()
}

func (cfg *Config) validate() error {
	if cfg.Listen == "" {
		return errors.New("listen is required")
	}
	cfg.Prefix = nrpc.StandardizePath(cfg.Prefix)
	if cfg.MetricsPath != "" {
		cfg.MetricsPath = nrpc.StandardizePath(cfg.MetricsPath)
		if cfg.Prefix != "/" && (cfg.MetricsPath == cfg.Prefix || strings.HasPrefix(cfg.MetricsPath, cfg.Prefix+"/")) {
			return errors.Errorf("metrics_path %s is inside prefix %s", cfg.MetricsPath, cfg.Prefix)
		}
	}
	if cfg.MaxBodyBytes < 0 {
		return errors.Errorf("max_body_bytes must not be negative, got %d", cfg.MaxBodyBytes)
	}
	if cfg.ShutdownTimeout <= 0 {
		return errors.Errorf("shutdown_timeout must be positive, got %s", cfg.ShutdownTimeout)
	}
	return nil
}
