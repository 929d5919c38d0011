package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if LORELEI_CONFIG is set
//  3. env (prefix LORELEI_)
func Load() (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("LORELEI_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// Environment variables: LORELEI_DATABASE_PATH, LORELEI_OUTPUT_DIR, ...
	// Underscores are preserved to match the koanf tags on the struct.
	envProvider := env.Provider("LORELEI_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "lorelei_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if cfg.DatabasePath == "" {
		return nil, fmt.Errorf("%w: database_path must not be empty", ErrInvalidConfig)
	}
	if cfg.OutputDir == "" {
		return nil, fmt.Errorf("%w: output_dir must not be empty", ErrInvalidConfig)
	}
	if cfg.BufferSeconds < 0 {
		return nil, fmt.Errorf("%w: buffer_seconds must not be negative", ErrInvalidConfig)
	}
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	return &cfg, nil
}
