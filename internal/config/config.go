// Package config loads swallow's YAML configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all swallow configuration.
type Config struct {
	// Database is the SQLite database path.
	Database string `yaml:"database"`

	// CorpusDir is where fetched sdists live and the default scan target.
	CorpusDir string `yaml:"corpus_dir"`

	Fetch FetchConfig `yaml:"fetch"`
	Scan  ScanConfig  `yaml:"scan"`

	Logging LoggingConfig `yaml:"logging"`
}

// FetchConfig configures the corpus downloader.
type FetchConfig struct {
	IndexURL    string `yaml:"index_url"`
	PyPIURL     string `yaml:"pypi_url"`
	Count       int    `yaml:"count"`
	Concurrency int    `yaml:"concurrency"`
}

// ScanConfig configures the scan pipeline.
type ScanConfig struct {
	// Workers for the parallel pipeline; 0 means one per CPU.
	Workers int `yaml:"workers"`
	// Serial disables the parallel pipeline.
	Serial bool `yaml:"serial"`
	// SkipTests excludes test-looking source units from scans.
	SkipTests bool `yaml:"skip_tests"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database:  ".swallow/findings.db",
		CorpusDir: "corpus",
		Fetch: FetchConfig{
			Count:       100,
			Concurrency: 8,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the YAML config at path, applying defaults for unset fields.
// A missing file yields the defaults; a malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Fetch.Count <= 0 {
		cfg.Fetch.Count = 100
	}
	if cfg.Fetch.Concurrency <= 0 {
		cfg.Fetch.Concurrency = 8
	}
	return cfg, nil
}
