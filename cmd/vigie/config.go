package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/vigie/feedback"
)

// Config is the top-level vigie configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Model   ModelConfig   `yaml:"model"`
	Retrain RetrainConfig `yaml:"retrain"`
	Gate    GateConfig    `yaml:"gate"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port string `yaml:"port"`
	// AuthUser and AuthPasswordHash (bcrypt) enable Basic Auth on all
	// routes when both are set.
	AuthUser         string `yaml:"auth_user"`
	AuthPasswordHash string `yaml:"auth_password_hash"`
}

// StoreConfig names the SQLite databases.
type StoreConfig struct {
	FeedbackDB      string `yaml:"feedback_db"`
	ObservabilityDB string `yaml:"observability_db"`
}

// ModelConfig controls model bootstrap and persistence.
type ModelConfig struct {
	// StatePath is where the active model is snapshotted as JSON and
	// restored from at startup.
	StatePath string `yaml:"state_path"`
	// CorpusCSV, when set, is a labelled URL feature dataset merged
	// into the builtin training corpus.
	CorpusCSV string `yaml:"corpus_csv"`
}

// RetrainConfig controls the retrain orchestrator.
type RetrainConfig struct {
	Threshold    int           `yaml:"threshold"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// GateConfig controls the interception gate.
type GateConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// LoadConfig reads a YAML configuration file. An empty path returns the
// defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8089"
	}
	if c.Store.FeedbackDB == "" {
		c.Store.FeedbackDB = "db/feedback.db"
	}
	if c.Store.ObservabilityDB == "" {
		c.Store.ObservabilityDB = "db/observability.db"
	}
	if c.Model.StatePath == "" {
		c.Model.StatePath = "data/model.json"
	}
	if c.Retrain.Threshold <= 0 {
		c.Retrain.Threshold = feedback.DefaultThreshold
	}
	if c.Retrain.PollInterval <= 0 {
		c.Retrain.PollInterval = 30 * time.Second
	}
	if c.Gate.Timeout <= 0 {
		c.Gate.Timeout = 3 * time.Second
	}
}
