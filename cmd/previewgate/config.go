// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Defaults for everything the environment leaves unset.
const (
	DefaultRegion       = "europe-west2"
	DefaultMaxPreviews  = 10
	DefaultSafetyMargin = 2
	DefaultRetryDelay   = 10 * time.Second
)

// Config is everything one invocation needs, resolved once at the CLI
// boundary. The rest of the program never reads the environment: the shell
// original scattered $VAR reads through its logic and that made its failure
// modes untestable.
type Config struct {
	// Project is the GCP project hosting the previews. Required; the gate
	// refuses to guess at a default project.
	Project string `yaml:"project" validate:"required"`

	// Region is the Cloud Run region.
	Region string `yaml:"region" validate:"required"`

	// MaxPreviews is the configured preview ceiling.
	MaxPreviews int `yaml:"max_previews" validate:"gte=0"`

	// SafetyMargin is capacity reserved for deployments in flight.
	SafetyMargin int `yaml:"safety_margin" validate:"gte=0"`

	// AutoCleanup enables the reconciliation stage. Off, the gate only
	// counts.
	AutoCleanup bool `yaml:"auto_cleanup"`

	// GitHubRepository is "owner/name" for the hosting-API branch source.
	// Empty drops that source from the chain.
	GitHubRepository string `yaml:"github_repository"`

	// GitHubToken authenticates the hosting-API source. Optional.
	GitHubToken string `yaml:"-"`

	// RepoPath is the checkout the git fallback queries. Defaults to the
	// working directory.
	RepoPath string `yaml:"repo_path"`

	// RetryDelay is the quota gate's fixed wait before its single
	// re-census.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// LogDir enables JSONL log files when non-empty.
	LogDir string `yaml:"log_dir"`
}

// defaultConfig returns a Config with every default applied.
func defaultConfig() Config {
	return Config{
		Region:       DefaultRegion,
		MaxPreviews:  DefaultMaxPreviews,
		SafetyMargin: DefaultSafetyMargin,
		AutoCleanup:  true,
		RepoPath:     ".",
		RetryDelay:   DefaultRetryDelay,
	}
}

// LoadConfig resolves configuration in precedence order: defaults, then the
// optional YAML file, then the environment. All environment reads happen
// here and nowhere else.
//
// Returns a validation error when the result is unusable; a missing
// GCP_PROJECT is the canonical fatal misconfiguration.
func LoadConfig(configPath string) (Config, error) {
	cfg := defaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", configPath, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", configPath, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration (is GCP_PROJECT set?): %w", err)
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto cfg.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("GCP_PROJECT"); v != "" {
		cfg.Project = v
	}
	if v := os.Getenv("GCP_REGION"); v != "" {
		cfg.Region = v
	}
	if v := os.Getenv("GITHUB_REPOSITORY"); v != "" {
		cfg.GitHubRepository = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.GitHubToken = v
	}

	var err error
	if cfg.MaxPreviews, err = envInt("MAX_PREVIEWS", cfg.MaxPreviews); err != nil {
		return err
	}
	if cfg.SafetyMargin, err = envInt("PREVIEW_SAFETY_MARGIN", cfg.SafetyMargin); err != nil {
		return err
	}
	if cfg.AutoCleanup, err = envBool("AUTO_CLEANUP", cfg.AutoCleanup); err != nil {
		return err
	}
	if v := os.Getenv("QUOTA_RETRY_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("QUOTA_RETRY_DELAY: %w", err)
		}
		cfg.RetryDelay = d
	}
	return nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}
