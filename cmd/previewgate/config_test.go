// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearGateEnv blanks every variable LoadConfig reads so tests control the
// whole environment.
func clearGateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GCP_PROJECT", "GCP_REGION", "MAX_PREVIEWS", "PREVIEW_SAFETY_MARGIN",
		"AUTO_CLEANUP", "GITHUB_REPOSITORY", "GITHUB_TOKEN", "QUOTA_RETRY_DELAY",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearGateEnv(t)
	t.Setenv("GCP_PROJECT", "selflytics-ci")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Project != "selflytics-ci" {
		t.Errorf("Project = %q", cfg.Project)
	}
	if cfg.Region != DefaultRegion {
		t.Errorf("Region = %q, want default %q", cfg.Region, DefaultRegion)
	}
	if cfg.MaxPreviews != DefaultMaxPreviews || cfg.SafetyMargin != DefaultSafetyMargin {
		t.Errorf("limits = %d/%d, want defaults", cfg.MaxPreviews, cfg.SafetyMargin)
	}
	if !cfg.AutoCleanup {
		t.Error("AutoCleanup should default on")
	}
	if cfg.RetryDelay != DefaultRetryDelay {
		t.Errorf("RetryDelay = %v", cfg.RetryDelay)
	}
}

func TestLoadConfigMissingProjectIsFatal(t *testing.T) {
	clearGateEnv(t)

	if _, err := LoadConfig(""); err == nil {
		t.Fatal("LoadConfig succeeded without GCP_PROJECT")
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearGateEnv(t)
	t.Setenv("GCP_PROJECT", "selflytics-ci")
	t.Setenv("GCP_REGION", "us-central1")
	t.Setenv("MAX_PREVIEWS", "25")
	t.Setenv("PREVIEW_SAFETY_MARGIN", "5")
	t.Setenv("AUTO_CLEANUP", "false")
	t.Setenv("QUOTA_RETRY_DELAY", "3s")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Region != "us-central1" || cfg.MaxPreviews != 25 || cfg.SafetyMargin != 5 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.AutoCleanup {
		t.Error("AUTO_CLEANUP=false not applied")
	}
	if cfg.RetryDelay != 3*time.Second {
		t.Errorf("RetryDelay = %v", cfg.RetryDelay)
	}
}

func TestLoadConfigRejectsBadNumbers(t *testing.T) {
	clearGateEnv(t)
	t.Setenv("GCP_PROJECT", "selflytics-ci")
	t.Setenv("MAX_PREVIEWS", "ten")

	if _, err := LoadConfig(""); err == nil {
		t.Fatal("LoadConfig accepted MAX_PREVIEWS=ten")
	}
}

func TestLoadConfigFileThenEnvPrecedence(t *testing.T) {
	clearGateEnv(t)
	path := filepath.Join(t.TempDir(), "previewgate.yaml")
	content := "project: from-file\nregion: europe-west1\nmax_previews: 4\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	// Environment wins over the file.
	t.Setenv("GCP_PROJECT", "from-env")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Project != "from-env" {
		t.Errorf("Project = %q, env must override file", cfg.Project)
	}
	if cfg.Region != "europe-west1" || cfg.MaxPreviews != 4 {
		t.Errorf("file values not applied: %+v", cfg)
	}
}

func TestLoadConfigMissingFileIsFatal(t *testing.T) {
	clearGateEnv(t)
	t.Setenv("GCP_PROJECT", "selflytics-ci")

	if _, err := LoadConfig("/does/not/exist.yaml"); err == nil {
		t.Fatal("LoadConfig accepted a missing --config path")
	}
}
