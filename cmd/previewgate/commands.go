// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	quiet            bool
	cleanupEnabled   bool
	configPath       string
	telemetryBackend string
	traceFilePath    string

	rootCmd = &cobra.Command{
		Use:   "previewgate",
		Short: "Preview environment reconciler and deployment gate for Selflytics",
		Long: `previewgate keeps the pool of per-branch Cloud Run previews honest.

Run as a pre-deployment gate in CI it deletes previews whose branch is
gone, then decides whether a new preview fits under the configured
ceiling. Exit code 0 allows the deployment, 1 blocks it.`,
	}

	// --- Gate ---
	gateCmd = &cobra.Command{
		Use:   "gate",
		Short: "Reconcile orphaned previews and decide whether a new one may deploy",
		Run:   runGate, // Defined in cmd_gate.go
	}

	// --- Operator Utilities ---
	previewsCmd = &cobra.Command{
		Use:   "previews",
		Short: "Inspect and manage the current preview deployments",
	}
	previewsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List current preview deployments and their feature labels",
		Run:   runPreviewsList, // Defined in cmd_previews.go
	}
	previewsDeleteCmd = &cobra.Command{
		Use:   "delete [service-name]",
		Short: "Delete one preview deployment by service name",
		Args:  cobra.ExactArgs(1),
		Run:   runPreviewsDelete, // Defined in cmd_previews.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"Suppress progress output on stdout (stderr logging is unaffected)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Optional YAML config file; environment variables override it")
	rootCmd.PersistentFlags().StringVar(&telemetryBackend, "telemetry", "off",
		"Trace exporter: console, jsonl, or off")
	rootCmd.PersistentFlags().StringVar(&traceFilePath, "trace-file", "",
		"Output path for the jsonl telemetry backend")

	rootCmd.AddCommand(gateCmd)
	gateCmd.Flags().BoolVar(&cleanupEnabled, "cleanup", true,
		"Delete orphaned previews before the quota check (--cleanup=false to disable)")

	rootCmd.AddCommand(previewsCmd)
	previewsCmd.AddCommand(previewsListCmd)
	previewsCmd.AddCommand(previewsDeleteCmd)
}
