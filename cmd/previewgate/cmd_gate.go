// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/selflytics/previewgate/pkg/branches"
	"github.com/selflytics/previewgate/pkg/logging"
	"github.com/selflytics/previewgate/pkg/reconcile"
	"github.com/selflytics/previewgate/pkg/registry"
	"github.com/selflytics/previewgate/pkg/telemetry"
)

// deleteRatePerSecond throttles orphan deletions so a large backlog cannot
// hammer the Admin API's mutation quota.
const deleteRatePerSecond = 2

func runGate(cmd *cobra.Command, args []string) {
	os.Exit(executeGate())
}

// executeGate owns process-level setup: config, logging, telemetry, and the
// real clients. The decision logic lives in runGatePipeline so tests can
// drive it with fakes.
func executeGate() int {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitDeny
	}
	// The flag can only disable cleanup, never force it past AUTO_CLEANUP.
	cfg.AutoCleanup = cfg.AutoCleanup && cleanupEnabled

	runID := uuid.NewString()
	parent := logging.New(logging.Config{Service: "previewgate", LogDir: cfg.LogDir})
	defer parent.Close()
	logger := parent.With("run_id", runID)

	shutdownTel, err := telemetry.Init(telemetry.Config{
		Backend:   telemetryBackend,
		JSONLPath: traceFilePath,
		RunID:     runID,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitDeny
	}
	ctx := context.Background()
	defer shutdownTel(ctx)

	client, err := registry.NewClient(ctx, registry.Config{
		ProjectID: cfg.Project,
		Region:    cfg.Region,
	})
	if err != nil {
		logger.Error("registry client initialization failed", "error", err)
		return ExitDeny
	}

	return runGatePipeline(ctx, cfg, client, buildBranchChain(cfg, logger),
		logger, NewProgress(quiet))
}

// runGatePipeline is the run(config) entry point: census, reconcile, quota
// decision, exit outcome. Every external dependency arrives as a parameter.
func runGatePipeline(ctx context.Context, cfg Config, reg reconcile.Registry,
	branchSource reconcile.BranchSource, logger *logging.Logger, progress *Progress) int {

	ctx, rootSpan := telemetry.Tracer().Start(ctx, "previewgate.gate")
	defer rootSpan.End()

	// Stage 1: census.
	censusCtx, censusSpan := telemetry.Tracer().Start(ctx, "census")
	deployments, err := reg.ListPreviews(censusCtx)
	censusSpan.End()
	if err != nil {
		logger.Error("census failed, cannot proceed without registry ground truth",
			"error", err)
		return ExitDeny
	}
	progress.Printf("Found %d preview deployment(s)", len(deployments))

	// Stage 2: reconciliation.
	if cfg.AutoCleanup {
		recCtx, recSpan := telemetry.Tracer().Start(ctx, "reconcile")
		reconciler := &reconcile.Reconciler{
			Registry: reg,
			Branches: branchSource,
			Logger:   logger,
			Limiter:  rate.NewLimiter(rate.Limit(deleteRatePerSecond), 1),
		}
		report := reconciler.Run(recCtx, deployments)
		recSpan.End()

		if report.Skipped {
			progress.Printf("Cleanup skipped: %s", report.SkipReason)
		} else if report.Aborted {
			progress.Printf("Cleanup interrupted: %d deleted, %d failed, remainder left for the next run",
				report.Deleted, report.DeleteFailed)
		} else {
			progress.Printf("Cleanup: %d considered, %d unlabeled kept, %d deleted, %d failed",
				report.Considered, report.NoLabel, report.Deleted, report.DeleteFailed)
		}
	} else {
		logger.Info("auto-cleanup disabled, counting only")
		progress.Printf("Cleanup disabled")
	}

	// Stage 3: quota decision on a fresh census.
	gateCtx, gateSpan := telemetry.Tracer().Start(ctx, "quota-check")
	gate := &reconcile.Gate{
		Registry:   reg,
		Logger:     logger,
		RetryDelay: cfg.RetryDelay,
	}
	decision, err := gate.Check(gateCtx, reconcile.Quota{
		ConfiguredLimit: cfg.MaxPreviews,
		SafetyMargin:    cfg.SafetyMargin,
	})
	gateSpan.End()
	if err != nil {
		logger.Error("quota check failed", "error", err)
		return ExitDeny
	}

	if !decision.Allowed {
		fmt.Fprintln(os.Stderr, denyText(decision, cfg))
		return ExitDeny
	}

	progress.Printf("OK to deploy: %d preview(s) active, effective limit %d",
		decision.Count, decision.EffectiveLimit)
	return ExitAllow
}

// buildBranchChain assembles the branch ground-truth sources available in
// this execution context: the hosting API when a repository identifier is
// configured, then the git remote when a git binary exists. An empty chain
// is legal; the reconciler will safe-skip.
func buildBranchChain(cfg Config, logger *logging.Logger) *branches.Chain {
	var sources []branches.Source

	if cfg.GitHubRepository != "" {
		sources = append(sources, branches.NewGitHubSource(cfg.GitHubRepository, cfg.GitHubToken))
	} else {
		logger.Debug("GITHUB_REPOSITORY unset, skipping hosting-API branch source")
	}

	remote, err := branches.NewGitRemoteSource(cfg.RepoPath, "origin")
	if err != nil {
		logger.Debug("git unavailable, skipping git-remote branch source", "error", err)
	} else {
		sources = append(sources, remote)
	}

	return branches.NewChain(sources...)
}
