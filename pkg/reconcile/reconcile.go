// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package reconcile implements the preview-environment reconciliation pass
// and the quota gate that decides whether a new preview may deploy.
//
// One invocation is one stateless pass: census the registry, diff against
// the live branch set, delete orphans, re-census, decide. Nothing persists
// between runs and nothing locks; two CI jobs running this concurrently
// must converge rather than corrupt, which the design leans on idempotent
// deletes and fresh re-census to achieve.
package reconcile

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/selflytics/previewgate/pkg/logging"
	"github.com/selflytics/previewgate/pkg/naming"
	"github.com/selflytics/previewgate/pkg/registry"
)

// Registry is the deployment-registry surface the reconciler needs.
// *registry.Client satisfies it; tests substitute fakes.
type Registry interface {
	ListPreviews(ctx context.Context) ([]registry.PreviewDeployment, error)
	DeletePreview(ctx context.Context, name string) error
}

// BranchSource produces the live branch set used as ground truth.
type BranchSource interface {
	ListBranches(ctx context.Context) ([]string, error)
}

// Report summarizes one reconciliation pass.
type Report struct {
	// Considered is the number of previews in the census.
	Considered int

	// NoLabel counts previews skipped because they carry no feature label.
	// Cannot-determine means assume-live: these are never deleted.
	NoLabel int

	// Deleted counts orphaned previews successfully deprovisioned.
	Deleted int

	// DeleteFailed counts orphans whose deletion was attempted and failed.
	// The next run retries them.
	DeleteFailed int

	// Aborted is true when the pass stopped early on context cancellation.
	// Orphans not yet attempted appear in neither Deleted nor DeleteFailed;
	// the next run picks them up.
	Aborted bool

	// Skipped is true when the branch set could not be retrieved and the
	// whole pass was safely skipped.
	Skipped bool

	// SkipReason carries the branch-retrieval failure behind Skipped.
	SkipReason string
}

// Reconciler deletes preview deployments whose originating branch is gone.
type Reconciler struct {
	// Registry is the deployment registry. Required.
	Registry Registry

	// Branches is the branch ground-truth source. Required.
	Branches BranchSource

	// Logger receives per-deployment decisions. Required.
	Logger *logging.Logger

	// Limiter throttles delete calls against the control plane. Optional;
	// nil means unthrottled.
	Limiter *rate.Limiter
}

// Run executes one reconciliation pass over the given census.
//
// # Description
//
// For every deployment: previews without a feature label are logged and
// kept; previews whose label matches a label reconstructable from any live
// branch are kept (a label collision between two branches therefore counts
// as "branch exists" — the safe direction); everything else is orphaned and
// deleted. Deletions are independent: one failure is recorded and the loop
// continues.
//
// When the branch set cannot be retrieved, or comes back empty, the pass
// reports Skipped and touches nothing. A skipped cleanup retries on the
// next run; a cleanup against a falsely empty branch set would delete every
// live preview.
//
// # Inputs
//
//   - ctx: cancellation and deadlines for delete calls
//   - deployments: the census to reconcile, from Registry.ListPreviews
//
// # Outputs
//
//   - Report: counts of considered / no-label / deleted / delete-failed,
//     or the skip marker. Run has no error return: every failure mode
//     inside a pass is contained by design.
func (r *Reconciler) Run(ctx context.Context, deployments []registry.PreviewDeployment) Report {
	report := Report{Considered: len(deployments)}

	liveBranches, err := r.Branches.ListBranches(ctx)
	if err != nil {
		report.Skipped = true
		report.SkipReason = err.Error()
		r.Logger.Warn("cannot retrieve live branches, skipping cleanup for this run",
			"reason", err.Error())
		return report
	}
	if len(liveBranches) == 0 {
		// Well-behaved sources error instead of returning empty; guard here
		// anyway, because acting on an empty set deletes every preview.
		report.Skipped = true
		report.SkipReason = "branch source returned an empty branch set"
		r.Logger.Warn("branch source returned no branches, skipping cleanup for this run")
		return report
	}

	for _, d := range deployments {
		if d.FeatureLabel == "" {
			report.NoLabel++
			r.Logger.Warn("preview has no feature label, keeping it",
				"preview", d.Name)
			continue
		}

		if branchExists(d.FeatureLabel, liveBranches) {
			r.Logger.Debug("preview branch is live", "preview", d.Name,
				"feature", d.FeatureLabel)
			continue
		}

		if r.Limiter != nil {
			if err := r.Limiter.Wait(ctx); err != nil {
				// Context gone. This orphan and the ones behind it were never
				// attempted, so they stay out of the failure count.
				report.Aborted = true
				r.Logger.Error("cleanup interrupted", "error", err)
				return report
			}
		}

		if err := r.Registry.DeletePreview(ctx, d.Name); err != nil {
			report.DeleteFailed++
			r.Logger.Error("failed to delete orphaned preview",
				"preview", d.Name, "feature", d.FeatureLabel, "error", err)
			continue
		}
		report.Deleted++
		r.Logger.Info("deleted orphaned preview",
			"preview", d.Name, "feature", d.FeatureLabel)
	}

	return report
}

// branchExists reports whether any live branch reconstructs to label.
func branchExists(label string, branches []string) bool {
	for _, b := range branches {
		if naming.Matches(label, b) {
			return true
		}
	}
	return false
}
