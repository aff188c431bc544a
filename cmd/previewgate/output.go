// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/selflytics/previewgate/pkg/reconcile"
)

// Exit codes. The CI pipeline keys off these: anything non-zero aborts the
// deployment step.
const (
	// ExitAllow means under the limit: OK to deploy.
	ExitAllow = 0

	// ExitDeny means quota exceeded or any fatal precondition failure.
	ExitDeny = 1
)

// Progress writes the human progress stream. It goes to stdout and quiet
// silences it; errors and the structured log stay on stderr either way.
type Progress struct {
	w     io.Writer
	quiet bool
}

// NewProgress builds the stdout progress stream.
func NewProgress(quiet bool) *Progress {
	return &Progress{w: os.Stdout, quiet: quiet}
}

// Printf writes one progress line unless quiet.
func (p *Progress) Printf(format string, args ...any) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.w, format+"\n", args...)
}

// denyText picks the operator-facing message for a Deny. A negative count
// means the gate denied before any census because the effective limit is not
// positive; that is a configuration problem, not a full quota.
func denyText(decision reconcile.Decision, cfg Config) string {
	if decision.Count < 0 {
		return limitMisconfiguredMessage(cfg.MaxPreviews, cfg.SafetyMargin)
	}
	return denyMessage(decision.Count, decision.EffectiveLimit, cfg.Project, cfg.Region)
}

// limitMisconfiguredMessage explains a deny where the safety margin consumes
// the entire configured quota, so no count could ever pass.
func limitMisconfiguredMessage(configuredLimit, safetyMargin int) string {
	return fmt.Sprintf(`preview quota misconfigured: safety margin %d consumes the configured limit %d

No deployment can pass this gate until the configuration changes. Raise
MAX_PREVIEWS or lower PREVIEW_SAFETY_MARGIN so the effective limit is
positive.`, safetyMargin, configuredLimit)
}

// denyMessage is the actionable text printed on a quota Deny. It goes to
// stderr so it survives quiet mode.
func denyMessage(count, effectiveLimit int, project, region string) string {
	return fmt.Sprintf(`preview quota exceeded: %d active previews, effective limit %d

To make room:
  previewgate previews list
  previewgate previews delete <name>

Or delete directly:
  gcloud run services list --project %s --region %s
  gcloud run services delete <name> --project %s --region %s

Automatic cleanup of orphaned previews runs before this check; set
AUTO_CLEANUP=false to disable it.`,
		count, effectiveLimit, project, region, project, region)
}
