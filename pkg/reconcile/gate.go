// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reconcile

import (
	"context"
	"time"

	"github.com/selflytics/previewgate/pkg/logging"
)

// DefaultRetryDelay is the fixed wait before the gate's single re-census.
// Long enough for the control plane's read path to catch up with deletions
// issued moments earlier, short enough to be invisible next to the rest of
// a CI job.
const DefaultRetryDelay = 10 * time.Second

// Quota is the configured ceiling and its in-flight safety margin.
type Quota struct {
	// ConfiguredLimit is the hard preview ceiling.
	ConfiguredLimit int

	// SafetyMargin is capacity held back for deployments already in flight
	// that the census cannot see yet.
	SafetyMargin int
}

// Effective returns ConfiguredLimit - SafetyMargin. May be zero or negative
// when misconfigured; the gate denies in that case rather than underflowing.
func (q Quota) Effective() int {
	return q.ConfiguredLimit - q.SafetyMargin
}

// Decision is the gate's admission verdict.
type Decision struct {
	// Allowed is true when a new preview may deploy.
	Allowed bool

	// Count is the census size the decision was made on.
	Count int

	// EffectiveLimit is the limit the count was compared against.
	EffectiveLimit int

	// Retried is true when the decision needed the second census.
	Retried bool
}

// Gate makes the final go/no-go admission decision.
//
// It decides only; acting on a Deny (aborting the pipeline step) is the
// caller's job, and the gate never retries the deployment itself.
type Gate struct {
	// Registry is re-censused for the decision. Required.
	Registry Registry

	// Logger receives the decision trail. Required.
	Logger *logging.Logger

	// RetryDelay overrides DefaultRetryDelay when positive.
	RetryDelay time.Duration

	// sleep is swapped out by tests. Nil means time.Sleep.
	sleep func(time.Duration)
}

// Check runs the admission decision against a fresh census.
//
// The census is always re-taken here rather than reusing the pre-cleanup
// count: concurrent runs may have created or deleted previews since, and
// the decision must use the freshest available state. When the fresh count
// is at or over the effective limit the gate waits one fixed delay and
// censuses once more, absorbing control-plane read-after-write lag from our
// own deletions, then decides for good.
//
// A census failure is returned as an error and is fatal for the run.
func (g *Gate) Check(ctx context.Context, quota Quota) (Decision, error) {
	effective := quota.Effective()

	if effective <= 0 {
		// Misconfiguration (margin >= limit). No count can ever pass, so
		// deny without counting or sleeping.
		g.Logger.Error("effective preview limit is not positive, denying",
			"configured_limit", quota.ConfiguredLimit,
			"safety_margin", quota.SafetyMargin)
		return Decision{Allowed: false, Count: -1, EffectiveLimit: effective}, nil
	}

	count, err := g.census(ctx)
	if err != nil {
		return Decision{}, err
	}

	if count < effective {
		g.Logger.Info("preview quota check passed",
			"previews", count, "effective_limit", effective)
		return Decision{Allowed: true, Count: count, EffectiveLimit: effective}, nil
	}

	delay := g.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	g.Logger.Info("at preview capacity, re-checking once after delay",
		"previews", count, "effective_limit", effective, "delay", delay.String())
	g.doSleep(delay)

	count, err = g.census(ctx)
	if err != nil {
		return Decision{}, err
	}

	decision := Decision{
		Allowed:        count < effective,
		Count:          count,
		EffectiveLimit: effective,
		Retried:        true,
	}
	if decision.Allowed {
		g.Logger.Info("preview quota check passed on re-check",
			"previews", count, "effective_limit", effective)
	} else {
		g.Logger.Warn("preview quota exceeded",
			"previews", count, "effective_limit", effective)
	}
	return decision, nil
}

func (g *Gate) census(ctx context.Context) (int, error) {
	previews, err := g.Registry.ListPreviews(ctx)
	if err != nil {
		return 0, err
	}
	return len(previews), nil
}

func (g *Gate) doSleep(d time.Duration) {
	if g.sleep != nil {
		g.sleep(d)
		return
	}
	time.Sleep(d)
}
