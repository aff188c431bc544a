// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package branches retrieves the live branch set that reconciliation uses as
// ground truth.
//
// The safety property of this package is asymmetric on purpose: an empty
// branch list is always a retrieval failure, never "the repository has no
// branches". A falsely empty result would make the reconciler classify every
// preview as orphaned and delete the lot; a skipped reconciliation just
// retries on the next run. Callers that cannot get a branch set skip
// cleanup, they never guess.
package branches

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyBranchSet is returned when a source answered but produced zero
// branches. Treated identically to a transport failure.
var ErrEmptyBranchSet = errors.New("branch source returned an empty branch set")

// Source produces the current live branch names for the repository.
type Source interface {
	// ListBranches returns the branch set. Implementations must return an
	// error rather than an empty slice; the Chain enforces this as a second
	// line of defense.
	ListBranches(ctx context.Context) ([]string, error)

	// Name identifies the source in log output.
	Name() string
}

// Chain tries sources in priority order and returns the first non-empty
// branch set.
//
// The usual order is the hosting API first (works with pipeline-provided
// auth) and the git remote second (works wherever a checkout with an origin
// exists). Either may be absent in a given execution context, which is why
// both exist at all.
type Chain struct {
	sources []Source
}

// NewChain builds a chain over the given sources, skipping nils.
func NewChain(sources ...Source) *Chain {
	c := &Chain{}
	for _, s := range sources {
		if s != nil {
			c.sources = append(c.sources, s)
		}
	}
	return c
}

// Name implements Source.
func (c *Chain) Name() string { return "chain" }

// ListBranches implements Source over the whole chain.
//
// Returns the last failure when every source fails or comes back empty, so
// the caller's warning names a concrete cause.
func (c *Chain) ListBranches(ctx context.Context) ([]string, error) {
	if len(c.sources) == 0 {
		return nil, errors.New("no branch sources configured")
	}

	var lastErr error
	for _, src := range c.sources {
		branches, err := src.ListBranches(ctx)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", src.Name(), err)
			continue
		}
		if len(branches) == 0 {
			lastErr = fmt.Errorf("%s: %w", src.Name(), ErrEmptyBranchSet)
			continue
		}
		return branches, nil
	}
	return nil, lastErr
}
