// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package naming derives deployment-safe feature labels from git branch names.
//
// A feature label is the sanitized, length-bounded identifier that ties a
// preview deployment back to the branch that produced it. The label appears
// both in the Cloud Run service name (prefix + label, kept under the
// platform's 63-character ceiling) and in the service's "feature" label
// metadata, which the reconciler uses as its matching key.
//
// The derivation must be byte-for-byte identical to what the deployment
// pipeline computes at provision time, so the rules here are deliberately
// rigid: ASCII-only case folding (never locale-aware), a fixed replacement
// alphabet, and a fixed truncation point. Two runners in different locales
// must produce the same label for the same branch.
package naming

import (
	"fmt"
	"strings"
)

// MaxLabelLength bounds a feature label. The service name prefix plus a
// 40-character label stays under Cloud Run's 63-character service-name limit
// with margin to spare.
const MaxLabelLength = 40

// KnownPrefixes are the branch-name prefixes the reconciler strips when it
// reconstructs labels from live branches. Provision-time sanitization strips
// any first path segment, but reverse matching only knows this fixed set, so
// a branch like "chore/deps" provisions as "deps" yet reconstructs as
// "chore-deps" and its preview is treated as orphaned while the branch still
// lives. The intended prefix set was never written down anywhere else, so
// this carries the original behavior rather than guessing at a wider set.
var KnownPrefixes = []string{"feat/", "feature/", "bugfix/", "hotfix/"}

// SanitizeError reports a branch name that reduced to nothing.
//
// An empty label is never substituted with a default: a shared fallback name
// would make unrelated branches collide on one deployment.
type SanitizeError struct {
	// Branch is the original, unsanitized input.
	Branch string
}

// Error implements the error interface.
func (e *SanitizeError) Error() string {
	return fmt.Sprintf("branch %q sanitizes to an empty label", e.Branch)
}

// Sanitize maps an arbitrary branch name to a feature label.
//
// # Description
//
// Applies, in order: strip everything up to and including the first '/',
// ASCII-lowercase, replace every run of characters outside [a-z0-9-] with a
// single '-', collapse repeated '-', trim leading/trailing '-', truncate to
// MaxLabelLength, and trim any trailing '-' the truncation exposed.
//
// The result always matches ^[a-z0-9]([a-z0-9-]*[a-z0-9])?$ and is at most
// MaxLabelLength bytes.
//
// # Inputs
//
//   - branch: any UTF-8 string. A '/' is not required; non-ASCII runes are
//     treated as separators.
//
// # Outputs
//
//   - string: the feature label
//   - error: *SanitizeError when the input reduces to the empty string
//
// # Example
//
//	label, err := naming.Sanitize("feat/chat-ui-phase-1")
//	// label == "chat-ui-phase-1"
func Sanitize(branch string) (string, error) {
	s := branch
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[i+1:]
	}
	out := sanitizeChars(s)
	if out == "" {
		return "", &SanitizeError{Branch: branch}
	}
	return out, nil
}

// sanitizeChars applies every sanitization step except the first-slash strip:
// ASCII lowercase, collapse runs outside [a-z0-9-] to a single '-', collapse
// '-' runs, trim '-', truncate, re-trim.
func sanitizeChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevDash := false
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			r = r - 'A' + 'a'
		}
		isAZ := r >= 'a' && r <= 'z'
		is09 := r >= '0' && r <= '9'
		if isAZ || is09 {
			b.WriteRune(r)
			prevDash = false
			continue
		}
		if prevDash {
			continue
		}
		b.WriteByte('-')
		prevDash = true
	}

	out := strings.Trim(b.String(), "-")
	if len(out) > MaxLabelLength {
		out = strings.TrimRight(out[:MaxLabelLength], "-")
	}
	return out
}

// CandidateLabels returns the feature labels a live branch reconstructs to
// during reconciliation.
//
// Matching strips only KnownPrefixes before sanitizing; a branch with no
// known prefix reconstructs from its whole name. This is intentionally NOT
// the same as Sanitize, which strips any first path segment: the asymmetry
// is what makes unknown prefixes (chore/, release/) unreconstructable, and
// it is preserved here because "fixing" it silently would change which
// previews survive reconciliation. A branch that reconstructs to nothing
// contributes no candidates.
func CandidateLabels(branch string) []string {
	var labels []string
	seen := make(map[string]bool)

	add := func(s string) {
		label := sanitizeChars(s)
		if label == "" || seen[label] {
			return
		}
		seen[label] = true
		labels = append(labels, label)
	}

	matched := false
	for _, p := range KnownPrefixes {
		if rest, ok := strings.CutPrefix(branch, p); ok {
			add(rest)
			matched = true
		}
	}
	if !matched {
		add(branch)
	}

	return labels
}

// Matches reports whether label could have been reconstructed from branch.
func Matches(label, branch string) bool {
	for _, c := range CandidateLabels(branch) {
		if c == label {
			return true
		}
	}
	return false
}
