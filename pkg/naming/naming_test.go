// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package naming

import (
	"errors"
	"regexp"
	"strings"
	"testing"
)

var labelPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name   string
		branch string
		want   string
	}{
		{"feat prefix", "feat/chat-ui-phase-1", "chat-ui-phase-1"},
		{"uppercase and punctuation", "BUGFIX/Fix_Login!!", "fix-login"},
		{"no slash", "main", "main"},
		{"unknown prefix still strips", "chore/bump-deps", "bump-deps"},
		{"nested slashes keep later ones", "feat/ui/chat", "ui-chat"},
		{"consecutive separators collapse", "feat/a__b--c..d", "a-b-c-d"},
		{"leading and trailing junk", "feat/--hello--", "hello"},
		{"non-ascii runes are separators", "feat/café-menü", "caf-men"},
		{"digits preserved", "hotfix/v2-rollback-2024", "v2-rollback-2024"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Sanitize(tt.branch)
			if err != nil {
				t.Fatalf("Sanitize(%q) returned error: %v", tt.branch, err)
			}
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.branch, got, tt.want)
			}
		})
	}
}

func TestSanitizeEmptyResult(t *testing.T) {
	for _, branch := range []string{"", "---", "feat/!!!", "feat/", "///", "feat/--"} {
		_, err := Sanitize(branch)
		if err == nil {
			t.Errorf("Sanitize(%q) succeeded, want SanitizeError", branch)
			continue
		}
		var se *SanitizeError
		if !errors.As(err, &se) {
			t.Errorf("Sanitize(%q) error type = %T, want *SanitizeError", branch, err)
		} else if se.Branch != branch {
			t.Errorf("SanitizeError.Branch = %q, want %q", se.Branch, branch)
		}
	}
}

func TestSanitizeLengthAndCharset(t *testing.T) {
	inputs := []string{
		"feat/" + strings.Repeat("a", 100),
		"feat/" + strings.Repeat("ab-", 30),
		// 40th char lands on a '-', which truncation must re-trim.
		"feat/" + strings.Repeat("abc-", 10) + "tail",
		"feature/UPPER_lower.123/deep",
		"x",
	}
	for _, in := range inputs {
		got, err := Sanitize(in)
		if err != nil {
			t.Fatalf("Sanitize(%q) returned error: %v", in, err)
		}
		if len(got) > MaxLabelLength {
			t.Errorf("Sanitize(%q) = %q, length %d exceeds %d", in, got, len(got), MaxLabelLength)
		}
		if !labelPattern.MatchString(got) {
			t.Errorf("Sanitize(%q) = %q does not match %s", in, got, labelPattern)
		}
	}
}

// A label that has already been sanitized must be a fixed point, otherwise
// provision-time and reconcile-time derivations could disagree.
func TestSanitizeFixedPoint(t *testing.T) {
	inputs := []string{
		"feat/chat-ui-phase-1",
		"BUGFIX/Fix_Login!!",
		"feature/Really_Long.Branch.Name/With/Segments-and-more-and-more",
	}
	for _, in := range inputs {
		once, err := Sanitize(in)
		if err != nil {
			t.Fatalf("Sanitize(%q) returned error: %v", in, err)
		}
		twice, err := Sanitize(once)
		if err != nil {
			t.Fatalf("Sanitize(%q) returned error: %v", once, err)
		}
		if once != twice {
			t.Errorf("Sanitize not a fixed point: %q -> %q -> %q", in, once, twice)
		}
	}
}

func TestCandidateLabels(t *testing.T) {
	tests := []struct {
		branch string
		want   []string
	}{
		{"feat/chat-ui-phase-1", []string{"chat-ui-phase-1"}},
		{"bugfix/Fix_Login!!", []string{"fix-login"}},
		{"main", []string{"main"}},
		// Unknown prefix reconstructs from the whole name: never equal to the
		// provision-time label, which stripped "chore/".
		{"chore/bump-deps", []string{"chore-bump-deps"}},
		{"feat/!!!", nil},
	}

	for _, tt := range tests {
		got := CandidateLabels(tt.branch)
		if len(got) != len(tt.want) {
			t.Errorf("CandidateLabels(%q) = %v, want %v", tt.branch, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("CandidateLabels(%q) = %v, want %v", tt.branch, got, tt.want)
				break
			}
		}
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		label  string
		branch string
		want   bool
	}{
		{"chat-ui-phase-1", "feat/chat-ui-phase-1", true},
		{"fix-login", "bugfix/Fix_Login!!", true},
		{"main", "main", true},
		// The documented gap: a live chore/ branch does not protect its preview.
		{"bump-deps", "chore/bump-deps", false},
		{"chat-ui-phase-1", "feat/other", false},
	}
	for _, tt := range tests {
		if got := Matches(tt.label, tt.branch); got != tt.want {
			t.Errorf("Matches(%q, %q) = %v, want %v", tt.label, tt.branch, got, tt.want)
		}
	}
}
