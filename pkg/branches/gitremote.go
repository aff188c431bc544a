// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package branches

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	headsRefPrefix        = "refs/heads/"
	defaultGitCallTimeout = 60 * time.Second
)

// GitRemoteSource lists branches by querying the remote directly with
// `git ls-remote --heads`.
//
// Fallback for execution contexts without a hosting-API credential or
// repository identifier. It needs only a checkout with a reachable remote,
// which every CI job that got as far as running this gate already has.
type GitRemoteSource struct {
	gitPath  string
	repoPath string
	remote   string
	timeout  time.Duration
}

// NewGitRemoteSource builds a source querying the given remote of the
// repository at repoPath. Fails when git is not installed.
func NewGitRemoteSource(repoPath, remote string) (*GitRemoteSource, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}
	if remote == "" {
		remote = "origin"
	}
	return &GitRemoteSource{
		gitPath:  gitPath,
		repoPath: repoPath,
		remote:   remote,
		timeout:  defaultGitCallTimeout,
	}, nil
}

// Name implements Source.
func (g *GitRemoteSource) Name() string { return "git-ls-remote" }

// ListBranches implements Source.
func (g *GitRemoteSource) ListBranches(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, g.gitPath, "-C", g.repoPath,
		"ls-remote", "--heads", g.remote)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git ls-remote --heads %s failed: %w", g.remote, err)
	}
	return parseHeads(string(output)), nil
}

// parseHeads extracts branch names from ls-remote output. Each line is
// "<sha>\trefs/heads/<branch>"; anything else is skipped.
func parseHeads(output string) []string {
	var names []string
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		tab := strings.IndexByte(line, '\t')
		if tab < 0 {
			continue
		}
		ref := line[tab+1:]
		name, ok := strings.CutPrefix(ref, headsRefPrefix)
		if !ok || name == "" {
			continue
		}
		names = append(names, name)
	}
	return names
}
