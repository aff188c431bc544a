// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package branches

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultGitHubBaseURL = "https://api.github.com"
	githubPageSize       = 100

	// githubMaxPages caps pagination. 100 pages of 100 branches is far past
	// anything this repository will see; the cap exists so a misbehaving
	// mirror cannot spin the gate forever.
	githubMaxPages = 100

	defaultGitHubTimeout = 30 * time.Second
)

// GitHubSource lists branches through the GitHub REST API.
//
// # Description
//
// Preferred branch source in CI: GitHub Actions provides GITHUB_REPOSITORY
// and GITHUB_TOKEN without any extra setup, and the API answers even from
// shallow or detached checkouts where local git state is unreliable.
//
// # Example
//
//	src := branches.NewGitHubSource("selflytics/selflytics", token)
//	names, err := src.ListBranches(ctx)
type GitHubSource struct {
	repo    string // "owner/name"
	token   string
	baseURL string
	client  *http.Client
}

// NewGitHubSource builds a source for the given "owner/name" repository.
// token may be empty for public repositories.
func NewGitHubSource(repo, token string) *GitHubSource {
	return &GitHubSource{
		repo:    repo,
		token:   token,
		baseURL: defaultGitHubBaseURL,
		client:  &http.Client{Timeout: defaultGitHubTimeout},
	}
}

// WithBaseURL points the source at a different API host. Used by tests and
// by GitHub Enterprise installs.
func (g *GitHubSource) WithBaseURL(url string) *GitHubSource {
	g.baseURL = url
	return g
}

// Name implements Source.
func (g *GitHubSource) Name() string { return "github-api" }

// ListBranches implements Source, paging until the API returns a short page.
func (g *GitHubSource) ListBranches(ctx context.Context) ([]string, error) {
	var names []string
	for page := 1; page <= githubMaxPages; page++ {
		batch, err := g.listPage(ctx, page)
		if err != nil {
			return nil, err
		}
		names = append(names, batch...)
		if len(batch) < githubPageSize {
			return names, nil
		}
	}
	return names, nil
}

func (g *GitHubSource) listPage(ctx context.Context, page int) ([]string, error) {
	url := fmt.Sprintf("%s/repos/%s/branches?per_page=%d&page=%d",
		g.baseURL, g.repo, githubPageSize, page)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building branch request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing branches for %s: %w", g.repo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a little of the body for the log line; GitHub error bodies
		// are small JSON documents.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("listing branches for %s: status %s: %s",
			g.repo, strconv.Itoa(resp.StatusCode), string(body))
	}

	var entries []struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decoding branch response for %s: %w", g.repo, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Name != "" {
			names = append(names, e.Name)
		}
	}
	return names, nil
}
