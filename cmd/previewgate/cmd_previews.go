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
	"strings"

	"github.com/spf13/cobra"

	"github.com/selflytics/previewgate/pkg/registry"
)

// previewsClient builds the registry client for the operator subcommands.
func previewsClient(ctx context.Context) (*registry.Client, Config, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, Config{}, err
	}
	client, err := registry.NewClient(ctx, registry.Config{
		ProjectID: cfg.Project,
		Region:    cfg.Region,
	})
	if err != nil {
		return nil, Config{}, err
	}
	return client, cfg, nil
}

func runPreviewsList(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	client, cfg, err := previewsClient(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitDeny)
	}

	previews, err := client.ListPreviews(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitDeny)
	}

	if len(previews) == 0 {
		fmt.Printf("No preview deployments in %s/%s\n", cfg.Project, cfg.Region)
		return
	}

	fmt.Printf("%-50s %s\n", "SERVICE", "FEATURE")
	for _, p := range previews {
		label := p.FeatureLabel
		if label == "" {
			label = "(no label)"
		}
		fmt.Printf("%-50s %s\n", p.Name, label)
	}
}

func runPreviewsDelete(cmd *cobra.Command, args []string) {
	name := args[0]
	if !strings.HasPrefix(name, registry.NamePrefix) {
		// Refuse to be a generic service deleter; this guard keeps a typo
		// from pointing at the production service.
		fmt.Fprintf(os.Stderr, "Error: %q is not a preview service (expected prefix %q)\n",
			name, registry.NamePrefix)
		os.Exit(ExitDeny)
	}

	ctx := context.Background()
	client, _, err := previewsClient(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitDeny)
	}

	if err := client.DeletePreview(ctx, name); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitDeny)
	}
	fmt.Printf("Deleted %s\n", name)
}
