// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package registry is the typed client for the preview deployment registry:
// the set of Cloud Run services carrying the preview naming convention.
//
// The registry is the single source of truth for what is provisioned. The
// reconciler never caches registry state across invocations; every run does
// a fresh census through this client. The shell-era implementation parsed
// gcloud text tables; this client talks to the Cloud Run Admin API v2
// directly and returns structured records.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	run "google.golang.org/api/run/v2"
)

const (
	// NamePrefix marks a Cloud Run service as a preview deployment. Census
	// filters on it so the gate never counts (or deletes) the production
	// service or unrelated workloads in the same project.
	NamePrefix = "selflytics-preview-"

	// FeatureLabelKey is the service label the deployment pipeline attaches
	// at provision time, carrying the sanitized branch label.
	FeatureLabelKey = "feature"

	// defaultCallTimeout bounds every control-plane call. The shell original
	// inherited whatever gcloud defaulted to; here the bound is explicit so a
	// wedged control plane fails the run instead of hanging the CI job until
	// its outer timeout.
	defaultCallTimeout = 60 * time.Second
)

// PreviewDeployment is one provisioned preview environment.
type PreviewDeployment struct {
	// Name is the short service name (last segment of the resource name).
	Name string

	// FeatureLabel is the sanitized branch label attached at creation time,
	// or "" when the service predates labeling or was created by hand.
	// Absence is an anomaly the reconciler must tolerate, not an error.
	FeatureLabel string
}

// ErrorKind categorizes registry failures for the caller's fatal/contained
// split: census failures abort the run, single delete failures do not.
type ErrorKind int

const (
	// KindUnavailable means the control plane could not be reached or
	// authenticated against. Fatal at census time.
	KindUnavailable ErrorKind = iota

	// KindDeleteFailed means one service deletion failed. Contained: the
	// reconciler logs it and keeps going.
	KindDeleteFailed
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnavailable:
		return "REGISTRY_UNAVAILABLE"
	case KindDeleteFailed:
		return "DELETE_FAILED"
	default:
		return "UNKNOWN"
	}
}

// Error is a structured registry failure.
type Error struct {
	// Kind categorizes the failure.
	Kind ErrorKind

	// Service is the short service name, when one operation was involved.
	Service string

	// Message is a human-readable description.
	Message string

	// Remediation suggests how to fix the issue.
	Remediation string

	// Err is the underlying API error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the underlying API error.
func (e *Error) Unwrap() error { return e.Err }

// Client lists and deletes preview deployments in one project/region.
//
// # Thread Safety
//
// Client is safe for concurrent use; it holds no mutable state.
type Client struct {
	svc         *run.Service
	parent      string
	project     string
	region      string
	callTimeout time.Duration
}

// Config configures a registry Client.
type Config struct {
	// ProjectID is the GCP project hosting the previews. Required.
	ProjectID string

	// Region is the Cloud Run region. Required.
	Region string

	// CallTimeout bounds each individual API call.
	// Default: 60 seconds.
	CallTimeout time.Duration
}

// NewClient builds a registry client.
//
// Extra options are passed through to the underlying service; tests use
// option.WithEndpoint and option.WithoutAuthentication to point the client
// at a fixture server. In CI the default application credentials provided by
// the workload identity of the runner are picked up automatically.
func NewClient(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Client, error) {
	svc, err := run.NewService(ctx, opts...)
	if err != nil {
		return nil, &Error{
			Kind:        KindUnavailable,
			Message:     "cannot initialize Cloud Run Admin API client",
			Remediation: "check that application default credentials are available to the CI runner",
			Err:         err,
		}
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Client{
		svc:         svc,
		parent:      fmt.Sprintf("projects/%s/locations/%s", cfg.ProjectID, cfg.Region),
		project:     cfg.ProjectID,
		region:      cfg.Region,
		callTimeout: timeout,
	}, nil
}

// ListPreviews enumerates every service matching the preview naming
// convention, following pagination to the end.
//
// A failure here is fatal for the run: without a trustworthy census there is
// no safe way to reconcile or to admit a new deployment.
func (c *Client) ListPreviews(ctx context.Context) ([]PreviewDeployment, error) {
	var previews []PreviewDeployment
	pageToken := ""
	for {
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		call := c.svc.Projects.Locations.Services.List(c.parent).Context(callCtx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		cancel()
		if err != nil {
			return nil, &Error{
				Kind:        KindUnavailable,
				Message:     fmt.Sprintf("cannot list services in %s", c.parent),
				Remediation: "verify GCP_PROJECT/GCP_REGION and that the runner has run.services.list permission",
				Err:         err,
			}
		}

		for _, svc := range resp.Services {
			name := shortName(svc.Name)
			if !strings.HasPrefix(name, NamePrefix) {
				continue
			}
			previews = append(previews, PreviewDeployment{
				Name:         name,
				FeatureLabel: svc.Labels[FeatureLabelKey],
			})
		}

		if resp.NextPageToken == "" {
			return previews, nil
		}
		pageToken = resp.NextPageToken
	}
}

// DeletePreview removes one preview service by short name.
//
// A 404 from the control plane is success: registry state can change between
// census and deletion (a concurrent pipeline run or an operator may have got
// there first), and deleting an already-gone preview is exactly the outcome
// the caller wanted.
func (c *Client) DeletePreview(ctx context.Context, name string) error {
	full := fmt.Sprintf("%s/services/%s", c.parent, name)

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	_, err := c.svc.Projects.Locations.Services.Delete(full).Context(callCtx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == 404 {
			return nil
		}
		return &Error{
			Kind:        KindDeleteFailed,
			Service:     name,
			Message:     fmt.Sprintf("cannot delete service %s", name),
			Remediation: fmt.Sprintf("delete it manually: gcloud run services delete %s --project %s --region %s", name, c.project, c.region),
			Err:         err,
		}
	}
	return nil
}

// shortName reduces a full resource name
// (projects/p/locations/r/services/name) to its final segment.
func shortName(full string) string {
	if i := strings.LastIndexByte(full, '/'); i >= 0 {
		return full[i+1:]
	}
	return full
}
