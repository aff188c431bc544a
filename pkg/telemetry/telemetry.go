// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package telemetry wires OpenTelemetry tracing for the preview gate.
//
// The gate is a short-lived batch process, so the trace story is small: one
// root span per invocation with child spans for census, reconciliation, and
// the quota decision. The exporter is selected by name so CI can flip
// between a human-readable console dump, a JSONL artifact for collection,
// and nothing at all, without recompiling.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Backend names accepted by Init.
const (
	// BackendConsole pretty-prints spans to stderr. Stdout is reserved for
	// the gate's progress lines, which CI may parse.
	BackendConsole = "console"

	// BackendJSONL writes one JSON span per line to the configured file.
	BackendJSONL = "jsonl"

	// BackendOff disables tracing. Tracer() still returns a usable no-op
	// tracer so call sites never branch.
	BackendOff = "off"
)

// ErrUnknownBackend is returned for a backend name outside the known set.
var ErrUnknownBackend = fmt.Errorf("unknown telemetry backend")

// Config configures telemetry for one invocation.
type Config struct {
	// Backend selects the exporter: console, jsonl, or off.
	// Default: off.
	Backend string

	// JSONLPath is the output file for the jsonl backend.
	// Default: "previewgate-trace.jsonl" in the working directory.
	JSONLPath string

	// RunID is the per-invocation identifier attached to the resource, so
	// overlapping CI runs can be told apart in aggregated traces.
	RunID string
}

// Init installs the global tracer provider for this invocation.
//
// Returns a shutdown function that flushes and closes the exporter; callers
// must invoke it before exiting or buffered spans are lost. Init with
// BackendOff returns a no-op shutdown.
func Init(cfg Config) (func(context.Context) error, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = BackendOff
	}
	if backend == BackendOff {
		return func(context.Context) error { return nil }, nil
	}

	var w io.Writer
	var closeFile func() error
	var opts []stdouttrace.Option

	switch backend {
	case BackendConsole:
		w = os.Stderr
		opts = append(opts, stdouttrace.WithPrettyPrint())
	case BackendJSONL:
		path := cfg.JSONLPath
		if path == "" {
			path = "previewgate-trace.jsonl"
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			return nil, fmt.Errorf("opening trace file %s: %w", path, err)
		}
		w = file
		closeFile = file.Close
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}

	exporter, err := stdouttrace.New(append(opts, stdouttrace.WithWriter(w))...)
	if err != nil {
		if closeFile != nil {
			closeFile()
		}
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", "previewgate"),
		attribute.String("run.id", cfg.RunID),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		if closeFile != nil {
			if cerr := closeFile(); err == nil {
				err = cerr
			}
		}
		return err
	}, nil
}

// Tracer returns the gate's tracer from the installed provider.
func Tracer() trace.Tracer {
	return otel.Tracer("github.com/selflytics/previewgate")
}
