// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLevelString(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestFileOutputIsJSONL(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Service: "previewgate", LogDir: dir})
	logger.Info("census complete", "previews", 9)
	logger.Warn("cleanup skipped")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	name := "previewgate_" + time.Now().Format("2006-01-02") + ".jsonl"
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), data)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("line 0 is not JSON: %v", err)
	}
	if rec["msg"] != "census complete" {
		t.Errorf("msg = %v", rec["msg"])
	}
	if rec["service"] != "previewgate" {
		t.Errorf("service = %v", rec["service"])
	}
	if rec["previews"] != float64(9) {
		t.Errorf("previews = %v", rec["previews"])
	}
}

func TestUnwritableLogDirStillLogs(t *testing.T) {
	// Setup failure on the file destination must not panic or drop stderr.
	logger := New(Config{LogDir: string([]byte{0})})
	logger.Info("still alive")
	if err := logger.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

type captureExporter struct {
	entries []LogEntry
	flushed bool
	closed  bool
}

func (c *captureExporter) Export(ctx context.Context, entry LogEntry) error {
	c.entries = append(c.entries, entry)
	return nil
}
func (c *captureExporter) Flush(ctx context.Context) error { c.flushed = true; return nil }
func (c *captureExporter) Close() error                    { c.closed = true; return nil }

func TestExporterReceivesEntries(t *testing.T) {
	exp := &captureExporter{}
	logger := New(Config{Service: "previewgate", Exporter: exp})

	logger.Error("delete failed", "preview", "selflytics-preview-x", "attempt", 1)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if len(exp.entries) != 1 {
		t.Fatalf("exporter received %d entries, want 1", len(exp.entries))
	}
	e := exp.entries[0]
	if e.Level != LevelError || e.Message != "delete failed" || e.Service != "previewgate" {
		t.Errorf("entry = %+v", e)
	}
	if e.Attrs["preview"] != "selflytics-preview-x" || e.Attrs["attempt"] != 1 {
		t.Errorf("attrs = %v", e.Attrs)
	}
	if !exp.flushed || !exp.closed {
		t.Error("Close did not flush and close the exporter")
	}
}

func TestWithChildRecordsReachExporter(t *testing.T) {
	exp := &captureExporter{}
	parent := New(Config{Service: "previewgate", Exporter: exp})
	child := parent.With("run_id", "r1")

	child.Error("census failed", "error", "boom")
	grandchild := child.With("stage", "reconcile")
	grandchild.Warn("cleanup skipped")

	if err := parent.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if len(exp.entries) != 2 {
		t.Fatalf("exporter received %d entries, want 2", len(exp.entries))
	}
	first := exp.entries[0]
	if first.Attrs["run_id"] != "r1" || first.Attrs["error"] != "boom" {
		t.Errorf("child attrs = %v", first.Attrs)
	}
	second := exp.entries[1]
	if second.Attrs["run_id"] != "r1" || second.Attrs["stage"] != "reconcile" {
		t.Errorf("grandchild attrs = %v", second.Attrs)
	}
}

func TestWithChildCloseLeavesExporterOpen(t *testing.T) {
	exp := &captureExporter{}
	parent := New(Config{Exporter: exp})
	child := parent.With("run_id", "r1")

	if err := child.Close(); err != nil {
		t.Fatalf("child Close: %v", err)
	}
	if exp.flushed || exp.closed {
		t.Error("child Close touched the parent's exporter")
	}

	child.Info("after child close")
	if len(exp.entries) != 1 {
		t.Errorf("exporter received %d entries after child Close, want 1", len(exp.entries))
	}

	if err := parent.Close(); err != nil {
		t.Fatalf("parent Close: %v", err)
	}
	if !exp.flushed || !exp.closed {
		t.Error("parent Close did not shut the exporter down")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	logger := New(Config{LogDir: t.TempDir()})
	if err := logger.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestAttrsToMap(t *testing.T) {
	m := attrsToMap([]any{"a", 1, "b", "two", "dangling"})
	if m["a"] != 1 || m["b"] != "two" {
		t.Errorf("attrsToMap = %v", m)
	}
	if v, ok := m["dangling"]; !ok || v != nil {
		t.Errorf("dangling key = %v, %v", v, ok)
	}
	if attrsToMap(nil) != nil {
		t.Error("attrsToMap(nil) should be nil")
	}
}
