// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for the preview gate.
//
// Built on log/slog with three destinations:
//
//   - stderr: always on. The gate's CLI contract keeps error and debug
//     lines on stderr regardless of quiet mode; quiet only silences the
//     human progress stream on stdout, which is not this package's job.
//   - JSONL file: optional, one JSON object per line, for CI artifact
//     collection.
//   - LogExporter: optional hook for shipping entries to Cloud Logging or
//     any other aggregation backend.
//
// # Basic Usage
//
//	logger := logging.New(logging.Config{Service: "previewgate"})
//	defer logger.Close()
//	logger.Info("census complete", "previews", 9)
//
// # Thread Safety
//
// Logger is safe for concurrent use.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level represents log severity, ordered Debug < Info < Warn < Error.
type Level int

const (
	// LevelDebug is for development troubleshooting.
	LevelDebug Level = iota

	// LevelInfo is for normal operational messages.
	LevelInfo

	// LevelWarn is for recoverable anomalies: a skipped reconciliation, a
	// preview without a feature label, a single failed deletion.
	LevelWarn

	// LevelError is for failed operations. Process-fatal conditions log at
	// this level before the process exits non-zero.
	LevelError
)

// String returns "DEBUG", "INFO", "WARN", "ERROR", or "UNKNOWN".
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogEntry is the exporter-facing form of one log record.
type LogEntry struct {
	// Timestamp when the record was produced.
	Timestamp time.Time

	// Level of the record.
	Level Level

	// Message is the primary log message.
	Message string

	// Service identifies the component (from Config.Service).
	Service string

	// Attrs holds every key-value attribute on the record.
	Attrs map[string]any
}

// LogExporter ships log entries to an external aggregation system.
//
// The Cloud Logging uploader in the deployment environment implements this;
// the open-source tool runs with a nil exporter. Export is called inline on
// the logging path with a short per-entry timeout, so implementations must
// buffer internally and never block. Export failures are swallowed: losing
// an exported line must not disturb the gate.
type LogExporter interface {
	// Export receives one entry. Must be non-blocking.
	Export(ctx context.Context, entry LogEntry) error

	// Flush sends all buffered entries. Called once during Close.
	Flush(ctx context.Context) error

	// Close releases resources. Called after Flush.
	Close() error
}

// Config configures a Logger. The zero value logs Info+ text to stderr.
type Config struct {
	// Level is the minimum severity to emit. Default: LevelInfo.
	Level Level

	// LogDir enables JSONL file output in the given directory, named
	// {Service}_{YYYY-MM-DD}.jsonl. Created with 0750 if missing.
	// Default: "" (no file output).
	LogDir string

	// Service is attached to every record as the "service" attribute.
	// Default: "previewgate".
	Service string

	// JSON switches the stderr stream to JSON. File output is always JSONL
	// regardless. Default: false (human-readable text).
	JSON bool

	// Exporter is the optional external shipping hook.
	Exporter LogExporter
}

// Logger is a multi-destination structured logger.
type Logger struct {
	slog     *slog.Logger
	service  string
	file     *os.File
	exporter LogExporter
	// owner is true only on the Logger New built. Children from With share
	// the file and exporter but must not shut them down.
	owner bool
	// base holds the accumulated With attributes, replayed into exported
	// entries since the exporter path does not see slog's handler state.
	base []any
	mu   sync.Mutex
}

// New builds a Logger from config. Always call Close when done; it closes
// the log file and flushes the exporter.
//
// File-destination setup failures are deliberately non-fatal: a CI runner
// with a read-only work directory still gets the stderr stream.
func New(config Config) *Logger {
	service := config.Service
	if service == "" {
		service = "previewgate"
	}

	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}

	var stderrHandler slog.Handler
	if config.JSON {
		stderrHandler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		stderrHandler = slog.NewTextHandler(os.Stderr, opts)
	}
	handlers := []slog.Handler{stderrHandler}

	logger := &Logger{
		service:  service,
		exporter: config.Exporter,
		owner:    true,
	}

	if config.LogDir != "" {
		if err := os.MkdirAll(config.LogDir, 0750); err == nil {
			name := fmt.Sprintf("%s_%s.jsonl", service, time.Now().Format("2006-01-02"))
			file, err := os.OpenFile(filepath.Join(config.LogDir, name),
				os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
			if err == nil {
				logger.file = file
				handlers = append(handlers, slog.NewJSONHandler(file, opts))
			}
		}
	}

	var handler slog.Handler
	if len(handlers) == 1 {
		handler = handlers[0]
	} else {
		handler = &multiHandler{handlers: handlers}
	}
	handler = handler.WithAttrs([]slog.Attr{slog.String("service", service)})

	logger.slog = slog.New(handler)
	return logger
}

// Default returns a Logger with the zero-value Config.
func Default() *Logger {
	return New(Config{})
}

// Debug logs at Debug level with key-value attribute pairs.
func (l *Logger) Debug(msg string, args ...any) { l.log(LevelDebug, msg, args...) }

// Info logs at Info level with key-value attribute pairs.
func (l *Logger) Info(msg string, args ...any) { l.log(LevelInfo, msg, args...) }

// Warn logs at Warn level with key-value attribute pairs.
func (l *Logger) Warn(msg string, args ...any) { l.log(LevelWarn, msg, args...) }

// Error logs at Error level with key-value attribute pairs.
func (l *Logger) Error(msg string, args ...any) { l.log(LevelError, msg, args...) }

// With returns a child logger carrying extra attributes on every record.
// The child shares the parent's destinations; Close the parent, not the
// child.
func (l *Logger) With(args ...any) *Logger {
	base := make([]any, 0, len(l.base)+len(args))
	base = append(base, l.base...)
	base = append(base, args...)
	return &Logger{
		slog:     l.slog.With(args...),
		service:  l.service,
		exporter: l.exporter,
		base:     base,
	}
}

func (l *Logger) log(level Level, msg string, args ...any) {
	switch level {
	case LevelDebug:
		l.slog.Debug(msg, args...)
	case LevelWarn:
		l.slog.Warn(msg, args...)
	case LevelError:
		l.slog.Error(msg, args...)
	default:
		l.slog.Info(msg, args...)
	}

	if l.exporter != nil {
		attrs := args
		if len(l.base) > 0 {
			attrs = make([]any, 0, len(l.base)+len(args))
			attrs = append(attrs, l.base...)
			attrs = append(attrs, args...)
		}
		entry := LogEntry{
			Timestamp: time.Now(),
			Level:     level,
			Message:   msg,
			Service:   l.service,
			Attrs:     attrsToMap(attrs),
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		// Export failures are swallowed; the stderr record already exists.
		_ = l.exporter.Export(ctx, entry)
		cancel()
	}
}

// Close flushes the exporter and closes the log file. Safe to call more
// than once. On a child from With it is a no-op; the parent owns both
// destinations.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.owner {
		return nil
	}

	var firstErr error
	if l.exporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := l.exporter.Flush(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		cancel()
		if err := l.exporter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		l.exporter = nil
	}
	if l.file != nil {
		if err := l.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		l.file = nil
	}
	return firstErr
}

// attrsToMap converts slog-style trailing args to a map for export. Odd
// trailing keys get a nil value rather than being dropped.
func attrsToMap(args []any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	m := make(map[string]any, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if i+1 < len(args) {
			m[key] = args[i+1]
		} else {
			m[key] = nil
		}
	}
	return m
}

// multiHandler fans one record out to several slog handlers.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, h := range m.handlers {
		if h.Enabled(ctx, record.Level) {
			if err := h.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}
