// Package langb coordinates the Lang-B tracer subprocess (C4): a
// temp-file handoff plus a timed exec.CommandContext invocation of an
// external tracer binary, described in spec.md §4.4.
package langb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/arc-self/codetrace/internal/trace"
)

// SourceExt is the file extension written for Lang-B source before
// handing it to the tracer subprocess.
const SourceExt = ".langb"

// Timeout bounds the tracer subprocess per spec.md §4.4 step 4.
const Timeout = 5 * time.Second

// Runner spawns the external Lang-B tracer and turns its stdout protocol
// into a trace.Document. The zero value is ready to use; TracerPath and
// TempDir are normally populated from config at startup.
type Runner struct {
	// TracerPath is the resolvable path to the tracer binary.
	TracerPath string
	// TempDir holds per-run source files. Created lazily if empty.
	TempDir string
}

// tracerResult is the wire shape emitted by the tracer subprocess, per
// spec.md's "External tracer contract".
type tracerResult struct {
	Status string        `json:"status"`
	Traces []trace.Event `json:"traces"`
	Stdout string        `json:"stdout"`
	Error  string        `json:"error,omitempty"`
}

// Run writes source to a fresh temp file, spawns the tracer with a
// 5-second wall-clock timeout, and parses its stdout into a trace.Document.
// The temp file is always removed before Run returns, regardless of
// outcome.
func (r *Runner) Run(ctx context.Context, source string, breakpoints []int) (trace.Document, error) {
	dir, err := r.ensureTempDir()
	if err != nil {
		return trace.Document{}, fmt.Errorf("preparing temp directory: %w", err)
	}

	sourcePath := filepath.Join(dir, uuid.NewString()+SourceExt)
	if err := os.WriteFile(sourcePath, []byte(source), 0o600); err != nil {
		return trace.Document{}, fmt.Errorf("writing source temp file: %w", err)
	}
	defer os.Remove(sourcePath)

	argv := []string{sourcePath}
	if len(breakpoints) > 0 {
		bpJSON, err := json.Marshal(breakpoints)
		if err != nil {
			return trace.Document{}, fmt.Errorf("encoding breakpoints: %w", err)
		}
		argv = append(argv, string(bpJSON))
	}

	runCtx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.TracerPath, argv...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return timeoutDocument(), nil
	}
	if runErr != nil {
		// A non-zero exit is not itself interpreted; spec.md §4.4 says only
		// stdout content matters. Fall through and try to parse it anyway —
		// tracers commonly print a status=error document and exit non-zero.
		if stdout.Len() == 0 {
			return errorDocument(runErr.Error()), nil
		}
	}

	var result tracerResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return errorDocument(stdout.String()), nil
	}

	doc := trace.Document{
		Events: result.Traces,
		Stdout: result.Stdout,
		Status: result.Status,
		Error:  result.Error,
	}
	if doc.Status == "" {
		doc.Status = "ok"
	}
	return doc, nil
}

func (r *Runner) ensureTempDir() (string, error) {
	dir := r.TempDir
	if dir == "" {
		dir = filepath.Join(".", "temp")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

func timeoutDocument() trace.Document {
	return trace.Document{Events: []trace.Event{}, Status: "error", Error: "timeout"}
}

func errorDocument(message string) trace.Document {
	return trace.Document{Events: []trace.Event{}, Status: "error", Error: message}
}
