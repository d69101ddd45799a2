// tool_test.go: Tests for the Tool facade and its exit policy
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cinch

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

type exitRecorder struct {
	codes []int
}

func (r *exitRecorder) terminate(code int) {
	r.codes = append(r.codes, code)
}

func newTestTool(t *testing.T, path string) (*Tool, *bytes.Buffer, *bytes.Buffer, *exitRecorder) {
	t.Helper()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	recorder := &exitRecorder{}
	tool, err := New(path, Config{
		Stdout:    stdout,
		Stderr:    stderr,
		Terminate: recorder.terminate,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = tool.Close() })
	return tool, stdout, stderr, recorder
}

func TestToolExecute(t *testing.T) {
	path := writeSpec(t, "deploy.json", `{
		"name": "deploy", "description": "Ships builds", "version": "1.4.0",
		"commands": [{"plain": "run", "description": "runs it"}]
	}`)

	t.Run("invocation", func(t *testing.T) {
		tool, stdout, stderr, recorder := newTestTool(t, path)
		result := tool.Execute([]string{"run"})
		if !result["run"] || len(result) != 1 {
			t.Errorf("unexpected result %v", result)
		}
		if stdout.Len() != 0 || stderr.Len() != 0 || len(recorder.codes) != 0 {
			t.Errorf("invocation must not print or terminate")
		}
	})

	t.Run("help terminates with 0", func(t *testing.T) {
		tool, stdout, _, recorder := newTestTool(t, path)
		if result := tool.Execute(nil); result != nil {
			t.Errorf("expected nil result, got %v", result)
		}
		if stdout.String() != "usage: deploy\n\nShips builds\n" {
			t.Errorf("unexpected stdout %q", stdout.String())
		}
		if len(recorder.codes) != 1 || recorder.codes[0] != 0 {
			t.Errorf("expected exit code 0, got %v", recorder.codes)
		}
	})

	t.Run("error terminates with 1", func(t *testing.T) {
		tool, stdout, stderr, recorder := newTestTool(t, path)
		if result := tool.Execute([]string{"frobnicate"}); result != nil {
			t.Errorf("expected nil result, got %v", result)
		}
		if stdout.Len() != 0 {
			t.Errorf("errors must not go to stdout: %q", stdout.String())
		}
		if !strings.Contains(stderr.String(), "'frobnicate' is not a deploy command") {
			t.Errorf("unexpected stderr %q", stderr.String())
		}
		if len(recorder.codes) != 1 || recorder.codes[0] != 1 {
			t.Errorf("expected exit code 1, got %v", recorder.codes)
		}
	})

	t.Run("parse has no side effects", func(t *testing.T) {
		tool, stdout, stderr, recorder := newTestTool(t, path)
		outcome := tool.Parse([]string{"--version"})
		if outcome.Kind != OutcomeRendered || outcome.Message != "deploy version 1.4.0" {
			t.Errorf("unexpected outcome %+v", outcome)
		}
		if stdout.Len() != 0 || stderr.Len() != 0 || len(recorder.codes) != 0 {
			t.Error("Parse must not print or terminate")
		}
	})
}

func TestToolConstructionFailures(t *testing.T) {
	t.Run("invalid specification", func(t *testing.T) {
		path := writeSpec(t, "broken.json", `{"name": "my tool", "description": "d", "version": "1"}`)
		tool, err := New(path, Config{})
		if tool != nil || !IsValidationError(err) {
			t.Errorf("expected validation error, got %v, %v", tool, err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := New(filepath.Join(t.TempDir(), "absent.json"), Config{})
		if GetErrorCode(err) != ErrCodeSpecNotFound {
			t.Errorf("expected %s, got %v", ErrCodeSpecNotFound, err)
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := NewFromTree(baseTree(), Config{Audit: AuditConfig{Enabled: true, MinLevel: AuditLevel(9)}})
		if err == nil {
			t.Error("expected configuration error")
		}
	})
}

func TestToolAuditTrail(t *testing.T) {
	auditPath := filepath.Join(t.TempDir(), "tool-audit.jsonl")
	cfg := Config{
		Audit: AuditConfig{
			Enabled:    true,
			OutputFile: auditPath,
			MinLevel:   AuditInfo,
			BufferSize: 100,
		},
		Terminate: func(int) {},
		Stdout:    &bytes.Buffer{},
		Stderr:    &bytes.Buffer{},
	}

	path := writeSpec(t, "deploy.json", `{"name": "deploy", "description": "d", "version": "1",
		"commands": [{"plain": "run", "description": "runs it"}]}`)
	tool, err := New(path, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	tool.Execute([]string{"run"})
	tool.Execute([]string{"nope"})
	if err := tool.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := New(writeSpec(t, "bad.json", `{"name": "a b", "description": "d", "version": "1"}`), cfg); err == nil {
		t.Fatal("expected validation error")
	}

	reader, err := NewAuditLogger(AuditConfig{Enabled: true, OutputFile: auditPath, BufferSize: 10})
	if err != nil {
		t.Fatalf("NewAuditLogger failed: %v", err)
	}
	defer func() { _ = reader.Close() }()

	counts := map[string]int{}
	events, err := reader.Query(AuditQuery{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	for _, event := range events {
		counts[event.Event]++
	}
	for _, name := range []string{EventSpecLoaded, EventDispatch, EventDispatchError, EventSpecInvalid} {
		if counts[name] != 1 {
			t.Errorf("expected one %s event, got %d (%v)", name, counts[name], counts)
		}
	}
}
