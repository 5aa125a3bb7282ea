// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"", LevelInfo},
		{"warning", LevelWarn},
		{" error ", LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("loud")
	assert.ErrorIs(t, err, ErrUnknownLevel)
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "warn", LevelWarn.String())
	assert.Equal(t, "level(9)", Level(9).String())
}

func TestConsoleText_NoColorForBuffers(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: LevelInfo, Writer: &buf})
	require.NoError(t, err)

	l.Debug("hidden")
	l.Info("search finished", "iterations", 12)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "search finished")
	assert.Contains(t, out, "iterations=12")
	assert.Contains(t, out, "service=planner")
	assert.NotContains(t, out, "\x1b[", "buffers are never colored")
}

func TestConsoleJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: LevelDebug, Writer: &buf, JSON: true, Service: "svc"})
	require.NoError(t, err)

	l.With("run_id", "r1").Warn("stalled", "node", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "stalled", rec["msg"])
	assert.Equal(t, "svc", rec["service"])
	assert.Equal(t, "r1", rec["run_id"])
	assert.Equal(t, float64(3), rec["node"])
}

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	l, err := New(Config{Level: LevelInfo, Writer: &console, LogDir: dir, Service: "planner"})
	require.NoError(t, err)

	path := l.FilePath()
	require.NotEmpty(t, path)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "planner_"))

	l.Info("one")
	l.Error("two", "err", "boom")
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	assert.Empty(t, l.FilePath())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var msgs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		msgs = append(msgs, rec["msg"].(string))
	}
	assert.Equal(t, []string{"one", "two"}, msgs)
	assert.Contains(t, console.String(), "two")
}

func TestQuietStillWritesFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	l, err := New(Config{Level: LevelInfo, Writer: &console, LogDir: dir, Quiet: true})
	require.NoError(t, err)

	l.Info("only in file")
	path := l.FilePath()
	require.NoError(t, l.Close())

	assert.Empty(t, console.String())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "only in file")
}

func TestUnwritableLogDirFallsBackToConsole(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	var console bytes.Buffer
	l, err := New(Config{Level: LevelInfo, Writer: &console, LogDir: filepath.Join(blocker, "logs")})
	require.Error(t, err)
	require.NotNil(t, l)

	l.Info("still here")
	assert.Contains(t, console.String(), "still here")
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandPath("~/logs")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "logs"), got)

	got, err = expandPath("/var/log")
	require.NoError(t, err)
	assert.Equal(t, "/var/log", got)
}
