package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drivenet/internal/config"
	"drivenet/internal/track"
	"drivenet/pkg/drivenet"
)

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() {
		stdout = prev
	})
	return &buf
}

func smallRunArgs(store, dbPath, artifacts string, extra ...string) []string {
	args := []string{
		"run",
		"--store", store,
		"--db-path", dbPath,
		"--artifacts", artifacts,
		"--log-level", "warn",
		"--track", "linear",
		"--pop", "5",
		"--gens", "2",
		"--steps", "40",
		"--seed", "5",
		"--workers", "2",
	}
	return append(args, extra...)
}

func TestRunCommandWritesSummaryAndArtifacts(t *testing.T) {
	out := captureStdout(t)
	artifacts := filepath.Join(t.TempDir(), "runs")

	require.NoError(t, run(context.Background(), smallRunArgs("memory", "", artifacts)))
	text := out.String()
	for _, want := range []string{"run_id=", "slot=linear", "generation=0 best_fitness=", "generation=1 best_fitness=", "artifacts=" + artifacts} {
		assert.Contains(t, text, want)
	}

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"runs", "--artifacts", artifacts, "--json"}))
	var runs []drivenet.RunItem
	require.NoError(t, json.Unmarshal(out.Bytes(), &runs), out.String())
	require.Len(t, runs, 1)
	assert.Equal(t, "linear", runs[0].Track)
	assert.Equal(t, 5, runs[0].Population)

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"runs", "--artifacts", artifacts}))
	assert.Contains(t, out.String(), "selector=leading")
	assert.Contains(t, out.String(), "steps=40")

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"history", "--store", "memory", "--artifacts", artifacts, "--latest"}))
	assert.Equal(t, 2, strings.Count(out.String(), "best_fitness="), out.String())

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"history", "--store", "memory", "--artifacts", artifacts, "--latest", "--diagnostics"}))
	assert.Contains(t, out.String(), "survivors=")
}

func TestChampionAndDiscardCommandsSQLite(t *testing.T) {
	out := captureStdout(t)
	base := t.TempDir()
	dbPath := filepath.Join(base, "drivenet.db")
	artifacts := filepath.Join(base, "runs")
	ctx := context.Background()

	require.NoError(t, run(ctx, smallRunArgs("sqlite", dbPath, artifacts)))

	out.Reset()
	require.NoError(t, run(ctx, []string{"champion", "--db-path", dbPath, "--artifacts", artifacts, "--slot", "linear", "--json"}))
	var champion drivenet.ChampionSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &champion), out.String())
	assert.Equal(t, "linear", champion.Slot)
	require.NotEmpty(t, champion.ID)

	out.Reset()
	require.NoError(t, run(ctx, smallRunArgs("sqlite", dbPath, artifacts)))
	assert.Contains(t, out.String(), "resumed_from="+champion.ID)

	out.Reset()
	require.NoError(t, run(ctx, []string{"discard", "--db-path", dbPath, "--slot", "linear"}))
	assert.Contains(t, out.String(), "discarded champion slot=linear")

	out.Reset()
	require.NoError(t, run(ctx, []string{"discard", "--db-path", dbPath, "--slot", "linear"}))
	assert.Contains(t, out.String(), "no champion stored")

	assert.Error(t, run(ctx, []string{"champion", "--db-path", dbPath, "--slot", "linear"}))
}

func TestConfigCommandPrintsLoadableYAML(t *testing.T) {
	out := captureStdout(t)
	require.NoError(t, run(context.Background(), []string{"config", "--track", "linear"}))

	cfg, err := config.Parse(out.Bytes())
	require.NoError(t, err, out.String())
	require.NoError(t, cfg.Validate())
	assert.Equal(t, track.KindLinear, cfg.Track.Kind)
	assert.Equal(t, config.Default(track.KindLinear).Population.Size, cfg.Population.Size)
}

func TestCommandErrors(t *testing.T) {
	captureStdout(t)
	ctx := context.Background()

	cases := map[string][]string{
		"missing command":     nil,
		"unknown command":     {"fly"},
		"bad log format":      {"champion", "--store", "memory", "--log-format", "xml"},
		"bad log level":       {"champion", "--store", "memory", "--log-level", "loud"},
		"history without run": {"history", "--store", "memory"},
		"history conflict":    {"history", "--store", "memory", "--run-id", "a", "--latest"},
		"negative population": {"run", "--store", "memory", "--pop", "-1"},
		"unknown track":       {"config", "--track", "spiral"},
		"bad runs limit":      {"runs", "--limit", "0"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, run(ctx, args))
		})
	}
}
