// Package compiler runs the whole pipeline: load the input model, allocate
// servers and addresses against the persisted state, resolve networks and
// VIPs, validate, and write the artifacts.
package compiler

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/cuemby/cloudcfg/pkg/address"
	"github.com/cuemby/cloudcfg/pkg/diag"
	"github.com/cuemby/cloudcfg/pkg/hostname"
	"github.com/cuemby/cloudcfg/pkg/log"
	"github.com/cuemby/cloudcfg/pkg/metrics"
	"github.com/cuemby/cloudcfg/pkg/model"
	"github.com/cuemby/cloudcfg/pkg/plugin"
	"github.com/cuemby/cloudcfg/pkg/storage"
	"github.com/cuemby/cloudcfg/pkg/topology"
	"github.com/cuemby/cloudcfg/pkg/types"
)

// SourceModel tags problems found while loading input files
const SourceModel = "input-model"

// stateNamespaces are the persisted documents a run reads and writes
var stateNamespaces = []string{
	types.NamespaceAddresses,
	types.NamespaceAllocations,
	types.NamespaceCIDR,
	types.NamespacePrivateData,
}

// Result is the outcome of a run. Diagnostics are returned even when Run
// fails, so callers can still print what was found before the failure.
type Result struct {
	RunID     string
	Files     []string
	Model     *types.Model
	Resolved  *types.Resolved
	Hostnames *hostname.Registry
	Diag      *diag.Diagnostics
	Metrics   *metrics.Recorder
}

// Run compiles the input model with the default plugins
func Run(ctx context.Context, cfg Config) (*Result, error) {
	return RunWith(ctx, cfg, DefaultPlugins())
}

// RunWith compiles the input model with the given plugins
func RunWith(ctx context.Context, cfg Config, plugins *plugin.Registry) (*Result, error) {
	timer := metrics.NewTimer()
	runID := uuid.New().String()
	logger := log.WithRunID(runID)

	rec := metrics.NewRecorder()
	d := diag.New(log.WithComponent("diag"))
	d.OnRecord(func(s diag.Severity) {
		rec.Diagnostics.WithLabelValues(string(s)).Inc()
	})
	result := &Result{RunID: runID, Diag: d, Metrics: rec}
	defer func() {
		rec.RunDuration.Set(timer.Duration().Seconds())
		if cfg.MetricsFile != "" {
			if err := rec.WriteTextfile(cfg.MetricsFile); err != nil {
				logger.Warn().Err(err).Msg("Failed to write metrics")
			}
		}
	}()

	store, err := openStore(cfg)
	if err != nil {
		return result, err
	}
	defer store.Close()

	loaded, err := model.NewLoader().Load(cfg.Inputs...)
	if loaded != nil {
		for _, e := range loaded.Errors {
			d.Errorf(SourceModel, "%v", e)
		}
		result.Files = loaded.Files
	}
	if err != nil {
		return result, err
	}
	m := loaded.Model
	result.Model = m
	rec.RunInfo.WithLabelValues(runID, m.Cloud.Name).Set(1)

	addrs, err := address.NewAllocator(store, m.Servers)
	if err != nil {
		return result, fmt.Errorf("failed to load persisted addresses: %w", err)
	}
	addrs.OnAllocate = func(network string) {
		rec.AddressesAllocated.WithLabelValues(network).Inc()
	}

	pctx := &plugin.Context{
		RunID:     runID,
		Model:     m,
		Store:     store,
		Addresses: addrs,
		Tree:      topology.NewTree(m),
		Hostnames: hostname.NewRegistry(),
		Diag:      d,
		Resolved:  types.NewResolved(runID, m.Cloud.Name),
		Metrics:   rec,
		Logger:    logger,
		Options: plugin.Options{
			OutputDir:             cfg.OutputDir,
			RemoveDeletedServers:  cfg.RemoveDeletedServers,
			FreeUnusedAddresses:   cfg.FreeUnusedAddresses,
			EncryptionKey:         cfg.EncryptionKey,
			PreviousEncryptionKey: cfg.PreviousEncryptionKey,
		},
	}
	result.Resolved = pctx.Resolved
	result.Hostnames = pctx.Hostnames

	logger.Info().
		Strs("inputs", cfg.Inputs).
		Str("state_backend", cfg.StateBackend).
		Bool("dry_run", cfg.DryRun).
		Msg("Compile started")

	if err := plugins.Run(ctx, pctx); err != nil {
		return result, err
	}

	logger.Info().
		Int("servers", len(pctx.Resolved.Servers)).
		Int("vips", len(pctx.Resolved.VIPs)).
		Int("errors", len(d.Errors())).
		Int("warnings", len(d.Warnings())).
		Dur("duration", timer.Duration()).
		Msg("Compile finished")
	return result, nil
}

// openStore opens the state backend, or an in-memory copy of it for dry runs
func openStore(cfg Config) (storage.Store, error) {
	store, err := storage.Open(cfg.StateBackend, cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	if !cfg.DryRun {
		return store, nil
	}
	defer store.Close()
	snap, err := storage.Snapshot(store, stateNamespaces...)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot state store: %w", err)
	}
	return snap, nil
}
