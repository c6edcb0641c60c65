// Package engine wires the classifier, sector policies and audit state into
// the redaction pipeline used by every adapter, the CLI and the HTTP API.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dativo-io/piiredact/internal/audit"
	"github.com/dativo-io/piiredact/internal/classifier"
	"github.com/dativo-io/piiredact/internal/config"
	piiotel "github.com/dativo-io/piiredact/internal/otel"
	"github.com/dativo-io/piiredact/internal/policy"
)

var tracer = piiotel.Tracer("github.com/dativo-io/piiredact/internal/engine")

// Engine is safe for concurrent use. The pipeline (config, scanner,
// redactor, sector policies) is swapped atomically by Reconfigure; the audit
// log and tally survive a swap.
type Engine struct {
	registry *classifier.Registry
	current  atomic.Pointer[pipeline]

	// auditMu is held shared while a unit writes to log and tally, and
	// exclusively while both are drained or restored, so a unit's entries
	// and stats always land in the same snapshot.
	auditMu sync.RWMutex
	log     *audit.Log
	tally   *audit.Tally
}

// pipeline is the immutable part of an engine built from one config.
type pipeline struct {
	cfg      *config.RedactionConfig
	scanner  *classifier.Scanner
	redactor *classifier.Redactor
	policies *policy.Policies
}

// New builds an engine from cfg. A nil cfg uses the embedded defaults. The
// only errors are startup errors: a catalog that fails to compile or
// defaults that fail to parse.
func New(cfg *config.RedactionConfig) (*Engine, error) {
	registry, err := classifier.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("building pattern registry: %w", err)
	}

	e := &Engine{
		registry: registry,
		log:      audit.NewLog(),
		tally:    audit.NewTally(),
	}
	if err := e.Reconfigure(cfg); err != nil {
		return nil, err
	}
	return e, nil
}

// Reconfigure replaces the pipeline with one built from cfg. A nil cfg uses
// the embedded defaults. Units already in flight finish on the old pipeline.
func (e *Engine) Reconfigure(cfg *config.RedactionConfig) error {
	if cfg == nil {
		var err error
		if cfg, err = config.DefaultRedactionConfig(); err != nil {
			return err
		}
	}

	p := &pipeline{
		cfg:      cfg,
		scanner:  classifier.NewScanner(e.registry, classifier.WithAuditHash(cfg.HashOriginal)),
		policies: policy.New(e.registry, cfg),
	}
	var opts []classifier.RedactorOption
	if cfg.LogRedactions {
		opts = append(opts, classifier.WithRecorder(e.log))
	}
	p.redactor = classifier.NewRedactor(opts...)
	e.current.Store(p)

	log.Debug().
		Int("categories", len(e.registry.Categories())).
		Int("sectors", len(p.policies.Sectors())).
		Bool("hash_original", cfg.HashOriginal).
		Bool("log_redactions", cfg.LogRedactions).
		Bool("scan_all_categories", cfg.ScanAllCategories).
		Msg("engine_configured")
	return nil
}

func (e *Engine) active() *pipeline { return e.current.Load() }

// Config returns the current redaction configuration.
func (e *Engine) Config() *config.RedactionConfig { return e.active().cfg }

// Registry returns the compiled catalog.
func (e *Engine) Registry() *classifier.Registry { return e.registry }

// Policies returns the sector policies.
func (e *Engine) Policies() *policy.Policies { return e.active().policies }

// AuditLog returns the engine's audit log.
func (e *Engine) AuditLog() *audit.Log { return e.log }

// Detect locates every occurrence of categories in text.
func (e *Engine) Detect(ctx context.Context, text string, categories []classifier.Category) []classifier.Detection {
	return e.active().scanner.Detect(ctx, text, categories)
}

// Redact substitutes detections in text. detections must come from Detect on
// the same text.
func (e *Engine) Redact(ctx context.Context, text string, detections []classifier.Detection) (string, classifier.Stats) {
	e.auditMu.RLock()
	defer e.auditMu.RUnlock()
	return e.active().redactor.Redact(ctx, text, detections)
}

// Resolve returns the sector resolution for sectorID.
func (e *Engine) Resolve(sectorID string) policy.Resolution {
	return e.active().policies.Resolve(sectorID)
}

// ResolveCategories returns the categories scanned for sectorID.
func (e *Engine) ResolveCategories(sectorID string) []classifier.Category {
	return e.active().policies.ResolveCategories(sectorID)
}

// Recommend derives handling advice from stats.
func (e *Engine) Recommend(stats classifier.Stats) []string {
	return audit.Recommend(stats)
}

// Process runs resolve, detect and redact for one text unit and folds the
// stats into the running tally.
func (e *Engine) Process(ctx context.Context, text, sectorID string) (string, classifier.Stats) {
	return e.ProcessResolved(ctx, text, e.Resolve(sectorID))
}

// ProcessResolved is Process with a resolution computed once by the caller,
// for adapters that process many units of the same input.
func (e *Engine) ProcessResolved(ctx context.Context, text string, res policy.Resolution) (string, classifier.Stats) {
	ctx, span := tracer.Start(ctx, "engine.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("pii.sector", res.Sector),
		attribute.Bool("pii.strict", res.Strict),
	)

	p := e.active()
	detections := p.scanner.Detect(ctx, text, res.Categories)

	e.auditMu.RLock()
	defer e.auditMu.RUnlock()
	out, stats := p.redactor.Redact(ctx, text, detections)
	e.tally.Add(stats)
	return out, stats
}

// Stats returns the running stats and the number of processed units since
// the last drain.
func (e *Engine) Stats() (classifier.Stats, int) {
	return e.tally.Snapshot()
}

// DrainAudit returns and clears the audit log and the running tally. It
// implements audit.Source.
func (e *Engine) DrainAudit() audit.Snapshot {
	e.auditMu.Lock()
	defer e.auditMu.Unlock()
	stats, units := e.tally.Drain()
	return audit.Snapshot{
		Entries: e.log.Drain(),
		Stats:   stats,
		Units:   units,
	}
}

// RestoreAudit returns a drained snapshot to the log and tally, ahead of
// anything processed since. It implements audit.Source.
func (e *Engine) RestoreAudit(snap audit.Snapshot) {
	e.auditMu.Lock()
	defer e.auditMu.Unlock()
	e.log.Restore(snap.Entries)
	e.tally.Restore(snap.Stats, snap.Units)
}
