package audit

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dativo-io/piiredact/internal/classifier"
)

// Snapshot is the drained state of an engine's audit log and tally.
type Snapshot struct {
	Entries []Entry
	Stats   classifier.Stats
	Units   int
}

// Empty reports whether nothing was processed since the last drain.
func (s Snapshot) Empty() bool {
	return s.Units == 0 && len(s.Entries) == 0
}

// Source is implemented by whatever owns the running audit state.
// RestoreAudit hands back a snapshot that could not be persisted so the
// next rotation picks it up again.
type Source interface {
	DrainAudit() Snapshot
	RestoreAudit(Snapshot)
}

// Rotator drains a Source into a signed report in the store.
type Rotator struct {
	store   *Store
	source  Source
	label   string
	version string
}

// NewRotator creates a rotator. label is recorded as the report input and
// sector; version as the redactor version.
func NewRotator(store *Store, source Source, label, version string) *Rotator {
	return &Rotator{store: store, source: source, label: label, version: version}
}

// Rotate drains the source and persists a report. It returns nil without
// error when there was nothing to rotate. When the report cannot be saved
// the snapshot is restored to the source and nothing is lost.
func (r *Rotator) Rotate(ctx context.Context) (*Report, error) {
	snap := r.source.DrainAudit()
	if snap.Empty() {
		log.Debug().Msg("audit_rotation_skipped_empty")
		return nil, nil
	}

	rep := BuildReport(ReportParams{
		Sector:  r.label,
		Input:   r.label,
		Files:   snap.Units,
		Stats:   snap.Stats,
		Entries: snap.Entries,
		Version: r.version,
	})
	if err := r.store.Save(ctx, rep); err != nil {
		r.source.RestoreAudit(snap)
		log.Warn().
			Err(err).
			Int("entries", len(snap.Entries)).
			Int("units", snap.Units).
			Msg("audit_rotation_restored")
		return nil, fmt.Errorf("saving rotated report: %w", err)
	}

	log.Info().
		Str("report_id", rep.ID).
		Int("entries", len(rep.Log)).
		Int("total_redactions", rep.Statistics.TotalRedactions).
		Msg("audit_rotated")
	return rep, nil
}
