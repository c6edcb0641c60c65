package classifier

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// Recorder receives each detection the Redactor substitutes, in
// substitution order. Implementations must be safe for concurrent use when
// the Redactor is shared across goroutines.
type Recorder interface {
	Record(ctx context.Context, d Detection)
}

// Redactor rewrites text using detections. It keeps no per-call state.
type Redactor struct {
	recorder Recorder
}

// RedactorOption configures a Redactor.
type RedactorOption func(*Redactor)

// WithRecorder sends every substituted detection to rec.
func WithRecorder(rec Recorder) RedactorOption {
	return func(r *Redactor) { r.recorder = rec }
}

// NewRedactor creates a Redactor.
func NewRedactor(opts ...RedactorOption) *Redactor {
	r := &Redactor{}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Redact replaces every detected span with its category template.
//
// Overlapping detections are merged with MergeOverlaps and each group's
// union is replaced by its winner's template. Groups are applied right to
// left so that each splice leaves the offsets of every span to its left
// valid. Every valid detection is counted and recorded, including the ones
// absorbed into a group, so TotalRedactions equals the number of
// detections. detections must come from a Detect call on this exact text;
// spans outside the text are skipped.
func (r *Redactor) Redact(ctx context.Context, text string, detections []Detection) (string, Stats) {
	ctx, span := tracer.Start(ctx, "classifier.redact")
	defer span.End()

	stats := NewStats()
	if len(detections) == 0 {
		return text, stats
	}

	valid := make([]Detection, 0, len(detections))
	for _, d := range detections {
		if d.Start < 0 || d.Start >= d.End || d.End > len(text) {
			log.Debug().
				Str("category", string(d.Category)).
				Int("start", d.Start).
				Int("end", d.End).
				Msg("redaction_span_skipped")
			continue
		}
		valid = append(valid, d)
	}

	groups := MergeOverlaps(valid)
	out := text
	for i := len(groups) - 1; i >= 0; i-- {
		g := groups[i]
		out = out[:g.Start] + g.Winner.Replacement + out[g.End:]
		for _, m := range g.Members {
			stats.Count(m)
			if r.recorder != nil {
				r.recorder.Record(ctx, m)
			}
		}
		if len(g.Members) > 1 {
			log.Debug().
				Str("winner", string(g.Winner.Category)).
				Int("absorbed", len(g.Absorbed())).
				Int("start", g.Start).
				Int("end", g.End).
				Msg("overlapping_detections_merged")
		}
	}

	recordRedactions(ctx, stats)
	span.SetAttributes(
		attribute.Int("pii.redaction_count", stats.TotalRedactions),
		attribute.Int("pii.merged_groups", len(groups)),
	)
	return out, stats
}
