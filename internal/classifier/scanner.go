package classifier

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dativo-io/piiredact/internal/cryptoutil"
	piiotel "github.com/dativo-io/piiredact/internal/otel"
)

var tracer = piiotel.Tracer("github.com/dativo-io/piiredact/internal/classifier")

// Detection is one located occurrence of a category in a text unit. Start
// and End are half-open byte offsets into the untouched input.
type Detection struct {
	Category    Category `json:"category"`
	Name        string   `json:"name"`
	Sensitivity Tier     `json:"sensitivity"`
	Start       int      `json:"start"`
	End         int      `json:"end"`
	Original    string   `json:"-"` // never serialized
	Replacement string   `json:"replacement"`
	Hash        string   `json:"hash,omitempty"`
}

// Len returns the span length in bytes.
func (d Detection) Len() int { return d.End - d.Start }

// overlaps reports whether the spans of d and o intersect.
func (d Detection) overlaps(o Detection) bool {
	return d.Start < o.End && o.Start < d.End
}

// Scanner finds PII in text. It holds no mutable state, so one Scanner can
// serve any number of goroutines.
type Scanner struct {
	registry  *Registry
	hashMatch bool
}

// ScannerOption configures a Scanner via the functional options pattern.
type ScannerOption func(*Scanner)

// WithAuditHash enables or disables the truncated SHA-256 fingerprint on
// each detection.
func WithAuditHash(enabled bool) ScannerOption {
	return func(s *Scanner) { s.hashMatch = enabled }
}

// NewScanner creates a scanner over registry. Audit hashing is on by default.
func NewScanner(registry *Registry, opts ...ScannerOption) *Scanner {
	s := &Scanner{registry: registry, hashMatch: true}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Registry returns the catalog the scanner matches against.
func (s *Scanner) Registry() *Registry {
	return s.registry
}

// Detect scans text independently for every category in categories and
// returns the detections in discovery order: category by category, and
// leftmost-first within a category. Matches of different categories may
// overlap; see MergeOverlaps. Unknown or repeated categories are ignored.
// Empty text yields an empty, non-nil slice.
func (s *Scanner) Detect(ctx context.Context, text string, categories []Category) []Detection {
	ctx, span := tracer.Start(ctx, "classifier.detect")
	defer span.End()

	detections := []Detection{}
	if text == "" {
		return detections
	}

	seen := make(map[Category]bool, len(categories))
	for _, c := range categories {
		if seen[c] {
			continue
		}
		seen[c] = true

		def, ok := s.registry.Get(c)
		if !ok {
			continue
		}
		for _, m := range def.FindAll(text) {
			if m[0] >= m[1] {
				continue
			}
			d := Detection{
				Category:    def.ID,
				Name:        def.Name,
				Sensitivity: def.Sensitivity,
				Start:       m[0],
				End:         m[1],
				Original:    text[m[0]:m[1]],
				Replacement: def.Replacement,
			}
			if s.hashMatch {
				d.Hash = cryptoutil.ShortDigest(d.Original, cryptoutil.AuditHashLength)
			}
			detections = append(detections, d)
		}
	}

	recordDetections(ctx, detections)
	span.SetAttributes(
		attribute.Int("pii.category_count", len(seen)),
		attribute.Int("pii.detection_count", len(detections)),
	)
	return detections
}
