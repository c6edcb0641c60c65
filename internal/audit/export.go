package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dativo-io/piiredact/internal/classifier"
)

// ExportRecord is one stored report flattened for compliance export.
// Used by `piiredact audit export --format csv|json`.
type ExportRecord struct {
	ID              string    `json:"id"`
	GeneratedAt     time.Time `json:"generated_at"`
	Sector          string    `json:"sector"`
	StrictMode      bool      `json:"strict_mode"`
	Input           string    `json:"input,omitempty"`
	TotalRedactions int       `json:"total_redactions"`
	L1              int       `json:"l1"`
	L2              int       `json:"l2"`
	L3              int       `json:"l3"`
	Categories      []string  `json:"categories,omitempty"`
	SignatureValid  bool      `json:"signature_valid"`
}

// ExportHeader is the CSV header row written by WriteCSV.
var ExportHeader = []string{
	"id", "generated_at", "sector", "strict_mode", "input",
	"total_redactions", "l1", "l2", "l3", "categories", "signature_valid",
}

// ToExportRecord flattens r. valid is the outcome of signature verification.
func ToExportRecord(r *Report, valid bool) ExportRecord {
	rec := ExportRecord{
		ID:              r.ID,
		GeneratedAt:     r.Metadata.GeneratedAt,
		Sector:          r.Sector,
		StrictMode:      r.StrictMode,
		Input:           r.Input,
		TotalRedactions: r.Statistics.TotalRedactions,
		L1:              r.Statistics.BySensitivity[classifier.TierL1],
		L2:              r.Statistics.BySensitivity[classifier.TierL2],
		L3:              r.Statistics.BySensitivity[classifier.TierL3],
		SignatureValid:  valid,
	}
	for _, c := range r.Statistics.CategoriesInOrder() {
		rec.Categories = append(rec.Categories, string(c))
	}
	return rec
}

// Export loads the reports matched by List and flattens them, verifying
// each signature on the way.
func (s *Store) Export(ctx context.Context, sector string, limit int) ([]ExportRecord, error) {
	ctx, span := tracer.Start(ctx, "audit.export")
	defer span.End()

	index, err := s.List(ctx, sector, limit)
	if err != nil {
		return nil, err
	}
	records := make([]ExportRecord, 0, len(index))
	for _, idx := range index {
		r, err := s.Get(ctx, idx.ID)
		if err != nil {
			return nil, err
		}
		valid, err := r.VerifyWith(s.signer)
		if err != nil {
			return nil, fmt.Errorf("verifying report %s: %w", idx.ID, err)
		}
		records = append(records, ToExportRecord(r, valid))
	}
	return records, nil
}

// WriteCSV writes records with ExportHeader. Categories are joined with ";".
func WriteCSV(w io.Writer, records []ExportRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.ID,
			r.GeneratedAt.UTC().Format(time.RFC3339),
			r.Sector,
			strconv.FormatBool(r.StrictMode),
			r.Input,
			strconv.Itoa(r.TotalRedactions),
			strconv.Itoa(r.L1),
			strconv.Itoa(r.L2),
			strconv.Itoa(r.L3),
			strings.Join(r.Categories, ";"),
			strconv.FormatBool(r.SignatureValid),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes records as an indented JSON array.
func WriteJSON(w io.Writer, records []ExportRecord) error {
	if records == nil {
		records = []ExportRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}
