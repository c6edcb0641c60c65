package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dativo-io/piiredact/internal/classifier"
)

// Metadata describes how and when a report was produced.
type Metadata struct {
	GeneratedAt         time.Time `json:"generated_at"`
	RedactorVersion     string    `json:"redactor_version"`
	TotalFilesProcessed int       `json:"total_files_processed"`
}

// Statistics is the redaction_statistics block of a report. Row and column
// counts are only set for tabular input.
type Statistics struct {
	classifier.Stats
	RowsProcessed    int `json:"rows_processed,omitempty"`
	ColumnsProcessed int `json:"columns_processed,omitempty"`
}

// Report is the signed record of one redaction run or one rotation of the
// serve-mode audit log.
type Report struct {
	ID              string     `json:"id"`
	Metadata        Metadata   `json:"report_metadata"`
	Sector          string     `json:"sector"`
	StrictMode      bool       `json:"strict_mode"`
	Input           string     `json:"input,omitempty"`
	Statistics      Statistics `json:"redaction_statistics"`
	Log             []Entry    `json:"redaction_log"`
	Recommendations []string   `json:"recommendations"`
	Signature       string     `json:"signature,omitempty"`
}

// ReportParams holds the inputs for BuildReport.
type ReportParams struct {
	Sector           string
	StrictMode       bool
	Input            string // base name or label of the processed input
	Files            int
	Stats            classifier.Stats
	RowsProcessed    int
	ColumnsProcessed int
	Entries          []Entry
	Version          string
}

// BuildReport assembles an unsigned report with a fresh ID and timestamp.
func BuildReport(p ReportParams) *Report {
	entries := p.Entries
	if entries == nil {
		entries = []Entry{}
	}
	stats := p.Stats.Clone()
	return &Report{
		ID: "rpt_" + uuid.New().String()[:8],
		Metadata: Metadata{
			GeneratedAt:         time.Now().UTC(),
			RedactorVersion:     p.Version,
			TotalFilesProcessed: p.Files,
		},
		Sector:     p.Sector,
		StrictMode: p.StrictMode,
		Input:      p.Input,
		Statistics: Statistics{
			Stats:            stats,
			RowsProcessed:    p.RowsProcessed,
			ColumnsProcessed: p.ColumnsProcessed,
		},
		Log:             entries,
		Recommendations: Recommend(stats),
	}
}

// MarshalIndented renders the report as JSON indented with two spaces.
func (r *Report) MarshalIndented() ([]byte, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling report: %w", err)
	}
	return append(b, '\n'), nil
}

// signingPayload is the report JSON with the signature cleared.
func (r *Report) signingPayload() ([]byte, error) {
	c := *r
	c.Signature = ""
	b, err := json.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("marshaling report for signing: %w", err)
	}
	return b, nil
}

// SignWith sets r.Signature using signer.
func (r *Report) SignWith(signer *Signer) error {
	payload, err := r.signingPayload()
	if err != nil {
		return err
	}
	r.Signature = signer.Sign(payload)
	return nil
}

// VerifyWith reports whether r.Signature matches the report content.
func (r *Report) VerifyWith(signer *Signer) (bool, error) {
	payload, err := r.signingPayload()
	if err != nil {
		return false, err
	}
	return signer.Verify(payload, r.Signature), nil
}
