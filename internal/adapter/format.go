// Package adapter reads text, CSV and JSON inputs, runs every text unit
// through the redaction engine, and writes the redacted result.
package adapter

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dativo-io/piiredact/internal/classifier"
	"github.com/dativo-io/piiredact/internal/policy"
)

// Format is an input file format.
type Format string

const (
	FormatAuto Format = "auto"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Formats lists the accepted --format values.
var Formats = []Format{FormatAuto, FormatCSV, FormatJSON, FormatText}

var extensionFormats = map[string]Format{
	".csv":  FormatCSV,
	".json": FormatJSON,
	".txt":  FormatText,
	".md":   FormatText,
}

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return FormatAuto, nil
	}
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown format %q (want auto, csv, json or text)", s)
}

// DetectFormat picks a format from the file extension. Unknown extensions
// are treated as text.
func DetectFormat(path string) Format {
	if f, ok := extensionFormats[strings.ToLower(filepath.Ext(path))]; ok {
		return f
	}
	return FormatText
}

// ResolveFormat returns f, or the format detected from path when f is auto.
func ResolveFormat(f Format, path string) Format {
	if f == "" || f == FormatAuto {
		return DetectFormat(path)
	}
	return f
}

// Processor redacts one text unit under a sector resolution.
type Processor interface {
	ProcessResolved(ctx context.Context, text string, res policy.Resolution) (string, classifier.Stats)
}

// Summary aggregates the outcome of one adapter run.
type Summary struct {
	Format           Format           `json:"format"`
	Stats            classifier.Stats `json:"stats"`
	Units            int              `json:"units"`
	RowsProcessed    int              `json:"rows_processed,omitempty"`
	ColumnsProcessed int              `json:"columns_processed,omitempty"`
}

func newSummary(f Format) Summary {
	return Summary{Format: f, Stats: classifier.NewStats()}
}

func (s *Summary) add(stats classifier.Stats) {
	s.Stats.Add(stats)
	s.Units++
}
