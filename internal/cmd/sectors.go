package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dativo-io/piiredact/internal/classifier"
	"github.com/dativo-io/piiredact/internal/config"
	"github.com/dativo-io/piiredact/internal/policy"
)

var (
	sectorsConfig string
	sectorsFormat string
)

var sectorsCmd = &cobra.Command{
	Use:   "sectors",
	Short: "List sector policies and the PII categories each one scans",
	RunE:  runSectors,
}

func init() {
	sectorsCmd.Flags().StringVarP(&sectorsConfig, "config", "c", "", "redaction config file, JSON or YAML (overrides redaction_config)")
	sectorsCmd.Flags().StringVar(&sectorsFormat, "format", "text", "Output format: text or json")
	rootCmd.AddCommand(sectorsCmd)
}

// sectorRow is one line of the sectors listing.
type sectorRow struct {
	ID         string                `json:"id"`
	Strict     bool                  `json:"strict"`
	Categories []classifier.Category `json:"categories"`
}

func runSectors(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "sectors")
	defer span.End()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	eng, err := newEngine(ctx, cfg, sectorsConfig)
	if err != nil {
		return err
	}

	rows := sectorRows(eng.Policies())
	switch sectorsFormat {
	case "json":
		return renderSectorsJSON(cmd.OutOrStdout(), rows, eng.Policies().ScanAll())
	case "text":
		renderSectors(cmd.OutOrStdout(), rows, eng.Policies().ScanAll())
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want text or json)", sectorsFormat)
	}
}

func sectorRows(p *policy.Policies) []sectorRow {
	sectors := p.Sectors()
	rows := make([]sectorRow, 0, len(sectors))
	for _, s := range sectors {
		res := p.Resolve(s.ID)
		rows = append(rows, sectorRow{ID: s.ID, Strict: s.Strict, Categories: res.Categories})
	}
	return rows
}

// renderSectors writes the sector table to w (testable).
func renderSectors(w io.Writer, rows []sectorRow, scanAll bool) {
	fmt.Fprintf(w, "Sectors (%d):\n", len(rows))
	if scanAll {
		fmt.Fprintln(w, "  scan_all_categories is on: every sector scans all categories")
	}
	fmt.Fprintln(w)
	for _, r := range rows {
		mode := ""
		if r.Strict {
			mode = " [strict]"
		}
		names := make([]string, len(r.Categories))
		for i, c := range r.Categories {
			names[i] = string(c)
		}
		fmt.Fprintf(w, "  %s%s\n    %s\n", r.ID, mode, strings.Join(names, ", "))
	}
}

func renderSectorsJSON(w io.Writer, rows []sectorRow, scanAll bool) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		ScanAllCategories bool        `json:"scan_all_categories"`
		Sectors           []sectorRow `json:"sectors"`
	}{scanAll, rows})
}
