package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dativo-io/piiredact/internal/adapter"
	"github.com/dativo-io/piiredact/internal/audit"
	"github.com/dativo-io/piiredact/internal/classifier"
	"github.com/dativo-io/piiredact/internal/config"
	"github.com/dativo-io/piiredact/internal/engine"
	"github.com/dativo-io/piiredact/internal/policy"
)

var (
	redactInput   string
	redactOutput  string
	redactSector  string
	redactFormat  string
	redactReport  string
	redactConfig  string
	redactWorkers int
	redactNoStore bool
)

var redactCmd = &cobra.Command{
	Use:   "redact",
	Short: "Redact PII from a text, CSV or JSON file",
	Example: `  piiredact redact -i patients.csv -o patients.redacted.csv -s clinic -r report.json
  piiredact redact -i notes.txt -o notes.clean.txt -c redaction.yaml`,
	RunE: runRedact,
}

func init() {
	redactCmd.Flags().StringVarP(&redactInput, "input", "i", "", "input file (required)")
	redactCmd.Flags().StringVarP(&redactOutput, "output", "o", "", "output file (required)")
	redactCmd.Flags().StringVarP(&redactSector, "sector", "s", policy.GeneralSector, "sector policy to apply")
	redactCmd.Flags().StringVarP(&redactFormat, "format", "f", string(adapter.FormatAuto), "input format (auto, csv, json, text)")
	redactCmd.Flags().StringVarP(&redactReport, "report", "r", "", "write a JSON redaction report to this path")
	redactCmd.Flags().StringVarP(&redactConfig, "config", "c", "", "redaction config file, JSON or YAML (overrides redaction_config)")
	redactCmd.Flags().IntVar(&redactWorkers, "workers", 0, "parallel workers for CSV rows (default: operator config)")
	redactCmd.Flags().BoolVar(&redactNoStore, "no-store", false, "do not persist the signed report to the report store")
	_ = redactCmd.MarkFlagRequired("input")
	_ = redactCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(redactCmd)
}

func runRedact(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "redact")
	defer span.End()

	format, err := adapter.ParseFormat(redactFormat)
	if err != nil {
		return err
	}
	if same, _ := samePath(redactInput, redactOutput); same {
		return fmt.Errorf("output must differ from input")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	eng, err := newEngine(ctx, cfg, redactConfig)
	if err != nil {
		return err
	}

	res := eng.Resolve(redactSector)
	if res.Fallback() {
		log.Warn().Str("requested", res.Requested).Str("sector", res.Sector).Msg("unknown_sector_using_general")
	}
	span.SetAttributes(
		attribute.String("pii.sector", res.Sector),
		attribute.Bool("pii.strict", res.Strict),
	)

	workers := redactWorkers
	if workers <= 0 {
		workers = cfg.Workers
	}
	sum, err := adapter.RedactFile(ctx, eng, res, redactInput, redactOutput, adapter.Options{
		Format:  format,
		Workers: workers,
	})
	if err != nil {
		return fmt.Errorf("redacting %s: %w", filepath.Base(redactInput), err)
	}

	snap := eng.DrainAudit()
	rep := audit.BuildReport(audit.ReportParams{
		Sector:           res.Sector,
		StrictMode:       res.Strict,
		Input:            filepath.Base(redactInput),
		Files:            1,
		Stats:            sum.Stats,
		RowsProcessed:    sum.RowsProcessed,
		ColumnsProcessed: sum.ColumnsProcessed,
		Entries:          snap.Entries,
		Version:          resolvedVersion(),
	})

	signer, err := audit.NewSigner(cfg.SigningKey)
	if err != nil {
		return fmt.Errorf("creating report signer: %w", err)
	}
	if err := rep.SignWith(signer); err != nil {
		return err
	}

	if !redactNoStore {
		if err := storeReport(ctx, cfg, rep); err != nil {
			// The redacted output is already in place; a store failure only loses the history entry.
			log.Warn().Err(err).Str("report_id", rep.ID).Msg("report_store_failed")
		}
	}
	if redactReport != "" {
		if err := writeReport(redactReport, rep); err != nil {
			return err
		}
		log.Info().Str("report", redactReport).Str("report_id", rep.ID).Msg("report_written")
	}

	renderSummary(cmd.OutOrStdout(), sum, redactOutput, redactReport)
	return nil
}

// redactionConfigPath returns override, or the operator's redaction_config
// when override is empty.
func redactionConfigPath(cfg *config.Config, override string) string {
	if override != "" {
		return override
	}
	return cfg.RedactionConfig
}

// newEngine builds the engine from the redaction config chosen by
// redactionConfigPath.
func newEngine(ctx context.Context, cfg *config.Config, override string) (*engine.Engine, error) {
	rcfg, err := config.LoadRedactionConfig(ctx, redactionConfigPath(cfg, override))
	if err != nil {
		return nil, fmt.Errorf("loading redaction config: %w", err)
	}
	eng, err := engine.New(rcfg)
	if err != nil {
		return nil, fmt.Errorf("initializing engine: %w", err)
	}
	return eng, nil
}

// storeReport signs rep and saves it in the operator's report store.
func storeReport(ctx context.Context, cfg *config.Config, rep *audit.Report) error {
	store, err := openReportStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Save(ctx, rep)
}

// writeReport writes rep as indented JSON.
func writeReport(path string, rep *audit.Report) error {
	data, err := rep.MarshalIndented()
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	err = adapter.WriteFileAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

func samePath(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	if absA == absB {
		return true, nil
	}
	infoA, errA := os.Stat(absA)
	infoB, errB := os.Stat(absB)
	if errA != nil || errB != nil {
		return false, nil
	}
	return os.SameFile(infoA, infoB), nil
}

// renderSummary writes the end-of-run summary to w (testable).
func renderSummary(w io.Writer, sum adapter.Summary, outPath, reportPath string) {
	stats := sum.Stats
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Redaction Summary")
	fmt.Fprintln(w, "─────────────────────────────────────")
	fmt.Fprintf(w, "Total redactions: %d\n", stats.TotalRedactions)
	for _, t := range classifier.Tiers {
		fmt.Fprintf(w, "%s %s %s: %d\n", tierMark(t), t, t.Label(), stats.BySensitivity[t])
	}
	if sum.RowsProcessed > 0 {
		fmt.Fprintf(w, "Rows processed: %d (%d columns)\n", sum.RowsProcessed, sum.ColumnsProcessed)
	}

	if cats := stats.CategoriesInOrder(); len(cats) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Redactions by type:")
		for _, c := range cats {
			fmt.Fprintf(w, "  %s: %d\n", c, stats.ByCategory[c])
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "✓ Redaction completed successfully")
	fmt.Fprintf(w, "Redacted file: %s\n", outPath)
	if reportPath != "" {
		fmt.Fprintf(w, "Report: %s\n", reportPath)
	}
}

func tierMark(t classifier.Tier) string {
	switch t {
	case classifier.TierL1:
		return "🔴"
	case classifier.TierL2:
		return "🟡"
	default:
		return "🟢"
	}
}
