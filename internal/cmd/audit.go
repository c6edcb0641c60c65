package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dativo-io/piiredact/internal/audit"
	"github.com/dativo-io/piiredact/internal/config"
)

var (
	auditSector       string
	auditLimit        int
	auditExportFormat string
	auditExportOutput string
	auditExportSector string
	auditExportLimit  int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query and verify signed redaction reports",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored redaction reports",
	RunE:  auditList,
}

var auditShowCmd = &cobra.Command{
	Use:   "show [report-id]",
	Short: "Print a stored redaction report as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  auditShow,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [report-id]",
	Short: "Verify the HMAC signature of a stored report",
	Args:  cobra.ExactArgs(1),
	RunE:  auditVerify,
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored reports as CSV or JSON for compliance review",
	RunE:  auditExport,
}

func init() {
	auditListCmd.Flags().StringVar(&auditSector, "sector", "", "Filter by sector")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 20, "Maximum reports to show")

	auditExportCmd.Flags().StringVar(&auditExportFormat, "format", "csv", "Export format: csv or json")
	auditExportCmd.Flags().StringVarP(&auditExportOutput, "output", "o", "", "Write to file instead of stdout")
	auditExportCmd.Flags().StringVar(&auditExportSector, "sector", "", "Filter by sector")
	auditExportCmd.Flags().IntVar(&auditExportLimit, "limit", 0, "Maximum reports to export (0 for all)")

	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditExportCmd)
	auditCmd.AddCommand(auditShowCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	rootCmd.AddCommand(auditCmd)
}

func openReportStore(cfg *config.Config) (*audit.Store, error) {
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	cfg.WarnIfDefaultKey()
	store, err := audit.NewStore(cfg.ReportsDBPath(), cfg.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("initializing report store: %w", err)
	}
	return store, nil
}

func loadReportStore() (*audit.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return openReportStore(cfg)
}

func auditList(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	store, err := loadReportStore()
	if err != nil {
		return err
	}
	defer store.Close()

	index, err := store.List(ctx, auditSector, auditLimit)
	if err != nil {
		return fmt.Errorf("querying reports: %w", err)
	}
	renderReportList(cmd.OutOrStdout(), index)
	return nil
}

func auditShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	store, err := loadReportStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rep, err := store.Get(ctx, args[0])
	if errors.Is(err, audit.ErrNotFound) {
		return fmt.Errorf("no report with id %s", args[0])
	}
	if err != nil {
		return err
	}
	data, err := rep.MarshalIndented()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func auditVerify(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	reportID := args[0]

	store, err := loadReportStore()
	if err != nil {
		return err
	}
	defer store.Close()

	valid, err := store.Verify(ctx, reportID)
	if err != nil {
		return fmt.Errorf("verifying report: %w", err)
	}
	renderVerifyResult(cmd.OutOrStdout(), reportID, valid)
	if !valid {
		return fmt.Errorf("signature verification failed for %s", reportID)
	}
	return nil
}

func auditExport(cmd *cobra.Command, args []string) error {
	write, err := exportWriter(auditExportFormat)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	store, err := loadReportStore()
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.Export(ctx, auditExportSector, auditExportLimit)
	if err != nil {
		return fmt.Errorf("exporting reports: %w", err)
	}

	if auditExportOutput == "" {
		return write(cmd.OutOrStdout(), records)
	}
	f, err := os.OpenFile(auditExportOutput, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	if err := write(f, records); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d reports to %s\n", len(records), auditExportOutput)
	return nil
}

func exportWriter(format string) (func(io.Writer, []audit.ExportRecord) error, error) {
	switch format {
	case "csv":
		return audit.WriteCSV, nil
	case "json":
		return audit.WriteJSON, nil
	default:
		return nil, fmt.Errorf("unknown export format %q (want csv or json)", format)
	}
}

// renderReportList writes report index lines to w (testable).
func renderReportList(w io.Writer, index []audit.Index) {
	if len(index) == 0 {
		fmt.Fprintln(w, "No reports found.")
		return
	}
	fmt.Fprintf(w, "Redaction Reports (showing %d):\n\n", len(index))
	for _, entry := range index {
		input := entry.Input
		if input == "" {
			input = "-"
		}
		fmt.Fprintf(w, "  %s | %s | %s | %s | %d redactions\n",
			entry.ID,
			entry.GeneratedAt.UTC().Format("2006-01-02 15:04:05"),
			entry.Sector,
			input,
			entry.TotalRedactions,
		)
	}
}

// renderVerifyResult writes verify outcome to w (testable).
func renderVerifyResult(w io.Writer, reportID string, valid bool) {
	if valid {
		fmt.Fprintf(w, "✓ Report %s: signature VALID (HMAC-SHA256 intact)\n", reportID)
	} else {
		fmt.Fprintf(w, "✗ Report %s: signature INVALID (possible tampering)\n", reportID)
	}
}
