package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dativo-io/piiredact/internal/doctor"
)

var (
	doctorFormat string
	doctorConfig string
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run preflight checks (data dir, signing key, report DB, catalog, redaction config)",
	RunE:  runDoctor,
}

func init() {
	doctorCmd.Flags().StringVar(&doctorFormat, "format", "text", "Output format: text or json")
	doctorCmd.Flags().StringVarP(&doctorConfig, "config", "c", "", "redaction config file to check (overrides redaction_config)")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	report := doctor.Run(ctx, doctor.Options{RedactionConfigPath: doctorConfig})

	out := cmd.OutOrStdout()
	switch doctorFormat {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	case "text":
		renderDoctor(out, report)
	default:
		return fmt.Errorf("unknown output format %q (want text or json)", doctorFormat)
	}

	if report.Status == doctor.StatusFail {
		return fmt.Errorf("doctor checks failed")
	}
	return nil
}

// renderDoctor writes one line per check to w (testable).
func renderDoctor(w io.Writer, report *doctor.Report) {
	for _, c := range report.Checks {
		mark := "✓"
		switch c.Status {
		case doctor.StatusWarn:
			mark = "⚠"
		case doctor.StatusFail:
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s: %s\n", mark, c.Name, c.Message)
		if c.Fix != "" && c.Status != doctor.StatusPass {
			fmt.Fprintf(w, "    fix: %s\n", c.Fix)
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d warnings, %d failed\n", report.Summary.Pass, report.Summary.Warn, report.Summary.Fail)
}
