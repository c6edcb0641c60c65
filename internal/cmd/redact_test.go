package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/piiredact/internal/adapter"
	"github.com/dativo-io/piiredact/internal/audit"
	"github.com/dativo-io/piiredact/internal/classifier"
	"github.com/dativo-io/piiredact/internal/config"
	"github.com/dativo-io/piiredact/internal/policy"
)

const testSigningKey = "cli-test-signing-key-0123456789abcdef"

// setupCLI points the operator config at a fresh data directory and resets
// flag variables left over from earlier executions.
func setupCLI(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("PIIREDACT_DATA_DIR", dir)
	t.Setenv("PIIREDACT_SIGNING_KEY", testSigningKey)
	t.Setenv("PIIREDACT_REDACTION_CONFIG", "")

	redactInput, redactOutput, redactReport, redactConfig = "", "", "", ""
	redactSector = policy.GeneralSector
	redactFormat = string(adapter.FormatAuto)
	redactWorkers = 0
	redactNoStore = false
	sectorsConfig, sectorsFormat = "", "text"
	auditSector, auditLimit = "", 20
	auditExportFormat, auditExportOutput, auditExportSector, auditExportLimit = "csv", "", "", 0
	doctorFormat, doctorConfig = "text", ""
	return dir
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRedactCmd_Flags(t *testing.T) {
	tests := []struct {
		name      string
		shorthand string
	}{
		{"input", "i"},
		{"output", "o"},
		{"sector", "s"},
		{"format", "f"},
		{"report", "r"},
		{"config", "c"},
		{"workers", ""},
		{"no-store", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := redactCmd.Flags().Lookup(tt.name)
			require.NotNil(t, flag, "redact flag %q should be registered", tt.name)
			assert.Equal(t, tt.shorthand, flag.Shorthand)
		})
	}
	assert.Equal(t, "general", redactCmd.Flags().Lookup("sector").DefValue)
	assert.Equal(t, "auto", redactCmd.Flags().Lookup("format").DefValue)
}

func TestRedactCmd_ExampleUsesConfiguredSectors(t *testing.T) {
	cfg, err := config.DefaultRedactionConfig()
	require.NoError(t, err)
	policies := policy.New(classifier.MustNewRegistry(), cfg)

	fields := strings.Fields(redactCmd.Example)
	var named int
	for i, f := range fields {
		if f != "-s" && f != "--sector" || i+1 >= len(fields) {
			continue
		}
		named++
		sector := fields[i+1]
		assert.False(t, policies.Resolve(sector).Fallback(), "example sector %q should be configured", sector)
	}
	assert.Positive(t, named, "example should show a sector")
}

func TestRenderSummary(t *testing.T) {
	stats := classifier.NewStats()
	stats.Count(classifier.Detection{Category: classifier.CategorySSN, Sensitivity: classifier.TierL1})
	stats.Count(classifier.Detection{Category: classifier.CategoryEmail, Sensitivity: classifier.TierL2})
	stats.Count(classifier.Detection{Category: classifier.CategoryEmail, Sensitivity: classifier.TierL2})

	var buf bytes.Buffer
	renderSummary(&buf, adapter.Summary{Format: adapter.FormatCSV, Stats: stats, RowsProcessed: 4, ColumnsProcessed: 3}, "out.csv", "report.json")
	out := buf.String()

	assert.Contains(t, out, "Total redactions: 3")
	assert.Contains(t, out, "L1 Restricted: 1")
	assert.Contains(t, out, "L2 Confidential: 2")
	assert.Contains(t, out, "L3 Internal: 0")
	assert.Contains(t, out, "Rows processed: 4 (3 columns)")
	assert.Contains(t, out, "  ssn: 1")
	assert.Contains(t, out, "  email: 2")
	assert.Less(t, strings.Index(out, "  ssn: 1"), strings.Index(out, "  email: 2"), "categories follow catalog order")
	assert.Contains(t, out, "Redacted file: out.csv")
	assert.Contains(t, out, "Report: report.json")
}

func TestRenderSummary_NoRedactions(t *testing.T) {
	var buf bytes.Buffer
	renderSummary(&buf, adapter.Summary{Format: adapter.FormatText, Stats: classifier.NewStats()}, "out.txt", "")
	out := buf.String()

	assert.Contains(t, out, "Total redactions: 0")
	assert.NotContains(t, out, "Redactions by type")
	assert.NotContains(t, out, "Rows processed")
	assert.NotContains(t, out, "Report:")
}

func TestSamePath(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))

	same, err := samePath(p, filepath.Join(dir, ".", "a.txt"))
	require.NoError(t, err)
	assert.True(t, same)

	same, err = samePath(p, filepath.Join(dir, "b.txt"))
	require.NoError(t, err)
	assert.False(t, same)
}

func TestRedactCmd_TextFileWithReport(t *testing.T) {
	setupCLI(t)
	work := t.TempDir()
	in := filepath.Join(work, "notes.txt")
	outPath := filepath.Join(work, "notes.clean.txt")
	reportPath := filepath.Join(work, "report.json")
	require.NoError(t, os.WriteFile(in, []byte("Contact jane@example.com, SSN 123-45-6789."), 0o600))

	out, err := runCLI(t, "redact", "-i", in, "-o", outPath, "-r", reportPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Total redactions: 2")
	assert.Contains(t, out, "L1 Restricted: 1")
	assert.Contains(t, out, "L2 Confidential: 1")

	redacted, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "Contact ████████@██████.███, SSN ███-██-████.", string(redacted))

	raw, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "jane@example.com")
	assert.NotContains(t, string(raw), "123-45-6789")

	var rep audit.Report
	require.NoError(t, json.Unmarshal(raw, &rep))
	assert.True(t, strings.HasPrefix(rep.ID, "rpt_"))
	assert.Equal(t, "general", rep.Sector)
	assert.Equal(t, "notes.txt", rep.Input)
	assert.Equal(t, 1, rep.Metadata.TotalFilesProcessed)
	assert.Equal(t, 2, rep.Statistics.TotalRedactions)
	assert.Len(t, rep.Log, 2)
	assert.Contains(t, rep.Recommendations, audit.RecommendL1)
	assert.Contains(t, rep.Recommendations, audit.RecommendL2)
	assert.True(t, strings.HasPrefix(rep.Signature, "hmac-sha256:"))

	signer, err := audit.NewSigner(testSigningKey)
	require.NoError(t, err)
	ok, err := rep.VerifyWith(signer)
	require.NoError(t, err)
	assert.True(t, ok, "written report must carry a valid signature")

	listing, err := runCLI(t, "audit", "list")
	require.NoError(t, err)
	assert.Contains(t, listing, rep.ID)

	verified, err := runCLI(t, "audit", "verify", rep.ID)
	require.NoError(t, err)
	assert.Contains(t, verified, "signature VALID")

	exported, err := runCLI(t, "audit", "export", "--format", "json")
	require.NoError(t, err)
	var records []audit.ExportRecord
	require.NoError(t, json.Unmarshal([]byte(exported), &records))
	require.Len(t, records, 1)
	assert.Equal(t, rep.ID, records[0].ID)
	assert.Equal(t, 1, records[0].L1)
	assert.Equal(t, []string{"ssn", "email"}, records[0].Categories)
	assert.True(t, records[0].SignatureValid)
}

func TestRedactCmd_CSVWithSector(t *testing.T) {
	setupCLI(t)
	work := t.TempDir()
	in := filepath.Join(work, "patients.csv")
	outPath := filepath.Join(work, "patients.redacted.csv")
	csvIn := "name,record\nAlice,MRN: 12345678\nBob,\n"
	require.NoError(t, os.WriteFile(in, []byte(csvIn), 0o600))

	out, err := runCLI(t, "redact", "-i", in, "-o", outPath, "-s", "clinic", "--no-store")
	require.NoError(t, err)
	assert.Contains(t, out, "medical_record: 1")
	assert.Contains(t, out, "Rows processed: 2 (2 columns)")

	redacted, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "name,record\nAlice,MRN: ████████\nBob,\n", string(redacted))
}

func TestRedactCmd_GeneralSectorSkipsSectorCategories(t *testing.T) {
	setupCLI(t)
	work := t.TempDir()
	in := filepath.Join(work, "note.txt")
	outPath := filepath.Join(work, "note.out")
	require.NoError(t, os.WriteFile(in, []byte("MRN: 12345678"), 0o600))

	_, err := runCLI(t, "redact", "-i", in, "-o", outPath, "--no-store")
	require.NoError(t, err)

	redacted, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "MRN: 12345678", string(redacted))
}

func TestRedactCmd_Errors(t *testing.T) {
	work := t.TempDir()
	in := filepath.Join(work, "in.txt")
	require.NoError(t, os.WriteFile(in, []byte("hello"), 0o600))

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"unknown format", []string{"redact", "-i", in, "-o", filepath.Join(work, "o.txt"), "-f", "xml"}, "unknown format"},
		{"same input and output", []string{"redact", "-i", in, "-o", in}, "output must differ from input"},
		{"missing input file", []string{"redact", "-i", filepath.Join(work, "nope.txt"), "-o", filepath.Join(work, "o.txt")}, "opening input"},
		{"bad redaction config", []string{"redact", "-i", in, "-o", filepath.Join(work, "o.txt"), "-c", filepath.Join(work, "missing.yaml")}, "loading redaction config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupCLI(t)
			_, err := runCLI(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
