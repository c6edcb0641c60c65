package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/piiredact/internal/audit"
)

func TestAuditCmd_HasSubcommands(t *testing.T) {
	expected := []string{"list", "show", "verify", "export"}
	registered := make(map[string]bool)
	for _, cmd := range auditCmd.Commands() {
		registered[cmd.Name()] = true
	}
	for _, name := range expected {
		assert.True(t, registered[name], "audit subcommand %q should be registered", name)
	}
}

func TestAuditVerifyCmd_RequiresOneArg(t *testing.T) {
	for _, c := range []struct {
		name string
		args func([]string) error
	}{
		{"verify", func(a []string) error { return auditVerifyCmd.Args(auditVerifyCmd, a) }},
		{"show", func(a []string) error { return auditShowCmd.Args(auditShowCmd, a) }},
	} {
		t.Run(c.name, func(t *testing.T) {
			assert.Error(t, c.args([]string{}))
			assert.NoError(t, c.args([]string{"rpt_123"}))
		})
	}
}

func TestAuditListCmd_Flags(t *testing.T) {
	for _, name := range []string{"sector", "limit"} {
		assert.NotNil(t, auditListCmd.Flags().Lookup(name), "audit list flag %q should be registered", name)
	}
	flag := auditListCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "20", flag.DefValue)
}

func TestRenderReportList(t *testing.T) {
	var buf bytes.Buffer
	ts := time.Date(2025, 2, 18, 10, 0, 0, 0, time.UTC)
	index := []audit.Index{
		{ID: "rpt_1", GeneratedAt: ts, Sector: "clinic", Input: "patients.csv", TotalRedactions: 12},
		{ID: "rpt_2", GeneratedAt: ts, Sector: "serve", TotalRedactions: 0},
	}
	renderReportList(&buf, index)
	out := buf.String()
	assert.Contains(t, out, "Redaction Reports (showing 2)")
	assert.Contains(t, out, "rpt_1 | 2025-02-18 10:00:00 | clinic | patients.csv | 12 redactions")
	assert.Contains(t, out, "rpt_2 | 2025-02-18 10:00:00 | serve | - | 0 redactions")
}

func TestRenderReportList_Empty(t *testing.T) {
	var buf bytes.Buffer
	renderReportList(&buf, nil)
	assert.Equal(t, "No reports found.\n", buf.String())
}

func TestRenderVerifyResult(t *testing.T) {
	var buf bytes.Buffer
	renderVerifyResult(&buf, "rpt_abc", true)
	assert.Contains(t, buf.String(), "rpt_abc")
	assert.Contains(t, buf.String(), "VALID")

	buf.Reset()
	renderVerifyResult(&buf, "rpt_xyz", false)
	assert.Contains(t, buf.String(), "INVALID")
}

func TestAuditShow_UnknownReport(t *testing.T) {
	setupCLI(t)
	_, err := runCLI(t, "audit", "show", "rpt_missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no report with id rpt_missing")
}

func TestAuditList_EmptyStore(t *testing.T) {
	setupCLI(t)
	out, err := runCLI(t, "audit", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No reports found.")
}

func TestAuditExportCmd_Flags(t *testing.T) {
	for _, name := range []string{"format", "output", "sector", "limit"} {
		assert.NotNil(t, auditExportCmd.Flags().Lookup(name), "audit export flag %q should be registered", name)
	}
	assert.Equal(t, "csv", auditExportCmd.Flags().Lookup("format").DefValue)
}

func TestAuditExport_UnknownFormat(t *testing.T) {
	setupCLI(t)
	_, err := runCLI(t, "audit", "export", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown export format")
}

func TestAuditExport_EmptyStoreWritesHeader(t *testing.T) {
	setupCLI(t)
	out, err := runCLI(t, "audit", "export")
	require.NoError(t, err)
	assert.Equal(t, strings.Join(audit.ExportHeader, ",")+"\n", out)
}
