package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/piiredact/internal/doctor"
)

func TestRenderDoctor(t *testing.T) {
	report := &doctor.Report{
		Status: doctor.StatusFail,
		Checks: []doctor.CheckResult{
			{Name: "data_dir_writable", Status: doctor.StatusPass, Message: "/tmp/x (writable)"},
			{Name: "signing_key", Status: doctor.StatusWarn, Message: "Using generated default", Fix: "Set PIIREDACT_SIGNING_KEY for production"},
			{Name: "report_db", Status: doctor.StatusFail, Message: "locked"},
		},
		Summary: doctor.Summary{Pass: 1, Warn: 1, Fail: 1},
	}
	var buf bytes.Buffer
	renderDoctor(&buf, report)
	out := buf.String()

	assert.Contains(t, out, "✓ data_dir_writable: /tmp/x (writable)")
	assert.Contains(t, out, "⚠ signing_key: Using generated default\n    fix: Set PIIREDACT_SIGNING_KEY")
	assert.Contains(t, out, "✗ report_db: locked")
	assert.Contains(t, out, "1 passed, 1 warnings, 1 failed")
}

func TestDoctorCmd_ShowsChecks(t *testing.T) {
	dir := setupCLI(t)

	out, err := runCLI(t, "doctor")
	require.NoError(t, err)
	assert.Contains(t, out, "data_dir_writable")
	assert.Contains(t, out, dir)
	assert.Contains(t, out, "pii_catalog")
}

func TestDoctorCmd_FailsOnBadRedactionConfig(t *testing.T) {
	setupCLI(t)

	_, err := runCLI(t, "doctor", "-c", "/nonexistent/redaction.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "doctor checks failed")
}
