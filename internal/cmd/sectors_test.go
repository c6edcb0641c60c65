package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/piiredact/internal/classifier"
)

func TestRenderSectors(t *testing.T) {
	rows := []sectorRow{
		{ID: "clinic", Strict: true, Categories: []classifier.Category{classifier.CategorySSN, classifier.CategoryMedicalRecord}},
		{ID: "general", Categories: []classifier.Category{classifier.CategorySSN}},
	}
	var buf bytes.Buffer
	renderSectors(&buf, rows, false)
	out := buf.String()

	assert.Contains(t, out, "Sectors (2):")
	assert.Contains(t, out, "  clinic [strict]\n    ssn, medical_record\n")
	assert.Contains(t, out, "  general\n    ssn\n")
	assert.NotContains(t, out, "scan_all_categories")
}

func TestRenderSectors_ScanAll(t *testing.T) {
	var buf bytes.Buffer
	renderSectors(&buf, nil, true)
	assert.Contains(t, buf.String(), "scan_all_categories is on")
}

func TestSectorsCmd_JSON(t *testing.T) {
	setupCLI(t)
	out, err := runCLI(t, "sectors", "--format", "json")
	require.NoError(t, err)

	var got struct {
		ScanAll bool        `json:"scan_all_categories"`
		Sectors []sectorRow `json:"sectors"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.False(t, got.ScanAll)

	byID := make(map[string]sectorRow)
	for _, s := range got.Sectors {
		byID[s.ID] = s
	}
	require.Contains(t, byID, "general")
	require.Contains(t, byID, "clinic")
	assert.NotContains(t, byID["general"].Categories, classifier.CategoryMedicalRecord)
	assert.Contains(t, byID["clinic"].Categories, classifier.CategoryMedicalRecord)
	assert.Contains(t, byID["clinic"].Categories, classifier.CategoryPatientID)
	assert.True(t, byID["clinic"].Strict)
}

func TestSectorsCmd_UnknownFormat(t *testing.T) {
	setupCLI(t)
	_, err := runCLI(t, "sectors", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}
