// Package doctor provides health checks for a piiredact installation.
// Used by `piiredact doctor` before running batch jobs or serve.
package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/dativo-io/piiredact/internal/audit"
	"github.com/dativo-io/piiredact/internal/classifier"
	"github.com/dativo-io/piiredact/internal/config"
)

// Check statuses, from best to worst.
const (
	StatusPass = "pass"
	StatusWarn = "warn"
	StatusFail = "fail"
)

// CheckResult is a single doctor check outcome.
type CheckResult struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

// Summary tallies pass/warn/fail counts.
type Summary struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
}

// Report is the complete doctor output.
type Report struct {
	Status  string        `json:"status"` // worst of all checks
	Checks  []CheckResult `json:"checks"`
	Summary Summary       `json:"summary"`
}

// Options controls which checks run.
type Options struct {
	// RedactionConfigPath overrides the operator's redaction_config.
	RedactionConfigPath string
}

// Run executes all doctor checks and returns a report.
func Run(ctx context.Context, opts Options) *Report {
	report := &Report{}

	cfg, err := config.Load()
	if err != nil {
		report.Checks = append(report.Checks, CheckResult{
			Name: "config_load", Category: "config", Status: StatusFail,
			Message: fmt.Sprintf("Cannot load config: %v", err),
			Fix:     "Check PIIREDACT_* env vars and piiredact.config.yaml",
		})
	} else {
		report.Checks = append(report.Checks, checkDataDir(cfg))
		report.Checks = append(report.Checks, checkSigningKey(cfg))
		report.Checks = append(report.Checks, checkAPIKeys(cfg))
		report.Checks = append(report.Checks, checkReportDB(ctx, cfg))
	}

	registry, regCheck := checkCatalog()
	report.Checks = append(report.Checks, regCheck)

	path := opts.RedactionConfigPath
	if path == "" && cfg != nil {
		path = cfg.RedactionConfig
	}
	report.Checks = append(report.Checks, checkRedactionConfig(ctx, path, registry)...)
	report.Checks = append(report.Checks, checkSystem())

	report.tally()
	return report
}

func (r *Report) tally() {
	for _, c := range r.Checks {
		switch c.Status {
		case StatusPass:
			r.Summary.Pass++
		case StatusWarn:
			r.Summary.Warn++
		case StatusFail:
			r.Summary.Fail++
		}
	}

	r.Status = StatusPass
	if r.Summary.Warn > 0 {
		r.Status = StatusWarn
	}
	if r.Summary.Fail > 0 {
		r.Status = StatusFail
	}
}

func checkDataDir(cfg *config.Config) CheckResult {
	if err := cfg.EnsureDataDir(); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: StatusFail,
			Message: fmt.Sprintf("%s: %v", cfg.DataDir, err),
			Fix:     "Ensure directory exists and is writable",
		}
	}
	testFile := filepath.Join(cfg.DataDir, ".doctor-write-test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: StatusFail,
			Message: fmt.Sprintf("%s not writable: %v", cfg.DataDir, err),
		}
	}
	_ = os.Remove(testFile)
	return CheckResult{
		Name: "data_dir_writable", Category: "config", Status: StatusPass,
		Message: fmt.Sprintf("%s (writable)", cfg.DataDir),
	}
}

func checkSigningKey(cfg *config.Config) CheckResult {
	if cfg.UsingDefaultSigningKey() {
		return CheckResult{
			Name: "signing_key", Category: "config", Status: StatusWarn,
			Message: "Using generated default", Fix: "Set PIIREDACT_SIGNING_KEY for production",
		}
	}
	return CheckResult{Name: "signing_key", Category: "config", Status: StatusPass, Message: "Configured"}
}

func checkAPIKeys(cfg *config.Config) CheckResult {
	if len(cfg.APIKeys) == 0 {
		return CheckResult{
			Name: "api_keys", Category: "config", Status: StatusWarn,
			Message: "No API keys: serve accepts unauthenticated requests",
			Fix:     "Set PIIREDACT_API_KEYS before exposing serve",
		}
	}
	return CheckResult{
		Name: "api_keys", Category: "config", Status: StatusPass,
		Message: fmt.Sprintf("%d key(s)", len(cfg.APIKeys)),
	}
}

func checkReportDB(ctx context.Context, cfg *config.Config) CheckResult {
	store, err := audit.NewStore(cfg.ReportsDBPath(), cfg.SigningKey)
	if err != nil {
		return CheckResult{
			Name: "report_db", Category: "config", Status: StatusFail,
			Message: err.Error(),
		}
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	index, err := store.List(ctx, "", 0)
	if err != nil {
		return CheckResult{
			Name: "report_db", Category: "config", Status: StatusFail,
			Message: fmt.Sprintf("%s: %v", cfg.ReportsDBPath(), err),
		}
	}
	return CheckResult{
		Name: "report_db", Category: "config", Status: StatusPass,
		Message: fmt.Sprintf("%s (%d reports)", cfg.ReportsDBPath(), len(index)),
	}
}

func checkCatalog() (*classifier.Registry, CheckResult) {
	registry, err := classifier.NewRegistry()
	if err != nil {
		return nil, CheckResult{
			Name: "pii_catalog", Category: "engine", Status: StatusFail,
			Message: err.Error(),
		}
	}
	return registry, CheckResult{
		Name: "pii_catalog", Category: "engine", Status: StatusPass,
		Message: fmt.Sprintf("%d categories compiled (%d universal)", len(registry.Categories()), len(registry.Universal())),
	}
}

func checkRedactionConfig(ctx context.Context, path string, registry *classifier.Registry) []CheckResult {
	label := path
	if label == "" {
		label = "embedded defaults"
	}
	rcfg, err := config.LoadRedactionConfig(ctx, path)
	if err != nil {
		return []CheckResult{{
			Name: "redaction_config", Category: "engine", Status: StatusFail,
			Message: fmt.Sprintf("%s: %v", label, err),
			Fix:     "Fix the file or unset PIIREDACT_REDACTION_CONFIG",
		}}
	}
	results := []CheckResult{{
		Name: "redaction_config", Category: "engine", Status: StatusPass,
		Message: fmt.Sprintf("%s (%d sectors)", label, len(rcfg.Sectors)),
	}}
	if registry == nil {
		return results
	}

	ids := make([]string, 0, len(rcfg.Sectors))
	for id := range rcfg.Sectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		var unknown []string
		for _, raw := range rcfg.Sectors[id].AdditionalPatterns {
			if _, ok := registry.Get(classifier.Category(raw)); !ok {
				unknown = append(unknown, raw)
			}
		}
		if len(unknown) > 0 {
			results = append(results, CheckResult{
				Name: "sector_" + id, Category: "engine", Status: StatusWarn,
				Message: fmt.Sprintf("unknown categories ignored: %v", unknown),
				Fix:     "Remove them from additional_patterns",
			})
		}
	}
	if rcfg.ScanAllCategories {
		results = append(results, CheckResult{
			Name: "scan_all_categories", Category: "engine", Status: StatusWarn,
			Message: "Every sector scans all categories",
			Fix:     "Set scan_all_categories: false to filter by sector",
		})
	}
	return results
}

func checkSystem() CheckResult {
	return CheckResult{
		Name: "runtime", Category: "system", Status: StatusPass,
		Message: fmt.Sprintf("%s %s/%s, %d CPUs", runtime.Version(), runtime.GOOS, runtime.GOARCH, runtime.NumCPU()),
	}
}
