package workflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/finfacts_backend/config"
	"bitbucket.org/mmdatafocus/finfacts_backend/models"
)

const testReportPage = `某某科技股份有限公司 2024年年度报告
单位：元
合并资产负债表
2024年12月31日 2023年12月31日
货币资金 1,000.00 900.00
存货 500.00 450.00
资产总计 1,500.00 1,350.00
`

// writeTestArtifacts lays out a pre-produced engine output tree the way an
// engine without a command template would leave it.
func writeTestArtifacts(t *testing.T, root, engine string) {
	t.Helper()
	pagesDir := filepath.Join(root, engine, "pages")
	if err := os.MkdirAll(pagesDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(pagesDir, "page_1.txt"), []byte(testReportPage), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testIngestConfig(t *testing.T) config.PipelineConfig {
	t.Helper()
	cfg := config.Pipeline()
	cfg.ArtifactRoot = t.TempDir()
	cfg.DictionaryPath = ""
	cfg.BackgroundRulesPath = ""
	cfg.EngineTimeout = 5 * time.Second
	return cfg
}

func writeSourceFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "annual_report.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.7 test source "+t.Name()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIngestWorkflowFromArtifacts(t *testing.T) {
	db := newTestDB(t)
	cfg := testIngestConfig(t)
	writeTestArtifacts(t, cfg.ArtifactRoot, "textengine")
	source := writeSourceFile(t)

	result, err := ProcessIngestWorkflow(context.Background(), db, testLogger(), cfg, IngestInput{
		SourcePath: source,
		Engines:    []string{"textengine"},
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(result.Outcomes) != 1 {
		t.Fatalf("outcomes = %+v", result.Outcomes)
	}
	outcome := result.Outcomes[0]
	if outcome.Status != models.VersionStatusReady || outcome.Err != nil {
		t.Fatalf("outcome = %+v", outcome)
	}
	if outcome.Candidates != 6 {
		t.Errorf("candidates = %d, want 6 (3 rows x 2 columns)", outcome.Candidates)
	}

	report, err := models.GetReportByID(db, result.ReportId)
	if err != nil {
		t.Fatalf("load report: %v", err)
	}
	if report.FiscalYear != 2024 {
		t.Errorf("fiscal year = %d", report.FiscalYear)
	}
	if report.ReportType != "annual" || report.Currency != "CNY" {
		t.Errorf("meta = %s/%s", report.ReportType, report.Currency)
	}
	if report.PeriodEnd == nil || report.PeriodEnd.Format("2006-01-02") != "2024-12-31" {
		t.Errorf("period end = %v", report.PeriodEnd)
	}
	if report.Status != "ready" {
		t.Errorf("status = %s", report.Status)
	}

	candidates, err := models.CandidatesForReport(db, report.ID)
	if err != nil || len(candidates) != 6 {
		t.Fatalf("stored candidates = %d err=%v", len(candidates), err)
	}
	for _, c := range candidates {
		if !c.Matched {
			t.Errorf("candidate %q unexpectedly unmatched", c.RawLabel)
		}
		if c.AsOfDate == nil {
			t.Errorf("candidate %q has no as-of date", c.RawLabel)
		}
	}

	versions, _ := models.VersionsForReport(db, report.ID)
	if len(versions) != 1 || versions[0].Status != models.VersionStatusReady {
		t.Fatalf("versions = %+v", versions)
	}
}

func TestIngestSameSourceReusesReport(t *testing.T) {
	db := newTestDB(t)
	cfg := testIngestConfig(t)
	writeTestArtifacts(t, cfg.ArtifactRoot, "textengine")
	source := writeSourceFile(t)

	ctx := context.Background()
	input := IngestInput{SourcePath: source, Engines: []string{"textengine"}}
	first, err := ProcessIngestWorkflow(ctx, db, testLogger(), cfg, input)
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	second, err := ProcessIngestWorkflow(ctx, db, testLogger(), cfg, input)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if first.ReportId != second.ReportId {
		t.Fatalf("same source must map to one report: %d vs %d", first.ReportId, second.ReportId)
	}

	// Without recompute, candidates accumulate per version.
	candidates, _ := models.CandidatesForReport(db, first.ReportId)
	if len(candidates) != 12 {
		t.Fatalf("candidates = %d, want 12", len(candidates))
	}

	input.Recompute = true
	if _, err := ProcessIngestWorkflow(ctx, db, testLogger(), cfg, input); err != nil {
		t.Fatalf("recompute ingest: %v", err)
	}
	candidates, _ = models.CandidatesForReport(db, first.ReportId)
	if len(candidates) != 6 {
		t.Fatalf("candidates after recompute = %d, want 6", len(candidates))
	}
}

func TestIngestSalvagesArtifactsFromFailedEngine(t *testing.T) {
	db := newTestDB(t)
	cfg := testIngestConfig(t)
	cfg.EngineRetries = 0
	// Command template without {output}: artifacts live in the fixed
	// per-engine directory, where a partial run has already written a page.
	t.Setenv("ENGINE_CMD_CRASHENGINE", "false")
	writeTestArtifacts(t, cfg.ArtifactRoot, "crashengine")
	source := writeSourceFile(t)

	result, err := ProcessIngestWorkflow(context.Background(), db, testLogger(), cfg, IngestInput{
		SourcePath: source,
		Engines:    []string{"crashengine"},
	})
	if err == nil {
		t.Fatalf("expected workflow error when the only engine fails")
	}
	if result == nil || len(result.Outcomes) != 1 {
		t.Fatalf("result = %+v", result)
	}
	outcome := result.Outcomes[0]
	if outcome.Status != models.VersionStatusFailed || outcome.Err == nil {
		t.Fatalf("outcome = %+v", outcome)
	}
	if outcome.Candidates != 6 {
		t.Errorf("salvaged candidates = %d, want 6", outcome.Candidates)
	}

	// Partial output stays consumable even though the version is failed.
	candidates, err := models.CandidatesForReport(db, result.ReportId)
	if err != nil || len(candidates) != 6 {
		t.Fatalf("stored candidates = %d err=%v", len(candidates), err)
	}
	versions, _ := models.VersionsForReport(db, result.ReportId)
	if len(versions) != 1 || versions[0].Status != models.VersionStatusFailed {
		t.Fatalf("versions = %+v", versions)
	}

	var ingestErrors []models.IngestError
	if err := db.Find(&ingestErrors).Error; err != nil || len(ingestErrors) != 1 {
		t.Fatalf("ingest errors = %+v err=%v", ingestErrors, err)
	}
	if ingestErrors[0].Stage != "engine_invoke" {
		t.Errorf("stage = %s", ingestErrors[0].Stage)
	}
}

func TestIngestFailsWhenNoEngineProduces(t *testing.T) {
	db := newTestDB(t)
	cfg := testIngestConfig(t)
	source := writeSourceFile(t)

	result, err := ProcessIngestWorkflow(context.Background(), db, testLogger(), cfg, IngestInput{
		SourcePath: source,
		Engines:    []string{"missing"},
	})
	if err == nil {
		t.Fatalf("expected failure when the only engine has no artifacts")
	}
	if result == nil || len(result.Outcomes) != 1 || result.Outcomes[0].Status != models.VersionStatusFailed {
		t.Fatalf("result = %+v", result)
	}

	// The failure leaves an audit trail and a terminal failed version.
	var ingestErrors []models.IngestError
	if err := db.Find(&ingestErrors).Error; err != nil || len(ingestErrors) != 1 {
		t.Fatalf("ingest errors = %+v err=%v", ingestErrors, err)
	}
	if ingestErrors[0].Stage != "artifact_discovery" {
		t.Errorf("stage = %s", ingestErrors[0].Stage)
	}
	versions, _ := models.VersionsForReport(db, result.ReportId)
	if len(versions) != 1 || versions[0].Status != models.VersionStatusFailed {
		t.Fatalf("versions = %+v", versions)
	}
}

func TestIngestMissingSourceFile(t *testing.T) {
	db := newTestDB(t)
	cfg := testIngestConfig(t)
	if _, err := ProcessIngestWorkflow(context.Background(), db, testLogger(), cfg, IngestInput{
		SourcePath: filepath.Join(t.TempDir(), "nope.pdf"),
	}); err == nil {
		t.Fatalf("expected error for unreadable source")
	}
}
