package workflow

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/finfacts_backend/config"
	"bitbucket.org/mmdatafocus/finfacts_backend/models"
	"bitbucket.org/mmdatafocus/finfacts_backend/utils"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// In-memory sqlite is per-connection; one pooled connection keeps every
	// pinned connection and transaction on the same database.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func seedReport(t *testing.T, db *gorm.DB, engines ...string) *models.FinancialReport {
	t.Helper()
	report := models.FinancialReport{
		SourcePath: "/tmp/annual_report.pdf",
		SourceHash: "hash-" + t.Name(),
		FiscalYear: 2024,
		Currency:   "CNY",
	}
	if err := db.Create(&report).Error; err != nil {
		t.Fatalf("seed report: %v", err)
	}
	for _, engine := range engines {
		version, err := models.StartVersion(db, report.ID, engine, "")
		if err != nil {
			t.Fatalf("seed version: %v", err)
		}
		if err := models.FinishVersion(db, version.ID, models.VersionStatusReady, nil, ""); err != nil {
			t.Fatalf("finish version: %v", err)
		}
	}
	return &report
}

func flowCandidate(reportId int, engine, metric, value string) models.FactCandidate {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	return models.FactCandidate{
		ReportId:      reportId,
		VersionId:     1,
		Engine:        engine,
		MetricCode:    metric,
		Matched:       true,
		StatementType: models.StatementTypeCashflow,
		FactType:      models.FactTypeFlow,
		RawLabel:      metric,
		RawValue:      value,
		Value:         decimal.NullDecimal{Decimal: decimal.RequireFromString(value), Valid: true},
		Currency:      "CNY",
		Unit:          "1",
		Scope:         models.ScopeConsolidated,
		PeriodStart:   &start,
		PeriodEnd:     &end,
		ColumnLabel:   "本期金额",
		QualityScore:  decimal.RequireFromString("1.0"),
	}
}

func mustCreate(t *testing.T, db *gorm.DB, candidates ...models.FactCandidate) {
	t.Helper()
	for i := range candidates {
		if err := db.Create(&candidates[i]).Error; err != nil {
			t.Fatalf("seed candidate: %v", err)
		}
	}
}

func TestResolveTwoEnginesAgree(t *testing.T) {
	db := newTestDB(t)
	report := seedReport(t, db, "mineru", "pdftext")
	mustCreate(t, db,
		flowCandidate(report.ID, "mineru", "revenue", "1000.00"),
		flowCandidate(report.ID, "pdftext", "revenue", "1000.00"),
	)

	summary, err := ProcessResolveWorkflow(context.Background(), db, testLogger(), config.Pipeline(), report.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if summary.TotalGroups != 1 || summary.AgreedGroups != 1 || summary.MultiEngineGroups != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.AgreementRate != 1 {
		t.Errorf("agreement rate = %f, want 1", summary.AgreementRate)
	}

	facts, err := models.ResolvedFactsForReport(db, report.ID)
	if err != nil || len(facts) != 1 {
		t.Fatalf("facts = %v err = %v", facts, err)
	}
	fact := facts[0]
	if fact.Status != models.ResolutionStatusAutoAgreed {
		t.Errorf("status = %s, want auto_agreed", fact.Status)
	}
	if fact.EngineCount != 2 {
		t.Errorf("engine count = %d, want 2", fact.EngineCount)
	}
	if !fact.Value.Valid || !fact.Value.Decimal.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("value = %+v", fact.Value)
	}
	if fact.Method != models.ResolutionMethodConsensus {
		t.Errorf("method = %s", fact.Method)
	}
	if fact.CandidateId == nil {
		t.Errorf("candidate id not recorded")
	}

	// The stored rows alone must reproduce the KPI.
	agreed, multi, err := models.AgreementRate(db, report.ID)
	if err != nil || agreed != 1 || multi != 1 {
		t.Errorf("recomputed rate = %d/%d err=%v", agreed, multi, err)
	}
}

func TestResolveNearEqualValuesAgree(t *testing.T) {
	db := newTestDB(t)
	report := seedReport(t, db, "mineru", "pdftext")
	// Within the absolute tolerance (0.01): still agreement.
	mustCreate(t, db,
		flowCandidate(report.ID, "mineru", "revenue", "1000.004"),
		flowCandidate(report.ID, "pdftext", "revenue", "1000.01"),
	)

	summary, err := ProcessResolveWorkflow(context.Background(), db, testLogger(), config.Pipeline(), report.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if summary.AgreedGroups != 1 || summary.Unresolved != 0 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestResolveSingleEngine(t *testing.T) {
	db := newTestDB(t)
	report := seedReport(t, db, "mineru")
	mustCreate(t, db, flowCandidate(report.ID, "mineru", "revenue", "1000.00"))

	summary, err := ProcessResolveWorkflow(context.Background(), db, testLogger(), config.Pipeline(), report.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if summary.SingleEngine != 1 || summary.MultiEngineGroups != 0 {
		t.Fatalf("summary = %+v", summary)
	}

	facts, _ := models.ResolvedFactsForReport(db, report.ID)
	if len(facts) != 1 || facts[0].Status != models.ResolutionStatusAutoSingleEngine {
		t.Fatalf("facts = %+v", facts)
	}
	if facts[0].EngineCount != 1 {
		t.Errorf("engine count = %d, want 1", facts[0].EngineCount)
	}
}

func TestResolveDisagreementStaysUnresolved(t *testing.T) {
	db := newTestDB(t)
	report := seedReport(t, db, "mineru", "pdftext")
	current := flowCandidate(report.ID, "mineru", "revenue", "1000.00")
	other := flowCandidate(report.ID, "pdftext", "revenue", "2000.00")
	other.ColumnLabel = "col_1"
	mustCreate(t, db, current, other)

	summary, err := ProcessResolveWorkflow(context.Background(), db, testLogger(), config.Pipeline(), report.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if summary.Unresolved != 1 || summary.AgreedGroups != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.MultiEngineGroups != 1 || summary.AgreementRate != 0 {
		t.Fatalf("summary = %+v", summary)
	}

	facts, _ := models.ResolvedFactsForReport(db, report.ID)
	if len(facts) != 1 || facts[0].Status != models.ResolutionStatusUnresolved {
		t.Fatalf("facts = %+v", facts)
	}
	// Ties break toward the reporting period's own column.
	if !facts[0].Value.Decimal.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("value = %s, want the current-period candidate", facts[0].Value.Decimal)
	}
	if facts[0].EngineCount != 2 {
		t.Errorf("engine count = %d, want 2", facts[0].EngineCount)
	}
}

func TestResolveFailsFastWhileIngestRunning(t *testing.T) {
	db := newTestDB(t)
	report := seedReport(t, db, "mineru")
	if _, err := models.StartVersion(db, report.ID, "pdftext", ""); err != nil {
		t.Fatalf("start version: %v", err)
	}

	_, err := ProcessResolveWorkflow(context.Background(), db, testLogger(), config.Pipeline(), report.ID)
	if err != utils.ErrorResolveInProgress {
		t.Fatalf("err = %v, want ErrorResolveInProgress", err)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	report := seedReport(t, db, "mineru", "pdftext")
	mustCreate(t, db,
		flowCandidate(report.ID, "mineru", "revenue", "1000.00"),
		flowCandidate(report.ID, "pdftext", "revenue", "1000.00"),
	)

	ctx := context.Background()
	if _, err := ProcessResolveWorkflow(ctx, db, testLogger(), config.Pipeline(), report.ID); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if _, err := ProcessResolveWorkflow(ctx, db, testLogger(), config.Pipeline(), report.ID); err != nil {
		t.Fatalf("second resolve: %v", err)
	}

	facts, _ := models.ResolvedFactsForReport(db, report.ID)
	if len(facts) != 1 {
		t.Fatalf("expected exactly one fact after re-resolution, got %d", len(facts))
	}
}

func TestVerifiedFactsSurviveReResolution(t *testing.T) {
	db := newTestDB(t)
	report := seedReport(t, db, "mineru", "pdftext")
	preferred := flowCandidate(report.ID, "mineru", "revenue", "1000.00")
	rejected := flowCandidate(report.ID, "pdftext", "revenue", "2000.00")
	mustCreate(t, db, preferred, rejected)

	ctx := context.Background()
	if _, err := ProcessResolveWorkflow(ctx, db, testLogger(), config.Pipeline(), report.ID); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	var candidate models.FactCandidate
	if err := db.Where("engine = ?", "pdftext").First(&candidate).Error; err != nil {
		t.Fatalf("load candidate: %v", err)
	}
	fact, err := ProcessManualResolution(ctx, db, testLogger(), report.ID, ManualResolutionInput{
		CandidateId: candidate.ID,
		Reviewer:    "analyst@example.com",
		Notes:       "second engine matches the printed report",
	})
	if err != nil {
		t.Fatalf("manual resolution: %v", err)
	}
	if fact.Status != models.ResolutionStatusVerified || fact.Method != models.ResolutionMethodManual {
		t.Fatalf("fact = %+v", fact)
	}
	if !fact.Value.Decimal.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("value = %s, want the reviewed candidate's", fact.Value.Decimal)
	}

	// Plain re-resolution keeps the verified row.
	summary, err := ProcessResolveWorkflow(ctx, db, testLogger(), config.Pipeline(), report.ID)
	if err != nil {
		t.Fatalf("re-resolve: %v", err)
	}
	if summary.VerifiedKept != 1 || summary.TotalGroups != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	facts, _ := models.ResolvedFactsForReport(db, report.ID)
	if len(facts) != 1 || facts[0].Status != models.ResolutionStatusVerified {
		t.Fatalf("facts = %+v", facts)
	}
	if facts[0].ReviewedBy != "analyst@example.com" {
		t.Errorf("reviewer = %q", facts[0].ReviewedBy)
	}

	// Forced re-resolution recomputes the group from scratch.
	forced := utils.SetForceResolveInContext(ctx, true)
	summary, err = ProcessResolveWorkflow(forced, db, testLogger(), config.Pipeline(), report.ID)
	if err != nil {
		t.Fatalf("forced resolve: %v", err)
	}
	if summary.VerifiedKept != 0 || summary.TotalGroups != 1 {
		t.Fatalf("forced summary = %+v", summary)
	}
	facts, _ = models.ResolvedFactsForReport(db, report.ID)
	if len(facts) != 1 || facts[0].Status == models.ResolutionStatusVerified {
		t.Fatalf("forced facts = %+v", facts)
	}
	if facts[0].ReviewedBy != "" {
		t.Errorf("forced resolution must clear the review trail, got %q", facts[0].ReviewedBy)
	}
}

func TestManualResolutionValidation(t *testing.T) {
	db := newTestDB(t)
	report := seedReport(t, db, "mineru")

	if _, err := ProcessManualResolution(context.Background(), db, testLogger(), report.ID, ManualResolutionInput{
		CandidateId: 999999,
		Reviewer:    "analyst@example.com",
	}); err != utils.ErrorRecordNotFound {
		t.Fatalf("err = %v, want ErrorRecordNotFound", err)
	}

	mustCreate(t, db, flowCandidate(report.ID, "mineru", "revenue", "1000.00"))
	var candidate models.FactCandidate
	if err := db.First(&candidate).Error; err != nil {
		t.Fatal(err)
	}

	// Reviewer missing from input and context: validation fails.
	if _, err := ProcessManualResolution(context.Background(), db, testLogger(), report.ID, ManualResolutionInput{
		CandidateId: candidate.ID,
	}); err == nil {
		t.Fatalf("expected validation error without a reviewer")
	}

	// Reviewer falls back to the request context.
	ctx := utils.SetReviewerInContext(context.Background(), "reviewer@example.com")
	fact, err := ProcessManualResolution(ctx, db, testLogger(), report.ID, ManualResolutionInput{CandidateId: candidate.ID})
	if err != nil {
		t.Fatalf("manual resolution: %v", err)
	}
	if fact.ReviewedBy != "reviewer@example.com" {
		t.Errorf("reviewer = %q", fact.ReviewedBy)
	}
	if fact.ReviewedAt == nil {
		t.Errorf("reviewed_at not set")
	}
}

func TestManualResolutionOverwriteKeepsCreatedAt(t *testing.T) {
	db := newTestDB(t)
	report := seedReport(t, db, "mineru", "pdftext")
	mustCreate(t, db,
		flowCandidate(report.ID, "mineru", "revenue", "1000.00"),
		flowCandidate(report.ID, "pdftext", "revenue", "2000.00"),
	)
	var candidates []models.FactCandidate
	if err := db.Order("id").Find(&candidates).Error; err != nil || len(candidates) != 2 {
		t.Fatalf("candidates = %d err=%v", len(candidates), err)
	}

	first, err := ProcessManualResolution(context.Background(), db, testLogger(), report.ID, ManualResolutionInput{
		CandidateId: candidates[0].ID,
		Reviewer:    "analyst@example.com",
	})
	if err != nil {
		t.Fatalf("first resolution: %v", err)
	}
	if first.CreatedAt.IsZero() {
		t.Fatalf("created_at not set on first resolution")
	}

	// Resubmitting the same group switches the choice; the row keeps its
	// original creation timestamp.
	second, err := ProcessManualResolution(context.Background(), db, testLogger(), report.ID, ManualResolutionInput{
		CandidateId: candidates[1].ID,
		Reviewer:    "reviewer@example.com",
		Notes:       "engine two reads the restated figure",
	})
	if err != nil {
		t.Fatalf("second resolution: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("overwrite created a new row: %d vs %d", second.ID, first.ID)
	}

	var stored models.ResolvedFact
	if err := db.First(&stored, first.ID).Error; err != nil {
		t.Fatal(err)
	}
	if stored.CreatedAt.IsZero() || !stored.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("created_at = %v, want %v", stored.CreatedAt, first.CreatedAt)
	}
	if stored.CandidateId == nil || *stored.CandidateId != candidates[1].ID {
		t.Errorf("candidate id = %v", stored.CandidateId)
	}
	if stored.ReviewedBy != "reviewer@example.com" {
		t.Errorf("reviewer = %q", stored.ReviewedBy)
	}
}

func TestManualResolutionRejectsForeignCandidate(t *testing.T) {
	db := newTestDB(t)
	mine := seedReport(t, db, "mineru")
	other := models.FinancialReport{SourcePath: "/tmp/other.pdf", SourceHash: "other-hash", FiscalYear: 2024}
	if err := db.Create(&other).Error; err != nil {
		t.Fatal(err)
	}
	mustCreate(t, db, flowCandidate(other.ID, "mineru", "revenue", "1000.00"))
	var candidate models.FactCandidate
	if err := db.First(&candidate).Error; err != nil {
		t.Fatal(err)
	}

	if _, err := ProcessManualResolution(context.Background(), db, testLogger(), mine.ID, ManualResolutionInput{
		CandidateId: candidate.ID,
		Reviewer:    "analyst@example.com",
	}); err == nil {
		t.Fatalf("expected ownership error")
	}
}

func TestRunSummaryPersisted(t *testing.T) {
	db := newTestDB(t)
	report := seedReport(t, db, "mineru", "pdftext")
	mustCreate(t, db,
		flowCandidate(report.ID, "mineru", "revenue", "1000.00"),
		flowCandidate(report.ID, "pdftext", "revenue", "1000.00"),
		flowCandidate(report.ID, "mineru", "raw_abc123def456", "7.00"),
	)
	// The raw candidate is unmatched.
	if err := db.Model(&models.FactCandidate{}).
		Where("metric_code = ?", "raw_abc123def456").
		Update("matched", false).Error; err != nil {
		t.Fatal(err)
	}

	if _, err := ProcessResolveWorkflow(context.Background(), db, testLogger(), config.Pipeline(), report.ID); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	stored, err := models.LatestRunSummary(db, report.ID)
	if err != nil {
		t.Fatalf("load summary: %v", err)
	}
	if stored.TotalGroups != 2 || stored.AgreedGroups != 1 {
		t.Fatalf("stored summary = %+v", stored)
	}
	if stored.UnmatchedRate <= 0 || stored.UnmatchedRate >= 1 {
		t.Errorf("unmatched rate = %f", stored.UnmatchedRate)
	}
	if len(stored.EngineCandidates) != 2 {
		t.Errorf("engine counts = %+v", stored.EngineCandidates)
	}
}
