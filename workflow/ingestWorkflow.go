package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/finfacts_backend/config"
	"bitbucket.org/mmdatafocus/finfacts_backend/extract"
	"bitbucket.org/mmdatafocus/finfacts_backend/models"
	"bitbucket.org/mmdatafocus/finfacts_backend/taxonomy"
	"bitbucket.org/mmdatafocus/finfacts_backend/utils"
)

// IngestInput selects what to ingest and with which engines.
type IngestInput struct {
	SourcePath string
	Engines    []string // empty means the configured default set
	Recompute  bool     // drop previous candidates for the selected engines first
}

// EngineOutcome is one engine's terminal result within an ingest run.
type EngineOutcome struct {
	Engine     string
	VersionId  int
	Status     models.VersionStatus
	Candidates int
	Err        error
}

type IngestResult struct {
	ReportId int
	Outcomes []EngineOutcome
}

// ProcessIngestWorkflow runs every requested engine against one report and
// persists the candidates each produced. Engines run concurrently and fail
// independently; the workflow itself fails only when the source is unreadable,
// the dictionary cannot load, or no engine produced anything.
func ProcessIngestWorkflow(ctx context.Context, db *gorm.DB, logger *logrus.Logger, cfg config.PipelineConfig, input IngestInput) (*IngestResult, error) {
	sourceHash, err := utils.Sha256File(input.SourcePath)
	if err != nil {
		config.LogError(logger, "ingestWorkflow.go", "ProcessIngestWorkflow", "Hashing source file", input, err)
		return nil, err
	}

	dict, err := taxonomy.Load(cfg.DictionaryPath, cfg.ShortLabelMaxRunes)
	if err != nil {
		config.LogError(logger, "ingestWorkflow.go", "ProcessIngestWorkflow", "Loading metric dictionary", cfg.DictionaryPath, err)
		return nil, err
	}
	rules, err := taxonomy.LoadBackgroundRules(cfg.BackgroundRulesPath)
	if err != nil {
		config.LogError(logger, "ingestWorkflow.go", "ProcessIngestWorkflow", "Loading background rules", cfg.BackgroundRulesPath, err)
		return nil, err
	}

	report, err := models.GetReportByHash(db, sourceHash)
	if err == utils.ErrorRecordNotFound {
		report = &models.FinancialReport{SourcePath: input.SourcePath, SourceHash: sourceHash}
		if err = db.Create(report).Error; err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	engines := input.Engines
	if len(engines) == 0 {
		engines = cfg.Engines
	}
	if len(engines) == 0 {
		return nil, fmt.Errorf("no extraction engines configured")
	}

	if input.Recompute {
		if err := db.Where("report_id = ? AND engine IN ?", report.ID, engines).
			Delete(&models.FactCandidate{}).Error; err != nil {
			return nil, err
		}
	}

	result := &IngestResult{ReportId: report.ID, Outcomes: make([]EngineOutcome, len(engines))}
	var metaOnce sync.Once

	g, gctx := errgroup.WithContext(ctx)
	for i, engine := range engines {
		i, engine := i, engine
		g.Go(func() error {
			// Each goroutine gets its own copy: gorm mutates the model it updates.
			reportCopy := *report
			outcome := runEngine(gctx, db, logger, cfg, dict, rules, &reportCopy, engine, input.SourcePath, &metaOnce)
			result.Outcomes[i] = outcome
			// Sibling engines keep running; failures surface in the outcome.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	succeeded := 0
	for _, outcome := range result.Outcomes {
		if outcome.Status == models.VersionStatusReady {
			succeeded++
		}
	}
	if succeeded == 0 {
		return result, fmt.Errorf("all engines failed for report %d", report.ID)
	}
	return result, nil
}

// runEngine performs one engine attempt end to end: invoke (when a command
// template exists), discover artifacts, extract tables, build and persist
// candidates, and close the version with a terminal status.
func runEngine(ctx context.Context, db *gorm.DB, logger *logrus.Logger, cfg config.PipelineConfig, dict *taxonomy.Dictionary, rules *taxonomy.BackgroundRules, report *models.FinancialReport, engine, sourcePath string, metaOnce *sync.Once) EngineOutcome {
	artifactDir := engineArtifactDir(cfg, report.SourceHash, engine)
	outcome := EngineOutcome{Engine: engine}

	version, err := models.StartVersion(db, report.ID, engine, artifactDir)
	if err != nil {
		outcome.Status = models.VersionStatusFailed
		outcome.Err = err
		return outcome
	}
	outcome.VersionId = version.ID

	fail := func(stage string, err error) EngineOutcome {
		config.LogError(logger, "ingestWorkflow.go", "runEngine", stage, map[string]any{
			"report_id": report.ID, "engine": engine,
		}, err)
		models.RecordIngestError(ctx, db, models.IngestError{
			SourcePath:   sourcePath,
			ReportId:     &report.ID,
			VersionId:    &version.ID,
			Stage:        stage,
			ErrorMessage: err.Error(),
		})
		_ = models.FinishVersion(db, version.ID, models.VersionStatusFailed, nil, err.Error())
		outcome.Status = models.VersionStatusFailed
		outcome.Err = err
		return outcome
	}

	// An invoke failure is terminal for the version, but partial artifacts the
	// engine managed to write are still consumed below.
	invokeErr := invokeEngine(ctx, cfg, engine, sourcePath, artifactDir)
	if invokeErr != nil {
		config.LogError(logger, "ingestWorkflow.go", "runEngine", "engine_invoke", map[string]any{
			"report_id": report.ID, "engine": engine,
		}, invokeErr)
		models.RecordIngestError(ctx, db, models.IngestError{
			SourcePath:   sourcePath,
			ReportId:     &report.ID,
			VersionId:    &version.ID,
			Stage:        "engine_invoke",
			ErrorMessage: invokeErr.Error(),
		})
	}

	output, err := extract.LoadEngineOutput(artifactDir)
	if err != nil {
		if invokeErr != nil {
			_ = models.FinishVersion(db, version.ID, models.VersionStatusFailed, nil, invokeErr.Error())
			outcome.Status = models.VersionStatusFailed
			outcome.Err = invokeErr
			return outcome
		}
		return fail("artifact_discovery", err)
	}

	meta := extract.ExtractReportMeta(output.Pages)
	metaOnce.Do(func() {
		applyReportMeta(db, logger, report, meta)
	})

	tables := extract.TablesFromOutput(output)
	params := extract.BuildParams{
		ReportId:           report.ID,
		VersionId:          version.ID,
		Engine:             engine,
		FiscalYear:         firstNonZero(report.FiscalYear, meta.FiscalYear),
		DefaultCurrency:    firstNonEmpty(meta.Currency, report.Currency),
		DefaultUnit:        firstNonEmpty(meta.Units, report.Units),
		DefaultScope:       models.ScopeConsolidated,
		MinDistinctMetrics: cfg.MinDistinctMetrics,
	}

	var candidates []models.FactCandidate
	for _, table := range tables {
		candidates = append(candidates, extract.BuildCandidates(table, dict, rules, params)...)
	}

	if len(candidates) > 0 {
		if err := db.CreateInBatches(candidates, 200).Error; err != nil {
			return fail("candidate_persist", err)
		}
	}

	summary, _ := json.Marshal(map[string]any{
		"pages":      len(output.Pages),
		"tables":     len(tables),
		"candidates": len(candidates),
	})
	status := models.VersionStatusReady
	errMessage := ""
	if invokeErr != nil {
		status = models.VersionStatusFailed
		errMessage = invokeErr.Error()
	}
	if err := models.FinishVersion(db, version.ID, status, summary, errMessage); err != nil {
		return fail("version_finish", err)
	}

	logger.WithFields(logrus.Fields{
		"report_id":  report.ID,
		"engine":     engine,
		"status":     status,
		"tables":     len(tables),
		"candidates": len(candidates),
	}).Info("Engine ingestion finished")

	outcome.Status = status
	outcome.Candidates = len(candidates)
	outcome.Err = invokeErr
	return outcome
}

// invokeEngine runs the engine's external command when one is configured
// (ENGINE_CMD_<NAME>, {input}/{output} placeholders), retrying transient
// failures once. Engines without a command rely on pre-produced artifacts.
func invokeEngine(ctx context.Context, cfg config.PipelineConfig, engine, sourcePath, artifactDir string) error {
	template := strings.TrimSpace(os.Getenv("ENGINE_CMD_" + strings.ToUpper(engine)))
	if template == "" {
		return nil
	}
	if err := os.MkdirAll(artifactDir, 0o755); err != nil {
		return err
	}

	command := strings.ReplaceAll(template, "{input}", sourcePath)
	command = strings.ReplaceAll(command, "{output}", artifactDir)
	args := strings.Fields(command)
	if len(args) == 0 {
		return fmt.Errorf("empty command template for engine %s", engine)
	}

	attempts := max(cfg.EngineRetries, 0) + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		runCtx, cancel := context.WithTimeout(ctx, cfg.EngineTimeout)
		cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
		out, err := cmd.CombinedOutput()
		cancel()
		if err == nil {
			return nil
		}
		lastErr = fmt.Errorf("engine %s attempt %d: %w: %s", engine, attempt, err, truncate(string(out), 512))
		if ctx.Err() != nil {
			return lastErr
		}
		if attempt < attempts {
			time.Sleep(time.Second)
		}
	}
	return lastErr
}

// engineArtifactDir picks where to look for one engine's output. Command
// templates carrying {output} get a per-report directory; everything else
// falls back to the fixed per-engine root.
func engineArtifactDir(cfg config.PipelineConfig, sourceHash, engine string) string {
	template := os.Getenv("ENGINE_CMD_" + strings.ToUpper(engine))
	if strings.Contains(template, "{output}") {
		return filepath.Join(cfg.ArtifactRoot, sourceHash[:12], engine)
	}
	return filepath.Join(cfg.ArtifactRoot, engine)
}

// applyReportMeta fills report fields the head-page scan produced, without
// overwriting anything already detected by an earlier run.
func applyReportMeta(db *gorm.DB, logger *logrus.Logger, report *models.FinancialReport, meta extract.ReportMeta) {
	updates := map[string]any{}
	if report.ReportTitle == "" && meta.ReportTitle != "" {
		updates["report_title"] = meta.ReportTitle
	}
	if report.CompanyName == "" && meta.CompanyName != "" {
		updates["company_name"] = meta.CompanyName
	}
	if report.Ticker == "" && meta.Ticker != "" {
		updates["ticker"] = meta.Ticker
	}
	if report.ReportType == "" && meta.ReportType != "" {
		updates["report_type"] = meta.ReportType
	}
	if report.FiscalYear == 0 && meta.FiscalYear > 0 {
		updates["fiscal_year"] = meta.FiscalYear
	}
	if report.PeriodEnd == nil && meta.PeriodEnd != nil {
		updates["period_end"] = meta.PeriodEnd
	}
	if report.Currency == "" && meta.Currency != "" {
		updates["currency"] = meta.Currency
	}
	if report.Units == "" && meta.Units != "" {
		updates["units"] = meta.Units
	}
	if meta.Currency != "" && meta.PeriodEnd != nil {
		updates["status"] = "ready"
	}
	if len(updates) == 0 {
		return
	}
	if err := db.Model(report).Updates(updates).Error; err != nil {
		config.LogError(logger, "ingestWorkflow.go", "applyReportMeta", "Updating report metadata", report.ID, err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
