package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"bitbucket.org/mmdatafocus/finfacts_backend/config"
	"bitbucket.org/mmdatafocus/finfacts_backend/models"
	"bitbucket.org/mmdatafocus/finfacts_backend/utils"
	"bitbucket.org/mmdatafocus/finfacts_backend/workflow"
)

func main() {
	sourcePath := flag.String("path", "", "Required: path to the report source file")
	engines := flag.String("engines", "", "Optional: comma-separated engines to run (defaults to PIPELINE_ENGINES)")
	recompute := flag.Bool("recompute", false, "Drop previous candidates for the selected engines first")
	resolve := flag.Bool("resolve", true, "Run consensus resolution after ingestion")
	flag.Parse()

	if strings.TrimSpace(*sourcePath) == "" {
		fmt.Fprintln(os.Stderr, "--path is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	models.MigrateTable()
	logger := config.GetLogger()

	var engineList []string
	for _, engine := range strings.Split(*engines, ",") {
		if engine = strings.TrimSpace(engine); engine != "" {
			engineList = append(engineList, engine)
		}
	}

	ctx := utils.SetCorrelationIdInContext(context.Background(), uuid.NewString())
	cfg := config.Pipeline()

	result, err := workflow.ProcessIngestWorkflow(ctx, db, logger, cfg, workflow.IngestInput{
		SourcePath: strings.TrimSpace(*sourcePath),
		Engines:    engineList,
		Recompute:  *recompute,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingest failed: %v\n", err)
		os.Exit(1)
	}
	for _, outcome := range result.Outcomes {
		fmt.Printf("engine=%s version=%d status=%s candidates=%d\n",
			outcome.Engine, outcome.VersionId, outcome.Status, outcome.Candidates)
	}

	if *resolve {
		summary, err := workflow.ProcessResolveWorkflow(ctx, db, logger, cfg, result.ReportId)
		if err != nil {
			fmt.Fprintf(os.Stderr, "resolve failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("groups=%d agreed=%d unresolved=%d agreement_rate=%.4f\n",
			summary.TotalGroups, summary.AgreedGroups, summary.Unresolved, summary.AgreementRate)
	}

	fmt.Printf("report_id=%d\n", result.ReportId)
}
