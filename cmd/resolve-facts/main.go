package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"bitbucket.org/mmdatafocus/finfacts_backend/config"
	"bitbucket.org/mmdatafocus/finfacts_backend/utils"
	"bitbucket.org/mmdatafocus/finfacts_backend/workflow"
)

func main() {
	reportID := flag.Int("report-id", 0, "Required: report id to resolve")
	force := flag.Bool("force", false, "Also rewrite manually verified groups")
	flag.Parse()

	if *reportID <= 0 {
		fmt.Fprintln(os.Stderr, "--report-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()

	ctx := utils.SetCorrelationIdInContext(context.Background(), uuid.NewString())
	if *force {
		ctx = utils.SetForceResolveInContext(ctx, true)
	}

	summary, err := workflow.ProcessResolveWorkflow(ctx, db, logger, config.Pipeline(), *reportID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve failed: %v\n", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(out))
}
