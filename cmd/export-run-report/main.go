package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/finfacts_backend/config"
	"bitbucket.org/mmdatafocus/finfacts_backend/workflow"
)

func main() {
	reportID := flag.Int("report-id", 0, "Required: report id")
	out := flag.String("out", "", "Optional: output path (default run_report_<id>.xlsx)")
	flag.Parse()

	if *reportID <= 0 {
		fmt.Fprintln(os.Stderr, "--report-id is required")
		os.Exit(1)
	}
	filename := strings.TrimSpace(*out)
	if filename == "" {
		filename = fmt.Sprintf("run_report_%d.xlsx", *reportID)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	if err := workflow.ExportRunReportXlsx(db, *reportID, filename); err != nil {
		fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", filename)
}
