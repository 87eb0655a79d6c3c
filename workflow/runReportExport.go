package workflow

import (
	"fmt"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/finfacts_backend/models"
)

// ExportRunReportXlsx writes the latest run summary of a report to an XLSX
// workbook: one summary sheet, engine counts, consistency checks and the open
// discrepancy queue.
func ExportRunReportXlsx(db *gorm.DB, reportId int, filename string) error {
	summary, err := models.LatestRunSummary(db, reportId)
	if err != nil {
		return err
	}
	discrepancies, err := models.ListDiscrepancies(db, reportId, models.DiscrepancyFilter{})
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	sheet := "Summary"
	f.SetSheetName("Sheet1", sheet)

	f.SetCellValue(sheet, "A1", "ReportId")
	f.SetCellValue(sheet, "B1", summary.ReportId)
	f.SetCellValue(sheet, "A2", "CorrelationId")
	f.SetCellValue(sheet, "B2", summary.CorrelationId)
	f.SetCellValue(sheet, "A3", "TotalGroups")
	f.SetCellValue(sheet, "B3", summary.TotalGroups)
	f.SetCellValue(sheet, "A4", "MultiEngineGroups")
	f.SetCellValue(sheet, "B4", summary.MultiEngineGroups)
	f.SetCellValue(sheet, "A5", "AgreedGroups")
	f.SetCellValue(sheet, "B5", summary.AgreedGroups)
	f.SetCellValue(sheet, "A6", "AgreementRate")
	f.SetCellValue(sheet, "B6", summary.AgreementRate)
	f.SetCellValue(sheet, "A7", "Unresolved")
	f.SetCellValue(sheet, "B7", summary.Unresolved)
	f.SetCellValue(sheet, "A8", "SingleEngine")
	f.SetCellValue(sheet, "B8", summary.SingleEngine)
	f.SetCellValue(sheet, "A9", "VerifiedKept")
	f.SetCellValue(sheet, "B9", summary.VerifiedKept)
	f.SetCellValue(sheet, "A10", "UnmatchedRate")
	f.SetCellValue(sheet, "B10", summary.UnmatchedRate)
	f.SetCellValue(sheet, "A11", "FinishedAt")
	f.SetCellValue(sheet, "B11", summary.FinishedAt.Format("2006-01-02 15:04:05"))

	engines := "Engines"
	if _, err := f.NewSheet(engines); err != nil {
		return err
	}
	f.SetCellValue(engines, "A1", "Engine")
	f.SetCellValue(engines, "B1", "Candidates")
	f.SetCellValue(engines, "C1", "Unmatched")
	for i, count := range summary.EngineCandidates {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(engines, "A"+row, count.Engine)
		f.SetCellValue(engines, "B"+row, count.Total)
		f.SetCellValue(engines, "C"+row, count.Unmatched)
	}

	checks := "ConsistencyChecks"
	if _, err := f.NewSheet(checks); err != nil {
		return err
	}
	f.SetCellValue(checks, "A1", "Name")
	f.SetCellValue(checks, "B1", "Scope")
	f.SetCellValue(checks, "C1", "Date")
	f.SetCellValue(checks, "D1", "Formula")
	f.SetCellValue(checks, "E1", "Lhs")
	f.SetCellValue(checks, "F1", "Rhs")
	f.SetCellValue(checks, "G1", "Residual")
	f.SetCellValue(checks, "H1", "Status")
	for i, check := range summary.ConsistencyChecks {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(checks, "A"+row, check.Name)
		f.SetCellValue(checks, "B"+row, string(check.Scope))
		f.SetCellValue(checks, "C"+row, check.Date)
		f.SetCellValue(checks, "D"+row, check.Formula)
		f.SetCellValue(checks, "E"+row, check.Lhs)
		f.SetCellValue(checks, "F"+row, check.Rhs)
		f.SetCellValue(checks, "G"+row, check.Residual)
		f.SetCellValue(checks, "H"+row, string(check.Status))
	}

	queue := "Discrepancies"
	if _, err := f.NewSheet(queue); err != nil {
		return err
	}
	f.SetCellValue(queue, "A1", "GroupKey")
	f.SetCellValue(queue, "B1", "MetricCode")
	f.SetCellValue(queue, "C1", "FactType")
	f.SetCellValue(queue, "D1", "Value")
	f.SetCellValue(queue, "E1", "EngineCount")
	for i, fact := range discrepancies {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(queue, "A"+row, fact.GroupKey)
		f.SetCellValue(queue, "B"+row, fact.MetricCode)
		f.SetCellValue(queue, "C"+row, string(fact.FactType))
		if fact.Value.Valid {
			f.SetCellValue(queue, "D"+row, fact.Value.Decimal.String())
		}
		f.SetCellValue(queue, "E"+row, fact.EngineCount)
	}

	return f.SaveAs(filename)
}
