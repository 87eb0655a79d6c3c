package extract

import (
	"strconv"
	"strings"
	"time"
)

// ReportMeta is the document-level context every candidate inherits as a
// fallback: fiscal year, currency, units, consolidation default.
type ReportMeta struct {
	ReportTitle string
	CompanyName string
	Ticker      string
	ReportType  string
	FiscalYear  int
	PeriodEnd   *time.Time
	Currency    string
	Units       string
}

// ExtractReportMeta reads the document head (first three pages) for title,
// company, ticker, fiscal year and units. Annual reports without an explicit
// period date default to fiscal year end.
func ExtractReportMeta(pages []TextPage) ReportMeta {
	var head []string
	for i, page := range pages {
		if i >= 3 {
			break
		}
		head = append(head, page.Lines...)
	}
	headText := strings.Join(head, "\n")

	meta := ReportMeta{}
	meta.Currency, meta.Units = DetectUnits(headText)

	for _, line := range head {
		line = strings.TrimSpace(line)
		lowered := strings.ToLower(line)
		if meta.ReportTitle == "" && (strings.Contains(line, "年度报告") || strings.Contains(line, "年报") || strings.Contains(lowered, "annual report")) {
			meta.ReportTitle = line
		}
		if meta.CompanyName == "" && strings.Contains(line, "公司名称") {
			meta.CompanyName = afterColon(line)
		}
		if meta.Ticker == "" && (strings.Contains(line, "股票代码") || strings.Contains(line, "证券代码")) {
			meta.Ticker = afterColon(line)
		}
		if meta.ReportType == "" && (strings.Contains(line, "年度报告") || strings.Contains(line, "年报")) {
			meta.ReportType = "annual"
		}
	}

	if m := yearRe.FindString(headText); m != "" {
		if y, err := strconv.Atoi(m); err == nil {
			meta.FiscalYear = y
		}
	}

	if d, ok := ParseDateFromText(headText); ok {
		meta.PeriodEnd = &d
	} else if meta.FiscalYear > 0 && meta.ReportType == "annual" {
		end := time.Date(meta.FiscalYear, 12, 31, 0, 0, 0, 0, time.UTC)
		meta.PeriodEnd = &end
	}
	return meta
}

func afterColon(line string) string {
	for _, sep := range []string{"：", ":"} {
		if idx := strings.Index(line, sep); idx >= 0 {
			return strings.TrimSpace(line[idx+len(sep):])
		}
	}
	return strings.TrimSpace(line)
}
