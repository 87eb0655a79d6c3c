package extract

import (
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/finfacts_backend/models"
)

func TestDetectStatementType(t *testing.T) {
	cases := map[string]models.StatementType{
		"合并资产负债表":                   models.StatementTypeBalance,
		"合并利润表（续）":                  models.StatementTypeIncome,
		"现金流量表":                     models.StatementTypeCashflow,
		"Consolidated Cash Flow Statement": models.StatementTypeCashflow,
		"所有者权益变动表":                  models.StatementTypeEquity,
	}
	for in, want := range cases {
		got, ok := DetectStatementType(in)
		if !ok || got != want {
			t.Errorf("DetectStatementType(%q) = %s ok=%v, want %s", in, got, ok, want)
		}
	}
	if _, ok := DetectStatementType("董事会报告"); ok {
		t.Errorf("non-statement heading must not classify")
	}
}

func TestDetectUnits(t *testing.T) {
	currency, unit := DetectUnits("单位：万元 币种：人民币")
	if currency != "CNY" || unit != "10k" {
		t.Errorf("got %s/%s, want CNY/10k", currency, unit)
	}
	currency, unit = DetectUnits("单位：元")
	if currency != "CNY" || unit != "1" {
		t.Errorf("got %s/%s, want CNY/1", currency, unit)
	}
	currency, _ = DetectUnits("in USD thousands")
	if currency != "USD" {
		t.Errorf("got %s, want USD", currency)
	}
}

func TestDetectScopeAndRuleCode(t *testing.T) {
	if got := DetectScope("合并资产负债表"); got != models.ScopeConsolidated {
		t.Errorf("scope = %s, want consolidated", got)
	}
	if got := DetectScope("母公司资产负债表"); got != models.ScopeParent {
		t.Errorf("scope = %s, want parent", got)
	}
	if got := DetectScope("项目"); got != "" {
		t.Errorf("scope = %s, want empty", got)
	}
	if got := DetectRuleCode("【610101】经营活动产生的现金流量"); got != "610101" {
		t.Errorf("rule code = %q, want 610101", got)
	}
	if got := DetectRuleCode("无编码标题"); got != "" {
		t.Errorf("rule code = %q, want empty", got)
	}
}

func TestParseDateFromText(t *testing.T) {
	d, ok := ParseDateFromText("截至2024年12月31日")
	if !ok || d.Year() != 2024 || d.Month() != 12 || d.Day() != 31 {
		t.Fatalf("got %v ok=%v", d, ok)
	}
	d, ok = ParseDateFromText("2023-6-30")
	if !ok || d.Year() != 2023 || d.Month() != 6 || d.Day() != 30 {
		t.Fatalf("got %v ok=%v", d, ok)
	}
	if _, ok := ParseDateFromText("本报告期内"); ok {
		t.Fatalf("no date expected")
	}
}

func TestGuessColumnLabels(t *testing.T) {
	cases := []struct {
		headers []string
		numCols int
		want    []string
	}{
		{[]string{"项目 本期金额 上期金额"}, 2, []string{"current_period", "prior_period"}},
		{[]string{"2024年12月31日 2023年12月31日"}, 2, []string{"2024年12月31", "2023年12月31"}},
		{[]string{"项目 2024年度 2023年度"}, 2, []string{"2024", "2023"}},
		{[]string{"2024年度财务数据"}, 2, []string{"2024", "2023"}},
		{[]string{"项目 金额"}, 3, []string{"col_1", "col_2", "col_3"}},
	}
	for _, tc := range cases {
		got := GuessColumnLabels(tc.headers, tc.numCols)
		if strings.Join(got, ",") != strings.Join(tc.want, ",") {
			t.Errorf("GuessColumnLabels(%v, %d) = %v, want %v", tc.headers, tc.numCols, got, tc.want)
		}
	}
}

func TestDetectTextTablesCashflowPage(t *testing.T) {
	pages := []TextPage{{
		Page: 88,
		Lines: []string{
			"合并现金流量表",
			"2024年度 单位：万元",
			"经营活动产生的现金流量净额 1,200.00 1,100.00",
			"投资活动产生的现金流量净额 (300.00) (250.00)",
			"筹资活动产生的现金流量净额 150.00 120.00",
			"现金及现金等价物净增加额 1,050.00 970.00",
		},
	}}
	tables := DetectTextTables(pages)
	if len(tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(tables))
	}
	table := tables[0]
	if table.StatementType != models.StatementTypeCashflow {
		t.Errorf("statement = %s, want cashflow", table.StatementType)
	}
	if table.Currency != "CNY" || table.Units != "10k" {
		t.Errorf("units = %s/%s, want CNY/10k", table.Currency, table.Units)
	}
	if table.Scope != models.ScopeConsolidated {
		t.Errorf("scope = %s", table.Scope)
	}
	if table.Page != 88 {
		t.Errorf("page = %d, want 88", table.Page)
	}
	if len(table.Grid.ColumnLabels) != 2 || table.Grid.ColumnLabels[0] != "2024" {
		t.Errorf("labels = %v", table.Grid.ColumnLabels)
	}
	if len(table.Grid.Rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(table.Grid.Rows))
	}
	if table.Grid.Rows[1].Label != "投资活动产生的现金流量净额" || table.Grid.Rows[1].Cells[0] != "(300.00)" {
		t.Errorf("row 1 = %+v", table.Grid.Rows[1])
	}
}

func TestDetectTextTablesRejectsNarrative(t *testing.T) {
	pages := []TextPage{{
		Page: 10,
		Lines: []string{
			"经营情况讨论与分析",
			"报告期内公司完成了 12 个项目共 345 项验收，合计投入 6,789 万元，详见后文。",
			"其中第 123 项和第 456 项的支出为 789 万元，均在预算范围内。",
		},
	}}
	if tables := DetectTextTables(pages); len(tables) != 0 {
		t.Fatalf("narrative text must not become a table, got %d", len(tables))
	}
}

func TestDetectTextTablesHeadingCarriesAcrossPageBreak(t *testing.T) {
	pages := []TextPage{
		{Page: 90, Lines: []string{"合并利润表", "单位：元"}},
		{Page: 91, Lines: []string{
			"2024年度 2023年度",
			"营业收入 1,000.00 900.00",
			"营业成本 600.00 540.00",
			"净利润 250.00 210.00",
		}},
	}
	tables := DetectTextTables(pages)
	if len(tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(tables))
	}
	if tables[0].StatementType != models.StatementTypeIncome {
		t.Errorf("statement = %s, want income from the prior-page heading", tables[0].StatementType)
	}
	// The year line is a column header, not a data row.
	if len(tables[0].Grid.Rows) != 3 {
		t.Errorf("rows = %d, want 3", len(tables[0].Grid.Rows))
	}
	if labels := tables[0].Grid.ColumnLabels; len(labels) != 2 || labels[0] != "2024" || labels[1] != "2023" {
		t.Errorf("labels = %v, want [2024 2023]", labels)
	}
}

func TestDetectTextTablesDateHeaderLine(t *testing.T) {
	pages := []TextPage{{
		Page: 30,
		Lines: []string{
			"合并资产负债表",
			"2024年12月31日 2023年12月31日",
			"货币资金 1,000.00 900.00",
			"存货 500.00 450.00",
			"资产总计 1,500.00 1,350.00",
		},
	}}
	tables := DetectTextTables(pages)
	if len(tables) != 1 {
		t.Fatalf("tables = %d, want 1", len(tables))
	}
	table := tables[0]
	if table.StatementType != models.StatementTypeBalance {
		t.Errorf("statement = %s", table.StatementType)
	}
	// The date line is a header, not the first data row.
	if len(table.Grid.Rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(table.Grid.Rows))
	}
	if labels := table.Grid.ColumnLabels; len(labels) != 2 || labels[0] != "2024年12月31" {
		t.Errorf("labels = %v", labels)
	}
}

func TestExtractReportMeta(t *testing.T) {
	pages := []TextPage{{
		Page: 1,
		Lines: []string{
			"某某科技股份有限公司",
			"2024年年度报告",
			"公司名称：某某科技股份有限公司",
			"股票代码：600000",
			"单位：万元",
		},
	}}
	meta := ExtractReportMeta(pages)
	if meta.FiscalYear != 2024 {
		t.Errorf("fiscal year = %d, want 2024", meta.FiscalYear)
	}
	if meta.ReportType != "annual" {
		t.Errorf("report type = %q, want annual", meta.ReportType)
	}
	if meta.CompanyName != "某某科技股份有限公司" {
		t.Errorf("company = %q", meta.CompanyName)
	}
	if meta.Ticker != "600000" {
		t.Errorf("ticker = %q", meta.Ticker)
	}
	if meta.Currency != "CNY" || meta.Units != "10k" {
		t.Errorf("units = %s/%s", meta.Currency, meta.Units)
	}
	if meta.PeriodEnd == nil || meta.PeriodEnd.Year() != 2024 || meta.PeriodEnd.Month() != 12 || meta.PeriodEnd.Day() != 31 {
		t.Errorf("period end = %v, want 2024-12-31 default", meta.PeriodEnd)
	}
}
