package extract

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"bitbucket.org/mmdatafocus/finfacts_backend/models"
)

// TextPage is one page of a flat text-with-offsets engine dump.
type TextPage struct {
	Page  int
	Lines []string
}

var statementKeywords = map[models.StatementType][]string{
	models.StatementTypeBalance:  {"资产负债表", "合并资产负债表", "balance sheet", "statement of financial position"},
	models.StatementTypeIncome:   {"利润表", "合并利润表", "income statement", "statement of profit", "statement of operations"},
	models.StatementTypeCashflow: {"现金流量表", "合并现金流量表", "cash flow"},
	models.StatementTypeEquity:   {"所有者权益变动表", "股东权益变动表", "changes in equity"},
}

// unitPatterns resolve (currency, unit multiplier) from table context text.
var unitPatterns = []struct {
	needle   string
	currency string
	unit     string
}{
	{"万元", "CNY", "10k"},
	{"千元", "CNY", "1k"},
	{"元", "CNY", "1"},
	{"人民币", "CNY", ""},
	{"USD", "USD", ""},
	{"美元", "USD", ""},
}

var (
	yearRe     = regexp.MustCompile(`20\d{2}`)
	dateRe     = regexp.MustCompile(`(20\d{2})\s*[年\-/]\s*(\d{1,2})\s*[月\-/]\s*(\d{1,2})`)
	ruleCodeRe = regexp.MustCompile(`[\[【]\s*([0-9]{6}[a-z]?)\s*[\]】]`)
)

// DetectStatementType scans context text for statement headings and routing
// codes resolvable through the background rules.
func DetectStatementType(text string) (models.StatementType, bool) {
	lowered := strings.ToLower(text)
	for _, st := range []models.StatementType{models.StatementTypeBalance, models.StatementTypeIncome, models.StatementTypeCashflow, models.StatementTypeEquity} {
		for _, key := range statementKeywords[st] {
			if strings.Contains(lowered, strings.ToLower(key)) {
				return st, true
			}
		}
	}
	return "", false
}

// DetectRuleCode extracts the first background-rule section code, if any.
func DetectRuleCode(text string) string {
	m := ruleCodeRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

// DetectUnits resolves currency and unit from context. Long narrative lines
// never fall back to being the unit text.
func DetectUnits(text string) (currency string, unit string) {
	for _, p := range unitPatterns {
		if strings.Contains(text, p.needle) {
			if currency == "" && p.currency != "" {
				currency = p.currency
			}
			if unit == "" && p.unit != "" {
				unit = p.unit
			}
		}
	}
	return currency, unit
}

// DetectScope reads the consolidation scope from heading context.
func DetectScope(text string) models.ConsolidationScope {
	if strings.Contains(text, "合并") || strings.Contains(strings.ToLower(text), "consolidated") {
		return models.ScopeConsolidated
	}
	if strings.Contains(text, "母公司") || strings.Contains(strings.ToLower(text), "parent") {
		return models.ScopeParent
	}
	return ""
}

// ParseDateFromText finds the first yyyy[-年/]mm[-月/]dd date.
func ParseDateFromText(text string) (time.Time, bool) {
	m := dateRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	parsed, err := time.Parse("2006-1-2", fmt.Sprintf("%s-%s-%s", m[1], m[2], m[3]))
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// GuessColumnLabels derives value-column labels from header lines: explicit
// current/prior markers first, then trailing years, then a single year with
// its inferred prior, then positional placeholders.
func GuessColumnLabels(headerLines []string, numCols int) []string {
	if numCols <= 0 {
		return nil
	}
	headerText := strings.Join(headerLines, " ")
	dates := dateRe.FindAllString(headerText, -1)
	years := yearRe.FindAllString(headerText, -1)

	var labels []string
	switch {
	case strings.Contains(headerText, "本期") && strings.Contains(headerText, "上期") && numCols >= 2:
		labels = []string{"current_period", "prior_period"}
	case len(dates) >= numCols:
		labels = dates[len(dates)-numCols:]
	case len(years) >= numCols:
		labels = years[len(years)-numCols:]
	case len(years) == 1 && numCols == 2:
		var y int
		fmt.Sscanf(years[0], "%d", &y)
		labels = []string{years[0], fmt.Sprintf("%d", y-1)}
	}
	for len(labels) < numCols {
		labels = append(labels, fmt.Sprintf("col_%d", len(labels)+1))
	}
	return labels[:numCols]
}

var plainYearRe = regexp.MustCompile(`^20\d{2}$`)

// isPeriodHeaderLine reports whether a line's numeric tokens are all plain
// years ("2024年度 2023年度") or full dates ("2024年12月31日 2023年12月31日")
// above a statement block. Such lines are column headers, never data rows.
func isPeriodHeaderLine(line string, cells []Cell) bool {
	if len(cells) == 0 {
		return false
	}
	allYears := true
	for _, cell := range cells {
		if !plainYearRe.MatchString(cell.Raw) {
			allYears = false
			break
		}
	}
	if allYears {
		return strings.Contains(line, "年") || StripNumbers(line) == ""
	}
	residual := dateRe.ReplaceAllString(line, "")
	if residual == line {
		return false
	}
	return !strings.ContainsAny(residual, "0123456789")
}

// DetectTextTables finds table blocks in flat text pages: a run of lines with
// numeric cells becomes a block, the preceding non-row lines its header. The
// original quality filters stay: narrative paragraphs must not be mistaken
// for tables, but an irregular genuine table still degrades to positional
// column labels instead of being rejected.
func DetectTextTables(pages []TextPage) []Table {
	var tables []Table

	type rowLine struct {
		page int
		line string
	}
	var (
		headerBuffer []rowLine
		lastHeading  *rowLine
		currentRows  []rowLine
		currentHdr   []string
	)

	flush := func() {
		defer func() {
			currentRows = nil
			currentHdr = nil
		}()
		if len(currentRows) == 0 {
			return
		}

		var filtered []rowLine
		for _, row := range currentRows {
			label := StripNumbers(row.line)
			if label == "" {
				continue
			}
			// Narrative sentences are not row labels.
			if utf8.RuneCountInString(label) > 60 || strings.ContainsAny(label, "。，") {
				continue
			}
			filtered = append(filtered, row)
		}
		if len(filtered) < 2 {
			return
		}

		maxCols, rowsWithTwo := 0, 0
		for _, row := range filtered {
			n := len(ExtractNumbers(row.line))
			if n > maxCols {
				maxCols = n
			}
			if n >= 2 {
				rowsWithTwo++
			}
		}
		if maxCols < 2 || rowsWithTwo < 2 || rowsWithTwo*2 < len(filtered) {
			return
		}

		headerText := strings.Join(currentHdr, " ")
		statementType, hasStatement := DetectStatementType(headerText)
		headerHasPeriod := yearRe.MatchString(headerText) ||
			strings.Contains(headerText, "本期") || strings.Contains(headerText, "上期")
		if !hasStatement && !headerHasPeriod && len(filtered) < 5 {
			return
		}

		currency, unit := DetectUnits(headerText)
		grid := Grid{ColumnLabels: GuessColumnLabels(currentHdr, maxCols)}
		for _, row := range filtered {
			cells := ExtractNumbers(row.line)
			texts := make([]string, maxCols)
			// Numbers trail the label, so missing cells pad on the left.
			offset := maxCols - len(cells)
			for i, cell := range cells {
				texts[offset+i] = cell.Raw
			}
			grid.Rows = append(grid.Rows, GridRow{
				Label: StripNumbers(row.line),
				Cells: texts,
				Page:  row.page,
			})
		}

		title := ""
		if len(currentHdr) > 0 {
			title = currentHdr[0]
		}
		tables = append(tables, Table{
			Title:         title,
			StatementType: statementType,
			Page:          filtered[0].page,
			Currency:      currency,
			Units:         unit,
			Scope:         DetectScope(headerText),
			RuleCode:      DetectRuleCode(headerText),
			Grid:          grid,
		})
	}

	for _, page := range pages {
		for _, raw := range page.Lines {
			line := strings.TrimSpace(raw)
			if line == "" {
				flush()
				continue
			}
			if _, ok := DetectStatementType(line); ok {
				lastHeading = &rowLine{page: page.Page, line: line}
			}

			cells := ExtractNumbers(line)
			hasLabel := StripNumbers(line) != ""
			isRow := hasLabel && len(cells) >= 1 && !isPeriodHeaderLine(line, cells)
			if len(currentRows) == 0 {
				isRow = hasLabel && len(cells) >= 2 && !isPeriodHeaderLine(line, cells)
			}
			if isRow {
				if len(currentRows) == 0 {
					currentHdr = nil
					for _, h := range headerBuffer {
						currentHdr = append(currentHdr, h.line)
					}
					// Statement headings up to two pages back still title
					// a table that spilled over a page break.
					if _, ok := DetectStatementType(strings.Join(currentHdr, " ")); !ok && lastHeading != nil {
						if page.Page-lastHeading.page <= 2 {
							currentHdr = append([]string{lastHeading.line}, currentHdr...)
						}
					}
				}
				currentRows = append(currentRows, rowLine{page: page.Page, line: line})
			} else {
				flush()
				headerBuffer = append(headerBuffer, rowLine{page: page.Page, line: line})
				if len(headerBuffer) > 3 {
					headerBuffer = headerBuffer[1:]
				}
			}
		}
	}
	flush()
	return tables
}
