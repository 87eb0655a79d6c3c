package extract

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/finfacts_backend/models"
	"bitbucket.org/mmdatafocus/finfacts_backend/taxonomy"
)

// Quality scores are ranking inputs for consensus, not probabilities. A cell
// that failed numeric parsing must always rank below any parsed cell, and an
// unmatched label below any matched one.
var (
	qualityExact     = decimal.RequireFromString("1.0")
	qualityBroad     = decimal.RequireFromString("0.9")
	qualityUnmatched = decimal.RequireFromString("0.3")
	qualityNoParse   = decimal.RequireFromString("0.2")
)

// BuildParams carries the report-level context a table cannot supply itself.
type BuildParams struct {
	ReportId   int
	VersionId  int
	Engine     string
	FiscalYear int

	DefaultCurrency string
	DefaultUnit     string
	DefaultScope    models.ConsolidationScope

	// MinDistinctMetrics is the table quality gate: fewer distinct matched
	// metrics than this and the whole table persists nothing.
	MinDistinctMetrics int
}

// BuildCandidates turns one normalized table into fact candidates. Every cell
// with content yields a candidate, matched or not; the table as a whole is
// dropped only when it fails the distinct-metric quality gate.
func BuildCandidates(table Table, dict *taxonomy.Dictionary, rules *taxonomy.BackgroundRules, p BuildParams) []models.FactCandidate {
	statementType := table.StatementType
	if statementType == "" {
		labels := make([]string, 0, len(table.Grid.Rows))
		for _, row := range table.Grid.Rows {
			labels = append(labels, row.Label)
		}
		if inferred, ok := dict.InferStatementType(labels); ok {
			statementType = inferred
		}
	}

	currency := table.Currency
	if currency == "" {
		currency = p.DefaultCurrency
	}
	unit := table.Units
	if unit == "" {
		unit = p.DefaultUnit
	}
	scope := table.Scope
	if scope == "" {
		scope = p.DefaultScope
	}

	var (
		candidates      []models.FactCandidate
		distinctMatched = map[string]struct{}{}
	)
	for _, row := range table.Grid.Rows {
		match := dict.MatchRow(row.Label, statementType, rules, table.RuleCode)

		var (
			metricCode string
			factType   models.FactType
		)
		if match.Matched {
			metricCode = match.Def.MetricCode
			factType = match.Def.ValueNature.FactType()
			distinctMatched[metricCode] = struct{}{}
		} else {
			metricCode = taxonomy.RawMetricCode(row.Label, match.StatementType)
			factType = defaultFactType(match.StatementType)
		}

		for col, raw := range row.Cells {
			text := strings.TrimSpace(raw)
			if text == "" {
				continue
			}
			columnLabel := ""
			if col < len(table.Grid.ColumnLabels) {
				columnLabel = table.Grid.ColumnLabels[col]
			}

			candidate := models.FactCandidate{
				ReportId:      p.ReportId,
				VersionId:     p.VersionId,
				Engine:        p.Engine,
				MetricCode:    metricCode,
				Matched:       match.Matched,
				StatementType: match.StatementType,
				FactType:      factType,
				RawLabel:      row.Label,
				RawValue:      text,
				Unit:          unit,
				Currency:      currency,
				Scope:         scope,
				SourcePage:    row.Page,
				ColumnLabel:   columnLabel,
			}

			value, ok := ParseNumber(text)
			switch {
			case !ok:
				candidate.QualityScore = qualityNoParse
			case !match.Matched:
				candidate.Value = decimal.NullDecimal{Decimal: value, Valid: true}
				candidate.QualityScore = qualityUnmatched
			case match.Exact:
				candidate.Value = decimal.NullDecimal{Decimal: value, Valid: true}
				candidate.QualityScore = qualityExact
			default:
				candidate.Value = decimal.NullDecimal{Decimal: value, Valid: true}
				candidate.QualityScore = qualityBroad
			}

			candidate.AsOfDate, candidate.PeriodStart, candidate.PeriodEnd =
				ResolvePeriod(columnLabel, factType, p.FiscalYear)

			candidates = append(candidates, candidate)
		}
	}

	if len(distinctMatched) < p.MinDistinctMetrics {
		return nil
	}
	return candidates
}

// defaultFactType picks the fact type for unmatched rows from the statement
// they sit in: balance-sheet rows are stocks, everything else flows.
func defaultFactType(statementType models.StatementType) models.FactType {
	if statementType == models.StatementTypeBalance {
		return models.FactTypeStock
	}
	return models.FactTypeFlow
}

// currentPeriodLabels mark the reporting period's own column across the label
// vocabularies the engines produce.
var currentPeriodLabels = map[string]struct{}{
	"current_period": {}, "本期": {}, "本期金额": {}, "期末": {}, "期末余额": {}, "本年度": {},
}

var priorPeriodLabels = map[string]struct{}{
	"prior_period": {}, "上期": {}, "上期金额": {}, "期初": {}, "期初余额": {}, "上年度": {},
}

// IsCurrentPeriodLabel reports whether a column label explicitly names the
// reporting period (as opposed to a positional col_<n> placeholder).
func IsCurrentPeriodLabel(label string) bool {
	for _, part := range strings.Split(label, headerSeparator) {
		if _, ok := currentPeriodLabels[strings.TrimSpace(part)]; ok {
			return true
		}
	}
	return false
}

// ResolvePeriod maps a merged column label onto concrete dates against the
// report's fiscal year. Stocks get a year-end as-of date, flows the annual
// range. A label that resolves to nothing keeps nil dates rather than guessing.
func ResolvePeriod(columnLabel string, factType models.FactType, fiscalYear int) (asOf, start, end *time.Time) {
	year := 0
	switch {
	case IsCurrentPeriodLabel(columnLabel):
		year = fiscalYear
	case isPriorPeriodLabel(columnLabel):
		if fiscalYear > 0 {
			year = fiscalYear - 1
		}
	default:
		for _, part := range strings.Split(columnLabel, headerSeparator) {
			part = strings.TrimSpace(part)
			if y, ok := parseYearLabel(part); ok {
				year = y
				break
			}
			if d, ok := ParseDateFromText(part); ok {
				if factType == models.FactTypeStock {
					return &d, nil, nil
				}
				s := time.Date(d.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
				return nil, &s, &d
			}
		}
	}
	if year == 0 {
		return nil, nil, nil
	}

	yearEnd := time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC)
	if factType == models.FactTypeStock {
		return &yearEnd, nil, nil
	}
	yearStart := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return nil, &yearStart, &yearEnd
}

func isPriorPeriodLabel(label string) bool {
	for _, part := range strings.Split(label, headerSeparator) {
		if _, ok := priorPeriodLabels[strings.TrimSpace(part)]; ok {
			return true
		}
	}
	return false
}

func parseYearLabel(s string) (int, bool) {
	if len(s) != 4 {
		return 0, false
	}
	year, err := strconv.Atoi(s)
	if err != nil || year < 1900 || year > 2999 {
		return 0, false
	}
	return year, true
}
