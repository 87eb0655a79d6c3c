package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ResolvedFact is the canonical value chosen for one fact group. Exactly one
// row exists per (report, group key). Automatic re-resolution rewrites rows
// except those manually verified, which stay until explicitly re-triggered.
type ResolvedFact struct {
	ID            int                 `gorm:"primary_key" json:"id"`
	ReportId      int                 `gorm:"index:idx_resolved_report_group,unique;not null" json:"report_id"`
	GroupKey      string              `gorm:"size:512;index:idx_resolved_report_group,unique;not null" json:"group_key"`
	MetricCode    string              `gorm:"size:64;index;not null" json:"metric_code"`
	StatementType StatementType       `gorm:"size:16;not null" json:"statement_type"`
	FactType      FactType            `gorm:"size:8;not null" json:"fact_type"`
	AsOfDate      *time.Time          `gorm:"index" json:"as_of_date"`
	PeriodStart   *time.Time          `json:"period_start"`
	PeriodEnd     *time.Time          `gorm:"index" json:"period_end"`
	Scope         ConsolidationScope  `gorm:"size:16" json:"consolidation_scope"`
	Currency      string              `gorm:"size:16" json:"currency"`
	Unit          string              `gorm:"size:32" json:"unit"`
	Value         decimal.NullDecimal `gorm:"type:decimal(24,4)" json:"value"`
	CandidateId   *int                `gorm:"index" json:"candidate_id"`
	Status        ResolutionStatus    `gorm:"size:24;index;not null" json:"status"`
	Method        ResolutionMethod    `gorm:"size:16;not null" json:"method"`
	EngineCount   int                 `gorm:"not null;default:0" json:"engine_count"`
	ReviewedBy    string              `gorm:"size:255" json:"reviewed_by"`
	ReviewedAt    *time.Time          `json:"reviewed_at"`
	ReviewNotes   string              `gorm:"type:text" json:"review_notes"`
	CreatedAt     time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// GroupKeyFor builds the normalized reconciliation key. Both candidates and
// resolved facts must normalize identically (case, date layout, defaulted
// scope/unit) or grouping silently splits.
func GroupKeyFor(metricCode string, factType FactType, asOf, periodStart, periodEnd *time.Time, scope ConsolidationScope, currency, unit string) string {
	period := ""
	if factType == FactTypeStock {
		period = dateKey(asOf)
	} else {
		period = dateKey(periodStart) + ".." + dateKey(periodEnd)
	}
	if scope == "" {
		scope = ScopeConsolidated
	}
	if unit == "" {
		unit = "1"
	}
	return strings.Join([]string{
		strings.ToLower(strings.TrimSpace(metricCode)),
		string(factType),
		period,
		strings.ToLower(string(scope)),
		strings.ToUpper(strings.TrimSpace(currency)),
		strings.ToLower(strings.TrimSpace(unit)),
	}, "|")
}

func dateKey(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02")
}

// GroupKeyForCandidate derives the candidate's group key.
func GroupKeyForCandidate(c *FactCandidate) string {
	return GroupKeyFor(c.MetricCode, c.FactType, c.AsOfDate, c.PeriodStart, c.PeriodEnd, c.Scope, c.Currency, c.Unit)
}

func GetResolvedFact(db *gorm.DB, reportId int, groupKey string) (*ResolvedFact, error) {
	var fact ResolvedFact
	err := db.Where("report_id = ? AND group_key = ?", reportId, groupKey).First(&fact).Error
	if err != nil {
		return nil, err
	}
	return &fact, nil
}

func ResolvedFactsForReport(db *gorm.DB, reportId int) ([]ResolvedFact, error) {
	var facts []ResolvedFact
	err := db.Where("report_id = ?", reportId).Order("group_key").Find(&facts).Error
	return facts, err
}

// DiscrepancyFilter narrows the review queue.
type DiscrepancyFilter struct {
	FactType   FactType
	FiscalYear int
	PeriodEnd  *time.Time
}

// ListDiscrepancies returns unresolved groups for manual review, optionally
// filtered. Verified groups are excluded: they left the queue.
func ListDiscrepancies(db *gorm.DB, reportId int, filter DiscrepancyFilter) ([]ResolvedFact, error) {
	q := db.Where("report_id = ? AND status = ?", reportId, ResolutionStatusUnresolved)
	if filter.FactType != "" {
		q = q.Where("fact_type = ?", filter.FactType)
	}
	if filter.FiscalYear > 0 {
		start := fmt.Sprintf("%04d-01-01", filter.FiscalYear)
		end := fmt.Sprintf("%04d-12-31", filter.FiscalYear)
		q = q.Where(
			"(as_of_date BETWEEN ? AND ?) OR (period_end BETWEEN ? AND ?)",
			start, end, start, end,
		)
	}
	if filter.PeriodEnd != nil {
		q = q.Where("as_of_date = ? OR period_end = ?", filter.PeriodEnd, filter.PeriodEnd)
	}
	var facts []ResolvedFact
	err := q.Order("group_key").Find(&facts).Error
	return facts, err
}

// AgreementRate recomputes the run KPI from stored ResolvedFacts alone:
// agreed multi-engine groups / all multi-engine groups. Manually verified
// groups drop out of both sides because their automatic outcome was
// overwritten by the review.
func AgreementRate(db *gorm.DB, reportId int) (agreed int64, multiEngine int64, err error) {
	err = db.Model(&ResolvedFact{}).
		Where("report_id = ? AND engine_count >= 2 AND status <> ?", reportId, ResolutionStatusVerified).
		Count(&multiEngine).Error
	if err != nil {
		return 0, 0, err
	}
	err = db.Model(&ResolvedFact{}).
		Where("report_id = ? AND engine_count >= 2 AND status = ?", reportId, ResolutionStatusAutoAgreed).
		Count(&agreed).Error
	return agreed, multiEngine, err
}
