package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// FactCandidate is one typed observation of one table cell by one engine.
// Candidates are append-only: a failed numeric parse or an unmatched label
// keeps the row (null value / raw_* metric code) so extraction completeness
// stays auditable.
type FactCandidate struct {
	ID            int                 `gorm:"primary_key" json:"id"`
	ReportId      int                 `gorm:"index;not null" json:"report_id"`
	VersionId     int                 `gorm:"index;not null" json:"version_id"`
	Engine        string              `gorm:"size:32;not null" json:"engine"`
	MetricCode    string              `gorm:"size:64;index;not null" json:"metric_code"`
	Matched       bool                `gorm:"not null" json:"matched"`
	StatementType StatementType       `gorm:"size:16;not null" json:"statement_type"`
	FactType      FactType            `gorm:"size:8;not null" json:"fact_type"`
	RawLabel      string              `gorm:"size:512;not null" json:"raw_label"`
	RawValue      string              `gorm:"size:64" json:"raw_value"`
	Value         decimal.NullDecimal `gorm:"type:decimal(24,4)" json:"value"`
	Unit          string              `gorm:"size:32" json:"unit"`
	Currency      string              `gorm:"size:16" json:"currency"`
	Scope         ConsolidationScope  `gorm:"size:16" json:"consolidation_scope"`
	AsOfDate      *time.Time          `gorm:"index" json:"as_of_date"`
	PeriodStart   *time.Time          `json:"period_start"`
	PeriodEnd     *time.Time          `gorm:"index" json:"period_end"`
	SourcePage    int                 `json:"source_page"`
	ColumnLabel   string              `gorm:"size:128" json:"column_label"`
	QualityScore  decimal.Decimal     `gorm:"type:decimal(5,4);default:0" json:"quality_score"`
	CreatedAt     time.Time           `gorm:"autoCreateTime" json:"created_at"`
}

func CandidatesForReport(db *gorm.DB, reportId int) ([]FactCandidate, error) {
	var candidates []FactCandidate
	err := db.Where("report_id = ?", reportId).Order("id").Find(&candidates).Error
	return candidates, err
}

func GetCandidateByID(db *gorm.DB, candidateId int) (*FactCandidate, error) {
	var candidate FactCandidate
	if err := db.First(&candidate, candidateId).Error; err != nil {
		return nil, err
	}
	return &candidate, nil
}

// CandidateEngineCounts is a run-report input: how many candidates each
// engine contributed and how many of those failed metric matching.
type CandidateEngineCount struct {
	Engine    string `json:"engine"`
	Total     int64  `json:"total"`
	Unmatched int64  `json:"unmatched"`
}

func CountCandidatesByEngine(db *gorm.DB, reportId int) ([]CandidateEngineCount, error) {
	var counts []CandidateEngineCount
	err := db.Model(&FactCandidate{}).
		Select("engine, COUNT(*) AS total, SUM(CASE WHEN matched THEN 0 ELSE 1 END) AS unmatched").
		Where("report_id = ?", reportId).
		Group("engine").
		Order("engine").
		Scan(&counts).Error
	return counts, err
}
