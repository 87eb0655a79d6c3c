package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// PipelineRunReport is the machine-readable run summary, the pipeline's
// primary observability surface. One row per resolver run.
type PipelineRunReport struct {
	ID            int       `gorm:"primary_key" json:"id"`
	ReportId      int       `gorm:"index;not null" json:"report_id"`
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	SummaryJson   []byte    `gorm:"type:json;not null" json:"-"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// RunSummary is the payload serialized into PipelineRunReport.SummaryJson.
type RunSummary struct {
	ReportId          int                      `json:"report_id"`
	CorrelationId     string                   `json:"correlation_id"`
	EngineCandidates  []CandidateEngineCount   `json:"engine_candidates"`
	UnmatchedRate     float64                  `json:"unmatched_rate"`
	TotalGroups       int                      `json:"total_groups"`
	MultiEngineGroups int                      `json:"multi_engine_groups"`
	AgreedGroups      int                      `json:"agreed_groups"`
	AgreementRate     float64                  `json:"agreement_rate"`
	Unresolved        int                      `json:"unresolved"`
	SingleEngine      int                      `json:"single_engine"`
	VerifiedKept      int                      `json:"verified_kept"`
	ConsistencyChecks []ConsistencyCheckResult `json:"consistency_checks"`
	FinishedAt        time.Time                `json:"finished_at"`
}

// ConsistencyCheckResult is derived from ResolvedFacts, recomputed on demand,
// and persisted only inside the run summary.
type ConsistencyCheckResult struct {
	Name     string             `json:"name"`
	Scope    ConsolidationScope `json:"consolidation_scope"`
	Date     string             `json:"date"`
	Formula  string             `json:"formula"`
	Lhs      string             `json:"lhs"`
	Rhs      string             `json:"rhs"`
	Residual string             `json:"residual"`
	Status   CheckStatus        `json:"status"`
}

func SaveRunSummary(db *gorm.DB, summary RunSummary) (*PipelineRunReport, error) {
	payload, err := json.Marshal(summary)
	if err != nil {
		return nil, err
	}
	row := PipelineRunReport{
		ReportId:      summary.ReportId,
		CorrelationId: summary.CorrelationId,
		SummaryJson:   payload,
	}
	if err := db.Create(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// LatestRunSummary returns the newest run report for a report id.
func LatestRunSummary(db *gorm.DB, reportId int) (*RunSummary, error) {
	var row PipelineRunReport
	if err := db.Where("report_id = ?", reportId).Order("id DESC").First(&row).Error; err != nil {
		return nil, err
	}
	var summary RunSummary
	if err := json.Unmarshal(row.SummaryJson, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}
