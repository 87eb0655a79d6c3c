package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/finfacts_backend/utils"
	"gorm.io/gorm"
)

// FinancialReport is one source document. Duplicate uploads are detected by
// SourceHash; re-ingestion creates new ReportVersions, never mutates old ones.
type FinancialReport struct {
	ID          int        `gorm:"primary_key" json:"id"`
	SourcePath  string     `gorm:"size:1024;not null" json:"source_path"`
	SourceHash  string     `gorm:"size:64;uniqueIndex;not null" json:"source_hash"`
	ReportTitle string     `gorm:"size:512" json:"report_title"`
	CompanyName string     `gorm:"size:255" json:"company_name"`
	Ticker      string     `gorm:"size:32" json:"ticker"`
	ReportType  string     `gorm:"size:32" json:"report_type"`
	FiscalYear  int        `gorm:"index" json:"fiscal_year"`
	PeriodEnd   *time.Time `json:"period_end"`
	Currency    string     `gorm:"size:16" json:"currency"`
	Units       string     `gorm:"size:64" json:"units"`
	Status      string     `gorm:"size:16;default:draft" json:"status"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// ReportVersion is one ingestion attempt of one report by one engine.
// Immutable once Status is terminal; superseded by a new row on re-ingestion.
type ReportVersion struct {
	ID          int           `gorm:"primary_key" json:"id"`
	ReportId    int           `gorm:"index;not null" json:"report_id"`
	Engine      string        `gorm:"size:32;not null" json:"engine"`
	Status      VersionStatus `gorm:"size:16;not null;default:running" json:"status"`
	ArtifactDir string        `gorm:"size:1024" json:"artifact_dir"`
	StartedAt   time.Time     `gorm:"not null" json:"started_at"`
	FinishedAt  *time.Time    `json:"finished_at"`
	SummaryJson []byte        `gorm:"type:json" json:"summary_json"`
	Error       string        `gorm:"type:text" json:"error"`
}

// IngestError records a non-fatal failure during ingestion for audit.
type IngestError struct {
	ID           int       `gorm:"primary_key" json:"id"`
	SourcePath   string    `gorm:"size:1024" json:"source_path"`
	ReportId     *int      `gorm:"index" json:"report_id"`
	VersionId    *int      `gorm:"index" json:"version_id"`
	PageNumber   *int      `json:"page_number"`
	Stage        string    `gorm:"size:64" json:"stage"`
	ErrorMessage string    `gorm:"type:text" json:"error_message"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func GetReportByHash(db *gorm.DB, sourceHash string) (*FinancialReport, error) {
	var report FinancialReport
	err := db.Where("source_hash = ?", sourceHash).First(&report).Error
	if err == gorm.ErrRecordNotFound {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func GetReportByID(db *gorm.DB, reportId int) (*FinancialReport, error) {
	var report FinancialReport
	err := db.First(&report, reportId).Error
	if err == gorm.ErrRecordNotFound {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// StartVersion opens a running ReportVersion for one engine attempt.
func StartVersion(db *gorm.DB, reportId int, engine string, artifactDir string) (*ReportVersion, error) {
	version := ReportVersion{
		ReportId:    reportId,
		Engine:      engine,
		Status:      VersionStatusRunning,
		ArtifactDir: artifactDir,
		StartedAt:   time.Now().UTC(),
	}
	if err := db.Create(&version).Error; err != nil {
		return nil, err
	}
	return &version, nil
}

// FinishVersion marks a version terminal. Partial artifacts of a failed
// version remain eligible for best-effort candidate building.
func FinishVersion(db *gorm.DB, versionId int, status VersionStatus, summaryJson []byte, errMessage string) error {
	now := time.Now().UTC()
	updates := map[string]any{
		"status":      status,
		"finished_at": &now,
	}
	if summaryJson != nil {
		updates["summary_json"] = summaryJson
	}
	if errMessage != "" {
		updates["error"] = errMessage
	}
	return db.Model(&ReportVersion{}).Where("id = ?", versionId).Updates(updates).Error
}

// VersionsForReport returns all engine versions of a report, newest first
// per engine.
func VersionsForReport(db *gorm.DB, reportId int) ([]ReportVersion, error) {
	var versions []ReportVersion
	err := db.Where("report_id = ?", reportId).Order("id").Find(&versions).Error
	return versions, err
}

// RecordIngestError best-effort persists an audit row; it never fails the caller.
func RecordIngestError(ctx context.Context, db *gorm.DB, row IngestError) {
	_ = db.WithContext(ctx).Create(&row).Error
}
