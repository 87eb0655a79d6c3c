package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/finfacts_backend/config"
	"bitbucket.org/mmdatafocus/finfacts_backend/models"
	"bitbucket.org/mmdatafocus/finfacts_backend/utils"
)

var reviewValidate = validator.New()

// ManualResolutionInput is one reviewer decision: this candidate is the
// correct value for its group.
type ManualResolutionInput struct {
	CandidateId int    `json:"candidate_id" validate:"required,gt=0"`
	Reviewer    string `json:"reviewer" validate:"required,max=255"`
	Notes       string `json:"notes" validate:"max=4000"`
}

// ProcessManualResolution applies a reviewer's decision to the candidate's
// group. The group's ResolvedFact becomes verified; a repeated review of the
// same group overwrites the previous manual choice. Verified rows survive
// automatic re-resolution.
func ProcessManualResolution(ctx context.Context, db *gorm.DB, logger *logrus.Logger, reportId int, input ManualResolutionInput) (*models.ResolvedFact, error) {
	if input.Reviewer == "" {
		if reviewer, ok := utils.GetReviewerFromContext(ctx); ok {
			input.Reviewer = reviewer
		}
	}
	if err := reviewValidate.Struct(input); err != nil {
		return nil, err
	}

	var fact *models.ResolvedFact
	err := db.Transaction(func(tx *gorm.DB) error {
		candidate, err := models.GetCandidateByID(tx, input.CandidateId)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		if candidate.ReportId != reportId {
			return fmt.Errorf("candidate %d does not belong to report %d", input.CandidateId, reportId)
		}

		groupKey := models.GroupKeyForCandidate(candidate)
		now := time.Now().UTC()
		candidateId := candidate.ID
		resolved := models.ResolvedFact{
			ReportId:      reportId,
			GroupKey:      groupKey,
			MetricCode:    candidate.MetricCode,
			StatementType: candidate.StatementType,
			FactType:      candidate.FactType,
			AsOfDate:      candidate.AsOfDate,
			PeriodStart:   candidate.PeriodStart,
			PeriodEnd:     candidate.PeriodEnd,
			Scope:         candidate.Scope,
			Currency:      candidate.Currency,
			Unit:          candidate.Unit,
			Value:         candidate.Value,
			CandidateId:   &candidateId,
			Status:        models.ResolutionStatusVerified,
			Method:        models.ResolutionMethodManual,
			ReviewedBy:    input.Reviewer,
			ReviewedAt:    &now,
			ReviewNotes:   input.Notes,
		}

		existing, err := models.GetResolvedFact(tx, reportId, groupKey)
		if err != nil && err != gorm.ErrRecordNotFound {
			return err
		}
		if existing != nil {
			resolved.ID = existing.ID
			resolved.EngineCount = existing.EngineCount
			resolved.CreatedAt = existing.CreatedAt
			if err := tx.Save(&resolved).Error; err != nil {
				return err
			}
		} else if err := tx.Create(&resolved).Error; err != nil {
			return err
		}
		fact = &resolved
		return nil
	})
	if err != nil {
		config.LogError(logger, "reviewWorkflow.go", "ProcessManualResolution", "Applying manual resolution", input, err)
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"report_id":    reportId,
		"candidate_id": input.CandidateId,
		"group_key":    fact.GroupKey,
		"reviewer":     input.Reviewer,
	}).Info("Manual resolution applied")
	return fact, nil
}
