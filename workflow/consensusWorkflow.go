package workflow

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/finfacts_backend/config"
	"bitbucket.org/mmdatafocus/finfacts_backend/extract"
	"bitbucket.org/mmdatafocus/finfacts_backend/models"
	"bitbucket.org/mmdatafocus/finfacts_backend/utils"
)

// ProcessResolveWorkflow recomputes ResolvedFacts for one report from its
// stored candidates, runs the consistency checks and persists the run summary.
// Resolution is serialized per report: a second trigger while one is running
// fails fast with ErrorResolveInProgress. Manually verified groups are kept
// untouched unless the force flag is in the context.
func ProcessResolveWorkflow(ctx context.Context, db *gorm.DB, logger *logrus.Logger, cfg config.PipelineConfig, reportId int) (*models.RunSummary, error) {
	force := utils.GetForceResolveFromContext(ctx)
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	redisLock, err := TryRedisResolveLock(ctx, reportId, 10*time.Minute)
	if err != nil {
		return nil, err
	}
	if redisLock != nil {
		defer func() { _ = redisLock.Release(ctx) }()
	}

	var summary *models.RunSummary
	// GET_LOCK is connection-scoped: pin one connection, take the lock on it,
	// and release only after the transaction has committed. Releasing inside
	// the transaction would unlock while the commit is still in flight.
	err = db.Connection(func(conn *gorm.DB) error {
		if err := AcquireResolveLock(conn, reportId); err != nil {
			return err
		}
		defer ReleaseResolveLock(conn, reportId)

		return conn.Transaction(func(tx *gorm.DB) error {
			versions, err := models.VersionsForReport(tx, reportId)
			if err != nil {
				return err
			}
			for _, v := range versions {
				if !v.Status.Terminal() {
					return utils.ErrorResolveInProgress
				}
			}

			summary, err = resolveCandidates(tx, logger, cfg, reportId, force, correlationId)
			return err
		})
	})
	if err != nil {
		config.LogError(logger, "consensusWorkflow.go", "ProcessResolveWorkflow", "Resolving fact candidates", reportId, err)
		return nil, err
	}
	return summary, nil
}

// factGroup collects every engine's candidates for one group key.
type factGroup struct {
	key        string
	candidates []models.FactCandidate
}

// valueBucket is one quantized value inside a group with the engines that
// reported it.
type valueBucket struct {
	value      decimal.NullDecimal
	candidates []models.FactCandidate
	engines    map[string]struct{}
}

func resolveCandidates(tx *gorm.DB, logger *logrus.Logger, cfg config.PipelineConfig, reportId int, force bool, correlationId string) (*models.RunSummary, error) {
	candidates, err := models.CandidatesForReport(tx, reportId)
	if err != nil {
		return nil, err
	}

	groupIndex := map[string]int{}
	var groups []factGroup
	for _, candidate := range candidates {
		key := models.GroupKeyForCandidate(&candidate)
		idx, ok := groupIndex[key]
		if !ok {
			idx = len(groups)
			groupIndex[key] = idx
			groups = append(groups, factGroup{key: key})
		}
		groups[idx].candidates = append(groups[idx].candidates, candidate)
	}

	verified, err := verifiedGroupKeys(tx, reportId)
	if err != nil {
		return nil, err
	}
	if force {
		verified = map[string]struct{}{}
	}

	// Rewrite everything that was decided automatically; verified rows stay.
	del := tx.Where("report_id = ?", reportId)
	if !force {
		del = del.Where("status <> ?", models.ResolutionStatusVerified)
	}
	if err := del.Delete(&models.ResolvedFact{}).Error; err != nil {
		return nil, err
	}

	summary := models.RunSummary{ReportId: reportId, CorrelationId: correlationId}
	for _, group := range groups {
		if _, keep := verified[group.key]; keep {
			summary.VerifiedKept++
			continue
		}

		fact := chooseResolvedFact(group, cfg.AgreementAbsTol, cfg.AgreementRelTol)
		fact.ReportId = reportId
		if err := tx.Create(&fact).Error; err != nil {
			return nil, err
		}

		summary.TotalGroups++
		if fact.EngineCount >= 2 {
			summary.MultiEngineGroups++
		}
		switch fact.Status {
		case models.ResolutionStatusAutoAgreed:
			summary.AgreedGroups++
		case models.ResolutionStatusAutoSingleEngine:
			summary.SingleEngine++
		case models.ResolutionStatusUnresolved:
			summary.Unresolved++
		}
	}
	if summary.MultiEngineGroups > 0 {
		summary.AgreementRate = float64(summary.AgreedGroups) / float64(summary.MultiEngineGroups)
	}

	summary.EngineCandidates, err = models.CountCandidatesByEngine(tx, reportId)
	if err != nil {
		return nil, err
	}
	var total, unmatched int64
	for _, count := range summary.EngineCandidates {
		total += count.Total
		unmatched += count.Unmatched
	}
	if total > 0 {
		summary.UnmatchedRate = float64(unmatched) / float64(total)
	}

	summary.ConsistencyChecks, err = RunConsistencyChecks(tx, reportId, cfg)
	if err != nil {
		return nil, err
	}
	summary.FinishedAt = time.Now().UTC()

	if _, err := models.SaveRunSummary(tx, summary); err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"report_id":      reportId,
		"correlation_id": correlationId,
		"total_groups":   summary.TotalGroups,
		"agreed":         summary.AgreedGroups,
		"unresolved":     summary.Unresolved,
		"agreement_rate": summary.AgreementRate,
	}).Info("Fact resolution finished")
	return &summary, nil
}

func verifiedGroupKeys(tx *gorm.DB, reportId int) (map[string]struct{}, error) {
	var keys []string
	err := tx.Model(&models.ResolvedFact{}).
		Where("report_id = ? AND status = ?", reportId, models.ResolutionStatusVerified).
		Pluck("group_key", &keys).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		out[k] = struct{}{}
	}
	return out, nil
}

// chooseResolvedFact picks the consensus value for one group. Candidates are
// bucketed by value quantized at the absolute tolerance, near-equal buckets
// merged at the relative tolerance, buckets ranked by engine support.
func chooseResolvedFact(group factGroup, absTol, relTol decimal.Decimal) models.ResolvedFact {
	buckets := bucketByValue(group.candidates, absTol, relTol)

	sort.SliceStable(buckets, func(i, j int) bool {
		if len(buckets[i].engines) != len(buckets[j].engines) {
			return len(buckets[i].engines) > len(buckets[j].engines)
		}
		if len(buckets[i].candidates) != len(buckets[j].candidates) {
			return len(buckets[i].candidates) > len(buckets[j].candidates)
		}
		qi, qj := avgQuality(buckets[i].candidates), avgQuality(buckets[j].candidates)
		if !qi.Equal(qj) {
			return qi.GreaterThan(qj)
		}
		// Final tie-break: the bucket holding the reporting period's own
		// column wins over prior-period and positional columns.
		return bucketColumnRank(buckets[i]) < bucketColumnRank(buckets[j])
	})

	best := buckets[0]
	chosen := chooseWithinBucket(best.candidates)

	groupEngines := map[string]struct{}{}
	for _, c := range group.candidates {
		groupEngines[c.Engine] = struct{}{}
	}

	status := models.ResolutionStatusUnresolved
	switch {
	case len(best.engines) >= 2:
		status = models.ResolutionStatusAutoAgreed
	case len(groupEngines) < 2:
		status = models.ResolutionStatusAutoSingleEngine
	}

	candidateId := chosen.ID
	// EngineCount is the group's engine support (not the winning bucket's):
	// the agreement KPI recomputes multi-engine groups from this column.
	return models.ResolvedFact{
		GroupKey:      group.key,
		MetricCode:    chosen.MetricCode,
		StatementType: chosen.StatementType,
		FactType:      chosen.FactType,
		AsOfDate:      chosen.AsOfDate,
		PeriodStart:   chosen.PeriodStart,
		PeriodEnd:     chosen.PeriodEnd,
		Scope:         chosen.Scope,
		Currency:      chosen.Currency,
		Unit:          chosen.Unit,
		Value:         chosen.Value,
		CandidateId:   &candidateId,
		Status:        status,
		Method:        models.ResolutionMethodConsensus,
		EngineCount:   len(groupEngines),
	}
}

func bucketByValue(candidates []models.FactCandidate, absTol, relTol decimal.Decimal) []valueBucket {
	byKey := map[string]*valueBucket{}
	var order []string
	for _, candidate := range candidates {
		key := valueKey(candidate.Value, absTol)
		bucket, ok := byKey[key]
		if !ok {
			bucket = &valueBucket{value: candidate.Value, engines: map[string]struct{}{}}
			byKey[key] = bucket
			order = append(order, key)
		}
		bucket.candidates = append(bucket.candidates, candidate)
		bucket.engines[candidate.Engine] = struct{}{}
	}

	buckets := make([]valueBucket, 0, len(order))
	for _, key := range order {
		buckets = append(buckets, *byKey[key])
	}

	// Values one quantum apart must still agree: merge buckets whose
	// representatives sit within tolerance of each other.
	sort.SliceStable(buckets, func(i, j int) bool {
		if !buckets[i].value.Valid || !buckets[j].value.Valid {
			return buckets[j].value.Valid
		}
		return buckets[i].value.Decimal.LessThan(buckets[j].value.Decimal)
	})
	var merged []valueBucket
	for _, bucket := range buckets {
		if len(merged) > 0 {
			last := &merged[len(merged)-1]
			if last.value.Valid && bucket.value.Valid &&
				withinTolerance(last.value.Decimal, bucket.value.Decimal, absTol, relTol) {
				last.candidates = append(last.candidates, bucket.candidates...)
				for engine := range bucket.engines {
					last.engines[engine] = struct{}{}
				}
				continue
			}
		}
		merged = append(merged, bucket)
	}
	return merged
}

func valueKey(value decimal.NullDecimal, absTol decimal.Decimal) string {
	if !value.Valid {
		return "null"
	}
	if absTol.IsZero() || absTol.IsNegative() {
		return value.Decimal.String()
	}
	quantum := value.Decimal.DivRound(absTol, 0).Mul(absTol)
	return quantum.String()
}

func withinTolerance(lhs, rhs, absTol, relTol decimal.Decimal) bool {
	diff := lhs.Sub(rhs).Abs()
	if diff.LessThanOrEqual(absTol) {
		return true
	}
	scale := decimal.Max(lhs.Abs(), rhs.Abs())
	return diff.LessThanOrEqual(scale.Mul(relTol))
}

func avgQuality(candidates []models.FactCandidate) decimal.Decimal {
	if len(candidates) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, c := range candidates {
		sum = sum.Add(c.QualityScore)
	}
	return sum.Div(decimal.NewFromInt(int64(len(candidates))))
}

// columnRank orders columns for tie-breaking: explicit current-period labels
// first, then everything else in label order (col_1 before col_2).
func columnRank(label string) (int, string) {
	if extract.IsCurrentPeriodLabel(label) {
		return 0, label
	}
	return 1, label
}

func bucketColumnRank(bucket valueBucket) int {
	best := 1
	for _, c := range bucket.candidates {
		if r, _ := columnRank(c.ColumnLabel); r < best {
			best = r
		}
	}
	return best
}

// chooseWithinBucket picks the representative candidate: best quality, then
// the current-period column, then the stable lowest id.
func chooseWithinBucket(candidates []models.FactCandidate) models.FactCandidate {
	chosen := candidates[0]
	chosenRank, chosenLabel := columnRank(chosen.ColumnLabel)
	for _, c := range candidates[1:] {
		rank, label := columnRank(c.ColumnLabel)
		switch {
		case c.QualityScore.GreaterThan(chosen.QualityScore):
		case c.QualityScore.Equal(chosen.QualityScore) && rank < chosenRank:
		case c.QualityScore.Equal(chosen.QualityScore) && rank == chosenRank && label < chosenLabel:
		case c.QualityScore.Equal(chosen.QualityScore) && rank == chosenRank && label == chosenLabel && c.ID < chosen.ID:
		default:
			continue
		}
		chosen, chosenRank, chosenLabel = c, rank, label
	}
	return chosen
}
