package workflow

import (
	"sort"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/finfacts_backend/config"
	"bitbucket.org/mmdatafocus/finfacts_backend/models"
)

// Accounting identities recomputed from ResolvedFacts after every resolution.
// A failing check flags a discrepancy in the run report; it never fails the
// resolution itself.
const (
	checkCashflowIdentity = "cashflow_identity"
	checkCashRollforward  = "cash_rollforward"
	checkBalanceIdentity  = "balance_identity"
	checkBalanceTotals    = "balance_totals"
)

// factSlot addresses one metric value within a (scope, date) cell.
type factSlot struct {
	scope models.ConsolidationScope
	date  string
}

// RunConsistencyChecks evaluates the accounting identities per consolidation
// scope and date. Metrics missing from a cell skip the check for that cell
// rather than failing it; the optional fx effect defaults to zero.
func RunConsistencyChecks(tx *gorm.DB, reportId int, cfg config.PipelineConfig) ([]models.ConsistencyCheckResult, error) {
	facts, err := models.ResolvedFactsForReport(tx, reportId)
	if err != nil {
		return nil, err
	}

	values := map[factSlot]map[string]decimal.Decimal{}
	for _, fact := range facts {
		if !fact.Value.Valid {
			continue
		}
		date := ""
		switch {
		case fact.FactType == models.FactTypeStock && fact.AsOfDate != nil:
			date = fact.AsOfDate.Format("2006-01-02")
		case fact.FactType == models.FactTypeFlow && fact.PeriodEnd != nil:
			date = fact.PeriodEnd.Format("2006-01-02")
		}
		if date == "" {
			continue
		}
		slot := factSlot{scope: fact.Scope, date: date}
		if values[slot] == nil {
			values[slot] = map[string]decimal.Decimal{}
		}
		values[slot][fact.MetricCode] = fact.Value.Decimal
	}

	slots := make([]factSlot, 0, len(values))
	for slot := range values {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].scope != slots[j].scope {
			return slots[i].scope < slots[j].scope
		}
		return slots[i].date < slots[j].date
	})

	var results []models.ConsistencyCheckResult
	for _, slot := range slots {
		metrics := values[slot]
		results = append(results, checkCell(slot, metrics, cfg)...)
	}
	return results, nil
}

func checkCell(slot factSlot, metrics map[string]decimal.Decimal, cfg config.PipelineConfig) []models.ConsistencyCheckResult {
	var results []models.ConsistencyCheckResult

	// operating + investing + financing (+ fx effect) = net increase in cash
	if op, ok1 := metrics["net_cash_flow_operating"]; ok1 {
		inv, ok2 := metrics["net_cash_flow_investing"]
		fin, ok3 := metrics["net_cash_flow_financing"]
		net, ok4 := metrics["net_increase_cash"]
		if ok2 && ok3 && ok4 {
			lhs := op.Add(inv).Add(fin)
			formula := "operating + investing + financing = net_increase"
			if fx, ok := metrics["fx_effect_on_cash"]; ok {
				lhs = lhs.Add(fx)
				formula = "operating + investing + financing + fx_effect = net_increase"
			}
			results = append(results, buildCheck(checkCashflowIdentity, slot, formula, lhs, net, cfg))
		}
	}

	if begin, ok1 := metrics["cash_begin"]; ok1 {
		if net, ok2 := metrics["net_increase_cash"]; ok2 {
			if end, ok3 := metrics["cash_end"]; ok3 {
				results = append(results, buildCheck(
					checkCashRollforward, slot, "cash_begin + net_increase = cash_end",
					begin.Add(net), end, cfg))
			}
		}
	}

	if assets, ok1 := metrics["total_assets"]; ok1 {
		if liabilities, ok2 := metrics["total_liabilities"]; ok2 {
			if equity, ok3 := metrics["total_equity"]; ok3 {
				results = append(results, buildCheck(
					checkBalanceIdentity, slot, "liabilities + equity = assets",
					liabilities.Add(equity), assets, cfg))
			}
		}
		if combined, ok2 := metrics["total_liabilities_equity"]; ok2 {
			results = append(results, buildCheck(
				checkBalanceTotals, slot, "liabilities_and_equity_total = assets",
				combined, assets, cfg))
		}
	}

	return results
}

// buildCheck records the signed residual lhs - rhs, passing when it sits
// inside either the absolute or the relative tolerance.
func buildCheck(name string, slot factSlot, formula string, lhs, rhs decimal.Decimal, cfg config.PipelineConfig) models.ConsistencyCheckResult {
	residual := lhs.Sub(rhs)
	status := models.CheckStatusFail
	if withinTolerance(lhs, rhs, cfg.ConsistencyAbsTol, cfg.ConsistencyRelTol) {
		status = models.CheckStatusPass
	}
	return models.ConsistencyCheckResult{
		Name:     name,
		Scope:    slot.scope,
		Date:     slot.date,
		Formula:  formula,
		Lhs:      lhs.String(),
		Rhs:      rhs.String(),
		Residual: residual.String(),
		Status:   status,
	}
}
