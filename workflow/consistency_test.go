package workflow

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/finfacts_backend/config"
	"bitbucket.org/mmdatafocus/finfacts_backend/models"
)

func resolvedFlow(reportId int, metric, value string) models.ResolvedFact {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	v := decimal.RequireFromString(value)
	return models.ResolvedFact{
		ReportId:      reportId,
		GroupKey:      models.GroupKeyFor(metric, models.FactTypeFlow, nil, &start, &end, models.ScopeConsolidated, "CNY", "1"),
		MetricCode:    metric,
		StatementType: models.StatementTypeCashflow,
		FactType:      models.FactTypeFlow,
		PeriodStart:   &start,
		PeriodEnd:     &end,
		Scope:         models.ScopeConsolidated,
		Currency:      "CNY",
		Unit:          "1",
		Value:         decimal.NullDecimal{Decimal: v, Valid: true},
		Status:        models.ResolutionStatusAutoAgreed,
		Method:        models.ResolutionMethodConsensus,
		EngineCount:   2,
	}
}

func resolvedStock(reportId int, metric, value string) models.ResolvedFact {
	asOf := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	v := decimal.RequireFromString(value)
	return models.ResolvedFact{
		ReportId:      reportId,
		GroupKey:      models.GroupKeyFor(metric, models.FactTypeStock, &asOf, nil, nil, models.ScopeConsolidated, "CNY", "1"),
		MetricCode:    metric,
		StatementType: models.StatementTypeBalance,
		FactType:      models.FactTypeStock,
		AsOfDate:      &asOf,
		Scope:         models.ScopeConsolidated,
		Currency:      "CNY",
		Unit:          "1",
		Value:         decimal.NullDecimal{Decimal: v, Valid: true},
		Status:        models.ResolutionStatusAutoAgreed,
		Method:        models.ResolutionMethodConsensus,
		EngineCount:   2,
	}
}

func TestCashflowIdentityPasses(t *testing.T) {
	db := newTestDB(t)
	facts := []models.ResolvedFact{
		resolvedFlow(1, "net_cash_flow_operating", "600"),
		resolvedFlow(1, "net_cash_flow_investing", "-200"),
		resolvedFlow(1, "net_cash_flow_financing", "100"),
		resolvedFlow(1, "fx_effect_on_cash", "0"),
		resolvedFlow(1, "net_increase_cash", "500"),
	}
	for i := range facts {
		if err := db.Create(&facts[i]).Error; err != nil {
			t.Fatal(err)
		}
	}

	results, err := RunConsistencyChecks(db, 1, config.Pipeline())
	if err != nil {
		t.Fatalf("checks: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %+v", results)
	}
	check := results[0]
	if check.Name != "cashflow_identity" || check.Status != models.CheckStatusPass {
		t.Fatalf("check = %+v", check)
	}
	if check.Residual != "0" {
		t.Errorf("residual = %s, want 0", check.Residual)
	}
	if check.Date != "2024-12-31" || check.Scope != models.ScopeConsolidated {
		t.Errorf("cell = %s/%s", check.Scope, check.Date)
	}
}

func TestCashRollforwardFailsOutsideTolerance(t *testing.T) {
	db := newTestDB(t)
	facts := []models.ResolvedFact{
		resolvedStock(1, "cash_begin", "100"),
		resolvedFlow(1, "net_increase_cash", "500"),
		resolvedStock(1, "cash_end", "650"),
	}
	for i := range facts {
		if err := db.Create(&facts[i]).Error; err != nil {
			t.Fatal(err)
		}
	}

	results, err := RunConsistencyChecks(db, 1, config.Pipeline())
	if err != nil {
		t.Fatalf("checks: %v", err)
	}
	if len(results) != 1 || results[0].Name != "cash_rollforward" {
		t.Fatalf("results = %+v", results)
	}
	if results[0].Status != models.CheckStatusFail {
		t.Errorf("status = %s, want fail", results[0].Status)
	}
	if results[0].Residual != "-50" {
		t.Errorf("residual = %s, want -50", results[0].Residual)
	}
}

func TestBalanceChecksPerScope(t *testing.T) {
	db := newTestDB(t)
	consolidated := []models.ResolvedFact{
		resolvedStock(1, "total_assets", "1000"),
		resolvedStock(1, "total_liabilities", "600"),
		resolvedStock(1, "total_equity", "400"),
		resolvedStock(1, "total_liabilities_equity", "1000"),
	}
	for i := range consolidated {
		if err := db.Create(&consolidated[i]).Error; err != nil {
			t.Fatal(err)
		}
	}
	// The parent-company column is off by one and must fail independently.
	parent := []models.ResolvedFact{
		resolvedStock(1, "total_assets", "800"),
		resolvedStock(1, "total_liabilities", "500"),
		resolvedStock(1, "total_equity", "297"),
	}
	for i := range parent {
		parent[i].Scope = models.ScopeParent
		parent[i].GroupKey = models.GroupKeyFor(parent[i].MetricCode, models.FactTypeStock,
			parent[i].AsOfDate, nil, nil, models.ScopeParent, "CNY", "1")
		if err := db.Create(&parent[i]).Error; err != nil {
			t.Fatal(err)
		}
	}

	results, err := RunConsistencyChecks(db, 1, config.Pipeline())
	if err != nil {
		t.Fatalf("checks: %v", err)
	}
	byKey := map[string]models.ConsistencyCheckResult{}
	for _, r := range results {
		byKey[r.Name+"/"+string(r.Scope)] = r
	}
	if got := byKey["balance_identity/consolidated"]; got.Status != models.CheckStatusPass {
		t.Errorf("consolidated identity = %+v", got)
	}
	if got := byKey["balance_totals/consolidated"]; got.Status != models.CheckStatusPass {
		t.Errorf("consolidated totals = %+v", got)
	}
	if got := byKey["balance_identity/parent"]; got.Status != models.CheckStatusFail || got.Residual != "-3" {
		t.Errorf("parent identity = %+v", got)
	}
}

func TestChecksSkipIncompleteCells(t *testing.T) {
	db := newTestDB(t)
	// Assets alone cannot be checked against anything.
	fact := resolvedStock(1, "total_assets", "1000")
	if err := db.Create(&fact).Error; err != nil {
		t.Fatal(err)
	}
	results, err := RunConsistencyChecks(db, 1, config.Pipeline())
	if err != nil {
		t.Fatalf("checks: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("results = %+v, want none", results)
	}
}

func TestWithinTolerance(t *testing.T) {
	abs := decimal.NewFromInt(1)
	rel := decimal.RequireFromString("0.000001")

	cases := []struct {
		lhs, rhs string
		want     bool
	}{
		{"100", "100", true},
		{"100", "100.5", true},      // inside absolute
		{"100", "102", false},       // outside both
		{"10000000", "10000005", true}, // inside relative
		{"-500", "-500.2", true},
	}
	for _, tc := range cases {
		lhs := decimal.RequireFromString(tc.lhs)
		rhs := decimal.RequireFromString(tc.rhs)
		if got := withinTolerance(lhs, rhs, abs, rel); got != tc.want {
			t.Errorf("withinTolerance(%s, %s) = %v, want %v", tc.lhs, tc.rhs, got, tc.want)
		}
	}
}

func TestValueKeyQuantizes(t *testing.T) {
	absTol := decimal.RequireFromString("0.01")
	a := valueKey(decimal.NullDecimal{Decimal: decimal.RequireFromString("1000.001"), Valid: true}, absTol)
	b := valueKey(decimal.NullDecimal{Decimal: decimal.RequireFromString("1000.004"), Valid: true}, absTol)
	if a != b {
		t.Errorf("keys differ inside one quantum: %s vs %s", a, b)
	}
	if got := valueKey(decimal.NullDecimal{}, absTol); got != "null" {
		t.Errorf("invalid value key = %q", got)
	}
}

func TestChooseWithinBucketPrefersQualityThenColumn(t *testing.T) {
	broad := models.FactCandidate{ID: 1, ColumnLabel: "本期金额", QualityScore: decimal.RequireFromString("0.9")}
	exact := models.FactCandidate{ID: 2, ColumnLabel: "col_2", QualityScore: decimal.RequireFromString("1.0")}
	if got := chooseWithinBucket([]models.FactCandidate{broad, exact}); got.ID != 2 {
		t.Errorf("chose %d, want the higher quality candidate", got.ID)
	}

	prior := models.FactCandidate{ID: 3, ColumnLabel: "上期金额", QualityScore: decimal.RequireFromString("1.0")}
	current := models.FactCandidate{ID: 4, ColumnLabel: "本期金额", QualityScore: decimal.RequireFromString("1.0")}
	if got := chooseWithinBucket([]models.FactCandidate{prior, current}); got.ID != 4 {
		t.Errorf("chose %d, want the current-period candidate", got.ID)
	}

	twinA := models.FactCandidate{ID: 5, ColumnLabel: "本期金额", QualityScore: decimal.RequireFromString("1.0")}
	twinB := models.FactCandidate{ID: 6, ColumnLabel: "本期金额", QualityScore: decimal.RequireFromString("1.0")}
	if got := chooseWithinBucket([]models.FactCandidate{twinB, twinA}); got.ID != 5 {
		t.Errorf("chose %d, want the lowest id for stability", got.ID)
	}
}
