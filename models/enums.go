package models

// StatementType identifies which financial statement a fact belongs to.
type StatementType string

const (
	StatementTypeBalance  StatementType = "balance"
	StatementTypeIncome   StatementType = "income"
	StatementTypeCashflow StatementType = "cashflow"
	StatementTypeEquity   StatementType = "equity"
)

func (t StatementType) Valid() bool {
	switch t {
	case StatementTypeBalance, StatementTypeIncome, StatementTypeCashflow, StatementTypeEquity:
		return true
	}
	return false
}

// FactType splits facts into point-in-time (stock) and period-range (flow)
// observations. Balance-sheet lines are stock facts; cash-flow and income
// lines are flow facts.
type FactType string

const (
	FactTypeStock FactType = "stock"
	FactTypeFlow  FactType = "flow"
)

// ValueNature mirrors the dictionary's value classification. "ratio" marks
// per-share/percentage lines that must never consensus-merge with amounts.
type ValueNature string

const (
	ValueNatureStock ValueNature = "stock"
	ValueNatureFlow  ValueNature = "flow"
	ValueNatureRatio ValueNature = "ratio"
)

func (n ValueNature) FactType() FactType {
	if n == ValueNatureStock {
		return FactTypeStock
	}
	return FactTypeFlow
}

type VersionStatus string

const (
	VersionStatusRunning VersionStatus = "running"
	VersionStatusReady   VersionStatus = "ready"
	VersionStatusFailed  VersionStatus = "failed"
	VersionStatusSkipped VersionStatus = "skipped"
)

// Terminal reports whether the version reached an end state. Consensus
// resolution only starts once every engine version is terminal.
func (s VersionStatus) Terminal() bool {
	return s == VersionStatusReady || s == VersionStatusFailed || s == VersionStatusSkipped
}

type ResolutionStatus string

const (
	ResolutionStatusAutoAgreed       ResolutionStatus = "auto_agreed"
	ResolutionStatusAutoSingleEngine ResolutionStatus = "auto_single_engine"
	ResolutionStatusUnresolved       ResolutionStatus = "unresolved"
	ResolutionStatusVerified         ResolutionStatus = "verified"
)

type ResolutionMethod string

const (
	ResolutionMethodConsensus ResolutionMethod = "consensus"
	ResolutionMethodManual    ResolutionMethod = "manual"
)

type ConsolidationScope string

const (
	ScopeConsolidated ConsolidationScope = "consolidated"
	ScopeParent       ConsolidationScope = "parent"
)

type CheckStatus string

const (
	CheckStatusPass CheckStatus = "pass"
	CheckStatusFail CheckStatus = "fail"
)
