package taxonomy

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"bitbucket.org/mmdatafocus/finfacts_backend/models"
)

var (
	enumPrefixRe = regexp.MustCompile(`^([一二三四五六七八九十]+、|[（(][一二三四五六七八九十0-9]+[)）][、.．]?|[0-9]+[、.．]|[①②③④⑤⑥⑦⑧⑨⑩])`)
	subItemRe    = regexp.MustCompile(`^(其中|减|加|其中之|以及)[：:]`)
	footnoteRe   = regexp.MustCompile(`[（(][^）)]*(注|附注|见|note)[^）)]*[)）]`)
)

// StripAnnotations removes enumeration markers, sub-item prefixes and
// parenthetical footnote instructions so the residual text is the line item
// itself. Applied before normalization, iterating because markers nest
// ("一、其中：存货").
func StripAnnotations(label string) string {
	out := strings.TrimSpace(label)
	for {
		next := enumPrefixRe.ReplaceAllString(out, "")
		next = subItemRe.ReplaceAllString(next, "")
		next = footnoteRe.ReplaceAllString(next, "")
		next = strings.TrimSpace(next)
		if next == out {
			return out
		}
		out = next
	}
}

// MatchResult carries the matcher outcome for one row label.
type MatchResult struct {
	Def           *MetricDef
	StatementType models.StatementType
	// Matched is false for raw_* fallback codes.
	Matched bool
	// Exact is true when the whole normalized label equalled a pattern.
	Exact bool
}

// Match resolves a row label within one statement type. Exact match first;
// above the short-label threshold a constrained prefix/suffix pattern match is
// allowed. Never a broad substring match: that collapses distinct line items
// ("存货跌价准备" must not land on "存货").
func (d *Dictionary) Match(label string, statementType models.StatementType) (MatchResult, bool) {
	stripped := StripAnnotations(label)
	norm := NormalizeLabel(stripped)
	if norm == "" || isStopLabel(norm) {
		return MatchResult{}, false
	}
	labelIsRatio := strings.Contains(stripped, "率") || strings.Contains(stripped, "%") ||
		strings.Contains(stripped, "每股")

	if i, ok := d.exact[norm]; ok {
		def := &d.defs[i]
		if def.StatementType == statementType && ratioCompatible(def, labelIsRatio) {
			return MatchResult{Def: def, StatementType: def.StatementType, Matched: true, Exact: true}, true
		}
	}

	// Short labels live in the exact-only bucket.
	if utf8.RuneCountInString(norm) <= d.shortLabelMax {
		return MatchResult{}, false
	}

	var best *dictPattern
	for i := range d.patterns {
		p := &d.patterns[i]
		def := &d.defs[p.defIndex]
		if def.StatementType != statementType || !ratioCompatible(def, labelIsRatio) {
			continue
		}
		if !strings.HasPrefix(norm, p.norm) && !strings.HasSuffix(norm, p.norm) {
			continue
		}
		if best == nil || len(p.norm) > len(best.norm) {
			best = p
		}
	}
	if best != nil {
		def := &d.defs[best.defIndex]
		return MatchResult{Def: def, StatementType: def.StatementType, Matched: true}, true
	}
	return MatchResult{}, false
}

func ratioCompatible(def *MetricDef, labelIsRatio bool) bool {
	if labelIsRatio {
		return def.ValueNature == models.ValueNatureRatio
	}
	return def.ValueNature != models.ValueNatureRatio
}

// MatchRow is the full per-row routing: an explicit background rule wins, then
// the table's dominant statement type, and for mixed tables each row may still
// land in another statement when it only matches there exactly.
func (d *Dictionary) MatchRow(label string, tableType models.StatementType, rules *BackgroundRules, ruleCode string) MatchResult {
	statementType := tableType
	if rules != nil && ruleCode != "" {
		if routed, ok := rules.Route(ruleCode); ok {
			statementType = routed
		}
	}

	if res, ok := d.Match(label, statementType); ok {
		return res
	}

	// Mixed-type tables: decide per row, but only on an exact match elsewhere.
	for _, other := range []models.StatementType{models.StatementTypeBalance, models.StatementTypeIncome, models.StatementTypeCashflow} {
		if other == statementType {
			continue
		}
		if res, ok := d.Match(label, other); ok && res.Exact {
			return res
		}
	}

	return MatchResult{StatementType: statementType, Matched: false}
}

// RawMetricCode derives a deterministic fallback code for unmatched labels.
// Same label + statement always hashes identically, so unmatched rows from
// different engines still group for consensus.
func RawMetricCode(label string, statementType models.StatementType) string {
	norm := NormalizeLabel(StripAnnotations(label))
	digest := sha1.Sum([]byte(string(statementType) + ":" + norm))
	return "raw_" + hex.EncodeToString(digest[:])[:12]
}

// InferStatementType scores row labels against the dictionary and returns the
// dominant statement type, or false when nothing scores.
func (d *Dictionary) InferStatementType(labels []string) (models.StatementType, bool) {
	scores := map[models.StatementType]int{}
	for _, label := range labels {
		if res, ok := d.Match(label, models.StatementTypeBalance); ok {
			scores[res.StatementType]++
		}
		if res, ok := d.Match(label, models.StatementTypeIncome); ok {
			scores[res.StatementType]++
		}
		if res, ok := d.Match(label, models.StatementTypeCashflow); ok {
			scores[res.StatementType]++
		}
	}
	var best models.StatementType
	bestScore := 0
	for _, st := range []models.StatementType{models.StatementTypeBalance, models.StatementTypeIncome, models.StatementTypeCashflow} {
		if scores[st] > bestScore {
			best, bestScore = st, scores[st]
		}
	}
	return best, bestScore > 0
}

// BackgroundRules maps statement-section routing codes (taxonomy background
// rules) to statement types. Loaded read-only next to the dictionary.
type BackgroundRules struct {
	routes map[string]models.StatementType
}

type backgroundRulesFile struct {
	Rules []struct {
		Code          string               `json:"code"`
		StatementType models.StatementType `json:"statement_type"`
	} `json:"rules"`
}

// LoadBackgroundRules reads the routing artifact. A missing file yields empty
// rules (routing is optional); a corrupt file is an error.
func LoadBackgroundRules(path string) (*BackgroundRules, error) {
	rules := &BackgroundRules{routes: map[string]models.StatementType{}}
	if path == "" {
		return rules, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return rules, nil
		}
		return nil, fmt.Errorf("read background rules %s: %w", path, err)
	}
	var file backgroundRulesFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse background rules %s: %w", path, err)
	}
	for _, rule := range file.Rules {
		code := strings.ToLower(strings.TrimSpace(rule.Code))
		if code != "" && rule.StatementType.Valid() {
			rules.routes[code] = rule.StatementType
		}
	}
	return rules, nil
}

func (r *BackgroundRules) Route(code string) (models.StatementType, bool) {
	st, ok := r.routes[strings.ToLower(strings.TrimSpace(code))]
	return st, ok
}
