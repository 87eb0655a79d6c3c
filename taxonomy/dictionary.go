package taxonomy

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"bitbucket.org/mmdatafocus/finfacts_backend/models"
)

// MetricDef is one canonical metric with its label patterns. "patterns" allow
// constrained prefix/suffix matching; "patterns_exact" only ever match the
// whole normalized label.
type MetricDef struct {
	MetricCode       string               `json:"metric_code"`
	MetricNameCN     string               `json:"metric_name_cn"`
	MetricNameEN     string               `json:"metric_name_en"`
	StatementType    models.StatementType `json:"statement_type"`
	ValueNature      models.ValueNature   `json:"value_nature"`
	SignConvention   string               `json:"sign_convention"`
	ParentMetricCode string               `json:"parent_metric_code"`
	Patterns         []string             `json:"patterns"`
	PatternsExact    []string             `json:"patterns_exact"`
	PatternsEN       []string             `json:"patterns_en"`
	PatternsENExact  []string             `json:"patterns_en_exact"`
}

// Dictionary is a point-in-time snapshot of the metric taxonomy. It is built
// once at pipeline start and never mutated afterwards, so concurrent report
// pipelines may safely hold different snapshots.
type Dictionary struct {
	defs []MetricDef

	// exact maps normalized label -> def index, across exact and broad
	// patterns (a broad pattern also matches exactly).
	exact map[string]int

	// patterns holds load-filtered broad patterns for prefix/suffix matching.
	patterns []dictPattern

	shortLabelMax int
}

type dictPattern struct {
	norm     string
	defIndex int
}

// stopLabels are generic tokens that must never resolve to a metric on their
// own; dictionary entries reduced to one of these are dropped at load time.
var stopLabels = map[string]struct{}{
	"合计": {}, "小计": {}, "其他": {}, "其中": {},
	"项目": {}, "金额": {}, "单位": {}, "本期": {}, "上期": {},
	"资产": {}, "负债": {}, "权益": {}, "现金": {}, "成本": {}, "费用": {},
	"total": {}, "subtotal": {}, "other": {}, "amount": {}, "item": {},
}

var normStripRe = regexp.MustCompile(`[\s\x{3000}：:（）()，,．.。;；\-]+`)

// NormalizeLabel collapses whitespace/punctuation and lowercases, so grouping
// and matching see the same form on both sides of every comparison.
func NormalizeLabel(label string) string {
	return strings.ToLower(normStripRe.ReplaceAllString(label, ""))
}

type dictionaryFile struct {
	Metrics []MetricDef `json:"metrics"`
}

// Load reads a dictionary snapshot from a versioned JSON artifact. An empty
// path falls back to the built-in base definitions; an unreadable or empty
// file is a fatal pipeline error per the error-handling contract.
func Load(path string, shortLabelMax int) (*Dictionary, error) {
	defs := baseMetricDefs
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			// An explicitly configured dictionary must exist; silently falling
			// back to base defs would run a whole pipeline on the wrong taxonomy.
			return nil, fmt.Errorf("read metric dictionary %s: %w", path, err)
		}
		var file dictionaryFile
		if err := json.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("parse metric dictionary %s: %w", path, err)
		}
		if len(file.Metrics) == 0 {
			return nil, fmt.Errorf("metric dictionary %s contains no metrics", path)
		}
		defs = file.Metrics
	}
	return build(defs, shortLabelMax), nil
}

func build(defs []MetricDef, shortLabelMax int) *Dictionary {
	if shortLabelMax <= 0 {
		shortLabelMax = 4
	}
	d := &Dictionary{
		defs:          defs,
		exact:         make(map[string]int),
		shortLabelMax: shortLabelMax,
	}
	for i, def := range defs {
		for _, p := range append(append([]string{}, def.PatternsExact...), def.PatternsENExact...) {
			norm := NormalizeLabel(p)
			if norm == "" || isStopLabel(norm) {
				continue
			}
			if _, taken := d.exact[norm]; !taken {
				d.exact[norm] = i
			}
		}
		for _, p := range append(append([]string{}, def.Patterns...), def.PatternsEN...) {
			norm := NormalizeLabel(p)
			if norm == "" || isStopLabel(norm) {
				continue
			}
			if _, taken := d.exact[norm]; !taken {
				d.exact[norm] = i
			}
			// Short or generic patterns stay exact-only: a broad match on
			// them would collapse distinct line items into one metric.
			if utf8.RuneCountInString(norm) <= shortLabelMax {
				continue
			}
			d.patterns = append(d.patterns, dictPattern{norm: norm, defIndex: i})
		}
	}
	return d
}

func isStopLabel(norm string) bool {
	_, ok := stopLabels[norm]
	return ok
}

// Defs returns the snapshot's metric definitions (read-only by convention).
func (d *Dictionary) Defs() []MetricDef { return d.defs }

// DefByCode looks a metric up by canonical code.
func (d *Dictionary) DefByCode(code string) (*MetricDef, bool) {
	for i := range d.defs {
		if d.defs[i].MetricCode == code {
			return &d.defs[i], true
		}
	}
	return nil, false
}
