package extract

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// numberRe finds numeric tokens with thousands separators, optional decimals,
// and parenthesis-as-negative. Word/percent boundaries are checked manually
// because RE2 has no lookaround.
var numberRe = regexp.MustCompile(`[(（]?-?(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d+)?[)）]?`)

func isBoundaryByte(b byte) bool {
	switch {
	case b >= '0' && b <= '9':
		return false
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z':
		return false
	case b == '.' || b == '%' || b == '_':
		return false
	}
	return true
}

func numberSpans(line string) [][]int {
	var spans [][]int
	for _, span := range numberRe.FindAllStringIndex(line, -1) {
		if span[0] > 0 && !isBoundaryByte(line[span[0]-1]) {
			continue
		}
		if span[1] < len(line) && !isBoundaryByte(line[span[1]]) {
			continue
		}
		spans = append(spans, span)
	}
	return spans
}

// ParseNumber parses one numeric token. Thousands separators are dropped and
// a fully parenthesized token is negative. A failed parse returns ok=false;
// callers must keep the raw text and degrade quality, never drop the cell.
func ParseNumber(text string) (decimal.Decimal, bool) {
	spans := numberSpans(text)
	if len(spans) == 0 {
		return decimal.Decimal{}, false
	}
	raw := text[spans[0][0]:spans[0][1]]
	cleaned := strings.ReplaceAll(raw, ",", "")
	negative := false
	if strings.HasPrefix(cleaned, "(") || strings.HasPrefix(cleaned, "（") {
		trimmed := strings.TrimPrefix(strings.TrimPrefix(cleaned, "("), "（")
		trimmed = strings.TrimSuffix(strings.TrimSuffix(trimmed, ")"), "）")
		cleaned = trimmed
		negative = true
	} else {
		cleaned = strings.TrimSuffix(strings.TrimSuffix(cleaned, ")"), "）")
	}
	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, false
	}
	if negative {
		value = value.Neg()
	}
	return value, true
}

// Cell is one extracted numeric token from a text line.
type Cell struct {
	Raw   string
	Value decimal.NullDecimal
}

// ExtractNumbers returns all numeric cells of a flat text line, in order.
func ExtractNumbers(line string) []Cell {
	var cells []Cell
	for _, span := range numberSpans(line) {
		raw := line[span[0]:span[1]]
		value, ok := ParseNumber(raw)
		cells = append(cells, Cell{
			Raw:   raw,
			Value: decimal.NullDecimal{Decimal: value, Valid: ok},
		})
	}
	return cells
}

var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

// StripNumbers removes numeric tokens from a line, leaving the row label.
func StripNumbers(line string) string {
	spans := numberSpans(line)
	if len(spans) == 0 {
		return strings.TrimSpace(multiSpaceRe.ReplaceAllString(line, " "))
	}
	var b strings.Builder
	last := 0
	for _, span := range spans {
		b.WriteString(line[last:span[0]])
		b.WriteString(" ")
		last = span[1]
	}
	b.WriteString(line[last:])
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(b.String(), " "))
}
