package extract

import (
	"testing"
)

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"1,234.56", "1234.56", true},
		{"(1,234.56)", "-1234.56", true},
		{"（200）", "-200", true},
		{"-300", "-300", true},
		{"1234567", "1234567", true},
		{"12345.67", "12345.67", true},
		{"2024年", "2024", true},
		{"0.5", "0.5", true},
		{"不适用", "", false},
		{"--", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseNumber(tc.in)
		if ok != tc.ok {
			t.Errorf("ParseNumber(%q) ok = %v, want %v", tc.in, ok, tc.ok)
			continue
		}
		if ok && got.String() != tc.want {
			t.Errorf("ParseNumber(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestParseNumberBoundaries(t *testing.T) {
	// A digit run glued to letters is an identifier, not a value.
	if _, ok := ParseNumber("FY2024"); ok {
		t.Errorf("FY2024 must not parse")
	}
	// Percent-suffixed tokens are ratios with their own handling upstream.
	if _, ok := ParseNumber("12.3%"); ok {
		t.Errorf("12.3%% must not parse as a plain number")
	}
}

func TestExtractNumbers(t *testing.T) {
	cells := ExtractNumbers("货币资金 1,234.56 (2,345.67)")
	if len(cells) != 2 {
		t.Fatalf("expected 2 cells, got %d", len(cells))
	}
	if cells[0].Raw != "1,234.56" || !cells[0].Value.Valid || cells[0].Value.Decimal.String() != "1234.56" {
		t.Errorf("cell 0 = %+v", cells[0])
	}
	if cells[1].Raw != "(2,345.67)" || cells[1].Value.Decimal.String() != "-2345.67" {
		t.Errorf("cell 1 = %+v", cells[1])
	}
}

func TestStripNumbers(t *testing.T) {
	cases := map[string]string{
		"货币资金 1,234.56 2,345.67":  "货币资金",
		"经营活动产生的现金流量净额 (300.00)": "经营活动产生的现金流量净额",
		"项目":                      "项目",
	}
	for in, want := range cases {
		if got := StripNumbers(in); got != want {
			t.Errorf("StripNumbers(%q) = %q, want %q", in, got, want)
		}
	}
}
