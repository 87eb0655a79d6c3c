package extract

import (
	"fmt"
	"regexp"
	"strings"

	"bitbucket.org/mmdatafocus/finfacts_backend/models"
)

// Grid is the rectangular logical table: row i, column j always resolves to
// exactly one textual value. Column 0 of the physical table is the row-label
// column; ColumnLabels covers the value columns only.
type Grid struct {
	ColumnLabels []string
	Rows         []GridRow
}

type GridRow struct {
	Label string
	Cells []string
	Page  int
}

// SpannedCell is one physical cell of a merged-cell table.
type SpannedCell struct {
	Text    string
	RowSpan int
	ColSpan int
}

// CellTable is one detected table carrying physical spans, as produced by a
// content-list engine artifact.
type CellTable struct {
	Page       int
	Caption    string
	HeaderRows int
	Cells      [][]SpannedCell
}

// Table is the normalized output handed to candidate building: the grid plus
// the surrounding context the builder needs.
type Table struct {
	Title         string
	StatementType models.StatementType
	Page          int
	Currency      string
	Units         string
	Scope         models.ConsolidationScope
	RuleCode      string
	Grid          Grid
}

const headerSeparator = "/"

// NormalizeCellTable expands merged cells into a rectangular grid. Every
// physical cell's text is copied into all grid positions its spans cover, so
// span-covered positions are never empty. Multi-row headers merge top-down
// into one composite column label; a column left without any header text gets
// a positional col_<n> label. Irregular tables degrade to positional labels
// rather than being rejected: downstream consensus must still align columns.
func NormalizeCellTable(t CellTable) Grid {
	expanded := expandSpans(t.Cells)
	if len(expanded) == 0 {
		return Grid{}
	}

	headerRows := t.HeaderRows
	if headerRows <= 0 {
		headerRows = detectHeaderRows(expanded)
	}
	if headerRows > len(expanded) {
		headerRows = len(expanded)
	}

	width := 0
	for _, row := range expanded {
		if len(row) > width {
			width = len(row)
		}
	}
	if width < 2 {
		width = 2
	}

	labels := make([]string, width-1)
	for col := 1; col < width; col++ {
		var parts []string
		for r := 0; r < headerRows; r++ {
			text := cellAt(expanded, r, col)
			if text == "" {
				continue
			}
			// A span repeating the same text across header rows contributes once.
			if len(parts) > 0 && parts[len(parts)-1] == text {
				continue
			}
			parts = append(parts, text)
		}
		if len(parts) == 0 {
			labels[col-1] = fmt.Sprintf("col_%d", col)
		} else {
			labels[col-1] = strings.Join(parts, headerSeparator)
		}
	}

	grid := Grid{ColumnLabels: labels}
	for r := headerRows; r < len(expanded); r++ {
		label := cellAt(expanded, r, 0)
		cells := make([]string, width-1)
		empty := label == ""
		for col := 1; col < width; col++ {
			cells[col-1] = cellAt(expanded, r, col)
			if cells[col-1] != "" {
				empty = false
			}
		}
		// Rows with nothing in them carry no fact and are dropped.
		if empty {
			continue
		}
		grid.Rows = append(grid.Rows, GridRow{Label: label, Cells: cells, Page: t.Page})
	}
	return grid
}

// expandSpans performs the standard occupancy-matrix placement: cells are laid
// left-to-right skipping positions claimed by earlier row/column spans, and
// their text fills every covered position.
func expandSpans(rows [][]SpannedCell) [][]string {
	if len(rows) == 0 {
		return nil
	}
	grid := make([][]string, len(rows))
	occupied := make([][]bool, len(rows))

	place := func(r, c int, text string) {
		for len(grid[r]) <= c {
			grid[r] = append(grid[r], "")
			occupied[r] = append(occupied[r], false)
		}
		grid[r][c] = text
		occupied[r][c] = true
	}
	taken := func(r, c int) bool {
		return c < len(occupied[r]) && occupied[r][c]
	}

	for r, row := range rows {
		col := 0
		for _, cell := range row {
			for taken(r, col) {
				col++
			}
			rowSpan := max(cell.RowSpan, 1)
			colSpan := max(cell.ColSpan, 1)
			text := strings.TrimSpace(cell.Text)
			for dr := 0; dr < rowSpan && r+dr < len(rows); dr++ {
				for dc := 0; dc < colSpan; dc++ {
					place(r+dr, col+dc, text)
				}
			}
			col += colSpan
		}
	}
	return grid
}

// periodHeaderCellRe accepts year or year-end labels ("2024", "2024年度",
// "2024年末") so detectHeaderRows does not mistake them for data cells.
var periodHeaderCellRe = regexp.MustCompile(`^20\d{2}\s*(?:年度?|年末)?$`)

// detectHeaderRows counts leading rows with no parseable number in any value
// cell. Year and date labels do not count as numbers: a header row of
// "2024年12月31日" columns is still a header. A table whose first row is
// already numeric has no header at all and every column falls back to a
// positional label.
func detectHeaderRows(grid [][]string) int {
	count := 0
	for _, row := range grid {
		if len(row) > 1 {
			numeric := false
			for _, cell := range row[1:] {
				cell = strings.TrimSpace(cell)
				if periodHeaderCellRe.MatchString(cell) || dateRe.MatchString(cell) {
					continue
				}
				if _, ok := ParseNumber(cell); ok {
					numeric = true
					break
				}
			}
			if numeric {
				break
			}
		}
		count++
		if count == 3 {
			break
		}
	}
	return count
}

func cellAt(grid [][]string, r, c int) string {
	if r >= len(grid) || c >= len(grid[r]) {
		return ""
	}
	return strings.TrimSpace(grid[r][c])
}
