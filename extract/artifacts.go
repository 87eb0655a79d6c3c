package extract

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// contentItem is one entry of a structured engine dump (<stem>_content_list.json).
type contentItem struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	TableBody string `json:"table_body"`
	Caption   any    `json:"table_caption"`
	PageIdx   int    `json:"page_idx"`
}

var pageFileRe = regexp.MustCompile(`^page_(\d+)\.txt$`)

// EngineOutput is what one engine produced for a report: structured tables
// when the engine emits them, flat text pages otherwise.
type EngineOutput struct {
	Tables []CellTable
	Pages  []TextPage
}

// LoadEngineOutput reads engine artifacts under dir. A *_content_list.json
// takes priority; otherwise pages/page_<n>.txt files are read in page order.
// An empty directory is an error so the caller can mark the version failed.
func LoadEngineOutput(dir string) (*EngineOutput, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*_content_list.json"))
	if err != nil {
		return nil, err
	}
	if len(matches) > 0 {
		sort.Strings(matches)
		return loadContentList(matches[0])
	}

	pagesDir := filepath.Join(dir, "pages")
	entries, err := os.ReadDir(pagesDir)
	if err != nil {
		return nil, fmt.Errorf("no engine artifacts under %s: %w", dir, err)
	}

	type numbered struct {
		page int
		path string
	}
	var files []numbered
	for _, e := range entries {
		m := pageFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		files = append(files, numbered{page: n, path: filepath.Join(pagesDir, e.Name())})
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no engine artifacts under %s", dir)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].page < files[j].page })

	out := &EngineOutput{}
	for _, f := range files {
		data, err := os.ReadFile(f.path)
		if err != nil {
			return nil, err
		}
		out.Pages = append(out.Pages, TextPage{
			Page:  f.page,
			Lines: strings.Split(string(data), "\n"),
		})
	}
	return out, nil
}

func loadContentList(path string) (*EngineOutput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []contentItem
	if err = json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	out := &EngineOutput{}
	textByPage := map[int][]string{}
	for _, item := range items {
		switch item.Type {
		case "table":
			cells, err := ParseHtmlTable(item.TableBody)
			if err != nil || len(cells) == 0 {
				continue
			}
			out.Tables = append(out.Tables, CellTable{
				Page:    item.PageIdx + 1,
				Caption: captionText(item.Caption),
				Cells:   cells,
			})
		case "text":
			if item.Text != "" {
				textByPage[item.PageIdx+1] = append(textByPage[item.PageIdx+1], item.Text)
			}
		}
	}

	pages := make([]int, 0, len(textByPage))
	for p := range textByPage {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	for _, p := range pages {
		out.Pages = append(out.Pages, TextPage{Page: p, Lines: textByPage[p]})
	}
	return out, nil
}

// captionText tolerates both string and []string caption shapes across
// engine versions.
func captionText(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case []any:
		var parts []string
		for _, item := range c {
			if s, ok := item.(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}

// ParseHtmlTable converts an HTML <table> fragment into spanned cell rows,
// preserving rowspan/colspan so the grid normalizer can expand them.
func ParseHtmlTable(fragment string) ([][]SpannedCell, error) {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return nil, err
	}

	var rows [][]SpannedCell
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			var row []SpannedCell
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type != html.ElementNode || (c.Data != "td" && c.Data != "th") {
					continue
				}
				row = append(row, SpannedCell{
					Text:    strings.TrimSpace(nodeText(c)),
					RowSpan: spanAttr(c, "rowspan"),
					ColSpan: spanAttr(c, "colspan"),
				})
			}
			if len(row) > 0 {
				rows = append(rows, row)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return rows, nil
}

// TablesFromOutput normalizes everything one engine produced into candidate
// input: structured tables first, then tables detected in the flat text.
// Structured tables carry their context in the caption; a caption that names
// no statement leaves the type empty for dictionary inference downstream.
func TablesFromOutput(out *EngineOutput) []Table {
	var tables []Table
	for _, ct := range out.Tables {
		grid := NormalizeCellTable(ct)
		if len(grid.Rows) == 0 {
			continue
		}
		statementType, _ := DetectStatementType(ct.Caption)
		currency, unit := DetectUnits(ct.Caption)
		tables = append(tables, Table{
			Title:         ct.Caption,
			StatementType: statementType,
			Page:          ct.Page,
			Currency:      currency,
			Units:         unit,
			Scope:         DetectScope(ct.Caption),
			RuleCode:      DetectRuleCode(ct.Caption),
			Grid:          grid,
		})
	}
	return append(tables, DetectTextTables(out.Pages)...)
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func spanAttr(n *html.Node, name string) int {
	for _, a := range n.Attr {
		if a.Key == name {
			if v, err := strconv.Atoi(strings.TrimSpace(a.Val)); err == nil && v > 0 {
				return v
			}
		}
	}
	return 1
}
