package extract

import (
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
)

// renderTable renders rows as a Markdown pipe table. The first row is the header;
// a table without data rows renders as "".
func renderTable(rows [][]string) string {
	kept := make([][]string, 0, len(rows))
	for _, r := range rows {
		if !blankRow(r) {
			kept = append(kept, r)
		}
	}
	if len(kept) < 2 {
		return ""
	}

	cols := 0
	for _, r := range kept {
		for i := len(r) - 1; i >= 0; i-- {
			if strings.TrimSpace(r[i]) != "" {
				if i+1 > cols {
					cols = i + 1
				}
				break
			}
		}
	}

	grid := make([][]string, len(kept))
	for i, r := range kept {
		grid[i] = make([]string, cols)
		for j := 0; j < cols && j < len(r); j++ {
			grid[i][j] = cleanCell(r[j])
		}
	}
	for j := range grid[0] {
		if grid[0][j] == "" {
			grid[0][j] = "Unnamed: " + strconv.Itoa(j)
		}
	}

	widths := make([]int, cols)
	numeric := make([]bool, cols)
	for j := 0; j < cols; j++ {
		widths[j] = 3
		seen := false
		numeric[j] = true
		for i, r := range grid {
			if w := runewidth.StringWidth(r[j]); w > widths[j] {
				widths[j] = w
			}
			if i == 0 || r[j] == "" {
				continue
			}
			seen = true
			if _, err := strconv.ParseFloat(strings.ReplaceAll(r[j], ",", ""), 64); err != nil {
				numeric[j] = false
			}
		}
		numeric[j] = numeric[j] && seen
	}

	var b strings.Builder
	writeRow := func(r []string) {
		b.WriteString("|")
		for j, cell := range r {
			b.WriteString(" ")
			if numeric[j] {
				b.WriteString(runewidth.FillLeft(cell, widths[j]))
			} else {
				b.WriteString(runewidth.FillRight(cell, widths[j]))
			}
			b.WriteString(" |")
		}
		b.WriteString("\n")
	}
	writeRow(grid[0])
	b.WriteString("|")
	for j := 0; j < cols; j++ {
		if numeric[j] {
			b.WriteString(strings.Repeat("-", widths[j]+1) + ":|")
		} else {
			b.WriteString(":" + strings.Repeat("-", widths[j]+1) + "|")
		}
	}
	b.WriteString("\n")
	for _, r := range grid[1:] {
		writeRow(r)
	}
	return strings.TrimRight(b.String(), "\n")
}

func blankRow(r []string) bool {
	for _, c := range r {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func cleanCell(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.ReplaceAll(s, "|", `\|`)
}
