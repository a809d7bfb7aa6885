package search

import (
	"os"
	"strings"
)

// PrepareMarkdownInMemory loads the knowledge-base Markdown at path and
// rewrites it into retrieval-friendly form: every non-empty line becomes its
// own blank-line-separated fact, and table rows are flattened into single
// facts by joining their cells. Heading lines pass through unchanged so the
// paragraph splitter can keep attributing sections.
//
// Files that produce no facts at all come back as their original bytes.
func PrepareMarkdownInMemory(path string) ([]byte, error) {
	orig, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.Grow(len(orig))
	wroteAny := false
	sawTable := false

	emit := func(fact string) {
		fact = strings.TrimSpace(fact)
		// "text" alone is a table header cell, not a fact.
		if fact == "" || strings.EqualFold(fact, "text") {
			return
		}
		b.WriteString(fact)
		b.WriteString("\n\n")
		wroteAny = true
	}

	for _, line := range strings.Split(string(orig), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "|") && strings.HasSuffix(line, "|") {
			sawTable = true
			if cells := tableCells(line); len(cells) > 0 {
				emit(strings.Join(cells, " "))
			}
			continue
		}
		emit(line)
	}

	if !sawTable && !wroteAny {
		return orig, nil
	}

	out := b.String()
	if sawTable {
		out = strings.TrimRight(out, "\n") + "\n"
	}
	return []byte(out), nil
}

// tableCells splits a "| a | b |" row into trimmed cell values. Separator
// rows ("|---|:---:|") yield nil.
func tableCells(row string) []string {
	cols := strings.Split(strings.Trim(row, "|"), "|")
	cells := make([]string, 0, len(cols))
	allSep := true
	for _, col := range cols {
		cell := strings.TrimSpace(col)
		if cell != "" {
			cells = append(cells, cell)
		}
		bare := strings.ReplaceAll(strings.ReplaceAll(cell, ":", ""), "-", "")
		if strings.TrimSpace(bare) != "" {
			allSep = false
		}
	}
	if allSep {
		return nil
	}
	return cells
}
