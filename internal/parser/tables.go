package parser

import (
	"regexp"
	"strings"
)

var (
	pipeRowRe  = regexp.MustCompile(`^\s*\|.*\|\s*$`)
	alignRowRe = regexp.MustCompile(`^\s*\|?\s*(:?-{3,}:?\s*\|)+\s*:?-{3,}:?\s*\|?\s*$`)
)

// ConvertPipeTables rewrites markdown pipe tables outside code fences into
// fenced csv blocks with every field quoted. A table starts at a pipe row
// followed by an alignment row and runs through the following pipe rows.
// When nothing changes the input is returned as is and changed is false.
func ConvertPipeTables(md string) (out string, changed bool) {
	lines := strings.Split(strings.TrimSuffix(strings.ReplaceAll(md, "\r\n", "\n"), "\n"), "\n")
	result := make([]string, 0, len(lines))
	inCode := false

	for i := 0; i < len(lines); {
		line := lines[i]
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inCode = !inCode
			result = append(result, line)
			i++
			continue
		}

		if !inCode && i+1 < len(lines) && pipeRowRe.MatchString(line) && alignRowRe.MatchString(lines[i+1]) {
			rows := [][]string{splitCells(line)}
			i += 2
			for i < len(lines) && pipeRowRe.MatchString(lines[i]) {
				rows = append(rows, splitCells(lines[i]))
				i++
			}
			result = append(result, "```csv", csvBlock(rows), "```")
			changed = true
			continue
		}

		result = append(result, line)
		i++
	}

	if !changed {
		return md, false
	}
	return strings.Join(result, "\n") + "\n", true
}

func splitCells(line string) []string {
	s := strings.TrimSpace(line)
	s = strings.TrimPrefix(s, "|")
	s = strings.TrimSuffix(s, "|")
	cells := strings.Split(s, "|")
	for i, c := range cells {
		cells[i] = strings.TrimSpace(c)
	}
	return cells
}

// csvBlock renders rows with every field double-quoted and embedded quotes
// doubled. encoding/csv only quotes fields that need it.
func csvBlock(rows [][]string) string {
	var b strings.Builder
	for i, row := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		for j, cell := range row {
			if j > 0 {
				b.WriteByte(',')
			}
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(cell, `"`, `""`))
			b.WriteByte('"')
		}
	}
	return b.String()
}
