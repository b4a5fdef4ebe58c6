package chunker

import (
	"github.com/accioltd/mdchunk/internal/doctree"
)

// BuildSections partitions text into sections that start at each heading and
// end right before the next one. Content before the first heading becomes a
// root section; text without headings is a single root section.
func BuildSections(text string, headings []doctree.Heading) []doctree.Section {
	total := len(text)
	if len(headings) == 0 {
		if total == 0 {
			return nil
		}
		return []doctree.Section{rootSection(0, total)}
	}

	var sections []doctree.Section
	if first := headings[0].Offset; first > 0 {
		sections = append(sections, rootSection(0, first))
	}

	type stackEntry struct {
		level int
		title string
	}
	var stack []stackEntry

	for i, h := range headings {
		// Pop siblings and deeper levels; this also handles skipped levels.
		for len(stack) > 0 && stack[len(stack)-1].level >= h.Level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, stackEntry{level: h.Level, title: h.Title})

		path := make([]string, len(stack))
		for j, e := range stack {
			path[j] = e.title
		}

		end := total
		if i+1 < len(headings) {
			end = headings[i+1].Offset
		}

		sections = append(sections, doctree.Section{
			Start:       h.Offset,
			End:         end,
			HeadingLine: h.Line,
			HeadingPath: path,
		})
	}
	return sections
}

func rootSection(start, end int) doctree.Section {
	return doctree.Section{
		Start:       start,
		End:         end,
		HeadingPath: copyPath(doctree.RootPath),
		IsRoot:      true,
	}
}

func copyPath(p []string) []string {
	if len(p) == 0 {
		return nil
	}
	out := make([]string, len(p))
	copy(out, p)
	return out
}
