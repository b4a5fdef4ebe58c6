package chunker

import (
	"regexp"
	"strings"

	"github.com/accioltd/mdchunk/internal/doctree"
)

var headingRe = regexp.MustCompile(`^(#{1,6})\s+(.*\S)\s*$`)

// FindHeadings scans text line by line and returns its ATX headings in order.
// Offsets accumulate exact line lengths including terminators, so every
// Offset is a valid slice boundary into text.
func FindHeadings(text string) []doctree.Heading {
	var out []doctree.Heading
	pos := 0
	for i, line := range splitLinesKeepEnds(text) {
		trimmed := strings.TrimSuffix(line, "\n")
		if m := headingRe.FindStringSubmatch(trimmed); m != nil {
			out = append(out, doctree.Heading{
				LineIndex: i,
				Offset:    pos,
				Level:     len(m[1]),
				Title:     strings.TrimSpace(m[2]),
				Line:      strings.TrimRight(trimmed, "\r"),
			})
		}
		pos += len(line)
	}
	return out
}

// splitLinesKeepEnds splits after every "\n". A final line without a
// terminator is kept; an empty text yields no lines.
func splitLinesKeepEnds(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
