package enrich

import (
	"regexp"
	"strings"
)

var (
	markdownImageRe = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	fenceLineRe     = regexp.MustCompile("(?m)^\\s*```.*$\\n?")
	blankRunRe      = regexp.MustCompile(`\n{3,}`)
	headingLineRe   = regexp.MustCompile(`(?m)^([ \t]*)#`)
)

// CleanDescription makes model output safe to embed inside a fenced block.
// Fence lines would close the surrounding block early and markdown images
// would be picked up again as enrichment targets, so both are removed.
// A line starting with '#' is escaped so it cannot split the chunk as a
// heading.
func CleanDescription(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = fenceLineRe.ReplaceAllString(s, "")
	s = markdownImageRe.ReplaceAllString(s, "")
	s = headingLineRe.ReplaceAllString(s, `${1}\#`)
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
