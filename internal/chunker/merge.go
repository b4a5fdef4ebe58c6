package chunker

import (
	"unicode/utf8"

	"github.com/accioltd/mdchunk/internal/doctree"
)

// MergeShort forward-merges every non-root section shorter than minChars
// (measured in characters) into its successors until it reaches minChars or
// runs out of sections. The merged section keeps the earliest heading path.
// Root sections are exempt. A trailing section may stay below minChars.
func MergeShort(text string, sections []doctree.Section, minChars int) []doctree.Section {
	if len(sections) == 0 {
		return sections
	}

	merged := make([]doctree.Section, 0, len(sections))
	i := 0
	for i < len(sections) {
		cur := sections[i]
		i++
		if !cur.IsRoot {
			for i < len(sections) && charLen(text, cur) < minChars {
				cur.End = sections[i].End
				i++
			}
		}
		merged = append(merged, cur)
	}
	return merged
}

func charLen(text string, s doctree.Section) int {
	return utf8.RuneCountInString(text[s.Start:s.End])
}
