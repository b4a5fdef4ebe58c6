package chunker

import (
	"strings"

	"github.com/accioltd/mdchunk/internal/doctree"
)

// Config controls chunking behavior.
type Config struct {
	MinChars int // Minimum characters per non-root chunk.
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{MinChars: 800}
}

// Split runs the full segmentation: heading scan, section build, forward merge
// and chunk emission.
func Split(sourceID, text string, cfg Config) []doctree.Chunk {
	if cfg.MinChars <= 0 {
		cfg.MinChars = 800
	}
	sections := BuildSections(text, FindHeadings(text))
	sections = MergeShort(text, sections, cfg.MinChars)
	return Emit(sourceID, text, sections)
}

// Emit slices each section out of text. Non-root chunks always lead with
// their heading line; it is prepended when the slice starts elsewhere.
// The token estimate is taken from the verbatim slice.
func Emit(sourceID, text string, sections []doctree.Section) []doctree.Chunk {
	chunks := make([]doctree.Chunk, 0, len(sections))
	for i, s := range sections {
		slice := text[s.Start:s.End]
		out := slice
		if !s.IsRoot && strings.TrimSpace(firstLine(out)) != strings.TrimSpace(s.HeadingLine) {
			out = s.HeadingLine + "\n" + out
		}
		chunks = append(chunks, doctree.Chunk{
			SourceID:    sourceID,
			Index:       i,
			HeadingPath: copyPath(s.HeadingPath),
			Text:        out,
			Tokens:      EstimateTokens(slice),
			IsRoot:      s.IsRoot,
		})
	}
	return chunks
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
