package pipeline

import (
	"strings"

	"github.com/accioltd/mdchunk/internal/doctree"
)

const (
	MissingImageText     = "(Image file not found for description.)"
	EmptyDescriptionText = "(No description returned.)"
)

// DescribeItems turns image targets into WorkItems indexed by target position.
func DescribeItems(targets []ImageTarget) []WorkItem {
	items := make([]WorkItem, len(targets))
	for i, t := range targets {
		items[i] = WorkItem{Index: i, Kind: KindDescribe, ImagePath: t.Path, Reference: t.Reference}
	}
	return items
}

// EmbedItems turns chunks into WorkItems indexed by chunk position.
func EmbedItems(chunks []doctree.Chunk) []WorkItem {
	items := make([]WorkItem, len(chunks))
	for i, c := range chunks {
		items[i] = WorkItem{Index: i, Kind: KindEmbed, Text: c.Text}
	}
	return items
}

// DescriptionBlock renders the fenced block that replaces an image line.
func DescriptionBlock(reference, description string) []string {
	description = strings.TrimSpace(description)
	if description == "" {
		description = EmptyDescriptionText
	}
	return []string{
		"```image description",
		`reference: "` + reference + `"`,
		description,
		"```",
	}
}

// ReplaceLines substitutes each target line with its description block in
// one ascending pass over the original lines. Results are matched to targets
// by Index; targets without a result are left untouched.
func ReplaceLines(content string, targets []ImageTarget, results []Result) string {
	byLine := make(map[int]Result, len(results))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(targets) {
			continue
		}
		byLine[targets[r.Index].Line] = r
	}

	lines := SplitLines(content)
	out := make([]string, 0, len(lines)+3*len(byLine))
	for i, line := range lines {
		r, ok := byLine[i]
		if !ok {
			out = append(out, line)
			continue
		}
		out = append(out, DescriptionBlock(r.Reference, r.Value.Text)...)
	}
	return strings.Join(out, "\n") + "\n"
}

// AttachVectors stores each successful vector on the chunk at its Index and
// marks the rest as failed. It returns the number of failed embeddings.
func AttachVectors(chunks []doctree.Chunk, results []Result) int {
	failed := 0
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(chunks) {
			continue
		}
		if r.Success {
			chunks[r.Index].Vector = r.Value.Vector
			chunks[r.Index].EmbedFailed = false
			continue
		}
		chunks[r.Index].Vector = nil
		chunks[r.Index].EmbedFailed = true
		failed++
	}
	return failed
}
