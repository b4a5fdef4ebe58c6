package pipeline

import (
	"context"
	"regexp"
	"strings"

	"github.com/accioltd/mdchunk/internal/doctree"
	"github.com/accioltd/mdchunk/internal/parser"
)

// ImageSummary counts the outcome of a describe pass.
type ImageSummary struct {
	Found     int
	Described int
	Missing   int
	Failed    int
}

// DescribeImages replaces every local image line of the markdown at mdPath
// with a description block. Content without image targets is returned as is.
func DescribeImages(ctx context.Context, e *Enricher, mdPath, content string, scope ImageScope) (string, ImageSummary, error) {
	targets, err := FindImageTargets(mdPath, content, scope)
	if err != nil {
		return content, ImageSummary{}, err
	}
	sum := ImageSummary{Found: len(targets)}
	if len(targets) == 0 {
		return content, sum, nil
	}

	results := e.Run(ctx, DescribeItems(targets))
	for _, r := range results {
		switch {
		case !r.Success:
			sum.Failed++
		case r.Reference == "":
			sum.Missing++
		default:
			sum.Described++
		}
	}
	return ReplaceLines(content, targets, results), sum, nil
}

// EmbedChunks embeds every chunk in place and returns the number of chunks
// whose embedding failed. Failed chunks keep their text and are marked.
func EmbedChunks(ctx context.Context, e *Enricher, chunks []doctree.Chunk) int {
	if len(chunks) == 0 {
		return 0
	}
	return AttachVectors(chunks, e.Run(ctx, EmbedItems(chunks)))
}

var (
	slugInvalidRe = regexp.MustCompile(`[^a-z0-9-]`)
	slugDashesRe  = regexp.MustCompile(`-+`)
)

// Slugify lowercases s and reduces it to [a-z0-9-], at most 50 bytes.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugInvalidRe.ReplaceAllString(s, "-")
	s = slugDashesRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 50 {
		s = strings.TrimRight(s[:50], "-")
	}
	return s
}

// DocID derives a stable document id from the file name and its bytes.
func DocID(filename string, data []byte) string {
	slug := Slugify(parser.Stem(filename))
	hash := ContentHashHex(data)[:12]
	if slug == "" {
		return hash
	}
	return slug + "-" + hash
}
