package chunker

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/accioltd/mdchunk/internal/doctree"
)

// PathSeparator joins heading path segments in records.
const PathSeparator = " > "

// FormatVector renders v as a bracket-delimited, comma-separated literal.
func FormatVector(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// ParseVector parses a literal produced by FormatVector. Empty brackets
// yield an empty vector.
func ParseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("vector literal must be bracketed: %q", truncate(s, 40))
	}
	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" {
		return []float32{}, nil
	}
	parts := strings.Split(inner, ",")
	out := make([]float32, 0, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("vector element %d: %w", i, err)
		}
		out = append(out, float32(f))
	}
	return out, nil
}

// FenceBody balances code fences in text and wraps it in a markdown fence.
func FenceBody(text string) string {
	body := text
	if strings.Count(body, "```")%2 == 1 {
		body += "\n```"
	}
	return "```markdown\n" + strings.TrimRight(body, " \t\r\n") + "\n```"
}

// WriteRecord writes one chunk record numbered n (1-based) for file.
func WriteRecord(w io.Writer, n int, file string, c doctree.Chunk) error {
	var b strings.Builder
	fmt.Fprintf(&b, "\n[# %d]\n", n)
	fmt.Fprintf(&b, "meta.file: %s\n", file)
	fmt.Fprintf(&b, "meta.heading_path: %s\n", strings.Join(c.HeadingPath, PathSeparator))
	fmt.Fprintf(&b, "meta.token_count: %d\n", c.Tokens)
	fmt.Fprintf(&b, "meta.embedding: %s\n", FormatVector(c.Vector))
	if c.EmbedFailed {
		b.WriteString("meta.embedding_status: failed\n")
	}
	b.WriteString(FenceBody(c.Text))
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteRecords writes up to limit records for file (limit <= 0 writes all).
func WriteRecords(w io.Writer, file string, chunks []doctree.Chunk, limit int) error {
	for i, c := range chunks {
		if limit > 0 && i >= limit {
			break
		}
		if err := WriteRecord(w, i+1, file, c); err != nil {
			return fmt.Errorf("write record %d: %w", i+1, err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
