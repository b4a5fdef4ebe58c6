package parser

import (
	"bytes"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser normalizes markdown so every top-level heading is in ATX
// form. Setext headings ("Title\n=====") and closed ATX headings are
// rewritten; all other bytes pass through unchanged.
type MarkdownParser struct{}

type headingEdit struct {
	start, end int
	line       string
}

func (p *MarkdownParser) Convert(r io.Reader, filename string) (string, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	src = bytes.ReplaceAll(src, []byte("\r\n"), []byte("\n"))

	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var edits []headingEdit
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			continue
		}
		if e, ok := headingEditFor(h, src); ok {
			edits = append(edits, e)
		}
	}

	if len(edits) == 0 {
		return string(src), nil
	}

	var out strings.Builder
	pos := 0
	for _, e := range edits {
		out.Write(src[pos:e.start])
		out.WriteString(e.line)
		out.WriteByte('\n')
		pos = e.end
	}
	out.Write(src[pos:])
	return out.String(), nil
}

func headingEditFor(h *ast.Heading, src []byte) (headingEdit, bool) {
	lines := h.Lines()
	var parts []string
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		if t := strings.TrimSpace(string(seg.Value(src))); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return headingEdit{}, false
	}

	first := lines.At(0)
	last := lines.At(lines.Len() - 1)
	start := lineStart(src, first.Start)
	end := lineEnd(src, last.Start)

	if !bytes.HasPrefix(bytes.TrimLeft(src[start:], " "), []byte("#")) {
		// Setext: the underline is the line after the content.
		end = lineEnd(src, end)
	}

	line := heading(h.Level, strings.Join(parts, " "))
	if strings.TrimRight(string(src[start:end]), "\n") == line {
		return headingEdit{}, false
	}
	return headingEdit{start: start, end: end, line: line}, true
}

func lineStart(src []byte, pos int) int {
	for pos > 0 && src[pos-1] != '\n' {
		pos--
	}
	return pos
}

func lineEnd(src []byte, pos int) int {
	if pos >= len(src) {
		return len(src)
	}
	if i := bytes.IndexByte(src[pos:], '\n'); i >= 0 {
		return pos + i + 1
	}
	return len(src)
}
