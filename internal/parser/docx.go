package parser

import (
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/fumiama/go-docx"
)

// imagePlaceholder marks where a document embedded an image.
const imagePlaceholder = "<!-- image -->"

// DOCXParser handles .docx files. Heading styles become ATX headings,
// drawings become image placeholders and tables become pipe tables.
type DOCXParser struct{}

func (p *DOCXParser) Convert(r io.Reader, filename string) (string, error) {
	md, _, err := p.ConvertImages(r, filename)
	return md, err
}

// ConvertImages converts like Convert and also returns the media behind each
// image placeholder.
func (p *DOCXParser) ConvertImages(r io.Reader, filename string) (string, []Image, error) {
	// go-docx needs a ReadSeeker+size, so write to temp file.
	tmp, err := os.CreateTemp("", "mdchunk-docx-*.docx")
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	size, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return "", nil, fmt.Errorf("seek temp file: %w", err)
	}

	doc, err := docx.Parse(tmp, size)
	tmp.Close()
	if err != nil {
		return "", nil, fmt.Errorf("parse docx: %w", err)
	}

	md, drawings := docxBody(doc.Document.Body.Items)
	images := make([]Image, len(drawings))
	for i, d := range drawings {
		images[i] = docxImage(doc, d)
	}
	return md, images, nil
}

func docxBodyMarkdown(items []interface{}) string {
	md, _ := docxBody(items)
	return md
}

// docxBody renders the body and returns the drawings behind its image
// placeholders, in order.
func docxBody(items []interface{}) (string, []*docx.Drawing) {
	var blocks []string
	var drawings []*docx.Drawing
	for _, item := range items {
		switch v := item.(type) {
		case *docx.Paragraph:
			text, ds := docxParagraphContent(v)
			if text != "" {
				if level := docxHeadingLevel(v); level > 0 {
					blocks = append(blocks, heading(level, text))
				} else {
					blocks = append(blocks, text)
				}
			}
			for range ds {
				blocks = append(blocks, imagePlaceholder)
			}
			drawings = append(drawings, ds...)
		case *docx.Table:
			blocks = append(blocks, docxTableMarkdown(v))
		}
	}
	return joinBlocks(blocks), drawings
}

// docxImage looks up the media part a picture drawing points at.
func docxImage(doc *docx.Docx, d *docx.Drawing) Image {
	var g *docx.AGraphic
	switch {
	case d.Inline != nil:
		g = d.Inline.Graphic
	case d.Anchor != nil:
		g = d.Anchor.Graphic
	}
	if g == nil || g.GraphicData == nil || g.GraphicData.Pic == nil || g.GraphicData.Pic.BlipFill == nil {
		return Image{}
	}
	target, err := doc.ReferTarget(g.GraphicData.Pic.BlipFill.Blip.Embed)
	if err != nil {
		return Image{}
	}
	m := doc.Media(path.Base(target))
	if m == nil {
		return Image{}
	}
	return Image{Name: m.Name, Data: m.Data}
}

func docxHeadingLevel(para *docx.Paragraph) int {
	if para.Properties == nil || para.Properties.Style == nil {
		return 0
	}
	style := strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
	if style == "title" {
		return 1
	}
	if rest, ok := strings.CutPrefix(style, "heading"); ok && len(rest) == 1 && rest[0] >= '1' && rest[0] <= '6' {
		return int(rest[0] - '0')
	}
	return 0
}

func docxParagraphContent(para *docx.Paragraph) (string, []*docx.Drawing) {
	var buf strings.Builder
	var drawings []*docx.Drawing
	addRun := func(run *docx.Run) {
		for _, rc := range run.Children {
			switch c := rc.(type) {
			case *docx.Text:
				buf.WriteString(c.Text)
			case *docx.Tab:
				buf.WriteString(" ")
			case *docx.Drawing:
				drawings = append(drawings, c)
			}
		}
	}
	for _, child := range para.Children {
		switch c := child.(type) {
		case *docx.Run:
			addRun(c)
		case *docx.Hyperlink:
			addRun(&c.Run)
		}
	}
	return strings.TrimSpace(buf.String()), drawings
}

func docxTableMarkdown(tbl *docx.Table) string {
	var rows [][]string
	for _, tr := range tbl.TableRows {
		var cells []string
		for _, tc := range tr.TableCells {
			var parts []string
			for _, p := range tc.Paragraphs {
				if t, _ := docxParagraphContent(p); t != "" {
					parts = append(parts, t)
				}
			}
			cells = append(cells, strings.ReplaceAll(strings.Join(parts, " "), "|", "/"))
		}
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	}
	return pipeTable(rows)
}
