package parser

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/fumiama/go-docx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textPara(style, text string) *docx.Paragraph {
	p := &docx.Paragraph{
		Children: []interface{}{&docx.Run{Children: []interface{}{&docx.Text{Text: text}}}},
	}
	if style != "" {
		p.Properties = &docx.ParagraphProperties{Style: &docx.Style{Val: style}}
	}
	return p
}

func cell(text string) *docx.WTableCell {
	return &docx.WTableCell{Paragraphs: []*docx.Paragraph{textPara("", text)}}
}

func TestDOCXBodyMarkdown(t *testing.T) {
	items := []interface{}{
		textPara("Heading1", "Intro"),
		&docx.Paragraph{Children: []interface{}{
			&docx.Run{Children: []interface{}{&docx.Text{Text: "Body "}, &docx.Drawing{}}},
			&docx.Hyperlink{Run: docx.Run{Children: []interface{}{&docx.Text{Text: "link"}}}},
		}},
		&docx.Table{TableRows: []*docx.WTableRow{
			{TableCells: []*docx.WTableCell{cell("A"), cell("B")}},
			{TableCells: []*docx.WTableCell{cell("1"), cell("2")}},
		}},
		textPara("heading 2", "Sub"),
		textPara("", "   "),
	}

	want := "# Intro\n\n" +
		"Body link\n\n" +
		"<!-- image -->\n\n" +
		"| A | B |\n| --- | --- |\n| 1 | 2 |\n\n" +
		"## Sub\n"
	assert.Equal(t, want, docxBodyMarkdown(items))
}

func TestDOCXHeadingLevel(t *testing.T) {
	assert.Equal(t, 1, docxHeadingLevel(textPara("Title", "x")))
	assert.Equal(t, 3, docxHeadingLevel(textPara("Heading3", "x")))
	assert.Equal(t, 6, docxHeadingLevel(textPara("heading 6", "x")))
	assert.Equal(t, 0, docxHeadingLevel(textPara("Heading7", "x")))
	assert.Equal(t, 0, docxHeadingLevel(textPara("Normal", "x")))
	assert.Equal(t, 0, docxHeadingLevel(textPara("", "x")))
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 3, 2))))
	return buf.Bytes()
}

func TestDOCXConvertImages(t *testing.T) {
	pic := pngBytes(t)

	doc := docx.New().WithDefaultTheme()
	doc.AddParagraph().Style("Heading1").AddText("Report")
	doc.AddParagraph().AddText("See the chart.")
	_, err := doc.AddParagraph().AddInlineDrawing(pic)
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = doc.WriteTo(&buf)
	require.NoError(t, err)

	p := &DOCXParser{}
	md, images, err := p.ConvertImages(bytes.NewReader(buf.Bytes()), "report.docx")
	require.NoError(t, err)
	assert.Equal(t, "# Report\n\nSee the chart.\n\n<!-- image -->\n", md)
	require.Len(t, images, 1)
	assert.Equal(t, pic, images[0].Data)
	assert.Equal(t, "png", images[0].Name[len(images[0].Name)-3:])

	plain, err := p.Convert(bytes.NewReader(buf.Bytes()), "report.docx")
	require.NoError(t, err)
	assert.Equal(t, md, plain)
}

func TestDOCXImageWithoutMedia(t *testing.T) {
	assert.Equal(t, Image{}, docxImage(docx.New(), &docx.Drawing{}))
}
