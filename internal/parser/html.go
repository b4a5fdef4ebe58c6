package parser

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// HTMLParser converts HTML to markdown: h1-h6 become ATX headings, <img>
// becomes markdown image syntax and tables become pipe tables.
type HTMLParser struct{}

func (p *HTMLParser) Convert(r io.Reader, filename string) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var blocks []string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if level := headingLevel(n.Data); level > 0 {
				if t := textContent(n); t != "" {
					blocks = append(blocks, heading(level, t))
				}
				return
			}

			switch n.Data {
			case "script", "style", "nav", "footer", "header", "head", "noscript":
				return
			case "img":
				if img := imageMarkdown(n); img != "" {
					blocks = append(blocks, img)
				}
				return
			case "table":
				if t := tableMarkdown(n); t != "" {
					blocks = append(blocks, t)
				}
				return
			case "pre":
				if t := rawText(n); strings.TrimSpace(t) != "" {
					blocks = append(blocks, "```\n"+strings.Trim(t, "\n")+"\n```")
				}
				return
			case "p", "li", "blockquote", "figcaption", "dd", "dt":
				t := textContent(n)
				switch {
				case t == "":
				case n.Data == "li":
					blocks = append(blocks, "- "+t)
				case n.Data == "blockquote":
					blocks = append(blocks, "> "+t)
				default:
					blocks = append(blocks, t)
				}
				for _, img := range findAll(n, "img") {
					if md := imageMarkdown(img); md != "" {
						blocks = append(blocks, md)
					}
				}
				return
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	if body := findFirst(doc, "body"); body != nil {
		walk(body)
	} else {
		walk(doc)
	}

	return joinBlocks(blocks), nil
}

func headingLevel(tag string) int {
	if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0')
	}
	return 0
}

func imageMarkdown(n *html.Node) string {
	src := strings.TrimSpace(attr(n, "src"))
	if src == "" {
		return ""
	}
	alt := strings.NewReplacer("[", "", "]", "").Replace(strings.TrimSpace(attr(n, "alt")))
	return fmt.Sprintf("![%s](%s)", alt, strings.ReplaceAll(src, " ", "%20"))
}

func tableMarkdown(table *html.Node) string {
	var rows [][]string
	for _, tr := range findAll(table, "tr") {
		var cells []string
		for c := tr.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
				cells = append(cells, strings.ReplaceAll(textContent(c), "|", "/"))
			}
		}
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	}
	return pipeTable(rows)
}

// pipeTable renders rows as a markdown pipe table with the first row as the
// header. Short rows are padded.
func pipeTable(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	// The alignment row needs two columns to be recognized as a table.
	width = max(width, 2)

	var b strings.Builder
	writeRow := func(cells []string) {
		b.WriteString("|")
		for i := range width {
			c := ""
			if i < len(cells) {
				c = cells[i]
			}
			b.WriteString(" " + c + " |")
		}
		b.WriteString("\n")
	}
	writeRow(rows[0])
	b.WriteString("|" + strings.Repeat(" --- |", width) + "\n")
	for _, r := range rows[1:] {
		writeRow(r)
	}
	return strings.TrimRight(b.String(), "\n")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// textContent returns the node's text with whitespace collapsed.
func textContent(n *html.Node) string {
	return strings.Join(strings.Fields(rawText(n)), " ")
}

func rawText(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && n.Data == "br" {
			buf.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return buf.String()
}

func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := findFirst(c, tag); f != nil {
			return f
		}
	}
	return nil
}

func findAll(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	return out
}
