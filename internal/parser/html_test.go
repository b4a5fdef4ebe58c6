package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLParser(t *testing.T) {
	input := `<html><head><title>T</title><style>x{}</style></head><body>
<nav>menu</nav>
<h1>Main   Title</h1>
<p>Hello <b>world</b>.</p>
<p><img src="fig 1.png" alt="Fig [1]"></p>
<h3>Deep</h3>
<ul><li>one</li><li>two</li></ul>
<table><tr><th>A</th><th>B</th></tr><tr><td>1</td><td>x|y</td></tr></table>
<img src="http://r/x.png">
<pre>code
  line</pre>
</body></html>`

	want := "# Main Title\n\n" +
		"Hello world.\n\n" +
		"![Fig 1](fig%201.png)\n\n" +
		"### Deep\n\n" +
		"- one\n\n" +
		"- two\n\n" +
		"| A | B |\n| --- | --- |\n| 1 | x/y |\n\n" +
		"![](http://r/x.png)\n\n" +
		"```\ncode\n  line\n```\n"

	got, err := (&HTMLParser{}).Convert(strings.NewReader(input), "page.html")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestHTMLTableFeedsPipeTableConversion(t *testing.T) {
	md, err := (&HTMLParser{}).Convert(strings.NewReader(`<table><tr><td>k</td><td>v</td></tr><tr><td>a</td></tr></table>`), "t.html")
	require.NoError(t, err)

	out, changed := ConvertPipeTables(md)
	assert.True(t, changed)
	assert.Equal(t, "```csv\n\"k\",\"v\"\n\"a\",\"\"\n```\n", out)
}

func TestHeadingLevel(t *testing.T) {
	assert.Equal(t, 1, headingLevel("h1"))
	assert.Equal(t, 6, headingLevel("h6"))
	assert.Equal(t, 0, headingLevel("h7"))
	assert.Equal(t, 0, headingLevel("hr"))
	assert.Equal(t, 0, headingLevel("p"))
}
