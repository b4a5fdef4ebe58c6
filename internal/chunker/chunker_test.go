package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accioltd/mdchunk/internal/doctree"
)

func body(n int) string {
	return strings.Repeat("x", n-1) + "\n"
}

func TestFindHeadings(t *testing.T) {
	text := "intro\n# Title\n#NoSpace\n####### seven\n##   Spaced Out   \ntext\n###### Six\n"
	hs := FindHeadings(text)
	require.Len(t, hs, 3)

	assert.Equal(t, 1, hs[0].LineIndex)
	assert.Equal(t, 6, hs[0].Offset)
	assert.Equal(t, 1, hs[0].Level)
	assert.Equal(t, "Title", hs[0].Title)
	assert.Equal(t, "# Title", hs[0].Line)

	assert.Equal(t, 2, hs[1].Level)
	assert.Equal(t, "Spaced Out", hs[1].Title)
	assert.Equal(t, "##   Spaced Out", text[hs[1].Offset:hs[1].Offset+15])

	assert.Equal(t, 6, hs[2].Level)
	assert.Equal(t, "Six", hs[2].Title)
}

func TestFindHeadings_OffsetsAreByteBoundaries(t *testing.T) {
	text := "héllo wörld\r\n# Ünïcode\r\nbody\n## Next"
	hs := FindHeadings(text)
	require.Len(t, hs, 2)
	for _, h := range hs {
		assert.True(t, strings.HasPrefix(text[h.Offset:], "#"), "offset %d", h.Offset)
	}
	assert.Equal(t, "Ünïcode", hs[0].Title)
	assert.Equal(t, "# Ünïcode", hs[0].Line)
	assert.Equal(t, "Next", hs[1].Title)
}

func TestBuildSections_Partition(t *testing.T) {
	cases := map[string]string{
		"no headings":   "just some text\nmore text\n",
		"leading root":  "preface\n# A\na\n## B\nb\n# C\nc",
		"heading first": "# A\na\n### Deep\nd\n## B\n",
		"empty":         "",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			hs := FindHeadings(text)
			secs := BuildSections(text, hs)

			pos := 0
			roots := 0
			for _, s := range secs {
				assert.Equal(t, pos, s.Start)
				assert.Less(t, s.Start, s.End)
				pos = s.End
				if s.IsRoot {
					roots++
					assert.Equal(t, doctree.RootPath, s.HeadingPath)
				}
			}
			assert.Equal(t, len(text), pos)
			assert.LessOrEqual(t, roots, 1)
			assert.Equal(t, len(hs), len(secs)-roots)
		})
	}
}

func TestBuildSections_HeadingPaths(t *testing.T) {
	text := "# A\n### X\n## B\n#### Y\n# C\n## D\n"
	secs := BuildSections(text, FindHeadings(text))
	require.Len(t, secs, 6)

	want := [][]string{
		{"A"},
		{"A", "X"},
		{"A", "B"},
		{"A", "B", "Y"},
		{"C"},
		{"C", "D"},
	}
	for i, s := range secs {
		assert.False(t, s.IsRoot)
		assert.Equal(t, want[i], s.HeadingPath, "section %d", i)
	}
}

func TestMergeShort_ExampleAbsorbsIntoFirst(t *testing.T) {
	text := "# A\n" + body(40) + "## B\n" + body(40) + "# C\n" + body(2000)
	chunks := Split("doc.md", text, Config{MinChars: 800})

	require.Len(t, chunks, 1)
	assert.Equal(t, []string{"A"}, chunks[0].HeadingPath)
	assert.Equal(t, text, chunks[0].Text)
}

func TestMergeShort_TrailingUndersized(t *testing.T) {
	text := "# A\n" + body(40) + "## B\n" + body(40)
	chunks := Split("doc.md", text, Config{MinChars: 800})

	require.Len(t, chunks, 1)
	assert.Equal(t, []string{"A"}, chunks[0].HeadingPath)
	assert.Contains(t, chunks[0].Text, "## B")
}

func TestMergeShort_MinimumHolds(t *testing.T) {
	text := "# A\n" + body(500) + "# B\n" + body(400) + "# C\n" + body(900) + "# D\n" + body(10) + "# E\n" + body(10)
	secs := MergeShort(text, BuildSections(text, FindHeadings(text)), 800)

	require.Len(t, secs, 3)
	for i, s := range secs[:len(secs)-1] {
		assert.GreaterOrEqual(t, charLen(text, s), 800, "section %d", i)
	}
	assert.Equal(t, []string{"A"}, secs[0].HeadingPath)
	assert.Equal(t, []string{"C"}, secs[1].HeadingPath)
	assert.Equal(t, []string{"D"}, secs[2].HeadingPath)
	assert.Equal(t, len(text), secs[2].End)
}

func TestMergeShort_Idempotent(t *testing.T) {
	text := "pre\n# A\n" + body(100) + "## B\n" + body(900) + "# C\n" + body(50) + "# D\n" + body(30)
	once := MergeShort(text, BuildSections(text, FindHeadings(text)), 800)
	twice := MergeShort(text, once, 800)
	assert.Equal(t, once, twice)
}

func TestMergeShort_RootExempt(t *testing.T) {
	text := "short preface\n# A\n" + body(20)
	secs := MergeShort(text, BuildSections(text, FindHeadings(text)), 800)

	require.Len(t, secs, 2)
	assert.True(t, secs[0].IsRoot)
	assert.Equal(t, "short preface\n", text[secs[0].Start:secs[0].End])
	assert.Equal(t, []string{"A"}, secs[1].HeadingPath)
}

func TestMergeShort_CountsCharactersNotBytes(t *testing.T) {
	// 300 two-byte runes: 600 bytes but only 300 characters.
	text := "# A\n" + strings.Repeat("é", 300) + "\n# B\n" + body(900)
	secs := MergeShort(text, BuildSections(text, FindHeadings(text)), 500)
	require.Len(t, secs, 1)
}

func TestSplit_NoHeadingsIsSingleRoot(t *testing.T) {
	chunks := Split("plain.txt", "hello world\n", DefaultConfig())
	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].IsRoot)
	assert.Equal(t, []string{"(root)"}, chunks[0].HeadingPath)
	assert.Equal(t, "hello world\n", chunks[0].Text)
}

func TestSplit_EmptyText(t *testing.T) {
	assert.Empty(t, Split("empty.md", "", DefaultConfig()))
}

func TestSplit_ChunksLeadWithHeading(t *testing.T) {
	text := "intro\n# A\n" + body(900) + "## B\r\n" + body(900) + "# C\n" + body(10)
	chunks := Split("doc.md", text, DefaultConfig())
	require.Len(t, chunks, 4)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, "doc.md", c.SourceID)
	}
	for _, c := range chunks[1:] {
		first := strings.SplitN(c.Text, "\n", 2)[0]
		assert.True(t, strings.HasPrefix(strings.TrimSpace(first), "#"), "chunk %d starts with %q", c.Index, first)
	}
}

func TestEmit_PrependsMissingHeading(t *testing.T) {
	text := "# A\nalpha\nbeta\n"
	secs := []doctree.Section{{Start: 4, End: len(text), HeadingLine: "# A", HeadingPath: []string{"A"}}}
	chunks := Emit("doc.md", text, secs)

	require.Len(t, chunks, 1)
	assert.Equal(t, "# A\nalpha\nbeta\n", chunks[0].Text)
	assert.Equal(t, EstimateTokens("alpha\nbeta\n"), chunks[0].Tokens)
}

func TestEmit_KeepsExistingHeading(t *testing.T) {
	text := "  # A  \nalpha\n"
	secs := []doctree.Section{{Start: 0, End: len(text), HeadingLine: "# A", HeadingPath: []string{"A"}}}
	chunks := Emit("doc.md", text, secs)
	assert.Equal(t, text, chunks[0].Text)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 1, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 2, EstimateTokens("abcdefgh"))
	assert.Equal(t, 1, EstimateTokens("éééé"))
	assert.Equal(t, 250, EstimateTokens(strings.Repeat("w", 1000)))
}
