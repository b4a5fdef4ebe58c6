package doctree

// Heading is a structural marker line found in converted document text.
type Heading struct {
	LineIndex int    // Zero-based line number
	Offset    int    // Byte offset of the line start; a valid slice boundary
	Level     int    // 1-6
	Title     string // Trimmed heading text
	Line      string // The heading line without its terminator
}

// Section is a span of document text filed under one heading path.
type Section struct {
	Start       int      // Inclusive byte offset
	End         int      // Exclusive byte offset
	HeadingLine string   // Empty for root sections
	HeadingPath []string // Outermost first, e.g. ["Financial Results", "Revenue"]
	IsRoot      bool     // Preface content before the first heading
}

// Len returns the section's span in bytes.
func (s Section) Len() int { return s.End - s.Start }

// RootPath is the heading path given to preface content.
var RootPath = []string{"(root)"}

// Chunk is a final emitted unit of text, ready for enrichment.
type Chunk struct {
	SourceID    string    // File identifier
	Index       int       // Sequence number within document, starting at 0
	HeadingPath []string  // Heading hierarchy of the earliest merged section
	Text        string    // Chunk text, leading with the heading line for non-root chunks
	Tokens      int       // Approximate token count, see chunker.EstimateTokens
	IsRoot      bool      // Chunk holds preface content
	Vector      []float32 // Embedding, nil until enriched
	EmbedFailed bool      // Embedding was requested and did not succeed
}
