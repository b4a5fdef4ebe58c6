package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Converter turns raw document bytes into heading-structured markdown text.
// Headings are emitted in ATX form ("## Title") so the chunker can find them.
type Converter interface {
	Convert(r io.Reader, filename string) (string, error)
}

// Image is a picture embedded in a source document. Data is nil when the
// document references media it does not contain.
type Image struct {
	Name string
	Data []byte
}

// ImageConverter is a Converter that also returns the images the document
// embeds, one per image placeholder in the markdown, in document order.
type ImageConverter interface {
	Converter
	ConvertImages(r io.Reader, filename string) (string, []Image, error)
}

// Options tunes converter behavior.
type Options struct {
	PDFFallbackPdftotext bool
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the appropriate converter for a filename.
func ForFile(filename string, opts Options) (Converter, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".csv":
		return &CSVParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{FallbackPdftotext: opts.PDFFallbackPdftotext}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %q", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// Stem returns the base name of filename without its extension.
func Stem(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// OutputPath is where the converted markdown for inFile lives under outDir:
// <outDir>/<stem>/<stem>.md.
func OutputPath(outDir, inFile string) string {
	stem := Stem(inFile)
	return filepath.Join(outDir, stem, stem+".md")
}

// ArtifactDir is the directory next to the markdown at mdPath that holds
// the document's extracted images: <dir>/<stem>_artifacts.
func ArtifactDir(mdPath string) string {
	return filepath.Join(filepath.Dir(mdPath), Stem(mdPath)+"_artifacts")
}

// heading renders an ATX heading line, clamping level to 1-6.
func heading(level int, title string) string {
	level = max(1, min(level, 6))
	return strings.Repeat("#", level) + " " + strings.Join(strings.Fields(title), " ")
}

// joinBlocks joins non-empty blocks with blank lines and ends with a newline.
func joinBlocks(blocks []string) string {
	kept := blocks[:0:0]
	for _, b := range blocks {
		if strings.TrimSpace(b) != "" {
			kept = append(kept, strings.TrimRight(b, "\n"))
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return strings.Join(kept, "\n\n") + "\n"
}
