package pipeline

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/accioltd/mdchunk/internal/parser"
)

var (
	imageRefRe    = regexp.MustCompile(`!\[[^\]]*\]\(([^)]+)\)`)
	placeholderRe = regexp.MustCompile(`<!--\s*image\s*-->`)
)

// missingArtifact stands in for placeholders that have no artifact image.
const missingArtifact = "/nonexistent.png"

// ImageTarget is a document line to be replaced by an image description.
type ImageTarget struct {
	Line      int    // Zero-based line index
	Path      string // Absolute image path; may not exist
	Reference string // Path as recorded in the description block
}

// SplitLines splits content into lines without terminators. A trailing
// newline does not produce an empty final line.
func SplitLines(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// ImageScope controls how markdown image targets are resolved.
type ImageScope struct {
	// SourceDir resolves relative targets. Empty means the markdown's directory.
	SourceDir string
	// Root, when set, drops every markdown image target that is absolute or
	// resolves outside Root.
	Root string
}

// FindImageTargets lists the lines of the markdown at mdPath that reference a
// local image, either through markdown image syntax or through image
// placeholders that map, in order, onto <stem>_artifacts/*.png. Remote and
// data URLs are skipped. Targets are sorted by line, first entry per line wins.
func FindImageTargets(mdPath, content string, scope ImageScope) ([]ImageTarget, error) {
	mdDir, err := filepath.Abs(filepath.Dir(mdPath))
	if err != nil {
		return nil, fmt.Errorf("resolve markdown dir: %w", err)
	}
	srcDir := mdDir
	if scope.SourceDir != "" {
		if srcDir, err = filepath.Abs(scope.SourceDir); err != nil {
			return nil, fmt.Errorf("resolve source dir: %w", err)
		}
	}
	root := ""
	if scope.Root != "" {
		if root, err = filepath.Abs(scope.Root); err != nil {
			return nil, fmt.Errorf("resolve root: %w", err)
		}
	}

	var targets []ImageTarget
	var placeholderLines []int
	for i, line := range SplitLines(content) {
		if target, ok := firstLocalImage(line); ok {
			if p, ok := resolveTarget(srcDir, root, target); ok {
				targets = append(targets, ImageTarget{Line: i, Path: p})
			}
		}
		if placeholderRe.MatchString(line) {
			placeholderLines = append(placeholderLines, i)
		}
	}

	if len(placeholderLines) > 0 {
		artifacts, err := artifactImages(mdPath)
		if err != nil {
			return nil, err
		}
		for i, ln := range placeholderLines {
			p := missingArtifact
			if i < len(artifacts) {
				p = artifacts[i]
			}
			targets = append(targets, ImageTarget{Line: ln, Path: p})
		}
	}

	sort.SliceStable(targets, func(i, j int) bool { return targets[i].Line < targets[j].Line })
	deduped := make([]ImageTarget, 0, len(targets))
	for _, t := range targets {
		if n := len(deduped); n > 0 && deduped[n-1].Line == t.Line {
			continue
		}
		t.Reference = Reference(mdDir, t.Path)
		deduped = append(deduped, t)
	}
	return deduped, nil
}

// resolveTarget makes target absolute against srcDir. With a root, absolute
// targets and targets escaping root are rejected.
func resolveTarget(srcDir, root, target string) (string, bool) {
	if filepath.IsAbs(target) {
		if root != "" {
			return "", false
		}
		return filepath.Clean(target), true
	}
	p := filepath.Join(srcDir, target)
	if root == "" {
		return p, true
	}
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return p, true
}

func firstLocalImage(line string) (string, bool) {
	for _, m := range imageRefRe.FindAllStringSubmatch(line, -1) {
		target := m[1]
		lower := strings.ToLower(target)
		if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "data:") {
			continue
		}
		return target, true
	}
	return "", false
}

func artifactImages(mdPath string) ([]string, error) {
	dir, err := filepath.Abs(parser.ArtifactDir(mdPath))
	if err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.png"))
	if err != nil {
		return nil, err
	}
	slices.Sort(matches)
	return matches, nil
}

// Reference renders path relative to mdDir with forward slashes, falling
// back to the absolute path. Missing images have an empty reference.
func Reference(mdDir, path string) string {
	if !imageExists(path) {
		return ""
	}
	rel, err := filepath.Rel(mdDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// ImageDataURL decodes the image at path and re-encodes it as a PNG data URL.
func ImageDataURL(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("decode image %s: %w", filepath.Base(path), err)
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// WriteArtifacts stores a document's extracted images as the PNG artifacts
// its placeholders map onto, named by position so order is kept. Images that
// cannot be decoded are written as is and fail when described.
func WriteArtifacts(mdPath string, images []parser.Image) error {
	if len(images) == 0 {
		return nil
	}
	dir := parser.ArtifactDir(mdPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	for i, im := range images {
		data := im.Data
		if img, _, err := image.Decode(bytes.NewReader(im.Data)); err == nil {
			var buf bytes.Buffer
			if err := png.Encode(&buf, img); err == nil {
				data = buf.Bytes()
			}
		}
		name := filepath.Join(dir, fmt.Sprintf("image-%03d.png", i+1))
		if err := os.WriteFile(name, data, 0o644); err != nil {
			return fmt.Errorf("write artifact: %w", err)
		}
	}
	return nil
}
