package main

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/accioltd/mdchunk/internal/chunker"
	"github.com/accioltd/mdchunk/internal/config"
	"github.com/accioltd/mdchunk/internal/enrich"
	"github.com/accioltd/mdchunk/internal/parser"
	"github.com/accioltd/mdchunk/internal/pipeline"
)

// newService builds the enrichment service for a command run.
var newService = func(cfg config.Config) (enrich.Service, error) {
	return enrich.New(cfg.EnrichOptions(), nil)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "mdchunk",
		Usage: "Convert documents to markdown and split them into embedded chunks",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "convert",
				Usage:  "Convert every supported file under a directory to markdown",
				Action: convertCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "in",
						Usage:    "Input directory",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "out",
						Usage:    "Output directory; each file is written to <out>/<stem>/<stem>.md",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "describe-images",
						Usage: "Replace local image references with generated descriptions",
					},
					&cli.IntFlag{
						Name:    "concurrency",
						Usage:   "Maximum in-flight service requests",
						Value:   10,
						EnvVars: []string{"ENRICH_CONCURRENCY"},
					},
					&cli.BoolFlag{
						Name:    "pdf-fallback",
						Usage:   "Fall back to pdftotext when the PDF library finds no text",
						Value:   true,
						EnvVars: []string{"PDF_FALLBACK_PDFTOTEXT"},
					},
				},
			},
			{
				Name:   "chunk",
				Usage:  "Split markdown files into heading-scoped chunks and print records",
				Action: chunkCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "dir",
						Aliases:  []string{"d"},
						Usage:    "Directory searched recursively for *.md files",
						Required: true,
					},
					&cli.IntFlag{
						Name:    "min-chars",
						Usage:   "Minimum characters per non-root chunk",
						Value:   800,
						EnvVars: []string{"MIN_CHARS"},
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum chunks per file (0 = all)",
					},
					&cli.BoolFlag{
						Name:  "no-embed",
						Usage: "Skip embeddings and print empty vectors",
					},
					&cli.IntFlag{
						Name:    "concurrency",
						Usage:   "Maximum in-flight service requests",
						Value:   10,
						EnvVars: []string{"ENRICH_CONCURRENCY"},
					},
				},
			},
		},
	}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if c.IsSet("concurrency") {
		cfg.EnrichConcurrency = max(1, c.Int("concurrency"))
	}
	if c.IsSet("min-chars") {
		cfg.MinChars = c.Int("min-chars")
	}
	if c.IsSet("pdf-fallback") {
		cfg.PDFFallbackPdftotext = c.Bool("pdf-fallback")
	}
	return cfg, nil
}

// openEnricher creates the shared service handle and the enricher on top of
// it. The returned func releases both.
func openEnricher(cfg config.Config) (*pipeline.Enricher, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	svc, err := newService(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create enrichment service: %w", err)
	}
	retry := pipeline.RetryConfig{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxJitter:   cfg.RetryMaxJitter,
	}
	e, err := pipeline.NewEnricher(svc, cfg.EnrichConcurrency, retry, slog.Default())
	if err != nil {
		svc.Close()
		return nil, nil, err
	}
	return e, func() {
		e.Release()
		svc.Close()
	}, nil
}

func convertCommand(c *cli.Context) error {
	ctx := c.Context
	inDir, outDir := c.String("in"), c.String("out")

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	var enricher *pipeline.Enricher
	if c.Bool("describe-images") {
		e, release, err := openEnricher(cfg)
		if err != nil {
			return err
		}
		defer release()
		enricher = e
	}

	files, err := listFiles(inDir, parser.IsSupportedExtension)
	if err != nil {
		return err
	}
	slog.Info("converting", "in", inDir, "out", outDir, "files", len(files), "describe_images", enricher != nil)

	opts := parser.Options{PDFFallbackPdftotext: cfg.PDFFallbackPdftotext}
	failed := 0
	for _, path := range files {
		outPath, err := convertFile(ctx, path, outDir, opts, enricher)
		if err != nil {
			slog.Error("convert failed", "file", path, "error", err)
			failed++
			continue
		}
		slog.Info("converted", "file", path, "out", outPath)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed to convert", failed, len(files))
	}
	return nil
}

func convertFile(ctx context.Context, path, outDir string, opts parser.Options, e *pipeline.Enricher) (string, error) {
	conv, err := parser.ForFile(path, opts)
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	var md string
	var images []parser.Image
	if ic, ok := conv.(parser.ImageConverter); ok {
		md, images, err = ic.ConvertImages(f, path)
	} else {
		md, err = conv.Convert(f, path)
	}
	f.Close()
	if err != nil {
		return "", err
	}
	md, _ = parser.ConvertPipeTables(md)

	outPath := parser.OutputPath(outDir, path)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(outPath, []byte(md), 0o644); err != nil {
		return "", fmt.Errorf("write markdown: %w", err)
	}
	if err := pipeline.WriteArtifacts(outPath, images); err != nil {
		return "", err
	}
	if e == nil {
		return outPath, nil
	}

	// Image links in the source are relative to the source file.
	scope := pipeline.ImageScope{SourceDir: filepath.Dir(path)}
	described, sum, err := pipeline.DescribeImages(ctx, e, outPath, md, scope)
	if err != nil {
		return "", fmt.Errorf("describe images: %w", err)
	}
	slog.Info("described images", "file", outPath, "found", sum.Found, "described", sum.Described, "missing", sum.Missing, "failed", sum.Failed)
	if sum.Found == 0 {
		return outPath, nil
	}
	if err := os.WriteFile(outPath, []byte(described), 0o644); err != nil {
		return "", fmt.Errorf("write described markdown: %w", err)
	}
	return outPath, nil
}

func chunkCommand(c *cli.Context) error {
	ctx := c.Context
	dir := c.String("dir")
	limit := max(0, c.Int("limit"))

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	var enricher *pipeline.Enricher
	if !c.Bool("no-embed") {
		e, release, err := openEnricher(cfg)
		if err != nil {
			return err
		}
		defer release()
		enricher = e
	}

	files, err := listFiles(dir, func(name string) bool {
		return strings.EqualFold(filepath.Ext(name), ".md")
	})
	if err != nil {
		return err
	}

	out := c.App.Writer
	chunkCfg := chunker.Config{MinChars: cfg.MinChars}
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		chunks := chunker.Split(path, string(data), chunkCfg)
		if limit > 0 && len(chunks) > limit {
			chunks = chunks[:limit]
		}
		if enricher != nil {
			if failed := pipeline.EmbedChunks(ctx, enricher, chunks); failed > 0 {
				slog.Warn("embeddings failed", "file", path, "failed", failed, "total", len(chunks))
			}
		}

		if _, err := fmt.Fprintf(out, "=== %s ===\n", path); err != nil {
			return err
		}
		if err := chunker.WriteRecords(out, path, chunks, 0); err != nil {
			return err
		}
		slog.Debug("chunked", "file", path, "chunks", len(chunks))
	}
	return nil
}

// listFiles walks root and returns the files accepted by keep, sorted.
func listFiles(root string, keep func(name string) bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && keep(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

func setupLogger(c *cli.Context) error {
	var level slog.Level
	switch strings.ToLower(c.String("log-level")) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", c.String("log-level"))
	}

	// Records go to stdout; diagnostics stay on stderr.
	slog.SetDefault(slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: level})))
	return nil
}
