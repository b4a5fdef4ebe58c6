package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/accioltd/mdchunk/internal/chunker"
	"github.com/accioltd/mdchunk/internal/doctree"
	"github.com/accioltd/mdchunk/internal/parser"
	"github.com/accioltd/mdchunk/internal/pathstore"
)

// Worker processes a single document job.
type Worker struct {
	enricher  *Enricher
	pathstore *pathstore.Client
	log       *slog.Logger
	parseOpts parser.Options
	minChars  int

	maxConcurrentStore int
}

// NewWorker creates a worker. ps may be nil, in which case chunks are only
// kept on the job.
func NewWorker(e *Enricher, ps *pathstore.Client, log *slog.Logger, parseOpts parser.Options, minChars, maxStore int) *Worker {
	return &Worker{
		enricher:           e,
		pathstore:          ps,
		log:                log,
		parseOpts:          parseOpts,
		minChars:           minChars,
		maxConcurrentStore: max(1, maxStore),
	}
}

// Process runs the full chunking pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "doc_id", job.DocID)

	// Phase 1: Convert
	job.SetStatus(StatusConverting, "converting")
	conv, err := parser.ForFile(job.Filename, w.parseOpts)
	if err != nil {
		log.Error("unsupported format", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "converting")
		return
	}

	// Only images carried inside the upload are described; paths the
	// document points at are never read from this host.
	var md string
	var images []parser.Image
	if ic, ok := conv.(parser.ImageConverter); ok && job.Options.DescribeImages {
		md, images, err = ic.ConvertImages(bytes.NewReader(job.FileData()), job.Filename)
	} else {
		md, err = conv.Convert(bytes.NewReader(job.FileData()), job.Filename)
	}
	if err != nil {
		log.Error("convert failed", "error", err)
		job.AddError(fmt.Sprintf("convert: %s", err))
		job.SetStatus(StatusFailed, "converting")
		return
	}
	job.releaseFileData()
	md, _ = parser.ConvertPipeTables(md)
	job.SetContentHash(ContentHashHex([]byte(md)))

	// Phase 2: Describe images
	if job.Options.DescribeImages && len(images) == 0 {
		log.Info("no embedded images to describe")
	}
	if len(images) > 0 {
		job.SetStatus(StatusDescribing, "describing images")
		described, err := w.describe(ctx, job, md, images)
		if err != nil {
			log.Warn("describe images failed, keeping image lines", "error", err)
			job.AddError(fmt.Sprintf("describe: %s", err))
		} else {
			md = described
		}
	}

	// Phase 3: Chunk
	job.SetStatus(StatusChunking, "chunking")
	minChars := job.Options.MinChars
	if minChars <= 0 {
		minChars = w.minChars
	}
	chunks := chunker.Split(job.DocID, md, chunker.Config{MinChars: minChars})
	job.SetTotalChunks(len(chunks))
	log.Info("chunked document", "chunks", len(chunks), "min_chars", minChars)

	if len(chunks) == 0 {
		log.Warn("no chunks produced")
		job.AddError("no extractable content")
		job.SetStatus(StatusFailed, "chunking")
		return
	}

	// Phase 4: Embed
	job.SetStatus(StatusEmbedding, "embedding")
	failed := EmbedChunks(ctx, w.enricher, chunks)
	job.SetEmbedded(len(chunks)-failed, failed)
	if failed > 0 {
		log.Warn("some embeddings failed", "failed", failed, "total", len(chunks))
		job.AddError(fmt.Sprintf("%d of %d embeddings failed", failed, len(chunks)))
	}

	var records bytes.Buffer
	if err := chunker.WriteRecords(&records, job.Filename, chunks, 0); err != nil {
		log.Error("render records failed", "error", err)
		job.AddError(fmt.Sprintf("records: %s", err))
		job.SetStatus(StatusFailed, "embedding")
		return
	}
	job.SetRecords(records.String())

	if failed == len(chunks) {
		job.SetStatus(StatusFailed, "embedding")
		return
	}

	// Phase 5: Store chunks in pathstore.
	storeErrors := 0
	if w.pathstore != nil {
		job.SetStatus(StatusStoring, "storing")
		storeErrors = w.store(ctx, job, chunks, log)
	}

	if failed > 0 || storeErrors > 0 {
		job.SetStatus(StatusPartial, "done")
	} else {
		job.SetStatus(StatusCompleted, "done")
	}
}

// describe writes the markdown and its extracted images to a scratch
// directory and runs the image pass confined to it.
func (w *Worker) describe(ctx context.Context, job *Job, md string, images []parser.Image) (string, error) {
	dir, err := os.MkdirTemp("", "mdchunk-job-*")
	if err != nil {
		return md, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	mdPath := parser.OutputPath(dir, job.Filename)
	if err := os.MkdirAll(filepath.Dir(mdPath), 0o755); err != nil {
		return md, fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(mdPath, []byte(md), 0o644); err != nil {
		return md, fmt.Errorf("write markdown: %w", err)
	}
	if err := WriteArtifacts(mdPath, images); err != nil {
		return md, err
	}

	out, sum, err := DescribeImages(ctx, w.enricher, mdPath, md, ImageScope{Root: dir})
	if err != nil {
		return md, err
	}
	job.SetImages(sum.Found, sum.Described)
	w.log.Info("described images", "job_id", job.ID, "found", sum.Found, "described", sum.Described, "missing", sum.Missing, "failed", sum.Failed)
	return out, nil
}

// store writes every chunk, reading-order links and the document meta node.
// It returns the number of failed writes.
func (w *Worker) store(ctx context.Context, job *Job, chunks []doctree.Chunk, log *slog.Logger) int {
	docPrefix := DocumentPrefix(job.DocID)
	source := "mdchunk:" + job.DocID

	stored := make([]bool, len(chunks))
	sem := make(chan struct{}, w.maxConcurrentStore)
	var mu sync.Mutex
	var wg sync.WaitGroup
	errCount := 0

	for i := range chunks {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			err := w.pathstore.PutNode(ctx, ChunkKey(job.DocID, i), pathstore.NodeRequest{
				Value:      chunkValue(job.Filename, chunks[i]),
				MemoryType: "semantic",
				Salience:   0.5,
				Source:     source,
			})
			if err != nil {
				log.Error("store chunk failed", "chunk", i, "error", err)
				job.AddError(fmt.Sprintf("store chunk %d: %s", i, err))
				mu.Lock()
				errCount++
				mu.Unlock()
				return
			}
			stored[i] = true
		}(i)
	}
	wg.Wait()

	storedCount := 0
	for _, ok := range stored {
		if ok {
			storedCount++
		}
	}
	job.AddStored(storedCount)

	for i := 1; i < len(chunks); i++ {
		if !stored[i-1] || !stored[i] {
			continue
		}
		err := w.pathstore.PutLink(ctx, pathstore.LinkRequest{
			From:    ChunkKey(job.DocID, i-1),
			To:      ChunkKey(job.DocID, i),
			Weight:  1,
			Summary: "next",
		})
		if err != nil {
			log.Warn("link chunks failed", "from", i-1, "error", err)
		}
	}

	metaErr := w.pathstore.PutNode(ctx, docPrefix+"/meta", pathstore.NodeRequest{
		Value: map[string]any{
			"filename":       job.Filename,
			"content_hash":   job.Snapshot().ContentHash,
			"total_chunks":   len(chunks),
			"chunks_stored":  storedCount,
			"embed_failures": job.Snapshot().Progress.EmbedFailures,
			"created_at":     job.CreatedAt.Format(time.RFC3339),
		},
		MemoryType: "metacognitive",
		Salience:   0.5,
		Source:     source,
	})
	if metaErr != nil {
		log.Error("meta write failed", "error", metaErr)
		job.AddError(fmt.Sprintf("meta: %s", metaErr))
		errCount++
	}

	log.Info("storage complete", "stored", storedCount, "total", len(chunks))
	return errCount
}

// DocumentPrefix is the pathstore key under which a document lives.
func DocumentPrefix(docID string) string {
	return "documents/" + docID
}

// ChunkKey is the pathstore key of chunk i of a document.
func ChunkKey(docID string, i int) string {
	return fmt.Sprintf("%s/chunks/%04d", DocumentPrefix(docID), i)
}

func chunkValue(filename string, c doctree.Chunk) map[string]any {
	status := "ok"
	if c.EmbedFailed {
		status = "failed"
	}
	vector := c.Vector
	if vector == nil {
		vector = []float32{}
	}
	return map[string]any{
		"file":             filename,
		"index":            c.Index,
		"heading_path":     strings.Join(c.HeadingPath, chunker.PathSeparator),
		"text":             c.Text,
		"token_count":      c.Tokens,
		"embedding":        vector,
		"embedding_status": status,
	}
}
