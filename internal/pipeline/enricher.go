package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/accioltd/mdchunk/internal/enrich"
)

// Kind is the type of enrichment a WorkItem asks for.
type Kind int

const (
	KindEmbed Kind = iota
	KindDescribe
)

func (k Kind) String() string {
	if k == KindDescribe {
		return "describe"
	}
	return "embed"
}

// WorkItem is one unit of enrichment. Index is a stable key used only to
// put the result back where it belongs.
type WorkItem struct {
	Index     int
	Kind      Kind
	Text      string // Text to embed
	ImagePath string // Image to describe; missing files yield a placeholder
	Reference string // Path recorded next to the description
}

// Value is the payload of a successful enrichment.
type Value struct {
	Text   string
	Vector []float32
}

// Result is produced exactly once per WorkItem.
type Result struct {
	Index     int
	Reference string
	Value     Value
	Success   bool
	Attempts  int
	Err       error
}

// Enricher runs WorkItems against an enrichment Service with a global cap on
// concurrently in-flight service calls and per-item retries.
type Enricher struct {
	svc   enrich.Service
	pool  *ants.Pool
	retry RetryConfig
	log   *slog.Logger

	sleep     func(ctx context.Context, d time.Duration) error
	jitter    func(max time.Duration) time.Duration
	loadImage func(path string) (string, error)
}

// NewEnricher creates an Enricher whose worker pool holds concurrency slots.
// Call Release when done.
func NewEnricher(svc enrich.Service, concurrency int, retry RetryConfig, log *slog.Logger) (*Enricher, error) {
	if svc == nil {
		return nil, ErrServiceRequired
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if log == nil {
		log = slog.Default()
	}
	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return nil, fmt.Errorf("create enrichment pool: %w", err)
	}
	return &Enricher{
		svc:       svc,
		pool:      pool,
		retry:     retry.normalized(),
		log:       log.With("component", "enricher"),
		sleep:     sleepContext,
		jitter:    randomJitter,
		loadImage: ImageDataURL,
	}, nil
}

// Cap returns the number of pool slots.
func (e *Enricher) Cap() int { return e.pool.Cap() }

// Release stops the worker pool.
func (e *Enricher) Release() { e.pool.Release() }

// Run enriches every item and returns one Result per item, in item order.
// Completion order is not observable; results are placed by position.
// Item failures never abort sibling items.
func (e *Enricher) Run(ctx context.Context, items []WorkItem) []Result {
	results := make([]Result, len(items))
	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = e.process(ctx, items[i])
		}()
	}
	wg.Wait()
	return results
}

// attempt runs one service call on a pool slot. The slot is returned as soon
// as the call finishes, so backoff waits never hold it.
func (e *Enricher) attempt(ctx context.Context, call func(context.Context) (Value, error)) (Value, error) {
	var v Value
	var err error
	done := make(chan struct{})
	if serr := e.pool.Submit(func() {
		defer close(done)
		v, err = call(ctx)
	}); serr != nil {
		return Value{}, fmt.Errorf("submit enrichment call: %w", serr)
	}
	<-done
	return v, err
}

func (e *Enricher) process(ctx context.Context, item WorkItem) Result {
	res := Result{Index: item.Index, Reference: item.Reference}

	var call func(context.Context) (Value, error)
	switch item.Kind {
	case KindDescribe:
		if !imageExists(item.ImagePath) {
			res.Reference = ""
			res.Value.Text = MissingImageText
			res.Success = true
			return res
		}
		dataURL, err := e.loadImage(item.ImagePath)
		if err != nil {
			e.log.Error("image load failed", "index", item.Index, "path", item.ImagePath, "error", err)
			res.Err = err
			return res
		}
		call = func(ctx context.Context) (Value, error) {
			text, err := e.svc.Describe(ctx, dataURL)
			return Value{Text: strings.TrimSpace(text)}, err
		}
	default:
		call = func(ctx context.Context) (Value, error) {
			vec, err := e.svc.Embed(ctx, item.Text)
			return Value{Vector: vec}, err
		}
	}

	for attempt := 1; attempt <= e.retry.MaxAttempts; attempt++ {
		res.Attempts = attempt
		v, err := e.attempt(ctx, call)
		if err == nil {
			if v.Text == "" && len(v.Vector) == 0 {
				e.log.Warn("empty enrichment result", "index", item.Index, "kind", item.Kind)
				res.Err = enrich.ErrEmptyResponse
				return res
			}
			res.Value = v
			res.Success = true
			return res
		}

		res.Err = err
		if !IsRetryable(err) {
			e.log.Error("enrichment failed", "index", item.Index, "kind", item.Kind, "attempt", attempt, "error", err)
			return res
		}
		if attempt == e.retry.MaxAttempts {
			break
		}

		wait := Backoff(e.retry, attempt, e.jitter(e.retry.MaxJitter))
		e.log.Warn("retryable enrichment error", "index", item.Index, "kind", item.Kind, "attempt", attempt, "status", statusOf(err), "wait", wait)
		if err := e.sleep(ctx, wait); err != nil {
			res.Err = err
			return res
		}
	}

	e.log.Error("enrichment retries exhausted", "index", item.Index, "kind", item.Kind, "attempts", res.Attempts, "error", res.Err)
	return res
}

func statusOf(err error) int {
	var re *enrich.RetryableError
	if errors.As(err, &re) {
		return re.StatusCode
	}
	return 0
}

func imageExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
