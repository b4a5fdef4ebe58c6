package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/accioltd/mdchunk/internal/config"
	"github.com/accioltd/mdchunk/internal/enrich"
	"github.com/accioltd/mdchunk/internal/parser"
	"github.com/accioltd/mdchunk/internal/pathstore"
)

// Orchestrator manages the document chunking pipeline. All workers share one
// Enricher so the in-flight cap on service calls is global.
type Orchestrator struct {
	jobs     *JobStore
	queue    chan *Job
	enricher *Enricher
	ps       *pathstore.Client
	log      *slog.Logger
	cfg      config.Config

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	stopOnce  sync.Once
	submitMu  sync.RWMutex
	stopped   bool
}

// NewOrchestrator creates the pipeline. ps may be nil.
func NewOrchestrator(cfg config.Config, svc enrich.Service, ps *pathstore.Client, log *slog.Logger) (*Orchestrator, error) {
	retry := RetryConfig{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxJitter:   cfg.RetryMaxJitter,
	}
	e, err := NewEnricher(svc, cfg.EnrichConcurrency, retry, log)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		jobs:     NewJobStore(cfg.JobTTL),
		queue:    make(chan *Job, max(1, cfg.MaxQueueSize)),
		enricher: e,
		ps:       ps,
		log:      log,
		cfg:      cfg,
	}, nil
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	parseOpts := parser.Options{PDFFallbackPdftotext: o.cfg.PDFFallbackPdftotext}
	for range max(1, o.cfg.WorkerCount) {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.enricher, o.ps, o.log, parseOpts, o.cfg.MinChars, o.cfg.MaxConcurrentStore)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline and releases the enrichment pool.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		o.submitMu.Lock()
		o.stopped = true
		close(o.queue)
		o.submitMu.Unlock()

		if o.cancel != nil {
			o.cancel()
		}
		o.wg.Wait()
		o.enricher.Release()
	})
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.submitMu.RLock()
	defer o.submitMu.RUnlock()
	if o.stopped {
		return ErrStopped
	}

	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.AddError("queue full")
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("%w (%d)", ErrQueueFull, cap(o.queue))
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// PathstoreClient returns the pathstore client for direct use by API handlers.
// It is nil when no sink is configured.
func (o *Orchestrator) PathstoreClient() *pathstore.Client {
	return o.ps
}
