package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Service is the external enrichment capability: text embeddings and image
// descriptions. One handle is created at process start and shared.
type Service interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Describe(ctx context.Context, imageURL string) (string, error)
	Close()
}

// Backend selects the Service implementation.
type Backend string

const (
	BackendHTTP      Backend = "http"
	BackendLangChain Backend = "langchain"
)

// Options configures New.
type Options struct {
	Backend               Backend
	Endpoint              string
	APIKey                string
	APIVersion            string
	EmbeddingDeployment   string
	DescriptionDeployment string
	Timeout               time.Duration
	CacheDir              string // Empty disables the embedding cache
}

// New builds the configured Service, wrapping it in a Cache when CacheDir is set.
func New(opts Options, stats *Stats) (Service, error) {
	if opts.Endpoint == "" || opts.APIKey == "" || opts.APIVersion == "" {
		return nil, ErrMissingCredentials
	}

	var svc Service
	switch opts.Backend {
	case BackendHTTP, "":
		svc = NewAzureClient(opts, stats)
	case BackendLangChain:
		lc, err := NewLangChainClient(opts, stats)
		if err != nil {
			return nil, fmt.Errorf("langchain client: %w", err)
		}
		svc = lc
	default:
		return nil, fmt.Errorf("unknown enrichment backend %q", opts.Backend)
	}

	if opts.CacheDir == "" {
		return svc, nil
	}
	cached, err := OpenCache(opts.CacheDir, opts.EmbeddingDeployment, svc)
	if err != nil {
		svc.Close()
		return nil, err
	}
	slog.Info("embedding cache enabled", "dir", opts.CacheDir)
	return cached, nil
}
