package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChainClient implements Service on top of langchaingo's OpenAI client in
// Azure mode.
type LangChainClient struct {
	llm      *openai.LLM
	embedder embeddings.Embedder
	stats    *Stats
	logger   *slog.Logger
}

func NewLangChainClient(opts Options, stats *Stats) (*LangChainClient, error) {
	llm, err := openai.New(
		openai.WithAPIType(openai.APITypeAzure),
		openai.WithBaseURL(opts.Endpoint),
		openai.WithToken(opts.APIKey),
		openai.WithAPIVersion(opts.APIVersion),
		openai.WithModel(opts.DescriptionDeployment),
		openai.WithEmbeddingModel(opts.EmbeddingDeployment),
		openai.WithHTTPClient(&http.Client{Timeout: opts.Timeout}),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(false))
	if err != nil {
		return nil, err
	}

	return &LangChainClient{
		llm:      llm,
		embedder: embedder,
		stats:    stats,
		logger:   slog.Default().With("component", "langchain-client"),
	}, nil
}

// Embed returns the embedding vector for text.
func (c *LangChainClient) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vectors, err := c.embedder.EmbedDocuments(ctx, []string{text})
	err = classify(ctx, err)
	c.stats.Record(OpEmbed, time.Since(start), err)
	if err != nil {
		c.logger.Debug("embedding failed", "length", len(text), "err", err)
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, ErrEmptyResponse
	}
	return vectors[0], nil
}

// Describe asks the description deployment to describe the image at imageURL.
func (c *LangChainClient) Describe(ctx context.Context, imageURL string) (string, error) {
	msg := llms.MessageContent{
		Role: llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{
			llms.TextPart(DescriptionPrompt),
			llms.ImageURLPart(imageURL),
		},
	}

	start := time.Now()
	resp, err := c.llm.GenerateContent(ctx, []llms.MessageContent{msg})
	err = classify(ctx, err)
	c.stats.Record(OpDescribe, time.Since(start), err)
	if err != nil {
		c.logger.Debug("description failed", "err", err)
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", nil
	}
	return CleanDescription(resp.Choices[0].Content), nil
}

// Close is a no-op; langchaingo clients hold no resources that need release.
func (c *LangChainClient) Close() {}

var statusCodeRe = regexp.MustCompile(`status code: (\d{3})`)

// classify converts langchaingo's rate-limit and provider-unavailable errors,
// and any 5xx status it reports, into *RetryableError. langchaingo replaces
// context errors with plain messages, so ctx is checked first.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	mapped := openai.MapError(err)
	switch {
	case llms.IsRateLimitError(mapped):
		return &RetryableError{StatusCode: http.StatusTooManyRequests, Message: err.Error()}
	case llms.IsProviderUnavailableError(mapped):
		return &RetryableError{StatusCode: http.StatusServiceUnavailable, Message: err.Error()}
	}
	if m := statusCodeRe.FindStringSubmatch(err.Error()); m != nil {
		if code, _ := strconv.Atoi(m[1]); code >= 500 {
			return &RetryableError{StatusCode: code, Message: err.Error()}
		}
	}
	return fmt.Errorf("langchain: %w", err)
}
