package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AzureClient calls Azure OpenAI deployments over plain HTTP.
type AzureClient struct {
	endpoint              string
	apiKey                string
	apiVersion            string
	embeddingDeployment   string
	descriptionDeployment string
	httpClient            *http.Client
	stats                 *Stats
}

func NewAzureClient(opts Options, stats *Stats) *AzureClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &AzureClient{
		endpoint:              strings.TrimRight(opts.Endpoint, "/"),
		apiKey:                opts.APIKey,
		apiVersion:            opts.APIVersion,
		embeddingDeployment:   opts.EmbeddingDeployment,
		descriptionDeployment: opts.DescriptionDeployment,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		stats: stats,
	}
}

type embeddingRequest struct {
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *apiError `json:"error"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type chatRequest struct {
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Embed returns the embedding vector for text.
func (c *AzureClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp embeddingResponse
	start := time.Now()
	err := c.post(ctx, c.embeddingDeployment, "embeddings", embeddingRequest{Input: []string{text}}, &resp)
	c.stats.Record(OpEmbed, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("azure error: %s: %s", resp.Error.Code, resp.Error.Message)
	}
	if len(resp.Data) == 0 {
		return nil, ErrEmptyResponse
	}
	return resp.Data[0].Embedding, nil
}

// Describe asks the description deployment to describe the image at imageURL,
// which is usually a data URL.
func (c *AzureClient) Describe(ctx context.Context, imageURLStr string) (string, error) {
	req := chatRequest{
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: DescriptionPrompt},
				{Type: "image_url", ImageURL: &imageURL{URL: imageURLStr}},
			},
		}},
	}
	var resp chatResponse
	start := time.Now()
	err := c.post(ctx, c.descriptionDeployment, "chat/completions", req, &resp)
	c.stats.Record(OpDescribe, time.Since(start), err)
	if err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("azure error: %s: %s", resp.Error.Code, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return CleanDescription(resp.Choices[0].Message.Content), nil
}

func (c *AzureClient) deploymentURL(deployment, op string) string {
	return fmt.Sprintf("%s/openai/deployments/%s/%s?api-version=%s",
		c.endpoint, url.PathEscape(deployment), op, url.QueryEscape(c.apiVersion))
}

func (c *AzureClient) post(ctx context.Context, deployment, op string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.deploymentURL(deployment, op), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("azure %s: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return &RetryableError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("azure %s status %d: %s", op, resp.StatusCode, truncate(string(respBody), 200))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Close releases resources.
func (c *AzureClient) Close() {
	c.httpClient.CloseIdleConnections()
}
