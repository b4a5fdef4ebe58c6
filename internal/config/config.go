package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/accioltd/mdchunk/internal/enrich"
)

type Config struct {
	Port string `yaml:"port"`

	// Auth for the HTTP API
	APIKey string `yaml:"api_key"`

	// Azure OpenAI
	AzureEndpoint         string        `yaml:"azure_endpoint"`
	AzureAPIKey           string        `yaml:"azure_api_key"`
	AzureAPIVersion       string        `yaml:"azure_api_version"`
	EmbeddingDeployment   string        `yaml:"embedding_deployment"`
	DescriptionDeployment string        `yaml:"description_deployment"`
	EnrichBackend         string        `yaml:"enrich_backend"`
	RequestTimeout        time.Duration `yaml:"request_timeout"`
	EmbedCacheDir         string        `yaml:"embed_cache_dir"`

	// Segmentation
	MinChars int `yaml:"min_chars"`

	// Enrichment concurrency and retries
	EnrichConcurrency int           `yaml:"enrich_concurrency"`
	MaxAttempts       int           `yaml:"max_attempts"`
	RetryBaseDelay    time.Duration `yaml:"retry_base_delay"`
	RetryMaxJitter    time.Duration `yaml:"retry_max_jitter"`

	// Worker pool
	WorkerCount        int `yaml:"worker_count"`
	MaxQueueSize       int `yaml:"max_queue_size"`
	MaxConcurrentStore int `yaml:"max_concurrent_store"`

	// Upload limits
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// Job state
	JobTTL time.Duration `yaml:"job_ttl"`

	// PDF
	PDFFallbackPdftotext bool `yaml:"pdf_fallback_pdftotext"`

	// Optional pathstore chunk sink
	PathstoreURL    string `yaml:"pathstore_url"`
	PathstoreAPIKey string `yaml:"pathstore_api_key"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port:                  "8090",
		EmbeddingDeployment:   "text-embedding-3-small",
		DescriptionDeployment: "gpt-5-nano",
		EnrichBackend:         string(enrich.BackendHTTP),
		RequestTimeout:        120 * time.Second,
		MinChars:              800,
		EnrichConcurrency:     10,
		MaxAttempts:           3,
		RetryBaseDelay:        800 * time.Millisecond,
		RetryMaxJitter:        400 * time.Millisecond,
		WorkerCount:           4,
		MaxQueueSize:          100,
		MaxConcurrentStore:    10,
		MaxUploadBytes:        52428800, // 50MB
		JobTTL:                1 * time.Hour,
		PDFFallbackPdftotext:  true,
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment variables. Env always wins.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	cfg.Port = envOr("PORT", cfg.Port)
	cfg.APIKey = envOr("CHUNKER_API_KEY", cfg.APIKey)

	cfg.AzureEndpoint = envOr("AZURE_OPENAI_ENDPOINT", cfg.AzureEndpoint)
	cfg.AzureAPIKey = envOr("AZURE_OPENAI_API_KEY", cfg.AzureAPIKey)
	cfg.AzureAPIVersion = envOr("AZURE_OPENAI_VERSION", cfg.AzureAPIVersion)
	cfg.EmbeddingDeployment = envOr("AZURE_EMBEDDING_DEPLOYMENT", cfg.EmbeddingDeployment)
	cfg.DescriptionDeployment = envOr("AZURE_DESCRIPTION_DEPLOYMENT", cfg.DescriptionDeployment)
	cfg.EnrichBackend = envOr("ENRICH_BACKEND", cfg.EnrichBackend)
	cfg.RequestTimeout = envDuration("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.EmbedCacheDir = envOr("EMBED_CACHE_DIR", cfg.EmbedCacheDir)

	cfg.MinChars = envInt("MIN_CHARS", cfg.MinChars)
	cfg.EnrichConcurrency = envInt("ENRICH_CONCURRENCY", cfg.EnrichConcurrency)
	cfg.MaxAttempts = envInt("ENRICH_MAX_ATTEMPTS", cfg.MaxAttempts)
	cfg.RetryBaseDelay = envDuration("RETRY_BASE_DELAY", cfg.RetryBaseDelay)
	cfg.RetryMaxJitter = envDuration("RETRY_MAX_JITTER", cfg.RetryMaxJitter)

	cfg.WorkerCount = envInt("WORKER_COUNT", cfg.WorkerCount)
	cfg.MaxQueueSize = envInt("MAX_QUEUE_SIZE", cfg.MaxQueueSize)
	cfg.MaxConcurrentStore = envInt("MAX_CONCURRENT_STORE", cfg.MaxConcurrentStore)
	cfg.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)
	cfg.JobTTL = envDuration("JOB_TTL", cfg.JobTTL)
	cfg.PDFFallbackPdftotext = envBool("PDF_FALLBACK_PDFTOTEXT", cfg.PDFFallbackPdftotext)

	cfg.PathstoreURL = envOr("PATHSTORE_URL", cfg.PathstoreURL)
	cfg.PathstoreAPIKey = envOr("PATHSTORE_API_KEY", cfg.PathstoreAPIKey)

	cfg.clamp()
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) clamp() {
	d := Defaults()
	c.AzureEndpoint = strings.TrimRight(c.AzureEndpoint, "/")
	if c.MinChars <= 0 {
		c.MinChars = d.MinChars
	}
	if c.EnrichConcurrency <= 0 {
		c.EnrichConcurrency = 1
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.RetryBaseDelay < 0 {
		c.RetryBaseDelay = d.RetryBaseDelay
	}
	if c.RetryMaxJitter < 0 {
		c.RetryMaxJitter = 0
	}
	if c.RetryMaxJitter > c.RetryBaseDelay {
		c.RetryMaxJitter = c.RetryBaseDelay
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = d.WorkerCount
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = d.MaxQueueSize
	}
	if c.MaxConcurrentStore <= 0 {
		c.MaxConcurrentStore = d.MaxConcurrentStore
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = d.MaxUploadBytes
	}
	if c.JobTTL <= 0 {
		c.JobTTL = d.JobTTL
	}
}

// Validate checks the settings every binary needs.
func (c Config) Validate() error {
	if c.AzureEndpoint == "" {
		return fmt.Errorf("AZURE_OPENAI_ENDPOINT is required")
	}
	if c.AzureAPIKey == "" {
		return fmt.Errorf("AZURE_OPENAI_API_KEY is required")
	}
	if c.AzureAPIVersion == "" {
		return fmt.Errorf("AZURE_OPENAI_VERSION is required")
	}
	switch enrich.Backend(c.EnrichBackend) {
	case enrich.BackendHTTP, enrich.BackendLangChain:
	default:
		return fmt.Errorf("ENRICH_BACKEND must be %q or %q", enrich.BackendHTTP, enrich.BackendLangChain)
	}
	return nil
}

// ValidateServer additionally checks the HTTP server settings.
func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.APIKey == "" {
		return fmt.Errorf("CHUNKER_API_KEY is required")
	}
	if c.PathstoreURL != "" && c.PathstoreAPIKey == "" {
		return fmt.Errorf("PATHSTORE_API_KEY is required when PATHSTORE_URL is set")
	}
	return nil
}

// EnrichOptions maps the configuration onto enrich.New options.
func (c Config) EnrichOptions() enrich.Options {
	return enrich.Options{
		Backend:               enrich.Backend(c.EnrichBackend),
		Endpoint:              c.AzureEndpoint,
		APIKey:                c.AzureAPIKey,
		APIVersion:            c.AzureAPIVersion,
		EmbeddingDeployment:   c.EmbeddingDeployment,
		DescriptionDeployment: c.DescriptionDeployment,
		Timeout:               c.RequestTimeout,
		CacheDir:              c.EmbedCacheDir,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
