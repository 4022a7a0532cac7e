// Package config provides configuration loading for medrag.
//
// Configuration is layered: defaults, then an optional YAML file, then
// MEDRAG_* environment variables. Command-line flags are applied last by
// the caller.
package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig indicates a configuration value failed validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete medrag configuration.
type Config struct {
	Pipeline      PipelineConfig      `koanf:"pipeline"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Generation    GenerationConfig    `koanf:"generation"`
	VectorStore   VectorStoreConfig   `koanf:"vectorstore"`
	PubMed        PubMedConfig        `koanf:"pubmed"`
	S3            S3Config            `koanf:"s3"`
	AWS           AWSConfig           `koanf:"aws"`
	Server        ServerConfig        `koanf:"server"`
	NATS          NATSConfig          `koanf:"nats"`
	Deid          DeidConfig          `koanf:"deid"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// PipelineConfig holds the per-run retrieval parameters.
type PipelineConfig struct {
	TopK       int  `koanf:"top_k"`
	MaxTokens  int  `koanf:"max_tokens"`
	MaxResults int  `koanf:"max_results"`
	Rerank     bool `koanf:"rerank"`
	Deidentify bool `koanf:"deidentify"`
	// NotesDir confines note paths sent to serve, mcp and worker. Relative
	// paths resolve against it. Empty means the working directory.
	NotesDir string `koanf:"notes_dir"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is one of googleai, openai, ollama, bedrock, tei, fastembed, hashing.
	Provider  string `koanf:"provider"`
	Model     string `koanf:"model"`
	BaseURL   string `koanf:"base_url"`
	APIKey    Secret `koanf:"api_key"`
	Dimension int    `koanf:"dimension"`
	CacheDir  string `koanf:"cache_dir"`
	BatchSize int    `koanf:"batch_size"`
}

// GenerationConfig selects and configures the answer generator.
type GenerationConfig struct {
	// Provider is one of googleai, openai, ollama, bedrock.
	Provider    string   `koanf:"provider"`
	Model       string   `koanf:"model"`
	BaseURL     string   `koanf:"base_url"`
	APIKey      Secret   `koanf:"api_key"`
	Temperature float64  `koanf:"temperature"`
	MaxAttempts int      `koanf:"max_attempts"`
	RetryWait   Duration `koanf:"retry_wait"`
	Timeout     Duration `koanf:"timeout"`
}

// VectorStoreConfig selects the per-run index backend.
type VectorStoreConfig struct {
	// Provider is chromem (in-process) or qdrant.
	Provider string       `koanf:"provider"`
	Qdrant   QdrantConfig `koanf:"qdrant"`
}

// QdrantConfig holds connection settings for a Qdrant server.
type QdrantConfig struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	UseTLS bool   `koanf:"use_tls"`
	APIKey Secret `koanf:"api_key"`
}

// PubMedConfig holds NCBI Entrez settings.
type PubMedConfig struct {
	BaseURL string   `koanf:"base_url"`
	Email   string   `koanf:"email"`
	APIKey  Secret   `koanf:"api_key"`
	Tool    string   `koanf:"tool"`
	Timeout Duration `koanf:"timeout"`
}

// S3Config holds settings for reading notes from S3-compatible storage.
type S3Config struct {
	Region         string `koanf:"region"`
	Endpoint       string `koanf:"endpoint"`
	ForcePathStyle bool   `koanf:"force_path_style"`
}

// AWSConfig holds settings shared by the Bedrock providers.
type AWSConfig struct {
	Region string `koanf:"region"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// NATSConfig holds messaging settings for run events and the worker.
// An empty URL disables NATS entirely.
type NATSConfig struct {
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
	QueueGroup    string `koanf:"queue_group"`
}

// DeidConfig configures PHI redaction.
type DeidConfig struct {
	// RulesFile is a TOML file with extra [[rules]] and an [allowlist].
	RulesFile string `koanf:"rules_file"`
	// SkipCredentials disables the credential scan.
	SkipCredentials bool `koanf:"skip_credentials"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	Endpoint        string `koanf:"endpoint"`
	Protocol        string `koanf:"protocol"`
	ServiceName     string `koanf:"service_name"`
	Prometheus      bool   `koanf:"prometheus"`
}

// Default returns a Config populated with defaults only.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Pipeline.TopK < 1 {
		errs = append(errs, fmt.Errorf("%w: pipeline.top_k must be >= 1, got %d", ErrInvalidConfig, c.Pipeline.TopK))
	}
	if c.Pipeline.MaxTokens < 1 {
		errs = append(errs, fmt.Errorf("%w: pipeline.max_tokens must be >= 1, got %d", ErrInvalidConfig, c.Pipeline.MaxTokens))
	}
	if c.Pipeline.MaxResults < 1 {
		errs = append(errs, fmt.Errorf("%w: pipeline.max_results must be >= 1, got %d", ErrInvalidConfig, c.Pipeline.MaxResults))
	}

	switch c.Embeddings.Provider {
	case "googleai", "openai", "ollama", "bedrock", "tei", "fastembed", "hashing":
	default:
		errs = append(errs, fmt.Errorf("%w: unknown embeddings.provider %q", ErrInvalidConfig, c.Embeddings.Provider))
	}

	switch c.Generation.Provider {
	case "googleai", "openai", "ollama", "bedrock":
	default:
		errs = append(errs, fmt.Errorf("%w: unknown generation.provider %q", ErrInvalidConfig, c.Generation.Provider))
	}
	if c.Generation.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("%w: generation.max_attempts must be >= 1", ErrInvalidConfig))
	}

	switch c.VectorStore.Provider {
	case "chromem":
	case "qdrant":
		if c.VectorStore.Qdrant.Host == "" {
			errs = append(errs, fmt.Errorf("%w: vectorstore.qdrant.host is required", ErrInvalidConfig))
		}
		if c.VectorStore.Qdrant.Port <= 0 || c.VectorStore.Qdrant.Port > 65535 {
			errs = append(errs, fmt.Errorf("%w: vectorstore.qdrant.port out of range: %d", ErrInvalidConfig, c.VectorStore.Qdrant.Port))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown vectorstore.provider %q", ErrInvalidConfig, c.VectorStore.Provider))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: server.http_port out of range: %d", ErrInvalidConfig, c.Server.Port))
	}

	switch c.Observability.Protocol {
	case "grpc", "http/protobuf":
	default:
		errs = append(errs, fmt.Errorf("%w: observability.protocol must be grpc or http/protobuf", ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Pipeline.TopK == 0 {
		cfg.Pipeline.TopK = 3
	}
	if cfg.Pipeline.MaxTokens == 0 {
		cfg.Pipeline.MaxTokens = 300
	}
	if cfg.Pipeline.MaxResults == 0 {
		cfg.Pipeline.MaxResults = 10
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "googleai"
	}
	if cfg.Embeddings.BatchSize == 0 {
		cfg.Embeddings.BatchSize = 100
	}
	if !cfg.Embeddings.APIKey.IsSet() {
		cfg.Embeddings.APIKey = providerKeyFromEnv(cfg.Embeddings.Provider)
	}

	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = "googleai"
	}
	if cfg.Generation.MaxAttempts == 0 {
		cfg.Generation.MaxAttempts = 3
	}
	if cfg.Generation.RetryWait == 0 {
		cfg.Generation.RetryWait = Duration(60 * time.Second)
	}
	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = Duration(2 * time.Minute)
	}
	if !cfg.Generation.APIKey.IsSet() {
		cfg.Generation.APIKey = providerKeyFromEnv(cfg.Generation.Provider)
	}

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}

	if cfg.PubMed.BaseURL == "" {
		cfg.PubMed.BaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
	}
	if cfg.PubMed.Tool == "" {
		cfg.PubMed.Tool = "medrag"
	}
	if cfg.PubMed.Timeout == 0 {
		cfg.PubMed.Timeout = Duration(30 * time.Second)
	}
	if cfg.PubMed.Email == "" {
		cfg.PubMed.Email = getEnvString("ENTREZ_EMAIL", "")
	}
	if !cfg.PubMed.APIKey.IsSet() {
		cfg.PubMed.APIKey = Secret(getEnvString("NCBI_API_KEY", ""))
	}

	if cfg.AWS.Region == "" {
		cfg.AWS.Region = getEnvString("AWS_REGION", "us-east-1")
	}
	if cfg.S3.Region == "" {
		cfg.S3.Region = cfg.AWS.Region
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9191
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "medrag"
	}
	if cfg.NATS.QueueGroup == "" {
		cfg.NATS.QueueGroup = "medrag-workers"
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "medrag"
	}
	if cfg.Observability.Endpoint == "" {
		cfg.Observability.Endpoint = "localhost:4317"
	}
	if cfg.Observability.Protocol == "" {
		cfg.Observability.Protocol = "grpc"
	}
}

// providerKeyFromEnv returns the conventional API key variable for a provider.
func providerKeyFromEnv(provider string) Secret {
	switch provider {
	case "googleai":
		if key := getEnvString("GEMINI_API_KEY", ""); key != "" {
			return Secret(key)
		}
		return Secret(getEnvString("GOOGLE_API_KEY", ""))
	case "openai":
		return Secret(getEnvString("OPENAI_API_KEY", ""))
	}
	return ""
}
