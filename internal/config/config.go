package config

import (
	"errors"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// SourceConfig points at the document to ingest.
type SourceConfig struct {
	Path            string `yaml:"path"`
	DocumentCounter int    `yaml:"document_counter"`
	AWSRegion       string `yaml:"aws_region"`
	AWSAccessKey    string `yaml:"aws_access_key"`
	AWSSecretKey    string `yaml:"aws_secret_key"`
}

// StoreConfig configures the original/processed stores.
type StoreConfig struct {
	Backend        string        `yaml:"backend"` // mongo | postgres | json
	URL            string        `yaml:"url"`
	OriginalDB     string        `yaml:"original_db"`
	ProcessedDB    string        `yaml:"processed_db"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	JSONFallback   bool          `yaml:"json_fallback"`
	OutputDir      string        `yaml:"output_dir"`
	Debug          bool          `yaml:"debug"`
}

// PipelineConfig holds the page processing knobs.
type PipelineConfig struct {
	Incremental       bool     `yaml:"incremental"`
	MinImageDim       int      `yaml:"min_image_dim"`
	MaxImageArea      int      `yaml:"max_image_area"`
	OCRConfidence     float64  `yaml:"ocr_confidence"`
	OCRLanguages      []string `yaml:"ocr_languages"`
	ImagePositionStep float64  `yaml:"image_position_step"`
}

// LLMConfig is shared by the summarizer and the text embedder.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai | ollama
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	Key      string `yaml:"key"`
}

type SummarizerConfig struct {
	LLMConfig     `yaml:",inline"`
	MaxInputChars int           `yaml:"max_input_chars"`
	FallbackChars int           `yaml:"fallback_chars"`
	MaxTokens     int           `yaml:"max_tokens"`
	Temperature   float64       `yaml:"temperature"`
	MaxRetries    int           `yaml:"max_retries"`
	Backoff       time.Duration `yaml:"backoff"`
	Timeout       time.Duration `yaml:"timeout"`
}

type TextEmbeddingConfig struct {
	LLMConfig `yaml:",inline"`
	Dimension int `yaml:"dimension"`
}

type ImageEmbeddingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Project   string `yaml:"project"`
	Location  string `yaml:"location"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

type EmbeddingConfig struct {
	Text  TextEmbeddingConfig  `yaml:"text"`
	Image ImageEmbeddingConfig `yaml:"image"`
}

type NormalizerConfig struct {
	LexiconPath string `yaml:"lexicon_path"`
}

type RetrievalConfig struct {
	TopK      int     `yaml:"top_k"`
	Threshold float64 `yaml:"threshold"`
}

type Config struct {
	Source     SourceConfig     `yaml:"source"`
	Store      StoreConfig      `yaml:"store"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Normalizer NormalizerConfig `yaml:"normalizer"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
}

// LoadConfig reads the yaml file at path, overlays secrets from the
// environment (and .env when present) and fills in defaults.
// A missing file yields the default config.
func LoadConfig(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := baseConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := baseConfig()
	applyDefaults(&cfg)
	return &cfg
}

// boolean switches can't be defaulted after unmarshal, so yaml decodes on top of these
func baseConfig() Config {
	var cfg Config
	cfg.Store.JSONFallback = true
	cfg.Pipeline.Incremental = true
	cfg.Embedding.Image.Enabled = true
	return cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MONGO_URL"); v != "" && cfg.Store.Backend != "postgres" {
		cfg.Store.URL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" && cfg.Store.Backend == "postgres" {
		cfg.Store.URL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if cfg.Summarizer.Key == "" {
			cfg.Summarizer.Key = v
		}
		if cfg.Embedding.Text.Key == "" {
			cfg.Embedding.Text.Key = v
		}
	}
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" && cfg.Embedding.Image.Project == "" {
		cfg.Embedding.Image.Project = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" && cfg.Source.AWSRegion == "" {
		cfg.Source.AWSRegion = v
	}
	if v := os.Getenv("PDF_PATH"); v != "" && cfg.Source.Path == "" {
		cfg.Source.Path = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Source.DocumentCounter == 0 {
		cfg.Source.DocumentCounter = 1
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "mongo"
	}
	if cfg.Store.URL == "" && cfg.Store.Backend == "mongo" {
		cfg.Store.URL = "mongodb://localhost:27017"
	}
	if cfg.Store.OriginalDB == "" {
		cfg.Store.OriginalDB = "astrobot_original"
	}
	if cfg.Store.ProcessedDB == "" {
		cfg.Store.ProcessedDB = "astrobot_summary"
	}
	if cfg.Store.ConnectTimeout == 0 {
		cfg.Store.ConnectTimeout = 5 * time.Second
	}
	if cfg.Store.OutputDir == "" {
		cfg.Store.OutputDir = "output"
	}

	if cfg.Pipeline.MinImageDim == 0 {
		cfg.Pipeline.MinImageDim = 50
	}
	if cfg.Pipeline.MaxImageArea == 0 {
		cfg.Pipeline.MaxImageArea = 1500000
	}
	if cfg.Pipeline.OCRConfidence == 0 {
		cfg.Pipeline.OCRConfidence = 0.3
	}
	if len(cfg.Pipeline.OCRLanguages) == 0 {
		cfg.Pipeline.OCRLanguages = []string{"tha", "eng"}
	}
	if cfg.Pipeline.ImagePositionStep == 0 {
		cfg.Pipeline.ImagePositionStep = 100
	}

	s := &cfg.Summarizer
	if s.Provider == "" {
		s.Provider = "openai"
	}
	if s.Model == "" {
		s.Model = "gpt-4o-mini"
	}
	if s.MaxInputChars == 0 {
		s.MaxInputChars = 2000
	}
	if s.FallbackChars == 0 {
		s.FallbackChars = 200
	}
	if s.MaxTokens == 0 {
		s.MaxTokens = 150
	}
	if s.Temperature == 0 {
		s.Temperature = 0.7
	}
	if s.MaxRetries == 0 {
		s.MaxRetries = 3
	}
	if s.Backoff == 0 {
		s.Backoff = 2 * time.Second
	}
	if s.Timeout == 0 {
		s.Timeout = 30 * time.Second
	}

	t := &cfg.Embedding.Text
	if t.Provider == "" {
		t.Provider = "ollama"
	}
	if t.BaseURL == "" && t.Provider == "ollama" {
		t.BaseURL = "http://localhost:11434"
	}
	if t.Model == "" {
		t.Model = "all-minilm"
	}
	if t.Dimension == 0 {
		t.Dimension = 384
	}

	img := &cfg.Embedding.Image
	if img.Location == "" {
		img.Location = "us-central1"
	}
	if img.Model == "" {
		img.Model = "multimodalembedding@001"
	}
	if img.Dimension == 0 {
		img.Dimension = 1408
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 2
	}
	if cfg.Retrieval.Threshold == 0 {
		cfg.Retrieval.Threshold = 0.2
	}
}
