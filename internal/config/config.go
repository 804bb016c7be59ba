package config

import (
	"encoding/base64"
	"fmt"

	"github.com/adhocore/gronx"
)

const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"

	defaultGeminiModel     = "gemini-2.5-flash-lite"
	defaultOllamaModel     = "llama3"
	defaultNewsFeedURL     = "https://news.google.com/rss/search"
	defaultConcurrency     = 8
	defaultQARatePerMinute = 6
	defaultQABurst         = 3
)

type Config struct {
	DatabaseDSN    string
	ServerAddr     string
	SigningKey     []byte
	AllowedOrigins []string
	LogFile        string
	Production     bool
	Curator        CuratorConfig
	LLM            LLMConfig
}

type CuratorConfig struct {
	// Secret guards the batch endpoints. When empty every batch request is
	// rejected.
	Secret      string
	IdleCron    string
	NewsCron    string
	SummaryCron string
	NewsFeedURL string
	Concurrency int
	// QARatePerMinute limits curator questions per room.
	QARatePerMinute int
	QABurst         int
}

type LLMConfig struct {
	Provider      string
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
	OllamaBaseURL string
	OllamaModel   string
}

type Option func(*Config)

func WithCurator(c CuratorConfig) Option {
	return func(cfg *Config) {
		cfg.Curator = c
	}
}

func WithLLM(l LLMConfig) Option {
	return func(cfg *Config) {
		cfg.LLM = l
	}
}

func WithLogFile(path string, production bool) Option {
	return func(cfg *Config) {
		cfg.LogFile = path
		cfg.Production = production
	}
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("signing secret is empty")
	}
	return key, nil
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string, opts ...Option) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	cfg := &Config{
		DatabaseDSN:    databaseDSN,
		ServerAddr:     serverAddr,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.applyCuratorDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.applyLLMDefaults(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (cfg *Config) applyCuratorDefaults() error {
	c := &cfg.Curator
	for name, expr := range map[string]string{"idle": c.IdleCron, "news": c.NewsCron, "summary": c.SummaryCron} {
		if expr != "" && !gronx.IsValid(expr) {
			return fmt.Errorf("invalid %s cron expression %q", name, expr)
		}
	}
	if c.NewsFeedURL == "" {
		c.NewsFeedURL = defaultNewsFeedURL
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.QARatePerMinute <= 0 {
		c.QARatePerMinute = defaultQARatePerMinute
	}
	if c.QABurst <= 0 {
		c.QABurst = defaultQABurst
	}
	return nil
}

func (cfg *Config) applyLLMDefaults() error {
	l := &cfg.LLM
	switch l.Provider {
	case "", ProviderGemini:
		l.Provider = ProviderGemini
		if l.GeminiModel == "" {
			l.GeminiModel = defaultGeminiModel
		}
	case ProviderOllama:
		if l.OllamaBaseURL == "" {
			return fmt.Errorf("ollama base URL cannot be empty")
		}
		if l.OllamaModel == "" {
			l.OllamaModel = defaultOllamaModel
		}
	default:
		return fmt.Errorf("unknown LLM provider %q", l.Provider)
	}
	return nil
}
