package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"gopkg.in/yaml.v3"
)

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	Endpoint        string // overrides the Cloudflare endpoint derived from AccountID
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Enabled reports whether Google sign-in has credentials configured.
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

type EmbedderConfig struct {
	Type        string        `yaml:"type"` // hash | ollama | openai
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"-"`
	Dimension   int           `yaml:"dimension"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	Concurrency int           `yaml:"concurrency"`
}

type ChunkerConfig struct {
	MaxTokens int `yaml:"max_tokens"`
	Overlap   int `yaml:"overlap"`
}

type PipelineConfig struct {
	Chunker        ChunkerConfig  `yaml:"chunker"`
	Embedder       EmbedderConfig `yaml:"embedder"`
	ProcessTimeout time.Duration  `yaml:"process_timeout"`
	Workers        int            `yaml:"workers"`
	MaxUploadMB    int64          `yaml:"max_upload_mb"`
}

type QueryConfig struct {
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
	MaxLimit  int           `yaml:"max_limit"`
}

// fileConfig is the optional YAML overlay. Environment variables win over it.
type fileConfig struct {
	Pipeline PipelineConfig `yaml:"pipeline"`
	Query    QueryConfig    `yaml:"query"`
}

type Config struct {
	DB_URL      string
	Port        string
	Environment string
	LogLevel    slog.Level
	LogFormat   string

	JWTSecret     string
	TokenTTL      time.Duration
	AdminEmail    string
	AdminPassword string

	ObjectStore string // disk | r2
	UploadDir   string
	R2          R2Config

	FrontendURL string
	CorsConfig  cors.Options
	Google      GoogleConfig

	Pipeline PipelineConfig
	Query    QueryConfig

	ShutdownTimeout time.Duration
}

// IsProduction reports whether the server runs with production cookie policy.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load reads .env (ENV_FILE), the optional YAML overlay (CONFIG_FILE) and the
// process environment, in that order of increasing precedence.
func Load() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	overlay := defaultFileConfig()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := readYAML(path, &overlay); err != nil {
			return nil, err
		}
	}

	l := &loader{}
	cfg := &Config{
		DB_URL:        getEnv("DB_URL", ""),
		Port:          getEnv("PORT", "8000"),
		Environment:   getEnv("ENV", "development"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		JWTSecret:     getEnv("JWT_SECRET", "not-so-secret-now-is-it?"),
		TokenTTL:      l.duration("TOKEN_TTL", 24*time.Hour),
		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		ObjectStore:   getEnv("OBJECT_STORE", "disk"),
		UploadDir:     getEnv("UPLOAD_DIR", "uploads"),
		R2: R2Config{
			AccountID:       getEnv("R2_ACCOUNT_ID", ""),
			AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
			BucketName:      getEnv("R2_BUCKET_NAME", ""),
			Region:          getEnv("R2_REGION", "auto"),
			Endpoint:        getEnv("R2_ENDPOINT", ""),
		},
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
		Google: GoogleConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("GOOGLE_REDIRECT_URL", "http://localhost:8000/auth/google/callback"),
		},
		ShutdownTimeout: l.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}
	cfg.CorsConfig = CorsConfig(splitList(getEnv("CORS_ORIGINS", cfg.FrontendURL)))
	cfg.LogLevel = l.level("LOG_LEVEL", slog.LevelInfo)

	p := overlay.Pipeline
	cfg.Pipeline = PipelineConfig{
		Chunker: ChunkerConfig{
			MaxTokens: l.integer("CHUNK_MAX_TOKENS", p.Chunker.MaxTokens),
			Overlap:   l.integer("CHUNK_OVERLAP", p.Chunker.Overlap),
		},
		Embedder: EmbedderConfig{
			Type:        getEnv("EMBEDDER", p.Embedder.Type),
			Model:       getEnv("EMBED_MODEL", p.Embedder.Model),
			BaseURL:     getEnv("EMBED_BASE_URL", p.Embedder.BaseURL),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			Dimension:   l.integer("EMBED_DIM", p.Embedder.Dimension),
			Timeout:     l.duration("EMBED_TIMEOUT", p.Embedder.Timeout),
			MaxRetries:  l.integer("EMBED_MAX_RETRIES", p.Embedder.MaxRetries),
			Concurrency: l.integer("EMBED_CONCURRENCY", p.Embedder.Concurrency),
		},
		ProcessTimeout: l.duration("PROCESS_TIMEOUT", p.ProcessTimeout),
		Workers:        l.integer("PROCESS_WORKERS", p.Workers),
		MaxUploadMB:    int64(l.integer("MAX_UPLOAD_MB", int(p.MaxUploadMB))),
	}
	q := overlay.Query
	cfg.Query = QueryConfig{
		CacheSize: l.integer("QUERY_CACHE_SIZE", q.CacheSize),
		CacheTTL:  l.duration("QUERY_CACHE_TTL", q.CacheTTL),
		MaxLimit:  l.integer("QUERY_MAX_LIMIT", q.MaxLimit),
	}

	if l.err != nil {
		return nil, l.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		Pipeline: PipelineConfig{
			Chunker: ChunkerConfig{MaxTokens: 300, Overlap: 0},
			Embedder: EmbedderConfig{
				Type:        "hash",
				Dimension:   384,
				Timeout:     30 * time.Second,
				MaxRetries:  3,
				Concurrency: 4,
			},
			ProcessTimeout: 10 * time.Minute,
			Workers:        4,
			MaxUploadMB:    50,
		},
		Query: QueryConfig{
			CacheSize: 512,
			CacheTTL:  10 * time.Minute,
			MaxLimit:  100,
		},
	}
}

func (c *Config) validate() error {
	switch {
	case c.Pipeline.Chunker.MaxTokens <= 0:
		return errors.New("CHUNK_MAX_TOKENS must be > 0")
	case c.Pipeline.Chunker.Overlap < 0 || c.Pipeline.Chunker.Overlap >= c.Pipeline.Chunker.MaxTokens:
		return errors.New("CHUNK_OVERLAP must be >= 0 and < CHUNK_MAX_TOKENS")
	case c.Pipeline.Workers <= 0:
		return errors.New("PROCESS_WORKERS must be > 0")
	case c.Pipeline.MaxUploadMB <= 0:
		return errors.New("MAX_UPLOAD_MB must be > 0")
	case c.Query.MaxLimit <= 0:
		return errors.New("QUERY_MAX_LIMIT must be > 0")
	case c.LogFormat != "json" && c.LogFormat != "text":
		return fmt.Errorf("LOG_FORMAT: unsupported format %q", c.LogFormat)
	case c.ObjectStore != "disk" && c.ObjectStore != "r2":
		return fmt.Errorf("OBJECT_STORE: unsupported backend %q", c.ObjectStore)
	}
	if c.IsProduction() && c.JWTSecret == "not-so-secret-now-is-it?" {
		return errors.New("JWT_SECRET must be set in production")
	}
	return nil
}

func readYAML(path string, out *fileConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// SetupLogger builds the process-wide slog logger.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// Gets the env by key or fallbacks
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// loader keeps the first parse error so Load can report it once.
type loader struct {
	err error
}

func (l *loader) integer(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil && l.err == nil {
		l.err = fmt.Errorf("%s: invalid integer %q", key, raw)
	}
	return v
}

func (l *loader) duration(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil && l.err == nil {
		l.err = fmt.Errorf("%s: invalid duration %q", key, raw)
	}
	return v
}

func (l *loader) level(key string, fallback slog.Level) slog.Level {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(raw)); err != nil {
		if l.err == nil {
			l.err = fmt.Errorf("%s: invalid level %q", key, raw)
		}
		return fallback
	}
	return lvl
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func CorsConfig(origins []string) cors.Options {
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}
}
