package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/liao/bookchat/internal/rag"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type Config struct {
	Provider string       `mapstructure:"provider"`
	Gemini   GeminiConfig `mapstructure:"gemini"`
	OpenAI   OpenAIConfig `mapstructure:"openai"`
	RAG      RAGConfig    `mapstructure:"rag"`
	Data     DataConfig   `mapstructure:"data"`
	Server   ServerConfig `mapstructure:"server"`
	Log      LogConfig    `mapstructure:"log"`
}

type GeminiConfig struct {
	APIKey              string  `mapstructure:"api_key"`
	ChatModel           string  `mapstructure:"chat_model"`
	EmbeddingModel      string  `mapstructure:"embedding_model"`
	EmbeddingDimensions int32   `mapstructure:"embedding_dimensions"`
	Temperature         float32 `mapstructure:"temperature"`
	MaxOutputTokens     int32   `mapstructure:"max_output_tokens"`
	RPMLimit            int     `mapstructure:"rpm_limit"`
	BaseURL             string  `mapstructure:"base_url"`
}

type OpenAIConfig struct {
	APIKey                 string `mapstructure:"api_key"`
	BaseURL                string `mapstructure:"base_url"`
	ChatModel              string `mapstructure:"chat_model"`
	QueryEmbeddingModel    string `mapstructure:"query_embedding_model"`
	DocumentEmbeddingModel string `mapstructure:"document_embedding_model"`
	RPMLimit               int    `mapstructure:"rpm_limit"`
}

type RAGConfig struct {
	VectorsDir   string `mapstructure:"vectors_dir"`
	Collection   string `mapstructure:"collection"`
	TopK         int    `mapstructure:"top_k"`
	ChunkSize    int    `mapstructure:"chunk_size"`
	ChunkOverlap int    `mapstructure:"chunk_overlap"`
	BatchSize    int    `mapstructure:"batch_size"`
	PerDocument  bool   `mapstructure:"per_document"`
	Role         string `mapstructure:"role"`
}

type DataConfig struct {
	SourceDir          string `mapstructure:"source_dir"`
	URLFile            string `mapstructure:"url_file"`
	DownloadDir        string `mapstructure:"download_dir"`
	DownloadTimeoutSec int    `mapstructure:"download_timeout_sec"`
}

type ServerConfig struct {
	Addr            string   `mapstructure:"addr"`
	CORSOrigins     []string `mapstructure:"cors_origins"`
	ReadTimeoutSec  int      `mapstructure:"read_timeout_sec"`
	WriteTimeoutSec int      `mapstructure:"write_timeout_sec"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderGemini)

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.chat_model", "gemini-2.5-flash")
	v.SetDefault("gemini.embedding_model", "gemini-embedding-001")
	v.SetDefault("gemini.embedding_dimensions", 0)
	v.SetDefault("gemini.temperature", 0.2)
	v.SetDefault("gemini.max_output_tokens", 2048)
	v.SetDefault("gemini.rpm_limit", 0)
	v.SetDefault("gemini.base_url", "")

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.chat_model", "gpt-4o-mini")
	v.SetDefault("openai.query_embedding_model", "text-embedding-3-small")
	v.SetDefault("openai.document_embedding_model", "text-embedding-3-small")
	v.SetDefault("openai.rpm_limit", 0)

	v.SetDefault("rag.vectors_dir", "./db")
	v.SetDefault("rag.collection", "coding_book_knowledge")
	v.SetDefault("rag.top_k", rag.DefaultTopK)
	v.SetDefault("rag.chunk_size", 1000)
	v.SetDefault("rag.chunk_overlap", 100)
	v.SetDefault("rag.batch_size", 100)
	v.SetDefault("rag.per_document", false)
	v.SetDefault("rag.role", rag.DefaultRole)

	v.SetDefault("data.source_dir", "./data")
	v.SetDefault("data.url_file", "booksURL.txt")
	v.SetDefault("data.download_dir", "./data")
	v.SetDefault("data.download_timeout_sec", 120)

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.read_timeout_sec", 15)
	v.SetDefault("server.write_timeout_sec", 120)

	v.SetDefault("log.level", "info")
}

// Load 读取配置。path 为空或文件不存在时只用默认值和环境变量。
// 工作目录下的 .env 会先被加载，不覆盖已存在的环境变量。
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("load .env failed", "error", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			slog.Warn("config file not found, using defaults", "path", path)
		} else {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("%w: read config: %v", rag.ErrConfig, err)
			}
		}
	}

	// 环境变量覆盖
	if key := firstEnv("GOOGLE_API_KEY", "GEMINI_API_KEY"); key != "" {
		v.Set("gemini.api_key", key)
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		v.Set("openai.api_key", key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config: %v", rag.ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查取值范围，不检查凭据
func (c *Config) Validate() error {
	var errs []error
	switch c.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Provider))
	}
	if c.RAG.TopK <= 0 {
		errs = append(errs, fmt.Errorf("rag.top_k must be positive, got %d", c.RAG.TopK))
	}
	if c.RAG.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("rag.chunk_size must be positive, got %d", c.RAG.ChunkSize))
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		errs = append(errs, fmt.Errorf("rag.chunk_overlap must be in [0, chunk_size), got %d", c.RAG.ChunkOverlap))
	}
	if c.RAG.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("rag.batch_size must be positive, got %d", c.RAG.BatchSize))
	}
	if c.RAG.Collection == "" {
		errs = append(errs, errors.New("rag.collection is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", rag.ErrConfig, errors.Join(errs...))
	}
	return nil
}

// RequireCredential 模型凭据缺失时返回 ErrConfig，进程不应继续启动
func (c *Config) RequireCredential() error {
	switch c.Provider {
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("%w: openai.api_key is required (set in config or OPENAI_API_KEY env)", rag.ErrConfig)
		}
	default:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("%w: gemini.api_key is required (set in config or GOOGLE_API_KEY / GEMINI_API_KEY env)", rag.ErrConfig)
		}
	}
	return nil
}

// SlogLevel 把配置里的级别名转换成 slog.Level，未知值按 info 处理
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
