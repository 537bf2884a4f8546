package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liao/bookchat/internal/rag"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"GOOGLE_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY", "PROVIDER", "RAG_TOP_K", "SERVER_ADDR"} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ProviderGemini, cfg.Provider)
	assert.Equal(t, "gemini-2.5-flash", cfg.Gemini.ChatModel)
	assert.Equal(t, "gemini-embedding-001", cfg.Gemini.EmbeddingModel)
	assert.Equal(t, "./db", cfg.RAG.VectorsDir)
	assert.Equal(t, "coding_book_knowledge", cfg.RAG.Collection)
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.Equal(t, 1000, cfg.RAG.ChunkSize)
	assert.Equal(t, 100, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 100, cfg.RAG.BatchSize)
	assert.False(t, cfg.RAG.PerDocument)
	assert.Equal(t, rag.DefaultRole, cfg.RAG.Role)
	assert.Equal(t, "./data", cfg.Data.SourceDir)
	assert.Equal(t, "booksURL.txt", cfg.Data.URLFile)
	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())

	assert.ErrorIs(t, cfg.RequireCredential(), rag.ErrConfig)
}

func TestLoad_FileAndEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
provider: openai
openai:
  chat_model: gpt-test
rag:
  top_k: 3
  chunk_size: 500
  chunk_overlap: 50
log:
  level: debug
`)
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("SERVER_ADDR", ":9999")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, cfg.Provider)
	assert.Equal(t, "gpt-test", cfg.OpenAI.ChatModel)
	assert.Equal(t, "sk-env", cfg.OpenAI.APIKey)
	assert.Equal(t, 3, cfg.RAG.TopK)
	assert.Equal(t, 500, cfg.RAG.ChunkSize)
	assert.Equal(t, 50, cfg.RAG.ChunkOverlap)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.NoError(t, cfg.RequireCredential())
}

func TestLoad_GeminiKeyFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "gemini-key")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gemini-key", cfg.Gemini.APIKey)

	t.Setenv("GOOGLE_API_KEY", "google-key")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "google-key", cfg.Gemini.APIKey, "GOOGLE_API_KEY takes precedence")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown provider", "provider: claude\n"},
		{"overlap not smaller than size", "rag:\n  chunk_size: 100\n  chunk_overlap: 100\n"},
		{"negative overlap", "rag:\n  chunk_overlap: -1\n"},
		{"zero top_k", "rag:\n  top_k: 0\n"},
		{"zero batch", "rag:\n  batch_size: 0\n"},
		{"malformed yaml", "rag: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorIs(t, err, rag.ErrConfig)
		})
	}
}
