package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liao/bookchat/internal/rag"
)

// fakeGemini 模拟 Gemini API 的 batchEmbedContents / generateContent
type fakeGemini struct {
	mu     sync.Mutex
	bodies []string
	status int
}

func (f *fakeGemini) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.bodies = append(f.bodies, string(body))
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = io.WriteString(w, `{"error":{"code":429,"message":"quota exhausted","status":"RESOURCE_EXHAUSTED"}}`)
		return
	}

	switch {
	case strings.Contains(r.URL.Path, ":batchEmbedContents"):
		var req struct {
			Requests []json.RawMessage `json:"requests"`
		}
		_ = json.Unmarshal(body, &req)
		embeddings := make([]map[string]any, len(req.Requests))
		for i := range req.Requests {
			embeddings[i] = map[string]any{"values": []float32{float32(i + 1), 0.5, 0.25}}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": embeddings})
	case strings.Contains(r.URL.Path, ":generateContent"):
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"The capital is W."}]},"finishReason":"STOP"}]}`)
	default:
		http.NotFound(w, r)
	}
}

func newTestGemini(t *testing.T, f *fakeGemini) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), Options{
		APIKey:          "test-key",
		ChatModel:       "gemini-2.5-flash",
		EmbeddingModel:  "gemini-embedding-001",
		Temperature:     0.2,
		MaxOutputTokens: 256,
		BaseURL:         srv.URL,
	})
	require.NoError(t, err)
	return c
}

func TestClient_EmbedModes(t *testing.T) {
	f := &fakeGemini{}
	c := newTestGemini(t, f)
	ctx := context.Background()

	vectors, err := c.Embed(ctx, []string{"first", "second", "third"}, rag.ModeDocument)
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float32{1, 0.5, 0.25}, vectors[0])
	assert.Equal(t, []float32{3, 0.5, 0.25}, vectors[2])
	require.Len(t, f.bodies, 1)
	assert.Contains(t, f.bodies[0], taskRetrievalDocument)

	q, err := c.Embed(ctx, []string{"what?"}, rag.ModeQuery)
	require.NoError(t, err)
	require.Len(t, q, 1)
	require.Len(t, f.bodies, 2)
	assert.Contains(t, f.bodies[1], taskRetrievalQuery)
	assert.NotContains(t, f.bodies[1], taskRetrievalDocument)
}

func TestClient_EmbedEmptyInput(t *testing.T) {
	f := &fakeGemini{}
	c := newTestGemini(t, f)

	vectors, err := c.Embed(context.Background(), nil, rag.ModeDocument)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Empty(t, f.bodies)
}

func TestClient_UpstreamFailure(t *testing.T) {
	f := &fakeGemini{status: http.StatusTooManyRequests}
	c := newTestGemini(t, f)
	ctx := context.Background()

	_, err := c.Embed(ctx, []string{"x"}, rag.ModeDocument)
	assert.ErrorIs(t, err, rag.ErrEmbedding)

	_, err = c.Generate(ctx, "prompt")
	assert.ErrorIs(t, err, rag.ErrGeneration)
}

func TestClient_Generate(t *testing.T) {
	f := &fakeGemini{}
	c := newTestGemini(t, f)

	text, err := c.Generate(context.Background(), "CONTEXT:\nThe capital of Z is W.")
	require.NoError(t, err)
	assert.Equal(t, "The capital is W.", text)
	require.Len(t, f.bodies, 1)
	assert.Contains(t, f.bodies[0], "The capital of Z is W.")
}

// fakeOpenAI 模拟 /embeddings 和 /chat/completions
type fakeOpenAI struct {
	requests atomic.Int32
	mu       sync.Mutex
	models   []string
	status   int
	reversed bool
}

func (f *fakeOpenAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)
	w.Header().Set("Content-Type", "application/json")
	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = io.WriteString(w, `{"error":{"message":"invalid api key","type":"invalid_request_error"}}`)
		return
	}

	var req struct {
		Model string   `json:"model"`
		Input []string `json:"input"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	f.mu.Lock()
	f.models = append(f.models, req.Model)
	f.mu.Unlock()

	switch {
	case strings.HasSuffix(r.URL.Path, "/embeddings"):
		data := make([]map[string]any, 0, len(req.Input))
		for i := range req.Input {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float64{float64(i), 1},
			})
		}
		if f.reversed {
			for i, j := 0, len(data)-1; i < j; i, j = i+1, j-1 {
				data[i], data[j] = data[j], data[i]
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	case strings.HasSuffix(r.URL.Path, "/chat/completions"):
		_, _ = io.WriteString(w, `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini",`+
			`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"W"}}]}`)
	default:
		http.NotFound(w, r)
	}
}

func newTestOpenAI(t *testing.T, f *fakeOpenAI) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	return NewOpenAIClient(OpenAIOptions{
		APIKey:                 "sk-test",
		BaseURL:                srv.URL + "/v1/",
		ChatModel:              "gpt-4o-mini",
		QueryEmbeddingModel:    "query-model",
		DocumentEmbeddingModel: "document-model",
	})
}

func TestOpenAIClient_EmbedUsesModePerModel(t *testing.T) {
	f := &fakeOpenAI{reversed: true}
	c := newTestOpenAI(t, f)
	ctx := context.Background()

	vectors, err := c.Embed(ctx, []string{"a", "b", "c"}, rag.ModeDocument)
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for i, v := range vectors {
		assert.Equal(t, []float32{float32(i), 1}, v, "vector %d must be placed by index", i)
	}

	_, err = c.Embed(ctx, []string{"q"}, rag.ModeQuery)
	require.NoError(t, err)
	assert.Equal(t, []string{"document-model", "query-model"}, f.models)
}

func TestOpenAIClient_Generate(t *testing.T) {
	f := &fakeOpenAI{}
	c := newTestOpenAI(t, f)

	text, err := c.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "W", text)
}

func TestOpenAIClient_NoRetry(t *testing.T) {
	f := &fakeOpenAI{status: http.StatusUnauthorized}
	c := newTestOpenAI(t, f)

	_, err := c.Embed(context.Background(), []string{"a"}, rag.ModeDocument)
	assert.ErrorIs(t, err, rag.ErrEmbedding)
	assert.Equal(t, int32(1), f.requests.Load())

	_, err = c.Generate(context.Background(), "prompt")
	assert.ErrorIs(t, err, rag.ErrGeneration)
	assert.Equal(t, int32(2), f.requests.Load())
}

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, newLimiter(0))
	assert.NoError(t, wait(context.Background(), nil))

	l := newLimiter(60)
	require.NotNil(t, l)
	assert.Equal(t, 60, l.Burst())
	assert.NoError(t, wait(context.Background(), l))
}
