package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockProvider is a test provider that records calls and returns canned replies.
type MockProvider struct {
	mu       sync.Mutex
	Calls    []Prompt
	Reply    *Reply
	Err      error
	ProvName string
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		ProvName: name,
		Reply:    &Reply{Content: `{"uncertainty": 0.4}`, Model: "mock-model"},
	}
}

func (m *MockProvider) Name() string {
	return m.ProvName
}

func (m *MockProvider) Complete(ctx context.Context, p Prompt) (*Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, p)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Reply, nil
}

func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

var judgePrompt = Prompt{
	Model:  "test-model",
	System: "rate answers",
	User:   "rate this",
}

func TestFactory(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("HOME", t.TempDir())

	p, err := NewProvider("openai", "gpt-4o-mini", "")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	p, err = NewProvider("ollama", "llama3", "http://ollama:11434")
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())
	assert.Equal(t, "http://ollama:11434", p.(*OllamaProvider).baseURL)

	_, err = NewProvider("anthropic", "claude", "")
	assert.ErrorContains(t, err, "unsupported provider type")
}

func TestFactoryRequiresOpenAIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("HOME", t.TempDir())

	_, err := NewProvider("openai", "gpt-4o-mini", "")
	assert.ErrorContains(t, err, "OPENAI_API_KEY")
}

func TestFactoryOllamaDefaultHost(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")

	p, err := NewProvider("ollama", "llama3", "")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434", p.(*OllamaProvider).baseURL)
}

func TestOllamaComplete(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: ollamaMessage{Role: "assistant", Content: `{"uncertainty": 0.2}`},
			Model:   "llama3",
		})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL+"/", "llama3")
	resp, err := p.Complete(context.Background(), judgePrompt)
	require.NoError(t, err)
	assert.Equal(t, `{"uncertainty": 0.2}`, resp.Content)
	assert.Equal(t, "llama3", resp.Model)

	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, "json", got.Format)
	assert.False(t, got.Stream)
	assert.Equal(t, 0.0, got.Options.Temperature)
	assert.Equal(t, DefaultMaxTokens, got.Options.NumPredict)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, ollamaMessage{Role: "system", Content: "rate answers"}, got.Messages[0])
	assert.Equal(t, ollamaMessage{Role: "user", Content: "rate this"}, got.Messages[1])
}

func TestOllamaEmptyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaChatResponse{Model: "llama3"})
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "llama3").Complete(context.Background(), Prompt{User: "rate this"})
	assert.ErrorIs(t, err, ErrEmptyReply)
}

func TestOpenAICompleteRequestsJSON(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"gpt-4o-mini","choices":[{"index":0,"message":{"role":"assistant","content":"{\"uncertainty\": 0.3}"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", "gpt-4o-mini", srv.URL)
	resp, err := p.Complete(context.Background(), Prompt{System: "rate answers", User: "rate this"})
	require.NoError(t, err)
	assert.Equal(t, `{"uncertainty": 0.3}`, resp.Content)
	assert.Equal(t, "gpt-4o-mini", resp.Model)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])
	assert.Len(t, got["messages"], 2)
}

func TestOllamaErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "missing").Complete(context.Background(), judgePrompt)
	assert.ErrorContains(t, err, "status 404")
}

func TestRateLimiterPassesThrough(t *testing.T) {
	mock := NewMockProvider("test")
	rl := NewRateLimitedProvider(mock, 60)

	resp, err := rl.Complete(context.Background(), judgePrompt)
	require.NoError(t, err)
	assert.Equal(t, `{"uncertainty": 0.4}`, resp.Content)
	assert.Equal(t, "test", rl.Name())
	assert.Equal(t, 1, mock.CallCount())
}

func TestRateLimiterLimitsRequests(t *testing.T) {
	mock := NewMockProvider("test")
	// Allow only 2 requests per minute.
	rl := NewRateLimitedProvider(mock, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	for i := 0; i < 2; i++ {
		_, err := rl.Complete(ctx, judgePrompt)
		require.NoError(t, err, "request %d", i)
	}

	_, err := rl.Complete(ctx, judgePrompt)
	assert.Error(t, err, "third request exceeds the budget before the deadline")
	assert.Equal(t, 2, mock.CallCount())
}

func TestRateLimiterDisabled(t *testing.T) {
	mock := NewMockProvider("test")
	assert.Same(t, Provider(mock), NewRateLimitedProvider(mock, 0))
}

func TestRateLimiterPropagatesErrors(t *testing.T) {
	mock := NewMockProvider("test")
	mock.Err = errors.New("upstream down")
	_, err := NewRateLimitedProvider(mock, 10).Complete(context.Background(), judgePrompt)
	assert.EqualError(t, err, "upstream down")
}
