package genai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/factory_os/internal/logging"
	"github.com/R3E-Network/factory_os/internal/metrics"
)

type fakeCompleter struct {
	mu   sync.Mutex
	reqs []openai.ChatCompletionRequest
	resp openai.ChatCompletionResponse
	err  error
}

func (f *fakeCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return f.resp, f.err
}

func answer(content string, tokens int) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}}},
		Usage:   openai.Usage{TotalTokens: tokens},
	}
}

func TestAskAccumulatesTokens(t *testing.T) {
	fake := &fakeCompleter{resp: answer("spindle OK", 12)}
	adapter := NewOpenAIWithClient(fake, OpenAIConfig{}, logging.Discard(), metrics.New("test"))

	assert.Equal(t, "spindle OK", adapter.Ask(context.Background(), "status?", ""))
	assert.Equal(t, "spindle OK", adapter.Ask(context.Background(), "status?", ""))
	assert.Equal(t, int64(24), adapter.TokenUsage())

	require.Len(t, fake.reqs, 2)
	req := fake.reqs[0]
	assert.Equal(t, DefaultModel, req.Model)
	assert.InDelta(t, 0.7, req.Temperature, 0.0001)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, openai.ChatMessageRoleUser, req.Messages[0].Role)
	assert.Equal(t, "status?", req.Messages[0].Content)
}

func TestAskSendsSystemMessage(t *testing.T) {
	fake := &fakeCompleter{resp: answer("ok", 1)}
	adapter := NewOpenAIWithClient(fake, OpenAIConfig{Model: "gpt-4o-mini"}, logging.Discard(), nil)

	adapter.Ask(context.Background(), "hi", "You are a factory assistant.")

	require.Len(t, fake.reqs[0].Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, fake.reqs[0].Messages[0].Role)
	assert.Equal(t, "gpt-4o-mini", fake.reqs[0].Model)
}

func TestAskSwallowsProviderErrors(t *testing.T) {
	fake := &fakeCompleter{err: errors.New("connection refused")}
	adapter := NewOpenAIWithClient(fake, OpenAIConfig{}, logging.Discard(), nil)

	got := adapter.Ask(context.Background(), "hi", "")
	assert.Equal(t, "Error: AI service is currently unavailable. (Trace: connection refused)", got)
	assert.Zero(t, adapter.TokenUsage())
}

func TestAskTreatsEmptyChoicesAsError(t *testing.T) {
	fake := &fakeCompleter{resp: openai.ChatCompletionResponse{Usage: openai.Usage{TotalTokens: 3}}}
	adapter := NewOpenAIWithClient(fake, OpenAIConfig{}, logging.Discard(), nil)

	got := adapter.Ask(context.Background(), "hi", "")
	assert.True(t, strings.HasPrefix(got, "Error: AI service is currently unavailable."))
	assert.Zero(t, adapter.TokenUsage())
}

func TestAskAgainstHTTPServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(answer("echo: "+req.Messages[0].Content, 7))
	}))
	defer srv.Close()

	adapter := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/"}, logging.Discard(), nil)
	assert.Equal(t, "echo: Hello", adapter.Ask(context.Background(), "Hello", ""))
	assert.Equal(t, int64(7), adapter.TokenUsage())
}

func TestAskConcurrentCounting(t *testing.T) {
	fake := &fakeCompleter{resp: answer("ok", 2)}
	adapter := NewOpenAIWithClient(fake, OpenAIConfig{}, logging.Discard(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			adapter.Ask(context.Background(), "hi", "")
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(40), adapter.TokenUsage())
}

func TestMockAdapter(t *testing.T) {
	m := NewMock()
	assert.Equal(t, MockResponse, m.Ask(context.Background(), "anything", ""))
	assert.Zero(t, m.TokenUsage())
	assert.Equal(t, "mock", m.Provider())
}
