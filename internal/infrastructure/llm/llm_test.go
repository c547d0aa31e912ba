package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AdvisoryScanner/internal/config"
	"AdvisoryScanner/internal/domain"
	"AdvisoryScanner/internal/whitelist"
)

type stubCompleter struct {
	answer  string
	err     error
	prompts []string
}

func (s *stubCompleter) Complete(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.answer, s.err
}

func TestParseAnswer(t *testing.T) {
	t.Parallel()

	t.Run("fenced block", func(t *testing.T) {
		out, err := ParseAnswer("Sure!\n```json\n{\"affected_product\": \" Spring Boot \", \"severity\": \"HIGH\", \"summary\": \" actuator leak \"}\n```")
		require.NoError(t, err)
		assert.Equal(t, Extraction{Product: "spring boot", Severity: "high", Summary: "actuator leak"}, out)
	})

	t.Run("bare object", func(t *testing.T) {
		out, err := ParseAnswer(`Result: {"affected_product": "n8n", "severity": "critical", "summary": "rce"} done`)
		require.NoError(t, err)
		assert.Equal(t, "n8n", out.Product)
		assert.Equal(t, "critical", out.Severity)
	})

	t.Run("missing severity defaults to low", func(t *testing.T) {
		out, err := ParseAnswer(`{"affected_product": "eks"}`)
		require.NoError(t, err)
		assert.Equal(t, "low", out.Severity)
		assert.Empty(t, out.Summary)
	})

	t.Run("non-string values", func(t *testing.T) {
		out, err := ParseAnswer(`{"affected_product": null, "severity": 5, "summary": true}`)
		require.NoError(t, err)
		assert.Empty(t, out.Product)
		assert.Equal(t, "5", out.Severity)
		assert.Equal(t, "true", out.Summary)
	})

	t.Run("no json", func(t *testing.T) {
		_, err := ParseAnswer("I cannot help with that.")
		assert.ErrorIs(t, err, ErrNoJSON)
	})

	t.Run("broken json", func(t *testing.T) {
		_, err := ParseAnswer(`{"affected_product": nestjs}`)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNoJSON)
	})
}

func TestBuildPromptTruncatesDescription(t *testing.T) {
	t.Parallel()

	item := domain.Item{Title: "NestJS bypass", Description: strings.Repeat("가", 20)}
	prompt := BuildPrompt(item, 5)
	assert.Contains(t, prompt, "Title: NestJS bypass")
	assert.Contains(t, prompt, "Content: "+strings.Repeat("가", 5)+"\n")
	assert.NotContains(t, prompt, strings.Repeat("가", 6))
}

func TestAnalyzer(t *testing.T) {
	t.Parallel()

	matcher := whitelist.NewMatcher([]string{"spring boot", "nestjs"})
	item := domain.Item{ID: "nvd:CVE-2025-1", Title: "Spring Boot Actuator flaw", Description: "details"}

	t.Run("relevant and severe", func(t *testing.T) {
		stub := &stubCompleter{answer: `{"affected_product": "spring-boot-actuator", "severity": "critical", "summary": "exposed endpoints"}`}
		a := NewAnalyzer(stub, matcher, 0, nil)

		got, err := a.Analyze(context.Background(), item)
		require.NoError(t, err)
		assert.True(t, got.Relevant)
		assert.True(t, got.ActionRequired)
		assert.Equal(t, domain.SeverityCritical, got.Severity)
		assert.Equal(t, "spring-boot-actuator", got.Product)
		assert.Equal(t, "exposed endpoints", got.Summary)
		require.Len(t, stub.prompts, 1)
		assert.Contains(t, stub.prompts[0], "Spring Boot Actuator flaw")
	})

	t.Run("relevant but medium", func(t *testing.T) {
		stub := &stubCompleter{answer: `{"affected_product": "nestjs", "severity": "medium", "summary": "x"}`}
		got, err := NewAnalyzer(stub, matcher, 0, nil).Analyze(context.Background(), item)
		require.NoError(t, err)
		assert.True(t, got.Relevant)
		assert.False(t, got.ActionRequired)
	})

	t.Run("not whitelisted", func(t *testing.T) {
		stub := &stubCompleter{answer: `{"affected_product": "none", "severity": "critical", "summary": "x"}`}
		got, err := NewAnalyzer(stub, matcher, 0, nil).Analyze(context.Background(), item)
		require.NoError(t, err)
		assert.False(t, got.Relevant)
		assert.False(t, got.ActionRequired)
	})

	t.Run("model failure", func(t *testing.T) {
		stub := &stubCompleter{err: errors.New("quota")}
		_, err := NewAnalyzer(stub, matcher, 0, nil).Analyze(context.Background(), item)
		assert.Error(t, err)
	})

	t.Run("unparseable answer", func(t *testing.T) {
		stub := &stubCompleter{answer: "no idea"}
		got, err := NewAnalyzer(stub, matcher, 0, nil).Analyze(context.Background(), item)
		assert.ErrorIs(t, err, ErrNoJSON)
		assert.Equal(t, "no idea", got.Raw)
	})
}

func TestGuardedCompleterOpensCircuit(t *testing.T) {
	t.Parallel()

	stub := &stubCompleter{err: errors.New("upstream down")}
	g := NewGuardedCompleter(stub, 0, nil)

	for i := 0; i < 5; i++ {
		_, err := g.Complete(context.Background(), "p")
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, g.State())

	_, err := g.Complete(context.Background(), "p")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Len(t, stub.prompts, 5)
}

func TestGuardedCompleterHonoursContext(t *testing.T) {
	t.Parallel()

	stub := &stubCompleter{answer: "ok"}
	g := NewGuardedCompleter(stub, 1, nil)

	out, err := g.Complete(context.Background(), "first")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = g.Complete(ctx, "second")
	assert.Error(t, err)
	assert.Len(t, stub.prompts, 1)
}

func TestOpenAIClientComplete(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "gemma-3-12b-it") {
			t.Errorf("model missing from request: %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gemma-3-12b-it",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": " {\"affected_product\": \"n8n\"} "}}]
		}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(config.LLMConfig{
		APIKey:  "key",
		Model:   "gemma-3-12b-it",
		BaseURL: server.URL + "/",
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)

	out, err := client.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, `{"affected_product": "n8n"}`, out)
}

func TestAnthropicClientComplete(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "{\"affected_product\": \"eks\"}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`))
	}))
	defer server.Close()

	client, err := NewAnthropicClient(config.LLMConfig{
		APIKey:  "key",
		Model:   "claude-test",
		BaseURL: server.URL + "/",
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)

	out, err := client.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, `{"affected_product": "eks"}`, out)
}

func TestNewCompleterRejectsMissingKey(t *testing.T) {
	t.Parallel()

	_, err := NewCompleter(config.LLMConfig{Provider: config.ProviderOpenAI, Model: "m"}, nil)
	assert.Error(t, err)

	_, err = NewCompleter(config.LLMConfig{Provider: "bard"}, nil)
	assert.Error(t, err)

	c, err := NewCompleter(config.LLMConfig{Provider: config.ProviderHTTP, BaseURL: "http://localhost:9"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, c)
}
