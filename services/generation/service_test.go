package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replyforge/replyforge/config"
	"github.com/replyforge/replyforge/interfaces"
	"github.com/replyforge/replyforge/internal/enum"
	"github.com/replyforge/replyforge/internal/models"
)

func providerResponse(text string) string {
	body, _ := json.Marshal(map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]string{{"text": text}}}},
		},
	})
	return string(body)
}

func newTestService(t *testing.T, handler http.HandlerFunc) interfaces.GenerationService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewGenerationService(&config.GenerationConfig{
		BaseURL:   server.URL,
		Model:     "gemini-2.0-pro",
		Timeout:   5 * time.Second,
		MaxTokens: 400,
	})
}

func request() interfaces.GenerationRequest {
	return interfaces.GenerationRequest{
		Text:         "Where is my order?",
		Instructions: "be nice",
		APIKey:       "key-123",
	}
}

func TestGenerate_Success(t *testing.T) {
	// Arrange
	var gotKey string
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		w.Write([]byte(providerResponse(`{"body": "Thanks, we are on it."}`)))
	})

	// Act
	result := svc.Generate(context.Background(), request())

	// Assert
	assert.Equal(t, enum.OutcomeSuccess, result.Outcome)
	assert.Equal(t, "Thanks, we are on it.", result.Body)
	assert.Equal(t, "key-123", gotKey)
	assert.Greater(t, result.PromptChars, 0)
	assert.Equal(t, len(result.Body), result.ResponseChars)
}

func TestGenerate_FilteredBody(t *testing.T) {
	// Arrange
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(providerResponse(`{"body": false}`)))
	})

	// Act
	result := svc.Generate(context.Background(), request())

	// Assert
	assert.Equal(t, enum.OutcomeFiltered, result.Outcome)
	assert.Empty(t, result.Body)
}

func TestGenerate_InvalidJSON(t *testing.T) {
	// Arrange
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(providerResponse(`Sure! Here is the reply you asked for`)))
	})

	// Act
	result := svc.Generate(context.Background(), request())

	// Assert
	assert.Equal(t, enum.OutcomeInvalidJSON, result.Outcome)
}

func TestGenerate_EmptyBody(t *testing.T) {
	// Arrange
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(providerResponse(`{"body": ""}`)))
	})

	// Act
	result := svc.Generate(context.Background(), request())

	// Assert
	assert.Equal(t, enum.OutcomeEmptyBody, result.Outcome)
}

func TestGenerate_ProviderError(t *testing.T) {
	// Arrange
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})

	// Act
	result := svc.Generate(context.Background(), request())

	// Assert
	assert.Equal(t, enum.OutcomeProviderError, result.Outcome)
}

func TestGenerate_UnreachableProvider(t *testing.T) {
	// Arrange
	svc := NewGenerationService(&config.GenerationConfig{
		BaseURL: "http://127.0.0.1:1",
		Model:   "gemini-2.0-pro",
		Timeout: time.Second,
	})

	// Act
	result := svc.Generate(context.Background(), request())

	// Assert
	assert.Equal(t, enum.OutcomeProviderError, result.Outcome)
}

func TestBuildPrompt_IncludesConversationHistory(t *testing.T) {
	// Arrange
	conversation := []*models.Message{
		{Sender: "alice@x.com", Body: "first question", Direction: enum.MessageIncoming},
		{Sender: "support@acme.com", Body: "first answer", Direction: enum.MessageOutgoing},
	}

	// Act
	prompt := buildPrompt("follow up", conversation, "be nice")

	// Assert
	require.Contains(t, prompt, "be nice")
	assert.Contains(t, prompt, "alice@x.com, first question, incoming")
	assert.Contains(t, prompt, "support@acme.com, first answer, outgoing")
	assert.Contains(t, prompt, "follow up")
}

func TestBuildPrompt_OmitsConversationWhenEmpty(t *testing.T) {
	// Act
	prompt := buildPrompt("hello", nil, "x")

	// Assert
	assert.NotContains(t, prompt, "Conversation")
}
