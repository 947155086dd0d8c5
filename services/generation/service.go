package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/opentracing/opentracing-go"

	"github.com/replyforge/replyforge/config"
	"github.com/replyforge/replyforge/interfaces"
	"github.com/replyforge/replyforge/internal/enum"
	"github.com/replyforge/replyforge/internal/models"
	"github.com/replyforge/replyforge/internal/tracing"
)

// stableInstruction is the fixed part of every prompt. The dynamic tenant
// instructions are appended per request.
const stableInstruction = `You are a corporate email assistant.
Always respond professionally and concisely.
Return the answer strictly in JSON format:
{"body": "..."}
Do not use emojis or fabricate information.
If the message is promotional, irrelevant, or unrelated to instructions, return {"body": false}.`

type generationService struct {
	cfg    *config.GenerationConfig
	client *http.Client
}

func NewGenerationService(cfg *config.GenerationConfig) interfaces.GenerationService {
	return &generationService{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type generateContentRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// replyEnvelope is the strict-JSON contract the model must honour. Body is
// either a string or the literal false (filtered).
type replyEnvelope struct {
	Body json.RawMessage `json:"body"`
}

// Generate calls the provider and maps every failure mode onto an outcome
// code. It never returns an error: transport and provider problems surface
// as provider_error.
func (s *generationService) Generate(ctx context.Context, request interfaces.GenerationRequest) interfaces.GenerationResult {
	span, ctx := opentracing.StartSpanFromContext(ctx, "generationService.Generate")
	defer span.Finish()
	tracing.TagComponentService(span)

	prompt := buildPrompt(request.Text, request.Conversation, request.Instructions)

	raw, err := s.callProvider(ctx, prompt, request.APIKey)
	if err != nil {
		tracing.TraceErr(span, err)
		return interfaces.GenerationResult{Outcome: enum.OutcomeProviderError, PromptChars: len(prompt)}
	}

	var envelope replyEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		tracing.TraceErr(span, err)
		return interfaces.GenerationResult{Outcome: enum.OutcomeInvalidJSON, PromptChars: len(prompt)}
	}

	if string(envelope.Body) == "false" {
		return interfaces.GenerationResult{Outcome: enum.OutcomeFiltered, PromptChars: len(prompt)}
	}

	var body string
	if err := json.Unmarshal(envelope.Body, &body); err != nil || body == "" {
		return interfaces.GenerationResult{Outcome: enum.OutcomeEmptyBody, PromptChars: len(prompt)}
	}

	span.SetTag("response.chars", len(body))

	return interfaces.GenerationResult{
		Body:          body,
		Outcome:       enum.OutcomeSuccess,
		PromptChars:   len(prompt),
		ResponseChars: len(body),
	}
}

func (s *generationService) callProvider(ctx context.Context, prompt, apiKey string) (string, error) {
	payload := generateContentRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     0.2,
			MaxOutputTokens: s.cfg.MaxTokens,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", s.cfg.BaseURL, s.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed generateContentResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("provider returned no candidates")
	}

	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

func buildPrompt(text string, conversation []*models.Message, instructions string) string {
	var sb strings.Builder
	sb.WriteString(stableInstruction)
	sb.WriteString("\n\nConsider the following instructions:\n")
	sb.WriteString(instructions)

	if len(conversation) > 0 {
		sb.WriteString("\n\nConversation (in format sender, message, type):\n")
		for _, msg := range conversation {
			sb.WriteString(fmt.Sprintf("%s, %s, %s\n", msg.Sender, msg.Body, msg.Direction))
		}
	}

	sb.WriteString("\n\nCustomer email:\n")
	sb.WriteString(text)
	return sb.String()
}
