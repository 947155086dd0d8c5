package interfaces

import (
	"golang.org/x/net/context"

	"github.com/replyforge/replyforge/internal/enum"
	"github.com/replyforge/replyforge/internal/models"
)

// GenerationRequest carries everything the text-generation service needs for
// one reply.
type GenerationRequest struct {
	Text         string
	Conversation []*models.Message
	Instructions string
	APIKey       string
}

// GenerationResult is the outcome of one generation call. Body is only set
// when Outcome is OutcomeSuccess. PromptChars/ResponseChars feed the size
// histograms.
type GenerationResult struct {
	Body          string
	Outcome       enum.GenerationOutcome
	PromptChars   int
	ResponseChars int
}

// GenerationService produces reply bodies. Implementations never return
// transport or provider failures to the caller; those map to the
// provider_error outcome.
type GenerationService interface {
	Generate(ctx context.Context, request GenerationRequest) GenerationResult
}
