package enum

// GenerationOutcome classifies the result of a reply-generation request.
// Exactly one outcome is produced per request; only OutcomeSuccess carries a
// usable reply body.
type GenerationOutcome string

const (
	OutcomeSuccess       GenerationOutcome = "success"
	OutcomeUserNotFound  GenerationOutcome = "user_not_found"
	OutcomeProviderError GenerationOutcome = "provider_error"
	OutcomeInvalidJSON   GenerationOutcome = "invalid_json"
	OutcomeFiltered      GenerationOutcome = "filtered"
	OutcomeEmptyBody     GenerationOutcome = "empty_body"
)

func (o GenerationOutcome) String() string {
	return string(o)
}
