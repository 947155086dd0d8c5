package enum

// CheckStatus mirrors the Datadog service check status codes.
type CheckStatus int

const (
	CheckOK       CheckStatus = 0
	CheckWarning  CheckStatus = 1
	CheckCritical CheckStatus = 2
)
