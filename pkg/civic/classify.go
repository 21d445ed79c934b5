package civic

// RequestType is the gateway's judgement of whether a complaint is actionable.
type RequestType string

const (
	RequestValid   RequestType = "valid"
	RequestInvalid RequestType = "invalid"
	RequestGarbage RequestType = "garbage"
)

// ClassificationResult is the structured output of the classification gateway.
// Immutable once produced; consumed exactly once to update a ticket.
type ClassificationResult struct {
	RequestType       RequestType `json:"requestType"`
	Department        string      `json:"department"`
	SimplifiedSummary string      `json:"simplifiedSummary"`
	Priority          Priority    `json:"priority"`
	Confidence        int         `json:"confidence"`
	Reasoning         string      `json:"reasoning"`
	SuggestedActions  []string    `json:"suggestedActions"`
	IsFallback        bool        `json:"-"`
}
