package internal

import (
	"strings"
)

// RefusalPrefix starts every refusal, whether produced by the guard or by
// the model following SystemPrompt.
const RefusalPrefix = "REFUSAL:"

const (
	refusalReason     = "Question requests legal/medical/policy advice but the provided sources do not explicitly contain such information."
	refusalSuggestion = "Provide authoritative documents or consult a qualified professional."
)

// SensitiveKeywords covers legal, medical and policy/regulatory questions.
// Matching is by lower-cased substring, so "policy" also fires on
// unrelated uses of the word.
var SensitiveKeywords = []string{
	"legal", "law", "legal advice", "attorney", "court", "litigation",
	"medical", "medicine", "doctor", "diagnosis", "treatment", "clinic",
	"policy", "regulation", "regulatory", "compliance", "policy guidance",
}

func containsKeyword(s string) bool {
	s = strings.ToLower(s)
	for _, kw := range SensitiveKeywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// IsSensitive reports whether the question touches a sensitive domain.
func IsSensitive(question string) bool {
	return containsKeyword(question)
}

// ContainsEvidence reports whether any excerpt mentions a sensitive keyword.
func ContainsEvidence(texts []string) bool {
	return containsKeyword(strings.Join(texts, "\n"))
}

func FormatRefusal(reason, suggestion string) string {
	return RefusalPrefix + " " + reason + "\nSuggestion: " + suggestion
}

// Decision is the guard's verdict. Message is set only when Refuse is true.
type Decision struct {
	Refuse     bool
	Reason     string
	Suggestion string
	Message    string
}

// Guard blocks generation for sensitive questions the retrieved context
// cannot back up.
type Guard struct{}

func NewGuard() *Guard {
	return &Guard{}
}

func (g *Guard) Check(question string, texts []string) Decision {
	if !IsSensitive(question) || ContainsEvidence(texts) {
		return Decision{}
	}
	return Decision{
		Refuse:     true,
		Reason:     refusalReason,
		Suggestion: refusalSuggestion,
		Message:    FormatRefusal(refusalReason, refusalSuggestion),
	}
}
