package strategy

import (
	"context"
	"strings"
)

// confirmationPhrases is the fixed vocabulary scanned for when structured
// extraction is unavailable. All lowercase; matching is case-insensitive.
var confirmationPhrases = []string{
	"application submitted",
	"application sent",
	"application received",
	"your application has been submitted",
	"thank you for applying",
	"thanks for applying",
	"successfully applied",
	"we have received your application",
}

// detectConfirmation looks for a submission confirmation signal on the
// current page. Structured extraction is tried first; if extraction itself
// errors, a deterministic substring scan over the visible page text runs
// instead, so a confirmation is never missed purely because extraction
// failed. No signal means unknown, never success.
func detectConfirmation(ctx context.Context, act Actuator) (string, bool) {
	data, err := act.Extract(ctx,
		"Determine whether this page confirms that the job application was submitted",
		map[string]string{
			"submitted":         "boolean",
			"confirmation_text": "string",
		})
	if err == nil {
		submitted, _ := data["submitted"].(bool)
		if !submitted {
			return "", false
		}
		text, _ := data["confirmation_text"].(string)
		if text == "" {
			text = "application submitted"
		}
		return text, true
	}

	text, err := act.VisibleText(ctx)
	if err != nil {
		return "", false
	}
	// Index and slice the same lowercased copy: ToLower can change byte
	// offsets, so positions found in it do not map back onto text.
	lower := strings.ToLower(text)
	for _, phrase := range confirmationPhrases {
		if idx := strings.Index(lower, phrase); idx >= 0 {
			return lower[idx : idx+len(phrase)], true
		}
	}
	return "", false
}
