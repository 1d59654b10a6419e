package validation

import (
	"fmt"
	"strings"

	"acey/internal/models"
)

const (
	minJustificationLength = 10
	highImpactConfidenceFloor = 0.7
)

// highImpactTypes are the intent types that require elevated confidence
// before they are even considered for execution.
var highImpactTypes = map[models.IntentType]bool{
	models.IntentMemoryWrite:          true,
	models.IntentTrustAdjustment:      true,
	models.IntentModerationSuggestion: true,
}

// userIdentifyingTokens is the keyword heuristic for user-identifying
// content in global memory summaries. A known-weak placeholder policy,
// kept deliberately as documented.
var userIdentifyingTokens = []string{"user", "player"}

// validateBusinessRules runs the second validation pass over intents
// that passed structural validation. Justification and confidence
// violations skip only the offending intent (appended to its review);
// a user-identifying token in a global memory summary rejects the whole
// batch, which is what the returned errors signal.
func validateBusinessRules(reviews []models.IntentReview) []models.FieldError {
	var batchErrs []models.FieldError

	for i := range reviews {
		review := &reviews[i]
		if review.Skipped() {
			continue
		}
		draft := review.Draft
		field := func(name string) string { return fmt.Sprintf("intents[%d].%s", review.Index, name) }

		if len(draft.Justification) < minJustificationLength {
			review.Errors = append(review.Errors, models.FieldError{
				Field: field("justification"), Rule: "business",
				Message: fmt.Sprintf("justification must be at least %d characters (got %d)",
					minJustificationLength, len(draft.Justification)),
			})
		}

		if highImpactTypes[draft.Type] && draft.Confidence < highImpactConfidenceFloor {
			review.Errors = append(review.Errors, models.FieldError{
				Field: field("confidence"), Rule: "business",
				Message: fmt.Sprintf("intent type %q requires confidence >= %.1f (got %v)",
					draft.Type, highImpactConfidenceFloor, draft.Confidence),
			})
		}

		if draft.Type == models.IntentMemoryWrite {
			if p, ok := draft.Payload.(models.MemoryWritePayload); ok && p.Scope == "global" {
				if token := containsUserIdentifyingToken(p.Summary); token != "" {
					batchErrs = append(batchErrs, models.FieldError{
						Field: field("summary"), Rule: "business",
						Message: fmt.Sprintf("global memory summary must not contain user-identifying token %q", token),
					})
				}
			}
		}
	}

	return batchErrs
}

// containsUserIdentifyingToken returns the first matching token, or "".
func containsUserIdentifyingToken(summary string) string {
	lower := strings.ToLower(summary)
	for _, token := range userIdentifyingTokens {
		if strings.Contains(lower, token) {
			return token
		}
	}
	return ""
}
