package validation

import (
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"acey/internal/models"
)

const (
	maxSpeechLength = 500
	maxIntentsPerOutput = 5
	defaultTTL = time.Hour
)

// rawIntentHead is the portion common to every intent type.
type rawIntentHead struct {
	Type          string   `json:"type"`
	Confidence    *float64 `json:"confidence"`
	Justification string   `json:"justification"`
	Reversible    *bool    `json:"reversible"`
	TTL           string   `json:"ttl"`
}

// commonIntentKeys are the JSON keys shared by all intent types. Anything
// else in a raw intent must belong to exactly one type's field set.
var commonIntentKeys = map[string]bool{
	"type": true, "confidence": true, "justification": true,
	"reversible": true, "ttl": true,
}

// typeFieldSets maps each intent type to its legal type-specific keys.
var typeFieldSets = map[models.IntentType]map[string]bool{
	models.IntentMemoryWrite:          {"scope": true, "summary": true, "impact": true, "privacy": true},
	models.IntentTrustAdjustment:      {"userId": true, "delta": true, "reason": true},
	models.IntentModerationSuggestion: {"userId": true, "severity": true, "action": true, "duration": true, "evidence": true},
	models.IntentPersonaMode:          {"mode": true, "reason": true, "priority": true},
	models.IntentGameEvent:            {"event": true, "details": true},
	models.IntentSelfEvaluation:       {"aspect": true, "notes": true},
}

// validateStructure checks the raw model output's shape. Output-level
// failures (speech length, intent count) are returned as errors and
// reject the whole output; per-intent failures are recorded on that
// intent's review only, so siblings survive. Speech length counts runes,
// not bytes. Pure; business rules run in a separate pass afterwards.
func validateStructure(output models.ModelOutput) ([]models.IntentReview, []models.FieldError) {
	var errs []models.FieldError

	if speechLen := utf8.RuneCountInString(output.Speech); speechLen > maxSpeechLength {
		errs = append(errs, models.FieldError{
			Field:   "speech",
			Rule:    "structure",
			Message: fmt.Sprintf("speech exceeds %d characters (got %d)", maxSpeechLength, speechLen),
		})
	}

	if len(output.Intents) > maxIntentsPerOutput {
		errs = append(errs, models.FieldError{
			Field:   "intents",
			Rule:    "structure",
			Message: fmt.Sprintf("too many intents: %d (max %d)", len(output.Intents), maxIntentsPerOutput),
		})
	}

	if len(errs) > 0 {
		return nil, errs
	}

	reviews := make([]models.IntentReview, 0, len(output.Intents))
	for i, raw := range output.Intents {
		draft, fieldErrs := parseIntent(i, raw)
		reviews = append(reviews, models.IntentReview{
			Index:  i,
			Type:   draft.Type,
			Draft:  draft,
			Errors: fieldErrs,
		})
	}
	return reviews, nil
}

// parseIntent decodes one raw intent into a typed draft. All structural
// problems are reported as field errors against intents[i]. The draft's
// Type is populated whenever the type itself decoded, even alongside
// errors, so skip reporting can name it.
func parseIntent(i int, raw json.RawMessage) (models.IntentDraft, []models.FieldError) {
	field := func(name string) string { return fmt.Sprintf("intents[%d].%s", i, name) }
	var errs []models.FieldError

	var head rawIntentHead
	if err := json.Unmarshal(raw, &head); err != nil {
		return models.IntentDraft{}, []models.FieldError{{
			Field: fmt.Sprintf("intents[%d]", i), Rule: "structure",
			Message: fmt.Sprintf("intent is not a valid object: %v", err),
		}}
	}

	intentType := models.IntentType(head.Type)
	if !models.IsValidIntentType(intentType) {
		return models.IntentDraft{}, []models.FieldError{{
			Field: field("type"), Rule: "structure",
			Message: fmt.Sprintf("unknown intent type %q", head.Type),
		}}
	}

	if head.Confidence == nil {
		errs = append(errs, models.FieldError{
			Field: field("confidence"), Rule: "structure",
			Message: "confidence is required",
		})
	} else if *head.Confidence < 0 || *head.Confidence > 1 {
		errs = append(errs, models.FieldError{
			Field: field("confidence"), Rule: "structure",
			Message: fmt.Sprintf("confidence must be within [0,1], got %v", *head.Confidence),
		})
	}

	if head.Justification == "" {
		errs = append(errs, models.FieldError{
			Field: field("justification"), Rule: "structure",
			Message: "justification is required",
		})
	}

	ttl := defaultTTL
	if head.TTL != "" {
		parsed, err := time.ParseDuration(head.TTL)
		if err != nil || parsed <= 0 {
			errs = append(errs, models.FieldError{
				Field: field("ttl"), Rule: "structure",
				Message: fmt.Sprintf("ttl is not a valid duration: %q", head.TTL),
			})
		} else {
			ttl = parsed
		}
	}

	// Field exclusivity: every non-common key must belong to this type's set.
	var allKeys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &allKeys); err != nil {
		return models.IntentDraft{}, []models.FieldError{{
			Field: fmt.Sprintf("intents[%d]", i), Rule: "structure",
			Message: fmt.Sprintf("intent is not a valid object: %v", err),
		}}
	}
	allowed := typeFieldSets[intentType]
	for key := range allKeys {
		if commonIntentKeys[key] || allowed[key] {
			continue
		}
		errs = append(errs, models.FieldError{
			Field: field(key), Rule: "structure",
			Message: fmt.Sprintf("field %q is not valid for intent type %q", key, intentType),
		})
	}

	payload, payloadErrs := parsePayload(i, intentType, raw)
	errs = append(errs, payloadErrs...)

	if len(errs) > 0 {
		return models.IntentDraft{Type: intentType}, errs
	}

	reversible := true
	if head.Reversible != nil {
		reversible = *head.Reversible
	}

	return models.IntentDraft{
		Type:          intentType,
		Confidence:    *head.Confidence,
		Justification: head.Justification,
		Reversible:    reversible,
		TTL:           ttl,
		Payload:       payload,
	}, nil
}

// parsePayload decodes the type-specific fields into the matching payload
// struct and checks its required fields.
func parsePayload(i int, t models.IntentType, raw json.RawMessage) (models.IntentPayload, []models.FieldError) {
	field := func(name string) string { return fmt.Sprintf("intents[%d].%s", i, name) }
	requireString := func(name, value string) *models.FieldError {
		if value == "" {
			return &models.FieldError{Field: field(name), Rule: "structure", Message: name + " is required"}
		}
		return nil
	}

	var errs []models.FieldError
	switch t {
	case models.IntentMemoryWrite:
		var p models.MemoryWritePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, []models.FieldError{{Field: field("scope"), Rule: "structure", Message: err.Error()}}
		}
		switch p.Scope {
		case "event", "stream", "global":
		default:
			errs = append(errs, models.FieldError{Field: field("scope"), Rule: "structure",
				Message: fmt.Sprintf("scope must be event, stream or global, got %q", p.Scope)})
		}
		if e := requireString("summary", p.Summary); e != nil {
			errs = append(errs, *e)
		}
		return p, errs

	case models.IntentTrustAdjustment:
		var p models.TrustAdjustmentPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, []models.FieldError{{Field: field("delta"), Rule: "structure", Message: err.Error()}}
		}
		if e := requireString("userId", p.UserID); e != nil {
			errs = append(errs, *e)
		}
		if p.Delta < -1 || p.Delta > 1 {
			errs = append(errs, models.FieldError{Field: field("delta"), Rule: "structure",
				Message: fmt.Sprintf("delta must be within [-1,1], got %v", p.Delta)})
		}
		if e := requireString("reason", p.Reason); e != nil {
			errs = append(errs, *e)
		}
		return p, errs

	case models.IntentModerationSuggestion:
		var p models.ModerationSuggestionPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, []models.FieldError{{Field: field("action"), Rule: "structure", Message: err.Error()}}
		}
		if e := requireString("userId", p.UserID); e != nil {
			errs = append(errs, *e)
		}
		switch p.Severity {
		case "low", "medium", "high":
		default:
			errs = append(errs, models.FieldError{Field: field("severity"), Rule: "structure",
				Message: fmt.Sprintf("severity must be low, medium or high, got %q", p.Severity)})
		}
		switch p.Action {
		case "shadow_ban", "rate_limit", "filter":
		default:
			errs = append(errs, models.FieldError{Field: field("action"), Rule: "structure",
				Message: fmt.Sprintf("action must be shadow_ban, rate_limit or filter, got %q", p.Action)})
		}
		if p.Duration != "" {
			if _, err := time.ParseDuration(p.Duration); err != nil {
				errs = append(errs, models.FieldError{Field: field("duration"), Rule: "structure",
					Message: fmt.Sprintf("duration is not a valid duration: %q", p.Duration)})
			}
		}
		return p, errs

	case models.IntentPersonaMode:
		var p models.PersonaModePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, []models.FieldError{{Field: field("mode"), Rule: "structure", Message: err.Error()}}
		}
		if e := requireString("mode", p.Mode); e != nil {
			errs = append(errs, *e)
		}
		if e := requireString("reason", p.Reason); e != nil {
			errs = append(errs, *e)
		}
		return p, errs

	case models.IntentGameEvent:
		var p models.GameEventPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, []models.FieldError{{Field: field("event"), Rule: "structure", Message: err.Error()}}
		}
		if e := requireString("event", p.Event); e != nil {
			errs = append(errs, *e)
		}
		return p, errs

	case models.IntentSelfEvaluation:
		var p models.SelfEvaluationPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, []models.FieldError{{Field: field("aspect"), Rule: "structure", Message: err.Error()}}
		}
		if e := requireString("aspect", p.Aspect); e != nil {
			errs = append(errs, *e)
		}
		return p, errs
	}

	return nil, []models.FieldError{{Field: field("type"), Rule: "structure", Message: "unhandled intent type"}}
}
