package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"acey/internal/models"
)

// buildOutput assembles a raw model output from a speech string and
// pre-serialized intent objects.
func buildOutput(speech string, intents ...string) []byte {
	out := map[string]any{"speech": speech}
	if len(intents) > 0 {
		raws := make([]json.RawMessage, len(intents))
		for i, s := range intents {
			raws[i] = json.RawMessage(s)
		}
		out["intents"] = raws
	}
	data, _ := json.Marshal(out)
	return data
}

const validTrustIntent = `{
	"type": "trust_signal",
	"confidence": 0.95,
	"justification": "consistent helpful behavior over several hands",
	"userId": "viewer-42",
	"delta": 0.15,
	"reason": "helped a new player"
}`

func firstError(t *testing.T, result models.ValidationResult) models.FieldError {
	t.Helper()
	if result.Valid {
		t.Fatal("expected invalid result")
	}
	if len(result.Errors) == 0 {
		t.Fatal("invalid result carries no field errors")
	}
	return result.Errors[0]
}

// firstSkipError asserts the output stayed valid with its first intent
// skipped, and returns that intent's first error.
func firstSkipError(t *testing.T, result models.ValidationResult) models.FieldError {
	t.Helper()
	if !result.Valid {
		t.Fatalf("whole output rejected, want per-intent skip: %v", result.Errors)
	}
	if len(result.Reviews) == 0 {
		t.Fatal("no intent reviews")
	}
	if !result.Reviews[0].Skipped() {
		t.Fatal("intent not skipped")
	}
	return result.Reviews[0].Errors[0]
}

// ---- Tests ----

func TestValidateRaw_ValidOutput(t *testing.T) {
	v := NewValidator()
	result := v.ValidateRaw(buildOutput("nice hand!", validTrustIntent))

	if !result.Valid {
		t.Fatalf("expected valid output, got errors: %v", result.Errors)
	}
	if result.SpeechOnly {
		t.Error("output with intents flagged speech-only")
	}
	if len(result.Reviews) != 1 {
		t.Fatalf("expected 1 review, got %d", len(result.Reviews))
	}
	if result.Reviews[0].Skipped() {
		t.Fatalf("valid intent skipped: %v", result.Reviews[0].Errors)
	}

	draft := result.Reviews[0].Draft
	if draft.Type != models.IntentTrustAdjustment {
		t.Errorf("draft type = %s, want trust_signal", draft.Type)
	}
	if draft.TTL != time.Hour {
		t.Errorf("default TTL = %v, want 1h", draft.TTL)
	}
	p, ok := draft.Payload.(models.TrustAdjustmentPayload)
	if !ok {
		t.Fatalf("payload is %T, want TrustAdjustmentPayload", draft.Payload)
	}
	if p.UserID != "viewer-42" || p.Delta != 0.15 {
		t.Errorf("payload = %+v", p)
	}
}

func TestValidateRaw_SpeechOnlyPermitted(t *testing.T) {
	v := NewValidator()
	result := v.ValidateRaw(buildOutput("just chatting, no moves to make"))

	if !result.Valid {
		t.Fatalf("speech-only output rejected: %v", result.Errors)
	}
	if !result.SpeechOnly {
		t.Error("speech-only flag not set")
	}
	if got := v.Statistics().SpeechOnly; got != 1 {
		t.Errorf("SpeechOnly stat = %d, want 1", got)
	}
}

func TestValidateRaw_MalformedJSON(t *testing.T) {
	v := NewValidator()
	result := v.ValidateRaw([]byte(`{"speech": "oops"`))

	fe := firstError(t, result)
	if fe.Rule != "structure" {
		t.Errorf("rule = %s, want structure", fe.Rule)
	}
}

func TestValidateOutput_SpeechTooLong(t *testing.T) {
	v := NewValidator()
	result := v.ValidateRaw(buildOutput(strings.Repeat("a", maxSpeechLength+1)))

	fe := firstError(t, result)
	if fe.Field != "speech" || fe.Rule != "structure" {
		t.Errorf("error = %+v, want structure error on speech", fe)
	}
}

func TestValidateOutput_SpeechAtLimit(t *testing.T) {
	v := NewValidator()
	result := v.ValidateRaw(buildOutput(strings.Repeat("a", maxSpeechLength)))
	if !result.Valid {
		t.Fatalf("speech of exactly %d chars rejected: %v", maxSpeechLength, result.Errors)
	}
}

func TestValidateOutput_TooManyIntents(t *testing.T) {
	v := NewValidator()
	intents := make([]string, maxIntentsPerOutput+1)
	for i := range intents {
		intents[i] = validTrustIntent
	}
	result := v.ValidateRaw(buildOutput("busy hand", intents...))

	fe := firstError(t, result)
	if fe.Field != "intents" {
		t.Errorf("error field = %s, want intents", fe.Field)
	}
}

func TestValidateOutput_UnknownIntentType(t *testing.T) {
	v := NewValidator()
	result := v.ValidateRaw(buildOutput("hm", `{
		"type": "launch_missiles",
		"confidence": 0.99,
		"justification": "it seemed like a good idea"
	}`))

	fe := firstSkipError(t, result)
	if fe.Field != "intents[0].type" {
		t.Errorf("error field = %s, want intents[0].type", fe.Field)
	}
}

func TestValidateOutput_MissingConfidence(t *testing.T) {
	v := NewValidator()
	result := v.ValidateRaw(buildOutput("hm", `{
		"type": "game_event",
		"justification": "big pot just resolved",
		"event": "pot_won"
	}`))

	fe := firstSkipError(t, result)
	if fe.Field != "intents[0].confidence" {
		t.Errorf("error field = %s, want intents[0].confidence", fe.Field)
	}
}

func TestValidateOutput_ConfidenceOutOfRange(t *testing.T) {
	v := NewValidator()
	result := v.ValidateRaw(buildOutput("hm", `{
		"type": "game_event",
		"confidence": 1.2,
		"justification": "big pot just resolved",
		"event": "pot_won"
	}`))

	fe := firstSkipError(t, result)
	if fe.Field != "intents[0].confidence" || fe.Rule != "structure" {
		t.Errorf("error = %+v, want structure error on confidence", fe)
	}
}

func TestValidateOutput_FieldExclusivity(t *testing.T) {
	// delta belongs to trust_signal, never to memory_write
	v := NewValidator()
	result := v.ValidateRaw(buildOutput("hm", `{
		"type": "memory_write",
		"confidence": 0.9,
		"justification": "memorable bluff this stream",
		"scope": "stream",
		"summary": "a spectacular bluff on the river",
		"delta": 0.2
	}`))

	fe := firstSkipError(t, result)
	if fe.Field != "intents[0].delta" {
		t.Errorf("error field = %s, want intents[0].delta", fe.Field)
	}
}

func TestValidateOutput_InvalidScope(t *testing.T) {
	v := NewValidator()
	result := v.ValidateRaw(buildOutput("hm", `{
		"type": "memory_write",
		"confidence": 0.9,
		"justification": "memorable bluff this stream",
		"scope": "galactic",
		"summary": "a spectacular bluff"
	}`))

	fe := firstSkipError(t, result)
	if fe.Field != "intents[0].scope" {
		t.Errorf("error field = %s, want intents[0].scope", fe.Field)
	}
}

func TestValidateOutput_ShortJustificationIsBusinessRule(t *testing.T) {
	// Structurally present but too short: must surface from the second
	// pass, not the first.
	v := NewValidator()
	result := v.ValidateRaw(buildOutput("hm", `{
		"type": "game_event",
		"confidence": 0.9,
		"justification": "short",
		"event": "pot_won"
	}`))

	fe := firstSkipError(t, result)
	if fe.Rule != "business" {
		t.Errorf("rule = %s, want business", fe.Rule)
	}
	if fe.Field != "intents[0].justification" {
		t.Errorf("error field = %s", fe.Field)
	}
}

func TestValidateOutput_HighImpactConfidenceFloor(t *testing.T) {
	for _, tc := range []struct {
		confidence  float64
		wantSkipped bool
	}{
		{0.69, true},
		{0.7, false},
		{0.85, false},
	} {
		t.Run(fmt.Sprintf("confidence_%v", tc.confidence), func(t *testing.T) {
			v := NewValidator()
			result := v.ValidateRaw(buildOutput("hm", fmt.Sprintf(`{
				"type": "trust_signal",
				"confidence": %v,
				"justification": "consistent positive behavior",
				"userId": "viewer-1",
				"delta": 0.1,
				"reason": "being helpful"
			}`, tc.confidence)))

			if !result.Valid {
				t.Fatalf("confidence %v: output rejected outright: %v", tc.confidence, result.Errors)
			}
			if got := result.Reviews[0].Skipped(); got != tc.wantSkipped {
				t.Errorf("confidence %v: skipped = %v, want %v (errors: %v)",
					tc.confidence, got, tc.wantSkipped, result.Reviews[0].Errors)
			}
			if tc.wantSkipped {
				if fe := firstSkipError(t, result); fe.Rule != "business" {
					t.Errorf("rule = %s, want business", fe.Rule)
				}
			}
		})
	}
}

func TestValidateOutput_GlobalMemoryUserTokens(t *testing.T) {
	template := `{
		"type": "memory_write",
		"confidence": 0.9,
		"justification": "worth remembering across streams",
		"scope": %q,
		"summary": %q
	}`

	for _, tc := range []struct {
		name      string
		scope     string
		summary   string
		wantValid bool
	}{
		{"global_with_user", "global", "the user won a huge pot", false},
		{"global_with_player_uppercase", "global", "A Player went all-in twice", false},
		{"global_clean", "global", "aggressive three-bets paid off tonight", true},
		{"stream_with_user", "stream", "the user won a huge pot", true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			v := NewValidator()
			result := v.ValidateRaw(buildOutput("gg", fmt.Sprintf(template, tc.scope, tc.summary)))
			if result.Valid != tc.wantValid {
				t.Errorf("valid = %v, want %v (errors: %v)", result.Valid, tc.wantValid, result.Errors)
			}
			if !tc.wantValid {
				if fe := firstError(t, result); fe.Field != "intents[0].summary" {
					t.Errorf("error field = %s, want intents[0].summary", fe.Field)
				}
			}
		})
	}
}

func TestValidateOutput_BadIntentSkippedSiblingSurvives(t *testing.T) {
	// One bad intent is skipped; the good one is still admitted.
	v := NewValidator()
	result := v.ValidateRaw(buildOutput("mixed bag", validTrustIntent, `{
		"type": "trust_signal",
		"confidence": 0.95,
		"justification": "no user to point at",
		"delta": 0.1,
		"reason": "solid play"
	}`))

	if !result.Valid {
		t.Fatalf("output with one bad intent rejected outright: %v", result.Errors)
	}
	if len(result.Reviews) != 2 {
		t.Fatalf("got %d reviews, want 2", len(result.Reviews))
	}
	if result.Reviews[0].Skipped() {
		t.Errorf("valid intent skipped: %v", result.Reviews[0].Errors)
	}
	if !result.Reviews[1].Skipped() {
		t.Error("intent missing its userId was not skipped")
	}
	if len(result.Errors) == 0 {
		t.Error("skip detail missing from result errors")
	}
	if got := v.Statistics().SkippedIntents; got != 1 {
		t.Errorf("SkippedIntents stat = %d, want 1", got)
	}
}

func TestValidateOutput_SpeechLengthCountsRunes(t *testing.T) {
	v := NewValidator()

	// 500 multi-byte runes are well over 500 bytes but exactly at the
	// character limit.
	result := v.ValidateRaw(buildOutput(strings.Repeat("é", maxSpeechLength)))
	if !result.Valid {
		t.Fatalf("500-rune speech rejected: %v", result.Errors)
	}

	result = v.ValidateRaw(buildOutput(strings.Repeat("é", maxSpeechLength+1)))
	if result.Valid {
		t.Fatal("501-rune speech accepted")
	}
}

func TestValidator_Statistics(t *testing.T) {
	v := NewValidator()
	v.ValidateRaw(buildOutput("ok", validTrustIntent))
	v.ValidateRaw(buildOutput("ok"))
	v.ValidateRaw([]byte(`not json`))

	stats := v.Statistics()
	if stats.ValidOutputs != 2 {
		t.Errorf("ValidOutputs = %d, want 2", stats.ValidOutputs)
	}
	if stats.InvalidOutputs != 1 {
		t.Errorf("InvalidOutputs = %d, want 1", stats.InvalidOutputs)
	}
	if len(v.RecentErrors()) == 0 {
		t.Error("recent error log is empty after an invalid output")
	}
}
