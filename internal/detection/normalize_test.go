package detection

import (
	"encoding/json"
	"testing"
)

func TestNormalizePreservesOrderAndCount(t *testing.T) {
	raw := json.RawMessage(`[{"output2":{"predictions":[
		{"class":"pothole","confidence":0.4},
		{"class":"garbage","confidence":0.9},
		{"class":"graffiti","confidence":0.9}
	]}}]`)

	result := Normalize(raw)
	if result.Malformed {
		t.Fatal("expected well-formed result")
	}
	if len(result.Predictions) != 3 {
		t.Fatalf("expected 3 predictions, got %d", len(result.Predictions))
	}
	want := []string{"pothole", "garbage", "graffiti"}
	for i, label := range want {
		if result.Predictions[i].Class == nil || *result.Predictions[i].Class != label {
			t.Fatalf("prediction %d: expected class %q, got %v", i, label, result.Predictions[i].Class)
		}
	}
	if result.TopConfidence != 0.9 {
		t.Fatalf("expected top confidence 0.9, got %f", result.TopConfidence)
	}
}

func TestNormalizeFallsBackToLabelField(t *testing.T) {
	raw := json.RawMessage(`[{"output2":{"predictions":[{"label":"open-manhole","confidence":0.75}]}}]`)

	result := Normalize(raw)
	if len(result.Predictions) != 1 {
		t.Fatalf("expected 1 prediction, got %d", len(result.Predictions))
	}
	if result.Predictions[0].Class == nil || *result.Predictions[0].Class != "open-manhole" {
		t.Fatalf("expected label fallback, got %v", result.Predictions[0].Class)
	}
}

func TestNormalizeDefaultsMissingFields(t *testing.T) {
	raw := json.RawMessage(`[{"output2":{"predictions":[{"confidence":0.5},{"class":"pothole"}]}}]`)

	result := Normalize(raw)
	if len(result.Predictions) != 2 {
		t.Fatalf("expected 2 predictions, got %d", len(result.Predictions))
	}
	if result.Predictions[0].Class != nil {
		t.Fatalf("expected nil class, got %q", *result.Predictions[0].Class)
	}
	if result.Predictions[1].Confidence != 0 {
		t.Fatalf("expected zero confidence, got %f", result.Predictions[1].Confidence)
	}
	if result.TopConfidence != 0.5 {
		t.Fatalf("expected top confidence 0.5, got %f", result.TopConfidence)
	}
}

func TestNormalizeEmptyInputs(t *testing.T) {
	for name, raw := range map[string]json.RawMessage{
		"nil":            nil,
		"empty array":    json.RawMessage(`[]`),
		"null":           json.RawMessage(`null`),
		"no predictions": json.RawMessage(`[{"output2":{"predictions":[]}}]`),
	} {
		result := Normalize(raw)
		if len(result.Predictions) != 0 {
			t.Fatalf("%s: expected no predictions, got %d", name, len(result.Predictions))
		}
		if result.TopConfidence != 0 {
			t.Fatalf("%s: expected top confidence 0, got %f", name, result.TopConfidence)
		}
		if result.Malformed {
			t.Fatalf("%s: expected well-formed empty result", name)
		}
	}
}

func TestNormalizeFlagsMalformedInputs(t *testing.T) {
	for name, raw := range map[string]json.RawMessage{
		"not an array":    json.RawMessage(`{"output2":{}}`),
		"missing output2": json.RawMessage(`[{"output1":{"predictions":[]}}]`),
		"missing nested":  json.RawMessage(`[{"output2":{}}]`),
		"garbage":         json.RawMessage(`{{{`),
	} {
		result := Normalize(raw)
		if len(result.Predictions) != 0 {
			t.Fatalf("%s: expected no predictions, got %d", name, len(result.Predictions))
		}
		if !result.Malformed {
			t.Fatalf("%s: expected malformed flag", name)
		}
	}
}
