package detection

import "encoding/json"

// Prediction is a single labeled detection returned by the workflow model.
// Class is nil when the model reported neither a class nor a label field.
type Prediction struct {
	Class      *string `json:"class"`
	Confidence float64 `json:"confidence"`
}

// Result is the normalized view of one workflow run.
type Result struct {
	// Predictions preserves the ordering of the raw model output.
	Predictions []Prediction
	// TopConfidence is the maximum confidence across Predictions, 0 when empty.
	TopConfidence float64
	// Malformed is set when the raw result was present but did not carry the
	// expected outputs[0].output2.predictions structure. The result is still
	// treated as an empty detection; callers log it separately so a broken
	// upstream is distinguishable from a genuinely clean image.
	Malformed bool
}

type rawPrediction struct {
	Class      *string  `json:"class"`
	Label      *string  `json:"label"`
	Confidence *float64 `json:"confidence"`
}

type rawBundle struct {
	Predictions *[]rawPrediction `json:"predictions"`
}

type rawOutput struct {
	Output2 *rawBundle `json:"output2"`
}

// Normalize maps the raw workflow output array into a Result. It never fails:
// absent, empty, or structurally damaged input yields an empty Result.
func Normalize(raw json.RawMessage) Result {
	if len(raw) == 0 {
		return Result{}
	}

	var outputs []rawOutput
	if err := json.Unmarshal(raw, &outputs); err != nil {
		return Result{Malformed: true}
	}
	if len(outputs) == 0 {
		return Result{}
	}

	bundle := outputs[0].Output2
	if bundle == nil || bundle.Predictions == nil {
		return Result{Malformed: true}
	}

	result := Result{Predictions: make([]Prediction, 0, len(*bundle.Predictions))}
	for _, pred := range *bundle.Predictions {
		normalized := Prediction{Class: pred.Class}
		if normalized.Class == nil {
			normalized.Class = pred.Label
		}
		if pred.Confidence != nil {
			normalized.Confidence = *pred.Confidence
		}
		result.Predictions = append(result.Predictions, normalized)
		if normalized.Confidence > result.TopConfidence {
			result.TopConfidence = normalized.Confidence
		}
	}
	return result
}
