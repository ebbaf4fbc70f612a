package detection

import "fmt"

// AdmissionThreshold is the fixed confidence cutoff above which an image is
// deemed to contain a valid civic issue.
const AdmissionThreshold = 0.7

// Decision is the upload-admission outcome derived from a Result.
type Decision struct {
	Confidence    float64
	DetectedIssue *string
	AllowUpload   bool
	Message       string
}

// Decide selects the highest-confidence prediction (first occurrence wins
// ties) and applies the admission threshold. An empty Result denies the
// upload with confidence 0.
func Decide(result Result) Decision {
	decision := Decision{Message: "No civic issue detected"}
	if len(result.Predictions) == 0 {
		return decision
	}

	best := result.Predictions[0]
	for _, pred := range result.Predictions[1:] {
		if pred.Confidence > best.Confidence {
			best = pred
		}
	}

	decision.Confidence = best.Confidence
	decision.DetectedIssue = best.Class
	decision.AllowUpload = best.Confidence >= AdmissionThreshold
	if best.Class != nil {
		decision.Message = fmt.Sprintf("Detected Issue: %s", *best.Class)
	}
	return decision
}
