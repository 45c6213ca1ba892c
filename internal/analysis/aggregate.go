package analysis

import (
	"fmt"

	"github.com/fiapx/fiapx-analysis-service/internal/domain/entity"
)

// Aggregate combines per-frame scores into one prediction. The confidence is
// the arithmetic mean, so the order of scores does not matter.
func Aggregate(scores []float64) (entity.Prediction, float64, error) {
	if len(scores) == 0 {
		return "", 0, fmt.Errorf("%w: no scores to aggregate", entity.ErrEmptyInput)
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	confidence := sum / float64(len(scores))
	return entity.PredictionFromConfidence(confidence), confidence, nil
}
