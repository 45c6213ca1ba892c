package port

import (
	"context"

	"github.com/fiapx/fiapx-analysis-service/internal/domain/entity"
)

// Classifier scores one normalized frame. The returned score is the
// probability of manipulation, in [0,1]. Implementations must be
// deterministic for a fixed tensor and run in inference mode only.
type Classifier interface {
	Score(ctx context.Context, tensor *entity.Tensor) (float64, error)
}
