package inference

import (
	"context"

	"github.com/fiapx/fiapx-analysis-service/internal/domain/entity"
	"github.com/fiapx/fiapx-analysis-service/internal/domain/port"
)

// Limited bounds how many Score calls reach the wrapped classifier at once.
// With a limit of 1 a non-reentrant model sees strictly serialized calls while
// decoding and preprocessing in other analyses carry on.
type Limited struct {
	next port.Classifier
	sem  chan struct{}
}

// Limit wraps next. A non-positive maxConcurrent returns next unchanged.
func Limit(next port.Classifier, maxConcurrent int) port.Classifier {
	if maxConcurrent <= 0 {
		return next
	}
	return &Limited{next: next, sem: make(chan struct{}, maxConcurrent)}
}

func (l *Limited) Score(ctx context.Context, tensor *entity.Tensor) (float64, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.next.Score(ctx, tensor)
}
