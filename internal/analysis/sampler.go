package analysis

import (
	"fmt"
	"math"

	"github.com/fiapx/fiapx-analysis-service/internal/domain/entity"
)

// DefaultSampleFrames is how many frames a video analysis examines.
const DefaultSampleFrames = 10

// SampleFrames returns count frame indices spread evenly over
// [0, totalFrames-1], rounded to the nearest frame. Short videos yield
// repeated indices.
func SampleFrames(totalFrames, count int) ([]int, error) {
	if totalFrames <= 0 {
		return nil, fmt.Errorf("%w: container reports %d frames", entity.ErrInvalidMedia, totalFrames)
	}
	if count <= 0 {
		return nil, fmt.Errorf("sample count must be positive, got %d", count)
	}

	indices := make([]int, count)
	if count == 1 {
		return indices, nil
	}

	last := totalFrames - 1
	step := float64(last) / float64(count-1)
	for i := range indices {
		indices[i] = int(math.Round(float64(i) * step))
	}
	indices[count-1] = last
	return indices, nil
}
