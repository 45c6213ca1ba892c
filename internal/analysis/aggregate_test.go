package analysis

import (
	"testing"

	"github.com/fiapx/fiapx-analysis-service/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateEmpty(t *testing.T) {
	_, _, err := Aggregate(nil)
	assert.ErrorIs(t, err, entity.ErrEmptyInput)

	_, _, err = Aggregate([]float64{})
	assert.ErrorIs(t, err, entity.ErrEmptyInput)
}

func TestAggregateBoundaryIsReal(t *testing.T) {
	prediction, confidence, err := Aggregate([]float64{0.2, 0.8})
	require.NoError(t, err)
	assert.Equal(t, 0.5, confidence)
	assert.Equal(t, entity.PredictionReal, prediction)
}

func TestAggregateMean(t *testing.T) {
	prediction, confidence, err := Aggregate([]float64{0.9, 0.7, 0.8})
	require.NoError(t, err)
	assert.InDelta(t, 0.8, confidence, 1e-12)
	assert.Equal(t, entity.PredictionFake, prediction)
}

func TestAggregateIsOrderIndependent(t *testing.T) {
	_, a, err := Aggregate([]float64{0.25, 0.5, 1, 0})
	require.NoError(t, err)
	_, b, err := Aggregate([]float64{1, 0, 0.5, 0.25})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestAggregateToleratesRepeatedScores(t *testing.T) {
	_, confidence, err := Aggregate([]float64{0.6, 0.6, 0.6, 0.6})
	require.NoError(t, err)
	assert.InDelta(t, 0.6, confidence, 1e-12)
}
