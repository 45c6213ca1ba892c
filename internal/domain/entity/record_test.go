package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordLifecycle(t *testing.T) {
	rec := NewAnalysisRecord("analyst", "clip.mp4", "analyst/clip.mp4", 2048, 2)
	assert.Equal(t, AnalysisStatusPending, rec.Status)
	assert.Equal(t, MediaKindVideo, rec.FileType)
	assert.True(t, rec.CanRetry())

	rec.MarkProcessing()
	assert.Equal(t, 1, rec.Attempt)
	rec.MarkFailed("transient")
	assert.True(t, rec.CanRetry())

	rec.MarkProcessing()
	result := NewAnalysisResult(0.9, AnalysisDetails{Method: MethodVideoSampling, FramesAnalyzed: 10, TotalFrames: 300})
	rec.MarkProtected("analyst/id/clip.mp4.enc")
	rec.MarkCompleted(result, 1500*time.Millisecond)

	assert.Equal(t, AnalysisStatusCompleted, rec.Status)
	assert.Equal(t, PredictionFake, rec.Prediction)
	assert.Equal(t, 1.5, rec.AnalysisTime)
	assert.Empty(t, rec.ErrorMessage)
	assert.True(t, rec.Encrypted)
	assert.Equal(t, "analyst/id/clip.mp4.enc", rec.FilePath)
	assert.NotNil(t, rec.CompletedAt)
	assert.False(t, rec.CanRetry())
}

func TestRecordView(t *testing.T) {
	rec := NewAnalysisRecord("u", "a.png", "u/a.png", 10, 1)
	rec.CreatedAt = time.Date(2026, 3, 1, 14, 5, 9, 0, time.UTC)
	rec.MarkCompleted(NewAnalysisResult(0.987654, AnalysisDetails{Method: MethodSingleFrame}), 1234567*time.Microsecond)

	v := rec.View()
	assert.Equal(t, 0.9877, v.Confidence)
	assert.Equal(t, 1.23, v.AnalysisTime)
	assert.Equal(t, "2026-03-01 14:05:09", v.UploadTime)
}

func TestSummarize(t *testing.T) {
	completed := func(confidence float64) *AnalysisRecord {
		r := NewAnalysisRecord("u", "a.png", "k", 1, 1)
		r.MarkCompleted(NewAnalysisResult(confidence, AnalysisDetails{Method: MethodSingleFrame}), time.Second)
		return r
	}
	failed := NewAnalysisRecord("u", "b.png", "k", 1, 1)
	failed.MarkFailed("decode error")

	s := Summarize([]*AnalysisRecord{completed(0.2), completed(0.9), completed(0.5), failed})
	assert.Equal(t, AnalysisSummary{Total: 3, Real: 2, Fake: 1, AvgConfidence: 0.5333}, s)

	assert.Equal(t, AnalysisSummary{}, Summarize(nil))
}
