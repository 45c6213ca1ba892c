package entity

import "math"

type Prediction string

const (
	PredictionReal Prediction = "REAL"
	PredictionFake Prediction = "FAKE"
)

const (
	MethodSingleFrame   = "single_frame_analysis"
	MethodVideoSampling = "video_sampling"
)

// fakeThreshold is exclusive: a confidence of exactly 0.5 is REAL.
const fakeThreshold = 0.5

func PredictionFromConfidence(confidence float64) Prediction {
	if confidence > fakeThreshold {
		return PredictionFake
	}
	return PredictionReal
}

type AnalysisDetails struct {
	Method         string `json:"method"`
	Model          string `json:"model,omitempty"`
	FramesAnalyzed int    `json:"frames_analyzed,omitempty"`
	TotalFrames    int    `json:"total_frames,omitempty"`
}

// AnalysisResult is the outcome of analyzing one media item.
type AnalysisResult struct {
	Prediction Prediction      `json:"prediction"`
	Confidence float64         `json:"confidence"`
	Details    AnalysisDetails `json:"details"`
}

func NewAnalysisResult(confidence float64, details AnalysisDetails) *AnalysisResult {
	return &AnalysisResult{
		Prediction: PredictionFromConfidence(confidence),
		Confidence: confidence,
		Details:    details,
	}
}

// DisplayConfidence is the confidence as shown to users and in status messages.
func (r *AnalysisResult) DisplayConfidence() float64 {
	return Round(r.Confidence, 4)
}

func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
