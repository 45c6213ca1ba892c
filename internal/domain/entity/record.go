package entity

import (
	"time"

	"github.com/google/uuid"
)

type AnalysisStatus string

const (
	AnalysisStatusPending    AnalysisStatus = "PENDING"
	AnalysisStatusProcessing AnalysisStatus = "PROCESSING"
	AnalysisStatusCompleted  AnalysisStatus = "COMPLETED"
	AnalysisStatusFailed     AnalysisStatus = "FAILED"
)

// AnalysisRecord is one row of analysis history.
type AnalysisRecord struct {
	ID           uuid.UUID
	UserID       string
	Filename     string
	FileType     MediaKind
	FilePath     string
	FileSize     int64
	Prediction   Prediction
	Confidence   float64
	AnalysisTime float64
	Details      AnalysisDetails
	Encrypted    bool
	Status       AnalysisStatus
	Attempt      int
	MaxAttempts  int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

func NewAnalysisRecord(userID, filename, mediaKey string, fileSize int64, maxAttempts int) *AnalysisRecord {
	now := time.Now().UTC()
	return &AnalysisRecord{
		ID:          uuid.New(),
		UserID:      userID,
		Filename:    filename,
		FileType:    KindFromPath(filename),
		FilePath:    mediaKey,
		FileSize:    fileSize,
		Status:      AnalysisStatusPending,
		Attempt:     0,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (r *AnalysisRecord) MarkProcessing() {
	r.Status = AnalysisStatusProcessing
	r.Attempt++
	r.UpdatedAt = time.Now().UTC()
}

func (r *AnalysisRecord) MarkCompleted(result *AnalysisResult, analysisTime time.Duration) {
	now := time.Now().UTC()
	r.Status = AnalysisStatusCompleted
	r.Prediction = result.Prediction
	r.Confidence = result.Confidence
	r.Details = result.Details
	r.AnalysisTime = analysisTime.Seconds()
	r.ErrorMessage = ""
	r.UpdatedAt = now
	r.CompletedAt = &now
}

// MarkProtected points the record at the encrypted copy of the media.
func (r *AnalysisRecord) MarkProtected(protectedKey string) {
	r.FilePath = protectedKey
	r.Encrypted = true
	r.UpdatedAt = time.Now().UTC()
}

func (r *AnalysisRecord) MarkFailed(errMsg string) {
	r.Status = AnalysisStatusFailed
	r.ErrorMessage = errMsg
	r.UpdatedAt = time.Now().UTC()
}

func (r *AnalysisRecord) CanRetry() bool {
	return r.Attempt < r.MaxAttempts
}

// AnalysisView is the display form of a record.
type AnalysisView struct {
	ID           uuid.UUID       `json:"id"`
	Filename     string          `json:"filename"`
	FileType     MediaKind       `json:"file_type"`
	Prediction   Prediction      `json:"prediction"`
	Confidence   float64         `json:"confidence"`
	AnalysisTime float64         `json:"analysis_time"`
	FileSize     int64           `json:"file_size"`
	UploadTime   string          `json:"upload_time"`
	Encrypted    bool            `json:"encrypted"`
	Details      AnalysisDetails `json:"details"`
}

func (r *AnalysisRecord) View() AnalysisView {
	return AnalysisView{
		ID:           r.ID,
		Filename:     r.Filename,
		FileType:     r.FileType,
		Prediction:   r.Prediction,
		Confidence:   Round(r.Confidence, 4),
		AnalysisTime: Round(r.AnalysisTime, 2),
		FileSize:     r.FileSize,
		UploadTime:   r.CreatedAt.Format("2006-01-02 15:04:05"),
		Encrypted:    r.Encrypted,
		Details:      r.Details,
	}
}

type AnalysisSummary struct {
	Total         int     `json:"total"`
	Real          int     `json:"real"`
	Fake          int     `json:"fake"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// Summarize counts completed records only.
func Summarize(records []*AnalysisRecord) AnalysisSummary {
	var s AnalysisSummary
	var sum float64
	for _, r := range records {
		if r.Status != AnalysisStatusCompleted {
			continue
		}
		s.Total++
		sum += r.Confidence
		switch r.Prediction {
		case PredictionReal:
			s.Real++
		case PredictionFake:
			s.Fake++
		}
	}
	if s.Total > 0 {
		s.AvgConfidence = Round(sum/float64(s.Total), 4)
	}
	return s
}
