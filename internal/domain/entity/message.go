package entity

import "github.com/google/uuid"

// AnalysisRequestMessage is the inbound message from the analysis.request queue.
type AnalysisRequestMessage struct {
	AnalysisID uuid.UUID `json:"analysis_id"`
	UserID     string    `json:"user_id"`
	MediaKey   string    `json:"media_key"`
	Filename   string    `json:"filename"`
	FileSize   int64     `json:"file_size"`
	UserEmail  string    `json:"user_email"`
}

// AnalysisStatusMessage is the outbound message published to the analysis.status queue.
type AnalysisStatusMessage struct {
	AnalysisID   uuid.UUID        `json:"analysis_id"`
	UserID       string           `json:"user_id"`
	Status       AnalysisStatus   `json:"status"`
	Filename     string           `json:"filename"`
	FileType     MediaKind        `json:"file_type"`
	FilePath     string           `json:"file_path,omitempty"`
	Prediction   Prediction       `json:"prediction,omitempty"`
	Confidence   float64          `json:"confidence,omitempty"`
	AnalysisTime float64          `json:"analysis_time,omitempty"`
	Details      *AnalysisDetails `json:"details,omitempty"`
	Encrypted    bool             `json:"encrypted"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Attempt      int              `json:"attempt"`
	MaxAttempts  int              `json:"max_attempts"`
}
