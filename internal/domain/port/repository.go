package port

import (
	"context"

	"github.com/fiapx/fiapx-analysis-service/internal/domain/entity"
	"github.com/google/uuid"
)

type AnalysisRepository interface {
	Create(ctx context.Context, record *entity.AnalysisRecord) error
	Update(ctx context.Context, record *entity.AnalysisRecord) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.AnalysisRecord, error)
	ListRecent(ctx context.Context, userID string, limit int) ([]*entity.AnalysisRecord, error)
}
