package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fiapx/fiapx-analysis-service/internal/domain/entity"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AnalysisRepository struct {
	pool *pgxpool.Pool
}

func NewAnalysisRepository(pool *pgxpool.Pool) *AnalysisRepository {
	return &AnalysisRepository{pool: pool}
}

const selectColumns = `
	id, user_id, filename, file_type, file_path, file_size,
	prediction, confidence, analysis_time, details, encrypted,
	status, attempt, max_attempts, error_message,
	created_at, updated_at, completed_at`

func (r *AnalysisRepository) Create(ctx context.Context, rec *entity.AnalysisRecord) error {
	details, err := json.Marshal(rec.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}

	query := `
		INSERT INTO analysis_history (` + selectColumns + `
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`

	_, err = r.pool.Exec(ctx, query,
		rec.ID, rec.UserID, rec.Filename, string(rec.FileType), rec.FilePath, rec.FileSize,
		string(rec.Prediction), rec.Confidence, rec.AnalysisTime, details, rec.Encrypted,
		string(rec.Status), rec.Attempt, rec.MaxAttempts, rec.ErrorMessage,
		rec.CreatedAt, rec.UpdatedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

func (r *AnalysisRepository) Update(ctx context.Context, rec *entity.AnalysisRecord) error {
	details, err := json.Marshal(rec.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}

	query := `
		UPDATE analysis_history SET
			file_path=$2, prediction=$3, confidence=$4, analysis_time=$5,
			details=$6, encrypted=$7, status=$8, attempt=$9,
			error_message=$10, updated_at=$11, completed_at=$12
		WHERE id=$1`

	_, err = r.pool.Exec(ctx, query,
		rec.ID, rec.FilePath, string(rec.Prediction), rec.Confidence, rec.AnalysisTime,
		details, rec.Encrypted, string(rec.Status), rec.Attempt,
		rec.ErrorMessage, rec.UpdatedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update analysis: %w", err)
	}
	return nil
}

func (r *AnalysisRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.AnalysisRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM analysis_history WHERE id=$1`

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("find analysis %s: %w", id, entity.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find analysis by id: %w", err)
	}
	return rec, nil
}

// ListRecent returns the newest records first. An empty userID lists every user.
func (r *AnalysisRepository) ListRecent(ctx context.Context, userID string, limit int) ([]*entity.AnalysisRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM analysis_history
		WHERE ($1 = '' OR user_id = $1)
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	var records []*entity.AnalysisRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	return records, nil
}

func scanRecord(row pgx.Row) (*entity.AnalysisRecord, error) {
	rec := &entity.AnalysisRecord{}
	var fileType, prediction, status string
	var details []byte
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.Filename, &fileType, &rec.FilePath, &rec.FileSize,
		&prediction, &rec.Confidence, &rec.AnalysisTime, &details, &rec.Encrypted,
		&status, &rec.Attempt, &rec.MaxAttempts, &rec.ErrorMessage,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.FileType = entity.MediaKind(fileType)
	rec.Prediction = entity.Prediction(prediction)
	rec.Status = entity.AnalysisStatus(status)
	if len(details) > 0 {
		if err := json.Unmarshal(details, &rec.Details); err != nil {
			return nil, fmt.Errorf("unmarshal details: %w", err)
		}
	}
	return rec, nil
}
