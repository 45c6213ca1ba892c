package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fiapx/fiapx-analysis-service/internal/domain/entity"
	"github.com/fiapx/fiapx-analysis-service/internal/domain/port"
	"github.com/fiapx/fiapx-analysis-service/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Analyzer runs the analysis pipeline on a local file.
type Analyzer interface {
	Analyze(ctx context.Context, path string) (*entity.AnalysisResult, error)
}

type AnalyzeMediaUseCase struct {
	repo        port.AnalysisRepository
	storage     port.MediaStorage
	analyzer    Analyzer
	protector   port.FileProtector
	publisher   port.StatusPublisher
	dlq         port.DLQPublisher
	notifier    port.FailureNotifier
	logger      *zap.Logger
	tempDir     string
	maxRetry    int
	maxFileSize int64
}

type AnalyzeMediaConfig struct {
	TempDir     string
	MaxRetries  int
	MaxFileSize int64
}

// NewAnalyzeMediaUseCase wires the worker. A nil protector disables at-rest
// protection.
func NewAnalyzeMediaUseCase(
	repo port.AnalysisRepository,
	storage port.MediaStorage,
	analyzer Analyzer,
	protector port.FileProtector,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg AnalyzeMediaConfig,
) *AnalyzeMediaUseCase {
	maxFileSize := cfg.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = entity.MaxFileSize
	}
	return &AnalyzeMediaUseCase{
		repo:        repo,
		storage:     storage,
		analyzer:    analyzer,
		protector:   protector,
		publisher:   publisher,
		dlq:         dlq,
		notifier:    notifier,
		logger:      logger,
		tempDir:     cfg.TempDir,
		maxRetry:    cfg.MaxRetries,
		maxFileSize: maxFileSize,
	}
}

func (uc *AnalyzeMediaUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "AnalyzeMediaUseCase.Execute")
	defer span.End()

	var msg entity.AnalysisRequestMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}
	if msg.Filename == "" {
		msg.Filename = filepath.Base(msg.MediaKey)
	}

	span.SetAttributes(
		attribute.String("analysis.id", msg.AnalysisID.String()),
		attribute.String("analysis.media_key", msg.MediaKey),
	)

	log := uc.logger.With(zap.String("analysis_id", msg.AnalysisID.String()), zap.String("media_key", msg.MediaKey))

	record, err := uc.repo.FindByID(ctx, msg.AnalysisID)
	if err != nil && !errors.Is(err, entity.ErrNotFound) {
		log.Error("failed to look up analysis record", zap.Error(err))
		return fmt.Errorf("find analysis: %w", err)
	}
	if err != nil {
		record = entity.NewAnalysisRecord(msg.UserID, msg.Filename, msg.MediaKey, msg.FileSize, uc.maxRetry)
		record.ID = msg.AnalysisID
		if err := uc.repo.Create(ctx, record); err != nil {
			log.Error("failed to create analysis record", zap.Error(err))
			return fmt.Errorf("create analysis: %w", err)
		}
	}

	if record.Status == entity.AnalysisStatusCompleted {
		log.Info("analysis already completed, skipping redelivery")
		if record.Encrypted {
			// A previous delivery may have stopped before the plaintext upload
			// was removed.
			return uc.removePlaintext(ctx, msg, log)
		}
		return nil
	}

	if reason := uc.validate(msg); reason != "" {
		log.Warn("rejecting upload", zap.String("reason", reason))
		return uc.handlePermanentFailure(ctx, record, msg, rawMsg, reason)
	}

	if !record.CanRetry() {
		log.Warn("analysis exhausted retries, sending to DLQ")
		return uc.handlePermanentFailure(ctx, record, msg, rawMsg, "max retries exceeded")
	}

	record.MarkProcessing()
	if err := uc.repo.Update(ctx, record); err != nil {
		log.Error("failed to update analysis to PROCESSING", zap.Error(err))
		return fmt.Errorf("update analysis: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	return uc.analyzePipeline(ctx, record, msg, rawMsg, log)
}

func (uc *AnalyzeMediaUseCase) validate(msg entity.AnalysisRequestMessage) string {
	if msg.MediaKey == "" {
		return "missing media key"
	}
	if !entity.IsAllowedUpload(msg.Filename) {
		return "file type not allowed: " + msg.Filename
	}
	if msg.FileSize > uc.maxFileSize {
		return fmt.Sprintf("file too large: %d bytes exceeds %d", msg.FileSize, uc.maxFileSize)
	}
	return ""
}

func (uc *AnalyzeMediaUseCase) analyzePipeline(
	ctx context.Context,
	record *entity.AnalysisRecord,
	msg entity.AnalysisRequestMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")
	kind := string(record.FileType)

	workDir := filepath.Join(uc.tempDir, record.ID.String())
	if err := os.MkdirAll(workDir, 0o700); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// Download media from MinIO
	dlStart := time.Now()
	ctx2, spanDl := tracer.Start(ctx, "download_media")
	mediaPath := filepath.Join(workDir, filepath.Base(msg.Filename))
	if err := uc.storage.DownloadMedia(ctx2, msg.MediaKey, mediaPath); err != nil {
		spanDl.End()
		log.Error("failed to download media", zap.Error(err))
		return uc.handleRetryableFailure(ctx, record, msg, rawMsg, "download_media: "+err.Error(), log)
	}
	spanDl.End()
	metrics.AnalysisDuration.WithLabelValues("download", kind).Observe(time.Since(dlStart).Seconds())

	// Analyze
	anStart := time.Now()
	result, err := uc.analyzer.Analyze(ctx, mediaPath)
	analysisTime := time.Since(anStart)
	if err != nil {
		log.Error("analysis failed", zap.Error(err))
		if entity.IsPermanent(err) {
			return uc.handlePermanentFailure(ctx, record, msg, rawMsg, "analyze: "+err.Error())
		}
		return uc.handleRetryableFailure(ctx, record, msg, rawMsg, "analyze: "+err.Error(), log)
	}
	metrics.AnalysisDuration.WithLabelValues("analyze", kind).Observe(analysisTime.Seconds())
	if result.Details.Method == entity.MethodVideoSampling {
		metrics.FramesAnalyzedTotal.Add(float64(result.Details.FramesAnalyzed))
	}

	// Protect at rest
	if uc.protector != nil {
		prStart := time.Now()
		ctx3, spanPr := tracer.Start(ctx, "protect_media")
		protectedKey, err := uc.protect(ctx3, mediaPath, msg)
		spanPr.End()
		if err != nil {
			log.Error("at-rest protection failed", zap.Error(err))
			return uc.handleRetryableFailure(ctx, record, msg, rawMsg, "protect_media: "+err.Error(), log)
		}
		record.MarkProtected(protectedKey)
		metrics.ProtectedFilesTotal.Inc()
		metrics.AnalysisDuration.WithLabelValues("protect", kind).Observe(time.Since(prStart).Seconds())
	}

	record.MarkCompleted(result, analysisTime)
	if err := uc.repo.Update(ctx, record); err != nil {
		log.Error("failed to update analysis to COMPLETED", zap.Error(err))
		return fmt.Errorf("update analysis completed: %w", err)
	}

	uc.publishStatus(ctx, record, log)

	// The plaintext upload goes only once the record points at the ciphertext,
	// so every redelivery before this point can still download it.
	if record.Encrypted {
		if err := uc.removePlaintext(ctx, msg, log); err != nil {
			return err
		}
	}

	metrics.AnalysesTotal.WithLabelValues("completed", string(result.Prediction)).Inc()

	log.Info("analysis completed",
		zap.String("prediction", string(result.Prediction)),
		zap.Float64("confidence", result.DisplayConfidence()),
		zap.String("method", result.Details.Method),
		zap.Bool("encrypted", record.Encrypted),
	)

	return nil
}

// protect encrypts the local copy and stores the ciphertext. The plaintext
// upload is left in place.
func (uc *AnalyzeMediaUseCase) protect(ctx context.Context, mediaPath string, msg entity.AnalysisRequestMessage) (string, error) {
	protectedPath, err := uc.protector.Protect(mediaPath)
	if err != nil {
		return "", err
	}

	f, err := os.Open(protectedPath)
	if err != nil {
		return "", fmt.Errorf("open protected file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat protected file: %w", err)
	}

	protectedKey := fmt.Sprintf("%s/%s/%s", msg.UserID, msg.AnalysisID.String(), filepath.Base(protectedPath))
	if err := uc.storage.UploadProtected(ctx, protectedKey, f, info.Size()); err != nil {
		return "", err
	}
	return protectedKey, nil
}

// removePlaintext deletes the original upload of a protected analysis.
// Removing an object that is already gone succeeds.
func (uc *AnalyzeMediaUseCase) removePlaintext(ctx context.Context, msg entity.AnalysisRequestMessage, log *zap.Logger) error {
	if err := uc.storage.RemoveMedia(ctx, msg.MediaKey); err != nil {
		log.Error("failed to remove plaintext upload", zap.Error(err))
		return fmt.Errorf("remove plaintext upload: %w", err)
	}
	return nil
}

func (uc *AnalyzeMediaUseCase) handleRetryableFailure(
	ctx context.Context,
	record *entity.AnalysisRecord,
	msg entity.AnalysisRequestMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	// Shutdown is not a failure of the analysis: leave the record as it is
	// and let the redelivery run it again.
	if err := ctx.Err(); err != nil {
		log.Warn("analysis interrupted", zap.String("stage", errMsg))
		return fmt.Errorf("analysis interrupted: %w", err)
	}

	record.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, record)

	if !record.CanRetry() {
		return uc.handlePermanentFailure(ctx, record, msg, rawMsg, errMsg)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(record.Attempt)).Inc()
	uc.publishStatus(ctx, record, log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", record.Attempt, record.MaxAttempts, errMsg)
}

func (uc *AnalyzeMediaUseCase) handlePermanentFailure(
	ctx context.Context,
	record *entity.AnalysisRecord,
	msg entity.AnalysisRequestMessage,
	rawMsg []byte,
	errMsg string,
) error {
	record.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, record)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)

	uc.publishStatus(ctx, record, uc.logger)

	metrics.AnalysesTotal.WithLabelValues("dlq", "").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.UserEmail, record.ID.String(), msg.Filename, errMsg)
	}

	return nil
}

func (uc *AnalyzeMediaUseCase) publishStatus(ctx context.Context, record *entity.AnalysisRecord, log *zap.Logger) {
	statusMsg := entity.AnalysisStatusMessage{
		AnalysisID:   record.ID,
		UserID:       record.UserID,
		Status:       record.Status,
		Filename:     record.Filename,
		FileType:     record.FileType,
		Encrypted:    record.Encrypted,
		ErrorMessage: record.ErrorMessage,
		Attempt:      record.Attempt,
		MaxAttempts:  record.MaxAttempts,
	}
	if record.Status == entity.AnalysisStatusCompleted {
		view := record.View()
		statusMsg.FilePath = record.FilePath
		statusMsg.Prediction = view.Prediction
		statusMsg.Confidence = view.Confidence
		statusMsg.AnalysisTime = view.AnalysisTime
		statusMsg.Details = &view.Details
	}
	data, _ := json.Marshal(statusMsg)
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}
