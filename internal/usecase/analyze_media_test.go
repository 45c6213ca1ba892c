package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/fiapx/fiapx-analysis-service/internal/domain/entity"
	"github.com/fiapx/fiapx-analysis-service/internal/domain/port"
	"github.com/fiapx/fiapx-analysis-service/internal/infra/protect"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]entity.AnalysisRecord
	creates int
	findErr error
	// failStatus makes the next Update that writes this status fail.
	failStatus entity.AnalysisStatus
}

func newMemRepo() *memRepo {
	return &memRepo{records: map[uuid.UUID]entity.AnalysisRecord{}}
}

func (r *memRepo) Create(_ context.Context, rec *entity.AnalysisRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	r.records[rec.ID] = *rec
	return nil
}

func (r *memRepo) Update(_ context.Context, rec *entity.AnalysisRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failStatus != "" && rec.Status == r.failStatus {
		r.failStatus = ""
		return errors.New("connection reset by peer")
	}
	r.records[rec.ID] = *rec
	return nil
}

func (r *memRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.AnalysisRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	rec, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("find analysis %s: %w", id, entity.ErrNotFound)
	}
	return &rec, nil
}

func (r *memRepo) ListRecent(_ context.Context, _ string, _ int) ([]*entity.AnalysisRecord, error) {
	return nil, nil
}

type memStorage struct {
	objects     map[string][]byte
	protected   map[string][]byte
	ops         []string
	downloadErr error
	uploadErr   error
	removeErr   error
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}, protected: map[string][]byte{}}
}

func (s *memStorage) DownloadMedia(_ context.Context, key, dest string) error {
	s.ops = append(s.ops, "download:"+key)
	if s.downloadErr != nil {
		return s.downloadErr
	}
	data, ok := s.objects[key]
	if !ok {
		return fmt.Errorf("object %s not found", key)
	}
	return os.WriteFile(dest, data, 0o600)
}

func (s *memStorage) UploadProtected(_ context.Context, key string, r io.Reader, size int64) error {
	s.ops = append(s.ops, "upload:"+key)
	if s.uploadErr != nil {
		return s.uploadErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: %d != %d", len(data), size)
	}
	s.protected[key] = data
	return nil
}

func (s *memStorage) RemoveMedia(_ context.Context, key string) error {
	s.ops = append(s.ops, "remove:"+key)
	if s.removeErr != nil {
		err := s.removeErr
		s.removeErr = nil
		return err
	}
	delete(s.objects, key)
	return nil
}

type fakeAnalyzer struct {
	result *entity.AnalysisResult
	err    error
	before func()
	seen   []byte
}

func (a *fakeAnalyzer) Analyze(_ context.Context, path string) (*entity.AnalysisResult, error) {
	if a.before != nil {
		a.before()
	}
	a.seen, _ = os.ReadFile(path)
	return a.result, a.err
}

type recordingPublisher struct {
	statuses []entity.AnalysisStatusMessage
	dlq      []string
}

func (p *recordingPublisher) PublishStatus(_ context.Context, msg []byte) error {
	var m entity.AnalysisStatusMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return err
	}
	p.statuses = append(p.statuses, m)
	return nil
}

func (p *recordingPublisher) PublishToDLQ(_ context.Context, msg []byte, reason string) error {
	p.dlq = append(p.dlq, reason)
	return nil
}

type recordingNotifier struct {
	sent []string
}

func (n *recordingNotifier) NotifyFailure(_ context.Context, userEmail, _, _, errorMsg string) error {
	n.sent = append(n.sent, userEmail+": "+errorMsg)
	return nil
}

type harness struct {
	repo     *memRepo
	storage  *memStorage
	analyzer *fakeAnalyzer
	pub      *recordingPublisher
	notifier *recordingNotifier
	uc       *AnalyzeMediaUseCase
}

func newHarness(t *testing.T, protector port.FileProtector) *harness {
	t.Helper()
	h := &harness{
		repo:    newMemRepo(),
		storage: newMemStorage(),
		analyzer: &fakeAnalyzer{result: entity.NewAnalysisResult(0.73456, entity.AnalysisDetails{
			Method: entity.MethodSingleFrame,
			Model:  "ResNet18",
		})},
		pub:      &recordingPublisher{},
		notifier: &recordingNotifier{},
	}
	h.uc = NewAnalyzeMediaUseCase(
		h.repo, h.storage, h.analyzer, protector,
		h.pub, h.pub, h.notifier,
		zap.NewNop(),
		AnalyzeMediaConfig{TempDir: t.TempDir(), MaxRetries: 3},
	)
	return h
}

func requestMessage(t *testing.T, filename string, size int64) (entity.AnalysisRequestMessage, []byte) {
	t.Helper()
	msg := entity.AnalysisRequestMessage{
		AnalysisID: uuid.New(),
		UserID:     "analyst",
		MediaKey:   "analyst/" + filename,
		Filename:   filename,
		FileSize:   size,
		UserEmail:  "analyst@fiapx.local",
	}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	return msg, raw
}

func TestExecuteCompletesAnalysis(t *testing.T) {
	h := newHarness(t, nil)
	msg, raw := requestMessage(t, "face.png", 4)
	h.storage.objects[msg.MediaKey] = []byte("PNG!")

	require.NoError(t, h.uc.Execute(context.Background(), raw))

	rec, err := h.repo.FindByID(context.Background(), msg.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, entity.AnalysisStatusCompleted, rec.Status)
	assert.Equal(t, entity.PredictionFake, rec.Prediction)
	assert.Equal(t, 0.73456, rec.Confidence)
	assert.Equal(t, entity.MediaKindImage, rec.FileType)
	assert.Equal(t, msg.MediaKey, rec.FilePath)
	assert.False(t, rec.Encrypted)
	assert.Equal(t, 1, rec.Attempt)
	assert.NotNil(t, rec.CompletedAt)
	assert.Equal(t, []byte("PNG!"), h.analyzer.seen)

	require.Len(t, h.pub.statuses, 1)
	status := h.pub.statuses[0]
	assert.Equal(t, entity.AnalysisStatusCompleted, status.Status)
	assert.Equal(t, 0.7346, status.Confidence)
	require.NotNil(t, status.Details)
	assert.Equal(t, entity.MethodSingleFrame, status.Details.Method)
	assert.Empty(t, h.pub.dlq)
	assert.Contains(t, h.storage.objects, msg.MediaKey, "plaintext stays when protection is off")
}

func TestExecuteProtectsMediaAtRest(t *testing.T) {
	protector, err := protect.NewProtector(protect.Config{Secret: "worker-secret"}, zap.NewNop())
	require.NoError(t, err)
	h := newHarness(t, protector)
	msg, raw := requestMessage(t, "clip.mp4", 11)
	h.storage.objects[msg.MediaKey] = []byte("video bytes")

	require.NoError(t, h.uc.Execute(context.Background(), raw))

	rec, err := h.repo.FindByID(context.Background(), msg.AnalysisID)
	require.NoError(t, err)
	wantKey := "analyst/" + msg.AnalysisID.String() + "/clip.mp4.enc"
	assert.True(t, rec.Encrypted)
	assert.Equal(t, wantKey, rec.FilePath)
	assert.Equal(t, entity.MediaKindVideo, rec.FileType)

	assert.Equal(t, []string{
		"download:" + msg.MediaKey,
		"upload:" + wantKey,
		"remove:" + msg.MediaKey,
	}, h.storage.ops)
	assert.NotContains(t, h.storage.objects, msg.MediaKey)

	// The stored ciphertext opens with the same secret.
	sealedPath := t.TempDir() + "/clip.mp4.enc"
	require.NoError(t, os.WriteFile(sealedPath, h.storage.protected[wantKey], 0o600))
	plaintext, err := protector.Reveal(sealedPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("video bytes"), plaintext)
}

func TestExecuteKeepsPlaintextWhenProtectedUploadFails(t *testing.T) {
	protector, err := protect.NewProtector(protect.Config{Secret: "s"}, zap.NewNop())
	require.NoError(t, err)
	h := newHarness(t, protector)
	h.storage.uploadErr = errors.New("bucket unavailable")
	msg, raw := requestMessage(t, "face.jpg", 3)
	h.storage.objects[msg.MediaKey] = []byte("jpg")

	err = h.uc.Execute(context.Background(), raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retryable failure (attempt 1/3)")

	assert.Contains(t, h.storage.objects, msg.MediaKey)
	for _, op := range h.storage.ops {
		assert.False(t, strings.HasPrefix(op, "remove:"))
	}
}

func TestExecutePermanentAnalysisFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.analyzer.err = fmt.Errorf("decode face.png: %w", entity.ErrDecode)
	msg, raw := requestMessage(t, "face.png", 3)
	h.storage.objects[msg.MediaKey] = []byte("bad")

	require.NoError(t, h.uc.Execute(context.Background(), raw))

	rec, err := h.repo.FindByID(context.Background(), msg.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, entity.AnalysisStatusFailed, rec.Status)
	assert.Contains(t, rec.ErrorMessage, "decode error")
	require.Len(t, h.pub.dlq, 1)
	require.Len(t, h.notifier.sent, 1)
	assert.Contains(t, h.notifier.sent[0], "analyst@fiapx.local")
	require.Len(t, h.pub.statuses, 1)
	assert.Equal(t, entity.AnalysisStatusFailed, h.pub.statuses[0].Status)
}

func TestExecuteRetryableAnalysisFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.analyzer.err = errors.New("model server unreachable")
	msg, raw := requestMessage(t, "face.png", 3)
	h.storage.objects[msg.MediaKey] = []byte("png")

	err := h.uc.Execute(context.Background(), raw)
	require.Error(t, err)
	assert.Empty(t, h.pub.dlq)
	assert.Empty(t, h.notifier.sent)

	rec, findErr := h.repo.FindByID(context.Background(), msg.AnalysisID)
	require.NoError(t, findErr)
	assert.Equal(t, entity.AnalysisStatusFailed, rec.Status)
	assert.Equal(t, 1, rec.Attempt)
}

func TestExecuteExhaustsRetries(t *testing.T) {
	h := newHarness(t, nil)
	h.storage.downloadErr = errors.New("connection reset")
	msg, raw := requestMessage(t, "face.png", 3)

	for i := 0; i < 2; i++ {
		assert.Error(t, h.uc.Execute(context.Background(), raw))
	}
	// Third attempt reaches MaxRetries and goes to the DLQ.
	assert.NoError(t, h.uc.Execute(context.Background(), raw))
	assert.Len(t, h.pub.dlq, 1)

	rec, err := h.repo.FindByID(context.Background(), msg.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Attempt)
}

func TestExecuteRejectsInvalidUploads(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		size     int64
	}{
		{"disallowed extension", "notes.txt", 10},
		{"too large", "huge.mp4", entity.MaxFileSize + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			_, raw := requestMessage(t, tt.filename, tt.size)

			require.NoError(t, h.uc.Execute(context.Background(), raw))
			assert.Len(t, h.pub.dlq, 1)
			assert.Empty(t, h.storage.ops, "rejected uploads are never downloaded")
		})
	}
}

func TestExecuteMalformedMessage(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.uc.Execute(context.Background(), []byte(`{invalid json`)))
	require.Len(t, h.pub.dlq, 1)
	assert.True(t, strings.HasPrefix(h.pub.dlq[0], "unmarshal_error"))
}

func TestExecuteSkipsCompletedRedelivery(t *testing.T) {
	h := newHarness(t, nil)
	msg, raw := requestMessage(t, "face.png", 4)
	h.storage.objects[msg.MediaKey] = []byte("PNG!")

	require.NoError(t, h.uc.Execute(context.Background(), raw))
	require.NoError(t, h.uc.Execute(context.Background(), raw))

	assert.Len(t, h.storage.ops, 1)
	assert.Len(t, h.pub.statuses, 1)
}

func newProtectedHarness(t *testing.T) (*harness, *protect.Protector) {
	t.Helper()
	protector, err := protect.NewProtector(protect.Config{Secret: "worker-secret"}, zap.NewNop())
	require.NoError(t, err)
	return newHarness(t, protector), protector
}

func TestExecuteKeepsPlaintextUntilCompletionIsStored(t *testing.T) {
	h, _ := newProtectedHarness(t)
	h.repo.failStatus = entity.AnalysisStatusCompleted
	msg, raw := requestMessage(t, "clip.mp4", 11)
	h.storage.objects[msg.MediaKey] = []byte("video bytes")
	wantKey := "analyst/" + msg.AnalysisID.String() + "/clip.mp4.enc"

	require.Error(t, h.uc.Execute(context.Background(), raw))
	assert.Contains(t, h.storage.objects, msg.MediaKey)
	assert.Equal(t, []string{"download:" + msg.MediaKey, "upload:" + wantKey}, h.storage.ops)
	assert.Empty(t, h.pub.statuses)

	// The redelivery still finds the plaintext and finishes the analysis.
	require.NoError(t, h.uc.Execute(context.Background(), raw))

	rec, err := h.repo.FindByID(context.Background(), msg.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, entity.AnalysisStatusCompleted, rec.Status)
	assert.True(t, rec.Encrypted)
	assert.Equal(t, wantKey, rec.FilePath)
	assert.NotContains(t, h.storage.objects, msg.MediaKey)
	assert.Equal(t, []string{
		"download:" + msg.MediaKey,
		"upload:" + wantKey,
		"download:" + msg.MediaKey,
		"upload:" + wantKey,
		"remove:" + msg.MediaKey,
	}, h.storage.ops)
	assert.Empty(t, h.pub.dlq)
}

func TestExecuteFinishesPlaintextRemovalOnRedelivery(t *testing.T) {
	h, _ := newProtectedHarness(t)
	h.storage.removeErr = errors.New("minio timeout")
	msg, raw := requestMessage(t, "face.png", 4)
	h.storage.objects[msg.MediaKey] = []byte("PNG!")

	err := h.uc.Execute(context.Background(), raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remove plaintext upload")

	rec, findErr := h.repo.FindByID(context.Background(), msg.AnalysisID)
	require.NoError(t, findErr)
	assert.Equal(t, entity.AnalysisStatusCompleted, rec.Status)
	assert.Contains(t, h.storage.objects, msg.MediaKey)

	require.NoError(t, h.uc.Execute(context.Background(), raw))
	assert.NotContains(t, h.storage.objects, msg.MediaKey)
	assert.Len(t, h.pub.statuses, 1, "completion is announced once")

	downloads := 0
	for _, op := range h.storage.ops {
		if strings.HasPrefix(op, "download:") {
			downloads++
		}
	}
	assert.Equal(t, 1, downloads, "a completed analysis is not run again")
}

func TestExecuteInterruptedAnalysisIsRedelivered(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.analyzer.before = cancel
	h.analyzer.err = context.Canceled
	msg, raw := requestMessage(t, "clip.mkv", 3)
	h.storage.objects[msg.MediaKey] = []byte("mkv")

	err := h.uc.Execute(ctx, raw)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.pub.dlq)
	assert.Empty(t, h.pub.statuses)
	assert.Empty(t, h.notifier.sent)

	rec, findErr := h.repo.FindByID(context.Background(), msg.AnalysisID)
	require.NoError(t, findErr)
	assert.Equal(t, entity.AnalysisStatusProcessing, rec.Status)
}

func TestExecuteLookupFailureIsRetried(t *testing.T) {
	h := newHarness(t, nil)
	h.repo.findErr = errors.New("too many connections")
	_, raw := requestMessage(t, "face.png", 3)

	err := h.uc.Execute(context.Background(), raw)
	assert.ErrorContains(t, err, "too many connections")
	assert.Zero(t, h.repo.creates)
	assert.Empty(t, h.storage.ops)
	assert.Empty(t, h.pub.dlq)
}
