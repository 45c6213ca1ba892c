package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/fiapx/fiapx-analysis-service/internal/domain/entity"
	"github.com/fiapx/fiapx-analysis-service/internal/domain/port"
	"github.com/fiapx/fiapx-analysis-service/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Pipeline turns a media file into a single prediction. It keeps no state
// between calls; concurrent Analyze calls share only the classifier and decoder.
type Pipeline struct {
	classifier   port.Classifier
	decoder      port.VideoDecoder
	logger       *zap.Logger
	sampleFrames int
	modelName    string
}

type PipelineConfig struct {
	SampleFrames int
	ModelName    string
}

func NewPipeline(classifier port.Classifier, decoder port.VideoDecoder, logger *zap.Logger, cfg PipelineConfig) *Pipeline {
	sampleFrames := cfg.SampleFrames
	if sampleFrames <= 0 {
		sampleFrames = DefaultSampleFrames
	}
	return &Pipeline{
		classifier:   classifier,
		decoder:      decoder,
		logger:       logger,
		sampleFrames: sampleFrames,
		modelName:    cfg.ModelName,
	}
}

// Analyze dispatches on the file extension. It reads path but never modifies it.
func (p *Pipeline) Analyze(ctx context.Context, path string) (*entity.AnalysisResult, error) {
	tracer := otel.Tracer("analysis")
	ctx, span := tracer.Start(ctx, "Pipeline.Analyze")
	defer span.End()

	if entity.IsVideoPath(path) {
		span.SetAttributes(attribute.String("media.kind", string(entity.MediaKindVideo)))
		return p.analyzeVideo(ctx, path)
	}
	span.SetAttributes(attribute.String("media.kind", string(entity.MediaKindImage)))
	return p.analyzeImage(ctx, path)
}

func (p *Pipeline) analyzeImage(ctx context.Context, path string) (*entity.AnalysisResult, error) {
	img, err := DecodeImageFile(path)
	if err != nil {
		return nil, err
	}

	score, err := p.classifier.Score(ctx, Normalize(img))
	if err != nil {
		return nil, fmt.Errorf("score image: %w", err)
	}

	return entity.NewAnalysisResult(score, entity.AnalysisDetails{
		Method: entity.MethodSingleFrame,
		Model:  p.modelName,
	}), nil
}

func (p *Pipeline) analyzeVideo(ctx context.Context, path string) (*entity.AnalysisResult, error) {
	reader, err := p.decoder.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	totalFrames := reader.FrameCount()
	indices, err := SampleFrames(totalFrames, p.sampleFrames)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, 0, len(indices))
	for _, idx := range indices {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, err := reader.Frame(ctx, idx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if !errors.Is(err, entity.ErrDecode) {
				return nil, fmt.Errorf("read frame %d: %w", idx, err)
			}
			p.logger.Debug("skipping undecodable frame",
				zap.String("path", path),
				zap.Int("frame_index", idx),
				zap.Error(err),
			)
			metrics.FramesSkippedTotal.Inc()
			continue
		}

		score, err := p.classifier.Score(ctx, Normalize(frame))
		if err != nil {
			return nil, fmt.Errorf("score frame %d: %w", idx, err)
		}
		scores = append(scores, score)
	}

	if len(scores) == 0 {
		return nil, fmt.Errorf("%w: none of %d sampled frames could be decoded", entity.ErrInvalidMedia, len(indices))
	}

	_, confidence, err := Aggregate(scores)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("video sampled",
		zap.String("path", path),
		zap.Int("frames_analyzed", len(scores)),
		zap.Int("total_frames", totalFrames),
	)

	return entity.NewAnalysisResult(confidence, entity.AnalysisDetails{
		Method:         entity.MethodVideoSampling,
		FramesAnalyzed: len(scores),
		TotalFrames:    totalFrames,
	}), nil
}
