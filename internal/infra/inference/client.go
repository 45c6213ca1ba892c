package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fiapx/fiapx-analysis-service/internal/domain/entity"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Client scores frames on a model server that holds the trained classifier
// in evaluation mode.
type Client struct {
	url           string
	model         string
	httpClient    *http.Client
	maxRetries    uint64
	retryInterval time.Duration
	logger        *zap.Logger
}

// ClientConfig configures the model server client. Transport failures and
// 429/502/503/504 answers are retried up to MaxRetries times with exponential
// backoff starting at RetryInterval.
type ClientConfig struct {
	URL           string
	Model         string
	Timeout       time.Duration
	MaxRetries    int
	RetryInterval time.Duration
}

type ScoreRequest struct {
	Model string    `json:"model,omitempty"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

type ScoreResponse struct {
	Score float64 `json:"score"`
}

func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retryInterval := cfg.RetryInterval
	if retryInterval <= 0 {
		retryInterval = 200 * time.Millisecond
	}
	var maxRetries uint64
	if cfg.MaxRetries > 0 {
		maxRetries = uint64(cfg.MaxRetries)
	}
	return &Client{
		url:           cfg.URL,
		model:         cfg.Model,
		httpClient:    &http.Client{Timeout: timeout},
		maxRetries:    maxRetries,
		retryInterval: retryInterval,
		logger:        logger,
	}
}

func (c *Client) Score(ctx context.Context, tensor *entity.Tensor) (float64, error) {
	tracer := otel.Tracer("inference")
	ctx, span := tracer.Start(ctx, "Client.Score")
	defer span.End()

	body, err := json.Marshal(ScoreRequest{
		Model: c.model,
		Shape: tensor.Shape(),
		Data:  tensor.Data,
	})
	if err != nil {
		return 0, fmt.Errorf("marshal score request: %w", err)
	}

	start := time.Now()
	var score float64
	attempts := 0
	err = backoff.RetryNotify(func() error {
		attempts++
		s, err := c.post(ctx, body)
		if err != nil {
			return err
		}
		score = s
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.maxRetries), ctx),
		func(err error, next time.Duration) {
			c.logger.Warn("model server call failed, retrying",
				zap.Error(err),
				zap.Duration("next", next),
			)
		})
	if err != nil {
		return 0, err
	}

	span.SetAttributes(
		attribute.Float64("inference.score", score),
		attribute.Int("inference.attempts", attempts),
	)
	c.logger.Debug("frame scored",
		zap.Float64("score", score),
		zap.Duration("latency", time.Since(start)),
	)
	return score, nil
}

func (c *Client) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	b.MaxElapsedTime = 0
	return b
}

// post performs one request. Failures that a retry cannot fix are wrapped
// with backoff.Permanent.
func (c *Client) post(ctx context.Context, body []byte) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, backoff.Permanent(fmt.Errorf("build score request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("model server unreachable at %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("model server returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
		if retryableStatus(resp.StatusCode) {
			return 0, err
		}
		return 0, backoff.Permanent(err)
	}

	var out ScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, backoff.Permanent(fmt.Errorf("decode score response: %w", err))
	}
	if math.IsNaN(out.Score) || out.Score < 0 || out.Score > 1 {
		return 0, backoff.Permanent(fmt.Errorf("model server returned score %v outside [0,1]", out.Score))
	}
	return out.Score, nil
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
