package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"cmdbsync/internal/domain"
)

// LogSink writes every delta and edge to the log. It stands in for a
// catalog connection during dry runs.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink logging at info level
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Push implements PushSink
func (s *LogSink) Push(_ context.Context, batch domain.Batch) error {
	log := s.logger.With(zap.String("source", batch.Source), zap.String("run_id", batch.RunID))
	for _, d := range batch.Deltas {
		fields := make([]zap.Field, 0, len(d.Changes)+3)
		fields = append(fields,
			zap.String("unique_id", d.UniqueID),
			zap.String("class", d.Class),
			zap.String("table", d.TargetTable))
		for _, c := range d.Changes {
			fields = append(fields, zap.String(c.Name, c.Value))
		}
		log.Info("ci update", fields...)
	}
	for _, e := range batch.Edges {
		log.Info("relationship",
			zap.String("parent", e.ParentID),
			zap.String("child", e.ChildID),
			zap.String("label", e.Label))
	}
	for _, e := range batch.RemovedEdges {
		log.Info("relationship removed",
			zap.String("parent", e.ParentID),
			zap.String("child", e.ChildID),
			zap.String("label", e.Label))
	}
	return nil
}

// HTTPSinkConfig configures an HTTPSink
type HTTPSinkConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
	// RatePerSecond limits requests; zero means unlimited
	RatePerSecond float64
	Burst         int
	MaxRetries    int
	// Backoff is the delay before the first retry, doubled on each attempt
	Backoff time.Duration
}

// HTTPSink posts each batch as JSON to the catalog's import endpoint.
// The batch fingerprint is sent as Idempotency-Key so a retried batch is
// not applied twice. Each cycle has its own fingerprint.
type HTTPSink struct {
	cfg     HTTPSinkConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// StatusError is returned for a non-2xx response
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog responded %d: %s", e.Code, e.Body)
}

// NewHTTPSink creates a sink posting to cfg.URL
func NewHTTPSink(cfg HTTPSinkConfig, logger *zap.Logger) *HTTPSink {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = time.Second
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPSink{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, cfg.Burst),
		logger:  logger,
	}
}

// Push implements PushSink. Empty batches are not sent. Server errors and
// transport failures are retried; client errors are not.
func (s *HTTPSink) Push(ctx context.Context, batch domain.Batch) error {
	if batch.Empty() {
		return nil
	}
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	backoff := s.cfg.Backoff
	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			s.logger.Warn("retrying push",
				zap.String("source", batch.Source),
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}

		lastErr = s.post(ctx, batch, body)
		if lastErr == nil {
			return nil
		}
		var se *StatusError
		if errors.As(lastErr, &se) && se.Code < 500 {
			return lastErr
		}
	}
	return fmt.Errorf("push %s after %d attempts: %w", batch.Source, s.cfg.MaxRetries+1, lastErr)
}

func (s *HTTPSink) post(ctx context.Context, batch domain.Batch, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if batch.Fingerprint != "" {
		req.Header.Set("Idempotency-Key", batch.Fingerprint)
	}
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// FanoutSink pushes each batch to every sink in order. Errors are joined; a
// failing sink does not keep the batch from the others.
type FanoutSink []PushSink

// Push implements PushSink
func (f FanoutSink) Push(ctx context.Context, batch domain.Batch) error {
	var errs []error
	for _, s := range f {
		if err := s.Push(ctx, batch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
