// Package insight generates workshop insights with a language model. It is
// the server side of the /api/summary contract.
package insight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/septapod/agentmapper/internal/summary"
)

var (
	// ErrUnknownKind is returned for a request type the service cannot
	// summarise.
	ErrUnknownKind = errors.New("unknown summary type")

	// ErrEmptyCompletion is returned when the model answers with no text.
	ErrEmptyCompletion = errors.New("model returned no text")
)

// Service produces insights from a Model. A Service without a model
// reports summary.ErrNotConfigured for every request.
type Service struct {
	cfg   Config
	model Model
	log   *slog.Logger
	now   func() time.Time

	// sem limits concurrent model calls.
	sem chan struct{}
}

// NewService creates a new insight service. model may be nil when no API
// key is configured.
func NewService(cfg Config, model Model, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	return &Service{
		cfg:   cfg,
		model: model,
		log:   log.With("component", "insight"),
		now:   time.Now,
		sem:   make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Configured reports whether a model is available.
func (s *Service) Configured() bool {
	return s.model != nil
}

// Summarize implements summary.Summarizer.
func (s *Service) Summarize(ctx context.Context,
	req summary.Request) (summary.Response, error) {

	if s.model == nil {
		return summary.Response{}, summary.ErrNotConfigured
	}

	prompt, err := buildPrompt(req)
	if err != nil {
		return summary.Response{}, err
	}

	// Acquire semaphore.
	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return summary.Response{}, ctx.Err()
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	start := s.now()
	text, err := s.model.Complete(
		ctx, systemPrompt, prompt, s.cfg.MaxTokens,
	)
	if err != nil {
		return summary.Response{}, fmt.Errorf("generate %s insight: %w",
			req.Type, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return summary.Response{}, ErrEmptyCompletion
	}

	s.log.DebugContext(ctx, "Generated insight",
		"type", req.Type,
		"model", s.model.Name(),
		"duration", s.now().Sub(start),
	)

	return summary.Response{
		Summary:   text,
		Timestamp: summary.FormatTimestamp(s.now()),
		Model:     s.model.Name(),
	}, nil
}

var _ summary.Summarizer = (*Service)(nil)
