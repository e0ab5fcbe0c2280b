// Package exam implements exam authoring and the attempt lifecycle.
package exam

import (
	"context"
	"log/slog"
	"time"

	"github.com/pavelanni/assessor/internal/cache"
	"github.com/pavelanni/assessor/internal/grading"
	"github.com/pavelanni/assessor/internal/model"
	"github.com/pavelanni/assessor/internal/store"
)

// DraftGenerator produces exam drafts with an AI model.
type DraftGenerator interface {
	GenerateExamDraft(ctx context.Context, req model.GenerateRequest) (*model.ExamDraft, error)
}

// Service is the exam authoring and attempt engine.
type Service struct {
	store     *store.Store
	grader    *grading.Engine
	cache     cache.ExamCache
	generator DraftGenerator
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables a read-through exam cache.
func WithCache(c cache.ExamCache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithGenerator enables AI exam drafts.
func WithGenerator(g DraftGenerator) Option {
	return func(s *Service) { s.generator = g }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service.
func New(st *store.Store, grader *grading.Engine, opts ...Option) *Service {
	s := &Service{
		store:  st,
		grader: grader,
		cache:  cache.Noop{},
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
