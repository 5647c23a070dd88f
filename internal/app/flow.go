package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"quiz-runner/internal/domain"
	"quiz-runner/internal/metrics"
)

// FlowConfig wires the page-level sequence.
type FlowConfig struct {
	Sessions        SessionProvider
	Backend         Backend
	Quizzes         QuizRepository
	Store           StateStore
	FailOpen        bool
	DefaultDuration time.Duration
	Now             func() time.Time
	Log             zerolog.Logger
	Metrics         *metrics.Metrics
}

// Flow runs attempt-check, question load and machine start in that order.
type Flow struct {
	sessions  SessionProvider
	checker   *AttemptChecker
	loader    *QuestionLoader
	submitter *Submitter
	cfg       FlowConfig
}

func NewFlow(cfg FlowConfig) *Flow {
	return &Flow{
		sessions:  cfg.Sessions,
		checker:   NewAttemptChecker(cfg.Backend, cfg.FailOpen, cfg.Log),
		loader:    NewQuestionLoader(cfg.Quizzes),
		submitter: NewSubmitter(cfg.Backend, cfg.Store, cfg.Log),
		cfg:       cfg,
	}
}

// Open prepares quizID for the current user. domain.ErrAlreadyAttempted means
// a completed attempt exists and the caller should show results instead; an
// attempt still in progress is resumed. When the machine fails to start it
// is returned together with the error so callers can surface its state.
func (f *Flow) Open(ctx context.Context, quizID int64) (*Machine, error) {
	session, err := f.sessions.Session(ctx)
	if err != nil {
		return nil, err
	}

	status, err := f.checker.Check(ctx, quizID, session.UserID)
	if err != nil {
		return nil, err
	}
	if status.HasAttempt && status.Completed {
		return nil, domain.ErrAlreadyAttempted
	}
	var startedAt time.Time
	if status.HasAttempt && status.StartTime != nil {
		// in progress elsewhere (another device, or local state lost): keep the server's clock
		startedAt = *status.StartTime
	}

	questions, err := f.loader.Load(ctx, quizID)
	if err != nil {
		return nil, err
	}

	m := NewMachine(MachineConfig{
		QuizID:          quizID,
		UserID:          session.UserID,
		Questions:       questions,
		Store:           f.cfg.Store,
		Quizzes:         f.cfg.Quizzes,
		Starter:         f.cfg.Backend,
		Submitter:       f.submitter,
		StartedAt:       startedAt,
		DefaultDuration: f.cfg.DefaultDuration,
		Now:             f.cfg.Now,
		Log:             f.cfg.Log,
		Metrics:         f.cfg.Metrics,
	})
	if err := m.Start(ctx); err != nil {
		return m, err
	}
	return m, nil
}
