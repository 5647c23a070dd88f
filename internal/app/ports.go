package app

import (
	"context"

	"quiz-runner/internal/domain"
)

// StateStore is the key-value port behind resumable quiz state (memory, file, Redis, Postgres).
type StateStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
	GetQuestions(ctx context.Context, quizID int64) ([]domain.Question, error)
}

// SessionProvider yields the authenticated caller.
type SessionProvider interface {
	Session(ctx context.Context) (domain.Session, error)
}

type AttemptLookup interface {
	CheckAttempt(ctx context.Context, quizID, userID int64) (domain.AttemptStatus, error)
}

type AttemptStarter interface {
	StartAttempt(ctx context.Context, quizID, userID int64) (domain.StartResult, error)
}

type SubmissionSender interface {
	Submit(ctx context.Context, sub domain.Submission) (domain.SubmitResult, error)
}

type ResultsFetcher interface {
	AttemptLookup
	Results(ctx context.Context, attemptID, userID int64) (domain.QuizResults, error)
}

// Backend is everything the quiz flow needs from the REST API.
type Backend interface {
	AttemptLookup
	AttemptStarter
	SubmissionSender
	Results(ctx context.Context, attemptID, userID int64) (domain.QuizResults, error)
}
