package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-runner/internal/domain"
)

// QuizLoader fetches quiz content from the backend (or any backing store).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
	LoadQuestions(ctx context.Context, quizID int64) ([]domain.Question, error)
}

// QuizRepository caches quiz metadata and question sets with TTL to avoid repeated backend hits.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu        sync.RWMutex
	quizzes   map[int64]cached[domain.Quiz]
	questions map[int64]cached[[]domain.Question]
}

type cached[T any] struct {
	value     T
	expiresAt time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader:    loader,
		ttl:       ttl,
		clock:     time.Now,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		quizzes:   make(map[int64]cached[domain.Quiz]),
		questions: make(map[int64]cached[[]domain.Question]),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	return load(r, r.quizzes, "quiz:"+strconv.FormatInt(quizID, 10), quizID, func() (domain.Quiz, error) {
		return r.loader.LoadQuiz(ctx, quizID)
	})
}

func (r *QuizRepository) GetQuestions(ctx context.Context, quizID int64) ([]domain.Question, error) {
	questions, err := load(r, r.questions, "questions:"+strconv.FormatInt(quizID, 10), quizID, func() ([]domain.Question, error) {
		return r.loader.LoadQuestions(ctx, quizID)
	})
	if err != nil {
		return nil, err
	}
	return append([]domain.Question(nil), questions...), nil
}

// Invalidate drops cached content for a quiz.
func (r *QuizRepository) Invalidate(quizID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.quizzes, quizID)
	delete(r.questions, quizID)
}

func load[T any](r *QuizRepository, cache map[int64]cached[T], key string, quizID int64, fetch func() (T, error)) (T, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := cache[quizID]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.value, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := cache[quizID]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.value, nil
		}
		r.mu.RUnlock()

		value, err := fetch()
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		cache[quizID] = cached[T]{value: value, expiresAt: now.Add(r.ttlWithJitter())}
		r.mu.Unlock()
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

// StaticQuizLoader is a simple loader backed by in-memory maps (useful for tests/demos).
type StaticQuizLoader struct {
	quizzes   map[int64]domain.Quiz
	questions map[int64][]domain.Question
}

func NewStaticQuizLoader(quizzes map[int64]domain.Quiz, questions map[int64][]domain.Question) *StaticQuizLoader {
	return &StaticQuizLoader{quizzes: quizzes, questions: questions}
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, quizID int64) (domain.Quiz, error) {
	if quiz, ok := l.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

func (l *StaticQuizLoader) LoadQuestions(_ context.Context, quizID int64) ([]domain.Question, error) {
	if _, ok := l.quizzes[quizID]; !ok {
		return nil, domain.ErrQuizNotFound
	}
	return l.questions[quizID], nil
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
