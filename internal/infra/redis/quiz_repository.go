package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"quiz-runner/internal/domain"
)

// QuizLoader fetches quiz content from the backend (or any backing store).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
	LoadQuestions(ctx context.Context, quizID int64) ([]domain.Question, error)
}

// QuizRepository caches quiz content in Redis and falls back to a loader on cache miss.
// Metadata is stored as:  SET quiz:{quizID}:meta      <json>
// Questions are stored as: SET quiz:{quizID}:questions <json array>
// Cache read/write failures degrade to a direct load.
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	log    zerolog.Logger
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration, log zerolog.Logger) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		log:    log,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	return cachedLoad(ctx, r, r.metaKey(quizID), func() (domain.Quiz, error) {
		return r.loader.LoadQuiz(ctx, quizID)
	})
}

func (r *QuizRepository) GetQuestions(ctx context.Context, quizID int64) ([]domain.Question, error) {
	return cachedLoad(ctx, r, r.questionsKey(quizID), func() ([]domain.Question, error) {
		return r.loader.LoadQuestions(ctx, quizID)
	})
}

// Invalidate drops cached content for a quiz.
func (r *QuizRepository) Invalidate(ctx context.Context, quizID int64) error {
	return r.client.Del(ctx, r.metaKey(quizID), r.questionsKey(quizID)).Err()
}

func cachedLoad[T any](ctx context.Context, r *QuizRepository, key string, fetch func() (T, error)) (T, error) {
	if v, ok := readCache[T](ctx, r, key); ok {
		return v, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if v, ok := readCache[T](ctx, r, key); ok {
			return v, nil
		}

		value, err := fetch()
		if err != nil {
			return nil, err
		}

		raw, err := json.Marshal(value)
		if err == nil {
			err = r.client.Set(ctx, key, raw, r.ttlWithJitter()).Err()
		}
		if err != nil {
			r.log.Warn().Err(err).Str("key", key).Msg("cache quiz content")
		}
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

func readCache[T any](ctx context.Context, r *QuizRepository, key string) (T, bool) {
	var v T
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn().Err(err).Str("key", key).Msg("read quiz cache")
		}
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("decode quiz cache")
		return v, false
	}
	return v, true
}

func (r *QuizRepository) metaKey(quizID int64) string {
	return "quiz:" + strconv.FormatInt(quizID, 10) + ":meta"
}

func (r *QuizRepository) questionsKey(quizID int64) string {
	return "quiz:" + strconv.FormatInt(quizID, 10) + ":questions"
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
