package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"quiz-runner/internal/app"
	"quiz-runner/internal/auth"
	"quiz-runner/internal/backend"
	"quiz-runner/internal/config"
	"quiz-runner/internal/domain"
	"quiz-runner/internal/infra/file"
	"quiz-runner/internal/infra/memory"
	"quiz-runner/internal/infra/postgres"
	infraredis "quiz-runner/internal/infra/redis"
	"quiz-runner/internal/logging"
	"quiz-runner/internal/metrics"
)

// runtime is everything a subcommand needs, built once from config.
type runtime struct {
	cfg      config.Config
	log      zerolog.Logger
	metrics  *metrics.Metrics
	sessions auth.Provider
	client   *backend.Client
	quizzes  app.QuizRepository
	store    app.StateStore
	closers  []func()
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

func (rt *runtime) flow() *app.Flow {
	return app.NewFlow(app.FlowConfig{
		Sessions:        rt.sessions,
		Backend:         rt.client,
		Quizzes:         rt.quizzes,
		Store:           rt.store,
		FailOpen:        rt.cfg.FailOpen(),
		DefaultDuration: time.Duration(rt.cfg.Quiz.DefaultDuration) * time.Minute,
		Log:             rt.log,
		Metrics:         rt.metrics,
	})
}

func (rt *runtime) results() *app.ResultsService {
	return app.NewResultsService(rt.sessions, rt.client, rt.quizzes, rt.log)
}

func (rt *runtime) session(ctx context.Context) (domain.Session, error) {
	return rt.sessions.Session(ctx)
}

func setup(ctx context.Context, configPath string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	rt := &runtime{
		cfg:     cfg,
		log:     logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr),
		metrics: metrics.New(),
	}

	rt.sessions, err = sessionProvider(cfg, configPath)
	if err != nil {
		return nil, err
	}

	timeout := config.TTLDuration(cfg.Backend.Timeout, 15*time.Second)
	rt.client = backend.New(cfg.Backend.BaseURL, rt.sessions,
		backend.WithHTTPClient(&http.Client{Timeout: timeout}),
		backend.WithRateLimit(cfg.Backend.RateLimit, cfg.Backend.Burst),
		backend.WithLogger(rt.log),
		backend.WithMetrics(rt.metrics),
	)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, func() { _ = redisClient.Close() })
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	if redisClient != nil {
		cacheTTL := config.TTLDuration(cfg.Redis.TTL, quizTTL)
		rt.quizzes = infraredis.NewQuizRepository(redisClient, rt.client, cacheTTL, rt.log)
	} else {
		rt.quizzes = memory.NewQuizRepository(rt.client, quizTTL)
	}

	rt.store, err = stateStore(ctx, rt, redisClient)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.log.Debug().Str("driver", cfg.State.Driver).Str("backend", cfg.Backend.BaseURL).Msg("runtime ready")
	return rt, nil
}

// sessionProvider prefers a bearer token; a bare user id works against a
// backend without auth.
func sessionProvider(cfg config.Config, configPath string) (auth.Provider, error) {
	if cfg.Session.Token == "" {
		return auth.NewStaticProvider(domain.Session{UserID: cfg.Session.UserID, Role: cfg.Session.Role}), nil
	}
	skew := config.TTLDuration(cfg.Session.RefreshSkew, time.Minute)
	p, err := auth.NewTokenProvider(cfg.Session.Token, skew, reloadToken(configPath))
	if err != nil {
		return nil, fmt.Errorf("session token: %w", err)
	}
	return p, nil
}

// reloadToken re-reads the config file, so a token rotated on disk is picked
// up without a restart.
func reloadToken(configPath string) auth.Refresher {
	return func(_ context.Context, current domain.Session) (domain.Session, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return domain.Session{}, err
		}
		if cfg.Session.Token == "" || cfg.Session.Token == current.Token {
			return domain.Session{}, errors.New("no newer token in config")
		}
		return auth.ParseToken(cfg.Session.Token)
	}
}

func stateStore(ctx context.Context, rt *runtime, redisClient *redis.Client) (app.StateStore, error) {
	cfg := rt.cfg
	switch cfg.State.Driver {
	case "memory":
		return memory.NewStateStore(), nil
	case "", "file":
		return file.NewStateStore(cfg.State.Path), nil
	}

	prefix := cfg.State.Prefix
	if prefix == "" {
		session, err := rt.session(ctx)
		if err != nil {
			return nil, err
		}
		prefix = fmt.Sprintf("quiz-runner:%d:", session.UserID)
	}

	switch cfg.State.Driver {
	case "redis":
		if redisClient == nil {
			return nil, errors.New("state driver redis needs redis.addr")
		}
		return infraredis.NewStateStore(redisClient, prefix, config.TTLDuration(cfg.State.TTL, 0)), nil
	case "postgres":
		if cfg.Postgres.URL == "" {
			return nil, errors.New("state driver postgres needs postgres.url")
		}
		if err := runMigrationsWithConfig(ctx, cfg, rt.log); err != nil {
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		rt.closers = append(rt.closers, pool.Close)
		return postgres.NewStateStore(pool, prefix), nil
	default:
		return nil, fmt.Errorf("unknown state driver %q", cfg.State.Driver)
	}
}
