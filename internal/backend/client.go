package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"quiz-runner/internal/auth"
	"quiz-runner/internal/domain"
	"quiz-runner/internal/metrics"
)

// Client talks to the platform REST API. Every call is a single attempt; no retries.
type Client struct {
	baseURL  string
	http     *http.Client
	sessions auth.Provider
	limiter  *rate.Limiter
	log      zerolog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit caps outgoing requests; rps <= 0 leaves the client unlimited.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New builds a client for baseURL (e.g. http://localhost:5000/api). sessions may be nil
// for anonymous calls.
func New(baseURL string, sessions auth.Provider, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 15 * time.Second},
		sessions: sessions,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type userBody struct {
	UserID int64 `json:"user_id"`
}

// CheckAttempt asks whether userID already has an attempt for quizID.
func (c *Client) CheckAttempt(ctx context.Context, quizID, userID int64) (domain.AttemptStatus, error) {
	var status domain.AttemptStatus
	body := struct {
		UserID int64 `json:"user_id"`
		QuizID int64 `json:"quiz_id"`
	}{userID, quizID}
	err := c.do(ctx, "check attempt", http.MethodPost, "/quizzes/attempt", body, &status)
	return status, err
}

// LoadQuiz fetches quiz metadata, including its duration.
func (c *Client) LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := c.do(ctx, "load quiz", http.MethodGet, fmt.Sprintf("/quiz/%d", quizID), nil, &quiz)
	if isStatus(err, http.StatusNotFound) {
		return quiz, fmt.Errorf("%w: %w", domain.ErrQuizNotFound, err)
	}
	return quiz, err
}

// LoadQuestions fetches the ordered question set of a quiz.
func (c *Client) LoadQuestions(ctx context.Context, quizID int64) ([]domain.Question, error) {
	var payload struct {
		Questions []domain.Question `json:"questions"`
	}
	err := c.do(ctx, "load questions", http.MethodGet, fmt.Sprintf("/admin/quiz/%d", quizID), nil, &payload)
	if isStatus(err, http.StatusNotFound) {
		return nil, fmt.Errorf("%w: %w", domain.ErrQuizNotFound, err)
	}
	if err != nil {
		return nil, err
	}
	return payload.Questions, nil
}

// StartAttempt notifies the backend that userID begins quizID. A duplicate
// start maps to domain.ErrAlreadyAttempted, any other refusal to domain.ErrStartRejected.
func (c *Client) StartAttempt(ctx context.Context, quizID, userID int64) (domain.StartResult, error) {
	var res domain.StartResult
	err := c.do(ctx, "start attempt", http.MethodPost, fmt.Sprintf("/quizzes/%d/start", quizID), userBody{userID}, &res)
	if err == nil {
		return res, nil
	}
	var terr *domain.TransportError
	if errors.As(err, &terr) && terr.StatusCode != 0 && strings.Contains(strings.ToLower(terr.Message), "already") {
		return res, fmt.Errorf("%w: %w", domain.ErrAlreadyAttempted, err)
	}
	return res, fmt.Errorf("%w: %w", domain.ErrStartRejected, err)
}

// Submit posts the final answers. Scoring happens server-side.
func (c *Client) Submit(ctx context.Context, sub domain.Submission) (domain.SubmitResult, error) {
	var res domain.SubmitResult
	answers := sub.Answers
	if answers == nil {
		answers = domain.Answers{}
	}
	body := domain.Submission{Answers: answers, TimeRemaining: sub.TimeRemaining, UserID: sub.UserID}
	err := c.do(ctx, "submit", http.MethodPost, fmt.Sprintf("/quizzes/%d/submit", sub.QuizID), body, &res)
	return res, err
}

// Results fetches the per-question outcome of an attempt.
func (c *Client) Results(ctx context.Context, attemptID, userID int64) (domain.QuizResults, error) {
	var res domain.QuizResults
	err := c.do(ctx, "results", http.MethodPost, fmt.Sprintf("/quiz_attempts/%d/results", attemptID), userBody{userID}, &res)
	return res, err
}

// Attempts lists the user's past attempts, newest first.
func (c *Client) Attempts(ctx context.Context, userID int64) ([]domain.AttemptSummary, error) {
	var rows []domain.AttemptSummary
	err := c.do(ctx, "attempt history", http.MethodPost, "/user/quiz_attempts", userBody{userID}, &rows)
	return rows, err
}

func (c *Client) Subjects(ctx context.Context) ([]domain.Subject, error) {
	var subjects []domain.Subject
	err := c.do(ctx, "list subjects", http.MethodGet, "/subjects", nil, &subjects)
	return subjects, err
}

func (c *Client) Subject(ctx context.Context, id int64) (domain.Subject, error) {
	var subject domain.Subject
	err := c.do(ctx, "get subject", http.MethodGet, fmt.Sprintf("/subjects/%d", id), nil, &subject)
	return subject, err
}

func (c *Client) Chapter(ctx context.Context, id int64) (domain.Chapter, error) {
	var chapter domain.Chapter
	err := c.do(ctx, "get chapter", http.MethodGet, fmt.Sprintf("/chapters/%d", id), nil, &chapter)
	return chapter, err
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) (err error) {
	defer func() { c.metrics.ObserveBackend(op, err) }()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &domain.TransportError{Op: op, Err: err}
		}
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.sessions != nil {
		session, err := c.sessions.Session(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if session.Token != "" {
			req.Header.Set("Authorization", "Bearer "+session.Token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error().Err(err).Str("op", op).Str("request_id", requestID).Msg("backend request failed")
		return &domain.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		terr := &domain.TransportError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
		c.log.Warn().Str("op", op).Str("request_id", requestID).Int("status", resp.StatusCode).Str("message", terr.Message).Msg("backend rejected request")
		return terr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return &domain.TransportError{Op: op, StatusCode: resp.StatusCode, Message: "invalid response body", Err: err}
	}
	return nil
}

// errorMessage pulls "error" or "message" out of a JSON error body.
func errorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 64<<10))
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(raw))
}

func isStatus(err error, code int) bool {
	var terr *domain.TransportError
	return errors.As(err, &terr) && terr.StatusCode == code
}
