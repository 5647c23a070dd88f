package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"quiz-runner/internal/app"
	"quiz-runner/internal/domain"
	"quiz-runner/internal/metrics"
)

// Runs is the set of open quiz machines shared by the handlers.
type Runs interface {
	GetOrOpen(quizID int64, open func() (*app.Machine, error)) (*app.Machine, error)
	Get(quizID int64) (*app.Machine, bool)
	DeleteIfDone(quizID int64)
}

// Config wires a Server. Flow, Results and Runs are required.
type Config struct {
	Flow         *app.Flow
	Results      *app.ResultsService
	Runs         Runs
	TickInterval time.Duration
	Log          zerolog.Logger
	Metrics      *metrics.Metrics
}

// Server is the local front end: a small REST surface over the quiz flow and
// a WebSocket feed of machine snapshots.
type Server struct {
	flow     *app.Flow
	results  *app.ResultsService
	runs     Runs
	tick     time.Duration
	log      zerolog.Logger
	metrics  *metrics.Metrics
	validate *validator.Validate
	ws       *WSHandler

	// runCtx bounds the per-quiz tick loops; it ends with Close.
	runCtx    context.Context
	cancelRun context.CancelFunc
}

func NewServer(cfg Config) *Server {
	tick := cfg.TickInterval
	if tick <= 0 {
		tick = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		flow:      cfg.Flow,
		results:   cfg.Results,
		runs:      cfg.Runs,
		tick:      tick,
		log:       cfg.Log,
		metrics:   cfg.Metrics,
		validate:  validator.New(),
		runCtx:    ctx,
		cancelRun: cancel,
	}
	s.ws = NewWSHandler(s)
	return s
}

// Close stops every tick loop started by this server.
func (s *Server) Close() { s.cancelRun() }

// Routes returns the HTTP handler with request logging applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("POST /quiz/{quizId}/open", s.handleOpen)
	mux.HandleFunc("GET /quiz/{quizId}", s.handleView)
	mux.HandleFunc("POST /quiz/{quizId}/answer", s.handleAnswer)
	mux.HandleFunc("POST /quiz/{quizId}/next", s.handleNext)
	mux.HandleFunc("POST /quiz/{quizId}/prev", s.handlePrev)
	mux.HandleFunc("POST /quiz/{quizId}/submit", s.handleSubmit)
	mux.HandleFunc("GET /quiz/{quizId}/results", s.handleResults)
	mux.HandleFunc("GET /quiz/{quizId}/ws", s.ws.ServeWS)
	return s.logRequests(mux)
}

// open returns the running machine for quizID, opening it through the flow
// and starting its tick loop when none is registered.
func (s *Server) open(ctx context.Context, quizID int64) (*app.Machine, error) {
	s.runs.DeleteIfDone(quizID)
	return s.runs.GetOrOpen(quizID, func() (*app.Machine, error) {
		m, err := s.flow.Open(ctx, quizID)
		if err != nil {
			return nil, err
		}
		go func() {
			err := m.Run(s.runCtx, s.tick)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.log.Warn().Err(err).Int64("quiz_id", quizID).Msg("tick loop stopped")
			}
			if s.runCtx.Err() != nil {
				m.Close()
			}
		}()
		return m, nil
	})
}

func (s *Server) machine(w http.ResponseWriter, r *http.Request) (*app.Machine, bool) {
	quizID, ok := quizIDParam(w, r)
	if !ok {
		return nil, false
	}
	m, ok := s.runs.Get(quizID)
	if !ok {
		writeError(w, http.StatusNotFound, "quiz is not open")
		return nil, false
	}
	return m, true
}

func quizIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("quizId"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid quiz id")
		return 0, false
	}
	return id, true
}

type errorBody struct {
	Error    string `json:"error"`
	Redirect string `json:"redirect,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeDomainError maps flow and machine errors onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, quizID int64, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	if errors.Is(err, domain.ErrAlreadyAttempted) {
		body.Redirect = fmt.Sprintf("/quiz/%d/results", quizID)
	}
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Int64("quiz_id", quizID).Msg("request failed")
	}
	writeJSON(w, status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAlreadyAttempted),
		errors.Is(err, domain.ErrStartRejected),
		errors.Is(err, domain.ErrNotActive),
		errors.Is(err, domain.ErrSubmitInProgress),
		errors.Is(err, domain.ErrAlreadySubmitted):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoQuestions):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrNoAttempt):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidOption):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack keeps WebSocket upgrades working through the logging wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		s.log.Debug().
			Str("request_id", reqID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}
