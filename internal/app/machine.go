package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"quiz-runner/internal/domain"
	"quiz-runner/internal/metrics"
)

// State is the lifecycle position of a Machine.
type State int

const (
	StateUninitialized State = iota
	StateActive
	StateSubmitting
	StateSubmitted
	StateError
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateSubmitting:
		return "submitting"
	case StateSubmitted:
		return "submitted"
	case StateError:
		return "error"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for candidate := StateUninitialized; candidate <= StateError; candidate++ {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown machine state %q", text)
}

// Terminal reports whether no further transition happens without a caller retry.
func (s State) Terminal() bool {
	return s == StateSubmitted || s == StateError
}

// Trigger says what started a submission.
type Trigger string

const (
	TriggerManual  Trigger = "manual"
	TriggerTimeout Trigger = "timeout"
)

// DefaultDuration is used when the quiz metadata has no usable duration.
const DefaultDuration = 60 * time.Minute

// Snapshot is a copy of machine state safe to hand to other goroutines.
type Snapshot struct {
	QuizID        int64          `json:"quiz_id"`
	State         State          `json:"state"`
	Index         int            `json:"current_question_index"`
	QuestionCount int            `json:"question_count"`
	Answers       domain.Answers `json:"answers"`
	Remaining     int            `json:"time_remaining"`
	EndTime       time.Time      `json:"end_time"`
	Error         string         `json:"error,omitempty"`
}

// MachineConfig wires a Machine. Store, Starter, Submitter and Questions are required.
type MachineConfig struct {
	QuizID          int64
	UserID          int64
	Questions       []domain.Question
	Store           StateStore
	Quizzes         QuizRepository // duration lookup; nil uses DefaultDuration
	Starter         AttemptStarter
	Submitter       *Submitter
	DefaultDuration time.Duration
	StartedAt       time.Time // server-side start of an in-progress attempt, if known
	Now             func() time.Time
	Log             zerolog.Logger
	Metrics         *metrics.Metrics
}

// Machine owns one in-progress attempt: current index, answers and the fixed end time.
type Machine struct {
	quizID          int64
	userID          int64
	questions       []domain.Question
	keys            StateKeys
	store           StateStore
	quizzes         QuizRepository
	starter         AttemptStarter
	submitter       *Submitter
	defaultDuration time.Duration
	startedAt       time.Time
	now             func() time.Time
	log             zerolog.Logger
	metrics         *metrics.Metrics

	startMu   sync.Mutex
	persistMu sync.Mutex

	mu          sync.RWMutex
	state       State
	current     int
	answers     domain.Answers
	endTime     time.Time
	remaining   int
	err         error
	retryable   bool
	result      domain.SubmitResult
	open        bool
	subscribers map[chan Snapshot]struct{}
}

func NewMachine(cfg MachineConfig) *Machine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	fallback := cfg.DefaultDuration
	if fallback <= 0 {
		fallback = DefaultDuration
	}
	return &Machine{
		quizID:          cfg.QuizID,
		userID:          cfg.UserID,
		questions:       cfg.Questions,
		keys:            KeysFor(cfg.QuizID),
		store:           cfg.Store,
		quizzes:         cfg.Quizzes,
		starter:         cfg.Starter,
		submitter:       cfg.Submitter,
		defaultDuration: fallback,
		startedAt:       cfg.StartedAt,
		now:             now,
		log:             cfg.Log.With().Int64("quiz_id", cfg.QuizID).Logger(),
		metrics:         cfg.Metrics,
		subscribers:     make(map[chan Snapshot]struct{}),
	}
}

// Start moves the machine to active. A persisted end time is reused as-is;
// otherwise a new one is computed, persisted and the backend is told the
// attempt began. Concurrent calls collapse into one.
func (m *Machine) Start(ctx context.Context) error {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	m.mu.RLock()
	state, prevErr, retryable := m.state, m.err, m.retryable
	m.mu.RUnlock()
	if state == StateError && !retryable {
		return prevErr
	}
	if state != StateUninitialized {
		return nil
	}

	persisted, err := loadState(ctx, m.store, m.keys, m.log)
	if err != nil {
		return m.fail(err, false)
	}

	endTime := persisted.endTime
	if endTime.IsZero() {
		base := m.now()
		if !m.startedAt.IsZero() {
			base = m.startedAt
		}
		endTime = base.Add(m.duration(ctx)).Truncate(time.Millisecond)
		if err := m.store.Set(ctx, m.keys.EndTime, FormatEndTime(endTime)); err != nil {
			return m.fail(fmt.Errorf("persist end time: %w", err), false)
		}
		if _, err := m.starter.StartAttempt(ctx, m.quizID, m.userID); err != nil {
			if derr := m.store.Delete(ctx, m.keys.EndTime); derr != nil {
				m.log.Error().Err(derr).Msg("drop end time after rejected start")
			}
			return m.fail(err, false)
		}
		m.log.Info().Time("end_time", endTime).Msg("quiz attempt started")
	} else {
		m.log.Info().Time("end_time", endTime).Msg("resuming quiz attempt")
	}

	m.mu.Lock()
	m.state = StateActive
	m.answers = seedAnswers(m.questions, persisted.answers)
	m.current = m.clamp(persisted.index)
	m.endTime = endTime
	m.remaining = m.remainingLocked()
	m.open = true
	m.metrics.ActiveInc()
	m.broadcastLocked()
	m.mu.Unlock()
	return nil
}

func (m *Machine) duration(ctx context.Context) time.Duration {
	if m.quizzes == nil {
		return m.defaultDuration
	}
	quiz, err := m.quizzes.GetQuiz(ctx, m.quizID)
	if err != nil {
		m.log.Warn().Err(err).Dur("fallback", m.defaultDuration).Msg("quiz duration unavailable, using fallback")
		return m.defaultDuration
	}
	if quiz.Duration <= 0 {
		return m.defaultDuration
	}
	return time.Duration(quiz.Duration) * time.Minute
}

// Tick recomputes the remaining time from the end timestamp. The first tick
// that sees zero while active submits; later ticks are no-ops.
func (m *Machine) Tick(ctx context.Context) int {
	m.mu.Lock()
	if m.state != StateActive {
		rem := m.remaining
		m.mu.Unlock()
		return rem
	}
	rem := m.remainingLocked()
	changed := rem != m.remaining
	m.remaining = rem
	expired := rem == 0
	if expired {
		m.state = StateSubmitting
	}
	if changed || expired {
		m.broadcastLocked()
	}
	m.mu.Unlock()

	if expired {
		m.log.Info().Msg("time is up, submitting")
		_, _ = m.submit(ctx, TriggerTimeout, 0)
	}
	return rem
}

// Run ticks every interval until the machine leaves the active state or ctx ends.
func (m *Machine) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	m.Tick(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for m.State() == StateActive || m.State() == StateSubmitting {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
	return nil
}

// Submit is the user-initiated submission. It shares the guard with the
// timeout path, so a duplicate call while one is in flight gets ErrSubmitInProgress.
func (m *Machine) Submit(ctx context.Context) (domain.SubmitResult, error) {
	m.mu.Lock()
	switch {
	case m.state == StateSubmitting:
		m.mu.Unlock()
		return domain.SubmitResult{}, domain.ErrSubmitInProgress
	case m.state == StateSubmitted:
		m.mu.Unlock()
		return domain.SubmitResult{}, domain.ErrAlreadySubmitted
	case m.state == StateActive, m.state == StateError && m.retryable:
	default:
		m.mu.Unlock()
		return domain.SubmitResult{}, domain.ErrNotActive
	}
	m.state = StateSubmitting
	rem := m.remainingLocked()
	m.remaining = rem
	m.broadcastLocked()
	m.mu.Unlock()

	return m.submit(ctx, TriggerManual, rem)
}

// submit runs with the machine already in StateSubmitting. Taking persistMu
// waits out an answer or index write that passed its state check before the
// switch, so the keys cleared on success stay cleared.
func (m *Machine) submit(ctx context.Context, trigger Trigger, remaining int) (domain.SubmitResult, error) {
	m.persistMu.Lock()
	m.mu.RLock()
	sub := domain.Submission{
		QuizID:        m.quizID,
		UserID:        m.userID,
		Answers:       m.answers.Clone(),
		TimeRemaining: remaining,
	}
	m.mu.RUnlock()
	m.persistMu.Unlock()

	res, err := m.submitter.Submit(ctx, sub)
	m.metrics.ObserveSubmission(string(trigger), err)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.state = StateError
		m.err = err
		m.retryable = true
		m.broadcastLocked()
		return domain.SubmitResult{}, err
	}
	m.state = StateSubmitted
	m.err = nil
	m.retryable = false
	m.result = res
	m.broadcastLocked()
	m.releaseLocked()
	return res, nil
}

// Close releases the machine from the open-quiz gauge. It does not submit or
// clear persisted state, so a later Start resumes the attempt.
func (m *Machine) Close() {
	m.mu.Lock()
	m.releaseLocked()
	m.mu.Unlock()
}

func (m *Machine) releaseLocked() {
	if !m.open {
		return
	}
	m.open = false
	m.metrics.ActiveDec()
}

// SelectAnswer overwrites the pick for questionID and persists the answer map.
func (m *Machine) SelectAnswer(ctx context.Context, questionID int64, option int) error {
	if !domain.ValidOption(option) {
		return domain.ErrInvalidOption
	}
	return m.setAnswer(ctx, questionID, &option)
}

// ClearAnswer marks questionID unanswered again.
func (m *Machine) ClearAnswer(ctx context.Context, questionID int64) error {
	return m.setAnswer(ctx, questionID, nil)
}

func (m *Machine) setAnswer(ctx context.Context, questionID int64, option *int) error {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	if !m.editableLocked() {
		m.mu.Unlock()
		return domain.ErrNotActive
	}
	if _, ok := m.answers[questionID]; !ok {
		m.mu.Unlock()
		return domain.ErrQuestionNotFound
	}
	if option == nil {
		m.answers[questionID] = nil
	} else {
		v := *option
		m.answers[questionID] = &v
	}
	encoded, err := encodeAnswers(m.answers)
	m.broadcastLocked()
	m.mu.Unlock()

	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	return m.persist(ctx, m.keys.Answers, encoded)
}

// Next moves forward one question, clamped to the last one.
func (m *Machine) Next(ctx context.Context) (int, error) {
	return m.move(ctx, 1)
}

// Prev moves back one question, clamped to the first one.
func (m *Machine) Prev(ctx context.Context) (int, error) {
	return m.move(ctx, -1)
}

// GoTo jumps to index, clamped to the question range.
func (m *Machine) GoTo(ctx context.Context, index int) (int, error) {
	m.mu.RLock()
	delta := index - m.current
	m.mu.RUnlock()
	return m.move(ctx, delta)
}

func (m *Machine) move(ctx context.Context, delta int) (int, error) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	if !m.editableLocked() {
		idx := m.current
		m.mu.Unlock()
		return idx, domain.ErrNotActive
	}
	next := m.clamp(m.current + delta)
	changed := next != m.current
	m.current = next
	if changed {
		m.broadcastLocked()
	}
	m.mu.Unlock()

	if !changed {
		return next, nil
	}
	return next, m.persist(ctx, m.keys.Index, strconv.Itoa(next))
}

func (m *Machine) persist(ctx context.Context, key, value string) error {
	if err := m.store.Set(ctx, key, value); err != nil {
		m.log.Warn().Err(err).Str("key", key).Msg("persist quiz state")
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Err is the failure that put the machine in StateError, if any.
func (m *Machine) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// Result is the backend confirmation after StateSubmitted.
func (m *Machine) Result() domain.SubmitResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.result
}

func (m *Machine) QuizID() int64 { return m.quizID }

// Questions returns the question set in quiz order.
func (m *Machine) Questions() []domain.Question {
	return append([]domain.Question(nil), m.questions...)
}

// Remaining is the last computed number of whole seconds left.
func (m *Machine) Remaining() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.remaining
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// Subscribe returns a channel of snapshots, starting with the current one.
// Slow readers only see the latest snapshot. The caller must invoke cancel.
func (m *Machine) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	initial := m.snapshotLocked()
	m.mu.Unlock()

	ch <- initial

	cancel := func() {
		m.mu.Lock()
		if _, ok := m.subscribers[ch]; ok {
			delete(m.subscribers, ch)
			close(ch)
		}
		m.mu.Unlock()
	}
	return ch, cancel
}

func (m *Machine) broadcastLocked() {
	snap := m.snapshotLocked()
	for ch := range m.subscribers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (m *Machine) snapshotLocked() Snapshot {
	snap := Snapshot{
		QuizID:        m.quizID,
		State:         m.state,
		Index:         m.current,
		QuestionCount: len(m.questions),
		Answers:       m.answers.Clone(),
		Remaining:     m.remaining,
		EndTime:       m.endTime,
	}
	if m.err != nil {
		snap.Error = m.err.Error()
	}
	return snap
}

func (m *Machine) editableLocked() bool {
	return m.state == StateActive || (m.state == StateError && m.retryable)
}

func (m *Machine) remainingLocked() int {
	left := m.endTime.Sub(m.now())
	if left <= 0 {
		return 0
	}
	return int(left / time.Second)
}

func (m *Machine) clamp(index int) int {
	if index < 0 || len(m.questions) == 0 {
		return 0
	}
	if index > len(m.questions)-1 {
		return len(m.questions) - 1
	}
	return index
}

func (m *Machine) fail(err error, retryable bool) error {
	m.mu.Lock()
	m.state = StateError
	m.err = err
	m.retryable = retryable
	m.broadcastLocked()
	m.mu.Unlock()
	if !errors.Is(err, domain.ErrAlreadyAttempted) {
		m.log.Error().Err(err).Msg("quiz machine failed")
	}
	return err
}
