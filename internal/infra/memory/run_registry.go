package memory

import (
	"sync"

	"quiz-runner/internal/app"
)

// RunRegistry keeps the open quiz machines of this process, one per quiz id.
type RunRegistry struct {
	mu       sync.RWMutex
	machines map[int64]*app.Machine
}

func NewRunRegistry() *RunRegistry {
	return &RunRegistry{machines: make(map[int64]*app.Machine)}
}

// GetOrOpen returns the machine for quizID, calling open only when none is
// registered. A machine that failed to start is not kept.
func (r *RunRegistry) GetOrOpen(quizID int64, open func() (*app.Machine, error)) (*app.Machine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.machines[quizID]; ok {
		return m, nil
	}
	m, err := open()
	if err != nil {
		return m, err
	}
	r.machines[quizID] = m
	return m, nil
}

func (r *RunRegistry) Get(quizID int64) (*app.Machine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.machines[quizID]
	return m, ok
}

// DeleteIfDone drops the machine once it has been submitted.
func (r *RunRegistry) DeleteIfDone(quizID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.machines[quizID]
	if !ok {
		return
	}
	if m.State() == app.StateSubmitted {
		delete(r.machines, quizID)
	}
}
