// Package workflow drives an integration plan from summary through approval to a
// commit and an optional push.
package workflow

import (
	"fmt"
	"sync"

	"plugline/internal/domain"
)

var transitions = map[domain.WorkflowState][]domain.WorkflowState{
	domain.StateCloned:           {domain.StateAnalyzed},
	domain.StateAnalyzed:         {domain.StatePlanned},
	domain.StatePlanned:          {domain.StateSummarized},
	domain.StateSummarized:       {domain.StateAwaitingApproval},
	domain.StateAwaitingApproval: {domain.StateAwaitingApproval, domain.StateApproved, domain.StateCancelled},
	domain.StateApproved:         {domain.StateCommitted},
	domain.StateCommitted:        {domain.StatePublished, domain.StatePublishFailed},
}

// TransitionError is returned for a move the transition table does not allow.
type TransitionError struct {
	From domain.WorkflowState
	To   domain.WorkflowState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal workflow transition %s -> %s", e.From, e.To)
}

// CanTransition reports whether from -> to is in the table.
func CanTransition(from, to domain.WorkflowState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Machine tracks one run's state. OnTransition, when set, observes every accepted move.
type Machine struct {
	mu           sync.Mutex
	state        domain.WorkflowState
	history      []domain.WorkflowState
	OnTransition func(from, to domain.WorkflowState)
}

func NewMachine() *Machine {
	return &Machine{state: domain.StateCloned, history: []domain.WorkflowState{domain.StateCloned}}
}

func (m *Machine) State() domain.WorkflowState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// History lists every state entered, starting with cloned.
func (m *Machine) History() []domain.WorkflowState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.WorkflowState(nil), m.history...)
}

func (m *Machine) Transition(to domain.WorkflowState) error {
	m.mu.Lock()
	from := m.state
	if !CanTransition(from, to) {
		m.mu.Unlock()
		return &TransitionError{From: from, To: to}
	}
	m.state = to
	m.history = append(m.history, to)
	hook := m.OnTransition
	m.mu.Unlock()
	if hook != nil {
		hook(from, to)
	}
	return nil
}
