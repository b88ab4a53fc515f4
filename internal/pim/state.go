package pim

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"elevate.dev/elevate/internal/domain"
	apperrors "elevate.dev/elevate/internal/pkg/errors"
	"elevate.dev/elevate/internal/pkg/logger"
)

// State is the observable manager state.
type State struct {
	EligibleRoles []domain.EligibilitySchedule `json:"eligibleRoles"`
	ActiveRoles   []domain.AssignmentSchedule  `json:"activeRoles"`
	IsLoading     bool                         `json:"isLoading"`
	LastError     string                       `json:"lastError,omitempty"`
	IsMutating    bool                         `json:"isMutating"`
	MutationError string                       `json:"mutationError,omitempty"`
	RefreshedAt   *time.Time                   `json:"refreshedAt,omitempty"`
}

func (s State) clone() State {
	c := s
	c.EligibleRoles = domain.CloneEligible(s.EligibleRoles)
	c.ActiveRoles = domain.CloneActive(s.ActiveRoles)
	if s.RefreshedAt != nil {
		t := *s.RefreshedAt
		c.RefreshedAt = &t
	}
	return c
}

// store holds the state shared by both manager variants: the refresh
// sequence, the single mutation slot and the subscriber list.
type store struct {
	// notifyMu orders notifications the same way as the changes they report.
	notifyMu sync.Mutex

	mu         sync.RWMutex
	state      State
	refreshSeq uint64

	subsMu  sync.Mutex
	subs    map[uint64]func(State)
	nextSub uint64
}

func newStore() *store {
	return &store{
		state: State{
			EligibleRoles: []domain.EligibilitySchedule{},
			ActiveRoles:   []domain.AssignmentSchedule{},
		},
		subs: make(map[uint64]func(State)),
	}
}

func (s *store) snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// update applies fn under the write lock and notifies subscribers when fn
// reports a change.
func (s *store) update(fn func(st *State) bool) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	changed := fn(&s.state)
	var snap State
	if changed {
		snap = s.state.clone()
	}
	s.mu.Unlock()

	if changed {
		s.notify(snap)
	}
}

func (s *store) subscribe(fn func(State)) func() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			delete(s.subs, id)
		})
	}
}

func (s *store) notify(snap State) {
	s.subsMu.Lock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subsMu.Unlock()

	for _, fn := range fns {
		fn(snap.clone())
	}
}

// beginRefresh tags a new refresh. Earlier refreshes still in flight become stale.
func (s *store) beginRefresh() uint64 {
	var seq uint64
	s.update(func(st *State) bool {
		s.refreshSeq++
		seq = s.refreshSeq
		st.IsLoading = true
		st.LastError = ""
		return true
	})
	return seq
}

// finishRefresh commits the outcome of refresh seq. A stale outcome is
// dropped and reported false.
func (s *store) finishRefresh(seq uint64, eligible []domain.EligibilitySchedule, active []domain.AssignmentSchedule, err error, at time.Time) bool {
	committed := false
	s.update(func(st *State) bool {
		if seq != s.refreshSeq {
			return false
		}
		committed = true
		st.IsLoading = false
		if err != nil {
			st.LastError = apperrors.Message(err)
			return true
		}
		st.EligibleRoles = domain.CloneEligible(eligible)
		st.ActiveRoles = domain.CloneActive(active)
		t := at
		st.RefreshedAt = &t
		return true
	})
	if !committed {
		logger.Debug("Discarding stale refresh result",
			zap.Uint64("refresh_seq", seq),
			zap.Bool("failed", err != nil),
		)
	}
	return committed
}

// reset empties both collections and invalidates refreshes in flight.
func (s *store) reset() {
	s.update(func(st *State) bool {
		s.refreshSeq++
		st.IsLoading = false
		st.LastError = ""
		st.EligibleRoles = []domain.EligibilitySchedule{}
		st.ActiveRoles = []domain.AssignmentSchedule{}
		st.RefreshedAt = nil
		return true
	})
}

// replace publishes new collections outside a refresh cycle.
func (s *store) replace(eligible []domain.EligibilitySchedule, active []domain.AssignmentSchedule) {
	s.update(func(st *State) bool {
		st.EligibleRoles = domain.CloneEligible(eligible)
		st.ActiveRoles = domain.CloneActive(active)
		return true
	})
}

// beginMutation claims the single mutation slot.
func (s *store) beginMutation() error {
	var err error
	s.update(func(st *State) bool {
		if st.IsMutating {
			err = apperrors.ErrMutationInFlightf()
			return false
		}
		st.IsMutating = true
		st.MutationError = ""
		return true
	})
	return err
}

// endMutation releases the slot and records the outcome.
func (s *store) endMutation(err error) {
	s.update(func(st *State) bool {
		st.IsMutating = false
		if err != nil {
			st.MutationError = apperrors.Message(err)
		}
		return true
	})
}
