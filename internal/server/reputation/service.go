// Package reputation keeps a per-user activity score and checkpoints it
// through the persistent service base.
package reputation

import (
	"context"
	"time"

	"github.com/dmitrijs2005/credport/internal/logging"
	"github.com/dmitrijs2005/credport/internal/server/persist"
)

// ServiceKey is the state store key this service owns.
const ServiceKey = "reputation"

// Point values for the events the edge records.
const (
	PointsRegistered = 10
	PointsLogin      = 1
)

type Score struct {
	Points    int64     `json:"points"`
	Events    int64     `json:"events"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type State struct {
	Users map[int64]Score `json:"users"`
}

func newState() State {
	return State{Users: make(map[int64]Score)}
}

type Service struct {
	base *persist.Service[State]
	now  func() time.Time
}

func NewService(store persist.Store, logger logging.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Service{
		base: persist.New(store, newState, logger.With("module", "reputation")),
		now:  now,
	}
}

// Record adds delta to the user's score and checkpoints in the background.
// Scores never drop below zero.
func (s *Service) Record(ctx context.Context, userID int64, delta int64) (Score, error) {
	if err := s.base.EnsureHydrated(ctx); err != nil {
		return Score{}, err
	}

	var out Score
	s.base.Update(func(st *State) {
		if st.Users == nil {
			st.Users = make(map[int64]Score)
		}
		sc := st.Users[userID]
		sc.Points += delta
		if sc.Points < 0 {
			sc.Points = 0
		}
		sc.Events++
		sc.UpdatedAt = s.now().UTC()
		st.Users[userID] = sc
		out = sc
	})

	s.base.PersistAsync(ctx)
	return out, nil
}

// Get returns the user's score; unknown users score zero.
func (s *Service) Get(ctx context.Context, userID int64) (Score, error) {
	if err := s.base.EnsureHydrated(ctx); err != nil {
		return Score{}, err
	}
	var out Score
	s.base.View(func(st State) { out = st.Users[userID] })
	return out, nil
}

// Flush waits until the current state is durably written.
func (s *Service) Flush(ctx context.Context) error {
	return s.base.Persist(ctx)
}
