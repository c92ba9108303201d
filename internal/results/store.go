// Package results keeps the single most recent submission result in the
// client state store so a later invocation can display it.
package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"srq20.org/internal/ids"
	"srq20.org/internal/questionnaire"
	"srq20.org/internal/storage"
)

// Key is the client state key of the cached result.
const Key = "srq20Result"

// ErrNoResult is returned by Load when nothing has been saved.
var ErrNoResult = errors.New("results: no saved result")

// Snapshot is the cached result with the time and id it was saved under.
type Snapshot struct {
	ID      string                `json:"id"`
	SavedAt time.Time             `json:"saved_at"`
	Result  *questionnaire.Result `json:"result"`
}

// Store is a single-slot result cache. Each Save replaces the previous one.
type Store struct {
	state storage.Store
	now   func() time.Time
}

var _ questionnaire.ResultSaver = (*Store)(nil)

// New wraps state.
func New(state storage.Store) *Store {
	return &Store{state: state, now: time.Now}
}

// Save overwrites the cached result.
func (s *Store) Save(ctx context.Context, res *questionnaire.Result) error {
	if res == nil {
		return errors.New("results: nil result")
	}
	now := s.now().UTC()
	snap := Snapshot{ID: ids.NewAt(now), SavedAt: now, Result: res}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("results: encode: %w", err)
	}
	if err := s.state.Set(ctx, Key, string(raw)); err != nil {
		return fmt.Errorf("results: save: %w", err)
	}
	return nil
}

// Load returns the cached snapshot or ErrNoResult.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	raw, ok, err := s.state.Get(ctx, Key)
	if err != nil {
		return nil, fmt.Errorf("results: load: %w", err)
	}
	if !ok || raw == "" {
		return nil, ErrNoResult
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("results: decode: %w", err)
	}
	if snap.Result == nil {
		return nil, ErrNoResult
	}
	return &snap, nil
}

// Clear removes the cached result.
func (s *Store) Clear(ctx context.Context) error {
	return s.state.Delete(ctx, Key)
}
