// Package memory provides an in-memory document store with the same
// conditional write semantics as the SQLite store. It backs tests and
// local experimentation.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/datadealer/dd-app/internal/game"
	"github.com/datadealer/dd-app/internal/storage"
)

type key struct {
	owner   string
	version int
}

// Store holds documents in a map guarded by one mutex. Documents are
// deep-copied on the way in and out so callers never alias stored state.
type Store struct {
	mu   sync.Mutex
	docs map[key]*game.Document

	// now is swappable for guard evaluation in tests.
	now func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{docs: make(map[key]*game.Document), now: time.Now}
}

// SetClock replaces the write-time clock used for guard evaluation.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Get implements storage.DocumentStore.
func (s *Store) Get(ctx context.Context, owner string, version int) (*game.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[key{owner, version}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return doc.Clone(), nil
}

// Create implements storage.DocumentStore.
func (s *Store) Create(ctx context.Context, doc *game.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{doc.Owner, doc.Version}
	if _, ok := s.docs[k]; ok {
		return fmt.Errorf("document for %s/%d already exists", doc.Owner, doc.Version)
	}
	s.docs[k] = doc.Clone()
	return nil
}

// Update implements storage.DocumentStore. The staged document replaces
// the stored one only if the stored revision still matches and every
// guard holds against the stored state at write time.
func (s *Store) Update(ctx context.Context, match storage.Match, doc *game.Document) (*game.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{match.Owner, match.Version}
	stored, ok := s.docs[k]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if stored.Revision != match.Revision {
		return nil, storage.ErrLostRace
	}
	if match.Cash != nil && stored.Values.Cash < match.Cash.Minimum {
		return nil, storage.ErrLostRace
	}
	if match.AP != nil && !match.AP.Satisfied(s.now()) {
		return nil, storage.ErrLostRace
	}
	next := doc.Clone()
	next.Revision = match.Revision + 1
	next.UpdatedAt = s.now()
	s.docs[k] = next
	return next.Clone(), nil
}

// FinishCharge implements storage.DocumentStore.
func (s *Store) FinishCharge(ctx context.Context, owner string, version int, path string, start time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.docs[key{owner, version}]
	if !ok {
		return false, nil
	}
	job := stored.ChargeJobFor(path)
	if job == nil || !job.Start.Equal(start) {
		return false, nil
	}
	next := stored.Clone()
	moved := next.ChargeJobFor(path)
	next.Ready = append(next.Ready, game.Collectible{Path: moved.Path, Result: moved.Result})
	next.RemoveChargeJob(path)
	if node := next.NodeByPath(path); node != nil {
		node.Instance.ChargeStart = nil
	}
	next.Revision++
	next.UpdatedAt = s.now()
	s.docs[key{owner, version}] = next
	return true, nil
}

// DueCharges implements storage.ChargeScheduler.
func (s *Store) DueCharges(ctx context.Context, now time.Time, limit int) ([]storage.DueCharge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []storage.DueCharge
	for k, doc := range s.docs {
		for _, job := range doc.Charging {
			if job.End.After(now) {
				continue
			}
			due = append(due, storage.DueCharge{
				Owner:   k.owner,
				Version: k.version,
				Path:    job.Path,
				Start:   job.Start,
			})
			if limit > 0 && len(due) >= limit {
				return due, nil
			}
		}
	}
	return due, nil
}

// Reset implements storage.DocumentStore.
func (s *Store) Reset(ctx context.Context, owner string, version int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, key{owner, version})
	return nil
}

// EventRecorder is an in-memory audit log.
type EventRecorder struct {
	mu     sync.Mutex
	events []storage.Event
}

// NewEventRecorder creates an empty recorder.
func NewEventRecorder() *EventRecorder {
	return &EventRecorder{}
}

// Append implements storage.EventLog.
func (r *EventRecorder) Append(ctx context.Context, event storage.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of the appended records.
func (r *EventRecorder) Events() []storage.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]storage.Event, len(r.events))
	copy(out, r.events)
	return out
}

var _ storage.DocumentStore = (*Store)(nil)
var _ storage.ChargeScheduler = (*Store)(nil)
var _ storage.EventLog = (*EventRecorder)(nil)
