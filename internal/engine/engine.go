// Package engine implements the game state mutation operations. Every
// operation follows the same shape: one read of the owner's document,
// validation against a private snapshot, a pure mutation of that snapshot
// and at most one conditional write. A write that loses against a
// concurrent mutation reports the retryable lost-race code; the caller
// retries by re-reading, never by reusing the stale snapshot.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/datadealer/dd-app/internal/actionpoints"
	"github.com/datadealer/dd-app/internal/game"
	"github.com/datadealer/dd-app/internal/metrics"
	"github.com/datadealer/dd-app/internal/missions"
	apperrors "github.com/datadealer/dd-app/internal/platform/errors"
	"github.com/datadealer/dd-app/internal/random"
	"github.com/datadealer/dd-app/internal/rules"
	"github.com/datadealer/dd-app/internal/storage"
)

// Engine executes operations against one document store and one content
// catalog. It is safe for concurrent use.
type Engine struct {
	store   storage.DocumentStore
	catalog *rules.Catalog
	log     storage.EventLog
	notify  storage.NotificationSink
	metrics *metrics.Metrics
	tracer  trace.Tracer

	randMu sync.Mutex
	rand   *rand.Rand

	now func() time.Time
}

// Options carries the optional collaborators of an Engine. Zero fields
// get no-op or default implementations.
type Options struct {
	EventLog storage.EventLog
	Notifier storage.NotificationSink
	Metrics  *metrics.Metrics
	Clock    func() time.Time
	// Rand overrides the incident sampling source, for tests.
	Rand *rand.Rand
}

// New creates an Engine.
func New(store storage.DocumentStore, catalog *rules.Catalog, opts Options) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("rules catalog is required")
	}
	e := &Engine{
		store:   store,
		catalog: catalog,
		log:     opts.EventLog,
		notify:  opts.Notifier,
		metrics: opts.Metrics,
		tracer:  otel.Tracer("dd-app/engine"),
		rand:    opts.Rand,
		now:     opts.Clock,
	}
	if e.log == nil {
		e.log = storage.NopLog{}
	}
	if e.notify == nil {
		e.notify = storage.NopSink{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.rand == nil {
		seed1, err := random.NewSeed()
		if err != nil {
			return nil, err
		}
		seed2, err := random.NewSeed()
		if err != nil {
			return nil, err
		}
		e.rand = rand.New(rand.NewPCG(uint64(seed1), uint64(seed2)))
	}
	return e, nil
}

// session is the per-operation view: the negotiated ruleset, the read
// snapshot and the level row it was read at. A session is never reused
// across operations or retries.
type session struct {
	rs    *rules.Ruleset
	doc   *game.Document
	level rules.Level
	now   time.Time
}

func (e *Engine) begin(ctx context.Context, owner string, version int, locale string) (*session, error) {
	rs, err := e.catalog.Ruleset(version, locale)
	if err != nil {
		return nil, err
	}
	doc, err := e.store.Get(ctx, owner, version)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return &session{
		rs:    rs,
		doc:   doc,
		level: rs.LevelInfo(doc.Values.Level),
		now:   e.now(),
	}, nil
}

// apNow regenerates the action point value from the snapshot pair.
func (s *session) apNow() (int, time.Time) {
	return actionpoints.Compute(s.doc.Values.APSnapshot, s.doc.Values.APUpdated, s.level.Rate(), s.now)
}

// apGuard re-states the affordability check for the store, built from the
// snapshot pair as read, not the deducted one.
func (s *session) apGuard(cost int) *storage.APGuard {
	return &storage.APGuard{
		Snapshot: s.doc.Values.APSnapshot,
		SnapTime: s.doc.Values.APUpdated,
		Rate:     s.level.Rate(),
		Cost:     cost,
	}
}

// spendAP deducts a regeneration-gated cost from the staged snapshot.
// The caller must have verified affordability first.
func (s *session) spendAP(cost int) {
	current, updated := s.apNow()
	s.doc.Values.APSnapshot = current - cost
	s.doc.Values.APUpdated = updated
}

// applyXP adds experience and handles a level threshold crossing: the
// level field advances and the action point clock refills to the new
// level's maximum.
func (s *session) applyXP(gain int64) bool {
	s.doc.Values.XP += gain
	next := s.rs.LevelForXP(s.doc.Values.XP)
	if next.Level <= s.doc.Values.Level {
		return false
	}
	s.doc.Values.Level = next.Level
	s.doc.Values.APSnapshot = next.APMax
	s.doc.Values.APUpdated = s.now
	return true
}

// applyRewards folds a mission reward summary into the staged snapshot,
// except experience, which the caller adds through applyXP together with
// the operation's own gain.
func (s *session) applyRewards(r missions.Rewards) {
	s.doc.Values.Cash += r.Cash
	s.doc.Values.AddKarma(r.Karma)
	if r.AP > 0 {
		current, updated := s.apNow()
		s.doc.Values.APSnapshot = min(current+r.AP, s.level.APMax)
		s.doc.Values.APUpdated = updated
	}
	s.doc.Deliveries = append(s.doc.Deliveries, r.Deliveries...)
}

// match builds the conditional write predicate from the snapshot as read.
func (s *session) match(owner string, version int) storage.Match {
	return storage.Match{Owner: owner, Version: version, Revision: s.doc.Revision}
}

// Result is the common part of every mutating operation's outcome.
type Result struct {
	// Document is the stored snapshot after the accepted write.
	Document *game.Document
	// Rewards sums the rewards of missions completed by this operation.
	Rewards missions.Rewards
	// CompletedMissions lists the mission gestalten completed, in order.
	CompletedMissions []string
	// LevelUp reports a level threshold crossing; the action point clock
	// was refilled to the new level's maximum.
	LevelUp bool
	// APSpent is the regeneration-gated cost paid, zero for cash-only
	// operations.
	APSpent int
}

func (e *Engine) commit(ctx context.Context, s *session, match storage.Match) (*game.Document, error) {
	stored, err := e.store.Update(ctx, match, s.doc)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return stored, nil
}

func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return apperrors.Wrap(apperrors.CodeNotFound, "game document not found", err)
	case errors.Is(err, storage.ErrLostRace):
		return apperrors.Wrap(apperrors.CodeLostRace, "conditional write lost the race", err)
	}
	return err
}

// observe finishes the operation's span and metrics.
func (e *Engine) observe(span trace.Span, op string, start time.Time, err error) {
	code := apperrors.CodeOf(err)
	result := "ok"
	if err != nil {
		result = string(code)
		span.RecordError(err)
	}
	span.SetAttributes(attribute.String("dd.result", result))
	span.End()
	e.metrics.ObserveOperation(op, result, time.Since(start))
	if code == apperrors.CodeLostRace {
		e.metrics.ObserveLostRace(op)
	}
}

func (e *Engine) startSpan(ctx context.Context, op, owner string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "engine."+op, trace.WithAttributes(
		attribute.String("dd.operation", op),
		attribute.String("dd.owner", owner),
	))
}

// audit appends a record without ever failing the operation.
func (e *Engine) audit(ctx context.Context, kind storage.EventKind, owner, target string, values game.Values) {
	_ = e.log.Append(ctx, storage.Event{
		Kind:   kind,
		Owner:  owner,
		Target: target,
		Level:  values.Level,
		XP:     values.XP,
		Karma:  values.Karma,
		At:     e.now(),
	})
}

// auditMissions records one completion event per finished mission.
func (e *Engine) auditMissions(ctx context.Context, owner string, completed []string, values game.Values) {
	for _, mission := range completed {
		e.audit(ctx, storage.EventMissionDone, owner, mission, values)
	}
}
