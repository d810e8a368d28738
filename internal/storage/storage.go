// Package storage defines the persistence capabilities the engine
// consumes: a conditional document store with compare-and-swap writes,
// a best-effort audit log and a best-effort notification sink.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/datadealer/dd-app/internal/actionpoints"
	"github.com/datadealer/dd-app/internal/game"
)

// ErrNotFound indicates the requested document is missing.
var ErrNotFound = errors.New("document not found")

// ErrLostRace indicates a conditional write found the document changed
// since it was read. The caller may retry by re-reading.
var ErrLostRace = errors.New("conditional write lost the race")

// APGuard re-states an action point affordability check for the store to
// re-evaluate at write time with the identical regeneration function.
// The inequality is monotonic in elapsed time, so a write evaluated later
// than the read can only widen the window, never flip a pass into a fail.
type APGuard struct {
	Snapshot int
	SnapTime time.Time
	Rate     actionpoints.Rate
	Cost     int
}

// Satisfied evaluates the guard at the given time.
func (g *APGuard) Satisfied(now time.Time) bool {
	return actionpoints.Affordable(g.Snapshot, g.SnapTime, g.Rate, now, g.Cost)
}

// CashGuard re-states a cash affordability check against the stored
// document at write time.
type CashGuard struct {
	Minimum int64
}

// Match is the predicate of one conditional write: the exact prior
// revision plus any re-stated affordability guards.
type Match struct {
	Owner    string
	Version  int
	Revision uint64
	AP       *APGuard
	Cash     *CashGuard
}

// DocumentStore is the single concurrency-safe entry point to game state.
// Update is atomic: either the whole staged document replaces the stored
// one, or nothing changes and ErrLostRace reports the conflict.
type DocumentStore interface {
	// Get returns the document for an owner and ruleset version, or
	// ErrNotFound.
	Get(ctx context.Context, owner string, version int) (*game.Document, error)
	// Create stores a brand-new document at revision zero.
	Create(ctx context.Context, doc *game.Document) error
	// Update replaces the stored document if the match predicate holds,
	// advancing the revision by one. It returns the stored snapshot or
	// ErrLostRace.
	Update(ctx context.Context, match Match, doc *game.Document) (*game.Document, error)
	// FinishCharge moves one charging entry with the given path and
	// start time to the ready queue, clearing the node's charge marker.
	// A document that has moved on is a silent no-op (ok false).
	FinishCharge(ctx context.Context, owner string, version int, path string, start time.Time) (bool, error)
	// Reset deletes the document. Resetting a missing document is not
	// an error.
	Reset(ctx context.Context, owner string, version int) error
}

// DueCharge identifies one charge cycle whose end time has passed.
type DueCharge struct {
	Owner   string
	Version int
	Path    string
	Start   time.Time
}

// ChargeScheduler lists expired charge cycles for the deferred ready
// transition. The listing is advisory: a FinishCharge against a document
// that moved on in the meantime is a silent no-op.
type ChargeScheduler interface {
	// DueCharges returns up to limit charges with End at or before now.
	DueCharges(ctx context.Context, now time.Time, limit int) ([]DueCharge, error)
}

// EventKind is the closed audit vocabulary.
type EventKind string

const (
	EventNewGame     EventKind = "newgame"
	EventLoadGame    EventKind = "loadgame"
	EventMissionDone EventKind = "missiondone"
	EventLevelUp     EventKind = "levelup"
	EventCharge      EventKind = "charge"
	EventCollect     EventKind = "collect"
	EventIntegrate   EventKind = "integrate"
	EventBuyPerp     EventKind = "buyperp"
	EventBuyPowerup  EventKind = "buypowerup"
	EventIncident    EventKind = "incident"
)

// Event is one audit record.
type Event struct {
	Kind   EventKind
	Owner  string
	Target string
	Level  int
	XP     int64
	Karma  int
	At     time.Time
}

// EventLog appends audit records. Failures never fail the operation that
// produced the event.
type EventLog interface {
	Append(ctx context.Context, event Event) error
}

// NotificationSink delivers best-effort signals to the player's client.
type NotificationSink interface {
	// NodeReady signals a finished charge waiting to be collected.
	NodeReady(ctx context.Context, owner, path string) error
	// ItemsAvailable signals newly attachable content.
	ItemsAvailable(ctx context.Context, owner string, gestalten []string) error
}

// NopSink discards all notifications.
type NopSink struct{}

func (NopSink) NodeReady(context.Context, string, string) error        { return nil }
func (NopSink) ItemsAvailable(context.Context, string, []string) error { return nil }

// NopLog discards all audit records.
type NopLog struct{}

func (NopLog) Append(context.Context, Event) error { return nil }
