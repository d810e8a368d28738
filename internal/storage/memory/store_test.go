package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/datadealer/dd-app/internal/actionpoints"
	"github.com/datadealer/dd-app/internal/game"
	"github.com/datadealer/dd-app/internal/storage"
)

func testDoc(owner string) *game.Document {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &game.Document{
		Owner:   owner,
		Version: 1,
		Values: game.Values{
			Cash:       500,
			Level:      1,
			APSnapshot: 6,
			APUpdated:  now,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func mustCreate(t *testing.T, s *Store, doc *game.Document) {
	t.Helper()
	if err := s.Create(context.Background(), doc); err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func TestGetMissing(t *testing.T) {
	s := New()
	if _, err := s.Get(context.Background(), "nobody", 1); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestCreateAndGetCopies(t *testing.T) {
	s := New()
	doc := testDoc("alice")
	mustCreate(t, s, doc)

	doc.Values.Cash = 0

	got, err := s.Get(context.Background(), "alice", 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Values.Cash != 500 {
		t.Fatalf("stored cash mutated via caller copy: got %d", got.Values.Cash)
	}

	got.Values.Cash = 1
	again, err := s.Get(context.Background(), "alice", 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if again.Values.Cash != 500 {
		t.Fatalf("stored cash mutated via returned copy: got %d", again.Values.Cash)
	}
}

func TestCreateDuplicate(t *testing.T) {
	s := New()
	mustCreate(t, s, testDoc("alice"))
	if err := s.Create(context.Background(), testDoc("alice")); err == nil {
		t.Fatal("second Create succeeded, want error")
	}
}

func TestUpdateAdvancesRevision(t *testing.T) {
	s := New()
	mustCreate(t, s, testDoc("alice"))

	got, err := s.Get(context.Background(), "alice", 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got.Values.Cash = 420

	match := storage.Match{Owner: "alice", Version: 1, Revision: got.Revision}
	updated, err := s.Update(context.Background(), match, got)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Revision != got.Revision+1 {
		t.Fatalf("Revision = %d, want %d", updated.Revision, got.Revision+1)
	}
	if updated.Values.Cash != 420 {
		t.Fatalf("Cash = %d, want 420", updated.Values.Cash)
	}
}

func TestUpdateStaleRevision(t *testing.T) {
	s := New()
	mustCreate(t, s, testDoc("alice"))

	got, err := s.Get(context.Background(), "alice", 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	match := storage.Match{Owner: "alice", Version: 1, Revision: got.Revision}
	if _, err := s.Update(context.Background(), match, got); err != nil {
		t.Fatalf("first Update: %v", err)
	}
	if _, err := s.Update(context.Background(), match, got); !errors.Is(err, storage.ErrLostRace) {
		t.Fatalf("stale Update = %v, want ErrLostRace", err)
	}
}

func TestUpdateConcurrentSameRevision(t *testing.T) {
	s := New()
	mustCreate(t, s, testDoc("alice"))

	base, err := s.Get(context.Background(), "alice", 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc := base.Clone()
			doc.Values.Cash = int64(100 + i)
			match := storage.Match{Owner: "alice", Version: 1, Revision: base.Revision}
			_, errs[i] = s.Update(context.Background(), match, doc)
		}()
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, storage.ErrLostRace):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 || lost != 1 {
		t.Fatalf("winners = %d, losers = %d, want exactly one of each", won, lost)
	}
}

func TestUpdateCashGuard(t *testing.T) {
	s := New()
	mustCreate(t, s, testDoc("alice"))

	got, err := s.Get(context.Background(), "alice", 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	match := storage.Match{
		Owner:    "alice",
		Version:  1,
		Revision: got.Revision,
		Cash:     &storage.CashGuard{Minimum: 501},
	}
	if _, err := s.Update(context.Background(), match, got); !errors.Is(err, storage.ErrLostRace) {
		t.Fatalf("underfunded Update = %v, want ErrLostRace", err)
	}

	match.Cash.Minimum = 500
	if _, err := s.Update(context.Background(), match, got); err != nil {
		t.Fatalf("affordable Update: %v", err)
	}
}

func TestUpdateActionPointGuard(t *testing.T) {
	s := New()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return t0 })
	mustCreate(t, s, testDoc("alice"))

	got, err := s.Get(context.Background(), "alice", 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	rate := actionpoints.Rate{IntervalMS: 60000, Increment: 1, Max: 10}
	match := storage.Match{
		Owner:    "alice",
		Version:  1,
		Revision: got.Revision,
		AP: &storage.APGuard{
			Snapshot: 0,
			SnapTime: t0,
			Rate:     rate,
			Cost:     2,
		},
	}
	if _, err := s.Update(context.Background(), match, got); !errors.Is(err, storage.ErrLostRace) {
		t.Fatalf("unaffordable Update = %v, want ErrLostRace", err)
	}

	// Two regeneration intervals later the same guard passes.
	s.SetClock(func() time.Time { return t0.Add(2 * time.Minute) })
	if _, err := s.Update(context.Background(), match, got); err != nil {
		t.Fatalf("regenerated Update: %v", err)
	}
}

func TestFinishCharge(t *testing.T) {
	s := New()
	doc := testDoc("alice")
	start := doc.CreatedAt
	doc.Nodes = []*game.Node{{
		ID:      "n1",
		Path:    "n1",
		Gestalt: "contact_courier",
		Kind:    game.KindContact,
		Instance: game.Instance{
			ChargeStart: &start,
		},
	}}
	doc.Charging = []game.ChargeJob{{
		Path:   "n1",
		Start:  start,
		End:    start.Add(45 * time.Second),
		Result: game.Yield{Cash: 40},
	}}
	mustCreate(t, s, doc)

	ok, err := s.FinishCharge(context.Background(), "alice", 1, "n1", start)
	if err != nil {
		t.Fatalf("FinishCharge: %v", err)
	}
	if !ok {
		t.Fatal("FinishCharge = false, want true")
	}

	got, err := s.Get(context.Background(), "alice", 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Charging) != 0 {
		t.Fatalf("Charging not drained: %v", got.Charging)
	}
	if len(got.Ready) != 1 || got.Ready[0].Path != "n1" || got.Ready[0].Result.Cash != 40 {
		t.Fatalf("Ready = %+v, want the finished job", got.Ready)
	}
	if got.Nodes[0].Instance.ChargeStart != nil {
		t.Fatal("node ChargeStart not cleared")
	}
	if got.Revision != doc.Revision+1 {
		t.Fatalf("Revision = %d, want %d", got.Revision, doc.Revision+1)
	}
}

func TestFinishChargeMovedOn(t *testing.T) {
	s := New()
	doc := testDoc("alice")
	start := doc.CreatedAt
	mustCreate(t, s, doc)

	// No matching job: the trigger is a silent no-op.
	ok, err := s.FinishCharge(context.Background(), "alice", 1, "gone", start)
	if err != nil {
		t.Fatalf("FinishCharge: %v", err)
	}
	if ok {
		t.Fatal("FinishCharge = true for a missing job")
	}

	// Missing document is no different.
	ok, err = s.FinishCharge(context.Background(), "nobody", 1, "gone", start)
	if err != nil {
		t.Fatalf("FinishCharge missing doc: %v", err)
	}
	if ok {
		t.Fatal("FinishCharge = true for a missing document")
	}
}

func TestFinishChargeStaleStart(t *testing.T) {
	s := New()
	doc := testDoc("alice")
	start := doc.CreatedAt
	doc.Charging = []game.ChargeJob{{Path: "n1", Start: start.Add(time.Minute)}}
	mustCreate(t, s, doc)

	ok, err := s.FinishCharge(context.Background(), "alice", 1, "n1", start)
	if err != nil {
		t.Fatalf("FinishCharge: %v", err)
	}
	if ok {
		t.Fatal("FinishCharge = true for a restarted job")
	}
}

func TestReset(t *testing.T) {
	s := New()
	mustCreate(t, s, testDoc("alice"))
	if err := s.Reset(context.Background(), "alice", 1); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := s.Get(context.Background(), "alice", 1); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Get after Reset = %v, want ErrNotFound", err)
	}
	if err := s.Reset(context.Background(), "alice", 1); err != nil {
		t.Fatalf("Reset of missing doc: %v", err)
	}
}

func TestEventRecorder(t *testing.T) {
	r := NewEventRecorder()
	ev := storage.Event{Kind: storage.EventCollect, Owner: "alice", Target: "contact_courier"}
	if err := r.Append(context.Background(), ev); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got := r.Events()
	if len(got) != 1 || got[0].Kind != storage.EventCollect {
		t.Fatalf("Events = %+v", got)
	}
}

func TestDueCharges(t *testing.T) {
	s := New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	alice := testDoc("alice")
	alice.Charging = []game.ChargeJob{
		{Path: "n1", Start: now.Add(-time.Minute), End: now.Add(-time.Second), Result: game.Yield{Cash: 40}},
		{Path: "n2", Start: now, End: now.Add(time.Minute), Result: game.Yield{Cash: 10}},
	}
	mustCreate(t, s, alice)
	mustCreate(t, s, testDoc("bob"))

	due, err := s.DueCharges(context.Background(), now, 0)
	if err != nil {
		t.Fatalf("DueCharges: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("due = %v, want the one expired charge", due)
	}
	if due[0].Owner != "alice" || due[0].Path != "n1" {
		t.Fatalf("due[0] = %+v", due[0])
	}
	if !due[0].Start.Equal(now.Add(-time.Minute)) {
		t.Fatalf("due start = %v", due[0].Start)
	}
}
