package missions

import (
	"slices"
	"testing"
	"time"

	"github.com/datadealer/dd-app/internal/game"
	"github.com/datadealer/dd-app/internal/rules"
)

func testRuleset(t *testing.T) *rules.Ruleset {
	t.Helper()
	c, err := rules.NewCatalog()
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	rs, err := c.Ruleset(rules.DefaultVersion, "en")
	if err != nil {
		t.Fatalf("Ruleset: %v", err)
	}
	return rs
}

func testDoc(t *testing.T, rs *rules.Ruleset) *game.Document {
	t.Helper()
	doc, err := rs.NewGame("owner-1", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	return doc
}

func addNode(doc *game.Document, gestalt string, kind game.Kind, path string) {
	doc.Nodes = append(doc.Nodes, &game.Node{ID: path, Kind: kind, Gestalt: gestalt, Path: path})
}

func TestHandleAcquireNoMatch(t *testing.T) {
	rs := testRuleset(t)
	tr := NewTracker(rs, testDoc(t, rs))

	matched, err := tr.HandleAcquire("proxy_basement")
	if err != nil {
		t.Fatalf("HandleAcquire: %v", err)
	}
	if matched {
		t.Fatal("no active goal targets proxy_basement initially")
	}
	if len(tr.Completed()) != 0 {
		t.Fatalf("completed: %v", tr.Completed())
	}
}

func TestHandleAcquireCompletesMission(t *testing.T) {
	rs := testRuleset(t)
	doc := testDoc(t, rs)
	tr := NewTracker(rs, doc)

	matched, err := tr.HandleAcquire("contact_courier")
	if err != nil {
		t.Fatalf("HandleAcquire: %v", err)
	}
	if !matched {
		t.Fatal("the initial mission targets contact_courier")
	}
	if !slices.Equal(tr.Completed(), []string{"m_first_contact"}) {
		t.Fatalf("completed: %v", tr.Completed())
	}

	// Successors unlocked with fresh goals; the completed mission's
	// goals are gone.
	if slices.Contains(doc.ActiveMissions, "m_first_contact") {
		t.Fatal("completed mission still active")
	}
	if !slices.Contains(doc.ActiveMissions, "m_first_charge") ||
		!slices.Contains(doc.ActiveMissions, "m_networker") {
		t.Fatalf("active missions: %v", doc.ActiveMissions)
	}
	for _, g := range doc.Goals {
		if g.Mission == "m_first_contact" {
			t.Fatalf("stale goal: %+v", g)
		}
	}

	rewards, err := tr.Rewards(time.Now())
	if err != nil {
		t.Fatalf("Rewards: %v", err)
	}
	if rewards.XP != 10 || rewards.Cash != 100 {
		t.Fatalf("rewards: %+v", rewards)
	}
}

func TestCascadeCompletesSatisfiedUnlocks(t *testing.T) {
	rs := testRuleset(t)
	doc := testDoc(t, rs)
	// The player already owns what m_networker will ask for.
	addNode(doc, "proxy_basement", game.KindProxy, "c.x1")
	addNode(doc, "project_mailer", game.KindProject, "c.x1.p1")
	tr := NewTracker(rs, doc)

	if _, err := tr.HandleAcquire("contact_courier"); err != nil {
		t.Fatalf("HandleAcquire: %v", err)
	}

	if !slices.Equal(tr.Completed(), []string{"m_first_contact", "m_networker"}) {
		t.Fatalf("completed: %v", tr.Completed())
	}
	// m_networker's successor is now active, its unsatisfied powerup
	// goal pending.
	if !slices.Contains(doc.ActiveMissions, "m_booster") {
		t.Fatalf("active missions: %v", doc.ActiveMissions)
	}

	rewards, err := tr.Rewards(time.Now())
	if err != nil {
		t.Fatalf("Rewards: %v", err)
	}
	if rewards.XP != 40 || rewards.Cash != 350 {
		t.Fatalf("cascaded rewards summed once: %+v", rewards)
	}
}

func TestHandleCollectIncrements(t *testing.T) {
	rs := testRuleset(t)
	doc := testDoc(t, rs)
	doc.Goals = []game.Goal{{
		ID: "g1", Mission: "m_collector",
		Workflow: game.WorkflowCollectProfiles, Amount: 200,
	}}
	doc.ActiveMissions = []string{"m_collector"}
	tr := NewTracker(rs, doc)

	matched, err := tr.HandleCollect(game.WorkflowCollectProfiles, "", 120)
	if err != nil {
		t.Fatalf("HandleCollect: %v", err)
	}
	if !matched {
		t.Fatal("collect goal should match")
	}
	if len(tr.Completed()) != 0 {
		t.Fatalf("mission complete too early: %v", tr.Completed())
	}
	if doc.Goals[0].Current != 120 {
		t.Fatalf("current: %v", doc.Goals[0].Current)
	}

	if _, err := tr.HandleCollect(game.WorkflowCollectProfiles, "", 100); err != nil {
		t.Fatalf("HandleCollect: %v", err)
	}
	if !slices.Equal(tr.Completed(), []string{"m_collector"}) {
		t.Fatalf("completed: %v", tr.Completed())
	}

	rewards, err := tr.Rewards(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Rewards: %v", err)
	}
	if len(rewards.Deliveries) != 1 {
		t.Fatalf("deliveries: %+v", rewards.Deliveries)
	}
	d := rewards.Deliveries[0]
	if d.Origin != "mission.m_collector" || d.ProfileSet.Profiles != 150 || d.CollectID == "" {
		t.Fatalf("delivery: %+v", d)
	}
}

func TestHandleAccumulateAbsoluteAmount(t *testing.T) {
	rs := testRuleset(t)
	doc := testDoc(t, rs)
	doc.Values.Profiles = 1000
	doc.Goals = []game.Goal{{
		ID: "g1", Mission: "m_upgrader",
		Workflow: game.WorkflowAccumulate, Target: "tk_email", Amount: 500,
	}}
	doc.ActiveMissions = []string{"m_upgrader"}
	addNode(doc, "tk_email", game.KindToken, "pool.t1")
	doc.Nodes[len(doc.Nodes)-1].Instance.Amount = 40 // 400 absolute
	tr := NewTracker(rs, doc)

	if _, err := tr.HandleAccumulate("tk_email"); err != nil {
		t.Fatalf("HandleAccumulate: %v", err)
	}
	if len(tr.Completed()) != 0 {
		t.Fatalf("400 absolute must not reach 500: %v", tr.Completed())
	}

	doc.TokenNode("tk_email").Instance.Amount = 60 // 600 absolute
	if _, err := tr.HandleAccumulate("tk_email"); err != nil {
		t.Fatalf("HandleAccumulate: %v", err)
	}
	if !slices.Equal(tr.Completed(), []string{"m_upgrader"}) {
		t.Fatalf("completed: %v", tr.Completed())
	}
}

func TestHandlePowerupScopedToProject(t *testing.T) {
	rs := testRuleset(t)
	doc := testDoc(t, rs)
	doc.Goals = []game.Goal{{
		ID: "g1", Mission: "m_booster",
		Workflow: game.WorkflowPowerup, Target: "pow_spambooster", Project: "project_mailer",
	}}
	doc.ActiveMissions = []string{"m_booster"}
	tr := NewTracker(rs, doc)

	matched, err := tr.HandlePowerup("project_tracker", "pow_spambooster")
	if err != nil {
		t.Fatalf("HandlePowerup: %v", err)
	}
	if matched {
		t.Fatal("wrong host project must not match")
	}

	matched, err = tr.HandlePowerup("project_mailer", "pow_cloaker")
	if err != nil {
		t.Fatalf("HandlePowerup: %v", err)
	}
	if matched {
		t.Fatal("wrong add-on must not match")
	}

	matched, err = tr.HandlePowerup("project_mailer", "pow_spambooster")
	if err != nil {
		t.Fatalf("HandlePowerup: %v", err)
	}
	if !matched || !slices.Equal(tr.Completed(), []string{"m_booster"}) {
		t.Fatalf("completed: %v", tr.Completed())
	}
}

func TestCycleGuard(t *testing.T) {
	// A mission listed as its own successor must complete exactly once
	// instead of recursing.
	rs := &rules.Ruleset{
		Version: 1,
		Missions: []*rules.MissionDef{
			{
				Gestalt:         "m_loop",
				RequiredMission: "m_loop",
				Goals:           []rules.GoalDef{{Workflow: "acquire", Target: "x"}},
			},
		},
	}
	doc := &game.Document{
		Goals:          []game.Goal{{ID: "g1", Mission: "m_loop", Workflow: game.WorkflowAcquire, Target: "x"}},
		ActiveMissions: []string{"m_loop"},
	}
	addNode(doc, "x", game.KindContact, "c.a.x")
	tr := NewTracker(rs, doc)

	if _, err := tr.HandleAcquire("x"); err != nil {
		t.Fatalf("HandleAcquire: %v", err)
	}
	if !slices.Equal(tr.Completed(), []string{"m_loop"}) {
		t.Fatalf("completed: %v", tr.Completed())
	}
}
