// Package missions advances mission goals in reaction to game events and
// cascades mission completions. A Tracker is a private per-operation view
// over the operation's staged document: handlers mutate the document's
// goal state in place, and the engine folds the summed rewards into the
// same conditional write.
package missions

import (
	"fmt"
	"slices"
	"time"

	"github.com/datadealer/dd-app/internal/game"
	"github.com/datadealer/dd-app/internal/platform/id"
	"github.com/datadealer/dd-app/internal/rules"
)

// Tracker mutates one staged document's mission state.
type Tracker struct {
	rs  *rules.Ruleset
	doc *game.Document

	touched   []string
	completed []string
}

// NewTracker builds a tracker over the operation's staged document.
func NewTracker(rs *rules.Ruleset, doc *game.Document) *Tracker {
	return &Tracker{rs: rs, doc: doc}
}

// Completed lists the missions completed so far, in completion order.
func (t *Tracker) Completed() []string {
	return slices.Clone(t.completed)
}

func (t *Tracker) activeGoals(workflow game.Workflow, target string, byProject bool) []*game.Goal {
	var out []*game.Goal
	for i := range t.doc.Goals {
		g := &t.doc.Goals[i]
		if g.Complete || g.Workflow != workflow {
			continue
		}
		match := g.Target
		if byProject {
			match = g.Project
		}
		// An empty goal target matches any source, for goals like
		// "collect N profiles" that do not care where they come from.
		if match == "" || match == target {
			out = append(out, g)
		}
	}
	return out
}

func (t *Tracker) touch(mission string) {
	if !slices.Contains(t.touched, mission) {
		t.touched = append(t.touched, mission)
	}
}

func (t *Tracker) completeGoal(g *game.Goal) {
	g.Complete = true
	t.touch(g.Mission)
}

// HandleAcquire reacts to an entity purchase. It reports whether any
// active goal matched.
func (t *Tracker) HandleAcquire(gestalt string) (bool, error) {
	goals := t.activeGoals(game.WorkflowAcquire, gestalt, false)
	if len(goals) == 0 {
		return false, nil
	}
	for _, g := range goals {
		t.completeGoal(g)
	}
	return true, t.resolve()
}

// HandlePowerup reacts to an add-on installed on a host project.
func (t *Tracker) HandlePowerup(project, powerup string) (bool, error) {
	matched := false
	for _, g := range t.activeGoals(game.WorkflowPowerup, project, true) {
		if g.Target != powerup {
			continue
		}
		t.completeGoal(g)
		matched = true
	}
	if !matched {
		return false, nil
	}
	return true, t.resolve()
}

// HandleCharge reacts to a charge cycle started on an entity gestalt.
func (t *Tracker) HandleCharge(gestalt string) (bool, error) {
	goals := t.activeGoals(game.WorkflowCharge, gestalt, false)
	if len(goals) == 0 {
		return false, nil
	}
	for _, g := range goals {
		t.completeGoal(g)
	}
	return true, t.resolve()
}

// HandleUpgrade reacts to a token top-up.
func (t *Tracker) HandleUpgrade(token string) (bool, error) {
	goals := t.activeGoals(game.WorkflowUpgrade, token, false)
	if len(goals) == 0 {
		return false, nil
	}
	for _, g := range goals {
		t.completeGoal(g)
	}
	return true, t.resolve()
}

// HandleAccumulate reacts to a change of a token's pool amount. The goal
// compares its target amount against the absolute holdings, the 0-100
// share scaled by the current population.
func (t *Tracker) HandleAccumulate(token string) (bool, error) {
	goals := t.activeGoals(game.WorkflowAccumulate, token, false)
	if len(goals) == 0 {
		return false, nil
	}
	matched := false
	for _, g := range goals {
		matched = true
		if t.absoluteTokenAmount(token) >= g.Amount {
			t.completeGoal(g)
		} else {
			t.touch(g.Mission)
		}
	}
	if !matched {
		return false, nil
	}
	return true, t.resolve()
}

// HandleCollect increments cash or profile collection goals and
// completes the ones that just reached their target.
func (t *Tracker) HandleCollect(workflow game.Workflow, target string, amount float64) (bool, error) {
	goals := t.activeGoals(workflow, target, false)
	if len(goals) == 0 {
		return false, nil
	}
	for _, g := range goals {
		g.Current += amount
		if g.Current >= g.Amount {
			t.completeGoal(g)
		} else {
			t.touch(g.Mission)
		}
	}
	return true, t.resolve()
}

func (t *Tracker) absoluteTokenAmount(token string) float64 {
	share := t.doc.TokenAmounts()[token]
	return share * float64(t.doc.Values.Profiles) / 100
}

// resolve completes every touched mission with no active goals left,
// unlocks its successors and immediately completes unlocked goals the
// current state already satisfies. The visited set stops a content cycle
// from recursing forever; acyclic content never trips it.
func (t *Tracker) resolve() error {
	visited := make(map[string]bool)
	touched := t.touched
	t.touched = nil
	return t.resolveMissions(touched, visited)
}

func (t *Tracker) resolveMissions(missions []string, visited map[string]bool) error {
	for _, mission := range missions {
		if t.missionDone(mission) {
			if err := t.completeMission(mission, visited); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Tracker) missionDone(mission string) bool {
	for i := range t.doc.Goals {
		g := &t.doc.Goals[i]
		if g.Mission == mission && !g.Complete {
			return false
		}
	}
	return true
}

func (t *Tracker) completeMission(mission string, visited map[string]bool) error {
	if visited[mission] {
		return nil
	}
	visited[mission] = true

	t.doc.Goals = slices.DeleteFunc(t.doc.Goals, func(g game.Goal) bool {
		return g.Mission == mission
	})
	t.doc.ActiveMissions = slices.DeleteFunc(t.doc.ActiveMissions, func(m string) bool {
		return m == mission
	})
	if !slices.Contains(t.completed, mission) {
		t.completed = append(t.completed, mission)
	}

	successors := t.rs.NextMissions(mission)
	newGoals, err := rules.GoalsForMissions(successors)
	if err != nil {
		return err
	}
	start := len(t.doc.Goals)
	t.doc.Goals = append(t.doc.Goals, newGoals...)
	for _, m := range successors {
		if !slices.Contains(t.doc.ActiveMissions, m.Gestalt) {
			t.doc.ActiveMissions = append(t.doc.ActiveMissions, m.Gestalt)
		}
	}

	var recheck []string
	for i := start; i < len(t.doc.Goals); i++ {
		g := &t.doc.Goals[i]
		if t.initiallySatisfied(g) {
			g.Complete = true
			if !slices.Contains(recheck, g.Mission) {
				recheck = append(recheck, g.Mission)
			}
		}
	}
	return t.resolveMissions(recheck, visited)
}

// initiallySatisfied reports whether the current document state already
// fulfills a freshly unlocked goal. Only presence and accumulation goals
// qualify; event goals wait for their event.
func (t *Tracker) initiallySatisfied(g *game.Goal) bool {
	switch g.Workflow {
	case game.WorkflowAcquire:
		for _, n := range t.doc.Nodes {
			if n.Gestalt == g.Target {
				return true
			}
		}
	case game.WorkflowPowerup:
		for _, n := range t.doc.Nodes {
			if n.Gestalt == g.Project && n.Instance.HasPowerup(g.Target) {
				return true
			}
		}
	case game.WorkflowAccumulate:
		return t.absoluteTokenAmount(g.Target) >= g.Amount
	}
	return false
}

// Rewards sums the payouts of every mission completed by this tracker.
// Profile-set rewards become queued deliveries ready to integrate.
type Rewards struct {
	AP         int
	XP         int64
	Cash       int64
	Karma      int
	Deliveries []game.Delivery
}

// Rewards tallies the completed missions' rewards once.
func (t *Tracker) Rewards(now time.Time) (Rewards, error) {
	var out Rewards
	for _, gestalt := range t.completed {
		m, err := t.rs.Mission(gestalt)
		if err != nil {
			return Rewards{}, err
		}
		out.AP += m.Rewards.AP
		out.XP += m.Rewards.XP
		out.Cash += m.Rewards.Cash
		out.Karma += m.Rewards.Karma
		for _, ps := range m.Rewards.ProfileSets {
			collectID, err := id.NewID()
			if err != nil {
				return Rewards{}, err
			}
			tokens := make(map[string]float64, len(ps.Tokens))
			for k, v := range ps.Tokens {
				tokens[k] = v
			}
			out.Deliveries = append(out.Deliveries, game.Delivery{
				Origin:     fmt.Sprintf("mission.%s", gestalt),
				CollectID:  collectID,
				ProfileSet: game.ProfileSet{Profiles: ps.Profiles, Tokens: tokens},
				QueuedAt:   now,
			})
		}
	}
	return out, nil
}
