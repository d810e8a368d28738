package rules

import (
	"time"

	"github.com/datadealer/dd-app/internal/game"
	"github.com/datadealer/dd-app/internal/platform/id"
)

// GoalsForMissions generates the runtime goals for freshly unlocked
// missions, each with a new goal id.
func GoalsForMissions(missions []*MissionDef) ([]game.Goal, error) {
	var goals []game.Goal
	for _, m := range missions {
		for _, g := range m.Goals {
			goalID, err := id.NewID()
			if err != nil {
				return nil, err
			}
			goals = append(goals, game.Goal{
				ID:       goalID,
				Mission:  m.Gestalt,
				Workflow: game.Workflow(g.Workflow),
				Target:   g.Target,
				Project:  g.Project,
				Amount:   g.Amount,
			})
		}
	}
	return goals, nil
}

// NewGame builds the starting document for an owner: the default entity
// tree with fresh node ids, the starting values with a full action point
// snapshot, and the initially active missions with generated goals.
func (rs *Ruleset) NewGame(owner string, now time.Time) (*game.Document, error) {
	doc := &game.Document{
		Owner:    owner,
		Version:  rs.Version,
		Revision: 0,
		Values: game.Values{
			Cash:        rs.DefaultGame.Cash,
			Karma:       rs.DefaultGame.Karma,
			Level:       rs.Levels[0].Level,
			Profiles:    rs.DefaultGame.Profiles,
			ProfilesMax: rs.DefaultGame.ProfilesMax,
			APSnapshot:  rs.Levels[0].APMax,
			APUpdated:   now,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	var attach func(def DefaultNode, parentPath string) error
	attach = func(def DefaultNode, parentPath string) error {
		entity, err := rs.Entity(def.Gestalt)
		if err != nil {
			return err
		}
		kind, err := rs.EntityKind(entity)
		if err != nil {
			return err
		}
		nodeID, err := id.NewID()
		if err != nil {
			return err
		}
		node := &game.Node{
			ID:      nodeID,
			Kind:    kind,
			Gestalt: def.Gestalt,
			Path:    game.JoinPath(parentPath, nodeID),
		}
		if kind == game.KindToken {
			node.Path = game.JoinPath(game.PoolRootPath, nodeID)
		}
		doc.Nodes = append(doc.Nodes, node)
		for _, child := range def.Children {
			if err := attach(child, node.Path); err != nil {
				return err
			}
		}
		return nil
	}
	for _, root := range rs.DefaultGame.Nodes {
		if err := attach(root, ""); err != nil {
			return nil, err
		}
	}

	initial := rs.NextMissions("")
	goals, err := GoalsForMissions(initial)
	if err != nil {
		return nil, err
	}
	doc.Goals = goals
	for _, m := range initial {
		doc.ActiveMissions = append(doc.ActiveMissions, m.Gestalt)
	}
	return doc, nil
}
