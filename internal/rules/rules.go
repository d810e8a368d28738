// Package rules is the read-only content catalog: entity, token, add-on,
// level, mission and karma definitions per ruleset version and locale.
// Content ships embedded with the binary; a ruleset is immutable once
// loaded and safe to share across operations.
package rules

import (
	"fmt"
	"time"

	"github.com/datadealer/dd-app/internal/actionpoints"
	"github.com/datadealer/dd-app/internal/game"
	apperrors "github.com/datadealer/dd-app/internal/platform/errors"
)

// SlotRange bounds a purchasable slot type on an entity.
type SlotRange struct {
	Initial int `yaml:"initial"`
	Max     int `yaml:"max"`
}

// ProfileSetDef is a content-defined profile batch, delivered on city
// purchases and as a mission reward.
type ProfileSetDef struct {
	Profiles int64              `yaml:"profiles"`
	Tokens   map[string]float64 `yaml:"tokens"`
}

// EntityDef describes one buyable entity or token. Fields not meaningful
// for the entity's kind stay zero.
type EntityDef struct {
	Gestalt       string `yaml:"-"`
	Kind          string `yaml:"kind"`
	Name          string `yaml:"name"`
	Price         int64  `yaml:"price"`
	RequiredLevel int    `yaml:"required_level"`
	// RequiredProviders lists gestalten of which at least one must be
	// owned before this entity becomes attachable.
	RequiredProviders []string `yaml:"required_providers"`
	// Provided lists the gestalten attachable beneath this entity.
	Provided []string `yaml:"provided"`
	// MaxInstances widens the default one-per-subtree redundancy rule.
	MaxInstances int `yaml:"max_instances"`
	// MaxSlots caps how many child entities the entity can host.
	MaxSlots int `yaml:"max_slots"`

	// Token fields.
	Buyable         bool               `yaml:"buyable"`
	Origin          string             `yaml:"origin"`
	ContainedTokens map[string]float64 `yaml:"contained_tokens"`
	// RequiredTokens must all be held with a non-zero pool amount before
	// this token becomes attachable.
	RequiredTokens []string `yaml:"required_tokens"`

	// Charge and collect cycle.
	ChargeTimeMS  int64              `yaml:"charge_time_ms"`
	ChargeCost    int64              `yaml:"charge_cost"`
	CollectAPCost int                `yaml:"collect_ap_cost"`
	CollectAmount int64              `yaml:"collect_amount"`
	CollectRisk   int                `yaml:"collect_risk"`
	XPInc         int64              `yaml:"xp_inc"`
	Tokens        map[string]float64 `yaml:"tokens"`

	// Client income model.
	ConsumedTokens map[string]float64 `yaml:"consumed_tokens"`
	IncomeBase     int64              `yaml:"income_base"`
	IncomeFactor   int64              `yaml:"income_factor"`

	// City population.
	ProfilesMax int64          `yaml:"profiles_max"`
	ProfileSet  *ProfileSetDef `yaml:"profile_set"`

	// Slot capacity (project hosts).
	Slots    map[string]SlotRange `yaml:"slots"`
	SlotCost int64                `yaml:"slot_cost"`
}

// ChargeDuration returns the charge cycle length.
func (d *EntityDef) ChargeDuration() time.Duration {
	return time.Duration(d.ChargeTimeMS) * time.Millisecond
}

// PowerupMod is the set of overrides an installed add-on applies to one
// host project. Nil fields leave the host value untouched.
type PowerupMod struct {
	Project       string             `yaml:"project"`
	ChargeCost    *int64             `yaml:"charge_cost"`
	CollectAmount *int64             `yaml:"collect_amount"`
	CollectRisk   *int               `yaml:"collect_risk"`
	Tokens        map[string]float64 `yaml:"tokens"`
}

// PowerupDef describes one installable add-on.
type PowerupDef struct {
	Gestalt       string       `yaml:"-"`
	Name          string       `yaml:"name"`
	Price         int64        `yaml:"price"`
	RequiredLevel int          `yaml:"required_level"`
	SlotType      string       `yaml:"slot_type"`
	Projects      []PowerupMod `yaml:"projects"`
}

// ModFor returns the overrides this add-on applies to a host gestalt.
func (d *PowerupDef) ModFor(project string) *PowerupMod {
	for i := range d.Projects {
		if d.Projects[i].Project == project {
			return &d.Projects[i]
		}
	}
	return nil
}

// Level is one row of the progression table.
type Level struct {
	Level int `yaml:"level"`
	// XP is the threshold at which the level is reached.
	XP              int64 `yaml:"xp"`
	APIncIntervalMS int64 `yaml:"ap_inc_interval_ms"`
	APIncValue      int   `yaml:"ap_inc_value"`
	APMax           int   `yaml:"ap_max"`
}

// Rate converts the level's regeneration columns.
func (l Level) Rate() actionpoints.Rate {
	return actionpoints.Rate{IntervalMS: l.APIncIntervalMS, Increment: l.APIncValue, Max: l.APMax}
}

// GoalDef is one content-defined mission goal.
type GoalDef struct {
	Workflow string  `yaml:"workflow"`
	Target   string  `yaml:"target"`
	Project  string  `yaml:"project"`
	Amount   float64 `yaml:"amount"`
}

// RewardDef is the payout of a completed mission.
type RewardDef struct {
	AP          int             `yaml:"ap"`
	XP          int64           `yaml:"xp"`
	Cash        int64           `yaml:"cash"`
	Karma       int             `yaml:"karma"`
	ProfileSets []ProfileSetDef `yaml:"profile_sets"`
}

// MissionDef is one mission with its unlock prerequisite, goals and
// rewards. An empty RequiredMission marks an initially active mission.
type MissionDef struct {
	Gestalt         string    `yaml:"gestalt"`
	Name            string    `yaml:"name"`
	RequiredMission string    `yaml:"required_mission"`
	Goals           []GoalDef `yaml:"goals"`
	Rewards         RewardDef `yaml:"rewards"`
}

// KarmaOffer is a purchasable karma boost.
type KarmaOffer struct {
	Gestalt       string `yaml:"gestalt"`
	Name          string `yaml:"name"`
	Price         int64  `yaml:"price"`
	RequiredLevel int    `yaml:"required_level"`
	KarmaPoints   int    `yaml:"karma_points"`
}

// IncidentDef is a negative-karma event drawn after risky collects.
type IncidentDef struct {
	Gestalt       string `yaml:"gestalt"`
	Name          string `yaml:"name"`
	RequiredLevel int    `yaml:"required_level"`
	KarmaPoints   int    `yaml:"karma_points"`
}

// DefaultNode is one entry of the starting entity tree.
type DefaultNode struct {
	Gestalt  string        `yaml:"gestalt"`
	Children []DefaultNode `yaml:"children"`
}

// DefaultGame describes the document a new player starts with.
type DefaultGame struct {
	Cash        int64         `yaml:"cash"`
	Karma       int           `yaml:"karma"`
	Profiles    int64         `yaml:"profiles"`
	ProfilesMax int64         `yaml:"profiles_max"`
	Nodes       []DefaultNode `yaml:"nodes"`
}

// Ruleset is the full static content for one (version, locale) pair.
type Ruleset struct {
	Version     int                   `yaml:"version"`
	Locale      string                `yaml:"locale"`
	Entities    map[string]*EntityDef `yaml:"entities"`
	Powerups    map[string]*PowerupDef `yaml:"powerups"`
	Levels      []Level               `yaml:"levels"`
	Missions    []*MissionDef         `yaml:"missions"`
	KarmaOffers []*KarmaOffer         `yaml:"karma_offers"`
	Incidents   []*IncidentDef        `yaml:"incidents"`
	DefaultGame DefaultGame           `yaml:"default_game"`
}

// Entity resolves an entity or token definition. A miss is a content
// inconsistency, not a user error.
func (rs *Ruleset) Entity(gestalt string) (*EntityDef, error) {
	def, ok := rs.Entities[gestalt]
	if !ok {
		return nil, apperrors.New(apperrors.CodeRulesLookup,
			fmt.Sprintf("no entity definition for %q in ruleset %d", gestalt, rs.Version))
	}
	return def, nil
}

// EntityKind parses the definition's kind tag.
func (rs *Ruleset) EntityKind(def *EntityDef) (game.Kind, error) {
	return game.ParseKind(def.Kind)
}

// Powerup resolves an add-on definition.
func (rs *Ruleset) Powerup(gestalt string) (*PowerupDef, error) {
	def, ok := rs.Powerups[gestalt]
	if !ok {
		return nil, apperrors.New(apperrors.CodeRulesLookup,
			fmt.Sprintf("no add-on definition for %q in ruleset %d", gestalt, rs.Version))
	}
	return def, nil
}

// Mission resolves a mission definition.
func (rs *Ruleset) Mission(gestalt string) (*MissionDef, error) {
	for _, m := range rs.Missions {
		if m.Gestalt == gestalt {
			return m, nil
		}
	}
	return nil, apperrors.New(apperrors.CodeRulesLookup,
		fmt.Sprintf("no mission definition for %q in ruleset %d", gestalt, rs.Version))
}

// NextMissions lists the missions unlocked by completing required; the
// empty string lists the initially active missions.
func (rs *Ruleset) NextMissions(required string) []*MissionDef {
	var out []*MissionDef
	for _, m := range rs.Missions {
		if m.RequiredMission == required {
			out = append(out, m)
		}
	}
	return out
}

// KarmaOffer resolves a purchasable karma boost.
func (rs *Ruleset) KarmaOffer(gestalt string) (*KarmaOffer, error) {
	for _, k := range rs.KarmaOffers {
		if k.Gestalt == gestalt {
			return k, nil
		}
	}
	return nil, apperrors.New(apperrors.CodeRulesLookup,
		fmt.Sprintf("no karma offer %q in ruleset %d", gestalt, rs.Version))
}

// IncidentsForLevel lists the incidents eligible at a player level.
func (rs *Ruleset) IncidentsForLevel(level int) []*IncidentDef {
	var out []*IncidentDef
	for _, inc := range rs.Incidents {
		if level >= inc.RequiredLevel {
			out = append(out, inc)
		}
	}
	return out
}

// LevelForXP returns the highest level row whose threshold the experience
// value has reached. The table's first row is the floor.
func (rs *Ruleset) LevelForXP(xp int64) Level {
	best := rs.Levels[0]
	for _, l := range rs.Levels[1:] {
		if xp >= l.XP {
			best = l
		}
	}
	return best
}

// LevelInfo returns the row for a level number.
func (rs *Ruleset) LevelInfo(level int) Level {
	for _, l := range rs.Levels {
		if l.Level == level {
			return l
		}
	}
	return rs.Levels[len(rs.Levels)-1]
}
