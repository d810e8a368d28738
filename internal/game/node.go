package game

import (
	"slices"
	"strings"
	"time"
)

// PathSeparator joins ancestor ids into a node path.
const PathSeparator = "."

// PoolRootPath is the fixed path of the token pool root. The root is not a
// node itself; token nodes attach directly beneath it.
const PoolRootPath = "pool"

// Node is one owned entity instance in the game tree. Parent, child and
// sibling relations derive from path prefixes; nodes are mutated in place
// and removed only by a full game reset.
type Node struct {
	ID      string   `json:"id"`
	Kind    Kind     `json:"kind"`
	Gestalt string   `json:"gestalt"`
	Path    string   `json:"path"`
	Instance Instance `json:"instance"`
}

// Instance holds the kind-specific mutable fields of a node. Fields not
// used by a kind stay at their zero value and are omitted from storage.
type Instance struct {
	// Amount is the token fill on the 0-100 scale (token nodes).
	Amount float64 `json:"amount,omitempty"`
	// X and Y are board coordinates set by reposition operations.
	X int `json:"x,omitempty"`
	Y int `json:"y,omitempty"`
	// Powerups are the installed add-on slots (project nodes).
	Powerups []PowerupSlot `json:"powerups,omitempty"`
	// Slots counts purchased slot capacity by slot type (project nodes).
	Slots map[string]int `json:"slots,omitempty"`
	// Tokens overrides the definition token map once modifiers apply.
	Tokens []TokenAmount `json:"tokens,omitempty"`
	// ChargeCost, CollectAmount and CollectRisk override the definition
	// values once powerup modifiers apply; nil means "use the definition".
	ChargeCost    *int64 `json:"charge_cost,omitempty"`
	CollectAmount *int64 `json:"collect_amount,omitempty"`
	CollectRisk   *int   `json:"collect_risk,omitempty"`
	// ChargeStart marks a running charge cycle.
	ChargeStart *time.Time `json:"charge_start,omitempty"`
	// LastTopUp records top-up provenance so repeated token top-ups do
	// not re-count prior contributions.
	LastTopUp *TopUp `json:"last_top_up,omitempty"`
}

// PowerupSlot is an installed add-on occupying one numbered slot.
type PowerupSlot struct {
	Slot    int    `json:"slot"`
	Gestalt string `json:"gestalt"`
}

// TokenAmount pairs a token gestalt with a 0-100 scale amount.
type TokenAmount struct {
	Gestalt string  `json:"gestalt"`
	Amount  float64 `json:"amount"`
}

// TopUp is the provenance snapshot of the most recent token top-up: the
// population size at that time plus the per-token amounts contributed.
type TopUp struct {
	Profiles int64              `json:"profiles"`
	Amounts  map[string]float64 `json:"amounts,omitempty"`
}

// JoinPath appends an id to a parent path.
func JoinPath(parent, id string) string {
	if parent == "" {
		return id
	}
	return parent + PathSeparator + id
}

// ParentPath returns the path of the node's parent, or "" for a root.
func (n *Node) ParentPath() string {
	i := strings.LastIndex(n.Path, PathSeparator)
	if i < 0 {
		return ""
	}
	return n.Path[:i]
}

// UnderSubtree reports whether the node sits strictly below the given path.
func (n *Node) UnderSubtree(path string) bool {
	return strings.HasPrefix(n.Path, path+PathSeparator)
}

// HasPowerup reports whether the gestalt is installed in any slot.
func (in *Instance) HasPowerup(gestalt string) bool {
	return slices.ContainsFunc(in.Powerups, func(p PowerupSlot) bool {
		return p.Gestalt == gestalt
	})
}

// clone deep-copies the instance so staged mutations never alias a snapshot.
func (in Instance) clone() Instance {
	out := in
	out.Powerups = slices.Clone(in.Powerups)
	out.Tokens = slices.Clone(in.Tokens)
	if in.Slots != nil {
		out.Slots = make(map[string]int, len(in.Slots))
		for k, v := range in.Slots {
			out.Slots[k] = v
		}
	}
	if in.ChargeCost != nil {
		v := *in.ChargeCost
		out.ChargeCost = &v
	}
	if in.CollectAmount != nil {
		v := *in.CollectAmount
		out.CollectAmount = &v
	}
	if in.CollectRisk != nil {
		v := *in.CollectRisk
		out.CollectRisk = &v
	}
	if in.ChargeStart != nil {
		v := *in.ChargeStart
		out.ChargeStart = &v
	}
	if in.LastTopUp != nil {
		out.LastTopUp = in.LastTopUp.clone()
	}
	return out
}

func (t *TopUp) clone() *TopUp {
	out := &TopUp{Profiles: t.Profiles}
	if t.Amounts != nil {
		out.Amounts = make(map[string]float64, len(t.Amounts))
		for k, v := range t.Amounts {
			out.Amounts[k] = v
		}
	}
	return out
}
