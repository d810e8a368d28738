// Package game defines the persistent player state: one document per
// (owner, ruleset version) holding scalar values, the entity node tree,
// pending work queues and mission progress, versioned by a revision
// counter for optimistic concurrency.
package game

import (
	"slices"
	"time"
)

// Document is the single unit of persistence and concurrency control.
// The revision advances by exactly one per accepted mutation; a write is
// accepted only against the revision observed at read time.
type Document struct {
	Owner    string `json:"owner"`
	Version  int    `json:"version"`
	Revision uint64 `json:"revision"`

	Values Values  `json:"values"`
	Nodes  []*Node `json:"nodes"`

	// Charging, Ready and Deliveries are transient work queues; each item
	// is consumed exactly once.
	Charging   []ChargeJob   `json:"charging,omitempty"`
	Ready      []Collectible `json:"ready,omitempty"`
	Deliveries []Delivery    `json:"deliveries,omitempty"`

	Goals          []Goal   `json:"goals,omitempty"`
	ActiveMissions []string `json:"active_missions,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NodeByPath returns the node at path, or nil.
func (d *Document) NodeByPath(path string) *Node {
	for _, n := range d.Nodes {
		if n.Path == path {
			return n
		}
	}
	return nil
}

// TokenNode returns the pool node for a token gestalt, or nil.
func (d *Document) TokenNode(gestalt string) *Node {
	for _, n := range d.Nodes {
		if n.Kind == KindToken && n.Gestalt == gestalt {
			return n
		}
	}
	return nil
}

// TokenAmounts maps each owned token gestalt to its pool amount.
func (d *Document) TokenAmounts() map[string]float64 {
	out := make(map[string]float64)
	for _, n := range d.Nodes {
		if n.Kind == KindToken {
			out[n.Gestalt] = n.Instance.Amount
		}
	}
	return out
}

// Gestalten lists the gestalt of every owned node.
func (d *Document) Gestalten() []string {
	out := make([]string, 0, len(d.Nodes))
	for _, n := range d.Nodes {
		out = append(out, n.Gestalt)
	}
	return out
}

// ChargeJobFor returns the running charge for path, or nil.
func (d *Document) ChargeJobFor(path string) *ChargeJob {
	for i := range d.Charging {
		if d.Charging[i].Path == path {
			return &d.Charging[i]
		}
	}
	return nil
}

// CollectibleFor returns the ready result for path, or nil.
func (d *Document) CollectibleFor(path string) *Collectible {
	for i := range d.Ready {
		if d.Ready[i].Path == path {
			return &d.Ready[i]
		}
	}
	return nil
}

// DeliveryByID returns the queued profile set with the collect id, or nil.
func (d *Document) DeliveryByID(collectID string) *Delivery {
	for i := range d.Deliveries {
		if d.Deliveries[i].CollectID == collectID {
			return &d.Deliveries[i]
		}
	}
	return nil
}

// RemoveChargeJob drops the running charge for path, reporting whether one
// existed.
func (d *Document) RemoveChargeJob(path string) bool {
	before := len(d.Charging)
	d.Charging = slices.DeleteFunc(d.Charging, func(j ChargeJob) bool {
		return j.Path == path
	})
	return len(d.Charging) != before
}

// RemoveCollectible drops the ready result for path, reporting whether one
// existed.
func (d *Document) RemoveCollectible(path string) bool {
	before := len(d.Ready)
	d.Ready = slices.DeleteFunc(d.Ready, func(c Collectible) bool {
		return c.Path == path
	})
	return len(d.Ready) != before
}

// RemoveDelivery drops the queued profile set with the collect id,
// reporting whether one existed.
func (d *Document) RemoveDelivery(collectID string) bool {
	before := len(d.Deliveries)
	d.Deliveries = slices.DeleteFunc(d.Deliveries, func(del Delivery) bool {
		return del.CollectID == collectID
	})
	return len(d.Deliveries) != before
}

// GoalByID returns the goal with the id, or nil.
func (d *Document) GoalByID(id string) *Goal {
	for i := range d.Goals {
		if d.Goals[i].ID == id {
			return &d.Goals[i]
		}
	}
	return nil
}

// Clone deep-copies the document so a staged mutation never aliases the
// snapshot it was computed from.
func (d *Document) Clone() *Document {
	out := *d
	out.Nodes = make([]*Node, len(d.Nodes))
	for i, n := range d.Nodes {
		cp := *n
		cp.Instance = n.Instance.clone()
		out.Nodes[i] = &cp
	}
	out.Charging = cloneYieldSlice(d.Charging, func(j ChargeJob) ChargeJob {
		j.Result = j.Result.clone()
		return j
	})
	out.Ready = cloneYieldSlice(d.Ready, func(c Collectible) Collectible {
		c.Result = c.Result.clone()
		return c
	})
	out.Deliveries = cloneYieldSlice(d.Deliveries, func(del Delivery) Delivery {
		del.ProfileSet = *del.ProfileSet.clone()
		return del
	})
	out.Goals = slices.Clone(d.Goals)
	out.ActiveMissions = slices.Clone(d.ActiveMissions)
	return &out
}

func cloneYieldSlice[T any](in []T, cp func(T) T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	for i, v := range in {
		out[i] = cp(v)
	}
	return out
}

func (y Yield) clone() Yield {
	out := y
	if y.ProfileSet != nil {
		out.ProfileSet = y.ProfileSet.clone()
	}
	if y.TokenTopUp != nil {
		out.TokenTopUp = make(map[string]float64, len(y.TokenTopUp))
		for k, v := range y.TokenTopUp {
			out.TokenTopUp[k] = v
		}
	}
	if y.TopUp != nil {
		out.TopUp = y.TopUp.clone()
	}
	return out
}

func (p *ProfileSet) clone() *ProfileSet {
	out := &ProfileSet{Profiles: p.Profiles}
	if p.Tokens != nil {
		out.Tokens = make(map[string]float64, len(p.Tokens))
		for k, v := range p.Tokens {
			out.Tokens[k] = v
		}
	}
	return out
}
