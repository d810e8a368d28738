package game

import (
	"testing"
	"time"
)

func TestJoinPath(t *testing.T) {
	if got := JoinPath("", "abc"); got != "abc" {
		t.Fatalf("root path: got %q", got)
	}
	if got := JoinPath("a.b", "c"); got != "a.b.c" {
		t.Fatalf("nested path: got %q", got)
	}
}

func TestParentPath(t *testing.T) {
	n := &Node{Path: "a.b.c"}
	if got := n.ParentPath(); got != "a.b" {
		t.Fatalf("got %q, want a.b", got)
	}
	root := &Node{Path: "a"}
	if got := root.ParentPath(); got != "" {
		t.Fatalf("root parent: got %q", got)
	}
}

func TestUnderSubtree(t *testing.T) {
	n := &Node{Path: "a.b.c"}
	if !n.UnderSubtree("a") {
		t.Fatal("a.b.c should be under a")
	}
	if !n.UnderSubtree("a.b") {
		t.Fatal("a.b.c should be under a.b")
	}
	if n.UnderSubtree("a.b.c") {
		t.Fatal("a node is not under its own path")
	}
	sibling := &Node{Path: "ab.c"}
	if sibling.UnderSubtree("a") {
		t.Fatal("prefix match must respect separators")
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("client")
	if err != nil {
		t.Fatalf("ParseKind: %v", err)
	}
	if k != KindClient {
		t.Fatalf("got %q, want %q", k, KindClient)
	}
	if _, err := ParseKind("warlock"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestClampKarma(t *testing.T) {
	v := Values{Karma: 95}
	v.AddKarma(20)
	if v.Karma != KarmaMax {
		t.Fatalf("got %d, want %d", v.Karma, KarmaMax)
	}
	v.AddKarma(-300)
	if v.Karma != KarmaMin {
		t.Fatalf("got %d, want %d", v.Karma, KarmaMin)
	}
	v.AddKarma(50)
	if v.Karma != KarmaMin+50 {
		t.Fatalf("got %d, want %d", v.Karma, KarmaMin+50)
	}
}

func TestDocumentLookups(t *testing.T) {
	doc := &Document{
		Nodes: []*Node{
			{ID: "c1", Kind: KindCity, Gestalt: "city_1", Path: "c1"},
			{ID: "t1", Kind: KindToken, Gestalt: "token_email", Path: "pool.t1", Instance: Instance{Amount: 42}},
		},
		Charging:   []ChargeJob{{Path: "c1.p1"}},
		Ready:      []Collectible{{Path: "c1.p2"}},
		Deliveries: []Delivery{{CollectID: "d1"}},
	}

	if doc.NodeByPath("c1") == nil {
		t.Fatal("NodeByPath missed existing node")
	}
	if doc.NodeByPath("nope") != nil {
		t.Fatal("NodeByPath found missing node")
	}
	if doc.TokenNode("token_email") == nil {
		t.Fatal("TokenNode missed token")
	}
	if got := doc.TokenAmounts()["token_email"]; got != 42 {
		t.Fatalf("TokenAmounts: got %v, want 42", got)
	}
	if doc.ChargeJobFor("c1.p1") == nil {
		t.Fatal("ChargeJobFor missed job")
	}
	if doc.CollectibleFor("c1.p2") == nil {
		t.Fatal("CollectibleFor missed result")
	}
	if doc.DeliveryByID("d1") == nil {
		t.Fatal("DeliveryByID missed delivery")
	}
}

func TestDocumentRemove(t *testing.T) {
	doc := &Document{
		Charging:   []ChargeJob{{Path: "a"}, {Path: "b"}},
		Ready:      []Collectible{{Path: "a"}},
		Deliveries: []Delivery{{CollectID: "d1"}},
	}
	if !doc.RemoveChargeJob("a") {
		t.Fatal("RemoveChargeJob should report removal")
	}
	if doc.RemoveChargeJob("a") {
		t.Fatal("second removal should report miss")
	}
	if len(doc.Charging) != 1 || doc.Charging[0].Path != "b" {
		t.Fatalf("unexpected charging queue: %+v", doc.Charging)
	}
	if !doc.RemoveCollectible("a") || doc.RemoveCollectible("a") {
		t.Fatal("RemoveCollectible removal accounting wrong")
	}
	if !doc.RemoveDelivery("d1") || doc.RemoveDelivery("d1") {
		t.Fatal("RemoveDelivery removal accounting wrong")
	}
}

func TestDocumentCloneIndependence(t *testing.T) {
	start := time.Now()
	cost := int64(10)
	doc := &Document{
		Owner:    "o1",
		Revision: 3,
		Values:   Values{Cash: 100, Karma: 5},
		Nodes: []*Node{{
			ID: "p1", Kind: KindProject, Gestalt: "proj", Path: "c1.x1.p1",
			Instance: Instance{
				Powerups:   []PowerupSlot{{Slot: 0, Gestalt: "pow"}},
				Slots:      map[string]int{"powerup": 2},
				ChargeCost: &cost,
				LastTopUp:  &TopUp{Profiles: 50, Amounts: map[string]float64{"t": 1}},
			},
		}},
		Charging: []ChargeJob{{
			Path: "c1.x1.p1", Start: start,
			Result: Yield{ProfileSet: &ProfileSet{Profiles: 7, Tokens: map[string]float64{"t": 2}}},
		}},
		Deliveries: []Delivery{{
			CollectID:  "d1",
			ProfileSet: ProfileSet{Profiles: 3, Tokens: map[string]float64{"t": 1}},
		}},
		Goals:          []Goal{{ID: "g1", Mission: "m1"}},
		ActiveMissions: []string{"m1"},
	}

	cp := doc.Clone()

	cp.Values.Cash = 0
	cp.Nodes[0].Instance.Powerups[0].Gestalt = "other"
	cp.Nodes[0].Instance.Slots["powerup"] = 9
	*cp.Nodes[0].Instance.ChargeCost = 99
	cp.Nodes[0].Instance.LastTopUp.Amounts["t"] = 9
	cp.Charging[0].Result.ProfileSet.Tokens["t"] = 9
	cp.Deliveries[0].ProfileSet.Tokens["t"] = 9
	cp.Goals[0].Complete = true
	cp.ActiveMissions[0] = "m2"

	if doc.Values.Cash != 100 {
		t.Fatal("clone aliased Values")
	}
	if doc.Nodes[0].Instance.Powerups[0].Gestalt != "pow" {
		t.Fatal("clone aliased powerups")
	}
	if doc.Nodes[0].Instance.Slots["powerup"] != 2 {
		t.Fatal("clone aliased slots map")
	}
	if *doc.Nodes[0].Instance.ChargeCost != 10 {
		t.Fatal("clone aliased charge cost pointer")
	}
	if doc.Nodes[0].Instance.LastTopUp.Amounts["t"] != 1 {
		t.Fatal("clone aliased top-up amounts")
	}
	if doc.Charging[0].Result.ProfileSet.Tokens["t"] != 2 {
		t.Fatal("clone aliased charge result")
	}
	if doc.Deliveries[0].ProfileSet.Tokens["t"] != 1 {
		t.Fatal("clone aliased delivery profile set")
	}
	if doc.Goals[0].Complete {
		t.Fatal("clone aliased goals")
	}
	if doc.ActiveMissions[0] != "m1" {
		t.Fatal("clone aliased active missions")
	}
}
