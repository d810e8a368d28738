// Package tree validates and performs entity attachments in the owned
// game hierarchy. A Tree is a private per-operation view built from one
// document snapshot and the static ruleset; it is discarded after the
// operation and never shared.
package tree

import (
	"fmt"
	"iter"
	"sort"
	"strings"

	"github.com/datadealer/dd-app/internal/game"
	apperrors "github.com/datadealer/dd-app/internal/platform/errors"
	"github.com/datadealer/dd-app/internal/platform/id"
	"github.com/datadealer/dd-app/internal/rules"
)

// childKinds maps a parent kind to the kinds it may host. Leaf kinds are
// absent. Cities attach at the implicit root, tokens under the pool root.
var childKinds = map[game.Kind][]game.Kind{
	game.KindCity:   {game.KindPusher, game.KindProxy, game.KindAgent},
	game.KindPusher: {game.KindClient},
	game.KindAgent:  {game.KindContact},
	game.KindProxy:  {game.KindProject},
}

// Tree is a validation view over one document snapshot.
type Tree struct {
	rs  *rules.Ruleset
	doc *game.Document
}

// New builds the view. The document is the operation's staged copy;
// Attach mutates it directly.
func New(rs *rules.Ruleset, doc *game.Document) *Tree {
	return &Tree{rs: rs, doc: doc}
}

// parent is a resolved attachment target: an owned node or one of the two
// implicit roots (the top level hosting cities, the pool hosting tokens).
type parent struct {
	path string
	kind game.Kind
	node *game.Node
	root bool
	pool bool
}

func (t *Tree) resolveParent(parentPath string) (*parent, error) {
	switch parentPath {
	case "":
		return &parent{root: true}, nil
	case game.PoolRootPath:
		return &parent{path: game.PoolRootPath, pool: true}, nil
	}
	node := t.doc.NodeByPath(parentPath)
	if node == nil {
		return nil, apperrors.New(apperrors.CodeNotFound,
			fmt.Sprintf("no owned entity at %q", parentPath))
	}
	return &parent{path: parentPath, kind: node.Kind, node: node}, nil
}

// provided lists the gestalten the parent offers for attachment. The top
// root offers every city; the pool root offers buyable tokens not yet
// owned; a node offers its definition's provided list. Root and pool
// listings are sorted for a stable order.
func (t *Tree) provided(p *parent) []string {
	switch {
	case p.root:
		var out []string
		for gestalt, def := range t.rs.Entities {
			if def.Kind == string(game.KindCity) {
				out = append(out, gestalt)
			}
		}
		sort.Strings(out)
		return out
	case p.pool:
		owned := make(map[string]struct{})
		for _, n := range t.doc.Nodes {
			if n.Kind == game.KindToken {
				owned[n.Gestalt] = struct{}{}
			}
		}
		var out []string
		for gestalt, def := range t.rs.Entities {
			if def.Kind != string(game.KindToken) || !def.Buyable {
				continue
			}
			if _, ok := owned[gestalt]; !ok {
				out = append(out, gestalt)
			}
		}
		sort.Strings(out)
		return out
	default:
		def, err := t.rs.Entity(p.node.Gestalt)
		if err != nil {
			return nil
		}
		var out []string
		for _, gestalt := range def.Provided {
			if _, ok := t.rs.Entities[gestalt]; ok {
				out = append(out, gestalt)
			}
		}
		return out
	}
}

func (t *Tree) kindAllowed(kind game.Kind, p *parent) bool {
	switch {
	case p.root:
		return kind == game.KindCity
	case p.pool:
		return kind == game.KindToken
	default:
		for _, k := range childKinds[p.kind] {
			if k == kind {
				return true
			}
		}
		return false
	}
}

// CanAttach runs the full predicate chain for attaching a gestalt under a
// parent path. It returns nil when the attachment is legal, otherwise an
// error naming the first violated predicate.
func (t *Tree) CanAttach(gestalt, parentPath string) error {
	p, err := t.resolveParent(parentPath)
	if err != nil {
		return err
	}
	return t.checkAttach(gestalt, p)
}

func (t *Tree) checkAttach(gestalt string, p *parent) error {
	def, err := t.rs.Entity(gestalt)
	if err != nil {
		return err
	}
	kind, err := t.rs.EntityKind(def)
	if err != nil {
		return err
	}

	if !t.kindAllowed(kind, p) {
		return apperrors.New(apperrors.CodeKindNotAllowed,
			fmt.Sprintf("%s entities cannot attach under %q", kind, p.path))
	}
	found := false
	for _, g := range t.provided(p) {
		if g == gestalt {
			found = true
			break
		}
	}
	if !found {
		return apperrors.New(apperrors.CodeNotProvided,
			fmt.Sprintf("%q is not provided at %q", gestalt, p.path))
	}
	if kind == game.KindProject {
		if free := t.freeChildSlots(p.node); free <= 0 {
			return apperrors.New(apperrors.CodeSlotsFull,
				fmt.Sprintf("no free project slots at %q", p.path))
		}
	}
	if err := t.checkLevel(def, kind); err != nil {
		return err
	}
	if err := t.checkRedundancy(gestalt, kind, def, p); err != nil {
		return err
	}
	return t.checkExtraRequirements(gestalt, def, kind)
}

// checkLevel gates attachment on the player level. Pushers are exempt;
// their gate is the theoretical availability of a client beneath them.
func (t *Tree) checkLevel(def *rules.EntityDef, kind game.Kind) error {
	if kind == game.KindPusher {
		return nil
	}
	if t.doc.Values.Level < def.RequiredLevel {
		return apperrors.New(apperrors.CodeLevelLocked,
			fmt.Sprintf("%q requires level %d", def.Gestalt, def.RequiredLevel))
	}
	return nil
}

// checkRedundancy enforces the sibling rules: by default one instance of
// a gestalt per parent subtree; proxies allow up to MaxInstances under
// the same parent; projects allow one per enclosing city subtree.
func (t *Tree) checkRedundancy(gestalt string, kind game.Kind, def *rules.EntityDef, p *parent) error {
	switch kind {
	case game.KindProxy:
		count := 0
		for _, n := range t.doc.Nodes {
			if n.Gestalt == gestalt && n.UnderSubtree(p.path) {
				count++
			}
		}
		if count >= def.MaxInstances {
			return apperrors.New(apperrors.CodeDuplicateEntity,
				fmt.Sprintf("%q already at its %d instances under %q", gestalt, def.MaxInstances, p.path))
		}
	case game.KindProject:
		cityPath := parentPathOf(p.path)
		for _, n := range t.doc.Nodes {
			if n.Gestalt == gestalt && n.UnderSubtree(cityPath) {
				return apperrors.New(apperrors.CodeDuplicateEntity,
					fmt.Sprintf("%q already present in the city hosting %q", gestalt, p.path))
			}
		}
	case game.KindCity, game.KindToken:
		for _, n := range t.doc.Nodes {
			if n.Gestalt == gestalt {
				return apperrors.New(apperrors.CodeDuplicateEntity,
					fmt.Sprintf("%q already owned", gestalt))
			}
		}
	default:
		for _, n := range t.doc.Nodes {
			if n.Gestalt == gestalt && n.UnderSubtree(p.path) {
				return apperrors.New(apperrors.CodeDuplicateEntity,
					fmt.Sprintf("%q already present under %q", gestalt, p.path))
			}
		}
	}
	return nil
}

func (t *Tree) checkExtraRequirements(gestalt string, def *rules.EntityDef, kind game.Kind) error {
	switch kind {
	case game.KindClient:
		owned := make(map[string]struct{}, len(t.doc.Nodes))
		for _, n := range t.doc.Nodes {
			owned[n.Gestalt] = struct{}{}
		}
		for _, provider := range def.RequiredProviders {
			if _, ok := owned[provider]; ok {
				return nil
			}
		}
		return apperrors.New(apperrors.CodeRequirementsUnmet,
			fmt.Sprintf("%q needs one of its providers first", gestalt))
	case game.KindPusher:
		// At least one client beneath must be theoretically reachable,
		// ignoring redundancy against not-yet-existing siblings.
		for _, clientGestalt := range def.Provided {
			client, err := t.rs.Entity(clientGestalt)
			if err != nil {
				continue
			}
			clientKind, err := t.rs.EntityKind(client)
			if err != nil || clientKind != game.KindClient {
				continue
			}
			if t.checkLevel(client, clientKind) == nil &&
				t.checkExtraRequirements(clientGestalt, client, clientKind) == nil {
				return nil
			}
		}
		return apperrors.New(apperrors.CodeRequirementsUnmet,
			fmt.Sprintf("%q has no attachable client yet", gestalt))
	case game.KindToken:
		amounts := t.doc.TokenAmounts()
		for _, required := range def.RequiredTokens {
			if amounts[required] <= 0 {
				return apperrors.New(apperrors.CodeRequirementsUnmet,
					fmt.Sprintf("%q requires a non-empty %q pool", gestalt, required))
			}
		}
		return nil
	default:
		return nil
	}
}

// freeChildSlots counts the proxy's remaining project capacity.
func (t *Tree) freeChildSlots(proxy *game.Node) int {
	def, err := t.rs.Entity(proxy.Gestalt)
	if err != nil {
		return 0
	}
	used := 0
	for _, n := range t.doc.Nodes {
		if n.Kind == game.KindProject && n.UnderSubtree(proxy.Path) {
			used++
		}
	}
	return def.MaxSlots - used
}

// Attach validates and creates a node under the parent path, appending it
// to the view's document. The node gets a fresh id; tokens start empty.
func (t *Tree) Attach(gestalt, parentPath string) (*game.Node, error) {
	p, err := t.resolveParent(parentPath)
	if err != nil {
		return nil, err
	}
	if err := t.checkAttach(gestalt, p); err != nil {
		return nil, err
	}
	def, err := t.rs.Entity(gestalt)
	if err != nil {
		return nil, err
	}
	kind, err := t.rs.EntityKind(def)
	if err != nil {
		return nil, err
	}
	node, err := newNode(gestalt, kind, p.path)
	if err != nil {
		return nil, err
	}
	t.doc.Nodes = append(t.doc.Nodes, node)
	return node, nil
}

// Available yields the gestalten attachable under the parent path right
// now, in the order the parent provides them. Resolution errors yield
// nothing; callers wanting the reason use CanAttach.
func (t *Tree) Available(parentPath string) iter.Seq[string] {
	return func(yield func(string) bool) {
		p, err := t.resolveParent(parentPath)
		if err != nil {
			return
		}
		for _, gestalt := range t.provided(p) {
			if t.checkAttach(gestalt, p) != nil {
				continue
			}
			if !yield(gestalt) {
				return
			}
		}
	}
}

func newNode(gestalt string, kind game.Kind, parentPath string) (*game.Node, error) {
	nodeID, err := id.NewID()
	if err != nil {
		return nil, err
	}
	return &game.Node{
		ID:      nodeID,
		Kind:    kind,
		Gestalt: gestalt,
		Path:    game.JoinPath(parentPath, nodeID),
	}, nil
}

func parentPathOf(path string) string {
	i := strings.LastIndex(path, game.PathSeparator)
	if i < 0 {
		return path
	}
	return path[:i]
}
