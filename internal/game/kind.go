package game

import (
	"fmt"

	apperrors "github.com/datadealer/dd-app/internal/platform/errors"
)

// Kind tags a node with its behavior class. The set is closed; content
// referencing an unknown kind fails at construction rather than at use.
type Kind string

const (
	// KindCity is a top-level territory providing pushers, proxies and agents.
	KindCity Kind = "city"
	// KindPusher distributes client entities inside a city.
	KindPusher Kind = "pusher"
	// KindClient is a leaf income entity under a pusher.
	KindClient Kind = "client"
	// KindAgent recruits contact entities inside a city.
	KindAgent Kind = "agent"
	// KindContact is a leaf profile-gathering entity under an agent.
	KindContact Kind = "contact"
	// KindProxy hosts project entities inside a city, bounded by slots.
	KindProxy Kind = "proxy"
	// KindProject is a configurable collection entity under a proxy.
	KindProject Kind = "project"
	// KindToken is a pool category entity under the pool root.
	KindToken Kind = "token"
)

// ParseKind validates a kind tag from content or storage.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindCity, KindPusher, KindClient, KindAgent, KindContact,
		KindProxy, KindProject, KindToken:
		return k, nil
	}
	return "", apperrors.New(apperrors.CodeRulesLookup, fmt.Sprintf("unknown entity kind %q", s))
}
