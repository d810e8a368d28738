package rules

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/datadealer/dd-app/internal/game"
	apperrors "github.com/datadealer/dd-app/internal/platform/errors"
)

//go:embed content/*.yaml
var contentFS embed.FS

// DefaultVersion is the ruleset assigned to newly created games.
const DefaultVersion = 1

// Catalog holds every embedded ruleset, indexed by version and locale.
// Construction parses all content once; lookups never touch the
// filesystem again.
type Catalog struct {
	rulesets map[int]map[string]*Ruleset
	matchers map[int]language.Matcher
	tags     map[int][]language.Tag
}

// NewCatalog parses the embedded content. A malformed content file is a
// build defect and fails construction.
func NewCatalog() (*Catalog, error) {
	c := &Catalog{
		rulesets: make(map[int]map[string]*Ruleset),
		matchers: make(map[int]language.Matcher),
		tags:     make(map[int][]language.Tag),
	}
	entries, err := fs.Glob(contentFS, "content/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob ruleset content: %w", err)
	}
	sort.Strings(entries)
	for _, name := range entries {
		raw, err := contentFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		rs := new(Ruleset)
		if err := yaml.Unmarshal(raw, rs); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		if err := normalize(rs); err != nil {
			return nil, fmt.Errorf("validate %s: %w", name, err)
		}
		tag, err := language.Parse(rs.Locale)
		if err != nil {
			return nil, fmt.Errorf("parse locale in %s: %w", name, err)
		}
		byLocale := c.rulesets[rs.Version]
		if byLocale == nil {
			byLocale = make(map[string]*Ruleset)
			c.rulesets[rs.Version] = byLocale
		}
		byLocale[tag.String()] = rs
		c.tags[rs.Version] = append(c.tags[rs.Version], tag)
	}
	if len(c.rulesets) == 0 {
		return nil, fmt.Errorf("no embedded ruleset content")
	}
	for version, tags := range c.tags {
		c.matchers[version] = language.NewMatcher(tags)
	}
	return c, nil
}

// Ruleset returns the content for a version, negotiated to the closest
// supported locale. An unknown version is a content inconsistency.
func (c *Catalog) Ruleset(version int, locale string) (*Ruleset, error) {
	byLocale, ok := c.rulesets[version]
	if !ok {
		return nil, apperrors.New(apperrors.CodeRulesVersionUnknown,
			fmt.Sprintf("no ruleset for version %d", version))
	}
	matcher := c.matchers[version]
	requested, err := language.Parse(locale)
	if err != nil {
		requested = language.Und
	}
	_, index, _ := matcher.Match(requested)
	return byLocale[c.tags[version][index].String()], nil
}

// normalize back-fills map keys into the defs and applies content
// defaults so the rest of the code never re-checks them.
func normalize(rs *Ruleset) error {
	if len(rs.Levels) == 0 {
		return fmt.Errorf("ruleset %d has no level table", rs.Version)
	}
	for gestalt, def := range rs.Entities {
		def.Gestalt = gestalt
		if _, err := game.ParseKind(def.Kind); err != nil {
			return err
		}
		if def.CollectAPCost == 0 {
			def.CollectAPCost = 1
		}
		if def.XPInc == 0 {
			def.XPInc = 1
		}
		if def.MaxInstances == 0 {
			def.MaxInstances = 1
		}
		if def.MaxSlots == 0 {
			def.MaxSlots = 1
		}
	}
	for gestalt, def := range rs.Powerups {
		def.Gestalt = gestalt
		if def.SlotType == "" {
			def.SlotType = "powerup"
		}
	}
	for _, m := range rs.Missions {
		if m.Gestalt == "" {
			return fmt.Errorf("ruleset %d has a mission without a gestalt", rs.Version)
		}
	}
	for _, k := range rs.KarmaOffers {
		if k.Gestalt == "" {
			return fmt.Errorf("ruleset %d has a karma offer without a gestalt", rs.Version)
		}
	}
	for _, inc := range rs.Incidents {
		if inc.Gestalt == "" {
			return fmt.Errorf("ruleset %d has an incident without a gestalt", rs.Version)
		}
	}
	return nil
}
