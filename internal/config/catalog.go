package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/tidwall/gjson"
)

// Game describes one promo target.
type Game struct {
	Name          string
	AppToken      string
	PromoID       string
	Platform      string
	EventsDelayMs int64
}

// EventsDelay is the base wait between registration attempts.
func (g Game) EventsDelay() time.Duration {
	return time.Duration(g.EventsDelayMs) * time.Millisecond
}

func (g Game) validate() error {
	switch {
	case g.Name == "":
		return errors.New("missing name")
	case g.AppToken == "":
		return errors.New("missing appToken")
	case g.PromoID == "":
		return errors.New("missing promoId")
	case g.EventsDelayMs < 0:
		return fmt.Errorf("negative eventsDelay %d", g.EventsDelayMs)
	}
	return nil
}

// Catalog is an immutable set of games keyed by name.
type Catalog struct {
	games map[string]Game
	order []string
}

// NewCatalog builds a catalog, skipping invalid records and duplicate names.
// The returned error lists every skipped record; the catalog is usable either way.
func NewCatalog(games []Game) (*Catalog, error) {
	c := &Catalog{games: make(map[string]Game, len(games))}
	var errs []error
	for i, g := range games {
		if err := g.validate(); err != nil {
			errs = append(errs, fmt.Errorf("game #%d: %w", i, err))
			continue
		}
		if _, dup := c.games[g.Name]; dup {
			errs = append(errs, fmt.Errorf("game #%d: duplicate name %q", i, g.Name))
			continue
		}
		c.games[g.Name] = g
		c.order = append(c.order, g.Name)
	}
	return c, errors.Join(errs...)
}

// LoadCatalog reads the game catalog. A missing or malformed file yields an
// empty catalog together with the error, so callers can warn and carry on.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		empty, _ := NewCatalog(nil)
		return empty, fmt.Errorf("reading catalog: %w", err)
	}

	if !gjson.ValidBytes(data) {
		empty, _ := NewCatalog(nil)
		return empty, errors.New("parsing catalog: invalid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		empty, _ := NewCatalog(nil)
		return empty, errors.New("parsing catalog: expected a JSON array of games")
	}

	var games []Game
	root.ForEach(func(_, rec gjson.Result) bool {
		games = append(games, Game{
			Name:          rec.Get("name").String(),
			AppToken:      rec.Get("appToken").String(),
			PromoID:       rec.Get("promoId").String(),
			Platform:      rec.Get("platform").String(),
			EventsDelayMs: rec.Get("eventsDelay").Int(),
		})
		return true
	})
	return NewCatalog(games)
}

// Lookup returns the game with the given name.
func (c *Catalog) Lookup(name string) (Game, bool) {
	g, ok := c.games[name]
	return g, ok
}

// Games returns the games in file order.
func (c *Catalog) Games() []Game {
	out := make([]Game, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.games[name])
	}
	return out
}

// Names returns the sorted game names.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.order))
	copy(names, c.order)
	sort.Strings(names)
	return names
}

func (c *Catalog) Len() int {
	return len(c.order)
}
