// Package bot implements the decision policy for computer-controlled
// combatants. The planner is pure: it reads a game-state snapshot and emits
// one action, leaving all mutation to the orchestration core.
package bot

import (
	"math"
	"sort"

	"github.com/hypernova/arena/internal/config"
	"github.com/hypernova/arena/internal/game/geo"
	"github.com/hypernova/arena/internal/game/match"
	"github.com/hypernova/arena/internal/game/rng"
)

// Planner decides one action per bot per tick using a fixed priority ladder:
// survival first (heal, return to the safe zone), then combat, then loot,
// then wandering. Randomness comes only from the injected source, so tests
// can script every branch.
type Planner struct {
	cfg  config.GameConfig
	rand rng.Source
}

// NewPlanner creates a Planner.
func NewPlanner(cfg config.GameConfig, src rng.Source) *Planner {
	return &Planner{cfg: cfg, rand: src}
}

// Plan returns the bot's next action. The second return is false only when
// the bot is absent or no longer alive.
func (p *Planner) Plan(g *match.GameState, botID string) (match.Action, bool) {
	self, ok := g.Players[botID]
	if !ok || !self.Alive() {
		return match.Action{}, false
	}

	// Hurt bots look for a heal before anything else.
	if self.Health < p.cfg.BotLowHealth {
		if item, ok := p.nearestItem(g, self.Position, match.ItemHealth); ok {
			return p.stepToward(self.Position, item.Position), true
		}
	}

	// Outside the safe zone the storm wins every other consideration.
	if geo.Distance(self.Position, g.SafeZone.Center) > g.SafeZone.Radius {
		return p.stepToward(self.Position, g.SafeZone.Center), true
	}

	if enemy, ok := p.nearestEnemy(g, self); ok {
		dist := geo.Distance(self.Position, enemy.Position)
		healthy := self.Health > p.cfg.BotEngageHealth
		switch {
		case healthy && dist <= p.cfg.AttackRange:
			return match.AttackAction(enemy.ID), true
		case healthy:
			return p.stepToward(self.Position, enemy.Position), true
		default:
			angle := p.rand.Float64() * 2 * math.Pi
			pos := geo.Away(self.Position, enemy.Position, p.cfg.BotStep, angle)
			return match.MoveAction(pos), true
		}
	}

	if item, ok := p.randomItem(g); ok {
		return p.stepToward(self.Position, item.Position), true
	}

	return p.wander(g), true
}

// stepToward builds a single-step move from current in the direction of
// target.
func (p *Planner) stepToward(current, target geo.Position) match.Action {
	return match.MoveAction(geo.Toward(current, target, p.cfg.BotStep))
}

// wander targets a random point in the inner 80% of the safe zone, keeping
// idle bots clear of the shrinking edge.
func (p *Planner) wander(g *match.GameState) match.Action {
	angle := p.rand.Float64() * 2 * math.Pi
	dist := p.rand.Float64() * g.SafeZone.Radius * 0.8
	return match.MoveAction(geo.OnCircle(g.SafeZone.Center, angle, dist))
}

// nearestEnemy returns the closest living combatant other than self.
// Ties break toward the lexicographically smaller id so the choice is
// stable across ticks.
func (p *Planner) nearestEnemy(g *match.GameState, self *match.Combatant) (*match.Combatant, bool) {
	ids := make([]string, 0, len(g.Players))
	for pid := range g.Players {
		ids = append(ids, pid)
	}
	sort.Strings(ids)

	var best *match.Combatant
	bestDist := math.Inf(1)
	for _, pid := range ids {
		other := g.Players[pid]
		if pid == self.ID || !other.Alive() {
			continue
		}
		if d := geo.Distance(self.Position, other.Position); d < bestDist {
			best, bestDist = other, d
		}
	}
	return best, best != nil
}

// nearestItem returns the closest ground item of the given type.
func (p *Planner) nearestItem(g *match.GameState, from geo.Position, typ match.ItemType) (match.Item, bool) {
	ids := make([]string, 0, len(g.Items))
	for iid := range g.Items {
		ids = append(ids, iid)
	}
	sort.Strings(ids)

	var best match.Item
	found := false
	bestDist := math.Inf(1)
	for _, iid := range ids {
		item := g.Items[iid]
		if item.Type != typ {
			continue
		}
		if d := geo.Distance(from, item.Position); d < bestDist {
			best, bestDist, found = item, d, true
		}
	}
	return best, found
}

// randomItem picks a uniformly random ground item.
func (p *Planner) randomItem(g *match.GameState) (match.Item, bool) {
	if len(g.Items) == 0 {
		return match.Item{}, false
	}
	ids := make([]string, 0, len(g.Items))
	for iid := range g.Items {
		ids = append(ids, iid)
	}
	sort.Strings(ids)
	return g.Items[ids[p.rand.Intn(len(ids))]], true
}
