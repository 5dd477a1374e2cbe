package match

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hypernova/arena/internal/game/geo"
)

// interaction is a pair of combatants within interaction range, recorded
// during a move for debug logging outside the store transaction.
type interaction struct {
	actorID string
	otherID string
	dist    float64
}

// ApplyAction validates and applies one action for actorID against a playing
// match. The whole effect — position, pickups, damage, defeats, inventory,
// events, lastMove — lands in a single atomic update, so concurrent actions
// from other players and bots never interleave mid-effect.
//
// Postcondition: Returns ErrInvalidAction for malformed payloads,
// ErrMatchNotFound / ErrInvalidState / ErrInvalidActor for bad targets;
// otherwise the action was applied (possibly as a no-op, e.g. an attack
// out of range).
func (o *Orchestrator) ApplyAction(ctx context.Context, id, actorID string, action Action) error {
	variant, err := action.Variant()
	if err != nil {
		return err
	}

	now := o.Clock()
	endMatch := false
	var interactions []interaction

	err = o.repo.Update(ctx, id, func(m *Match) error {
		if m.Status != StatusPlaying || m.GameState == nil {
			return ErrInvalidState
		}
		g := m.GameState
		actor, ok := g.Players[actorID]
		if !ok {
			return ErrInvalidActor
		}

		switch v := variant.(type) {
		case Move:
			interactions = o.applyMove(g, actor, v, now)
		case Attack:
			endMatch = o.applyAttack(m, actor, v, now)
		case UseItem:
			o.applyUseItem(m, actor, v, now)
		}

		m.LastMove = &LastMove{
			PlayerID:  actorID,
			Action:    action,
			Timestamp: now.UnixMilli(),
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, in := range interactions {
		o.logger.Debug("combatants in interaction range",
			zap.String("match_id", id),
			zap.String("player_id", in.actorID),
			zap.String("other_id", in.otherID),
			zap.Float64("distance", in.dist),
		)
	}

	if endMatch {
		return o.End(ctx, id)
	}
	return nil
}

// applyMove overwrites the actor's position, collects any items within
// pickup range, and reports nearby combatants.
func (o *Orchestrator) applyMove(g *GameState, actor *Combatant, v Move, now time.Time) []interaction {
	actor.Position = v.Position
	actor.Rotation = v.Rotation

	// Sorted iteration keeps pickup resolution deterministic when two items
	// overlap the pickup radius.
	itemIDs := make([]string, 0, len(g.Items))
	for iid := range g.Items {
		itemIDs = append(itemIDs, iid)
	}
	sort.Strings(itemIDs)

	for _, iid := range itemIDs {
		item := g.Items[iid]
		if geo.Distance(actor.Position, item.Position) > o.cfg.PickupRadius {
			continue
		}
		delete(g.Items, iid)
		actor.Inventory = append(actor.Inventory, item)
		// Health items heal immediately on pickup but stay in the
		// inventory; using one later heals again.
		if item.Type == ItemHealth {
			actor.Health += item.Value
			if actor.Health > 100 {
				actor.Health = 100
			}
		}
		appendEvent(g, now, Event{
			Type:      EventItemPickup,
			PlayerID:  actor.ID,
			ItemType:  item.Type,
			Timestamp: now.UnixMilli(),
		})
	}

	var nearby []interaction
	for pid, other := range g.Players {
		if pid == actor.ID || !other.Alive() {
			continue
		}
		if d := geo.Distance(actor.Position, other.Position); d <= o.cfg.InteractionRadius {
			nearby = append(nearby, interaction{actorID: actor.ID, otherID: pid, dist: d})
		}
	}
	return nearby
}

// applyAttack resolves an attack. Out-of-range attacks and attacks involving
// a defeated combatant are silent no-ops. Returns true when the defeat
// leaves at most one combatant standing, i.e. the match should end.
func (o *Orchestrator) applyAttack(m *Match, actor *Combatant, v Attack, now time.Time) bool {
	g := m.GameState
	target, ok := g.Players[v.TargetID]
	if !ok || !actor.Alive() || !target.Alive() {
		return false
	}
	if geo.Distance(actor.Position, target.Position) > o.cfg.AttackRange {
		return false
	}

	damage := int(float64(o.cfg.BaseDamage) * (1 + o.rand.Float64()*0.5))
	target.Health -= damage
	if target.Health <= 0 {
		target.Health = 0
		target.Status = CombatantDefeated
		actor.Score += o.cfg.DefeatScore
		appendEvent(g, now, Event{
			Type:       EventPlayerDefeated,
			AttackerID: actor.ID,
			TargetID:   v.TargetID,
			Timestamp:  now.UnixMilli(),
		})
		return len(g.AliveCombatants()) <= 1
	}

	appendEvent(g, now, Event{
		Type:       EventPlayerAttacked,
		AttackerID: actor.ID,
		TargetID:   v.TargetID,
		Damage:     damage,
		Timestamp:  now.UnixMilli(),
	})
	return false
}

// applyUseItem consumes an inventory item and applies its effect. A dead
// actor or a missing item is a silent no-op.
func (o *Orchestrator) applyUseItem(m *Match, actor *Combatant, v UseItem, now time.Time) {
	if !actor.Alive() {
		return
	}
	idx := -1
	for i, item := range actor.Inventory {
		if item.ID == v.ItemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	item := actor.Inventory[idx]
	actor.Inventory = append(actor.Inventory[:idx], actor.Inventory[idx+1:]...)

	switch item.Type {
	case ItemHealth:
		actor.Health += item.Value
		if actor.Health > 100 {
			actor.Health = 100
		}
	case ItemShield:
		actor.Shield = item.Value
	case ItemSpeed:
		actor.SpeedBoost = &SpeedBoost{
			Value:     item.Value,
			ExpiresAt: now.Add(o.cfg.SpeedBoostDuration).UnixMilli(),
		}
	case ItemWeapon:
		// Consumed with no passive effect; weapons only matter when attacking.
	}

	appendEvent(m.GameState, now, Event{
		Type:      EventItemUsed,
		PlayerID:  actor.ID,
		ItemType:  item.Type,
		Timestamp: now.UnixMilli(),
	})
}
