package match

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypernova/arena/internal/game/geo"
)

// arrange places combatants and items directly in a started match.
func arrange(t *testing.T, o *Orchestrator, id string, fn func(g *GameState)) {
	t.Helper()
	require.NoError(t, o.repo.Update(context.Background(), id, func(m *Match) error {
		fn(m.GameState)
		return nil
	}))
}

func TestApplyMoveUpdatesPosition(t *testing.T) {
	o := newTestOrchestrator(t, testGameConfig(), nil)
	ctx := context.Background()
	id := startedMatch(t, o)

	arrange(t, o, id, func(g *GameState) {
		g.Items = map[string]Item{}
	})

	require.NoError(t, o.ApplyAction(ctx, id, "p1", MoveAction(positionXZ(10, 20))))

	m, err := o.GetMatch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 10.0, m.GameState.Players["p1"].Position.X)
	assert.Equal(t, 20.0, m.GameState.Players["p1"].Position.Z)

	require.NotNil(t, m.LastMove)
	assert.Equal(t, "p1", m.LastMove.PlayerID)
	assert.Equal(t, "position", m.LastMove.Type)
}

func TestMovePicksUpHealthItem(t *testing.T) {
	o := newTestOrchestrator(t, testGameConfig(), nil)
	ctx := context.Background()
	id := startedMatch(t, o)

	arrange(t, o, id, func(g *GameState) {
		g.Players["p1"].Health = 60
		g.Items = map[string]Item{
			"i1": {ID: "i1", Type: ItemHealth, Position: positionXZ(3, 0), Value: 25},
		}
	})

	require.NoError(t, o.ApplyAction(ctx, id, "p1", MoveAction(positionXZ(0, 0))))

	m, err := o.GetMatch(ctx, id)
	require.NoError(t, err)
	c := m.GameState.Players["p1"]
	assert.Equal(t, 85, c.Health, "health item heals on pickup")
	require.Len(t, c.Inventory, 1, "picked item lands in the inventory")
	assert.Equal(t, "i1", c.Inventory[0].ID)
	assert.Empty(t, m.GameState.Items, "picked up item leaves the ground")

	events := m.GameState.OrderedEvents()
	require.NotEmpty(t, events)
	assert.Equal(t, EventItemPickup, events[len(events)-1].Type)
	assert.Equal(t, ItemHealth, events[len(events)-1].ItemType)
}

func TestMovePickupHealsAtMostToFull(t *testing.T) {
	o := newTestOrchestrator(t, testGameConfig(), nil)
	ctx := context.Background()
	id := startedMatch(t, o)

	arrange(t, o, id, func(g *GameState) {
		g.Players["p1"].Health = 95
		g.Items = map[string]Item{
			"i1": {ID: "i1", Type: ItemHealth, Position: positionXZ(0, 0), Value: 40},
		}
	})

	require.NoError(t, o.ApplyAction(ctx, id, "p1", MoveAction(positionXZ(0, 0))))

	m, err := o.GetMatch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 100, m.GameState.Players["p1"].Health)
}

func TestMoveStoresNonHealthItems(t *testing.T) {
	o := newTestOrchestrator(t, testGameConfig(), nil)
	ctx := context.Background()
	id := startedMatch(t, o)

	arrange(t, o, id, func(g *GameState) {
		g.Items = map[string]Item{
			"i1": {ID: "i1", Type: ItemShield, Position: positionXZ(1, 1), Value: 30},
		}
	})

	require.NoError(t, o.ApplyAction(ctx, id, "p1", MoveAction(positionXZ(0, 0))))

	m, err := o.GetMatch(ctx, id)
	require.NoError(t, err)
	c := m.GameState.Players["p1"]
	require.Len(t, c.Inventory, 1)
	assert.Equal(t, ItemShield, c.Inventory[0].Type)
}

func TestMoveIgnoresOutOfRangeItems(t *testing.T) {
	o := newTestOrchestrator(t, testGameConfig(), nil)
	ctx := context.Background()
	id := startedMatch(t, o)

	arrange(t, o, id, func(g *GameState) {
		g.Items = map[string]Item{
			"i1": {ID: "i1", Type: ItemHealth, Position: positionXZ(50, 50), Value: 25},
		}
	})

	require.NoError(t, o.ApplyAction(ctx, id, "p1", MoveAction(positionXZ(0, 0))))

	m, err := o.GetMatch(ctx, id)
	require.NoError(t, err)
	assert.Len(t, m.GameState.Items, 1, "distant items stay on the ground")
}

func TestAttackDamagesTarget(t *testing.T) {
	// Float64 scripted to 0.5: damage = 10 * (1 + 0.5*0.5) = 12.
	src := &fakeSource{floats: []float64{0.5}}
	o := newTestOrchestrator(t, testGameConfig(), src)
	ctx := context.Background()
	id := startedMatch(t, o)

	arrange(t, o, id, func(g *GameState) {
		g.Players["p1"].Position = positionXZ(0, 0)
		g.Players["p2"] = &Combatant{
			ID: "p2", Name: "Two", Position: positionXZ(10, 0),
			Health: 100, Status: CombatantAlive, Inventory: []Item{},
		}
	})

	require.NoError(t, o.ApplyAction(ctx, id, "p1", AttackAction("p2")))

	m, err := o.GetMatch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 88, m.GameState.Players["p2"].Health)

	events := m.GameState.OrderedEvents()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, EventPlayerAttacked, last.Type)
	assert.Equal(t, "p1", last.AttackerID)
	assert.Equal(t, "p2", last.TargetID)
	assert.Equal(t, 12, last.Damage)
}

func TestAttackOutOfRangeIsNoOp(t *testing.T) {
	o := newTestOrchestrator(t, testGameConfig(), nil)
	ctx := context.Background()
	id := startedMatch(t, o)

	arrange(t, o, id, func(g *GameState) {
		g.Players["p1"].Position = positionXZ(0, 0)
		g.Players["p2"] = &Combatant{
			ID: "p2", Position: positionXZ(100, 0),
			Health: 100, Status: CombatantAlive, Inventory: []Item{},
		}
	})

	require.NoError(t, o.ApplyAction(ctx, id, "p1", AttackAction("p2")))

	m, err := o.GetMatch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 100, m.GameState.Players["p2"].Health)
	assert.Empty(t, m.GameState.OrderedEvents())
}

func TestAttackDefeatAwardsScore(t *testing.T) {
	o := newTestOrchestrator(t, testGameConfig(), nil)
	ctx := context.Background()
	id := startedMatch(t, o)

	arrange(t, o, id, func(g *GameState) {
		g.Players["p1"].Position = positionXZ(0, 0)
		g.Players["p2"] = &Combatant{
			ID: "p2", Position: positionXZ(5, 0),
			Health: 5, Status: CombatantAlive, Inventory: []Item{},
		}
		// A third combatant keeps the match alive after the defeat.
		g.Players["p3"] = &Combatant{
			ID: "p3", Position: positionXZ(50, 50),
			Health: 100, Status: CombatantAlive, Inventory: []Item{},
		}
	})

	require.NoError(t, o.ApplyAction(ctx, id, "p1", AttackAction("p2")))

	m, err := o.GetMatch(ctx, id)
	require.NoError(t, err)
	target := m.GameState.Players["p2"]
	assert.Equal(t, 0, target.Health, "health must floor at zero")
	assert.Equal(t, CombatantDefeated, target.Status)
	assert.Equal(t, 100, m.GameState.Players["p1"].Score)
	assert.Equal(t, StatusPlaying, m.Status, "two combatants still standing")

	events := m.GameState.OrderedEvents()
	require.NotEmpty(t, events)
	assert.Equal(t, EventPlayerDefeated, events[len(events)-1].Type)
}

func TestLastDefeatEndsMatch(t *testing.T) {
	o := newTestOrchestrator(t, testGameConfig(), nil)
	ctx := context.Background()
	id := startedMatch(t, o)

	arrange(t, o, id, func(g *GameState) {
		// Reduce to exactly two living combatants.
		g.Players = map[string]*Combatant{
			"p1": {ID: "p1", Name: "One", Position: positionXZ(0, 0), Health: 100, Status: CombatantAlive, Inventory: []Item{}},
			"p2": {ID: "p2", Name: "Two", Position: positionXZ(5, 0), Health: 5, Status: CombatantAlive, Inventory: []Item{}},
		}
	})

	require.NoError(t, o.ApplyAction(ctx, id, "p1", AttackAction("p2")))

	m, err := o.GetMatch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusEnded, m.Status)
	require.NotNil(t, m.Winner)
	assert.Equal(t, "p1", m.Winner.PlayerID, "the defeat score decides the winner")

	types := make([]EventType, 0, len(m.GameState.Events))
	for _, ev := range m.GameState.Events {
		types = append(types, ev.Type)
	}
	assert.ElementsMatch(t, []EventType{EventPlayerDefeated, EventGameEnd}, types)
}

func TestFirstEventAfterStoreRoundTrip(t *testing.T) {
	o := newTestOrchestrator(t, testGameConfig(), nil)
	ctx := context.Background()
	id := startedMatch(t, o)

	// An empty event log does not survive the store round-trip, so the
	// first event of a match lands in a nil map unless it is rebuilt.
	m, err := o.GetMatch(ctx, id)
	require.NoError(t, err)
	require.Nil(t, m.GameState.Events)

	arrange(t, o, id, func(g *GameState) {
		g.Players["p1"].Position = positionXZ(0, 0)
		g.Players["p2"] = &Combatant{
			ID: "p2", Position: positionXZ(5, 0),
			Health: 100, Status: CombatantAlive, Inventory: []Item{},
		}
	})

	require.NoError(t, o.ApplyAction(ctx, id, "p1", AttackAction("p2")))

	m, err = o.GetMatch(ctx, id)
	require.NoError(t, err)
	events := m.GameState.OrderedEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventPlayerAttacked, events[0].Type)
}

func TestAttackOnDefeatedTargetIsNoOp(t *testing.T) {
	o := newTestOrchestrator(t, testGameConfig(), nil)
	ctx := context.Background()
	id := startedMatch(t, o)

	arrange(t, o, id, func(g *GameState) {
		g.Players["p1"].Position = positionXZ(0, 0)
		g.Players["p2"] = &Combatant{
			ID: "p2", Position: positionXZ(5, 0),
			Health: 0, Status: CombatantDefeated, Inventory: []Item{},
		}
	})

	require.NoError(t, o.ApplyAction(ctx, id, "p1", AttackAction("p2")))

	m, err := o.GetMatch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, m.GameState.Players["p1"].Score)
	assert.Empty(t, m.GameState.OrderedEvents())
}

func TestUseHealthItem(t *testing.T) {
	o := newTestOrchestrator(t, testGameConfig(), nil)
	ctx := context.Background()
	id := startedMatch(t, o)

	arrange(t, o, id, func(g *GameState) {
		g.Players["p1"].Health = 50
		g.Players["p1"].Inventory = []Item{{ID: "i1", Type: ItemHealth, Value: 30}}
	})

	require.NoError(t, o.ApplyAction(ctx, id, "p1", UseItemAction("i1")))

	m, err := o.GetMatch(ctx, id)
	require.NoError(t, err)
	c := m.GameState.Players["p1"]
	assert.Equal(t, 80, c.Health)
	assert.Empty(t, c.Inventory, "used items leave the inventory")

	events := m.GameState.OrderedEvents()
	require.NotEmpty(t, events)
	assert.Equal(t, EventItemUsed, events[len(events)-1].Type)
}

func TestUseShieldItem(t *testing.T) {
	o := newTestOrchestrator(t, testGameConfig(), nil)
	ctx := context.Background()
	id := startedMatch(t, o)

	arrange(t, o, id, func(g *GameState) {
		g.Players["p1"].Inventory = []Item{{ID: "i1", Type: ItemShield, Value: 35}}
	})

	require.NoError(t, o.ApplyAction(ctx, id, "p1", UseItemAction("i1")))

	m, err := o.GetMatch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 35, m.GameState.Players["p1"].Shield)
}

func TestUseSpeedItem(t *testing.T) {
	o := newTestOrchestrator(t, testGameConfig(), nil)
	ctx := context.Background()
	id := startedMatch(t, o)

	arrange(t, o, id, func(g *GameState) {
		g.Players["p1"].Inventory = []Item{{ID: "i1", Type: ItemSpeed, Value: 15}}
	})

	require.NoError(t, o.ApplyAction(ctx, id, "p1", UseItemAction("i1")))

	m, err := o.GetMatch(ctx, id)
	require.NoError(t, err)
	boost := m.GameState.Players["p1"].SpeedBoost
	require.NotNil(t, boost)
	assert.Equal(t, 15, boost.Value)
	expiry := o.Clock().Add(o.cfg.SpeedBoostDuration).UnixMilli()
	assert.Equal(t, expiry, boost.ExpiresAt)
}

func TestUseMissingItemIsNoOp(t *testing.T) {
	o := newTestOrchestrator(t, testGameConfig(), nil)
	ctx := context.Background()
	id := startedMatch(t, o)

	require.NoError(t, o.ApplyAction(ctx, id, "p1", UseItemAction("ghost")))

	m, err := o.GetMatch(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, m.GameState.OrderedEvents())
}

func TestApplyActionErrors(t *testing.T) {
	o := newTestOrchestrator(t, testGameConfig(), nil)
	ctx := context.Background()

	err := o.ApplyAction(ctx, "nope", "p1", MoveAction(positionXZ(0, 0)))
	assert.ErrorIs(t, err, ErrMatchNotFound)

	id, _, err := o.CreateMatch(ctx, "p1", "One")
	require.NoError(t, err)

	err = o.ApplyAction(ctx, id, "p1", MoveAction(positionXZ(0, 0)))
	assert.ErrorIs(t, err, ErrInvalidState, "waiting matches accept no actions")

	require.NoError(t, o.Start(ctx, id))

	err = o.ApplyAction(ctx, id, "stranger", MoveAction(positionXZ(0, 0)))
	assert.ErrorIs(t, err, ErrInvalidActor)

	err = o.ApplyAction(ctx, id, "p1", Action{Type: "fly", Position: &geo.Position{}})
	assert.ErrorIs(t, err, ErrInvalidAction)
}
