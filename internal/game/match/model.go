// Package match implements the battle-royale match orchestration core:
// the data model, the match registry and lifecycle, the round and zone
// scheduler, the action processor, and the per-match bot loop driver.
// All authoritative state lives in the shared store; this package holds only
// task handles for running matches.
package match

import (
	"sort"

	"github.com/hypernova/arena/internal/game/geo"
)

// Status is the lifecycle state of a match.
//
// Invariant: a match transitions waiting → playing → ended, each at most once.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusPlaying Status = "playing"
	StatusEnded   Status = "ended"
)

// CombatantStatus is the in-match life state of a combatant.
//
// Invariant: a combatant flips alive → defeated only when health reaches 0,
// and never back.
type CombatantStatus string

const (
	CombatantAlive    CombatantStatus = "alive"
	CombatantDefeated CombatantStatus = "defeated"
)

// ItemType classifies a world item.
type ItemType string

const (
	ItemHealth ItemType = "health"
	ItemWeapon ItemType = "weapon"
	ItemShield ItemType = "shield"
	ItemSpeed  ItemType = "speed"
)

// itemTypes is the generation pool for random items.
var itemTypes = []ItemType{ItemHealth, ItemWeapon, ItemShield, ItemSpeed}

// EventType tags an entry in the append-only match event log.
type EventType string

const (
	EventRoundStart     EventType = "round_start"
	EventZoneShrink     EventType = "zone_shrink"
	EventItemPickup     EventType = "item_pickup"
	EventItemUsed       EventType = "item_used"
	EventPlayerAttacked EventType = "player_attacked"
	EventPlayerDefeated EventType = "player_defeated"
	EventGameEnd        EventType = "game_end"
)

// RosterEntry is a participant's identity record. Created on join; never
// mutated afterwards.
type RosterEntry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsBot    bool   `json:"isBot"`
	JoinedAt int64  `json:"joinedAt"`
}

// SpeedBoost is a temporary movement buff from a consumed speed item.
type SpeedBoost struct {
	Value     int   `json:"value"`
	ExpiresAt int64 `json:"expiresAt"`
}

// Item is a collectible world object. Removed from the world on pickup;
// the full set is regenerated at every round start.
type Item struct {
	ID       string       `json:"id"`
	Type     ItemType     `json:"type"`
	Position geo.Position `json:"position"`
	Value    int          `json:"value"`
}

// Combatant is a roster entry's in-match gameplay state.
//
// Invariant: Health is in [0, 100]; Score >= 0.
type Combatant struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	IsBot      bool            `json:"isBot"`
	JoinedAt   int64           `json:"joinedAt"`
	Position   geo.Position    `json:"position"`
	Rotation   float64         `json:"rotation,omitempty"`
	Health     int             `json:"health"`
	Score      int             `json:"score"`
	Inventory  []Item          `json:"inventory"`
	Status     CombatantStatus `json:"status"`
	Shield     int             `json:"shield,omitempty"`
	SpeedBoost *SpeedBoost     `json:"speedBoost,omitempty"`
}

// Alive reports whether the combatant can still act and be targeted.
func (c *Combatant) Alive() bool {
	return c != nil && c.Status == CombatantAlive
}

// SafeZone is the circular region outside which the client applies zone
// damage. The orchestrator only publishes center and radius.
//
// Invariant: Radius is non-increasing within a round and strictly smaller at
// the start of each successive round, floored at the configured minimum.
type SafeZone struct {
	Center geo.Position `json:"center"`
	Radius float64      `json:"radius"`
}

// Event is one append-only record in the match log. Payload fields are
// populated per Type; unused fields are omitted.
type Event struct {
	Type        EventType `json:"type"`
	RoundNumber int       `json:"roundNumber,omitempty"`
	NewRadius   float64   `json:"newRadius,omitempty"`
	PlayerID    string    `json:"playerId,omitempty"`
	ItemType    ItemType  `json:"itemType,omitempty"`
	AttackerID  string    `json:"attackerId,omitempty"`
	TargetID    string    `json:"targetId,omitempty"`
	Damage      int       `json:"damage,omitempty"`
	Winner      string    `json:"winner,omitempty"`
	Timestamp   int64     `json:"timestamp"`
}

// GameState is the live gameplay payload, present only once a match is
// playing.
//
// Invariant: every Players key has a corresponding roster entry on the Match.
type GameState struct {
	Players       map[string]*Combatant `json:"players"`
	Round         int                   `json:"round"`
	TimeRemaining int                   `json:"timeRemaining"`
	SafeZone      SafeZone              `json:"safeZone"`
	Items         map[string]Item       `json:"items"`
	// Events is keyed by time-ordered push keys; lexicographic key order is
	// append order.
	Events map[string]Event `json:"events,omitempty"`
}

// AliveCombatants returns the alive combatants in deterministic (sorted id)
// order.
func (g *GameState) AliveCombatants() []*Combatant {
	ids := make([]string, 0, len(g.Players))
	for id, c := range g.Players {
		if c.Alive() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	alive := make([]*Combatant, 0, len(ids))
	for _, id := range ids {
		alive = append(alive, g.Players[id])
	}
	return alive
}

// OrderedEvents returns the event log in append order.
func (g *GameState) OrderedEvents() []Event {
	keys := make([]string, 0, len(g.Events))
	for k := range g.Events {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Event, 0, len(keys))
	for _, k := range keys {
		out = append(out, g.Events[k])
	}
	return out
}

// Winner records the match outcome.
type Winner struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Score      int    `json:"score"`
}

// LastMove is the most recent applied action, kept for audit and client
// notification.
type LastMove struct {
	PlayerID string `json:"playerId"`
	Action
	Timestamp int64 `json:"timestamp"`
}

// Match is one battle-royale session as stored at games/<id>.
type Match struct {
	Status    Status                 `json:"status"`
	CreatedAt int64                  `json:"createdAt"`
	StartedAt int64                  `json:"startedAt,omitempty"`
	Players   map[string]RosterEntry `json:"players"`
	GameState *GameState             `json:"gameState,omitempty"`
	LastMove  *LastMove              `json:"lastMove,omitempty"`
	Winner    *Winner                `json:"winner,omitempty"`
}

// RosterSize returns the number of roster entries (humans and bots).
func (m *Match) RosterSize() int {
	return len(m.Players)
}

// HighestScorer returns the combatant with the strictly highest score,
// first-encountered in sorted id order on ties.
//
// Postcondition: Returns (nil, "") when the match has no combatants.
func (m *Match) HighestScorer() (*Combatant, string) {
	if m.GameState == nil {
		return nil, ""
	}
	ids := make([]string, 0, len(m.GameState.Players))
	for id := range m.GameState.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	best := -1
	var winner *Combatant
	var winnerID string
	for _, id := range ids {
		c := m.GameState.Players[id]
		if c.Score > best {
			best = c.Score
			winner = c
			winnerID = id
		}
	}
	return winner, winnerID
}
