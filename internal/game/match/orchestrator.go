package match

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hypernova/arena/internal/config"
	"github.com/hypernova/arena/internal/game/geo"
	"github.com/hypernova/arena/internal/game/rng"
	"github.com/hypernova/arena/internal/store"
)

// BotPlanner computes one action for a live bot from a game-state snapshot.
// Implemented by the bot package; the orchestrator only knows this contract.
type BotPlanner interface {
	// Plan returns the bot's next action, or false when the bot has nothing
	// to do this tick.
	Plan(g *GameState, botID string) (Action, bool)
}

// Orchestrator drives every live match in this process: it creates and joins
// matches, starts and ends them, applies actions, and owns the per-match
// scheduler and bot-loop tasks. All match state lives in the store; the
// Orchestrator itself only holds task handles.
type Orchestrator struct {
	repo    *Repository
	cfg     config.GameConfig
	logger  *zap.Logger
	rand    rng.Source
	planner BotPlanner
	tasks   *TaskSet

	// Clock supplies timestamps; tests substitute a fixed clock.
	Clock func() time.Time
}

// NewOrchestrator creates an Orchestrator.
//
// Precondition: all arguments must be non-nil/valid; cfg should come from
// config validation.
func NewOrchestrator(repo *Repository, cfg config.GameConfig, planner BotPlanner, src rng.Source, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		repo:    repo,
		cfg:     cfg,
		logger:  logger,
		rand:    src,
		planner: planner,
		tasks:   NewTaskSet(logger),
		Clock:   time.Now,
	}
}

// Tasks exposes the task registry, primarily for shutdown and tests.
func (o *Orchestrator) Tasks() *TaskSet {
	return o.tasks
}

// GetMatch reads the full match record.
func (o *Orchestrator) GetMatch(ctx context.Context, id string) (*Match, error) {
	return o.repo.Get(ctx, id)
}

// WatchMatch streams raw JSON snapshots of a match for read-only viewers.
func (o *Orchestrator) WatchMatch(ctx context.Context, id string) (<-chan []byte, error) {
	return o.repo.Watch(ctx, id)
}

// CreateMatch allocates a new waiting match with the requester as its first
// roster entry and schedules the one-shot bot-fill check.
//
// Postcondition: Returns the store-generated match id and the created record.
func (o *Orchestrator) CreateMatch(ctx context.Context, playerID, playerName string) (string, *Match, error) {
	now := o.Clock()
	m := &Match{
		Status:    StatusWaiting,
		CreatedAt: now.UnixMilli(),
		Players: map[string]RosterEntry{
			playerID: {
				ID:       playerID,
				Name:     playerName,
				JoinedAt: now.UnixMilli(),
			},
		},
	}

	id, err := o.repo.Create(ctx, m)
	if err != nil {
		return "", nil, err
	}

	o.logger.Info("match created",
		zap.String("match_id", id),
		zap.String("player_id", playerID),
	)
	o.scheduleBotFill(id)
	return id, m, nil
}

// FindJoinableMatch scans for the first waiting match with spare capacity.
// Store failures are soft: the caller falls back to creating a new match.
//
// Postcondition: Returns "" when no joinable match exists or the store is
// unreachable.
func (o *Orchestrator) FindJoinableMatch(ctx context.Context) string {
	ids, err := o.repo.ListIDs(ctx)
	if err != nil {
		o.logger.Warn("listing matches failed", zap.Error(err))
		return ""
	}
	for _, id := range ids {
		m, err := o.repo.Get(ctx, id)
		if err != nil {
			continue
		}
		if m.Status == StatusWaiting && m.RosterSize() < o.cfg.Capacity {
			return id
		}
	}
	return ""
}

// scheduleBotFill arms the one-shot bot-fill check for a match. The delay
// gives humans a window to fill the roster before bots take the seats.
func (o *Orchestrator) scheduleBotFill(id string) {
	o.tasks.ScheduleOnce(id, RoleBotFill, o.cfg.BotFillDelay, func(ctx context.Context) {
		o.botFillCheck(ctx, id)
	})
}

// botFillCheck tops the roster up with bots and starts the match when the
// fill brings a waiting roster to capacity. Bots forcing a start is
// deliberate: it keeps matches moving when too few humans show up.
func (o *Orchestrator) botFillCheck(ctx context.Context, id string) {
	full, err := o.FillBots(ctx, id)
	if err != nil {
		o.logger.Warn("bot fill failed",
			zap.String("match_id", id),
			zap.Error(err),
		)
		return
	}
	if full {
		if err := o.Start(ctx, id); err != nil {
			o.logger.Warn("starting filled match failed",
				zap.String("match_id", id),
				zap.Error(err),
			)
		}
	}
}

// FillBots adds bot roster entries (and combatants, when already playing)
// until the roster reaches capacity. Idempotent: a second call in immediate
// succession adds nothing.
//
// Postcondition: Returns true when the match is a full waiting roster, i.e.
// ready to start.
func (o *Orchestrator) FillBots(ctx context.Context, id string) (bool, error) {
	readyToStart := false
	added := 0
	err := o.repo.Update(ctx, id, func(m *Match) error {
		if m.Status == StatusEnded {
			return nil
		}
		for m.RosterSize() < o.cfg.Capacity {
			bot := o.newBotEntry()
			m.Players[bot.ID] = bot
			if m.Status == StatusPlaying && m.GameState != nil {
				m.GameState.Players[bot.ID] = o.newCombatant(bot)
			}
			added++
		}
		readyToStart = m.Status == StatusWaiting && m.RosterSize() >= o.cfg.Capacity
		return nil
	})
	if err != nil {
		return false, err
	}
	if added > 0 {
		o.logger.Info("bots filled",
			zap.String("match_id", id),
			zap.Int("added", added),
		)
	}
	return readyToStart, nil
}

// Join adds a player to a waiting match. When the join fills the roster the
// match starts immediately; otherwise another bot-fill check is scheduled.
//
// Postcondition: Returns the created roster entry, or ErrMatchNotFound /
// ErrMatchInProgress.
func (o *Orchestrator) Join(ctx context.Context, id, playerID, playerName string) (RosterEntry, error) {
	entry := RosterEntry{
		ID:       playerID,
		Name:     playerName,
		JoinedAt: o.Clock().UnixMilli(),
	}

	full := false
	err := o.repo.Update(ctx, id, func(m *Match) error {
		if m.Status != StatusWaiting {
			return ErrMatchInProgress
		}
		m.Players[playerID] = entry
		full = m.RosterSize() >= o.cfg.Capacity
		return nil
	})
	if err != nil {
		return RosterEntry{}, err
	}

	o.logger.Info("player joined",
		zap.String("match_id", id),
		zap.String("player_id", playerID),
	)

	if full {
		if err := o.Start(ctx, id); err != nil {
			return entry, err
		}
	} else {
		o.scheduleBotFill(id)
	}
	return entry, nil
}

// Start transitions a waiting match to playing: it materializes combatants
// from the roster, generates the initial item set and safe zone, then spawns
// the scheduler and bot-loop tasks and tops bots up to capacity.
// Starting a match that is no longer waiting is a no-op, which makes the
// waiting → playing transition happen at most once.
func (o *Orchestrator) Start(ctx context.Context, id string) error {
	now := o.Clock()
	started := false
	err := o.repo.Update(ctx, id, func(m *Match) error {
		if m.Status != StatusWaiting {
			return nil
		}
		m.Status = StatusPlaying
		m.StartedAt = now.UnixMilli()

		players := make(map[string]*Combatant, len(m.Players))
		for pid, entry := range m.Players {
			players[pid] = o.newCombatant(entry)
		}
		m.GameState = &GameState{
			Players:       players,
			Round:         1,
			TimeRemaining: o.cfg.RoundSeconds,
			SafeZone: SafeZone{
				Center: geo.Position{},
				Radius: o.cfg.InitialRadius,
			},
			Items:  o.generateItems(),
			Events: make(map[string]Event),
		}
		started = true
		return nil
	})
	if err != nil {
		return err
	}
	if !started {
		return nil
	}

	o.logger.Info("match started", zap.String("match_id", id))

	o.tasks.StartPeriodic(id, RoleScheduler, o.cfg.SchedulerTick, func(ctx context.Context) {
		o.schedulerTick(ctx, id)
	})
	o.tasks.StartPeriodic(id, RoleBotLoop, o.cfg.BotTick, func(ctx context.Context) {
		o.botTick(ctx, id)
	})

	if _, err := o.FillBots(ctx, id); err != nil {
		o.logger.Warn("bot fill after start failed",
			zap.String("match_id", id),
			zap.Error(err),
		)
	}
	return nil
}

// End transitions a playing match to ended: it records the highest scorer as
// winner, appends the game_end event, and cancels the match's tasks.
// Ending a match that is not playing only cancels any leftover tasks.
func (o *Orchestrator) End(ctx context.Context, id string) error {
	now := o.Clock()
	ended := false
	err := o.repo.Update(ctx, id, func(m *Match) error {
		if m.Status != StatusPlaying {
			return nil
		}
		m.Status = StatusEnded

		var winnerID string
		if winner, top := m.HighestScorer(); winner != nil {
			winnerID = top
			m.Winner = &Winner{
				PlayerID:   winnerID,
				PlayerName: winner.Name,
				Score:      winner.Score,
			}
		}
		// The game_end event is recorded even when nobody scored or the
		// roster is empty; Winner is blank in that case.
		if m.GameState != nil {
			appendEvent(m.GameState, now, Event{
				Type:      EventGameEnd,
				Winner:    winnerID,
				Timestamp: now.UnixMilli(),
			})
		}
		ended = true
		return nil
	})

	// Task handles are cleaned up even when the match record is already gone.
	o.tasks.Cancel(id)

	if err != nil {
		return err
	}
	if ended {
		o.logger.Info("match ended", zap.String("match_id", id))
	}
	return nil
}

// appendEvent adds ev to the append-only log under a time-ordered key.
// The Events map is rebuilt when absent: an empty log is dropped by the
// store round-trip, so it comes back nil on the first event of a match.
func appendEvent(g *GameState, now time.Time, ev Event) {
	if g.Events == nil {
		g.Events = make(map[string]Event)
	}
	g.Events[store.PushKey(now)] = ev
}

// newBotEntry synthesizes a bot identity.
func (o *Orchestrator) newBotEntry() RosterEntry {
	return RosterEntry{
		ID:       "bot_" + uuid.NewString()[:13],
		Name:     fmt.Sprintf("Bot %d", o.rand.Intn(100)),
		IsBot:    true,
		JoinedAt: o.Clock().UnixMilli(),
	}
}

// newCombatant materializes a roster entry at a random ground position with
// default stats.
func (o *Orchestrator) newCombatant(entry RosterEntry) *Combatant {
	return &Combatant{
		ID:        entry.ID,
		Name:      entry.Name,
		IsBot:     entry.IsBot,
		JoinedAt:  entry.JoinedAt,
		Position:  o.randomGroundPosition(),
		Health:    100,
		Score:     0,
		Inventory: []Item{},
		Status:    CombatantAlive,
	}
}

// randomGroundPosition samples an integer point in the spawn square, y = 0.
func (o *Orchestrator) randomGroundPosition() geo.Position {
	extent := o.cfg.SpawnExtent
	return geo.Position{
		X: float64(o.rand.Intn(2*extent) - extent),
		Y: 0,
		Z: float64(o.rand.Intn(2*extent) - extent),
	}
}

// generateItems builds a fresh item set for a round.
func (o *Orchestrator) generateItems() map[string]Item {
	items := make(map[string]Item, o.cfg.ItemCount)
	for i := 0; i < o.cfg.ItemCount; i++ {
		id := "item_" + uuid.NewString()[:13]
		items[id] = Item{
			ID:       id,
			Type:     itemTypes[o.rand.Intn(len(itemTypes))],
			Position: o.randomGroundPosition(),
			Value:    o.rand.Intn(50) + 10,
		}
	}
	return items
}
