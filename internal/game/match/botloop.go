package match

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"
)

// botTick runs one pass of the bot loop for a match: it tops the roster up
// after mid-game departures, then lets each live bot act in turn. Bots act
// against the snapshot taken at the start of the tick; a bot defeated
// mid-tick is caught by the per-action validation instead.
func (o *Orchestrator) botTick(ctx context.Context, id string) {
	m, err := o.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrMatchNotFound) {
			o.tasks.Cancel(id)
			return
		}
		o.logger.Warn("bot loop read failed",
			zap.String("match_id", id),
			zap.Error(err),
		)
		return
	}
	if m.Status != StatusPlaying || m.GameState == nil {
		o.tasks.Cancel(id)
		return
	}

	if m.RosterSize() < o.cfg.Capacity {
		if _, err := o.FillBots(ctx, id); err != nil {
			o.logger.Warn("mid-game bot fill failed",
				zap.String("match_id", id),
				zap.Error(err),
			)
		}
	}

	g := m.GameState
	botIDs := make([]string, 0, len(g.Players))
	for pid, c := range g.Players {
		if c.IsBot && c.Alive() {
			botIDs = append(botIDs, pid)
		}
	}
	sort.Strings(botIDs)

	for i, botID := range botIDs {
		// Stagger bot actions so they don't land as a burst.
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(o.cfg.InterBotDelay):
			}
		}

		action, ok := o.planner.Plan(g, botID)
		if !ok {
			continue
		}
		if err := o.ApplyAction(ctx, id, botID, action); err != nil {
			// The match ended or the bot was defeated since the snapshot.
			if errors.Is(err, ErrInvalidState) || errors.Is(err, ErrInvalidActor) || errors.Is(err, ErrMatchNotFound) {
				return
			}
			o.logger.Warn("bot action failed",
				zap.String("match_id", id),
				zap.String("player_id", botID),
				zap.Error(err),
			)
		}
	}
}
