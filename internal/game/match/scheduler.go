package match

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/hypernova/arena/internal/game/geo"
)

// schedulerTick runs once per second for a playing match: it counts the
// round clock down, shrinks the safe zone mid-round, and advances or ends
// the match when the clock hits zero.
func (o *Orchestrator) schedulerTick(ctx context.Context, id string) {
	m, err := o.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrMatchNotFound) {
			o.tasks.Cancel(id)
			return
		}
		o.logger.Warn("scheduler read failed",
			zap.String("match_id", id),
			zap.Error(err),
		)
		return
	}
	if m.Status != StatusPlaying || m.GameState == nil {
		o.tasks.Cancel(id)
		return
	}

	remaining := m.GameState.TimeRemaining - 1
	if remaining <= 0 {
		if m.GameState.Round >= o.cfg.MaxRounds {
			if err := o.End(ctx, id); err != nil {
				o.logger.Warn("ending match failed",
					zap.String("match_id", id),
					zap.Error(err),
				)
			}
			return
		}
		o.advanceRound(ctx, id)
		return
	}

	// The countdown is a leaf write: the scheduler is the sole writer of
	// timeRemaining, so no read-modify-write cycle is needed.
	if err := o.repo.SetTimeRemaining(ctx, id, remaining); err != nil {
		o.logger.Warn("countdown write failed",
			zap.String("match_id", id),
			zap.Error(err),
		)
		return
	}

	if remaining < o.cfg.ShrinkBelow && remaining%o.cfg.ShrinkEvery == 0 {
		o.shrinkZone(ctx, id)
	}
}

// advanceRound moves a playing match to its next round: the clock resets,
// the safe zone contracts by one step, and a fresh item set spawns.
func (o *Orchestrator) advanceRound(ctx context.Context, id string) {
	now := o.Clock()
	err := o.repo.Update(ctx, id, func(m *Match) error {
		if m.Status != StatusPlaying || m.GameState == nil {
			return nil
		}
		g := m.GameState
		g.Round++
		g.TimeRemaining = o.cfg.RoundSeconds

		radius := o.cfg.InitialRadius - float64(g.Round-1)*o.cfg.RadiusStep
		if radius < o.cfg.MinRadius {
			radius = o.cfg.MinRadius
		}
		g.SafeZone = SafeZone{Center: geo.Position{}, Radius: radius}
		g.Items = o.generateItems()

		appendEvent(g, now, Event{
			Type:        EventRoundStart,
			RoundNumber: g.Round,
			Timestamp:   now.UnixMilli(),
		})
		o.logger.Info("round started",
			zap.String("match_id", id),
			zap.Int("round", g.Round),
			zap.Float64("zone_radius", radius),
		)
		return nil
	})
	if err != nil {
		o.logger.Warn("round advance failed",
			zap.String("match_id", id),
			zap.Error(err),
		)
	}
}

// shrinkZone contracts the safe zone by the configured factor, never below
// the minimum radius.
func (o *Orchestrator) shrinkZone(ctx context.Context, id string) {
	now := o.Clock()
	err := o.repo.Update(ctx, id, func(m *Match) error {
		if m.Status != StatusPlaying || m.GameState == nil {
			return nil
		}
		g := m.GameState
		radius := g.SafeZone.Radius * o.cfg.ShrinkFactor
		if radius < o.cfg.MinRadius {
			radius = o.cfg.MinRadius
		}
		if radius == g.SafeZone.Radius {
			return nil
		}
		g.SafeZone.Radius = radius

		appendEvent(g, now, Event{
			Type:      EventZoneShrink,
			NewRadius: radius,
			Timestamp: now.UnixMilli(),
		})
		o.logger.Debug("zone shrunk",
			zap.String("match_id", id),
			zap.Float64("zone_radius", radius),
		)
		return nil
	})
	if err != nil {
		o.logger.Warn("zone shrink failed",
			zap.String("match_id", id),
			zap.Error(err),
		)
	}
}
