package match

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task roles. Each live match owns at most one task per role.
const (
	RoleScheduler = "scheduler"
	RoleBotLoop   = "botloop"
	RoleBotFill   = "botfill"
)

// TaskSet is the per-process registry of running match tasks: one cancellable
// periodic task per (match id, role). It exists so that ending a match can
// deterministically stop that match's timers, and nothing else.
// All methods are safe for concurrent use.
//
// Invariant: starting a task for an occupied (match, role) slot replaces the
// previous task, cancelling it first.
type TaskSet struct {
	logger *zap.Logger
	mu     sync.Mutex
	cancel map[string]map[string]context.CancelFunc // matchID → role → cancel
}

// NewTaskSet creates an empty TaskSet.
//
// Precondition: logger must be non-nil.
func NewTaskSet(logger *zap.Logger) *TaskSet {
	return &TaskSet{
		logger: logger,
		cancel: make(map[string]map[string]context.CancelFunc),
	}
}

// StartPeriodic runs fn every interval until the task is cancelled. A panic
// inside fn is recovered and logged; one match's tick can never take down
// another match's tasks.
//
// Precondition: interval > 0; fn must not be nil.
func (t *TaskSet) StartPeriodic(matchID, role string, interval time.Duration, fn func(ctx context.Context)) {
	if interval <= 0 {
		panic("match.TaskSet.StartPeriodic: interval must be > 0")
	}
	ctx := t.register(matchID, role)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.run(ctx, matchID, role, fn)
			}
		}
	}()
}

// ScheduleOnce runs fn once after delay unless the task is cancelled first.
//
// Precondition: delay >= 0; fn must not be nil.
func (t *TaskSet) ScheduleOnce(matchID, role string, delay time.Duration, fn func(ctx context.Context)) {
	ctx := t.register(matchID, role)

	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			t.run(ctx, matchID, role, fn)
			t.CancelRole(matchID, role)
		}
	}()
}

// run invokes fn with panic isolation.
func (t *TaskSet) run(ctx context.Context, matchID, role string, fn func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("match task panicked",
				zap.String("match_id", matchID),
				zap.String("role", role),
				zap.Any("panic", r),
			)
		}
	}()
	fn(ctx)
}

// register reserves the (matchID, role) slot, cancelling any previous holder,
// and returns the new task context.
func (t *TaskSet) register(matchID, role string) context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	t.mu.Lock()
	defer t.mu.Unlock()
	roles, ok := t.cancel[matchID]
	if !ok {
		roles = make(map[string]context.CancelFunc)
		t.cancel[matchID] = roles
	}
	if prev, ok := roles[role]; ok {
		prev()
	}
	roles[role] = cancel
	return ctx
}

// Cancel stops every task for matchID. Safe to call repeatedly; cancelling an
// unknown match is a no-op.
//
// Postcondition: No task for matchID will tick after its cancellation is
// observed (cooperative: an in-flight tick may complete).
func (t *TaskSet) Cancel(matchID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, cancel := range t.cancel[matchID] {
		cancel()
	}
	delete(t.cancel, matchID)
}

// CancelRole stops the single task in the (matchID, role) slot.
func (t *TaskSet) CancelRole(matchID, role string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	roles, ok := t.cancel[matchID]
	if !ok {
		return
	}
	if cancel, ok := roles[role]; ok {
		cancel()
		delete(roles, role)
	}
	if len(roles) == 0 {
		delete(t.cancel, matchID)
	}
}

// CancelAll stops every task for every match. Used at shutdown.
func (t *TaskSet) CancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for matchID, roles := range t.cancel {
		for _, cancel := range roles {
			cancel()
		}
		delete(t.cancel, matchID)
	}
}

// ActiveMatches returns the number of matches with at least one live task.
func (t *TaskSet) ActiveMatches() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.cancel)
}
