package match

import (
	"errors"
	"fmt"

	"github.com/hypernova/arena/internal/game/geo"
)

// Errors surfaced by the orchestration core. The HTTP layer maps them to
// status codes; the periodic loops treat every other error as a transient
// store failure to be retried on the next tick.
var (
	// ErrMatchNotFound is returned when no match exists for the given id.
	ErrMatchNotFound = errors.New("match not found")
	// ErrMatchInProgress is returned when joining a match that already started.
	ErrMatchInProgress = errors.New("match already in progress")
	// ErrInvalidState is returned for actions against a non-playing match.
	ErrInvalidState = errors.New("match is not playing")
	// ErrInvalidActor is returned when the actor has no combatant entry.
	ErrInvalidActor = errors.New("invalid actor")
	// ErrInvalidAction is returned for unrecognized action payloads.
	ErrInvalidAction = errors.New("invalid action")
)

// Wire-level action tags.
const (
	actionTagPosition = "position"
	actionTagAction   = "action"

	actionTypeAttack  = "attack"
	actionTypeUseItem = "use_item"
)

// Action is a submitted player or bot action as it appears on the wire:
// either a position update or a typed action (attack, use_item).
type Action struct {
	Type       string        `json:"type"`
	Position   *geo.Position `json:"position,omitempty"`
	Rotation   float64       `json:"rotation,omitempty"`
	ActionType string        `json:"actionType,omitempty"`
	ActionData *ActionData   `json:"actionData,omitempty"`
}

// ActionData carries the parameters of a typed action.
type ActionData struct {
	TargetID string `json:"targetId,omitempty"`
	ItemID   string `json:"itemId,omitempty"`
}

// Variant is one of Move, Attack, or UseItem.
type Variant interface {
	isVariant()
}

// Move overwrites the actor's position.
type Move struct {
	Position geo.Position
	Rotation float64
}

// Attack targets another combatant.
type Attack struct {
	TargetID string
}

// UseItem consumes an inventory item.
type UseItem struct {
	ItemID string
}

func (Move) isVariant()    {}
func (Attack) isVariant()  {}
func (UseItem) isVariant() {}

// Variant validates the wire payload and resolves it to a typed variant.
// Unknown tags are rejected at this boundary so the processor never sees
// malformed actions.
//
// Postcondition: Returns a non-nil Variant, or an error wrapping
// ErrInvalidAction.
func (a Action) Variant() (Variant, error) {
	switch a.Type {
	case actionTagPosition:
		if a.Position == nil {
			return nil, fmt.Errorf("%w: position update without position", ErrInvalidAction)
		}
		return Move{Position: *a.Position, Rotation: a.Rotation}, nil
	case actionTagAction:
		switch a.ActionType {
		case actionTypeAttack:
			if a.ActionData == nil || a.ActionData.TargetID == "" {
				return nil, fmt.Errorf("%w: attack without target", ErrInvalidAction)
			}
			return Attack{TargetID: a.ActionData.TargetID}, nil
		case actionTypeUseItem:
			if a.ActionData == nil || a.ActionData.ItemID == "" {
				return nil, fmt.Errorf("%w: use_item without item", ErrInvalidAction)
			}
			return UseItem{ItemID: a.ActionData.ItemID}, nil
		default:
			return nil, fmt.Errorf("%w: unknown action type %q", ErrInvalidAction, a.ActionType)
		}
	default:
		return nil, fmt.Errorf("%w: unknown move type %q", ErrInvalidAction, a.Type)
	}
}

// MoveAction builds a position-update Action.
func MoveAction(pos geo.Position) Action {
	return Action{Type: actionTagPosition, Position: &pos}
}

// AttackAction builds an attack Action against targetID.
func AttackAction(targetID string) Action {
	return Action{
		Type:       actionTagAction,
		ActionType: actionTypeAttack,
		ActionData: &ActionData{TargetID: targetID},
	}
}

// UseItemAction builds a use_item Action for itemID.
func UseItemAction(itemID string) Action {
	return Action{
		Type:       actionTagAction,
		ActionType: actionTypeUseItem,
		ActionData: &ActionData{ItemID: itemID},
	}
}
