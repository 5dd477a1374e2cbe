package gameserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hypernova/arena/internal/game/match"
)

// createRequest is the body of POST /games/create and /games/join.
type createRequest struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	GameID     string `json:"gameId,omitempty"`
}

// moveRequest is the body of POST /games/move.
type moveRequest struct {
	GameID   string       `json:"gameId"`
	PlayerID string       `json:"playerId"`
	Move     match.Action `json:"moveData"`
}

// handleCreate creates a fresh match with the requester seated first.
//
// Responses: 201 with the match record, 400 on a malformed body, 500 when
// the store rejects the write.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	id, m, err := s.orch.CreateMatch(r.Context(), req.PlayerID, req.PlayerName)
	if err != nil {
		s.logger.Error("create match failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create game")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":  true,
		"gameId":   id,
		"gameData": m,
	})
}

// handleJoin seats the requester in an existing match. Without an explicit
// gameId the first waiting match with room is used; when none exists a new
// match is created instead, so the endpoint always seats the player
// somewhere.
//
// Responses: 200 on a seat, 404 "Game not found" for an unknown explicit id,
// 400 "Game already in progress" when the match left the waiting state.
func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	id := req.GameID
	if id == "" {
		if id = s.orch.FindJoinableMatch(r.Context()); id == "" {
			created, m, err := s.orch.CreateMatch(r.Context(), req.PlayerID, req.PlayerName)
			if err != nil {
				s.logger.Error("create match failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "Failed to create game")
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"success":    true,
				"gameId":     created,
				"playerData": m.Players[req.PlayerID],
			})
			return
		}
	}

	entry, err := s.orch.Join(r.Context(), id, req.PlayerID, req.PlayerName)
	switch {
	case errors.Is(err, match.ErrMatchNotFound):
		writeError(w, http.StatusNotFound, "Game not found")
		return
	case errors.Is(err, match.ErrMatchInProgress):
		writeError(w, http.StatusBadRequest, "Game already in progress")
		return
	case err != nil:
		s.logger.Error("join failed", zap.String("match_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to join game")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"gameId":     id,
		"playerData": entry,
	})
}

// handleMove applies one action for a human player. Bot roster entries are
// rejected here: their actions come only from the in-process bot loop.
//
// Responses: 200 on success, 400 "Invalid game state" when the match is
// missing or not playing, 403 "Invalid player" for actors outside the
// roster or bot ids, 400 "Invalid move type" for malformed actions.
func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GameID == "" || req.PlayerID == "" {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	m, err := s.orch.GetMatch(r.Context(), req.GameID)
	if err != nil || m.Status != match.StatusPlaying {
		writeError(w, http.StatusBadRequest, "Invalid game state")
		return
	}
	entry, ok := m.Players[req.PlayerID]
	if !ok || entry.IsBot {
		writeError(w, http.StatusForbidden, "Invalid player")
		return
	}

	err = s.orch.ApplyAction(r.Context(), req.GameID, req.PlayerID, req.Move)
	switch {
	case errors.Is(err, match.ErrInvalidAction):
		writeError(w, http.StatusBadRequest, "Invalid move type")
		return
	case errors.Is(err, match.ErrInvalidState), errors.Is(err, match.ErrMatchNotFound):
		writeError(w, http.StatusBadRequest, "Invalid game state")
		return
	case errors.Is(err, match.ErrInvalidActor):
		writeError(w, http.StatusForbidden, "Invalid player")
		return
	case err != nil:
		s.logger.Error("move failed",
			zap.String("match_id", req.GameID),
			zap.String("player_id", req.PlayerID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Failed to process move")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
