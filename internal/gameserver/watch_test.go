package gameserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypernova/arena/internal/game/match"
)

func wsURL(ts *httptest.Server, gameID string) string {
	return strings.Replace(ts.URL, "http", "ws", 1) + "/games/watch?gameId=" + gameID
}

func TestWatchRequiresGameID(t *testing.T) {
	srv, _ := newTestServer(t, 4)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/games/watch")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWatchUnknownGame(t *testing.T) {
	srv, _ := newTestServer(t, 4)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/games/watch?gameId=no-such-game")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWatchStreamsSnapshots(t *testing.T) {
	srv, orch := newTestServer(t, 4)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx := context.Background()
	id, _, err := orch.CreateMatch(ctx, "p1", "Alice")
	require.NoError(t, err)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, id), nil)
	require.NoError(t, err)
	if resp != nil {
		defer resp.Body.Close()
	}
	defer conn.Close()

	readSnapshot := func() map[string]any {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var snap map[string]any
		require.NoError(t, json.Unmarshal(data, &snap))
		return snap
	}

	// The first frame is the state at connect time.
	snap := readSnapshot()
	assert.Equal(t, string(match.StatusWaiting), snap["status"])
	players, ok := snap["players"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, players, "p1")

	// A roster change pushes a fresh frame.
	_, err = orch.Join(ctx, id, "p2", "Bob")
	require.NoError(t, err)

	for {
		snap = readSnapshot()
		players, ok = snap["players"].(map[string]any)
		require.True(t, ok)
		if _, joined := players["p2"]; joined {
			break
		}
	}
}
