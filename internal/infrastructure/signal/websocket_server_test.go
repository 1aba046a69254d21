package signal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"callpilot/internal/core/domain"
	"callpilot/internal/core/services"
	"callpilot/internal/infrastructure/distributed"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type bridgeFixture struct {
	server     *WebSocketServer
	controller *services.PresentationController
	http       *httptest.Server
}

func newBridgeFixture(t *testing.T) *bridgeFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	fan := distributed.NewFanOut()
	controller, err := services.NewPresentationController(nil, services.DefaultControllerConfig(),
		logger.Sugar(), services.WithPublisher(fan))
	require.NoError(t, err)

	server := NewWebSocketServer(controller, DefaultConfig(), logger, nil)
	fan.Add(server)

	ts := httptest.NewServer(http.HandlerFunc(server.HandleWebSocket))
	t.Cleanup(func() {
		server.Close()
		ts.Close()
	})
	return &bridgeFixture{server: server, controller: controller, http: ts}
}

func (f *bridgeFixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload interface{}) {
	t.Helper()
	msg := map[string]interface{}{"type": msgType}
	if payload != nil {
		msg["payload"] = payload
	}
	require.NoError(t, conn.WriteJSON(msg))
}

type received struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Payload   json.RawMessage `json:"payload"`
}

func readUntil(t *testing.T, conn *websocket.Conn, msgType string) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg received
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == msgType {
			return msg
		}
	}
}

func participantsPayload(n int) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, map[string]interface{}{
			"session_id":           "s" + string(rune('a'+i)),
			"user_id":              "u" + string(rune('a'+i)),
			"is_local_participant": i == 0,
		})
	}
	return out
}

func TestWebSocketServer_PlatformSnapshotFlow(t *testing.T) {
	f := newBridgeFixture(t)
	platform := f.dial(t, "role=platform&client_id=ui")
	observer := f.dial(t, "role=observer")

	require.Eventually(t, func() bool { return f.server.ConnectionCount() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, f.server.PlatformConnected())

	send(t, platform, TypeCallJoined, nil)
	send(t, platform, TypeSnapshot, map[string]interface{}{
		"participants": participantsPayload(2),
		"screen_share": "disabled",
	})

	cmd := readUntil(t, platform, CommandPreferredResolution)
	var res ResolutionCommand
	require.NoError(t, json.Unmarshal(cmd.Payload, &res))
	assert.Equal(t, 1280, res.Width)
	assert.Equal(t, 720, res.Height)

	msg := readUntil(t, platform, TypeDecision)
	var decision domain.Decision
	require.NoError(t, json.Unmarshal(msg.Payload, &decision))
	assert.Equal(t, domain.LayoutZoomSpeaker, decision.Layout)
	assert.Equal(t, domain.Tier720p, decision.Quality)
	assert.Equal(t, domain.Tier720p, decision.AppliedQuality)
	assert.NotEmpty(t, msg.SessionID)
	require.NotNil(t, decision.Focus)
	assert.Equal(t, domain.SessionID("sb"), decision.Focus.SessionID)
	require.NotNil(t, decision.Strip)
	assert.Equal(t, []domain.SessionID{"sa"}, decision.Strip.Sessions)

	observed := readUntil(t, observer, TypeDecision)
	assert.Equal(t, msg.SessionID, observed.SessionID)

	// growing past four participants moves to the grid
	send(t, platform, TypeSnapshot, map[string]interface{}{
		"participants": participantsPayload(6),
		"screen_share": "disabled",
	})
	msg = readUntil(t, platform, TypeDecision)
	decision = domain.Decision{}
	require.NoError(t, json.Unmarshal(msg.Payload, &decision))
	assert.Equal(t, domain.LayoutResponsiveGrid, decision.Layout)
	assert.Nil(t, decision.Strip)
	require.NotNil(t, decision.Tiles)
	assert.Equal(t, []domain.SessionID{"sa", "sb", "sc", "sd", "se", "sf"}, decision.Tiles.Visible)
	assert.Empty(t, decision.Tiles.Overflow)
	assert.Equal(t, -1, decision.Tiles.OverflowTileIndex)
	assert.False(t, decision.Tiles.LargeMeeting)
}

func TestWebSocketServer_PartialSettingsKeepBounds(t *testing.T) {
	f := newBridgeFixture(t)
	platform := f.dial(t, "role=platform")

	send(t, platform, TypeCallJoined, nil)
	send(t, platform, TypeQualitySettings, map[string]interface{}{"enabled": true})
	send(t, platform, TypeSnapshot, map[string]interface{}{"participants": participantsPayload(2)})

	// video stays on at the recommended tier
	cmd := readUntil(t, platform, CommandPreferredResolution)
	var res ResolutionCommand
	require.NoError(t, json.Unmarshal(cmd.Payload, &res))
	assert.Equal(t, 720, res.Height)

	send(t, platform, TypeQualitySettings, map[string]interface{}{"adaptive_mode": "conservative"})
	send(t, platform, TypeGetState, nil)
	msg := readUntil(t, platform, TypeState)
	var state domain.ControllerState
	require.NoError(t, json.Unmarshal(msg.Payload, &state))

	want := domain.DefaultQualitySettings()
	want.AdaptiveMode = domain.ModeConservative
	assert.Equal(t, want, state.Settings)
	assert.Equal(t, domain.Tier720p, state.AppliedQuality)
}

func TestWebSocketServer_MissingFieldsRejected(t *testing.T) {
	f := newBridgeFixture(t)
	platform := f.dial(t, "role=platform")

	send(t, platform, TypeCallJoined, nil)
	send(t, platform, TypeSnapshot, map[string]interface{}{"participants": participantsPayload(6)})
	readUntil(t, platform, TypeDecision)

	tests := []struct {
		msgType string
		message string
	}{
		{TypeSelectLayout, "select_layout requires a layout"},
		{TypeSetQuality, "set_quality requires a tier"},
		{TypeScreenShare, "screen_share requires enabled"},
	}
	for _, tt := range tests {
		send(t, platform, tt.msgType, map[string]interface{}{})
		msg := readUntil(t, platform, TypeError)
		assert.Contains(t, string(msg.Payload), "INVALID_INPUT", tt.msgType)
		assert.Contains(t, string(msg.Payload), tt.message, tt.msgType)
	}

	state := f.controller.State()
	assert.Equal(t, domain.LayoutResponsiveGrid, state.Layout)
	assert.Equal(t, domain.Tier360p, state.AppliedQuality)
}

func TestWebSocketServer_ScreenShareCommand(t *testing.T) {
	f := newBridgeFixture(t)
	platform := f.dial(t, "role=platform")

	send(t, platform, TypeCallJoined, nil)
	send(t, platform, TypeScreenShare, map[string]bool{"enabled": true})

	cmd := readUntil(t, platform, CommandSetScreenShare)
	assert.JSONEq(t, `{"enabled":true}`, string(cmd.Payload))
}

func TestWebSocketServer_ObserverCannotDrive(t *testing.T) {
	f := newBridgeFixture(t)
	observer := f.dial(t, "role=observer")

	send(t, observer, TypeSnapshot, map[string]interface{}{"participants": participantsPayload(1)})
	msg := readUntil(t, observer, TypeError)

	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, "INVALID_INPUT", payload.Code)

	send(t, observer, TypeGetState, nil)
	state := readUntil(t, observer, TypeState)
	var s domain.ControllerState
	require.NoError(t, json.Unmarshal(state.Payload, &s))
	assert.False(t, s.Active)
}

func TestWebSocketServer_ErrorsAreReported(t *testing.T) {
	f := newBridgeFixture(t)
	platform := f.dial(t, "role=platform")

	send(t, platform, "teleport", nil)
	msg := readUntil(t, platform, TypeError)
	assert.Contains(t, string(msg.Payload), "INVALID_INPUT")

	// no call joined yet
	send(t, platform, TypeToggleScreenShare, nil)
	msg = readUntil(t, platform, TypeError)
	assert.Contains(t, string(msg.Payload), "NO_ACTIVE_CALL")

	send(t, platform, TypeSelectLayout, map[string]string{"layout": "screen-share"})
	msg = readUntil(t, platform, TypeError)
	assert.Contains(t, string(msg.Payload), "INVALID_INPUT")

	send(t, platform, TypeSnapshot, map[string]interface{}{
		"participants": participantsPayload(1),
		"stats":        map[string]string{"not": "an array"},
	})
	msg = readUntil(t, platform, TypeError)
	assert.Contains(t, string(msg.Payload), "invalid stats report")

	send(t, platform, TypeSnapshot, map[string]interface{}{
		"participants": []map[string]interface{}{{"session_id": "dup"}, {"session_id": "dup"}},
	})
	msg = readUntil(t, platform, TypeError)
	assert.Contains(t, string(msg.Payload), "duplicate session id")
}

func TestWebSocketServer_PlatformDisconnectEndsCall(t *testing.T) {
	f := newBridgeFixture(t)
	platform := f.dial(t, "role=platform")

	send(t, platform, TypeCallJoined, nil)
	send(t, platform, TypeSnapshot, map[string]interface{}{"participants": participantsPayload(3)})
	readUntil(t, platform, TypeDecision)
	require.True(t, f.controller.State().Active)

	require.NoError(t, platform.Close())
	require.Eventually(t, func() bool {
		return !f.controller.State().Active && !f.server.PlatformConnected()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketServer_RemoteEvents(t *testing.T) {
	f := newBridgeFixture(t)
	observer := f.dial(t, "role=observer")
	require.Eventually(t, func() bool { return f.server.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.server.HandleRemoteEvent(&distributed.Event{Type: distributed.EventCallEnded, SessionID: "old-call"}))
	ended := readUntil(t, observer, TypeCallEnded)
	assert.Equal(t, "old-call", ended.SessionID)

	require.NoError(t, f.server.HandleRemoteEvent(&distributed.Event{
		Type:      distributed.EventDecision,
		SessionID: "remote-call",
		Decision:  &domain.Decision{Layout: domain.LayoutClassicGrid},
	}))

	msg := readUntil(t, observer, TypeDecision)
	assert.Equal(t, "remote-call", msg.SessionID)
	assert.Contains(t, string(msg.Payload), `"remote":true`)
}

func TestWebSocketServer_RejectsUnknownRole(t *testing.T) {
	f := newBridgeFixture(t)
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws?role=admin"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestWebSocketServer_RejectsMalformedClientID(t *testing.T) {
	f := newBridgeFixture(t)
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws?role=observer&client_id=not%20valid"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}
