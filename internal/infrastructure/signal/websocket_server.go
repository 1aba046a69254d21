package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"callpilot/internal/core/domain"
	"callpilot/internal/core/ports"
	"callpilot/internal/infrastructure/distributed"
	"callpilot/internal/infrastructure/webrtc"
	apperrors "callpilot/pkg/errors"
	ctxlog "callpilot/pkg/logger"
	"callpilot/pkg/validation"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the bridge is served to the embedding page only
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// ConnectionRecorder tracks open bridge connections.
type ConnectionRecorder interface {
	RecordConnectionOpened()
	RecordConnectionClosed()
}

type Config struct {
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	MessagesPerSecond float64
	Burst             int
}

func DefaultConfig() Config {
	return Config{
		PingInterval:      30 * time.Second,
		PongTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		MessagesPerSecond: 20,
		Burst:             40,
	}
}

type client struct {
	id      string
	role    string
	conn    *connection
	handle  *callHandle
	limiter *rate.Limiter
}

// WebSocketServer bridges the call platform running in the browser to
// the presentation controller. The platform connection reports snapshots
// and executes the controller's commands; observers only receive
// decisions.
type WebSocketServer struct {
	controller ports.PresentationController
	config     Config
	recorder   ConnectionRecorder

	connections map[string]*client
	platformID  string
	mu          sync.RWMutex

	logger *ctxlog.ContextLogger
	now    func() time.Time
}

var (
	_ ports.DecisionPublisher = (*WebSocketServer)(nil)
	_ ports.CallEndPublisher  = (*WebSocketServer)(nil)
)

func NewWebSocketServer(controller ports.PresentationController, cfg Config, logger *zap.Logger, recorder ConnectionRecorder) *WebSocketServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = def.PongTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.MessagesPerSecond <= 0 {
		cfg.MessagesPerSecond = def.MessagesPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	return &WebSocketServer{
		controller:  controller,
		config:      cfg,
		recorder:    recorder,
		connections: make(map[string]*client),
		logger:      ctxlog.NewContextLogger(logger.Named("bridge")),
		now:         time.Now,
	}
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	if role == "" {
		role = RoleObserver
	}
	if role != RolePlatform && role != RoleObserver {
		http.Error(w, fmt.Sprintf("unknown role %q", role), http.StatusBadRequest)
		return
	}
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = uuid.NewString()
	} else if err := validation.ValidateClientID(clientID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Sugar(r.Context()).Errorw("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		id:      clientID,
		role:    role,
		conn:    newConnection(ws, s.config.WriteTimeout),
		limiter: rate.NewLimiter(rate.Limit(s.config.MessagesPerSecond), s.config.Burst),
	}
	c.handle = &callHandle{conn: c.conn}

	ctx, cancel := context.WithCancel(ctxlog.WithConnectionID(context.Background(), clientID))
	defer cancel()

	s.register(ctx, c)
	defer s.unregister(ctx, c)

	s.serve(ctx, c, ws)
}

func (s *WebSocketServer) register(ctx context.Context, c *client) {
	s.mu.Lock()
	existing, isReconnect := s.connections[c.id]
	s.connections[c.id] = c
	var replacedPlatform *client
	if c.role == RolePlatform {
		if s.platformID != "" && s.platformID != c.id {
			replacedPlatform = s.connections[s.platformID]
		}
		s.platformID = c.id
	}
	s.mu.Unlock()

	if isReconnect && existing != nil {
		existing.conn.close()
	}
	if replacedPlatform != nil {
		replacedPlatform.conn.close()
	}
	if s.recorder != nil {
		s.recorder.RecordConnectionOpened()
	}
	s.logger.Sugar(ctx).Infow("client connected", "role", c.role, "reconnect", isReconnect)
}

func (s *WebSocketServer) unregister(ctx context.Context, c *client) {
	c.conn.close()

	s.mu.Lock()
	wasPlatform := s.platformID == c.id && s.connections[c.id] == c
	if s.connections[c.id] == c {
		delete(s.connections, c.id)
	}
	if wasPlatform {
		s.platformID = ""
	}
	s.mu.Unlock()

	if wasPlatform {
		// the platform going away ends the call
		s.controller.SetCallHandle(ctx, nil)
	}
	if s.recorder != nil {
		s.recorder.RecordConnectionClosed()
	}
	s.logger.Sugar(ctx).Infow("client disconnected", "role", c.role)
}

func (s *WebSocketServer) serve(ctx context.Context, c *client, ws *websocket.Conn) {
	_ = ws.SetReadDeadline(s.now().Add(s.config.PongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(s.now().Add(s.config.PongTimeout))
	})

	pingTicker := time.NewTicker(s.config.PingInterval)
	defer pingTicker.Stop()

	messageChan := make(chan SignalMessage, 16)
	errorChan := make(chan error, 1)

	go func() {
		for {
			var msg SignalMessage
			if err := ws.ReadJSON(&msg); err != nil {
				errorChan <- err
				return
			}
			_ = ws.SetReadDeadline(s.now().Add(s.config.PongTimeout))
			select {
			case messageChan <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	log := s.logger.Sugar(ctx)
	for {
		select {
		case msg := <-messageChan:
			if !c.limiter.Allow() {
				s.sendError(c, apperrors.NewRateLimitError())
				continue
			}
			if err := s.handleMessage(ctx, c, msg); err != nil {
				log.Infow("error handling message", "type", msg.Type, "error", err)
				s.sendError(c, err)
			}

		case <-pingTicker.C:
			if err := c.conn.ping(); err != nil {
				log.Infow("error sending ping", "error", err)
				return
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Infow("error reading message", "error", err)
			}
			return
		}
	}
}

func (s *WebSocketServer) handleMessage(ctx context.Context, c *client, msg SignalMessage) error {
	if msg.Type == "" {
		return apperrors.NewInvalidInputError("message type is required")
	}
	if msg.Type == TypeGetState {
		return c.conn.writeJSON(outgoing{Type: TypeState, Payload: s.controller.State()})
	}
	if c.role != RolePlatform {
		return apperrors.NewInvalidInputError(fmt.Sprintf("observers cannot send %s", msg.Type))
	}

	switch msg.Type {
	case TypeCallJoined:
		s.controller.SetCallHandle(ctx, c.handle)
		return nil
	case TypeCallLeft:
		s.controller.SetCallHandle(ctx, nil)
		return nil
	case TypeSnapshot:
		return s.handleSnapshot(ctx, msg)
	case TypeSelectLayout:
		var p LayoutPayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		if p.Layout == nil {
			return apperrors.NewInvalidInputError("select_layout requires a layout")
		}
		decision, err := s.controller.SelectLayout(ctx, *p.Layout)
		if err != nil {
			return err
		}
		return s.reply(c, decision)
	case TypeSetQuality:
		var p QualityPayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		if p.Tier == nil {
			return apperrors.NewInvalidInputError("set_quality requires a tier")
		}
		return s.controller.SetManualQuality(ctx, *p.Tier)
	case TypeQualitySettings:
		// fields left out keep their current values
		p := s.controller.QualitySettings()
		if err := decode(msg, &p); err != nil {
			return err
		}
		return s.controller.SetQualitySettings(p)
	case TypePin:
		var p PinPayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		decision, err := s.controller.Pin(ctx, p.SessionID)
		if err != nil {
			return err
		}
		return s.reply(c, decision)
	case TypeClearPin:
		decision, err := s.controller.ClearPin(ctx)
		if err != nil {
			return err
		}
		return s.reply(c, decision)
	case TypeBoostSpeaker:
		return s.controller.BoostDominantSpeaker(ctx)
	case TypeScreenShare:
		var p ScreenSharePayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		if p.Enabled == nil {
			return apperrors.NewInvalidInputError("screen_share requires enabled")
		}
		return s.controller.SetScreenShareEnabled(ctx, *p.Enabled)
	case TypeToggleScreenShare:
		return s.controller.ToggleScreenShare(ctx)
	case TypeScreenSharePreset:
		var p PresetPayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		preset, err := domain.ParseScreenSharePreset(p.Preset)
		if err != nil {
			return err
		}
		return s.controller.ApplyScreenSharePreset(ctx, preset)
	default:
		return apperrors.NewInvalidInputError(fmt.Sprintf("unknown message type: %s", msg.Type))
	}
}

func (s *WebSocketServer) handleSnapshot(ctx context.Context, msg SignalMessage) error {
	var p SnapshotPayload
	if err := decode(msg, &p); err != nil {
		return err
	}

	if err := validation.ValidateParticipants(p.Participants); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, "invalid participants", http.StatusBadRequest)
	}

	at := s.now()
	snap := newSnapshot(p, at)
	switch {
	case len(p.Stats) > 0:
		stats, err := webrtc.ParseBrowserStats(p.Stats, at)
		if err != nil {
			return apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, "invalid stats report", http.StatusBadRequest)
		}
		snap.Stats = stats
	case len(p.RTCP) > 0:
		stats, err := webrtc.ParseRTCP(p.RTCP, webrtc.VideoClockRate, at)
		if err != nil {
			return apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, "invalid rtcp packet", http.StatusBadRequest)
		}
		snap.Stats = stats
	}

	// changed decisions reach the client through PublishDecision
	_, err := s.controller.OnSnapshot(ctx, snap)
	return err
}

func (s *WebSocketServer) reply(c *client, decision domain.Decision) error {
	return c.conn.writeJSON(outgoing{
		Type:      TypeDecision,
		SessionID: s.controller.State().SessionID,
		Payload:   decisionPayload{Decision: decision},
	})
}

func decode(msg SignalMessage, v interface{}) error {
	if len(msg.Payload) == 0 {
		return apperrors.NewInvalidInputError(fmt.Sprintf("%s payload is required", msg.Type))
	}
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeInvalidInput,
			fmt.Sprintf("invalid %s payload", msg.Type), http.StatusBadRequest)
	}
	return nil
}

func (s *WebSocketServer) sendError(c *client, err error) {
	appErr := apperrors.FromDomain(err)
	_ = c.conn.writeJSON(outgoing{
		Type:    TypeError,
		Payload: ErrorPayload{Code: string(appErr.Code), Message: appErr.Error()},
	})
}

// PublishDecision sends a decision to every connected client.
func (s *WebSocketServer) PublishDecision(ctx context.Context, sessionID string, decision domain.Decision) error {
	return s.broadcast(outgoing{
		Type:      TypeDecision,
		SessionID: sessionID,
		Payload:   decisionPayload{Decision: decision},
	})
}

// HandleRemoteEvent relays a decision made by another instance to the
// local observers.
func (s *WebSocketServer) HandleRemoteEvent(event *distributed.Event) error {
	switch event.Type {
	case distributed.EventDecision:
		if event.Decision == nil {
			return nil
		}
		return s.broadcast(outgoing{
			Type:      TypeDecision,
			SessionID: event.SessionID,
			Payload:   decisionPayload{Decision: *event.Decision, Remote: true},
		})
	case distributed.EventCallEnded:
		return s.broadcast(outgoing{
			Type:      TypeCallEnded,
			SessionID: event.SessionID,
			Payload:   remoteMarker{Remote: true},
		})
	}
	return nil
}

// PublishCallEnded tells every client that the call session is over.
func (s *WebSocketServer) PublishCallEnded(ctx context.Context, sessionID string) error {
	return s.broadcast(outgoing{Type: TypeCallEnded, SessionID: sessionID})
}

func (s *WebSocketServer) broadcast(message outgoing) error {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.connections))
	for _, c := range s.connections {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	var failed int
	for _, c := range clients {
		if err := c.conn.writeJSON(message); err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("broadcast completed with %d errors", failed)
	}
	return nil
}

func (s *WebSocketServer) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

func (s *WebSocketServer) PlatformConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.platformID != ""
}

// Close disconnects every client.
func (s *WebSocketServer) Close() {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.connections))
	for _, c := range s.connections {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		c.conn.close()
	}
}
