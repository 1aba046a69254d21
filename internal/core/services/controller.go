package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"callpilot/internal/core/domain"
	"callpilot/internal/core/ports"
	"callpilot/pkg/circuitbreaker"
	"callpilot/pkg/tracing"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ControllerConfig holds the tunables of a PresentationController.
type ControllerConfig struct {
	Settings         domain.QualitySettings
	Cooldown         time.Duration
	Layout           LayoutPolicy
	MaxVisibleTiles  int
	MaxStripTiles    int
	HysteresisFactor float64
	Breaker          circuitbreaker.Config
}

func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		Settings:         domain.DefaultQualitySettings(),
		Cooldown:         DefaultQualityCooldown,
		Layout:           DefaultLayoutPolicy(),
		MaxVisibleTiles:  DefaultMaxVisibleTiles,
		MaxStripTiles:    DefaultMaxStripTiles,
		HysteresisFactor: 0.15,
		Breaker:          circuitbreaker.DefaultConfig(),
	}
}

// ControllerOption customizes a PresentationController.
type ControllerOption func(*PresentationController)

func WithRecorder(r ports.DecisionRecorder) ControllerOption {
	return func(c *PresentationController) { c.recorder = r }
}

func WithPublisher(p ports.DecisionPublisher) ControllerOption {
	return func(c *PresentationController) { c.publisher = p }
}

// WithClock replaces time.Now for snapshots without a timestamp.
func WithClock(now func() time.Time) ControllerOption {
	return func(c *PresentationController) { c.now = now }
}

// WithBreakerClock is WithClock for the call handle circuit breaker.
func WithBreakerClock(now func() time.Time) ControllerOption {
	return func(c *PresentationController) { c.breakerClock = now }
}

// PresentationController runs the layout and quality engines over call
// snapshots and applies their decisions through the call handle. One
// evaluation pass runs at a time; both engines see the same snapshot.
type PresentationController struct {
	mu sync.Mutex

	handle       ports.CallHandle
	breaker      *circuitbreaker.CircuitBreaker
	breakerClock func() time.Time

	quality *QualityDecisionEngine
	layout  *LayoutSelector
	grid    *GridGeometryPlanner
	focus   *SpeakerFocusTracker
	network *NetworkQualityClassifier

	settings  domain.QualitySettings
	applied   domain.QualityTier
	sessionID string
	active    bool
	last      domain.CallSnapshot
	decision  domain.Decision

	recorder  ports.DecisionRecorder
	publisher ports.DecisionPublisher
	// seq orders outgoing events; publishing happens after c.mu is
	// released and pubMu drops events older than the last one sent.
	seq          uint64
	pubMu        sync.Mutex
	publishedSeq uint64

	logger *zap.SugaredLogger
	now    func() time.Time

	suppressedLog rate.Sometimes
}

var _ ports.PresentationController = (*PresentationController)(nil)

// NewPresentationController builds a controller. handle may be nil while
// no call is active; every evaluation is then a no-op.
func NewPresentationController(
	handle ports.CallHandle,
	cfg ControllerConfig,
	logger *zap.SugaredLogger,
	opts ...ControllerOption,
) (*PresentationController, error) {
	if err := cfg.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("quality settings: %w", err)
	}
	if err := cfg.Layout.Validate(); err != nil {
		return nil, fmt.Errorf("layout policy: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	c := &PresentationController{
		handle:        handle,
		breakerClock:  time.Now,
		quality:       NewQualityDecisionEngine(logger.Named("quality")),
		layout:        NewLayoutSelector(cfg.Layout),
		grid:          NewGridGeometryPlanner(cfg.MaxVisibleTiles),
		focus:         NewSpeakerFocusTracker(cfg.MaxStripTiles),
		network:       NewNetworkQualityClassifier(),
		settings:      cfg.Settings,
		applied:       domain.TierAuto,
		recorder:      nopRecorder{},
		logger:        logger,
		now:           time.Now,
		suppressedLog: rate.Sometimes{Interval: 30 * time.Second},
	}
	c.quality.SetCooldown(cfg.Cooldown)
	c.network.SetHysteresisFactor(cfg.HysteresisFactor)

	for _, opt := range opts {
		opt(c)
	}

	c.breaker = circuitbreaker.New(cfg.Breaker,
		circuitbreaker.WithClock(c.breakerClock),
		circuitbreaker.WithStateChange(func(from, to circuitbreaker.State) {
			logger.Warnw("call handle breaker state changed", "from", from, "to", to)
		}),
	)
	c.decision = c.deriveLocked(c.now())
	return c, nil
}

// SetCallHandle attaches the handle of a newly joined call, or detaches
// it with nil. Detaching ends the call.
func (c *PresentationController) SetCallHandle(ctx context.Context, handle ports.CallHandle) {
	c.mu.Lock()
	c.handle = handle
	c.breaker.Reset()
	c.mu.Unlock()

	if handle == nil {
		c.EndCall(ctx)
	}
}

// OnSnapshot runs one evaluation pass.
func (c *PresentationController) OnSnapshot(ctx context.Context, snap domain.CallSnapshot) (domain.Decision, error) {
	c.mu.Lock()
	decision, ev := c.evaluateLocked(ctx, snap)
	c.mu.Unlock()

	c.flush(ctx, ev)
	return decision, nil
}

func (c *PresentationController) evaluateLocked(ctx context.Context, snap domain.CallSnapshot) (domain.Decision, *pendingEvent) {
	if c.handle == nil {
		c.logSuppressed("no active call")
		c.recorder.RecordSuppressed("no_call")
		return c.decision, nil
	}
	if snap.At.IsZero() {
		snap.At = c.now()
	}
	if !c.active {
		c.active = true
		c.sessionID = uuid.NewString()
		c.logger.Infow("call session started", "session_id", c.sessionID)
	}

	ctx, span := tracing.TraceEvaluation(ctx, c.sessionID, snap.ParticipantCount(), snap.ScreenShare.String())
	defer span.End()

	c.last = snap
	count := snap.ParticipantCount()
	c.recorder.RecordParticipants(count)

	network := c.network.Classify(snap.Stats)
	c.recorder.RecordNetworkQuality(network)

	prevLayout := c.layout.Current()
	layout, layoutChanged := c.layout.Evaluate(count, snap.ScreenShare)
	if layoutChanged {
		c.recorder.RecordLayoutChange(prevLayout, layout, domain.SourceAutomatic)
		c.logger.Infow("layout switched",
			"session_id", c.sessionID,
			"from", prevLayout,
			"to", layout,
			"participants", count,
			"screen_share", snap.ScreenShare,
		)
	}

	qualityChanged := false
	prevQuality := c.quality.State().CurrentQuality
	tier, reason := c.quality.decide(count, c.settings, snap.At)
	switch {
	case reason != "":
		c.recorder.RecordSuppressed(reason)
	default:
		if err := c.applyLocked(ctx, tier); err != nil {
			// state stays on the last applied tier; the next pass retries
			c.recorder.RecordApplyFailure("quality")
			tracing.RecordError(ctx, err)
			c.logger.Warnw("failed to apply quality",
				"session_id", c.sessionID,
				"tier", tier,
				"error", err,
			)
			break
		}
		c.quality.Commit(tier, snap.At)
		qualityChanged = true
		c.recorder.RecordQualityChange(prevQuality, tier, domain.SourceAutomatic)
		c.logger.Infow("quality adjusted",
			"session_id", c.sessionID,
			"from", prevQuality,
			"to", tier,
			"participants", count,
			"mode", c.settings.AdaptiveMode,
		)
	}

	decision := c.deriveLocked(snap.At)
	decision.LayoutChanged = layoutChanged
	decision.QualityChanged = qualityChanged
	decision.Network = network
	c.decision = decision

	tracing.AddSpanAttributes(ctx,
		tracing.LayoutKey.String(decision.Layout.String()),
		tracing.QualityKey.String(decision.Quality.String()),
	)
	if !decision.Changed() {
		return decision, nil
	}
	return decision, c.decisionEventLocked(decision)
}

// SelectLayout applies a user chosen layout.
func (c *PresentationController) SelectLayout(ctx context.Context, v domain.LayoutVariant) (domain.Decision, error) {
	c.mu.Lock()
	ctx, span := tracing.TraceOverride(ctx, "select_layout", c.sessionID)
	defer span.End()

	prev := c.layout.Current()
	changed, err := c.layout.Select(v)
	if err != nil {
		decision := c.decision
		c.mu.Unlock()
		tracing.RecordError(ctx, err)
		return decision, err
	}

	decision := c.deriveLocked(c.now())
	decision.LayoutChanged = changed
	c.decision = decision
	var ev *pendingEvent
	if changed {
		c.recorder.RecordLayoutChange(prev, v, domain.SourceManual)
		c.logger.Infow("layout selected", "session_id", c.sessionID, "from", prev, "to", v)
		ev = c.decisionEventLocked(decision)
	}
	c.mu.Unlock()

	c.flush(ctx, ev)
	return decision, nil
}

// SetQualitySettings replaces the adaptive settings. The cooldown is not
// reset.
func (c *PresentationController) SetQualitySettings(settings domain.QualitySettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = settings
	c.logger.Infow("quality settings updated",
		"enabled", settings.Enabled,
		"mode", settings.AdaptiveMode,
		"min", settings.MinQuality,
		"max", settings.MaxQuality,
	)
	return nil
}

func (c *PresentationController) QualitySettings() domain.QualitySettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// SetManualQuality writes a user chosen tier straight to the call. It
// races with automatic adjustments; whichever writes last wins.
func (c *PresentationController) SetManualQuality(ctx context.Context, tier domain.QualityTier) error {
	if !tier.Valid() {
		return fmt.Errorf("%w: %d", domain.ErrInvalidTier, int(tier))
	}

	c.mu.Lock()
	ctx, span := tracing.TraceOverride(ctx, "set_quality", c.sessionID)
	defer span.End()

	prev := c.applied
	if err := c.applyLocked(ctx, tier); err != nil {
		c.mu.Unlock()
		c.recorder.RecordApplyFailure("manual_quality")
		tracing.RecordError(ctx, err)
		return err
	}
	c.recorder.RecordQualityChange(prev, tier, domain.SourceManual)
	c.logger.Infow("quality selected", "session_id", c.sessionID, "from", prev, "to", tier)

	// observers follow the applied tier, the engine keeps its own
	decision := c.deriveLocked(c.now())
	decision.QualityChanged = prev != tier
	c.decision = decision
	var ev *pendingEvent
	if decision.QualityChanged {
		ev = c.decisionEventLocked(decision)
	}
	c.mu.Unlock()

	c.flush(ctx, ev)
	return nil
}

// Pin focuses the speaker layouts on a participant of the last snapshot.
func (c *PresentationController) Pin(ctx context.Context, sessionID domain.SessionID) (domain.Decision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := domain.FindParticipant(c.last.Participants, sessionID)
	if !ok {
		return c.decision, fmt.Errorf("%w: %s", domain.ErrParticipantNotFound, sessionID)
	}
	c.focus.Pin(p)
	c.logger.Debugw("participant pinned", "session_id", c.sessionID, "participant", sessionID)

	c.decision = c.deriveLocked(c.now())
	return c.decision, nil
}

func (c *PresentationController) ClearPin(ctx context.Context) (domain.Decision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.focus.ClearPin()
	c.decision = c.deriveLocked(c.now())
	return c.decision, nil
}

// BoostDominantSpeaker requests 1080p for the dominant speaker only,
// falling back to whoever the speaker layout would focus.
func (c *PresentationController) BoostDominantSpeaker(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle == nil {
		return domain.ErrMissingCallContext
	}
	target := ResolveFocus(c.last.Participants, c.last.DominantSpeaker, nil, domain.LocalParticipant(c.last.Participants))
	if target == nil {
		return domain.ErrParticipantNotFound
	}

	ctx, span := tracing.TraceOverride(ctx, "boost_speaker", c.sessionID)
	defer span.End()

	if err := c.applyLocked(ctx, domain.Tier1080p, target.SessionID); err != nil {
		c.recorder.RecordApplyFailure("boost_speaker")
		tracing.RecordError(ctx, err)
		return err
	}
	c.logger.Infow("dominant speaker boosted", "session_id", c.sessionID, "participant", target.SessionID)
	return nil
}

// SetScreenShareEnabled starts or stops the local screen share.
func (c *PresentationController) SetScreenShareEnabled(ctx context.Context, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle == nil {
		return domain.ErrMissingCallContext
	}
	err := c.breaker.Execute(ctx, func() error {
		return c.handle.SetScreenShareEnabled(ctx, enabled)
	})
	if err != nil {
		c.recorder.RecordApplyFailure("set_screen_share")
		return fmt.Errorf("set screen share %t: %w", enabled, err)
	}
	return nil
}

func (c *PresentationController) ToggleScreenShare(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle == nil {
		return domain.ErrMissingCallContext
	}
	err := c.breaker.Execute(ctx, func() error {
		return c.handle.ToggleScreenShare(ctx)
	})
	if err != nil {
		c.recorder.RecordApplyFailure("toggle_screen_share")
		return fmt.Errorf("toggle screen share: %w", err)
	}
	return nil
}

func (c *PresentationController) ApplyScreenSharePreset(ctx context.Context, preset domain.ScreenSharePreset) error {
	settings, err := preset.Settings()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle == nil {
		return domain.ErrMissingCallContext
	}
	err = c.breaker.Execute(ctx, func() error {
		return c.handle.ApplyScreenShareSettings(ctx, settings)
	})
	if err != nil {
		c.recorder.RecordApplyFailure("screen_share_preset")
		return fmt.Errorf("apply screen share preset %s: %w", preset, err)
	}
	c.logger.Infow("screen share preset applied", "session_id", c.sessionID, "preset", preset)
	return nil
}

// EndCall drops all per-call state. Quality returns to auto.
func (c *PresentationController) EndCall(ctx context.Context) {
	c.mu.Lock()
	var ev *pendingEvent
	if c.active {
		c.logger.Infow("call session ended", "session_id", c.sessionID)
		ev = c.eventLocked(nil)
	}
	c.quality.Reset()
	c.layout.Reset()
	c.focus.ClearPin()
	c.network = newClassifierLike(c.network)
	c.applied = domain.TierAuto
	c.active = false
	c.sessionID = ""
	c.last = domain.CallSnapshot{}
	c.decision = c.deriveLocked(c.now())
	c.mu.Unlock()

	c.flush(ctx, ev)
}

// Decision returns the last decision.
func (c *PresentationController) Decision() domain.Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.decision
}

func (c *PresentationController) State() domain.ControllerState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return domain.ControllerState{
		SessionID:      c.sessionID,
		Active:         c.active,
		Layout:         c.layout.Current(),
		Quality:        c.quality.State(),
		AppliedQuality: c.applied,
		Settings:       c.settings,
		Network:        c.network.Last(),
		Focus:          c.focus.State(c.last.DominantSpeaker),
		Grid:           c.grid.PlanFor(c.last.ParticipantCount()),
		Participants:   c.last.ParticipantCount(),
		ScreenSharing:  c.last.ScreenShare.Active(),
		BreakerState:   c.breaker.State().String(),
		LastDecisionAt: c.decision.At,
	}
}

// applyLocked writes a tier through the breaker and remembers it as the
// last applied tier on success.
func (c *PresentationController) applyLocked(ctx context.Context, tier domain.QualityTier, sessionIDs ...domain.SessionID) error {
	if c.handle == nil {
		return domain.ErrMissingCallContext
	}
	err := c.breaker.Execute(ctx, func() error {
		return ApplyTier(ctx, c.handle, tier, sessionIDs...)
	})
	if err != nil {
		return fmt.Errorf("apply %s: %w", tier, err)
	}
	if len(sessionIDs) == 0 {
		c.applied = tier
	}
	return nil
}

// deriveLocked builds the decision for the current engine states. The
// grid and focus are only computed for layouts that render them.
func (c *PresentationController) deriveLocked(at time.Time) domain.Decision {
	layout := c.layout.Current()
	decision := domain.Decision{
		Layout:         layout,
		Quality:        c.quality.State().CurrentQuality,
		AppliedQuality: c.applied,
		Network:        c.network.Last(),
		At:             at,
	}

	participants := c.last.Participants
	switch {
	case layout.UsesGrid():
		plan := c.grid.PlanFor(len(participants))
		visible, overflow := c.grid.Partition(participants)
		decision.Grid = &plan
		decision.Tiles = &domain.GridTiles{
			Visible:           sessionIDs(visible),
			Overflow:          sessionIDs(overflow),
			OverflowTileIndex: plan.OverflowTileIndex(),
			LargeMeeting:      plan.LargeMeeting(),
		}
	case layout.UsesFocus():
		focus := c.focus.Focus(participants, c.last.DominantSpeaker, domain.LocalParticipant(participants))
		shown, hidden := c.focus.Strip(participants, focus)
		decision.Focus = focus
		decision.Strip = &domain.SpeakerStrip{Sessions: sessionIDs(shown), Hidden: hidden}
	}
	return decision
}

func sessionIDs(participants []domain.Participant) []domain.SessionID {
	if len(participants) == 0 {
		return nil
	}
	ids := make([]domain.SessionID, len(participants))
	for i, p := range participants {
		ids[i] = p.SessionID
	}
	return ids
}

// pendingEvent is prepared under c.mu and published after it is released,
// so a slow publisher never holds up an evaluation pass.
type pendingEvent struct {
	seq       uint64
	sessionID string
	decision  *domain.Decision
}

func (c *PresentationController) decisionEventLocked(decision domain.Decision) *pendingEvent {
	return c.eventLocked(&decision)
}

// eventLocked stamps an event for the current session. A nil decision
// announces the end of the call.
func (c *PresentationController) eventLocked(decision *domain.Decision) *pendingEvent {
	if c.publisher == nil || c.sessionID == "" {
		return nil
	}
	c.seq++
	return &pendingEvent{seq: c.seq, sessionID: c.sessionID, decision: decision}
}

func (c *PresentationController) flush(ctx context.Context, ev *pendingEvent) {
	if ev == nil {
		return
	}

	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	if ev.seq <= c.publishedSeq {
		// a newer event already went out
		return
	}
	c.publishedSeq = ev.seq

	if ev.decision != nil {
		if err := c.publisher.PublishDecision(ctx, ev.sessionID, *ev.decision); err != nil {
			c.logger.Warnw("failed to publish decision", "session_id", ev.sessionID, "error", err)
		}
		return
	}
	if p, ok := c.publisher.(ports.CallEndPublisher); ok {
		if err := p.PublishCallEnded(ctx, ev.sessionID); err != nil {
			c.logger.Warnw("failed to publish call end", "session_id", ev.sessionID, "error", err)
		}
	}
}

func (c *PresentationController) logSuppressed(reason string) {
	c.suppressedLog.Do(func() {
		c.logger.Debugw("evaluation skipped", "reason", reason)
	})
}

func newClassifierLike(prev *NetworkQualityClassifier) *NetworkQualityClassifier {
	next := NewNetworkQualityClassifier()
	next.SetHysteresisFactor(prev.hysteresisFactor)
	return next
}

type nopRecorder struct{}

func (nopRecorder) RecordQualityChange(_, _ domain.QualityTier, _ domain.DecisionSource)  {}
func (nopRecorder) RecordLayoutChange(_, _ domain.LayoutVariant, _ domain.DecisionSource) {}
func (nopRecorder) RecordApplyFailure(string)                                             {}
func (nopRecorder) RecordSuppressed(string)                                               {}
func (nopRecorder) RecordNetworkQuality(domain.NetworkQuality)                            {}
func (nopRecorder) RecordParticipants(int)                                                {}
