package distributed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"callpilot/internal/core/domain"
	"callpilot/internal/core/ports"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the pub/sub channel decisions are fanned out on.
const DefaultChannel = "callpilot:decisions"

// EventType represents the type of event
type EventType string

const (
	EventDecision  EventType = "decision.made"
	EventCallEnded EventType = "call.ended"
)

// Event is one message on the decision bus.
type Event struct {
	Type       EventType        `json:"type"`
	InstanceID string           `json:"instance_id"`
	SessionID  string           `json:"session_id"`
	Timestamp  time.Time        `json:"timestamp"`
	Decision   *domain.Decision `json:"decision,omitempty"`
}

var ErrAlreadySubscribed = errors.New("event bus already subscribed")

// redisClient is the part of the go-redis client the bus needs.
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// EventBus publishes controller decisions so other instances and
// dashboards can follow a call.
type EventBus struct {
	client     redisClient
	instanceID string
	channel    string
	logger     *zap.SugaredLogger
	now        func() time.Time

	mu     sync.Mutex
	pubsub *redis.PubSub
}

var (
	_ ports.DecisionPublisher = (*EventBus)(nil)
	_ ports.CallEndPublisher  = (*EventBus)(nil)
)

func NewEventBus(client redisClient, channel, instanceID string, logger *zap.SugaredLogger) *EventBus {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		channel:    channel,
		logger:     logger,
		now:        time.Now,
	}
}

// Publish publishes an event to the event bus
func (eb *EventBus) Publish(ctx context.Context, event *Event) error {
	event.InstanceID = eb.instanceID
	event.Timestamp = eb.now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := eb.client.Publish(ctx, eb.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("published event",
		"type", event.Type,
		"session_id", event.SessionID,
	)
	return nil
}

func (eb *EventBus) PublishDecision(ctx context.Context, sessionID string, decision domain.Decision) error {
	return eb.Publish(ctx, &Event{
		Type:      EventDecision,
		SessionID: sessionID,
		Decision:  &decision,
	})
}

func (eb *EventBus) PublishCallEnded(ctx context.Context, sessionID string) error {
	return eb.Publish(ctx, &Event{Type: EventCallEnded, SessionID: sessionID})
}

// Subscribe delivers events from other instances to handler until ctx is
// done.
func (eb *EventBus) Subscribe(ctx context.Context, handler func(*Event) error) error {
	eb.mu.Lock()
	if eb.pubsub != nil {
		eb.mu.Unlock()
		return ErrAlreadySubscribed
	}
	pubsub := eb.client.Subscribe(ctx, eb.channel)
	eb.pubsub = pubsub
	eb.mu.Unlock()

	defer func() {
		eb.mu.Lock()
		eb.pubsub = nil
		eb.mu.Unlock()
		_ = pubsub.Close()
	}()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			eb.dispatch(msg.Payload, handler)
		}
	}
}

func (eb *EventBus) dispatch(payload string, handler func(*Event) error) {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		eb.logger.Warnw("failed to unmarshal event",
			"error", err,
			"payload", payload,
		)
		return
	}

	// Skip events from this instance
	if event.InstanceID == eb.instanceID {
		return
	}

	if err := handler(&event); err != nil {
		eb.logger.Warnw("error handling event",
			"type", event.Type,
			"error", err,
		)
	}
}

// Close closes the event bus
func (eb *EventBus) Close() error {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.pubsub != nil {
		return eb.pubsub.Close()
	}
	return nil
}
