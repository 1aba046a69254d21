package distributed

import (
	"context"
	"errors"
	"sync"

	"callpilot/internal/core/domain"
	"callpilot/internal/core/ports"
)

// FanOut forwards each decision to every registered publisher.
type FanOut struct {
	mu         sync.RWMutex
	publishers []ports.DecisionPublisher
}

var (
	_ ports.DecisionPublisher = (*FanOut)(nil)
	_ ports.CallEndPublisher  = (*FanOut)(nil)
)

func NewFanOut(publishers ...ports.DecisionPublisher) *FanOut {
	return &FanOut{publishers: publishers}
}

func (f *FanOut) Add(p ports.DecisionPublisher) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishers = append(f.publishers, p)
}

func (f *FanOut) snapshot() []ports.DecisionPublisher {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]ports.DecisionPublisher(nil), f.publishers...)
}

// PublishDecision publishes to all targets and joins their errors.
func (f *FanOut) PublishDecision(ctx context.Context, sessionID string, decision domain.Decision) error {
	var errs []error
	for _, p := range f.snapshot() {
		if err := p.PublishDecision(ctx, sessionID, decision); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishCallEnded forwards to the targets that announce call ends.
func (f *FanOut) PublishCallEnded(ctx context.Context, sessionID string) error {
	var errs []error
	for _, p := range f.snapshot() {
		ender, ok := p.(ports.CallEndPublisher)
		if !ok {
			continue
		}
		if err := ender.PublishCallEnded(ctx, sessionID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
