// Package testutil holds test doubles shared by the controller packages.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"callpilot/internal/core/domain"

	"github.com/stretchr/testify/mock"
)

// MockCallHandle implements ports.CallHandle with testify/mock.
type MockCallHandle struct {
	mock.Mock
}

// NewMockCallHandle returns a handle that accepts every write.
func NewMockCallHandle() *MockCallHandle {
	m := &MockCallHandle{}
	m.AcceptAll()
	return m
}

// AcceptAll registers permissive expectations for every method.
func (m *MockCallHandle) AcceptAll() {
	m.On("SetIncomingVideoEnabled", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("SetPreferredIncomingVideoResolution", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("SetScreenShareEnabled", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("ToggleScreenShare", mock.Anything).Return(nil).Maybe()
	m.On("ApplyScreenShareSettings", mock.Anything, mock.Anything).Return(nil).Maybe()
}

func (m *MockCallHandle) SetIncomingVideoEnabled(ctx context.Context, enabled bool) error {
	args := m.Called(ctx, enabled)
	return args.Error(0)
}

func (m *MockCallHandle) SetPreferredIncomingVideoResolution(ctx context.Context, res domain.Resolution, sessionIDs ...domain.SessionID) error {
	args := m.Called(ctx, res, sessionIDs)
	return args.Error(0)
}

func (m *MockCallHandle) SetScreenShareEnabled(ctx context.Context, enabled bool) error {
	args := m.Called(ctx, enabled)
	return args.Error(0)
}

func (m *MockCallHandle) ToggleScreenShare(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockCallHandle) ApplyScreenShareSettings(ctx context.Context, settings domain.ScreenShareSettings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

// Writes counts calls that change the call, by method name.
func (m *MockCallHandle) Writes(method string) int {
	n := 0
	for _, c := range m.Calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// FakeClock is a manually advanced clock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Participants builds n participants; the first one is local.
func Participants(n int) []domain.Participant {
	out := make([]domain.Participant, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.Participant{
			SessionID:          domain.SessionID(fmt.Sprintf("session-%d", i)),
			UserID:             domain.UserID(fmt.Sprintf("user-%d", i)),
			IsLocalParticipant: i == 0,
		})
	}
	return out
}

// Snapshot builds a call snapshot with n participants.
func Snapshot(n int, share domain.ScreenShareStatus, at time.Time) domain.CallSnapshot {
	return domain.CallSnapshot{
		Participants: Participants(n),
		ScreenShare:  share,
		At:           at,
	}
}
