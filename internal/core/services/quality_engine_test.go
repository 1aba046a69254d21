package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"callpilot/internal/core/domain"
	"callpilot/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRecommendTier(t *testing.T) {
	tests := []struct {
		name  string
		count int
		mode  domain.AdaptiveMode
		want  domain.QualityTier
	}{
		{"balanced empty", 0, domain.ModeBalanced, domain.Tier720p},
		{"balanced pair", 2, domain.ModeBalanced, domain.Tier720p},
		{"balanced three", 3, domain.ModeBalanced, domain.Tier480p},
		{"balanced four", 4, domain.ModeBalanced, domain.Tier480p},
		{"balanced five", 5, domain.ModeBalanced, domain.Tier360p},
		{"balanced eight", 8, domain.ModeBalanced, domain.Tier360p},
		{"balanced nine", 9, domain.ModeBalanced, domain.Tier240p},
		{"conservative three", 3, domain.ModeConservative, domain.Tier480p},
		{"conservative four", 4, domain.ModeConservative, domain.Tier360p},
		{"conservative twenty", 20, domain.ModeConservative, domain.Tier360p},
		{"aggressive pair", 2, domain.ModeAggressive, domain.Tier1080p},
		{"aggressive four", 4, domain.ModeAggressive, domain.Tier1080p},
		{"aggressive five", 5, domain.ModeAggressive, domain.Tier360p},
		{"aggressive twelve", 12, domain.ModeAggressive, domain.Tier240p},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RecommendTier(tt.count, tt.mode))
		})
	}
}

func TestQualityDecisionEngine_Evaluate(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	settings := domain.DefaultQualitySettings()

	t.Run("first evaluation ignores cooldown", func(t *testing.T) {
		engine := NewQualityDecisionEngine(nil)
		tier, ok := engine.Evaluate(2, settings, now)
		assert.True(t, ok)
		assert.Equal(t, domain.Tier720p, tier)
	})

	t.Run("balanced recommendations", func(t *testing.T) {
		for count, want := range map[int]domain.QualityTier{1: domain.Tier720p, 5: domain.Tier360p, 9: domain.Tier240p} {
			tier, ok := NewQualityDecisionEngine(nil).Evaluate(count, settings, now)
			require.True(t, ok)
			assert.Equal(t, want, tier, "count %d", count)
		}
	})

	t.Run("aggressive with raised floor", func(t *testing.T) {
		aggressive := domain.QualitySettings{
			Enabled:      true,
			AdaptiveMode: domain.ModeAggressive,
			MinQuality:   domain.Tier480p,
			MaxQuality:   domain.Tier1080p,
		}
		tier, ok := NewQualityDecisionEngine(nil).Evaluate(3, aggressive, now)
		require.True(t, ok)
		assert.Equal(t, domain.Tier1080p, tier)

		tier, ok = NewQualityDecisionEngine(nil).Evaluate(9, aggressive, now)
		require.True(t, ok)
		assert.Equal(t, domain.Tier480p, tier)
	})

	t.Run("disabled never changes", func(t *testing.T) {
		engine := NewQualityDecisionEngine(nil)
		off := settings
		off.Enabled = false
		for _, count := range []int{1, 3, 6, 12} {
			_, ok := engine.Evaluate(count, off, now)
			assert.False(t, ok)
		}
	})

	t.Run("clamped to bounds", func(t *testing.T) {
		engine := NewQualityDecisionEngine(nil)
		bounded := settings
		bounded.MinQuality = domain.Tier360p
		bounded.MaxQuality = domain.Tier480p

		tier, ok := engine.Evaluate(12, bounded, now)
		require.True(t, ok)
		assert.Equal(t, domain.Tier360p, tier)

		tier, ok = engine.Evaluate(1, bounded, now)
		require.True(t, ok)
		assert.Equal(t, domain.Tier480p, tier)
	})

	t.Run("cooldown blocks a second change", func(t *testing.T) {
		engine := NewQualityDecisionEngine(nil)
		tier, ok := engine.Evaluate(2, settings, now)
		require.True(t, ok)
		engine.Commit(tier, now)

		_, ok = engine.Evaluate(6, settings, now.Add(5*time.Second))
		assert.False(t, ok)

		tier, ok = engine.Evaluate(6, settings, now.Add(DefaultQualityCooldown))
		assert.True(t, ok)
		assert.Equal(t, domain.Tier360p, tier)
	})

	t.Run("same tier is not a change", func(t *testing.T) {
		engine := NewQualityDecisionEngine(nil)
		engine.Commit(domain.Tier720p, now)
		_, ok := engine.Evaluate(1, settings, now.Add(time.Minute))
		assert.False(t, ok)
	})

	t.Run("evaluate does not mutate state", func(t *testing.T) {
		engine := NewQualityDecisionEngine(nil)
		before := engine.State()
		_, ok := engine.Evaluate(9, settings, now)
		require.True(t, ok)
		assert.Equal(t, before, engine.State())
	})

	t.Run("invalid settings are ignored", func(t *testing.T) {
		engine := NewQualityDecisionEngine(nil)
		bad := settings
		bad.MinQuality = domain.Tier1080p
		bad.MaxQuality = domain.Tier240p
		_, reason := engine.decide(3, bad, now)
		assert.Equal(t, reasonInvalidSettings, reason)
	})
}

func TestQualityDecisionEngine_StableUnderRepeatedEvaluation(t *testing.T) {
	engine := NewQualityDecisionEngine(nil)
	settings := domain.DefaultQualitySettings()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tier, ok := engine.Evaluate(5, settings, now)
	require.True(t, ok)
	engine.Commit(tier, now)

	for i := 1; i <= 150; i++ {
		_, ok := engine.Evaluate(5, settings, now.Add(time.Duration(i)*time.Second))
		assert.False(t, ok, "evaluation %d changed quality", i)
	}
	assert.Equal(t, domain.Tier360p, engine.State().CurrentQuality)
}

func TestQualityDecisionEngine_Reset(t *testing.T) {
	engine := NewQualityDecisionEngine(nil)
	engine.Commit(domain.Tier480p, time.Now())
	engine.Reset()

	state := engine.State()
	assert.Equal(t, domain.TierAuto, state.CurrentQuality)
	assert.True(t, state.LastAdjustedAt.IsZero())
}

func TestApplyTier(t *testing.T) {
	ctx := context.Background()

	t.Run("missing handle", func(t *testing.T) {
		err := ApplyTier(ctx, nil, domain.Tier720p)
		assert.ErrorIs(t, err, domain.ErrMissingCallContext)
	})

	t.Run("auto only enables video", func(t *testing.T) {
		handle := testutil.NewMockCallHandle()
		require.NoError(t, ApplyTier(ctx, handle, domain.TierAuto))
		handle.AssertCalled(t, "SetIncomingVideoEnabled", mock.Anything, true)
		handle.AssertNotCalled(t, "SetPreferredIncomingVideoResolution", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("off disables video", func(t *testing.T) {
		handle := testutil.NewMockCallHandle()
		require.NoError(t, ApplyTier(ctx, handle, domain.TierOff))
		handle.AssertCalled(t, "SetIncomingVideoEnabled", mock.Anything, false)
		handle.AssertNotCalled(t, "SetPreferredIncomingVideoResolution", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("resolution tier sets preference", func(t *testing.T) {
		handle := testutil.NewMockCallHandle()
		require.NoError(t, ApplyTier(ctx, handle, domain.Tier480p))
		handle.AssertCalled(t, "SetIncomingVideoEnabled", mock.Anything, true)
		handle.AssertCalled(t, "SetPreferredIncomingVideoResolution", mock.Anything,
			domain.Resolution{Width: 640, Height: 480}, []domain.SessionID(nil))
	})

	t.Run("platform failure is returned", func(t *testing.T) {
		handle := &testutil.MockCallHandle{}
		handle.On("SetIncomingVideoEnabled", mock.Anything, true).Return(nil)
		handle.On("SetPreferredIncomingVideoResolution", mock.Anything, mock.Anything, mock.Anything).
			Return(errors.New("sdk rejected"))

		err := ApplyTier(ctx, handle, domain.Tier360p)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sdk rejected")
	})
}
