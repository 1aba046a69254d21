package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParticipant_DisplayName(t *testing.T) {
	name := "Ada"
	empty := ""
	assert.Equal(t, "Ada", Participant{Name: &name, UserID: "u1"}.DisplayName())
	assert.Equal(t, "u1", Participant{Name: &empty, UserID: "u1"}.DisplayName())
	assert.Equal(t, "Unknown", Participant{}.DisplayName())
}

func TestFindAndLocalParticipant(t *testing.T) {
	participants := []Participant{
		{SessionID: "a", UserID: "u-a"},
		{SessionID: "b", UserID: "u-b", IsLocalParticipant: true},
	}

	p, ok := FindParticipant(participants, "a")
	require.True(t, ok)
	assert.Equal(t, UserID("u-a"), p.UserID)

	_, ok = FindParticipant(participants, "c")
	assert.False(t, ok)

	local := LocalParticipant(participants)
	require.NotNil(t, local)
	assert.Equal(t, SessionID("b"), local.SessionID)
	assert.Nil(t, LocalParticipant(participants[:1]))
}

func TestScreenShareStatus(t *testing.T) {
	assert.True(t, ScreenShareEnabled.Active())
	assert.False(t, ScreenShareDisabled.Active())
	assert.False(t, ScreenShareUndefined.Active())

	var s ScreenShareStatus
	require.NoError(t, s.UnmarshalText([]byte("enabled")))
	assert.Equal(t, ScreenShareEnabled, s)
	require.NoError(t, s.UnmarshalText([]byte("")))
	assert.Equal(t, ScreenShareUndefined, s)
	assert.Error(t, s.UnmarshalText([]byte("paused")))
}

func TestLayoutVariant(t *testing.T) {
	for _, v := range AllLayouts() {
		parsed, err := ParseLayoutVariant(v.String())
		require.NoError(t, err)
		assert.Equal(t, v, parsed)
	}
	_, err := ParseLayoutVariant("carousel")
	assert.ErrorIs(t, err, ErrInvalidLayout)

	assert.True(t, LayoutClassicGrid.UsesGrid())
	assert.True(t, LayoutSpeakerCenter.UsesFocus())
	assert.False(t, LayoutScreenShare.UsesGrid())
	assert.False(t, LayoutScreenShare.UsesFocus())
}

func TestScreenSharePreset(t *testing.T) {
	settings, err := PresetMedium.Settings()
	require.NoError(t, err)
	assert.Equal(t, ScreenShareSettings{MaxWidth: 1920, MaxHeight: 1080, MaxFramerate: 25, MaxBitrate: 1_500_000}, settings)

	p, err := ParseScreenSharePreset("ULTRA")
	require.NoError(t, err)
	assert.Equal(t, PresetUltra, p)

	_, err = ParseScreenSharePreset("8k")
	assert.ErrorIs(t, err, ErrInvalidScreenPreset)
}

func TestDecision_Changed(t *testing.T) {
	assert.False(t, Decision{}.Changed())
	assert.True(t, Decision{LayoutChanged: true}.Changed())
	assert.True(t, Decision{QualityChanged: true}.Changed())
}

func TestDecision_JSONRoundTrip(t *testing.T) {
	name := "Grace"
	in := Decision{
		Layout:        LayoutSpeakerCenter,
		Quality:       Tier480p,
		Network:       NetworkPoor,
		Focus:         &Participant{SessionID: "s1", UserID: "u1", Name: &name},
		Grid:          &GridPlan{Config: GridConfig{Columns: 2, Rows: 2, Gap: GapMD}, VisibleCount: 4, Total: 4},
		LayoutChanged: true,
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Decision
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}
