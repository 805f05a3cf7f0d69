package personalization

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strideai/coach/internal/profile"
	"github.com/strideai/coach/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	st := store.New(store.NewMockDriver(), &profile.Profile{Mode: "dev", Driver: "sqlite"})
	t.Cleanup(func() { _ = st.Close() })
	return NewEngine(st), st
}

func TestGetNewUser(t *testing.T) {
	e, _ := newTestEngine(t)

	p, err := e.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, CommunicationUnknown, p.CommunicationStyle)
	assert.Equal(t, MotivationUnknown, p.MotivationType)
	assert.Equal(t, CoachingUnknown, p.CoachingStyle)
	assert.Zero(t, p.Confidence)
	assert.Equal(t, DefaultCoachingStyle, p.EffectiveCoachingStyle())
}

func TestGetLowConfidenceProfile(t *testing.T) {
	e, st := newTestEngine(t)
	_, err := st.UpsertCoachProfile(context.Background(), &store.CoachProfile{
		UserID:        1,
		CoachingStyle: string(CoachingDrillSergeant),
		Confidence:    0.1,
	})
	require.NoError(t, err)

	p, err := e.Get(context.Background(), 1)
	assert.ErrorIs(t, err, ErrInconsistentProfile)
	require.NotNil(t, p)
	assert.Equal(t, DefaultCoachingStyle, p.EffectiveCoachingStyle(), "noisy profile must not be acted on")
}

func TestInferFirstSignals(t *testing.T) {
	e, _ := newTestEngine(t)

	p, err := e.Infer(context.Background(), 1, Signals{
		CommunicationStyle: CommunicationDirect,
		CommunicationConf:  0.6,
		CoachingStyle:      CoachingScientific,
		CoachingConf:       0.6,
	})
	require.NoError(t, err)
	assert.Equal(t, CommunicationDirect, p.CommunicationStyle)
	assert.Equal(t, CoachingScientific, p.CoachingStyle)
	assert.Equal(t, MotivationUnknown, p.MotivationType, "unsignalled dimension stays unknown")
	assert.Equal(t, CoachingScientific, p.EffectiveCoachingStyle())
}

func TestInferLowConfidenceDoesNotErase(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Infer(ctx, 1, Signals{
		CoachingStyle: CoachingSupportive,
		CoachingConf:  0.9,
	})
	require.NoError(t, err)

	p, err := e.Infer(ctx, 1, Signals{
		CoachingStyle: CoachingDrillSergeant,
		CoachingConf:  0.2,
	})
	require.NoError(t, err)
	assert.Equal(t, CoachingSupportive, p.CoachingStyle, "low-confidence inference must not erase an established preference")
}

func TestInferHigherConfidenceWins(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Infer(ctx, 1, Signals{
		MotivationType: MotivationHealth,
		MotivationConf: 0.4,
	})
	require.NoError(t, err)

	p, err := e.Infer(ctx, 1, Signals{
		MotivationType: MotivationAchievement,
		MotivationConf: 0.9,
	})
	require.NoError(t, err)
	assert.Equal(t, MotivationAchievement, p.MotivationType)
}

func TestInferPersistsAndMergesPreferences(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Infer(ctx, 1, Signals{
		CoachingConf:  0.5,
		CoachingStyle: CoachingBalanced,
		Preferences:   map[string]string{"session_length": "45m"},
	})
	require.NoError(t, err)

	p, err := e.Infer(ctx, 1, Signals{
		CoachingConf:  0.5,
		CoachingStyle: CoachingBalanced,
		Preferences:   map[string]string{"units": "metric"},
	})
	require.NoError(t, err)
	assert.Equal(t, "45m", p.Preferences["session_length"])
	assert.Equal(t, "metric", p.Preferences["units"])

	got, err := e.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, p.CoachingStyle, got.CoachingStyle)
	assert.Equal(t, "metric", got.Preferences["units"])
}

func TestBlendConfidenceBounds(t *testing.T) {
	cases := []struct{ c1, c2 float32 }{
		{0.2, 0.8},
		{0.8, 0.2},
		{0.5, 0.5},
		{0.0, 0.7},
		{0.9, 0.0},
		{1.0, 0.3},
	}
	for _, tc := range cases {
		got := blendConfidence(tc.c1, tc.c2)
		lo, hi := tc.c1, tc.c2
		if lo > hi {
			lo, hi = hi, lo
		}
		if tc.c1 == 0 {
			lo = tc.c2
		}
		if tc.c2 == 0 {
			lo, hi = tc.c1, tc.c1
		}
		assert.GreaterOrEqual(t, got, lo, "c1=%v c2=%v", tc.c1, tc.c2)
		assert.LessOrEqual(t, got, hi, "c1=%v c2=%v", tc.c1, tc.c2)
		assert.GreaterOrEqual(t, got, float32(0))
		assert.LessOrEqual(t, got, float32(1))
	}
}

func TestRecordInteractionReinfersOnInterval(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	// First interaction infers.
	p, err := e.RecordInteraction(ctx, 1, Signals{CoachingStyle: CoachingSupportive, CoachingConf: 0.5})
	require.NoError(t, err)
	assert.Equal(t, CoachingSupportive, p.CoachingStyle)
	firstConfidence := p.Confidence

	// Intermediate interactions only count; the drifted signal is ignored.
	for i := 0; i < int(e.reinferInterval)-2; i++ {
		p, err = e.RecordInteraction(ctx, 1, Signals{CoachingStyle: CoachingDrillSergeant, CoachingConf: 0.9})
		require.NoError(t, err)
		assert.Equal(t, CoachingSupportive, p.CoachingStyle)
		assert.Equal(t, firstConfidence, p.Confidence)
	}

	// The interval-th interaction re-infers and picks up the stronger signal.
	p, err = e.RecordInteraction(ctx, 1, Signals{CoachingStyle: CoachingDrillSergeant, CoachingConf: 0.9})
	require.NoError(t, err)
	assert.Equal(t, CoachingDrillSergeant, p.CoachingStyle)
}
