// Package personalization infers and maintains the per-user coaching
// profile. Inferred dimensions are blended with the stored profile by
// confidence weight so a noisy new inference never erases an established
// preference.
package personalization

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/strideai/coach/store"
)

// CommunicationStyle is how the user prefers to be spoken to.
type CommunicationStyle string

const (
	CommunicationDirect         CommunicationStyle = "direct"
	CommunicationEncouraging    CommunicationStyle = "encouraging"
	CommunicationAnalytical     CommunicationStyle = "analytical"
	CommunicationConversational CommunicationStyle = "conversational"
	CommunicationUnknown        CommunicationStyle = "unknown"
)

// MotivationType is what drives the user.
type MotivationType string

const (
	MotivationAchievement MotivationType = "achievement"
	MotivationHealth      MotivationType = "health"
	MotivationSocial      MotivationType = "social"
	MotivationAppearance  MotivationType = "appearance"
	MotivationUnknown     MotivationType = "unknown"
)

// CoachingStyle governs the tone and structure of generated coaching.
type CoachingStyle string

const (
	CoachingDrillSergeant CoachingStyle = "drill_sergeant"
	CoachingSupportive    CoachingStyle = "supportive"
	CoachingScientific    CoachingStyle = "scientific"
	CoachingBalanced      CoachingStyle = "balanced"
	CoachingUnknown       CoachingStyle = "unknown"
)

// DefaultCoachingStyle is used when the profile confidence is below the
// usable threshold.
const DefaultCoachingStyle = CoachingBalanced

// usableConfidence is the minimum profile confidence to act on.
const usableConfidence = 0.3

// defaultReinferInterval is how many interactions pass before a profile is
// re-inferred automatically.
const defaultReinferInterval = 10

// ErrInconsistentProfile reports a stored profile whose confidence is below
// the usable threshold. Callers fall back to the default coaching style.
var ErrInconsistentProfile = errors.New("personalization profile confidence below usable threshold")

// Profile is the personalization profile handed to context assembly.
type Profile struct {
	UserID             int32
	CommunicationStyle CommunicationStyle
	MotivationType     MotivationType
	CoachingStyle      CoachingStyle
	Confidence         float32
	Preferences        map[string]string
	InteractionCount   int32
	LastUpdated        time.Time
}

// EffectiveCoachingStyle returns the coaching style to act on, falling back
// to the default when confidence is too low to trust the inference.
func (p *Profile) EffectiveCoachingStyle() CoachingStyle {
	if p == nil || p.Confidence < usableConfidence || p.CoachingStyle == CoachingUnknown || p.CoachingStyle == "" {
		return DefaultCoachingStyle
	}
	return p.CoachingStyle
}

// Signals carries one observation batch about the user, each dimension with
// its own confidence. Zero-confidence dimensions are ignored during blending.
type Signals struct {
	CommunicationStyle CommunicationStyle
	CommunicationConf  float32
	MotivationType     MotivationType
	MotivationConf     float32
	CoachingStyle      CoachingStyle
	CoachingConf       float32
	Preferences        map[string]string
}

// Engine maintains coach profiles.
type Engine struct {
	store           *store.Store
	reinferInterval int32
	logger          *slog.Logger
	now             func() time.Time
}

// NewEngine creates a personalization engine.
func NewEngine(st *store.Store) *Engine {
	return &Engine{
		store:           st,
		reinferInterval: defaultReinferInterval,
		logger:          slog.Default().With("component", "personalization"),
		now:             time.Now,
	}
}

// Get returns the stored profile, or an unknown-everything profile for a new
// user. ErrInconsistentProfile is returned alongside the profile when its
// confidence is below the usable threshold; the profile is still usable via
// EffectiveCoachingStyle.
func (e *Engine) Get(ctx context.Context, userID int32) (*Profile, error) {
	stored, err := e.store.GetCoachProfile(ctx, &store.FindCoachProfile{UserID: &userID})
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return &Profile{
			UserID:             userID,
			CommunicationStyle: CommunicationUnknown,
			MotivationType:     MotivationUnknown,
			CoachingStyle:      CoachingUnknown,
			Preferences:        map[string]string{},
		}, nil
	}

	p := fromStored(stored)
	if p.Confidence < usableConfidence {
		return p, ErrInconsistentProfile
	}
	return p, nil
}

// Infer blends new signals into the stored profile and persists the result.
// Each dimension keeps whichever value has more confidence behind it; the
// blended confidence lands between the two input confidences.
func (e *Engine) Infer(ctx context.Context, userID int32, signals Signals) (*Profile, error) {
	current, err := e.Get(ctx, userID)
	if err != nil && !errors.Is(err, ErrInconsistentProfile) {
		return nil, err
	}

	next := &Profile{
		UserID:           userID,
		Preferences:      mergePreferences(current.Preferences, signals.Preferences),
		InteractionCount: current.InteractionCount + 1,
		LastUpdated:      e.now(),
	}

	next.CommunicationStyle = blendDimension(current.CommunicationStyle, CommunicationUnknown, current.Confidence, signals.CommunicationStyle, signals.CommunicationConf)
	next.MotivationType = blendDimension(current.MotivationType, MotivationUnknown, current.Confidence, signals.MotivationType, signals.MotivationConf)
	next.CoachingStyle = blendDimension(current.CoachingStyle, CoachingUnknown, current.Confidence, signals.CoachingStyle, signals.CoachingConf)
	next.Confidence = blendConfidence(current.Confidence, maxSignalConfidence(signals))

	if _, err := e.store.UpsertCoachProfile(ctx, toStored(next)); err != nil {
		return nil, err
	}
	e.logger.Debug("profile inferred",
		"user_id", userID,
		"coaching_style", next.CoachingStyle,
		"confidence", next.Confidence,
		"interactions", next.InteractionCount)
	return next, nil
}

// RecordInteraction bumps the interaction count and re-infers when the
// configured interval has passed since the last inference.
func (e *Engine) RecordInteraction(ctx context.Context, userID int32, signals Signals) (*Profile, error) {
	current, err := e.Get(ctx, userID)
	if err != nil && !errors.Is(err, ErrInconsistentProfile) {
		return nil, err
	}

	if current.InteractionCount > 0 && (current.InteractionCount+1)%e.reinferInterval != 0 {
		current.InteractionCount++
		if _, err := e.store.UpsertCoachProfile(ctx, toStored(current)); err != nil {
			return nil, err
		}
		return current, nil
	}
	return e.Infer(ctx, userID, signals)
}

// blendDimension picks the higher-confidence value for one enum dimension.
// Unknown values never displace a known one.
func blendDimension[T ~string](current T, unknown T, currentConf float32, incoming T, incomingConf float32) T {
	if incoming == "" || incoming == unknown || incomingConf <= 0 {
		if current == "" {
			return unknown
		}
		return current
	}
	if current == "" || current == unknown {
		return incoming
	}
	if incomingConf > currentConf {
		return incoming
	}
	return current
}

// blendConfidence combines two confidences with a weighted average leaning
// toward the stronger one. The result always stays within
// [min(c1,c2), max(c1,c2)].
func blendConfidence(c1, c2 float32) float32 {
	if c2 <= 0 {
		return c1
	}
	if c1 <= 0 {
		return c2
	}
	lo, hi := c1, c2
	if lo > hi {
		lo, hi = hi, lo
	}
	blended := 0.3*lo + 0.7*hi
	if blended < lo {
		return lo
	}
	if blended > hi {
		return hi
	}
	return blended
}

func maxSignalConfidence(s Signals) float32 {
	m := s.CommunicationConf
	if s.MotivationConf > m {
		m = s.MotivationConf
	}
	if s.CoachingConf > m {
		m = s.CoachingConf
	}
	return m
}

func mergePreferences(current, incoming map[string]string) map[string]string {
	merged := make(map[string]string, len(current)+len(incoming))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range incoming {
		merged[k] = v
	}
	return merged
}

func fromStored(p *store.CoachProfile) *Profile {
	prefs := p.Preferences
	if prefs == nil {
		prefs = map[string]string{}
	}
	return &Profile{
		UserID:             p.UserID,
		CommunicationStyle: CommunicationStyle(p.CommunicationStyle),
		MotivationType:     MotivationType(p.MotivationType),
		CoachingStyle:      CoachingStyle(p.CoachingStyle),
		Confidence:         p.Confidence,
		Preferences:        prefs,
		InteractionCount:   p.InteractionCount,
		LastUpdated:        time.Unix(p.UpdatedTs, 0),
	}
}

func toStored(p *Profile) *store.CoachProfile {
	return &store.CoachProfile{
		UserID:             p.UserID,
		CommunicationStyle: string(p.CommunicationStyle),
		MotivationType:     string(p.MotivationType),
		CoachingStyle:      string(p.CoachingStyle),
		Confidence:         p.Confidence,
		Preferences:        p.Preferences,
		InteractionCount:   p.InteractionCount,
		UpdatedTs:          p.LastUpdated.Unix(),
	}
}
