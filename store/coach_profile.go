package store

// CoachProfile represents the persisted personalization profile for a user.
// One row per user, mutated only by confidence-weighted blending.
type CoachProfile struct {
	UserID             int32
	CommunicationStyle string
	MotivationType     string
	CoachingStyle      string
	Confidence         float32 // 0-1
	Preferences        map[string]string
	InteractionCount   int32
	UpdatedTs          int64
}

// FindCoachProfile specifies the conditions for finding coach profiles.
type FindCoachProfile struct {
	UserID *int32
}
