package store

// Insight represents a persisted proactive insight.
type Insight struct {
	ID               string
	UserID           int32
	Type             string // trend/plateau_risk/overtraining_risk/...
	Priority         string // low/medium/high
	Title            string
	Message          string
	ActionRequired   bool
	SuggestedActions []string
	Confidence       float32 // 0-1
	CreatedTs        int64
	ExpiresTs        int64 // 0 means never expires
}

// FindInsight specifies the conditions for finding insights.
type FindInsight struct {
	ID     *string
	UserID *int32
	Type   *string
	// UnexpiredAt filters out insights whose expiry is at or before this timestamp.
	UnexpiredAt *int64
	Limit       int
}

// DeleteInsight specifies the conditions for deleting insights.
type DeleteInsight struct {
	ID     *string
	UserID *int32
	Type   *string
	// ExpiredBefore deletes insights whose expiry is before this timestamp.
	ExpiredBefore *int64
}
