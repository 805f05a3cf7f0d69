package store

// WeeklyReview represents a persisted review of one closed week.
// Keyed by (user, week start); recomputation with unchanged inputs upserts
// an identical row.
type WeeklyReview struct {
	UserID          int32
	WeekStartTs     int64
	WeekEndTs       int64
	Summary         string
	Achievements    []string
	Challenges      []string
	Recommendations []string
	NextWeekGoals   []string
	Confidence      float32 // 0-1
	UpdatedTs       int64
}

// FindWeeklyReview specifies the conditions for finding weekly reviews.
type FindWeeklyReview struct {
	UserID      *int32
	WeekStartTs *int64
	Limit       int
}
