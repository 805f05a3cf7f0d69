package store

// MemoryItemType enumerates the kinds of coaching memory.
type MemoryItemType string

const (
	MemoryTypeGoal        MemoryItemType = "goal"
	MemoryTypePreference  MemoryItemType = "preference"
	MemoryTypeAchievement MemoryItemType = "achievement"
	MemoryTypeInjury      MemoryItemType = "injury"
	MemoryTypeFeedback    MemoryItemType = "feedback"
	MemoryTypeLearning    MemoryItemType = "learning"
	MemoryTypePattern     MemoryItemType = "pattern"
	MemoryTypeMilestone   MemoryItemType = "milestone"
)

// MemoryItem represents a typed, importance-weighted memory record.
type MemoryItem struct {
	ID             string
	UserID         int32
	Type           MemoryItemType
	Content        string
	Importance     float32 // 0-1
	Tags           []string
	Metadata       map[string]string
	CreatedTs      int64
	LastAccessedTs int64
}

// FindMemoryItem specifies the conditions for finding memory items.
type FindMemoryItem struct {
	ID     *string
	UserID *int32
	Type   *MemoryItemType
	Limit  int
}

// UpdateMemoryItem specifies access-time mutations of a memory item.
// Only last-accessed timestamp and decayed importance are mutable.
type UpdateMemoryItem struct {
	ID             string
	UserID         int32
	LastAccessedTs *int64
	Importance     *float32
}

// DeleteMemoryItem specifies the conditions for deleting memory items.
type DeleteMemoryItem struct {
	ID     *string
	UserID *int32
}
