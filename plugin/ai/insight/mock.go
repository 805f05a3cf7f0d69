package insight

import (
	"context"
	"time"
)

// MockHistory is a scripted HistoryProvider for tests.
type MockHistory struct {
	Workouts map[int32][]WorkoutSummary
	Err      error
}

var _ HistoryProvider = (*MockHistory)(nil)

func (m *MockHistory) RecentWorkouts(_ context.Context, userID int32, since, until time.Time) ([]WorkoutSummary, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	var out []WorkoutSummary
	for _, w := range m.Workouts[userID] {
		if w.Date.Before(since) || !w.Date.Before(until) {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}
