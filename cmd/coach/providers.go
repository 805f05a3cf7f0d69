package main

import (
	"context"
	"time"

	coachctx "github.com/strideai/coach/plugin/ai/context"
	"github.com/strideai/coach/plugin/ai/insight"
)

// The coach consumes user profiles and workout history from external
// services. Until those integrations are configured the standalone binary
// runs on empty local providers; the builder degrades the affected sections
// instead of failing turns.

type localProfileProvider struct{}

var _ coachctx.ProfileProvider = (*localProfileProvider)(nil)

func (*localProfileProvider) GetUserProfile(_ context.Context, _ int32) (*coachctx.UserProfile, error) {
	return nil, nil
}

type localActivityProvider struct{}

var _ coachctx.ActivityProvider = (*localActivityProvider)(nil)

func (*localActivityProvider) RecentActivitySummary(_ context.Context, _ int32) (string, error) {
	return "", nil
}

type localHistoryProvider struct{}

var _ insight.HistoryProvider = (*localHistoryProvider)(nil)

func (*localHistoryProvider) RecentWorkouts(_ context.Context, _ int32, _, _ time.Time) ([]insight.WorkoutSummary, error) {
	return nil, nil
}
