package projections

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"eduadmin/internal/adapters/api"
	"eduadmin/internal/application/crud"
)

// GetDashboardDeps holds dependencies for the dashboard projection.
type GetDashboardDeps struct {
	API Getter
}

// DashboardView is the rendered dashboard. A section whose fetch failed stays empty
// and its flag is set.
type DashboardView struct {
	Metrics             crud.Record
	RecentActivities    []crud.Record
	Notifications       []crud.Record
	MetricsFailed       bool
	ActivitiesFailed    bool
	NotificationsFailed bool
}

// QueryGetDashboard loads the three dashboard sections concurrently.
// PRE: none
// POST: each section is populated or flagged failed independently; never returns an error
func QueryGetDashboard(ctx context.Context, deps GetDashboardDeps) DashboardView {
	var (
		view          DashboardView
		metrics       map[string]any
		activities    any
		notifications any
	)
	var g errgroup.Group
	g.Go(func() error {
		if err := deps.API.Get(ctx, string(api.DashboardMetrics), nil, &metrics); err != nil {
			zap.S().Warnw("dashboard_fetch_failed", "section", "metrics", "error", err)
			view.MetricsFailed = true
		}
		return nil
	})
	g.Go(func() error {
		if err := deps.API.Get(ctx, string(api.DashboardRecentActivities), nil, &activities); err != nil {
			zap.S().Warnw("dashboard_fetch_failed", "section", "recent_activities", "error", err)
			view.ActivitiesFailed = true
		}
		return nil
	})
	g.Go(func() error {
		if err := deps.API.Get(ctx, string(api.DashboardNotifications), nil, &notifications); err != nil {
			zap.S().Warnw("dashboard_fetch_failed", "section", "notifications", "error", err)
			view.NotificationsFailed = true
		}
		return nil
	})
	_ = g.Wait()

	view.Metrics = crud.Record(metrics)
	view.RecentActivities = recordsOf(activities)
	view.Notifications = recordsOf(notifications)
	return view
}
