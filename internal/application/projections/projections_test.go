package projections

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"

	"eduadmin/internal/adapters/api"
)

// mockGetter implements Getter with canned JSON per path.
type mockGetter struct {
	mu        sync.Mutex
	responses map[string]string
	failures  map[string]error
	queries   map[string]url.Values
}

func newMockGetter() *mockGetter {
	return &mockGetter{responses: map[string]string{}, failures: map[string]error{}, queries: map[string]url.Values{}}
}

// Get implements Getter.
// PRE: none
// POST: decodes the canned response for path, or returns the configured failure
func (m *mockGetter) Get(_ context.Context, path string, query url.Values, out any) error {
	m.mu.Lock()
	m.queries[path] = query
	body, ok := m.responses[path]
	err := m.failures[path]
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if !ok {
		return &api.Error{Method: "GET", Path: path, Status: 404}
	}
	return api.Decode([]byte(body), out)
}

// TestQueryGetDashboard_AllSections verifies the three sections are decoded.
func TestQueryGetDashboard_AllSections(t *testing.T) {
	gw := newMockGetter()
	gw.responses["api/dashboard/metrics/"] = `{"total_users":12,"active_subscriptions":4}`
	gw.responses["api/dashboard/recent-activities/"] = `[{"id":1,"text":"a"},{"id":2,"text":"b"}]`
	gw.responses["api/dashboard/notifications/"] = `{"count":1,"results":[{"id":9,"message":"n"}]}`

	view := QueryGetDashboard(context.Background(), GetDashboardDeps{API: gw})
	if view.Metrics.String("total_users") != "12" {
		t.Errorf("metrics = %v", view.Metrics)
	}
	if len(view.RecentActivities) != 2 || len(view.Notifications) != 1 {
		t.Errorf("activities=%d notifications=%d", len(view.RecentActivities), len(view.Notifications))
	}
	if view.MetricsFailed || view.ActivitiesFailed || view.NotificationsFailed {
		t.Errorf("unexpected failure flags: %+v", view)
	}
}

// TestQueryGetDashboard_IndependentFailures verifies one failing section leaves the others intact.
func TestQueryGetDashboard_IndependentFailures(t *testing.T) {
	gw := newMockGetter()
	gw.failures["api/dashboard/metrics/"] = errors.New("down")
	gw.responses["api/dashboard/recent-activities/"] = `[{"id":1}]`
	gw.responses["api/dashboard/notifications/"] = `[]`

	view := QueryGetDashboard(context.Background(), GetDashboardDeps{API: gw})
	if !view.MetricsFailed {
		t.Error("expected MetricsFailed")
	}
	if view.ActivitiesFailed || len(view.RecentActivities) != 1 {
		t.Errorf("activities affected by metrics failure: %+v", view)
	}
}

// TestQueryGetSection verifies the section and its schedules load together.
func TestQueryGetSection(t *testing.T) {
	gw := newMockGetter()
	gw.responses["api/sections/3/"] = `{"id":3,"name":"Шахматы"}`
	gw.responses["api/schedules/"] = `[{"id":10,"section":3},{"id":11,"section":3}]`

	detail, err := QueryGetSection(context.Background(), "3", GetDetailDeps{API: gw})
	if err != nil {
		t.Fatalf("QueryGetSection: %v", err)
	}
	if detail.Section.String("name") != "Шахматы" || len(detail.Schedules) != 2 {
		t.Errorf("detail = %+v", detail)
	}
	q := gw.queries["api/schedules/"]
	if q.Get("section") != "3" || q.Get("page") != "all" {
		t.Errorf("schedule query = %v", q)
	}
}

// TestQueryGetSection_SchedulesFailure verifies a schedules failure does not fail the page.
func TestQueryGetSection_SchedulesFailure(t *testing.T) {
	gw := newMockGetter()
	gw.responses["api/sections/3/"] = `{"id":3}`
	gw.failures["api/schedules/"] = errors.New("down")

	detail, err := QueryGetSection(context.Background(), "3", GetDetailDeps{API: gw})
	if err != nil {
		t.Fatalf("QueryGetSection: %v", err)
	}
	if len(detail.Schedules) != 0 {
		t.Errorf("schedules = %v", detail.Schedules)
	}
}

// TestQueryGetCenter_NotFound verifies API errors surface with their kind intact.
func TestQueryGetCenter_NotFound(t *testing.T) {
	_, err := QueryGetCenter(context.Background(), "99", GetDetailDeps{API: newMockGetter()})
	if !api.IsNotFound(err) {
		t.Errorf("err = %v, want not found", err)
	}
	if _, err := QueryGetProfile(context.Background(), "", GetDetailDeps{API: newMockGetter()}); !errors.Is(err, ErrMissingID) {
		t.Errorf("err = %v, want ErrMissingID", err)
	}
}
