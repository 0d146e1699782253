package api

import "strings"

// Endpoint is a path relative to the API base URL. Every endpoint ends in '/'.
type Endpoint string

// Fixed endpoint map of the REST API.
const (
	Register                  Endpoint = "user/register/"
	Login                     Endpoint = "user/login/"
	User                      Endpoint = "user/user/"
	Users                     Endpoint = "user/users/"
	CreateStaff               Endpoint = "user/admin/create-staff/"
	Centers                   Endpoint = "api/centers/"
	Sections                  Endpoint = "api/sections/"
	Categories                Endpoint = "api/categories/"
	Subscriptions             Endpoint = "api/subscriptions/"
	Schedules                 Endpoint = "api/schedules/"
	Records                   Endpoint = "api/records/"
	DashboardMetrics          Endpoint = "api/dashboard/metrics/"
	DashboardRecentActivities Endpoint = "api/dashboard/recent-activities/"
	DashboardNotifications    Endpoint = "api/dashboard/notifications/"
	GetSyllabuses             Endpoint = "api/get_tests/"
	GenerateSyllabus          Endpoint = "api/generate/"
)

// Item returns the path of one item under the endpoint, optionally followed by a
// sub-resource, e.g. Item("12", "activate_subscription") -> "api/subscriptions/12/activate_subscription/".
func (e Endpoint) Item(id string, sub ...string) string {
	var b strings.Builder
	b.WriteString(string(e))
	b.WriteString(id)
	b.WriteByte('/')
	for _, s := range sub {
		b.WriteString(strings.Trim(s, "/"))
		b.WriteByte('/')
	}
	return b.String()
}

// routeLabel collapses item ids so metrics keep a bounded label set.
func routeLabel(path string) string {
	segs := strings.Split(path, "/")
	for i, s := range segs {
		if s != "" && isDigits(s) {
			segs[i] = ":id"
		}
	}
	return strings.Join(segs, "/")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
