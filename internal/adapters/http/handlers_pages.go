package web

import (
	"net/http"
	"time"

	"eduadmin/internal/adapters/api"
	"eduadmin/internal/adapters/http/middleware"
	"eduadmin/internal/adapters/http/perf"
	"eduadmin/internal/application/crud"
	"eduadmin/internal/application/orchestrators"
	"eduadmin/internal/application/projections"
	"eduadmin/internal/domain/routing"
)

const (
	msgSaved      = "Изменения сохранены"
	msgSaveFailed = "Не удалось сохранить изменения"
	msgLoadFailed = "Не удалось загрузить данные"
)

type detailPage struct {
	Record crud.Record
	Error  string
	Notice string
}

// handleProfile shows and updates the signed-in user's own record.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, _ routing.Decision) {
	sess, _ := middleware.SessionFromContext(r.Context())
	deps := projections.GetDetailDeps{API: s.deps.API}
	var data detailPage

	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		input := orchestrators.UpdateProfileInput{
			UserID:      sess.UserID,
			Email:       r.PostForm.Get("email"),
			FirstName:   r.PostForm.Get("first_name"),
			LastName:    r.PostForm.Get("last_name"),
			PhoneNumber: r.PostForm.Get("phone_number"),
		}
		rec, err := orchestrators.ExecuteUpdateProfile(r.Context(), input, orchestrators.UpdateDeps{API: s.deps.API})
		if err != nil {
			data.Error = msgSaveFailed
		} else {
			data.Record, data.Notice = rec, msgSaved
		}
	default:
		methodNotAllowed(w, "GET, POST")
		return
	}

	if data.Record == nil {
		rec, err := projections.QueryGetProfile(r.Context(), sess.UserID, deps)
		if err != nil && data.Error == "" {
			data.Error = msgLoadFailed
		}
		data.Record = rec
	}
	s.render(w, r, http.StatusOK, "profile.html", s.pageData(r, "Профиль", data))
}

// handleCenterDetail shows one center and saves its descriptive fields.
func (s *Server) handleCenterDetail(w http.ResponseWriter, r *http.Request, d routing.Decision) {
	id := d.Params["id"]
	var data detailPage

	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		input := orchestrators.UpdateCenterInput{
			CenterID:    id,
			Name:        r.PostForm.Get("name"),
			Description: r.PostForm.Get("description"),
			Location:    r.PostForm.Get("location"),
			Link:        r.PostForm.Get("link"),
		}
		rec, err := orchestrators.ExecuteUpdateCenter(r.Context(), input, orchestrators.UpdateDeps{API: s.deps.API})
		if err != nil {
			data.Error = msgSaveFailed
		} else {
			data.Record, data.Notice = rec, msgSaved
		}
	default:
		methodNotAllowed(w, "GET, POST")
		return
	}

	if data.Record == nil {
		rec, err := projections.QueryGetCenter(r.Context(), id, projections.GetDetailDeps{API: s.deps.API})
		if api.IsNotFound(err) {
			s.renderNotFound(w, r, routing.ViewCommonNotFound)
			return
		}
		if err != nil && data.Error == "" {
			data.Error = msgLoadFailed
		}
		data.Record = rec
	}
	s.render(w, r, http.StatusOK, "center_detail.html", s.pageData(r, data.Record.String("name"), data))
}

type sectionPage struct {
	projections.SectionDetail
	Error string
}

// handleSectionDetail shows a section with its schedules.
func (s *Server) handleSectionDetail(w http.ResponseWriter, r *http.Request, d routing.Decision) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}
	detail, err := projections.QueryGetSection(r.Context(), d.Params["id"], projections.GetDetailDeps{API: s.deps.API})
	if api.IsNotFound(err) {
		s.renderNotFound(w, r, routing.ViewCommonNotFound)
		return
	}
	data := sectionPage{SectionDetail: detail}
	if err != nil {
		data.Error = msgLoadFailed
	}
	s.render(w, r, http.StatusOK, "section_detail.html", s.pageData(r, detail.Section.String("name"), data))
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, _ routing.Decision) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}
	view := projections.QueryGetDashboard(r.Context(), projections.GetDashboardDeps{API: s.deps.API})
	s.render(w, r, http.StatusOK, "dashboard.html", s.pageData(r, "Главная", view))
}

// performanceWindow is how far back the latency page looks.
const performanceWindow = 15 * time.Minute

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request, _ routing.Decision) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}
	var snap perf.Snapshot
	if s.deps.Collector != nil {
		snap = s.deps.Collector.Snapshot(s.now().Add(-performanceWindow), 10)
	}
	s.render(w, r, http.StatusOK, "performance.html", s.pageData(r, "Производительность", snap))
}
