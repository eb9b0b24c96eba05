package http

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"feeledger/internal/core"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady pings every registered dependency.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := make(map[string]string, len(s.checks)+1)
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.checks[name].Ping(ctx); err != nil {
			checks[name] = "failed: " + err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	checks["rate_limiter"] = "ok"

	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.parser.Decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	tok, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (s *Server) handleAddStudent(w http.ResponseWriter, r *http.Request) {
	var req studentRequest
	if err := s.parser.Decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	st, err := req.toStudent()
	if err != nil {
		writeError(w, r, err)
		return
	}
	added, err := s.directory.AddStudent(r.Context(), st)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Student added successfully",
		"student": newStudentView(added),
	})
}

func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := s.directory.ListStudents(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	class := strings.TrimSpace(r.URL.Query().Get("class"))
	views := make([]studentView, 0, len(students))
	for _, st := range students {
		if class != "" && st.Class != class {
			continue
		}
		views = append(views, newStudentView(st))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleSetSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := s.parser.Decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	from, err := parseDate("effectiveFrom", req.EffectiveFrom)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sc, err := s.directory.SetSchedule(r.Context(), core.ClassFeeSchedule{
		ClassName:         r.PathValue("className"),
		TuitionFee:        req.TuitionFee,
		TransportationFee: req.TransportationFee,
		EffectiveFrom:     from,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newScheduleView(sc))
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.directory.ListSchedules(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]scheduleView, 0, len(schedules))
	for _, sc := range schedules {
		views = append(views, newScheduleView(sc))
	}
	writeJSON(w, http.StatusOK, views)
}
