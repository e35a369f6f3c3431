package api

import (
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/unifi-mqtt/internal/status"
)

// SubsystemView combines the live session state with the tracked history
// of one subsystem.
type SubsystemView struct {
	Name         string                  `json:"name"`
	SessionState string                  `json:"session_state"`
	Status       *status.SubsystemStatus `json:"status,omitempty"`
}

// SubsystemList is the body of GET /api/v1/subsystems.
type SubsystemList struct {
	Subsystems   []SubsystemView         `json:"subsystems"`
	Controller   *status.SubsystemStatus `json:"controller,omitempty"`
	Reconnecting bool                    `json:"reconnecting"`
}

func (s *Server) handleListSubsystems(w http.ResponseWriter, _ *http.Request) {
	states := s.controller.SessionStates()

	names := make([]string, 0, len(states))
	for name := range states {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := SubsystemList{
		Subsystems:   make([]SubsystemView, 0, len(names)),
		Reconnecting: s.controller.Reconnecting(),
	}
	for _, name := range names {
		resp.Subsystems = append(resp.Subsystems, s.subsystemView(name, states[name].String()))
	}
	if s.status != nil {
		if st, err := s.status.Get("controller"); err == nil {
			resp.Controller = &st
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSubsystem(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	state, ok := s.controller.SessionStates()[name]
	if !ok {
		writeNotFound(w, "subsystem not configured: "+name)
		return
	}
	writeJSON(w, http.StatusOK, s.subsystemView(name, state.String()))
}

func (s *Server) subsystemView(name, sessionState string) SubsystemView {
	view := SubsystemView{Name: name, SessionState: sessionState}
	if s.status == nil {
		return view
	}
	st, err := s.status.Get(name)
	switch {
	case err == nil:
		view.Status = &st
	case !errors.Is(err, status.ErrNotFound):
		s.logger.Warn("status lookup failed", "subsystem", name, "error", err)
	}
	return view
}
