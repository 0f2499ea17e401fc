package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/compare-engine/internal/analysis"
	"github.com/sells-group/compare-engine/internal/entity"
	"github.com/sells-group/compare-engine/internal/record"
	"github.com/sells-group/compare-engine/internal/selection"
)

type sessionView struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Keys      []string        `json:"keys"`
	Selected  []entity.Entity `json:"selected"`
	Missing   []string        `json:"missing"`
}

func (s *Server) viewSession(sess *selection.Session) sessionView {
	keys := sess.Set.Keys()
	selected := sess.Set.Resolve(s.Directory().Entities())

	found := make(map[string]bool, len(selected))
	for _, e := range selected {
		found[e.Key()] = true
	}
	missing := []string{}
	for _, k := range keys {
		if !found[k] {
			missing = append(missing, k)
		}
	}
	return sessionView{ID: sess.ID, CreatedAt: sess.CreatedAt, Keys: keys, Selected: selected, Missing: missing}
}

// session fetches the {id} session or writes a 404.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*selection.Session, bool) {
	sess, ok := s.sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
	}
	return sess, ok
}

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusCreated, s.viewSession(s.sessions.Create()))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.viewSession(sess))
}

func (s *Server) handleDropSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.Drop(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// toggleRequest is the toggle body: {"name": ...}, {"record": {...}}, or a
// bare JSON string holding the name. A record wins over a name.
type toggleRequest struct {
	Name   string         `json:"name,omitempty"`
	Record map[string]any `json:"record,omitempty"`
}

func (t *toggleRequest) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '"' {
		return json.Unmarshal(trimmed, &t.Name)
	}
	type plain toggleRequest
	return json.Unmarshal(data, (*plain)(t))
}

func (t toggleRequest) input() any {
	if len(t.Record) > 0 {
		return record.Raw(t.Record)
	}
	return t.Name
}

type toggleResponse struct {
	Key      string      `json:"key"`
	Selected bool        `json:"selected"`
	Session  sessionView `json:"session"`
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	input := req.input()
	key := sess.Set.KeyOf(input)
	if key == "" {
		writeError(w, http.StatusBadRequest, "a name or a record with a name is required")
		return
	}
	selected := sess.Set.Toggle(input)
	writeJSON(w, http.StatusOK, toggleResponse{Key: key, Selected: selected, Session: s.viewSession(sess)})
}

func (s *Server) handleRemoveKey(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid key")
		return
	}
	sess.Set.Remove(key)
	writeJSON(w, http.StatusOK, s.viewSession(sess))
}

type sessionCompareResponse struct {
	compareResponse
	Analysis *analysis.Outcome `json:"analysis,omitempty"`
}

// handleSessionCompare compares the first two selected entities. With
// ?analysis=true the narrative comparison is included.
func (s *Server) handleSessionCompare(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	d := s.Directory()
	if d == nil {
		writeLoading(w)
		return
	}
	a, b, ok := sess.Set.Pair(d.Entities())
	if !ok {
		writeError(w, http.StatusConflict, analysis.NoSelection)
		return
	}
	resp := sessionCompareResponse{
		compareResponse: compareResponse{A: a, B: b, Differences: s.engine.Diff(&a, &b)},
	}
	if want, _ := strconv.ParseBool(r.URL.Query().Get("analysis")); want {
		out := s.analyzer.Compare(r.Context(), &a, &b)
		resp.Analysis = &out
	}
	writeJSON(w, http.StatusOK, resp)
}
