package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/compare-engine/internal/diff"
	"github.com/sells-group/compare-engine/internal/entity"
	"github.com/sells-group/compare-engine/internal/identity"
)

type healthResponse struct {
	Status   string     `json:"status"`
	Loaded   bool       `json:"loaded"`
	Entities int        `json:"entities"`
	Sessions int        `json:"sessions"`
	LoadedAt *time.Time `json:"loaded_at,omitempty"`
	Breaker  string     `json:"breaker,omitempty"`
	Spend    *spend     `json:"analysis_spend,omitempty"`
}

type spend struct {
	Calls int     `json:"calls"`
	USD   float64 `json:"usd"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	d := s.Directory()
	resp := healthResponse{
		Status:   "ok",
		Loaded:   d != nil,
		Entities: d.Len(),
		Sessions: s.sessions.Len(),
		LoadedAt: s.loadedAt.Load(),
	}
	if b := s.analyzer.Breaker(); b != nil {
		resp.Breaker = b.State().String()
	}
	if calls, usd, ok := s.analyzer.Spend(); ok {
		resp.Spend = &spend{Calls: calls, USD: usd}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSchema(w http.ResponseWriter, _ *http.Request) {
	switch d := s.Directory(); {
	case d != nil:
		writeJSON(w, http.StatusOK, d.Schema())
	case s.schema != nil:
		writeJSON(w, http.StatusOK, *s.schema)
	default:
		writeLoading(w)
	}
}

type entitiesResponse struct {
	Count    int             `json:"count"`
	Total    int             `json:"total"`
	Entities []entity.Entity `json:"entities"`
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	d := s.Directory()
	if d == nil {
		writeLoading(w)
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	es := d.Filter(f)
	writeJSON(w, http.StatusOK, entitiesResponse{Count: len(es), Total: d.Len(), Entities: es})
}

func parseFilter(r *http.Request) (entity.Filter, error) {
	q := r.URL.Query()
	f := entity.Filter{
		Classification: strings.TrimSpace(q.Get("classification")),
		Region:         strings.TrimSpace(q.Get("region")),
		Services:       strings.TrimSpace(q.Get("services")),
	}
	for _, p := range []struct {
		name string
		dst  **float64
	}{{"min_mw", &f.MinMW}, {"max_mw", &f.MaxMW}} {
		raw := strings.TrimSpace(q.Get(p.name))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
		if err != nil {
			return f, &paramError{name: p.name, value: raw}
		}
		*p.dst = &v
	}
	return f, nil
}

type paramError struct {
	name, value string
}

func (e *paramError) Error() string {
	return "invalid " + e.name + ": " + strconv.Quote(e.value)
}

type lookupResponse struct {
	Status string         `json:"status"`
	Key    string         `json:"key"`
	Entity *entity.Entity `json:"entity,omitempty"`
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	e, status := s.Directory().Lookup(name)
	switch status {
	case entity.StatusLoading:
		writeLoading(w)
	case entity.StatusNotFound:
		writeJSON(w, http.StatusNotFound, lookupResponse{Status: string(status), Key: identity.Key(name)})
	default:
		writeJSON(w, http.StatusOK, lookupResponse{Status: string(status), Key: e.Key(), Entity: &e})
	}
}

func (s *Server) handleViewport(w http.ResponseWriter, r *http.Request) {
	d := s.Directory()
	if d == nil {
		writeLoading(w)
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entity.ViewportOf(d.Filter(f), s.viewport))
}

type compareResponse struct {
	A           entity.Entity `json:"a"`
	B           entity.Entity `json:"b"`
	Differences diff.Result   `json:"differences"`
}

// resolvePair looks up both names. It writes the error response and returns
// false when either side is unavailable.
func (s *Server) resolvePair(w http.ResponseWriter, nameA, nameB string) (entity.Entity, entity.Entity, bool) {
	d := s.Directory()
	if d == nil {
		writeLoading(w)
		return entity.Entity{}, entity.Entity{}, false
	}
	a, sa := d.Lookup(nameA)
	b, sb := d.Lookup(nameB)
	if sa != entity.StatusFound || sb != entity.StatusFound {
		var missing []string
		if sa != entity.StatusFound {
			missing = append(missing, strconv.Quote(nameA))
		}
		if sb != entity.StatusFound {
			missing = append(missing, strconv.Quote(nameB))
		}
		writeJSON(w, http.StatusNotFound, errorBody{
			Error:  "not found: " + strings.Join(missing, ", "),
			Status: string(entity.StatusNotFound),
		})
		return entity.Entity{}, entity.Entity{}, false
	}
	return a, b, true
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	a, b, ok := s.resolvePair(w, q.Get("a"), q.Get("b"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, compareResponse{A: a, B: b, Differences: s.engine.Diff(&a, &b)})
}

type analysisRequest struct {
	A string `json:"a"`
	B string `json:"b"`
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	var req analysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d := s.Directory()
	if d == nil {
		writeLoading(w)
		return
	}
	var pa, pb *entity.Entity
	if a, st := d.Lookup(req.A); st == entity.StatusFound {
		pa = &a
	}
	if b, st := d.Lookup(req.B); st == entity.StatusFound {
		pb = &b
	}
	writeJSON(w, http.StatusOK, s.analyzer.Compare(r.Context(), pa, pb))
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.loader == nil {
		writeError(w, http.StatusNotImplemented, "reload is not configured")
		return
	}
	if err := s.Reload(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "reloaded", "entities": s.Directory().Len()})
}
