package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/compare-engine/internal/analysis"
	"github.com/sells-group/compare-engine/internal/entity"
	"github.com/sells-group/compare-engine/internal/geo"
	"github.com/sells-group/compare-engine/internal/record"
)

func testRecords() []record.Raw {
	return []record.Raw{
		{"Company": "Acme Solar GmbH", "Lat": "52,52", "Lng": "13,40", "Region": "Berlin",
			"project_type": "Utility", "capacity_mw": 120, "reference_projects": []any{"a", "b"}},
		{"name": "Bolt Energy", "latitude": 48.13, "longitude": 11.57, "region": "Bayern",
			"project_type": "Rooftop", "capacity": "45", "services": "EPC, O&M"},
		{"organisation": "Café Sonne", "region": "Berlin", "project_type": "Utility"},
	}
}

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	s := New(opts)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func loadedServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s, ts := newTestServer(t, Options{})
	s.SetDirectory(entity.NewDirectory(testRecords(), entity.SolarDeveloper))
	return s, ts
}

func doJSON(t *testing.T, method, url string, body any, out any) *http.Response {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealth(t *testing.T) {
	s, ts := newTestServer(t, Options{})

	var body healthResponse
	resp := doJSON(t, http.MethodGet, ts.URL+"/health", nil, &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body.Status)
	assert.False(t, body.Loaded)
	assert.Nil(t, body.LoadedAt)

	s.SetDirectory(entity.NewDirectory(testRecords(), entity.SolarDeveloper))
	doJSON(t, http.MethodGet, ts.URL+"/health", nil, &body)
	assert.True(t, body.Loaded)
	assert.Equal(t, 3, body.Entities)
	assert.NotNil(t, body.LoadedAt)
}

type pricedBackend struct{}

func (pricedBackend) Name() string { return "priced" }

func (pricedBackend) Analyze(context.Context, *entity.Entity, *entity.Entity) (string, error) {
	return "priced text", nil
}

func (pricedBackend) Spend() (int, float64) { return 3, 0.25 }

func TestHealth_AnalysisState(t *testing.T) {
	_, ts := newTestServer(t, Options{Analyzer: analysis.New(pricedBackend{}, analysis.Options{})})

	var body healthResponse
	doJSON(t, http.MethodGet, ts.URL+"/health", nil, &body)
	assert.Equal(t, "closed", body.Breaker)
	require.NotNil(t, body.Spend)
	assert.Equal(t, 3, body.Spend.Calls)
	assert.InDelta(t, 0.25, body.Spend.USD, 0.0001)

	_, local := newTestServer(t, Options{})
	body = healthResponse{}
	doJSON(t, http.MethodGet, local.URL+"/health", nil, &body)
	assert.Nil(t, body.Spend)
	assert.Empty(t, body.Breaker)
}

func TestLoadingResponses(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	for _, path := range []string{"/entities", "/entities/lookup?name=acme", "/viewport", "/compare?a=x&b=y"} {
		var body errorBody
		resp := doJSON(t, http.MethodGet, ts.URL+path, nil, &body)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, path)
		assert.Equal(t, "loading", body.Status, path)
		assert.Equal(t, "1", resp.Header.Get("Retry-After"), path)
	}
}

func TestEntities(t *testing.T) {
	_, ts := loadedServer(t)

	var body entitiesResponse
	resp := doJSON(t, http.MethodGet, ts.URL+"/entities", nil, &body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, body.Count)
	assert.Equal(t, 3, body.Total)
	assert.Equal(t, "Acme Solar GmbH", body.Entities[0].Name)

	doJSON(t, http.MethodGet, ts.URL+"/entities?region=berlin&classification=UTILITY", nil, &body)
	require.Equal(t, 2, body.Count)
	assert.Equal(t, "Café Sonne", body.Entities[1].Name)

	doJSON(t, http.MethodGet, ts.URL+"/entities?min_mw=50", nil, &body)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "Acme Solar GmbH", body.Entities[0].Name)

	doJSON(t, http.MethodGet, ts.URL+"/entities?services=o%26m", nil, &body)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "Bolt Energy", body.Entities[0].Name)

	var errBody errorBody
	resp = doJSON(t, http.MethodGet, ts.URL+"/entities?max_mw=lots", nil, &errBody)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, `invalid max_mw: "lots"`, errBody.Error)
}

func TestLookup(t *testing.T) {
	_, ts := loadedServer(t)

	var body lookupResponse
	resp := doJSON(t, http.MethodGet, ts.URL+"/entities/lookup?name=cafe-sonne", nil, &body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "found", body.Status)
	assert.Equal(t, "cafe sonne", body.Key)
	require.NotNil(t, body.Entity)
	assert.Equal(t, "Café Sonne", body.Entity.Name)

	body = lookupResponse{}
	resp = doJSON(t, http.MethodGet, ts.URL+"/entities/lookup?name=Nobody+Ltd", nil, &body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body.Status)
	assert.Equal(t, "nobody ltd", body.Key)
	assert.Nil(t, body.Entity)

	resp = doJSON(t, http.MethodGet, ts.URL+"/entities/lookup", nil, &body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestViewport(t *testing.T) {
	_, ts := loadedServer(t)

	var vp geo.Viewport
	resp := doJSON(t, http.MethodGet, ts.URL+"/viewport", nil, &vp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, geo.ViewportBounds, vp.Kind)
	require.NotNil(t, vp.Bounds)
	assert.True(t, vp.Bounds.Contains(geo.NewCoordinate(52.52, 13.40)))
	assert.True(t, vp.Bounds.Contains(geo.NewCoordinate(48.13, 11.57)))

	doJSON(t, http.MethodGet, ts.URL+"/viewport?region=bayern", nil, &vp)
	assert.Equal(t, geo.ViewportPoint, vp.Kind)
	assert.InDelta(t, 48.13, vp.Center.Lat, 1e-9)

	doJSON(t, http.MethodGet, ts.URL+"/viewport?region=nowhere", nil, &vp)
	assert.Equal(t, geo.ViewportDefault, vp.Kind)
}

func TestCompare(t *testing.T) {
	_, ts := loadedServer(t)

	var body compareResponse
	resp := doJSON(t, http.MethodGet, ts.URL+"/compare?a=acme+solar+gmbh&b=BOLT+ENERGY", nil, &body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Acme Solar GmbH", body.A.Name)
	assert.Equal(t, "Bolt Energy", body.B.Name)

	fields := body.Differences.Fields()
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "region")
	assert.NotContains(t, fields, "latitude")
	assert.NotContains(t, fields, "longitude")

	body = compareResponse{}
	doJSON(t, http.MethodGet, ts.URL+"/compare?a=acme+solar+gmbh&b=acme+solar+gmbh", nil, &body)
	assert.NotNil(t, body.Differences)
	assert.Empty(t, body.Differences)

	var errBody errorBody
	resp = doJSON(t, http.MethodGet, ts.URL+"/compare?a=acme+solar+gmbh&b=ghost", nil, &errBody)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, `not found: "ghost"`, errBody.Error)
}

type stubBackend struct {
	text string
	err  error
}

func (s stubBackend) Name() string { return "stub" }

func (s stubBackend) Analyze(context.Context, *entity.Entity, *entity.Entity) (string, error) {
	return s.text, s.err
}

func TestAnalysis(t *testing.T) {
	_, ts := loadedServer(t)

	var out analysis.Outcome
	resp := doJSON(t, http.MethodPost, ts.URL+"/compare/analysis",
		analysisRequest{A: "Acme Solar GmbH", B: "Bolt Energy"}, &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, analysis.SourceLocal, out.Source)
	assert.Contains(t, out.Text, "Acme Solar GmbH operates mainly in Berlin, while Bolt Energy focuses on Bayern.")

	doJSON(t, http.MethodPost, ts.URL+"/compare/analysis", analysisRequest{A: "Acme Solar GmbH"}, &out)
	assert.Equal(t, analysis.NoSelection, out.Text)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/compare/analysis", bytes.NewBufferString("{"))
	require.NoError(t, err)
	r, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = r.Body.Close()
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
}

func TestAnalysis_RemoteAndFallback(t *testing.T) {
	remote, ts := newTestServer(t, Options{Analyzer: analysis.New(stubBackend{text: "Remote says hi."}, analysis.Options{})})
	remote.SetDirectory(entity.NewDirectory(testRecords(), entity.SolarDeveloper))

	var out analysis.Outcome
	doJSON(t, http.MethodPost, ts.URL+"/compare/analysis", analysisRequest{A: "acme solar gmbh", B: "bolt energy"}, &out)
	assert.Equal(t, analysis.SourceRemote, out.Source)
	assert.Equal(t, "Remote says hi.", out.Text)

	failing, ts2 := newTestServer(t, Options{Analyzer: analysis.New(stubBackend{err: errors.New("boom")}, analysis.Options{})})
	failing.SetDirectory(entity.NewDirectory(testRecords(), entity.SolarDeveloper))

	doJSON(t, http.MethodPost, ts2.URL+"/compare/analysis", analysisRequest{A: "acme solar gmbh", B: "bolt energy"}, &out)
	assert.Equal(t, analysis.SourceLocal, out.Source)
	assert.Equal(t, "stub", out.Backend)
	assert.Contains(t, out.Err, "boom")
	assert.NotEmpty(t, out.Text)
}

func TestSessions(t *testing.T) {
	s, ts := loadedServer(t)

	var sess sessionView
	resp := doJSON(t, http.MethodPost, ts.URL+"/sessions", nil, &sess)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, sess.ID)
	assert.Empty(t, sess.Keys)
	base := ts.URL + "/sessions/" + sess.ID

	var tr toggleResponse
	resp = doJSON(t, http.MethodPost, base+"/toggle", toggleRequest{Name: "Bolt Energy"}, &tr)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, tr.Selected)
	assert.Equal(t, "bolt energy", tr.Key)

	doJSON(t, http.MethodPost, base+"/toggle", toggleRequest{Name: "acme solar gmbh"}, &tr)
	doJSON(t, http.MethodPost, base+"/toggle", toggleRequest{Name: "Ghost Co"}, &tr)
	assert.Equal(t, []string{"bolt energy", "acme solar gmbh", "ghost co"}, tr.Session.Keys)
	require.Len(t, tr.Session.Selected, 2)
	assert.Equal(t, "Bolt Energy", tr.Session.Selected[0].Name)
	assert.Equal(t, []string{"ghost co"}, tr.Session.Missing)

	var cmp sessionCompareResponse
	resp = doJSON(t, http.MethodGet, base+"/compare?analysis=true", nil, &cmp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Bolt Energy", cmp.A.Name)
	assert.Equal(t, "Acme Solar GmbH", cmp.B.Name)
	require.NotNil(t, cmp.Analysis)
	assert.Equal(t, analysis.SourceLocal, cmp.Analysis.Source)

	// Toggling again deselects.
	doJSON(t, http.MethodPost, base+"/toggle", toggleRequest{Name: "BOLT ENERGY"}, &tr)
	assert.False(t, tr.Selected)
	assert.Equal(t, []string{"acme solar gmbh", "ghost co"}, tr.Session.Keys)

	resp = doJSON(t, http.MethodGet, base+"/compare", nil, &errorBody{})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, http.MethodDelete, base+"/keys/ghost%20co", nil, &sess)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"acme solar gmbh"}, sess.Keys)

	resp = doJSON(t, http.MethodPost, base+"/toggle", toggleRequest{Name: " ... "}, &errorBody{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Selections survive a data reload and re-resolve.
	s.SetDirectory(entity.NewDirectory(testRecords()[1:], entity.SolarDeveloper))
	doJSON(t, http.MethodGet, base, nil, &sess)
	assert.Equal(t, []string{"acme solar gmbh"}, sess.Keys)
	assert.Empty(t, sess.Selected)
	assert.Equal(t, []string{"acme solar gmbh"}, sess.Missing)

	resp = doJSON(t, http.MethodDelete, base, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = doJSON(t, http.MethodGet, base, nil, &errorBody{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = doJSON(t, http.MethodDelete, base, nil, &errorBody{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReload(t *testing.T) {
	var calls atomic.Int32
	var fail atomic.Bool
	s, ts := newTestServer(t, Options{Loader: func(context.Context) (*entity.Directory, error) {
		n := calls.Add(1)
		if fail.Load() {
			return nil, errors.New("source offline")
		}
		return entity.NewDirectory(testRecords()[:n], entity.SolarDeveloper), nil
	}})

	require.NoError(t, s.Reload(context.Background()))
	assert.Equal(t, 1, s.Directory().Len())

	var body map[string]any
	resp := doJSON(t, http.MethodPost, ts.URL+"/reload", nil, &body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, body["entities"])

	fail.Store(true)
	var errBody errorBody
	resp = doJSON(t, http.MethodPost, ts.URL+"/reload", nil, &errBody)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, errBody.Error, "source offline")
	assert.Equal(t, 2, s.Directory().Len(), "failed reload keeps the previous snapshot")
}

func TestReload_NotConfigured(t *testing.T) {
	s, ts := newTestServer(t, Options{})
	assert.Error(t, s.Reload(context.Background()))

	resp := doJSON(t, http.MethodPost, ts.URL+"/reload", nil, &errorBody{})
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	_, ts := loadedServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestSchema(t *testing.T) {
	_, ts := loadedServer(t)

	var sc entity.Schema
	resp := doJSON(t, http.MethodGet, ts.URL+"/schema", nil, &sc)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "solar_developer", sc.Type)
	assert.Equal(t, []string{"company", "name", "organisation", "organization"}, sc.Fields[entity.AttrName])
}

func TestSchema_BeforeLoad(t *testing.T) {
	ev := entity.EVManufacturer
	_, ts := newTestServer(t, Options{Schema: &ev})

	var sc entity.Schema
	resp := doJSON(t, http.MethodGet, ts.URL+"/schema", nil, &sc)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ev_manufacturer", sc.Type)

	_, bare := newTestServer(t, Options{})
	var body errorBody
	resp = doJSON(t, http.MethodGet, bare.URL+"/schema", nil, &body)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "loading", body.Status)
}

func TestSessions_ToggleRecord(t *testing.T) {
	ev := entity.EVManufacturer
	s, ts := newTestServer(t, Options{Schema: &ev})
	s.SetDirectory(entity.NewDirectory([]record.Raw{
		{"Manufacturer": "Volta Motors", "country": "DE"},
		{"brand": "Nordwagen", "country": "SE"},
	}, entity.EVManufacturer))

	var sess sessionView
	doJSON(t, http.MethodPost, ts.URL+"/sessions", nil, &sess)
	base := ts.URL + "/sessions/" + sess.ID

	var tr toggleResponse
	resp := doJSON(t, http.MethodPost, base+"/toggle",
		toggleRequest{Record: map[string]any{"Manufacturer": "Volta Motors", "country": "DE"}}, &tr)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, tr.Selected)
	assert.Equal(t, "volta motors", tr.Key)
	require.Len(t, tr.Session.Selected, 1)

	// A bare JSON string is a name.
	resp = doJSON(t, http.MethodPost, base+"/toggle", "Nordwagen", &tr)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"volta motors", "nordwagen"}, tr.Session.Keys)
	assert.Len(t, tr.Session.Selected, 2)

	resp = doJSON(t, http.MethodPost, base+"/toggle",
		toggleRequest{Record: map[string]any{"model": "V1"}}, &errorBody{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
