package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/app"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/catalog"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/config"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/events"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/models"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/store"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

type testServer struct {
	t      *testing.T
	app    *app.App
	server *Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{
		Server:   config.ServerConfig{Host: "127.0.0.1", Port: 8080},
		Store:    config.StoreConfig{Backend: store.KindMemory, Namespace: store.DefaultNamespace},
		Identity: config.IdentityConfig{DefaultUserID: "local"},
		Monitor:  config.MonitorConfig{Interval: time.Minute, WarnRatio: 0.8},
	}
	a, err := app.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	srv := NewServer(cfg.Server, Deps{
		Templates:  a.Templates,
		Thresholds: a.Thresholds,
		Session:    a.Session,
		Transfer:   a.Transfer,
		Registry:   a.Registry,
		Bus:        a.Bus,
	}, cfg.Identity.DefaultUserID)
	return &testServer{t: t, app: a, server: srv}
}

func (ts *testServer) do(method, path string, body interface{}, headers ...string) (*httptest.ResponseRecorder, envelope) {
	ts.t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") && rec.Header().Get("Content-Disposition") == "" {
		require.NoError(ts.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	rec, env = ts.do(http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), "record-store")
}

func TestIdentityMiddleware(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(http.MethodGet, "/api/v1/projects", nil, UserHeader, "bad user id!")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_user", env.Error.Code)

	rec, env = ts.do(http.MethodGet, "/api/v1/remote/projects", nil, UserHeader, "alice@example.com")
	assert.Equal(t, http.StatusOK, rec.Code)
	data := decode[map[string]interface{}](t, env.Data)
	assert.Equal(t, "alice@example.com", data["userId"])

	_, env = ts.do(http.MethodGet, "/api/v1/remote/projects", nil)
	data = decode[map[string]interface{}](t, env.Data)
	assert.Equal(t, "local", data["userId"])
}

func TestTemplateRoutes(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(http.MethodGet, "/api/v1/templates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Templates        []*models.EvaluationTemplate `json:"templates"`
		ActiveTemplateID string                       `json:"activeTemplateId"`
	}](t, env.Data)
	assert.Equal(t, catalog.DefaultTemplateID, list.ActiveTemplateID)
	assert.GreaterOrEqual(t, len(list.Templates), 2)

	// Built-ins cannot be modified or deleted.
	rec, env = ts.do(http.MethodPut, "/api/v1/templates/"+catalog.DefaultTemplateID, list.Templates[0])
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "template_locked", env.Error.Code)

	rec, _ = ts.do(http.MethodDelete, "/api/v1/templates/"+catalog.DefaultTemplateID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = ts.do(http.MethodGet, "/api/v1/templates/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = ts.do(http.MethodPost, "/api/v1/templates/"+catalog.DefaultTemplateID+"/duplicate", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	dup := decode[models.EvaluationTemplate](t, env.Data)
	assert.False(t, dup.IsLocked)
	assert.True(t, strings.HasSuffix(dup.Name, " (Copy)"))

	dup.Description = "edited"
	rec, env = ts.do(http.MethodPut, "/api/v1/templates/"+dup.ID, dup)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "edited", decode[models.EvaluationTemplate](t, env.Data).Description)

	rec, _ = ts.do(http.MethodPost, "/api/v1/templates/"+dup.ID+"/activate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, env = ts.do(http.MethodDelete, "/api/v1/templates/"+dup.ID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "template_active", env.Error.Code)

	rec, env = ts.do(http.MethodGet, "/api/v1/templates/diff?from="+catalog.DefaultTemplateID+"&to="+dup.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode[map[string]interface{}](t, env.Data)["diff"], "+description: edited")

	rec, env = ts.do(http.MethodPost, "/api/v1/templates", map[string]interface{}{"name": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)
}

func TestTemplateExportImport(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(http.MethodGet, "/api/v1/templates/"+catalog.DefaultTemplateID+"/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "web3-bd-evaluation-framework-template.json")
	exported := rec.Body.Bytes()

	rec, env := ts.do(http.MethodPost, "/api/v1/templates/import", exported)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	imported := decode[models.EvaluationTemplate](t, env.Data)
	assert.NotEqual(t, catalog.DefaultTemplateID, imported.ID)
	assert.False(t, imported.IsBuiltIn)

	rec, env = ts.do(http.MethodPost, "/api/v1/templates/import", []byte(`{"id": "x"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, env.Error.Details)
}

func TestThresholdRoutes(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(http.MethodPut, "/api/v1/thresholds/foundational/team-quality", map[string]interface{}{
		"thresholds": map[string]string{"T0": "Serial founders", "T1": "Some experience"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[map[string]interface{}](t, env.Data)["unsavedChanges"].(bool))

	rec, env = ts.do(http.MethodGet, "/api/v1/thresholds/foundational/team-quality/T0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Serial founders", decode[map[string]string](t, env.Data)["text"])

	rec, _ = ts.do(http.MethodPost, "/api/v1/thresholds/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	_, env = ts.do(http.MethodGet, "/api/v1/thresholds/foundational/team-quality/T0", nil)
	assert.NotEqual(t, "Serial founders", decode[map[string]string](t, env.Data)["text"])

	rec, _ = ts.do(http.MethodPut, "/api/v1/thresholds/nope/missing", map[string]interface{}{
		"thresholds": map[string]string{"T0": "x"},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = ts.do(http.MethodPost, "/api/v1/thresholds/apply", map[string]string{"templateId": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = ts.do(http.MethodPost, "/api/v1/thresholds/apply", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[map[string]interface{}](t, env.Data)["unsavedChanges"].(bool))
}

func TestProjectFlow(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(http.MethodPut, "/api/v1/projects/current/metrics/foundational/team-quality", map[string]string{"tier": "T0"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "no_current_project", env.Error.Code)

	rec, env = ts.do(http.MethodPost, "/api/v1/projects", map[string]string{"name": "Acme"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[models.ProjectEvaluation](t, env.Data)
	assert.Equal(t, catalog.DefaultTemplateID, created.TemplateID)

	rec, _ = ts.do(http.MethodPut, "/api/v1/projects/current/metrics/foundational/team-quality", map[string]interface{}{"value": "strong", "tier": "T0"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = ts.do(http.MethodPut, "/api/v1/projects/current/metrics/foundational/tokenomics", map[string]interface{}{"value": "weak", "tier": "T1"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec, env = ts.do(http.MethodGet, "/api/v1/projects/current/metrics/foundational/tokenomics/navigation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	nav := decode[struct {
		Previous   *models.MetricRef        `json:"previous"`
		Next       *models.MetricRef        `json:"next"`
		Evaluation *models.MetricEvaluation `json:"evaluation"`
	}](t, env.Data)
	require.NotNil(t, nav.Previous)
	assert.Equal(t, "team-quality", nav.Previous.MetricID)
	require.NotNil(t, nav.Next)
	assert.Equal(t, "security", nav.Next.MetricID)
	require.NotNil(t, nav.Evaluation)
	assert.Equal(t, models.TierT1, nav.Evaluation.Tier)

	rec, _ = ts.do(http.MethodGet, "/api/v1/projects/current/metrics/foundational/missing/navigation", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = ts.do(http.MethodPut, "/api/v1/projects/current/notes", map[string]string{"notes": "promising"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = ts.do(http.MethodPost, "/api/v1/projects/current/save", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	saved := decode[models.ProjectEvaluation](t, env.Data)
	require.NotNil(t, saved.OverallScore)
	assert.InDelta(t, 75, *saved.OverallScore, 1e-9)
	assert.Equal(t, models.TierT0, saved.OverallTier)
	assert.Equal(t, "promising", saved.Notes)

	rec, env = ts.do(http.MethodGet, "/api/v1/projects/"+saved.ID+"/score", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"result":{"score":75,"tier":"T0"},"breakdown":{"t0":1,"t1":1,"unrated":0,"total":2}}`, string(env.Data))

	rec, env = ts.do(http.MethodGet, "/api/v1/projects/"+saved.ID+"/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	progress := decode[map[string]float64](t, env.Data)
	assert.Equal(t, float64(2), progress["completedMetrics"])
	assert.Greater(t, progress["totalMetrics"], float64(2))

	rec, _ = ts.do(http.MethodGet, "/api/v1/projects/"+saved.ID+"/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "acme-evaluation.json")
	assert.Contains(t, rec.Body.String(), `"single-evaluation"`)

	rec, _ = ts.do(http.MethodDelete, "/api/v1/projects/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = ts.do(http.MethodGet, "/api/v1/projects/current", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = ts.do(http.MethodPost, "/api/v1/projects/"+saved.ID+"/open", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = ts.do(http.MethodDelete, "/api/v1/projects/"+saved.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = ts.do(http.MethodGet, "/api/v1/projects/"+saved.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = ts.do(http.MethodDelete, "/api/v1/projects/"+saved.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = ts.do(http.MethodPost, "/api/v1/projects", map[string]string{"name": "X", "templateId": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDataRoutes(t *testing.T) {
	ts := newTestServer(t)
	ts.app.Session.Create("Acme", catalog.DefaultTemplateID)
	_, err := ts.app.Session.Save(context.Background())
	require.NoError(t, err)

	rec, _ := ts.do(http.MethodGet, "/api/v1/data/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	backup := rec.Body.Bytes()
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "web3-bd-backup-")

	rec, _ = ts.do(http.MethodDelete, "/api/v1/data", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, ts.app.Session.List())

	rec, env := ts.do(http.MethodPost, "/api/v1/data/import", backup)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode[map[string]interface{}](t, env.Data)["evaluations"])
	assert.Len(t, ts.app.Session.List(), 1)

	rec, env = ts.do(http.MethodPost, "/api/v1/data/import", []byte(`{"nope": true}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)

	rec, env = ts.do(http.MethodGet, "/api/v1/data/usage", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Positive(t, decode[store.Usage](t, env.Data).TotalBytes)
}

func TestEventStream(t *testing.T) {
	ts := newTestServer(t)
	httpSrv := httptest.NewServer(ts.server.Router())
	defer httpSrv.Close()

	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/api/v1/events?types=" + events.ProjectSaved
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "connected", msg.Type)

	require.Eventually(t, func() bool { return ts.app.Bus.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	ts.app.Session.Create("Acme", catalog.DefaultTemplateID)
	saved, err := ts.app.Session.Save(context.Background())
	require.NoError(t, err)

	// project.created is filtered out; the next frame is the save
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "event", msg.Type)
	require.NotNil(t, msg.Event)
	assert.Equal(t, events.ProjectSaved, msg.Event.Type)
	assert.Equal(t, saved.ID, msg.Event.ID)

	require.NoError(t, conn.WriteJSON(StreamMessage{Type: "ping"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "pong", msg.Type)
}
