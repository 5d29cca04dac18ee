package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/models"
)

func writeEnvelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func TestClient_SendsUserHeaderAndDecodesData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "alice", r.Header.Get(UserHeader))
		assert.Equal(t, "/api/v1/templates", r.URL.Path)
		writeEnvelope(w, http.StatusOK, map[string]any{
			"templates":        []map[string]any{{"id": "t1", "name": "One", "categories": []any{}}},
			"activeTemplateId": "t1",
			"total":            1,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", WithUserID("alice"))
	list, err := c.ListTemplates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t1", list.ActiveTemplateID)
	require.Len(t, list.Templates, 1)
	assert.Equal(t, "One", list.Templates[0].Name)
}

func TestClient_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"success":false,"error":{"code":"template_locked","message":"built-in templates cannot be modified"}}`)
	}))
	defer srv.Close()

	err := NewClient(srv.URL).ActivateTemplate(context.Background(), "x")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "template_locked", apiErr.Code)
}

func TestClient_NonEnvelopeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway down", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient(srv.URL).Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")
}

func TestClient_UpdateMetricEncodesRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1/projects/current/metrics/foundational/team-quality", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "T0", body["tier"])
		assert.Equal(t, "strong", body["value"])

		writeEnvelope(w, http.StatusOK, map[string]any{
			"id":      "p1",
			"name":    "Acme",
			"metrics": map[string]any{"foundational_team-quality": map[string]any{"value": "strong", "tier": "T0"}},
		})
	}))
	defer srv.Close()

	p, err := NewClient(srv.URL).UpdateMetric(context.Background(), "foundational", "team-quality",
		models.MetricEvaluation{Value: "strong", Tier: models.TierT0})
	require.NoError(t, err)
	assert.Equal(t, models.TierT0, p.Metrics["foundational_team-quality"].Tier)
}

func TestClient_ImportDataSendsRawBody(t *testing.T) {
	doc := []byte(`{"evaluations":[]}`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, doc, got)
		writeEnvelope(w, http.StatusOK, map[string]any{"evaluations": 0})
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL).ImportData(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Evaluations)
}

func TestClient_DiffTemplatesQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "a b", r.URL.Query().Get("from"))
		assert.Equal(t, "c", r.URL.Query().Get("to"))
		writeEnvelope(w, http.StatusOK, map[string]any{"from": "a b", "to": "c", "identical": true})
	}))
	defer srv.Close()

	d, err := NewClient(srv.URL).DiffTemplates(context.Background(), "a b", "c")
	require.NoError(t, err)
	assert.True(t, d.Identical)
}
