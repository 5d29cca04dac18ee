package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/models"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/scoring"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/store"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/transfer"
)

// UserHeader carries the caller's user id
const UserHeader = "X-User-ID"

// Client is a Go SDK for the evaluation engine API
type Client struct {
	baseURL    string
	userID     string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithUserID sends id as the X-User-ID header on every request
func WithUserID(id string) Option {
	return func(c *Client) {
		c.userID = id
	}
}

// NewClient creates a new evaluation engine client
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is an error envelope returned by the server
type APIError struct {
	Status  int             `json:"-"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %s - %s", e.Code, e.Message)
}

// TemplateList is the response of ListTemplates
type TemplateList struct {
	Templates        []*models.EvaluationTemplate `json:"templates"`
	ActiveTemplateID string                       `json:"activeTemplateId"`
	Total            int                          `json:"total"`
}

// TemplateDiff is the response of DiffTemplates
type TemplateDiff struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Diff      string `json:"diff"`
	Identical bool   `json:"identical"`
}

// ProjectScore is the response of GetScore
type ProjectScore struct {
	Result    scoring.Result    `json:"result"`
	Breakdown scoring.Breakdown `json:"breakdown"`
}

type createProjectRequest struct {
	Name       string `json:"name"`
	TemplateID string `json:"templateId,omitempty"`
}

type updateMetricRequest struct {
	Value any         `json:"value"`
	Tier  models.Tier `json:"tier"`
	Notes string      `json:"notes,omitempty"`
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodGet, "/health", nil)
	return err
}

// --- Templates ---

// ListTemplates retrieves all templates and the active id
func (c *Client) ListTemplates(ctx context.Context) (*TemplateList, error) {
	var out TemplateList
	if err := c.call(ctx, http.MethodGet, "/api/v1/templates", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTemplate retrieves one template
func (c *Client) GetTemplate(ctx context.Context, id string) (*models.EvaluationTemplate, error) {
	var out models.EvaluationTemplate
	if err := c.call(ctx, http.MethodGet, "/api/v1/templates/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ActivateTemplate makes id the active template
func (c *Client) ActivateTemplate(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodPost, "/api/v1/templates/"+url.PathEscape(id)+"/activate", nil, nil)
}

// DuplicateTemplate creates an editable copy of a template
func (c *Client) DuplicateTemplate(ctx context.Context, id string) (*models.EvaluationTemplate, error) {
	var out models.EvaluationTemplate
	if err := c.call(ctx, http.MethodPost, "/api/v1/templates/"+url.PathEscape(id)+"/duplicate", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExportTemplate downloads the template document
func (c *Client) ExportTemplate(ctx context.Context, id string) ([]byte, error) {
	return c.doRequest(ctx, http.MethodGet, "/api/v1/templates/"+url.PathEscape(id)+"/export", nil)
}

// ImportTemplate uploads a template document
func (c *Client) ImportTemplate(ctx context.Context, data []byte) (*models.EvaluationTemplate, error) {
	var out models.EvaluationTemplate
	if err := c.call(ctx, http.MethodPost, "/api/v1/templates/import", data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DiffTemplates compares two templates
func (c *Client) DiffTemplates(ctx context.Context, from, to string) (*TemplateDiff, error) {
	q := url.Values{"from": {from}, "to": {to}}
	var out TemplateDiff
	if err := c.call(ctx, http.MethodGet, "/api/v1/templates/diff?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- Projects ---

// ListProjects retrieves every saved evaluation
func (c *Client) ListProjects(ctx context.Context) ([]*models.ProjectEvaluation, error) {
	var out struct {
		Projects []*models.ProjectEvaluation `json:"projects"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/projects", nil, &out); err != nil {
		return nil, err
	}
	return out.Projects, nil
}

// CreateProject opens a new current project. An empty templateID uses the
// active template.
func (c *Client) CreateProject(ctx context.Context, name, templateID string) (*models.ProjectEvaluation, error) {
	var out models.ProjectEvaluation
	if err := c.call(ctx, http.MethodPost, "/api/v1/projects", createProjectRequest{Name: name, TemplateID: templateID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateMetric records an evaluation on the current project
func (c *Client) UpdateMetric(ctx context.Context, categoryID, metricID string, ev models.MetricEvaluation) (*models.ProjectEvaluation, error) {
	path := fmt.Sprintf("/api/v1/projects/current/metrics/%s/%s", url.PathEscape(categoryID), url.PathEscape(metricID))
	var out models.ProjectEvaluation
	if err := c.call(ctx, http.MethodPut, path, updateMetricRequest{Value: ev.Value, Tier: ev.Tier, Notes: ev.Notes}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveProject persists the current project
func (c *Client) SaveProject(ctx context.Context) (*models.ProjectEvaluation, error) {
	var out models.ProjectEvaluation
	if err := c.call(ctx, http.MethodPost, "/api/v1/projects/current/save", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetScore retrieves the score and tier breakdown of a saved project
func (c *Client) GetScore(ctx context.Context, id string) (*ProjectScore, error) {
	var out ProjectScore
	if err := c.call(ctx, http.MethodGet, "/api/v1/projects/"+url.PathEscape(id)+"/score", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteProject removes a saved project
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/api/v1/projects/"+url.PathEscape(id), nil, nil)
}

// --- Data ---

// ExportData downloads the full backup document
func (c *Client) ExportData(ctx context.Context) ([]byte, error) {
	return c.doRequest(ctx, http.MethodGet, "/api/v1/data/export", nil)
}

// ImportData uploads a backup or single-evaluation document
func (c *Client) ImportData(ctx context.Context, data []byte) (*transfer.ImportResult, error) {
	var out transfer.ImportResult
	if err := c.call(ctx, http.MethodPost, "/api/v1/data/import", data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Usage retrieves the record store usage
func (c *Client) Usage(ctx context.Context) (*store.Usage, error) {
	var out store.Usage
	if err := c.call(ctx, http.MethodGet, "/api/v1/data/usage", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClearData wipes all stored data on the server
func (c *Client) ClearData(ctx context.Context) error {
	return c.call(ctx, http.MethodDelete, "/api/v1/data", nil, nil)
}

// call sends body (raw bytes or a JSON-encodable value) and decodes the
// envelope's data into out when out is non-nil
func (c *Client) call(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	resp, err := c.doRequest(ctx, method, path, reader)
	if err != nil {
		return err
	}

	var result struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *APIError       `json:"error"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if !result.Success {
		if result.Error != nil {
			return result.Error
		}
		return fmt.Errorf("API error: unsuccessful response")
	}

	if out != nil && len(result.Data) > 0 {
		if err := json.Unmarshal(result.Data, out); err != nil {
			return fmt.Errorf("failed to unmarshal response data: %w", err)
		}
	}
	return nil
}

// doRequest performs an HTTP request. Error envelopes are returned as *APIError.
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.userID != "" {
		req.Header.Set(UserHeader, c.userID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error != nil {
			envelope.Error.Status = resp.StatusCode
			return nil, envelope.Error
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
