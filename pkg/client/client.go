// Package client is a Go client for the Lumnicode REST API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/imroc/req/v3"

	"github.com/lumnicode/engine/pkg/progress"
)

const defaultTimeout = 30 * time.Second

// Error is a non-2xx response from the API.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *Error          `json:"error"`
	Meta    *Page           `json:"meta"`
}

type Client struct {
	baseURL string
	token   string
	http    *req.Client
}

type Option func(*Client)

// WithToken authenticates every request with a bearer token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// WithHTTPClient replaces the underlying req client; its base URL is overwritten.
func WithHTTPClient(rc *req.Client) Option {
	return func(c *Client) { c.http = rc }
}

// New builds a client for the server at baseURL, e.g. http://localhost:8000.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    req.C().SetTimeout(defaultTimeout).SetUserAgent("lumnictl"),
	}
	for _, o := range opts {
		o(c)
	}
	c.http.SetBaseURL(c.baseURL + "/api/v1")
	if c.token != "" {
		c.http.SetCommonBearerAuthToken(c.token)
	}
	return c
}

// Progress returns a progress stream client for a session, carrying the same token.
func (c *Client) Progress(projectID, sessionID string, opts ...progress.Option) (*progress.Client, error) {
	if c.token != "" {
		opts = append([]progress.Option{progress.WithToken(c.token)}, opts...)
	}
	return progress.NewClient(c.baseURL, projectID, sessionID, opts...)
}

// do sends one request and decodes the envelope's data into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) (*Page, error) {
	r := c.http.R().SetContext(ctx)
	if body != nil {
		r.SetBody(body)
	}
	for k, vs := range query {
		for _, v := range vs {
			r.AddQueryParam(k, v)
		}
	}
	resp, err := r.Send(method, path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	raw, err := resp.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.IsSuccessState() {
			return nil, fmt.Errorf("%s %s: decode: %w", method, path, err)
		}
	}
	if !resp.IsSuccessState() {
		e := env.Error
		if e == nil {
			e = &Error{Code: strings.ToLower(strings.ReplaceAll(http.StatusText(resp.StatusCode), " ", "_")), Message: strings.TrimSpace(string(raw))}
		}
		e.Status = resp.StatusCode
		return nil, e
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("%s %s: decode data: %w", method, path, err)
		}
	}
	return env.Meta, nil
}

func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	_, err := c.do(ctx, http.MethodGet, "/auth/me", nil, nil, &u)
	return &u, err
}

func (c *Client) ListProjects(ctx context.Context, o ListProjectsOptions) ([]Project, *Page, error) {
	q := url.Values{}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(o.PageSize))
	}
	if o.Status != "" {
		q.Set("status", o.Status)
	}
	if o.Search != "" {
		q.Set("search", o.Search)
	}
	var out []Project
	page, err := c.do(ctx, http.MethodGet, "/projects", q, nil, &out)
	return out, page, err
}

// CreateProject issues a single POST /projects.
func (c *Client) CreateProject(ctx context.Context, in CreateProjectInput) (*Project, error) {
	var p Project
	if _, err := c.do(ctx, http.MethodPost, "/projects", nil, in, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) GetProject(ctx context.Context, id string) (*Project, error) {
	var p Project
	if _, err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(id), nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) UpdateProject(ctx context.Context, id string, in UpdateProjectInput) (*Project, error) {
	var p Project
	if _, err := c.do(ctx, http.MethodPut, "/projects/"+url.PathEscape(id), nil, in, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) DeleteProject(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/projects/"+url.PathEscape(id), nil, nil, nil)
	return err
}

func (c *Client) ListSnapshots(ctx context.Context, projectID string) ([]Snapshot, error) {
	var out []Snapshot
	_, err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(projectID)+"/snapshots", nil, nil, &out)
	return out, err
}

func (c *Client) CreateSnapshot(ctx context.Context, projectID, name, description string) (*Snapshot, error) {
	var s Snapshot
	body := map[string]string{"name": name, "description": description}
	if _, err := c.do(ctx, http.MethodPost, "/projects/"+url.PathEscape(projectID)+"/snapshots", nil, body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// RestoreSnapshot writes the snapshot's files back and returns them.
func (c *Client) RestoreSnapshot(ctx context.Context, projectID, snapshotID string) ([]File, error) {
	var out struct {
		Files []File `json:"files"`
	}
	path := "/projects/" + url.PathEscape(projectID) + "/snapshots/" + url.PathEscape(snapshotID) + "/restore"
	_, err := c.do(ctx, http.MethodPost, path, nil, nil, &out)
	return out.Files, err
}

func (c *Client) ListFiles(ctx context.Context, projectID string) ([]File, error) {
	var out []File
	_, err := c.do(ctx, http.MethodGet, "/files", url.Values{"project_id": {projectID}}, nil, &out)
	return out, err
}

func (c *Client) CreateFile(ctx context.Context, in CreateFileInput) (*File, error) {
	var f File
	if _, err := c.do(ctx, http.MethodPost, "/files", nil, in, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *Client) GetFile(ctx context.Context, id string) (*File, error) {
	var f File
	if _, err := c.do(ctx, http.MethodGet, "/files/"+url.PathEscape(id), nil, nil, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *Client) UpdateFile(ctx context.Context, id string, in UpdateFileInput) (*File, error) {
	var f File
	if _, err := c.do(ctx, http.MethodPut, "/files/"+url.PathEscape(id), nil, in, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// SaveContent replaces a file's content.
func (c *Client) SaveContent(ctx context.Context, id, content string) error {
	_, err := c.UpdateFile(ctx, id, UpdateFileInput{Content: &content})
	return err
}

func (c *Client) DeleteFile(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/files/"+url.PathEscape(id), nil, nil, nil)
	return err
}

func (c *Client) FileVersions(ctx context.Context, id string) ([]FileVersion, error) {
	var out []FileVersion
	_, err := c.do(ctx, http.MethodGet, "/files/"+url.PathEscape(id)+"/versions", nil, nil, &out)
	return out, err
}

func (c *Client) Assist(ctx context.Context, in AssistInput) (*Suggestion, error) {
	var s Suggestion
	if _, err := c.do(ctx, http.MethodPost, "/assist", nil, in, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	var out []APIKey
	_, err := c.do(ctx, http.MethodGet, "/api-keys", nil, nil, &out)
	return out, err
}

func (c *Client) AddAPIKey(ctx context.Context, in AddAPIKeyInput) (*APIKey, error) {
	var k APIKey
	if _, err := c.do(ctx, http.MethodPost, "/api-keys", nil, in, &k); err != nil {
		return nil, err
	}
	return &k, nil
}

func (c *Client) DeleteAPIKey(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api-keys/"+url.PathEscape(id), nil, nil, nil)
	return err
}

func (c *Client) Providers(ctx context.Context) ([]Provider, error) {
	var out []Provider
	_, err := c.do(ctx, http.MethodGet, "/ai/providers", nil, nil, &out)
	return out, err
}

// Generate starts an AI generation session for a project.
func (c *Client) Generate(ctx context.Context, projectID, prompt string, techStack []string) (*GenerateResult, error) {
	var g GenerateResult
	body := map[string]any{"prompt": prompt, "tech_stack": techStack}
	if _, err := c.do(ctx, http.MethodPost, "/ai/generate/"+url.PathEscape(projectID), nil, body, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (c *Client) Session(ctx context.Context, id string) (*Session, error) {
	var s Session
	if _, err := c.do(ctx, http.MethodGet, "/ai/session/"+url.PathEscape(id), nil, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) sessionAction(ctx context.Context, id, action string) (*Session, error) {
	var s Session
	if _, err := c.do(ctx, http.MethodPost, "/ai/session/"+url.PathEscape(id)+"/"+action, nil, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) StopSession(ctx context.Context, id string) (*Session, error) {
	return c.sessionAction(ctx, id, "stop")
}

func (c *Client) PauseSession(ctx context.Context, id string) (*Session, error) {
	return c.sessionAction(ctx, id, "pause")
}

func (c *Client) ResumeSession(ctx context.Context, id string) (*Session, error) {
	return c.sessionAction(ctx, id, "resume")
}

func (c *Client) History(ctx context.Context, projectID string) ([]Session, error) {
	var out []Session
	_, err := c.do(ctx, http.MethodGet, "/ai/history/"+url.PathEscape(projectID), nil, nil, &out)
	return out, err
}
