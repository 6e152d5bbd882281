package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	errs "github.com/dylibso/modsurfer/errors"
)

const requestTimeout = 30 * time.Second

// Client talks to a modsurfer catalog server. All methods are
// synchronous and honor the passed context.
type Client struct {
	base   string
	http   *http.Client
	logger *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger attaches a logger for request tracing.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a catalog client for the given base URL (e.g.
// http://localhost:1739).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:   strings.TrimRight(baseURL, "/"),
		http:   &http.Client{Timeout: requestTimeout},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create stores a module in the catalog and returns its assigned ID
// and content hash.
func (c *Client) Create(ctx context.Context, wasm []byte, metadata map[string]string, location string) (int64, string, error) {
	req := createRequest{Wasm: wasm, Metadata: metadata, Location: location}
	var resp createResponse
	if err := c.send(ctx, http.MethodPut, "/api/v1/module", req, &resp); err != nil {
		return 0, "", err
	}
	if resp.Error != nil {
		return 0, "", apiError("create module", resp.Error)
	}
	return resp.ModuleID, resp.Hash, nil
}

// Get fetches one stored module by ID.
func (c *Client) Get(ctx context.Context, moduleID int64) (*Persisted, error) {
	var resp getResponse
	if err := c.send(ctx, http.MethodPost, "/api/v1/module", getRequest{ModuleID: moduleID}, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, apiError("get module", resp.Error)
	}
	return &resp.Module, nil
}

// List pages through stored modules.
func (c *Client) List(ctx context.Context, offset, limit uint32) (*List, error) {
	req := listRequest{Pagination: Pagination{Offset: offset, Limit: limit}}
	var resp listResponse
	if err := c.send(ctx, http.MethodPost, "/api/v1/modules", req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, apiError("list modules", resp.Error)
	}
	return &List{Modules: resp.Modules, Total: resp.Total, Offset: offset, Limit: limit}, nil
}

// Search finds stored modules matching the query.
func (c *Client) Search(ctx context.Context, query SearchQuery) (*List, error) {
	var resp searchResponse
	if err := c.send(ctx, http.MethodPost, "/api/v1/search", query, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, apiError("search modules", resp.Error)
	}
	return &List{Modules: resp.Modules, Total: resp.Total, Offset: query.Offset, Limit: query.Limit}, nil
}

// Delete removes modules by ID and reports what was removed.
func (c *Client) Delete(ctx context.Context, moduleIDs []int64) ([]Deleted, error) {
	var resp deleteResponse
	if err := c.send(ctx, http.MethodDelete, "/api/v1/modules", deleteRequest{ModuleIDs: moduleIDs}, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, apiError("delete modules", resp.Error)
	}
	return resp.Deleted, nil
}

// Yank marks a stored module version as withdrawn without deleting it.
func (c *Client) Yank(ctx context.Context, moduleID int64, version string) error {
	var resp yankResponse
	if err := c.send(ctx, http.MethodPost, "/api/v1/yank", yankRequest{ModuleID: moduleID, Version: version}, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return apiError("yank module", resp.Error)
	}
	return nil
}

// Audit validates every stored module against a checkfile server-side
// and returns the reports matching the requested outcome.
func (c *Client) Audit(ctx context.Context, checkfileBytes []byte, outcome AuditOutcome, offset, limit uint32) ([]AuditReport, error) {
	req := auditRequest{
		Checkfile:  checkfileBytes,
		Outcome:    outcome,
		Pagination: Pagination{Offset: offset, Limit: limit},
	}
	var resp auditResponse
	if err := c.send(ctx, http.MethodPost, "/api/v1/audit", req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, apiError("audit modules", resp.Error)
	}
	return resp.Reports, nil
}

func (c *Client) send(ctx context.Context, method, route string, reqBody, respBody any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return errs.HTTP("encode "+route, err)
	}

	url := c.base + route
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return errs.HTTP("build request "+route, err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("catalog request",
		zap.String("method", method),
		zap.String("url", url),
		zap.Int("bytes", len(payload)))

	resp, err := c.http.Do(req)
	if err != nil {
		return errs.HTTP(method+" "+url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errs.HTTP(method+" "+url, fmt.Errorf("status %s: %s", resp.Status, bytes.TrimSpace(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return errs.HTTP("decode response from "+url, err)
	}
	return nil
}

func apiError(what string, e *wireError) error {
	return errs.HTTP(what, fmt.Errorf("%s [%d]", e.Message, e.Code))
}
