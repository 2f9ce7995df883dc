// Package httpapi implements segment.Repository over the segment
// repository's REST API.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/segment-rules/internal/domain"
	"github.com/ignite/segment-rules/internal/pkg/apiauth"
	"github.com/ignite/segment-rules/internal/pkg/httpretry"
	"github.com/ignite/segment-rules/internal/pkg/logger"
	"github.com/ignite/segment-rules/internal/service/segment"
)

// SegmentsPath is the collection path under the API root.
const SegmentsPath = "/api/email/segments"

// TenantHeader scopes every request to one tenant.
const TenantHeader = "X-Tenant-ID"

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 8 << 20

// Config configures a Client.
type Config struct {
	BaseURL    string
	TenantID   int64
	Tokens     *apiauth.TokenSource // nil sends no Authorization header
	Timeout    time.Duration
	MaxRetries int
}

// Client is a segment.Repository backed by the REST API.
type Client struct {
	baseURL  string
	tenantID int64
	tokens   *apiauth.TokenSource
	doer     httpretry.HTTPDoer
}

var _ segment.Repository = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithDoer replaces the HTTP stack, e.g. with a test double.
func WithDoer(d httpretry.HTTPDoer) Option {
	return func(c *Client) { c.doer = d }
}

// New creates a client. Requests are signed when cfg.Tokens is set and
// idempotent requests are retried with backoff.
func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	var hc *http.Client
	if cfg.Tokens != nil {
		hc = cfg.Tokens.Client(nil, cfg.Timeout)
	} else {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		tenantID: cfg.TenantID,
		tokens:   cfg.Tokens,
		doer:     httpretry.NewRetryClient(hc, cfg.MaxRetries),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope[T any] struct {
	Data T `json:"data"`
}

type errorBody struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details"`
}

func segmentPath(id int64) string {
	return SegmentsPath + "/" + strconv.FormatInt(id, 10)
}

// List returns every segment of the tenant in server order.
func (c *Client) List(ctx context.Context) ([]domain.Segment, error) {
	var out envelope[[]domain.Segment]
	if err := c.call(ctx, "list segments", http.MethodGet, SegmentsPath, nil, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		out.Data = []domain.Segment{}
	}
	return out.Data, nil
}

// Get returns one segment.
func (c *Client) Get(ctx context.Context, id int64) (*domain.Segment, error) {
	var out envelope[*domain.Segment]
	if err := c.call(ctx, "get segment", http.MethodGet, segmentPath(id), nil, &out); err != nil {
		return nil, err
	}
	return c.required("get segment", out.Data)
}

// Create posts a new segment.
func (c *Client) Create(ctx context.Context, in domain.SegmentInput) (*domain.Segment, error) {
	var out envelope[*domain.Segment]
	if err := c.call(ctx, "create segment", http.MethodPost, SegmentsPath, in, &out); err != nil {
		return nil, err
	}
	return c.required("create segment", out.Data)
}

// Update replaces a segment's name, type and rules.
func (c *Client) Update(ctx context.Context, id int64, in domain.SegmentInput) (*domain.Segment, error) {
	var out envelope[*domain.Segment]
	if err := c.call(ctx, "update segment", http.MethodPut, segmentPath(id), in, &out); err != nil {
		return nil, err
	}
	return c.required("update segment", out.Data)
}

// Delete removes a segment.
func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.call(ctx, "delete segment", http.MethodDelete, segmentPath(id), nil, nil)
}

// Preview fetches sample contacts for a segment.
func (c *Client) Preview(ctx context.Context, id int64) (*domain.SegmentPreview, error) {
	var out domain.SegmentPreview
	if err := c.call(ctx, "preview segment", http.MethodGet, segmentPath(id)+"/preview", nil, &out); err != nil {
		return nil, err
	}
	if out.Contacts == nil {
		out.Contacts = []domain.Contact{}
	}
	return &out, nil
}

func (c *Client) required(op string, seg *domain.Segment) (*domain.Segment, error) {
	if seg == nil {
		return nil, &segment.TransportError{Op: op, Err: errors.New("response carried no segment")}
	}
	return seg, nil
}

// call performs one logical request. A 401 with a refresh token configured
// refreshes once and replays the request.
func (c *Client) call(ctx context.Context, op, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
	}

	for attempt := 0; ; attempt++ {
		status, raw, usedToken, err := c.send(ctx, op, method, path, payload)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized && c.tokens != nil && attempt == 0 {
			c.tokens.Invalidate(usedToken)
			logger.Info("[httpapi] access token rejected, refreshing", "op", op)
			continue
		}
		if status < 200 || status > 299 {
			return statusError(op, status, raw)
		}
		if out == nil || len(bytes.TrimSpace(raw)) == 0 {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return &segment.TransportError{Op: op, StatusCode: status, Err: fmt.Errorf("decode response: %w", err)}
		}
		return nil
	}
}

func (c *Client) send(ctx context.Context, op, method, path string, payload []byte) (int, []byte, string, error) {
	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return 0, nil, "", fmt.Errorf("%s: build request: %w", op, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(TenantHeader, strconv.FormatInt(c.tenantID, 10))
	req.Header.Set("X-Request-ID", uuid.NewString())

	start := time.Now()
	resp, err := c.doer.Do(req)
	if err != nil {
		return 0, nil, "", &segment.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, "", &segment.TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	var usedToken string
	if resp.Request != nil {
		usedToken = apiauth.BearerToken(resp.Request.Header.Get("Authorization"))
	}
	logger.Debug("[httpapi] request done",
		"op", op, "method", method, "path", path,
		"status", resp.StatusCode, "duration", time.Since(start),
		"request_id", req.Header.Get("X-Request-ID"))
	return resp.StatusCode, raw, usedToken, nil
}

// statusError maps a non-2xx response onto the segment error taxonomy.
func statusError(op string, status int, raw []byte) error {
	var eb errorBody
	_ = json.Unmarshal(raw, &eb)
	msg := eb.Error
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, segment.ErrNotFound)
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		fields := eb.Details
		if len(fields) == 0 && status == http.StatusConflict {
			fields = map[string]string{"name": msg}
		}
		return &segment.ValidationError{StatusCode: status, Message: msg, Fields: fields}
	}
	return &segment.TransportError{Op: op, StatusCode: status, Err: errors.New(msg)}
}
