// Package engine is the client for the external workflow-automation engine.
// It covers the workflow REST API and the webhook trigger endpoints.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	apiKeyHeader = "X-N8N-API-KEY" // #nosec G101
	pageSize     = 250

	DefaultMaxResponseSize = 32 << 20
	DefaultTimeout         = 30 * time.Second
	DefaultTriggerTimeout  = 120 * time.Second
)

type Config struct {
	// APIURL is the engine base URL, e.g. http://n8n:5678.
	APIURL string
	APIKey string

	// WebhookURL is the base for trigger calls. Defaults to APIURL.
	WebhookURL string

	Timeout        time.Duration
	TriggerTimeout time.Duration

	// MaxResponseSize bounds response bodies read into memory.
	MaxResponseSize int64

	HTTPClient *http.Client
}

// Client talks to the engine. It is safe for concurrent use and meant to be
// built once per process.
type Client struct {
	apiURL         string
	webhookURL     string
	apiKey         string
	timeout        time.Duration
	triggerTimeout time.Duration
	maxResponse    int64
	httpClient     *http.Client
	logger         *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	apiURL, err := baseURL(cfg.APIURL)
	if err != nil {
		return nil, fmt.Errorf("invalid engine url: %w", err)
	}

	webhookURL := apiURL
	if cfg.WebhookURL != "" {
		webhookURL, err = baseURL(cfg.WebhookURL)
		if err != nil {
			return nil, fmt.Errorf("invalid engine webhook url: %w", err)
		}
	}

	client := &Client{
		apiURL:         apiURL,
		webhookURL:     webhookURL,
		apiKey:         cfg.APIKey,
		timeout:        cfg.Timeout,
		triggerTimeout: cfg.TriggerTimeout,
		maxResponse:    cfg.MaxResponseSize,
		httpClient:     cfg.HTTPClient,
		logger:         logger.With("module", "engine"),
	}

	if client.timeout <= 0 {
		client.timeout = DefaultTimeout
	}

	if client.triggerTimeout <= 0 {
		client.triggerTimeout = DefaultTriggerTimeout
	}

	if client.maxResponse <= 0 {
		client.maxResponse = DefaultMaxResponseSize
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{}
	}

	return client, nil
}

func baseURL(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}

	if parsed.Host == "" {
		return "", errors.New("missing host")
	}

	return strings.TrimRight(parsed.String(), "/"), nil
}

// ListWorkflows returns every workflow, following the cursor until the last page.
func (c *Client) ListWorkflows(ctx context.Context) ([]WorkflowSummary, error) {
	var (
		workflows []WorkflowSummary
		cursor    string
	)

	seen := map[string]struct{}{}

	for {
		query := url.Values{"limit": {fmt.Sprint(pageSize)}}
		if cursor != "" {
			query.Set("cursor", cursor)
		}

		var page listPage

		err := c.doJSON(ctx, "ListWorkflows", http.MethodGet, "/api/v1/workflows?"+query.Encode(), nil, &page)
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, page.Data...)

		if page.NextCursor == nil || *page.NextCursor == "" {
			break
		}

		cursor = *page.NextCursor

		if _, repeated := seen[cursor]; repeated {
			return nil, &Error{Op: "ListWorkflows", Err: fmt.Errorf("%w: cursor %q repeated", ErrUnavailable, cursor)}
		}

		seen[cursor] = struct{}{}
	}

	c.logger.DebugContext(ctx, "listed workflows", "count", len(workflows))

	return workflows, nil
}

func (c *Client) GetWorkflow(ctx context.Context, id string) (*WorkflowDetail, error) {
	var raw json.RawMessage

	err := c.doJSON(ctx, "GetWorkflow", http.MethodGet, "/api/v1/workflows/"+url.PathEscape(id), nil, &raw)
	if err != nil {
		return nil, err
	}

	return decodeDetail("GetWorkflow", raw)
}

// UpdateWorkflow applies a partial update, e.g. {"active": false}.
func (c *Client) UpdateWorkflow(ctx context.Context, id string, patch map[string]any) (*WorkflowDetail, error) {
	var raw json.RawMessage

	err := c.doJSON(ctx, "UpdateWorkflow", http.MethodPatch, "/api/v1/workflows/"+url.PathEscape(id), patch, &raw)
	if err != nil {
		return nil, err
	}

	return decodeDetail("UpdateWorkflow", raw)
}

// CreateWorkflow creates a new workflow from a definition and returns what the engine stored.
func (c *Client) CreateWorkflow(ctx context.Context, definition map[string]any) (*WorkflowDetail, error) {
	var raw json.RawMessage

	err := c.doJSON(ctx, "CreateWorkflow", http.MethodPost, "/api/v1/workflows", definition, &raw)
	if err != nil {
		return nil, err
	}

	return decodeDetail("CreateWorkflow", raw)
}

// TriggerWebhook posts body to the trigger path. Any HTTP response is returned
// as is, including error statuses; only transport failures return an error.
func (c *Client) TriggerWebhook(ctx context.Context, path, contentType string, body []byte) (*Response, error) {
	header := http.Header{}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}

	return c.forward(ctx, "TriggerWebhook", WebhookRequest{Path: path, Header: header, Body: body})
}

// ForwardWebhook replays an inbound call on the trigger path with its query
// string and end-to-end headers. The response is returned as in TriggerWebhook.
func (c *Client) ForwardWebhook(ctx context.Context, req WebhookRequest) (*Response, error) {
	return c.forward(ctx, "ForwardWebhook", req)
}

func (c *Client) forward(ctx context.Context, op string, in WebhookRequest) (*Response, error) {
	cleaned, err := CleanTriggerPath(in.Path)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}

	target := c.webhookURL + "/webhook/" + cleaned
	if in.Query != "" {
		target += "?" + in.Query
	}

	ctx, cancel := context.WithTimeout(ctx, c.triggerTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(in.Body))
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}

	copyEndToEndHeaders(req.Header, in.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, op, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := readLimited(resp.Body, c.maxResponse)
	if err != nil {
		return nil, c.readError(ctx, op, resp.StatusCode, err)
	}

	c.logger.DebugContext(ctx, "triggered webhook", "op", op, "path", cleaned, "status", resp.StatusCode)

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}

// Headers that describe a single connection or that the outbound request
// sets on its own.
var skippedHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Proxy-Connection":    {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"Host":                {},
	"Content-Length":      {},
	"Accept-Encoding":     {},
}

func copyEndToEndHeaders(dst, src http.Header) {
	// Headers named by Connection are hop-by-hop as well.
	named := map[string]struct{}{}

	for _, value := range src.Values("Connection") {
		for field := range strings.SplitSeq(value, ",") {
			if field = strings.TrimSpace(field); field != "" {
				named[http.CanonicalHeaderKey(field)] = struct{}{}
			}
		}
	}

	for key, values := range src {
		key = http.CanonicalHeaderKey(key)

		if _, skip := skippedHeaders[key]; skip {
			continue
		}

		if _, skip := named[key]; skip {
			continue
		}

		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

// readLimited reads the whole body, failing instead of truncating when it is
// larger than limit.
func readLimited(body io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, err
	}

	if int64(len(data)) > limit {
		return nil, ErrResponseTooLarge
	}

	return data, nil
}

func (c *Client) readError(ctx context.Context, op string, status int, err error) error {
	if errors.Is(err, ErrResponseTooLarge) {
		c.logger.WarnContext(ctx, "engine response too large", "op", op, "status", status, "limit", c.maxResponse)

		return &Error{Op: op, StatusCode: status, Err: fmt.Errorf("%w: %w", ErrUnavailable, err)}
	}

	return c.transportError(ctx, op, err)
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader

	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &Error{Op: op, Err: fmt.Errorf("failed to encode request: %w", err)}
		}

		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, body)
	if err != nil {
		return &Error{Op: op, Err: err}
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set(apiKeyHeader, c.apiKey)

	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.transportError(ctx, op, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := readLimited(resp.Body, c.maxResponse)
	if err != nil {
		return c.readError(ctx, op, resp.StatusCode, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return statusError(op, resp.StatusCode, messageOf(data))
	}

	if out == nil {
		return nil
	}

	err = json.Unmarshal(data, out)
	if err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: malformed response: %w", ErrUnavailable, err)}
	}

	return nil
}

// transportError separates a caller that went away from an engine that did not answer.
func (c *Client) transportError(ctx context.Context, op string, err error) error {
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.DeadlineExceeded) {
		return &Error{Op: op, Err: cause}
	}

	c.logger.WarnContext(ctx, "engine call failed", "op", op, "error", err)

	return &Error{Op: op, Err: fmt.Errorf("%w: %w", ErrUnavailable, err)}
}

func decodeDetail(op string, raw json.RawMessage) (*WorkflowDetail, error) {
	var detail WorkflowDetail

	err := json.Unmarshal(raw, &detail)
	if err != nil {
		return nil, &Error{Op: op, Err: fmt.Errorf("%w: malformed workflow: %w", ErrUnavailable, err)}
	}

	detail.Raw = raw

	return &detail, nil
}

func messageOf(body []byte) string {
	var parsed errorBody

	if json.Unmarshal(body, &parsed) == nil && parsed.Message != "" {
		return parsed.Message
	}

	message := strings.TrimSpace(string(body))
	if len(message) > 200 {
		message = message[:200]
	}

	return message
}
