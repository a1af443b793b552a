// Package spond is a client for the Spond group-scheduling API.
package spond

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/penalty-kitty/internal/config"
	"github.com/jensholdgaard/penalty-kitty/internal/schedule"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.spond.com/core/v1/"

// maxEvents caps a single events query. The API does not page.
const maxEvents = 500

const timestampFormat = "2006-01-02T15:04:05.000Z"

// ErrGroupNotFound is returned by Group when the account cannot see the group.
var ErrGroupNotFound = errors.New("spond group not found")

// APIError is returned for any non-200 response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("spond api error: %d: %s", e.StatusCode, e.Body)
}

// Client implements schedule.Source over the Spond HTTP API. It logs in
// lazily and reuses the token until the API rejects it.
type Client struct {
	baseURL  string
	email    string
	password string
	timeout  time.Duration
	http     *fasthttp.Client
	logger   *slog.Logger
	tracer   trace.Tracer

	mu    sync.Mutex
	token string
}

var _ schedule.Source = (*Client)(nil)

// New creates a Client from cfg.
func New(cfg config.SpondConfig, logger *slog.Logger, tp trace.TracerProvider) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  base,
		email:    cfg.Email,
		password: cfg.Password,
		timeout:  timeout,
		http: &fasthttp.Client{
			Name:                "kittybot",
			MaxConnsPerHost:     16,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		},
		logger: logger,
		tracer: tp.Tracer("github.com/jensholdgaard/penalty-kitty/internal/spond"),
	}
}

func (c *Client) Events(ctx context.Context, groupID string, minStart, maxEnd time.Time) ([]schedule.Event, error) {
	ctx, span := c.tracer.Start(ctx, "spond.Events", trace.WithAttributes(
		attribute.String("group.id", groupID),
	))
	defer span.End()

	q := url.Values{}
	q.Set("groupId", groupID)
	q.Set("minStartTimestamp", minStart.UTC().Format(timestampFormat))
	q.Set("maxEndTimestamp", maxEnd.UTC().Format(timestampFormat))
	q.Set("scheduled", "true")
	q.Set("order", "asc")
	q.Set("max", strconv.Itoa(maxEvents))

	events, err := getJSON[[]schedule.Event](ctx, c, "sponds/", q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("fetching events: %w", err)
	}
	span.SetAttributes(attribute.Int("events.count", len(*events)))
	if len(*events) >= maxEvents {
		c.logger.WarnContext(ctx, "event query hit the result cap, later events are missing",
			slog.String("group_id", groupID),
			slog.Int("max", maxEvents),
			slog.Time("from", minStart),
			slog.Time("to", maxEnd),
		)
	}
	return *events, nil
}

func (c *Client) Groups(ctx context.Context) ([]schedule.Group, error) {
	ctx, span := c.tracer.Start(ctx, "spond.Groups")
	defer span.End()

	groups, err := getJSON[[]schedule.Group](ctx, c, "groups/", nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("fetching groups: %w", err)
	}
	return *groups, nil
}

// Group looks the group up in the account's group list.
func (c *Client) Group(ctx context.Context, groupID string) (*schedule.Group, error) {
	groups, err := c.Groups(ctx)
	if err != nil {
		return nil, err
	}
	for i := range groups {
		if groups[i].ID == groupID {
			return &groups[i], nil
		}
	}
	return nil, fmt.Errorf("group %s: %w", groupID, ErrGroupNotFound)
}

// getJSON performs an authenticated GET and decodes the body into T. A 401
// drops the cached token and retries once with a fresh login.
func getJSON[T any](ctx context.Context, c *Client, path string, query url.Values) (*T, error) {
	uri := c.baseURL + path
	if len(query) > 0 {
		uri += "?" + query.Encode()
	}

	for attempt := 0; ; attempt++ {
		token, err := c.loginToken(ctx)
		if err != nil {
			return nil, err
		}

		status, body, err := c.do(ctx, fasthttp.MethodGet, uri, token, nil)
		if err != nil {
			return nil, err
		}
		if status == fasthttp.StatusUnauthorized && attempt == 0 {
			c.resetToken(token)
			continue
		}
		if status != fasthttp.StatusOK {
			return nil, &APIError{StatusCode: status, Body: truncate(body)}
		}

		var result T
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
		return &result, nil
	}
}

func (c *Client) loginToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}

	payload, err := json.Marshal(map[string]string{"email": c.email, "password": c.password})
	if err != nil {
		return "", fmt.Errorf("encoding login: %w", err)
	}
	status, body, err := c.do(ctx, fasthttp.MethodPost, c.baseURL+"login", "", payload)
	if err != nil {
		return "", fmt.Errorf("logging in: %w", err)
	}
	if status != fasthttp.StatusOK {
		return "", fmt.Errorf("logging in: %w", &APIError{StatusCode: status, Body: truncate(body)})
	}

	var resp struct {
		LoginToken string `json:"loginToken"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decoding login response: %w", err)
	}
	if resp.LoginToken == "" {
		return "", errors.New("logging in: response carried no token")
	}
	c.token = resp.LoginToken
	return c.token, nil
}

// resetToken forgets token unless another caller already replaced it.
func (c *Client) resetToken(token string) {
	c.mu.Lock()
	if c.token == token {
		c.token = ""
	}
	c.mu.Unlock()
}

func (c *Client) do(ctx context.Context, method, uri, token string, body []byte) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.timeout)
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, req.URI().Path(), err)
	}

	// resp is released on return, so the body must be copied.
	return resp.StatusCode(), append([]byte(nil), resp.Body()...), nil
}

func truncate(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "…"
	}
	return string(body)
}
