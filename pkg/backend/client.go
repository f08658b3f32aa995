package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/oauth2"

	"github.com/platinummonkey/backoffice/pkg/funds"
	"github.com/platinummonkey/backoffice/pkg/observability"
	"github.com/platinummonkey/backoffice/pkg/users"
)

const maxErrorBody = 4 << 10

// Config configures a Client
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	Transport http.RoundTripper
	Metrics   *observability.Metrics
}

// Client calls the back-office API. The zero-token client can only log in;
// WithToken derives one that authenticates every request.
type Client struct {
	base      *url.URL
	timeout   time.Duration
	transport http.RoundTripper
	http      *http.Client
	token     string
	metrics   *observability.Metrics
	duration  metric.Float64Histogram
}

// New creates an unauthenticated client
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend url %q: scheme must be http or https", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	transport = otelhttp.NewTransport(transport)

	duration, err := otel.Meter(observability.InstrumentationName).Float64Histogram(
		"backoffice.backend.duration",
		metric.WithDescription("Back-office API request duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend duration histogram: %w", err)
	}

	return &Client{
		base:      base,
		timeout:   timeout,
		transport: transport,
		http:      &http.Client{Timeout: timeout, Transport: transport},
		metrics:   cfg.Metrics,
		duration:  duration,
	}, nil
}

// WithToken returns a client sending token as a bearer credential
func (c *Client) WithToken(token string) *Client {
	out := *c
	out.token = token
	out.http = &http.Client{
		Timeout: c.timeout,
		Transport: &oauth2.Transport{
			Base:   c.transport,
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
		},
	}
	return &out
}

// Token returns the bearer token the client sends, if any
func (c *Client) Token() string {
	return c.token
}

func (c *Client) observe(ctx context.Context, op string, status int, start time.Time) {
	elapsed := time.Since(start)
	if c.metrics != nil {
		c.metrics.ObserveBackend(op, status, elapsed)
	}
	c.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("operation", op),
		attribute.Int("status", status),
	))
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body interface{}) (*http.Request, error) {
	u := c.base.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends a JSON request and decodes a JSON response into out (if non-nil)
func (c *Client) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, nil, body)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(ctx, op, 0, start)
		return fmt.Errorf("backend %s: %w", op, err)
	}
	defer resp.Body.Close()
	c.observe(ctx, op, resp.StatusCode, start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(op, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("backend %s: failed to decode response: %w", op, err)
	}
	return nil
}

func readAPIError(op string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{Operation: op, StatusCode: resp.StatusCode, Message: errorMessage(data)}
}

type loginResponse struct {
	AccessToken string        `json:"access_token"`
	Access      string        `json:"access"`
	Token       string        `json:"token"`
	User        *users.Record `json:"user"`
}

// Authenticate exchanges credentials for a bearer token and the user's
// record. The token is read from access_token, falling back to the legacy
// access and token keys; an absent token is returned empty for the caller
// to reject.
func (c *Client) Authenticate(ctx context.Context, username, password string) (string, *users.Record, error) {
	var resp loginResponse
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, "login", http.MethodPost, "/login", body, &resp); err != nil {
		return "", nil, err
	}

	token := resp.AccessToken
	for _, alt := range []string{resp.Access, resp.Token} {
		if token == "" {
			token = alt
		}
	}
	return token, resp.User, nil
}

// CurrentUser returns the record of the user owning token
func (c *Client) CurrentUser(ctx context.Context, token string) (*users.Record, error) {
	var rec users.Record
	if err := c.WithToken(token).do(ctx, "current_user", http.MethodGet, "/users/me", nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func userPath(id int64) string {
	return "/users/" + strconv.FormatInt(id, 10)
}

// GetUser returns the full record of a user
func (c *Client) GetUser(ctx context.Context, id int64) (*users.Record, error) {
	var rec users.Record
	if err := c.do(ctx, "get_user", http.MethodGet, userPath(id), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateUser replaces a user's record, including both trees in full
func (c *Client) UpdateUser(ctx context.Context, rec *users.Record) error {
	if rec.ID == 0 {
		return fmt.Errorf("update user: missing id")
	}
	return c.do(ctx, "update_user", http.MethodPut, userPath(rec.ID), rec, nil)
}

// CreateUser creates a user and returns the stored record
func (c *Client) CreateUser(ctx context.Context, rec *users.Record) (*users.Record, error) {
	var created users.Record
	if err := c.do(ctx, "create_user", http.MethodPost, "/users", rec, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// DeleteUser removes a user
func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	return c.do(ctx, "delete_user", http.MethodDelete, userPath(id), nil, nil)
}

// CheckQuery looks a user up by email or CPF
type CheckQuery struct {
	Email string `json:"email,omitempty"`
	CPF   string `json:"cpf,omitempty"`
}

// CheckUser finds a user by email or CPF. A missing user unwraps to
// ErrNotFound.
func (c *Client) CheckUser(ctx context.Context, q CheckQuery) (*users.Record, error) {
	var rec users.Record
	if err := c.do(ctx, "check_user", http.MethodPost, "/users/check", q, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// FundsWithClasses lists every fund with its classes
func (c *Client) FundsWithClasses(ctx context.Context) (funds.Listing, error) {
	var listing funds.Listing
	if err := c.do(ctx, "funds_with_classes", http.MethodGet, "/funds-with-classes", nil, &listing); err != nil {
		return nil, err
	}
	return listing, nil
}

// Payload is an uninterpreted page-data response
type Payload struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Fetch GETs a data endpoint and returns its body untouched. Non-2xx
// responses are returned as *APIError.
func (c *Client) Fetch(ctx context.Context, endpoint string, query url.Values) (*Payload, error) {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(ctx, "fetch", 0, start)
		return nil, fmt.Errorf("backend fetch %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	c.observe(ctx, "fetch", resp.StatusCode, start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, readAPIError("fetch "+endpoint, resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("backend fetch %s: failed to read body: %w", endpoint, err)
	}
	return &Payload{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// Ping checks that the backend answers HTTP at all. Any response counts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodHead, "/", nil, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	resp.Body.Close()
	return nil
}
