// Package botapi performs single Telegram Bot API calls and classifies their failures.
package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	ta "github.com/mymmrac/telego/telegoapi"

	"tgpoll/pkg/logger"
	"tgpoll/pkg/version"
)

const DefaultBaseURL = "https://api.telegram.org"

// Client executes Bot API methods over a shared *http.Client.
//
// A Client is safe for concurrent use. Copies made by WithUserAgent share the
// underlying HTTP client and its connection pool.
type Client struct {
	token     string
	baseURL   string
	userAgent string
	http      *http.Client
	log       *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL points the client at another Bot API server.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithHTTPClient sets the HTTP client used for every call.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every call.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(userAgent); trimmed != "" {
			c.userAgent = trimmed
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient validates the token and builds a client.
func NewClient(token string, opts ...Option) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("bot token is required")
	}
	if strings.ContainsAny(token, "/ ") {
		return nil, errors.New("bot token contains invalid characters")
	}

	c := &Client{
		token:     token,
		baseURL:   DefaultBaseURL,
		userAgent: version.UserAgent(""),
		http:      &http.Client{},
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logger.Component(c.log, "botapi.client")

	return c, nil
}

// WithUserAgent returns a copy of c that sends userAgent.
func (c *Client) WithUserAgent(userAgent string) *Client {
	next := *c
	WithUserAgent(userAgent)(&next)
	return &next
}

// UserAgent returns the User-Agent header value in use.
func (c *Client) UserAgent() string {
	return c.userAgent
}

type envelope struct {
	Ok          *bool                      `json:"ok"`
	Result      json.RawMessage            `json:"result"`
	ErrorCode   int                        `json:"error_code"`
	Description string                     `json:"description"`
	Parameters  *ta.ResponseParameters `json:"parameters"`
}

// Execute performs one call to method and returns the raw result payload.
//
// The call is bounded by timeout when it is positive. Execute never retries.
func (c *Client) Execute(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	payload := []byte("{}")
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			// Nothing was sent, so this is a caller bug rather than a call outcome.
			return nil, fmt.Errorf("%s: encode params: %w", method, err)
		}
		payload = encoded
	}

	callCtx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	log := c.log.With("method", method, "request_id", uuid.NewString())
	startedAt := time.Now()
	log.Debug("Bot API request started", "timeout", timeout)

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.methodURL(method), bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Kind: KindTransport, Method: method, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		classified := c.classifyTransport(ctx, callCtx, method, err)
		log.Debug("Bot API request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "kind", classified.Kind.String())
		return nil, classified
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		classified := c.classifyTransport(ctx, callCtx, method, err)
		log.Debug("Bot API response read failed", "duration_ms", time.Since(startedAt).Milliseconds(), "kind", classified.Kind.String())
		return nil, classified
	}

	result, apiErr := decodeEnvelope(method, resp.StatusCode, body)
	if apiErr != nil {
		log.Debug("Bot API request rejected", "duration_ms", time.Since(startedAt).Milliseconds(), "status", resp.StatusCode, "kind", apiErr.Kind.String())
		return nil, apiErr
	}

	log.Debug("Bot API request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "status", resp.StatusCode)
	return result, nil
}

// Do executes method and decodes its result into R.
func Do[R any](ctx context.Context, c *Client, method string, params any, timeout time.Duration) (R, error) {
	var out R

	raw, err := c.Execute(ctx, method, params, timeout)
	if err != nil {
		return out, err
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return out, &Error{Kind: KindDecode, Method: method, Body: raw, Err: err}
	}

	return out, nil
}

func (c *Client) methodURL(method string) string {
	return c.baseURL + "/bot" + c.token + "/" + method
}

// classifyTransport maps an HTTP-level failure onto Timeout or Transport.
//
// Only an expired per-call deadline counts as a timeout; cancellation of the
// caller's context is reported as a transport error wrapping ctx.Err().
func (c *Client) classifyTransport(parent context.Context, callCtx context.Context, method string, err error) *Error {
	if parentErr := parent.Err(); parentErr != nil {
		return &Error{Kind: KindTransport, Method: method, Err: parentErr}
	}

	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Method: method, Err: context.DeadlineExceeded}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Method: method, Err: c.redact(err)}
	}

	return &Error{Kind: KindTransport, Method: method, Err: c.redact(err)}
}

// redact keeps the bot token, which is part of every method URL, out of errors.
func (c *Client) redact(err error) error {
	if !strings.Contains(err.Error(), c.token) {
		return err
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil && !strings.Contains(urlErr.Err.Error(), c.token) {
		return urlErr.Err
	}

	return errors.New(strings.ReplaceAll(err.Error(), c.token, "<token>"))
}

func decodeEnvelope(method string, status int, body []byte) (json.RawMessage, *Error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Ok == nil {
		return nil, &Error{Kind: KindMalformedResponse, Method: method, StatusCode: status, Body: body, Err: err}
	}

	if !*env.Ok {
		return nil, &Error{
			Kind:        KindRemote,
			Method:      method,
			StatusCode:  status,
			Body:        body,
			Code:        env.ErrorCode,
			Description: env.Description,
			Parameters:  env.Parameters,
		}
	}

	return env.Result, nil
}
