// Package apiclient is the single choke point for outbound REST calls. It
// attaches the session token, retries transient failures with backoff,
// enforces per-attempt timeouts and tears the session down on 401.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/session"
)

const (
	// DefaultTimeout applies to each attempt when no override is given.
	DefaultTimeout = 20 * time.Second

	// DefaultMaxRetries is the number of extra attempts after the first.
	DefaultMaxRetries = 3

	// LoginRoute is where the client navigates after a 401.
	LoginRoute = "/login"
)

// Navigator performs the process-wide navigation after a session teardown.
type Navigator interface {
	Navigate(route string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(route string)

func (f NavigatorFunc) Navigate(route string) { f(route) }

// Priority is advisory request metadata. It does not reorder anything.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	MaxRetries int
	Timeout    time.Duration
	HTTPClient *http.Client
	Session    session.Provider
	Navigator  Navigator
	Log        zerolog.Logger
}

// Client sends requests with auth, retry, timeout and cancellation policy.
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    session.Provider
	navigator  Navigator
	maxRetries int
	timeout    time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	log        zerolog.Logger
}

// New creates a Client.
func New(cfg Config) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: cfg.HTTPClient,
		session:    cfg.Session,
		navigator:  cfg.Navigator,
		maxRetries: cfg.MaxRetries,
		timeout:    cfg.Timeout,
		sleep:      sleepContext,
		log:        cfg.Log.With().Str("component", "api_client").Logger(),
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.session == nil {
		c.session = session.NewMemory()
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	return c
}

// Session returns the provider the client reads tokens from.
func (c *Client) Session() session.Provider {
	return c.session
}

// Response is a successful (status < 400) response with its body read.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Option customizes a single call.
type Option func(*callOptions)

type callOptions struct {
	timeout  time.Duration
	priority Priority
	header   http.Header
}

// WithTimeout overrides the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *callOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithPriority tags the call. It is recorded, not scheduled on.
func WithPriority(p Priority) Option {
	return func(o *callOptions) { o.priority = p }
}

// WithHeader sets an extra request header.
func WithHeader(key, value string) Option {
	return func(o *callOptions) { o.header.Set(key, value) }
}

// WithAccept sets the Accept header.
func WithAccept(mime string) Option {
	return WithHeader("Accept", mime)
}

// descriptor describes one call. It is passed by value so concurrent calls
// never share retry state.
type descriptor struct {
	method      string
	path        string
	url         string
	body        []byte
	contentType string
	header      http.Header
	timeout     time.Duration
	priority    Priority
	requestID   string
	attempt     int
}

func (d descriptor) next() descriptor {
	d.attempt++
	return d
}

// Get is shorthand for Do with GET and no body.
func (c *Client) Get(ctx context.Context, path string, opts ...Option) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil, opts...)
}

// Post is shorthand for Do with POST.
func (c *Client) Post(ctx context.Context, path string, body any, opts ...Option) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, body, opts...)
}

// Do sends a request. ctx is the cancellation token: cancelling it aborts the
// transport and any pending backoff, and the returned error matches
// ErrCanceled. body may be nil, a *Multipart, raw []byte, or any value that
// is sent as JSON.
func (c *Client) Do(ctx context.Context, method, path string, body any, opts ...Option) (*Response, error) {
	o := callOptions{timeout: c.timeout, priority: PriorityNormal, header: http.Header{}}
	for _, opt := range opts {
		opt(&o)
	}

	payload, contentType, err := encodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}

	d := descriptor{
		method:      method,
		path:        path,
		url:         c.baseURL + path,
		body:        payload,
		contentType: contentType,
		header:      o.header,
		timeout:     o.timeout,
		priority:    o.priority,
		requestID:   uuid.NewString(),
	}

	for {
		resp, err := c.attempt(ctx, d)
		if err == nil {
			return resp, nil
		}
		if !retryable(err) || d.attempt >= c.maxRetries {
			return nil, err
		}

		d = d.next()
		delay := Backoff(d.attempt)
		c.log.Warn().
			Err(err).
			Str("method", method).
			Str("path", path).
			Str("request_id", d.requestID).
			Int("retry", d.attempt).
			Dur("delay", delay).
			Msg("Retrying request")

		if err := c.sleep(ctx, delay); err != nil {
			return nil, &canceledError{cause: err}
		}
	}
}

func (c *Client) attempt(ctx context.Context, d descriptor) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, &canceledError{cause: err}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var reader io.Reader
	if d.body != nil {
		reader = bytes.NewReader(d.body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, d.method, d.url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range d.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if d.contentType != "" {
		req.Header.Set("Content-Type", d.contentType)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	req.Header.Set("X-Request-Priority", string(d.priority))
	// Retries share the ID so server logs group the attempts of one call.
	req.Header.Set("X-Request-ID", d.requestID)
	if token := c.session.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.log.Debug().
		Str("method", d.method).
		Str("path", d.path).
		Int("attempt", d.attempt).
		Str("priority", string(d.priority)).
		Msg("Sending request")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, d, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, c.transportError(ctx, d, err)
	}

	if res.StatusCode == http.StatusUnauthorized {
		c.teardown(d)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return nil, &APIError{
			Method: d.method,
			Path:   d.path,
			Status: res.StatusCode,
			Header: res.Header,
			Body:   body,
		}
	}

	return &Response{Status: res.StatusCode, Header: res.Header, Body: body}, nil
}

// transportError separates caller cancellation from network failures. A
// per-attempt timeout only cancels attemptCtx, so the parent ctx is still
// live and the failure counts as a network error.
func (c *Client) transportError(ctx context.Context, d descriptor, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &canceledError{cause: ctxErr}
	}
	return &NetworkError{Method: d.method, Path: d.path, Attempt: d.attempt, Err: err}
}

// teardown clears the session and navigates to the login route. It bypasses
// the caller's error handling because a rejected token invalidates every
// other request too.
func (c *Client) teardown(d descriptor) {
	c.log.Warn().
		Str("method", d.method).
		Str("path", d.path).
		Msg("Session rejected, signing out")

	if err := c.session.Clear(); err != nil {
		c.log.Error().Err(err).Msg("Failed to clear session")
	}
	if c.navigator != nil {
		c.navigator.Navigate(LoginRoute)
	}
}

func encodeBody(body any) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case *Multipart:
		return b.encode()
	case []byte:
		return b, "", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", err
		}
		return data, "application/json", nil
	}
}

// IsNetworkError reports whether err is a transport-level failure.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
