// Package supabase provides a client for the hosted auth and REST APIs.
package supabase

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

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// ErrUnauthorized is returned when the backend rejects the caller's credentials.
var ErrUnauthorized = errors.New("unauthorized")

// Client is a Supabase API client using the project's anon key.
type Client struct {
	baseURL    string
	anonKey    string
	serviceKey string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
}

// Config represents Supabase client configuration.
type Config struct {
	URL     string
	AnonKey string
	// ServiceKey is the service role key. Servers set it to write records for
	// users whose access tokens may have expired by then.
	ServiceKey string
	Timeout    time.Duration
}

// APIError represents an error response from the auth or REST API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase API error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase API error %d: %s", e.Status, e.Message)
}

// errorBody covers both the auth ("error_description", "msg") and PostgREST ("message") shapes.
type errorBody struct {
	Error            string `json:"error"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Code             any    `json:"code"`
}

// New creates a new Supabase client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("supabase URL is required")
	}
	if cfg.AnonKey == "" {
		return nil, errors.New("supabase anon key is required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, errors.Wrap(err, "invalid supabase URL")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		anonKey:    cfg.AnonKey,
		serviceKey: cfg.ServiceKey,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: 3,
		retryDelay: 500 * time.Millisecond,
	}, nil
}

// request describes one API call.
type request struct {
	method  string
	path    string
	query   url.Values
	body    any
	bearer  string // overrides the anon key bearer
	headers map[string]string
}

// do sends req with the given HTTP client and decodes a JSON response into out when non-nil.
func (c *Client) do(ctx context.Context, hc *http.Client, req request, out any) error {
	var payload []byte
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request body")
		}
		payload = data
	}

	reqURL := c.baseURL + req.path
	if len(req.query) > 0 {
		reqURL += "?" + req.query.Encode()
	}

	send := func() error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}

		httpReq, err := http.NewRequestWithContext(ctx, req.method, reqURL, body)
		if err != nil {
			return errors.Wrap(err, "failed to create request")
		}
		httpReq.Header.Set("apikey", c.anonKey)
		httpReq.Header.Set("Accept", "application/json")
		if payload != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
		if req.bearer != "" {
			httpReq.Header.Set("Authorization", "Bearer "+req.bearer)
		}
		for k, v := range req.headers {
			httpReq.Header.Set(k, v)
		}

		resp, err := hc.Do(httpReq)
		if err != nil {
			return errors.Wrap(err, "failed to send request")
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.Wrap(err, "failed to read response body")
		}

		if resp.StatusCode >= 400 {
			return parseError(resp.StatusCode, data)
		}

		if out == nil || len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return errors.Wrap(err, "failed to parse response")
		}
		return nil
	}

	// Writes go out once: a write that timed out at a proxy may still have been applied.
	if req.method != http.MethodGet && req.method != http.MethodHead {
		return send()
	}
	return c.retry(send)
}

func parseError(status int, data []byte) error {
	apiErr := &APIError{Status: status, Message: http.StatusText(status)}

	var body errorBody
	if err := json.Unmarshal(data, &body); err == nil {
		switch {
		case body.ErrorDescription != "":
			apiErr.Message = body.ErrorDescription
		case body.Msg != "":
			apiErr.Message = body.Msg
		case body.Message != "":
			apiErr.Message = body.Message
		}
		switch {
		case body.ErrorCode != "":
			apiErr.Code = body.ErrorCode
		case body.Error != "":
			apiErr.Code = body.Error
		default:
			if code, ok := body.Code.(string); ok {
				apiErr.Code = code
			}
		}
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden || apiErr.Code == "invalid_grant" {
		return errors.Mark(apiErr, ErrUnauthorized)
	}
	return apiErr
}

// retry runs fn until it succeeds, fails permanently or runs out of attempts.
func (c *Client) retry(fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		zlog.Debug().Msgf("supabase: retrying request: attempt=%d err=%v", i+1, err)
		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelay * time.Duration(i+1))
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable reports whether the backend asked us to back off or failed on its side.
func isRetryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
}
