// Package platform talks to the external commerce platform's GraphQL Admin
// API: staged uploads and file objects for media assets, and metaobjects for
// page documents.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// TokenProvider returns the bearer token for the next request.
type TokenProvider func(ctx context.Context) (string, error)

// StaticToken returns a TokenProvider that always yields token.
func StaticToken(token string) TokenProvider {
	return func(context.Context) (string, error) { return token, nil }
}

// RequestObserver receives one call per GraphQL operation, after retries.
type RequestObserver interface {
	ObserveRequest(operation, status string, elapsed time.Duration)
}

type noopRequestObserver struct{}

func (noopRequestObserver) ObserveRequest(string, string, time.Duration) {}

type ClientOptions struct {
	BaseURL       string
	APIVersion    string
	TokenProvider TokenProvider
	HTTPClient    *http.Client
	UserAgent     string
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	// RequestsPerSecond caps outgoing calls across the process; zero means
	// unlimited.
	RequestsPerSecond float64
	Burst             int
	Observer          RequestObserver
	Logger            *slog.Logger
}

// Client is constructed once at startup and shared by the resolver, the
// persistence gateway and the uploader.
type Client struct {
	endpoint      string
	tokenProvider TokenProvider
	httpClient    *http.Client
	userAgent     string
	maxRetries    int
	baseDelay     time.Duration
	maxDelay      time.Duration
	limiter       *rate.Limiter
	observer      RequestObserver
	logger        *slog.Logger
}

// NewClient builds a Client from opts, filling unset retry and rate limits
// with defaults.
func NewClient(opts ClientOptions) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "2024-10"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	limit := rate.Inf
	burst := opts.Burst
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
		if burst <= 0 {
			burst = int(opts.RequestsPerSecond)
		}
	}
	if burst <= 0 {
		burst = 1
	}
	observer := opts.Observer
	if observer == nil {
		observer = noopRequestObserver{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint:      baseURL + "/admin/api/" + apiVersion + "/graphql.json",
		tokenProvider: opts.TokenProvider,
		httpClient:    httpClient,
		userAgent:     strings.TrimSpace(opts.UserAgent),
		maxRetries:    maxRetries,
		baseDelay:     baseDelay,
		maxDelay:      maxDelay,
		limiter:       rate.NewLimiter(limit, burst),
		observer:      observer,
		logger:        logger,
	}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message    string         `json:"message"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e graphQLError) code() string {
	code, _ := e.Extensions["code"].(string)
	return code
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// UserError is a validation failure reported by a mutation.
type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
	Code    string   `json:"code"`
}

func userErrorsErr(op string, errs []UserError) error {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msg := e.Message
		if len(e.Field) > 0 {
			msg = strings.Join(e.Field, ".") + ": " + msg
		}
		if e.Code != "" {
			msg += " (" + e.Code + ")"
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("platform %s: %s", op, strings.Join(msgs, "; "))
}

// do runs one GraphQL operation and decodes its data into out. Transport
// errors, 429, 5xx and THROTTLED responses are retried with backoff.
func (c *Client) do(ctx context.Context, op, query string, vars map[string]any, out any) (err error) {
	if c == nil {
		return errors.New("platform client is nil")
	}
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		c.observer.ObserveRequest(op, status, time.Since(start))
	}()

	if c.tokenProvider == nil {
		return errors.New("platform token provider is required")
	}
	token, err := c.tokenProvider(ctx)
	if err != nil {
		return err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("platform token is empty")
	}
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return err
	}
	requestID := uuid.NewString()

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-Id", requestID)
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries && ctx.Err() == nil {
				c.logger.Debug("platform request failed, retrying", "operation", op, "attempt", attempt+1, "error", err)
				if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return fmt.Errorf("platform %s: %w", op, err)
		}
		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			if attempt < c.maxRetries {
				if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
					return waitErr
				}
				continue
			}
			return fmt.Errorf("platform %s failed: status=%d message=%s", op, resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("platform %s failed: status=%d message=%s", op, resp.StatusCode, strings.TrimSpace(string(respBody)))
		}

		var parsed graphQLResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return fmt.Errorf("platform %s: decode response: %w", op, err)
		}
		if len(parsed.Errors) > 0 {
			if parsed.Errors[0].code() == "THROTTLED" && attempt < c.maxRetries {
				if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			msgs := make([]string, 0, len(parsed.Errors))
			for _, e := range parsed.Errors {
				msgs = append(msgs, e.Message)
			}
			return fmt.Errorf("platform %s: %s", op, strings.Join(msgs, "; "))
		}
		if out == nil || len(parsed.Data) == 0 {
			return nil
		}
		if err := json.Unmarshal(parsed.Data, out); err != nil {
			return fmt.Errorf("platform %s: decode data: %w", op, err)
		}
		return nil
	}
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfterSeconds(retryAfterHeader); retryAfter > 0 {
		if retryAfter > c.maxDelay {
			return c.maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	if delay > c.maxDelay {
		return c.maxDelay
	}
	return delay
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
