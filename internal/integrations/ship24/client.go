// Package ship24 talks to the Ship24 tracking API and turns its responses into
// models.TrackingInfo.
package ship24

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/TrackBatch/internal/metrics"
	"github.com/BearBump/TrackBatch/internal/models"
	"github.com/BearBump/TrackBatch/internal/ratelimit"
	"github.com/pkg/errors"
)

const (
	DefaultBaseURL     = "https://api.ship24.com/public/v1"
	TrackingPageURL    = "https://www.ship24.com/tracking?p="
	defaultHTTPTimeout = 30 * time.Second
)

type RateLimiter interface {
	Wait(ctx context.Context) error
}

type Client struct {
	baseURL string
	apiKey  string
	limiter RateLimiter
	httpc   *http.Client
}

// New builds a client. A nil limiter gets a private limiter at the default rate;
// share one limiter between clients to pace them together.
func New(baseURL, apiKey string, limiter RateLimiter) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.DefaultRequestsPerSecond)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		limiter: limiter,
		httpc: &http.Client{
			Timeout: defaultHTTPTimeout,
		},
	}
}

func (c *Client) WithTimeout(d time.Duration) *Client {
	if d > 0 {
		c.httpc.Timeout = d
	}
	return c
}

type trackRequest struct {
	TrackingNumber string        `json:"trackingNumber"`
	Settings       trackSettings `json:"settings"`
}

type trackSettings struct {
	RestrictTrackingToCourierCode bool `json:"restrictTrackingToCourierCode"`
}

type errorEnvelope struct {
	Errors []models.APIError `json:"errors"`
}

// Fetch creates (or looks up) the tracker for trackingNumber and returns the raw
// success body. Failures come back as one of the typed errors in errors.go.
func (c *Client) Fetch(ctx context.Context, trackingNumber string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &NetworkError{Err: err}
	}

	payload, err := json.Marshal(trackRequest{TrackingNumber: trackingNumber})
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/trackers/track", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpc.Do(req)
	metrics.RequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RequestsTotal.WithLabelValues(metrics.OutcomeNetwork).Inc()
		return nil, &NetworkError{Err: errors.Wrap(err, "do request")}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues(metrics.OutcomeNetwork).Inc()
		return nil, &NetworkError{Err: errors.Wrap(err, "read body")}
	}

	if err := classify(trackingNumber, resp.StatusCode, resp.Header, body); err != nil {
		metrics.RequestsTotal.WithLabelValues(outcomeOf(err)).Inc()
		slog.Warn("ship24 request failed", "tracking_number", trackingNumber, "status", resp.StatusCode, "error", err.Error())
		return nil, err
	}
	metrics.RequestsTotal.WithLabelValues(metrics.OutcomeOK).Inc()
	slog.Debug("ship24 request ok", "tracking_number", trackingNumber, "status", resp.StatusCode, "bytes", len(body))
	return body, nil
}

// classify maps a non-success HTTP response onto the error taxonomy.
func classify(trackingNumber string, status int, h http.Header, body []byte) error {
	switch status {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusTooManyRequests:
		reset := headerInt(h, DefaultRateLimitReset, "RateLimit-Reset", "Retry-After")
		return &RateLimitedError{
			Reset:     reset,
			Remaining: headerInt(h, DefaultRateLimitRemaining, "RateLimit-Remaining"),
			Limit:     headerInt(h, DefaultRateLimitLimit, "RateLimit-Limit"),
		}
	case http.StatusNotFound:
		code, _, ok := firstError(body)
		if ok && code == "parcel_not_found" {
			return ErrNoTrackingData
		}
		return &InvalidTrackingNumberError{Number: trackingNumber, Code: code}
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusConflict:
		code, msg, ok := firstError(body)
		if !ok {
			return &APIErrorResponse{StatusCode: status, Message: fmt.Sprintf("API error: %d", status)}
		}
		if msg == "" {
			msg = code
		}
		return &APIErrorResponse{StatusCode: status, Code: code, Message: msg}
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return &ServerError{StatusCode: status}
	default:
		return &APIErrorResponse{StatusCode: status, Message: fmt.Sprintf("Unexpected status code: %d", status)}
	}
}

// firstError returns code and message of the first entry of an error envelope.
func firstError(body []byte) (code, message string, ok bool) {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || len(env.Errors) == 0 {
		return "", "", false
	}
	e := env.Errors[0]
	if e.Message != nil {
		message = *e.Message
	}
	return e.Code, message, true
}

func headerInt(h http.Header, def int, names ...string) int {
	for _, name := range names {
		v := strings.TrimSpace(h.Get(name))
		if v == "" {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func outcomeOf(err error) string {
	var (
		rl  *RateLimitedError
		inv *InvalidTrackingNumberError
		srv *ServerError
	)
	switch {
	case errors.Is(err, ErrNoTrackingData):
		return metrics.OutcomeNotFound
	case errors.As(err, &rl):
		return metrics.OutcomeRateLimited
	case errors.As(err, &inv):
		return metrics.OutcomeInvalid
	case errors.As(err, &srv):
		return metrics.OutcomeServerError
	default:
		return metrics.OutcomeAPIError
	}
}
