package ship24

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type countingLimiter struct{ calls int }

func (l *countingLimiter) Wait(ctx context.Context) error {
	l.calls++
	return nil
}

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *countingLimiter) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	l := &countingLimiter{}
	return New(srv.URL+"/", "secret", l), l
}

func TestClient_Fetch_OK(t *testing.T) {
	c, l := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/trackers/track", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		b, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var got map[string]any
		require.NoError(t, json.Unmarshal(b, &got))
		require.Equal(t, "RR123", got["trackingNumber"])
		require.Equal(t, map[string]any{"restrictTrackingToCourierCode": false}, got["settings"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"trackings":[]}}`))
	})

	body, err := c.Fetch(context.Background(), "RR123")
	require.NoError(t, err)
	require.JSONEq(t, `{"data":{"trackings":[]}}`, string(body))
	require.Equal(t, 1, l.calls)
}

func TestClient_Fetch_RateLimitedHeaders(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("RateLimit-Reset", "30")
		w.Header().Set("RateLimit-Remaining", "2")
		w.Header().Set("RateLimit-Limit", "10")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Fetch(context.Background(), "N")
	var rl *RateLimitedError
	require.ErrorAs(t, err, &rl)
	require.Equal(t, 30, rl.Reset)
	require.Equal(t, 2, rl.Remaining)
	require.Equal(t, 10, rl.Limit)
	require.Contains(t, err.Error(), "30s")
	require.Contains(t, err.Error(), "2/10")
}

func TestClient_Fetch_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New(url, "k", &countingLimiter{})
	_, err := c.Fetch(context.Background(), "N")
	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
	require.Contains(t, err.Error(), "Network error")
}

func TestClient_Fetch_LimiterCanceled(t *testing.T) {
	c := New("http://127.0.0.1:0", "k", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// отменённый контекст отдаём как NetworkError
	_, err := c.Fetch(ctx, "N")
	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
}

func TestClassify(t *testing.T) {
	h := http.Header{}
	cases := []struct {
		name   string
		status int
		header http.Header
		body   string
		check  func(t *testing.T, err error)
	}{
		{"ok", 200, h, "", func(t *testing.T, err error) { require.NoError(t, err) }},
		{"created", 201, h, "", func(t *testing.T, err error) { require.NoError(t, err) }},
		{"429 defaults", 429, h, "", func(t *testing.T, err error) {
			var rl *RateLimitedError
			require.ErrorAs(t, err, &rl)
			require.Equal(t, RateLimitedError{Reset: 60, Remaining: 0, Limit: 10}, *rl)
		}},
		{"429 retry-after fallback", 429, http.Header{"Retry-After": []string{"12"}}, "", func(t *testing.T, err error) {
			var rl *RateLimitedError
			require.ErrorAs(t, err, &rl)
			require.Equal(t, 12, rl.Reset)
		}},
		{"404 parcel_not_found", 404, h, `{"errors":[{"code":"parcel_not_found"}]}`, func(t *testing.T, err error) {
			require.ErrorIs(t, err, ErrNoTrackingData)
		}},
		{"404 tracker_not_found", 404, h, `{"errors":[{"code":"tracker_not_found"}]}`, func(t *testing.T, err error) {
			var inv *InvalidTrackingNumberError
			require.ErrorAs(t, err, &inv)
			require.Equal(t, "tracker_not_found", inv.Code)
			require.Equal(t, "N", inv.Number)
		}},
		{"404 other code", 404, h, `{"errors":[{"code":"weird"}]}`, func(t *testing.T, err error) {
			var inv *InvalidTrackingNumberError
			require.ErrorAs(t, err, &inv)
		}},
		{"404 garbage", 404, h, `<html>`, func(t *testing.T, err error) {
			var inv *InvalidTrackingNumberError
			require.ErrorAs(t, err, &inv)
			require.Equal(t, "Invalid tracking number", err.Error())
		}},
		{"400 with message", 400, h, `{"errors":[{"code":"bad_input","message":"trackingNumber is too short"}]}`, func(t *testing.T, err error) {
			var ae *APIErrorResponse
			require.ErrorAs(t, err, &ae)
			require.Equal(t, "trackingNumber is too short", err.Error())
			require.Equal(t, "bad_input", ae.Code)
		}},
		{"401 code only", 401, h, `{"errors":[{"code":"invalid_api_key"}]}`, func(t *testing.T, err error) {
			require.Equal(t, "invalid_api_key", err.Error())
		}},
		{"403 unparsable", 403, h, `nope`, func(t *testing.T, err error) {
			require.Equal(t, "API error: 403", err.Error())
		}},
		{"409 empty errors", 409, h, `{"errors":[]}`, func(t *testing.T, err error) {
			require.Equal(t, "API error: 409", err.Error())
		}},
		{"503", 503, h, "", func(t *testing.T, err error) {
			var se *ServerError
			require.ErrorAs(t, err, &se)
			require.Equal(t, "Server error: 503", err.Error())
		}},
		{"418", 418, h, "", func(t *testing.T, err error) {
			require.Equal(t, "Unexpected status code: 418", err.Error())
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.check(t, classify("N", tc.status, tc.header, []byte(tc.body)))
		})
	}
}

func TestOutcomeOf(t *testing.T) {
	require.Equal(t, "not_found", outcomeOf(ErrNoTrackingData))
	require.Equal(t, "rate_limited", outcomeOf(&RateLimitedError{}))
	require.Equal(t, "invalid", outcomeOf(&InvalidTrackingNumberError{}))
	require.Equal(t, "server_error", outcomeOf(&ServerError{StatusCode: 500}))
	require.Equal(t, "api_error", outcomeOf(errors.New("x")))
}
