package usage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

// usageServer serves a fixed status and body on every path and records the last request headers.
func usageServer(t *testing.T, status int, body string) (*Client, *http.Header) {
	t.Helper()

	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		headers.Set("X-Test-Path", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	client := NewClient(WithBaseURL(srv.URL), WithClock(clockwork.NewFakeClockAt(testNow)))
	return client, &headers
}

const fullResponse = `{
  "five_hour": {"utilization": 42.5, "resets_at": "2026-10-18T14:30:00.123456+00:00"},
  "seven_day": {"utilization": 61, "resets_at": "2026-10-22T08:00:00Z"},
  "seven_day_sonnet": {"utilization": 12, "resets_at": null},
  "extra_usage": {"is_enabled": true, "utilization": 25, "used_credits": 1250, "monthly_limit": 5000}
}`

func TestFetchUsageMapsResponse(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-REDACTED")
	client, headers := usageServer(t, http.StatusOK, fullResponse)

	data := client.FetchUsage(context.Background(), "access-token")

	require.Equal(t, "/api/oauth/usage", headers.Get("X-Test-Path"))
	require.Equal(t, "Bearer access-token", headers.Get("Authorization"))
	require.Equal(t, "2023-06-01", headers.Get("Anthropic-Version"))
	require.Equal(t, "oauth-2025-04-20", headers.Get("Anthropic-Beta"))
	require.Empty(t, headers.Get("X-Api-Key"))

	require.Equal(t, StatusActive, data.Status)
	require.Equal(t, testNow, data.FetchedAt)

	require.InDelta(t, 0.425, data.Session.Utilization, 1e-9)
	require.NotNil(t, data.Session.ResetsAt)
	require.True(t, time.Date(2026, 10, 18, 14, 30, 0, 123456000, time.UTC).Equal(*data.Session.ResetsAt))

	require.InDelta(t, 0.61, data.Weekly.Utilization, 1e-9)
	require.True(t, time.Date(2026, 10, 22, 8, 0, 0, 0, time.UTC).Equal(*data.Weekly.ResetsAt))

	require.InDelta(t, 0.12, data.WeeklySonnet.Utilization, 1e-9)
	require.Nil(t, data.WeeklySonnet.ResetsAt)

	require.Equal(t, OverageData{IsEnabled: true, Utilization: 0.25, Spent: 12.5, Limit: 50}, data.Overage)
}

func TestFetchUsageClassification(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Status
	}{
		{
			name: "five hour exhausted",
			body: `{"five_hour":{"utilization":100},"seven_day":{"utilization":10}}`,
			want: StatusRateLimited,
		},
		{
			name: "seven day exhausted",
			body: `{"five_hour":{"utilization":3},"seven_day":{"utilization":112}}`,
			want: StatusRateLimited,
		},
		{
			name: "warning",
			body: `{"five_hour":{"utilization":85},"seven_day":{"utilization":10}}`,
			want: StatusWarning,
		},
		{
			name: "warning boundary",
			body: `{"five_hour":{"utilization":10},"seven_day":{"utilization":80}}`,
			want: StatusWarning,
		},
		{
			name: "active",
			body: `{"five_hour":{"utilization":50},"seven_day":{"utilization":79}}`,
			want: StatusActive,
		},
		{
			name: "sonnet is not classified",
			body: `{"five_hour":{"utilization":0},"seven_day":{"utilization":0},"seven_day_sonnet":{"utilization":100}}`,
			want: StatusActive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := usageServer(t, http.StatusOK, tt.body)
			require.Equal(t, tt.want, client.FetchUsage(context.Background(), "token").Status)
		})
	}
}

func TestFetchUsageKeepsUnclampedUtilization(t *testing.T) {
	client, _ := usageServer(t, http.StatusOK, `{"five_hour":{"utilization":130},"seven_day":{"utilization":0}}`)

	data := client.FetchUsage(context.Background(), "token")
	require.InDelta(t, 1.3, data.Session.Utilization, 1e-9)
	require.Equal(t, 1.0, data.Session.DisplayFraction())
}

func TestFetchUsageOverageDisabled(t *testing.T) {
	client, _ := usageServer(t, http.StatusOK, `{
		"five_hour": {"utilization": 1},
		"seven_day": {"utilization": 1},
		"extra_usage": {"is_enabled": false, "utilization": 0, "used_credits": null, "monthly_limit": null}
	}`)

	data := client.FetchUsage(context.Background(), "token")
	require.False(t, data.Overage.IsEnabled)
	require.Zero(t, data.Overage.Spent)
	require.Zero(t, data.Overage.Limit)
}

func TestFetchUsageFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   Status
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"type":"error","error":{"type":"authentication_error","message":"invalid token"}}`, want: StatusUnauthorized},
		{name: "server error", status: http.StatusInternalServerError, body: `{"type":"error","error":{"type":"api_error","message":"boom"}}`, want: StatusError},
		{name: "forbidden", status: http.StatusForbidden, body: `{}`, want: StatusError},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{}`, want: StatusError},
		{name: "non-200 success", status: http.StatusAccepted, body: `{"five_hour":{"utilization":1}}`, want: StatusError},
		{name: "undecodable body", status: http.StatusOK, body: `<html>`, want: StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := usageServer(t, tt.status, tt.body)

			data := client.FetchUsage(context.Background(), "token")
			require.Equal(t, FailureSnapshot(tt.want, testNow), data)
		})
	}
}

func TestFetchUsageNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithClock(clockwork.NewFakeClockAt(testNow)))
	require.Equal(t, FailureSnapshot(StatusError, testNow), client.FetchUsage(context.Background(), "token"))
}

func TestFetchProfile(t *testing.T) {
	client, headers := usageServer(t, http.StatusOK, `{
		"account": {"email": "ada@example.com", "full_name": "Ada Lovelace", "display_name": ""},
		"organization": {"name": "Analytical Engines", "organization_type": "claude_max"}
	}`)

	info, err := client.FetchProfile(context.Background(), "access-token")
	require.NoError(t, err)
	require.Equal(t, "/api/oauth/profile", headers.Get("X-Test-Path"))
	require.Equal(t, "ada@example.com", info.Email)
	require.Equal(t, "Ada Lovelace", info.DisplayName)
	require.Equal(t, "Analytical Engines", info.OrganizationName)
	require.Equal(t, "claude_max", info.OrganizationType)
	require.Equal(t, testNow, info.FetchedAt)
}

func TestFetchProfileFailure(t *testing.T) {
	client, _ := usageServer(t, http.StatusUnauthorized, `{}`)

	_, err := client.FetchProfile(context.Background(), "access-token")
	require.Error(t, err)
}
