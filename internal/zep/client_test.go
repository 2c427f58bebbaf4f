package zep

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kimshangyup/neulbom/internal/config"
	"github.com/kimshangyup/neulbom/pkg/errors"
)

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *[]time.Duration) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(config.ZEPConfig{
		BaseURL:    server.URL,
		APIKey:     "test-key",
		Timeout:    5 * time.Second,
		MaxRetries: 3,
		RetryDelay: 2 * time.Second,
	})

	sleeps := &[]time.Duration{}
	client.sleep = func(_ context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return client, sleeps
}

func TestCreateSpace(t *testing.T) {
	var gotAuth string
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.Method != http.MethodPost || r.URL.Path != "/spaces" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"space_id":"sp-1","url":"https://zep.us/sp-1"}`))
	})

	space, err := client.CreateSpace(context.Background(), CreateSpaceRequest{Name: "x_portfolio_2026", OwnerEmail: "a@b"})
	if err != nil {
		t.Fatalf("CreateSpace returned error: %v", err)
	}
	if space.SpaceID != "sp-1" || space.URL != "https://zep.us/sp-1" {
		t.Errorf("unexpected space: %+v", space)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestCreateSpaceRejectsIncompleteResponse(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"space_id":"sp-1"}`))
	})

	_, err := client.CreateSpace(context.Background(), CreateSpaceRequest{Name: "x", OwnerEmail: "a@b"})
	if err == nil {
		t.Fatal("expected error for response missing url")
	}
}

func TestRateLimitBackoffThenSuccess(t *testing.T) {
	var calls int
	client, sleeps := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"space_id":"sp-1","url":"https://zep.us/sp-1"}`))
	})

	_, err := client.CreateSpace(context.Background(), CreateSpaceRequest{Name: "x", OwnerEmail: "a@b"})
	if err != nil {
		t.Fatalf("CreateSpace returned error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	// Linear backoff: base delay, then double for the second retry.
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", *sleeps, want)
	}
	for i := range want {
		if (*sleeps)[i] != want[i] {
			t.Errorf("sleep %d = %v, want %v", i, (*sleeps)[i], want[i])
		}
	}
}

func TestRateLimitExhaustion(t *testing.T) {
	var calls int
	client, sleeps := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.CreateSpace(context.Background(), CreateSpaceRequest{Name: "x", OwnerEmail: "a@b"})
	if !stderrors.Is(err, errors.ErrRateLimitExceeded) {
		t.Fatalf("err = %v, want ErrRateLimitExceeded", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want initial attempt plus 3 retries", calls)
	}
	if len(*sleeps) != 3 {
		t.Errorf("sleeps = %d, want 3", len(*sleeps))
	}
}

func TestServerErrorExhaustionReturnsAPIError(t *testing.T) {
	client, sleeps := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	})

	_, err := client.CreateSpace(context.Background(), CreateSpaceRequest{Name: "x", OwnerEmail: "a@b"})
	var apiErr errors.APIError
	if !stderrors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.Status != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", apiErr.Status)
	}
	if len(*sleeps) != 3 {
		t.Errorf("sleeps = %d, want 3", len(*sleeps))
	}
}

func TestClientErrorDoesNotRetry(t *testing.T) {
	var calls int
	client, sleeps := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad name"}`))
	})

	_, err := client.CreateSpace(context.Background(), CreateSpaceRequest{Name: "x", OwnerEmail: "a@b"})
	var apiErr errors.APIError
	if !stderrors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if calls != 1 || len(*sleeps) != 0 {
		t.Errorf("calls = %d, sleeps = %d; 4xx must not retry", calls, len(*sleeps))
	}
}

func TestNetworkFailureFlatRetry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	// Closed immediately: every request fails at the dial.
	server.Close()

	client := NewClient(config.ZEPConfig{
		BaseURL:    server.URL,
		APIKey:     "test-key",
		Timeout:    time.Second,
		MaxRetries: 3,
		RetryDelay: 2 * time.Second,
	})
	var sleeps []time.Duration
	client.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	_, err := client.CreateSpace(context.Background(), CreateSpaceRequest{Name: "x", OwnerEmail: "a@b"})
	var reqErr errors.RequestFailedError
	if !stderrors.As(err, &reqErr) {
		t.Fatalf("err = %v, want RequestFailedError", err)
	}
	// Flat delay for network errors, no escalation.
	want := []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second}
	if len(sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", sleeps, want)
	}
	for i := range want {
		if sleeps[i] != want[i] {
			t.Errorf("sleep %d = %v, want %v", i, sleeps[i], want[i])
		}
	}
}

func TestSetPermissions(t *testing.T) {
	var gotPath string
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		w.Write([]byte(`{}`))
	})

	err := client.SetPermissions(context.Background(), "sp-1", "owner@x", []string{"staff@x"})
	if err != nil {
		t.Fatalf("SetPermissions returned error: %v", err)
	}
	if gotPath != "PUT /spaces/sp-1/permissions" {
		t.Errorf("request = %q", gotPath)
	}
}
