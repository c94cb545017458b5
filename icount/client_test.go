package icount

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

type fakeAPI struct {
	logins     atomic.Int32
	calls      atomic.Int32
	currentSid string
	rejectSid  string

	server *httptest.Server
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{currentSid: "sid-1"}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		api.logins.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": true, "sid": api.currentSid})
	})
	mux.HandleFunc("/doc/create", func(w http.ResponseWriter, r *http.Request) {
		api.calls.Add(1)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		sid, _ := body["sid"].(string)
		if sid == "" || sid == api.rejectSid {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": true, "docnum": 42})
	})
	api.server = httptest.NewServer(mux)
	t.Cleanup(api.server.Close)
	return api
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	t.Setenv("ICOUNT_API_BASE_URL", api.server.URL)
	t.Setenv("ICOUNT_RATE_LIMIT_PER_MIN", "1000")
	c, err := NewClient("company-1", "backoffice", "secret", nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestSessionIsCachedAcrossCalls(t *testing.T) {
	api := newFakeAPI(t)
	c := newTestClient(t, api)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.Do(ctx, "doc/create", map[string]any{"doctype": "invoice"}); err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
	}

	if got := api.logins.Load(); got != 1 {
		t.Fatalf("expected exactly 1 login, got %d", got)
	}
	if got := api.calls.Load(); got != 3 {
		t.Fatalf("expected 3 api calls, got %d", got)
	}
}

// An auth rejection clears the cached session and retries once with a
// fresh login.
func TestAuthRejectionRetriesOnce(t *testing.T) {
	api := newFakeAPI(t)
	c := newTestClient(t, api)
	ctx := context.Background()

	// Prime the session, then invalidate it server-side.
	if _, err := c.Do(ctx, "doc/create", nil); err != nil {
		t.Fatalf("prime: %v", err)
	}
	api.rejectSid = "sid-1"
	api.currentSid = "sid-2"

	if _, err := c.Do(ctx, "doc/create", nil); err != nil {
		t.Fatalf("retry after rejection should succeed: %v", err)
	}
	if got := api.logins.Load(); got != 2 {
		t.Fatalf("expected re-login after rejection, got %d logins", got)
	}
}

// If the fresh session is rejected too, the failure propagates; no loop.
func TestSecondAuthRejectionPropagates(t *testing.T) {
	api := newFakeAPI(t)
	c := newTestClient(t, api)
	ctx := context.Background()

	api.rejectSid = "sid-1" // the only sid the API ever hands out

	_, err := c.Do(ctx, "doc/create", nil)
	if !errors.Is(err, ErrAuthRejected) {
		t.Fatalf("expected ErrAuthRejected, got %v", err)
	}
	if got := api.calls.Load(); got != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", got)
	}
}

func TestNewClientRequiresIdentity(t *testing.T) {
	if _, err := NewClient("", "user", "pass", nil); err == nil {
		t.Fatal("empty company id should be rejected")
	}
	if _, err := NewClient("cid", "", "pass", nil); err == nil {
		t.Fatal("empty username should be rejected")
	}
}
