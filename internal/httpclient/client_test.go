package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/gorilla/mux"

	"expensetracker/internal/apierr"
)

type refreshingTokens struct {
	current   string
	next      string
	refreshes int
	fail      bool
}

func (r *refreshingTokens) Token(context.Context) (string, error) { return r.current, nil }

func (r *refreshingTokens) Refresh(context.Context) (string, error) {
	r.refreshes++
	if r.fail {
		return "", errors.New("refresh denied")
	}
	r.current = r.next
	return r.current, nil
}

func newTestClient(t *testing.T, router *mux.Router, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestClient_DoDecodesAndSendsHeaders(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/api/accounts/{id}", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		if r.Header.Get(RequestIDHeader) == "" {
			t.Error("missing request id")
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"id": mux.Vars(r)["id"], "name": body["name"]})
	}).Methods(http.MethodPut)

	c := newTestClient(t, router, WithTokenSource(StaticToken("tok")))

	var out struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	err := c.Do(context.Background(), http.MethodPut, "/api/accounts/a1", map[string]string{"name": "Wallet"}, nil, &out)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if out.ID != "a1" || out.Name != "Wallet" {
		t.Fatalf("unexpected response %+v", out)
	}
}

func TestClient_DoQueryParams(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("year") != "2024" || q.Get("month") != "3" || q.Get("accountId") != "acc1" {
			t.Errorf("unexpected query %v", q)
		}
		w.Write([]byte(`[]`))
	}).Methods(http.MethodGet)

	c := newTestClient(t, router)
	params := url.Values{"year": {"2024"}, "month": {"3"}, "accountId": {"acc1"}}
	var out []any
	if err := c.Do(context.Background(), http.MethodGet, "/api/transactions", nil, params, &out); err != nil {
		t.Fatalf("Do: %v", err)
	}
}

func TestClient_DoMapsProblemDetails(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/api/categories", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"title":"Bad","status":400,"traceId":"tr-1","errors":{"Name":["Name is required"],"Order":["Order is invalid"]}}`))
	}).Methods(http.MethodPost)

	c := newTestClient(t, router)
	err := c.Do(context.Background(), http.MethodPost, "/api/categories", map[string]string{}, nil, nil)

	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *apierr.Error, got %T", err)
	}
	if apiErr.Kind != apierr.KindValidation || apiErr.Status != http.StatusBadRequest {
		t.Fatalf("kind=%v status=%d", apiErr.Kind, apiErr.Status)
	}
	if apiErr.TraceID() != "tr-1" {
		t.Fatalf("trace id = %q", apiErr.TraceID())
	}
	msgs := apierr.Messages(err)
	if len(msgs) != 2 || msgs[0] != "Name is required" || msgs[1] != "Order is invalid" {
		t.Fatalf("messages = %q", msgs)
	}
}

func TestClient_DoNoContent(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/api/accounts/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)

	c := newTestClient(t, router)
	var out map[string]any
	if err := c.Do(context.Background(), http.MethodDelete, "/api/accounts/a1", nil, nil, &out); err != nil {
		t.Fatalf("Do: %v", err)
	}
}

func TestClient_RefreshesOnceAfter401(t *testing.T) {
	var calls int32
	router := mux.NewRouter()
	router.HandleFunc("/api/accounts", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`[]`))
	})

	tokens := &refreshingTokens{current: "stale", next: "fresh"}
	c := newTestClient(t, router, WithTokenSource(tokens))

	if err := c.Do(context.Background(), http.MethodGet, "/api/accounts", nil, nil, nil); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if tokens.refreshes != 1 || atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("refreshes=%d calls=%d", tokens.refreshes, calls)
	}
}

func TestClient_401Handling(t *testing.T) {
	tests := []struct {
		name          string
		path          string
		failRefresh   bool
		wantRefreshes int
		wantCalls     int32
	}{
		{name: "refresh fails", path: "/api/accounts", failRefresh: true, wantRefreshes: 1, wantCalls: 1},
		{name: "retry still unauthorized", path: "/api/accounts", wantRefreshes: 1, wantCalls: 2},
		{name: "login path is not retried", path: "/api/auth/login", wantRefreshes: 0, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			router := mux.NewRouter()
			router.PathPrefix("/api/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(http.StatusUnauthorized)
			})

			tokens := &refreshingTokens{current: "stale", next: "still-bad", fail: tt.failRefresh}
			c := newTestClient(t, router, WithTokenSource(tokens))

			err := c.Do(context.Background(), http.MethodGet, tt.path, nil, nil, nil)
			if !apierr.Is(err, apierr.KindAuth) {
				t.Fatalf("expected auth error, got %v", err)
			}
			if tokens.refreshes != tt.wantRefreshes || atomic.LoadInt32(&calls) != tt.wantCalls {
				t.Fatalf("refreshes=%d calls=%d", tokens.refreshes, calls)
			}
		})
	}
}

func TestClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := New(base)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = c.Do(context.Background(), http.MethodGet, "/api/accounts", nil, nil, nil)
	if !apierr.Is(err, apierr.KindTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if msgs := apierr.Messages(err); len(msgs) != 1 || msgs[0] != apierr.DefaultMessage {
		t.Fatalf("messages = %q", msgs)
	}
}

func TestNew_RejectsRelativeURL(t *testing.T) {
	if _, err := New("/api"); err == nil {
		t.Fatal("expected error for relative base url")
	}
}

func TestClient_RequestIDFromContextAndMetrics(t *testing.T) {
	var ids []string
	router := mux.NewRouter()
	router.HandleFunc("/api/accounts", func(w http.ResponseWriter, r *http.Request) {
		ids = append(ids, r.Header.Get(RequestIDHeader))
		w.Write([]byte(`[]`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/api/categories", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}).Methods(http.MethodGet)

	c := newTestClient(t, router)
	ctx := WithRequestID(context.Background(), "req-fixed")
	if err := c.Do(ctx, http.MethodGet, "/api/accounts", nil, nil, nil); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if err := c.Do(context.Background(), http.MethodGet, "/api/accounts", nil, nil, nil); err != nil {
		t.Fatalf("Do: %v", err)
	}
	_ = c.Do(context.Background(), http.MethodGet, "/api/categories", nil, nil, nil)

	if len(ids) != 2 || ids[0] != "req-fixed" || ids[1] == "" || ids[1] == "req-fixed" {
		t.Fatalf("request ids = %q", ids)
	}
	if RequestID(ctx) != "req-fixed" || RequestID(context.Background()) != "" {
		t.Error("RequestID did not round trip")
	}

	m := c.Metrics()
	if m.TotalRequests != 3 || m.FailedRequests != 1 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestClient_ErrorCarriesRequestID(t *testing.T) {
	var seen []string
	router := mux.NewRouter()
	router.HandleFunc("/api/accounts", func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get(RequestIDHeader))
		w.WriteHeader(http.StatusUnauthorized)
	}).Methods(http.MethodGet)

	tokens := &refreshingTokens{current: "old", next: "new"}
	c := newTestClient(t, router, WithTokenSource(tokens))

	err := c.Do(context.Background(), http.MethodGet, "/api/accounts", nil, nil, nil)
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *apierr.Error, got %v", err)
	}
	if len(seen) != 2 || seen[0] != seen[1] {
		t.Fatalf("retry should reuse the request id, got %q", seen)
	}
	if apiErr.RequestID != seen[0] {
		t.Errorf("RequestID = %q, want %q", apiErr.RequestID, seen[0])
	}
}
