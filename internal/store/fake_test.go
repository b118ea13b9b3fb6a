package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"expensetracker/internal/apierr"
	"expensetracker/internal/model"
)

type recordedCall struct {
	Method string
	Path   string
	Body   any
	Params url.Values
}

type response struct {
	body   any
	status int
	raw    string
}

// fakeAPI answers requests from a table keyed by "METHOD path".
type fakeAPI struct {
	mu        sync.Mutex
	responses map[string]response
	calls     []recordedCall
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{responses: make(map[string]response)}
}

func (f *fakeAPI) on(method, path string, body any) *fakeAPI {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[method+" "+path] = response{body: body, status: 200}
	return f
}

func (f *fakeAPI) fail(method, path string, status int, problem string) *fakeAPI {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[method+" "+path] = response{status: status, raw: problem}
	return f
}

func (f *fakeAPI) Do(ctx context.Context, method, path string, body any, params url.Values, out any) error {
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{Method: method, Path: path, Body: body, Params: params})
	resp, ok := f.responses[method+" "+path]
	f.mu.Unlock()

	if !ok {
		return apierr.FromResponse(method, path, 404, nil)
	}
	if resp.status >= 400 {
		return apierr.FromResponse(method, path, resp.status, []byte(resp.raw))
	}
	if out == nil || resp.body == nil {
		return nil
	}
	b, err := json.Marshal(resp.body)
	if err != nil {
		return fmt.Errorf("fake marshal: %w", err)
	}
	return json.Unmarshal(b, out)
}

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAPI) lastCall() recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func account(id string, isDefault, isActive bool) model.Account {
	return model.Account{ID: id, Name: "Account " + id, IsDefault: isDefault, IsActive: isActive}
}

func transaction(id, accountID string, date time.Time, amount string) model.Transaction {
	return model.Transaction{
		ID:              id,
		Amount:          model.MustMoney(amount),
		Category:        model.CategoryRef{ID: "c1", Value: "Food"},
		TransactionDate: date,
		AccountID:       accountID,
	}
}

func ids[T model.Entity](items []T) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.EntityID()
	}
	return out
}

func equalIDs(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

type requesterFunc func() error

func (f requesterFunc) Do(context.Context, string, string, any, url.Values, any) error { return f() }

// heldAPI blocks requests whose accountId parameter has a gate until the
// gate is released. Requests without a gate pass through.
type heldAPI struct {
	*fakeAPI
	gmu   sync.Mutex
	gates map[string]*gate
}

type gate struct {
	arrived chan struct{}
	release chan struct{}
}

func newHeldAPI(f *fakeAPI) *heldAPI {
	return &heldAPI{fakeAPI: f, gates: make(map[string]*gate)}
}

func (h *heldAPI) hold(accountID string) *gate {
	g := &gate{arrived: make(chan struct{}), release: make(chan struct{})}
	h.gmu.Lock()
	h.gates[accountID] = g
	h.gmu.Unlock()
	return g
}

func (h *heldAPI) Do(ctx context.Context, method, path string, body any, params url.Values, out any) error {
	key := params.Get("accountId")
	h.gmu.Lock()
	g, ok := h.gates[key]
	delete(h.gates, key)
	h.gmu.Unlock()
	if ok {
		close(g.arrived)
		<-g.release
	}
	return h.fakeAPI.Do(ctx, method, path, body, params, out)
}
