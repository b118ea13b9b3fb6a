// Package window keeps the dashboard's view of transactions: the subset of
// transactions that fall in a date window and, optionally, one account.
package window

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"time"

	"expensetracker/internal/log"
	"expensetracker/internal/model"
)

// State is an immutable snapshot of the window.
type State struct {
	WindowStart time.Time
	WindowEnd   time.Time
	// AccountID scopes the window to one account; empty means all accounts.
	AccountID   string
	Items       []model.Transaction
	Initialized bool
}

// Matches reports whether t belongs in the window. Both bounds are inclusive.
func (s State) Matches(t model.Transaction) bool {
	if t.TransactionDate.Before(s.WindowStart) || t.TransactionDate.After(s.WindowEnd) {
		return false
	}
	return s.AccountID == "" || t.AccountID == s.AccountID
}

// CoveredBy reports whether a transaction load made with query q returned
// every transaction the window can hold. Absent parameters do not narrow
// the load.
func (s State) CoveredBy(q url.Values) bool {
	if y := q.Get("year"); y != "" {
		if y != strconv.Itoa(s.WindowStart.Year()) || y != strconv.Itoa(s.WindowEnd.Year()) {
			return false
		}
	}
	if m := q.Get("month"); m != "" {
		if m != strconv.Itoa(int(s.WindowStart.Month())) || m != strconv.Itoa(int(s.WindowEnd.Month())) {
			return false
		}
	}
	if a := q.Get("accountId"); a != "" && a != s.AccountID {
		return false
	}
	return true
}

// Listener observes window transitions.
type Listener func(ctx context.Context, s State)

// Window is the dashboard window store.
type Window struct {
	mu        sync.Mutex
	state     State
	listeners []Listener
	now       func() time.Time
	logger    *log.Logger
}

// Option configures a Window.
type Option func(*Window)

// WithClock sets the time source used to compute the default month.
func WithClock(now func() time.Time) Option {
	return func(w *Window) { w.now = now }
}

func New(logger *log.Logger, opts ...Option) *Window {
	if logger == nil {
		logger = log.Discard()
	}
	w := &Window{
		now:    time.Now,
		logger: logger.WithComponent(log.ComponentWindow),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.state = w.initial()
	return w
}

// MonthBounds returns the first and last instant of the month containing t,
// in t's location.
func MonthBounds(t time.Time) (start, end time.Time) {
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	end = start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return start, end
}

// Now returns the window's clock reading.
func (w *Window) Now() time.Time { return w.now() }

func (w *Window) Snapshot() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Subscribe registers fn for every later transition.
func (w *Window) Subscribe(fn Listener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// SetWindow replaces the bounds and account scope and drops all items until
// the next Seed.
func (w *Window) SetWindow(ctx context.Context, start, end time.Time, accountID string) {
	w.commit(ctx, func(s *State) {
		*s = State{WindowStart: start, WindowEnd: end, AccountID: accountID}
	})
	w.logger.DebugContext(ctx, "Window set",
		"start", start.Format(time.DateOnly), "end", end.Format(time.DateOnly), log.FieldAccountID, accountID)
}

// Seed replaces the items with the matching subset of txs.
func (w *Window) Seed(ctx context.Context, txs []model.Transaction) {
	w.commit(ctx, func(s *State) { seed(s, txs) })
}

// SeedLoad seeds the window with the result of a transaction load made with
// query q. It does nothing and returns false when the window is already
// initialized or q does not cover it.
func (w *Window) SeedLoad(ctx context.Context, q url.Values, txs []model.Transaction) bool {
	return w.commitIf(ctx,
		func(s State) bool { return !s.Initialized && s.CoveredBy(q) },
		func(s *State) { seed(s, txs) })
}

func seed(s *State, txs []model.Transaction) {
	items := make([]model.Transaction, 0, len(txs))
	for _, t := range txs {
		if s.Matches(t) {
			items = append(items, t)
		}
	}
	s.Items = items
	s.Initialized = true
}

// Upsert inserts or replaces t when it matches; otherwise removes any
// previous version of t, which may have moved out of the window.
func (w *Window) Upsert(ctx context.Context, t model.Transaction) {
	w.commit(ctx, func(s *State) {
		if !s.Matches(t) {
			s.Items = without(s.Items, t.ID)
			return
		}
		for i := range s.Items {
			if s.Items[i].ID == t.ID {
				items := append([]model.Transaction(nil), s.Items...)
				items[i] = t
				s.Items = items
				return
			}
		}
		items := make([]model.Transaction, 0, len(s.Items)+1)
		s.Items = append(append(items, s.Items...), t)
	})
}

// Remove drops the transaction with the given id, if present.
func (w *Window) Remove(ctx context.Context, id string) {
	w.commit(ctx, func(s *State) { s.Items = without(s.Items, id) })
}

// Reset restores the current month with no account.
func (w *Window) Reset(ctx context.Context) {
	w.commit(ctx, func(s *State) { *s = w.initial() })
}

func (w *Window) initial() State {
	start, end := MonthBounds(w.now())
	return State{WindowStart: start, WindowEnd: end}
}

func (w *Window) commit(ctx context.Context, mutate func(s *State)) {
	w.commitIf(ctx, nil, mutate)
}

func (w *Window) commitIf(ctx context.Context, ok func(s State) bool, mutate func(s *State)) bool {
	w.mu.Lock()
	if ok != nil && !ok(w.state) {
		w.mu.Unlock()
		return false
	}
	next := w.state
	mutate(&next)
	w.state = next
	listeners := append([]Listener(nil), w.listeners...)
	w.mu.Unlock()

	for _, fn := range listeners {
		fn(ctx, next)
	}
	return true
}

func without(items []model.Transaction, id string) []model.Transaction {
	out := make([]model.Transaction, 0, len(items))
	for _, t := range items {
		if t.ID != id {
			out = append(out, t)
		}
	}
	if len(out) == len(items) {
		return items
	}
	return out
}
