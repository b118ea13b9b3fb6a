// Package bus wires the cross-store reactions. Reactions run synchronously
// in the goroutine of the transition that triggered them.
package bus

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"expensetracker/internal/apierr"
	"expensetracker/internal/log"
	"expensetracker/internal/model"
	"expensetracker/internal/session"
	"expensetracker/internal/store"
	"expensetracker/internal/window"
)

// Reporter receives failures that were not handled by the caller.
type Reporter interface {
	Report(ctx context.Context, source string, err *apierr.Error)
}

// Stores are the participants of the reaction table.
type Stores struct {
	Session      *session.Session
	Accounts     *store.AccountStore
	Categories   *store.CategoryStore
	Transactions *store.TransactionStore
	Window       *window.Window
}

// Event is one store transition as seen by the reaction table. Only the
// snapshot of the Source store is set.
type Event struct {
	Source       string
	Session      session.State
	Accounts     store.AccountState
	Categories   store.State[model.Category]
	Transactions store.State[model.Transaction]

	// SignedIn is set when the session reaches Success from another status.
	SignedIn bool
	// SignedOut is set when a signed-in session returns to Idle.
	SignedOut bool
}

// failure returns the failure carried by the source snapshot when the
// transition ended in Error.
func (e Event) failure() *store.Failure {
	var status store.Status
	var f *store.Failure
	switch e.Source {
	case NodeSession:
		status, f = e.Session.Status, e.Session.Failure
	case NodeAccounts:
		status, f = e.Accounts.Status, e.Accounts.Failure
	case NodeCategories:
		status, f = e.Categories.Status, e.Categories.Failure
	case NodeTransactions:
		status, f = e.Transactions.Status, e.Transactions.Failure
	}
	if status != store.StatusError {
		return nil
	}
	return f
}

func (e Event) reportable() bool {
	f := e.failure()
	return f != nil && !f.Silent && f.Err != nil
}

// Bus holds the reaction subscriptions.
type Bus struct {
	stores   Stores
	reporter Reporter
	logger   *log.Logger

	mu         sync.Mutex
	signedIn   bool
	lastStatus store.Status

	// trace, when set, is called before a reaction runs; the returned
	// function is called after it.
	trace func(reaction string) func()
}

// New validates the reaction table and subscribes to every store.
func New(stores Stores, reporter Reporter, logger *log.Logger) (*Bus, error) {
	if err := CheckAcyclic(Table); err != nil {
		return nil, err
	}
	if stores.Session == nil || stores.Accounts == nil || stores.Categories == nil || stores.Transactions == nil || stores.Window == nil {
		return nil, fmt.Errorf("bus: all stores are required")
	}
	if logger == nil {
		logger = log.Discard()
	}
	b := &Bus{
		stores:   stores,
		reporter: reporter,
		logger:   logger.WithComponent(log.ComponentBus),
	}

	stores.Session.Subscribe(func(ctx context.Context, s session.State) {
		b.dispatch(ctx, b.sessionEvent(s))
	})
	stores.Accounts.Subscribe(func(ctx context.Context, s store.AccountState) {
		b.dispatch(ctx, Event{Source: NodeAccounts, Accounts: s})
	})
	stores.Categories.Subscribe(func(ctx context.Context, s store.State[model.Category]) {
		b.dispatch(ctx, Event{Source: NodeCategories, Categories: s})
	})
	stores.Transactions.Subscribe(func(ctx context.Context, s store.State[model.Transaction]) {
		b.dispatch(ctx, Event{Source: NodeTransactions, Transactions: s})
	})
	return b, nil
}

// dispatch runs every row of Table whose sources include e.Source and whose
// predicate holds.
func (b *Bus) dispatch(ctx context.Context, e Event) {
	for _, r := range Table {
		if !slices.Contains(r.Sources, e.Source) || (r.When != nil && !r.When(b, e)) {
			continue
		}
		b.logger.DebugContext(ctx, "Reaction fired", log.FieldReaction, r.Name, "source", e.Source)
		done := func() {}
		if b.trace != nil {
			done = b.trace(r.Name)
		}
		r.Do(b, ctx, e)
		done()
	}
}

// sessionEvent detects the sign-in and sign-out edges of a session
// transition.
func (b *Bus) sessionEvent(s session.State) Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := Event{
		Source:    NodeSession,
		Session:   s,
		SignedIn:  s.Status == store.StatusSuccess && b.lastStatus != store.StatusSuccess,
		SignedOut: s.Status == store.StatusIdle && b.signedIn,
	}
	b.lastStatus = s.Status
	switch s.Status {
	case store.StatusSuccess:
		b.signedIn = true
	case store.StatusIdle:
		b.signedIn = false
	}
	return e
}

// signIn loads accounts and categories concurrently.
func (b *Bus) signIn(ctx context.Context, _ Event) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.stores.Accounts.LoadAll(gctx) })
	g.Go(func() error { return b.stores.Categories.LoadAll(gctx) })
	if err := g.Wait(); err != nil {
		b.logger.WarnContext(ctx, "Sign-in load failed", log.FieldReaction, "sign-in", log.FieldError, err)
	}
}

func (b *Bus) signOut(ctx context.Context, _ Event) {
	b.stores.Accounts.Reset(ctx)
	b.stores.Categories.Reset(ctx)
	b.stores.Transactions.Reset(ctx)
	b.stores.Window.Reset(ctx)
}

// rescope points the window at the current account's month and loads it.
func (b *Bus) rescope(ctx context.Context, e Event) {
	w := b.stores.Window
	cur := e.Accounts.Current
	if cur == nil {
		w.Reset(ctx)
		return
	}

	now := w.Now()
	start, end := window.MonthBounds(now)
	w.SetWindow(ctx, start, end, cur.ID)
	b.stores.Transactions.LoadMonth(ctx, store.MonthQuery(now, cur.ID))
}

// affectsScope reports whether an account transition may have changed the
// account the dashboard is scoped to. Form selection changes never do.
func affectsScope(s store.AccountState) bool {
	if s.Status != store.StatusSuccess || s.LastAction == store.ActionSetForEdit {
		return false
	}
	return s.EditMode == store.EditNone ||
		s.LastAction == store.ActionLoadAll ||
		s.LastAction == store.ActionSetCurrent
}

// patchesWindow reports whether a transaction transition changes the
// window. A list load seeds an uninitialized window only when its query
// covers the window's month and account.
func (b *Bus) patchesWindow(e Event) bool {
	s := e.Transactions
	if s.Status != store.StatusSuccess {
		return false
	}
	switch s.LastAction {
	case store.ActionLoadAll:
		w := b.stores.Window.Snapshot()
		return !w.Initialized && w.CoveredBy(s.LastParams)
	case store.ActionLoadByID, store.ActionCreate, store.ActionUpdate:
		return s.Selected != nil
	case store.ActionDelete:
		return true
	}
	return false
}

func (b *Bus) patchWindow(ctx context.Context, e Event) {
	s := e.Transactions
	w := b.stores.Window
	switch s.LastAction {
	case store.ActionLoadAll:
		if !w.SeedLoad(ctx, s.LastParams, s.Items) {
			b.logger.DebugContext(ctx, "Window seed skipped", log.FieldReaction, "transaction-window")
		}
	case store.ActionLoadByID, store.ActionCreate, store.ActionUpdate:
		w.Upsert(ctx, *s.Selected)
	case store.ActionDelete:
		w.Remove(ctx, s.LastID)
	}
}

func (b *Bus) toast(ctx context.Context, e Event) {
	b.reporter.Report(ctx, e.Source, e.failure().Err)
}
