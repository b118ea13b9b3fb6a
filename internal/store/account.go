package store

import (
	"context"

	"expensetracker/internal/httpclient"
	"expensetracker/internal/log"
	"expensetracker/internal/model"
)

const accountsPath = "/api/accounts"

// AccountState is the account snapshot plus the account the rest of the
// client is scoped to.
type AccountState struct {
	State[model.Account]
	// Current is nil or equal to an element of Items.
	Current *model.Account
}

// AccountStore mirrors /api/accounts. It keeps at most one default account
// and derives the current account after every transition.
type AccountStore struct {
	*resource[model.Account, AccountState]

	// guarded by resource.mu
	current *model.Account
}

func NewAccountStore(api httpclient.Requester, logger *log.Logger) *AccountStore {
	s := &AccountStore{}
	s.resource = newResource(
		"accounts", accountsPath, api, logger,
		func(st State[model.Account]) AccountState {
			return AccountState{State: st, Current: s.current}
		})
	s.derive = s.deriveCurrent
	return s
}

func (s *AccountStore) LoadAll(ctx context.Context, opts ...CallOption) error {
	return s.loadAll(ctx, nil, opts)
}

func (s *AccountStore) LoadByID(ctx context.Context, id string, opts ...CallOption) error {
	return s.loadByID(ctx, id, opts)
}

func (s *AccountStore) Create(ctx context.Context, req model.AccountRequest, opts ...CallOption) error {
	return s.create(ctx, req, opts)
}

func (s *AccountStore) Update(ctx context.Context, id string, req model.AccountRequest, opts ...CallOption) error {
	return s.update(ctx, id, req, opts)
}

func (s *AccountStore) Delete(ctx context.Context, id string, opts ...CallOption) error {
	return s.remove(ctx, id, opts)
}

// SetCurrent scopes the client to the account with the given id. Unknown
// ids fail with ErrNotFound and leave the state untouched. The lookup and
// the transition happen under one lock so a concurrent Delete cannot leave
// current pointing at a removed account.
func (s *AccountStore) SetCurrent(ctx context.Context, id string) error {
	var acc model.Account
	found := s.commitIf(ctx,
		func(st State[model.Account]) bool {
			var ok bool
			acc, ok = st.Find(id)
			return ok
		},
		func(st *State[model.Account]) {
			st.Status = StatusSuccess
			st.Errors = nil
			st.Failure = nil
			st.EditMode = EditNone
			st.LastAction = ActionSetCurrent
			st.LastID = id
			s.current = ptr(acc)
		})
	if !found {
		return notFound("account", id)
	}
	s.logger.InfoContext(ctx, "Current account changed", log.FieldAccountID, id)
	return nil
}

// deriveCurrent keeps the single-default invariant and re-resolves the
// current account against the new items. Runs under mu.
func (s *AccountStore) deriveCurrent(prev State[model.Account], next *State[model.Account]) {
	if next.Status == StatusIdle {
		s.current = nil
		return
	}
	if next.Status != StatusSuccess || next.LastAction == ActionSetCurrent || next.LastAction == ActionSetForEdit {
		return
	}

	switch next.LastAction {
	case ActionCreate, ActionUpdate:
		if next.Selected != nil && next.Selected.IsDefault {
			next.Items = clearOtherDefaults(next.Items, next.Selected.ID)
		}
	}

	switch next.LastAction {
	case ActionLoadAll:
		s.current = pickDefault(next.Items, "")

	case ActionUpdate:
		if s.current != nil && s.current.ID == next.LastID && next.Selected != nil && !next.Selected.IsActive {
			s.current = pickDefault(next.Items, next.LastID)
			next.EditMode = EditNone
			return
		}
		s.current = s.resolve(next.Items)

	case ActionDelete:
		if s.current != nil && s.current.ID == next.LastID {
			s.current = pickDefault(next.Items, "")
			next.EditMode = EditNone
			return
		}
		s.current = s.resolve(next.Items)

	default:
		s.current = s.resolve(next.Items)
	}
}

// resolve returns the fresh copy of the current account, or nil when it is
// gone.
func (s *AccountStore) resolve(items []model.Account) *model.Account {
	if s.current == nil {
		return nil
	}
	if i := indexOf(items, s.current.ID); i >= 0 {
		return ptr(items[i])
	}
	return pickDefault(items, "")
}

// pickDefault returns the default account, else the first one, ignoring
// the account with id skip.
func pickDefault(items []model.Account, skip string) *model.Account {
	var first *model.Account
	for i := range items {
		if items[i].ID == skip {
			continue
		}
		if items[i].IsDefault {
			return ptr(items[i])
		}
		if first == nil {
			first = ptr(items[i])
		}
	}
	return first
}

func clearOtherDefaults(items []model.Account, keep string) []model.Account {
	out := make([]model.Account, len(items))
	for i, a := range items {
		if a.ID != keep {
			a.IsDefault = false
		}
		out[i] = a
	}
	return out
}
