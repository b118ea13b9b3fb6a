package store

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"

	"expensetracker/internal/apierr"
	"expensetracker/internal/httpclient"
	"expensetracker/internal/log"
	"expensetracker/internal/model"
)

// resource is the shared CRUD state machine behind every store. S is the
// snapshot type handed to listeners; view builds it under the lock so that
// stores with extra state publish it atomically with the items.
type resource[T model.Entity, S any] struct {
	name   string
	path   string
	api    httpclient.Requester
	logger *log.Logger

	mu        sync.Mutex
	state     State[T]
	listeners []listenerEntry[S]
	nextID    int
	// gen is bumped by Reset. Responses to calls started in an earlier
	// generation are dropped.
	gen uint64
	// loads counts LoadAll calls. Only the latest one may apply its response.
	loads uint64

	// derive runs under mu after every mutation, before the snapshot is taken.
	derive func(prev State[T], next *State[T])
	view   func(State[T]) S
}

type listenerEntry[S any] struct {
	id int
	fn Listener[S]
}

func newResource[T model.Entity, S any](name, path string, api httpclient.Requester, logger *log.Logger, view func(State[T]) S) *resource[T, S] {
	if logger == nil {
		logger = log.Discard()
	}
	return &resource[T, S]{
		name:   name,
		path:   path,
		api:    api,
		logger: logger.WithComponent(log.ComponentStore).With(log.FieldStore, name),
		view:   view,
	}
}

// Snapshot returns the current state.
func (r *resource[T, S]) Snapshot() S {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view(r.state)
}

// Subscribe registers fn for every later transition and returns a function
// that removes it.
func (r *resource[T, S]) Subscribe(fn Listener[S]) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.listeners = append(r.listeners, listenerEntry[S]{id: id, fn: fn})
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, l := range r.listeners {
			if l.id == id {
				r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
				return
			}
		}
	}
}

// SetForEdit selects entity (nil clears) for a form in the given mode.
func (r *resource[T, S]) SetForEdit(ctx context.Context, entity *T, mode EditMode) {
	r.commit(ctx, func(s *State[T]) {
		if entity != nil {
			s.Selected = ptr(*entity)
		} else {
			s.Selected = nil
		}
		s.EditMode = mode
		s.Errors = nil
		s.LastAction = ActionSetForEdit
	})
}

// Reset restores the initial Idle state.
func (r *resource[T, S]) Reset(ctx context.Context) {
	r.commit(ctx, func(s *State[T]) {
		*s = State[T]{}
		r.gen++
	})
}

// commit applies mutate to a copy of the state, publishes it, and notifies
// listeners outside the lock.
func (r *resource[T, S]) commit(ctx context.Context, mutate func(s *State[T])) {
	r.commitIf(ctx, nil, mutate)
}

// commitIf is commit guarded by ok, which runs under the lock against the
// current state. It reports whether the transition was applied.
func (r *resource[T, S]) commitIf(ctx context.Context, ok func(s State[T]) bool, mutate func(s *State[T])) bool {
	r.mu.Lock()
	if ok != nil && !ok(r.state) {
		r.mu.Unlock()
		return false
	}
	prev := r.state
	next := prev
	mutate(&next)
	if r.derive != nil {
		r.derive(prev, &next)
	}
	r.state = next
	snap := r.view(next)
	listeners := make([]Listener[S], len(r.listeners))
	for i, l := range r.listeners {
		listeners[i] = l.fn
	}
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(ctx, snap)
	}
	return true
}

// ticket identifies a call for the staleness guard.
type ticket struct {
	gen  uint64
	load uint64
}

// current returns a commitIf guard that holds while no Reset happened and,
// for LoadAll, no later LoadAll started since t was issued.
func (r *resource[T, S]) current(t ticket) func(State[T]) bool {
	return func(State[T]) bool {
		return r.gen == t.gen && (t.load == 0 || r.loads == t.load)
	}
}

// call runs one remote operation through Loading to Success or Error.
// onSuccess applies the response to the next state. A response that arrives
// after a Reset, or after a newer LoadAll started, is dropped and the call
// returns nil.
func (r *resource[T, S]) call(ctx context.Context, act Action, id string, opts []CallOption, do func(ctx context.Context) error, onSuccess func(s *State[T])) error {
	o := collect(opts)

	var t ticket
	r.commit(ctx, func(s *State[T]) {
		t.gen = r.gen
		if act == ActionLoadAll {
			r.loads++
			t.load = r.loads
		}
		s.Status = StatusLoading
		s.Errors = nil
		s.Failure = nil
	})

	if err := do(ctx); err != nil {
		return r.fail(ctx, act, id, o, t, err)
	}

	applied := r.commitIf(ctx, r.current(t), func(s *State[T]) {
		s.Status = StatusSuccess
		s.Errors = nil
		s.Failure = nil
		s.LastAction = act
		s.LastID = id
		onSuccess(s)
	})
	if !applied {
		r.logger.DebugContext(ctx, "Stale response dropped", log.FieldAction, string(act), log.FieldEntityID, id)
		return nil
	}
	r.logger.DebugContext(ctx, "Store operation succeeded", log.FieldAction, string(act), log.FieldEntityID, id)
	return nil
}

func (r *resource[T, S]) fail(ctx context.Context, act Action, id string, o callOptions, t ticket, err error) error {
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr == nil {
		apiErr = apierr.Transport("", "", err)
	}
	msgs := apierr.Messages(apiErr)

	applied := r.commitIf(ctx, r.current(t), func(s *State[T]) {
		s.Status = StatusError
		s.Errors = msgs
		s.Failure = &Failure{Err: apiErr, Silent: o.skipGlobal}
		s.LastAction = act
		s.LastID = id
	})
	if applied {
		r.logger.WarnContext(ctx, "Store operation failed",
			log.FieldAction, string(act),
			log.FieldEntityID, id,
			log.FieldErrorKind, apiErr.Kind.String(),
			log.FieldError, err)
	}

	if o.skipGlobal {
		return err
	}
	return nil
}

// rejectLocal records request validation messages without touching the
// network. The error is always returned and never reported globally.
func (r *resource[T, S]) rejectLocal(ctx context.Context, act Action, id string, msgs []string) error {
	apiErr := apierr.Local(apierr.KindLocal, msgs...)
	r.commit(ctx, func(s *State[T]) {
		s.Status = StatusError
		s.Errors = msgs
		s.Failure = &Failure{Err: apiErr, Silent: true}
		s.LastAction = act
		s.LastID = id
	})
	return apiErr
}

func (r *resource[T, S]) loadAll(ctx context.Context, params url.Values, opts []CallOption) error {
	var items []T
	return r.call(ctx, ActionLoadAll, "", opts,
		func(ctx context.Context) error {
			return r.api.Do(ctx, http.MethodGet, r.path, nil, params, &items)
		},
		func(s *State[T]) {
			if items == nil {
				items = []T{}
			}
			s.Items = items
			s.LastParams = cloneValues(params)
		})
}

func (r *resource[T, S]) loadByID(ctx context.Context, id string, opts []CallOption) error {
	var got T
	return r.call(ctx, ActionLoadByID, id, opts,
		func(ctx context.Context) error {
			return r.api.Do(ctx, http.MethodGet, r.itemPath(id), nil, nil, &got)
		},
		func(s *State[T]) {
			s.Items = upsert(s.Items, got)
			s.Selected = ptr(got)
		})
}

func (r *resource[T, S]) create(ctx context.Context, req any, opts []CallOption) error {
	if msgs := model.Validate(req); len(msgs) > 0 {
		return r.rejectLocal(ctx, ActionCreate, "", msgs)
	}
	var got T
	return r.call(ctx, ActionCreate, "", opts,
		func(ctx context.Context) error {
			return r.api.Do(ctx, http.MethodPost, r.path, req, nil, &got)
		},
		func(s *State[T]) {
			s.Items = prepend(s.Items, got)
			s.Selected = ptr(got)
			s.LastID = got.EntityID()
		})
}

func (r *resource[T, S]) update(ctx context.Context, id string, req any, opts []CallOption) error {
	if msgs := model.Validate(req); len(msgs) > 0 {
		return r.rejectLocal(ctx, ActionUpdate, id, msgs)
	}
	var got T
	return r.call(ctx, ActionUpdate, id, opts,
		func(ctx context.Context) error {
			return r.api.Do(ctx, http.MethodPut, r.itemPath(id), req, nil, &got)
		},
		func(s *State[T]) {
			s.Items = upsert(s.Items, got)
			s.Selected = ptr(got)
		})
}

func (r *resource[T, S]) remove(ctx context.Context, id string, opts []CallOption) error {
	return r.call(ctx, ActionDelete, id, opts,
		func(ctx context.Context) error {
			return r.api.Do(ctx, http.MethodDelete, r.itemPath(id), nil, nil, nil)
		},
		func(s *State[T]) {
			s.Items = without(s.Items, id)
			if s.Selected != nil && (*s.Selected).EntityID() == id {
				s.Selected = nil
			}
		})
}

func (r *resource[T, S]) itemPath(id string) string {
	return r.path + "/" + url.PathEscape(id)
}
