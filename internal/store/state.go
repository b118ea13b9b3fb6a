// Package store holds the client-side resource stores. Each store mirrors a
// remote collection, records the outcome of every remote operation as an
// immutable snapshot, and notifies subscribers synchronously after each
// transition.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"expensetracker/internal/apierr"
	"expensetracker/internal/model"
)

// Status is the lifecycle phase of the last operation.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

// EditMode tells a form whether the selected entity is being created or
// updated.
type EditMode int

const (
	EditNone EditMode = iota
	EditCreate
	EditUpdate
)

func (m EditMode) String() string {
	switch m {
	case EditCreate:
		return "create"
	case EditUpdate:
		return "update"
	default:
		return "none"
	}
}

// Action names the operation that produced a snapshot.
type Action string

const (
	ActionNone       Action = ""
	ActionLoadAll    Action = "load_all"
	ActionLoadByID   Action = "load_by_id"
	ActionCreate     Action = "create"
	ActionUpdate     Action = "update"
	ActionDelete     Action = "delete"
	ActionSort       Action = "sort"
	ActionSetCurrent Action = "set_current"
	ActionSetForEdit Action = "set_for_edit"
)

// ErrNotFound is returned for by-id operations on ids the store does not hold.
var ErrNotFound = errors.New("not found")

// Failure is the last failed call.
type Failure struct {
	Err *apierr.Error
	// Silent is set when the caller asked to handle the error itself.
	Silent bool
}

// State is an immutable snapshot of a resource store. Items and Selected
// are shared between snapshots and must not be modified by readers.
type State[T model.Entity] struct {
	Status     Status
	Errors     []string
	Items      []T
	Selected   *T
	EditMode   EditMode
	LastAction Action
	// LastID is the id targeted by the last by-id operation.
	LastID string
	// LastParams is the query of the last successful LoadAll.
	LastParams url.Values
	Failure    *Failure
}

// Find returns the item with the given id.
func (s State[T]) Find(id string) (T, bool) {
	if i := indexOf(s.Items, id); i >= 0 {
		return s.Items[i], true
	}
	var zero T
	return zero, false
}

// CallOption tunes a single store operation.
type CallOption func(*callOptions)

type callOptions struct {
	skipGlobal bool
}

// SkipGlobalErrorHandling suppresses the global error notice and makes the
// operation return its error to the caller.
func SkipGlobalErrorHandling() CallOption {
	return func(o *callOptions) { o.skipGlobal = true }
}

func collect(opts []CallOption) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Listener observes store transitions. It runs in the goroutine that caused
// the transition, after the store lock is released.
type Listener[S any] func(ctx context.Context, snapshot S)

func notFound(resource, id string) error {
	e := apierr.Local(apierr.KindNotFoundLocal, fmt.Sprintf("%s %s not found", resource, id))
	e.Err = ErrNotFound
	return e
}

func indexOf[T model.Entity](items []T, id string) int {
	for i := range items {
		if items[i].EntityID() == id {
			return i
		}
	}
	return -1
}

// upsert returns a new slice with e replacing the item of the same id, or
// appended when absent.
func upsert[T model.Entity](items []T, e T) []T {
	i := indexOf(items, e.EntityID())
	if i < 0 {
		out := make([]T, 0, len(items)+1)
		return append(append(out, items...), e)
	}
	out := append([]T(nil), items...)
	out[i] = e
	return out
}

func prepend[T model.Entity](items []T, e T) []T {
	out := make([]T, 0, len(items)+1)
	out = append(out, e)
	for _, it := range items {
		if it.EntityID() != e.EntityID() {
			out = append(out, it)
		}
	}
	return out
}

func without[T model.Entity](items []T, id string) []T {
	if indexOf(items, id) < 0 {
		return items
	}
	out := make([]T, 0, len(items)-1)
	for _, it := range items {
		if it.EntityID() != id {
			out = append(out, it)
		}
	}
	return out
}

func ptr[T any](v T) *T { return &v }

func cloneValues(v url.Values) url.Values {
	if v == nil {
		return nil
	}
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
