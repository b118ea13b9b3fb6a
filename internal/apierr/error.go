// Package apierr normalizes API failures into a single error type.
//
// The backend answers failed requests with a "problem details" body. Error
// keeps the HTTP status and the decoded body so callers can both show the
// extracted messages and decide how loudly to report them.
package apierr

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// DefaultMessage is used when a failure carries no usable detail.
const DefaultMessage = "Something went wrong"

// Kind classifies a failure.
type Kind int

const (
	KindUnknown       Kind = iota
	KindTransport          // no response received
	KindValidation         // 4xx with field errors
	KindAuth               // 401
	KindNotFound           // 404 on by-id operations
	KindServer             // 5xx
	KindClient             // any other 4xx
	KindNotFoundLocal      // id not present locally, never reached the network
	KindLocal              // request rejected before sending
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindServer:
		return "server"
	case KindClient:
		return "client"
	case KindNotFoundLocal:
		return "not_found_local"
	case KindLocal:
		return "local_validation"
	default:
		return "unknown"
	}
}

// Problem is the problem-details body returned by the API.
type Problem struct {
	Title     string          `json:"title,omitempty"`
	Status    int             `json:"status,omitempty"`
	Instance  string          `json:"instance,omitempty"`
	Detail    string          `json:"detail,omitempty"`
	TraceID   string          `json:"traceId,omitempty"`
	ErrorCode string          `json:"errorCode,omitempty"`
	Errors    json.RawMessage `json:"errors,omitempty"`
}

// Error is a failed API call.
type Error struct {
	Kind    Kind
	Status  int
	Method  string
	Path    string
	Problem *Problem
	// RequestID is the X-Request-ID the failed call was sent with.
	RequestID string
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msgs := Messages(e)
	if e.Method != "" {
		return fmt.Sprintf("%s %s: %s (%d): %s", e.Method, e.Path, e.Kind, e.Status, firstOr(msgs, DefaultMessage))
	}
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, firstOr(msgs, DefaultMessage))
}

func (e *Error) Unwrap() error { return e.Err }

// TraceID returns the server trace id, if the body had one.
func (e *Error) TraceID() string {
	if e == nil || e.Problem == nil {
		return ""
	}
	return e.Problem.TraceID
}

// FromResponse builds an Error from a non-2xx status and its raw body.
// Bodies that are not problem details are kept out of the message list.
func FromResponse(method, path string, status int, body []byte) *Error {
	e := &Error{Kind: kindForStatus(status), Status: status, Method: method, Path: path}
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '{' {
		var p Problem
		if err := json.Unmarshal(body, &p); err == nil {
			e.Problem = &p
		}
	}
	if e.Kind == KindClient && e.Problem != nil && hasFieldErrors(e.Problem.Errors) {
		e.Kind = KindValidation
	}
	return e
}

// Transport wraps a failure where no response was received.
func Transport(method, path string, err error) *Error {
	return &Error{Kind: KindTransport, Method: method, Path: path, Err: err}
}

// Local builds an error for a request rejected before it was sent. The
// messages are exposed through the problem's field errors.
func Local(kind Kind, messages ...string) *Error {
	raw, _ := json.Marshal(map[string][]string{"request": messages})
	return &Error{Kind: kind, Problem: &Problem{Errors: raw}}
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuth
	case status == http.StatusNotFound:
		return KindNotFound
	case status >= 500:
		return KindServer
	case status >= 400:
		return KindClient
	default:
		return KindUnknown
	}
}

// Messages extracts the ordered display messages for err:
// a non-empty detail wins; otherwise the values of "errors" are flattened
// one level in key order; otherwise DefaultMessage.
func Messages(err error) []string {
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr == nil || apiErr.Problem == nil {
		return []string{DefaultMessage}
	}
	p := apiErr.Problem
	if p.Detail != "" {
		return []string{p.Detail}
	}
	if msgs, ok := flattenErrors(p.Errors); ok {
		return msgs
	}
	return []string{DefaultMessage}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

func hasFieldErrors(raw json.RawMessage) bool {
	msgs, ok := flattenErrors(raw)
	return ok && len(msgs) > 0
}

func firstOr(s []string, def string) string {
	if len(s) == 0 {
		return def
	}
	return s[0]
}
