package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldErrorKind  = "error_kind"
	FieldOperation  = "operation"
	FieldStore      = "store"
	FieldStatus     = "status"
	FieldAction     = "action"
	FieldItems      = "items"
	FieldEntityID   = "entity_id"
	FieldAccountID  = "account_id"
	FieldReaction   = "reaction"
	FieldYear       = "year"
	FieldMonth      = "month"
	FieldSubject    = "subject"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentStore   = "store"
	ComponentBus     = "bus"
	ComponentWindow  = "window"
	ComponentSession = "session"
	ComponentNotify  = "notify"
	ComponentAMQP    = "amqp"
	ComponentCache   = "cache"
	ComponentConfig  = "config"
)

// Operations defines standard operation names
const (
	OpLoadAll    = "load_all"
	OpLoadByID   = "load_by_id"
	OpCreate     = "create"
	OpUpdate     = "update"
	OpDelete     = "delete"
	OpSort       = "sort"
	OpSetCurrent = "set_current"
	OpReset      = "reset"
	OpSignIn     = "sign_in"
	OpSignOut    = "sign_out"
	OpRefresh    = "refresh"
	OpPublish    = "publish"
	OpConsume    = "consume"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithStore adds the store name
func (f LogFields) WithStore(name string) LogFields {
	f[FieldStore] = name
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, requestID string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldRequestID] = requestID
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
