package logger

// Fields is a set of structured log fields.
type Fields map[string]interface{}

// Tracing fields, propagated through context.
const (
	FieldRequestID = "request_id"
	FieldSurfaceID = "surface_id"
	FieldComponent = "component"
	FieldProvider  = "provider"
	FieldCategory  = "category"
	FieldFetchID   = "fetch_id"
)

// Metric fields, attached per entry for aggregation.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldStatus     = "status"
	FieldSize       = "size"
	FieldVersion    = "settings_version"
)
