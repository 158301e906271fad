// Package provider adapts the remote image APIs to a uniform request/response shape.
package provider

import "github.com/timmy/waifeed/internal/domain"

// Request is a provider-specific HTTP call built from the current feed settings.
type Request struct {
	Method string
	URL    string
	Body   interface{} // JSON-encoded when non-nil
}

// Adapter builds requests for one provider and normalizes its responses.
type Adapter interface {
	// Provider returns the provider this adapter serves.
	Provider() domain.Provider

	// BuildRequest builds the call for a category and rating.
	// Parameters:
	//   - category: category or tag to request; must be non-empty.
	//   - nsfw: true for the not-safe rating.
	//   - batch: true to request many images at once (auto-refresh mode).
	// Returns:
	//   - *Request: the call to execute.
	//   - error: non-nil if no request can be built.
	BuildRequest(category string, nsfw, batch bool) (*Request, error)

	// ParseResponse normalizes a 2xx response body into image URLs.
	// Returns an error for bodies that do not match the provider schema.
	ParseResponse(body []byte) ([]string, error)
}
