package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCategory is returned when the category list for the active provider and rating is empty.
	ErrNoCategory = errors.New("no category available")

	// ErrNoImage is returned by Advance when no image could be produced.
	ErrNoImage = errors.New("no image available")

	// ErrStaleFetch marks a fetch result issued under a superseded settings snapshot.
	ErrStaleFetch = errors.New("stale fetch result discarded")

	ErrInvalidSetting  = errors.New("invalid setting")
	ErrUnknownProvider = errors.New("unknown provider")
	ErrUnknownCommand  = errors.New("unknown command")
)

// FetchError describes a failed batch fetch. It is always transient.
type FetchError struct {
	Provider   Provider
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s from %s: HTTP %d: %v", e.URL, e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s from %s: %v", e.URL, e.Provider, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
