// Package waifupics implements the waifu.pics API adapter.
package waifupics

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/timmy/waifeed/internal/domain"
	"github.com/timmy/waifeed/internal/provider"
)

// Adapter implements provider.Adapter for waifu.pics.
//
// Batch mode: POST /many/{rating}/{category} with an exclusion body, answered by {"files": [...]}.
// Single mode: GET /{rating}/{category}, answered by {"url": "..."}.
type Adapter struct {
	baseURL *url.URL
}

// NewAdapter creates a new waifu.pics adapter.
func NewAdapter(baseURL string) (*Adapter, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid waifu.pics base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid waifu.pics base url %q", baseURL)
	}
	return &Adapter{baseURL: u}, nil
}

// Provider returns domain.ProviderWaifuPics.
func (a *Adapter) Provider() domain.Provider {
	return domain.ProviderWaifuPics
}

type excludeBody struct {
	Exclude []string `json:"exclude"`
}

// BuildRequest builds the batch or single-image call.
func (a *Adapter) BuildRequest(category string, nsfw, batch bool) (*provider.Request, error) {
	if category == "" {
		return nil, domain.ErrNoCategory
	}
	rating := domain.Rating(nsfw)

	if batch {
		return &provider.Request{
			Method: http.MethodPost,
			URL:    a.baseURL.JoinPath("many", rating, category).String(),
			Body:   excludeBody{Exclude: []string{}},
		}, nil
	}
	return &provider.Request{
		Method: http.MethodGet,
		URL:    a.baseURL.JoinPath(rating, category).String(),
	}, nil
}

type response struct {
	URL   string   `json:"url"`
	Files []string `json:"files"`
}

// ParseResponse accepts either the batch or the single response form.
func (a *Adapter) ParseResponse(body []byte) ([]string, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	switch {
	case resp.Files != nil:
		urls := make([]string, 0, len(resp.Files))
		for _, f := range resp.Files {
			if f != "" {
				urls = append(urls, f)
			}
		}
		return urls, nil
	case resp.URL != "":
		return []string{resp.URL}, nil
	}
	return nil, errors.New("response carries neither files nor url")
}
