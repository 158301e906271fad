// Package waifuim implements the waifu.im search API adapter.
package waifuim

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/timmy/waifeed/internal/domain"
	"github.com/timmy/waifeed/internal/provider"
)

const DefaultBatchSize = 30

// Adapter implements provider.Adapter for waifu.im.
// Every call is a GET against /search filtered by included_tags.
type Adapter struct {
	baseURL   *url.URL
	batchSize int
}

// NewAdapter creates a new waifu.im adapter. batchSize <= 0 uses DefaultBatchSize.
func NewAdapter(baseURL string, batchSize int) (*Adapter, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid waifu.im base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid waifu.im base url %q", baseURL)
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Adapter{baseURL: u, batchSize: batchSize}, nil
}

// Provider returns domain.ProviderWaifuIm.
func (a *Adapter) Provider() domain.Provider {
	return domain.ProviderWaifuIm
}

// BuildRequest builds the search call. Batch mode adds a page size.
func (a *Adapter) BuildRequest(category string, nsfw, batch bool) (*provider.Request, error) {
	if category == "" {
		return nil, domain.ErrNoCategory
	}

	u := a.baseURL.JoinPath("search")
	q := url.Values{}
	q.Set("included_tags", category)
	q.Set("is_nsfw", strconv.FormatBool(nsfw))
	if batch {
		q.Set("limit", strconv.Itoa(a.batchSize))
	}
	u.RawQuery = q.Encode()

	return &provider.Request{Method: http.MethodGet, URL: u.String()}, nil
}

type response struct {
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
}

// ParseResponse extracts image URLs from {"images": [{"url": ...}]}.
func (a *Adapter) ParseResponse(body []byte) ([]string, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if resp.Images == nil {
		return nil, errors.New("response has no images field")
	}

	urls := make([]string, 0, len(resp.Images))
	for _, img := range resp.Images {
		if img.URL != "" {
			urls = append(urls, img.URL)
		}
	}
	return urls, nil
}
