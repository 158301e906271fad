package domain

import (
	"fmt"
	"strings"
)

// Provider identifies one of the remote image APIs.
// Values include ProviderWaifuPics and ProviderWaifuIm.
type Provider string

const (
	ProviderWaifuPics Provider = "waifu.pics"
	ProviderWaifuIm   Provider = "waifu.im"
)

// Providers lists every supported provider in display order.
var Providers = []Provider{ProviderWaifuPics, ProviderWaifuIm}

// ParseProvider resolves a provider name, case-insensitively.
// Parameters:
//   - name: provider name such as "waifu.pics".
// Returns:
//   - Provider: the matching provider.
//   - error: ErrUnknownProvider if the name does not match.
func ParseProvider(name string) (Provider, error) {
	for _, p := range Providers {
		if strings.EqualFold(strings.TrimSpace(name), string(p)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, name)
}

// Rating returns the path segment used by the APIs for a content rating.
func Rating(nsfw bool) string {
	if nsfw {
		return "nsfw"
	}
	return "sfw"
}
