package service

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/timmy/waifeed/internal/domain"
)

// CategorySelector draws a random category for the snapshot's provider and rating.
type CategorySelector struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewCategorySelector creates a selector. A nil rnd seeds one from the clock.
func NewCategorySelector(rnd *rand.Rand) *CategorySelector {
	if rnd == nil {
		seed := uint64(time.Now().UnixNano())
		rnd = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return &CategorySelector{rnd: rnd}
}

// Select picks uniformly from the active category list. Repeats are allowed.
// Returns domain.ErrNoCategory when the list is empty.
func (s *CategorySelector) Select(settings domain.Settings) (string, error) {
	list := settings.ActiveCategories()
	if len(list) == 0 {
		return "", fmt.Errorf("%w: provider=%s rating=%s",
			domain.ErrNoCategory, settings.Provider, domain.Rating(settings.AllowNSFW))
	}

	s.mu.Lock()
	idx := s.rnd.IntN(len(list))
	s.mu.Unlock()

	return list[idx], nil
}
