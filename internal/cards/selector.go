// Package cards implements the card-selection step of the generation
// pipeline: a randomized draw of N distinct cards from the catalog with
// 1-based positions assigned in shuffle order.
//
// The draw size is a weighted coin flip between exactly 3 and exactly 5
// cards. The distribution is intentionally bimodal, not a uniform draw over
// {3,4,5}, and callers must not "fix" it to a uniform range.
package cards

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/tbourn/go-reading-backend/internal/domain"
)

// MinCatalogSize is the smallest catalog the selector can draw from: the
// largest possible spread is five cards.
const MinCatalogSize = 5

// ErrInsufficientCatalog is returned when the catalog holds fewer than
// MinCatalogSize cards.
var ErrInsufficientCatalog = errors.New("card catalog has fewer than 5 entries")

// Selection is the result of one draw.
type Selection struct {
	// Cards are the drawn cards with positions 1..Count in shuffle order.
	Cards []domain.DrawnCard
	// Count is the spread size, always 3 or 5.
	Count int
}

// Selector draws spreads from a card catalog. The zero value is not usable;
// construct with NewSelector.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand

	// ThreeCardBias is the probability of drawing the 3-card spread,
	// in [0,1]. Defaults to 0.5 (the even coin flip).
	ThreeCardBias float64
}

// NewSelector returns a Selector seeded from the current time.
func NewSelector() *Selector {
	return NewSelectorWithSource(rand.NewSource(time.Now().UnixNano()))
}

// NewSelectorWithSource returns a Selector backed by the given randomness
// source. Tests pass a fixed seed for deterministic draws.
func NewSelectorWithSource(src rand.Source) *Selector {
	return &Selector{
		rng:           rand.New(src),
		ThreeCardBias: 0.5,
	}
}

// Select draws a spread from catalog: it picks the spread size (3 or 5 via
// the weighted coin flip), applies a Fisher–Yates shuffle over the whole
// catalog, takes the first count cards, and assigns 1-based positions.
//
// Guarantees: no duplicate card IDs, len(Cards) == Count, positions are
// exactly the permutation 1..Count.
func (s *Selector) Select(catalog []domain.Card) (Selection, error) {
	if len(catalog) < MinCatalogSize {
		return Selection{}, ErrInsufficientCatalog
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 5
	if s.rng.Float64() < s.ThreeCardBias {
		count = 3
	}

	// Shuffle indices rather than the caller's slice.
	idx := make([]int, len(catalog))
	for i := range idx {
		idx[i] = i
	}
	for i := len(idx) - 1; i > 0; i-- {
		j := s.rng.Intn(i + 1)
		idx[i], idx[j] = idx[j], idx[i]
	}

	drawn := make([]domain.DrawnCard, 0, count)
	for pos := 0; pos < count; pos++ {
		c := catalog[idx[pos]]
		drawn = append(drawn, domain.DrawnCard{
			Position:    pos + 1,
			CardID:      c.ID,
			Name:        c.Name,
			DisplayName: c.DisplayName,
		})
	}
	return Selection{Cards: drawn, Count: count}, nil
}
