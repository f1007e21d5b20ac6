// Package idprovider implements identifier allocation, deduplication and
// the RequestId pipeline over the document store.
package idprovider

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"scielocore/internal/domain"
	"scielocore/internal/domain/models"
	"scielocore/internal/domain/repositories"
)

// v3Alphabet excludes vowels and ambiguous digits so generated ids never
// spell words and survive manual transcription.
const (
	v3Alphabet    = "23456789bcdfghjkmnpqrstvwxyzBCDFGHJKMNPQRSTVWXYZ"
	v3Length      = 23
	maxV3Attempts = 64
)

// Allocator mints fresh v3 and v2 identifiers, checking the store for
// collisions. The randomness source and clock are injectable for tests.
type Allocator struct {
	store repositories.DocumentStore
	rand  *rand.Rand
	now   func() time.Time
}

func NewAllocator(store repositories.DocumentStore) *Allocator {
	return &Allocator{
		store: store,
		rand:  rand.New(rand.NewSource(time.Now().UnixNano())),
		now:   time.Now,
	}
}

func (a *Allocator) randomV3() string {
	b := make([]byte, v3Length)
	for i := range b {
		b[i] = v3Alphabet[a.rand.Intn(len(v3Alphabet))]
	}
	return string(b)
}

// FreshV3 returns a v3 not yet present in the store. Generation is
// bounded; exhausting the attempts means the store check itself is
// failing or the id space is saturated beyond plausibility.
func (a *Allocator) FreshV3(ctx context.Context) (string, error) {
	for i := 0; i < maxV3Attempts; i++ {
		v3 := a.randomV3()
		exists, err := a.store.ExistsV3(ctx, v3)
		if err != nil {
			return "", fmt.Errorf("check v3 %s: %w", v3, err)
		}
		if !exists {
			return v3, nil
		}
	}
	return "", fmt.Errorf("v3 generation exhausted after %d attempts", maxV3Attempts)
}

var issnPunct = strings.NewReplacer("-", "", ".", "", " ", "")

// FreshV2 mints a v2 from the document's ISSN and publication year:
// "S" + ISSN + year + a 9-digit suffix derived from the current clock,
// retried against the store until unused.
func (a *Allocator) FreshV2(ctx context.Context, facts *models.DocumentFacts) (string, error) {
	issn, err := facts.PickISSN()
	if err != nil {
		return "", err
	}
	if facts.PubYear == "" {
		return "", fmt.Errorf("%w: missing pub_year", domain.ErrCannotAllocateV2)
	}
	prefix := "S" + issnPunct.Replace(issn) + facts.PubYear

	for i := 0; i < maxV3Attempts; i++ {
		v2 := prefix + a.suffix(int64(i))
		exists, err := a.store.ExistsV2(ctx, v2)
		if err != nil {
			return "", fmt.Errorf("check v2 %s: %w", v2, err)
		}
		if !exists {
			return v2, nil
		}
	}
	return "", fmt.Errorf("v2 generation exhausted after %d attempts", maxV3Attempts)
}

// suffix derives 9 digits from the clock: the Unix timestamp digits
// after the first five, right-padded with zeros. The shift keeps
// same-second retries from reissuing a colliding candidate.
func (a *Allocator) suffix(shift int64) string {
	digits := fmt.Sprintf("%d", a.now().Unix()+shift)
	if len(digits) > 5 {
		digits = digits[5:]
	} else {
		digits = ""
	}
	if len(digits) > 9 {
		digits = digits[:9]
	}
	return digits + strings.Repeat("0", 9-len(digits))
}
