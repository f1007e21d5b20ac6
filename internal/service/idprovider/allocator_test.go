package idprovider

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"scielocore/internal/domain"
	"scielocore/internal/domain/models"
)

func testAllocator(store *fakeStore) *Allocator {
	a := NewAllocator(store)
	a.rand = rand.New(rand.NewSource(42))
	return a
}

func TestFreshV3Shape(t *testing.T) {
	a := testAllocator(newFakeStore())

	v3, err := a.FreshV3(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v3) != v3Length {
		t.Errorf("len = %d, want %d", len(v3), v3Length)
	}
	for _, c := range v3 {
		if !strings.ContainsRune(v3Alphabet, c) {
			t.Errorf("character %q outside alphabet", c)
		}
	}
}

func TestFreshV3SkipsRegistered(t *testing.T) {
	store := newFakeStore()
	a := testAllocator(store)

	// Pre-register the first id the seeded generator would produce.
	first := a.randomV3()
	store.add(&models.DocumentRecord{V3: first})
	a.rand = rand.New(rand.NewSource(42))

	v3, err := a.FreshV3(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v3 == first {
		t.Error("returned a registered v3")
	}
}

func TestFreshV2Format(t *testing.T) {
	a := testAllocator(newFakeStore())
	a.now = func() time.Time { return time.Unix(1643999935, 0) }

	facts := &models.DocumentFacts{
		ISSNs:   []models.ISSN{{Type: models.ISSNTypeEPub, Value: "0103-8478"}},
		PubYear: "2021",
	}
	v2, err := a.FreshV2(context.Background(), facts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// "S" + issn without punctuation + year + 9 digits.
	if !strings.HasPrefix(v2, "S010384782021") {
		t.Errorf("v2 = %q", v2)
	}
	if len(v2) != 1+8+4+9 {
		t.Errorf("len = %d", len(v2))
	}
	// Unix timestamp 1643999935 minus its first five digits, padded.
	if !strings.HasSuffix(v2, "999350000") {
		t.Errorf("suffix of %q", v2)
	}
}

func TestFreshV2RequiresISSNAndYear(t *testing.T) {
	a := testAllocator(newFakeStore())

	tests := []struct {
		name  string
		facts *models.DocumentFacts
	}{
		{
			name:  "no issn",
			facts: &models.DocumentFacts{PubYear: "2021"},
		},
		{
			name: "no pub_year",
			facts: &models.DocumentFacts{
				ISSNs: []models.ISSN{{Type: models.ISSNTypeEPub, Value: "0103-8478"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.FreshV2(context.Background(), tt.facts)
			if !errors.Is(err, domain.ErrCannotAllocateV2) {
				t.Errorf("err = %v, want ErrCannotAllocateV2", err)
			}
		})
	}
}

func TestFreshV2SkipsRegistered(t *testing.T) {
	store := newFakeStore()
	a := testAllocator(store)

	base := time.Unix(1643999935, 0)
	calls := 0
	a.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Second)
	}

	facts := &models.DocumentFacts{
		ISSNs:   []models.ISSN{{Type: models.ISSNTypeEPub, Value: "0103-8478"}},
		PubYear: "2021",
	}
	first, err := a.FreshV2(context.Background(), facts)
	if err != nil {
		t.Fatal(err)
	}
	store.add(&models.DocumentRecord{V3: "x", V2: first})

	second, err := a.FreshV2(context.Background(), facts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second == first {
		t.Error("reissued a registered v2")
	}
}
