package idprovider

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"scielocore/internal/domain"
	"scielocore/internal/domain/models"
	"scielocore/internal/domain/repositories"
)

// fakeStore is an in-memory DocumentStore that interprets dedup criteria
// the same way the SQL translation does.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]*models.DocumentRecord

	// upsertConflicts is a queue of conflicts to fake before accepting a
	// write, to exercise the pipeline's bounded retry.
	upsertConflicts []*domain.NotUniqueError

	findErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]*models.DocumentRecord{}}
}

func (s *fakeStore) add(rec *models.DocumentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.Updated.IsZero() {
		rec.Updated = time.Now()
	}
	s.records[rec.V3] = rec
}

func (s *fakeStore) FindMatching(_ context.Context, c *repositories.Criteria) ([]*models.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}

	var matches []*models.DocumentRecord
	for _, rec := range s.records {
		if matchesCriteria(c, rec) {
			matches = append(matches, rec)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Updated.After(matches[j].Updated)
	})
	if len(matches) > repositories.DefaultPageSize {
		matches = matches[:repositories.DefaultPageSize]
	}
	return matches, nil
}

func (s *fakeStore) FetchMostRecent(_ context.Context, v3 string) (*models.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[v3]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", v3, domain.ErrNotFound)
	}
	return rec, nil
}

func (s *fakeStore) GetByV2(_ context.Context, v2 string) (*models.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.V2 == v2 || rec.AopPid == v2 {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("document v2 %s: %w", v2, domain.ErrNotFound)
}

func (s *fakeStore) ExistsV2(_ context.Context, v2 string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.V2 == v2 {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) ExistsV3(_ context.Context, v3 string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[v3]
	return ok, nil
}

func (s *fakeStore) Upsert(_ context.Context, rec *models.DocumentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.upsertConflicts) > 0 {
		conflict := s.upsertConflicts[0]
		s.upsertConflicts = s.upsertConflicts[1:]
		return conflict
	}
	for _, other := range s.records {
		if other.V3 != rec.V3 && other.V2 == rec.V2 && rec.V2 != "" {
			return &domain.NotUniqueError{Field: "v2"}
		}
	}

	now := time.Now()
	if existing, ok := s.records[rec.V3]; ok {
		rec.Created = existing.Created
	} else {
		rec.Created = now
	}
	rec.Updated = now
	s.records[rec.V3] = rec
	return nil
}

func matchesCriteria(c *repositories.Criteria, rec *models.DocumentRecord) bool {
	scalars := map[string]string{
		"v2":           rec.V2,
		"pub_year":     rec.PubYear,
		"collab":       rec.Collab,
		"surnames":     rec.Surnames,
		"volume":       rec.Volume,
		"number":       rec.Number,
		"suppl":        rec.Suppl,
		"elocation_id": rec.ElocationID,
		"fpage":        rec.FPage,
		"fpage_seq":    rec.FPageSeq,
		"lpage":        rec.LPage,
		"partial_body": rec.PartialBody,
	}
	for _, s := range c.Scalars {
		if scalars[s.Field] != s.Value {
			return false
		}
	}
	for _, g := range c.Groups {
		var have []string
		switch g.Field {
		case "issns":
			for _, i := range rec.ISSNs {
				have = append(have, i.Value)
			}
		case "doi_with_lang":
			for _, d := range rec.DOIWithLang {
				have = append(have, d.Value)
			}
		case "article_titles":
			for _, t := range rec.Titles {
				have = append(have, t.Text)
			}
		}
		if !anyOverlap(g.Values, have) {
			return false
		}
	}
	return true
}

func anyOverlap(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}

// fakeRequestLog records audit rows in memory.
type fakeRequestLog struct {
	mu       sync.Mutex
	logged   []*models.Request
	updated  []*models.Request
	logErr   error
	updATErr error
}

func (l *fakeRequestLog) LogRequest(_ context.Context, req *models.Request) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logErr != nil {
		return l.logErr
	}
	l.logged = append(l.logged, req)
	return nil
}

func (l *fakeRequestLog) UpdateRequest(_ context.Context, req *models.Request) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.updATErr != nil {
		return l.updATErr
	}
	l.updated = append(l.updated, req)
	return nil
}
