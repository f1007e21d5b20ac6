package idprovider

import (
	"context"
	"errors"
	"fmt"

	"scielocore/internal/domain"
	"scielocore/internal/domain/models"
	"scielocore/internal/domain/repositories"
)

// Resolver answers "is this document already registered?". It probes the
// store up to three times with progressively looser criteria: the
// submitted shape with the submitted v2, the submitted shape alone, and
// the opposite publication shape of the same document (the ahead-of-print
// ancestor of an issue input, or the published issue of an ahead-of-print
// input).
type Resolver struct {
	store repositories.DocumentStore
}

// Probe shapes. probeSubmitted constrains the issue fields to the values
// as submitted. probeAOPAncestor forces them empty to find the
// ahead-of-print ancestor of an issue document. probeIssueSuccessor
// leaves them unconstrained to find the published issue of an
// ahead-of-print input. The latter two drop pub_year, since AOP
// registration may predate the issue's publication year.
const (
	probeSubmitted = iota
	probeAOPAncestor
	probeIssueSuccessor
)

func NewResolver(store repositories.DocumentStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the registered record matching facts, if any. A miss
// is a normal outcome, reported through found, not an error. Documents
// with neither content discriminators nor a partial body cannot be
// deduplicated and fail with domain.ErrNotEnoughDiscriminators.
func (r *Resolver) Resolve(ctx context.Context, facts *models.DocumentFacts) (*models.DocumentRecord, bool, error) {
	if !facts.HasDiscriminators() && facts.PartialBody == "" {
		return nil, false, domain.ErrNotEnoughDiscriminators
	}

	probes := []*repositories.Criteria{}
	if facts.V2 != "" {
		probes = append(probes, buildCriteria(facts, true, probeSubmitted))
	}
	probes = append(probes, buildCriteria(facts, false, probeSubmitted))
	if facts.HasIssuePlacement() {
		probes = append(probes, buildCriteria(facts, false, probeAOPAncestor))
	} else {
		probes = append(probes, buildCriteria(facts, false, probeIssueSuccessor))
	}

	for _, c := range probes {
		matches, err := r.store.FindMatching(ctx, c)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
		}
		if len(matches) == 0 {
			continue
		}
		// Refetch by v3 so the caller sees the freshest stored state,
		// not the possibly stale row the dedup index returned.
		rec, err := r.store.FetchMostRecent(ctx, matches[0].V3)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return matches[0], true, nil
			}
			return nil, false, fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
		}
		return rec, true, nil
	}
	return nil, false, nil
}

// buildCriteria assembles one dedup probe. collab is constrained even
// when empty: a collab-less input must not match a collab-authored
// record.
func buildCriteria(facts *models.DocumentFacts, withV2 bool, mode int) *repositories.Criteria {
	c := &repositories.Criteria{}

	switch mode {
	case probeAOPAncestor:
		c.Equal("volume", "")
		c.Equal("number", "")
		c.Equal("suppl", "")
		c.Equal("elocation_id", "")
		c.Equal("fpage", "")
		c.Equal("fpage_seq", "")
		c.Equal("lpage", "")
	case probeIssueSuccessor:
		// No issue field constraints.
	default:
		c.Equal("pub_year", facts.PubYear)
		c.Equal("volume", facts.Volume)
		c.Equal("number", facts.Number)
		c.Equal("suppl", facts.Suppl)
		c.Equal("elocation_id", facts.ElocationID)
		c.Equal("fpage", facts.FPage)
		c.Equal("fpage_seq", facts.FPageSeq)
		c.Equal("lpage", facts.LPage)
	}
	if withV2 {
		c.Equal("v2", facts.V2)
	}

	c.AnyOf("issns", "value", issnValues(facts.ISSNs))

	if facts.HasDiscriminators() {
		c.AnyOf("doi_with_lang", "value", doiValues(facts.DOIWithLang))
		if s := facts.Surnames(); s != "" {
			c.Equal("surnames", s)
		}
		c.Equal("collab", facts.Collab)
		c.AnyOf("article_titles", "text", titleTexts(facts.Titles))
	} else {
		c.Equal("partial_body", facts.PartialBody)
	}
	return c
}

func issnValues(issns []models.ISSN) []string {
	values := make([]string, 0, len(issns))
	for _, i := range issns {
		if i.Value != "" {
			values = append(values, i.Value)
		}
	}
	return values
}

func doiValues(dois []models.DOIWithLang) []string {
	values := make([]string, 0, len(dois))
	for _, d := range dois {
		if d.Value != "" {
			values = append(values, d.Value)
		}
	}
	return values
}

func titleTexts(titles []models.TextAndLang) []string {
	texts := make([]string, 0, len(titles))
	for _, t := range titles {
		if t.Text != "" {
			texts = append(texts, t.Text)
		}
	}
	return texts
}
