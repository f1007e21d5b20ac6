package models

import (
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"scielocore/internal/domain"
)

// ISSN types accepted on a document.
const (
	ISSNTypeEPub     = "epub"
	ISSNTypePPub     = "ppub"
	ISSNTypeLinking  = "l"
	ISSNTypeScieloID = "scielo-id"
)

// PartialBodyLimit caps the whitespace-collapsed body excerpt used as a
// fallback discriminator.
const PartialBodyLimit = 500

// ISSN is one journal identifier with its type.
type ISSN struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// DOIWithLang is a DOI scoped to one article language.
type DOIWithLang struct {
	Lang  string `json:"lang"`
	Value string `json:"value"`
}

// Author is one contributor. Surname is stored uppercased.
type Author struct {
	Surname    string `json:"surname"`
	GivenNames string `json:"given_names"`
	Prefix     string `json:"prefix,omitempty"`
	Suffix     string `json:"suffix,omitempty"`
	ORCID      string `json:"orcid,omitempty"`
}

// TextAndLang is an article title in one language.
type TextAndLang struct {
	Lang string `json:"lang"`
	Text string `json:"text"`
}

// DocumentFacts is the normalized, uppercased view of one submitted XML
// package, used by the dedup resolver. Build it with Normalize before
// handing it to the pipeline.
type DocumentFacts struct {
	V2     string
	V3     string
	AopPid string

	ISSNs   []ISSN
	PubYear string

	DOIWithLang []DOIWithLang
	Authors     []Author
	Collab      string
	Titles      []TextAndLang

	Volume      string
	Number      string
	Suppl       string
	ElocationID string
	FPage       string
	FPageSeq    string
	LPage       string

	// PartialBody discriminates documents that carry no other metadata,
	// such as errata.
	PartialBody string

	// XML is the raw serialized package content.
	XML string
	// ZipPath is the container the XML came from, when any.
	ZipPath string

	// Extra is an opaque processing key-value map carried onto the record.
	Extra map[string]string
}

var yearRx = regexp.MustCompile(`^\d{4}$`)

// Normalize uppercases every field the dedup queries compare and
// standardizes the partial body. It mutates the receiver and returns it
// for chaining.
func (f *DocumentFacts) Normalize() *DocumentFacts {
	f.V2 = strings.ToUpper(strings.TrimSpace(f.V2))
	f.V3 = strings.TrimSpace(f.V3)
	f.AopPid = strings.ToUpper(strings.TrimSpace(f.AopPid))
	f.Collab = strings.ToUpper(strings.TrimSpace(f.Collab))
	f.Volume = strings.ToUpper(strings.TrimSpace(f.Volume))
	f.Number = strings.ToUpper(strings.TrimSpace(f.Number))
	f.Suppl = strings.ToUpper(strings.TrimSpace(f.Suppl))
	f.ElocationID = strings.ToUpper(strings.TrimSpace(f.ElocationID))
	f.FPage = strings.ToUpper(strings.TrimSpace(f.FPage))
	f.FPageSeq = strings.ToUpper(strings.TrimSpace(f.FPageSeq))
	f.LPage = strings.ToUpper(strings.TrimSpace(f.LPage))

	for i := range f.ISSNs {
		f.ISSNs[i].Value = strings.ToUpper(f.ISSNs[i].Value)
	}
	for i := range f.DOIWithLang {
		f.DOIWithLang[i].Value = strings.ToUpper(f.DOIWithLang[i].Value)
	}
	for i := range f.Authors {
		f.Authors[i].Surname = strings.ToUpper(f.Authors[i].Surname)
	}
	for i := range f.Titles {
		f.Titles[i].Text = strings.ToUpper(f.Titles[i].Text)
	}

	f.PartialBody = StandardizePartialBody(f.PartialBody)
	return f
}

// StandardizePartialBody collapses whitespace, truncates to
// PartialBodyLimit runes and uppercases a body excerpt.
func StandardizePartialBody(body string) string {
	body = strings.Join(strings.Fields(body), " ")
	if r := []rune(body); len(r) > PartialBodyLimit {
		body = string(r[:PartialBodyLimit])
	}
	return strings.ToUpper(body)
}

// Validate checks the DocumentFacts invariants: issns and pub_year are
// required, and pub_year is a 4-digit string.
func (f *DocumentFacts) Validate() error {
	return validation.ValidateStruct(f,
		validation.Field(&f.ISSNs, validation.Required.Error("issns must not be empty")),
		validation.Field(&f.PubYear,
			validation.Required,
			validation.Match(yearRx).Error("pub_year must be a 4-digit year"),
		),
	)
}

// HasDiscriminators reports whether at least one of doi_with_lang,
// authors, collab or article_titles is present. When all are empty the
// resolver falls back to the partial body.
func (f *DocumentFacts) HasDiscriminators() bool {
	return len(f.DOIWithLang) > 0 || len(f.Authors) > 0 ||
		f.Collab != "" || len(f.Titles) > 0
}

// HasIssuePlacement reports whether the document is placed in an issue.
// Ahead-of-print documents have none of volume, number, suppl.
func (f *DocumentFacts) HasIssuePlacement() bool {
	return f.Volume != "" || f.Number != "" || f.Suppl != ""
}

// Surnames joins the uppercased author surnames with single spaces,
// dropping blank ones, for the dedup surname index.
func (f *DocumentFacts) Surnames() string {
	parts := make([]string, 0, len(f.Authors))
	for _, a := range f.Authors {
		if s := strings.TrimSpace(a.Surname); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// PickISSN selects the ISSN used to mint a v2: epub preferred, ppub as
// fallback.
func (f *DocumentFacts) PickISSN() (string, error) {
	for _, typ := range []string{ISSNTypeEPub, ISSNTypePPub} {
		for _, issn := range f.ISSNs {
			if issn.Type == typ && issn.Value != "" {
				return issn.Value, nil
			}
		}
	}
	return "", domain.ErrCannotAllocateV2
}

// DocumentRecord is the registered form of a document. Identity is the
// v3, which never changes once assigned.
type DocumentRecord struct {
	V3     string
	V2     string
	AopPid string

	ISSNs   []ISSN
	PubYear string

	DOIWithLang []DOIWithLang
	Authors     []Author
	Collab      string
	Titles      []TextAndLang

	// Surnames is derived from Authors on save and queried directly.
	Surnames string

	Volume      string
	Number      string
	Suppl       string
	ElocationID string
	FPage       string
	FPageSeq    string
	LPage       string

	PartialBody string

	XML   string
	Extra map[string]string

	Created time.Time
	Updated time.Time
}

// HasIssuePlacement mirrors DocumentFacts.HasIssuePlacement for stored
// records.
func (r *DocumentRecord) HasIssuePlacement() bool {
	return r.Volume != "" || r.Number != "" || r.Suppl != ""
}

// RecordFromFacts builds the record persisted for a request, carrying
// the reconciled identifiers.
func RecordFromFacts(f *DocumentFacts, v3, v2, aopPid string) *DocumentRecord {
	return &DocumentRecord{
		V3:          v3,
		V2:          v2,
		AopPid:      aopPid,
		ISSNs:       f.ISSNs,
		PubYear:     f.PubYear,
		DOIWithLang: f.DOIWithLang,
		Authors:     f.Authors,
		Collab:      f.Collab,
		Titles:      f.Titles,
		Surnames:    f.Surnames(),
		Volume:      f.Volume,
		Number:      f.Number,
		Suppl:       f.Suppl,
		ElocationID: f.ElocationID,
		FPage:       f.FPage,
		FPageSeq:    f.FPageSeq,
		LPage:       f.LPage,
		PartialBody: f.PartialBody,
		XML:         f.XML,
		Extra:       f.Extra,
	}
}
