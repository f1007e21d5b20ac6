package models

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"scielocore/internal/domain"
)

func TestStandardizePartialBody(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "collapses whitespace and uppercases",
			input:    "  the   quick\n\tbrown  fox ",
			expected: "THE QUICK BROWN FOX",
		},
		{
			name:     "empty body stays empty",
			input:    "",
			expected: "",
		},
		{
			name:     "truncates at the limit",
			input:    strings.Repeat("a", PartialBodyLimit+100),
			expected: strings.Repeat("A", PartialBodyLimit),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StandardizePartialBody(tt.input)
			if got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestStandardizePartialBodyTruncatesOnRunes(t *testing.T) {
	got := StandardizePartialBody(strings.Repeat("ã", PartialBodyLimit+37))

	if !utf8.ValidString(got) {
		t.Error("truncation split a multi-byte rune")
	}
	if n := utf8.RuneCountInString(got); n != PartialBodyLimit {
		t.Errorf("runes = %d, want %d", n, PartialBodyLimit)
	}
	if got != strings.Repeat("Ã", PartialBodyLimit) {
		t.Error("truncated excerpt differs from the expected prefix")
	}
}

func TestDocumentFactsNormalize(t *testing.T) {
	f := &DocumentFacts{
		V2:     " s0101-0202(20)0123 ",
		AopPid: "aop123",
		ISSNs:  []ISSN{{Type: ISSNTypeEPub, Value: "0101-0202x"}},
		Authors: []Author{
			{Surname: "Silva", GivenNames: "Ana"},
		},
		DOIWithLang: []DOIWithLang{{Lang: "en", Value: "10.1/abc"}},
		Titles:      []TextAndLang{{Lang: "en", Text: "A title"}},
		Volume:      " 4 ",
		PartialBody: "some  body",
	}
	f.Normalize()

	if f.V2 != "S0101-0202(20)0123" {
		t.Errorf("v2 = %q", f.V2)
	}
	if f.AopPid != "AOP123" {
		t.Errorf("aop_pid = %q", f.AopPid)
	}
	if f.ISSNs[0].Value != "0101-0202X" {
		t.Errorf("issn = %q", f.ISSNs[0].Value)
	}
	if f.Authors[0].Surname != "SILVA" {
		t.Errorf("surname = %q", f.Authors[0].Surname)
	}
	if f.DOIWithLang[0].Value != "10.1/ABC" {
		t.Errorf("doi = %q", f.DOIWithLang[0].Value)
	}
	if f.Titles[0].Text != "A TITLE" {
		t.Errorf("title = %q", f.Titles[0].Text)
	}
	if f.Volume != "4" {
		t.Errorf("volume = %q", f.Volume)
	}
	if f.PartialBody != "SOME BODY" {
		t.Errorf("partial_body = %q", f.PartialBody)
	}
}

func TestDocumentFactsValidate(t *testing.T) {
	tests := []struct {
		name    string
		facts   DocumentFacts
		wantErr bool
	}{
		{
			name: "valid",
			facts: DocumentFacts{
				ISSNs:   []ISSN{{Type: ISSNTypeEPub, Value: "0101-0202"}},
				PubYear: "2021",
			},
		},
		{
			name:    "missing issns",
			facts:   DocumentFacts{PubYear: "2021"},
			wantErr: true,
		},
		{
			name: "missing pub_year",
			facts: DocumentFacts{
				ISSNs: []ISSN{{Type: ISSNTypeEPub, Value: "0101-0202"}},
			},
			wantErr: true,
		},
		{
			name: "bad pub_year",
			facts: DocumentFacts{
				ISSNs:   []ISSN{{Type: ISSNTypeEPub, Value: "0101-0202"}},
				PubYear: "21",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.facts.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}

func TestSurnamesJoinDropsBlanks(t *testing.T) {
	f := &DocumentFacts{
		Authors: []Author{
			{Surname: "SILVA"},
			{Surname: "  "},
			{Surname: "SANTOS"},
		},
	}
	if got := f.Surnames(); got != "SILVA SANTOS" {
		t.Errorf("surnames = %q", got)
	}
}

func TestPickISSN(t *testing.T) {
	tests := []struct {
		name     string
		issns    []ISSN
		expected string
		wantErr  bool
	}{
		{
			name: "epub preferred",
			issns: []ISSN{
				{Type: ISSNTypePPub, Value: "1111-1111"},
				{Type: ISSNTypeEPub, Value: "2222-2222"},
			},
			expected: "2222-2222",
		},
		{
			name:     "ppub fallback",
			issns:    []ISSN{{Type: ISSNTypePPub, Value: "1111-1111"}},
			expected: "1111-1111",
		},
		{
			name:    "no usable issn",
			issns:   []ISSN{{Type: ISSNTypeLinking, Value: "3333-3333"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &DocumentFacts{ISSNs: tt.issns}
			got, err := f.PickISSN()
			if tt.wantErr {
				if !errors.Is(err, domain.ErrCannotAllocateV2) {
					t.Errorf("err = %v, want ErrCannotAllocateV2", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("issn = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestHasIssuePlacement(t *testing.T) {
	aop := &DocumentFacts{}
	if aop.HasIssuePlacement() {
		t.Error("empty issue fields should not count as placed")
	}
	placed := &DocumentFacts{Number: "2"}
	if !placed.HasIssuePlacement() {
		t.Error("number alone should count as placed")
	}
}

func TestHasDiscriminators(t *testing.T) {
	none := &DocumentFacts{PartialBody: "SOMETHING"}
	if none.HasDiscriminators() {
		t.Error("partial body is not a discriminator")
	}
	withCollab := &DocumentFacts{Collab: "GROUP X"}
	if !withCollab.HasDiscriminators() {
		t.Error("collab should count")
	}
}
