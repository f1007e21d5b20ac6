package idprovider

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"

	"scielocore/internal/domain"
	"scielocore/internal/domain/models"
	"scielocore/internal/xmlsps"
)

func testPipeline(store *fakeStore, requests *fakeRequestLog) *Pipeline {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := NewPipeline(store, requests, logger)
	p.allocator = testAllocator(store)
	return p
}

const pipelineXMLTemplate = `<?xml version="1.0"?>
<article xml:lang="en">
<front>
<journal-meta><issn pub-type="epub">1234-9876</issn></journal-meta>
<article-meta>
IDS<title-group><article-title>THIS IS AN ARTICLE</article-title></title-group>
<contrib-group>
<contrib contrib-type="author"><name><surname>SILVA</surname><given-names>AM</given-names></name></contrib>
</contrib-group>
<pub-date date-type="pub"><year>2022</year></pub-date>
VOLUME</article-meta>
</front>
<body><p>Texto completo.</p></body>
</article>`

func buildXML(ids, volume string) string {
	out := strings.Replace(pipelineXMLTemplate, "IDS", ids, 1)
	return strings.Replace(out, "VOLUME", volume, 1)
}

func submitFacts(t *testing.T, xml string) *models.DocumentFacts {
	t.Helper()
	facts, err := xmlsps.ExtractFacts(xml)
	if err != nil {
		t.Fatalf("extract facts: %v", err)
	}
	return facts
}

var (
	v2Rx = regexp.MustCompile(`specific-use="scielo-v2">(S\d{8}2022\d{9})<`)
	v3Rx = regexp.MustCompile(`specific-use="scielo-v3">([^<]{23})<`)
)

func TestRequestIDFirstRegistration(t *testing.T) {
	store := newFakeStore()
	requests := &fakeRequestLog{}
	p := testPipeline(store, requests)

	res, err := p.RequestID(context.Background(), "tester", submitFacts(t, buildXML("", "")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !res.Created || !res.Changed {
		t.Errorf("created = %v, changed = %v", res.Created, res.Changed)
	}
	if len(res.V3) != 23 {
		t.Errorf("v3 = %q", res.V3)
	}
	if !regexp.MustCompile(`^S\d{8}2022\d{9}$`).MatchString(res.V2) {
		t.Errorf("v2 = %q", res.V2)
	}
	if !v2Rx.MatchString(res.XML) || !v3Rx.MatchString(res.XML) {
		t.Errorf("identifiers missing from rewritten xml:\n%s", res.XML)
	}

	rec, err := store.FetchMostRecent(context.Background(), res.V3)
	if err != nil {
		t.Fatalf("record not stored: %v", err)
	}
	if rec.V2 != res.V2 {
		t.Errorf("stored v2 = %q", rec.V2)
	}

	if len(requests.logged) != 1 || len(requests.updated) != 1 {
		t.Fatalf("audit rows: logged=%d updated=%d", len(requests.logged), len(requests.updated))
	}
	if requests.updated[0].Status != models.RequestStatusCompleted {
		t.Errorf("audit status = %q", requests.updated[0].Status)
	}
}

func TestRequestIDIdempotence(t *testing.T) {
	store := newFakeStore()
	p := testPipeline(store, &fakeRequestLog{})
	ctx := context.Background()

	first, err := p.RequestID(ctx, "tester", submitFacts(t, buildXML("", "")))
	if err != nil {
		t.Fatal(err)
	}

	// Resubmit the rewritten output: nothing may change and no second
	// record may appear.
	second, err := p.RequestID(ctx, "tester", submitFacts(t, first.XML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Changed || second.Created {
		t.Errorf("changed = %v, created = %v", second.Changed, second.Created)
	}
	if second.V3 != first.V3 || second.V2 != first.V2 {
		t.Errorf("identifiers drifted: %q/%q vs %q/%q", second.V3, second.V2, first.V3, first.V2)
	}
	if len(store.records) != 1 {
		t.Errorf("records = %d", len(store.records))
	}
}

func TestRequestIDKeepsFreeSubmittedIDs(t *testing.T) {
	store := newFakeStore()
	p := testPipeline(store, &fakeRequestLog{})

	submittedV3 := strings.Repeat("1", 23)
	ids := `<article-id pub-id-type="publisher-id" specific-use="scielo-v3">` + submittedV3 + `</article-id>
<article-id pub-id-type="publisher-id" specific-use="scielo-v2">S1234987620227777777</article-id>
`
	res, err := p.RequestID(context.Background(), "tester", submitFacts(t, buildXML(ids, "")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !res.Created {
		t.Error("a new record should have been created")
	}
	if res.Changed {
		t.Error("free submitted identifiers must be kept unchanged")
	}
	if res.V3 != submittedV3 || res.V2 != "S1234987620227777777" {
		t.Errorf("ids = %q/%q", res.V3, res.V2)
	}
	if _, err := store.FetchMostRecent(context.Background(), submittedV3); err != nil {
		t.Errorf("record not stored under the submitted v3: %v", err)
	}
}

func TestRequestIDRegisteredV2Wins(t *testing.T) {
	store := newFakeStore()
	p := testPipeline(store, &fakeRequestLog{})
	ctx := context.Background()

	first, err := p.RequestID(ctx, "tester", submitFacts(t, buildXML("", "")))
	if err != nil {
		t.Fatal(err)
	}

	// Same document resubmitted with a bogus v2.
	ids := `<article-id pub-id-type="publisher-id" specific-use="scielo-v2">xxxxxxxxx</article-id>
`
	res, err := p.RequestID(ctx, "tester", submitFacts(t, buildXML(ids, "")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.V2 != first.V2 {
		t.Errorf("v2 = %q, want registered %q", res.V2, first.V2)
	}
	if !res.Changed {
		t.Error("xml should have been rewritten with the registered v2")
	}
	if strings.Contains(res.XML, "XXXXXXXXX") {
		t.Error("bogus v2 survived in the output")
	}
}

func TestRequestIDV3Stability(t *testing.T) {
	store := newFakeStore()
	p := testPipeline(store, &fakeRequestLog{})
	ctx := context.Background()

	first, err := p.RequestID(ctx, "tester", submitFacts(t, buildXML("", "")))
	if err != nil {
		t.Fatal(err)
	}

	// A different submitted v3 cannot displace the registered one.
	ids := `<article-id pub-id-type="publisher-id" specific-use="scielo-v3">aaaaaaaaaaaaaaaaaaaaaaa</article-id>
`
	res, err := p.RequestID(ctx, "tester", submitFacts(t, buildXML(ids, "")))
	if err != nil {
		t.Fatal(err)
	}
	if res.V3 != first.V3 {
		t.Errorf("v3 = %q, want %q", res.V3, first.V3)
	}
}

func TestRequestIDAOPTransition(t *testing.T) {
	store := newFakeStore()
	p := testPipeline(store, &fakeRequestLog{})
	ctx := context.Background()

	// Register the ahead-of-print version.
	aop, err := p.RequestID(ctx, "tester", submitFacts(t, buildXML("", "")))
	if err != nil {
		t.Fatal(err)
	}

	// The issue version arrives with a volume and no identifiers.
	res, err := p.RequestID(ctx, "tester", submitFacts(t, buildXML("", "<volume>44</volume>")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.V3 != aop.V3 {
		t.Errorf("v3 = %q, want registered %q", res.V3, aop.V3)
	}
	if res.AopPid != aop.V2 {
		t.Errorf("aop_pid = %q, want the registered v2 %q", res.AopPid, aop.V2)
	}
	if res.V2 == aop.V2 || res.V2 == "" {
		t.Errorf("expected a fresh v2, got %q", res.V2)
	}
	if !strings.Contains(res.XML, `specific-use="previous-pid">`+aop.V2) {
		t.Error("previous-pid element missing from output")
	}
}

func TestRequestIDAOPInputRejected(t *testing.T) {
	store := newFakeStore()
	p := testPipeline(store, &fakeRequestLog{})
	ctx := context.Background()

	if _, err := p.RequestID(ctx, "tester", submitFacts(t, buildXML("", "<volume>44</volume>"))); err != nil {
		t.Fatal(err)
	}

	// Resubmitting without issue placement must be refused.
	_, err := p.RequestID(ctx, "tester", submitFacts(t, buildXML("", "")))
	if !errors.Is(err, domain.ErrNotAllowedAOPInput) {
		t.Errorf("err = %v, want ErrNotAllowedAOPInput", err)
	}
}

func TestRequestIDValidation(t *testing.T) {
	p := testPipeline(newFakeStore(), &fakeRequestLog{})

	facts := (&models.DocumentFacts{
		Titles: []models.TextAndLang{{Lang: "en", Text: "t"}},
		XML:    "<article/>",
	}).Normalize()

	_, err := p.RequestID(context.Background(), "tester", facts)
	if err == nil {
		t.Fatal("expected validation error")
	}
	var badReq *domain.BadRequestError
	if !errors.As(err, &badReq) {
		t.Errorf("err = %v, want BadRequestError", err)
	}
}

func TestRequestIDDiscriminatorFloor(t *testing.T) {
	p := testPipeline(newFakeStore(), &fakeRequestLog{})

	facts := (&models.DocumentFacts{
		ISSNs:   []models.ISSN{{Type: models.ISSNTypeEPub, Value: "1234-9876"}},
		PubYear: "2022",
		XML:     "<article><front><article-meta/></front></article>",
	}).Normalize()

	_, err := p.RequestID(context.Background(), "tester", facts)
	if !errors.Is(err, domain.ErrNotEnoughDiscriminators) {
		t.Errorf("err = %v, want ErrNotEnoughDiscriminators", err)
	}
}

func TestRequestIDRetriesOnConflict(t *testing.T) {
	store := newFakeStore()
	store.upsertConflicts = []*domain.NotUniqueError{{Field: "v2"}}
	p := testPipeline(store, &fakeRequestLog{})

	res, err := p.RequestID(context.Background(), "tester", submitFacts(t, buildXML("", "")))
	if err != nil {
		t.Fatalf("one conflict should be retried away: %v", err)
	}
	if len(store.records) != 1 {
		t.Errorf("records = %d", len(store.records))
	}
	if !res.Changed {
		t.Error("reallocation must mark the result changed")
	}
}

func TestRequestIDSavingError(t *testing.T) {
	store := newFakeStore()
	store.upsertConflicts = []*domain.NotUniqueError{
		{Field: "v3"}, {Field: "v3"}, {Field: "v3"}, {Field: "v3"}, {Field: "v3"},
	}
	requests := &fakeRequestLog{}
	p := testPipeline(store, requests)

	_, err := p.RequestID(context.Background(), "tester", submitFacts(t, buildXML("", "")))
	if !errors.Is(err, domain.ErrSavingError) {
		t.Errorf("err = %v, want ErrSavingError", err)
	}
	if len(requests.updated) != 1 || requests.updated[0].Status != models.RequestStatusFailed {
		t.Errorf("audit rows = %+v", requests.updated)
	}
}

func TestRequestIDAuditFailureIsNonFatal(t *testing.T) {
	store := newFakeStore()
	requests := &fakeRequestLog{logErr: errors.New("audit db down")}
	p := testPipeline(store, requests)

	res, err := p.RequestID(context.Background(), "tester", submitFacts(t, buildXML("", "")))
	if err != nil {
		t.Fatalf("audit failure must not fail the call: %v", err)
	}
	if !res.Created {
		t.Error("record should still have been created")
	}
}
