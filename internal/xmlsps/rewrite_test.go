package xmlsps

import (
	"errors"
	"strings"
	"testing"

	"scielocore/internal/domain"
)

func TestRewriteIDsInsertsFreshElements(t *testing.T) {
	content := `<?xml version="1.0"?>
<article xml:lang="en">
<front>
<article-meta>
<article-id pub-id-type="doi">10.1590/abc</article-id>
<volume>51</volume>
</article-meta>
</front>
</article>`

	out, err := RewriteIDs(content, "v3value", "v2value", "aopvalue")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{
		`specific-use="scielo-v3">v3value</article-id>`,
		`specific-use="scielo-v2">v2value</article-id>`,
		`specific-use="previous-pid">aopvalue</article-id>`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}

	// Everything else survives, prolog included.
	if !strings.HasPrefix(out, `<?xml version="1.0"?>`) {
		t.Error("prolog not preserved")
	}
	if !strings.Contains(out, `<article-id pub-id-type="doi">10.1590/abc</article-id>`) {
		t.Error("doi element not preserved")
	}
	if !strings.Contains(out, "<volume>51</volume>") {
		t.Error("volume not preserved")
	}
}

func TestRewriteIDsReplacesExisting(t *testing.T) {
	content := `<article>
<front>
<article-meta>
<article-id pub-id-type="publisher-id" specific-use="scielo-v3">oldv3</article-id>
<article-id pub-id-type="publisher-id" specific-use="scielo-v2">oldv2</article-id>
</article-meta>
</front>
</article>`

	out, err := RewriteIDs(content, "newv3", "newv2", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if strings.Contains(out, "oldv3") || strings.Contains(out, "oldv2") {
		t.Errorf("old identifiers survived:\n%s", out)
	}
	if !strings.Contains(out, ">newv3</article-id>") || !strings.Contains(out, ">newv2</article-id>") {
		t.Errorf("new identifiers missing:\n%s", out)
	}
	if strings.Contains(out, "previous-pid") {
		t.Error("empty aop pid should not produce an element")
	}
}

func TestRewriteIDsIdempotent(t *testing.T) {
	content := `<article><front><article-meta><volume>1</volume></article-meta></front></article>`

	first, err := RewriteIDs(content, "v3", "v2", "aop")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := RewriteIDs(first, "v3", "v2", "aop")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if strings.Count(second, "scielo-v3") != 1 {
		t.Errorf("duplicate id elements after second rewrite:\n%s", second)
	}
}

func TestRewriteIDsLeavesSubArticleIDs(t *testing.T) {
	content := `<article>
<front>
<article-meta>
<article-id pub-id-type="publisher-id" specific-use="scielo-v3">oldv3</article-id>
<volume>51</volume>
</article-meta>
</front>
<sub-article article-type="translation" xml:lang="es">
<front-stub>
<article-id pub-id-type="publisher-id" specific-use="scielo-v3">subv3</article-id>
</front-stub>
</sub-article>
</article>`

	out, err := RewriteIDs(content, "newv3", "newv2", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if strings.Contains(out, "oldv3") {
		t.Error("main article-meta identifier not replaced")
	}
	if !strings.Contains(out, ">subv3</article-id>") {
		t.Errorf("sub-article identifier was removed:\n%s", out)
	}
	if !strings.Contains(out, ">newv3</article-id>") {
		t.Error("new identifier missing")
	}
}

func TestRewriteIDsNoArticleMeta(t *testing.T) {
	_, err := RewriteIDs("<article><front/></article>", "v3", "v2", "")
	if !errors.Is(err, domain.ErrInvalidXML) {
		t.Errorf("err = %v, want ErrInvalidXML", err)
	}
}
