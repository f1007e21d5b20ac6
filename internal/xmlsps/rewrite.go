package xmlsps

import (
	"fmt"
	"regexp"
	"strings"

	"scielocore/internal/domain"
)

var (
	idElementRx = regexp.MustCompile(
		`(?s)[ \t]*<article-id[^>]*specific-use="(?:scielo-v3|scielo-v2|previous-pid)"[^>]*>.*?</article-id>\n?`)
	articleMetaRx = regexp.MustCompile(`<article-meta[^>]*>`)
)

// RewriteIDs returns content with the three SciELO identifier elements
// replaced. Existing scielo-v3, scielo-v2 and previous-pid article-id
// elements are removed from the main article-meta and fresh ones
// inserted right after its opening tag. Identifier elements in
// sub-article front-stubs and everything else, prolog included, are
// preserved byte for byte.
func RewriteIDs(content, v3, v2, aopPid string) (string, error) {
	open := articleMetaRx.FindStringIndex(content)
	if open == nil {
		return "", fmt.Errorf("%w: no article-meta element", domain.ErrInvalidXML)
	}
	end := strings.Index(content[open[1]:], "</article-meta>")
	if end < 0 {
		return "", fmt.Errorf("%w: unterminated article-meta element", domain.ErrInvalidXML)
	}
	metaEnd := open[1] + end

	meta := idElementRx.ReplaceAllString(content[open[1]:metaEnd], "")

	var b strings.Builder
	b.WriteString(content[:open[1]])
	b.WriteString("\n")
	writeIDElement(&b, "scielo-v3", v3)
	writeIDElement(&b, "scielo-v2", v2)
	if aopPid != "" {
		writeIDElement(&b, "previous-pid", aopPid)
	}
	b.WriteString(strings.TrimLeft(meta, "\n"))
	b.WriteString(content[metaEnd:])
	return b.String(), nil
}

func writeIDElement(b *strings.Builder, specificUse, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b,
		`<article-id pub-id-type="publisher-id" specific-use=%q>%s</article-id>`+"\n",
		specificUse, value)
}
