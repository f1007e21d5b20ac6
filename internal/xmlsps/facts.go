package xmlsps

import (
	"encoding/xml"
	"fmt"
	"strings"

	"scielocore/internal/domain"
	"scielocore/internal/domain/models"
)

// JATS shapes, limited to the element paths the id provider reads.
type (
	jatsArticle struct {
		XMLName     xml.Name         `xml:"article"`
		Lang        string           `xml:"lang,attr"`
		Front       jatsFront        `xml:"front"`
		Body        jatsBody         `xml:"body"`
		SubArticles []jatsSubArticle `xml:"sub-article"`
	}

	jatsFront struct {
		JournalMeta jatsJournalMeta `xml:"journal-meta"`
		ArticleMeta jatsArticleMeta `xml:"article-meta"`
	}

	jatsJournalMeta struct {
		ISSNs []jatsISSN `xml:"issn"`
	}

	jatsISSN struct {
		PubType     string `xml:"pub-type,attr"`
		SpecificUse string `xml:"specific-use,attr"`
		Value       string `xml:",chardata"`
	}

	jatsArticleMeta struct {
		ArticleIDs    []jatsArticleID    `xml:"article-id"`
		TitleGroup    jatsTitleGroup     `xml:"title-group"`
		ContribGroups []jatsContribGroup `xml:"contrib-group"`
		PubDates      []jatsPubDate      `xml:"pub-date"`
		Volume        string             `xml:"volume"`
		Issue         string             `xml:"issue"`
		Supplement    string             `xml:"supplement"`
		FPage         jatsFPage          `xml:"fpage"`
		LPage         string             `xml:"lpage"`
		ElocationID   string             `xml:"elocation-id"`
	}

	jatsArticleID struct {
		PubIDType   string `xml:"pub-id-type,attr"`
		SpecificUse string `xml:"specific-use,attr"`
		Value       string `xml:",chardata"`
	}

	jatsTitleGroup struct {
		ArticleTitle     string                `xml:"article-title"`
		TransTitleGroups []jatsTransTitleGroup `xml:"trans-title-group"`
	}

	jatsTransTitleGroup struct {
		Lang       string `xml:"lang,attr"`
		TransTitle string `xml:"trans-title"`
	}

	jatsContribGroup struct {
		Contribs []jatsContrib `xml:"contrib"`
	}

	jatsContrib struct {
		ContribType string          `xml:"contrib-type,attr"`
		Surname     string          `xml:"name>surname"`
		GivenNames  string          `xml:"name>given-names"`
		Prefix      string          `xml:"name>prefix"`
		Suffix      string          `xml:"name>suffix"`
		Collab      string          `xml:"collab"`
		ContribIDs  []jatsContribID `xml:"contrib-id"`
	}

	jatsContribID struct {
		Type  string `xml:"contrib-id-type,attr"`
		Value string `xml:",chardata"`
	}

	jatsPubDate struct {
		PubType  string `xml:"pub-type,attr"`
		DateType string `xml:"date-type,attr"`
		Year     string `xml:"year"`
	}

	jatsFPage struct {
		Seq   string `xml:"seq,attr"`
		Value string `xml:",chardata"`
	}

	jatsBody struct {
		Ps    []string `xml:"p"`
		SecPs []string `xml:"sec>p"`
	}

	jatsSubArticle struct {
		ArticleType string `xml:"article-type,attr"`
		Lang        string `xml:"lang,attr"`
		FrontStub   struct {
			ArticleIDs []jatsArticleID `xml:"article-id"`
		} `xml:"front-stub"`
	}
)

// splitProlog separates any processing instruction and DOCTYPE
// declaration from the document element, located by the closing tag name.
func splitProlog(content string) (prolog, doc string) {
	content = strings.TrimSpace(content)
	p := strings.LastIndex(content, "</")
	if p < 0 {
		return "", content
	}
	endTag := content[p:]
	startTag := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(endTag, "/", ""), ">", ""))
	q := strings.Index(content, startTag)
	if q < 0 {
		return "", content
	}
	return content[:q], strings.TrimSpace(content[q:])
}

func parseArticle(content string) (*jatsArticle, error) {
	_, doc := splitProlog(content)
	var a jatsArticle
	if err := xml.Unmarshal([]byte(doc), &a); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidXML, err)
	}
	return &a, nil
}

// ExtractFacts parses content and builds the normalized DocumentFacts
// the dedup resolver works on. Fails with domain.ErrInvalidXML when the
// document element cannot be parsed.
func ExtractFacts(content string) (*models.DocumentFacts, error) {
	a, err := parseArticle(content)
	if err != nil {
		return nil, err
	}

	facts := &models.DocumentFacts{XML: content}

	for _, id := range a.Front.ArticleMeta.ArticleIDs {
		value := strings.TrimSpace(id.Value)
		if id.PubIDType != "publisher-id" {
			continue
		}
		switch id.SpecificUse {
		case "scielo-v3":
			facts.V3 = value
		case "scielo-v2":
			facts.V2 = value
		case "previous-pid":
			facts.AopPid = value
		}
	}

	for _, issn := range a.Front.JournalMeta.ISSNs {
		value := strings.TrimSpace(issn.Value)
		if value == "" {
			continue
		}
		typ := issn.PubType
		if typ == "" {
			typ = issn.SpecificUse
		}
		facts.ISSNs = append(facts.ISSNs, models.ISSN{Type: typ, Value: value})
	}

	facts.PubYear = pickPubYear(a.Front.ArticleMeta.PubDates)

	// Main DOI carries the article language; translations carry theirs.
	for _, id := range a.Front.ArticleMeta.ArticleIDs {
		if id.PubIDType == "doi" {
			facts.DOIWithLang = append(facts.DOIWithLang, models.DOIWithLang{
				Lang:  a.Lang,
				Value: strings.TrimSpace(id.Value),
			})
			break
		}
	}
	for _, sub := range a.SubArticles {
		if sub.ArticleType != "translation" {
			continue
		}
		for _, id := range sub.FrontStub.ArticleIDs {
			if id.PubIDType == "doi" {
				facts.DOIWithLang = append(facts.DOIWithLang, models.DOIWithLang{
					Lang:  sub.Lang,
					Value: strings.TrimSpace(id.Value),
				})
				break
			}
		}
	}

	for _, group := range a.Front.ArticleMeta.ContribGroups {
		for _, contrib := range group.Contribs {
			if collab := strings.TrimSpace(contrib.Collab); collab != "" && facts.Collab == "" {
				facts.Collab = collab
				continue
			}
			if contrib.ContribType != "" && contrib.ContribType != "author" {
				continue
			}
			surname := strings.TrimSpace(contrib.Surname)
			given := strings.TrimSpace(contrib.GivenNames)
			if surname == "" && given == "" {
				continue
			}
			author := models.Author{
				Surname:    surname,
				GivenNames: given,
				Prefix:     strings.TrimSpace(contrib.Prefix),
				Suffix:     strings.TrimSpace(contrib.Suffix),
			}
			for _, cid := range contrib.ContribIDs {
				if cid.Type == "orcid" {
					author.ORCID = strings.TrimSpace(cid.Value)
				}
			}
			facts.Authors = append(facts.Authors, author)
		}
	}

	if title := strings.TrimSpace(a.Front.ArticleMeta.TitleGroup.ArticleTitle); title != "" {
		facts.Titles = append(facts.Titles, models.TextAndLang{Lang: a.Lang, Text: title})
	}
	for _, tg := range a.Front.ArticleMeta.TitleGroup.TransTitleGroups {
		if title := strings.TrimSpace(tg.TransTitle); title != "" {
			facts.Titles = append(facts.Titles, models.TextAndLang{Lang: tg.Lang, Text: title})
		}
	}

	meta := a.Front.ArticleMeta
	facts.Volume = strings.TrimSpace(meta.Volume)
	facts.Number = strings.TrimSpace(meta.Issue)
	facts.Suppl = strings.TrimSpace(meta.Supplement)
	facts.ElocationID = strings.TrimSpace(meta.ElocationID)
	facts.FPage = strings.TrimSpace(meta.FPage.Value)
	facts.FPageSeq = strings.TrimSpace(meta.FPage.Seq)
	facts.LPage = strings.TrimSpace(meta.LPage)

	facts.PartialBody = firstBodyParagraph(a.Body)

	return facts.Normalize(), nil
}

// ParsePackage reads a package file (ZIP or bare XML) and extracts its
// facts.
func ParsePackage(path string) (*models.DocumentFacts, error) {
	content, err := ReadPackage(path)
	if err != nil {
		return nil, err
	}
	facts, err := ExtractFacts(content)
	if err != nil {
		return nil, err
	}
	facts.ZipPath = path
	return facts, nil
}

func pickPubYear(dates []jatsPubDate) string {
	// Article date first, collection date as fallback.
	for _, d := range dates {
		if d.DateType == "pub" || d.PubType == "epub" {
			if y := strings.TrimSpace(d.Year); y != "" {
				return y
			}
		}
	}
	for _, d := range dates {
		if y := strings.TrimSpace(d.Year); y != "" {
			return y
		}
	}
	return ""
}

func firstBodyParagraph(b jatsBody) string {
	for _, p := range b.Ps {
		if s := strings.TrimSpace(p); s != "" {
			return s
		}
	}
	for _, p := range b.SecPs {
		if s := strings.TrimSpace(p); s != "" {
			return s
		}
	}
	return ""
}
