// Package migration orchestrates the legacy back-migration: pulling XML
// from the configured sources and running it through the id provider.
package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"scielocore/internal/domain/models"
)

// PullSource fetches the XML content of one migration row. Sources are
// tried in order; the first returning non-empty content wins, an error
// hands over to the next.
type PullSource interface {
	Name() string
	Pull(ctx context.Context, m *models.Migration) (string, error)
}

// Fetcher retries timed-out GETs with a doubled timeout. Anything other
// than a deadline fails immediately; slow upstreams get a second chance.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
	retries int
}

func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{
		client:  &http.Client{},
		timeout: timeout,
		retries: 4,
	}
}

func (f *Fetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	timeout := f.timeout
	var lastErr error
	for attempt := 0; attempt < f.retries; attempt++ {
		body, err := f.get(ctx, rawURL, timeout)
		if err == nil {
			return body, nil
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		lastErr = err
		timeout *= 2
	}
	return nil, fmt.Errorf("get %s: %w", rawURL, lastErr)
}

func (f *Fetcher) get(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: status %d", rawURL, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	return body, nil
}

// WebsiteSource pulls from the new website's article API. The article
// record is JSON carrying the v3 as _id and a URL to the serialized XML.
type WebsiteSource struct {
	baseURL string
	fetcher *Fetcher
}

func NewWebsiteSource(baseURL string, fetcher *Fetcher) *WebsiteSource {
	return &WebsiteSource{baseURL: baseURL, fetcher: fetcher}
}

func (s *WebsiteSource) Name() string { return models.SourceNewWebsite }

func (s *WebsiteSource) Pull(ctx context.Context, m *models.Migration) (string, error) {
	u := fmt.Sprintf("%s/%s", s.baseURL, url.PathEscape(m.V2))
	body, err := s.fetcher.Get(ctx, u)
	if err != nil {
		return "", err
	}
	var record struct {
		ID  string `json:"_id"`
		XML string `json:"xml"`
	}
	if err := json.Unmarshal(body, &record); err != nil {
		return "", fmt.Errorf("decode article record for %s: %w", m.V2, err)
	}
	if record.XML == "" {
		return "", fmt.Errorf("article record for %s carries no xml", m.V2)
	}
	xml, err := s.fetcher.Get(ctx, record.XML)
	if err != nil {
		return "", err
	}
	if len(xml) == 0 {
		return "", fmt.Errorf("empty xml for %s", m.V2)
	}
	return string(xml), nil
}

// FilesystemSource reads the row's file path under a configured root.
type FilesystemSource struct {
	root string
}

func NewFilesystemSource(root string) *FilesystemSource {
	return &FilesystemSource{root: root}
}

func (s *FilesystemSource) Name() string { return models.SourceFilesystem }

func (s *FilesystemSource) Pull(_ context.Context, m *models.Migration) (string, error) {
	if m.FilePath == "" {
		return "", fmt.Errorf("no file path for %s", m.V2)
	}
	path := m.FilePath
	if s.root != "" && !filepath.IsAbs(path) {
		path = filepath.Join(s.root, path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if len(content) == 0 {
		return "", fmt.Errorf("empty xml in %s", path)
	}
	return string(content), nil
}

// ArticleMetaSource pulls from the ArticleMeta API in SciELO PS form.
type ArticleMetaSource struct {
	baseURL    string
	collection string
	fetcher    *Fetcher
}

func NewArticleMetaSource(baseURL, collection string, fetcher *Fetcher) *ArticleMetaSource {
	return &ArticleMetaSource{baseURL: baseURL, collection: collection, fetcher: fetcher}
}

func (s *ArticleMetaSource) Name() string { return models.SourceArticleMeta }

func (s *ArticleMetaSource) Pull(ctx context.Context, m *models.Migration) (string, error) {
	q := url.Values{}
	q.Set("collection", s.collection)
	q.Set("code", m.V2)
	q.Set("format", "xmlrsps")
	body, err := s.fetcher.Get(ctx, s.baseURL+"?"+q.Encode())
	if err != nil {
		return "", err
	}
	if len(body) == 0 {
		return "", fmt.Errorf("empty xml for %s", m.V2)
	}
	return string(body), nil
}
