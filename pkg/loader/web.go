package loader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/Kaniroj/New-AI-Kanilla/internal/models"
)

type WebConfig struct {
	BaseURL           string
	MaxDepth          int
	RateLimit         float64 // requests per second
	IgnorePatterns    []string
	AllowedExtensions []string
	Timeout           time.Duration
	OnProgress        func(url string)
}

// WebSource crawls transcript pages below a base URL. Plain text and markdown
// responses are taken verbatim; HTML pages contribute their main content.
type WebSource struct {
	config   WebConfig
	client   *http.Client
	limiter  *rate.Limiter
	baseHost string
	logger   *slog.Logger
}

func NewWebSource(config WebConfig) (*WebSource, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxDepth == 0 {
		config.MaxDepth = 2
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".txt", ".md", ".html", ".htm", "/", ""}
	}

	parsedURL, err := url.Parse(config.BaseURL)
	if err != nil || parsedURL.Host == "" {
		return nil, models.ConfigurationError("invalid transcript base URL %q", config.BaseURL)
	}

	return &WebSource{
		config:   config,
		client:   &http.Client{Timeout: config.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		baseHost: parsedURL.Host,
		logger:   slog.Default().With("component", "web-source"),
	}, nil
}

func (s *WebSource) Name() string {
	return "web"
}

func (s *WebSource) Load(ctx context.Context) (models.Corpus, error) {
	c := &crawl{visited: map[string]bool{}, ids: map[string]bool{}}
	if err := s.scrapeRecursive(ctx, s.config.BaseURL, 0, c); err != nil {
		return models.Corpus{}, err
	}
	s.logger.Info("crawled transcripts", "count", len(c.docs), "pages", len(c.visited))
	return models.Corpus{Documents: c.docs}, nil
}

// crawl is the state of one Load call.
type crawl struct {
	visited map[string]bool
	ids     map[string]bool
	docs    []models.TranscriptDocument
}

func (s *WebSource) shouldProcessURL(urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	// Check if URL is from the same host
	if parsedURL.Host != s.baseHost {
		return false
	}

	// Check extensions
	p := strings.ToLower(parsedURL.Path)
	validExt := false
	for _, allowedExt := range s.config.AllowedExtensions {
		if allowedExt == "" {
			validExt = path.Ext(p) == ""
		} else {
			validExt = strings.HasSuffix(p, allowedExt)
		}
		if validExt {
			break
		}
	}
	if !validExt {
		return false
	}

	// Check ignore patterns
	for _, pattern := range s.config.IgnorePatterns {
		if strings.Contains(urlStr, pattern) {
			return false
		}
	}

	return true
}

func (s *WebSource) scrapeRecursive(ctx context.Context, urlStr string, depth int, c *crawl) error {
	if depth > s.config.MaxDepth || c.visited[urlStr] {
		return nil
	}
	if !s.shouldProcessURL(urlStr) {
		return nil
	}

	c.visited[urlStr] = true
	if s.config.OnProgress != nil {
		s.config.OnProgress(urlStr)
	}

	// Apply rate limiting
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return models.UpstreamUnavailable("transcript site unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "text/html" {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		text, err := decodeText(body)
		if err != nil {
			return err
		}
		s.addDocument(c, urlStr, text)
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return err
	}
	if content := extractMainContent(doc); content != "" {
		s.addDocument(c, urlStr, content)
	}

	// Find and follow links
	base, _ := url.Parse(urlStr)
	var links []string
	doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		href, _ := selection.Attr("href")
		ref, err := url.Parse(href)
		if err != nil {
			s.logger.Debug("skipping malformed link", "href", href, "err", err)
			return
		}
		next := base.ResolveReference(ref)
		next.Fragment = ""
		links = append(links, next.String())
	})

	for _, link := range links {
		if err := s.scrapeRecursive(ctx, link, depth+1, c); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("error scraping URL", "url", link, "err", err)
		}
	}
	return nil
}

// addDocument names a page after the last path segment without extension.
func (s *WebSource) addDocument(c *crawl, urlStr, text string) {
	u, _ := url.Parse(urlStr)
	base := path.Base(strings.TrimSuffix(u.Path, "/"))
	id := strings.TrimSuffix(base, path.Ext(base))
	if id == "" || id == "." || id == "/" {
		id = "index"
	}
	if c.ids[id] {
		s.logger.Warn("skipping duplicate transcript", "document_id", id, "url", urlStr)
		return
	}
	c.ids[id] = true
	c.docs = append(c.docs, models.TranscriptDocument{ID: id, Text: text, SourcePath: urlStr})
}

func extractMainContent(doc *goquery.Document) string {
	// Try to find main content area
	selectors := []string{
		"main",
		"article",
		".transcript",
		"#transcript",
		".content",
		"#content",
	}

	var content string
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}

	// Fallback to body if no main content found
	if content == "" {
		content = doc.Find("body").Text()
	}

	return strings.Join(strings.Fields(content), " ")
}
