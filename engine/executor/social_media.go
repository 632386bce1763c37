package executor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"

	"adworkflow/engine"
)

// SocialMediaExecutor fetches a listing/trend page, extracts post titles
// and snippets via a caller-supplied CSS selector, and sanitizes the
// resulting HTML fragments before returning them as plain-text entries
// (generalized from the original's Reddit-listing scraper: any HTML
// source, not a specific platform's API).
type SocialMediaExecutor struct {
	Client *http.Client
	Cache  *redis.Client
	TTL    time.Duration
	policy *bluemonday.Policy
}

// NewSocialMediaExecutor builds an executor with sane defaults. cache may
// be nil, in which case every call fetches fresh.
func NewSocialMediaExecutor(cache *redis.Client) *SocialMediaExecutor {
	return &SocialMediaExecutor{
		Client: &http.Client{Timeout: 15 * time.Second},
		Cache:  cache,
		TTL:    5 * time.Minute,
		policy: bluemonday.StrictPolicy(),
	}
}

func (s *SocialMediaExecutor) Execute(ctx context.Context, _ map[string]engine.Values, config engine.Values, _ engine.ExecContext) (engine.Values, error) {
	url, _ := config["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("social_media node requires config[url]")
	}
	selector, _ := config["selector"].(string)
	if selector == "" {
		selector = "article, .post, li"
	}
	limit := 10
	if n, ok := config["limit"].(int); ok {
		limit = n
	} else if n, ok := config["limit"].(float64); ok {
		limit = int(n)
	}

	body, err := s.fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var posts []any
	doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(posts) >= limit {
			return false
		}
		html, err := sel.Html()
		if err != nil {
			return true
		}
		clean := strings.TrimSpace(s.policy.Sanitize(html))
		if clean != "" {
			posts = append(posts, clean)
		}
		return true
	})

	return engine.Values{"posts": posts}, nil
}

// ValidateConfig reports whether config carries the required "url" key.
func (*SocialMediaExecutor) ValidateConfig(config engine.Values) bool {
	_, ok := config["url"]
	return ok
}

func (s *SocialMediaExecutor) fetch(ctx context.Context, url string) (string, error) {
	if s.Cache != nil {
		if cached, err := s.Cache.Get(ctx, cacheKey(url)).Result(); err == nil {
			return cached, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "adworkflow-fetcher/1.0")

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	body := string(raw)

	if s.Cache != nil {
		// Best-effort: a cache write failure shouldn't fail the fetch.
		s.Cache.Set(ctx, cacheKey(url), body, s.TTL)
	}
	return body, nil
}

func cacheKey(url string) string {
	return "adworkflow:social_media:" + url
}
