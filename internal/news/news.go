// Package news finds recent articles about an interest.
package news

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	gocache "github.com/patrickmn/go-cache"
)

type Article struct {
	Title       string
	URL         string
	Description string
	PublishedAt time.Time
}

// Finder returns the newest article for an interest, or nil when there is
// none.
type Finder interface {
	FindLatest(ctx context.Context, interest string) (*Article, error)
}

type RSSFinder struct {
	baseURL string
	parser  *gofeed.Parser
}

var _ Finder = (*RSSFinder)(nil)

// NewRSSFinder queries a Google News style search feed rooted at baseURL.
func NewRSSFinder(baseURL string) *RSSFinder {
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: 20 * time.Second}
	return &RSSFinder{baseURL: baseURL, parser: parser}
}

func (f *RSSFinder) searchURL(interest string) (string, error) {
	u, err := url.Parse(f.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse feed url: %w", err)
	}
	q := u.Query()
	q.Set("q", interest)
	q.Set("hl", "ko")
	q.Set("gl", "KR")
	q.Set("ceid", "KR:ko")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (f *RSSFinder) FindLatest(ctx context.Context, interest string) (*Article, error) {
	if strings.TrimSpace(interest) == "" {
		return nil, nil
	}

	feedURL, err := f.searchURL(interest)
	if err != nil {
		return nil, err
	}

	feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch feed for %q: %w", interest, err)
	}

	var latest *gofeed.Item
	for _, item := range feed.Items {
		if item.Link == "" || item.Title == "" {
			continue
		}
		if latest == nil || newer(item, latest) {
			latest = item
		}
	}
	if latest == nil {
		return nil, nil
	}

	article := &Article{
		Title:       strings.TrimSpace(latest.Title),
		URL:         latest.Link,
		Description: strings.TrimSpace(latest.Description),
	}
	if latest.PublishedParsed != nil {
		article.PublishedAt = *latest.PublishedParsed
	}
	return article, nil
}

// newer treats items without a parsed date as oldest.
func newer(a, b *gofeed.Item) bool {
	if a.PublishedParsed == nil {
		return false
	}
	if b.PublishedParsed == nil {
		return true
	}
	return a.PublishedParsed.After(*b.PublishedParsed)
}

// CachingFinder remembers results per interest so rooms sharing an interest
// within one window get the same article.
type CachingFinder struct {
	next  Finder
	cache *gocache.Cache
}

var _ Finder = (*CachingFinder)(nil)

func NewCachingFinder(next Finder, ttl time.Duration) *CachingFinder {
	return &CachingFinder{next: next, cache: gocache.New(ttl, 2*ttl)}
}

func (c *CachingFinder) FindLatest(ctx context.Context, interest string) (*Article, error) {
	if v, ok := c.cache.Get(interest); ok {
		return v.(*Article), nil
	}

	article, err := c.next.FindLatest(ctx, interest)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(interest, article)
	return article, nil
}
