// Package collect talks to the app store: it pages through an app's public
// customer-review feed and looks up listing metadata.
package collect

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/TobiSchelling/reviewtrends/internal/database"
)

// DefaultFeedBase is the public App Store RSS endpoint.
const DefaultFeedBase = "https://itunes.apple.com"

const userAgent = "reviewtrends/1.0 (review trend analysis)"

// AppStoreFeed reads the App Store customer-review feed, newest first.
type AppStoreFeed struct {
	base    string
	country string
	parser  *gofeed.Parser
}

// NewAppStoreFeed creates a feed reader for the given storefront country.
// An empty base uses DefaultFeedBase.
func NewAppStoreFeed(base, country string, timeout time.Duration) *AppStoreFeed {
	if base == "" {
		base = DefaultFeedBase
	}
	if country == "" {
		country = "us"
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	parser.Client = &http.Client{Timeout: timeout}
	return &AppStoreFeed{
		base:    strings.TrimRight(base, "/"),
		country: strings.ToLower(country),
		parser:  parser,
	}
}

// PageURL returns the feed URL for a 1-based page.
func (f *AppStoreFeed) PageURL(appID string, page int) string {
	return fmt.Sprintf("%s/%s/rss/customerreviews/page=%d/id=%s/sortby=mostrecent/xml",
		f.base, f.country, page, appID)
}

// Page fetches one page of reviews. An empty result means the feed is exhausted.
func (f *AppStoreFeed) Page(ctx context.Context, appID string, page int) ([]database.Review, error) {
	feed, err := f.parser.ParseURLWithContext(f.PageURL(appID, page), ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing review feed page %d: %w", page, err)
	}

	reviews := make([]database.Review, 0, len(feed.Items))
	for _, item := range feed.Items {
		if r, ok := parseItem(item); ok {
			reviews = append(reviews, r)
		}
	}
	return reviews, nil
}

// parseItem converts a feed entry to a Review. Entries without a rating
// describe the app itself, not a review, and are skipped.
func parseItem(item *gofeed.Item) (database.Review, bool) {
	rating, err := strconv.Atoi(extValue(item.Extensions, "im", "rating"))
	if err != nil || rating < 1 || rating > 5 {
		return database.Review{}, false
	}
	if item.GUID == "" {
		return database.Review{}, false
	}

	var at time.Time
	switch {
	case item.UpdatedParsed != nil:
		at = *item.UpdatedParsed
	case item.PublishedParsed != nil:
		at = *item.PublishedParsed
	default:
		return database.Review{}, false
	}

	r := database.Review{
		ID:     item.GUID,
		Rating: rating,
		At:     at.UTC(),
	}
	if item.Author != nil {
		r.Author = strings.TrimSpace(item.Author.Name)
	}

	text := item.Content
	if text == "" {
		text = item.Description
	}
	r.Content = stripHTML(text)
	if title := strings.TrimSpace(item.Title); title != "" && !strings.HasPrefix(r.Content, title) {
		r.Content = strings.TrimSpace(title + ". " + r.Content)
	}

	if v := extValue(item.Extensions, "im", "version"); v != "" {
		r.AppVersion = &v
	}
	if n, err := strconv.Atoi(extValue(item.Extensions, "im", "voteSum")); err == nil {
		r.HelpfulCount = n
	}
	return r, true
}

func extValue(exts ext.Extensions, prefix, name string) string {
	if exts == nil {
		return ""
	}
	vals := exts[prefix][name]
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0].Value)
}

var textPolicy = bluemonday.StrictPolicy()

// stripHTML drops markup, decodes entities and collapses whitespace.
func stripHTML(text string) string {
	if text == "" {
		return ""
	}
	text = html.UnescapeString(textPolicy.Sanitize(text))
	return strings.Join(strings.Fields(text), " ")
}
