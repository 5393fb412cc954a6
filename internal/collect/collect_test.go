package collect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/reviewtrends/internal/database"
)

const feedTemplate = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns:im="http://itunes.apple.com/rss" xmlns="http://www.w3.org/2005/Atom" xml:lang="en">
  <id>https://example.test/us/rss/customerreviews/id=123/xml</id>
  <title>iTunes Store: Customer Reviews</title>
  <updated>2026-07-02T10:00:00-07:00</updated>
  %s
</feed>`

const entryTemplate = `<entry>
    <updated>%s</updated>
    <id>%s</id>
    <title>%s</title>
    <content type="text">%s</content>
    <im:voteSum>2</im:voteSum>
    <im:rating>%d</im:rating>
    <im:version>5.1.0</im:version>
    <author><name>%s</name><uri>https://example.test/user</uri></author>
  </entry>`

func entry(id, updated, title, body string, rating int) string {
	return fmt.Sprintf(entryTemplate, updated, id, title, body, rating, "user-"+id)
}

func TestAppStoreFeedPage(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/atom+xml")
		// The app itself appears as an entry without a rating.
		app := `<entry><updated>2026-07-02T10:00:00-07:00</updated><id>app</id><title>Foodie</title></entry>`
		fmt.Fprintf(w, feedTemplate, app+
			entry("r1", "2026-07-02T09:00:00-07:00", "Late", "Order came &amp; went cold", 2)+
			entry("r2", "2026-07-01T23:30:00-07:00", "Love it", "Love it. Works great", 5))
	}))
	defer srv.Close()

	feed := NewAppStoreFeed(srv.URL, "GB", time.Second)
	reviews, err := feed.Page(context.Background(), "123", 1)
	require.NoError(t, err)

	assert.Equal(t, "/gb/rss/customerreviews/page=1/id=123/sortby=mostrecent/xml", gotPath)
	require.Len(t, reviews, 2)

	r := reviews[0]
	assert.Equal(t, "r1", r.ID)
	assert.Equal(t, 2, r.Rating)
	assert.Equal(t, "user-r1", r.Author)
	assert.Equal(t, "Late. Order came & went cold", r.Content)
	assert.Equal(t, 2, r.HelpfulCount)
	require.NotNil(t, r.AppVersion)
	assert.Equal(t, "5.1.0", *r.AppVersion)
	assert.Equal(t, time.UTC, r.At.Location())
	assert.Equal(t, "2026-07-02T16:00:00Z", r.At.Format(time.RFC3339))

	assert.Equal(t, "Love it. Works great", reviews[1].Content, "title already leads the body")
	assert.Equal(t, "2026-07-02", reviews[1].At.Format("2006-01-02"), "dates are UTC")
}

func TestAppStoreFeedHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewAppStoreFeed(srv.URL, "us", time.Second).Page(context.Background(), "123", 1)
	assert.Error(t, err)
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "Hello world & more", stripHTML("<p>Hello <b>world</b></p> &amp; more"))
	assert.Equal(t, "Café crashes… again", stripHTML("Caf&eacute; crashes&hellip;&nbsp; again"))
	assert.Equal(t, "I <3 this app", stripHTML("I <3 this app"))
	assert.Equal(t, "", stripHTML("<br/>"))
}

type pagedSource struct {
	pages    [][]database.Review
	failures map[int]int
	calls    map[int]int
}

func (s *pagedSource) Page(_ context.Context, _ string, page int) ([]database.Review, error) {
	if s.calls == nil {
		s.calls = map[int]int{}
	}
	s.calls[page]++
	if s.failures[page] > 0 {
		s.failures[page]--
		return nil, errors.New("transport down")
	}
	if page > len(s.pages) {
		return nil, nil
	}
	return s.pages[page-1], nil
}

func rv(id, at string) database.Review {
	t, err := time.Parse(time.RFC3339, at)
	if err != nil {
		panic(err)
	}
	return database.Review{ID: id, At: t}
}

func day(s string) time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return d
}

func ids(rs []database.Review) string {
	var parts []string
	for _, r := range rs {
		parts = append(parts, r.ID)
	}
	return strings.Join(parts, ",")
}

func fastOpts() FetcherOptions {
	return FetcherOptions{MaxPages: 10, Retries: 3, RetryDelay: time.Millisecond}
}

func TestFetchKeepsWindowAndStopsAtCutoff(t *testing.T) {
	src := &pagedSource{pages: [][]database.Review{
		{
			rv("future", "2026-07-03T01:00:00Z"),
			rv("ref", "2026-07-02T23:00:00Z"),
			rv("mid", "2026-07-01T12:00:00Z"),
		},
		{
			rv("cut", "2026-06-30T00:00:01Z"),
			rv("old", "2026-06-29T23:59:59Z"),
			rv("older", "2026-06-28T00:00:00Z"),
		},
		{rv("never", "2026-06-01T00:00:00Z")},
	}}

	f := NewPagedFetcher(src, fastOpts())
	got, err := f.Fetch(context.Background(), "app", day("2026-07-02"), day("2026-06-30"))
	require.NoError(t, err)
	assert.Equal(t, "ref,mid,cut", ids(got))
	assert.Zero(t, src.calls[3], "walk stops once the cutoff is passed")
}

func TestFetchStopsOnEmptyPage(t *testing.T) {
	src := &pagedSource{pages: [][]database.Review{
		{rv("a", "2026-07-01T00:00:00Z")},
	}}
	got, err := NewPagedFetcher(src, fastOpts()).Fetch(context.Background(), "app", day("2026-07-02"), day("2026-01-01"))
	require.NoError(t, err)
	assert.Equal(t, "a", ids(got))
	assert.Equal(t, 1, src.calls[2])
	assert.Zero(t, src.calls[3])
}

func TestFetchRetriesTransientFailure(t *testing.T) {
	src := &pagedSource{
		pages:    [][]database.Review{{rv("a", "2026-07-01T00:00:00Z")}},
		failures: map[int]int{1: 2},
	}
	got, err := NewPagedFetcher(src, fastOpts()).Fetch(context.Background(), "app", day("2026-07-02"), day("2026-07-01"))
	require.NoError(t, err)
	assert.Equal(t, "a", ids(got))
	assert.Equal(t, 3, src.calls[1])
}

func TestFetchKeepsPartialOnExhaustion(t *testing.T) {
	src := &pagedSource{
		pages: [][]database.Review{
			{rv("a", "2026-07-02T00:00:00Z")},
			{rv("b", "2026-07-01T00:00:00Z")},
		},
		failures: map[int]int{2: 5},
	}
	got, err := NewPagedFetcher(src, fastOpts()).Fetch(context.Background(), "app", day("2026-07-02"), day("2026-06-01"))
	require.NoError(t, err)
	assert.Equal(t, "a", ids(got))
	assert.Equal(t, 3, src.calls[2])
}

func TestFetchFailsWhenNothingFetched(t *testing.T) {
	src := &pagedSource{failures: map[int]int{1: 5}}
	_, err := NewPagedFetcher(src, fastOpts()).Fetch(context.Background(), "app", day("2026-07-02"), day("2026-06-01"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport down")
}

func TestListingTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/us/app/id123", r.URL.Path)
		fmt.Fprint(w, `<html><head><title>Foodie on the App Store</title></head><body>
<article><h1>Foodie</h1>
<p>Order food from hundreds of local restaurants and get it delivered to your door in minutes.
Track your order in real time, save your favourite dishes and pay securely in the app.</p>
<p>Foodie works with independent kitchens and national chains alike, so there is always
something new to try. Rate your meals to get better recommendations every week.</p>
</article></body></html>`)
	}))
	defer srv.Close()

	title, err := NewListingClient(srv.URL, "US", time.Second).Title(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, "Foodie", title)
}

func TestListingTitleHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewListingClient(srv.URL, "us", time.Second).Title(context.Background(), "123")
	assert.Error(t, err)
}
