package collect

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

// DefaultListingBase is the public App Store web listing host.
const DefaultListingBase = "https://apps.apple.com"

// ListingClient resolves an app's display name from its store page.
type ListingClient struct {
	base    string
	country string
	client  *http.Client
}

// NewListingClient creates a ListingClient. An empty base uses DefaultListingBase.
func NewListingClient(base, country string, timeout time.Duration) *ListingClient {
	if base == "" {
		base = DefaultListingBase
	}
	if country == "" {
		country = "us"
	}
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &ListingClient{
		base:    strings.TrimRight(base, "/"),
		country: strings.ToLower(country),
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Title fetches the listing page and returns the app's name.
func (c *ListingClient) Title(ctx context.Context, appID string) (string, error) {
	pageURL := fmt.Sprintf("%s/%s/app/id%s", c.base, c.country, appID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetching listing: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return "", fmt.Errorf("reading listing: %w", err)
	}

	parsedURL, _ := url.Parse(pageURL)
	article, err := readability.FromReader(bytes.NewReader(body), parsedURL)
	if err != nil {
		return "", fmt.Errorf("extracting listing: %w", err)
	}

	title := strings.TrimSpace(article.Title)
	for _, suffix := range []string{" on the App Store", " - App Store"} {
		title = strings.TrimSuffix(title, suffix)
	}
	if title == "" {
		return "", fmt.Errorf("listing for %s has no title", appID)
	}
	return title, nil
}
