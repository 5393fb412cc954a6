// Package taxonomy maintains each app's append-only topic registry.
package taxonomy

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/TobiSchelling/reviewtrends/internal/database"
	"github.com/TobiSchelling/reviewtrends/internal/dates"
	"github.com/TobiSchelling/reviewtrends/internal/logging"
)

const maxSlugLen = 30

var (
	slugStrip = regexp.MustCompile(`[^a-z0-9\s]`)
	slugSpace = regexp.MustCompile(`\s+`)
)

// Store loads and grows taxonomies.
type Store struct {
	db  *database.DB
	now func() time.Time
}

// NewStore returns a Store backed by db.
func NewStore(db *database.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Load returns the app's taxonomy, creating it from the seed set on first
// access.
func (s *Store) Load(appID string) (*database.Taxonomy, error) {
	tax, err := s.db.GetTaxonomy(appID)
	if err != nil {
		return nil, fmt.Errorf("loading taxonomy for %s: %w", appID, err)
	}
	if tax != nil {
		return tax, nil
	}

	now := s.now().UTC()
	if _, err := s.db.AppendTopics(appID, Seeds(dates.FormatDate(now)), now); err != nil {
		return nil, fmt.Errorf("seeding taxonomy for %s: %w", appID, err)
	}
	logging.Infof("initialized taxonomy for %s with %d seed topics", appID, len(seedTopics))

	return s.db.GetTaxonomy(appID)
}

// AddTopics appends the candidates whose ids are not yet registered and
// returns the ids that were added. Re-adding a known id is a no-op.
func (s *Store) AddTopics(appID string, candidates []database.TopicDefinition) ([]string, error) {
	if _, err := s.Load(appID); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(candidates))
	var valid []database.TopicDefinition
	for _, c := range candidates {
		if c.TopicID == "" || seen[c.TopicID] {
			continue
		}
		seen[c.TopicID] = true
		valid = append(valid, c)
	}

	added, err := s.db.AppendTopics(appID, valid, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("adding topics for %s: %w", appID, err)
	}
	for _, id := range added {
		logging.Infof("added topic %s to %s taxonomy", id, appID)
	}
	return added, nil
}

// Slugify derives a topic id from a display name.
func Slugify(name string) string {
	s := slugStrip.ReplaceAllString(strings.ToLower(name), "")
	s = slugSpace.ReplaceAllString(strings.TrimSpace(s), "_")
	if len(s) > maxSlugLen {
		s = s[:maxSlugLen]
	}
	return strings.TrimRight(s, "_")
}

// NormalizePhrase is the canonical form used for every phrase lookup.
func NormalizePhrase(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// TitleCase turns a normalized phrase into a display name.
func TitleCase(phrase string) string {
	return cases.Title(language.English).String(phrase)
}

// ValidCategory reports whether c is a known topic category.
func ValidCategory(c string) bool {
	return c == database.CategoryIssue || c == database.CategoryRequest
}
