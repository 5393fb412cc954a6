// Package consolidate turns one day's extraction and mapping results into
// topic counts, promotes recurring unmapped phrases into new taxonomy
// topics and emits the day's batches.
package consolidate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/TobiSchelling/reviewtrends/internal/database"
	"github.com/TobiSchelling/reviewtrends/internal/logging"
	"github.com/TobiSchelling/reviewtrends/internal/oracle"
	"github.com/TobiSchelling/reviewtrends/internal/taxonomy"
)

// DefaultMinOccurrences is how often an unmapped phrase must appear in one
// day before it is considered for promotion.
const DefaultMinOccurrences = 5

// TaxonomyStore is the taxonomy access the consolidator needs.
type TaxonomyStore interface {
	Load(appID string) (*database.Taxonomy, error)
	AddTopics(appID string, candidates []database.TopicDefinition) ([]string, error)
}

// BatchStore persists the emitted batches.
type BatchStore interface {
	SaveDailyBatch(b *database.DailyBatch) error
	SaveDetailedBatch(b *database.DetailedBatch) error
}

// Validator is the oracle call used for promotion.
type Validator interface {
	ValidateTopic(ctx context.Context, phrase string, existing []string) (oracle.Validation, error)
}

// Day is one app-day of oracle output.
type Day struct {
	AppID       string
	Date        string
	Reviews     []database.Review
	Extractions []oracle.ExtractionResult
	Mappings    []oracle.TopicMapping
}

// Result holds the emitted batches.
type Result struct {
	Daily    *database.DailyBatch
	Detailed *database.DetailedBatch
}

// Consolidator aggregates and promotes.
type Consolidator struct {
	validator      Validator
	taxonomies     TaxonomyStore
	batches        BatchStore
	minOccurrences int
	threshold      float64
	now            func() time.Time
}

// New creates a Consolidator.
func New(v Validator, tax TaxonomyStore, batches BatchStore, minOccurrences int, threshold float64) *Consolidator {
	if minOccurrences <= 0 {
		minOccurrences = DefaultMinOccurrences
	}
	if threshold <= 0 {
		threshold = oracle.DefaultConfidenceThreshold
	}
	return &Consolidator{
		validator:      v,
		taxonomies:     tax,
		batches:        batches,
		minOccurrences: minOccurrences,
		threshold:      threshold,
		now:            time.Now,
	}
}

type bucket struct {
	reviews []database.AttributedReview
	seen    map[string]bool
}

func (b *bucket) add(r database.AttributedReview) bool {
	if b.seen[r.ID] {
		return false
	}
	b.seen[r.ID] = true
	b.reviews = append(b.reviews, r)
	return true
}

func newBucket() *bucket {
	return &bucket{reviews: []database.AttributedReview{}, seen: map[string]bool{}}
}

// Consolidate processes one day and persists its batches, replacing any
// earlier result for the same date. Each review counts at most once per
// topic and at most once per unmapped phrase.
func (c *Consolidator) Consolidate(ctx context.Context, day Day) (*Result, error) {
	tax, err := c.taxonomies.Load(day.AppID)
	if err != nil {
		return nil, err
	}

	mappings := make(map[string]oracle.TopicMapping, len(day.Mappings))
	for _, m := range day.Mappings {
		key := taxonomy.NormalizePhrase(m.ExtractedTopic)
		if _, dup := mappings[key]; dup {
			continue
		}
		mappings[key] = oracle.Gate(m, tax, c.threshold)
	}

	byID := make(map[string]database.Review, len(day.Reviews))
	for _, r := range day.Reviews {
		byID[r.ID] = r
	}

	topics := map[string]*bucket{}
	unmapped := map[string]*bucket{}
	withoutTopics := []database.Review{}

	for _, ex := range day.Extractions {
		review, ok := byID[ex.ReviewID]
		if !ok {
			review = database.Review{ID: ex.ReviewID}
		}

		phrases := normalized(ex.ExtractedTopics)
		if len(phrases) == 0 {
			withoutTopics = append(withoutTopics, review)
			continue
		}

		for _, phrase := range phrases {
			m := mappings[phrase]
			if m.MappedTopicID != nil {
				conf := m.Confidence
				id := *m.MappedTopicID
				if topics[id] == nil {
					topics[id] = newBucket()
				}
				topics[id].add(database.AttributedReview{Review: review, ExtractedTopic: phrase, Confidence: &conf})
				continue
			}
			if unmapped[phrase] == nil {
				unmapped[phrase] = newBucket()
			}
			unmapped[phrase].add(database.AttributedReview{Review: review, ExtractedTopic: phrase})
		}
	}

	added, err := c.promote(ctx, day, tax, topics, unmapped)
	if err != nil {
		return nil, err
	}

	now := c.now().UTC()
	frequencies := make(map[string]int, len(topics))
	mentions := 0
	detailedTopics := make(map[string]database.TopicReviews, len(topics))
	for id, b := range topics {
		frequencies[id] = len(b.reviews)
		mentions += len(b.reviews)
		detailedTopics[id] = database.TopicReviews{
			TopicName: tax.NameFor(id),
			Count:     len(b.reviews),
			Reviews:   b.reviews,
		}
	}
	detailedUnmapped := make(map[string]database.UnmappedReviews, len(unmapped))
	for phrase, b := range unmapped {
		detailedUnmapped[phrase] = database.UnmappedReviews{Count: len(b.reviews), Reviews: b.reviews}
	}

	total := len(day.Extractions)
	daily := &database.DailyBatch{
		AppID:                day.AppID,
		Date:                 day.Date,
		TotalReviews:         total,
		ReviewsWithTopics:    total - len(withoutTopics),
		ReviewsWithoutTopics: len(withoutTopics),
		TotalTopicMentions:   mentions,
		TopicFrequencies:     frequencies,
		NewTopicsDiscovered:  added,
		UnmappedCount:        len(unmapped),
		ProcessedAt:          now,
	}
	detailed := &database.DetailedBatch{
		AppID:       day.AppID,
		Date:        day.Date,
		GeneratedAt: now,
		Summary: database.DetailedSummary{
			TotalReviews:         total,
			ReviewsWithTopics:    total - len(withoutTopics),
			ReviewsWithoutTopics: len(withoutTopics),
			TotalTopicMentions:   mentions,
			UniqueTopics:         len(frequencies),
		},
		Topics:               detailedTopics,
		UnmappedTopics:       detailedUnmapped,
		ReviewsWithoutTopics: withoutTopics,
	}

	if err := c.batches.SaveDailyBatch(daily); err != nil {
		return nil, fmt.Errorf("saving daily batch %s/%s: %w", day.AppID, day.Date, err)
	}
	if err := c.batches.SaveDetailedBatch(detailed); err != nil {
		return nil, fmt.Errorf("saving detailed batch %s/%s: %w", day.AppID, day.Date, err)
	}

	logging.Infof("%s %s: %d reviews, %d topic mentions across %d topics, %d unmapped phrases, %d new topics",
		day.AppID, day.Date, total, mentions, len(frequencies), len(unmapped), len(added))
	return &Result{Daily: daily, Detailed: detailed}, nil
}

// promote validates every unmapped phrase that reached the occurrence
// threshold, in sorted order, and folds accepted ones into topics. Returns
// the ids newly added to the taxonomy. tax is updated in place.
func (c *Consolidator) promote(ctx context.Context, day Day, tax *database.Taxonomy,
	topics, unmapped map[string]*bucket) ([]string, error) {

	var candidates []string
	for phrase, b := range unmapped {
		if len(b.reviews) >= c.minOccurrences {
			candidates = append(candidates, phrase)
		}
	}
	sort.Strings(candidates)

	added := []string{}
	for _, phrase := range candidates {
		v, err := c.validator.ValidateTopic(ctx, phrase, tax.Names())
		if err != nil {
			return nil, fmt.Errorf("validating %q: %w", phrase, err)
		}
		if !v.IsValid {
			logging.Infof("rejected candidate topic %q: %s", phrase, v.Reasoning)
			continue
		}

		def, ok := buildTopic(phrase, v, day.Date)
		if !ok {
			logging.Warnf("candidate topic %q has no usable id, leaving it unmapped", phrase)
			continue
		}

		ids, err := c.taxonomies.AddTopics(day.AppID, []database.TopicDefinition{def})
		if err != nil {
			return nil, err
		}
		if len(ids) > 0 {
			added = append(added, ids...)
			tax.Topics = append(tax.Topics, def)
			logging.Infof("promoted %q to new topic %s (%s)", phrase, def.TopicID, def.TopicName)
		} else {
			logging.Infof("promoted %q into existing topic %s", phrase, def.TopicID)
		}

		if topics[def.TopicID] == nil {
			topics[def.TopicID] = newBucket()
		}
		for _, r := range unmapped[phrase].reviews {
			topics[def.TopicID].add(r)
		}
		delete(unmapped, phrase)
	}
	return added, nil
}

var idSeparators = strings.NewReplacer("_", " ", "-", " ")

func buildTopic(phrase string, v oracle.Validation, date string) (database.TopicDefinition, bool) {
	id := taxonomy.Slugify(idSeparators.Replace(v.SuggestedTopicID))
	if id == "" {
		id = taxonomy.Slugify(phrase)
	}
	if id == "" {
		return database.TopicDefinition{}, false
	}

	name := strings.TrimSpace(v.SuggestedTopicName)
	if name == "" {
		name = taxonomy.TitleCase(phrase)
	}

	category := strings.ToLower(strings.TrimSpace(v.SuggestedCategory))
	if !taxonomy.ValidCategory(category) {
		category = database.CategoryIssue
	}

	return database.TopicDefinition{
		TopicID:     id,
		TopicName:   name,
		Category:    category,
		Variations:  []string{phrase},
		Description: "Auto-discovered topic: " + phrase,
		AddedDate:   date,
		IsSeed:      false,
		AppSpecific: true,
	}, true
}

func normalized(phrases []string) []string {
	var out []string
	for _, p := range phrases {
		if p = taxonomy.NormalizePhrase(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
