// Package oracle defines the three topic judgements the pipeline needs:
// extracting phrases from reviews, mapping phrases onto a taxonomy and
// deciding whether a recurring phrase deserves its own topic.
package oracle

import (
	"context"

	"github.com/TobiSchelling/reviewtrends/internal/database"
)

// DefaultConfidenceThreshold is the minimum confidence for a mapping to count.
const DefaultConfidenceThreshold = 0.70

// ExtractionResult lists the topic phrases found in one review. An empty
// list means the review raised nothing actionable.
type ExtractionResult struct {
	ReviewID        string   `json:"reviewId"`
	ExtractedTopics []string `json:"extractedTopics"`
}

// TopicMapping assigns an extracted phrase to a taxonomy topic. MappedTopicID
// is nil when the phrase matched nothing with enough confidence.
type TopicMapping struct {
	ExtractedTopic string  `json:"extracted_topic"`
	MappedTopicID  *string `json:"mapped_topic_id"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning"`
}

// Validation is the verdict on promoting a phrase to a new topic.
type Validation struct {
	Topic              string `json:"topic"`
	IsValid            bool   `json:"is_valid"`
	SuggestedTopicID   string `json:"suggested_topic_id"`
	SuggestedTopicName string `json:"suggested_topic_name"`
	SuggestedCategory  string `json:"suggested_category"`
	Reasoning          string `json:"reasoning"`
}

// Oracle answers the topic judgements. Implementations degrade instead of
// failing: a call that cannot be answered yields no topics, an unmapped
// phrase or an invalid verdict. The only error returned is context
// cancellation.
type Oracle interface {
	// ExtractTopics returns exactly one result per review, in input order.
	ExtractTopics(ctx context.Context, reviews []database.Review) ([]ExtractionResult, error)
	// MapTopics returns one mapping per distinct normalized phrase.
	MapTopics(ctx context.Context, phrases []string, tax *database.Taxonomy) ([]TopicMapping, error)
	// ValidateTopic judges a recurring unmapped phrase against existing topic names.
	ValidateTopic(ctx context.Context, phrase string, existing []string) (Validation, error)
}

// Gate enforces the mapping post-conditions against a taxonomy snapshot:
// confidence is clamped to [0, 1], and the mapped id is cleared when it is
// below threshold or unknown to the taxonomy.
func Gate(m TopicMapping, tax *database.Taxonomy, threshold float64) TopicMapping {
	if m.Confidence < 0 {
		m.Confidence = 0
	}
	if m.Confidence > 1 {
		m.Confidence = 1
	}
	if m.MappedTopicID == nil {
		return m
	}
	if *m.MappedTopicID == "" || m.Confidence < threshold || tax == nil || !tax.Has(*m.MappedTopicID) {
		m.MappedTopicID = nil
	}
	return m
}
