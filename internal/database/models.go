package database

import "time"

// Review is a single store review. Identity is ID; a later fetch of the same
// ID supersedes the stored copy.
type Review struct {
	ID           string     `json:"reviewId"`
	Author       string     `json:"userName"`
	Rating       int        `json:"score"`
	At           time.Time  `json:"at"`
	Content      string     `json:"content"`
	HelpfulCount int        `json:"thumbsUpCount"`
	AppVersion   *string    `json:"appVersion"`
	ReplyContent *string    `json:"replyContent"`
	RepliedAt    *time.Time `json:"repliedAt"`
}

// Topic categories.
const (
	CategoryIssue   = "issue"
	CategoryRequest = "request"
)

// TopicDefinition is one entry of an app's taxonomy.
type TopicDefinition struct {
	TopicID     string   `json:"topic_id"`
	TopicName   string   `json:"topic_name"`
	Category    string   `json:"category"`
	Variations  []string `json:"variations"`
	Description string   `json:"description"`
	AddedDate   string   `json:"added_date"`
	IsSeed      bool     `json:"is_seed"`
	AppSpecific bool     `json:"app_specific"`
}

// Taxonomy is the ordered topic registry for one app.
type Taxonomy struct {
	AppID       string            `json:"app_id"`
	Topics      []TopicDefinition `json:"topics"`
	LastUpdated time.Time         `json:"last_updated"`
}

// Lookup returns the topic with the given id.
func (t *Taxonomy) Lookup(topicID string) (TopicDefinition, bool) {
	for _, topic := range t.Topics {
		if topic.TopicID == topicID {
			return topic, true
		}
	}
	return TopicDefinition{}, false
}

// Has reports whether a topic id is registered.
func (t *Taxonomy) Has(topicID string) bool {
	_, ok := t.Lookup(topicID)
	return ok
}

// NameFor returns the display name for a topic id, or the id itself when the
// taxonomy does not know it.
func (t *Taxonomy) NameFor(topicID string) string {
	if t != nil {
		if topic, ok := t.Lookup(topicID); ok {
			return topic.TopicName
		}
	}
	return topicID
}

// Names returns the topic names in taxonomy order.
func (t *Taxonomy) Names() []string {
	names := make([]string, len(t.Topics))
	for i, topic := range t.Topics {
		names[i] = topic.TopicName
	}
	return names
}

// DailyBatch is the aggregate result of processing one app's reviews for one day.
type DailyBatch struct {
	AppID                string         `json:"app_id"`
	Date                 string         `json:"date"`
	TotalReviews         int            `json:"total_reviews"`
	ReviewsWithTopics    int            `json:"reviews_with_topics"`
	ReviewsWithoutTopics int            `json:"reviews_without_topics"`
	TotalTopicMentions   int            `json:"total_topic_mentions"`
	TopicFrequencies     map[string]int `json:"topic_frequencies"`
	NewTopicsDiscovered  []string       `json:"new_topics_discovered"`
	UnmappedCount        int            `json:"unmapped_count"`
	ProcessedAt          time.Time      `json:"processed_at"`
}

// AttributedReview is a review attached to a topic or unmapped phrase.
type AttributedReview struct {
	Review
	ExtractedTopic string   `json:"extracted_topic"`
	Confidence     *float64 `json:"confidence,omitempty"`
}

// TopicReviews lists the reviews counted under one topic.
type TopicReviews struct {
	TopicName string             `json:"topic_name"`
	Count     int                `json:"count"`
	Reviews   []AttributedReview `json:"reviews"`
}

// UnmappedReviews lists the reviews behind one unpromoted phrase.
type UnmappedReviews struct {
	Count   int                `json:"count"`
	Reviews []AttributedReview `json:"reviews"`
}

// DetailedSummary mirrors the DailyBatch counters inside a DetailedBatch.
type DetailedSummary struct {
	TotalReviews         int `json:"total_reviews"`
	ReviewsWithTopics    int `json:"reviews_with_topics"`
	ReviewsWithoutTopics int `json:"reviews_without_topics"`
	TotalTopicMentions   int `json:"total_topic_mentions"`
	UniqueTopics         int `json:"unique_topics"`
}

// DetailedBatch holds full review attribution for one app and day.
type DetailedBatch struct {
	AppID                string                     `json:"app_id"`
	Date                 string                     `json:"date"`
	GeneratedAt          time.Time                  `json:"generated_at"`
	Summary              DetailedSummary            `json:"summary"`
	Topics               map[string]TopicReviews    `json:"topics"`
	UnmappedTopics       map[string]UnmappedReviews `json:"unmapped_topics"`
	ReviewsWithoutTopics []Review                   `json:"reviews_without_extractable_topics"`
}

// RunReport holds metadata about a pipeline run.
type RunReport struct {
	ID            int64
	RunID         string
	AppID         string
	TargetDate    string
	StartedAt     time.Time
	FinishedAt    *time.Time
	DaysProcessed int
	DaysFailed    int
	ReportPath    *string
}

// AppInfo is cached metadata about an app's store listing.
type AppInfo struct {
	AppID       string
	DisplayName string
	UpdatedAt   time.Time
}

// AppSummary describes an app with processed days.
type AppSummary struct {
	AppID       string
	DisplayName string
	Days        int
	FirstDate   string
	LastDate    string
}

// Label is the display name, or the app id when no name is known.
func (s AppSummary) Label() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.AppID
}

// Stats contains aggregate database statistics.
type Stats struct {
	Apps          int
	TotalReviews  int
	Topics        int
	LearnedTopics int
	DailyBatches  int
	Runs          int
}
