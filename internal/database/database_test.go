package database

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(s string) *string { return &s }

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestReplaceAndGetReviews(t *testing.T) {
	db := openTestDB(t)

	has, err := db.HasReviews("com.example")
	require.NoError(t, err)
	assert.False(t, has)

	replied := at("2026-06-03T08:00:00Z")
	in := []Review{
		{ID: "r1", Author: "ann", Rating: 2, At: at("2026-06-01T10:00:00Z"), Content: "late again"},
		{ID: "r2", Author: "bo", Rating: 5, At: at("2026-06-02T09:30:00Z"), Content: "great",
			AppVersion: ptr("4.2.0"), ReplyContent: ptr("thanks"), RepliedAt: &replied},
	}
	require.NoError(t, db.ReplaceReviews("com.example", in))

	has, err = db.HasReviews("com.example")
	require.NoError(t, err)
	assert.True(t, has)

	got, err := db.GetReviews("com.example")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "r2", got[0].ID, "newest first")
	assert.Equal(t, "4.2.0", *got[0].AppVersion)
	require.NotNil(t, got[0].RepliedAt)
	assert.True(t, got[0].RepliedAt.Equal(replied))
	assert.Nil(t, got[1].AppVersion)
	assert.True(t, got[1].At.Equal(in[0].At))
}

func TestReplaceReviewsOverwrites(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.ReplaceReviews("app", []Review{
		{ID: "a", At: at("2026-06-01T00:00:00Z")},
		{ID: "b", At: at("2026-06-01T00:00:00Z")},
	}))
	require.NoError(t, db.ReplaceReviews("app", []Review{
		{ID: "c", At: at("2026-06-02T00:00:00Z")},
	}))
	require.NoError(t, db.ReplaceReviews("other", []Review{
		{ID: "a", At: at("2026-06-02T00:00:00Z")},
	}))

	n, err := db.CountReviews("app")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = db.CountReviews("other")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAppendTopics(t *testing.T) {
	db := openTestDB(t)
	now := at("2026-06-01T00:00:00Z")

	tax, err := db.GetTaxonomy("app")
	require.NoError(t, err)
	assert.Nil(t, tax)

	added, err := db.AppendTopics("app", []TopicDefinition{
		{TopicID: "delivery_delay", TopicName: "Delivery Delay", Category: CategoryIssue,
			Variations: []string{"late"}, AddedDate: "2026-06-01", IsSeed: true},
		{TopicID: "pricing", TopicName: "Pricing", Category: CategoryIssue, AddedDate: "2026-06-01", IsSeed: true},
	}, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"delivery_delay", "pricing"}, added)

	later := now.Add(24 * time.Hour)
	added, err = db.AppendTopics("app", []TopicDefinition{
		{TopicID: "pricing", TopicName: "Changed", Category: CategoryIssue, AddedDate: "2026-06-02"},
		{TopicID: "dark_mode", TopicName: "Dark Mode", Category: CategoryRequest, AddedDate: "2026-06-02", AppSpecific: true},
	}, later)
	require.NoError(t, err)
	assert.Equal(t, []string{"dark_mode"}, added)

	tax, err = db.GetTaxonomy("app")
	require.NoError(t, err)
	require.NotNil(t, tax)
	require.Len(t, tax.Topics, 3)
	assert.Equal(t, "delivery_delay", tax.Topics[0].TopicID)
	assert.Equal(t, []string{"late"}, tax.Topics[0].Variations)
	assert.Equal(t, "Pricing", tax.Topics[1].TopicName, "existing entries untouched")
	assert.Equal(t, "dark_mode", tax.Topics[2].TopicID)
	assert.True(t, tax.Topics[2].AppSpecific)
	assert.False(t, tax.Topics[2].IsSeed)
	assert.True(t, tax.LastUpdated.Equal(later))

	total, learned, err := db.CountTopics()
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, 1, learned)
}

func TestTaxonomyHelpers(t *testing.T) {
	tax := &Taxonomy{Topics: []TopicDefinition{
		{TopicID: "a", TopicName: "Alpha"},
		{TopicID: "b", TopicName: "Beta"},
	}}
	assert.True(t, tax.Has("a"))
	assert.False(t, tax.Has("z"))
	assert.Equal(t, "Beta", tax.NameFor("b"))
	assert.Equal(t, "z", tax.NameFor("z"))
	assert.Equal(t, []string{"Alpha", "Beta"}, tax.Names())

	var missing *Taxonomy
	assert.Equal(t, "a", missing.NameFor("a"))
}

func TestDailyBatchRoundTrip(t *testing.T) {
	db := openTestDB(t)

	got, err := db.GetDailyBatch("app", "2026-06-01")
	require.NoError(t, err)
	assert.Nil(t, got)

	b := &DailyBatch{
		AppID: "app", Date: "2026-06-01", TotalReviews: 3, ReviewsWithTopics: 2,
		ReviewsWithoutTopics: 1, TotalTopicMentions: 2,
		TopicFrequencies: map[string]int{"pricing": 2}, NewTopicsDiscovered: []string{},
		ProcessedAt: at("2026-06-02T01:00:00Z"),
	}
	require.NoError(t, db.SaveDailyBatch(b))

	b.TopicFrequencies = map[string]int{"pricing": 1}
	require.NoError(t, db.SaveDailyBatch(b))

	got, err = db.GetDailyBatch("app", "2026-06-01")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.TopicFrequencies["pricing"], "rerun replaces the batch")
	assert.Equal(t, 3, got.TotalReviews)
}

func TestDetailedBatchRoundTrip(t *testing.T) {
	db := openTestDB(t)
	conf := 0.9
	b := &DetailedBatch{
		AppID: "app", Date: "2026-06-01", GeneratedAt: at("2026-06-02T01:00:00Z"),
		Summary: DetailedSummary{TotalReviews: 1, ReviewsWithTopics: 1, TotalTopicMentions: 1, UniqueTopics: 1},
		Topics: map[string]TopicReviews{
			"pricing": {TopicName: "Pricing", Count: 1, Reviews: []AttributedReview{
				{Review: Review{ID: "r1", At: at("2026-06-01T10:00:00Z")}, ExtractedTopic: "too expensive", Confidence: &conf},
			}},
		},
		UnmappedTopics:       map[string]UnmappedReviews{},
		ReviewsWithoutTopics: []Review{},
	}
	require.NoError(t, db.SaveDetailedBatch(b))

	got, err := db.GetDetailedBatch("app", "2026-06-01")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Contains(t, got.Topics, "pricing")
	assert.Equal(t, "too expensive", got.Topics["pricing"].Reviews[0].ExtractedTopic)
	assert.InDelta(t, 0.9, *got.Topics["pricing"].Reviews[0].Confidence, 1e-9)
}

func TestAppLock(t *testing.T) {
	db := openTestDB(t)
	now := at("2026-06-01T00:00:00Z")
	ttl := time.Hour

	require.NoError(t, db.AcquireAppLock("app", "run-1", ttl, now))

	err := db.AcquireAppLock("app", "run-2", ttl, now.Add(time.Minute))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAppLocked))

	// Other apps are independent.
	require.NoError(t, db.AcquireAppLock("other", "run-2", ttl, now))

	// Stale lock is taken over.
	require.NoError(t, db.AcquireAppLock("app", "run-3", ttl, now.Add(2*time.Hour)))

	require.NoError(t, db.ReleaseAppLock("app", "run-1"), "releasing a lost lock is a no-op")
	err = db.AcquireAppLock("app", "run-4", ttl, now.Add(2*time.Hour+time.Minute))
	assert.ErrorIs(t, err, ErrAppLocked)

	require.NoError(t, db.ReleaseAppLock("app", "run-3"))
	require.NoError(t, db.AcquireAppLock("app", "run-4", ttl, now.Add(2*time.Hour+time.Minute)))
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)
	start := at("2026-06-02T01:00:00Z")

	id, err := db.InsertRun("run-1", "app", "2026-06-01", start)
	require.NoError(t, err)
	assert.NotZero(t, id)

	require.NoError(t, db.FinishRun("run-1", start.Add(time.Minute), 30, 1, ptr("/tmp/report.csv")))

	runs, err := db.GetRecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].RunID)
	assert.Equal(t, 30, runs[0].DaysProcessed)
	assert.Equal(t, 1, runs[0].DaysFailed)
	require.NotNil(t, runs[0].FinishedAt)
	require.NotNil(t, runs[0].ReportPath)
	assert.Equal(t, "/tmp/report.csv", *runs[0].ReportPath)

	last, err := db.GetLastTargetDate("app")
	require.NoError(t, err)
	assert.Equal(t, "2026-06-01", last)

	last, err = db.GetLastTargetDate("nope")
	require.NoError(t, err)
	assert.Empty(t, last)
}

func TestAppInfo(t *testing.T) {
	db := openTestDB(t)

	info, err := db.GetAppInfo("123")
	require.NoError(t, err)
	assert.Nil(t, info)

	require.NoError(t, db.UpsertAppInfo(AppInfo{AppID: "123", DisplayName: "Foodie", UpdatedAt: at("2026-06-01T00:00:00Z")}))
	require.NoError(t, db.UpsertAppInfo(AppInfo{AppID: "123", DisplayName: "Foodie 2", UpdatedAt: at("2026-06-02T00:00:00Z")}))

	info, err = db.GetAppInfo("123")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "Foodie 2", info.DisplayName)
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.ReplaceReviews("a", []Review{{ID: "1", At: at("2026-06-01T00:00:00Z")}}))
	require.NoError(t, db.ReplaceReviews("b", []Review{
		{ID: "1", At: at("2026-06-01T00:00:00Z")},
		{ID: "2", At: at("2026-06-01T00:00:00Z")},
	}))
	_, err := db.AppendTopics("a", []TopicDefinition{
		{TopicID: "x", TopicName: "X", Category: CategoryIssue, IsSeed: true},
		{TopicID: "y", TopicName: "Y", Category: CategoryRequest},
	}, at("2026-06-01T00:00:00Z"))
	require.NoError(t, err)
	require.NoError(t, db.SaveDailyBatch(&DailyBatch{AppID: "a", Date: "2026-06-01", TopicFrequencies: map[string]int{}}))

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Apps)
	assert.Equal(t, 3, stats.TotalReviews)
	assert.Equal(t, 2, stats.Topics)
	assert.Equal(t, 1, stats.LearnedTopics)
	assert.Equal(t, 1, stats.DailyBatches)
	assert.Equal(t, 0, stats.Runs)
}

func TestListApps(t *testing.T) {
	db := openTestDB(t)

	apps, err := db.ListApps()
	require.NoError(t, err)
	assert.Empty(t, apps)

	for _, b := range []DailyBatch{
		{AppID: "b.app", Date: "2026-07-02"},
		{AppID: "a.app", Date: "2026-07-03"},
		{AppID: "a.app", Date: "2026-07-01"},
	} {
		require.NoError(t, db.SaveDailyBatch(&b))
	}
	require.NoError(t, db.UpsertAppInfo(AppInfo{AppID: "a.app", DisplayName: "App A", UpdatedAt: at("2026-07-03T00:00:00Z")}))

	apps, err = db.ListApps()
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, AppSummary{AppID: "a.app", DisplayName: "App A", Days: 2, FirstDate: "2026-07-01", LastDate: "2026-07-03"}, apps[0])
	assert.Equal(t, "App A", apps[0].Label())
	assert.Equal(t, "b.app", apps[1].Label())
}
