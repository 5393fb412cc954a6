package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/reviewtrends/internal/database"
)

type memSource struct {
	daily    map[string]*database.DailyBatch
	detailed map[string]*database.DetailedBatch
	tax      *database.Taxonomy
}

func (m *memSource) GetDailyBatch(_, date string) (*database.DailyBatch, error) {
	return m.daily[date], nil
}

func (m *memSource) GetDetailedBatch(_, date string) (*database.DetailedBatch, error) {
	return m.detailed[date], nil
}

func (m *memSource) GetTaxonomy(string) (*database.Taxonomy, error) { return m.tax, nil }

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func TestWriteDay(t *testing.T) {
	w := NewWriter(t.TempDir())
	processed := time.Date(2026, 7, 3, 2, 0, 0, 0, time.UTC)

	daily := &database.DailyBatch{AppID: "app", Date: "2026-07-02", TotalReviews: 3,
		TopicFrequencies: map[string]int{"pricing": 2}, NewTopicsDiscovered: []string{}, ProcessedAt: processed}
	detailed := &database.DetailedBatch{AppID: "app", Date: "2026-07-02",
		ReviewsWithoutTopics: []database.Review{{ID: "r3"}}}
	require.NoError(t, w.WriteDay(daily, detailed))

	var gotDaily database.DailyBatch
	readJSON(t, w.BatchPath("app", "2026-07-02"), &gotDaily)
	assert.Equal(t, 2, gotDaily.TopicFrequencies["pricing"])
	assert.True(t, processed.Equal(gotDaily.ProcessedAt))

	raw := map[string]any{}
	readJSON(t, w.DetailsPath("app", "2026-07-02"), &raw)
	assert.Contains(t, raw, "reviews_without_extractable_topics")

	// Overwrite on rerun.
	daily.TotalReviews = 5
	require.NoError(t, w.WriteDay(daily, nil))
	readJSON(t, w.BatchPath("app", "2026-07-02"), &gotDaily)
	assert.Equal(t, 5, gotDaily.TotalReviews)

	_, err := os.Stat(w.BatchPath("app", "2026-07-02") + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestRange(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	src := &memSource{
		daily: map[string]*database.DailyBatch{
			"2026-07-01": {AppID: "app", Date: "2026-07-01"},
			"2026-07-03": {AppID: "app", Date: "2026-07-03"},
		},
		detailed: map[string]*database.DetailedBatch{
			"2026-07-01": {AppID: "app", Date: "2026-07-01"},
		},
		tax: &database.Taxonomy{AppID: "app", Topics: []database.TopicDefinition{{TopicID: "pricing"}}},
	}

	n, err := w.Range(src, "app", "2026-07-01", "2026-07-03")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.FileExists(t, w.BatchPath("app", "2026-07-01"))
	assert.FileExists(t, w.DetailsPath("app", "2026-07-01"))
	assert.FileExists(t, w.BatchPath("app", "2026-07-03"))
	assert.NoFileExists(t, w.DetailsPath("app", "2026-07-03"))
	assert.NoFileExists(t, w.BatchPath("app", "2026-07-02"))
	assert.Equal(t, filepath.Join(dir, "apps", "app", "taxonomy", "master_taxonomy.json"), w.TaxonomyPath("app"))
	assert.FileExists(t, w.TaxonomyPath("app"))
}

func TestRangeRejectsInvertedDates(t *testing.T) {
	w := NewWriter(t.TempDir())
	_, err := w.Range(&memSource{}, "app", "2026-07-03", "2026-07-01")
	assert.Error(t, err)
}
