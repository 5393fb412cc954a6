package reviews

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/reviewtrends/internal/database"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func ids(rs []Review) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func TestMergeRightBiased(t *testing.T) {
	existing := []Review{
		{ID: "a", At: ts("2026-06-01T10:00:00Z"), Content: "old"},
		{ID: "b", At: ts("2026-06-02T10:00:00Z")},
	}
	incoming := []Review{
		{ID: "a", At: ts("2026-06-01T10:00:00Z"), Content: "edited"},
		{ID: "c", At: ts("2026-06-03T10:00:00Z")},
	}

	merged := Merge(existing, incoming)
	assert.Equal(t, []string{"c", "b", "a"}, ids(merged))
	assert.Equal(t, "edited", merged[2].Content)
}

func TestMergeIdempotent(t *testing.T) {
	set := []Review{
		{ID: "x", At: ts("2026-06-01T10:00:00Z")},
		{ID: "y", At: ts("2026-06-01T10:00:00Z")},
		{ID: "z", At: ts("2026-05-30T10:00:00Z")},
	}
	once := Merge(set, set)
	twice := Merge(once, set)
	assert.Equal(t, ids(once), ids(twice))
	assert.Equal(t, []string{"x", "y", "z"}, ids(once), "ties broken by id")
}

func TestMergeEmpty(t *testing.T) {
	assert.Empty(t, Merge(nil, nil))
	assert.Len(t, Merge(nil, []Review{{ID: "a"}}), 1)
}

func TestFilterByDate(t *testing.T) {
	rs := []Review{
		{ID: "late", At: ts("2026-06-03T23:59:59Z")},
		{ID: "in2", At: ts("2026-06-02T00:00:00Z")},
		{ID: "in1", At: ts("2026-06-01T12:00:00Z")},
		{ID: "early", At: ts("2026-05-31T23:59:59Z")},
	}
	got := FilterByDate(rs, day("2026-06-01"), day("2026-06-02"))
	assert.Equal(t, []string{"in2", "in1"}, ids(got))

	assert.Equal(t, []string{"in1"}, ids(ForDate(rs, day("2026-06-01"))))
	assert.Empty(t, ForDate(rs, day("2026-07-01")))
}

func TestFilterByDateUsesUTC(t *testing.T) {
	// 01:00 on the 2nd in UTC+2 is still the 1st in UTC.
	loc := time.FixedZone("UTC+2", 2*60*60)
	rs := []Review{{ID: "a", At: time.Date(2026, 6, 2, 1, 0, 0, 0, loc)}}
	assert.Len(t, ForDate(rs, day("2026-06-01")), 1)
	assert.Empty(t, ForDate(rs, day("2026-06-02")))
}

func TestCoveredRange(t *testing.T) {
	_, _, ok := CoveredRange(nil)
	assert.False(t, ok)

	min, max, ok := CoveredRange([]Review{
		{ID: "a", At: ts("2026-06-30T18:00:00Z")},
		{ID: "b", At: ts("2026-06-01T08:00:00Z")},
		{ID: "c", At: ts("2026-06-15T08:00:00Z")},
	})
	require.True(t, ok)
	assert.Equal(t, day("2026-06-01"), min)
	assert.Equal(t, day("2026-06-30"), max)
}

func TestStoreRoundTrip(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewStore(db)
	ok, err := s.Exists("app")
	require.NoError(t, err)
	assert.False(t, ok)

	rs, err := s.Load("app")
	require.NoError(t, err)
	assert.NotNil(t, rs)
	assert.Empty(t, rs)

	require.NoError(t, s.Save("app", Merge(nil, []Review{
		{ID: "a", At: ts("2026-06-01T10:00:00Z")},
		{ID: "b", At: ts("2026-06-02T10:00:00Z")},
	})))

	ok, err = s.Exists("app")
	require.NoError(t, err)
	assert.True(t, ok)

	rs, err = s.Load("app")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(rs))
}
