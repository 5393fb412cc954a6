package schedule

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/reviewtrends/internal/database"
	"github.com/TobiSchelling/reviewtrends/internal/pipeline"
)

type recordingRunner struct {
	calls []string
	fail  map[string]error
}

func (r *recordingRunner) Run(_ context.Context, appID string, target time.Time) (*pipeline.Result, error) {
	r.calls = append(r.calls, appID+"@"+target.Format("2006-01-02"))
	if err := r.fail[appID]; err != nil {
		return nil, err
	}
	return &pipeline.Result{AppID: appID, ReportPath: "/out/" + appID + ".csv"}, nil
}

func TestNewValidates(t *testing.T) {
	_, err := New(&recordingRunner{}, "0 2 * * *", nil)
	assert.Error(t, err)

	_, err = New(&recordingRunner{}, "every day", []string{"a"})
	assert.Error(t, err)

	_, err = New(&recordingRunner{}, "@daily", []string{"a"})
	assert.NoError(t, err)
}

func TestTickRunsEveryAppForYesterday(t *testing.T) {
	runner := &recordingRunner{fail: map[string]error{
		"locked": fmt.Errorf("locked: %w", database.ErrAppLocked),
		"broken": errors.New("feed down"),
	}}
	s, err := New(runner, "0 2 * * *", []string{"a", "locked", "broken", "b"})
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, 7, 3, 2, 0, 0, 0, time.UTC) }

	out := s.Tick(context.Background())
	assert.Equal(t, []string{"a@2026-07-02", "locked@2026-07-02", "broken@2026-07-02", "b@2026-07-02"}, runner.calls)
	require.Len(t, out, 4)
	assert.Equal(t, "/out/a.csv", out[0].ReportPath)
	assert.ErrorIs(t, out[1].Err, database.ErrAppLocked)
	assert.Error(t, out[2].Err)
	assert.NoError(t, out[3].Err)
}

func TestTickStopsOnCancel(t *testing.T) {
	runner := &recordingRunner{}
	s, err := New(runner, "0 2 * * *", []string{"a", "b"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Empty(t, s.Tick(ctx))
	assert.Empty(t, runner.calls)
}

func TestStartReportsNextRun(t *testing.T) {
	s, err := New(&recordingRunner{}, "0 2 * * *", []string{"a"})
	require.NoError(t, err)
	assert.True(t, s.Next().IsZero())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	next := s.Next()
	require.False(t, next.IsZero())
	assert.True(t, next.After(time.Now()))
	assert.Equal(t, 2, next.UTC().Hour())
	assert.Equal(t, 0, next.UTC().Minute())
}
