package suppress

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signals/internal/domain"
	"signals/internal/estimate"
)

type fakeCounterRepo struct {
	contributors map[string][]domain.ContributorRecord
	suppressed   map[string][]string
	purgedBefore []time.Time
}

func newFakeCounterRepo() *fakeCounterRepo {
	return &fakeCounterRepo{
		contributors: make(map[string][]domain.ContributorRecord),
		suppressed:   make(map[string][]string),
	}
}

func dayKey(day time.Time) string { return day.Format("2006-01-02") }

func (f *fakeCounterRepo) ApplyBatch(context.Context, time.Time, int, string, []domain.MetricContribution) error {
	return nil
}

func (f *fakeCounterRepo) Contributors(_ context.Context, day time.Time) ([]domain.ContributorRecord, error) {
	return f.contributors[dayKey(day)], nil
}

func (f *fakeCounterRepo) Suppress(_ context.Context, day time.Time, names []string) error {
	f.suppressed[dayKey(day)] = append(f.suppressed[dayKey(day)], names...)
	return nil
}

func (f *fakeCounterRepo) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.purgedBefore = append(f.purgedBefore, cutoff)
	return 0, nil
}

func record(t *testing.T, day time.Time, name string, submitters, hour int) domain.ContributorRecord {
	t.Helper()
	c := estimate.NewContributors()
	for i := 0; i < submitters; i++ {
		c.Observe(fmt.Sprintf("%s-token-%d", name, i), hour)
	}
	blob, err := c.MarshalBinary()
	require.NoError(t, err)
	return domain.ContributorRecord{Day: day, Name: name, HoursSeen: c.HoursSeen(), Filter: blob}
}

func TestSweepSuppressesBelowFloor(t *testing.T) {
	now := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	yesterday := domain.Day(now).AddDate(0, 0, -1)

	repo := newFakeCounterRepo()
	repo.contributors[dayKey(yesterday)] = []domain.ContributorRecord{
		record(t, yesterday, "thumbs_down", 100, 9),
		record(t, yesterday, "retry_clicked", 5, 9),
	}

	s := NewSweeper(repo, zerolog.Nop(), 20, 90, time.Hour)
	require.NoError(t, s.SweepOnce(context.Background(), now))

	assert.Equal(t, []string{"retry_clicked"}, repo.suppressed[dayKey(yesterday)])
}

func TestSweepKeepsAtFloorMetrics(t *testing.T) {
	now := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	yesterday := domain.Day(now).AddDate(0, 0, -1)

	repo := newFakeCounterRepo()
	repo.contributors[dayKey(yesterday)] = []domain.ContributorRecord{
		record(t, yesterday, "thumbs_down", 25, 9),
	}

	s := NewSweeper(repo, zerolog.Nop(), 20, 90, time.Hour)
	require.NoError(t, s.SweepOnce(context.Background(), now))

	assert.Empty(t, repo.suppressed[dayKey(yesterday)])
}

func TestSweepSuppressesUnreadableFilters(t *testing.T) {
	now := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	yesterday := domain.Day(now).AddDate(0, 0, -1)

	repo := newFakeCounterRepo()
	repo.contributors[dayKey(yesterday)] = []domain.ContributorRecord{
		{Day: yesterday, Name: "thumbs_down", HoursSeen: 1, Filter: []byte("garbage")},
	}

	s := NewSweeper(repo, zerolog.Nop(), 20, 90, time.Hour)
	require.NoError(t, s.SweepOnce(context.Background(), now))

	assert.Equal(t, []string{"thumbs_down"}, repo.suppressed[dayKey(yesterday)])
}

func TestSweepIsIdempotent(t *testing.T) {
	now := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	yesterday := domain.Day(now).AddDate(0, 0, -1)

	repo := newFakeCounterRepo()
	repo.contributors[dayKey(yesterday)] = []domain.ContributorRecord{
		record(t, yesterday, "retry_clicked", 3, 9),
	}

	s := NewSweeper(repo, zerolog.Nop(), 20, 90, time.Hour)
	require.NoError(t, s.SweepOnce(context.Background(), now))
	require.NoError(t, s.SweepOnce(context.Background(), now))

	// Re-suppressing an already suppressed metric is harmless; the fake
	// records both calls to prove the sweep re-ran without error.
	assert.Equal(t, []string{"retry_clicked", "retry_clicked"}, repo.suppressed[dayKey(yesterday)])
}

func TestSweepPurgesRetentionWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)

	repo := newFakeCounterRepo()
	s := NewSweeper(repo, zerolog.Nop(), 20, 30, time.Hour)
	require.NoError(t, s.SweepOnce(context.Background(), now))

	require.Len(t, repo.purgedBefore, 1)
	assert.Equal(t, domain.Day(now).AddDate(0, 0, -30), repo.purgedBefore[0])
}
