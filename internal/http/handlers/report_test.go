package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"signals/internal/domain"
	"signals/internal/estimate"
	"signals/internal/sqlinline"
	"signals/internal/validate"
)

type counterRow struct {
	day       time.Time
	name      string
	noisy     int64
	epsilon   float64
	batches   int64
	hoursSeen uint32
	filter    []byte
}

type reportTestSQL struct {
	rows    []counterRow
	lastDay time.Time
}

func (s *reportTestSQL) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (s *reportTestSQL) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

func (s *reportTestSQL) Query(_ context.Context, query string, args ...any) (pgx.Rows, error) {
	if query != sqlinline.QReportableCounters {
		return nil, fmt.Errorf("unexpected query: %s", query)
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("unexpected args count: %d", len(args))
	}
	s.lastDay = args[0].(time.Time)
	return &counterRowsIterator{rows: s.rows}, nil
}

type counterRowsIterator struct {
	TestRowsBase
	rows []counterRow
	idx  int
}

func (it *counterRowsIterator) Next() bool {
	if it.idx >= len(it.rows) {
		return false
	}
	it.idx++
	return true
}

func (it *counterRowsIterator) Scan(dest ...any) error {
	if it.idx == 0 || it.idx > len(it.rows) {
		return pgx.ErrNoRows
	}
	row := it.rows[it.idx-1]
	if len(dest) != 7 {
		return fmt.Errorf("unexpected scan args: %d", len(dest))
	}
	*dest[0].(*time.Time) = row.day
	*dest[1].(*string) = row.name
	*dest[2].(*int64) = row.noisy
	*dest[3].(*float64) = row.epsilon
	*dest[4].(*int64) = row.batches
	*dest[5].(*uint32) = row.hoursSeen
	*dest[6].(*[]byte) = append([]byte(nil), row.filter...)
	return nil
}

func (it *counterRowsIterator) Err() error { return nil }

func (it *counterRowsIterator) Close() {}

func popFilter(t *testing.T, name string, submitters int) ([]byte, uint32) {
	t.Helper()
	c := estimate.NewContributors()
	for i := 0; i < submitters; i++ {
		c.Observe(fmt.Sprintf("%s-token-%d", name, i), 10)
	}
	blob, err := c.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal filter: %v", err)
	}
	return blob, c.HoursSeen()
}

func TestMetricsDailyWithholdsBelowFloor(t *testing.T) {
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	bigFilter, bigHours := popFilter(t, "thumbs_down", 120)
	smallFilter, smallHours := popFilter(t, "retry_clicked", 4)

	sql := &reportTestSQL{rows: []counterRow{
		{day: day, name: "thumbs_down", noisy: 900, epsilon: 0.5, batches: 300, hoursSeen: bigHours, filter: bigFilter},
		{day: day, name: "retry_clicked", noisy: 12, epsilon: 0.5, batches: 4, hoursSeen: smallHours, filter: smallFilter},
	}}

	app := NewApp(sql, nil, validate.DefaultPolicy(), 20, zerolog.Nop())

	req := httptest.NewRequest("GET", "/signals/metrics/daily?day=2026-03-01", nil)
	rr := httptest.NewRecorder()
	app.MetricsDaily(rr, req)

	if rr.Code != 200 {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var resp struct {
		Day     string                `json:"day"`
		Metrics []domain.MetricReport `json:"metrics"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Day != "2026-03-01" {
		t.Fatalf("day = %q, want 2026-03-01", resp.Day)
	}
	if len(resp.Metrics) != 1 || resp.Metrics[0].Name != "thumbs_down" {
		t.Fatalf("metrics = %+v, want only thumbs_down", resp.Metrics)
	}
	if resp.Metrics[0].EstimatedContributors < 20 {
		t.Fatalf("estimate = %d, want at least the floor", resp.Metrics[0].EstimatedContributors)
	}
	if !sql.lastDay.Equal(day) {
		t.Fatalf("queried day = %v, want %v", sql.lastDay, day)
	}
}

func TestMetricsDailyWithholdsUnreadableFilters(t *testing.T) {
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sql := &reportTestSQL{rows: []counterRow{
		{day: day, name: "thumbs_down", noisy: 900, epsilon: 0.5, batches: 300, hoursSeen: 1, filter: []byte("junk")},
	}}

	app := NewApp(sql, nil, validate.DefaultPolicy(), 20, zerolog.Nop())

	req := httptest.NewRequest("GET", "/signals/metrics/daily?day=2026-03-01", nil)
	rr := httptest.NewRecorder()
	app.MetricsDaily(rr, req)

	var resp struct {
		Metrics []domain.MetricReport `json:"metrics"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Metrics) != 0 {
		t.Fatalf("metrics = %+v, want none", resp.Metrics)
	}
}

func TestMetricsDailyRejectsBadDay(t *testing.T) {
	app := NewApp(&reportTestSQL{}, nil, validate.DefaultPolicy(), 20, zerolog.Nop())

	req := httptest.NewRequest("GET", "/signals/metrics/daily?day=March-1st", nil)
	rr := httptest.NewRecorder()
	app.MetricsDaily(rr, req)

	if rr.Code != 400 {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestIngestContractMatchesPolicy(t *testing.T) {
	policy := validate.DefaultPolicy()
	app := NewApp(nil, nil, policy, 20, zerolog.Nop())

	req := httptest.NewRequest("GET", "/signals/ingest", nil)
	rr := httptest.NewRecorder()
	app.IngestContract(rr, req)

	if rr.Code != 200 {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var resp struct {
		Version         string   `json:"version"`
		MetricAllowlist []string `json:"metricAllowlist"`
		EpsilonMin      float64  `json:"epsilonMin"`
		EpsilonMax      float64  `json:"epsilonMax"`
		MaxMetrics      int      `json:"maxMetrics"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Version == "" {
		t.Fatal("contract version missing")
	}
	if len(resp.MetricAllowlist) != len(policy.Allowlist) {
		t.Fatalf("allowlist = %v, want %v", resp.MetricAllowlist, policy.Allowlist)
	}
	if resp.EpsilonMin != policy.EpsilonMin || resp.EpsilonMax != policy.EpsilonMax || resp.MaxMetrics != policy.MaxMetrics {
		t.Fatalf("served bounds %+v do not match policy", resp)
	}
}
