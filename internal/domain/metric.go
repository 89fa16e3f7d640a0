package domain

import "time"

// MetricDailyCounter is the only persisted aggregate: one row per (day, name).
// NoisyCount only ever grows by commutative increments; Epsilon records the
// most recently reported privacy budget so the sum can be debiased later.
type MetricDailyCounter struct {
	Day        time.Time
	Name       string
	NoisyCount int64
	Epsilon    float64
	Batches    int64
	Suppressed bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// MetricReport is the redacted shape the read path exposes for a counter that
// cleared the contributor floor.
type MetricReport struct {
	Day                   time.Time `json:"day"`
	Name                  string    `json:"name"`
	NoisyCount            int64     `json:"noisyCount"`
	Epsilon               float64   `json:"epsilon"`
	Batches               int64     `json:"batches"`
	EstimatedContributors int       `json:"estimatedContributors"`
}

// MetricContribution is one metric entry of a validated batch, ready to be
// folded into the day's counter.
type MetricContribution struct {
	Name       string
	NoisyCount int64
	Epsilon    float64
}

// Batch is the transient ingestion payload. It is validated, folded into
// counters, and discarded; it is never persisted as submitted.
type Batch struct {
	BatchID   string
	Timestamp time.Time
	Metrics   []MetricContribution
}

// Day normalizes t to midnight UTC, the aggregation granularity.
func Day(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
