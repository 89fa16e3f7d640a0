package domain

import (
	"context"
	"time"
)

// ContributorRecord is the per-(day, name) submitter-population record the
// suppressor reads: a serialized distinct-submitter filter plus a bitmask of
// the UTC hours in which batches arrived.
type ContributorRecord struct {
	Day       time.Time
	Name      string
	HoursSeen uint32
	Filter    []byte
}

// CounterRepository persists daily metric counters.
//
// ApplyBatch folds every metric of a validated batch into its (day, name)
// counter and merges the submitter token into the day's contributor filter as
// a single atomic unit; a batch is either fully applied or not at all.
type CounterRepository interface {
	ApplyBatch(ctx context.Context, day time.Time, hour int, submitter string, metrics []MetricContribution) error
	Contributors(ctx context.Context, day time.Time) ([]ContributorRecord, error)
	Suppress(ctx context.Context, day time.Time, names []string) error
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
