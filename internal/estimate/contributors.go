// Package estimate approximates how many distinct clients contributed to a
// day's metric without ever recording who they were.
//
// Submitter tokens rotate hourly, so one client active all day leaves at most
// one token per active hour. The filter therefore tracks two things: a bloom
// filter of every token seen and a bitmask of the UTC hours that saw traffic.
// distinctTokens / activeHours then lower-bounds the true client count, which
// is the conservative direction for a suppression floor: undercounting only
// ever suppresses more.
package estimate

import (
	"fmt"

	"github.com/bits-and-blooms/bloom/v3"
)

const (
	// expectedSubmitters sizes the bloom filter; beyond this the cardinality
	// estimate degrades gracefully rather than failing.
	expectedSubmitters = 100000
	falsePositiveRate  = 0.01
)

// Contributors accumulates the submitter population of one (day, metric).
type Contributors struct {
	filter    *bloom.BloomFilter
	hoursSeen uint32
}

func NewContributors() *Contributors {
	return &Contributors{
		filter: bloom.NewWithEstimates(expectedSubmitters, falsePositiveRate),
	}
}

// Observe records one accepted batch: the ephemeral token that submitted it
// and the UTC hour it arrived in.
func (c *Contributors) Observe(token string, hour int) {
	c.filter.AddString(token)
	c.hoursSeen |= 1 << uint(hour%24)
}

// ActiveHours is the number of rotation windows in which batches arrived.
func (c *Contributors) ActiveHours() int {
	n := 0
	for h := uint(0); h < 24; h++ {
		if c.hoursSeen&(1<<h) != 0 {
			n++
		}
	}
	return n
}

// DistinctTokens approximates the number of distinct ephemeral tokens seen.
func (c *Contributors) DistinctTokens() int {
	return int(c.filter.ApproximatedSize())
}

// Estimate returns a conservative lower bound on distinct contributing
// clients: a single client produces at most one token per active hour, so
// clients >= distinctTokens / activeHours.
func (c *Contributors) Estimate() int {
	hours := c.ActiveHours()
	if hours == 0 {
		return 0
	}
	return (c.DistinctTokens() + hours - 1) / hours
}

// HoursSeen exposes the raw hour bitmask for persistence.
func (c *Contributors) HoursSeen() uint32 { return c.hoursSeen }

// MarshalBinary serializes the underlying filter. The hour mask is persisted
// separately alongside it.
func (c *Contributors) MarshalBinary() ([]byte, error) {
	return c.filter.MarshalBinary()
}

// Load reconstructs a Contributors from a persisted filter and hour mask. A
// nil or empty blob yields a fresh filter, so a missing row reads as zero
// contributors.
func Load(blob []byte, hoursSeen uint32) (*Contributors, error) {
	c := NewContributors()
	c.hoursSeen = hoursSeen
	if len(blob) == 0 {
		return c, nil
	}
	if err := c.filter.UnmarshalBinary(blob); err != nil {
		return nil, fmt.Errorf("decode contributor filter: %w", err)
	}
	return c, nil
}
