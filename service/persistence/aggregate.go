// SPDX-License-Identifier: BSD-3-Clause

package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidBucketSize indicates a requested bucket duration is not one of
// the closed set this gateway permits.
var ErrInvalidBucketSize = errors.New("persistence: invalid bucket size")

// allowedBuckets is the closed set of history aggregation bucket sizes.
var allowedBuckets = map[time.Duration]bool{
	time.Second:            true,
	5 * time.Second:        true,
	10 * time.Second:       true,
	30 * time.Second:       true,
	time.Minute:            true,
	5 * time.Minute:        true,
	15 * time.Minute:       true,
	30 * time.Minute:       true,
	time.Hour:              true,
	4 * time.Hour:          true,
	24 * time.Hour:         true,
}

// Aggregate is a supported bucket aggregation function.
type Aggregate string

const (
	AggregateAvg   Aggregate = "AVG"
	AggregateMin   Aggregate = "MIN"
	AggregateMax   Aggregate = "MAX"
	AggregateSum   Aggregate = "SUM"
	AggregateCount Aggregate = "COUNT"
	AggregateFirst Aggregate = "FIRST"
	AggregateLast  Aggregate = "LAST"
)

// Bucket is one aggregated time window of a tag's history.
type Bucket struct {
	Start time.Time
	Value float64
	Count int
}

// QueryHistoryBucketed aggregates tag's history over [start, end] into
// fixed-size windows of size bucketSize, which must be one of the closed
// set {1s,5s,10s,30s,1m,5m,15m,30m,1h,4h,1d}. Non-numeric samples
// (Value == nil) are excluded from the aggregation but still counted
// toward COUNT.
func (s *Store) QueryHistoryBucketed(ctx context.Context, tag string, start, end time.Time, bucketSize time.Duration, agg Aggregate) ([]Bucket, error) {
	if !allowedBuckets[bucketSize] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBucketSize, bucketSize)
	}
	records, err := s.QueryHistory(ctx, tag, start, end)
	if err != nil {
		return nil, err
	}

	type acc struct {
		sum   float64
		count int
		n     int // numeric samples only
		min   float64
		max   float64
		first float64
		last  float64
		set   bool
	}
	buckets := make(map[int64]*acc)
	var order []int64

	for _, r := range records {
		bucketStart := r.Time.Truncate(bucketSize).Unix()
		a, ok := buckets[bucketStart]
		if !ok {
			a = &acc{}
			buckets[bucketStart] = a
			order = append(order, bucketStart)
		}
		a.count++
		if r.Value == nil {
			continue
		}
		v := *r.Value
		a.n++
		if !a.set {
			a.min, a.max, a.first = v, v, v
			a.set = true
		}
		a.sum += v
		a.last = v
		if v < a.min {
			a.min = v
		}
		if v > a.max {
			a.max = v
		}
	}

	out := make([]Bucket, 0, len(order))
	for _, bucketStart := range order {
		a := buckets[bucketStart]
		var value float64
		switch agg {
		case AggregateAvg:
			if a.n > 0 {
				value = a.sum / float64(a.n)
			}
		case AggregateMin:
			value = a.min
		case AggregateMax:
			value = a.max
		case AggregateSum:
			value = a.sum
		case AggregateCount:
			value = float64(a.count)
		case AggregateFirst:
			value = a.first
		case AggregateLast:
			value = a.last
		default:
			return nil, fmt.Errorf("persistence: unknown aggregate %q", agg)
		}
		out = append(out, Bucket{Start: time.Unix(bucketStart, 0).UTC(), Value: value, Count: a.count})
	}
	return out, nil
}
