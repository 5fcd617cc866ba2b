package service

import (
	"sort"
	"time"
)

// LatencyStats summarizes a latency sample in milliseconds.
type LatencyStats struct {
	Count int     `json:"count"`
	Mean  float64 `json:"meanMs"`
	P50   float64 `json:"p50Ms"`
	P95   float64 `json:"p95Ms"`
	P99   float64 `json:"p99Ms"`
}

// ComputeLatencyStats computes nearest-rank percentiles over the sample.
// An empty sample yields the zero value.
func ComputeLatencyStats(durations []time.Duration) LatencyStats {
	if len(durations) == 0 {
		return LatencyStats{}
	}

	millis := make([]float64, len(durations))
	var total float64
	for i, d := range durations {
		ms := float64(d) / float64(time.Millisecond)
		millis[i] = ms
		total += ms
	}
	sort.Float64s(millis)

	return LatencyStats{
		Count: len(millis),
		Mean:  total / float64(len(millis)),
		P50:   nearestRank(millis, 50),
		P95:   nearestRank(millis, 95),
		P99:   nearestRank(millis, 99),
	}
}

// nearestRank picks the nearest-rank percentile from a sorted sample:
// rank = ceil(p/100 * n), 1-indexed.
func nearestRank(sorted []float64, percentile int) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	rank := (percentile*n + 99) / 100
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return sorted[rank-1]
}
