package model

import (
	"math"
	"sort"
	"time"
)

// BuildStatus is the outcome of one build attempt.
type BuildStatus string

const (
	StatusSuccess  BuildStatus = "success"
	StatusFailed   BuildStatus = "failed"
	StatusTimedOut BuildStatus = "timed-out"
)

// BuildRecord is one manifest entry. Records are append-only: a rebuild of
// the same configuration appends a new record with a higher sequence id,
// it never edits an existing one.
type BuildRecord struct {
	// Monotonic sequence id across the whole manifest
	Seq int `json:"seq"`
	// Configuration identity hash
	Hash string `json:"hash"`
	// The full configuration, for self-contained reporting
	Config BuildConfiguration `json:"config"`
	// Outcome of the build
	Status BuildStatus `json:"status"`
	// Binary path relative to the store root (success only)
	Binary string `json:"binary,omitempty"`
	// Wall-clock build duration
	BuildDuration time.Duration `json:"build_duration"`
	// Timestamp when the build started
	Timestamp time.Time `json:"timestamp"`
	// Exit code of the build process (-1 on timeout)
	ExitCode int `json:"exit_code"`
	// Bounded tail of captured build output (failures only)
	LogTail string `json:"log_tail,omitempty"`
	// Per-suite benchmark summaries, keyed by suite name
	Benchmarks map[string]SuiteResult `json:"benchmarks,omitempty"`
}

// SuiteResult is the aggregated outcome of benchmarking one artifact with
// one suite. A failed result keeps the artifact record intact; only this
// (artifact, suite) pair is excluded from frontier computation.
type SuiteResult struct {
	Suite         string               `json:"suite"`
	Trials        int                  `json:"trials"`
	Metrics       map[string]Aggregate `json:"metrics,omitempty"`
	Failed        bool                 `json:"failed,omitempty"`
	FailureReason string               `json:"failure_reason,omitempty"`
}

// Aggregate summarizes repeated trials of one metric. All trials of a
// result share identical invocation parameters, so the values are
// comparable.
type Aggregate struct {
	Mean   float64   `json:"mean"`
	Stddev float64   `json:"stddev"`
	Trials int       `json:"trials"`
	Values []float64 `json:"values"`
	// Set when stddev/mean exceeded the configured threshold; the value is
	// surfaced for manual review rather than trusted silently.
	HighVariance bool `json:"high_variance,omitempty"`
}

// NewAggregate computes mean and sample standard deviation over the trial
// values.
func NewAggregate(values []float64) Aggregate {
	agg := Aggregate{Trials: len(values), Values: values}
	if len(values) == 0 {
		return agg
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	agg.Mean = sum / float64(len(values))
	if len(values) > 1 {
		var sq float64
		for _, v := range values {
			d := v - agg.Mean
			sq += d * d
		}
		agg.Stddev = math.Sqrt(sq / float64(len(values)-1))
	}
	return agg
}

// Aggregate looks up a metric aggregate across the suite results of the
// record. Failed suites are skipped. Suites are consulted in name order so
// a metric produced by more than one suite always resolves to the same
// aggregate.
func (r BuildRecord) Aggregate(metric string) (Aggregate, bool) {
	names := make([]string, 0, len(r.Benchmarks))
	for name := range r.Benchmarks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sr := r.Benchmarks[name]
		if sr.Failed {
			continue
		}
		if agg, ok := sr.Metrics[metric]; ok {
			return agg, true
		}
	}
	return Aggregate{}, false
}
