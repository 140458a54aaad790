package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAggregateSkipsFailedSuites(t *testing.T) {
	rec := BuildRecord{Benchmarks: map[string]SuiteResult{
		"machine": {
			Suite:         "machine",
			Failed:        true,
			FailureReason: "benchmark exited with code 1",
		},
	}}
	_, ok := rec.Aggregate("BLAKE2-256")
	require.False(t, ok)
}

func TestAggregateResolvesSuitesInNameOrder(t *testing.T) {
	// Two suites both report "Average"; the lookup must always resolve the
	// same one regardless of map iteration order.
	rec := BuildRecord{Benchmarks: map[string]SuiteResult{
		"machine": {
			Suite:   "machine",
			Metrics: map[string]Aggregate{"Average": {Mean: 100}},
		},
		"extrinsic": {
			Suite:   "extrinsic",
			Metrics: map[string]Aggregate{"Average": {Mean: 200}},
		},
	}}

	for i := 0; i < 1000; i++ {
		agg, ok := rec.Aggregate("Average")
		require.True(t, ok)
		require.Equal(t, 200.0, agg.Mean, "lookup must pick the first suite by name")
	}
}

func TestAggregateNameOrderSkipsFailedSuite(t *testing.T) {
	rec := BuildRecord{Benchmarks: map[string]SuiteResult{
		"extrinsic": {
			Suite:         "extrinsic",
			Failed:        true,
			FailureReason: "missing metric Average",
		},
		"machine": {
			Suite:   "machine",
			Metrics: map[string]Aggregate{"Average": {Mean: 100}},
		},
	}}

	agg, ok := rec.Aggregate("Average")
	require.True(t, ok)
	require.Equal(t, 100.0, agg.Mean)
}
