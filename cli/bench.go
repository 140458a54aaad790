package cli

// This file contains the benchmark runner. Benchmarks run strictly one at
// a time, never concurrently with each other or with a build: both consume
// the whole machine and overlap would invalidate cross-configuration
// timing comparisons.

import (
	"context"
	"fmt"
	"strings"

	"github.com/icscript/optimized-builds/benchparse"
	"github.com/icscript/optimized-builds/campaign"
	"github.com/icscript/optimized-builds/model"
	"github.com/icscript/optimized-builds/proc"
)

// benchmarkSuite runs the suite against one artifact for the configured
// number of trials and aggregates the metrics. Every trial uses identical
// invocation parameters so the values are comparable. A crash or a missing
// required metric fails this (artifact, suite) pair only; the build record
// is untouched.
func (r *campaignRun) benchmarkSuite(ctx context.Context, rec model.BuildRecord, suite campaign.Suite) model.SuiteResult {
	result := model.SuiteResult{Suite: suite.Name, Trials: r.trials}
	binary := r.reg.BinaryPath(rec)

	fail := func(reason string) model.SuiteResult {
		result.Failed = true
		result.FailureReason = reason
		r.logger.Error().
			Str("label", rec.Config.Label).
			Str("hash", rec.Config.ShortHash()).
			Str("suite", suite.Name).
			Str("reason", reason).
			Msg("Benchmark failed")
		return result
	}

	samples := map[string][]float64{}
	for trial := 0; trial < r.trials; trial++ {
		r.logger.Info().
			Str("label", rec.Config.Label).
			Str("suite", suite.Name).
			Int("trial", trial+1).
			Int("trials", r.trials).
			Msg("Running benchmark")

		res, err := r.runner.Run(ctx, proc.Spec{
			Name:    binary,
			Args:    suite.Args,
			Timeout: suite.ParsedTimeout,
		})
		if err != nil {
			return fail(fmt.Sprintf("failed to execute benchmark: %v", err))
		}
		if res.TimedOut {
			return fail(fmt.Sprintf("benchmark timed out after %s", suite.ParsedTimeout))
		}
		if res.ExitCode != 0 {
			r.logger.Debug().Str("tail", tailOf(res.Stderr)).Msg("Benchmark stderr")
			return fail(fmt.Sprintf("benchmark exited with code %d", res.ExitCode))
		}

		metrics, err := benchparse.Parse(strings.NewReader(res.Stdout))
		if err != nil {
			return fail(fmt.Sprintf("failed to parse benchmark output: %v", err))
		}
		for _, name := range suite.Metrics {
			value, ok := metrics[name]
			if !ok {
				return fail(fmt.Sprintf("missing metric %s", name))
			}
			samples[name] = append(samples[name], value)
		}
	}

	result.Metrics = map[string]model.Aggregate{}
	for name, values := range samples {
		agg := model.NewAggregate(values)
		if agg.Mean != 0 && agg.Stddev/agg.Mean > r.varianceThreshold {
			agg.HighVariance = true
			r.logger.Warn().
				Str("label", rec.Config.Label).
				Str("suite", suite.Name).
				Str("metric", name).
				Float64("mean", agg.Mean).
				Float64("stddev", agg.Stddev).
				Float64("threshold", r.varianceThreshold).
				Msg("Metric variance above threshold, review before trusting")
		}
		result.Metrics[name] = agg
	}
	return result
}
