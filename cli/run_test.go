package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/icscript/optimized-builds/campaign"
	"github.com/icscript/optimized-builds/model"
	"github.com/icscript/optimized-builds/proc"
	"github.com/icscript/optimized-builds/registry"
)

// fakeRunner scripts external process results per command name.
type fakeRunner struct {
	handle func(spec proc.Spec) (proc.Result, error)

	buildCalls []proc.Spec
	benchCalls []proc.Spec
}

func (f *fakeRunner) Run(_ context.Context, spec proc.Spec) (proc.Result, error) {
	if spec.Name == "cargo" {
		f.buildCalls = append(f.buildCalls, spec)
	} else {
		f.benchCalls = append(f.benchCalls, spec)
	}
	return f.handle(spec)
}

func intPtr(v int) *int { return &v }

func testCampaign() *campaign.Campaign {
	return &campaign.Campaign{
		Build: campaign.Build{Package: "polkadot", Binary: "polkadot"},
		Configurations: []campaign.Entry{
			{Label: "fat-1", Toolchain: "stable", TargetCPU: "native", CodegenUnits: 1, LTO: "fat", OptLevel: intPtr(3)},
			{Label: "thin-16", Toolchain: "stable", TargetCPU: "native", CodegenUnits: 16, LTO: "thin", OptLevel: intPtr(3)},
		},
		Suites: []campaign.Suite{
			{
				Name:          "machine",
				Args:          []string{"benchmark", "machine", "--disk-duration", "30"},
				Metrics:       []string{"BLAKE2-256"},
				ParsedTimeout: time.Minute,
			},
		},
		Objectives: []campaign.Objective{
			{Metric: "BLAKE2-256", Direction: "max", Primary: true},
			{Metric: campaign.BuildTimeMetric, Direction: "min"},
		},
	}
}

func newTestRun(t *testing.T, camp *campaign.Campaign, runner proc.Runner) *campaignRun {
	t.Helper()
	store := t.TempDir()
	reg, err := registry.Open(zerolog.Nop(), store, "v1", false)
	require.NoError(t, err)
	return &campaignRun{
		logger:            zerolog.Nop(),
		runner:            runner,
		reg:               reg,
		camp:              camp,
		version:           "v1",
		source:            t.TempDir(),
		buildTimeout:      time.Hour,
		trials:            3,
		varianceThreshold: 0.10,
	}
}

// writeBuiltBinary places the file cargo would have produced.
func writeBuiltBinary(t *testing.T, source, binary string) {
	t.Helper()
	path := filepath.Join(source, "target", "release", binary)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("elf"), 0755))
}

func benchOutput(value float64) string {
	return fmt.Sprintf("BLAKE2-256: %.2f MiB/s\n", value)
}

func TestBuildFailureDoesNotAbortCampaign(t *testing.T) {
	camp := testCampaign()
	runner := &fakeRunner{}
	r := newTestRun(t, camp, runner)

	builds := 0
	runner.handle = func(spec proc.Spec) (proc.Result, error) {
		if spec.Name == "cargo" {
			builds++
			if builds == 1 {
				// First configuration fails to compile.
				return proc.Result{ExitCode: 101, Stderr: "error[E0308]: mismatched types"}, nil
			}
			writeBuiltBinary(t, r.source, "polkadot")
			return proc.Result{ExitCode: 0, Duration: time.Minute}, nil
		}
		return proc.Result{ExitCode: 0, Stdout: benchOutput(1500)}, nil
	}

	configs, _ := camp.Enumerate()
	require.NoError(t, r.execute(context.Background(), configs))

	require.Equal(t, 2, builds, "second configuration still builds after the first fails")

	records := r.reg.Records()
	require.Len(t, records, 2)
	require.Equal(t, model.StatusFailed, records[0].Status)
	require.Contains(t, records[0].LogTail, "E0308")
	require.Equal(t, model.StatusSuccess, records[1].Status)

	points := r.collectPoints(configs)
	require.Len(t, points, 1, "only the successful build becomes a point")
}

func TestBuildTimeoutRecordedAsTimedOut(t *testing.T) {
	camp := testCampaign()
	camp.Configurations = camp.Configurations[:1]
	runner := &fakeRunner{}
	r := newTestRun(t, camp, runner)

	runner.handle = func(spec proc.Spec) (proc.Result, error) {
		return proc.Result{TimedOut: true, ExitCode: -1, Stdout: "Compiling polkadot v1.0.0"}, nil
	}

	configs, _ := camp.Enumerate()
	require.NoError(t, r.execute(context.Background(), configs))

	records := r.reg.Records()
	require.Len(t, records, 1)
	require.Equal(t, model.StatusTimedOut, records[0].Status)
	require.Empty(t, runner.benchCalls, "a failed build is never benchmarked")
}

func TestResumabilitySkipsRecordedSuccesses(t *testing.T) {
	camp := testCampaign()
	runner := &fakeRunner{}
	r := newTestRun(t, camp, runner)

	runner.handle = func(spec proc.Spec) (proc.Result, error) {
		if spec.Name == "cargo" {
			writeBuiltBinary(t, r.source, "polkadot")
			return proc.Result{ExitCode: 0, Duration: time.Minute}, nil
		}
		return proc.Result{ExitCode: 0, Stdout: benchOutput(1500)}, nil
	}

	configs, _ := camp.Enumerate()
	require.NoError(t, r.execute(context.Background(), configs))
	require.Len(t, runner.buildCalls, 2)
	firstPoints := r.collectPoints(configs)

	// Re-running with a fully-populated manifest performs zero builds and
	// zero benchmarks and reproduces the same points.
	runner.buildCalls = nil
	runner.benchCalls = nil
	require.NoError(t, r.execute(context.Background(), configs))
	require.Empty(t, runner.buildCalls)
	require.Empty(t, runner.benchCalls)
	require.Equal(t, firstPoints, r.collectPoints(configs))

	// force-rebuild overrides the cache.
	r.forceRebuild = true
	require.NoError(t, r.execute(context.Background(), configs))
	require.Len(t, runner.buildCalls, 2)
}

func TestMissingMetricFailsSuiteKeepsArtifact(t *testing.T) {
	camp := testCampaign()
	camp.Configurations = camp.Configurations[:1]
	runner := &fakeRunner{}
	r := newTestRun(t, camp, runner)

	runner.handle = func(spec proc.Spec) (proc.Result, error) {
		if spec.Name == "cargo" {
			writeBuiltBinary(t, r.source, "polkadot")
			return proc.Result{ExitCode: 0, Duration: time.Minute}, nil
		}
		// Benchmark runs fine but never prints the required metric.
		return proc.Result{ExitCode: 0, Stdout: "Seq-Write: 400.00 MiB/s\n"}, nil
	}

	configs, _ := camp.Enumerate()
	require.NoError(t, r.execute(context.Background(), configs))

	records := r.reg.Records()
	require.Len(t, records, 1)
	require.Equal(t, model.StatusSuccess, records[0].Status, "artifact record preserved")
	sr := records[0].Benchmarks["machine"]
	require.True(t, sr.Failed)
	require.Contains(t, sr.FailureReason, "missing metric BLAKE2-256")

	// The point is incomplete: present, but excluded from frontier input.
	points := r.collectPoints(configs)
	require.Len(t, points, 1)
	_, hasMetric := points[0].Values["BLAKE2-256"]
	require.False(t, hasMetric)
}

func TestHighVarianceTrialSetFlagged(t *testing.T) {
	camp := testCampaign()
	camp.Configurations = camp.Configurations[:1]
	runner := &fakeRunner{}
	r := newTestRun(t, camp, runner)
	r.trials = 4

	values := []float64{1.5, 1.6, 1.55, 5.0}
	trial := 0
	runner.handle = func(spec proc.Spec) (proc.Result, error) {
		if spec.Name == "cargo" {
			writeBuiltBinary(t, r.source, "polkadot")
			return proc.Result{ExitCode: 0, Duration: time.Minute}, nil
		}
		out := fmt.Sprintf("BLAKE2-256: %.2f GiB/s\n", values[trial])
		trial++
		return proc.Result{ExitCode: 0, Stdout: out}, nil
	}

	configs, _ := camp.Enumerate()
	require.NoError(t, r.execute(context.Background(), configs))

	agg := r.reg.Records()[0].Benchmarks["machine"].Metrics["BLAKE2-256"]
	require.Equal(t, 4, agg.Trials)
	require.True(t, agg.HighVariance, "outlier trial flags the metric rather than being averaged silently")
}

func TestBenchOnlySkipsBuilds(t *testing.T) {
	camp := testCampaign()
	runner := &fakeRunner{}
	r := newTestRun(t, camp, runner)

	runner.handle = func(spec proc.Spec) (proc.Result, error) {
		if spec.Name == "cargo" {
			writeBuiltBinary(t, r.source, "polkadot")
			return proc.Result{ExitCode: 0, Duration: time.Minute}, nil
		}
		return proc.Result{ExitCode: 0, Stdout: benchOutput(1500)}, nil
	}

	configs, _ := camp.Enumerate()
	require.NoError(t, r.execute(context.Background(), configs))
	require.Len(t, runner.buildCalls, 2)

	// bench-only re-runs the suites against the stored artifacts without
	// rebuilding.
	runner.buildCalls = nil
	runner.benchCalls = nil
	r.benchOnly = true
	require.NoError(t, r.execute(context.Background(), configs))
	require.Empty(t, runner.buildCalls)
	require.Len(t, runner.benchCalls, 2*r.trials)
}

func TestRunRejectsNonPositiveTrials(t *testing.T) {
	for _, trials := range []string{"0", "-1"} {
		app := New()
		err := app.Run([]string{AppName, "run", "--trials", trials, "v1"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "trials")
	}
}

func TestInterruptBetweenConfigurationsIsSafe(t *testing.T) {
	camp := testCampaign()
	runner := &fakeRunner{}
	r := newTestRun(t, camp, runner)

	ctx, cancel := context.WithCancel(context.Background())
	runner.handle = func(spec proc.Spec) (proc.Result, error) {
		if spec.Name == "cargo" {
			// Interrupt arrives while the first configuration is active.
			cancel()
			writeBuiltBinary(t, r.source, "polkadot")
			return proc.Result{ExitCode: 0, Duration: time.Minute}, nil
		}
		return proc.Result{ExitCode: 0, Stdout: benchOutput(1500)}, nil
	}

	configs, _ := camp.Enumerate()
	err := r.execute(ctx, configs)
	require.ErrorIs(t, err, context.Canceled)

	// The in-flight benchmark was not recorded and the second
	// configuration never started.
	require.Len(t, runner.buildCalls, 1)
	for _, rec := range r.reg.Records() {
		require.Empty(t, rec.Benchmarks)
	}
}
