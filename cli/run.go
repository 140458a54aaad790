package cli

// This file contains the campaign orchestration: enumerate, build,
// benchmark, select, render. Strictly sequential: one configuration
// builds and is benchmarked to completion before the next begins, because
// both saturate the machine and overlap would invalidate comparisons.

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/icscript/optimized-builds/campaign"
	"github.com/icscript/optimized-builds/model"
	"github.com/icscript/optimized-builds/pareto"
	"github.com/icscript/optimized-builds/proc"
	"github.com/icscript/optimized-builds/registry"
	"github.com/icscript/optimized-builds/report"
)

type campaignRun struct {
	logger  zerolog.Logger
	runner  proc.Runner
	reg     *registry.Registry
	camp    *campaign.Campaign
	version string
	source  string

	buildTimeout      time.Duration
	trials            int
	varianceThreshold float64
	forceRebuild      bool
	benchOnly         bool
}

func (a *App) runCampaign(ctx *cli.Context) error {
	version := ctx.Args().First()
	if version == "" {
		return fmt.Errorf("no version specified: please provide the version/target identifier (e.g. 'stable2509-2')")
	}
	if trials := ctx.Int("trials"); trials < 1 {
		return fmt.Errorf("invalid trials %d: at least one trial is required", trials)
	}

	// Configuration mistakes are operator errors; they abort before any
	// build starts.
	camp, err := campaign.Load(ctx.String("campaign"))
	if err != nil {
		return err
	}
	configs, collapsed := camp.Enumerate()
	for hash, labels := range collapsed {
		a.logger.Info().
			Str("hash", hash[:16]).
			Strs("labels", labels).
			Msg("Duplicate configurations collapsed")
	}

	reg, err := registry.Open(a.logger, ctx.String("store"), version, ctx.Bool("reset-manifest"))
	if err != nil {
		return err
	}

	r := &campaignRun{
		logger:            a.logger,
		runner:            proc.NewRunner(),
		reg:               reg,
		camp:              camp,
		version:           version,
		source:            ctx.String("source"),
		buildTimeout:      ctx.Duration("build-timeout"),
		trials:            ctx.Int("trials"),
		varianceThreshold: ctx.Float64("variance-threshold"),
		forceRebuild:      ctx.Bool("force-rebuild"),
		benchOnly:         ctx.Bool("bench-only"),
	}

	a.logger.Info().
		Str("version", version).
		Int("configurations", len(configs)).
		Int("suites", len(camp.Suites)).
		Msg("Starting campaign")

	if err := r.execute(ctx.Context, configs); err != nil {
		return err
	}

	points := r.collectPoints(configs)
	if len(points) == 0 {
		return cli.Exit("no configuration built successfully", 1)
	}
	return r.render(os.Stdout, points)
}

func (r *campaignRun) execute(ctx context.Context, configs []model.BuildConfiguration) error {
	for _, cfg := range configs {
		// Interrupts are honored at the configuration boundary; the
		// manifest reflects exactly the completed configurations.
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, justBuilt, skip, err := r.ensureBuilt(ctx, cfg)
		if err != nil {
			return err
		}
		if skip {
			continue
		}

		for _, suite := range r.camp.Suites {
			if !justBuilt && !r.benchOnly {
				if sr, ok := rec.Benchmarks[suite.Name]; ok && !sr.Failed {
					r.logger.Debug().
						Str("label", cfg.Label).
						Str("suite", suite.Name).
						Msg("Benchmark already recorded, skipping")
					continue
				}
			}

			res := r.benchmarkSuite(ctx, rec, suite)
			// An interrupted benchmark must not be recorded.
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := r.reg.AttachBenchmarks(rec.Seq, res); err != nil {
				return err
			}
			if rec.Benchmarks == nil {
				rec.Benchmarks = map[string]model.SuiteResult{}
			}
			rec.Benchmarks[suite.Name] = res
		}
	}
	return nil
}

// ensureBuilt resolves a configuration to a successful build record,
// building it unless resumability or bench-only mode supplies one. skip is
// set when there is nothing to benchmark for this configuration.
func (r *campaignRun) ensureBuilt(ctx context.Context, cfg model.BuildConfiguration) (rec model.BuildRecord, justBuilt, skip bool, err error) {
	hash := cfg.Hash()

	if r.benchOnly {
		prev, ok := r.reg.LatestSuccess(hash)
		if !ok {
			r.logger.Warn().
				Str("label", cfg.Label).
				Str("hash", cfg.ShortHash()).
				Msg("No built artifact for configuration, skipping (bench-only)")
			return model.BuildRecord{}, false, true, nil
		}
		return prev, false, false, nil
	}

	if !r.forceRebuild {
		if prev, ok := r.reg.LatestSuccess(hash); ok {
			r.logger.Info().
				Str("label", cfg.Label).
				Str("hash", cfg.ShortHash()).
				Msg("Already built, skipping (use --force-rebuild to override)")
			return prev, false, false, nil
		}
	}

	rec, err = r.buildConfiguration(ctx, cfg)
	if err != nil {
		return model.BuildRecord{}, false, false, err
	}
	if rec.Status != model.StatusSuccess {
		// A single bad configuration never aborts the campaign.
		return rec, false, true, nil
	}
	return rec, true, false, nil
}

// collectPoints derives the Pareto view from the manifest: one point per
// latest successful build of a campaign configuration, carrying every
// objective value that benchmarking produced.
func (r *campaignRun) collectPoints(configs []model.BuildConfiguration) []pareto.Point {
	inCampaign := map[string]bool{}
	for _, cfg := range configs {
		inCampaign[cfg.Hash()] = true
	}

	var points []pareto.Point
	for _, rec := range r.reg.Successes() {
		if !inCampaign[rec.Hash] {
			continue
		}
		values := map[string]float64{
			campaign.BuildTimeMetric: rec.BuildDuration.Seconds(),
		}
		for _, o := range r.camp.Objectives {
			if agg, ok := rec.Aggregate(o.Metric); ok {
				values[o.Metric] = agg.Mean
			}
		}
		points = append(points, pareto.Point{Record: rec, Values: values})
	}
	return points
}

func (r *campaignRun) render(w io.Writer, points []pareto.Point) error {
	objectives := make([]pareto.Objective, 0, len(r.camp.Objectives))
	for _, o := range r.camp.Objectives {
		objectives = append(objectives, pareto.Objective{
			Metric:   o.Metric,
			Maximize: o.Direction == "max",
			Primary:  o.Primary,
		})
	}

	complete, incomplete := pareto.Split(points, objectives)
	frontier := pareto.Frontier(complete, objectives)

	r.logger.Info().
		Int("points", len(points)).
		Int("frontier", len(frontier)).
		Int("incomplete", len(incomplete)).
		Msg("Frontier computed")

	return report.Render(w, complete, incomplete, frontier, objectives)
}

func (a *App) report(ctx *cli.Context) error {
	version := ctx.Args().First()
	if version == "" {
		return fmt.Errorf("no version specified: please provide the version/target identifier (e.g. 'stable2509-2')")
	}

	camp, err := campaign.Load(ctx.String("campaign"))
	if err != nil {
		return err
	}
	reg, err := registry.Open(a.logger, ctx.String("store"), version, false)
	if err != nil {
		return err
	}

	configs, _ := camp.Enumerate()
	r := &campaignRun{logger: a.logger, reg: reg, camp: camp, version: version}

	points := r.collectPoints(configs)
	if len(points) == 0 {
		return cli.Exit("no successful builds recorded for this version", 1)
	}
	return r.render(os.Stdout, points)
}
