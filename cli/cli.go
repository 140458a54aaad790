package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

const AppName = "optbuild"

type App struct {
	logger zerolog.Logger
	cli    *cli.App
}

func New() *App {

	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger :=
		log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
		})

	app := &App{
		logger: logger,
		cli: &cli.App{
			Name:  AppName,
			Usage: "Explore cargo build configurations, benchmark the binaries, and select the Pareto frontier",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "verbose",
					Usage: "Enable verbose (debug) logging",
				},
			},
			Before: func(ctx *cli.Context) error {
				if ctx.Bool("verbose") {
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
				return nil
			},
		},
	}
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "run",
		Usage:     "Build and benchmark every configuration in the campaign",
		ArgsUsage: "VERSION",
		Action:    app.runCampaign,
		Flags: []cli.Flag{
			campaignFlag(),
			storeFlag(),
			&cli.StringFlag{
				Name:  "source",
				Usage: "Toolchain working directory (the source tree to build)",
				Value: ".",
			},
			&cli.BoolFlag{
				Name:  "force-rebuild",
				Usage: "Rebuild configurations even when the manifest records a success",
			},
			&cli.BoolFlag{
				Name:  "bench-only",
				Usage: "Skip building and re-benchmark already-built artifacts",
			},
			&cli.IntFlag{
				Name:  "trials",
				Usage: "Benchmark repetitions per suite",
				Value: 3,
			},
			&cli.DurationFlag{
				Name:  "build-timeout",
				Usage: "Wall-clock bound per build",
				Value: 2 * time.Hour,
			},
			&cli.Float64Flag{
				Name:  "variance-threshold",
				Usage: "Flag a metric as high-variance when stddev/mean exceeds this",
				Value: 0.10,
			},
			&cli.BoolFlag{
				Name:  "reset-manifest",
				Usage: "Discard a corrupt manifest instead of aborting",
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "report",
		Usage:     "Recompute the frontier from the manifest and render the comparison table",
		ArgsUsage: "VERSION",
		Action:    app.report,
		Flags: []cli.Flag{
			campaignFlag(),
			storeFlag(),
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "list",
		Usage:     "List recorded builds for a version",
		ArgsUsage: "VERSION",
		Action:    app.list,
		Flags: []cli.Flag{
			storeFlag(),
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of results (default: 20)",
				Value:   20,
			},
		},
	})
	return app
}

func campaignFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "campaign",
		Aliases: []string{"c"},
		Usage:   "Campaign file declaring configurations, suites, and objectives",
		Value:   "campaign.yaml",
	}
}

func storeFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "store",
		Usage: "Artifact store and manifest root",
		Value: ".optbuild",
	}
}

func (a *App) Run(args []string) error {
	return a.cli.Run(args)
}

// SetVersion sets the version information for the CLI application
func (a *App) SetVersion(version, commit, date string) {
	a.cli.Version = version
	if commit != "none" && commit != "" {
		a.cli.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit[:8], date)
	}
}
