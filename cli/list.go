package cli

// This file contains the list command for displaying recorded builds.

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/icscript/optimized-builds/model"
	"github.com/icscript/optimized-builds/registry"
)

func (a *App) list(ctx *cli.Context) error {
	version := ctx.Args().First()
	if version == "" {
		return fmt.Errorf("no version specified: please provide the version/target identifier (e.g. 'stable2509-2')")
	}
	limit := ctx.Int("limit")

	reg, err := registry.Open(a.logger, ctx.String("store"), version, false)
	if err != nil {
		return err
	}

	records := append([]model.BuildRecord(nil), reg.Records()...)
	if len(records) == 0 {
		fmt.Println("No builds recorded")
		return nil
	}

	// Sort by sequence id (newest first)
	sort.Slice(records, func(i, j int) bool {
		return records[i].Seq > records[j].Seq
	})

	displayRecords := records
	if limit > 0 && limit < len(displayRecords) {
		displayRecords = displayRecords[:limit]
	}

	fmt.Printf("\n=== Builds for %s (%d total) ===\n\n", version, len(records))

	for _, rec := range displayRecords {
		timestamp := rec.Timestamp.Format("2006-01-02 15:04:05")
		duration := rec.BuildDuration.Round(time.Second)

		status := "✓"
		if rec.Status != model.StatusSuccess {
			status = "✗"
		}

		fmt.Printf("%s  %s  [%s]  seq=%d  %s  hash=%s\n", status, timestamp, duration, rec.Seq, rec.Status, rec.Hash[:16])
		cfg := rec.Config
		fmt.Printf("   Config: %s, %s, codegen-units=%d, lto=%s, opt-level=%d\n",
			cfg.Toolchain, cfg.TargetCPU, cfg.CodegenUnits, cfg.LTO, cfg.OptLevel)
		if rec.Binary != "" {
			if info, err := os.Stat(reg.BinaryPath(rec)); err == nil {
				fmt.Printf("   Binary: %s (%s)\n", rec.Binary, humanize.Bytes(uint64(info.Size())))
			} else {
				fmt.Printf("   Binary: %s (missing)\n", rec.Binary)
			}
		}
		suites := make([]string, 0, len(rec.Benchmarks))
		for name := range rec.Benchmarks {
			suites = append(suites, name)
		}
		sort.Strings(suites)
		for _, name := range suites {
			sr := rec.Benchmarks[name]
			if sr.Failed {
				fmt.Printf("   Suite %s: failed (%s)\n", sr.Suite, sr.FailureReason)
				continue
			}
			fmt.Printf("   Suite %s: %d metrics over %d trials\n", sr.Suite, len(sr.Metrics), sr.Trials)
		}
		fmt.Println()
	}

	fmt.Printf("Render the comparison table: %s report %s\n", AppName, version)
	return nil
}
