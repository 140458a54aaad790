package cli

// This file contains the build executor: one configuration is compiled
// via an external cargo invocation and the outcome is appended to the
// registry, success or not.

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/icscript/optimized-builds/cli/cargo"
	"github.com/icscript/optimized-builds/model"
	"github.com/icscript/optimized-builds/proc"
)

func (r *campaignRun) buildConfiguration(ctx context.Context, cfg model.BuildConfiguration) (model.BuildRecord, error) {
	seq := r.reg.NextSeq()
	rec := model.BuildRecord{
		Seq:       seq,
		Hash:      cfg.Hash(),
		Config:    cfg,
		Timestamp: time.Now().UTC(),
	}

	pkg := r.camp.Build.Package
	r.logger.Info().
		Str("label", cfg.Label).
		Str("hash", cfg.ShortHash()).
		Int("seq", seq).
		Str("command", cargo.Command(cfg, pkg)).
		Msg("Building configuration")

	// Flags are passed as environment overrides on the child process; the
	// orchestrator's own environment is never touched.
	env := append(os.Environ(), cargo.BuildEnv(cfg)...)

	res, err := r.runner.Run(ctx, proc.Spec{
		Name:    "cargo",
		Args:    cargo.BuildArgs(cfg, pkg),
		Dir:     r.source,
		Env:     env,
		Timeout: r.buildTimeout,
	})
	// An interrupt mid-build discards the in-flight record; the
	// configuration rebuilds on the next run.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return model.BuildRecord{}, ctxErr
	}
	rec.BuildDuration = res.Duration
	rec.ExitCode = res.ExitCode

	switch {
	case err != nil:
		rec.Status = model.StatusFailed
		rec.LogTail = err.Error()
		r.logger.Error().Err(err).Str("label", cfg.Label).Msg("Failed to invoke build")
	case res.TimedOut:
		rec.Status = model.StatusTimedOut
		rec.LogTail = tailOf(res.Stdout + res.Stderr)
		r.logger.Error().
			Str("label", cfg.Label).
			Dur("timeout", r.buildTimeout).
			Msg("Build timed out")
	case res.ExitCode != 0:
		rec.Status = model.StatusFailed
		rec.LogTail = tailOf(res.Stdout + res.Stderr)
		r.logger.Error().
			Str("label", cfg.Label).
			Str("hash", cfg.ShortHash()).
			Int("exit_code", res.ExitCode).
			Msg("Build failed")
	default:
		if err := r.storeArtifact(&rec); err != nil {
			rec.Status = model.StatusFailed
			rec.LogTail = err.Error()
			r.logger.Error().Err(err).Str("label", cfg.Label).Msg("Failed to store artifact")
		} else {
			rec.Status = model.StatusSuccess
			r.logger.Info().
				Str("label", cfg.Label).
				Str("binary", rec.Binary).
				Dur("duration", rec.BuildDuration).
				Msg("Build succeeded")
		}
	}

	if err := r.reg.Record(rec); err != nil {
		return model.BuildRecord{}, err
	}
	return rec, nil
}

// storeArtifact relocates the built binary into the store, keyed by label
// plus sequence id so repeated campaigns never overwrite prior artifacts.
func (r *campaignRun) storeArtifact(rec *model.BuildRecord) error {
	src := cargo.BinaryPath(r.source, r.camp.Build.Binary)
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("binary not found after build: %w", err)
	}

	rel := filepath.Join("bin", r.version, fmt.Sprintf("%s_%d.bin", rec.Config.Label, rec.Seq))
	dst := filepath.Join(r.reg.Root(), rel)
	if err := moveFile(src, dst); err != nil {
		return fmt.Errorf("failed to store binary: %w", err)
	}
	rec.Binary = rel
	return nil
}
