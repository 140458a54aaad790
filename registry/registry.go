package registry

// Package registry persists per-configuration build outcomes as a JSON
// manifest. Writes go to a temp file and are renamed into place, so a
// crash mid-write never corrupts the existing manifest. The registry is
// owned by exactly one orchestrator process at a time.

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/icscript/optimized-builds/model"
)

// ErrCorrupt marks an unreadable manifest. It is campaign-fatal and
// requires operator intervention or an explicit reset.
var ErrCorrupt = errors.New("manifest corrupt")

// Manifest is the persisted record list for one version.
type Manifest struct {
	Version string              `json:"version"`
	Records []model.BuildRecord `json:"records"`
}

// Registry wraps one version's manifest plus the artifact store root.
type Registry struct {
	logger   zerolog.Logger
	root     string
	path     string
	manifest Manifest
}

// Open loads the manifest for a version, creating an empty one if none
// exists. A malformed manifest is ErrCorrupt unless reset is set, in which
// case it is discarded after a warning.
func Open(logger zerolog.Logger, storeRoot, version string, reset bool) (*Registry, error) {
	r := &Registry{
		logger:   logger,
		root:     storeRoot,
		path:     filepath.Join(storeRoot, "manifest", version+".json"),
		manifest: Manifest{Version: version},
	}

	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	if err := json.Unmarshal(data, &r.manifest); err != nil {
		if !reset {
			return nil, fmt.Errorf("%w: %s: %v (pass --reset-manifest to discard it)", ErrCorrupt, r.path, err)
		}
		r.logger.Warn().Str("path", r.path).Msg("Discarding corrupt manifest on explicit reset")
		r.manifest = Manifest{Version: version}
	}
	return r, nil
}

// NextSeq returns the next monotonic sequence id.
func (r *Registry) NextSeq() int {
	next := 0
	for _, rec := range r.manifest.Records {
		if rec.Seq >= next {
			next = rec.Seq + 1
		}
	}
	return next
}

// Record appends one build record and persists the manifest.
func (r *Registry) Record(rec model.BuildRecord) error {
	r.manifest.Records = append(r.manifest.Records, rec)
	if err := r.save(); err != nil {
		return fmt.Errorf("failed to record build %d: %w", rec.Seq, err)
	}
	r.logger.Debug().Int("seq", rec.Seq).Str("status", string(rec.Status)).Msg("Recorded build")
	return nil
}

// AttachBenchmarks stores one suite result on the record with the given
// sequence id and persists the manifest. Re-running a suite overwrites
// that suite's summary only.
func (r *Registry) AttachBenchmarks(seq int, res model.SuiteResult) error {
	for i := range r.manifest.Records {
		rec := &r.manifest.Records[i]
		if rec.Seq != seq {
			continue
		}
		if rec.Benchmarks == nil {
			rec.Benchmarks = map[string]model.SuiteResult{}
		}
		rec.Benchmarks[res.Suite] = res
		if err := r.save(); err != nil {
			return fmt.Errorf("failed to record benchmark for build %d: %w", seq, err)
		}
		return nil
	}
	return fmt.Errorf("no build record with seq %d", seq)
}

// LatestSuccess returns the newest record for the hash if it is a success
// and its binary is still present on disk. A claimed success whose binary
// is gone is stale and reported as absent so the configuration rebuilds.
func (r *Registry) LatestSuccess(hash string) (model.BuildRecord, bool) {
	for i := len(r.manifest.Records) - 1; i >= 0; i-- {
		rec := r.manifest.Records[i]
		if rec.Hash != hash {
			continue
		}
		if rec.Status != model.StatusSuccess {
			return model.BuildRecord{}, false
		}
		if _, err := os.Stat(r.BinaryPath(rec)); err != nil {
			r.logger.Warn().
				Int("seq", rec.Seq).
				Str("binary", rec.Binary).
				Msg("Manifest claims success but artifact is missing, treating entry as stale")
			return model.BuildRecord{}, false
		}
		return rec, true
	}
	return model.BuildRecord{}, false
}

// Successes returns the latest fresh success record per hash, ordered by
// sequence id.
func (r *Registry) Successes() []model.BuildRecord {
	latest := map[string]model.BuildRecord{}
	for _, rec := range r.manifest.Records {
		latest[rec.Hash] = rec
	}
	var out []model.BuildRecord
	for _, rec := range r.manifest.Records {
		cur := latest[rec.Hash]
		if cur.Seq != rec.Seq || rec.Status != model.StatusSuccess {
			continue
		}
		if _, err := os.Stat(r.BinaryPath(rec)); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Records returns all records in append order.
func (r *Registry) Records() []model.BuildRecord {
	return r.manifest.Records
}

// BinaryPath resolves a record's binary path against the store root.
func (r *Registry) BinaryPath(rec model.BuildRecord) string {
	return filepath.Join(r.root, rec.Binary)
}

// Root returns the artifact store root.
func (r *Registry) Root() string {
	return r.root
}

func (r *Registry) save() error {
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	data, err := json.MarshalIndent(r.manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".manifest-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp manifest: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace manifest: %w", err)
	}
	return nil
}
