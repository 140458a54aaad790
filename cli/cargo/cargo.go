package cargo

// cargo.go contains pure builders translating a build configuration into
// cargo's environment-variable and command-line conventions.

import (
	"fmt"
	"path/filepath"
	"strings"

	"al.essio.dev/pkg/shellescape"

	"github.com/icscript/optimized-builds/model"
)

// BuildEnv returns the environment overrides encoding the configuration's
// profile settings. Cargo reads CARGO_PROFILE_RELEASE_* over Cargo.toml,
// so the source tree is never modified.
func BuildEnv(cfg model.BuildConfiguration) []string {
	env := []string{
		fmt.Sprintf("CARGO_PROFILE_RELEASE_LTO=%s", cfg.LTO),
		fmt.Sprintf("CARGO_PROFILE_RELEASE_OPT_LEVEL=%d", cfg.OptLevel),
		fmt.Sprintf("CARGO_PROFILE_RELEASE_CODEGEN_UNITS=%d", cfg.CodegenUnits),
	}
	if cfg.TargetCPU != model.TargetCPUGeneric {
		env = append(env, fmt.Sprintf("RUSTFLAGS=-C target-cpu=%s", cfg.TargetCPU))
	}
	return env
}

// BuildArgs returns the cargo arguments building the given package with
// the configuration's toolchain channel.
func BuildArgs(cfg model.BuildConfiguration, pkg string) []string {
	args := []string{fmt.Sprintf("+%s", cfg.Toolchain), "build", "--release", "--locked"}
	if pkg != "" {
		args = append(args, "-p", pkg)
	}
	if cfg.PatchSet != "" {
		args = append(args, "--features", cfg.PatchSet)
	}
	return args
}

// Command returns the full shell-quoted command line for logs and failure
// records.
func Command(cfg model.BuildConfiguration, pkg string) string {
	parts := make([]string, 0, 8)
	parts = append(parts, "cargo")
	for _, arg := range BuildArgs(cfg, pkg) {
		parts = append(parts, shellescape.Quote(arg))
	}
	return strings.Join(parts, " ")
}

// BinaryPath returns where cargo leaves the built binary.
func BinaryPath(sourceDir, binary string) string {
	return filepath.Join(sourceDir, "target", "release", binary)
}
