package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Toolchain is the release channel the build uses.
type Toolchain string

const (
	ToolchainStable  Toolchain = "stable"
	ToolchainNightly Toolchain = "nightly"
)

// LTOMode selects the link-time-optimization level.
type LTOMode string

const (
	LTOOff  LTOMode = "off"
	LTOThin LTOMode = "thin"
	LTOFat  LTOMode = "fat"
)

// TargetCPUGeneric means no target-cpu flag is passed at all.
const TargetCPUGeneric = "generic"

// BuildConfiguration is one point in build-flag space. Constructed once
// during enumeration and never mutated afterwards.
type BuildConfiguration struct {
	// Human-readable label used for artifact file names and reporting
	Label string `json:"label"`
	// Toolchain channel (stable or nightly)
	Toolchain Toolchain `json:"toolchain"`
	// Target micro-architecture passed as -C target-cpu
	TargetCPU string `json:"target_cpu"`
	// Number of codegen units
	CodegenUnits int `json:"codegen_units"`
	// Link-time-optimization mode
	LTO LTOMode `json:"lto"`
	// Optimization level (0-3)
	OptLevel int `json:"opt_level"`
	// Optional feature set forwarded to the build unchanged
	PatchSet string `json:"patch_set,omitempty"`
}

// Hash returns the configuration identity: a sha256 over a canonical field
// encoding. The label is excluded, so two entries differing only in label
// are the same configuration.
func (c BuildConfiguration) Hash() string {
	canonical := fmt.Sprintf("toolchain=%s|target-cpu=%s|codegen-units=%d|lto=%s|opt-level=%d|patch-set=%s",
		c.Toolchain, c.TargetCPU, c.CodegenUnits, c.LTO, c.OptLevel, c.PatchSet)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// ShortHash returns the first 16 hex characters of the hash, used in file
// names and log fields.
func (c BuildConfiguration) ShortHash() string {
	return c.Hash()[:16]
}
