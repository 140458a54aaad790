package campaign

// Package campaign loads and validates the declared configuration space.
// Validation is all-or-nothing: a single invalid entry aborts the campaign
// before any build starts.

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/icscript/optimized-builds/model"
)

// ErrInvalid marks a configuration mistake. It is an operator error and is
// campaign-fatal.
var ErrInvalid = errors.New("invalid campaign")

var (
	allowedToolchains = []string{string(model.ToolchainStable), string(model.ToolchainNightly)}
	allowedLTO        = []string{string(model.LTOOff), string(model.LTOThin), string(model.LTOFat)}
	allowedCGU        = []int{1, 16, 256}
	allowedTargetCPUs = []string{
		model.TargetCPUGeneric, "native",
		"alderlake", "raptorlake", "skylake", "icelake-server", "sapphirerapids",
		"znver2", "znver3", "znver4",
	}
)

// BuildTimeMetric is the implicit objective fed from the build duration.
const BuildTimeMetric = "build-time"

const defaultSuiteTimeout = 10 * time.Minute

// Entry is one declared configuration descriptor.
type Entry struct {
	Label        string `yaml:"label"`
	Toolchain    string `yaml:"toolchain"`
	TargetCPU    string `yaml:"target-cpu"`
	CodegenUnits int    `yaml:"codegen-units"`
	LTO          string `yaml:"lto"`
	OptLevel     *int   `yaml:"opt-level"`
	PatchSet     string `yaml:"patch-set"`
	// Disabled entries are skipped without affecting the identity of the
	// remaining entries.
	Disabled bool `yaml:"disabled"`
}

// Suite describes one benchmark invocation. All trials of a suite use the
// same arguments and timeout so the trial values are comparable.
type Suite struct {
	Name    string   `yaml:"name"`
	Args    []string `yaml:"args"`
	Timeout string   `yaml:"timeout"`
	// Metric names that must appear in the benchmark output
	Metrics []string `yaml:"metrics"`

	// Parsed from Timeout during validation
	ParsedTimeout time.Duration `yaml:"-"`
}

// Objective declares one frontier dimension.
type Objective struct {
	Metric    string `yaml:"metric"`
	Direction string `yaml:"direction"` // max | min
	Primary   bool   `yaml:"primary"`
}

// Build names the package and binary the toolchain produces.
type Build struct {
	Package string `yaml:"package"`
	Binary  string `yaml:"binary"`
}

// Campaign is the parsed campaign file.
type Campaign struct {
	Build          Build       `yaml:"build"`
	Configurations []Entry     `yaml:"configurations"`
	Suites         []Suite     `yaml:"suites"`
	Objectives     []Objective `yaml:"objectives"`
}

// Load reads and validates a campaign file.
func Load(path string) (*Campaign, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read campaign file: %w", err)
	}
	var c Campaign
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrInvalid, path, err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Campaign) validate() error {
	var result *multierror.Error

	if c.Build.Package == "" {
		result = multierror.Append(result, errors.New("build.package must be set"))
	}
	if c.Build.Binary == "" {
		c.Build.Binary = c.Build.Package
	}

	if len(c.Configurations) == 0 {
		result = multierror.Append(result, errors.New("no configurations declared"))
	}
	for i := range c.Configurations {
		e := &c.Configurations[i]
		if e.Label == "" {
			e.Label = fmt.Sprintf("cfg-%d", i)
		}
		if e.TargetCPU == "" {
			e.TargetCPU = model.TargetCPUGeneric
		}
		if !lo.Contains(allowedToolchains, e.Toolchain) {
			result = multierror.Append(result, fmt.Errorf("configuration %q: toolchain %q not in %v", e.Label, e.Toolchain, allowedToolchains))
		}
		if !lo.Contains(allowedTargetCPUs, e.TargetCPU) {
			result = multierror.Append(result, fmt.Errorf("configuration %q: target-cpu %q not in %v", e.Label, e.TargetCPU, allowedTargetCPUs))
		}
		if !lo.Contains(allowedCGU, e.CodegenUnits) {
			result = multierror.Append(result, fmt.Errorf("configuration %q: codegen-units %d not in %v", e.Label, e.CodegenUnits, allowedCGU))
		}
		if !lo.Contains(allowedLTO, e.LTO) {
			result = multierror.Append(result, fmt.Errorf("configuration %q: lto %q not in %v", e.Label, e.LTO, allowedLTO))
		}
		if e.OptLevel == nil {
			result = multierror.Append(result, fmt.Errorf("configuration %q: opt-level missing", e.Label))
		} else if *e.OptLevel < 0 || *e.OptLevel > 3 {
			result = multierror.Append(result, fmt.Errorf("configuration %q: opt-level %d not in 0..3", e.Label, *e.OptLevel))
		}
	}

	suiteMetrics := map[string]bool{BuildTimeMetric: true}
	suiteNames := map[string]bool{}
	if len(c.Suites) == 0 {
		result = multierror.Append(result, errors.New("no benchmark suites declared"))
	}
	for i := range c.Suites {
		s := &c.Suites[i]
		if s.Name == "" {
			result = multierror.Append(result, fmt.Errorf("suite %d: name missing", i))
			continue
		}
		if suiteNames[s.Name] {
			result = multierror.Append(result, fmt.Errorf("suite %q declared twice", s.Name))
		}
		suiteNames[s.Name] = true
		if len(s.Args) == 0 {
			result = multierror.Append(result, fmt.Errorf("suite %q: args missing", s.Name))
		}
		if len(s.Metrics) == 0 {
			result = multierror.Append(result, fmt.Errorf("suite %q: metrics missing", s.Name))
		}
		s.ParsedTimeout = defaultSuiteTimeout
		if s.Timeout != "" {
			d, err := time.ParseDuration(s.Timeout)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("suite %q: invalid timeout %q", s.Name, s.Timeout))
			} else {
				s.ParsedTimeout = d
			}
		}
		for _, m := range s.Metrics {
			suiteMetrics[m] = true
		}
	}

	if len(c.Objectives) == 0 {
		result = multierror.Append(result, errors.New("no objectives declared"))
	}
	primaries := 0
	for _, o := range c.Objectives {
		if o.Direction != "max" && o.Direction != "min" {
			result = multierror.Append(result, fmt.Errorf("objective %q: direction %q not in [max min]", o.Metric, o.Direction))
		}
		if !suiteMetrics[o.Metric] {
			result = multierror.Append(result, fmt.Errorf("objective %q: metric not produced by any suite", o.Metric))
		}
		if o.Primary {
			primaries++
		}
	}
	if len(c.Objectives) > 0 && primaries != 1 {
		result = multierror.Append(result, fmt.Errorf("exactly one objective must be primary, got %d", primaries))
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalid, err)
	}
	return nil
}

// Enumerate returns the enabled configurations in declaration order, with
// duplicates (by hash) collapsed to the first occurrence. The returned map
// lists the labels that collapsed into each surviving hash.
func (c *Campaign) Enumerate() ([]model.BuildConfiguration, map[string][]string) {
	var configs []model.BuildConfiguration
	collapsed := map[string][]string{}
	seen := map[string]bool{}

	for _, e := range c.Configurations {
		if e.Disabled {
			continue
		}
		cfg := model.BuildConfiguration{
			Label:        e.Label,
			Toolchain:    model.Toolchain(e.Toolchain),
			TargetCPU:    e.TargetCPU,
			CodegenUnits: e.CodegenUnits,
			LTO:          model.LTOMode(e.LTO),
			OptLevel:     *e.OptLevel,
			PatchSet:     e.PatchSet,
		}
		hash := cfg.Hash()
		if seen[hash] {
			collapsed[hash] = append(collapsed[hash], e.Label)
			continue
		}
		seen[hash] = true
		configs = append(configs, cfg)
	}
	return configs, collapsed
}

// PrimaryObjective returns the declared primary objective. Valid after
// Load, which guarantees exactly one.
func (c *Campaign) PrimaryObjective() Objective {
	for _, o := range c.Objectives {
		if o.Primary {
			return o
		}
	}
	return Objective{}
}
