package cargo

import (
	"reflect"
	"testing"

	"github.com/icscript/optimized-builds/model"
)

func TestBuildEnv(t *testing.T) {
	tests := []struct {
		name string
		cfg  model.BuildConfiguration
		want []string
	}{
		{
			name: "native cpu sets RUSTFLAGS",
			cfg: model.BuildConfiguration{
				Toolchain: model.ToolchainStable, TargetCPU: "native",
				CodegenUnits: 1, LTO: model.LTOFat, OptLevel: 3,
			},
			want: []string{
				"CARGO_PROFILE_RELEASE_LTO=fat",
				"CARGO_PROFILE_RELEASE_OPT_LEVEL=3",
				"CARGO_PROFILE_RELEASE_CODEGEN_UNITS=1",
				"RUSTFLAGS=-C target-cpu=native",
			},
		},
		{
			name: "generic cpu omits RUSTFLAGS",
			cfg: model.BuildConfiguration{
				Toolchain: model.ToolchainNightly, TargetCPU: model.TargetCPUGeneric,
				CodegenUnits: 16, LTO: model.LTOThin, OptLevel: 2,
			},
			want: []string{
				"CARGO_PROFILE_RELEASE_LTO=thin",
				"CARGO_PROFILE_RELEASE_OPT_LEVEL=2",
				"CARGO_PROFILE_RELEASE_CODEGEN_UNITS=16",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildEnv(tt.cfg)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("BuildEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildArgs(t *testing.T) {
	cfg := model.BuildConfiguration{
		Toolchain: model.ToolchainNightly, TargetCPU: "native",
		CodegenUnits: 1, LTO: model.LTOFat, OptLevel: 3, PatchSet: "fast-runtime",
	}
	want := []string{"+nightly", "build", "--release", "--locked", "-p", "polkadot", "--features", "fast-runtime"}
	got := BuildArgs(cfg, "polkadot")
	if !reflect.DeepEqual(got, want) {
		t.Errorf("BuildArgs() = %v, want %v", got, want)
	}
}

func TestCommand(t *testing.T) {
	cfg := model.BuildConfiguration{
		Toolchain: model.ToolchainStable, TargetCPU: "native",
		CodegenUnits: 1, LTO: model.LTOFat, OptLevel: 3,
	}
	want := "cargo +stable build --release --locked -p polkadot"
	if got := Command(cfg, "polkadot"); got != want {
		t.Errorf("Command() = %q, want %q", got, want)
	}
}

func TestBinaryPath(t *testing.T) {
	want := "src/polkadot-sdk/target/release/polkadot"
	if got := BinaryPath("src/polkadot-sdk", "polkadot"); got != want {
		t.Errorf("BinaryPath() = %q, want %q", got, want)
	}
}
