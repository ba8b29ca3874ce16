package wgsl

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/gpufilter/kernels"
)

var block16 = WorkgroupSize{16, 16, 1}

// skipOnNagaLimitation skips tests that hit known naga gaps.
func skipOnNagaLimitation(t *testing.T, err error) {
	t.Helper()
	msg := err.Error()
	if strings.Contains(msg, "not yet implemented") || strings.Contains(msg, "not supported") {
		t.Skipf("Skipping: naga feature not yet implemented: %v", err)
	}
}

func TestEntryPoints(t *testing.T) {
	src := `
// @compute @workgroup_size(1) fn commented() {}
/* @compute @workgroup_size(1)
fn alsoCommented() {} */
fn helper(x: u32) -> u32 { return x; }

@compute
@workgroup_size(8, 4)
fn first(@builtin(global_invocation_id) id: vec3<u32>) {}

@compute @workgroup_size(64u) fn second() {}
`
	eps, err := EntryPoints(src)
	if err != nil {
		skipOnNagaLimitation(t, err)
		t.Fatalf("EntryPoints failed: %v", err)
	}

	want := map[string]EntryPoint{
		"first":  {Name: "first", Compute: true, WorkgroupSize: WorkgroupSize{8, 4, 1}},
		"second": {Name: "second", Compute: true, WorkgroupSize: WorkgroupSize{64, 1, 1}},
	}
	if len(eps) != len(want) {
		t.Fatalf("expected %d entry points, got %d: %+v", len(want), len(eps), eps)
	}
	for _, ep := range eps {
		if w, ok := want[ep.Name]; !ok || ep != w {
			t.Errorf("entry point %+v, want %+v", ep, w)
		}
	}
}

func TestEntryPointsBundledKernel(t *testing.T) {
	eps, err := EntryPoints(kernels.MustSource(kernels.Invert))
	if err != nil {
		skipOnNagaLimitation(t, err)
		t.Fatalf("EntryPoints failed: %v", err)
	}
	if len(eps) != 1 {
		t.Fatalf("expected 1 entry point, got %d", len(eps))
	}
	if eps[0].Name != kernels.InvertEntryPoint || !eps[0].Compute || eps[0].WorkgroupSize != block16 {
		t.Errorf("unexpected entry point %+v", eps[0])
	}
}

func TestCompileIgnoresNestedCommentedEntryPoint(t *testing.T) {
	src := `
@group(0) @binding(0) var<storage, read_write> pixels: array<u32>;

/* disabled /* nested */
@compute @workgroup_size(16, 16, 1)
fn invert(@builtin(global_invocation_id) id: vec3<u32>) {
    pixels[id.x] = ~pixels[id.x];
}
*/

@compute @workgroup_size(16, 16, 1)
fn other(@builtin(global_invocation_id) id: vec3<u32>) {
    pixels[id.x] = pixels[id.x];
}
`
	res, err := Compile(src, "invert", block16)
	if err == nil {
		t.Fatalf("expected error for commented-out entry point, got %+v", res.EntryPoint)
	}
	if res != nil {
		t.Error("expected nil result on error")
	}
	skipOnNagaLimitation(t, err)
	if !errors.Is(err, ErrEntryPointNotFound) {
		t.Errorf("expected ErrEntryPointNotFound, got %v", err)
	}

	if _, err := Compile(src, "other", block16); err != nil {
		t.Errorf("live entry point should compile: %v", err)
	}
}

func TestCompileBundledKernel(t *testing.T) {
	res, err := Compile(kernels.MustSource(kernels.Invert), kernels.InvertEntryPoint, block16)
	if err != nil {
		skipOnNagaLimitation(t, err)
		t.Fatalf("Compile failed: %v", err)
	}
	if len(res.SPIRV) == 0 {
		t.Fatal("SPIR-V output is empty")
	}
	if res.SPIRV[0] != SPIRVMagic {
		t.Errorf("invalid SPIR-V magic: 0x%08X, want 0x%08X", res.SPIRV[0], SPIRVMagic)
	}
	if strings.Contains(res.Log, "workgroup_size") {
		t.Errorf("unexpected workgroup warning in log %q", res.Log)
	}
	t.Logf("invert kernel compiled to %d SPIR-V words", len(res.SPIRV))
}

func TestCompileCachesModule(t *testing.T) {
	ResetCache()
	t.Cleanup(ResetCache)
	src := kernels.MustSource(kernels.Invert)

	first, err := Compile(src, kernels.InvertEntryPoint, block16)
	if err != nil {
		skipOnNagaLimitation(t, err)
		t.Fatalf("Compile failed: %v", err)
	}
	second, err := Compile(src, kernels.InvertEntryPoint, block16)
	if err != nil {
		t.Fatalf("second Compile failed: %v", err)
	}
	if &first.SPIRV[0] != &second.SPIRV[0] {
		t.Error("second compile should reuse the cached module")
	}
	if st := CacheStats(); st.Len != 1 || st.Hits != 1 || st.Misses != 1 {
		t.Errorf("CacheStats() = %+v, want 1 entry, 1 hit, 1 miss", st)
	}

	if _, err := Compile("fn broken(", "broken", block16); err == nil {
		t.Fatal("expected compile error")
	}
	if CacheStats().Len != 1 {
		t.Error("failed compiles must not be cached")
	}
}

func TestCompileWorkgroupWarning(t *testing.T) {
	src := strings.Replace(kernels.MustSource(kernels.Invert), "@workgroup_size(16, 16, 1)", "@workgroup_size(8, 8, 1)", 1)
	res, err := Compile(src, kernels.InvertEntryPoint, block16)
	if err != nil {
		skipOnNagaLimitation(t, err)
		t.Fatalf("Compile failed: %v", err)
	}
	if !strings.Contains(res.Log, "warning") || !strings.Contains(res.Log, "(8, 8, 1)") {
		t.Errorf("expected workgroup size warning, got %q", res.Log)
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		entry  string
		want   error
	}{
		{"empty source", "   ", "invert", ErrEmptySource},
		{"missing entry", kernels.MustSource(kernels.Invert), "main", ErrEntryPointNotFound},
		{"plain function", "fn invert() {}", "invert", ErrEntryPointNotFound},
		{"not compute", "@fragment\nfn invert() -> @location(0) vec4<f32> {\n    return vec4<f32>(1.0, 0.0, 0.0, 1.0);\n}\n", "invert", ErrNotCompute},
		{"syntax error", "@compute @workgroup_size(16, 16, 1)\nfn invert( {{ let = ; }", "invert", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Compile(tt.source, tt.entry, block16)
			if err == nil {
				t.Fatal("expected error")
			}
			if res != nil {
				t.Error("expected nil result on error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				skipOnNagaLimitation(t, err)
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestBytesToWords(t *testing.T) {
	words, err := bytesToWords([]byte{0x03, 0x02, 0x23, 0x07, 0x01, 0x00, 0x00, 0x00})
	if err != nil {
		t.Fatalf("bytesToWords failed: %v", err)
	}
	if len(words) != 2 || words[0] != SPIRVMagic || words[1] != 1 {
		t.Errorf("unexpected words %#v", words)
	}
	if _, err := bytesToWords([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated SPIR-V")
	}
}
