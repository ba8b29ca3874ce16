// Package wgsl compiles WGSL kernel sources to SPIR-V at runtime and
// inspects their compute entry points.
package wgsl

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"
	nagawgsl "github.com/gogpu/naga/wgsl"

	"github.com/gogpu/gpufilter/internal/cache"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic = 0x07230203

var (
	// ErrEntryPointNotFound is returned when the module has no entry point
	// with the requested name.
	ErrEntryPointNotFound = errors.New("wgsl: entry point not found")

	// ErrNotCompute is returned when the requested entry point belongs to
	// another shader stage.
	ErrNotCompute = errors.New("wgsl: entry point is not a compute shader")

	// ErrEmptySource is returned for blank sources.
	ErrEmptySource = errors.New("wgsl: empty source")

	// ErrValidation is wrapped by errors for modules that fail IR validation.
	ErrValidation = errors.New("wgsl: validation failed")
)

// WorkgroupSize is the @workgroup_size of a compute entry point.
// Omitted dimensions are 1.
type WorkgroupSize [3]uint32

// EntryPoint describes a shader entry point of a module.
type EntryPoint struct {
	Name          string
	Compute       bool
	WorkgroupSize WorkgroupSize
}

// Result is the output of a successful compilation.
type Result struct {
	SPIRV      []uint32
	EntryPoint EntryPoint
	// Log holds compiler diagnostics and warnings. Empty when the
	// compilation was clean.
	Log string
}

// module is one compiled source. It is immutable once cached.
type module struct {
	spirv       []uint32
	entryPoints []EntryPoint
	diagnostics []string
}

// modules caches compiled sources by digest; every entry point of a source
// shares one entry.
var modules = cache.New[[sha256.Size]byte, *module](64)

// CacheStats reports the module cache statistics.
func CacheStats() cache.Stats { return modules.Stats() }

// ResetCache drops every cached module.
func ResetCache() { modules.Clear() }

// EntryPoints lists the entry points naga finds in source.
func EntryPoints(source string) ([]EntryPoint, error) {
	if strings.TrimSpace(source) == "" {
		return nil, ErrEmptySource
	}
	mod, err := compileModule(source)
	if err != nil {
		return nil, err
	}
	return slices.Clone(mod.entryPoints), nil
}

// Compile compiles source to SPIR-V and checks that entryPoint is a compute
// entry point. want is the expected workgroup size; a mismatch is reported in
// Result.Log but does not fail the compilation.
func Compile(source, entryPoint string, want WorkgroupSize) (*Result, error) {
	if strings.TrimSpace(source) == "" {
		return nil, ErrEmptySource
	}

	mod, err := compileModule(source)
	if err != nil {
		return nil, err
	}
	ep, err := mod.find(entryPoint)
	if err != nil {
		return nil, err
	}

	log := slices.Clone(mod.diagnostics)
	if ep.WorkgroupSize != want {
		log = append(log, fmt.Sprintf(
			"warning: %s declares @workgroup_size(%d, %d, %d), dispatch assumes (%d, %d, %d)",
			ep.Name,
			ep.WorkgroupSize[0], ep.WorkgroupSize[1], ep.WorkgroupSize[2],
			want[0], want[1], want[2]))
	}
	if mod.spirv[0] != SPIRVMagic {
		log = append(log, fmt.Sprintf("warning: unexpected SPIR-V magic 0x%08X", mod.spirv[0]))
	}

	return &Result{
		SPIRV:      mod.spirv,
		EntryPoint: ep,
		Log:        strings.Join(log, "\n"),
	}, nil
}

func (m *module) find(name string) (EntryPoint, error) {
	for _, ep := range m.entryPoints {
		if ep.Name != name {
			continue
		}
		if !ep.Compute {
			return EntryPoint{}, fmt.Errorf("%w: %s", ErrNotCompute, name)
		}
		return ep, nil
	}
	return EntryPoint{}, fmt.Errorf("%w: %s", ErrEntryPointNotFound, name)
}

// compileModule parses, lowers, validates and generates SPIR-V for source.
// Failures are not cached. The returned module is shared and must not be
// modified.
func compileModule(source string) (*module, error) {
	key := sha256.Sum256([]byte(source))
	if mod, ok := modules.Get(key); ok {
		return mod, nil
	}

	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("failed to compile shader: %w", err)
	}
	lowered, err := nagawgsl.LowerWithWarnings(ast, source)
	if err != nil {
		return nil, fmt.Errorf("failed to compile shader: %w", err)
	}
	irModule := lowered.Module

	mod := &module{}
	for _, w := range lowered.Warnings {
		mod.diagnostics = append(mod.diagnostics, fmt.Sprintf("warning: %d:%d: %s",
			w.Span.Start.Line, w.Span.Start.Column, w.Message))
	}

	verrs, err := naga.Validate(irModule)
	if err != nil {
		return nil, fmt.Errorf("failed to compile shader: %w", err)
	}
	if len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		for i, ve := range verrs {
			msgs[i] = ve.Error()
		}
		return nil, fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
	}

	spirvBytes, err := naga.GenerateSPIRV(irModule, spirv.Options{Version: spirv.Version1_3})
	if err != nil {
		return nil, fmt.Errorf("failed to compile shader: %w", err)
	}
	mod.spirv, err = bytesToWords(spirvBytes)
	if err != nil {
		return nil, err
	}

	for _, ep := range irModule.EntryPoints {
		mod.entryPoints = append(mod.entryPoints, EntryPoint{
			Name:          ep.Name,
			Compute:       ep.Stage == ir.StageCompute,
			WorkgroupSize: WorkgroupSize(ep.Workgroup),
		})
	}

	modules.Set(key, mod)
	return mod, nil
}

// bytesToWords converts little-endian SPIR-V bytes to 32-bit words.
func bytesToWords(b []byte) ([]uint32, error) {
	if len(b) < 4 || len(b)%4 != 0 {
		return nil, fmt.Errorf("wgsl: invalid SPIR-V length %d", len(b))
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = uint32(b[i*4]) |
			uint32(b[i*4+1])<<8 |
			uint32(b[i*4+2])<<16 |
			uint32(b[i*4+3])<<24
	}
	return words, nil
}
