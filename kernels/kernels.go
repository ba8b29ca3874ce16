// Package kernels bundles the WGSL kernel sources shipped with gpufilter.
//
// Every kernel follows the same binding contract:
//
//	@group(0) @binding(0) var<storage, read_write> pixels: array<u32>;
//	@group(0) @binding(1) var<uniform> params: Params; // width, height, 2x pad
//
// and is dispatched with 16x16x1 work-groups. Work-items outside the image
// must return without touching the buffer.
package kernels

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// FS holds the bundled kernel sources.
//
//go:embed *.wgsl
var FS embed.FS

const (
	// Invert is the resource name of the bitwise inversion kernel.
	Invert = "invert.wgsl"

	// InvertEntryPoint is the entry point of the Invert kernel.
	InvertEntryPoint = "invert"
)

// ErrNotFound is returned when a resource does not exist or is empty.
var ErrNotFound = errors.New("kernels: resource not found")

// ReadSource reads the named resource from fsys in full.
func ReadSource(fsys fs.FS, name string) (string, error) {
	if fsys == nil {
		return "", fmt.Errorf("%w: %s (no source filesystem)", ErrNotFound, name)
	}
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("kernels: read %s: %w", name, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrNotFound, name)
	}
	return string(data), nil
}

// MustSource returns the named bundled source and panics if it is missing.
func MustSource(name string) string {
	src, err := ReadSource(FS, name)
	if err != nil {
		panic(err)
	}
	return src
}
