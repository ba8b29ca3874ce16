// Package gpufilter runs a runtime-compiled GPU compute kernel over the
// pixels of an image.
//
// # Overview
//
// gpufilter glues three things together: an image host that hands over a
// pixel buffer, a WGSL compiler (github.com/gogpu/naga) that turns kernel
// source into SPIR-V at runtime, and a device that executes the kernel
// (github.com/gogpu/wgpu through the gpu package, or the CPU reference
// SoftwareDevice).
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/gpufilter"
//	    _ "github.com/gogpu/gpufilter/gpu" // register the GPU device
//	)
//
//	f := gpufilter.NewFilter()
//	defer f.Close()
//	if _, err := f.Setup("", nil); err != nil {
//	    log.Fatal(err)
//	}
//	pm := gpufilter.FromImage(img)
//	if err := f.Run(pm); err != nil {
//	    log.Fatal(err)
//	}
//
// # Kernels
//
// Kernels are WGSL compute entry points dispatched with 16x16 work-groups
// over a grid that covers the whole image. The pixel buffer is bound as
// storage at binding 0 and the image size as a uniform at binding 1; see
// package kernels for the bundled sources.
//
// # Errors
//
// Every device call returns an explicit error. Compilation failures are
// *CompileError, device failures *DeviceError; both match their sentinels
// (ErrCompile, ErrDevice) with errors.Is.
package gpufilter
