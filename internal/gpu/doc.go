//go:build !nogpu

// Package gpu implements gpufilter.Device on top of gogpu/wgpu's HAL.
//
// It is an internal package; the public gpufilter/gpu package registers it.
// Kernels arrive as SPIR-V (compiled from WGSL by naga) and run as compute
// pipelines with the gpufilter binding contract:
//
//	binding 0: storage buffer, read_write, packed pixels
//	binding 1: uniform buffer, {width, height, pad, pad}
//
// Every device call is synchronous: work is submitted with a fence and the
// call waits for it before returning. A mutex serialises access to the HAL
// device and queue, which are bound to a single accelerator context.
package gpu
