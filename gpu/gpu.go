//go:build !nogpu

// Package gpu registers the wgpu compute device with gpufilter.
//
// Importing this package opens the first available Vulkan adapter and makes
// it the current gpufilter device. If GPU initialization fails, registration
// is skipped with a warning and filters fall back to the software device.
//
// Usage:
//
//	import _ "github.com/gogpu/gpufilter/gpu" // run kernels on the GPU
package gpu

import (
	"errors"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gpufilter"
	gpuimpl "github.com/gogpu/gpufilter/internal/gpu"
)

func init() {
	if err := gpufilter.RegisterDevice(gpuimpl.NewDevice()); err != nil {
		gpufilter.Logger().Warn("GPU device not available", "err", err)
	}
}

// SetDeviceProvider makes gpufilter run on a GPU device shared by an external
// provider (e.g., gogpu) instead of opening its own.
//
// The provider must also expose HalDevice() and HalQueue() for direct HAL
// access. Kernels prepared on the previous device must be prepared again.
func SetDeviceProvider(provider gpucontext.DeviceProvider) error {
	if provider == nil {
		return errors.New("gpu: provider must not be nil")
	}
	if _, ok := gpufilter.CurrentDevice().(*gpuimpl.Device); ok {
		return gpufilter.SetDeviceProvider(provider)
	}

	d := gpuimpl.NewDevice()
	if err := d.SetDeviceProvider(provider); err != nil {
		return err
	}
	return gpufilter.RegisterDevice(d)
}
