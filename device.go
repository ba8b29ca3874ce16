package gpufilter

import (
	"errors"
	"sync"
)

// BlockSize is the edge length of the square work-group every kernel is
// dispatched with.
const BlockSize = 16

// MaxBufferSize is the largest pixel buffer, in bytes, a transform accepts.
// It matches the default WebGPU storage buffer binding limit.
const MaxBufferSize = 128 << 20

// MaxGridDimension is the largest number of work-groups per grid axis.
const MaxGridDimension = 65535

// Grid is a dispatch size in work-groups.
type Grid struct {
	X, Y, Z uint32
}

// Block is a work-group size in work-items.
type Block struct {
	X, Y, Z uint32
}

// DefaultBlock is the 16x16 work-group used for every dispatch.
var DefaultBlock = Block{X: BlockSize, Y: BlockSize, Z: 1}

// LaunchArgs is the argument list of a kernel launch: the pixel buffer
// followed by the image dimensions.
type LaunchArgs struct {
	Buffer Buffer
	Width  uint32
	Height uint32
	Grid   Grid
	Block  Block
}

// Program is a compiled kernel entry point loaded on a device.
type Program interface {
	// EntryPoint returns the name of the function the program is bound to.
	EntryPoint() string

	// Release frees the device objects backing the program.
	Release()
}

// Buffer is a device memory allocation.
type Buffer interface {
	// Size returns the allocation size in bytes.
	Size() int

	// Upload copies host bytes to the device. len(src) must equal Size().
	Upload(src []byte) error

	// Download copies device memory back to the host. len(dst) must equal Size().
	Download(dst []byte) error

	// Free releases the allocation. Free is idempotent.
	Free()
}

// Device is an accelerator able to compile and run pixel kernels.
//
// Implementations are provided by device packages (e.g., gpufilter/gpu)
// and registered via RegisterDevice. SoftwareDevice is the CPU reference
// implementation used when no accelerator is registered.
//
// A Device is bound to the goroutine-independent state of one accelerator
// context. Implementations serialise access internally; callers may share a
// Device across goroutines.
type Device interface {
	// Name returns the device name (e.g., "wgpu", "software").
	Name() string

	// Init acquires the accelerator context. Called once during registration.
	Init() error

	// Close releases the accelerator context.
	Close()

	// Compile loads SPIR-V code and binds it to entryPoint.
	Compile(spirv []uint32, entryPoint string) (Program, error)

	// Alloc allocates a device buffer of size bytes.
	Alloc(size int) (Buffer, error)

	// Launch runs p over args.Grid and blocks until the device is done.
	Launch(p Program, args LaunchArgs) error
}

// DeviceProviderAware is an optional interface for devices that can share
// an accelerator context with an external provider (e.g., a gogpu window).
type DeviceProviderAware interface {
	SetDeviceProvider(provider any) error
}

var (
	deviceMu sync.RWMutex
	device   Device
)

// RegisterDevice registers the accelerator used by filters that were not
// given an explicit device.
//
// Only one device can be registered. Subsequent calls replace the previous
// one, which is closed. The device's Init method is called during
// registration; if it fails the device is not registered.
func RegisterDevice(d Device) error {
	if d == nil {
		return errors.New("gpufilter: device must not be nil")
	}
	if err := d.Init(); err != nil {
		return err
	}
	propagateLogger(d, Logger())
	deviceMu.Lock()
	old := device
	device = d
	deviceMu.Unlock()
	if old != nil && old != d {
		old.Close()
	}
	Logger().Info("gpufilter: device registered", "device", d.Name())
	return nil
}

// CurrentDevice returns the registered device, or nil if none.
func CurrentDevice() Device {
	deviceMu.RLock()
	d := device
	deviceMu.RUnlock()
	return d
}

// SetDeviceProvider passes a device provider to the registered device,
// enabling accelerator context sharing. If no device is registered or it
// doesn't support sharing, this is a no-op.
func SetDeviceProvider(provider any) error {
	d := CurrentDevice()
	if d == nil {
		return nil
	}
	if dpa, ok := d.(DeviceProviderAware); ok {
		return dpa.SetDeviceProvider(provider)
	}
	return nil
}

// GridSize returns the number of work-groups needed to cover a width x height
// image with square work-groups of the given block size. Each axis is rounded
// up so that partial tiles at the right and bottom edges are covered.
func GridSize(width, height, block int) Grid {
	if width <= 0 || height <= 0 || block <= 0 {
		return Grid{}
	}
	return Grid{
		X: uint32((width + block - 1) / block),  //nolint:gosec // positive, bounded by width
		Y: uint32((height + block - 1) / block), //nolint:gosec // positive, bounded by height
		Z: 1,
	}
}
