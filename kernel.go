package gpufilter

import (
	"fmt"
	"io/fs"
	"sync/atomic"

	"github.com/gogpu/gpufilter/internal/wgsl"
	"github.com/gogpu/gpufilter/kernels"
)

// Kernel is a compiled, loaded kernel entry point.
//
// A Kernel is immutable after Prepare and may be shared by concurrent
// callers; each Transform uses its own device buffer.
type Kernel struct {
	entryPoint string
	device     Device
	program    Program
	log        string
	released   atomic.Bool
}

// Prepare compiles WGSL source at runtime and binds the named compute entry
// point on dev.
//
// Compilation warnings do not fail Prepare; they are logged and available
// through Log. On failure the returned Kernel is nil and the error is a
// *CompileError.
func Prepare(dev Device, source, entryPoint string) (*Kernel, error) {
	if dev == nil {
		return nil, ErrNoDevice
	}
	if entryPoint == "" {
		return nil, ErrInvalidEntryPoint
	}

	res, err := wgsl.Compile(source, entryPoint, wgsl.WorkgroupSize{BlockSize, BlockSize, 1})
	if err != nil {
		return nil, &CompileError{EntryPoint: entryPoint, Log: err.Error(), Err: err}
	}
	if res.Log != "" {
		Logger().Warn("gpufilter: kernel compilation log", "entry", entryPoint, "log", res.Log)
	}

	prog, err := dev.Compile(res.SPIRV, entryPoint)
	if err != nil {
		return nil, &CompileError{EntryPoint: entryPoint, Log: res.Log, Err: deviceError(dev, "compile", err)}
	}

	Logger().Debug("gpufilter: kernel prepared",
		"entry", entryPoint, "device", dev.Name(), "spirv_words", len(res.SPIRV))
	return &Kernel{
		entryPoint: entryPoint,
		device:     dev,
		program:    prog,
		log:        res.Log,
	}, nil
}

// EntryPoint returns the entry point the kernel is bound to.
func (k *Kernel) EntryPoint() string { return k.entryPoint }

// Device returns the device the kernel was loaded on.
func (k *Kernel) Device() Device { return k.device }

// Log returns the compilation warnings, or "" for a clean compile.
func (k *Kernel) Log() string { return k.log }

// Release frees the device program. Subsequent transforms fail with
// ErrNotPrepared. Release is idempotent and safe on a nil Kernel.
func (k *Kernel) Release() {
	if k == nil || !k.released.CompareAndSwap(false, true) {
		return
	}
	k.program.Release()
}

// PrepareResource reads the named kernel source from fsys and prepares it
// like Prepare. A missing or unreadable resource yields an error wrapping
// ErrResourceMissing.
func PrepareResource(dev Device, fsys fs.FS, name, entryPoint string) (*Kernel, error) {
	source, err := kernels.ReadSource(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResourceMissing, err)
	}
	return Prepare(dev, source, entryPoint)
}
