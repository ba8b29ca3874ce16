package gpufilter

import (
	"errors"
	"fmt"
)

var (
	// ErrNotPrepared is returned when a transform is requested before a kernel
	// was prepared, or after it was released. No device work is performed.
	ErrNotPrepared = errors.New("gpufilter: kernel not prepared")

	// ErrResourceMissing is returned when the kernel source resource cannot be
	// located or read.
	ErrResourceMissing = errors.New("gpufilter: kernel source resource missing")

	// ErrCompile is the sentinel wrapped by every *CompileError.
	ErrCompile = errors.New("gpufilter: kernel compilation failed")

	// ErrDevice is the sentinel wrapped by every *DeviceError.
	ErrDevice = errors.New("gpufilter: device failure")

	// ErrNoDevice is returned when no device is available to prepare a kernel.
	ErrNoDevice = errors.New("gpufilter: no device")

	// ErrInvalidEntryPoint is returned for an empty entry point name.
	ErrInvalidEntryPoint = errors.New("gpufilter: invalid entry point")

	// ErrInvalidDimensions is returned when width or height is not positive or
	// the pixel buffer length does not equal width*height.
	ErrInvalidDimensions = errors.New("gpufilter: invalid image dimensions")

	// ErrImageTooLarge is returned when the image exceeds the device buffer
	// or dispatch limits.
	ErrImageTooLarge = errors.New("gpufilter: image too large")
)

// CompileError describes a failed kernel compilation.
// Log holds the compiler output.
type CompileError struct {
	EntryPoint string
	Log        string
	Err        error
}

func (e *CompileError) Error() string {
	msg := fmt.Sprintf("gpufilter: compile %q", e.EntryPoint)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying errors so that errors.Is matches both
// ErrCompile and the compiler error.
func (e *CompileError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCompile}
	}
	return []error{ErrCompile, e.Err}
}

// DeviceError reports a failed device call. Op names the call
// (e.g. "alloc", "upload", "launch", "download").
type DeviceError struct {
	Op     string
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("gpufilter: %s %s: %v", e.Device, e.Op, e.Err)
}

// Unwrap returns ErrDevice and the underlying error.
func (e *DeviceError) Unwrap() []error {
	return []error{ErrDevice, e.Err}
}

func deviceError(d Device, op string, err error) error {
	return &DeviceError{Op: op, Device: d.Name(), Err: err}
}
