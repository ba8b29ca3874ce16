package gpufilter

import (
	"io/fs"

	"github.com/gogpu/gpufilter/kernels"
)

// Option configures a Filter during creation.
//
// Example:
//
//	// Bundled invert kernel on the registered device
//	f := gpufilter.NewFilter()
//
//	// Custom kernel loaded from disk on the CPU reference device
//	f := gpufilter.NewFilter(
//	    gpufilter.WithDevice(gpufilter.NewSoftwareDevice()),
//	    gpufilter.WithSource(os.DirFS("kernels")),
//	    gpufilter.WithResourceName("invert.wgsl"),
//	    gpufilter.WithEntryPoint("invert"),
//	)
type Option func(*options)

type options struct {
	device     Device
	host       Host
	source     fs.FS
	resource   string
	entryPoint string
}

func defaultOptions() options {
	return options{
		device:     nil, // resolved at Setup: registered device, then software
		host:       logHost{},
		source:     kernels.FS,
		resource:   kernels.Invert,
		entryPoint: kernels.InvertEntryPoint,
	}
}

// WithDevice sets the device kernels are prepared on. The filter does not
// take ownership: Close leaves the device open.
func WithDevice(d Device) Option {
	return func(o *options) {
		o.device = d
	}
}

// WithHost sets the host that receives user-facing messages.
func WithHost(h Host) Option {
	return func(o *options) {
		if h != nil {
			o.host = h
		}
	}
}

// WithSource sets the filesystem kernel sources are read from.
// The default is the bundled kernels.FS.
func WithSource(fsys fs.FS) Option {
	return func(o *options) {
		o.source = fsys
	}
}

// WithResourceName sets the name of the kernel source resource.
func WithResourceName(name string) Option {
	return func(o *options) {
		o.resource = name
	}
}

// WithEntryPoint sets the kernel entry point name.
func WithEntryPoint(name string) Option {
	return func(o *options) {
		o.entryPoint = name
	}
}
