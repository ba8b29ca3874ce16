package gpufilter

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gpufilter/kernels"
)

// Capability flags report the pixel formats a filter supports.
type Capability uint32

// DoesRGB indicates support for packed 32-bit RGB images, the only format
// the filter handles.
const DoesRGB Capability = 1

// AboutArg is the Setup argument that requests the about message.
const AboutArg = "about"

const (
	aboutTitle = "About gpufilter..."
	aboutBody  = "Runs a runtime-compiled GPU compute kernel over the pixels of an RGB image.\n"
)

// Host receives user-facing messages from a filter.
type Host interface {
	ShowMessage(title, body string)
}

// Redrawer is the image a filter is attached to. The host redraws it after a
// successful run.
type Redrawer interface {
	UpdateAndDraw()
}

// Processor gives access to the pixels of the image being filtered.
type Processor interface {
	Pixels() []uint32
	Width() int
	Height() int
}

// logHost is the default Host: messages go to the package logger.
type logHost struct{}

func (logHost) ShowMessage(title, body string) {
	Logger().Warn("gpufilter: "+title, "message", body)
}

// Filter adapts a kernel to the setup/run plugin protocol of an image host.
//
// Setup prepares the kernel once per session; Run and Execute transform one
// image per call. A Filter is safe for concurrent Run calls once Setup has
// returned.
type Filter struct {
	opts options

	mu          sync.RWMutex
	image       Redrawer
	device      Device
	ownsDevice  bool
	kernel      *Kernel
	initialized bool
}

// NewFilter creates a filter. No device work happens until Setup.
func NewFilter(opts ...Option) *Filter {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Filter{opts: o}
}

// Setup attaches the filter to img and prepares the kernel.
//
// With arg == AboutArg it only shows the about message. A missing or
// unreadable kernel source resource is reported to the host and leaves the
// filter without a kernel (nil error). A compilation failure is returned.
// The capability flags are returned in every case.
func (f *Filter) Setup(arg string, img Redrawer) (Capability, error) {
	if arg == AboutArg {
		f.opts.host.ShowMessage(aboutTitle, aboutBody)
		return DoesRGB, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.image = img

	if err := f.acquireDeviceLocked(); err != nil {
		return DoesRGB, err
	}

	f.kernel.Release()
	f.kernel = nil

	k, err := PrepareResource(f.device, f.opts.source, f.opts.resource, f.opts.entryPoint)
	if errors.Is(err, ErrResourceMissing) {
		if errors.Is(err, kernels.ErrNotFound) {
			f.opts.host.ShowMessage("Error", "Resource was not found:\n"+f.opts.resource)
		} else {
			f.opts.host.ShowMessage("Error", "Could not read the resource:\n"+err.Error())
		}
		Logger().Warn("gpufilter: kernel source unavailable", "resource", f.opts.resource, "err", err)
		return DoesRGB, nil
	}
	if err != nil {
		return DoesRGB, err
	}
	f.kernel = k
	return DoesRGB, nil
}

// acquireDeviceLocked resolves the device once: explicit option, then the
// registered device, then a software device owned by the filter.
func (f *Filter) acquireDeviceLocked() error {
	if f.initialized {
		return nil
	}
	switch {
	case f.opts.device != nil:
		f.device = f.opts.device
	case CurrentDevice() != nil:
		f.device = CurrentDevice()
	default:
		sw := NewSoftwareDevice()
		if err := sw.Init(); err != nil {
			return fmt.Errorf("gpufilter: init software device: %w", err)
		}
		Logger().Warn("gpufilter: no accelerator registered, using software device")
		f.device = sw
		f.ownsDevice = true
	}
	f.initialized = true
	return nil
}

// Kernel returns the prepared kernel, or nil.
func (f *Filter) Kernel() *Kernel {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.kernel
}

// Run transforms the processor's pixels in place and asks the attached
// image to redraw.
func (f *Filter) Run(p Processor) error {
	if err := f.Execute(p.Pixels(), p.Width(), p.Height()); err != nil {
		return err
	}
	f.mu.RLock()
	img := f.image
	f.mu.RUnlock()
	if img != nil {
		img.UpdateAndDraw()
	}
	return nil
}

// Execute transforms pixels in place. Without a prepared kernel it reports
// the problem to the host and returns ErrNotPrepared without touching pixels.
func (f *Filter) Execute(pixels []uint32, width, height int) error {
	k := f.Kernel()
	if k == nil {
		f.opts.host.ShowMessage("Error", "The kernel was not initialized")
		return ErrNotPrepared
	}
	return k.Transform(pixels, width, height)
}

// Close releases the kernel and, when the filter created it, the device.
func (f *Filter) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kernel.Release()
	f.kernel = nil
	if f.ownsDevice && f.device != nil {
		f.device.Close()
	}
	f.device = nil
	f.ownsDevice = false
	f.initialized = false
	f.image = nil
}
