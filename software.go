package gpufilter

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gpufilter/internal/parallel"
	"github.com/gogpu/gpufilter/internal/wgsl"
)

// SoftwareKernel is the CPU reference body of a kernel entry point.
// It is invoked once per work-item; like a GPU kernel it must ignore
// work-items outside the image. Rows of work-groups run concurrently, so a
// work-item may only write its own pixel.
type SoftwareKernel func(pixels []uint32, width, height, x, y int)

var (
	softwareMu      sync.RWMutex
	softwareKernels = map[string]SoftwareKernel{
		"invert": invertKernel,
	}
)

// RegisterSoftwareKernel registers the CPU reference implementation of the
// named entry point. Passing a nil fn removes the registration.
func RegisterSoftwareKernel(entryPoint string, fn SoftwareKernel) {
	softwareMu.Lock()
	defer softwareMu.Unlock()
	if fn == nil {
		delete(softwareKernels, entryPoint)
		return
	}
	softwareKernels[entryPoint] = fn
}

func lookupSoftwareKernel(entryPoint string) (SoftwareKernel, bool) {
	softwareMu.RLock()
	defer softwareMu.RUnlock()
	fn, ok := softwareKernels[entryPoint]
	return fn, ok
}

func invertKernel(pixels []uint32, width, height, x, y int) {
	if x >= width || y >= height {
		return
	}
	i := y*width + x
	pixels[i] = ^pixels[i]
}

var (
	errDeviceClosed = errors.New("device closed")
	errBufferFreed  = errors.New("buffer freed")
)

// SoftwareDevice executes kernels on the CPU. It accepts the same SPIR-V the
// GPU devices do and binds the entry point to a registered SoftwareKernel,
// walking the dispatch grid work-item by work-item. Each row of work-groups
// runs on a worker goroutine.
//
// SoftwareDevice is the fallback used when no accelerator is registered.
type SoftwareDevice struct {
	mu     sync.Mutex
	closed bool
	pool   *parallel.Pool
}

var _ Device = (*SoftwareDevice)(nil)

// NewSoftwareDevice creates a ready-to-use CPU device with GOMAXPROCS
// workers.
func NewSoftwareDevice() *SoftwareDevice {
	return &SoftwareDevice{pool: parallel.NewPool(0)}
}

func (d *SoftwareDevice) Name() string { return "software" }

// Init reopens a closed device.
func (d *SoftwareDevice) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = false
	if d.pool == nil || !d.pool.IsRunning() {
		d.pool = parallel.NewPool(0)
	}
	return nil
}

// Close stops the worker goroutines.
func (d *SoftwareDevice) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.pool != nil {
		d.pool.Close()
	}
}

func (d *SoftwareDevice) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *SoftwareDevice) workers() *parallel.Pool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pool == nil {
		d.pool = parallel.NewPool(0)
	}
	return d.pool
}

// Compile validates the SPIR-V header and binds entryPoint to its CPU
// reference implementation.
func (d *SoftwareDevice) Compile(spirv []uint32, entryPoint string) (Program, error) {
	if d.isClosed() {
		return nil, errDeviceClosed
	}
	if len(spirv) == 0 || spirv[0] != wgsl.SPIRVMagic {
		return nil, errors.New("invalid SPIR-V module")
	}
	fn, ok := lookupSoftwareKernel(entryPoint)
	if !ok {
		return nil, fmt.Errorf("no software implementation for entry point %q", entryPoint)
	}
	return &softwareProgram{entryPoint: entryPoint, fn: fn}, nil
}

func (d *SoftwareDevice) Alloc(size int) (Buffer, error) {
	if d.isClosed() {
		return nil, errDeviceClosed
	}
	if size <= 0 {
		return nil, fmt.Errorf("invalid buffer size %d", size)
	}
	return &softwareBuffer{data: make([]byte, size)}, nil
}

// Launch runs the program over every work-item of args.Grid x args.Block.
func (d *SoftwareDevice) Launch(p Program, args LaunchArgs) error {
	if d.isClosed() {
		return errDeviceClosed
	}
	prog, ok := p.(*softwareProgram)
	if !ok || prog == nil {
		return fmt.Errorf("program %T was not compiled by the software device", p)
	}
	buf, ok := args.Buffer.(*softwareBuffer)
	if !ok || buf == nil {
		return fmt.Errorf("buffer %T was not allocated by the software device", args.Buffer)
	}
	if buf.data == nil {
		return errBufferFreed
	}

	w, h := int(args.Width), int(args.Height)
	if w*h*4 > len(buf.data) {
		return fmt.Errorf("buffer of %d bytes too small for %dx%d pixels", len(buf.data), w, h)
	}

	pixels := make([]uint32, len(buf.data)/4)
	for i := range pixels {
		pixels[i] = binary.LittleEndian.Uint32(buf.data[i*4:])
	}

	bx, by := int(args.Block.X), int(args.Block.Y)
	d.workers().Dispatch(int(args.Grid.Y), func(gy int) {
		for gx := 0; gx < int(args.Grid.X); gx++ {
			for ly := 0; ly < by; ly++ {
				for lx := 0; lx < bx; lx++ {
					prog.fn(pixels, w, h, gx*bx+lx, gy*by+ly)
				}
			}
		}
	})

	for i, v := range pixels {
		binary.LittleEndian.PutUint32(buf.data[i*4:], v)
	}
	return nil
}

type softwareProgram struct {
	entryPoint string
	fn         SoftwareKernel
}

func (p *softwareProgram) EntryPoint() string { return p.entryPoint }
func (p *softwareProgram) Release()           {}

type softwareBuffer struct {
	data []byte
}

func (b *softwareBuffer) Size() int { return len(b.data) }

func (b *softwareBuffer) Upload(src []byte) error {
	if b.data == nil {
		return errBufferFreed
	}
	if len(src) != len(b.data) {
		return fmt.Errorf("upload of %d bytes into %d byte buffer", len(src), len(b.data))
	}
	copy(b.data, src)
	return nil
}

func (b *softwareBuffer) Download(dst []byte) error {
	if b.data == nil {
		return errBufferFreed
	}
	if len(dst) != len(b.data) {
		return fmt.Errorf("download of %d byte buffer into %d bytes", len(b.data), len(dst))
	}
	copy(dst, b.data)
	return nil
}

func (b *softwareBuffer) Free() { b.data = nil }
