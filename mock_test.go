package gpufilter

import (
	"errors"
	"log/slog"
	"sync"
)

// mockDevice implements Device for testing. Launch applies fn to every pixel.
type mockDevice struct {
	mu sync.Mutex

	initErr    error
	compileErr error
	allocErr   error
	uploadErr  error
	launchErr  error
	downErr    error

	fn func(uint32) uint32

	closed   bool
	allocs   int
	frees    int
	launches []LaunchArgs
	log      *slog.Logger
}

func newMockDevice() *mockDevice {
	return &mockDevice{fn: func(v uint32) uint32 { return ^v }}
}

func (m *mockDevice) Name() string { return "mock" }
func (m *mockDevice) Init() error  { return m.initErr }

func (m *mockDevice) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

func (m *mockDevice) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockDevice) SetLogger(l *slog.Logger) {
	m.mu.Lock()
	m.log = l
	m.mu.Unlock()
}

func (m *mockDevice) logger() *slog.Logger {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.log
}

func (m *mockDevice) Compile(_ []uint32, entryPoint string) (Program, error) {
	if m.compileErr != nil {
		return nil, m.compileErr
	}
	return &mockProgram{entryPoint: entryPoint}, nil
}

func (m *mockDevice) Alloc(size int) (Buffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.allocErr != nil {
		return nil, m.allocErr
	}
	m.allocs++
	return &mockBuffer{dev: m, data: make([]byte, size)}, nil
}

func (m *mockDevice) Launch(_ Program, args LaunchArgs) error {
	m.mu.Lock()
	m.launches = append(m.launches, args)
	m.mu.Unlock()
	if m.launchErr != nil {
		return m.launchErr
	}
	buf := args.Buffer.(*mockBuffer)
	pix := make([]uint32, len(buf.data)/4)
	unpackPixels(buf.data, pix)
	for i := range pix {
		pix[i] = m.fn(pix[i])
	}
	copy(buf.data, packPixels(pix))
	return nil
}

// live returns the number of buffers allocated and not yet freed.
func (m *mockDevice) live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allocs - m.frees
}

type mockProgram struct {
	entryPoint string
	released   bool
}

func (p *mockProgram) EntryPoint() string { return p.entryPoint }
func (p *mockProgram) Release()           { p.released = true }

type mockBuffer struct {
	dev   *mockDevice
	data  []byte
	freed bool
}

func (b *mockBuffer) Size() int { return len(b.data) }

func (b *mockBuffer) Upload(src []byte) error {
	if b.dev.uploadErr != nil {
		return b.dev.uploadErr
	}
	copy(b.data, src)
	return nil
}

func (b *mockBuffer) Download(dst []byte) error {
	if b.dev.downErr != nil {
		return b.dev.downErr
	}
	copy(dst, b.data)
	return nil
}

func (b *mockBuffer) Free() {
	if b.freed {
		return
	}
	b.freed = true
	b.dev.mu.Lock()
	b.dev.frees++
	b.dev.mu.Unlock()
}

// newTestKernel returns a kernel bound to d without going through the WGSL
// compiler.
func newTestKernel(d Device) *Kernel {
	return &Kernel{entryPoint: "invert", device: d, program: &mockProgram{entryPoint: "invert"}}
}

// resetDevice clears the global device state between tests.
func resetDevice() {
	deviceMu.Lock()
	device = nil
	deviceMu.Unlock()
}

var errInjected = errors.New("injected failure")
