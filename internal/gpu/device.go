//go:build !nogpu

package gpu

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gpufilter"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// DefaultTimeout bounds every fence wait.
const DefaultTimeout = 5 * time.Second

// pollInterval is how often a pending submission is checked for completion.
const pollInterval = 100 * time.Microsecond

var (
	errNotReady = errors.New("wgpu: device not initialized")

	// errStale is returned for programs and buffers created before the HAL
	// device was closed or replaced.
	errStale = errors.New("wgpu: object belongs to a previous device")
)

// Option configures a Device.
type Option func(*Device)

// WithTimeout sets how long a submission may run before the call fails.
func WithTimeout(d time.Duration) Option {
	return func(dev *Device) {
		if d > 0 {
			dev.timeout = d
		}
	}
}

// WithBackend selects the HAL backend opened by Init. The backend package
// must be linked in; Vulkan is linked by default.
func WithBackend(b gputypes.Backend) Option {
	return func(dev *Device) {
		dev.backend = b
	}
}

// Device runs gpufilter kernels as wgpu/hal compute pipelines.
type Device struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	backend        gputypes.Backend
	adapterName    string
	timeout        time.Duration
	gpuReady       bool
	externalDevice bool // true when using shared device (don't destroy on Close)

	// generation changes whenever the HAL device is released; programs and
	// buffers record the generation they were created in.
	generation uint64

	logger atomic.Pointer[slog.Logger]
}

var (
	_ gpufilter.Device              = (*Device)(nil)
	_ gpufilter.DeviceProviderAware = (*Device)(nil)
)

// NewDevice creates a device. The accelerator context is acquired by Init.
func NewDevice(opts ...Option) *Device {
	d := &Device{timeout: DefaultTimeout, backend: gputypes.BackendVulkan}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewDeviceFromHAL wraps an already opened HAL device and queue. The device
// is not destroyed on Close.
func NewDeviceFromHAL(device hal.Device, queue hal.Queue, opts ...Option) (*Device, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("wgpu: device and queue are required")
	}
	d := NewDevice(opts...)
	d.device = device
	d.queue = queue
	d.externalDevice = true
	d.gpuReady = true
	d.adapterName = "external"
	return d, nil
}

func (d *Device) Name() string { return "wgpu" }

// AdapterName returns the name of the selected GPU adapter.
func (d *Device) AdapterName() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.adapterName
}

// SetLogger sets the logger for this device. A nil logger restores the
// gpufilter package logger.
// Called by gpufilter.SetLogger to propagate logging configuration.
func (d *Device) SetLogger(l *slog.Logger) {
	d.logger.Store(l)
}

func (d *Device) log() *slog.Logger {
	if l := d.logger.Load(); l != nil {
		return l
	}
	return gpufilter.Logger()
}

// Init opens the first discrete or integrated GPU exposed by the selected
// backend, falling back to the first adapter of any kind.
func (d *Device) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gpuReady {
		return nil
	}
	if err := d.initGPU(); err != nil {
		d.releaseLocked()
		return err
	}
	return nil
}

func (d *Device) initGPU() error {
	backend, ok := hal.GetBackend(d.backend)
	if !ok {
		return fmt.Errorf("wgpu: backend %v not available", d.backend)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("wgpu: create instance: %w", err)
	}
	d.instance = instance

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return fmt.Errorf("wgpu: no GPU adapters found")
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return fmt.Errorf("wgpu: open device: %w", err)
	}
	d.device = openDev.Device
	d.queue = openDev.Queue
	d.adapterName = selected.Info.Name
	d.gpuReady = true
	d.log().Info("wgpu: GPU device initialized", "adapter", selected.Info.Name)
	return nil
}

// Close releases the accelerator context. Programs and buffers created by
// the device must be released first.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseLocked()
}

func (d *Device) releaseLocked() {
	if !d.externalDevice {
		if d.device != nil {
			d.device.Destroy()
		}
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	// Shared resources are dropped, not destroyed: we don't own them.
	d.device = nil
	d.instance = nil
	d.queue = nil
	d.gpuReady = false
	d.externalDevice = false
	d.generation++
}

// SetDeviceProvider switches the device to a shared GPU device from an
// external provider (e.g., gogpu). The provider must implement
// HalDevice() any and HalQueue() any returning hal.Device and hal.Queue.
func (d *Device) SetDeviceProvider(provider any) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return fmt.Errorf("wgpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return fmt.Errorf("wgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("wgpu: provider HalQueue is not hal.Queue")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseLocked()
	d.device = device
	d.queue = queue
	d.externalDevice = true
	d.gpuReady = true
	d.adapterName = "shared"
	d.log().Debug("wgpu: switched to shared GPU device")
	return nil
}

// submitAndWait submits cmdBuf and blocks until the queue reports the
// submission completed. Caller must hold d.mu.
func (d *Device) submitAndWait(cmdBuf hal.CommandBuffer) error {
	index, err := d.queue.Submit([]hal.CommandBuffer{cmdBuf})
	if err != nil {
		d.device.FreeCommandBuffer(cmdBuf)
		return fmt.Errorf("submit: %w", err)
	}

	deadline := time.Now().Add(d.timeout)
	for d.queue.PollCompleted() < index {
		if time.Now().After(deadline) {
			// The GPU may still own cmdBuf; it is leaked rather than freed.
			return fmt.Errorf("wait for GPU: timed out after %v", d.timeout)
		}
		time.Sleep(pollInterval)
	}
	d.device.FreeCommandBuffer(cmdBuf)
	return nil
}
