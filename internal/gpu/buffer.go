//go:build !nogpu

package gpu

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/gogpu/gpufilter"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

var errBufferFreed = errors.New("wgpu: buffer freed")

// buffer pairs a storage buffer the kernel reads and writes with a staging
// buffer used for readback.
type buffer struct {
	dev        *Device
	size       int
	generation uint64
	storage hal.Buffer
	staging hal.Buffer
}

// Alloc creates the storage and staging buffers for size bytes.
func (d *Device) Alloc(size int) (gpufilter.Buffer, error) {
	if size <= 0 || size%4 != 0 {
		return nil, fmt.Errorf("wgpu: invalid buffer size %d", size)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.gpuReady {
		return nil, errNotReady
	}

	storage, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "gpufilter_pixels", Size: uint64(size),
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage buffer: %w", err)
	}
	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "gpufilter_staging", Size: uint64(size),
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		d.device.DestroyBuffer(storage)
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}

	d.log().Debug("wgpu: buffer allocated", "bytes", size)
	return &buffer{dev: d, size: size, generation: d.generation, storage: storage, staging: staging}, nil
}

func (b *buffer) Size() int { return b.size }

// Upload writes src into the storage buffer.
func (b *buffer) Upload(src []byte) error {
	if len(src) != b.size {
		return fmt.Errorf("upload of %d bytes into %d byte buffer", len(src), b.size)
	}
	b.dev.mu.Lock()
	defer b.dev.mu.Unlock()
	if err := b.usableLocked(); err != nil {
		return err
	}
	if err := b.dev.queue.WriteBuffer(b.storage, 0, src); err != nil {
		return fmt.Errorf("write buffer: %w", err)
	}
	return nil
}

// Download copies the storage buffer into staging, waits for the copy and
// reads the staging buffer into dst.
func (b *buffer) Download(dst []byte) error {
	if len(dst) != b.size {
		return fmt.Errorf("download of %d byte buffer into %d bytes", b.size, len(dst))
	}
	d := b.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := b.usableLocked(); err != nil {
		return err
	}

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "gpufilter_readback"})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("gpufilter_readback"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(b.storage, b.staging, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: uint64(b.size)},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	if err := d.submitAndWait(cmdBuf); err != nil {
		return err
	}
	mapping, err := d.device.MapBuffer(b.staging, 0, uint64(b.size))
	if err != nil {
		return fmt.Errorf("readback: %w", err)
	}
	copy(dst, unsafe.Slice((*byte)(mapping.Ptr), b.size))
	if err := d.device.UnmapBuffer(b.staging); err != nil {
		return fmt.Errorf("readback: %w", err)
	}
	return nil
}

// usableLocked reports why b cannot be used on its device. Caller must hold
// b.dev.mu.
func (b *buffer) usableLocked() error {
	switch {
	case b.storage == nil:
		return errBufferFreed
	case !b.dev.gpuReady:
		return errNotReady
	case b.generation != b.dev.generation:
		return errStale
	}
	return nil
}

// Free destroys both buffers. It is idempotent.
func (b *buffer) Free() {
	d := b.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if b.storage == nil {
		return
	}
	if d.device != nil && b.generation == d.generation {
		d.device.DestroyBuffer(b.staging)
		d.device.DestroyBuffer(b.storage)
	}
	b.storage = nil
	b.staging = nil
}
