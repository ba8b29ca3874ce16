package gpufilter

import (
	"encoding/binary"
	"fmt"
)

// Transform runs k over pixels (row-major, one packed value per pixel) and
// overwrites pixels with the result. See (*Kernel).Transform.
func Transform(k *Kernel, pixels []uint32, width, height int) error {
	return k.Transform(pixels, width, height)
}

// Transform copies pixels to a fresh device buffer, launches the kernel over
// a grid of 16x16 work-groups covering the image, and copies the result back
// into pixels. The call blocks until the device is done.
//
// pixels is only written after the whole round-trip succeeded. The device
// buffer is freed on every return path.
func (k *Kernel) Transform(pixels []uint32, width, height int) error {
	if k == nil || k.released.Load() {
		return ErrNotPrepared
	}
	if width <= 0 || height <= 0 || len(pixels) != width*height {
		return fmt.Errorf("%w: %dx%d with %d pixels", ErrInvalidDimensions, width, height, len(pixels))
	}

	size := len(pixels) * 4
	if size > MaxBufferSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrImageTooLarge, size, MaxBufferSize)
	}
	grid := GridSize(width, height, BlockSize)
	if grid.X > MaxGridDimension || grid.Y > MaxGridDimension {
		return fmt.Errorf("%w: grid %dx%d exceeds %d work-groups per axis",
			ErrImageTooLarge, grid.X, grid.Y, MaxGridDimension)
	}

	dev := k.device
	buf, err := dev.Alloc(size)
	if err != nil {
		return deviceError(dev, "alloc", err)
	}
	defer buf.Free()

	host := packPixels(pixels)
	if err := buf.Upload(host); err != nil {
		return deviceError(dev, "upload", err)
	}

	Logger().Debug("gpufilter: launch",
		"entry", k.entryPoint, "width", width, "height", height,
		"grid_x", grid.X, "grid_y", grid.Y, "bytes", size)
	err = dev.Launch(k.program, LaunchArgs{
		Buffer: buf,
		Width:  uint32(width),  //nolint:gosec // bounded by MaxBufferSize
		Height: uint32(height), //nolint:gosec // bounded by MaxBufferSize
		Grid:   grid,
		Block:  DefaultBlock,
	})
	if err != nil {
		return deviceError(dev, "launch", err)
	}

	if err := buf.Download(host); err != nil {
		return deviceError(dev, "download", err)
	}
	unpackPixels(host, pixels)
	return nil
}

func packPixels(pixels []uint32) []byte {
	out := make([]byte, len(pixels)*4)
	for i, v := range pixels {
		binary.LittleEndian.PutUint32(out[i*4:], v)
	}
	return out
}

func unpackPixels(packed []byte, dst []uint32) {
	for i := range dst {
		dst[i] = binary.LittleEndian.Uint32(packed[i*4:])
	}
}
