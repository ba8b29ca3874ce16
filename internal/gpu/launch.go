//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gpufilter"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// paramsSize is the size of the kernel uniform: width, height, two pad words.
const paramsSize = 16

// makeParams returns the uniform block for a width x height image.
func makeParams(width, height uint32) []byte {
	b := make([]byte, paramsSize)
	binary.LittleEndian.PutUint32(b[0:], width)
	binary.LittleEndian.PutUint32(b[4:], height)
	return b
}

// Launch records one compute pass dispatching args.Grid work-groups, submits
// it and waits for completion.
func (d *Device) Launch(p gpufilter.Program, args gpufilter.LaunchArgs) error {
	prog, ok := p.(*program)
	if !ok || prog == nil || prog.dev != d {
		return fmt.Errorf("wgpu: program %T was not compiled by this device", p)
	}
	buf, ok := args.Buffer.(*buffer)
	if !ok || buf == nil || buf.dev != d {
		return fmt.Errorf("wgpu: buffer %T was not allocated by this device", args.Buffer)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.gpuReady {
		return errNotReady
	}
	if prog.released {
		return fmt.Errorf("wgpu: program %q released", prog.entryPoint)
	}
	if prog.generation != d.generation {
		return fmt.Errorf("%w: program %q", errStale, prog.entryPoint)
	}
	if err := buf.usableLocked(); err != nil {
		return err
	}

	uniform, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "gpufilter_params", Size: paramsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create uniform buffer: %w", err)
	}
	defer d.device.DestroyBuffer(uniform)
	if err := d.queue.WriteBuffer(uniform, 0, makeParams(args.Width, args.Height)); err != nil {
		return fmt.Errorf("write params: %w", err)
	}

	bindGroup, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "gpufilter_bind", Layout: prog.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: buf.storage.NativeHandle(), Offset: 0, Size: uint64(buf.size)}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: uniform.NativeHandle(), Offset: 0, Size: paramsSize}},
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group: %w", err)
	}
	defer d.device.DestroyBindGroup(bindGroup)

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "gpufilter_encoder"})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("gpufilter_dispatch"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "gpufilter_pass"})
	pass.SetPipeline(prog.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.Dispatch(args.Grid.X, args.Grid.Y, max(args.Grid.Z, 1))
	pass.End()
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}

	d.log().Debug("wgpu: dispatch",
		"entry", prog.entryPoint, "grid_x", args.Grid.X, "grid_y", args.Grid.Y,
		"width", args.Width, "height", args.Height)
	return d.submitAndWait(cmdBuf)
}
