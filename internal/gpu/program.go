//go:build !nogpu

package gpu

import (
	"fmt"

	"github.com/gogpu/gpufilter"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// program is a compute pipeline bound to one kernel entry point.
type program struct {
	dev        *Device
	entryPoint string
	generation uint64

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline
	released   bool
}

func (p *program) EntryPoint() string { return p.entryPoint }

// Release destroys the pipeline objects. It is idempotent. Objects of a
// previous HAL device are dropped without touching the current one.
func (p *program) Release() {
	d := p.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if p.released {
		return
	}
	p.released = true
	if d.device == nil || p.generation != d.generation {
		p.forget()
		return
	}
	p.destroy(d.device)
}

func (p *program) forget() {
	p.pipeline, p.pipeLayout, p.bindLayout, p.shader = nil, nil, nil, nil
}

// destroy cleans up pipeline objects in reverse creation order.
func (p *program) destroy(device hal.Device) {
	if p.pipeline != nil {
		device.DestroyComputePipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.pipeLayout != nil {
		device.DestroyPipelineLayout(p.pipeLayout)
		p.pipeLayout = nil
	}
	if p.bindLayout != nil {
		device.DestroyBindGroupLayout(p.bindLayout)
		p.bindLayout = nil
	}
	if p.shader != nil {
		device.DestroyShaderModule(p.shader)
		p.shader = nil
	}
}

// Compile loads SPIR-V as a shader module and builds a compute pipeline for
// entryPoint with the gpufilter binding layout.
func (d *Device) Compile(spirv []uint32, entryPoint string) (gpufilter.Program, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.gpuReady {
		return nil, errNotReady
	}

	p := &program{dev: d, entryPoint: entryPoint, generation: d.generation}
	if err := p.create(d.device, spirv); err != nil {
		p.destroy(d.device)
		return nil, err
	}
	d.log().Debug("wgpu: compute pipeline created", "entry", entryPoint, "spirv_words", len(spirv))
	return p, nil
}

func (p *program) create(device hal.Device, spirv []uint32) error {
	label := "gpufilter_" + p.entryPoint

	shader, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return fmt.Errorf("create shader module: %w", err)
	}
	p.shader = shader

	bindLayout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: label + "_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
			{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group layout: %w", err)
	}
	p.bindLayout = bindLayout

	pipeLayout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: label + "_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{p.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	p.pipeLayout = pipeLayout

	pipeline, err := device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: label + "_pipeline", Layout: p.pipeLayout,
		Compute: hal.ComputeState{Module: p.shader, EntryPoint: p.entryPoint},
	})
	if err != nil {
		return fmt.Errorf("create compute pipeline: %w", err)
	}
	p.pipeline = pipeline
	return nil
}
