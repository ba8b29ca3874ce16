package gpufilter

import (
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/gogpu/gpufilter/internal/wgsl"
)

var validSPIRV = []uint32{wgsl.SPIRVMagic, 0x00010000}

func TestSoftwareDeviceCompile(t *testing.T) {
	d := NewSoftwareDevice()
	if d.Name() != "software" {
		t.Errorf("Name() = %q", d.Name())
	}

	p, err := d.Compile(validSPIRV, "invert")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if p.EntryPoint() != "invert" {
		t.Errorf("EntryPoint() = %q", p.EntryPoint())
	}
	p.Release()

	if _, err := d.Compile(nil, "invert"); err == nil {
		t.Error("expected error for empty SPIR-V")
	}
	if _, err := d.Compile([]uint32{0xDEADBEEF}, "invert"); err == nil {
		t.Error("expected error for bad magic")
	}
	if _, err := d.Compile(validSPIRV, "blur"); err == nil {
		t.Error("expected error for an entry point without software implementation")
	}
}

func TestSoftwareDeviceLaunchCoversPartialTiles(t *testing.T) {
	var (
		mu      sync.Mutex
		visited [][2]int
	)
	RegisterSoftwareKernel("visit", func(pixels []uint32, width, height, x, y int) {
		mu.Lock()
		visited = append(visited, [2]int{x, y})
		mu.Unlock()
		if x >= width || y >= height {
			return
		}
		pixels[y*width+x]++
	})
	t.Cleanup(func() { RegisterSoftwareKernel("visit", nil) })

	d := NewSoftwareDevice()
	p, err := d.Compile(validSPIRV, "visit")
	if err != nil {
		t.Fatal(err)
	}

	w, h := 17, 1
	buf, err := d.Alloc(w * h * 4)
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Free()
	if err := buf.Upload(make([]byte, w*h*4)); err != nil {
		t.Fatal(err)
	}

	grid := GridSize(w, h, BlockSize)
	if err := d.Launch(p, LaunchArgs{Buffer: buf, Width: uint32(w), Height: uint32(h), Grid: grid, Block: DefaultBlock}); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}

	if want := int(grid.X*grid.Y) * BlockSize * BlockSize; len(visited) != want {
		t.Errorf("visited %d work-items, want %d", len(visited), want)
	}

	out := make([]byte, w*h*4)
	if err := buf.Download(out); err != nil {
		t.Fatal(err)
	}
	pix := make([]uint32, w*h)
	unpackPixels(out, pix)
	for i, v := range pix {
		if v != 1 {
			t.Errorf("pixel %d written %d times, want once", i, v)
		}
	}
}

func TestSoftwareBufferLifecycle(t *testing.T) {
	d := NewSoftwareDevice()
	if _, err := d.Alloc(0); err == nil {
		t.Error("expected error for zero-size buffer")
	}

	buf, err := d.Alloc(8)
	if err != nil {
		t.Fatal(err)
	}
	if buf.Size() != 8 {
		t.Errorf("Size() = %d, want 8", buf.Size())
	}
	if err := buf.Upload([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for short upload")
	}
	src := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if err := buf.Upload(src); err != nil {
		t.Fatal(err)
	}
	dst := make([]byte, 8)
	if err := buf.Download(dst); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(dst, src) {
		t.Errorf("Download = %v, want %v", dst, src)
	}

	buf.Free()
	buf.Free()
	if err := buf.Upload(src); !errors.Is(err, errBufferFreed) {
		t.Errorf("Upload after Free: expected errBufferFreed, got %v", err)
	}
	if err := buf.Download(dst); !errors.Is(err, errBufferFreed) {
		t.Errorf("Download after Free: expected errBufferFreed, got %v", err)
	}
}

func TestSoftwareDeviceClosed(t *testing.T) {
	d := NewSoftwareDevice()
	p, err := d.Compile(validSPIRV, "invert")
	if err != nil {
		t.Fatal(err)
	}
	buf, err := d.Alloc(4)
	if err != nil {
		t.Fatal(err)
	}

	d.Close()
	if _, err := d.Compile(validSPIRV, "invert"); !errors.Is(err, errDeviceClosed) {
		t.Errorf("Compile: expected errDeviceClosed, got %v", err)
	}
	if _, err := d.Alloc(4); !errors.Is(err, errDeviceClosed) {
		t.Errorf("Alloc: expected errDeviceClosed, got %v", err)
	}
	args := LaunchArgs{Buffer: buf, Width: 1, Height: 1, Grid: Grid{1, 1, 1}, Block: DefaultBlock}
	if err := d.Launch(p, args); !errors.Is(err, errDeviceClosed) {
		t.Errorf("Launch: expected errDeviceClosed, got %v", err)
	}

	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if err := d.Launch(p, args); err != nil {
		t.Errorf("Launch after re-Init failed: %v", err)
	}
}

func TestSoftwareDeviceLaunchForeignObjects(t *testing.T) {
	d := NewSoftwareDevice()
	p, err := d.Compile(validSPIRV, "invert")
	if err != nil {
		t.Fatal(err)
	}
	m := newMockDevice()
	foreign, _ := m.Alloc(4)

	if err := d.Launch(&mockProgram{}, LaunchArgs{}); err == nil {
		t.Error("expected error for foreign program")
	}
	if err := d.Launch(p, LaunchArgs{Buffer: foreign, Width: 1, Height: 1}); err == nil {
		t.Error("expected error for foreign buffer")
	}

	small, _ := d.Alloc(4)
	if err := d.Launch(p, LaunchArgs{Buffer: small, Width: 2, Height: 2, Grid: Grid{1, 1, 1}, Block: DefaultBlock}); err == nil {
		t.Error("expected error for undersized buffer")
	}
}
