// Command gpufilter applies a GPU compute kernel to an image file.
//
// It loads the input image, runs the kernel through the gpufilter plugin
// protocol and writes the result as PNG. With -compare it also writes the
// original and filtered images side by side.
//
// Usage:
//
//	gpufilter -in photo.jpg -out inverted.png -compare compare.png
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"time"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/gpufilter"
	gpuimpl "github.com/gogpu/gpufilter/internal/gpu"
	"github.com/gogpu/gpufilter/kernels"
)

type config struct {
	in, out, compare string
	kernelDir        string
	resource, entry  string
	software         bool
	timeout          time.Duration
	verbose          bool
	about            bool
}

func main() {
	var cfg config
	flag.StringVar(&cfg.in, "in", "", "input image (png, jpeg, gif, bmp, tiff, webp)")
	flag.StringVar(&cfg.out, "out", "out.png", "output PNG file")
	flag.StringVar(&cfg.compare, "compare", "", "optional side-by-side before/after PNG")
	flag.StringVar(&cfg.kernelDir, "kernel", "", "directory to load kernel sources from (default: embedded)")
	flag.StringVar(&cfg.resource, "resource", kernels.Invert, "kernel source resource name")
	flag.StringVar(&cfg.entry, "entry", kernels.InvertEntryPoint, "kernel entry point")
	flag.BoolVar(&cfg.software, "software", false, "run kernels on the CPU")
	flag.DurationVar(&cfg.timeout, "timeout", gpuimpl.DefaultTimeout, "GPU submission timeout")
	flag.BoolVar(&cfg.verbose, "v", false, "enable debug logging")
	flag.BoolVar(&cfg.about, "about", false, "show information about the filter and exit")
	flag.Parse()

	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "gpufilter:", err)
		os.Exit(1)
	}
}

// stderrHost prints filter messages to stderr.
type stderrHost struct{}

func (stderrHost) ShowMessage(title, body string) {
	fmt.Fprintf(os.Stderr, "%s\n%s\n", title, body)
}

// redraws counts how often the filter asked for the image to be redrawn.
type redraws int

func (r *redraws) UpdateAndDraw() { *r++ }

// validate rejects flag combinations before any device is opened.
func (cfg config) validate() error {
	if cfg.about {
		return nil
	}
	switch {
	case cfg.in == "":
		return fmt.Errorf("missing -in")
	case cfg.out == "":
		return fmt.Errorf("missing -out")
	case !cfg.software && cfg.timeout <= 0:
		return fmt.Errorf("-timeout must be positive, got %v", cfg.timeout)
	}
	return nil
}

func run(cfg config) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	level := slog.LevelWarn
	if cfg.verbose {
		level = slog.LevelDebug
	}
	gpufilter.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	opts := []gpufilter.Option{
		gpufilter.WithHost(stderrHost{}),
		gpufilter.WithResourceName(cfg.resource),
		gpufilter.WithEntryPoint(cfg.entry),
	}
	if cfg.kernelDir != "" {
		opts = append(opts, gpufilter.WithSource(os.DirFS(cfg.kernelDir)))
	}
	if cfg.about {
		_, err := gpufilter.NewFilter(opts...).Setup(gpufilter.AboutArg, nil)
		return err
	}

	src, format, err := loadImage(cfg.in)
	if err != nil {
		return err
	}

	dev := deviceOpener(cfg)
	defer dev.Close()
	f := gpufilter.NewFilter(append(opts, gpufilter.WithDevice(dev))...)
	defer f.Close()
	before := gpufilter.FromImage(src)
	after := before.Clone()

	var r redraws
	if _, err := f.Setup("", &r); err != nil {
		return err
	}
	start := time.Now()
	if err := f.Run(after); err != nil {
		return err
	}
	elapsed := time.Since(start)

	if err := after.SavePNG(cfg.out); err != nil {
		return err
	}
	if cfg.compare != "" {
		if err := saveComparison(cfg.compare, before, after); err != nil {
			return err
		}
	}

	p := message.NewPrinter(language.English)
	p.Printf("%s (%s, %dx%d): %d pixels on %s in %v, grid %v -> %s\n",
		cfg.in, format, before.Width(), before.Height(),
		before.Width()*before.Height(), dev.Name(), elapsed.Round(time.Microsecond),
		gpufilter.GridSize(before.Width(), before.Height(), gpufilter.BlockSize), cfg.out)
	return nil
}

// deviceOpener is replaced in tests.
var deviceOpener = openDevice

// openDevice returns the wgpu device, or the software device when the GPU is
// unavailable or -software is set.
func openDevice(cfg config) gpufilter.Device {
	if !cfg.software {
		d := gpuimpl.NewDevice(gpuimpl.WithTimeout(cfg.timeout))
		d.SetLogger(gpufilter.Logger())
		err := d.Init()
		if err == nil {
			gpufilter.Logger().Debug("using GPU", "adapter", d.AdapterName())
			return d
		}
		gpufilter.Logger().Warn("GPU not available, using software device", "err", err)
	}
	sw := gpufilter.NewSoftwareDevice()
	_ = sw.Init()
	return sw
}

func loadImage(path string) (image.Image, string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer fh.Close()
	img, format, err := image.Decode(fh)
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", path, err)
	}
	return img, format, nil
}

const captionHeight = 18

// saveComparison writes before and after side by side with captions.
func saveComparison(path string, before, after *gpufilter.Pixmap) error {
	w, h := before.Width(), before.Height()
	dst := image.NewNRGBA(image.Rect(0, 0, 2*w, h+captionHeight))
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, xdraw.Src)
	xdraw.Draw(dst, image.Rect(0, captionHeight, w, h+captionHeight), before.ToImage(), image.Point{}, xdraw.Src)
	xdraw.Draw(dst, image.Rect(w, captionHeight, 2*w, h+captionHeight), after.ToImage(), image.Point{}, xdraw.Src)

	caption(dst, 4, "before")
	caption(dst, w+4, "after")

	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(fh, dst); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

func caption(dst *image.NRGBA, x int, s string) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, 13),
	}
	d.DrawString(s)
}
