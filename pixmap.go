package gpufilter

import (
	"image"
	"image/color"
	"image/png"
	"os"

	xdraw "golang.org/x/image/draw"
)

// Pixmap is an RGB pixel buffer: one packed 0xAARRGGBB value per pixel,
// row-major. The alpha byte is carried through kernels untouched by the
// host but ignored when the pixmap is viewed as an image, which is always
// opaque.
type Pixmap struct {
	width  int
	height int
	pix    []uint32
}

// NewPixmap creates a black pixmap with the given dimensions.
func NewPixmap(width, height int) *Pixmap {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Pixmap{
		width:  width,
		height: height,
		pix:    make([]uint32, width*height),
	}
}

// NewPixmapFromPixels wraps an existing pixel slice without copying.
// It returns ErrInvalidDimensions if len(pix) != width*height.
func NewPixmapFromPixels(pix []uint32, width, height int) (*Pixmap, error) {
	if width < 0 || height < 0 || len(pix) != width*height {
		return nil, ErrInvalidDimensions
	}
	return &Pixmap{width: width, height: height, pix: pix}, nil
}

// Width returns the width of the pixmap.
func (p *Pixmap) Width() int { return p.width }

// Height returns the height of the pixmap.
func (p *Pixmap) Height() int { return p.height }

// Pixels returns the backing pixel slice. Writes are visible in the pixmap.
func (p *Pixmap) Pixels() []uint32 { return p.pix }

// Clone returns a deep copy of the pixmap.
func (p *Pixmap) Clone() *Pixmap {
	pix := make([]uint32, len(p.pix))
	copy(pix, p.pix)
	return &Pixmap{width: p.width, height: p.height, pix: pix}
}

// SetPixel sets a pixel from a color. Out-of-bounds writes are ignored.
func (p *Pixmap) SetPixel(x, y int, c color.Color) {
	if x < 0 || x >= p.width || y < 0 || y >= p.height {
		return
	}
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	p.pix[y*p.width+x] = PackRGB(n.R, n.G, n.B, n.A)
}

// PackRGB packs 8-bit channels into a 0xAARRGGBB pixel.
func PackRGB(r, g, b, a uint8) uint32 {
	return uint32(a)<<24 | uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

// UnpackRGB splits a 0xAARRGGBB pixel into its channels.
func UnpackRGB(v uint32) (r, g, b, a uint8) {
	return uint8(v >> 16), uint8(v >> 8), uint8(v), uint8(v >> 24) //nolint:gosec // masked by truncation
}

// FromImage creates a pixmap from any image, converting it to packed RGB.
func FromImage(img image.Image) *Pixmap {
	bounds := img.Bounds()
	nrgba := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	xdraw.Draw(nrgba, nrgba.Bounds(), img, bounds.Min, xdraw.Src)

	pm := NewPixmap(bounds.Dx(), bounds.Dy())
	for i := range pm.pix {
		o := i * 4
		pm.pix[i] = PackRGB(nrgba.Pix[o], nrgba.Pix[o+1], nrgba.Pix[o+2], nrgba.Pix[o+3])
	}
	return pm
}

// ToImage converts the pixmap to an opaque image.NRGBA.
func (p *Pixmap) ToImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, p.width, p.height))
	for i, v := range p.pix {
		r, g, b, _ := UnpackRGB(v)
		o := i * 4
		img.Pix[o+0] = r
		img.Pix[o+1] = g
		img.Pix[o+2] = b
		img.Pix[o+3] = 0xFF
	}
	return img
}

// SavePNG saves the pixmap to a PNG file.
func (p *Pixmap) SavePNG(path string) error {
	f, err := os.Create(path) //nolint:gosec // path is user-provided intentionally
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	return png.Encode(f, p.ToImage())
}

// At implements the image.Image interface.
func (p *Pixmap) At(x, y int) color.Color {
	if x < 0 || x >= p.width || y < 0 || y >= p.height {
		return color.NRGBA{}
	}
	r, g, b, _ := UnpackRGB(p.pix[y*p.width+x])
	return color.NRGBA{R: r, G: g, B: b, A: 0xFF}
}

// Bounds implements the image.Image interface.
func (p *Pixmap) Bounds() image.Rectangle {
	return image.Rect(0, 0, p.width, p.height)
}

// ColorModel implements the image.Image interface.
func (p *Pixmap) ColorModel() color.Model {
	return color.NRGBAModel
}
