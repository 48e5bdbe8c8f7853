package workspace

import (
	"fmt"
	"image"
	"image/color"
)

// Buffer is a dense 8-bit image buffer, C channels interleaved per pixel
// (1 = grayscale, 3 = RGB). Operations mutate buffers in place; ownership
// stays with the workspace for the whole session.
type Buffer struct {
	W, H, C int
	Pix     []uint8
}

// NewBuffer allocates a zeroed buffer.
func NewBuffer(w, h, c int) *Buffer {
	return &Buffer{W: w, H: h, C: c, Pix: make([]uint8, w*h*c)}
}

// Clone returns an independent deep copy.
func (b *Buffer) Clone() *Buffer {
	out := &Buffer{W: b.W, H: b.H, C: b.C, Pix: make([]uint8, len(b.Pix))}
	copy(out.Pix, b.Pix)
	return out
}

// At returns channel c of pixel (x, y). Out-of-range access returns 0 so
// window-based operations can run to the edge without guards.
func (b *Buffer) At(x, y, c int) uint8 {
	if x < 0 || y < 0 || x >= b.W || y >= b.H {
		return 0
	}
	return b.Pix[(y*b.W+x)*b.C+c]
}

// Set writes channel c of pixel (x, y); out-of-range writes are dropped.
func (b *Buffer) Set(x, y, c int, v uint8) {
	if x < 0 || y < 0 || x >= b.W || y >= b.H {
		return
	}
	b.Pix[(y*b.W+x)*b.C+c] = v
}

// Gray returns a single-channel copy. Multi-channel input is averaged.
func (b *Buffer) Gray() *Buffer {
	if b.C == 1 {
		return b.Clone()
	}
	out := NewBuffer(b.W, b.H, 1)
	for i := 0; i < b.W*b.H; i++ {
		sum := 0
		for c := 0; c < b.C; c++ {
			sum += int(b.Pix[i*b.C+c])
		}
		out.Pix[i] = uint8(sum / b.C)
	}
	return out
}

// Channel extracts one channel as a grayscale buffer.
func (b *Buffer) Channel(c int) (*Buffer, error) {
	if c < 0 || c >= b.C {
		return nil, fmt.Errorf("workspace: channel %d out of range (buffer has %d)", c, b.C)
	}
	out := NewBuffer(b.W, b.H, 1)
	for i := 0; i < b.W*b.H; i++ {
		out.Pix[i] = b.Pix[i*b.C+c]
	}
	return out, nil
}

// Multi coerces the buffer to 3 channels, replicating grayscale.
func (b *Buffer) Multi() *Buffer {
	if b.C == 3 {
		return b.Clone()
	}
	out := NewBuffer(b.W, b.H, 3)
	for i := 0; i < b.W*b.H; i++ {
		v := b.Pix[i*b.C]
		out.Pix[i*3], out.Pix[i*3+1], out.Pix[i*3+2] = v, v, v
	}
	return out
}

// Image converts the buffer to a stdlib image for encoding.
func (b *Buffer) Image() image.Image {
	if b.C == 1 {
		img := image.NewGray(image.Rect(0, 0, b.W, b.H))
		copy(img.Pix, b.Pix)
		return img
	}
	img := image.NewRGBA(image.Rect(0, 0, b.W, b.H))
	for i := 0; i < b.W*b.H; i++ {
		img.Pix[i*4] = b.Pix[i*b.C]
		img.Pix[i*4+1] = b.Pix[i*b.C+1]
		img.Pix[i*4+2] = b.Pix[i*b.C+2]
		img.Pix[i*4+3] = 0xff
	}
	return img
}

// FromImage converts a decoded stdlib image into a 3-channel buffer.
func FromImage(img image.Image) *Buffer {
	bounds := img.Bounds()
	out := NewBuffer(bounds.Dx(), bounds.Dy(), 3)
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, bl, _ := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA).RGBA()
			out.Pix[i] = uint8(r >> 8)
			out.Pix[i+1] = uint8(g >> 8)
			out.Pix[i+2] = uint8(bl >> 8)
			i += 3
		}
	}
	return out
}

// Resize scales the buffer by factor using nearest-neighbor sampling.
func (b *Buffer) Resize(factor float64) *Buffer {
	if factor <= 0 || factor == 1 {
		return b.Clone()
	}
	w := int(float64(b.W) * factor)
	h := int(float64(b.H) * factor)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	out := NewBuffer(w, h, b.C)
	for y := 0; y < h; y++ {
		sy := int(float64(y) / factor)
		for x := 0; x < w; x++ {
			sx := int(float64(x) / factor)
			for c := 0; c < b.C; c++ {
				out.Set(x, y, c, b.At(sx, sy, c))
			}
		}
	}
	return out
}
