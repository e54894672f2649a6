package engine

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Tensor is one RGB image shaped [height][width][channel], values in [0,1].
type Tensor [][][3]float32

// Size returns the tensor's edge length.
func (t Tensor) Size() int { return len(t) }

// DefaultMaxPixels bounds the decoded width×height of an input image.
const DefaultMaxPixels = 40_000_000

// DecodeImage decodes an encoded image (jpeg, png, gif, bmp or webp),
// scales it to size×size with bilinear interpolation and converts it to an
// RGB tensor. Alpha is discarded. Images whose header declares more than
// maxPixels pixels are rejected before decoding; maxPixels <= 0 means
// DefaultMaxPixels.
func DecodeImage(data []byte, size, maxPixels int) (Tensor, string, error) {
	if size <= 0 {
		return nil, "", fmt.Errorf("invalid input size %d", size)
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > int64(maxPixels) {
		return nil, format, fmt.Errorf("decode image: %dx%d %s image exceeds %d pixels",
			cfg.Width, cfg.Height, format, maxPixels)
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	if b := src.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, format, fmt.Errorf("decode image: empty %s image", format)
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	t := make(Tensor, size)
	for y := range size {
		row := make([][3]float32, size)
		for x := range size {
			off := dst.PixOffset(x, y)
			p := dst.Pix[off : off+3 : off+3]
			row[x] = [3]float32{
				float32(p[0]) / 255,
				float32(p[1]) / 255,
				float32(p[2]) / 255,
			}
		}
		t[y] = row
	}
	return t, format, nil
}
