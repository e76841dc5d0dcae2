package model

import (
	"image"

	"github.com/nfnt/resize"
)

const (
	LayoutNCHW = "nchw"
	LayoutNHWC = "nhwc"

	NormalizeUnit      = "unit"
	NormalizeSymmetric = "symmetric"

	channels = 3
)

// Preprocess converts img to the flat float32 tensor described by meta:
// resized to image_size square, RGB, laid out and scaled per meta.
func Preprocess(img image.Image, meta Metadata) []float32 {
	size := uint(meta.ImageSize)
	resized := resize.Resize(size, size, img, resize.Lanczos3)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height

	inputData := make([]float32, channels*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			rgb := [channels]float32{
				scale(r, meta.Normalize),
				scale(g, meta.Normalize),
				scale(b, meta.Normalize),
			}

			pixelIndex := y*width + x
			for c, v := range rgb {
				if meta.Layout == LayoutNHWC {
					inputData[pixelIndex*channels+c] = v
				} else {
					inputData[c*plane+pixelIndex] = v
				}
			}
		}
	}

	return inputData
}

func scale(v uint32, mode string) float32 {
	unit := float32(v) / 65535.0
	if mode == NormalizeSymmetric {
		return unit*2 - 1
	}
	return unit
}
