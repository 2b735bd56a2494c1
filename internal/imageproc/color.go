package imageproc

import (
	"image"
	"math"

	"github.com/leca/cover-proxy/internal/model"
	"golang.org/x/image/draw"
)

// SampleWidth is the width images are downsampled to before averaging.
const SampleWidth = 80

// FallbackColor is returned when no pixel is opaque enough to count.
var FallbackColor = model.RGB{R: 2, G: 6, B: 23}

// SampleColor averages the RGB of every pixel with alpha >= 128 after
// scaling the image to SampleWidth pixels wide. The original dimensions are
// returned untouched. maxPixels bounds the source as in Transform.
func SampleColor(data []byte, maxPixels int) (model.ColorSample, error) {
	img, src, err := decode(data, maxPixels)
	if err != nil {
		return model.ColorSample{}, err
	}

	h := int(math.Floor(float64(src.Height)*SampleWidth/float64(src.Width) + 0.5))
	if h < 1 {
		h = 1
	}
	small := image.NewNRGBA(image.Rect(0, 0, SampleWidth, h))
	draw.BiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	return model.ColorSample{
		Dominant: averageOpaque(small),
		Original: src,
	}, nil
}

func averageOpaque(img *image.NRGBA) model.RGB {
	var r, g, b, n uint64
	for y := 0; y < img.Rect.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+img.Rect.Dx()*4]
		for i := 0; i < len(row); i += 4 {
			if row[i+3] < 128 {
				continue
			}
			r += uint64(row[i])
			g += uint64(row[i+1])
			b += uint64(row[i+2])
			n++
		}
	}
	if n == 0 {
		return FallbackColor
	}
	return model.RGB{
		R: uint8((r + n/2) / n),
		G: uint8((g + n/2) / n),
		B: uint8((b + n/2) / n),
	}
}
