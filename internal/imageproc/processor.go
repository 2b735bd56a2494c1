package imageproc

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"math"
	"strconv"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/leca/cover-proxy/internal/api"
	"github.com/leca/cover-proxy/internal/model"
)

const (
	DefaultSpine = 0.02
	MaxSpine     = 0.2

	DefaultSize = 512
	MinSize     = 32
	MaxSize     = 1024

	// Quality is used for every lossy encode.
	Quality = 90

	// DefaultMaxPixels bounds width*height of a source before it is decoded.
	DefaultMaxPixels = 40 * 1000 * 1000
)

// Rect is a crop region in source pixel coordinates.
type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Rect) bounds() image.Rectangle {
	return image.Rect(r.Left, r.Top, r.Left+r.Width, r.Top+r.Height)
}

// Result is an encoded derived image.
type Result struct {
	Data        []byte
	ContentType string
	Source      model.Dimensions
	Output      model.Dimensions
}

// ClampSpine parses a spine ratio. Anything unparsable, non-finite or
// outside [0, MaxSpine) yields DefaultSpine.
func ClampSpine(raw string) float64 {
	if raw == "" {
		return DefaultSpine
	}
	s, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(s) || math.IsInf(s, 0) || s < 0 || s >= MaxSpine {
		return DefaultSpine
	}
	return s
}

// ClampSize parses a thumbnail edge length and clamps it to [MinSize, MaxSize].
// Missing or non-numeric input yields DefaultSize.
func ClampSize(raw string) int {
	if raw == "" {
		return DefaultSize
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) {
		return DefaultSize
	}
	n := math.Floor(f)
	switch {
	case n < MinSize:
		return MinSize
	case n > MaxSize:
		return MaxSize
	default:
		return int(n)
	}
}

// ParseCodec maps a format query value to a codec, defaulting to webp.
func ParseCodec(raw string) model.Codec {
	switch strings.ToLower(raw) {
	case "jpeg", "jpg":
		return model.CodecJPEG
	case "png":
		return model.CodecPNG
	default:
		return model.CodecWebP
	}
}

// SplitGeometry computes the front and back panels of a w×h dust-jacket
// image. The front panel is the rightmost round(w*(0.5+spine/2)) pixels,
// clamped to [1, w-1]; the back panel is the remainder on the left.
func SplitGeometry(w, h int, spine float64) (front, back Rect) {
	frontWidth := int(math.Floor(float64(w)*(0.5+spine/2) + 0.5))
	if frontWidth > w-1 {
		frontWidth = w - 1
	}
	if frontWidth < 1 {
		frontWidth = 1
	}
	backWidth := w - frontWidth
	front = Rect{Left: w - frontWidth, Top: 0, Width: frontWidth, Height: h}
	back = Rect{Left: 0, Top: 0, Width: backWidth, Height: h}
	return front, back
}

// ThumbCrop returns the square crop used for thumbnails. Landscape images
// are cropped around the horizontal center; portrait and square images are
// anchored at the top-left so the top of the cover is kept.
func ThumbCrop(w, h int) Rect {
	side := min(w, h)
	left := 0
	if w > h {
		left = (w - side) / 2
	}
	return Rect{Left: left, Top: 0, Width: side, Height: side}
}

// Transform produces the derived image described by spec from source bytes.
// Sources larger than maxPixels are rejected; maxPixels <= 0 means
// DefaultMaxPixels.
func Transform(data []byte, spec model.TransformSpec, maxPixels int) (*Result, error) {
	switch spec.Op {
	case model.OpSplitFront, model.OpSplitBack:
		return Split(data, spec.Op, spec.Spine, spec.Codec, maxPixels)
	case model.OpThumbnail:
		return Thumbnail(data, spec.Size, spec.Codec, maxPixels)
	default:
		return nil, fmt.Errorf("unknown transform %q", spec.Op)
	}
}

// Split crops the front or back panel out of a cover image.
func Split(data []byte, op model.Op, spine float64, codec model.Codec, maxPixels int) (*Result, error) {
	img, src, err := decode(data, maxPixels)
	if err != nil {
		return nil, err
	}
	if src.Width < 2 {
		return nil, fmt.Errorf("image %dpx wide cannot be split: %w", src.Width, api.ErrUnreadableImage)
	}

	front, back := SplitGeometry(src.Width, src.Height, spine)
	region := front
	if op == model.OpSplitBack {
		region = back
	}

	cropped := imaging.Crop(img, region.bounds())
	out, err := Encode(cropped, codec)
	if err != nil {
		return nil, err
	}
	return &Result{
		Data:        out,
		ContentType: codec.ContentType(),
		Source:      src,
		Output:      model.Dimensions{Width: region.Width, Height: region.Height},
	}, nil
}

// Thumbnail crops a square from the source, shrinks it to size×size
// (never enlarging), drops the alpha channel and re-encodes it.
func Thumbnail(data []byte, size int, codec model.Codec, maxPixels int) (*Result, error) {
	img, src, err := decode(data, maxPixels)
	if err != nil {
		return nil, err
	}

	crop := ThumbCrop(src.Width, src.Height)
	square := imaging.Crop(img, crop.bounds())

	side := crop.Width
	if size < side {
		square = imaging.Resize(square, size, size, imaging.Lanczos)
		side = size
	}
	opaque := removeAlpha(square)

	out, err := Encode(opaque, codec)
	if err != nil {
		return nil, err
	}
	return &Result{
		Data:        out,
		ContentType: codec.ContentType(),
		Source:      src,
		Output:      model.Dimensions{Width: side, Height: side},
	}, nil
}

// decode reads dimensions first so payloads that are not images, or that
// declare more than maxPixels, fail before any pixel buffer is allocated.
func decode(data []byte, maxPixels int) (image.Image, model.Dimensions, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, model.Dimensions{}, fmt.Errorf("reading dimensions: %w", api.ErrUnreadableImage)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, model.Dimensions{}, fmt.Errorf("image has no pixels: %w", api.ErrUnreadableImage)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, model.Dimensions{}, fmt.Errorf("image %dx%d exceeds %d pixels: %w",
			cfg.Width, cfg.Height, maxPixels, api.ErrUnreadableImage)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, model.Dimensions{}, fmt.Errorf("decoding image: %w", api.ErrUnreadableImage)
	}
	b := img.Bounds()
	return img, model.Dimensions{Width: b.Dx(), Height: b.Dy()}, nil
}

// removeAlpha keeps the straight RGB values and marks every pixel opaque.
func removeAlpha(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// Encode encodes img with codec. Encoders are deterministic, so equal
// inputs give byte-identical output.
func Encode(img image.Image, codec model.Codec) ([]byte, error) {
	var buf bytes.Buffer
	switch codec {
	case model.CodecJPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: Quality}); err != nil {
			return nil, fmt.Errorf("encoding jpeg: %w", err)
		}
	case model.CodecPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encoding png: %w", err)
		}
	case model.CodecWebP:
		if err := webp.Encode(&buf, img, &webp.Options{Lossless: false, Quality: Quality}); err != nil {
			return nil, fmt.Errorf("encoding webp: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported output format: %s", codec)
	}
	return buf.Bytes(), nil
}
