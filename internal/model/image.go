package model

import (
	"strconv"
)

// Op identifies which derived image a TransformSpec produces.
type Op string

const (
	OpSplitFront Op = "split-front"
	OpSplitBack  Op = "split-back"
	OpThumbnail  Op = "thumbnail"
)

// Codec is an output image encoding.
type Codec string

const (
	CodecWebP Codec = "webp"
	CodecJPEG Codec = "jpeg"
	CodecPNG  Codec = "png"
)

// Ext returns the file extension used for cache entries of this codec.
func (c Codec) Ext() string {
	if c == CodecJPEG {
		return "jpg"
	}
	return string(c)
}

// ContentType returns the MIME type of the codec.
func (c Codec) ContentType() string {
	switch c {
	case CodecJPEG:
		return "image/jpeg"
	case CodecPNG:
		return "image/png"
	default:
		return "image/webp"
	}
}

// TransformSpec fully determines the bytes of one derived image.
type TransformSpec struct {
	Source string  `json:"source"`
	Op     Op      `json:"op"`
	Spine  float64 `json:"spine,omitempty"`
	Size   int     `json:"size,omitempty"`
	Codec  Codec   `json:"codec"`
}

// Namespace returns the cache partition the spec belongs to.
func (s TransformSpec) Namespace() string {
	if s.Op == OpThumbnail {
		return "thumb"
	}
	return "split"
}

// String returns the canonical serialization used for cache digests.
// Every field that affects output bytes is part of it.
func (s TransformSpec) String() string {
	var param string
	switch s.Op {
	case OpThumbnail:
		param = strconv.Itoa(s.Size)
	default:
		param = strconv.FormatFloat(s.Spine, 'g', -1, 64)
	}
	return string(s.Op) + "|" + param + "|" + string(s.Codec) + "|" + s.Source
}

// RGB is an 8-bit color triple.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Dimensions is a pixel width and height.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ColorSample is the averaged color of an image plus its original size.
type ColorSample struct {
	Dominant RGB        `json:"dominant"`
	Original Dimensions `json:"original"`
}
