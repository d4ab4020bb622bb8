package metadata

import (
	"fmt"
	"image"
)

// FontHandle identifies a loaded font. Handles start at 1 and are never reused.
type FontHandle uint64

// InvalidFontHandle is never issued.
const InvalidFontHandle FontHandle = 0

type FontWeight uint16

const (
	FontWeightThin       FontWeight = 100
	FontWeightExtraLight FontWeight = 200
	FontWeightLight      FontWeight = 300
	FontWeightNormal     FontWeight = 400
	FontWeightMedium     FontWeight = 500
	FontWeightSemiBold   FontWeight = 600
	FontWeightBold       FontWeight = 700
	FontWeightExtraBold  FontWeight = 800
	FontWeightBlack      FontWeight = 900
)

type FontStyle int

const (
	FONT_STYLE_NORMAL FontStyle = iota
	FONT_STYLE_ITALIC
	FONT_STYLE_OBLIQUE
)

func (s FontStyle) String() string {
	switch s {
	case FONT_STYLE_ITALIC:
		return "italic"
	case FONT_STYLE_OBLIQUE:
		return "oblique"
	default:
		return "normal"
	}
}

type FontStretch int

const (
	FONT_STRETCH_ULTRA_CONDENSED FontStretch = iota + 1
	FONT_STRETCH_EXTRA_CONDENSED
	FONT_STRETCH_CONDENSED
	FONT_STRETCH_SEMI_CONDENSED
	FONT_STRETCH_NORMAL
	FONT_STRETCH_SEMI_EXPANDED
	FONT_STRETCH_EXPANDED
	FONT_STRETCH_EXTRA_EXPANDED
	FONT_STRETCH_ULTRA_EXPANDED
)

type FontType int

const (
	FONT_TYPE_BITMAP FontType = iota
	FONT_TYPE_SYSTEM
)

func (t FontType) String() string {
	if t == FONT_TYPE_BITMAP {
		return "bitmap"
	}
	return "system"
}

// TextStyle names a role a font plays in the UI. Each style maps to one
// loaded font.
type TextStyle int

const (
	TEXT_STYLE_DEFAULT TextStyle = iota
	TEXT_STYLE_BOLD
	TEXT_STYLE_THIN
	TEXT_STYLE_LIGHT
)

func (s TextStyle) String() string {
	switch s {
	case TEXT_STYLE_BOLD:
		return "bold"
	case TEXT_STYLE_THIN:
		return "thin"
	case TEXT_STYLE_LIGHT:
		return "light"
	default:
		return "default"
	}
}

/** @brief Attributes resolved once when a font is loaded. */
type FontAttributes struct {
	Family  string
	Weight  FontWeight
	Style   FontStyle
	Stretch FontStretch
	Type    FontType
}

func (a FontAttributes) String() string {
	return fmt.Sprintf("%s (weight %d, %s, stretch %d, %s)", a.Family, a.Weight, a.Style, a.Stretch, a.Type)
}

/** @brief Maps a font handle to the attributes of the loaded face. */
type FontRecord struct {
	Handle     FontHandle
	Path       string
	Attributes FontAttributes
}

/**
 * @brief Identifies one logically unique rendered text. Two requests with
 * equal keys ask for the same artifact.
 */
type TextKey struct {
	Font           FontHandle
	Text           string
	Size           uint32
	SubPixelStepsX uint32
	SubPixelStepsY uint32
}

/**
 * @brief A rendered text. Pix holds premultiplied RGBA with 8 bits per
 * channel, top-left origin, Stride bytes per row. The value must not be
 * modified once it has been promoted into the cache.
 */
type CachedText struct {
	Pix           []byte
	ID            uint64
	Stride        uint32
	Width         uint32
	Height        uint32
	SubPixelStepX uint32
	SubPixelStepY uint32
}

// RGBA wraps the pixels without copying them.
func (c *CachedText) RGBA() *image.RGBA {
	return &image.RGBA{
		Pix:    c.Pix,
		Stride: int(c.Stride),
		Rect:   image.Rect(0, 0, int(c.Width), int(c.Height)),
	}
}

// NewCachedText copies the geometry of img. The pixel slice is shared.
func NewCachedText(img *image.RGBA, subPixelStepX, subPixelStepY uint32) *CachedText {
	b := img.Bounds()
	pix := img.Pix
	if b.Min != (image.Point{}) {
		// re-base the buffer so the artifact always starts at the origin
		pix = img.Pix[img.PixOffset(b.Min.X, b.Min.Y):]
	}
	return &CachedText{
		Pix:           pix,
		Stride:        uint32(img.Stride),
		Width:         uint32(b.Dx()),
		Height:        uint32(b.Dy()),
		SubPixelStepX: subPixelStepX,
		SubPixelStepY: subPixelStepY,
	}
}
