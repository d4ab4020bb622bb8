package loaders

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/typeset/engine/core"
	"github.com/spaghettifunk/typeset/engine/math"
	"github.com/spaghettifunk/typeset/engine/renderer/metadata"
)

// MaxFontSize bounds the pixel size faces are built at.
const MaxFontSize uint32 = 4096

/**
 * @brief A parsed font able to measure and rasterize text. Implementations
 * are not safe for concurrent use; the owner serializes access.
 */
type FontFace interface {
	/** @brief Attributes resolved when the face was loaded. */
	Attributes() metadata.FontAttributes
	/** @brief Bounding box of text laid out at size with the given line height. */
	Measure(text string, size uint32, lineHeight float32) math.Extent2D
	/**
	 * @brief Renders text as white premultiplied coverage, top-left origin.
	 * The image has the size Measure reports, rounded up to whole pixels.
	 */
	Rasterize(text string, size uint32, lineHeight float32) (*image.RGBA, error)
}

type fontFileType int

const (
	FONT_FILE_TYPE_NOT_FOUND fontFileType = iota
	FONT_FILE_TYPE_SFNT
	FONT_FILE_TYPE_FONTCFG
	FONT_FILE_TYPE_FNT
)

// Supported extensions.
var supportedFontFileTypes = map[string]fontFileType{
	".ttf":     FONT_FILE_TYPE_SFNT,
	".otf":     FONT_FILE_TYPE_SFNT,
	".ttc":     FONT_FILE_TYPE_SFNT,
	".otc":     FONT_FILE_TYPE_SFNT,
	".fontcfg": FONT_FILE_TYPE_FONTCFG,
	".fnt":     FONT_FILE_TYPE_FNT,
}

func fileTypeOf(path string) fontFileType {
	if t, ok := supportedFontFileTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return t
	}
	return FONT_FILE_TYPE_NOT_FOUND
}

// IsFontFile reports whether path has an extension LoadFontFace understands.
func IsFontFile(path string) bool {
	return fileTypeOf(path) != FONT_FILE_TYPE_NOT_FOUND
}

// LoadFontFace parses the font file at path, picking the backend from the
// file extension.
func LoadFontFace(path string) (FontFace, error) {
	switch fileTypeOf(path) {
	case FONT_FILE_TYPE_SFNT:
		return LoadSystemFont(path)
	case FONT_FILE_TYPE_FONTCFG:
		return LoadSystemFontConfig(path)
	case FONT_FILE_TYPE_FNT:
		return LoadBitmapFont(path)
	default:
		return nil, fmt.Errorf("%w: '%s'", core.ErrUnsupportedFontFormat, path)
	}
}

// splitLines breaks text on newlines. Empty text is one empty line.
func splitLines(text string) []string {
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}

// lineTop returns the y of the top of the content box of line i, centering
// content of height contentHeight inside each line.
func lineTop(i int, lineHeight, contentHeight float32) float32 {
	return float32(i)*lineHeight + (lineHeight-contentHeight)/2
}

func newTextImage(extent math.Extent2D) *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, math.CeilToInt(extent.Width), math.CeilToInt(extent.Height)))
}

type weightKeyword struct {
	keyword string
	weight  metadata.FontWeight
}

// Longer keywords come first so "extrabold" is not read as "bold".
var weightKeywords = []weightKeyword{
	{"extralight", metadata.FontWeightExtraLight},
	{"ultralight", metadata.FontWeightExtraLight},
	{"semibold", metadata.FontWeightSemiBold},
	{"demibold", metadata.FontWeightSemiBold},
	{"extrabold", metadata.FontWeightExtraBold},
	{"ultrabold", metadata.FontWeightExtraBold},
	{"hairline", metadata.FontWeightThin},
	{"thin", metadata.FontWeightThin},
	{"light", metadata.FontWeightLight},
	{"medium", metadata.FontWeightMedium},
	{"bold", metadata.FontWeightBold},
	{"black", metadata.FontWeightBlack},
	{"heavy", metadata.FontWeightBlack},
}

type stretchKeyword struct {
	keyword string
	stretch metadata.FontStretch
}

var stretchKeywords = []stretchKeyword{
	{"ultracondensed", metadata.FONT_STRETCH_ULTRA_CONDENSED},
	{"extracondensed", metadata.FONT_STRETCH_EXTRA_CONDENSED},
	{"semicondensed", metadata.FONT_STRETCH_SEMI_CONDENSED},
	{"condensed", metadata.FONT_STRETCH_CONDENSED},
	{"ultraexpanded", metadata.FONT_STRETCH_ULTRA_EXPANDED},
	{"extraexpanded", metadata.FONT_STRETCH_EXTRA_EXPANDED},
	{"semiexpanded", metadata.FONT_STRETCH_SEMI_EXPANDED},
	{"expanded", metadata.FONT_STRETCH_EXPANDED},
}

/**
 * @brief Derives attributes from a family name and a style description such
 * as an sfnt subfamily ("Bold Italic") or a bitmap face name.
 */
func resolveAttributes(path, family, style string, fontType metadata.FontType) metadata.FontAttributes {
	attrs := metadata.FontAttributes{
		Family:  family,
		Weight:  metadata.FontWeightNormal,
		Style:   metadata.FONT_STYLE_NORMAL,
		Stretch: metadata.FONT_STRETCH_NORMAL,
		Type:    fontType,
	}
	if attrs.Family == "" {
		attrs.Family = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	s := strings.NewReplacer(" ", "", "-", "", "_", "").Replace(strings.ToLower(style))
	for _, k := range weightKeywords {
		if strings.Contains(s, k.keyword) {
			attrs.Weight = k.weight
			break
		}
	}
	for _, k := range stretchKeywords {
		if strings.Contains(s, k.keyword) {
			attrs.Stretch = k.stretch
			break
		}
	}
	switch {
	case strings.Contains(s, "italic"):
		attrs.Style = metadata.FONT_STYLE_ITALIC
	case strings.Contains(s, "oblique"):
		attrs.Style = metadata.FONT_STYLE_OBLIQUE
	}

	// paths naming a thin cut resolve to extra-light
	if strings.Contains(path, "Thin") {
		attrs.Weight = metadata.FontWeightExtraLight
	}
	return attrs
}
