package loaders

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"github.com/spaghettifunk/typeset/engine/math"
	"github.com/spaghettifunk/typeset/engine/renderer/metadata"
)

/** @brief A vector font (TrueType, OpenType or a collection of them). */
type SystemFont struct {
	path  string
	font  *sfnt.Font
	attrs metadata.FontAttributes
	// faces built so far, one per pixel size
	faces map[uint32]font.Face
}

// LoadSystemFont reads and parses the sfnt file at path. For collections the
// last face is used.
func LoadSystemFont(path string) (*SystemFont, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSystemFont(path, data)
}

// ParseSystemFont parses sfnt data; path only feeds attribute resolution.
func ParseSystemFont(path string, data []byte) (*SystemFont, error) {
	collection, err := opentype.ParseCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing '%s': %w", path, err)
	}
	n := collection.NumFonts()
	if n == 0 {
		return nil, fmt.Errorf("'%s' contains no font faces", path)
	}
	f, err := collection.Font(n - 1)
	if err != nil {
		return nil, fmt.Errorf("reading face %d of '%s': %w", n-1, path, err)
	}

	var buf sfnt.Buffer
	family, _ := f.Name(&buf, sfnt.NameIDFamily)
	subfamily, _ := f.Name(&buf, sfnt.NameIDSubfamily)

	return &SystemFont{
		path:  path,
		font:  f,
		attrs: resolveAttributes(path, family, subfamily, metadata.FONT_TYPE_SYSTEM),
		faces: make(map[uint32]font.Face),
	}, nil
}

/**
 * @brief Loads a font through a config file. Lines are key=value pairs;
 * "file" names the font file relative to the config and "face" overrides
 * the family name. Lines starting with # are comments.
 */
func LoadSystemFontConfig(path string) (*SystemFont, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var fontFile, face string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip comments and empty lines
		if len(line) == 0 || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "file=") {
			fontFile = strings.TrimPrefix(line, "file=")
		} else if strings.HasPrefix(line, "face=") {
			face = strings.TrimPrefix(line, "face=")
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if fontFile == "" {
		return nil, errors.New("font config '" + path + "' does not name a file")
	}
	if !filepath.IsAbs(fontFile) {
		fontFile = filepath.Join(filepath.Dir(path), fontFile)
	}

	sf, err := LoadSystemFont(fontFile)
	if err != nil {
		return nil, err
	}
	if face != "" {
		sf.attrs.Family = face
	}
	return sf, nil
}

func (sf *SystemFont) Attributes() metadata.FontAttributes {
	return sf.attrs
}

func (sf *SystemFont) face(size uint32) (font.Face, error) {
	size = math.Clamp(size, 1, MaxFontSize)
	if f, ok := sf.faces[size]; ok {
		return f, nil
	}
	f, err := opentype.NewFace(sf.font, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, err
	}
	sf.faces[size] = f
	return f, nil
}

func (sf *SystemFont) Measure(text string, size uint32, lineHeight float32) math.Extent2D {
	face, err := sf.face(size)
	if err != nil {
		return math.Extent2D{}
	}
	return measureLines(face, splitLines(text), lineHeight)
}

func measureLines(face font.Face, lines []string, lineHeight float32) math.Extent2D {
	var width fixed.Int26_6
	for _, line := range lines {
		if w := font.MeasureString(face, line); w > width {
			width = w
		}
	}
	return math.Extent2D{
		Width:  fixedToFloat(width),
		Height: float32(len(lines)) * lineHeight,
	}
}

func (sf *SystemFont) Rasterize(text string, size uint32, lineHeight float32) (*image.RGBA, error) {
	face, err := sf.face(size)
	if err != nil {
		return nil, err
	}
	lines := splitLines(text)
	img := newTextImage(measureLines(face, lines, lineHeight))

	metrics := face.Metrics()
	ascent := fixedToFloat(metrics.Ascent)
	content := ascent + fixedToFloat(metrics.Descent)

	// white source over a transparent image leaves (c,c,c,c) coverage
	d := font.Drawer{Dst: img, Src: image.White, Face: face}
	for i, line := range lines {
		baseline := lineTop(i, lineHeight, content) + ascent
		d.Dot = fixed.Point26_6{X: 0, Y: fixed.Int26_6(baseline * 64)}
		d.DrawString(line)
	}
	return img, nil
}

func fixedToFloat(v fixed.Int26_6) float32 {
	return float32(v) / 64
}
