package loaders

import (
	"errors"
	"image"
	stdmath "math"
	"path/filepath"

	"github.com/fzipp/bmfont"
	xdraw "golang.org/x/image/draw"

	"github.com/spaghettifunk/typeset/engine/math"
	"github.com/spaghettifunk/typeset/engine/renderer/metadata"
)

type bitmapGlyph struct {
	x, y          int
	width, height int
	xOffset       int
	yOffset       int
	xAdvance      int
	page          int
}

type kerningPair struct {
	first, second rune
}

/**
 * @brief An AngelCode bitmap font. Glyphs are drawn from the atlas pages and
 * scaled from the size the atlas was generated at.
 */
type BitmapFont struct {
	path  string
	attrs metadata.FontAttributes
	// size and line height the atlas was generated with
	nativeSize       float32
	nativeLineHeight float32
	glyphs           map[rune]bitmapGlyph
	kernings         map[kerningPair]int
	pages            map[int]*image.RGBA
}

func LoadBitmapFont(path string) (*BitmapFont, error) {
	font, err := bmfont.Load(path)
	if err != nil {
		return nil, err
	}
	d := font.Descriptor

	bf := &BitmapFont{
		path:             path,
		nativeSize:       float32(stdmath.Abs(float64(d.Info.Size))),
		nativeLineHeight: float32(d.Common.LineHeight),
		glyphs:           make(map[rune]bitmapGlyph, len(d.Chars)),
		kernings:         make(map[kerningPair]int, len(d.Kerning)),
		pages:            make(map[int]*image.RGBA, len(d.Pages)),
	}
	if bf.nativeSize == 0 {
		bf.nativeSize = bf.nativeLineHeight
	}
	if bf.nativeSize == 0 {
		return nil, errors.New("bitmap font '" + path + "' declares neither a size nor a line height")
	}
	bf.attrs = resolveAttributes(path, d.Info.Face, d.Info.Face+" "+filepath.Base(path), metadata.FONT_TYPE_BITMAP)

	// page files are relative to the descriptor
	dir := filepath.Dir(path)
	for _, p := range d.Pages {
		page, err := loadImage(filepath.Join(dir, p.File))
		if err != nil {
			return nil, err
		}
		bf.pages[int(p.ID)] = page
	}

	for _, g := range d.Chars {
		bf.glyphs[rune(g.ID)] = bitmapGlyph{
			x:        int(g.X),
			y:        int(g.Y),
			width:    int(g.Width),
			height:   int(g.Height),
			xOffset:  int(g.XOffset),
			yOffset:  int(g.YOffset),
			xAdvance: int(g.XAdvance),
			page:     int(g.Page),
		}
	}

	for p, k := range d.Kerning {
		bf.kernings[kerningPair{first: rune(p.First), second: rune(p.Second)}] = int(k.Amount)
	}

	return bf, nil
}

func (bf *BitmapFont) Attributes() metadata.FontAttributes {
	return bf.attrs
}

func (bf *BitmapFont) scale(size uint32) float32 {
	return float32(math.Clamp(size, 1, MaxFontSize)) / bf.nativeSize
}

// layoutLine calls fn with the pen position, in atlas units, of every glyph
// of line and returns the advance of the whole line.
func (bf *BitmapFont) layoutLine(line string, fn func(pen int, g bitmapGlyph)) int {
	pen := 0
	prev := rune(-1)
	for _, r := range line {
		g, ok := bf.glyphs[r]
		if !ok {
			prev = -1
			continue
		}
		if prev >= 0 {
			pen += bf.kernings[kerningPair{first: prev, second: r}]
		}
		if fn != nil {
			fn(pen, g)
		}
		pen += g.xAdvance
		prev = r
	}
	return pen
}

func (bf *BitmapFont) Measure(text string, size uint32, lineHeight float32) math.Extent2D {
	lines := splitLines(text)
	widest := 0
	for _, line := range lines {
		if w := bf.layoutLine(line, nil); w > widest {
			widest = w
		}
	}
	return math.Extent2D{
		Width:  float32(widest) * bf.scale(size),
		Height: float32(len(lines)) * lineHeight,
	}
}

func (bf *BitmapFont) Rasterize(text string, size uint32, lineHeight float32) (*image.RGBA, error) {
	img := newTextImage(bf.Measure(text, size, lineHeight))
	scale := bf.scale(size)
	content := bf.nativeLineHeight * scale

	for i, line := range splitLines(text) {
		top := lineTop(i, lineHeight, content)
		bf.layoutLine(line, func(pen int, g bitmapGlyph) {
			page, ok := bf.pages[g.page]
			if !ok || g.width == 0 || g.height == 0 {
				return
			}
			x0 := float32(pen+g.xOffset) * scale
			y0 := top + float32(g.yOffset)*scale
			dr := image.Rect(
				round(x0), round(y0),
				round(x0+float32(g.width)*scale), round(y0+float32(g.height)*scale),
			)
			sr := image.Rect(g.x, g.y, g.x+g.width, g.y+g.height)
			xdraw.BiLinear.Scale(img, dr, page, sr, xdraw.Over, nil)
		})
	}

	// atlases may be coloured; keep only their alpha as white coverage
	for i := 0; i < len(img.Pix); i += 4 {
		a := img.Pix[i+3]
		img.Pix[i], img.Pix[i+1], img.Pix[i+2] = a, a, a
	}
	return img, nil
}

func round(f float32) int {
	return int(stdmath.Round(float64(f)))
}
