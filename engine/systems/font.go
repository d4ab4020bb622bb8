package systems

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/typeset/engine/core"
	"github.com/spaghettifunk/typeset/engine/renderer/metadata"
)

// FontLookup resolves a font name to the path of a font file.
type FontLookup interface {
	Resolve(name string) (string, bool)
}

/** @brief A font loaded at startup and the role it plays. */
type FontConfig struct {
	/** @brief Font name known to the font catalog, or a path. */
	Font string `toml:"font" yaml:"font"`
	/** @brief One of default, bold, thin or light. Empty means default. */
	Style string `toml:"style" yaml:"style"`
}

func ParseTextStyle(name string) (metadata.TextStyle, error) {
	switch strings.ToLower(name) {
	case "", "default", "regular":
		return metadata.TEXT_STYLE_DEFAULT, nil
	case "bold":
		return metadata.TEXT_STYLE_BOLD, nil
	case "thin":
		return metadata.TEXT_STYLE_THIN, nil
	case "light":
		return metadata.TEXT_STYLE_LIGHT, nil
	default:
		return metadata.TEXT_STYLE_DEFAULT, fmt.Errorf("unknown text style '%s'", name)
	}
}

/**
 * @brief Loads fonts by name or path through the text system, loading each
 * file once, and maps text styles to loaded fonts.
 */
type FontSystem struct {
	text    *TextSystem
	lookup  FontLookup
	byPath  map[string]metadata.FontHandle
	styles  map[metadata.TextStyle]metadata.FontHandle
	byStyle []metadata.TextStyle
}

// NewFontSystem creates a font system. lookup may be nil, in which case
// every name is treated as a path.
func NewFontSystem(text *TextSystem, lookup FontLookup) *FontSystem {
	return &FontSystem{
		text:   text,
		lookup: lookup,
		byPath: make(map[string]metadata.FontHandle),
		styles: make(map[metadata.TextStyle]metadata.FontHandle),
	}
}

func (fs *FontSystem) resolve(nameOrPath string) string {
	if fs.lookup != nil {
		if path, ok := fs.lookup.Resolve(nameOrPath); ok {
			return path
		}
	}
	return nameOrPath
}

// Load returns the handle of the font, loading it on first use. The first
// font loaded becomes the default style.
func (fs *FontSystem) Load(nameOrPath string) (metadata.FontHandle, error) {
	path := fs.resolve(nameOrPath)
	if handle, ok := fs.byPath[path]; ok {
		return handle, nil
	}

	handle, err := fs.text.LoadFont(path)
	if err != nil {
		return metadata.InvalidFontHandle, err
	}
	fs.byPath[path] = handle

	if _, ok := fs.styles[metadata.TEXT_STYLE_DEFAULT]; !ok {
		fs.RegisterStyle(handle, metadata.TEXT_STYLE_DEFAULT)
	}
	return handle, nil
}

// LoadConfigured loads every configured font and registers its style.
func (fs *FontSystem) LoadConfigured(configs []FontConfig) error {
	for _, c := range configs {
		style, err := ParseTextStyle(c.Style)
		if err != nil {
			return err
		}
		handle, err := fs.Load(c.Font)
		if err != nil {
			core.LogError("failed to load font '%s' for style %s", c.Font, style)
			return err
		}
		fs.RegisterStyle(handle, style)
	}
	return nil
}

// RegisterStyle makes handle the font used for style.
func (fs *FontSystem) RegisterStyle(handle metadata.FontHandle, style metadata.TextStyle) {
	if _, ok := fs.styles[style]; !ok {
		fs.byStyle = append(fs.byStyle, style)
	}
	fs.styles[style] = handle
	core.LogDebug("font %d registered for style %s", handle, style)
}

// Style returns the font registered for style.
func (fs *FontSystem) Style(style metadata.TextStyle) (metadata.FontHandle, bool) {
	handle, ok := fs.styles[style]
	return handle, ok
}

// Styles lists the registered styles in registration order.
func (fs *FontSystem) Styles() []metadata.TextStyle {
	return append([]metadata.TextStyle(nil), fs.byStyle...)
}
