package engine

import (
	"image"
	"image/color"

	"github.com/spaghettifunk/typeset/engine/core"
	"github.com/spaghettifunk/typeset/engine/math"
	"github.com/spaghettifunk/typeset/engine/renderer/metadata"
	"github.com/spaghettifunk/typeset/engine/systems"
)

const DefaultFontSize uint32 = 16

type Game struct {
	ApplicationConfig *ApplicationConfig
	// Set by New.
	SystemManager *systems.SystemManager
	State         interface{}
	FnInitialize  Initialize
	FnUpdate      Update
	FnRender      Render
	FnOnResize    OnResize
	FnShutdown    Shutdown
}

type Initialize func() error
type Update func(frame *Frame) error
type Render func(packet *metadata.RenderPacket, deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error

/**
 * @brief What a game sees of one frame. Labels are measured right away and
 * turned into text commands of the frame render packet; their pixels show
 * up once the text system has rendered them.
 */
type Frame struct {
	Number    uint64
	DeltaTime float64

	text   *systems.TextSystem
	fonts  *systems.FontSystem
	events *core.EventSystem
	packet *metadata.RenderPacket

	font   metadata.FontHandle
	size   uint32
	cursor image.Point
}

func newFrame(e *Engine, packet *metadata.RenderPacket) *Frame {
	f := &Frame{
		Number:    packet.FrameNumber,
		DeltaTime: packet.DeltaTime,
		text:      e.systemManager.TextSystem(),
		fonts:     e.systemManager.FontSystem(),
		events:    e.events,
		packet:    packet,
		size:      DefaultFontSize,
	}
	f.font, _ = f.fonts.Style(metadata.TEXT_STYLE_DEFAULT)
	return f
}

func (f *Frame) SetFont(font metadata.FontHandle) {
	f.font = font
}

// SetFontStyle switches to the font registered for style. It returns false
// and keeps the current font if the style has none.
func (f *Frame) SetFontStyle(style metadata.TextStyle) bool {
	font, ok := f.fonts.Style(style)
	if ok {
		f.font = font
	}
	return ok
}

func (f *Frame) SetFontSize(size uint32) {
	f.size = size
}

// MoveTo places the top-left corner of the next label.
func (f *Frame) MoveTo(x, y int) {
	f.cursor = image.Pt(x, y)
}

func (f *Frame) Cursor() image.Point {
	return f.cursor
}

func (f *Frame) Measure(text string) (math.Extent2D, bool) {
	return f.text.MeasureText(text, f.font, f.size)
}

/**
 * @brief Lays out text at the cursor with the current font and size and
 * moves the cursor below it.
 * @returns The measured extent and whether the rendered text is ready.
 * A label whose font is unknown is dropped and returns a zero extent.
 */
func (f *Frame) Label(text string, c color.RGBA) (math.Extent2D, bool) {
	extent, ok := f.Measure(text)
	if !ok {
		core.LogDebug("label '%s' dropped, font %d is unknown", text, f.font)
		return math.Extent2D{}, false
	}

	ready := true
	if !extent.IsZero() {
		_, ready = f.text.RequestRender(text, f.size, f.font)
		f.packet.Texts = append(f.packet.Texts, metadata.TextCommand{
			X:     f.cursor.X,
			Y:     f.cursor.Y,
			Text:  text,
			Size:  f.size,
			Font:  f.font,
			Color: c,
		})
	}
	f.cursor.Y += math.CeilToInt(extent.Height)
	return extent, ready
}

func (f *Frame) LabelAt(x, y int, text string, c color.RGBA) (math.Extent2D, bool) {
	f.MoveTo(x, y)
	return f.Label(text, c)
}

// Quit asks the engine to stop after this frame.
func (f *Frame) Quit() {
	f.events.Fire(core.EVENT_CODE_APPLICATION_QUIT, f, core.EventContext{})
}
