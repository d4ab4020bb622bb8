package renderer

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/spaghettifunk/typeset/engine/core"
	"github.com/spaghettifunk/typeset/engine/renderer/metadata"
)

var DefaultClearColor = color.RGBA{R: 0x1e, G: 0x1e, B: 0x2e, A: 0xff}

/**
 * @brief Backend drawing into an in-memory framebuffer. Frames are composed
 * into a back buffer and copied to the front buffer on EndFrame.
 */
type SoftwareBackend struct {
	ClearColor color.RGBA

	back    *image.RGBA
	front   *image.RGBA
	inFrame bool
}

func NewSoftwareBackend() *SoftwareBackend {
	return &SoftwareBackend{ClearColor: DefaultClearColor}
}

func (sb *SoftwareBackend) Initialize(appName string, appWidth, appHeight uint32) error {
	if appWidth == 0 || appHeight == 0 {
		return fmt.Errorf("framebuffer for '%s' needs a size, got %dx%d", appName, appWidth, appHeight)
	}
	sb.allocate(appWidth, appHeight)
	core.LogDebug("software renderer initialized for '%s' (%dx%d)", appName, appWidth, appHeight)
	return nil
}

func (sb *SoftwareBackend) allocate(width, height uint32) {
	rect := image.Rect(0, 0, int(width), int(height))
	sb.back = image.NewRGBA(rect)
	sb.front = image.NewRGBA(rect)
	draw.Draw(sb.front, rect, image.NewUniform(sb.ClearColor), image.Point{}, draw.Src)
}

func (sb *SoftwareBackend) Shutdown() error {
	sb.back = nil
	sb.front = nil
	return nil
}

// Resized drops the current frame. A zero size keeps the old buffers.
func (sb *SoftwareBackend) Resized(width, height uint32) error {
	if width == 0 || height == 0 {
		return nil
	}
	if sb.inFrame {
		return fmt.Errorf("cannot resize the framebuffer while a frame is open")
	}
	sb.allocate(width, height)
	return nil
}

func (sb *SoftwareBackend) BeginFrame(deltaTime float64) error {
	if sb.back == nil {
		return ErrRendererNotInitialized
	}
	if sb.inFrame {
		return fmt.Errorf("BeginFrame called twice without EndFrame")
	}
	sb.inFrame = true
	draw.Draw(sb.back, sb.back.Bounds(), image.NewUniform(sb.ClearColor), image.Point{}, draw.Src)
	return nil
}

// DrawText uses the coverage of the cached text as a mask over the command
// colour. Parts outside the framebuffer are clipped.
func (sb *SoftwareBackend) DrawText(cmd metadata.TextCommand, text *metadata.CachedText) error {
	if !sb.inFrame {
		return fmt.Errorf("DrawText called outside of a frame")
	}
	if text.Width == 0 || text.Height == 0 {
		return nil
	}
	dst := image.Rect(cmd.X, cmd.Y, cmd.X+int(text.Width), cmd.Y+int(text.Height))
	draw.DrawMask(sb.back, dst, image.NewUniform(cmd.Color), image.Point{}, text.RGBA(), image.Point{}, draw.Over)
	return nil
}

func (sb *SoftwareBackend) EndFrame(deltaTime float64) error {
	if !sb.inFrame {
		return fmt.Errorf("EndFrame called without BeginFrame")
	}
	sb.inFrame = false
	copy(sb.front.Pix, sb.back.Pix)
	return nil
}

func (sb *SoftwareBackend) Framebuffer() *image.RGBA {
	return sb.front
}
