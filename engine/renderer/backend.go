package renderer

import (
	"image"

	"github.com/spaghettifunk/typeset/engine/renderer/metadata"
)

type RendererBackend interface {
	Initialize(appName string, appWidth, appHeight uint32) error
	Shutdown() error
	Resized(width, height uint32) error
	BeginFrame(deltaTime float64) error
	// DrawText composes one rendered text at the command position.
	DrawText(cmd metadata.TextCommand, text *metadata.CachedText) error
	EndFrame(deltaTime float64) error
	// Framebuffer returns the last presented frame.
	Framebuffer() *image.RGBA
}

type RendererType uint8

const (
	Software RendererType = iota
)

func (t RendererType) String() string {
	return "software"
}
