package renderer

import (
	"errors"
	"fmt"
	"image"

	"github.com/spaghettifunk/typeset/engine/core"
	"github.com/spaghettifunk/typeset/engine/renderer/metadata"
)

var ErrRendererNotInitialized = errors.New("renderer not initialized")

// TextSource gives the renderer access to finished texts. It must never
// start work; a miss simply means the text is not ready yet.
type TextSource interface {
	LookupCached(text string, size uint32, font metadata.FontHandle) (*metadata.CachedText, bool)
}

/**
 * @brief Presents render packets through a backend. Texts that are not
 * cached yet are skipped and counted as pending.
 */
type Renderer struct {
	backend     RendererBackend
	texts       TextSource
	initialized bool
}

func New(backendType RendererType, texts TextSource) (*Renderer, error) {
	if texts == nil {
		return nil, fmt.Errorf("renderer needs a text source")
	}
	var backend RendererBackend
	switch backendType {
	case Software:
		backend = NewSoftwareBackend()
	default:
		return nil, fmt.Errorf("unsupported renderer type %d", backendType)
	}
	return NewWithBackend(backend, texts), nil
}

func NewWithBackend(backend RendererBackend, texts TextSource) *Renderer {
	return &Renderer{
		backend: backend,
		texts:   texts,
	}
}

func (r *Renderer) Initialize(appName string, appWidth, appHeight uint32) error {
	if err := r.backend.Initialize(appName, appWidth, appHeight); err != nil {
		return err
	}
	r.initialized = true
	return nil
}

func (r *Renderer) Shutdown() error {
	if !r.initialized {
		return nil
	}
	r.initialized = false
	return r.backend.Shutdown()
}

func (r *Renderer) OnResize(width, height uint32) error {
	if !r.initialized {
		return ErrRendererNotInitialized
	}
	return r.backend.Resized(width, height)
}

func (r *Renderer) DrawFrame(renderPacket *metadata.RenderPacket) (metadata.FrameReport, error) {
	report := metadata.FrameReport{FrameNumber: renderPacket.FrameNumber}
	if !r.initialized {
		return report, ErrRendererNotInitialized
	}

	if err := r.backend.BeginFrame(renderPacket.DeltaTime); err != nil {
		core.LogError(err.Error())
		return report, err
	}
	for _, cmd := range renderPacket.Texts {
		text, ok := r.texts.LookupCached(cmd.Text, cmd.Size, cmd.Font)
		if !ok {
			report.Pending++
			continue
		}
		if err := r.backend.DrawText(cmd, text); err != nil {
			core.LogError("failed to draw '%s': %s", cmd.Text, err)
			return report, err
		}
		report.Drawn++
	}
	if err := r.backend.EndFrame(renderPacket.DeltaTime); err != nil {
		core.LogError("RendererEndFrame failed. Application shutting down...")
		return report, err
	}
	return report, nil
}

func (r *Renderer) Framebuffer() *image.RGBA {
	return r.backend.Framebuffer()
}
