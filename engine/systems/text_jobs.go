package systems

import (
	"fmt"

	"github.com/spaghettifunk/typeset/engine/assets/loaders"
	"github.com/spaghettifunk/typeset/engine/core"
	"github.com/spaghettifunk/typeset/engine/renderer/metadata"
)

// TextJobSystem is the job system the text system submits to.
type TextJobSystem = JobSystem[metadata.TextJob, metadata.TextJobResult]

// NewTextJobSystem builds a job system sized by config.
func NewTextJobSystem(config TextSystemConfig, opts ...JobSystemOption) (*TextJobSystem, error) {
	return NewJobSystem[metadata.TextJob, metadata.TextJobResult](config.Workers, config.QueueSize, opts...)
}

type loadedFace struct {
	record metadata.FontRecord
	face   loaders.FontFace
}

/**
 * @brief State shared by every text job. Holds the fonts used for rendering,
 * independent from the ones the frame uses for measurement. Only touched
 * by job callbacks, which run with the state lock held.
 */
type textWorkerState struct {
	fonts map[metadata.FontHandle]*loadedFace
}

func newTextWorkerState() textWorkerState {
	return textWorkerState{fonts: make(map[metadata.FontHandle]*loadedFace)}
}

func unexpectedPayload(kind string, job metadata.TextJob) error {
	return fmt.Errorf("%w: %T sent to %s", core.ErrUnexpectedPayload, job, kind)
}

func loadFontJob(job metadata.TextJob, s *textWorkerState) (metadata.TextJobResult, error) {
	load, ok := job.(*metadata.LoadFontJob)
	if !ok || load == nil {
		return nil, unexpectedPayload("load_font", job)
	}

	face, err := loaders.LoadFontFace(load.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: '%s': %w", core.ErrFontNotFound, load.Path, err)
	}

	record := metadata.FontRecord{
		Handle:     load.Handle,
		Path:       load.Path,
		Attributes: face.Attributes(),
	}
	s.fonts[load.Handle] = &loadedFace{record: record, face: face}
	return &metadata.FontLoaded{Record: record}, nil
}

func renderTextJob(job metadata.TextJob, s *textWorkerState) (metadata.TextJobResult, error) {
	render, ok := job.(*metadata.RenderTextJob)
	if !ok || render == nil {
		return nil, unexpectedPayload("render_text", job)
	}
	key := render.Key

	font, ok := s.fonts[key.Font]
	if !ok {
		return nil, fmt.Errorf("%w: %w: handle %d", core.ErrGenerationFailed, core.ErrFontNotLoaded, key.Font)
	}

	img, err := font.face.Rasterize(key.Text, key.Size, render.LineHeight)
	if err != nil {
		return nil, fmt.Errorf("%w: '%s' at %d: %w", core.ErrGenerationFailed, key.Text, key.Size, err)
	}
	return metadata.NewCachedText(img, key.SubPixelStepsX, key.SubPixelStepsY), nil
}
