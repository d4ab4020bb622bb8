package metadata

import "image/color"

/** @brief A request to draw one text at a framebuffer position. */
type TextCommand struct {
	X     int
	Y     int
	Text  string
	Size  uint32
	Font  FontHandle
	Color color.RGBA
}

/** @brief Everything the renderer needs to present one frame. */
type RenderPacket struct {
	DeltaTime   float64
	FrameNumber uint64
	Texts       []TextCommand
}

/** @brief What the renderer did with a packet. */
type FrameReport struct {
	FrameNumber uint64
	// Drawn counts commands whose text was available.
	Drawn int
	// Pending counts commands still waiting for their text.
	Pending int
}
