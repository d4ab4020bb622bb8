package math

/**
 * @brief A 2d vector. Also used for positions on the framebuffer.
 */
type Vec2 struct {
	X float32
	Y float32
}

/**
 * @brief The size of a measured 2d object, in pixels.
 */
type Extent2D struct {
	Width  float32
	Height float32
}

// IsZero reports whether the extent covers no area.
func (e Extent2D) IsZero() bool {
	return e.Width <= 0 || e.Height <= 0
}

/**
 * @brief Represents the extents of a 2d object.
 */
type Extents2D struct {
	/** @brief The minimum extents of the object. */
	Min Vec2
	/** @brief The maximum extents of the object. */
	Max Vec2
}

// Size returns the width and height of the extents.
func (e Extents2D) Size() Extent2D {
	return Extent2D{Width: e.Max.X - e.Min.X, Height: e.Max.Y - e.Min.Y}
}
