package metadata

import "github.com/google/uuid"

/** @brief Index of a registered job kind (callback plus shared state). */
type JobKind int

// InvalidJobKind never refers to a registered kind.
const InvalidJobKind JobKind = -1

/**
 * @brief The single result of one submission. Exactly one JobOutcome is
 * delivered per submission, on the channel returned at submission time.
 */
type JobOutcome[R any] struct {
	/** @brief Identifier of the submission that produced this outcome. */
	SubmissionID uuid.UUID
	/** @brief The kind the submission was addressed to. */
	Kind JobKind
	/** @brief Callback result. Meaningful only when Err is nil. */
	Value R
	/** @brief Failure, if any. */
	Err error
}

// OK reports whether the outcome carries a value.
func (o JobOutcome[R]) OK() bool {
	return o.Err == nil
}

// TextJob is the closed set of payloads the text system submits.
// Only types in this package implement it.
type TextJob interface {
	isTextJob()
	JobName() string
}

// LoadFontJob loads a font file into the worker side registry under a
// handle chosen by the caller.
type LoadFontJob struct {
	Handle FontHandle
	Path   string
}

func (*LoadFontJob) isTextJob()      {}
func (*LoadFontJob) JobName() string { return "load_font" }

// RenderTextJob rasterizes the text described by Key.
type RenderTextJob struct {
	Key        TextKey
	LineHeight float32
}

func (*RenderTextJob) isTextJob()      {}
func (*RenderTextJob) JobName() string { return "render_text" }

// TextJobResult is the closed set of values text jobs produce.
type TextJobResult interface {
	isTextJobResult()
}

// FontLoaded is the result of a LoadFontJob.
type FontLoaded struct {
	Record FontRecord
}

func (*FontLoaded) isTextJobResult() {}
func (*CachedText) isTextJobResult() {}
