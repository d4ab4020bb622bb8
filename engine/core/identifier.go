package core

import "sync/atomic"

// Identifier hands out strictly increasing ids starting at 1. Ids are never
// released, so an id observed once can never refer to anything else.
type Identifier struct {
	last atomic.Uint64
}

// Peek returns the id the next call to Acquire will hand out.
func (i *Identifier) Peek() uint64 {
	return i.last.Load() + 1
}

func (i *Identifier) Acquire() uint64 {
	return i.last.Add(1)
}

// Last returns the most recently acquired id, or 0 if none was acquired.
func (i *Identifier) Last() uint64 {
	return i.last.Load()
}
