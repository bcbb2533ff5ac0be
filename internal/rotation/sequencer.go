// Package rotation implements the turn-taking engine of a live group workout:
// who is up, which exercise is active, and when the session is done.
package rotation

import (
	"fmt"
	"slices"
)

// Hooks are the notification points of a Sequencer. Either may be nil.
// OnWrap fires when the cursor returns to position 0, OnAdvance on every
// other move. Both receive the new current item and its index.
type Hooks[T any] struct {
	OnAdvance func(item T, index int)
	OnWrap    func(item T, index int)
}

// Sequencer is a round-robin cursor over an ordered list.
// It is not safe for concurrent use; Session serialises access.
type Sequencer[T any] struct {
	items []T
	pos   int
	hooks Hooks[T]
}

// NewSequencer returns a Sequencer over a copy of items with the cursor at 0.
func NewSequencer[T any](items []T, hooks Hooks[T]) *Sequencer[T] {
	return &Sequencer[T]{items: slices.Clone(items), hooks: hooks}
}

// Add appends an item without moving the cursor.
func (s *Sequencer[T]) Add(item T) {
	s.items = append(s.items, item)
}

// Len returns the number of items.
func (s *Sequencer[T]) Len() int { return len(s.items) }

// Index returns the cursor position.
func (s *Sequencer[T]) Index() int { return s.pos }

// Items returns a copy of the items in order.
func (s *Sequencer[T]) Items() []T { return slices.Clone(s.items) }

// Current returns the item under the cursor. ok is false when empty.
func (s *Sequencer[T]) Current() (item T, ok bool) {
	if len(s.items) == 0 {
		return item, false
	}
	return s.items[s.pos], true
}

// Advance returns the current item and moves the cursor forward by one,
// modulo the length, then fires OnWrap or OnAdvance. Advancing an empty
// sequencer is a no-op.
func (s *Sequencer[T]) Advance() (prev T, wrapped bool) {
	if len(s.items) == 0 {
		return prev, false
	}
	prev = s.items[s.pos]
	s.pos = (s.pos + 1) % len(s.items)
	next := s.items[s.pos]

	if s.pos == 0 {
		if s.hooks.OnWrap != nil {
			s.hooks.OnWrap(next, s.pos)
		}
		return prev, true
	}
	if s.hooks.OnAdvance != nil {
		s.hooks.OnAdvance(next, s.pos)
	}
	return prev, false
}

// Find returns the first item matching pred without moving the cursor.
func (s *Sequencer[T]) Find(pred func(T) bool) (item T, ok bool) {
	for _, it := range s.items {
		if pred(it) {
			return it, true
		}
	}
	return item, false
}

// Swap exchanges the items at i and j. The cursor stays at its position.
func (s *Sequencer[T]) Swap(i, j int) error {
	if i < 0 || j < 0 || i >= len(s.items) || j >= len(s.items) {
		return fmt.Errorf("swap %d,%d of %d items: %w", i, j, len(s.items), ErrInvalidArgument)
	}
	s.items[i], s.items[j] = s.items[j], s.items[i]
	return nil
}

// RemoveIf drops every item matching pred and clamps the cursor.
//
// The cursor stays on the same item if it survives, otherwise it moves to
// the next survivor. When no survivor exists at or after the old position
// the cursor rolls over to 0 and wrapped is true. Hooks are not fired;
// the caller decides what a rollover means.
func (s *Sequencer[T]) RemoveIf(pred func(T) bool) (removed int, wrapped bool) {
	kept := make([]T, 0, len(s.items))
	newPos := -1
	for i, it := range s.items {
		if pred(it) {
			removed++
			continue
		}
		if newPos < 0 && i >= s.pos {
			newPos = len(kept)
		}
		kept = append(kept, it)
	}
	if removed == 0 {
		return 0, false
	}

	s.items = kept
	if newPos < 0 {
		s.pos = 0
		return removed, len(kept) > 0
	}
	s.pos = newPos
	return removed, false
}
