// Package selection implements the Paginator's Selection state machine
// described in spec.md §4.6: a closed tagged variant (Empty, Range,
// Partial, All) plus the selection-arithmetic table governing how
// select_up/select_down grow, shrink, or flip a Range.
//
// The package is deliberately store-agnostic: growing or shrinking a Range
// requires a book fetched from "n positions away" in the logical order,
// but fetching that book is the caller's (Paginator's) job, since it
// requires a database query. This package only decides, given a
// caller-supplied candidate book, what the resulting Selection looks like.
package selection

import (
	"github.com/shelfmgr/libshelf/internal/record"
	"github.com/shelfmgr/libshelf/internal/search"
)

// Direction records which end of a Range grew most recently, so a
// reverse-direction select op knows which end to shrink first.
type Direction int

const (
	Up Direction = iota
	Down
)

// Kind identifies which of the four closed Selection variants is held.
type Kind int

const (
	KindEmpty Kind = iota
	KindRange
	KindPartial
	KindAll
)

// Selection is the closed tagged variant from spec.md §4.6. The zero value
// is Empty.
type Selection struct {
	kind       Kind
	start, end record.Book
	direction  Direction
	partial    map[int64]record.Book
	cmpRules   []record.SortRule
	matchRules []search.Search
}

// Empty returns the empty selection.
func Empty() Selection { return Selection{kind: KindEmpty} }

// NewRange returns a contiguous Range selection from start to end
// (inclusive, in the order defined by cmpRules), restricted to matchRules.
func NewRange(start, end record.Book, cmpRules []record.SortRule, dir Direction, matchRules []search.Search) Selection {
	return Selection{kind: KindRange, start: start, end: end, cmpRules: cmpRules, direction: dir, matchRules: matchRules}
}

// NewPartial returns an explicit, non-contiguous selection.
func NewPartial(books map[int64]record.Book, cmpRules []record.SortRule) Selection {
	return Selection{kind: KindPartial, partial: books, cmpRules: cmpRules}
}

// NewAll returns a selection of every book matching matchRules.
func NewAll(matchRules []search.Search) Selection {
	return Selection{kind: KindAll, matchRules: matchRules}
}

func (s Selection) Kind() Kind { return s.kind }

// RangeBounds returns the Range's start/end books; ok is false for any
// other Selection kind.
func (s Selection) RangeBounds() (start, end record.Book, ok bool) {
	if s.kind != KindRange {
		return record.Book{}, record.Book{}, false
	}
	return s.start, s.end, true
}

// PartialBooks returns the Partial selection's member set; ok is false for
// any other Selection kind.
func (s Selection) PartialBooks() (map[int64]record.Book, bool) {
	if s.kind != KindPartial {
		return nil, false
	}
	return s.partial, true
}

// MatchRules returns the match rules driving an All or Range selection.
func (s Selection) MatchRules() []search.Search { return s.matchRules }

// CmpRules returns the ordering used by a Range or Partial selection.
func (s Selection) CmpRules() []record.SortRule { return s.cmpRules }

// Direction reports which end of a Range grew last.
func (s Selection) Direction() Direction { return s.direction }

// Contains reports whether book is selected.
func (s Selection) Contains(book record.Book) bool {
	switch s.kind {
	case KindEmpty:
		return false
	case KindRange:
		if !search.AllMatch(s.matchRules, book) {
			return false
		}
		return cmpBooks(s.start, book, s.cmpRules) <= 0 && cmpBooks(book, s.end, s.cmpRules) <= 0
	case KindPartial:
		_, ok := s.partial[book.ID]
		return ok
	case KindAll:
		return search.AllMatch(s.matchRules, book)
	default:
		return false
	}
}

// First returns the logical first selected book, if determinable without a
// database query (Range and Partial only).
func (s Selection) First() (record.Book, bool) {
	switch s.kind {
	case KindRange:
		return s.start, true
	case KindPartial:
		return firstOf(s.partial, s.cmpRules)
	default:
		return record.Book{}, false
	}
}

// Last returns the logical last selected book, if determinable without a
// database query (Range and Partial only).
func (s Selection) Last() (record.Book, bool) {
	switch s.kind {
	case KindRange:
		return s.end, true
	case KindPartial:
		return lastOf(s.partial, s.cmpRules)
	default:
		return record.Book{}, false
	}
}

// Front returns the Range end matching Direction (the end that last grew).
func (s Selection) Front() (record.Book, bool) {
	if s.kind != KindRange {
		return record.Book{}, false
	}
	if s.direction == Down {
		return s.end, true
	}
	return s.start, true
}

// IsSingle reports whether the selection names exactly one book.
func (s Selection) IsSingle() bool {
	switch s.kind {
	case KindRange:
		return cmpBooks(s.start, s.end, s.cmpRules) == 0
	case KindPartial:
		return len(s.partial) == 1
	default:
		return false
	}
}

// IsEmpty reports whether the selection names no books.
func (s Selection) IsEmpty() bool {
	switch s.kind {
	case KindEmpty:
		return true
	case KindPartial:
		return len(s.partial) == 0
	default:
		return false
	}
}

// Clear returns the Empty selection, discarding s.
func (s Selection) Clear() Selection { return Empty() }

// GrowDown applies select_down(n) per the arithmetic table in spec.md §4.6.
// windowFirst anchors a fresh Range when s is Empty; movedTip is the book
// the caller already fetched n logical positions below the relevant end
// (the window for Empty, the growing/shrinking end otherwise).
func GrowDown(s Selection, windowFirst, movedTip record.Book, cmpRules []record.SortRule, matchRules []search.Search) Selection {
	switch s.kind {
	case KindEmpty:
		return NewRange(windowFirst, movedTip, cmpRules, Down, matchRules)
	case KindRange:
		if s.direction == Down {
			return NewRange(s.start, movedTip, cmpRules, Down, s.matchRules)
		}
		// direction == Up: movedTip is "start + n"; shrink or flip.
		if cmpBooks(movedTip, s.end, cmpRules) <= 0 {
			return NewRange(movedTip, s.end, cmpRules, Up, s.matchRules)
		}
		return NewRange(s.end, movedTip, cmpRules, Down, s.matchRules)
	default:
		return s
	}
}

// GrowUp is the mirror of GrowDown for select_up(n).
func GrowUp(s Selection, windowLast, movedTip record.Book, cmpRules []record.SortRule, matchRules []search.Search) Selection {
	switch s.kind {
	case KindEmpty:
		return NewRange(movedTip, windowLast, cmpRules, Up, matchRules)
	case KindRange:
		if s.direction == Up {
			return NewRange(movedTip, s.end, cmpRules, Up, s.matchRules)
		}
		// direction == Down: movedTip is "end - n"; shrink or flip.
		if cmpBooks(movedTip, s.start, cmpRules) >= 0 {
			return NewRange(s.start, movedTip, cmpRules, Down, s.matchRules)
		}
		return NewRange(movedTip, s.start, cmpRules, Up, s.matchRules)
	default:
		return s
	}
}

func cmpBooks(a, b record.Book, cmpRules []record.SortRule) int {
	return a.CmpColumns(b, cmpRules)
}

func firstOf(books map[int64]record.Book, cmpRules []record.SortRule) (record.Book, bool) {
	var best record.Book
	found := false
	for _, b := range books {
		if !found || cmpBooks(b, best, cmpRules) < 0 {
			best, found = b, true
		}
	}
	return best, found
}

func lastOf(books map[int64]record.Book, cmpRules []record.SortRule) (record.Book, bool) {
	var best record.Book
	found := false
	for _, b := range books {
		if !found || cmpBooks(b, best, cmpRules) > 0 {
			best, found = b, true
		}
	}
	return best, found
}
