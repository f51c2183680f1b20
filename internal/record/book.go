package record

import (
	"fmt"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// collator provides locale-aware, case-insensitive string ordering for
// Title/Author/generic column comparisons, replacing a hand-rolled
// strings.ToLower compare (see SPEC_FULL.md §4 domain stack).
var collator = collate.New(language.Und, collate.IgnoreCase)

// Book is the metadata shared across every variant of a single work: an
// associated ID, zero or more BookVariants, and fields such as title and
// author that are common to all of them.
//
// A zero-value Book with ID == 0 is a placeholder (see Placeholder).
type Book struct {
	ID          int64
	Title       string
	HasTitle    bool
	Authors     []string
	Series      *Series
	Description string
	HasDescr    bool
	Variants    []BookVariant
	FreeTags    map[string]struct{}
	NamedTags   map[string]string
}

// Placeholder returns a Book with no ID, usable only to reduce the runtime
// cost of certain bulk operations. Calling MustID on a placeholder panics.
func Placeholder() Book {
	return Book{}
}

// IsPlaceholder reports whether b has no assigned ID.
func (b Book) IsPlaceholder() bool { return b.ID == 0 }

// MustID returns the Book's ID, panicking if called on a placeholder.
func (b Book) MustID() int64 {
	if b.ID == 0 {
		panic("record: MustID called on placeholder book")
	}
	return b.ID
}

// FromVariant builds a Book with the given ID from a single BookVariant,
// lifting the variant's local title, authors, description, and named tags
// up onto the Book and clearing the variant's own ID (the Book owns the
// canonical column values; the variant retains only file-specific fields).
func FromVariant(id int64, variant BookVariant) Book {
	b := Book{
		ID:          id,
		Authors:     variant.AdditionalAuthors,
		FreeTags:    variant.FreeTags,
		NamedTags:   variant.NamedTags,
		Description: variant.Description,
		HasDescr:    variant.Description != "",
	}
	if variant.LocalTitle != "" {
		b.Title = variant.LocalTitle
		b.HasTitle = true
	}
	variant.LocalTitle = ""
	variant.Description = ""
	variant.NamedTags = nil
	variant.FreeTags = nil
	variant.ID = 0
	b.Variants = []BookVariant{variant}
	return b
}

// PushVariant appends variant to the Book, backfilling Title, Authors,
// Description, and NamedTags from it when the Book doesn't already have
// them set.
func (b *Book) PushVariant(variant BookVariant) {
	if !b.HasTitle && variant.LocalTitle != "" {
		b.Title = variant.LocalTitle
		b.HasTitle = true
		variant.LocalTitle = ""
	}
	if b.Authors == nil && variant.AdditionalAuthors != nil {
		b.Authors = variant.AdditionalAuthors
		variant.AdditionalAuthors = nil
	}
	if !b.HasDescr && variant.Description != "" {
		b.Description = variant.Description
		b.HasDescr = true
		variant.Description = ""
	}
	if len(b.NamedTags) == 0 && len(variant.NamedTags) > 0 {
		b.NamedTags = variant.NamedTags
		variant.NamedTags = nil
	}
	b.Variants = append(b.Variants, variant)
}

// MergeMut merges other into b, treating other as another realization of the
// same work: missing Title/Authors/Series are taken from other, and other's
// variants and named tags are folded in.
func (b *Book) MergeMut(other Book) {
	if !b.HasTitle {
		b.Title, b.HasTitle = other.Title, other.HasTitle
	}
	if b.Authors == nil {
		b.Authors = other.Authors
	}
	if b.Series == nil {
		b.Series = other.Series
	}
	b.Variants = append(b.Variants, other.Variants...)
	if len(other.NamedTags) > 0 && b.NamedTags == nil {
		b.NamedTags = make(map[string]string, len(other.NamedTags))
	}
	for k, v := range other.NamedTags {
		b.NamedTags[k] = v
	}
}

// GetColumn returns the string representation of column, and false if the
// column has no value on this Book (or isn't a gettable column at all).
func (b Book) GetColumn(column ColumnIdentifier) (string, bool) {
	switch column.Kind() {
	case ColID:
		if b.IsPlaceholder() {
			return "", false
		}
		return fmt.Sprintf("%d", b.ID), true
	case ColTitle:
		if !b.HasTitle {
			return "", false
		}
		return b.Title, true
	case ColAuthor:
		if b.Authors == nil {
			return "", false
		}
		return strings.Join(b.Authors, ", "), true
	case ColSeries:
		if b.Series == nil {
			return "", false
		}
		return b.Series.String(), true
	case ColDescription:
		if !b.HasDescr {
			return "", false
		}
		return b.Description, true
	case ColNamedTag:
		v, ok := b.NamedTags[column.NamedTagName()]
		return v, ok
	default:
		return "", false
	}
}

// SetColumn stores value into column directly. Title is stored verbatim;
// Author is stored as a single-element author list; Series is parsed via
// ParseSeries. ID and Variants are structural and return ErrImmutableColumn.
func (b *Book) SetColumn(column ColumnIdentifier, value string) error {
	switch column.Kind() {
	case ColTitle:
		b.Title, b.HasTitle = value, true
	case ColDescription:
		b.Description, b.HasDescr = value, true
	case ColAuthor:
		b.Authors = []string{value}
	case ColID, ColVariants:
		return ErrImmutableColumn
	case ColSeries:
		s := ParseSeries(value)
		b.Series = &s
	case ColNamedTag:
		if b.NamedTags == nil {
			b.NamedTags = make(map[string]string)
		}
		b.NamedTags[column.NamedTagName()] = value
	case ColTags:
		b.insertFreeTag(value)
	case ColExactTag:
		delete(b.FreeTags, column.ExactTagValue())
		b.insertFreeTag(value)
	case ColMultiMap, ColMultiMapExact:
		panic("record: cannot set a multimap column directly")
	}
	return nil
}

// ExtendColumn appends value to column's existing value (creating it if
// absent). Series does not support extension and returns
// ErrInextensibleColumn.
func (b *Book) ExtendColumn(column ColumnIdentifier, value string) error {
	switch column.Kind() {
	case ColTitle:
		b.Title += value
		b.HasTitle = true
	case ColDescription:
		b.Description += value
		b.HasDescr = true
	case ColAuthor:
		if b.Authors == nil {
			b.Authors = []string{value}
		} else {
			b.Authors = append(b.Authors, value)
		}
	case ColID, ColVariants:
		return ErrImmutableColumn
	case ColSeries:
		return ErrInextensibleColumn
	case ColNamedTag:
		if b.NamedTags == nil {
			b.NamedTags = make(map[string]string)
		}
		b.NamedTags[column.NamedTagName()] += value
	case ColTags:
		b.insertFreeTag(value)
	case ColExactTag:
		tag := column.ExactTagValue()
		if _, ok := b.FreeTags[tag]; ok {
			delete(b.FreeTags, tag)
			b.insertFreeTag(tag + value)
		} else {
			b.insertFreeTag(value)
		}
	default:
		panic("record: cannot extend a multimap column")
	}
	return nil
}

// DeleteColumn clears column's value. ID and Variants return
// ErrImmutableColumn.
func (b *Book) DeleteColumn(column ColumnIdentifier) error {
	switch column.Kind() {
	case ColTitle:
		b.Title, b.HasTitle = "", false
	case ColDescription:
		b.Description, b.HasDescr = "", false
	case ColAuthor:
		b.Authors = nil
	case ColID, ColVariants:
		return ErrImmutableColumn
	case ColSeries:
		b.Series = nil
	case ColNamedTag:
		delete(b.NamedTags, column.NamedTagName())
	case ColTags:
		b.FreeTags = nil
	case ColExactTag:
		delete(b.FreeTags, column.ExactTagValue())
	default:
		panic("record: cannot delete a multimap column")
	}
	return nil
}

// EditColumn dispatches edit to SetColumn, DeleteColumn, or ExtendColumn.
// edit must already be resolved (Edit.Resolve) if it was a Sequence.
func (b *Book) EditColumn(column ColumnIdentifier, edit Edit) error {
	switch edit.Kind {
	case EditDelete:
		return b.DeleteColumn(column)
	case EditReplace:
		return b.SetColumn(column, edit.Value)
	case EditAppend:
		return b.ExtendColumn(column, edit.Value)
	case EditSequence:
		return b.EditColumn(column, edit.Resolve(b.columnOrEmpty(column)))
	}
	return nil
}

func (b Book) columnOrEmpty(column ColumnIdentifier) string {
	v, _ := b.GetColumn(column)
	return v
}

func (b *Book) insertFreeTag(tag string) {
	if b.FreeTags == nil {
		b.FreeTags = make(map[string]struct{})
	}
	b.FreeTags[tag] = struct{}{}
}

// CmpColumn orders b against other on a single column: numeric for ID,
// Series.Compare for Series, element-wise (missing sorts before present)
// for Author, and locale-aware collation for everything else.
func (b Book) CmpColumn(other Book, column ColumnIdentifier) int {
	switch column.Kind() {
	case ColID:
		switch {
		case b.ID < other.ID:
			return -1
		case b.ID > other.ID:
			return 1
		default:
			return 0
		}
	case ColSeries:
		switch {
		case b.Series == nil && other.Series == nil:
			return 0
		case b.Series == nil:
			return -1
		case other.Series == nil:
			return 1
		default:
			return b.Series.Compare(*other.Series)
		}
	case ColAuthor:
		return cmpAuthors(b.Authors, other.Authors)
	default:
		av, aok := b.GetColumn(column)
		bv, bok := other.GetColumn(column)
		switch {
		case !aok && !bok:
			return 0
		case !aok:
			return -1
		case !bok:
			return 1
		default:
			return collator.CompareString(av, bv)
		}
	}
}

func cmpAuthors(a, b []string) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	for i := 0; ; i++ {
		aDone, bDone := i >= len(a), i >= len(b)
		if aDone && bDone {
			return 0
		}
		if aDone {
			return -1
		}
		if bDone {
			return 1
		}
		if c := collator.CompareString(a[i], b[i]); c != 0 {
			return c
		}
	}
}

// CmpColumns orders b against other by the given SortRules in priority
// order, returning the first nonzero comparison (reversed for Descending
// rules), or 0 if every rule compares equal.
func (b Book) CmpColumns(other Book, rules []SortRule) int {
	for _, r := range rules {
		c := b.CmpColumn(other, r.Column)
		if r.Order == Descending {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// String renders the Book's title, or the empty string if it has none.
func (b Book) String() string {
	return b.Title
}
