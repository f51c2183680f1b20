package record

import "strings"

// ColumnIdentifier names a column a Book or BookVariant exposes. ID and
// Variants are structural and immutable; the rest participate in edits,
// sorting, and matching.
type ColumnIdentifier struct {
	kind          columnKind
	name          string // NamedTag/MultiMap name (also for ExactTag/MultiMapExact)
	exactOrSecond string // ExactTag value, or MultiMapExact value
}

type columnKind int

const (
	ColTitle columnKind = iota
	ColAuthor
	ColSeries
	ColID
	ColVariants
	ColDescription
	ColTags
	ColExactTag
	ColNamedTag
	ColMultiMap
	ColMultiMapExact
)

func (c ColumnIdentifier) Kind() columnKind { return c.kind }

// NamedTagName returns the tag/multimap name for NamedTag, MultiMap, and
// MultiMapExact columns.
func (c ColumnIdentifier) NamedTagName() string { return c.name }

// ExactTagValue returns the held value for ExactTag and MultiMapExact columns.
func (c ColumnIdentifier) ExactTagValue() string { return c.exactOrSecond }

func Title() ColumnIdentifier       { return ColumnIdentifier{kind: ColTitle} }
func Author() ColumnIdentifier      { return ColumnIdentifier{kind: ColAuthor} }
func SeriesCol() ColumnIdentifier   { return ColumnIdentifier{kind: ColSeries} }
func ID() ColumnIdentifier          { return ColumnIdentifier{kind: ColID} }
func Variants() ColumnIdentifier    { return ColumnIdentifier{kind: ColVariants} }
func Description() ColumnIdentifier { return ColumnIdentifier{kind: ColDescription} }
func Tags() ColumnIdentifier        { return ColumnIdentifier{kind: ColTags} }

func ExactTag(value string) ColumnIdentifier {
	return ColumnIdentifier{kind: ColExactTag, exactOrSecond: value}
}

func NamedTag(name string) ColumnIdentifier {
	return ColumnIdentifier{kind: ColNamedTag, name: name}
}

func MultiMap(name string) ColumnIdentifier {
	return ColumnIdentifier{kind: ColMultiMap, name: name}
}

func MultiMapExact(name, value string) ColumnIdentifier {
	return ColumnIdentifier{kind: ColMultiMapExact, name: name, exactOrSecond: value}
}

// ParseColumn case-insensitively maps a string to its canonical
// ColumnIdentifier. Unrecognized strings become NamedTag(s).
func ParseColumn(s string) ColumnIdentifier {
	switch strings.ToLower(s) {
	case "author", "authors":
		return Author()
	case "title":
		return Title()
	case "series":
		return SeriesCol()
	case "id":
		return ID()
	case "variant", "variants":
		return Variants()
	case "description":
		return Description()
	case "tag", "tags":
		return Tags()
	default:
		return NamedTag(s)
	}
}

// String renders a human-readable column name, mirroring the canonical
// display name used in error messages and column headers.
func (c ColumnIdentifier) String() string {
	switch c.kind {
	case ColTitle:
		return "Title"
	case ColAuthor:
		return "Author"
	case ColSeries:
		return "Series"
	case ColID:
		return "ID"
	case ColVariants:
		return "Variants"
	case ColDescription:
		return "Description"
	case ColTags, ColExactTag:
		return "Tag"
	case ColNamedTag, ColMultiMap, ColMultiMapExact:
		return c.name
	default:
		return ""
	}
}

// Order is a sort direction.
type Order int

const (
	Ascending Order = iota
	Descending
)

// SortRule is one (column, direction) pair in a cmp-rule list.
type SortRule struct {
	Column ColumnIdentifier
	Order  Order
}

// WithIDTiebreaker appends an ID-ascending tiebreaker to rules if one is not
// already present, per the invariant that every cmp-rule list ends in a
// unique total order.
func WithIDTiebreaker(rules []SortRule) []SortRule {
	for _, r := range rules {
		if r.Column.Kind() == ColID {
			return rules
		}
	}
	out := make([]SortRule, len(rules), len(rules)+1)
	copy(out, rules)
	return append(out, SortRule{Column: ID(), Order: Ascending})
}
