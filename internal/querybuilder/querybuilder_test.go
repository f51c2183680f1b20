package querybuilder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfmgr/libshelf/internal/record"
	"github.com/shelfmgr/libshelf/internal/search"
)

func TestJoinColsNoAnchorProducesNoWhereRowCmp(t *testing.T) {
	b := New([]record.SortRule{{Column: record.Title(), Order: record.Ascending}}, record.Ascending).Sort(true)
	query, args := b.JoinCols(nil, nil)

	assert.Contains(t, query, "SELECT ATABLE.book_id")
	assert.Contains(t, query, "FROM (SELECT book_id, title as a FROM books) as ATABLE")
	assert.Contains(t, query, "INNER JOIN (SELECT book_id, book_id as b FROM books) as BTABLE")
	assert.Contains(t, query, "ORDER BY a DESC, b DESC")
	assert.NotContains(t, query, "WHERE")
	assert.Empty(t, args)
}

func TestJoinColsWithAnchorBindsKeysetTuple(t *testing.T) {
	// Title Ascending cmp-rule, paginating Ascending: orderToCmp gives "<",
	// which places the anchor's value on the lhs and the table column on
	// the rhs (the row-tuple comparator itself stays ">").
	b := New([]record.SortRule{{Column: record.Title(), Order: record.Ascending}}, record.Ascending)
	anchor := record.Book{ID: 5}
	require.NoError(t, anchor.SetColumn(record.Title(), "B"))

	query, args := b.JoinCols(&anchor, nil)

	assert.Contains(t, query, "WHERE ((?, ?) > (ATABLE.a, BTABLE.b))")
	require.Len(t, args, 2)
	assert.Equal(t, "B", args[0])
	assert.EqualValues(t, int64(5), args[1])
}

func TestJoinColsMixedDirectionsFlipPlacementPerColumn(t *testing.T) {
	// Title Descending cmp-rule (with primary Ascending) gives orderToCmp
	// ">" for Title, but the ID tiebreaker stays Ascending so it gives "<":
	// each column lands on a different side of the tuple comparison.
	b := New([]record.SortRule{{Column: record.Title(), Order: record.Descending}}, record.Ascending)
	anchor := record.Book{ID: 5}
	require.NoError(t, anchor.SetColumn(record.Title(), "B"))

	query, _ := b.JoinCols(&anchor, nil)
	assert.Contains(t, query, "(ATABLE.a, ?) > (?, BTABLE.b)")
}

func TestJoinColsIDInclusiveUsesNonStrictComparator(t *testing.T) {
	b := New(nil, record.Ascending).IDInclusive(true)
	anchor := record.Book{ID: 5}
	query, _ := b.JoinCols(&anchor, nil)
	assert.Contains(t, query, ">=")
}

func TestJoinColsMissingAnchorValueOmitsThatKey(t *testing.T) {
	b := New([]record.SortRule{{Column: record.Title(), Order: record.Ascending}}, record.Ascending)
	anchor := record.Book{ID: 5} // no title set
	query, args := b.JoinCols(&anchor, nil)

	// Only the ID tiebreaker contributes a bound key; title is omitted.
	assert.Contains(t, query, "(?) > (BTABLE.b)")
	require.Len(t, args, 1)
	assert.EqualValues(t, int64(5), args[0])
}

func TestJoinColsNamedTagBindsNameParam(t *testing.T) {
	b := New([]record.SortRule{{Column: record.NamedTag("rating"), Order: record.Ascending}}, record.Ascending)
	query, args := b.JoinCols(nil, nil)

	assert.Contains(t, query, "WHERE name=?")
	require.Len(t, args, 1)
	assert.Equal(t, "rating", args[0])
}

func TestJoinColsLimitBindsLast(t *testing.T) {
	b := New(nil, record.Ascending).Limit(10)
	query, args := b.JoinCols(nil, nil)
	assert.Contains(t, query, "LIMIT ?;")
	require.Len(t, args, 1)
	assert.EqualValues(t, int64(10), args[len(args)-1])
}

func TestJoinColsUnsortableColumnContributesNothing(t *testing.T) {
	b := New([]record.SortRule{{Column: record.Description(), Order: record.Ascending}}, record.Ascending)
	query, _ := b.JoinCols(nil, nil)
	// Only the ID tiebreaker ends up in the FROM clause.
	assert.Contains(t, query, "FROM (SELECT book_id, book_id as a FROM books) as ATABLE")
}

func TestJoinColsMatchRuleAddsWhereClause(t *testing.T) {
	s, err := search.New(search.ExactString, record.Title(), "Dune")
	require.NoError(t, err)
	b := New(nil, record.Ascending)
	query, args := b.JoinCols(nil, []search.Search{s})

	assert.Contains(t, query, "= ?")
	require.Len(t, args, 1)
	assert.Equal(t, "Dune", args[0])
}

func TestBetweenBooksCombinesBothEnds(t *testing.T) {
	b := New([]record.SortRule{{Column: record.Title(), Order: record.Ascending}}, record.Ascending)
	start := record.Book{ID: 1}
	require.NoError(t, start.SetColumn(record.Title(), "A"))
	end := record.Book{ID: 3}
	require.NoError(t, end.SetColumn(record.Title(), "C"))

	query, args := b.BetweenBooks(start, end, nil)
	assert.Contains(t, query, "AND")
	assert.Contains(t, query, "WHERE (")
	require.Len(t, args, 4) // (title,id) anchor pair for each of start and end
}
