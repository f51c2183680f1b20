package bookcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfmgr/libshelf/internal/record"
	"github.com/shelfmgr/libshelf/internal/search"
)

func book(id int64, title, author string) record.Book {
	b := record.Book{ID: id}
	_ = b.SetColumn(record.Title(), title)
	if author != "" {
		_ = b.SetColumn(record.Author(), author)
	}
	return b
}

func TestInsertAndGetBook(t *testing.T) {
	c := New()
	c.InsertBook(book(1, "A", "Author"))

	got, ok := c.GetBook(1)
	require.True(t, ok)
	title, _ := got.GetColumn(record.Title())
	assert.Equal(t, "A", title)

	_, ok = c.GetBook(2)
	assert.False(t, ok)
}

func TestInsertBookOverwritesById(t *testing.T) {
	c := New()
	c.InsertBook(book(1, "Old", ""))
	c.InsertBook(book(1, "New", ""))

	got, _ := c.GetBook(1)
	title, _ := got.GetColumn(record.Title())
	assert.Equal(t, "New", title)
	assert.Len(t, c.GetAll(), 1)
}

func TestGetBooksPreservesFoundOnly(t *testing.T) {
	c := New()
	c.InsertBook(book(1, "A", ""))
	c.InsertBook(book(2, "B", ""))

	got := c.GetBooks([]int64{2, 99, 1})
	require.Len(t, got, 2)
}

func TestRemoveBooks(t *testing.T) {
	c := New()
	c.InsertBook(book(1, "A", ""))
	c.InsertBook(book(2, "B", ""))
	c.RemoveBooks([]int64{1})

	_, ok := c.GetBook(1)
	assert.False(t, ok)
	assert.Len(t, c.GetAll(), 1)
}

func TestClear(t *testing.T) {
	c := New()
	c.InsertBook(book(1, "A", ""))
	c.Clear()
	assert.Empty(t, c.GetAll())
}

func TestHasColumnCaseInsensitive(t *testing.T) {
	c := New()
	c.InsertColumns("Rating")
	assert.True(t, c.HasColumn("rating"))
	assert.True(t, c.HasColumn("RATING"))
	assert.False(t, c.HasColumn("other"))
}

func TestMergeSimilarBooksGroupsByTitleAndAuthor(t *testing.T) {
	c := New()
	c.InsertBook(book(3, "Dune", "Frank Herbert"))
	c.InsertBook(book(1, "dune", "frank herbert"))
	c.InsertBook(book(2, "Different", "Someone Else"))

	pairs := c.MergeSimilarBooks()
	require.Len(t, pairs, 1)
	assert.Equal(t, MergePair{Keeper: 1, Loser: 3}, pairs[0])
}

func TestMergeSimilarBooksNoDuplicatesIsEmpty(t *testing.T) {
	c := New()
	c.InsertBook(book(1, "A", "X"))
	c.InsertBook(book(2, "B", "Y"))
	assert.Empty(t, c.MergeSimilarBooks())
}

func TestFindMatches(t *testing.T) {
	c := New()
	c.InsertBook(book(1, "Dune", ""))
	c.InsertBook(book(2, "Foundation", ""))

	s, err := search.New(search.ExactSubstring, record.Title(), "Dun")
	require.NoError(t, err)

	matches := c.FindMatches([]search.Search{s})
	require.Len(t, matches, 1)
	title, _ := matches[0].GetColumn(record.Title())
	assert.Equal(t, "Dune", title)
}
