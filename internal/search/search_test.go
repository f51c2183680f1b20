package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfmgr/libshelf/internal/record"
)

func titledBook(title string) record.Book {
	b := record.Book{ID: 1}
	_ = b.SetColumn(record.Title(), title)
	return b
}

func TestNewRegexBadPattern(t *testing.T) {
	_, err := New(Regex, record.Title(), "(unterminated")
	assert.ErrorIs(t, err, ErrBadRegex)
}

func TestIsMatchModes(t *testing.T) {
	book := titledBook("The Hobbit")

	tests := []struct {
		name  string
		mode  Mode
		query string
		want  bool
	}{
		{"regex matches case-insensitively", Regex, "hobbit$", true},
		{"regex no match", Regex, "^Dune$", false},
		{"exact substring case sensitive hit", ExactSubstring, "Hobbit", true},
		{"exact substring case sensitive miss", ExactSubstring, "hobbit", false},
		{"exact string full match", ExactString, "The Hobbit", true},
		{"exact string partial is not a match", ExactString, "Hobbit", false},
		{"default fuzzy loose match", Default, "Hobit", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.mode, record.Title(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.IsMatch(book))
		})
	}
}

func TestIsMatchMissingColumnIsEmptyString(t *testing.T) {
	book := record.Book{ID: 1}
	s, err := New(ExactString, record.Title(), "")
	require.NoError(t, err)
	assert.True(t, s.IsMatch(book))
}

func TestSQLFragmentOnlyForSQLExpressibleModes(t *testing.T) {
	substr, _ := New(ExactSubstring, record.Title(), "100%")
	frag, ok := substr.SQLFragment()
	require.True(t, ok)
	assert.Equal(t, "LIKE ? ESCAPE '\\'", frag.Predicate)
	assert.Equal(t, "%100\\%%", frag.Value)

	exact, _ := New(ExactString, record.Title(), "Dune")
	frag, ok = exact.SQLFragment()
	require.True(t, ok)
	assert.Equal(t, "= ?", frag.Predicate)
	assert.Equal(t, "Dune", frag.Value)

	re, _ := New(Regex, record.Title(), ".*")
	_, ok = re.SQLFragment()
	assert.False(t, ok)

	def, _ := New(Default, record.Title(), "x")
	_, ok = def.SQLFragment()
	assert.False(t, ok)
}

func TestAllMatch(t *testing.T) {
	book := titledBook("Dune")
	s1, _ := New(ExactSubstring, record.Title(), "Du")
	s2, _ := New(ExactString, record.Title(), "Dune")
	assert.True(t, AllMatch([]Search{s1, s2}, book))

	s3, _ := New(ExactString, record.Title(), "Nope")
	assert.False(t, AllMatch([]Search{s1, s3}, book))

	assert.True(t, AllMatch(nil, book))
}
