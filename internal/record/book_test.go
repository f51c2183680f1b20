package record

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetColumn(t *testing.T) {
	tests := []struct {
		name    string
		column  ColumnIdentifier
		value   string
		wantErr error
		want    string
	}{
		{"title", Title(), "hello", nil, "hello"},
		{"author", Author(), "world", nil, "world"},
		{"id is immutable", ID(), "5", ErrImmutableColumn, "1"},
		{"series without index", SeriesCol(), "hello world", nil, "hello world"},
		{"series with index", SeriesCol(), "hello world [1.2]", nil, "hello world [1.2]"},
		{"unrecognized becomes named tag", NamedTag("random_tag"), "random value", nil, "random value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Book{ID: 1}
			err := b.SetColumn(tt.column, tt.value)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			got, ok := b.GetColumn(tt.column)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeleteColumnImmutable(t *testing.T) {
	b := Book{ID: 1}
	assert.True(t, errors.Is(b.DeleteColumn(ID()), ErrImmutableColumn))
	assert.True(t, errors.Is(b.DeleteColumn(Variants()), ErrImmutableColumn))
}

func TestExtendColumnSeriesInextensible(t *testing.T) {
	b := Book{ID: 1}
	err := b.ExtendColumn(SeriesCol(), "x")
	assert.ErrorIs(t, err, ErrInextensibleColumn)
}

func TestExtendColumnAppendsToExisting(t *testing.T) {
	b := Book{ID: 1}
	require.NoError(t, b.SetColumn(Title(), "Foo"))
	require.NoError(t, b.ExtendColumn(Title(), "Bar"))
	got, ok := b.GetColumn(Title())
	require.True(t, ok)
	assert.Equal(t, "FooBar", got)
}

func TestCmpColumnID(t *testing.T) {
	a := Book{ID: 1}
	b := Book{ID: 2}
	assert.Equal(t, -1, a.CmpColumn(b, ID()))
	assert.Equal(t, 1, b.CmpColumn(a, ID()))
	assert.Equal(t, 0, a.CmpColumn(a, ID()))
}

func TestCmpColumnSeriesMissingSortsFirst(t *testing.T) {
	withSeries := Book{ID: 1}
	s := ParseSeries("Foo [1]")
	withSeries.Series = &s
	noSeries := Book{ID: 2}

	assert.Equal(t, -1, noSeries.CmpColumn(withSeries, SeriesCol()))
	assert.Equal(t, 1, withSeries.CmpColumn(noSeries, SeriesCol()))
}

func TestCmpColumnAuthorElementwise(t *testing.T) {
	a := Book{ID: 1, Authors: []string{"Abbott"}}
	b := Book{ID: 2, Authors: []string{"Abbott", "Zephyr"}}
	noAuthors := Book{ID: 3}

	// a is a prefix of b, so a sorts first.
	assert.Equal(t, -1, a.CmpColumn(b, Author()))
	assert.Equal(t, -1, noAuthors.CmpColumn(a, Author()))
}

func TestCmpColumnsReversesForDescending(t *testing.T) {
	a := Book{ID: 1}
	b := Book{ID: 2}
	rules := []SortRule{{Column: ID(), Order: Descending}}
	assert.Equal(t, 1, a.CmpColumns(b, rules))
	assert.Equal(t, -1, b.CmpColumns(a, rules))
}

func TestPushVariantBackfillsFromFirstVariant(t *testing.T) {
	b := Book{ID: 1}
	b.PushVariant(BookVariant{
		LocalTitle:        "Title One",
		AdditionalAuthors: []string{"Author One"},
		Description:       "Desc",
	})

	title, ok := b.GetColumn(Title())
	require.True(t, ok)
	assert.Equal(t, "Title One", title)
	require.Len(t, b.Variants, 1)
	assert.Empty(t, b.Variants[0].LocalTitle, "variant's own title field is cleared once lifted to the book")
}

func TestPushVariantDoesNotOverwriteExisting(t *testing.T) {
	b := Book{ID: 1}
	require.NoError(t, b.SetColumn(Title(), "Existing"))
	b.PushVariant(BookVariant{LocalTitle: "From Variant"})

	title, _ := b.GetColumn(Title())
	assert.Equal(t, "Existing", title)
}

func TestFromVariant(t *testing.T) {
	b := FromVariant(7, BookVariant{
		LocalTitle:        "A Title",
		AdditionalAuthors: []string{"A Author"},
		ID:                42,
	})

	assert.EqualValues(t, 7, b.ID)
	title, ok := b.GetColumn(Title())
	require.True(t, ok)
	assert.Equal(t, "A Title", title)
	require.Len(t, b.Variants, 1)
	assert.Zero(t, b.Variants[0].ID, "the lifted variant's own id is cleared")
}

func TestMergeMutFillsMissingAndExtendsVariants(t *testing.T) {
	a := Book{ID: 1}
	a.PushVariant(BookVariant{LocalTitle: "Kept"})
	other := Book{ID: 2}
	other.PushVariant(BookVariant{LocalTitle: "Ignored because a already has a title"})

	a.MergeMut(other)

	title, _ := a.GetColumn(Title())
	assert.Equal(t, "Kept", title)
	assert.Len(t, a.Variants, 2)
}

func TestPlaceholder(t *testing.T) {
	p := Placeholder()
	assert.True(t, p.IsPlaceholder())
	assert.Panics(t, func() { p.MustID() })
}

func TestEditColumnSequenceResolvesBeforeApplying(t *testing.T) {
	b := Book{ID: 1}
	require.NoError(t, b.SetColumn(Title(), "Hllo"))
	edit := SequenceEdit([]Keystroke{{Op: InsertChar, Ch: 'e', Pos: 1}})
	require.NoError(t, b.EditColumn(Title(), edit))

	title, _ := b.GetColumn(Title())
	assert.Equal(t, "Hello", title)
}
