package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseColumn(t *testing.T) {
	tests := []struct {
		in   string
		want ColumnIdentifier
	}{
		{"author", Author()},
		{"Authors", Author()},
		{"TITLE", Title()},
		{"series", SeriesCol()},
		{"id", ID()},
		{"variant", Variants()},
		{"variants", Variants()},
		{"description", Description()},
		{"tag", Tags()},
		{"tags", Tags()},
		{"rating", NamedTag("rating")},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseColumn(tt.in))
		})
	}
}

func TestWithIDTiebreakerAppendsWhenAbsent(t *testing.T) {
	rules := []SortRule{{Column: Title(), Order: Ascending}}
	out := WithIDTiebreaker(rules)
	assert.Len(t, out, 2)
	assert.Equal(t, ColID, out[1].Column.Kind())
	assert.Equal(t, Ascending, out[1].Order)
}

func TestWithIDTiebreakerLeavesExistingAlone(t *testing.T) {
	rules := []SortRule{{Column: ID(), Order: Descending}}
	out := WithIDTiebreaker(rules)
	assert.Equal(t, rules, out)
}

func TestColumnString(t *testing.T) {
	assert.Equal(t, "Title", Title().String())
	assert.Equal(t, "rating", NamedTag("rating").String())
	assert.Equal(t, "Tag", ExactTag("sci-fi").String())
}
