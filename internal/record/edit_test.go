package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveSequenceInsertAndDelete(t *testing.T) {
	tests := []struct {
		name string
		base string
		log  []Keystroke
		want string
	}{
		{
			name: "insert into middle",
			base: "Hllo",
			log:  []Keystroke{{Op: InsertChar, Ch: 'e', Pos: 1}},
			want: "Hello",
		},
		{
			name: "backspace removes preceding rune",
			base: "Helllo",
			log:  []Keystroke{{Op: Backspace, Pos: 4}},
			want: "Hello",
		},
		{
			name: "delete forward removes rune at pos",
			base: "Hellllo",
			log:  []Keystroke{{Op: DeleteForward, Pos: 4}},
			want: "Helllo",
		},
		{
			name: "out of range positions clamp",
			base: "abc",
			log:  []Keystroke{{Op: InsertChar, Ch: 'z', Pos: 99}},
			want: "abcz",
		},
		{
			name: "backspace at start is a no-op",
			base: "abc",
			log:  []Keystroke{{Op: Backspace, Pos: 0}},
			want: "abc",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved := SequenceEdit(tt.log).Resolve(tt.base)
			assert.Equal(t, EditReplace, resolved.Kind)
			assert.Equal(t, tt.want, resolved.Value)
		})
	}
}

func TestResolveNonSequenceIsUnchanged(t *testing.T) {
	e := ReplaceEdit("x")
	assert.Equal(t, e, e.Resolve("anything"))
}
