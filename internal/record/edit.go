package record

// KeystrokeOp is one primitive text-editing operation recorded while a user
// interactively edits a column value in place.
type KeystrokeOp int

const (
	// InsertChar inserts Ch at Pos (rune index) in the value.
	InsertChar KeystrokeOp = iota
	// Backspace removes the rune immediately before Pos.
	Backspace
	// DeleteForward removes the rune at Pos.
	DeleteForward
)

// Keystroke is a single recorded edit-widget event.
type Keystroke struct {
	Op  KeystrokeOp
	Ch  rune
	Pos int
}

// EditKind distinguishes the three primitive edit operations. Sequence is
// resolved to Replace before it reaches the store (§4.5).
type EditKind int

const (
	EditDelete EditKind = iota
	EditReplace
	EditAppend
	EditSequence
)

// Edit is one column mutation: Delete, Replace(Value), Append(Value), or
// Sequence(Keystrokes) — a keystroke log replayed against the column's
// current value and collapsed to Replace.
type Edit struct {
	Kind       EditKind
	Value      string
	Keystrokes []Keystroke
}

func DeleteEdit() Edit                  { return Edit{Kind: EditDelete} }
func ReplaceEdit(v string) Edit         { return Edit{Kind: EditReplace, Value: v} }
func AppendEdit(v string) Edit          { return Edit{Kind: EditAppend, Value: v} }
func SequenceEdit(log []Keystroke) Edit { return Edit{Kind: EditSequence, Keystrokes: log} }

// Resolve replays a Sequence edit against base and returns the equivalent
// Replace edit. Non-Sequence edits are returned unchanged.
func (e Edit) Resolve(base string) Edit {
	if e.Kind != EditSequence {
		return e
	}
	runes := []rune(base)
	for _, k := range e.Keystrokes {
		switch k.Op {
		case InsertChar:
			pos := clampPos(k.Pos, len(runes))
			runes = append(runes[:pos], append([]rune{k.Ch}, runes[pos:]...)...)
		case Backspace:
			pos := clampPos(k.Pos, len(runes))
			if pos > 0 {
				runes = append(runes[:pos-1], runes[pos:]...)
			}
		case DeleteForward:
			pos := clampPos(k.Pos, len(runes))
			if pos < len(runes) {
				runes = append(runes[:pos], runes[pos+1:]...)
			}
		}
	}
	return ReplaceEdit(string(runes))
}

func clampPos(pos, n int) int {
	if pos < 0 {
		return 0
	}
	if pos > n {
		return n
	}
	return pos
}
