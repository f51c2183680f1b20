// Package paginator implements the Paginator (C6) described in spec.md
// §4.6: a sliding window over a logically ordered, sorted, filtered
// sequence of Books, plus the Selection state machine that tracks which of
// those Books are selected as arrow keys and page commands move the
// window.
//
// Grounded directly on bookworm-database/src/paginator.rs: the window/
// buffer/window_top bookkeeping, the load_books_after_end/before_start
// prefetch shape, and the select_up_on/select_down_on query anchoring all
// follow that file line for line, adapted to Go's explicit-error style and
// to this package's already-extracted Selection type (internal/selection).
//
// One divergence from the original source, taken per the specification:
// Empty+select_up(n) yields a Range with Direction Up (the original always
// produced Direction Down for both select_up_on and select_down_on's Empty
// arms, which does not reflect which end the tip sits on).
package paginator

import (
	"context"
	"log"

	"github.com/dustin/go-humanize"

	"github.com/shelfmgr/libshelf/internal/querybuilder"
	"github.com/shelfmgr/libshelf/internal/record"
	"github.com/shelfmgr/libshelf/internal/search"
	"github.com/shelfmgr/libshelf/internal/selection"
	"github.com/shelfmgr/libshelf/internal/store"
)

// Paginator is a sliding window over the Books matching matchRules, in the
// order defined by cmpRules (always ID-ascending tiebroken).
type Paginator struct {
	store      *store.Store
	cmpRules   []record.SortRule
	matchRules []search.Search
	windowSize int
	books      []record.Book
	windowTop  int
	sel        selection.Selection
}

// New returns a Paginator with an empty window and selection.
func New(st *store.Store, windowSize int, cmpRules []record.SortRule) *Paginator {
	return &Paginator{
		store:      st,
		cmpRules:   record.WithIDTiebreaker(cmpRules),
		windowSize: windowSize,
		sel:        selection.Empty(),
	}
}

// BindMatch sets the match rules restricting this Paginator's sequence.
func (p *Paginator) BindMatch(matchRules []search.Search) *Paginator {
	p.matchRules = matchRules
	return p
}

func (p *Paginator) Selected() selection.Selection  { return p.sel }
func (p *Paginator) Matchers() []search.Search      { return p.matchRules }
func (p *Paginator) SortRules() []record.SortRule   { return p.cmpRules }
func (p *Paginator) WindowSize() int                { return p.windowSize }

// Window returns the currently visible slice of the page buffer.
func (p *Paginator) Window() []record.Book {
	top := p.windowTop
	if top > len(p.books) {
		top = len(p.books)
	}
	end := top + p.windowSize
	if end > len(p.books) {
		end = len(p.books)
	}
	return p.books[top:end]
}

func (p *Paginator) windowContains(id int64) bool {
	for _, b := range p.Window() {
		if b.ID == id {
			return true
		}
	}
	return false
}

// fetchBooks runs a query builder query against the store and resolves the
// resulting ids to Books, preferring the cache.
func (p *Paginator) fetchBooks(ctx context.Context, query string, args []any) ([]record.Book, error) {
	ids, err := p.store.QueryIDs(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return p.store.GetBooks(ctx, ids)
}

// prefetch spawns a detached background query for limit*5 books past the
// same anchor as the just-satisfied load, per the prefetch policy in
// spec.md §4.6. The spawned query's results are discarded; it exists only
// to warm the store's cache for the scrolls that are likely to follow.
func (p *Paginator) prefetch(base querybuilder.Builder, anchor *record.Book, limit int) {
	if limit <= 0 {
		return
	}
	prefetchN := int64(limit) * 5
	query, args := base.Limit(prefetchN).JoinCols(anchor, p.matchRules)
	log.Printf("paginator: prefetching %s books past anchor", humanize.Comma(prefetchN))
	go func() {
		_, _ = p.fetchBooks(context.Background(), query, args)
	}()
}

func reverseBooks(books []record.Book) {
	for i, j := 0, len(books)-1; i < j; i, j = i+1, j-1 {
		books[i], books[j] = books[j], books[i]
	}
}

// loadBooksAfterEnd appends up to n books immediately following the
// buffer's last book (or the start of the sequence, if the buffer is
// empty) to the end of the buffer.
func (p *Paginator) loadBooksAfterEnd(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	var anchor *record.Book
	if len(p.books) > 0 {
		last := p.books[len(p.books)-1]
		anchor = &last
	}
	base := querybuilder.New(p.cmpRules, record.Descending).Sort(true)
	query, args := base.Limit(int64(n)).JoinCols(anchor, p.matchRules)
	books, err := p.fetchBooks(ctx, query, args)
	if err != nil {
		return err
	}
	p.prefetch(base, anchor, n)
	p.books = append(p.books, books...)
	return nil
}

// loadBooksBeforeStart prepends up to n books immediately preceding the
// buffer's first book to the start of the buffer.
func (p *Paginator) loadBooksBeforeStart(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	var anchor *record.Book
	if len(p.books) > 0 {
		first := p.books[0]
		anchor = &first
	}
	base := querybuilder.New(p.cmpRules, record.Ascending).Sort(true)
	query, args := base.Limit(int64(n)).JoinCols(anchor, p.matchRules)
	books, err := p.fetchBooks(ctx, query, args)
	if err != nil {
		return err
	}
	p.prefetch(base, anchor, n)
	if len(books) == 0 {
		return nil
	}
	reverseBooks(books)
	p.books = append(books, p.books...)
	return nil
}

// makeBookVisible fetches a window anchored at book (id-inclusive) unless
// book is already within the current window, in which case it is a no-op.
// A nil book anchors at the start of the sequence.
func (p *Paginator) makeBookVisible(ctx context.Context, book *record.Book) error {
	if book != nil && p.windowContains(book.ID) {
		return nil
	}
	base := querybuilder.New(p.cmpRules, record.Descending).Sort(true).Limit(int64(p.windowSize)).IDInclusive(true)
	var query string
	var args []any
	if book == nil {
		query, args = base.JoinCols(nil, p.matchRules)
	} else {
		anchor := book
		if fresh, err := p.store.GetBook(ctx, book.ID); err == nil {
			anchor = &fresh
		}
		query, args = base.JoinCols(anchor, p.matchRules)
	}
	books, err := p.fetchBooks(ctx, query, args)
	if err != nil {
		return err
	}
	p.books = books
	p.windowTop = 0
	if remain := p.windowSize - len(p.books); remain > 0 {
		return p.loadBooksBeforeStart(ctx, remain)
	}
	return nil
}

// MakeBookVisible is the exported entry point for makeBookVisible.
func (p *Paginator) MakeBookVisible(ctx context.Context, book *record.Book) error {
	return p.makeBookVisible(ctx, book)
}

func (p *Paginator) selectAndMakeVisible(ctx context.Context, target record.Book) error {
	if err := p.makeBookVisible(ctx, &target); err != nil {
		return err
	}
	p.sel = selection.NewRange(target, target, p.cmpRules, selection.Down, p.matchRules)
	return nil
}

// ScrollDown moves the window down n positions in the logical order,
// loading more books from the store if the buffer runs out.
func (p *Paginator) ScrollDown(ctx context.Context, n int) error {
	total := p.windowTop + p.windowSize + n
	if total <= len(p.books) {
		p.windowTop += n
		return nil
	}
	if err := p.loadBooksAfterEnd(ctx, total-len(p.books)); err != nil {
		return err
	}
	if len(p.books) <= p.windowSize {
		if err := p.loadBooksBeforeStart(ctx, p.windowSize-len(p.books)); err != nil {
			return err
		}
		p.windowTop = 0
	} else {
		p.windowTop = len(p.books) - p.windowSize
	}
	return nil
}

// ScrollUp moves the window up n positions in the logical order.
func (p *Paginator) ScrollUp(ctx context.Context, n int) error {
	if p.windowTop >= n {
		p.windowTop -= n
	} else {
		if err := p.loadBooksBeforeStart(ctx, n-p.windowTop); err != nil {
			return err
		}
		p.windowTop = 0
	}
	if remain := p.windowTop + p.windowSize - len(p.books); remain > 0 {
		if err := p.loadBooksAfterEnd(ctx, remain); err != nil {
			return err
		}
		top := len(p.books) - p.windowSize
		if top < 0 {
			top = 0
		}
		if top < p.windowTop {
			p.windowTop = top
		}
	}
	return nil
}

// ScrollUpMoveSelect advances a single-book selection n positions up,
// scrolling the window as needed; collapses a multi-book selection to its
// first book and makes that visible; scrolls plainly with no selection.
func (p *Paginator) ScrollUpMoveSelect(ctx context.Context, n int) error {
	if target, ok := p.sel.First(); ok {
		if !p.sel.IsSingle() {
			return p.selectAndMakeVisible(ctx, target)
		}
		base := querybuilder.New(p.cmpRules, record.Ascending).Sort(true).Limit(int64(n))
		query, args := base.JoinCols(&target, p.matchRules)
		books, err := p.fetchBooks(ctx, query, args)
		if err != nil {
			return err
		}
		book := target
		if len(books) > 0 {
			book = books[len(books)-1]
		}
		if !p.windowContains(book.ID) {
			if err := p.ScrollUp(ctx, n); err != nil {
				return err
			}
		}
		p.sel = selection.NewRange(book, book, p.cmpRules, selection.Down, p.matchRules)
		return nil
	}
	if p.sel.Kind() == selection.KindAll {
		return p.Home(ctx)
	}
	return p.ScrollUp(ctx, n)
}

// ScrollDownMoveSelect is the mirror of ScrollUpMoveSelect.
func (p *Paginator) ScrollDownMoveSelect(ctx context.Context, n int) error {
	if target, ok := p.sel.Last(); ok {
		if !p.sel.IsSingle() {
			return p.selectAndMakeVisible(ctx, target)
		}
		base := querybuilder.New(p.cmpRules, record.Descending).Sort(true).Limit(int64(n))
		query, args := base.JoinCols(&target, p.matchRules)
		books, err := p.fetchBooks(ctx, query, args)
		if err != nil {
			return err
		}
		book := target
		if len(books) > 0 {
			book = books[len(books)-1]
		}
		if !p.windowContains(book.ID) {
			if err := p.ScrollDown(ctx, n); err != nil {
				return err
			}
		}
		p.sel = selection.NewRange(book, book, p.cmpRules, selection.Down, p.matchRules)
		return nil
	}
	if p.sel.Kind() == selection.KindAll {
		return p.End(ctx)
	}
	return p.ScrollDown(ctx, n)
}

// Home resets the window to the start of the sequence. A multi-book
// selection is left untouched except for bringing its first book visible.
func (p *Paginator) Home(ctx context.Context) error {
	target, ok := p.sel.First()
	single := p.sel.IsSingle()
	if !ok || single {
		p.windowTop = 0
		p.books = nil
		if err := p.ScrollDown(ctx, 0); err != nil {
			return err
		}
		if single || p.sel.Kind() == selection.KindAll {
			if w := p.Window(); len(w) > 0 {
				t := w[0]
				p.sel = selection.NewRange(t, t, p.cmpRules, selection.Down, p.matchRules)
			}
		}
		return nil
	}
	return p.makeBookVisible(ctx, &target)
}

// End resets the window to the end of the sequence.
func (p *Paginator) End(ctx context.Context) error {
	target, ok := p.sel.Last()
	single := p.sel.IsSingle()
	if !ok || single {
		p.windowTop = 0
		base := querybuilder.New(p.cmpRules, record.Ascending).Sort(true).Limit(int64(p.windowSize))
		query, args := base.JoinCols(nil, p.matchRules)
		books, err := p.fetchBooks(ctx, query, args)
		if err != nil {
			return err
		}
		reverseBooks(books)
		p.books = books
		if single || p.sel.Kind() == selection.KindAll {
			if w := p.Window(); len(w) > 0 {
				t := w[len(w)-1]
				p.sel = selection.NewRange(t, t, p.cmpRules, selection.Down, p.matchRules)
			}
		}
		return nil
	}
	return p.selectAndMakeVisible(ctx, target)
}

// UpdateWindowSize changes the window size and refills the buffer.
func (p *Paginator) UpdateWindowSize(ctx context.Context, n int) error {
	p.windowSize = n
	return p.ScrollDown(ctx, 0)
}

// Refresh re-anchors on the first currently-selected visible book (else
// the window's first book), re-fetches that window, and reloads Range
// endpoints or Partial members in case their columns changed underneath.
// Idempotent: calling it twice with no intervening mutation is a no-op.
func (p *Paginator) Refresh(ctx context.Context) error {
	var target *record.Book
	for _, b := range p.Window() {
		if p.sel.Contains(b) {
			t := b
			target = &t
			break
		}
	}
	if target == nil {
		if w := p.Window(); len(w) > 0 {
			t := w[0]
			target = &t
		}
	}
	p.books = nil
	if err := p.makeBookVisible(ctx, target); err != nil {
		return err
	}

	switch p.sel.Kind() {
	case selection.KindPartial:
		members, _ := p.sel.PartialBooks()
		ids := make([]int64, 0, len(members))
		for id := range members {
			ids = append(ids, id)
		}
		fresh, err := p.store.GetBooks(ctx, ids)
		if err != nil {
			return err
		}
		updated := make(map[int64]record.Book, len(fresh))
		for _, b := range fresh {
			updated[b.ID] = b
		}
		p.sel = selection.NewPartial(updated, p.sel.CmpRules())
	case selection.KindRange:
		start, end, _ := p.sel.RangeBounds()
		if fresh, err := p.store.GetBook(ctx, start.ID); err == nil {
			start = fresh
		}
		if fresh, err := p.store.GetBook(ctx, end.ID); err == nil {
			end = fresh
		}
		p.sel = selection.NewRange(start, end, p.sel.CmpRules(), p.sel.Direction(), p.sel.MatchRules())
	}
	return nil
}

// SortBy replaces the cmp rules, clears the buffer, and re-anchors on the
// previous window's first book.
func (p *Paginator) SortBy(ctx context.Context, rules []record.SortRule) error {
	p.cmpRules = record.WithIDTiebreaker(rules)
	var target *record.Book
	if w := p.Window(); len(w) > 0 {
		t := w[0]
		target = &t
	}
	p.books = nil
	return p.makeBookVisible(ctx, target)
}

// Deselect clears the current selection.
func (p *Paginator) Deselect() { p.sel = p.sel.Clear() }

// SelectAll replaces the selection with All(current match rules).
func (p *Paginator) SelectAll() { p.sel = selection.NewAll(p.matchRules) }

// SelectUp grows, shrinks, or flips the selection per the arithmetic table
// in spec.md §4.6.
func (p *Paginator) SelectUp(ctx context.Context, n int) error {
	switch p.sel.Kind() {
	case selection.KindAll:
		return p.ScrollUp(ctx, n)
	case selection.KindPartial:
		return nil
	case selection.KindRange:
		start, end, _ := p.sel.RangeBounds()
		anchor := start
		if p.sel.Direction() == selection.Down {
			anchor = end
		}
		base := querybuilder.New(p.cmpRules, record.Ascending).Sort(true).Limit(int64(n))
		query, args := base.JoinCols(&anchor, p.matchRules)
		books, err := p.fetchBooks(ctx, query, args)
		if err != nil {
			return err
		}
		if len(books) == 0 {
			return nil
		}
		movedTip := books[len(books)-1]
		if !p.windowContains(movedTip.ID) {
			if err := p.ScrollUp(ctx, n); err != nil {
				return err
			}
		}
		p.sel = selection.GrowUp(p.sel, record.Book{}, movedTip, p.cmpRules, p.matchRules)
		return nil
	default:
		var anchor *record.Book
		if w := p.Window(); len(w) > 0 {
			t := w[len(w)-1]
			anchor = &t
		}
		base := querybuilder.New(p.cmpRules, record.Ascending).Sort(true).Limit(int64(n)).IDInclusive(true)
		query, args := base.JoinCols(anchor, p.matchRules)
		books, err := p.fetchBooks(ctx, query, args)
		if err != nil {
			return err
		}
		if len(books) == 0 {
			return nil
		}
		movedTip := books[len(books)-1]
		windowLast := movedTip
		if w := p.Window(); len(w) > 0 {
			windowLast = w[len(w)-1]
		}
		if !p.windowContains(movedTip.ID) {
			if err := p.ScrollUp(ctx, n); err != nil {
				return err
			}
		}
		p.sel = selection.GrowUp(selection.Empty(), windowLast, movedTip, p.cmpRules, p.matchRules)
		return nil
	}
}

// SelectDown is the mirror of SelectUp.
func (p *Paginator) SelectDown(ctx context.Context, n int) error {
	switch p.sel.Kind() {
	case selection.KindAll:
		return p.ScrollDown(ctx, n)
	case selection.KindPartial:
		return nil
	case selection.KindRange:
		start, end, _ := p.sel.RangeBounds()
		anchor := end
		if p.sel.Direction() == selection.Up {
			anchor = start
		}
		base := querybuilder.New(p.cmpRules, record.Descending).Sort(true).Limit(int64(n))
		query, args := base.JoinCols(&anchor, p.matchRules)
		books, err := p.fetchBooks(ctx, query, args)
		if err != nil {
			return err
		}
		if len(books) == 0 {
			return nil
		}
		movedTip := books[len(books)-1]
		if !p.windowContains(movedTip.ID) {
			if err := p.ScrollDown(ctx, n); err != nil {
				return err
			}
		}
		p.sel = selection.GrowDown(p.sel, record.Book{}, movedTip, p.cmpRules, p.matchRules)
		return nil
	default:
		var anchor *record.Book
		if w := p.Window(); len(w) > 0 {
			t := w[0]
			anchor = &t
		}
		base := querybuilder.New(p.cmpRules, record.Descending).Sort(true).Limit(int64(n)).IDInclusive(true)
		query, args := base.JoinCols(anchor, p.matchRules)
		books, err := p.fetchBooks(ctx, query, args)
		if err != nil {
			return err
		}
		if len(books) == 0 {
			return nil
		}
		movedTip := books[len(books)-1]
		windowFirst := movedTip
		if w := p.Window(); len(w) > 0 {
			windowFirst = w[0]
		}
		if !p.windowContains(movedTip.ID) {
			if err := p.ScrollDown(ctx, n); err != nil {
				return err
			}
		}
		p.sel = selection.GrowDown(selection.Empty(), windowFirst, movedTip, p.cmpRules, p.matchRules)
		return nil
	}
}

func (p *Paginator) SelectPageUp(ctx context.Context) error   { return p.SelectUp(ctx, p.windowSize) }
func (p *Paginator) SelectPageDown(ctx context.Context) error { return p.SelectDown(ctx, p.windowSize) }

// SelectToStart grows the selection from its current last book up to the
// start of the sequence.
func (p *Paginator) SelectToStart(ctx context.Context) error {
	last, ok := p.sel.Last()
	if !ok {
		return nil
	}
	p.sel = selection.Empty()
	if err := p.Home(ctx); err != nil {
		return err
	}
	start := last
	if w := p.Window(); len(w) > 0 {
		start = w[0]
	}
	p.sel = selection.NewRange(start, last, p.cmpRules, selection.Up, p.matchRules)
	return nil
}

// SelectToEnd grows the selection from its current first book down to the
// end of the sequence.
func (p *Paginator) SelectToEnd(ctx context.Context) error {
	first, ok := p.sel.First()
	if !ok {
		return nil
	}
	p.sel = selection.Empty()
	if err := p.End(ctx); err != nil {
		return err
	}
	end := first
	if w := p.Window(); len(w) > 0 {
		end = w[len(w)-1]
	}
	p.sel = selection.NewRange(first, end, p.cmpRules, selection.Down, p.matchRules)
	return nil
}

func (p *Paginator) PageUp(ctx context.Context) error   { return p.ScrollUpMoveSelect(ctx, p.windowSize) }
func (p *Paginator) PageDown(ctx context.Context) error { return p.ScrollDownMoveSelect(ctx, p.windowSize) }
func (p *Paginator) Up(ctx context.Context) error       { return p.ScrollUpMoveSelect(ctx, 1) }
func (p *Paginator) Down(ctx context.Context) error     { return p.ScrollDownMoveSelect(ctx, 1) }

// RelativeRow pairs a Book with its index within the current window, for
// rendering selection highlights.
type RelativeRow struct {
	Index int
	Book  record.Book
}

// RelativeSelections returns the selected books in the current window,
// each tagged with its row offset.
func (p *Paginator) RelativeSelections() []RelativeRow {
	var out []RelativeRow
	for i, b := range p.Window() {
		if p.sel.Contains(b) {
			out = append(out, RelativeRow{Index: i, Book: b})
		}
	}
	return out
}
