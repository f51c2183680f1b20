// Package bookview implements BookView (C7) from spec.md §4.7: a stack of
// Paginators forming nested filter scopes. The root Paginator holds the
// library's full (match-rule-less) order; push_scope layers a narrower set
// of match rules on top without losing the ability to pop back out to the
// wider view, mirroring a "search within results" UI flow.
//
// Grounded on bookworm-database/src/paginator.rs's own notion of a Paginator
// stack (the struct comment there calls it "a view with drill-down scopes")
// and on the teacher's catalog-refresh broadcast pattern
// (internal/catalog/catalog.go's Refresher interface) for how a data change
// fans out to every interested observer.
package bookview

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/shelfmgr/libshelf/internal/paginator"
	"github.com/shelfmgr/libshelf/internal/querybuilder"
	"github.com/shelfmgr/libshelf/internal/record"
	"github.com/shelfmgr/libshelf/internal/search"
	"github.com/shelfmgr/libshelf/internal/store"
)

// ErrNoScopeToPop is returned by PopScope when only the root Paginator
// remains.
var ErrNoScopeToPop = errors.New("bookview: no scope to pop")

// BookView is a root Paginator plus a stack of narrowing scopes. The stack
// always has at least one entry (the root); stack[0] is the root and
// stack[len-1] is the active (top) scope.
type BookView struct {
	id    uuid.UUID
	store *store.Store
	stack []*paginator.Paginator
}

// New returns a BookView with a single root Paginator over the whole
// library, sorted by cmpRules with the given window size. Each BookView
// mints its own opaque session id, so an HTTP client (internal/command/
// httpapi) can reference a long-lived view across requests.
func New(st *store.Store, windowSize int, cmpRules []record.SortRule) *BookView {
	root := paginator.New(st, windowSize, cmpRules)
	return &BookView{id: uuid.New(), store: st, stack: []*paginator.Paginator{root}}
}

// ID returns this BookView's session id.
func (v *BookView) ID() uuid.UUID { return v.id }

// Top returns the active (innermost) Paginator.
func (v *BookView) Top() *paginator.Paginator { return v.stack[len(v.stack)-1] }

// Depth reports how many scopes are on the stack, including the root.
func (v *BookView) Depth() int { return len(v.stack) }

// PushScope pushes a new Paginator restricted to searches, inheriting the
// current top's window size and sort rules, and fills its window.
func (v *BookView) PushScope(ctx context.Context, searches []search.Search) error {
	top := v.Top()
	scope := paginator.New(v.store, top.WindowSize(), top.SortRules()).BindMatch(searches)
	if err := scope.ScrollDown(ctx, 0); err != nil {
		return err
	}
	v.stack = append(v.stack, scope)
	return nil
}

// PopScope discards the active scope, returning to the one beneath it.
// Returns ErrNoScopeToPop if only the root remains.
func (v *BookView) PopScope() error {
	if len(v.stack) <= 1 {
		return ErrNoScopeToPop
	}
	v.stack = v.stack[:len(v.stack)-1]
	return nil
}

// SortByColumns replaces the sort rules on every Paginator in the stack, so
// that popping back out of a scope still sees a consistent order.
func (v *BookView) SortByColumns(ctx context.Context, rules []record.SortRule) error {
	for _, p := range v.stack {
		if err := p.SortBy(ctx, rules); err != nil {
			return err
		}
	}
	return nil
}

// Refresh broadcasts Refresh to every Paginator in the stack, sequentially
// from the top (innermost scope) down to the root, per spec.md §4.7's
// ordering guarantee. A reader may observe a lower scope still holding
// pre-refresh rows while an inner scope has already refreshed; this is
// tolerated.
func (v *BookView) Refresh(ctx context.Context) error {
	for i := len(v.stack) - 1; i >= 0; i-- {
		if err := v.stack[i].Refresh(ctx); err != nil {
			return err
		}
	}
	return nil
}

// JumpTo repositions the top Paginator's window on the first book matching
// searches (combined with the top Paginator's own match rules), via an
// ephemeral single-book query followed by MakeBookVisible. It does not
// change the top Paginator's own match rules or selection.
func (v *BookView) JumpTo(ctx context.Context, searches []search.Search) error {
	top := v.Top()
	combined := append(append([]search.Search{}, top.Matchers()...), searches...)

	query, args := querybuilder.New(top.SortRules(), record.Descending).
		Sort(true).Limit(1).JoinCols(nil, combined)
	ids, err := v.store.QueryIDs(ctx, query, args...)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	target, err := v.store.GetBook(ctx, ids[0])
	if err != nil {
		return err
	}
	return top.MakeBookVisible(ctx, &target)
}
