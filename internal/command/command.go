// Package command defines the closed set of command types a BookView
// accepts from the outside world (spec.md §6), and a Runner that dispatches
// them serially onto a Store/BookView pair.
//
// Command lexing — turning a typed string or keypress into one of these
// structs — is explicitly out of scope; this package only accepts already
//-constructed command values and executes them. Serialization is enforced
// by routing every command through a single goroutine reading off a
// channel, the same no-global-state, single-binary style as the teacher's
// main.go background loops.
package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/shelfmgr/libshelf/internal/bookcache"
	"github.com/shelfmgr/libshelf/internal/bookview"
	"github.com/shelfmgr/libshelf/internal/record"
	"github.com/shelfmgr/libshelf/internal/search"
	"github.com/shelfmgr/libshelf/internal/selection"
	"github.com/shelfmgr/libshelf/internal/store"
)

// ErrNotImplemented is returned by commands spec.md explicitly leaves
// unspecified rather than guessed at (see spec.md §9, "known-buggy source
// behavior").
var ErrNotImplemented = errors.New("command: not implemented")

// ErrNoOpener is returned by OpenBookIn when the Runner was built without
// an Opener collaborator.
var ErrNoOpener = errors.New("command: no opener configured")

// Command is the marker interface implemented by every command struct.
type Command interface{ isCommand() }

type AddBooks struct{ Sources []record.BookVariant }
type UpdateBooks struct{ Sources []record.BookVariant }
type DeleteSelected struct{}
type DeleteMatching struct{ Searches []search.Search }
type DeleteAll struct{}
type EditBook struct {
	Target int64
	Column record.ColumnIdentifier
	Edit   record.Edit
}
type TryMergeAllBooks struct{}
type Write struct{}
type WriteAndQuit struct{}
type Quit struct{}

// ModifyColumns is reserved for TUI display-column configuration. Rendering
// is a Non-goal (spec.md §1) and the reference source never settled on a
// concrete shape for this command (spec.md §9), so it is accepted but
// always fails with ErrNotImplemented rather than guessed at.
type ModifyColumns struct{ Columns []record.ColumnIdentifier }

type SortColumns struct{ Rules []record.SortRule }
type FilterMatches struct{ Searches []search.Search }
type JumpTo struct{ Searches []search.Search }
type OpenBookIn struct {
	BookID       int64
	VariantIndex int
	Target       string
}

func (AddBooks) isCommand()         {}
func (UpdateBooks) isCommand()      {}
func (DeleteSelected) isCommand()   {}
func (DeleteMatching) isCommand()   {}
func (DeleteAll) isCommand()        {}
func (EditBook) isCommand()         {}
func (TryMergeAllBooks) isCommand() {}
func (Write) isCommand()            {}
func (WriteAndQuit) isCommand()     {}
func (Quit) isCommand()             {}
func (ModifyColumns) isCommand()    {}
func (SortColumns) isCommand()      {}
func (FilterMatches) isCommand()    {}
func (JumpTo) isCommand()           {}
func (OpenBookIn) isCommand()       {}

// Opener delegates OpenBookIn to an external collaborator; the core
// resolves the Book and passes it along unchanged (spec.md §6).
type Opener func(ctx context.Context, book record.Book, variantIndex int, target string) error

// Result is what a dispatched Command produces. MergePairs is populated
// only by TryMergeAllBooks.
type Result struct {
	Err        error
	MergePairs []bookcache.MergePair
}

type job struct {
	ctx   context.Context
	cmd   Command
	reply chan Result
}

// Runner serializes Commands onto a single goroutine driving a Store and
// BookView pair, so concurrent callers (e.g. httpapi handlers) never race
// on paginator or selection state.
type Runner struct {
	store  *store.Store
	view   *bookview.BookView
	opener Opener
	jobs   chan job
	done   chan struct{}
}

// NewRunner starts the Runner's dispatch goroutine.
func NewRunner(st *store.Store, view *bookview.BookView, opener Opener) *Runner {
	r := &Runner{
		store:  st,
		view:   view,
		opener: opener,
		jobs:   make(chan job),
		done:   make(chan struct{}),
	}
	go r.loop()
	return r
}

// Done is closed once a Quit or WriteAndQuit command has been processed.
func (r *Runner) Done() <-chan struct{} { return r.done }

// Submit enqueues cmd and blocks until it has been processed, serially,
// with every other submitted command.
func (r *Runner) Submit(ctx context.Context, cmd Command) Result {
	reply := make(chan Result, 1)
	select {
	case r.jobs <- job{ctx: ctx, cmd: cmd, reply: reply}:
	case <-r.done:
		return Result{Err: errors.New("command: runner stopped")}
	}
	return <-reply
}

func (r *Runner) loop() {
	for j := range r.jobs {
		res := r.dispatch(j.ctx, j.cmd)
		j.reply <- res
		switch j.cmd.(type) {
		case Quit, WriteAndQuit:
			close(r.done)
			return
		}
	}
}

func (r *Runner) dispatch(ctx context.Context, cmd Command) Result {
	switch c := cmd.(type) {
	case AddBooks:
		_, err := r.store.InsertVariants(ctx, c.Sources)
		return r.resultAfterRefresh(ctx, err)
	case UpdateBooks:
		err := r.store.Update(ctx, c.Sources)
		return r.resultAfterRefresh(ctx, err)
	case DeleteSelected:
		top := r.view.Top()
		err := r.store.RemoveSelected(ctx, top.Selected())
		if err == nil {
			top.Deselect()
		}
		return r.resultAfterRefresh(ctx, err)
	case DeleteMatching:
		err := r.store.RemoveSelected(ctx, selection.NewAll(c.Searches))
		return r.resultAfterRefresh(ctx, err)
	case DeleteAll:
		err := r.store.Clear(ctx)
		return r.resultAfterRefresh(ctx, err)
	case EditBook:
		err := r.store.EditBook(ctx, c.Target, c.Column, c.Edit)
		return r.resultAfterRefresh(ctx, err)
	case TryMergeAllBooks:
		pairs, err := r.store.MergeSimilar(ctx)
		res := r.resultAfterRefresh(ctx, err)
		res.MergePairs = pairs
		return res
	case Write:
		// No-op for the relational store: every mutation above is already
		// durable. Present so a caller modeled on "unsaved changes" can
		// still issue it.
		return Result{}
	case WriteAndQuit:
		return Result{}
	case Quit:
		return Result{}
	case ModifyColumns:
		return Result{Err: ErrNotImplemented}
	case SortColumns:
		return Result{Err: r.view.SortByColumns(ctx, c.Rules)}
	case FilterMatches:
		return Result{Err: r.view.PushScope(ctx, c.Searches)}
	case JumpTo:
		return Result{Err: r.view.JumpTo(ctx, c.Searches)}
	case OpenBookIn:
		book, err := r.store.GetBook(ctx, c.BookID)
		if err != nil {
			return Result{Err: err}
		}
		if r.opener == nil {
			return Result{Err: ErrNoOpener}
		}
		return Result{Err: r.opener(ctx, book, c.VariantIndex, c.Target)}
	default:
		return Result{Err: fmt.Errorf("command: unrecognized command %T", cmd)}
	}
}

func (r *Runner) resultAfterRefresh(ctx context.Context, err error) Result {
	if err != nil {
		return Result{Err: err}
	}
	return Result{Err: r.view.Refresh(ctx)}
}
