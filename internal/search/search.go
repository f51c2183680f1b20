// Package search implements the match/search predicates described in
// spec.md §4.2: regex, exact-substring, exact-string, and fuzzy modes that
// can each test a Book directly, or (where the mode is SQL-expressible)
// contribute a bound WHERE fragment to the query builder.
package search

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/shelfmgr/libshelf/internal/record"
)

// ErrBadRegex is returned when a Regex search's pattern fails to compile.
var ErrBadRegex = errors.New("search: invalid regular expression")

// ErrInvalidPattern is returned for search modes the combination of
// mode/column rejects as untestable (reserved for future validation; no
// mode currently rejects a query string outright).
var ErrInvalidPattern = errors.New("search: invalid pattern for this mode")

// Mode identifies a search strategy.
type Mode int

const (
	// Regex matches the column's rendered value against a regular
	// expression. Not SQL-expressible: modernc.org/sqlite has no built-in
	// REGEXP operator, and the original source's own REGEXP clause was
	// commented out and never wired (bookstore-database/sqlite_database.rs).
	// It is matched only in memory, by IsMatch and Cache.FindMatches; the
	// query builder skips Regex rules, so paginated scopes and store
	// selections are not narrowed by them.
	Regex Mode = iota
	// ExactSubstring matches if the query is a case-sensitive substring of
	// the rendered column value. SQL-expressible as a bound LIKE clause.
	ExactSubstring
	// ExactString matches if the rendered column value equals the query
	// exactly. SQL-expressible as a bound equality clause.
	ExactString
	// Default performs case-insensitive fuzzy matching (github.com/sahilm/
	// fuzzy). Not SQL-expressible; matched in memory only and skipped by the
	// query builder, same as Regex.
	Default
)

// Fragment is one bound WHERE clause contributed by a Search, ready for the
// query builder to join against an already-aliased column sub-select.
// Predicate must contain exactly one "?" placeholder, which Value binds.
type Fragment struct {
	Column    record.ColumnIdentifier
	Predicate string // e.g. "LIKE ?", "= ?" — applied as "<alias> <Predicate>"
	Value     string
}

// Search is one search-mode/column/query triple, e.g. "books whose Title
// contains 'dune'".
type Search struct {
	mode    Mode
	column  record.ColumnIdentifier
	query   string
	pattern *regexp.Regexp // set only for Regex
}

// New constructs a Search, compiling the query as a regular expression when
// mode is Regex. Returns ErrBadRegex if compilation fails.
func New(mode Mode, column record.ColumnIdentifier, query string) (Search, error) {
	s := Search{mode: mode, column: column, query: query}
	if mode == Regex {
		re, err := regexp.Compile("(?i)" + query)
		if err != nil {
			return Search{}, fmt.Errorf("%w: %v", ErrBadRegex, err)
		}
		s.pattern = re
	}
	return s, nil
}

// Mode reports the search's mode.
func (s Search) Mode() Mode { return s.mode }

// Column reports the search's target column.
func (s Search) Column() record.ColumnIdentifier { return s.column }

// IsMatch evaluates the search against book's rendered column value. A
// missing column is treated as the empty string.
func (s Search) IsMatch(book record.Book) bool {
	value, _ := book.GetColumn(s.column)
	switch s.mode {
	case Regex:
		return s.pattern.MatchString(value)
	case ExactSubstring:
		return strings.Contains(value, s.query)
	case ExactString:
		return value == s.query
	case Default:
		matches := fuzzy.Find(s.query, []string{value})
		return len(matches) > 0
	default:
		return false
	}
}

// SQLFragment returns the bound WHERE fragment for SQL-expressible modes,
// and false for modes that can only be evaluated in memory (Regex, Default).
func (s Search) SQLFragment() (Fragment, bool) {
	switch s.mode {
	case ExactSubstring:
		return Fragment{Column: s.column, Predicate: "LIKE ? ESCAPE '\\'", Value: "%" + escapeLike(s.query) + "%"}, true
	case ExactString:
		return Fragment{Column: s.column, Predicate: "= ?", Value: s.query}, true
	default:
		return Fragment{}, false
	}
}

// escapeLike escapes LIKE metacharacters in a user-supplied substring so it
// is matched literally; the caller must still bind the result as a
// parameter rather than interpolating it into SQL text.
func escapeLike(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "%", "\\%", "_", "\\_")
	return r.Replace(s)
}

// AllMatch reports whether every search in searches matches book. An empty
// slice matches everything (no restriction).
func AllMatch(searches []Search, book record.Book) bool {
	for _, s := range searches {
		if !s.IsMatch(book) {
			return false
		}
	}
	return true
}
