// Package bookcache implements the in-memory BookID→Book cache described in
// spec.md §4.3: an ordered mapping held behind a single-writer/many-reader
// lock, a registry of known column names, and the similarity-merge planner
// consumed by the store's merge_similar operation.
package bookcache

import (
	"sort"
	"strings"
	"sync"

	"github.com/shelfmgr/libshelf/internal/record"
	"github.com/shelfmgr/libshelf/internal/search"
)

// Cache holds shared Book handles keyed by ID, in insertion order, behind a
// single-writer/many-reader lock.
type Cache struct {
	mu      sync.RWMutex
	order   []int64
	books   map[int64]record.Book
	columns map[string]struct{} // UniCase-folded column names
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		books:   make(map[int64]record.Book),
		columns: make(map[string]struct{}),
	}
}

// GetBook returns the cached Book for id, or false if absent.
func (c *Cache) GetBook(id int64) (record.Book, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.books[id]
	return b, ok
}

// GetBooks returns the cached Books for ids, in the order of ids. Ids that
// are not cached are skipped, so the result can be shorter than ids.
func (c *Cache) GetBooks(ids []int64) []record.Book {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]record.Book, 0, len(ids))
	for _, id := range ids {
		if b, ok := c.books[id]; ok {
			out = append(out, b)
		}
	}
	return out
}

// GetAll returns every cached Book, in insertion order.
func (c *Cache) GetAll() []record.Book {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]record.Book, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.books[id])
	}
	return out
}

// InsertBook overwrites (or adds) the cache entry for book.ID.
func (c *Cache) InsertBook(book record.Book) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.books[book.ID]; !exists {
		c.order = append(c.order, book.ID)
	}
	c.books[book.ID] = book
}

// RemoveBooks evicts every id in ids from the cache.
func (c *Cache) RemoveBooks(ids []int64) {
	if len(ids) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	toRemove := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		toRemove[id] = struct{}{}
		delete(c.books, id)
	}
	kept := c.order[:0:0]
	for _, id := range c.order {
		if _, gone := toRemove[id]; !gone {
			kept = append(kept, id)
		}
	}
	c.order = kept
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = nil
	c.books = make(map[int64]record.Book)
}

// HasColumn reports whether name has been registered via InsertColumns,
// compared case-insensitively (UniCase semantics).
func (c *Cache) HasColumn(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.columns[strings.ToLower(name)]
	return ok
}

// InsertColumns registers names as known columns.
func (c *Cache) InsertColumns(names ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range names {
		c.columns[strings.ToLower(n)] = struct{}{}
	}
}

// MergePair is one proposed merge: keeper survives, loser is absorbed.
type MergePair struct {
	Keeper int64
	Loser  int64
}

// MergeSimilarBooks groups cached books by (lowercase title, lowercase
// comma-joined authors) and, within each group of two or more, proposes
// merging every book into the lowest-id member. The store is responsible
// for actually performing the merge and removing the losers.
func (c *Cache) MergeSimilarBooks() []MergePair {
	c.mu.RLock()
	defer c.mu.RUnlock()

	groups := make(map[string][]int64)
	for _, id := range c.order {
		b := c.books[id]
		key := similarityKey(b)
		groups[key] = append(groups[key], id)
	}

	var pairs []MergePair
	for _, ids := range groups {
		if len(ids) < 2 {
			continue
		}
		sorted := append([]int64(nil), ids...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		keeper := sorted[0]
		for _, loser := range sorted[1:] {
			pairs = append(pairs, MergePair{Keeper: keeper, Loser: loser})
		}
	}
	return pairs
}

func similarityKey(b record.Book) string {
	title, _ := b.GetColumn(record.Title())
	authors, _ := b.GetColumn(record.Author())
	return strings.ToLower(title) + "\x00" + strings.ToLower(authors)
}

// FindMatches returns every cached Book matching every search, for the
// in-memory-only search modes (Regex, Default/fuzzy) that the query builder
// cannot express in SQL.
func (c *Cache) FindMatches(searches []search.Search) []record.Book {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []record.Book
	for _, id := range c.order {
		b := c.books[id]
		if search.AllMatch(searches, b) {
			out = append(out, b)
		}
	}
	return out
}
