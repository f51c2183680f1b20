// Package store implements the Store component from spec.md §4.5: the
// relational persistence layer behind a Book cache, translating
// ColumnIdentifier/Edit pairs into targeted SQL statements, resolving
// Selections via the query builder, and driving the merge-similar and
// path-reconciliation pipelines. Grounded on the teacher's SQLite backend
// (internal/backend/sqlite/sqlite.go) for migration, transaction, and
// backup conventions, and on bookworm-database/src/sqlite_database.rs for
// the schema and the exact Column×Edit SQL dispatch table.
package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/shelfmgr/libshelf/internal/bookcache"
	"github.com/shelfmgr/libshelf/internal/querybuilder"
	"github.com/shelfmgr/libshelf/internal/record"
	"github.com/shelfmgr/libshelf/internal/selection"
)

// ErrBookNotFound is returned by GetBook when no book with the given id
// exists in the database.
var ErrBookNotFound = errors.New("store: book not found")

// Config controls how a Store opens and batches work against its SQLite
// file. The zero value is filled in with defaults by Open.
type Config struct {
	BusyTimeout time.Duration // default 5s
	CacheSizeKB int           // SQLite PRAGMA cache_size, negative = KB; default -2000
	BatchSize   int           // rows per write transaction; default 500
}

func (c Config) withDefaults() Config {
	if c.BusyTimeout == 0 {
		c.BusyTimeout = 5 * time.Second
	}
	if c.CacheSizeKB == 0 {
		c.CacheSizeKB = -2000
	}
	if c.BatchSize == 0 {
		c.BatchSize = 500
	}
	return c
}

// Store is the relational backend: a *sql.DB plus the read-through Book
// cache described in spec.md §4.3.
type Store struct {
	db    *sql.DB
	cache *bookcache.Cache
	cfg   Config
}

const currentSchemaVersion = 1

type schemaMigration struct {
	version int
	apply   func(*sql.DB) error
}

var schemaMigrations = []schemaMigration{
	{version: 1, apply: migration1},
}

// migration1 sets up the initial schema: books plus its four child tables,
// each carrying an index over book_id. These indices are required for
// scroll performance; omitting them turns every page fetch into a table
// scan of the child tables.
func migration1(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS books (
    book_id     INTEGER PRIMARY KEY AUTOINCREMENT,
    title       TEXT,
    series_name TEXT,
    series_id   REAL
);

CREATE TABLE IF NOT EXISTS variants (
    variant_id  INTEGER PRIMARY KEY AUTOINCREMENT,
    book_type   TEXT NOT NULL,
    path        BLOB NOT NULL,
    local_title TEXT,
    identifier  TEXT,
    language    TEXT,
    description TEXT,
    id          INTEGER,
    hash        BLOB NOT NULL,
    file_size   INTEGER NOT NULL,
    book_id     INTEGER NOT NULL REFERENCES books(book_id) ON DELETE CASCADE ON UPDATE CASCADE
);

CREATE TABLE IF NOT EXISTS named_tags (
    name    TEXT NOT NULL,
    value   TEXT NOT NULL,
    book_id INTEGER NOT NULL REFERENCES books(book_id) ON DELETE CASCADE ON UPDATE CASCADE,
    UNIQUE(name, book_id)
);

CREATE TABLE IF NOT EXISTS free_tags (
    value   TEXT NOT NULL,
    book_id INTEGER NOT NULL REFERENCES books(book_id) ON DELETE CASCADE ON UPDATE CASCADE,
    UNIQUE(value, book_id)
);

CREATE TABLE IF NOT EXISTS multimap_tags (
    name    TEXT NOT NULL,
    value   TEXT NOT NULL,
    book_id INTEGER NOT NULL REFERENCES books(book_id) ON DELETE CASCADE ON UPDATE CASCADE,
    UNIQUE(name, value, book_id)
);

CREATE INDEX IF NOT EXISTS books_ids        ON books(book_id);
CREATE INDEX IF NOT EXISTS variants_ids     ON variants(book_id);
CREATE INDEX IF NOT EXISTS named_tags_ids   ON named_tags(book_id);
CREATE INDEX IF NOT EXISTS free_tags_ids    ON free_tags(book_id);
CREATE INDEX IF NOT EXISTS multimap_tags_ids ON multimap_tags(book_id);
CREATE INDEX IF NOT EXISTS variant_hashes   ON variants(book_id, id, file_size, hash);
`)
	return err
}

func migrateSchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for _, m := range schemaMigrations {
		if m.version <= version {
			continue
		}
		if err := m.apply(db); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			return fmt.Errorf("advance schema version to %d: %w", m.version, err)
		}
	}
	return nil
}

// Open opens (or creates) the SQLite database at path, applies schema
// migrations, and warms the Book cache from its contents.
func Open(path string, cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}

	pragmas := fmt.Sprintf(
		"PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON; PRAGMA case_sensitive_like=ON; PRAGMA busy_timeout=%d; PRAGMA cache_size=%d;",
		cfg.BusyTimeout.Milliseconds(), cfg.CacheSizeKB,
	)
	if _, err := db.Exec(pragmas); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}
	if err := migrateSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	s := &Store{db: db, cache: bookcache.New(), cfg: cfg}
	if err := s.warmCache(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("warm cache: %w", err)
	}
	return s, nil
}

// Close releases database resources.
func (s *Store) Close() error { return s.db.Close() }

// Cache returns the Store's backing Book cache, e.g. for has_column checks
// and in-memory-only search modes.
func (s *Store) Cache() *bookcache.Cache { return s.cache }

func (s *Store) warmCache(ctx context.Context) error {
	books, err := s.fetchAllBooks(ctx)
	if err != nil {
		return err
	}
	for _, b := range books {
		s.cache.InsertBook(b)
	}
	return nil
}

// --- reading ---

const bookSelectColumns = `
    b.book_id, b.title, b.series_name, b.series_id,
    (SELECT json_group_array(json_object(
        'book_type', v.book_type, 'path', v.path, 'local_title', v.local_title,
        'identifier', v.identifier, 'language', v.language, 'description', v.description,
        'id', v.id, 'hash', hex(v.hash), 'file_size', v.file_size))
     FROM variants v WHERE v.book_id = b.book_id) AS variants_json,
    (SELECT json_group_object(nt.name, nt.value)
     FROM named_tags nt WHERE nt.book_id = b.book_id) AS named_tags_json,
    (SELECT json_group_array(ft.value)
     FROM free_tags ft WHERE ft.book_id = b.book_id) AS free_tags_json,
    (SELECT json_group_array(mt.value)
     FROM multimap_tags mt WHERE mt.book_id = b.book_id AND mt.name = 'author') AS authors_json`

type bookRow struct {
	BookID        int64
	Title         *string
	SeriesName    *string
	SeriesIndex   *float64
	VariantsJSON  *string
	NamedTagsJSON *string
	FreeTagsJSON  *string
	AuthorsJSON   *string
}

type variantJSON struct {
	BookType    string `json:"book_type"`
	Path        string `json:"path"`
	LocalTitle  string `json:"local_title"`
	Identifier  string `json:"identifier"`
	Language    string `json:"language"`
	Description string `json:"description"`
	ID          *int64 `json:"id"`
	Hash        string `json:"hash"` // hex-encoded
	FileSize    int64  `json:"file_size"`
}

// toBook reconstructs a record.Book by replaying its variants through
// FromVariant/PushVariant, the same lifting logic used at ingest time, then
// layering the book-level overrides (title, series, explicit tag edits)
// recorded directly on the books/named_tags/free_tags/multimap_tags rows.
func (r bookRow) toBook() (record.Book, error) {
	var rawVariants []variantJSON
	if r.VariantsJSON != nil && *r.VariantsJSON != "" && *r.VariantsJSON != "[null]" {
		if err := json.Unmarshal([]byte(*r.VariantsJSON), &rawVariants); err != nil {
			return record.Book{}, fmt.Errorf("store: decode variants for book %d: %w", r.BookID, err)
		}
	}
	if len(rawVariants) == 0 {
		return record.Book{}, fmt.Errorf("store: book %d has no variants", r.BookID)
	}

	variants := make([]record.BookVariant, 0, len(rawVariants))
	for _, v := range rawVariants {
		hash, err := hex.DecodeString(v.Hash)
		if err != nil || len(hash) != 32 {
			return record.Book{}, fmt.Errorf("store: bad variant hash for book %d: %w", r.BookID, err)
		}
		bv := record.BookVariant{
			BookType:    record.BookType(v.BookType),
			Path:        v.Path,
			LocalTitle:  v.LocalTitle,
			Identifier:  v.Identifier,
			Language:    v.Language,
			Description: v.Description,
			FileSize:    v.FileSize,
		}
		if v.ID != nil {
			bv.ID = uint32(*v.ID)
		}
		copy(bv.Hash[:], hash)
		variants = append(variants, bv)
	}

	b := record.FromVariant(r.BookID, variants[0])
	for _, v := range variants[1:] {
		b.PushVariant(v)
	}

	if r.Title != nil {
		b.Title, b.HasTitle = *r.Title, true
	}
	if r.SeriesName != nil {
		b.Series = &record.Series{Name: *r.SeriesName, Index: r.SeriesIndex}
	}
	if authors, err := decodeStringArray(r.AuthorsJSON); err == nil && len(authors) > 0 {
		b.Authors = authors
	}
	if named, err := decodeStringMap(r.NamedTagsJSON); err == nil && len(named) > 0 {
		b.NamedTags = named
	}
	if free, err := decodeStringArray(r.FreeTagsJSON); err == nil && len(free) > 0 {
		b.FreeTags = make(map[string]struct{}, len(free))
		for _, t := range free {
			b.FreeTags[t] = struct{}{}
		}
	}
	return b, nil
}

func decodeStringArray(raw *string) ([]string, error) {
	if raw == nil || *raw == "" || *raw == "[null]" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(*raw), &out); err != nil {
		return nil, err
	}
	var filtered []string
	for _, v := range out {
		if v != "" {
			filtered = append(filtered, v)
		}
	}
	return filtered, nil
}

func decodeStringMap(raw *string) (map[string]string, error) {
	if raw == nil || *raw == "" || *raw == "{}" {
		return nil, nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(*raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// queryBooks runs query (a SELECT using bookSelectColumns FROM books b ...)
// and decodes every row, logging and skipping rows that fail to decode (a
// single corrupted book must not prevent the rest of a page from loading).
func (s *Store) queryBooks(ctx context.Context, query string, args ...any) ([]record.Book, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query books: %w", err)
	}
	defer rows.Close()

	var out []record.Book
	for rows.Next() {
		var r bookRow
		if err := rows.Scan(&r.BookID, &r.Title, &r.SeriesName, &r.SeriesIndex,
			&r.VariantsJSON, &r.NamedTagsJSON, &r.FreeTagsJSON, &r.AuthorsJSON); err != nil {
			return nil, fmt.Errorf("scan book row: %w", err)
		}
		b, err := r.toBook()
		if err != nil {
			log.Printf("store: skipping book %v: %v", r.BookID, err)
			continue
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) fetchAllBooks(ctx context.Context) ([]record.Book, error) {
	return s.queryBooks(ctx, `SELECT `+bookSelectColumns+` FROM books b`)
}

func (s *Store) fetchBooksByIDs(ctx context.Context, ids []int64) ([]record.Book, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT %s FROM books b WHERE b.book_id IN (%s)`, bookSelectColumns, placeholders)
	return s.queryBooks(ctx, query, args...)
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// QueryIDs executes a query built by the query builder package and returns
// the matching book ids, in result order. The Paginator is the intended
// caller: it asks the query builder for SQL and asks the Store to run it.
func (s *Store) QueryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	return s.queryIDs(ctx, query, args...)
}

// GetBook returns the Book with id, from the cache if present, else from
// the database (populating the cache on the way out).
func (s *Store) GetBook(ctx context.Context, id int64) (record.Book, error) {
	if b, ok := s.cache.GetBook(id); ok {
		return b, nil
	}
	books, err := s.fetchBooksByIDs(ctx, []int64{id})
	if err != nil {
		return record.Book{}, err
	}
	if len(books) == 0 {
		return record.Book{}, fmt.Errorf("get book %d: %w", id, ErrBookNotFound)
	}
	s.cache.InsertBook(books[0])
	return books[0], nil
}

// GetBooks returns every Book named in ids that exists, preferring cached
// copies and falling back to the database for any cache misses.
func (s *Store) GetBooks(ctx context.Context, ids []int64) ([]record.Book, error) {
	cached := s.cache.GetBooks(ids)
	if len(cached) == len(ids) {
		return cached, nil
	}
	have := make(map[int64]struct{}, len(cached))
	for _, b := range cached {
		have[b.ID] = struct{}{}
	}
	var missing []int64
	for _, id := range ids {
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}
	fetched, err := s.fetchBooksByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, b := range fetched {
		s.cache.InsertBook(b)
	}
	return s.cache.GetBooks(ids), nil
}

// ReadSelectedBooks resolves sel against the database and returns the
// matching Books.
func (s *Store) ReadSelectedBooks(ctx context.Context, sel selection.Selection) ([]record.Book, error) {
	ids, err := s.resolveSelection(ctx, sel)
	if err != nil {
		return nil, err
	}
	return s.GetBooks(ctx, ids)
}

func (s *Store) resolveSelection(ctx context.Context, sel selection.Selection) ([]int64, error) {
	switch sel.Kind() {
	case selection.KindEmpty:
		return nil, nil
	case selection.KindPartial:
		books, _ := sel.PartialBooks()
		ids := make([]int64, 0, len(books))
		for id := range books {
			ids = append(ids, id)
		}
		return ids, nil
	case selection.KindAll:
		qb := querybuilder.New(nil, record.Ascending)
		query, args := qb.JoinCols(nil, sel.MatchRules())
		return s.queryIDs(ctx, query, args...)
	case selection.KindRange:
		start, end, _ := sel.RangeBounds()
		qb := querybuilder.New(sel.CmpRules(), record.Descending).IDInclusive(true)
		query, args := qb.BetweenBooks(start, end, sel.MatchRules())
		return s.queryIDs(ctx, query, args...)
	default:
		return nil, nil
	}
}

// --- writing ---

func (s *Store) persistNewBook(ctx context.Context, tx *sql.Tx, b record.Book) (int64, error) {
	var title, seriesName, seriesIndex any
	if b.HasTitle {
		title = b.Title
	}
	if b.Series != nil {
		seriesName = b.Series.Name
		if b.Series.Index != nil {
			seriesIndex = *b.Series.Index
		}
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO books (title, series_name, series_id) VALUES (?, ?, ?)`,
		title, seriesName, seriesIndex)
	if err != nil {
		return 0, fmt.Errorf("insert book: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read inserted book id: %w", err)
	}

	for _, v := range b.Variants {
		var subID any
		if v.ID != 0 {
			subID = v.ID
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO variants (book_type, path, local_title, identifier, language, description, id, hash, file_size, book_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(v.BookType), v.Path, v.LocalTitle, v.Identifier, v.Language, v.Description,
			subID, v.Hash[:], v.FileSize, id); err != nil {
			return 0, fmt.Errorf("insert variant: %w", err)
		}
	}
	for _, a := range b.Authors {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO multimap_tags (name, value, book_id) VALUES ('author', ?, ?)`, a, id); err != nil {
			return 0, fmt.Errorf("insert author: %w", err)
		}
	}
	for name, value := range b.NamedTags {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO named_tags (name, value, book_id) VALUES (?, ?, ?)`, name, value, id); err != nil {
			return 0, fmt.Errorf("insert named tag: %w", err)
		}
	}
	for tag := range b.FreeTags {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO free_tags (value, book_id) VALUES (?, ?)`, tag, id); err != nil {
			return 0, fmt.Errorf("insert free tag: %w", err)
		}
	}
	return id, nil
}

// InsertVariant always creates a new Book from variant (ingestion never
// deduplicates against existing books — that is the job of Update and
// MergeSimilar, run as separate passes).
func (s *Store) InsertVariant(ctx context.Context, variant record.BookVariant) (int64, error) {
	ids, err := s.InsertVariants(ctx, []record.BookVariant{variant})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// InsertVariants inserts every variant as a new Book, batching writes into
// transactions of at most cfg.BatchSize variants each, the same chunking
// the original ingest pipeline uses to bound transaction size on large
// imports.
func (s *Store) InsertVariants(ctx context.Context, variants []record.BookVariant) ([]int64, error) {
	if len(variants) > s.cfg.BatchSize {
		log.Printf("store: inserting %s variants across %s-row batches", humanize.Comma(int64(len(variants))), humanize.Comma(int64(s.cfg.BatchSize)))
	}
	ids := make([]int64, 0, len(variants))
	for start := 0; start < len(variants); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(variants) {
			end = len(variants)
		}
		batchIDs, err := s.insertBatch(ctx, variants[start:end])
		if err != nil {
			return ids, err
		}
		ids = append(ids, batchIDs...)
	}
	return ids, nil
}

func (s *Store) insertBatch(ctx context.Context, variants []record.BookVariant) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin insert batch: %w", err)
	}
	defer tx.Rollback()

	ids := make([]int64, 0, len(variants))
	books := make([]record.Book, 0, len(variants))
	for _, v := range variants {
		b := record.FromVariant(0, v)
		id, err := s.persistNewBook(ctx, tx, b)
		if err != nil {
			return nil, err
		}
		b.ID = id
		ids = append(ids, id)
		books = append(books, b)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit insert batch: %w", err)
	}
	for _, b := range books {
		s.cache.InsertBook(b)
	}
	return ids, nil
}

// RemoveBooks deletes every book named in ids, cascading to its variants
// and tags, and evicts them from the cache.
func (s *Store) RemoveBooks(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM books WHERE book_id IN (%s)`, placeholders), args...); err != nil {
		return fmt.Errorf("delete books: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit remove: %w", err)
	}
	s.cache.RemoveBooks(ids)
	return nil
}

// RemoveSelected resolves sel and removes every book it names.
func (s *Store) RemoveSelected(ctx context.Context, sel selection.Selection) error {
	ids, err := s.resolveSelection(ctx, sel)
	if err != nil {
		return err
	}
	return s.RemoveBooks(ctx, ids)
}

// Clear removes every book from the store and reclaims disk space with a
// VACUUM, mirroring the teacher's backup/maintenance use of the same
// statement.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM books;`); err != nil {
		return fmt.Errorf("clear books: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM;`); err != nil {
		return fmt.Errorf("vacuum after clear: %w", err)
	}
	s.cache.Clear()
	return nil
}

// Backup snapshots the database into destDir using VACUUM INTO, then prunes
// older backups beyond keep (keep <= 0 disables pruning).
func (s *Store) Backup(ctx context.Context, destDir string, keep int) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir %q: %w", destDir, err)
	}
	name := "library-" + time.Now().Format("20060102-150405.000000000") + ".db"
	destPath := filepath.Join(destDir, name)
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, destPath); err != nil {
		return "", fmt.Errorf("vacuum into %q: %w", destPath, err)
	}
	if keep > 0 {
		if err := pruneBackups(destDir, keep); err != nil {
			return destPath, fmt.Errorf("prune backups: %w", err)
		}
	}
	return destPath, nil
}

func pruneBackups(dir string, keep int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read backup dir: %w", err)
	}
	var backups []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n := e.Name()
		if strings.HasPrefix(n, "library-") && filepath.Ext(n) == ".db" {
			backups = append(backups, filepath.Join(dir, n))
		}
	}
	if len(backups) > keep {
		for _, old := range backups[:len(backups)-keep] {
			_ = os.Remove(old)
		}
	}
	return nil
}

// --- editing ---

// EditBook applies a single column edit to one book, both in the database
// and in the cached copy. ID and Variants are immutable and the edit is
// rejected before any SQL runs.
func (s *Store) EditBook(ctx context.Context, id int64, column record.ColumnIdentifier, edit record.Edit) error {
	if column.Kind() == record.ColID || column.Kind() == record.ColVariants {
		return record.ErrImmutableColumn
	}
	book, err := s.GetBook(ctx, id)
	if err != nil {
		return err
	}
	resolved := edit
	if edit.Kind == record.EditSequence {
		current, _ := book.GetColumn(column)
		resolved = edit.Resolve(current)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin edit: %w", err)
	}
	defer tx.Rollback()

	if err := applyColumnEdit(ctx, tx, id, column, resolved); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit edit: %w", err)
	}
	if err := book.EditColumn(column, resolved); err != nil {
		return err
	}
	s.cache.InsertBook(book)
	return nil
}

// EditSelected resolves sel and applies column/edit to every book it names,
// batching writes into transactions of at most cfg.BatchSize books.
func (s *Store) EditSelected(ctx context.Context, sel selection.Selection, column record.ColumnIdentifier, edit record.Edit) error {
	if column.Kind() == record.ColID || column.Kind() == record.ColVariants {
		return record.ErrImmutableColumn
	}
	ids, err := s.resolveSelection(ctx, sel)
	if err != nil {
		return err
	}
	books, err := s.GetBooks(ctx, ids)
	if err != nil {
		return err
	}

	for start := 0; start < len(books); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(books) {
			end = len(books)
		}
		if err := s.editBatch(ctx, books[start:end], column, edit); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) editBatch(ctx context.Context, books []record.Book, column record.ColumnIdentifier, edit record.Edit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin edit batch: %w", err)
	}
	defer tx.Rollback()

	for i := range books {
		resolved := edit
		if edit.Kind == record.EditSequence {
			current, _ := books[i].GetColumn(column)
			resolved = edit.Resolve(current)
		}
		if err := applyColumnEdit(ctx, tx, books[i].ID, column, resolved); err != nil {
			return err
		}
		if err := books[i].EditColumn(column, resolved); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit edit batch: %w", err)
	}
	for _, b := range books {
		s.cache.InsertBook(b)
	}
	return nil
}

// applyColumnEdit is the Column×Edit SQL dispatch table from spec.md §4.5:
// for each (column kind, edit kind) pair it issues the exact statement the
// in-memory Book mutation requires, leaving NamedTag/ExactTag/Tags/MultiMap
// special-cased exactly as their in-memory counterparts are.
func applyColumnEdit(ctx context.Context, tx *sql.Tx, bookID int64, column record.ColumnIdentifier, edit record.Edit) error {
	switch edit.Kind {
	case record.EditDelete:
		return applyDelete(ctx, tx, bookID, column)
	case record.EditReplace:
		return applyReplace(ctx, tx, bookID, column, edit.Value)
	case record.EditAppend:
		return applyAppend(ctx, tx, bookID, column, edit.Value)
	default:
		return nil
	}
}

func applyDelete(ctx context.Context, tx *sql.Tx, bookID int64, column record.ColumnIdentifier) error {
	switch column.Kind() {
	case record.ColTitle:
		_, err := tx.ExecContext(ctx, `UPDATE books SET title = NULL WHERE book_id = ?`, bookID)
		return err
	case record.ColAuthor:
		_, err := tx.ExecContext(ctx, `DELETE FROM multimap_tags WHERE book_id = ? AND name = 'author'`, bookID)
		return err
	case record.ColSeries:
		_, err := tx.ExecContext(ctx, `UPDATE books SET series_name = NULL, series_id = NULL WHERE book_id = ?`, bookID)
		return err
	case record.ColDescription:
		_, err := tx.ExecContext(ctx, `UPDATE variants SET description = NULL WHERE book_id = ?`, bookID)
		return err
	case record.ColNamedTag:
		_, err := tx.ExecContext(ctx, `DELETE FROM named_tags WHERE book_id = ? AND name = ?`, bookID, column.NamedTagName())
		return err
	case record.ColExactTag:
		_, err := tx.ExecContext(ctx, `DELETE FROM free_tags WHERE book_id = ? AND value = ?`, bookID, column.ExactTagValue())
		return err
	case record.ColTags:
		_, err := tx.ExecContext(ctx, `DELETE FROM free_tags WHERE book_id = ?`, bookID)
		return err
	default:
		return fmt.Errorf("store: cannot delete column %s", column)
	}
}

func applyReplace(ctx context.Context, tx *sql.Tx, bookID int64, column record.ColumnIdentifier, value string) error {
	switch column.Kind() {
	case record.ColTitle:
		_, err := tx.ExecContext(ctx, `UPDATE books SET title = ? WHERE book_id = ?`, value, bookID)
		return err
	case record.ColAuthor:
		_, err := tx.ExecContext(ctx, `INSERT INTO multimap_tags (name, value, book_id) VALUES ('author', ?, ?)`, value, bookID)
		return err
	case record.ColSeries:
		ser := record.ParseSeries(value)
		var idx any
		if ser.Index != nil {
			idx = *ser.Index
		}
		_, err := tx.ExecContext(ctx, `UPDATE books SET series_name = ?, series_id = ? WHERE book_id = ?`, ser.Name, idx, bookID)
		return err
	case record.ColDescription:
		_, err := tx.ExecContext(ctx, `UPDATE variants SET description = ? WHERE book_id = ?`, value, bookID)
		return err
	case record.ColTags:
		_, err := tx.ExecContext(ctx, `INSERT INTO free_tags (value, book_id) VALUES (?, ?)`, value, bookID)
		return err
	case record.ColNamedTag:
		_, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO named_tags (name, value, book_id) VALUES (?, ?, ?)`, column.NamedTagName(), value, bookID)
		return err
	case record.ColExactTag:
		if _, err := tx.ExecContext(ctx, `DELETE FROM free_tags WHERE value = ? AND book_id = ?`, column.ExactTagValue(), bookID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO free_tags (value, book_id) VALUES (?, ?)`, value, bookID)
		return err
	default:
		return fmt.Errorf("store: cannot replace column %s", column)
	}
}

func applyAppend(ctx context.Context, tx *sql.Tx, bookID int64, column record.ColumnIdentifier, value string) error {
	switch column.Kind() {
	case record.ColTitle:
		_, err := tx.ExecContext(ctx, `UPDATE books SET title = COALESCE(title, '') || ? WHERE book_id = ?`, value, bookID)
		return err
	case record.ColAuthor:
		_, err := tx.ExecContext(ctx, `INSERT INTO multimap_tags (name, value, book_id) VALUES ('author', ?, ?)`, value, bookID)
		return err
	case record.ColDescription:
		_, err := tx.ExecContext(ctx, `UPDATE variants SET description = COALESCE(description, '') || ? WHERE book_id = ?`, value, bookID)
		return err
	case record.ColTags:
		_, err := tx.ExecContext(ctx, `INSERT INTO free_tags (value, book_id) VALUES (?, ?)`, value, bookID)
		return err
	case record.ColNamedTag:
		_, err := tx.ExecContext(ctx, `
INSERT OR REPLACE INTO named_tags (name, value, book_id)
VALUES (?, COALESCE((SELECT value FROM named_tags WHERE name = ? AND book_id = ?), '') || ?, ?)`,
			column.NamedTagName(), column.NamedTagName(), bookID, value, bookID)
		return err
	case record.ColExactTag:
		newTag := column.ExactTagValue() + value
		if _, err := tx.ExecContext(ctx, `DELETE FROM free_tags WHERE value = ? AND book_id = ?`, column.ExactTagValue(), bookID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO free_tags (value, book_id) VALUES (?, ?)`, newTag, bookID)
		return err
	default:
		return fmt.Errorf("store: cannot append to column %s", column)
	}
}

// --- merging ---

// MergeSimilar finds books the cache considers duplicates (matching
// lowercase title and author list) and folds each loser's tags and
// variants into its keeper, then removes the losers. Returns the pairs
// that were merged.
func (s *Store) MergeSimilar(ctx context.Context) ([]bookcache.MergePair, error) {
	pairs := s.cache.MergeSimilarBooks()
	if len(pairs) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback()

	for _, p := range pairs {
		if err := mergeRows(ctx, tx, p.Keeper, p.Loser); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit merge: %w", err)
	}
	log.Printf("store: merged %s duplicate pair(s)", humanize.Comma(int64(len(pairs))))

	losers := make([]int64, len(pairs))
	for i, p := range pairs {
		losers[i] = p.Loser
	}
	if err := s.RemoveBooks(ctx, losers); err != nil {
		return nil, err
	}
	// The keepers' cached copies predate the reassigned variants/tags; evict
	// so the next GetBook reloads the merged row from the database.
	keepers := make([]int64, len(pairs))
	for i, p := range pairs {
		keepers[i] = p.Keeper
	}
	s.cache.RemoveBooks(keepers)
	return pairs, nil
}

// mergeRows reassigns loser's child rows onto keeper. OR IGNORE guards
// against the UNIQUE(name, book_id)-style constraints rejecting a tag the
// keeper already has; DELETE afterward clears whatever OR IGNORE left
// orphaned under the loser's book_id.
func mergeRows(ctx context.Context, tx *sql.Tx, keeper, loser int64) error {
	stmts := []string{
		`UPDATE OR IGNORE multimap_tags SET book_id = ? WHERE book_id = ?`,
		`UPDATE OR IGNORE named_tags SET book_id = ? WHERE book_id = ?`,
		`UPDATE OR IGNORE free_tags SET book_id = ? WHERE book_id = ?`,
		`UPDATE variants SET book_id = ? WHERE book_id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, keeper, loser); err != nil {
			return fmt.Errorf("merge rows: %w", err)
		}
	}
	// Orphaned rows OR IGNORE left behind under the loser's book_id, because
	// the keeper already had that (name, book_id) or (value, book_id) pair.
	for _, table := range []string{"multimap_tags", "named_tags", "free_tags"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE book_id = ?`, table), loser); err != nil {
			return fmt.Errorf("clear orphaned %s: %w", table, err)
		}
	}
	return nil
}

// --- path reconciliation ---

// Update reconciles a freshly rescanned batch of variants against existing
// variant rows by (file_size, hash[, id]): when a match is found, only the
// variant's path is refreshed (the file moved on disk but is otherwise
// unchanged), and the affected book is evicted from the cache so the next
// read reloads it with the corrected path.
func (s *Store) Update(ctx context.Context, variants []record.BookVariant) error {
	rows, err := s.db.QueryContext(ctx, `SELECT book_id, id, file_size, hash FROM variants`)
	if err != nil {
		return fmt.Errorf("read variant metadata: %w", err)
	}
	type key struct {
		fileSize int64
		hash     [32]byte
	}
	type target struct {
		bookID int64
		id     *int64
	}
	index := make(map[key]target)
	for rows.Next() {
		var bookID int64
		var id *int64
		var fileSize int64
		var hashBytes []byte
		if err := rows.Scan(&bookID, &id, &fileSize, &hashBytes); err != nil {
			rows.Close()
			return fmt.Errorf("scan variant metadata: %w", err)
		}
		if len(hashBytes) != 32 {
			continue
		}
		var k key
		k.fileSize = fileSize
		copy(k.hash[:], hashBytes)
		index[k] = target{bookID: bookID, id: id}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate variant metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	var affected []int64
	for _, v := range variants {
		t, ok := index[key{fileSize: v.FileSize, hash: v.Hash}]
		if !ok {
			continue
		}
		var res sql.Result
		var err error
		if t.id == nil {
			res, err = tx.ExecContext(ctx, `UPDATE variants SET path = ? WHERE id IS NULL AND file_size = ? AND hash = ? AND book_id = ?`,
				v.Path, v.FileSize, v.Hash[:], t.bookID)
		} else {
			res, err = tx.ExecContext(ctx, `UPDATE variants SET path = ? WHERE id = ? AND file_size = ? AND hash = ? AND book_id = ?`,
				v.Path, *t.id, v.FileSize, v.Hash[:], t.bookID)
		}
		if err != nil {
			return fmt.Errorf("update variant path: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			affected = append(affected, t.bookID)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	s.cache.RemoveBooks(affected)
	return nil
}
