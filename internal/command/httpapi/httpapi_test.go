package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfmgr/libshelf/internal/bookview"
	"github.com/shelfmgr/libshelf/internal/command"
	"github.com/shelfmgr/libshelf/internal/record"
	"github.com/shelfmgr/libshelf/internal/store"
)

var byTitle = []record.SortRule{{Column: record.Title(), Order: record.Ascending}}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "library.db"), store.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	view := bookview.New(s, 5, byTitle)
	runner := command.NewRunner(s, view, nil)
	return New(runner)
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	return rr
}

func TestAddBooksEndpointInsertsBook(t *testing.T) {
	srv := newTestServer(t)

	rr := doJSON(t, srv, http.MethodPost, "/books", map[string]any{
		"sources": []map[string]any{
			{"book_type": "EPUB", "path": "/a.epub", "local_title": "Dune", "file_size": 10},
		},
	})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestEditBookEndpointRejectsImmutableColumn(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, srv, http.MethodPost, "/books", map[string]any{
		"sources": []map[string]any{
			{"book_type": "EPUB", "path": "/a.epub", "local_title": "Dune", "file_size": 10},
		},
	})

	rr := doJSON(t, srv, http.MethodPatch, "/books/1", map[string]any{
		"column": "id",
		"kind":   "replace",
		"value":  "9",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDeleteAllEndpoint(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, srv, http.MethodPost, "/books", map[string]any{
		"sources": []map[string]any{
			{"book_type": "EPUB", "path": "/a.epub", "local_title": "Dune", "file_size": 10},
		},
	})

	rr := doJSON(t, srv, http.MethodDelete, "/books", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestQuitEndpointSucceeds(t *testing.T) {
	srv := newTestServer(t)
	rr := doJSON(t, srv, http.MethodPost, "/quit", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestSortEndpointAcceptsRules(t *testing.T) {
	srv := newTestServer(t)
	rr := doJSON(t, srv, http.MethodPost, "/sort", map[string]any{
		"rules": []map[string]any{{"column": "title", "desc": true}},
	})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestFilterMatchesEndpointPushesScope(t *testing.T) {
	srv := newTestServer(t)
	rr := doJSON(t, srv, http.MethodPost, "/filter", map[string]any{
		"searches": []map[string]any{{"mode": "substring", "column": "title", "query": "Dune"}},
	})
	assert.Equal(t, http.StatusOK, rr.Code)
}
