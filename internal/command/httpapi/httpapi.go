// Package httpapi is the thin HTTP binding over internal/command described
// in SPEC_FULL.md §4: it maps HTTP verbs and JSON bodies 1:1 onto command
// struct literals and submits them to a command.Runner. It does not parse a
// command language (command lexing is a Non-goal, spec.md §1) — every route
// corresponds to exactly one Command type.
//
// Grounded on the teacher's internal/server (gorilla/mux routing, JSON
// request/response shapes, http.Error for failures) generalized from a
// catalog-browsing API to a command-submission API.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/shelfmgr/libshelf/internal/command"
	"github.com/shelfmgr/libshelf/internal/record"
	"github.com/shelfmgr/libshelf/internal/search"
)

// Server binds a command.Runner to an HTTP router.
type Server struct {
	router *mux.Router
	runner *command.Runner
}

// New builds a Server dispatching every route's command onto runner.
func New(runner *command.Runner) *Server {
	s := &Server{router: mux.NewRouter(), runner: runner}
	s.registerRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	r := s.router
	r.HandleFunc("/books", s.handleAddBooks).Methods(http.MethodPost)
	r.HandleFunc("/books", s.handleUpdateBooks).Methods(http.MethodPut)
	r.HandleFunc("/books", s.handleDeleteAll).Methods(http.MethodDelete)
	r.HandleFunc("/books/{id}", s.handleEditBook).Methods(http.MethodPatch)
	r.HandleFunc("/books/{id}/open", s.handleOpenBookIn).Methods(http.MethodPost)
	r.HandleFunc("/selection", s.handleDeleteSelected).Methods(http.MethodDelete)
	r.HandleFunc("/delete-matching", s.handleDeleteMatching).Methods(http.MethodPost)
	r.HandleFunc("/merge", s.handleTryMergeAllBooks).Methods(http.MethodPost)
	r.HandleFunc("/sort", s.handleSortColumns).Methods(http.MethodPost)
	r.HandleFunc("/filter", s.handleFilterMatches).Methods(http.MethodPost)
	r.HandleFunc("/jump", s.handleJumpTo).Methods(http.MethodPost)
	r.HandleFunc("/write", s.handleWrite).Methods(http.MethodPost)
	r.HandleFunc("/write-and-quit", s.handleWriteAndQuit).Methods(http.MethodPost)
	r.HandleFunc("/quit", s.handleQuit).Methods(http.MethodPost)
}

// variantJSON is the wire form of a record.BookVariant.
type variantJSON struct {
	BookType   string `json:"book_type"`
	Path       string `json:"path"`
	LocalTitle string `json:"local_title"`
	Identifier string `json:"identifier"`
	Language   string `json:"language"`
	FileSize   int64  `json:"file_size"`
}

func (v variantJSON) toVariant() record.BookVariant {
	return record.BookVariant{
		BookType:   record.BookType(v.BookType),
		Path:       v.Path,
		LocalTitle: v.LocalTitle,
		Identifier: v.Identifier,
		Language:   v.Language,
		FileSize:   v.FileSize,
	}
}

// searchJSON is the wire form of a search.Search.
type searchJSON struct {
	Mode   string `json:"mode"` // "regex", "substring", "exact", "fuzzy"
	Column string `json:"column"`
	Query  string `json:"query"`
}

func (s searchJSON) toSearch() (search.Search, error) {
	var mode search.Mode
	switch s.Mode {
	case "regex":
		mode = search.Regex
	case "substring":
		mode = search.ExactSubstring
	case "exact":
		mode = search.ExactString
	default:
		mode = search.Default
	}
	return search.New(mode, record.ParseColumn(s.Column), s.Query)
}

func toSearches(in []searchJSON) ([]search.Search, error) {
	out := make([]search.Search, 0, len(in))
	for _, sj := range in {
		s, err := sj.toSearch()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func writeResult(w http.ResponseWriter, res command.Result) {
	if res.Err != nil {
		http.Error(w, res.Err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) handleAddBooks(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Sources []variantJSON `json:"sources"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	variants := make([]record.BookVariant, len(body.Sources))
	for i, v := range body.Sources {
		variants[i] = v.toVariant()
	}
	writeResult(w, s.runner.Submit(r.Context(), command.AddBooks{Sources: variants}))
}

func (s *Server) handleUpdateBooks(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Sources []variantJSON `json:"sources"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	variants := make([]record.BookVariant, len(body.Sources))
	for i, v := range body.Sources {
		variants[i] = v.toVariant()
	}
	writeResult(w, s.runner.Submit(r.Context(), command.UpdateBooks{Sources: variants}))
}

func (s *Server) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	writeResult(w, s.runner.Submit(r.Context(), command.DeleteAll{}))
}

func (s *Server) handleDeleteSelected(w http.ResponseWriter, r *http.Request) {
	writeResult(w, s.runner.Submit(r.Context(), command.DeleteSelected{}))
}

func (s *Server) handleDeleteMatching(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Searches []searchJSON `json:"searches"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	searches, err := toSearches(body.Searches)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeResult(w, s.runner.Submit(r.Context(), command.DeleteMatching{Searches: searches}))
}

func (s *Server) handleEditBook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid book id", http.StatusBadRequest)
		return
	}
	var body struct {
		Column string `json:"column"`
		Kind   string `json:"kind"` // "delete", "replace", "append"
		Value  string `json:"value"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	var edit record.Edit
	switch body.Kind {
	case "delete":
		edit = record.DeleteEdit()
	case "append":
		edit = record.AppendEdit(body.Value)
	default:
		edit = record.ReplaceEdit(body.Value)
	}
	writeResult(w, s.runner.Submit(r.Context(), command.EditBook{
		Target: id,
		Column: record.ParseColumn(body.Column),
		Edit:   edit,
	}))
}

func (s *Server) handleTryMergeAllBooks(w http.ResponseWriter, r *http.Request) {
	res := s.runner.Submit(r.Context(), command.TryMergeAllBooks{})
	if res.Err != nil {
		http.Error(w, res.Err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"merged": res.MergePairs})
}

func (s *Server) handleSortColumns(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Rules []struct {
			Column string `json:"column"`
			Desc   bool   `json:"desc"`
		} `json:"rules"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	rules := make([]record.SortRule, len(body.Rules))
	for i, rl := range body.Rules {
		order := record.Ascending
		if rl.Desc {
			order = record.Descending
		}
		rules[i] = record.SortRule{Column: record.ParseColumn(rl.Column), Order: order}
	}
	writeResult(w, s.runner.Submit(r.Context(), command.SortColumns{Rules: rules}))
}

func (s *Server) handleFilterMatches(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Searches []searchJSON `json:"searches"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	searches, err := toSearches(body.Searches)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeResult(w, s.runner.Submit(r.Context(), command.FilterMatches{Searches: searches}))
}

func (s *Server) handleJumpTo(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Searches []searchJSON `json:"searches"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	searches, err := toSearches(body.Searches)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeResult(w, s.runner.Submit(r.Context(), command.JumpTo{Searches: searches}))
}

func (s *Server) handleOpenBookIn(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid book id", http.StatusBadRequest)
		return
	}
	var body struct {
		VariantIndex int    `json:"variant_index"`
		Target       string `json:"target"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	writeResult(w, s.runner.Submit(r.Context(), command.OpenBookIn{
		BookID:       id,
		VariantIndex: body.VariantIndex,
		Target:       body.Target,
	}))
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	writeResult(w, s.runner.Submit(r.Context(), command.Write{}))
}

func (s *Server) handleWriteAndQuit(w http.ResponseWriter, r *http.Request) {
	writeResult(w, s.runner.Submit(r.Context(), command.WriteAndQuit{}))
}

func (s *Server) handleQuit(w http.ResponseWriter, r *http.Request) {
	writeResult(w, s.runner.Submit(r.Context(), command.Quit{}))
}
