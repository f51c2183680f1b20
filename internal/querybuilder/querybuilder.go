// Package querybuilder translates sort rules, match rules, and an optional
// anchor book into a parameterized SQL SELECT performing keyset pagination,
// per spec.md §4.4. It is a direct generalization of the Rust QueryBuilder
// in bookworm-database/src/paginator.rs: the same column-per-sub-select FROM
// clause, the same lhs/rhs placement trick for mixed-direction tuple
// comparisons, and the same ORDER BY inversion table.
package querybuilder

import (
	"fmt"
	"strings"

	"github.com/shelfmgr/libshelf/internal/record"
	"github.com/shelfmgr/libshelf/internal/search"
)

var asciiLower = [26]byte{
	'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h', 'i', 'j', 'k', 'l', 'm', 'n', 'o', 'p',
	'q', 'r', 's', 't', 'u', 'v', 'w', 'x', 'y', 'z',
}

// aliasNumToString mirrors alias_num_to_string: it renders alias as a
// base-16 string using asciiLower as digits (only a-p ever appear, since
// each nibble is masked to 0xF).
func aliasNumToString(alias uint32) string {
	var buf []byte
	for {
		buf = append(buf, asciiLower[alias&0xF])
		alias >>= 4
		if alias == 0 {
			break
		}
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

// sqlFrom accumulates the left-to-right chain of INNER JOINed sub-selects
// that make up the query's FROM clause.
type sqlFrom struct {
	body      strings.Builder
	lastAlias uint32
}

// selectColumn allocates a fresh alias and joins column's sub-select,
// returning (tableAlias, colAlias, bindValue, ok). ok is false for columns
// with no sortable sub-select recipe (Description, Series, MultiMap*,
// Variants, Tags, ExactTag — see readColumn).
func (f *sqlFrom) selectColumn(column record.ColumnIdentifier) (tableAlias, colAlias string, bind string, hasBind bool, ok bool) {
	alias := aliasNumToString(f.lastAlias)
	sel, bindVal, bindOK, recipeOK := readColumn(column, alias)
	if !recipeOK {
		return "", "", "", false, false
	}
	f.lastAlias++
	tableAlias = strings.ToUpper(alias) + "TABLE"
	if f.body.Len() == 0 {
		f.body.WriteString(sel)
		f.body.WriteString(fmt.Sprintf(" as %s ", tableAlias))
	} else {
		f.body.WriteString(fmt.Sprintf("INNER JOIN %s as %s ON %s.book_id = ATABLE.book_id ", sel, tableAlias, tableAlias))
	}
	return tableAlias, alias, bindVal, bindOK, true
}

func (f *sqlFrom) String() string {
	if f.body.Len() == 0 {
		return ""
	}
	return "FROM " + f.body.String()
}

// readColumn returns the sub-select recipe for column, aliasing its value
// column as id. Columns with no entry here are not sortable and contribute
// nothing to the FROM clause.
func readColumn(column record.ColumnIdentifier, id string) (sel string, bind string, hasBind bool, ok bool) {
	switch column.Kind() {
	case record.ColTitle:
		return fmt.Sprintf("(SELECT book_id, title as %s FROM books)", id), "", false, true
	case record.ColID:
		return fmt.Sprintf("(SELECT book_id, book_id as %s FROM books)", id), "", false, true
	case record.ColAuthor:
		return fmt.Sprintf(`(
	SELECT book_id, MIN(value) as %s
	FROM multimap_tags
	WHERE name='author'
	GROUP BY book_id
)`, id), "", false, true
	case record.ColNamedTag:
		return fmt.Sprintf(`(
	SELECT book_id, value as %s
	FROM named_tags
	WHERE name=?
	GROUP BY book_id
)`, id), column.NamedTagName(), true, true
	default:
		// Series, Description, MultiMap, MultiMapExact, Variants, Tags,
		// ExactTag: not sortable, contribute nothing.
		return "", "", false, false
	}
}

// Variable is one bound value in query-parameter order.
type Variable struct {
	Int *int64
	Str *string
}

func intVar(v int64) Variable  { return Variable{Int: &v} }
func strVar(v string) Variable { return Variable{Str: &v} }

// Args renders vars as a slice suitable for database/sql's variadic
// argument parameters.
func Args(vars []Variable) []any {
	out := make([]any, len(vars))
	for i, v := range vars {
		switch {
		case v.Int != nil:
			out[i] = *v.Int
		case v.Str != nil:
			out[i] = *v.Str
		}
	}
	return out
}

// rowCmp accumulates the (lhs-tuple, rhs-tuple) comparator built one column
// at a time; toWhere emits "(lhs...) cmp (rhs...)" only if at least one
// column contributed (i.e. the anchor had a value for at least one column).
type rowCmp struct {
	lhs []cmpTerm
	rhs []cmpTerm
	cmp string
}

type cmpTerm struct {
	expr string
	bind *Variable
}

func newRowCmp(cmp string) *rowCmp { return &rowCmp{cmp: cmp} }

// cmpColumn places book's value for column on whichever side of the tuple
// comparison direction "cmp" requires: on ">" the table column is the lhs
// (book value anchors the rhs), on "<" the placement is swapped. This
// single trick lets one tuple comparator express per-column direction
// mixes (see orderToCmp below).
func (r *rowCmp) cmpColumn(cmp string, book record.Book, column record.ColumnIdentifier, tableAlias, colAlias string) {
	var key Variable
	var ok bool
	if column.Kind() == record.ColID {
		if book.IsPlaceholder() {
			return
		}
		key, ok = intVar(book.ID), true
	} else {
		v, has := book.GetColumn(column)
		if !has {
			return
		}
		key, ok = strVar(v), true
	}
	if !ok {
		return
	}
	tableExpr := tableAlias + "." + colAlias
	if cmp == ">" {
		r.lhs = append(r.lhs, cmpTerm{expr: tableExpr})
		r.rhs = append(r.rhs, cmpTerm{expr: "?", bind: &key})
	} else {
		r.lhs = append(r.lhs, cmpTerm{expr: "?", bind: &key})
		r.rhs = append(r.rhs, cmpTerm{expr: tableExpr})
	}
}

func (r *rowCmp) toWhere(bindVars *[]Variable) (string, bool) {
	if len(r.lhs) == 0 {
		return "", false
	}
	lhsParts := make([]string, len(r.lhs))
	for i, t := range r.lhs {
		lhsParts[i] = t.expr
		if t.bind != nil {
			*bindVars = append(*bindVars, *t.bind)
		}
	}
	rhsParts := make([]string, len(r.rhs))
	for i, t := range r.rhs {
		rhsParts[i] = t.expr
		if t.bind != nil {
			*bindVars = append(*bindVars, *t.bind)
		}
	}
	return fmt.Sprintf("(%s) %s (%s)", strings.Join(lhsParts, ", "), r.cmp, strings.Join(rhsParts, ", ")), true
}

// orderToCmp is the comparator-direction table from spec.md §4.4.
func orderToCmp(colOrder, primary record.Order) string {
	switch {
	case colOrder == record.Ascending && primary == record.Ascending:
		return "<"
	case colOrder == record.Ascending && primary == record.Descending:
		return ">"
	case colOrder == record.Descending && primary == record.Ascending:
		return ">"
	default:
		return "<"
	}
}

// orderRepr is the ORDER BY inversion table from spec.md §4.4.
func orderRepr(colOrder, primary record.Order) string {
	switch {
	case colOrder == record.Ascending && primary == record.Ascending:
		return "DESC"
	case colOrder == record.Ascending && primary == record.Descending:
		return "ASC"
	case colOrder == record.Descending && primary == record.Ascending:
		return "ASC"
	default:
		return "DESC"
	}
}

// Builder assembles keyset-pagination queries. The zero value is not
// usable; construct with New.
type Builder struct {
	order       record.Order
	cmpRules    []record.SortRule
	sort        bool
	idInclusive bool
	limit       *int64
}

// New builds a Builder with cmpRules (ID-tiebreaker-augmented), paginating
// in direction order.
func New(cmpRules []record.SortRule, order record.Order) Builder {
	return Builder{
		order:    order,
		cmpRules: record.WithIDTiebreaker(cmpRules),
	}
}

func (b Builder) Sort(sort bool) Builder     { b.sort = sort; return b }
func (b Builder) IDInclusive(v bool) Builder { b.idInclusive = v; return b }
func (b Builder) Limit(n int64) Builder      { b.limit = &n; return b }

func addMatchRules(from *sqlFrom, whereStr *string, bindVars *[]Variable, searches []search.Search) {
	for _, s := range searches {
		frag, ok := s.SQLFragment()
		if !ok {
			continue
		}
		tableAlias, colAlias, bind, hasBind, joined := from.selectColumn(s.Column())
		if !joined {
			continue
		}
		if hasBind {
			*bindVars = append(*bindVars, strVar(bind))
		}
		if *whereStr != "" {
			*whereStr += " AND "
		}
		*whereStr += fmt.Sprintf(" %s.%s %s", tableAlias, colAlias, frag.Predicate)
		*bindVars = append(*bindVars, strVar(frag.Value))
	}
}

// JoinCols returns a query (and its bound arguments) selecting book ids
// after anchor (strictly, unless IDInclusive is set; from the start, if
// anchor is nil) in the total
// order defined by b's cmp rules, restricted to searches, ordered (if
// b.sort) and limited (if b.limit is set).
func (b Builder) JoinCols(anchor *record.Book, searches []search.Search) (string, []any) {
	var from sqlFrom
	var orderStr strings.Builder
	var bindVars []Variable

	cmpOp := ">"
	if b.idInclusive {
		cmpOp = ">="
	}
	rc := newRowCmp(cmpOp)

	for _, rule := range b.cmpRules {
		tableAlias, colAlias, bind, hasBind, ok := from.selectColumn(rule.Column)
		if !ok {
			continue
		}
		if hasBind {
			bindVars = append(bindVars, strVar(bind))
		}
		cmp := orderToCmp(rule.Order, b.order)
		if anchor != nil {
			rc.cmpColumn(cmp, *anchor, rule.Column, tableAlias, colAlias)
		}
		if b.sort {
			orderStr.WriteString(fmt.Sprintf("%s %s, ", colAlias, orderRepr(rule.Order, b.order)))
		}
	}

	whereStr, _ := rc.toWhere(&bindVars)
	addMatchRules(&from, &whereStr, &bindVars, searches)
	if whereStr != "" {
		whereStr = "WHERE (" + whereStr + ")"
	}

	order := strings.TrimSuffix(orderStr.String(), ", ")
	if order != "" {
		order = "ORDER BY " + order
	}

	query := fmt.Sprintf("SELECT ATABLE.book_id %s %s %s", from.String(), whereStr, order)
	if b.limit != nil {
		query += " LIMIT ?;"
		bindVars = append(bindVars, intVar(*b.limit))
	} else {
		query += ";"
	}
	return query, Args(bindVars)
}

// BetweenBooks returns a query selecting book ids between start and end
// inclusive, in the total order defined by b's cmp rules, restricted to
// searches. Used to resolve a Range selection into a concrete id list.
func (b Builder) BetweenBooks(start, end record.Book, searches []search.Search) (string, []any) {
	var from sqlFrom
	var orderStr strings.Builder
	var bindVars []Variable

	cmpOp := ">"
	if b.idInclusive {
		cmpOp = ">="
	}
	rcStart := newRowCmp(cmpOp)
	rcEnd := newRowCmp(cmpOp)

	opOrder := record.Descending
	if b.order == record.Descending {
		opOrder = record.Ascending
	}

	for _, rule := range b.cmpRules {
		tableAlias, colAlias, bind, hasBind, ok := from.selectColumn(rule.Column)
		if !ok {
			continue
		}
		if hasBind {
			bindVars = append(bindVars, strVar(bind))
		}
		startCmp := orderToCmp(rule.Order, b.order)
		rcStart.cmpColumn(startCmp, start, rule.Column, tableAlias, colAlias)
		endCmp := orderToCmp(rule.Order, opOrder)
		rcEnd.cmpColumn(endCmp, end, rule.Column, tableAlias, colAlias)

		if b.sort {
			orderStr.WriteString(fmt.Sprintf("%s %s, ", colAlias, orderRepr(rule.Order, b.order)))
		}
	}

	startWhere, startOK := rcStart.toWhere(&bindVars)
	endWhere, endOK := rcEnd.toWhere(&bindVars)
	var whereStr string
	if startOK && endOK {
		whereStr = startWhere + " AND " + endWhere
	}

	addMatchRules(&from, &whereStr, &bindVars, searches)
	if whereStr != "" {
		whereStr = "WHERE (" + whereStr + ")"
	}

	order := strings.TrimSuffix(orderStr.String(), ", ")
	if order != "" {
		order = "ORDER BY " + order
	}

	query := fmt.Sprintf("SELECT ATABLE.book_id %s %s %s", from.String(), whereStr, order)
	if b.limit != nil {
		query += " LIMIT ?;"
		bindVars = append(bindVars, intVar(*b.limit))
	} else {
		query += ";"
	}
	return query, Args(bindVars)
}
