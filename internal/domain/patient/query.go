package patient

import (
	"fmt"
	"strings"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.TrimSpace(s)) + "%"
}

// searchQuery accumulates ANDed WHERE clauses with positional arguments.
type searchQuery struct {
	cols    string
	where   string
	args    []interface{}
	idx     int
	orderBy string
}

func newSearchQuery(cols string) *searchQuery {
	return &searchQuery{cols: cols, idx: 1}
}

func (q *searchQuery) add(clause string, args ...interface{}) {
	q.where += " AND " + clause
	q.args = append(q.args, args...)
	q.idx += len(args)
}

// addContains matches s as a case-insensitive substring of any of cols.
func (q *searchQuery) addContains(s string, cols ...string) {
	if strings.TrimSpace(s) == "" {
		return
	}
	ors := make([]string, len(cols))
	for i, c := range cols {
		ors[i] = fmt.Sprintf("%s ILIKE $%d", c, q.idx)
	}
	q.add("("+strings.Join(ors, " OR ")+")", containsPattern(s))
}

func (q *searchQuery) addEquals(col, v string) {
	if v == "" {
		return
	}
	q.add(fmt.Sprintf("%s = $%d", col, q.idx), v)
}

func (q *searchQuery) apply(f SearchFilter) {
	q.addContains(f.Query, "first_name", "last_name", "email", "medical_record_number")
	q.addContains(f.Name, "first_name", "last_name")
	q.addContains(f.FirstName, "first_name")
	q.addContains(f.LastName, "last_name")
	if e := strings.TrimSpace(f.Email); e != "" {
		q.add(fmt.Sprintf("LOWER(email) = $%d", q.idx), strings.ToLower(e))
	}
	q.addEquals("medical_record_number", strings.TrimSpace(f.MRN))
	q.addEquals("status", string(f.Status))
}

func (q *searchQuery) countSQL() string {
	return "SELECT COUNT(*) FROM patient WHERE 1=1" + q.where
}

func (q *searchQuery) dataSQL() string {
	sql := fmt.Sprintf("SELECT %s FROM patient WHERE 1=1%s", q.cols, q.where)
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	return sql + fmt.Sprintf(" LIMIT $%d OFFSET $%d", q.idx, q.idx+1)
}

func (q *searchQuery) dataArgs(limit, offset int) []interface{} {
	out := make([]interface{}, len(q.args), len(q.args)+2)
	copy(out, q.args)
	return append(out, limit, offset)
}
