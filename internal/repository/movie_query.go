package repository

import "strings"

// orderColumns is the allow-list of sortable fields mapped to columns.
var orderColumns = map[string]string{
	"likes_counter":    "m.likes_counter",
	"hates_counter":    "m.hates_counter",
	"publication_date": "m.publication_date",
	"air_date":         "m.air_date",
}

// OrderField is one validated entry of an ordering clause.
type OrderField struct {
	Field string
	Desc  bool
}

// MovieListQuery defines filters, ordering & pagination for listing movies.
type MovieListQuery struct {
	Ordering []OrderField
	Search   []string // usernames, matched exactly and case-insensitively
	Limit    int
	Offset   int
}

// ParseOrdering parses a comma separated ordering parameter such as
// "-likes_counter,air_date". Unknown fields and duplicates are dropped.
func ParseOrdering(raw string) []OrderField {
	var out []OrderField
	seen := map[string]bool{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		desc := strings.HasPrefix(part, "-")
		name := strings.TrimPrefix(part, "-")
		if _, ok := orderColumns[name]; !ok || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, OrderField{Field: name, Desc: desc})
	}
	return out
}

// SearchTerms splits a search parameter on whitespace and commas.
func SearchTerms(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
}

// orderByClause renders q.Ordering as SQL. Insertion order breaks ties.
func orderByClause(fields []OrderField) string {
	parts := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		col, ok := orderColumns[f.Field]
		if !ok {
			continue
		}
		dir := "ASC"
		if f.Desc {
			dir = "DESC"
		}
		parts = append(parts, col+" "+dir)
	}
	parts = append(parts, "m.id ASC")
	return strings.Join(parts, ", ")
}
