package store

import (
	"database/sql"
	"strings"
)

// Row is one result row. A nil cell is SQL NULL, distinct from "".
type Row []*string

// RowSet is a fully materialised, header-aware result. Rows is never nil.
type RowSet struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// EmptyRowSet is what reads hand back when they fail.
func EmptyRowSet() RowSet {
	return RowSet{Columns: []string{}, Rows: []Row{}}
}

func (rs RowSet) Len() int {
	return len(rs.Rows)
}

// Column returns the index of the named column (case-insensitive) or -1.
func (rs RowSet) Column(name string) int {
	for i, c := range rs.Columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// Strings renders the rows as a plain string table with NULL shown as null.
func (rs RowSet) Strings(null string) [][]string {
	out := make([][]string, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		line := make([]string, len(row))
		for i, cell := range row {
			if cell == nil {
				line[i] = null
			} else {
				line[i] = *cell
			}
		}
		out = append(out, line)
	}
	return out
}

// Cell returns the value at row i, column j and whether it is non-NULL.
func (rs RowSet) Cell(i, j int) (string, bool) {
	if i < 0 || i >= len(rs.Rows) || j < 0 || j >= len(rs.Rows[i]) {
		return "", false
	}
	if cell := rs.Rows[i][j]; cell != nil {
		return *cell, true
	}
	return "", false
}

func materialise(rows *sql.Rows) (RowSet, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return EmptyRowSet(), err
	}

	rs := RowSet{Columns: columns, Rows: []Row{}}
	for rows.Next() {
		values := make([]sql.NullString, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return EmptyRowSet(), err
		}

		row := make(Row, len(columns))
		for i, v := range values {
			if v.Valid {
				s := v.String
				row[i] = &s
			}
		}
		rs.Rows = append(rs.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return EmptyRowSet(), err
	}
	return rs, nil
}
