package datarecording

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"os"
	"reflect"
	"slices"
	"strings"
)

// ErrUnknownColumn is returned when a selection names a column the row type
// does not have.
var ErrUnknownColumn = errors.New("unknown column")

// A Selection narrows the rows of a table. The zero value selects every row
// in insertion order.
type Selection struct {
	// Match maps columns to the values they must equal.
	Match map[string]any

	// OrderBy names the column to sort by. A leading "-" sorts descending.
	OrderBy string

	// Limit caps the number of rows; 0 means all.
	Limit int
}

func (s Selection) where() (string, []any) {
	if len(s.Match) == 0 {
		return "", nil
	}

	cols := slices.Sorted(maps.Keys(s.Match))
	conds := make([]string, len(cols))
	args := make([]any, len(cols))

	for i, c := range cols {
		conds[i] = c + " = ?"
		args[i] = s.Match[c]
	}

	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s Selection) order() string {
	switch {
	case s.OrderBy == "":
		return " ORDER BY rowid"
	case strings.HasPrefix(s.OrderBy, "-"):
		return " ORDER BY " + s.OrderBy[1:] + " DESC"
	default:
		return " ORDER BY " + s.OrderBy
	}
}

func (s Selection) columnsMustExist(cols []string) error {
	names := slices.Collect(maps.Keys(s.Match))
	if s.OrderBy != "" {
		names = append(names, strings.TrimPrefix(s.OrderBy, "-"))
	}

	for _, n := range names {
		if !slices.Contains(cols, n) {
			return fmt.Errorf("%w: %s", ErrUnknownColumn, n)
		}
	}

	return nil
}

// A Reader queries a recording written by a DataRecorder.
type Reader struct {
	db *sql.DB
}

// OpenReader opens an existing recording file.
func OpenReader(filename string) (*Reader, error) {
	if _, err := os.Stat(filename); err != nil {
		return nil, fmt.Errorf("opening recording: %w", err)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, err
	}

	return &Reader{db: db}, nil
}

// Close closes the database.
func (r *Reader) Close() error {
	return r.db.Close()
}

// Tables returns the names of the tables in the recording, sorted.
func (r *Reader) Tables(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}

		tables = append(tables, name)
	}

	return tables, rows.Err()
}

// Count returns the number of rows of the table that match the selection.
// The order and the limit of the selection are ignored.
func (r *Reader) Count(ctx context.Context, table string, sel Selection) (
	int, error,
) {
	where, args := sel.where()

	var n int

	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+table+where, args...).Scan(&n)

	return n, err
}

// Select returns the rows of the table that match the selection, decoded
// into T column by column. T must be the flat struct the table was created
// with.
func Select[T any](
	ctx context.Context,
	r *Reader,
	table string,
	sel Selection,
) ([]T, error) {
	var sample T

	cols, err := columns(sample)
	if err != nil {
		return nil, err
	}

	if err = sel.columnsMustExist(cols); err != nil {
		return nil, err
	}

	where, args := sel.where()
	query := "SELECT " + strings.Join(cols, ", ") + " FROM " + table +
		where + sel.order()

	if sel.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", sel.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []T

	for rows.Next() {
		var row T

		v := reflect.ValueOf(&row).Elem()
		targets := make([]any, len(cols))

		for i := range cols {
			targets[i] = v.Field(i).Addr().Interface()
		}

		if err := rows.Scan(targets...); err != nil {
			return result, err
		}

		result = append(result, row)
	}

	return result, rows.Err()
}
