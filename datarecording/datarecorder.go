// Package datarecording stores simulation records in an SQLite database. A
// table holds rows of one flat struct type; the exported field names of the
// struct are the columns. A Reader queries the tables back.
package datarecording

import (
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"os"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/fatih/structs"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"github.com/tebeka/atexit"
)

// ErrUnsupportedRow is returned for row types that do not map onto columns.
var ErrUnsupportedRow = errors.New("row type cannot be recorded")

// DataRecorder buffers rows and writes them to the recording in batches.
type DataRecorder interface {
	// CreateTable creates a table whose columns are the fields of sampleEntry.
	CreateTable(tableName string, sampleEntry any)

	// InsertData buffers a row for a table that already exists.
	InsertData(tableName string, entry any)

	// ListTables returns the names of all tables, sorted.
	ListTables() []string

	// Flush writes all the buffered rows into the database.
	Flush()

	// Close flushes and closes the database.
	Close() error
}

const defaultBatchSize = 100000

// New creates a DataRecorder that writes to path.sqlite3. An empty path picks
// a unique name and an existing file makes New panic. Pending rows are flushed
// when the program exits through atexit.
func New(path string) DataRecorder {
	if path == "" {
		path = "pagesim_recording_" + xid.New().String()
	}

	filename := path + ".sqlite3"
	if _, err := os.Stat(filename); err == nil {
		panic(fmt.Errorf("recording %s already exists", filename))
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		panic(err)
	}

	logrus.WithField("path", filename).Info("recording database created")

	return NewWithDB(db)
}

// NewWithDB creates a DataRecorder on an open database.
func NewWithDB(db *sql.DB) DataRecorder {
	r := &recorder{
		db:        db,
		batchSize: defaultBatchSize,
		tables:    make(map[string]*rowBuffer),
	}

	atexit.Register(r.Flush)

	return r
}

// rowBuffer holds the pending rows of one table as column values.
type rowBuffer struct {
	rowType reflect.Type
	insert  string
	rows    [][]any
}

type recorder struct {
	sync.Mutex

	db        *sql.DB
	tables    map[string]*rowBuffer
	batchSize int
	pending   int
	closed    bool
}

var scalarKinds = map[reflect.Kind]bool{
	reflect.Bool:    true,
	reflect.Int:     true,
	reflect.Int8:    true,
	reflect.Int16:   true,
	reflect.Int32:   true,
	reflect.Int64:   true,
	reflect.Uint:    true,
	reflect.Uint8:   true,
	reflect.Uint16:  true,
	reflect.Uint32:  true,
	reflect.Uint64:  true,
	reflect.Float32: true,
	reflect.Float64: true,
	reflect.String:  true,
}

// columns returns the column names of a row type. Every field must be an
// exported scalar.
func columns(sample any) ([]string, error) {
	t := reflect.TypeOf(sample)
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %T is not a struct", ErrUnsupportedRow,
			sample)
	}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || !scalarKinds[f.Type.Kind()] {
			return nil, fmt.Errorf("%w: field %s of %s", ErrUnsupportedRow,
				f.Name, t.Name())
		}
	}

	return structs.Names(sample), nil
}

func (r *recorder) CreateTable(tableName string, sampleEntry any) {
	r.Lock()
	defer r.Unlock()

	cols, err := columns(sampleEntry)
	if err != nil {
		panic(err)
	}

	colList := strings.Join(cols, ", ")
	r.mustExecute(fmt.Sprintf("CREATE TABLE %s (%s)", tableName, colList))

	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	r.tables[tableName] = &rowBuffer{
		rowType: reflect.TypeOf(sampleEntry),
		insert: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			tableName, colList, marks),
	}
}

func (r *recorder) InsertData(tableName string, entry any) {
	r.Lock()
	defer r.Unlock()

	buf, ok := r.tables[tableName]
	if !ok {
		panic(fmt.Sprintf("table %s does not exist", tableName))
	}

	if reflect.TypeOf(entry) != buf.rowType {
		panic(fmt.Sprintf("entry of type %T does not fit table %s",
			entry, tableName))
	}

	buf.rows = append(buf.rows, structs.Values(entry))

	r.pending++
	if r.pending >= r.batchSize {
		r.flush()
	}
}

func (r *recorder) ListTables() []string {
	r.Lock()
	defer r.Unlock()

	return slices.Sorted(maps.Keys(r.tables))
}

func (r *recorder) Flush() {
	r.Lock()
	defer r.Unlock()

	r.flush()
}

// flush writes the pending rows of every table in one transaction.
func (r *recorder) flush() {
	if r.pending == 0 || r.closed {
		return
	}

	tx, err := r.db.Begin()
	if err != nil {
		panic(err)
	}

	for _, name := range slices.Sorted(maps.Keys(r.tables)) {
		buf := r.tables[name]

		err = insertRows(tx, buf)
		if err != nil {
			_ = tx.Rollback()
			logrus.WithError(err).WithField("table", name).
				Error("failed to write rows")
			panic(err)
		}

		buf.rows = nil
	}

	if err = tx.Commit(); err != nil {
		panic(err)
	}

	r.pending = 0
}

func insertRows(tx *sql.Tx, buf *rowBuffer) error {
	if len(buf.rows) == 0 {
		return nil
	}

	stmt, err := tx.Prepare(buf.insert)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range buf.rows {
		if _, err := stmt.Exec(row...); err != nil {
			return err
		}
	}

	return nil
}

func (r *recorder) Close() error {
	r.Lock()
	defer r.Unlock()

	if r.closed {
		return nil
	}

	r.flush()
	r.closed = true

	return r.db.Close()
}

func (r *recorder) mustExecute(query string) {
	if _, err := r.db.Exec(query); err != nil {
		logrus.WithError(err).Errorf("failed to execute: %s", query)
		panic(err)
	}
}
