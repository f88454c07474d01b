// Package ingest persists derived analysis records in bounded chunks with
// partial-failure tolerance: a bad row never discards its siblings, and no
// call ever raises for row-level problems.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const DefaultChunkSize = 1000

// DB is the subset of pgxpool.Pool the ingestion layer needs.
type DB interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Table binds a record type to its table, columns and value mapping.
type Table[T any] struct {
	Name    string
	Columns []string
	Values  func(T) []any
}

// RecordError identifies one record that could not be inserted.
type RecordError[T any] struct {
	Record T
	Err    error
}

// Result aggregates an Insert call across all chunks. Success is false as
// soon as any record failed; the caller decides whether partial success is
// acceptable for the owning job.
type Result[T any] struct {
	Inserted int
	Failed   int
	Errors   []RecordError[T]
}

func (r Result[T]) Success() bool { return r.Failed == 0 }

// Writer inserts records for one entity type.
type Writer[T any] struct {
	db        DB
	table     Table[T]
	chunkSize int
	insertSQL string
}

func NewWriter[T any](db DB, table Table[T], chunkSize int) *Writer[T] {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Writer[T]{
		db:        db,
		table:     table,
		chunkSize: chunkSize,
		insertSQL: buildInsertSQL(table.Name, table.Columns),
	}
}

// Insert splits records into chunks and bulk-inserts each chunk. A chunk
// whose bulk insert fails is retried row by row so only the offending rows
// are lost. Every record is accounted for in the returned Result.
func (w *Writer[T]) Insert(ctx context.Context, records []T) Result[T] {
	var res Result[T]

	for _, chunk := range chunks(records, w.chunkSize) {
		n, err := w.db.CopyFrom(ctx,
			pgx.Identifier{w.table.Name},
			w.table.Columns,
			pgx.CopyFromSlice(len(chunk), func(i int) ([]any, error) {
				return w.table.Values(chunk[i]), nil
			}),
		)
		if err == nil {
			res.Inserted += int(n)
			continue
		}

		// Bulk path is all-or-nothing; retry the chunk one row at a time.
		for _, rec := range chunk {
			if _, rowErr := w.db.Exec(ctx, w.insertSQL, w.table.Values(rec)...); rowErr != nil {
				res.Failed++
				res.Errors = append(res.Errors, RecordError[T]{Record: rec, Err: rowErr})
				continue
			}
			res.Inserted++
		}
	}

	return res
}

func chunks[T any](records []T, size int) [][]T {
	var out [][]T
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		out = append(out, records[start:end])
	}
	return out
}

func buildInsertSQL(table string, columns []string) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
	)
}
