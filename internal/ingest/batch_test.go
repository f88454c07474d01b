package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"wastewise-service/internal/entity"
	"wastewise-service/internal/ingest"
)

// fakeDB implements ingest.DB in memory. Rows whose description matches
// badDescription are rejected, both on the bulk path (failing the whole
// chunk, like CopyFrom) and on the row-by-row fallback.
type fakeDB struct {
	badDescription string

	bulkAttempts int
	execAttempts int
	rows         [][]any
}

var errUniqueViolation = errors.New(`duplicate key value violates unique constraint`)

func (db *fakeDB) CopyFrom(ctx context.Context, _ pgx.Identifier, _ []string, src pgx.CopyFromSource) (int64, error) {
	db.bulkAttempts++

	var pending [][]any
	for src.Next() {
		values, err := src.Values()
		if err != nil {
			return 0, err
		}
		if db.isBad(values) {
			// Bulk insert is atomic: nothing from this chunk lands.
			return 0, errUniqueViolation
		}
		pending = append(pending, values)
	}
	db.rows = append(db.rows, pending...)
	return int64(len(pending)), nil
}

func (db *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.execAttempts++
	if db.isBad(args) {
		return pgconn.CommandTag{}, errUniqueViolation
	}
	db.rows = append(db.rows, args)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (db *fakeDB) isBad(values []any) bool {
	if db.badDescription == "" {
		return false
	}
	for _, v := range values {
		if s, ok := v.(string); ok && s == db.badDescription {
			return true
		}
	}
	return false
}

func lineItem(desc string) entity.InvoiceLineItem {
	return entity.InvoiceLineItem{
		ID:          uuid.New(),
		ProjectID:   uuid.New(),
		ServiceDate: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		Description: desc,
		Category:    entity.CategoryBase,
		AmountCents: 125000,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestInsert_AllGood(t *testing.T) {
	db := &fakeDB{}
	w := ingest.NewWriter(db, ingest.InvoiceLineItems, 1000)

	records := make([]entity.InvoiceLineItem, 10)
	for i := range records {
		records[i] = lineItem(fmt.Sprintf("line %d", i))
	}

	res := w.Insert(context.Background(), records)

	if !res.Success() {
		t.Fatalf("expected success, got %d failures", res.Failed)
	}
	if res.Inserted != 10 || res.Failed != 0 {
		t.Fatalf("expected 10/0, got %d/%d", res.Inserted, res.Failed)
	}
	if db.bulkAttempts != 1 {
		t.Fatalf("expected 1 bulk attempt, got %d", db.bulkAttempts)
	}
	if db.execAttempts != 0 {
		t.Fatalf("expected no row-by-row fallback, got %d execs", db.execAttempts)
	}
}

func TestInsert_ChunksOf1000(t *testing.T) {
	db := &fakeDB{}
	w := ingest.NewWriter(db, ingest.InvoiceLineItems, 1000)

	records := make([]entity.InvoiceLineItem, 1200)
	for i := range records {
		records[i] = lineItem(fmt.Sprintf("line %d", i))
	}

	res := w.Insert(context.Background(), records)

	if res.Inserted != 1200 {
		t.Fatalf("expected 1200 inserted, got %d", res.Inserted)
	}
	if db.bulkAttempts != 2 {
		t.Fatalf("expected 2 chunk-level attempts, got %d", db.bulkAttempts)
	}
	if len(db.rows) != 1200 {
		t.Fatalf("expected 1200 rows present, got %d", len(db.rows))
	}
}

func TestInsert_OneBadRecordSparesSiblings(t *testing.T) {
	db := &fakeDB{badDescription: "duplicate line"}
	w := ingest.NewWriter(db, ingest.InvoiceLineItems, 1000)

	const k = 25
	records := make([]entity.InvoiceLineItem, k)
	for i := range records {
		records[i] = lineItem(fmt.Sprintf("line %d", i))
	}
	records[7] = lineItem("duplicate line")

	res := w.Insert(context.Background(), records)

	if res.Success() {
		t.Fatal("expected success=false with one failing record")
	}
	if res.Inserted != k-1 {
		t.Fatalf("expected %d inserted, got %d", k-1, res.Inserted)
	}
	if res.Failed != 1 {
		t.Fatalf("expected 1 failed, got %d", res.Failed)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("expected 1 error entry, got %d", len(res.Errors))
	}
	if res.Errors[0].Record.Description != "duplicate line" {
		t.Fatalf("failing record not identifiable: %q", res.Errors[0].Record.Description)
	}
	if !errors.Is(res.Errors[0].Err, errUniqueViolation) {
		t.Fatalf("expected the constraint error, got %v", res.Errors[0].Err)
	}
	if len(db.rows) != k-1 {
		t.Fatalf("expected %d rows present, got %d", k-1, len(db.rows))
	}
}

func TestInsert_BadChunkDoesNotAffectOtherChunks(t *testing.T) {
	db := &fakeDB{badDescription: "poison"}
	w := ingest.NewWriter(db, ingest.InvoiceLineItems, 10)

	records := make([]entity.InvoiceLineItem, 30)
	for i := range records {
		records[i] = lineItem(fmt.Sprintf("line %d", i))
	}
	records[15] = lineItem("poison") // second chunk only

	res := w.Insert(context.Background(), records)

	if res.Inserted != 29 || res.Failed != 1 {
		t.Fatalf("expected 29/1, got %d/%d", res.Inserted, res.Failed)
	}
	if db.bulkAttempts != 3 {
		t.Fatalf("expected 3 bulk attempts, got %d", db.bulkAttempts)
	}
	// Only the poisoned chunk falls back to row-by-row.
	if db.execAttempts != 10 {
		t.Fatalf("expected 10 fallback execs, got %d", db.execAttempts)
	}
}

func TestInsert_Empty(t *testing.T) {
	db := &fakeDB{}
	w := ingest.NewWriter(db, ingest.InvoiceLineItems, 0)

	res := w.Insert(context.Background(), nil)

	if !res.Success() || res.Inserted != 0 {
		t.Fatalf("expected empty success, got %+v", res)
	}
	if db.bulkAttempts != 0 {
		t.Fatalf("expected no attempts, got %d", db.bulkAttempts)
	}
}
