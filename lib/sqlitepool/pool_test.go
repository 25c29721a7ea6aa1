// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/ocaravaca73/RIMP/lib/sqlitepool"
)

// recordSchema mirrors the shape the record store creates: a kind
// column for filtering and a timestamp for range scans.
const recordSchema = `
	CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY,
		kind TEXT NOT NULL,
		recorded_at INTEGER NOT NULL
	);
`

func TestOpenAppliesPragmas(t *testing.T) {
	t.Parallel()

	pool := openTestPool(t, nil)

	conn, err := pool.Take(t.Context())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)

	if got := pragmaText(t, conn, "journal_mode"); got != "wal" {
		t.Errorf("journal_mode = %q, want %q", got, "wal")
	}
	if got := pragmaInt(t, conn, "synchronous"); got != 1 {
		t.Errorf("synchronous = %d, want 1 (NORMAL)", got)
	}
	if got := pragmaInt(t, conn, "busy_timeout"); got != 5000 {
		t.Errorf("busy_timeout = %d, want 5000", got)
	}
}

func TestOnConnectCreatesSchema(t *testing.T) {
	t.Parallel()

	var calls int
	pool := openTestPool(t, func(conn *sqlite.Conn) error {
		calls++
		return sqlitex.ExecuteScript(conn, recordSchema, nil)
	})

	conn, err := pool.Take(t.Context())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)

	if calls == 0 {
		t.Error("OnConnect was not called")
	}

	// The hook ran on every connection, so the table must exist on
	// whichever one we were handed.
	err = sqlitex.Execute(conn, "INSERT INTO records (kind, recorded_at) VALUES (?, ?)", &sqlitex.ExecOptions{
		Args: []any{"event", 1700000000},
	})
	if err != nil {
		t.Fatalf("INSERT: %v", err)
	}
}

func TestConcurrentReaders(t *testing.T) {
	t.Parallel()

	pool := openTestPool(t, func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteScript(conn, recordSchema, nil)
	})

	conn, err := pool.Take(t.Context())
	if err != nil {
		t.Fatalf("Take for setup: %v", err)
	}
	err = sqlitex.ExecuteScript(conn, `
		INSERT INTO records (kind, recorded_at) VALUES
			('event', 1), ('event', 2), ('metric', 3), ('event', 4), ('trace', 5);
	`, nil)
	if err != nil {
		t.Fatalf("INSERT: %v", err)
	}
	pool.Put(conn)

	const readerCount = 8
	var waitGroup sync.WaitGroup
	errs := make(chan error, readerCount)

	for range readerCount {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()

			conn, err := pool.Take(t.Context())
			if err != nil {
				errs <- err
				return
			}
			defer pool.Put(conn)

			var events int
			err = sqlitex.Execute(conn, "SELECT COUNT(*) FROM records WHERE kind = 'event'", &sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					events = stmt.ColumnInt(0)
					return nil
				},
			})
			if err != nil {
				errs <- err
				return
			}
			if events != 3 {
				errs <- fmt.Errorf("event count = %d, want 3", events)
			}
		}()
	}

	waitGroup.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

// TestReaderSeesCommittedRowsDuringWrite exercises the WAL property
// the pipeline depends on: a query connection keeps reading committed
// rows while another connection holds an open write transaction.
func TestReaderSeesCommittedRowsDuringWrite(t *testing.T) {
	t.Parallel()

	pool := openTestPool(t, func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteScript(conn, recordSchema, nil)
	})

	writer, err := pool.Take(t.Context())
	if err != nil {
		t.Fatalf("Take writer: %v", err)
	}
	defer pool.Put(writer)

	err = sqlitex.Execute(writer, "INSERT INTO records (kind, recorded_at) VALUES ('event', 1)", nil)
	if err != nil {
		t.Fatalf("seed INSERT: %v", err)
	}

	// Open a write transaction and leave a row uncommitted.
	endTx, err := sqlitex.ImmediateTransaction(writer)
	if err != nil {
		t.Fatalf("ImmediateTransaction: %v", err)
	}
	err = sqlitex.Execute(writer, "INSERT INTO records (kind, recorded_at) VALUES ('metric', 2)", nil)
	if err != nil {
		t.Fatalf("INSERT in transaction: %v", err)
	}

	reader, err := pool.Take(t.Context())
	if err != nil {
		t.Fatalf("Take reader: %v", err)
	}

	var count int
	err = sqlitex.Execute(reader, "SELECT COUNT(*) FROM records", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt(0)
			return nil
		},
	})
	pool.Put(reader)
	if err != nil {
		t.Fatalf("SELECT during write transaction: %v", err)
	}
	if count != 1 {
		t.Errorf("count during open transaction = %d, want 1 (uncommitted row invisible)", count)
	}

	commitErr := error(nil)
	endTx(&commitErr)
	if commitErr != nil {
		t.Fatalf("commit: %v", commitErr)
	}

	reader, err = pool.Take(t.Context())
	if err != nil {
		t.Fatalf("Take reader after commit: %v", err)
	}
	defer pool.Put(reader)

	err = sqlitex.Execute(reader, "SELECT COUNT(*) FROM records", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("SELECT after commit: %v", err)
	}
	if count != 2 {
		t.Errorf("count after commit = %d, want 2", count)
	}
}

func TestEmptyPathRejected(t *testing.T) {
	t.Parallel()

	_, err := sqlitepool.Open(sqlitepool.Config{})
	if err == nil {
		t.Fatal("expected error for empty Path")
	}
}

func TestTakeHonorsCancelledContext(t *testing.T) {
	t.Parallel()

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     filepath.Join(t.TempDir(), "cancel.db"),
		PoolSize: 1,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()

	conn, err := pool.Take(t.Context())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}

	// The only connection is checked out, so a Take with a cancelled
	// context must fail instead of blocking forever.
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if _, err := pool.Take(ctx); err == nil {
		t.Fatal("expected error from cancelled context")
	}

	pool.Put(conn)
}

// openTestPool creates a pool backed by a temporary database file.
// The pool is closed automatically when the test completes.
func openTestPool(t *testing.T, onConnect func(*sqlite.Conn) error) *sqlitepool.Pool {
	t.Helper()

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:      filepath.Join(t.TempDir(), "records.db"),
		PoolSize:  4,
		OnConnect: onConnect,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := pool.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return pool
}

func pragmaText(t *testing.T, conn *sqlite.Conn, name string) string {
	t.Helper()

	var value string
	err := sqlitex.Execute(conn, "PRAGMA "+name, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("PRAGMA %s: %v", name, err)
	}
	return value
}

func pragmaInt(t *testing.T, conn *sqlite.Conn, name string) int {
	t.Helper()

	var value int
	err := sqlitex.Execute(conn, "PRAGMA "+name, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("PRAGMA %s: %v", name, err)
	}
	return value
}
