// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/ocaravaca73/RIMP/lib/sqlitepool"
	"github.com/ocaravaca73/RIMP/sink"
	"github.com/ocaravaca73/RIMP/telemetry"
)

const schema = `
	CREATE TABLE IF NOT EXISTS events (
		id              TEXT PRIMARY KEY,
		time_unix_nanos INTEGER NOT NULL,
		source          TEXT NOT NULL,
		message         TEXT NOT NULL,
		severity        TEXT NOT NULL,
		tags            TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_events_time ON events(time_unix_nanos);

	CREATE TABLE IF NOT EXISTS metrics (
		id              TEXT PRIMARY KEY,
		time_unix_nanos INTEGER NOT NULL,
		name            TEXT NOT NULL,
		value           REAL NOT NULL,
		kind            TEXT NOT NULL,
		unit            TEXT,
		tags            TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_metrics_time ON metrics(time_unix_nanos);

	CREATE TABLE IF NOT EXISTS spans (
		id              TEXT PRIMARY KEY,
		time_unix_nanos INTEGER NOT NULL,
		trace_id        TEXT NOT NULL,
		span_id         TEXT NOT NULL,
		parent_span_id  TEXT,
		operation       TEXT NOT NULL,
		duration_nanos  INTEGER NOT NULL,
		tags            TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_spans_time ON spans(time_unix_nanos);
	CREATE INDEX IF NOT EXISTS idx_spans_trace ON spans(trace_id);
`

// Config holds the parameters for opening a record store.
type Config struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist. Required.
	Path string

	// PoolSize is the number of connections in the pool. Defaults
	// to 4 if zero or negative.
	PoolSize int

	// Logger receives operational messages. Required.
	Logger *slog.Logger
}

// Store is a sink.Storage backed by SQLite.
type Store struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// Open opens (creating if needed) the database at config.Path and
// applies the schema.
func Open(ctx context.Context, config Config) (*Store, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("record store: Path is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("record store: Logger is required")
	}
	poolSize := config.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     config.Path,
		PoolSize: poolSize,
		Logger:   config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("record store: %w", err)
	}

	store := &Store{pool: pool, logger: config.Logger}
	if err := store.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("record store: applying schema: %w", err)
	}
	return store, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)
	return sqlitex.ExecuteScript(conn, schema, nil)
}

// Close closes the underlying connection pool. Blocks until all
// borrowed connections are returned.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Name implements sink.Sink.
func (s *Store) Name() string { return "sqlite" }

// Deliver implements sink.Sink. The whole batch commits in one
// immediate transaction; any insert failure rolls the batch back.
func (s *Store) Deliver(ctx context.Context, batch telemetry.Batch) (err error) {
	if len(batch) == 0 {
		return nil
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("record store: deliver: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("record store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	for _, record := range batch {
		switch typed := record.(type) {
		case *telemetry.Event:
			err = s.insertEvent(conn, typed)
		case *telemetry.Metric:
			err = s.insertMetric(conn, typed)
		case *telemetry.Span:
			err = s.insertSpan(conn, typed)
		default:
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertEvent(conn *sqlite.Conn, event *telemetry.Event) error {
	severity, err := event.Severity.MarshalText()
	if err != nil {
		return fmt.Errorf("record store: encode severity: %w", err)
	}
	tags, err := tagsColumn(event.Tags)
	if err != nil {
		return fmt.Errorf("record store: marshal event tags: %w", err)
	}
	return sqlitex.Execute(conn, `INSERT OR REPLACE INTO events
		(id, time_unix_nanos, source, message, severity, tags)
		VALUES (?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			event.ID.String(),
			event.Time.UnixNano(),
			event.Source,
			event.Message,
			string(severity),
			tags,
		},
	})
}

func (s *Store) insertMetric(conn *sqlite.Conn, metric *telemetry.Metric) error {
	kind, err := metric.Kind.MarshalText()
	if err != nil {
		return fmt.Errorf("record store: encode metric kind: %w", err)
	}
	tags, err := tagsColumn(metric.Tags)
	if err != nil {
		return fmt.Errorf("record store: marshal metric tags: %w", err)
	}
	var unit any
	if metric.Unit != "" {
		unit = metric.Unit
	}
	return sqlitex.Execute(conn, `INSERT OR REPLACE INTO metrics
		(id, time_unix_nanos, name, value, kind, unit, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			metric.ID.String(),
			metric.Time.UnixNano(),
			metric.Name,
			metric.Value,
			string(kind),
			unit,
			tags,
		},
	})
}

func (s *Store) insertSpan(conn *sqlite.Conn, span *telemetry.Span) error {
	tags, err := tagsColumn(span.Tags)
	if err != nil {
		return fmt.Errorf("record store: marshal span tags: %w", err)
	}
	var parentSpanID any
	if !span.ParentSpanID.IsZero() {
		parentSpanID = span.ParentSpanID.String()
	}
	return sqlitex.Execute(conn, `INSERT OR REPLACE INTO spans
		(id, time_unix_nanos, trace_id, span_id, parent_span_id,
		 operation, duration_nanos, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			span.ID.String(),
			span.Time.UnixNano(),
			span.TraceID.String(),
			span.SpanID.String(),
			parentSpanID,
			span.Operation,
			int64(span.Duration),
			tags,
		},
	})
}

// tagsColumn encodes tags as a JSON text column, NULL when empty.
func tagsColumn(tags telemetry.Tags) (any, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Retrieve implements sink.Storage. Rows that fail to decode are
// skipped and logged, never fatal.
func (s *Store) Retrieve(ctx context.Context, query sink.Query) (telemetry.Batch, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("record store: retrieve: %w", err)
	}
	defer s.pool.Put(conn)

	var (
		merged  telemetry.Batch
		skipped int
	)
	scan := func(table, columns string, scanRow func(*sqlite.Stmt) (telemetry.Record, error)) error {
		clause, args := timeClause(query)
		statement := "SELECT " + columns + " FROM " + table + clause +
			" ORDER BY time_unix_nanos ASC"
		if query.Limit > 0 {
			// No table can contribute more than the merged cap.
			statement += " LIMIT ?"
			args = append(args, query.Limit)
		}
		err := sqlitex.Execute(conn, statement, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				record, err := scanRow(stmt)
				if err != nil {
					skipped++
					return nil
				}
				merged = append(merged, record)
				return nil
			},
		})
		if err != nil {
			return fmt.Errorf("record store: query %s: %w", table, err)
		}
		return nil
	}

	if err := scan("events", "id, time_unix_nanos, source, message, severity, tags", scanEvent); err != nil {
		return nil, err
	}
	if err := scan("metrics", "id, time_unix_nanos, name, value, kind, unit, tags", scanMetric); err != nil {
		return nil, err
	}
	if err := scan("spans", "id, time_unix_nanos, trace_id, span_id, parent_span_id, operation, duration_nanos, tags", scanSpan); err != nil {
		return nil, err
	}

	if skipped > 0 {
		s.logger.Debug("skipped undecodable stored records", "records", skipped)
	}

	sortByTime(merged)
	if query.Limit > 0 && len(merged) > query.Limit {
		merged = merged[:query.Limit]
	}
	return merged, nil
}

// timeClause builds the WHERE clause for a query's inclusive time
// bounds.
func timeClause(query sink.Query) (string, []any) {
	var conditions []string
	var args []any
	if !query.Start.IsZero() {
		conditions = append(conditions, "time_unix_nanos >= ?")
		args = append(args, query.Start.UnixNano())
	}
	if !query.End.IsZero() {
		conditions = append(conditions, "time_unix_nanos <= ?")
		args = append(args, query.End.UnixNano())
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func scanHeader(stmt *sqlite.Stmt, tagsColumn int) (telemetry.Header, error) {
	id, err := uuid.Parse(stmt.ColumnText(0))
	if err != nil {
		return telemetry.Header{}, fmt.Errorf("parse id: %w", err)
	}
	tags, err := scanTags(stmt, tagsColumn)
	if err != nil {
		return telemetry.Header{}, err
	}
	return telemetry.Header{
		ID:   id,
		Time: time.Unix(0, stmt.ColumnInt64(1)).UTC(),
		Tags: tags,
	}, nil
}

func scanTags(stmt *sqlite.Stmt, column int) (telemetry.Tags, error) {
	if stmt.ColumnIsNull(column) {
		return nil, nil
	}
	var tags telemetry.Tags
	if err := json.Unmarshal([]byte(stmt.ColumnText(column)), &tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	return tags, nil
}

func scanEvent(stmt *sqlite.Stmt) (telemetry.Record, error) {
	header, err := scanHeader(stmt, 5)
	if err != nil {
		return nil, err
	}
	var severity telemetry.Severity
	if err := severity.UnmarshalText([]byte(stmt.ColumnText(4))); err != nil {
		return nil, fmt.Errorf("parse severity: %w", err)
	}
	return &telemetry.Event{
		Header:   header,
		Source:   stmt.ColumnText(2),
		Message:  stmt.ColumnText(3),
		Severity: severity,
	}, nil
}

func scanMetric(stmt *sqlite.Stmt) (telemetry.Record, error) {
	header, err := scanHeader(stmt, 6)
	if err != nil {
		return nil, err
	}
	var kind telemetry.MetricKind
	if err := kind.UnmarshalText([]byte(stmt.ColumnText(4))); err != nil {
		return nil, fmt.Errorf("parse metric kind: %w", err)
	}
	return &telemetry.Metric{
		Header: header,
		Name:   stmt.ColumnText(2),
		Value:  stmt.ColumnFloat(3),
		Kind:   kind,
		Unit:   stmt.ColumnText(5),
	}, nil
}

func scanSpan(stmt *sqlite.Stmt) (telemetry.Record, error) {
	header, err := scanHeader(stmt, 7)
	if err != nil {
		return nil, err
	}
	var traceID telemetry.TraceID
	if err := traceID.UnmarshalText([]byte(stmt.ColumnText(2))); err != nil {
		return nil, fmt.Errorf("parse trace_id: %w", err)
	}
	var spanID telemetry.SpanID
	if err := spanID.UnmarshalText([]byte(stmt.ColumnText(3))); err != nil {
		return nil, fmt.Errorf("parse span_id: %w", err)
	}
	var parentSpanID telemetry.SpanID
	if !stmt.ColumnIsNull(4) {
		if err := parentSpanID.UnmarshalText([]byte(stmt.ColumnText(4))); err != nil {
			return nil, fmt.Errorf("parse parent_span_id: %w", err)
		}
	}
	return &telemetry.Span{
		Header:       header,
		TraceID:      traceID,
		SpanID:       spanID,
		ParentSpanID: parentSpanID,
		Operation:    stmt.ColumnText(5),
		Duration:     time.Duration(stmt.ColumnInt64(6)),
	}, nil
}

// sortByTime orders records by time ascending, stable so records
// sharing an instant keep table order (events, metrics, spans).
func sortByTime(batch telemetry.Batch) {
	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].RecordHeader().Time.Before(batch[j].RecordHeader().Time)
	})
}

// DeleteBefore removes all records strictly older than cutoff,
// returning how many rows were deleted. One transaction covers all
// three tables.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (deleted int64, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("record store: delete before: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return 0, fmt.Errorf("record store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	for _, table := range []string{"events", "metrics", "spans"} {
		err = sqlitex.Execute(conn, "DELETE FROM "+table+" WHERE time_unix_nanos < ?",
			&sqlitex.ExecOptions{Args: []any{cutoff.UnixNano()}})
		if err != nil {
			return 0, fmt.Errorf("record store: pruning %s: %w", table, err)
		}
		deleted += int64(conn.Changes())
	}
	return deleted, nil
}

// Counts reports how many records of each kind are stored.
func (s *Store) Counts(ctx context.Context) (events, metrics, spans int64, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("record store: counts: %w", err)
	}
	defer s.pool.Put(conn)

	count := func(table string) (int64, error) {
		var total int64
		err := sqlitex.Execute(conn, "SELECT COUNT(*) FROM "+table, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				total = stmt.ColumnInt64(0)
				return nil
			},
		})
		if err != nil {
			return 0, fmt.Errorf("record store: counting %s: %w", table, err)
		}
		return total, nil
	}

	if events, err = count("events"); err != nil {
		return 0, 0, 0, err
	}
	if metrics, err = count("metrics"); err != nil {
		return 0, 0, 0, err
	}
	if spans, err = count("spans"); err != nil {
		return 0, 0, 0, err
	}
	return events, metrics, spans, nil
}
