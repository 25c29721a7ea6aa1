// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Config describes a pool to open.
type Config struct {
	// Path is the filesystem path to the database file. Required. The
	// file and its parent directory are created if they do not exist.
	Path string

	// PoolSize is the number of connections to maintain. Defaults to
	// the number of CPUs, minimum 4.
	PoolSize int

	// Logger receives pool lifecycle messages. Defaults to a discard
	// logger.
	Logger *slog.Logger

	// OnConnect runs once per connection after the standard pragmas
	// are applied. Use it to create tables and indexes. Errors abort
	// pool construction.
	OnConnect func(conn *sqlite.Conn) error
}

// Pool is a fixed-size SQLite connection pool with RIMP-standard
// pragmas applied to every connection.
type Pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Open creates the pool and establishes all connections eagerly, so
// pragma or schema errors surface at startup rather than on first use.
func Open(config Config) (*Pool, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("config.Path is required")
	}
	poolSize := config.PoolSize
	if poolSize <= 0 {
		poolSize = max(runtime.NumCPU(), 4)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	inner, err := sqlitex.NewPool(config.Path, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			return prepareConnection(conn, config.OnConnect)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite pool at %s: %w", config.Path, err)
	}

	logger.Info("sqlite pool opened", "path", config.Path, "pool_size", poolSize)
	return &Pool{inner: inner, logger: logger, path: config.Path}, nil
}

// Take borrows a connection from the pool, blocking until one is
// available or the context is cancelled. The connection must be
// returned with [Pool.Put]. Connections are not safe for concurrent
// use.
func (p *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("taking connection from pool: %w", err)
	}
	return conn, nil
}

// Put returns a connection obtained from [Pool.Take].
func (p *Pool) Put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

// Close shuts down the pool, closing all connections. It is an error
// to call Close while connections are still checked out.
func (p *Pool) Close() error {
	if err := p.inner.Close(); err != nil {
		return fmt.Errorf("closing sqlite pool at %s: %w", p.path, err)
	}
	p.logger.Info("sqlite pool closed", "path", p.path)
	return nil
}

// prepareConnection applies the standard pragmas and then the
// caller's OnConnect hook. Runs once per pooled connection.
func prepareConnection(conn *sqlite.Conn, onConnect func(*sqlite.Conn) error) error {
	pragmas := `
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
		PRAGMA busy_timeout = 5000;
		PRAGMA foreign_keys = OFF;
		PRAGMA cache_size = -8192;
		PRAGMA mmap_size = 268435456;
		PRAGMA temp_store = MEMORY;
	`
	if err := sqlitex.ExecuteScript(conn, pragmas, nil); err != nil {
		return fmt.Errorf("applying connection pragmas: %w", err)
	}
	if onConnect != nil {
		if err := onConnect(conn); err != nil {
			return fmt.Errorf("running OnConnect hook: %w", err)
		}
	}
	return nil
}
