// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

package integration_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ocaravaca73/RIMP/lib/clock"
	"github.com/ocaravaca73/RIMP/lib/testutil"
	"github.com/ocaravaca73/RIMP/store"
	"github.com/ocaravaca73/RIMP/telemetry"
	"github.com/ocaravaca73/RIMP/transport"
)

// testEpoch anchors fake clocks so record timestamps are stable
// across runs.
var testEpoch = time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

// waitTimeout is the safety valve for operations that complete via
// real goroutines rather than fake-clock advancement.
const waitTimeout = 5 * time.Second

// capturingSink records every delivered batch and signals each
// delivery on a channel.
type capturingSink struct {
	name      string
	delivered chan telemetry.Batch

	mu      sync.Mutex
	batches []telemetry.Batch
}

func newCapturingSink(name string) *capturingSink {
	return &capturingSink{
		name:      name,
		delivered: make(chan telemetry.Batch, 16),
	}
}

func (s *capturingSink) Name() string { return s.name }

func (s *capturingSink) Deliver(_ context.Context, batch telemetry.Batch) error {
	s.mu.Lock()
	s.batches = append(s.batches, batch)
	s.mu.Unlock()
	s.delivered <- batch
	return nil
}

func (s *capturingSink) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

// failingSink rejects every delivery.
type failingSink struct{ name string }

func (s *failingSink) Name() string { return s.name }

func (s *failingSink) Deliver(context.Context, telemetry.Batch) error {
	return fmt.Errorf("sink %s: persistent storage failure", s.name)
}

// discardLogger silences component logging in assemblies where the
// test asserts through other channels.
func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// recordHeader builds a stamped header the way a collector would.
func recordHeader(t *testing.T, at time.Time) telemetry.Header {
	t.Helper()
	return telemetry.Header{ID: uuid.New(), Time: at}
}

// testDaemon is a full daemon assembly: SQLite store behind a socket
// server, plus a connected client.
type testDaemon struct {
	Store  *store.Store
	Client *transport.Client
	Socket string
}

// startDaemon wires a store-backed socket server the way rimpd does
// and connects a client to it. Everything is torn down in reverse
// order on test cleanup.
func startDaemon(t *testing.T) *testDaemon {
	t.Helper()

	recordStore, err := store.Open(context.Background(), store.Config{
		Path:     filepath.Join(t.TempDir(), "records.db"),
		PoolSize: 2,
		Logger:   discardLogger(),
	})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}

	socketPath := filepath.Join(testutil.SocketDir(t), "rimp.sock")
	server, err := transport.NewServer(transport.ServerOptions{
		SocketPath: socketPath,
		Handler:    recordStore.Deliver,
		Status:     recordStore.Counts,
		Clock:      clock.Real(),
		Logger:     discardLogger(),
	})
	if err != nil {
		t.Fatalf("creating server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Serve(ctx)
	}()
	waitForSocket(t, socketPath)

	client, err := transport.Dial(socketPath)
	if err != nil {
		cancel()
		t.Fatalf("dialing daemon: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		cancel()
		select {
		case err := <-serverDone:
			if err != nil {
				t.Errorf("server shutdown: %v", err)
			}
		case <-time.After(waitTimeout):
			t.Error("server did not shut down")
		}
		if err := recordStore.Close(); err != nil {
			t.Errorf("closing store: %v", err)
		}
	})

	return &testDaemon{Store: recordStore, Client: client, Socket: socketPath}
}

// waitForSocket polls until the server's socket file exists.
func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("socket %s did not appear", path)
}

// waitForTailSubscribers polls the daemon's status endpoint until the
// expected number of tail subscribers is registered.
func waitForTailSubscribers(t *testing.T, daemon *testDaemon, want int) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		status, err := daemon.Client.Status(context.Background())
		if err == nil && status.TailSubscribers == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("daemon never reached %d tail subscribers", want)
}
