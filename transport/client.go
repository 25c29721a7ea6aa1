// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ocaravaca73/RIMP/lib/codec"
	"github.com/ocaravaca73/RIMP/lib/netutil"
	"github.com/ocaravaca73/RIMP/telemetry"
)

const (
	// dialTimeout bounds connection establishment and the handshake
	// round-trip.
	dialTimeout = 5 * time.Second

	// defaultAckTimeout bounds the wait for a batch ack when the
	// caller's context carries no deadline.
	defaultAckTimeout = 45 * time.Second

	// statusTimeout bounds the status request round-trip when the
	// caller's context carries no deadline.
	statusTimeout = 10 * time.Second
)

// Client talks to the daemon socket. Submit reuses one persistent
// ingest stream across calls; Tail and Status each open their own
// connection, since a connection's handshake commits it to a single
// action.
//
// Client is safe for concurrent use. Submits serialize on the ingest
// stream; Tail and Status run independently.
type Client struct {
	socketPath string

	// mu serializes Submit round-trips and guards the ingest stream
	// state below.
	mu       sync.Mutex
	conn     net.Conn
	encoder  *codec.Encoder
	decoder  *codec.Decoder
	sequence uint64
	closed   bool
}

// Dial verifies the daemon socket accepts connections and returns a
// client for it. The ingest stream is established lazily on first
// Submit and re-established after failures, so a daemon restart costs
// one failed Submit rather than a dead client.
func Dial(socketPath string) (*Client, error) {
	if socketPath == "" {
		return nil, fmt.Errorf("transport: socket path is required")
	}
	conn, err := net.DialTimeout("unix", socketPath, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("transport: dialing %s: %w", socketPath, err)
	}
	conn.Close()
	return &Client{socketPath: socketPath}, nil
}

// Submit sends one batch on the ingest stream and waits for the ack.
// An error ack fails only this call; a broken stream additionally
// tears the connection down so the next Submit reconnects.
func (c *Client) Submit(ctx context.Context, batch telemetry.Batch) error {
	if len(batch) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("transport: submitting on closed client")
	}
	if err := c.ensureIngestStream(ctx); err != nil {
		return err
	}

	c.sequence++
	wire, err := encodeBatch(batch, c.sequence)
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}

	deadline := time.Now().Add(defaultAckTimeout)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	c.conn.SetDeadline(deadline)

	if err := c.encoder.Encode(wire); err != nil {
		c.dropStreamLocked()
		return fmt.Errorf("transport: writing batch: %w", err)
	}
	var ack streamAck
	if err := c.decoder.Decode(&ack); err != nil {
		c.dropStreamLocked()
		return fmt.Errorf("transport: reading ack: %w", err)
	}
	c.conn.SetDeadline(time.Time{})

	if !ack.OK {
		// The server rejected this batch but keeps the stream open.
		return fmt.Errorf("transport: batch rejected: %s", ack.Error)
	}
	return nil
}

// ensureIngestStream establishes the persistent ingest stream when
// absent. Callers hold c.mu.
func (c *Client) ensureIngestStream(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	conn, encoder, decoder, err := dialStream(ctx, c.socketPath, actionIngest)
	if err != nil {
		return err
	}
	c.conn = conn
	c.encoder = encoder
	c.decoder = decoder
	return nil
}

// dropStreamLocked closes the ingest stream so the next Submit
// reconnects. Callers hold c.mu.
func (c *Client) dropStreamLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.encoder = nil
		c.decoder = nil
	}
}

// Tail subscribes to the live record stream, invoking fn for every
// record until ctx is cancelled or the stream ends. Heartbeat frames
// are consumed internally. Returns nil on cancellation and on clean
// server shutdown.
func (c *Client) Tail(ctx context.Context, fn func(telemetry.Record)) error {
	if fn == nil {
		return fmt.Errorf("transport: tail callback is required")
	}

	conn, _, decoder, err := dialStream(ctx, c.socketPath, actionTail)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Close the connection when the context is cancelled to unblock
	// the decode below.
	tailDone := make(chan struct{})
	defer close(tailDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-tailDone:
		}
	}()

	for {
		var frame tailFrame
		if err := decoder.Decode(&frame); err != nil {
			if ctx.Err() != nil || netutil.IsExpectedCloseError(err) {
				return nil
			}
			return fmt.Errorf("transport: reading tail stream: %w", err)
		}

		switch frame.Type {
		case tailFrameRecord:
			record, err := telemetry.UnmarshalRecordCBOR(frame.Record)
			if err != nil {
				return fmt.Errorf("transport: decoding tail record: %w", err)
			}
			fn(record)
		case tailFrameHeartbeat:
			// Keepalive only.
		default:
			return fmt.Errorf("transport: unknown tail frame type %q", frame.Type)
		}
	}
}

// Status fetches the daemon's counters over a dedicated connection.
func (c *Client) Status(ctx context.Context) (Status, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return Status{}, fmt.Errorf("transport: dialing %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(statusTimeout)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	conn.SetDeadline(deadline)

	if err := codec.NewEncoder(conn).Encode(handshake{Action: actionStatus}); err != nil {
		return Status{}, fmt.Errorf("transport: writing status request: %w", err)
	}
	var status Status
	if err := codec.NewDecoder(conn).Decode(&status); err != nil {
		return Status{}, fmt.Errorf("transport: reading status reply: %w", err)
	}
	return status, nil
}

// Close tears down the persistent ingest stream. Safe to call more
// than once; Submits after Close fail.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.dropStreamLocked()
	return nil
}

// dialStream opens a connection, sends the handshake for action, and
// waits for the server's ready ack.
func dialStream(ctx context.Context, socketPath, action string) (net.Conn, *codec.Encoder, *codec.Decoder, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("transport: dialing %s: %w", socketPath, err)
	}

	conn.SetDeadline(time.Now().Add(dialTimeout))
	encoder := codec.NewEncoder(conn)
	decoder := codec.NewDecoder(conn)

	if err := encoder.Encode(handshake{Action: action}); err != nil {
		conn.Close()
		return nil, nil, nil, fmt.Errorf("transport: writing handshake: %w", err)
	}
	var ready streamAck
	if err := decoder.Decode(&ready); err != nil {
		conn.Close()
		return nil, nil, nil, fmt.Errorf("transport: awaiting %s stream: %w", action, err)
	}
	if !ready.OK {
		conn.Close()
		return nil, nil, nil, fmt.Errorf("transport: %s stream refused: %s", action, ready.Error)
	}
	conn.SetDeadline(time.Time{})

	return conn, encoder, decoder, nil
}
