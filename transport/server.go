// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ocaravaca73/RIMP/lib/clock"
	"github.com/ocaravaca73/RIMP/lib/codec"
	"github.com/ocaravaca73/RIMP/lib/netutil"
	"github.com/ocaravaca73/RIMP/telemetry"
)

const (
	// handshakeTimeout bounds how long the server waits for a new
	// connection's handshake frame. A well-behaved client sends it
	// immediately after connecting.
	handshakeTimeout = 30 * time.Second

	// writeTimeout bounds single-frame writes outside the stream
	// loops: error acks and the status reply.
	writeTimeout = 10 * time.Second

	// tailHeartbeatInterval is how often a tail stream sends a
	// heartbeat frame. Keeps the connection alive and lets clients
	// detect a dead server.
	tailHeartbeatInterval = 10 * time.Second

	// tailBufferSize is the channel capacity for each tail
	// subscriber. Ingestion never blocks on a slow subscriber: when
	// the buffer is full, that subscriber misses records.
	tailBufferSize = 64
)

// BatchHandler processes one ingested batch. An error fails only that
// batch: the client receives an error ack and the stream stays open.
type BatchHandler func(ctx context.Context, batch telemetry.Batch) error

// StatusFunc supplements a status reply with stored record counts.
// The signature matches the store's Counts method so the daemon can
// wire it directly.
type StatusFunc func(ctx context.Context) (events, metrics, spans int64, err error)

// ServerOptions configures a transport server.
type ServerOptions struct {
	// SocketPath is where the Unix socket listens. Required. Any
	// stale socket file at this path is removed before listening.
	SocketPath string

	// Handler receives every ingested batch. Required.
	Handler BatchHandler

	// Status fills the stored-record counts in status replies.
	// Optional; when nil, those counts stay zero.
	Status StatusFunc

	// Clock drives tail heartbeats and the uptime counter. Required.
	Clock clock.Clock

	// Logger receives connection lifecycle and failure messages.
	// Required.
	Logger *slog.Logger
}

// tailSubscriber is one connected tail client. Ingest streams send
// wire envelopes on records; the tail loop writes them out.
type tailSubscriber struct {
	records chan codec.RawMessage
}

// Server accepts ingest, tail, and status connections on a Unix
// socket. Safe for concurrent connections; ingestion counters use
// atomics so status replies never block a stream.
type Server struct {
	socketPath string
	handler    BatchHandler
	status     StatusFunc
	clock      clock.Clock
	logger     *slog.Logger
	startedAt  time.Time

	batchesReceived atomic.Uint64
	eventsReceived  atomic.Uint64
	metricsReceived atomic.Uint64
	spansReceived   atomic.Uint64

	// subscriberMu protects subscribers. Ingest streams read under
	// RLock to fan out records; tail streams write on connect and
	// disconnect.
	subscriberMu sync.RWMutex
	subscribers  []*tailSubscriber

	activeConnections sync.WaitGroup
}

// NewServer validates the options and creates a server. Call Serve to
// start listening.
func NewServer(options ServerOptions) (*Server, error) {
	if options.SocketPath == "" {
		return nil, fmt.Errorf("transport: SocketPath is required")
	}
	if options.Handler == nil {
		return nil, fmt.Errorf("transport: Handler is required")
	}
	if options.Clock == nil {
		return nil, fmt.Errorf("transport: Clock is required")
	}
	if options.Logger == nil {
		return nil, fmt.Errorf("transport: Logger is required")
	}
	return &Server{
		socketPath: options.SocketPath,
		handler:    options.Handler,
		status:     options.Status,
		clock:      options.Clock,
		logger:     options.Logger,
		startedAt:  options.Clock.Now(),
	}, nil
}

// Serve listens on the Unix socket and dispatches connections until
// ctx is cancelled, then stops accepting and waits for in-flight
// streams to finish. The socket file is removed on return.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("transport: removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("transport: listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("telemetry socket listening", "path", s.socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

// handleConnection reads the handshake and runs the selected stream.
// One CBOR decoder serves the whole connection: the stream loops keep
// reading from the decoder that consumed the handshake, so no
// buffered bytes are lost between frames.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	// Close the connection when the context is cancelled to unblock
	// any blocking read or write in the stream loops.
	connDone := make(chan struct{})
	defer close(connDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-connDone:
		}
	}()

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	decoder := codec.NewDecoder(conn)

	var hello handshake
	if err := decoder.Decode(&hello); err != nil {
		if ctx.Err() == nil && !netutil.IsExpectedCloseError(err) {
			s.writeErrorAck(conn, fmt.Sprintf("invalid handshake: %v", err))
		}
		return
	}
	// Streams live until the peer disconnects; only the handshake is
	// deadline-bound.
	conn.SetReadDeadline(time.Time{})

	switch hello.Action {
	case actionIngest:
		s.serveIngest(ctx, conn, decoder)
	case actionTail:
		s.serveTail(ctx, conn, decoder)
	case actionStatus:
		s.serveStatus(ctx, conn)
	default:
		s.writeErrorAck(conn, fmt.Sprintf("unknown action %q", hello.Action))
	}
}

// serveIngest runs the batch stream: ready ack, then batches in and
// acks out until the client disconnects or the stream breaks.
//
//	Server → Client: streamAck{OK: true}     (readiness)
//	Client → Server: wireBatch
//	Server → Client: streamAck{OK: true}     (per-batch ack)
//	...
func (s *Server) serveIngest(ctx context.Context, conn net.Conn, decoder *codec.Decoder) {
	encoder := codec.NewEncoder(conn)

	if err := encoder.Encode(streamAck{OK: true}); err != nil {
		s.logger.Debug("ingest: failed to write ready signal", "error", err)
		return
	}

	s.logger.Info("ingest stream started")
	defer s.logger.Info("ingest stream ended")

	for {
		var wire wireBatch
		if err := decoder.Decode(&wire); err != nil {
			if ctx.Err() != nil || netutil.IsExpectedCloseError(err) {
				return
			}
			s.logger.Warn("ingest: decode failed, closing stream", "error", err)
			encoder.Encode(streamAck{Error: "decode error"})
			return
		}

		batch, err := decodeBatch(wire)
		if err != nil {
			s.logger.Warn("ingest: malformed batch, closing stream",
				"sequence", wire.Sequence,
				"error", err)
			encoder.Encode(streamAck{Error: err.Error()})
			return
		}

		if err := s.handler(ctx, batch); err != nil {
			// The stream survives a handler failure: the client sees
			// the error ack for this batch and decides whether to
			// retry it.
			s.logger.Warn("ingest: batch handler failed",
				"sequence", wire.Sequence,
				"records", len(batch),
				"error", err)
			if err := encoder.Encode(streamAck{Error: err.Error()}); err != nil {
				return
			}
			continue
		}

		events, metrics, spans := countKinds(batch)
		s.batchesReceived.Add(1)
		s.eventsReceived.Add(events)
		s.metricsReceived.Add(metrics)
		s.spansReceived.Add(spans)

		s.logger.Info("batch received",
			"sequence", wire.Sequence,
			"events", events,
			"metrics", metrics,
			"spans", spans)

		if err := encoder.Encode(streamAck{OK: true}); err != nil {
			s.logger.Debug("ingest: failed to write ack", "error", err)
			return
		}

		s.fanOut(wire.Records)
	}
}

// serveTail streams live records to one subscriber.
//
// The subscriber registers BEFORE the ready ack goes out. By the time
// the client sees the ack, the subscriber channel is already fed by
// any concurrent ingest streams, so no records fall into a gap
// between ack and registration.
func (s *Server) serveTail(ctx context.Context, conn net.Conn, decoder *codec.Decoder) {
	encoder := codec.NewEncoder(conn)

	subscriber := &tailSubscriber{
		records: make(chan codec.RawMessage, tailBufferSize),
	}
	s.addSubscriber(subscriber)
	defer s.removeSubscriber(subscriber)

	if err := encoder.Encode(streamAck{OK: true}); err != nil {
		s.logger.Debug("tail: failed to write ready signal", "error", err)
		return
	}

	s.logger.Info("tail stream started")
	defer s.logger.Info("tail stream ended")

	// The client sends nothing after the handshake; the reader exists
	// to notice the disconnect and unblock the loop below.
	readerDone := make(chan error, 1)
	go func() {
		var discard codec.RawMessage
		for {
			if err := decoder.Decode(&discard); err != nil {
				readerDone <- err
				return
			}
		}
	}()

	heartbeat := s.clock.NewTicker(tailHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case record := <-subscriber.records:
			if err := encoder.Encode(tailFrame{Type: tailFrameRecord, Record: record}); err != nil {
				s.logger.Debug("tail: failed to write record", "error", err)
				return
			}

		case <-heartbeat.C:
			if err := encoder.Encode(tailFrame{Type: tailFrameHeartbeat}); err != nil {
				s.logger.Debug("tail: failed to write heartbeat", "error", err)
				return
			}

		case err := <-readerDone:
			if err != nil && ctx.Err() == nil && !netutil.IsExpectedCloseError(err) {
				s.logger.Debug("tail: client read error", "error", err)
			}
			return

		case <-ctx.Done():
			return
		}
	}
}

// serveStatus replies with the daemon counters and closes. Status is
// best-effort: when the stored-counts hook fails, the reply still
// carries the transport counters.
func (s *Server) serveStatus(ctx context.Context, conn net.Conn) {
	status := Status{
		BatchesReceived: s.batchesReceived.Load(),
		EventsReceived:  s.eventsReceived.Load(),
		MetricsReceived: s.metricsReceived.Load(),
		SpansReceived:   s.spansReceived.Load(),
		TailSubscribers: s.subscriberCount(),
		UptimeSeconds:   s.clock.Now().Sub(s.startedAt).Seconds(),
	}
	if s.status != nil {
		events, metrics, spans, err := s.status(ctx)
		if err != nil {
			s.logger.Warn("status: stored counts unavailable", "error", err)
		} else {
			status.EventsStored = events
			status.MetricsStored = metrics
			status.SpansStored = spans
		}
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(status); err != nil {
		s.logger.Debug("status: failed to write reply", "error", err)
	}
}

// fanOut delivers a batch's wire envelopes to every tail subscriber.
// Sends are non-blocking: a subscriber whose buffer is full misses
// records rather than stalling ingestion.
func (s *Server) fanOut(records []codec.RawMessage) {
	s.subscriberMu.RLock()
	defer s.subscriberMu.RUnlock()

	for _, subscriber := range s.subscribers {
		for _, record := range records {
			select {
			case subscriber.records <- record:
			default:
			}
		}
	}
}

func (s *Server) addSubscriber(subscriber *tailSubscriber) {
	s.subscriberMu.Lock()
	s.subscribers = append(s.subscribers, subscriber)
	s.subscriberMu.Unlock()
}

func (s *Server) removeSubscriber(subscriber *tailSubscriber) {
	s.subscriberMu.Lock()
	for i, existing := range s.subscribers {
		if existing == subscriber {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			break
		}
	}
	s.subscriberMu.Unlock()
}

func (s *Server) subscriberCount() int {
	s.subscriberMu.RLock()
	defer s.subscriberMu.RUnlock()
	return len(s.subscribers)
}

// writeErrorAck reports a pre-stream failure to the peer. The
// connection is closing regardless, so write failures are only worth
// a debug line.
func (s *Server) writeErrorAck(conn net.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(streamAck{Error: message}); err != nil {
		s.logger.Debug("failed to write error ack", "error", err)
	}
}

// countKinds tallies a batch per record kind.
func countKinds(batch telemetry.Batch) (events, metrics, spans uint64) {
	for _, record := range batch {
		switch record.(type) {
		case *telemetry.Event:
			events++
		case *telemetry.Metric:
			metrics++
		case *telemetry.Span:
			spans++
		}
	}
	return events, metrics, spans
}
