// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ocaravaca73/RIMP/telemetry"
)

// defaultDeliverTimeout bounds one RemoteSink delivery when no
// shorter timeout is configured.
const defaultDeliverTimeout = 5 * time.Second

// RemoteSinkOptions configures a RemoteSink.
type RemoteSinkOptions struct {
	// Client is the daemon connection to export through. Required.
	Client *Client

	// Timeout bounds each delivery. Defaults to 5 seconds.
	Timeout time.Duration
}

// RemoteSink exports flushed batches to the collector daemon over the
// socket. Fire-and-forget: a failed delivery returns the error for
// the scheduler to log, drops the batch, and counts its records. The
// next flush starts fresh on a reconnected stream.
type RemoteSink struct {
	client  *Client
	timeout time.Duration
	dropped atomic.Uint64
}

// NewRemoteSink validates the options and creates the sink.
func NewRemoteSink(options RemoteSinkOptions) (*RemoteSink, error) {
	if options.Client == nil {
		return nil, fmt.Errorf("remote sink: Client is required")
	}
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = defaultDeliverTimeout
	}
	return &RemoteSink{client: options.Client, timeout: timeout}, nil
}

// Name implements sink.Sink.
func (s *RemoteSink) Name() string { return "remote" }

// Deliver implements sink.Sink.
func (s *RemoteSink) Deliver(ctx context.Context, batch telemetry.Batch) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Submit(ctx, batch); err != nil {
		s.dropped.Add(uint64(len(batch)))
		return err
	}
	return nil
}

// Dropped reports how many records failed to export.
func (s *RemoteSink) Dropped() uint64 { return s.dropped.Load() }
