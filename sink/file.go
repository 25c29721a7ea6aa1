// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/valyala/fastjson"

	"github.com/ocaravaca73/RIMP/lib/clock"
	"github.com/ocaravaca73/RIMP/telemetry"
)

// maxLineBytes bounds a single JSONL line on the read path. Records
// are small; a line this long is corruption, not data.
const maxLineBytes = 1 << 20

// FileSinkConfig configures a FileSink.
type FileSinkConfig struct {
	// Path of the active segment. Required. Archives live next to
	// it as <path>.<unix-nanos>.zst.
	Path string

	// MaxSegmentBytes triggers rotation once the active segment
	// grows past it. 0 means never rotate.
	MaxSegmentBytes int64

	// MaxArchives caps how many rotated archives are kept, oldest
	// pruned first. 0 means keep all.
	MaxArchives int

	// Clock stamps archive names. Required.
	Clock clock.Clock

	// Logger receives skip and prune diagnostics. Required.
	Logger *slog.Logger
}

// FileSink appends records to a JSONL segment, one envelope line per
// record. The format is crash-tolerant by construction: an append
// interrupted mid-line leaves exactly one unparseable line, which
// the read path skips.
type FileSink struct {
	config FileSinkConfig

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewFileSink opens (creating if needed) the active segment for
// appending.
func NewFileSink(config FileSinkConfig) (*FileSink, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("file sink: Path is required")
	}
	if config.Clock == nil {
		return nil, fmt.Errorf("file sink: Clock is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("file sink: Logger is required")
	}
	sink := &FileSink{config: config}
	if err := sink.openSegment(); err != nil {
		return nil, err
	}
	return sink, nil
}

func (s *FileSink) openSegment() error {
	file, err := os.OpenFile(s.config.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening telemetry segment %s: %w", s.config.Path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("sizing telemetry segment %s: %w", s.config.Path, err)
	}
	s.file = file
	s.size = info.Size()
	return nil
}

// Name implements Sink.
func (s *FileSink) Name() string { return "file" }

// Deliver implements Sink. The whole batch is encoded first and
// appended with a single write, so a crash can truncate at most the
// final line.
func (s *FileSink) Deliver(ctx context.Context, batch telemetry.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return fmt.Errorf("file sink: delivering to closed sink")
	}

	var encoded bytes.Buffer
	for _, record := range batch {
		line, err := telemetry.MarshalRecordJSON(record)
		if err != nil {
			return fmt.Errorf("encoding record for %s: %w", s.config.Path, err)
		}
		encoded.Write(line)
		encoded.WriteByte('\n')
	}

	written, err := s.file.Write(encoded.Bytes())
	s.size += int64(written)
	if err != nil {
		return fmt.Errorf("appending %d records to %s: %w", len(batch), s.config.Path, err)
	}

	if s.config.MaxSegmentBytes > 0 && s.size > s.config.MaxSegmentBytes {
		return s.rotateLocked()
	}
	return nil
}

// rotateLocked archives the active segment and opens a fresh one. On
// compression failure the segment is left in place and reopened,
// trading an oversized segment for zero data loss.
func (s *FileSink) rotateLocked() error {
	if err := s.file.Close(); err != nil {
		s.file = nil
		return fmt.Errorf("closing full segment %s: %w", s.config.Path, err)
	}
	s.file = nil

	archivePath := fmt.Sprintf("%s.%d.zst", s.config.Path, s.config.Clock.Now().UnixNano())
	if err := compressSegment(s.config.Path, archivePath); err != nil {
		s.config.Logger.Warn("segment archival failed, keeping active segment",
			"segment", s.config.Path,
			"error", err)
		return s.openSegment()
	}
	if err := os.Remove(s.config.Path); err != nil {
		return fmt.Errorf("removing archived segment %s: %w", s.config.Path, err)
	}
	s.pruneArchives()
	return s.openSegment()
}

func compressSegment(source, destination string) error {
	input, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("opening segment for archival: %w", err)
	}
	defer input.Close()

	output, err := os.Create(destination)
	if err != nil {
		return fmt.Errorf("creating archive %s: %w", destination, err)
	}

	encoder, err := zstd.NewWriter(output, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		output.Close()
		return fmt.Errorf("initializing zstd encoder: %w", err)
	}
	if _, err := io.Copy(encoder, input); err != nil {
		encoder.Close()
		output.Close()
		return fmt.Errorf("compressing segment to %s: %w", destination, err)
	}
	if err := encoder.Close(); err != nil {
		output.Close()
		return fmt.Errorf("finalizing archive %s: %w", destination, err)
	}
	if err := output.Close(); err != nil {
		return fmt.Errorf("closing archive %s: %w", destination, err)
	}
	return nil
}

// pruneArchives removes the oldest archives beyond MaxArchives.
// Pruning failures are logged, never fatal: an extra archive on disk
// beats a failed rotation.
func (s *FileSink) pruneArchives() {
	if s.config.MaxArchives <= 0 {
		return
	}
	archives, err := s.listArchives()
	if err != nil {
		s.config.Logger.Warn("listing archives for pruning", "error", err)
		return
	}
	for len(archives) > s.config.MaxArchives {
		oldest := archives[0]
		archives = archives[1:]
		if err := os.Remove(oldest); err != nil {
			s.config.Logger.Warn("pruning archive", "archive", oldest, "error", err)
		}
	}
}

// listArchives returns this sink's archive paths sorted oldest
// first. Files matching the glob but without a parseable timestamp
// are not ours and are left alone.
func (s *FileSink) listArchives() ([]string, error) {
	matches, err := filepath.Glob(s.config.Path + ".*.zst")
	if err != nil {
		return nil, fmt.Errorf("listing archives for %s: %w", s.config.Path, err)
	}

	type archive struct {
		path  string
		nanos int64
	}
	archives := make([]archive, 0, len(matches))
	for _, match := range matches {
		stamp := strings.TrimSuffix(strings.TrimPrefix(match, s.config.Path+"."), ".zst")
		nanos, err := strconv.ParseInt(stamp, 10, 64)
		if err != nil {
			continue
		}
		archives = append(archives, archive{path: match, nanos: nanos})
	}
	sort.Slice(archives, func(i, j int) bool {
		return archives[i].nanos < archives[j].nanos
	})

	paths := make([]string, len(archives))
	for i, entry := range archives {
		paths[i] = entry.path
	}
	return paths, nil
}

// Retrieve implements Storage. Archived segments are scanned oldest
// first, then the active segment. A missing segment yields an empty
// batch, not an error.
func (s *FileSink) Retrieve(ctx context.Context, query Query) (telemetry.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	archives, err := s.listArchives()
	if err != nil {
		return nil, err
	}

	var merged telemetry.Batch
	for _, archivePath := range archives {
		records, err := s.readArchive(archivePath, query)
		if err != nil {
			return nil, err
		}
		merged = append(merged, records...)
	}

	records, err := s.readActiveSegment(query)
	if err != nil {
		return nil, err
	}
	merged = append(merged, records...)

	sortBatch(merged)
	return limitBatch(merged, query.Limit), nil
}

func (s *FileSink) readActiveSegment(query Query) (telemetry.Batch, error) {
	file, err := os.Open(s.config.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening segment %s: %w", s.config.Path, err)
	}
	defer file.Close()
	return s.scanRecords(file, s.config.Path, query)
}

func (s *FileSink) readArchive(path string, query Query) (telemetry.Batch, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Pruned between listing and reading.
			return nil, nil
		}
		return nil, fmt.Errorf("opening archive %s: %w", path, err)
	}
	defer file.Close()

	decoder, err := zstd.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("initializing zstd decoder for %s: %w", path, err)
	}
	defer decoder.Close()
	return s.scanRecords(decoder, path, query)
}

// scanRecords streams one segment, decoding the records that match
// the query. fastjson pre-screens each line so that bound filtering
// never pays full decode cost, and so that a corrupt line — the
// usual aftermath of a crash mid-append — is skipped instead of
// aborting the read.
func (s *FileSink) scanRecords(reader io.Reader, path string, query Query) (telemetry.Batch, error) {
	var (
		records telemetry.Batch
		parser  fastjson.Parser
		skipped int
	)
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		parsed, err := parser.ParseBytes(line)
		if err != nil {
			skipped++
			continue
		}
		stamp := parsed.GetStringBytes("data", "time")
		if stamp == nil {
			skipped++
			continue
		}
		instant, err := time.Parse(time.RFC3339Nano, string(stamp))
		if err != nil {
			skipped++
			continue
		}
		if !query.Matches(instant) {
			continue
		}
		record, err := telemetry.UnmarshalRecordJSON(line)
		if err != nil {
			skipped++
			continue
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	if skipped > 0 {
		s.config.Logger.Debug("skipped unreadable telemetry lines",
			"segment", path,
			"lines", skipped)
	}
	return records, nil
}

// Close closes the active segment. Further Deliver calls fail;
// Retrieve keeps working from disk. Idempotent.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return fmt.Errorf("closing telemetry segment %s: %w", s.config.Path, err)
	}
	return nil
}
