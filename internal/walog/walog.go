// Package walog provides a durable, crash-recoverable log of graph.Command
// records. Every command the daemon accepts is appended here before it
// reaches the engine and is fsynced before Append returns, so a crash
// mid-session loses at most a record whose Append had not yet returned.
package walog

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/waoai/confidis/internal/graph"
	"github.com/waoai/confidis/internal/telemetry"
)

const (
	segmentMagic   = 0x434E4C47 // "CNLG" — ConfidisLoG
	segmentVersion = 1
	headerSize     = 16 // magic(4) + version(2) + reserved(2) + baseSeq(8)
	recordHeadSize = 12 // seq(8) + payloadLen(4)
	crcSize        = 4
	maxPayload     = 1 << 20 // 1 MB per record; command lines are tiny

	defaultMaxSegmentBytes = 64 << 20
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// record is one durable entry: a command and the time it was applied.
type record struct {
	Cmd       graph.Command `json:"cmd"`
	AppliedAt time.Time     `json:"applied_at"`
}

// Log is a single rotating append-only segment directory. Unlike a
// multi-segment production WAL, old segments are never reclaimed here —
// there is no downstream flush target to checkpoint against, only the
// engine's own in-memory state, which is rebuilt wholesale on Recover.
type Log struct {
	dir            string
	maxSegmentSize int64

	mu          sync.Mutex
	current     *os.File
	segmentNum  uint64
	segmentSize int64
	nextSeq     atomic.Uint64

	logger *slog.Logger
}

// Open creates or resumes a log rooted at dir. maxSegmentBytes <= 0 uses a
// 64 MiB default.
func Open(logger *slog.Logger, dir string, maxSegmentBytes int64) (*Log, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if maxSegmentBytes <= 0 {
		maxSegmentBytes = defaultMaxSegmentBytes
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("walog: create directory: %w", err)
	}

	l := &Log{dir: dir, maxSegmentSize: maxSegmentBytes, logger: logger}

	highSeg, highSeq, err := l.scanExisting()
	if err != nil {
		return nil, fmt.Errorf("walog: scan existing segments: %w", err)
	}
	l.segmentNum = highSeg + 1
	l.nextSeq.Store(highSeq + 1)

	if err := l.rotate(); err != nil {
		return nil, fmt.Errorf("walog: open initial segment: %w", err)
	}

	l.registerMetrics()
	return l, nil
}

func (l *Log) segmentPath(n uint64) string {
	return filepath.Join(l.dir, fmt.Sprintf("segment-%020d.log", n))
}

func (l *Log) scanExisting() (highSeg, highSeq uint64, err error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		var n uint64
		if _, scanErr := fmt.Sscanf(e.Name(), "segment-%020d.log", &n); scanErr != nil {
			continue
		}
		if n > highSeg {
			highSeg = n
		}
		recs, _, err := l.readSegment(l.segmentPath(n))
		if err != nil {
			continue
		}
		for _, r := range recs {
			if r.seq > highSeq {
				highSeq = r.seq
			}
		}
	}
	return highSeg, highSeq, nil
}

func (l *Log) rotate() error {
	if l.current != nil {
		if err := l.current.Close(); err != nil {
			return err
		}
	}
	path := l.segmentPath(l.segmentNum)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600) //nolint:gosec // path is built from a fixed pattern under a validated dir
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	if info.Size() == 0 {
		var header [headerSize]byte
		binary.BigEndian.PutUint32(header[0:4], segmentMagic)
		binary.BigEndian.PutUint16(header[4:6], segmentVersion)
		binary.BigEndian.PutUint64(header[8:16], l.nextSeq.Load())
		if _, err := f.Write(header[:]); err != nil {
			_ = f.Close()
			return err
		}
		l.segmentSize = headerSize
	} else {
		l.segmentSize = info.Size()
	}
	l.current = f
	return nil
}

// Append durably records cmd and returns the sequence number it was
// assigned. The caller should Append before handing the command to the
// engine, so recovery can replay exactly what was accepted.
func (l *Log) Append(cmd graph.Command) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	payload, err := json.Marshal(record{Cmd: cmd, AppliedAt: time.Now().UTC()})
	if err != nil {
		return 0, fmt.Errorf("walog: marshal record: %w", err)
	}
	if len(payload) > maxPayload {
		return 0, fmt.Errorf("walog: record too large (%d bytes, max %d)", len(payload), maxPayload)
	}

	seq := l.nextSeq.Add(1) - 1

	var head [recordHeadSize]byte
	binary.BigEndian.PutUint64(head[0:8], seq)
	binary.BigEndian.PutUint32(head[8:12], uint32(len(payload))) //nolint:gosec // bounded by maxPayload check above

	h := crc32.New(crcTable)
	_, _ = h.Write(head[:])
	_, _ = h.Write(payload)
	var crcBuf [crcSize]byte
	binary.BigEndian.PutUint32(crcBuf[:], h.Sum32())

	if _, err := l.current.Write(head[:]); err != nil {
		return 0, fmt.Errorf("walog: write record head: %w", err)
	}
	if _, err := l.current.Write(payload); err != nil {
		return 0, fmt.Errorf("walog: write payload: %w", err)
	}
	if _, err := l.current.Write(crcBuf[:]); err != nil {
		return 0, fmt.Errorf("walog: write crc: %w", err)
	}
	if err := l.current.Sync(); err != nil {
		return 0, fmt.Errorf("walog: fsync: %w", err)
	}

	l.segmentSize += int64(recordHeadSize + len(payload) + crcSize)
	if l.segmentSize >= l.maxSegmentSize {
		l.segmentNum++
		if err := l.rotate(); err != nil {
			return 0, fmt.Errorf("walog: rotate segment: %w", err)
		}
	}

	return seq, nil
}

type seqRecord struct {
	seq       uint64
	cmd       graph.Command
	appliedAt time.Time
}

// readSegment reads every well-formed record in one segment file, stopping
// (not failing) at the first corrupt or truncated record — the usual sign
// of a crash mid-write to the tail.
func (l *Log) readSegment(path string) ([]seqRecord, uint64, error) {
	f, err := os.Open(path) //nolint:gosec // path is built from a fixed pattern under a validated dir
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	if binary.BigEndian.Uint32(header[0:4]) != segmentMagic {
		return nil, 0, fmt.Errorf("walog: bad segment magic in %s", path)
	}

	var recs []seqRecord
	var highSeq uint64
	for {
		var head [recordHeadSize]byte
		if _, err := io.ReadFull(r, head[:]); err != nil {
			break
		}
		seq := binary.BigEndian.Uint64(head[0:8])
		payloadLen := binary.BigEndian.Uint32(head[8:12])
		if payloadLen > maxPayload {
			l.logger.Warn("walog: payload length exceeds max, stopping recovery", "segment", path)
			break
		}
		payload := make([]byte, payloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			break
		}
		var crcBuf [crcSize]byte
		if _, err := io.ReadFull(r, crcBuf[:]); err != nil {
			break
		}

		h := crc32.New(crcTable)
		_, _ = h.Write(head[:])
		_, _ = h.Write(payload)
		if h.Sum32() != binary.BigEndian.Uint32(crcBuf[:]) {
			l.logger.Warn("walog: crc mismatch, stopping recovery at first corrupt record", "segment", path, "seq", seq)
			break
		}

		var rec record
		if err := json.Unmarshal(payload, &rec); err != nil {
			l.logger.Warn("walog: undecodable record, stopping recovery", "segment", path, "seq", seq)
			break
		}
		recs = append(recs, seqRecord{seq: seq, cmd: rec.Cmd, appliedAt: rec.AppliedAt})
		if seq > highSeq {
			highSeq = seq
		}
	}
	return recs, highSeq, nil
}

// Entry is one recovered record: its sequence number, command, and apply
// timestamp, the inputs an integrity leaf hash is computed from.
type Entry struct {
	Seq       uint64
	Cmd       graph.Command
	AppliedAt time.Time
}

func (l *Log) orderedSegmentPaths() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("walog: list segments: %w", err)
	}

	type numbered struct {
		n    uint64
		path string
	}
	var segments []numbered
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		var n uint64
		if _, err := fmt.Sscanf(e.Name(), "segment-%020d.log", &n); err != nil {
			continue
		}
		segments = append(segments, numbered{n: n, path: l.segmentPath(n)})
	}
	for i := 1; i < len(segments); i++ {
		for j := i; j > 0 && segments[j-1].n > segments[j].n; j-- {
			segments[j-1], segments[j] = segments[j], segments[j-1]
		}
	}
	paths := make([]string, len(segments))
	for i, s := range segments {
		paths[i] = s.path
	}
	return paths, nil
}

// Recover returns every durably recorded command across all segments, in
// apply order, for replay into a fresh engine.
func (l *Log) Recover() ([]graph.Command, error) {
	entries, err := l.RecoverEntries()
	if err != nil {
		return nil, err
	}
	out := make([]graph.Command, len(entries))
	for i, e := range entries {
		out[i] = e.Cmd
	}
	return out, nil
}

// RecoverEntries returns every durably recorded entry, including its
// sequence number and apply timestamp, for integrity hashing.
func (l *Log) RecoverEntries() ([]Entry, error) {
	paths, err := l.orderedSegmentPaths()
	if err != nil {
		return nil, err
	}

	var out []Entry
	for _, path := range paths {
		recs, _, err := l.readSegment(path)
		if err != nil {
			return nil, fmt.Errorf("walog: read segment %s: %w", path, err)
		}
		for _, r := range recs {
			out = append(out, Entry{Seq: r.seq, Cmd: r.cmd, AppliedAt: r.appliedAt})
		}
	}
	return out, nil
}

// Close syncs and closes the active segment.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return nil
	}
	if err := l.current.Sync(); err != nil {
		l.logger.Warn("walog: final sync failed", "error", err)
	}
	return l.current.Close()
}

// SegmentCount reports the number of segment files currently on disk.
func (l *Log) SegmentCount() int {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	return n
}

func (l *Log) registerMetrics() {
	meter := telemetry.Meter("confidis/walog")

	_, _ = meter.Int64ObservableGauge("confidis.walog.segment_count",
		metric.WithDescription("Number of command-log segment files on disk"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(l.SegmentCount()))
			return nil
		}),
	)
}
