package capture

import (
	"bufio"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/batalabs/surfbridge/internal/config"
)

const (
	// DefaultTTL is the network entry lifetime before cleanup evicts it.
	DefaultTTL = 24 * time.Hour
	// DefaultMaxBytes is the on-disk body-byte cap that triggers eviction
	// of the oldest entries once exceeded.
	DefaultMaxBytes = 200 << 20 // 200 MB
	// cleanupMinInterval bounds how often auto-cleanup runs per process.
	cleanupMinInterval = time.Hour

	requestsFileName = "requests.jsonl"
	bodiesDirName    = "bodies"
	metaFileName     = ".meta"
)

// Store is the network-capture store described in spec.md §4.B: an
// append-only, content-addressed log plus deduplicated body blobs, under a
// configurable base directory.
type Store struct {
	baseDir  string
	ttl      time.Duration
	maxBytes int64
	logger   *config.Logger

	lock *appendLock

	mu          sync.Mutex // serialises in-process cleanup/append-adjacent ops
	lastCleanup time.Time

	index *Index // optional sqlite projection, kept best-effort in sync
}

// Option configures a Store at construction.
type Option func(*Store)

// WithTTL overrides DefaultTTL.
func WithTTL(d time.Duration) Option { return func(s *Store) { s.ttl = d } }

// WithMaxBytes overrides DefaultMaxBytes.
func WithMaxBytes(n int64) Option { return func(s *Store) { s.maxBytes = n } }

// WithLogger attaches a logger for lifecycle and swallowed-error messages.
func WithLogger(l *config.Logger) Option { return func(s *Store) { s.logger = l } }

// WithIndex attaches a sqlite side-index, kept in sync on Append and
// rebuilt wholesale on Cleanup. requests.jsonl remains authoritative; index
// failures are logged, never returned to the caller.
func WithIndex(idx *Index) Option { return func(s *Store) { s.index = idx } }

// Open prepares the on-disk layout under baseDir (creating it if needed) and
// returns a ready Store.
func Open(baseDir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, bodiesDirName), 0o700); err != nil {
		return nil, fmt.Errorf("capture: create base dir: %w", err)
	}
	s := &Store{
		baseDir:  baseDir,
		ttl:      DefaultTTL,
		maxBytes: DefaultMaxBytes,
		lock:     newAppendLock(baseDir),
	}
	for _, opt := range opts {
		opt(s)
	}
	if m, err := s.readMeta(); err == nil {
		s.lastCleanup = m.LastCleanup
	}
	return s, nil
}

func (s *Store) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func (s *Store) requestsPath() string { return filepath.Join(s.baseDir, requestsFileName) }
func (s *Store) bodiesDir() string    { return filepath.Join(s.baseDir, bodiesDirName) }
func (s *Store) metaPath() string     { return filepath.Join(s.baseDir, metaFileName) }

func (s *Store) bodyPath(hash, kind string) string {
	return filepath.Join(s.bodiesDir(), hash+"."+kind)
}

// newEntryID produces a timestamp-random id per spec.md §3.
func newEntryID() string {
	var buf [6]byte
	_, _ = rand.Read(buf[:])
	return fmt.Sprintf("%d-%s", time.Now().UnixNano(), hex.EncodeToString(buf[:]))
}

func hashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Append records one request/response pair. Bodies are hashed and written
// content-addressed (dedup: identical bytes share one file); reqBody/resBody
// may be nil when no body was captured for that side.
func (s *Store) Append(e Entry, reqBody, resBody []byte) error {
	if e.ID == "" {
		e.ID = newEntryID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	e.Method = strings.ToUpper(e.Method)

	if len(reqBody) > 0 {
		hash := hashBody(reqBody)
		if err := s.writeBodyIfAbsent(hash, "req", reqBody); err != nil {
			return fmt.Errorf("capture: write request body: %w", err)
		}
		e.RequestBodyHash = hash
	}
	if len(resBody) > 0 {
		hash := hashBody(resBody)
		if err := s.writeBodyIfAbsent(hash, "res", resBody); err != nil {
			return fmt.Errorf("capture: write response body: %w", err)
		}
		e.ResponseBodyHash = hash
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("capture: marshal entry: %w", err)
	}
	line = append(line, '\n')

	release, _ := s.lock.acquire()
	defer release()

	f, err := os.OpenFile(s.requestsPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("capture: open requests log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("capture: append entry: %w", err)
	}

	if s.index != nil {
		if err := s.index.Upsert(e); err != nil {
			s.logf("capture: index upsert: %v", err)
		}
	}
	return nil
}

func (s *Store) writeBodyIfAbsent(hash, kind string, body []byte) error {
	p := s.bodyPath(hash, kind)
	if _, err := os.Stat(p); err == nil {
		return nil // already present — content-addressed dedup
	}
	return os.WriteFile(p, body, 0o600)
}

// readAllEntries reads requests.jsonl, skipping malformed lines (reads are
// unsynchronised and tolerate torn line boundaries per spec.md §4.B).
func (s *Store) readAllEntries() ([]Entry, error) {
	f, err := os.Open(s.requestsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue // malformed line: skip, do not fail the whole read
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

// Query returns entries matching filter, most-recently-appended last.
func (s *Store) Query(filter Filter) ([]Entry, error) {
	entries, err := s.readAllEntries()
	if err != nil {
		return nil, fmt.Errorf("capture: query: %w", err)
	}
	return filter.Apply(entries), nil
}

// ReadBody returns the raw bytes for a content hash. kind is "req" or "res".
func (s *Store) ReadBody(hash, kind string) ([]byte, error) {
	if kind != "req" && kind != "res" {
		return nil, fmt.Errorf("capture: invalid body kind %q", kind)
	}
	data, err := os.ReadFile(s.bodyPath(hash, kind))
	if err != nil {
		return nil, fmt.Errorf("capture: read body %s.%s: %w", hash, kind, err)
	}
	return data, nil
}

// Stats reports aggregate counts and a status-class histogram, including a
// human-readable byte total for operator-facing output (ambient tooling,
// per SPEC_FULL.md §4.B).
func (s *Store) Stats() (Stats, error) {
	entries, err := s.readAllEntries()
	if err != nil {
		return Stats{}, fmt.Errorf("capture: stats: %w", err)
	}

	st := Stats{
		PerOriginCounts: map[string]int{},
		StatusClasses:   map[string]int{},
		LastCleanup:     s.lastCleanup,
	}
	seenHashes := map[string]bool{}
	for _, e := range entries {
		st.EntryCount++
		st.PerOriginCounts[origin(e.URL)]++
		class := fmt.Sprintf("%dxx", e.Status/100)
		if e.Status <= 0 {
			class = "0xx"
		}
		st.StatusClasses[class]++
		for _, h := range []string{e.RequestBodyHash, e.ResponseBodyHash} {
			if h == "" || seenHashes[h] {
				continue
			}
			seenHashes[h] = true
		}
	}
	st.BodyBytes = s.sumBodySizes(seenHashes)
	st.BodyBytesHuman = humanize.Bytes(uint64(st.BodyBytes))
	return st, nil
}

func (s *Store) sumBodySizes(hashes map[string]bool) int64 {
	var total int64
	for hash := range hashes {
		for _, kind := range []string{"req", "res"} {
			if info, err := os.Stat(s.bodyPath(hash, kind)); err == nil {
				total += info.Size()
			}
		}
	}
	return total
}

// Clear removes entries matching filter (or every entry, if filter is nil),
// then garbage-collects body files no longer referenced.
func (s *Store) Clear(filter *Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readAllEntries()
	if err != nil {
		return fmt.Errorf("capture: clear: %w", err)
	}

	var keep []Entry
	if filter != nil {
		for _, e := range entries {
			if !filter.Match(e) {
				keep = append(keep, e)
			}
		}
	}
	return s.rewrite(keep)
}

// Cleanup performs the atomic rewrite described in spec.md §4.B: drop
// entries older than TTL, drop the oldest entries while the on-disk body
// total exceeds the size cap, delete orphaned body files, then atomically
// replace requests.jsonl. Body deletion happens after the surviving set is
// computed and before the rename, so a crash mid-cleanup yields only
// orphaned entries (bodies missing, entry still readable) rather than
// dangling body files with no entry.
func (s *Store) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readAllEntries()
	if err != nil {
		return fmt.Errorf("capture: cleanup: read: %w", err)
	}

	now := time.Now().UTC()
	cutoff := now.Add(-s.ttl)
	var surviving []Entry
	for _, e := range entries {
		if e.Timestamp.Before(cutoff) {
			continue
		}
		surviving = append(surviving, e)
	}

	sort.Slice(surviving, func(i, j int) bool {
		return surviving[i].Timestamp.Before(surviving[j].Timestamp)
	})

	hashSize := func(e Entry) int64 {
		var n int64
		if e.RequestBodyHash != "" {
			if info, err := os.Stat(s.bodyPath(e.RequestBodyHash, "req")); err == nil {
				n += info.Size()
			}
		}
		if e.ResponseBodyHash != "" {
			if info, err := os.Stat(s.bodyPath(e.ResponseBodyHash, "res")); err == nil {
				n += info.Size()
			}
		}
		return n
	}

	var total int64
	sizes := make([]int64, len(surviving))
	for i, e := range surviving {
		sizes[i] = hashSize(e)
		total += sizes[i]
	}
	start := 0
	for total > s.maxBytes && start < len(surviving) {
		total -= sizes[start]
		start++
	}
	surviving = surviving[start:]

	survivingHashes := map[string]bool{}
	for _, e := range surviving {
		if e.RequestBodyHash != "" {
			survivingHashes[e.RequestBodyHash] = true
		}
		if e.ResponseBodyHash != "" {
			survivingHashes[e.ResponseBodyHash] = true
		}
	}

	if err := s.deleteOrphanedBodies(survivingHashes); err != nil {
		s.logf("capture: cleanup: delete orphaned bodies: %v", err)
	}

	if err := s.rewrite(surviving); err != nil {
		return fmt.Errorf("capture: cleanup: rewrite: %w", err)
	}

	s.lastCleanup = now
	if err := s.writeMeta(meta{LastCleanup: now}); err != nil {
		s.logf("capture: cleanup: write meta: %v", err)
	}

	if s.index != nil {
		if err := s.index.Rebuild(surviving); err != nil {
			s.logf("capture: index rebuild: %v", err)
		}
	}
	return nil
}

func (s *Store) deleteOrphanedBodies(keep map[string]bool) error {
	dirEntries, err := os.ReadDir(s.bodiesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, de := range dirEntries {
		name := de.Name()
		hash, _, ok := strings.Cut(name, ".")
		if !ok || keep[hash] {
			continue
		}
		if err := os.Remove(filepath.Join(s.bodiesDir(), name)); err != nil {
			return err
		}
	}
	return nil
}

// rewrite atomically replaces requests.jsonl with the given entries via a
// temp-file-then-rename, so readers never observe a partially written log.
func (s *Store) rewrite(entries []Entry) error {
	tmp, err := os.CreateTemp(s.baseDir, "requests-*.jsonl.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	w := bufio.NewWriter(tmp)
	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			tmp.Close()
			return err
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.requestsPath())
}

func (s *Store) readMeta() (meta, error) {
	data, err := os.ReadFile(s.metaPath())
	if err != nil {
		return meta{}, err
	}
	var m meta
	if err := json.Unmarshal(data, &m); err != nil {
		return meta{}, err
	}
	return m, nil
}

func (s *Store) writeMeta(m meta) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(s.metaPath(), data, 0o600)
}

// ShouldAutoCleanup reports whether enough time has passed since the last
// cleanup to run another one, per the "at most once per hour" rule.
func (s *Store) ShouldAutoCleanup() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastCleanup) >= cleanupMinInterval
}
