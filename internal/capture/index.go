package capture

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Index is a queryable sqlite projection of the network-capture log,
// rebuilt from requests.jsonl on demand. requests.jsonl remains the durable
// source of truth; the index only accelerates filtered queries and stats
// over large logs, mirroring the bootstrap pattern in internal/store/store.go.
type Index struct {
	db *sql.DB
}

// OpenIndex opens (creating if absent) a sqlite database at path in WAL mode.
func OpenIndex(path string) (*Index, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("capture: open index: %w", err)
	}
	idx := &Index{db: db}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Index) migrate() error {
	_, err := idx.db.Exec(`
		CREATE TABLE IF NOT EXISTS network_entries (
			id TEXT PRIMARY KEY,
			timestamp_unix INTEGER NOT NULL,
			origin TEXT NOT NULL,
			method TEXT NOT NULL,
			status INTEGER NOT NULL,
			content_type TEXT,
			has_body INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_network_entries_origin ON network_entries(origin);
		CREATE INDEX IF NOT EXISTS idx_network_entries_status ON network_entries(status);
		CREATE INDEX IF NOT EXISTS idx_network_entries_timestamp ON network_entries(timestamp_unix);
	`)
	if err != nil {
		return fmt.Errorf("capture: migrate index: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (idx *Index) Close() error { return idx.db.Close() }

// Rebuild replaces the index contents with the given entries in a single
// transaction, used after every Store.Cleanup when the index is attached to
// a Store.
func (idx *Index) Rebuild(entries []Entry) error {
	tx, err := idx.db.Begin()
	if err != nil {
		return fmt.Errorf("capture: index rebuild begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM network_entries`); err != nil {
		return fmt.Errorf("capture: index rebuild clear: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO network_entries (id, timestamp_unix, origin, method, status, content_type, has_body)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("capture: index rebuild prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		hasBody := 0
		if e.RequestBodyHash != "" || e.ResponseBodyHash != "" {
			hasBody = 1
		}
		if _, err := stmt.Exec(e.ID, e.Timestamp.Unix(), origin(e.URL), e.Method, e.Status, e.ContentType, hasBody); err != nil {
			return fmt.Errorf("capture: index rebuild insert %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

// Upsert records a single new entry without a full rebuild, used after
// Store.Append.
func (idx *Index) Upsert(e Entry) error {
	hasBody := 0
	if e.RequestBodyHash != "" || e.ResponseBodyHash != "" {
		hasBody = 1
	}
	_, err := idx.db.Exec(`
		INSERT INTO network_entries (id, timestamp_unix, origin, method, status, content_type, has_body)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			timestamp_unix=excluded.timestamp_unix, origin=excluded.origin,
			method=excluded.method, status=excluded.status,
			content_type=excluded.content_type, has_body=excluded.has_body
	`, e.ID, e.Timestamp.Unix(), origin(e.URL), e.Method, e.Status, e.ContentType, hasBody)
	if err != nil {
		return fmt.Errorf("capture: index upsert %s: %w", e.ID, err)
	}
	return nil
}

// OriginCounts returns the entry count per origin, using the origin index.
func (idx *Index) OriginCounts() (map[string]int, error) {
	rows, err := idx.db.Query(`SELECT origin, COUNT(*) FROM network_entries GROUP BY origin`)
	if err != nil {
		return nil, fmt.Errorf("capture: index origin counts: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var o string
		var n int
		if err := rows.Scan(&o, &n); err != nil {
			return nil, err
		}
		counts[o] = n
	}
	return counts, rows.Err()
}

// IDsSince returns entry ids with timestamp_unix >= since, oldest first,
// capped to limit (0 = unlimited). Useful for an indexed tail query without
// scanning the whole jsonl log.
func (idx *Index) IDsSince(since time.Time, limit int) ([]string, error) {
	query := `SELECT id FROM network_entries WHERE timestamp_unix >= ? ORDER BY timestamp_unix ASC`
	args := []any{since.Unix()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := idx.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("capture: index ids since: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
