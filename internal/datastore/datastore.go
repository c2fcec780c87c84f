// Package datastore provides the file-backed bucket store used for staging
// and for reading the store files other devices drop into the sync folder.
//
// Each datastore is a single SQLite file opened in embedded mode with WAL,
// so a pass can read a remote's file while the folder synchronizer is still
// allowed to replace it between passes. One file holds one device's buckets
// and events; nothing in this package ever deletes either.
package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/venkatasai2714/aw-sync/internal/models"
	"github.com/venkatasai2714/aw-sync/internal/store"
)

// Datastore is a file-backed store implementing store.AccessMethod.
type Datastore struct {
	conn *sql.DB
	path string
}

var _ store.AccessMethod = (*Datastore)(nil)

// Open creates a datastore connection at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// If the file doesn't exist, it is created along with the schema. The
// caller MUST call Close() when done.
//
// Example:
//
//	ds, err := datastore.Open(filepath.Join(syncDir, deviceID, "store.db"))
//	if err != nil {
//	    return err
//	}
//	defer ds.Close()
func Open(path string) (*Datastore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create datastore directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open datastore: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping datastore: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	ds := &Datastore{
		conn: conn,
		path: path,
	}

	// Enable WAL mode for concurrent reads
	if _, err := ds.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = ds.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := ds.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = ds.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := ds.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = ds.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := ds.initSchema(context.Background()); err != nil {
		_ = ds.Close()
		return nil, err
	}

	return ds, nil
}

// Path returns the file path the datastore was opened at.
func (ds *Datastore) Path() string {
	return ds.path
}

// Close closes the datastore connection, checkpointing the WAL so all
// changes land in the main file before the folder synchronizer sees it.
func (ds *Datastore) Close() error {
	if ds.conn == nil {
		return nil
	}

	if _, err := ds.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := ds.conn.Close(); err != nil {
		return fmt.Errorf("failed to close datastore: %w", err)
	}

	ds.conn = nil
	return nil
}

// initSchema creates the schema if it doesn't exist. Idempotent.
func (ds *Datastore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS buckets (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL DEFAULT '',
		client TEXT NOT NULL DEFAULT '',
		hostname TEXT NOT NULL DEFAULT '',
		created TEXT,
		data TEXT NOT NULL DEFAULT '{}'  -- JSON object
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		bucket_id TEXT NOT NULL,
		starttime INTEGER NOT NULL,  -- UTC nanoseconds
		endtime INTEGER NOT NULL,    -- UTC nanoseconds
		data TEXT NOT NULL DEFAULT '{}',  -- JSON object
		FOREIGN KEY (bucket_id) REFERENCES buckets(id)
	);

	CREATE INDEX IF NOT EXISTS idx_events_bucket_start
	    ON events(bucket_id, starttime, endtime);
	`

	if _, err := ds.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// GetInfo identifies the datastore by the device folder holding its file,
// following the <sync_dir>/<device_id>/<store_file> layout.
func (ds *Datastore) GetInfo(ctx context.Context) (*models.Info, error) {
	device := filepath.Base(filepath.Dir(ds.path))
	return &models.Info{DeviceID: device, Hostname: device}, nil
}

// GetBuckets returns all buckets keyed by id, with metadata start/end
// filled from the earliest and latest event instants.
func (ds *Datastore) GetBuckets(ctx context.Context) (map[string]*models.Bucket, error) {
	query := `
	SELECT b.id, b.type, b.client, b.hostname, b.created, b.data,
	       MIN(e.starttime), MAX(e.endtime)
	FROM buckets b
	LEFT JOIN events e ON e.bucket_id = b.id
	GROUP BY b.id
	`

	rows, err := ds.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query buckets: %w", err)
	}
	defer rows.Close()

	buckets := make(map[string]*models.Bucket)
	for rows.Next() {
		var b models.Bucket
		var created sql.NullString
		var dataJSON string
		var start, end sql.NullInt64

		if err := rows.Scan(&b.ID, &b.Type, &b.Client, &b.Hostname, &created, &dataJSON, &start, &end); err != nil {
			return nil, fmt.Errorf("failed to scan bucket: %w", err)
		}

		b.Created = nullStringToTime(created)
		if err := json.Unmarshal([]byte(dataJSON), &b.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal bucket %s data: %w", b.ID, err)
		}
		if start.Valid {
			t := time.Unix(0, start.Int64).UTC()
			b.Metadata.Start = &t
		}
		if end.Valid {
			t := time.Unix(0, end.Int64).UTC()
			b.Metadata.End = &t
		}

		buckets[b.ID] = &b
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating buckets: %w", err)
	}

	return buckets, nil
}

// GetBucket retrieves a single bucket by id.
// Returns store.ErrNoSuchBucket if the bucket does not exist.
func (ds *Datastore) GetBucket(ctx context.Context, id string) (*models.Bucket, error) {
	query := `SELECT id, type, client, hostname, created, data FROM buckets WHERE id = ?`
	row := ds.conn.QueryRowContext(ctx, query, id)

	var b models.Bucket
	var created sql.NullString
	var dataJSON string

	err := row.Scan(&b.ID, &b.Type, &b.Client, &b.Hostname, &created, &dataJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("bucket %q: %w", id, store.ErrNoSuchBucket)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket %s: %w", id, err)
	}

	b.Created = nullStringToTime(created)
	if err := json.Unmarshal([]byte(dataJSON), &b.Data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bucket %s data: %w", id, err)
	}

	return &b, nil
}

// CreateBucket inserts a new bucket.
// Returns store.ErrBucketAlreadyExists if the id is taken.
func (ds *Datastore) CreateBucket(ctx context.Context, bucket *models.Bucket) error {
	if err := bucket.Validate(); err != nil {
		return fmt.Errorf("invalid bucket: %w", err)
	}

	if _, err := ds.GetBucket(ctx, bucket.ID); err == nil {
		return fmt.Errorf("bucket %q: %w", bucket.ID, store.ErrBucketAlreadyExists)
	}

	data := bucket.Data
	if data == nil {
		data = map[string]any{}
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal bucket data: %w", err)
	}

	query := `INSERT INTO buckets (id, type, client, hostname, created, data) VALUES (?, ?, ?, ?, ?, ?)`
	_, err = ds.conn.ExecContext(ctx, query,
		bucket.ID,
		bucket.Type,
		bucket.Client,
		bucket.Hostname,
		timeToNullString(bucket.Created),
		string(dataJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket.ID, err)
	}

	return nil
}

// GetEvents returns a bucket's events newest-first, optionally bounded by
// the half-open window [start, end) and a result-count cap (0 = unbounded).
func (ds *Datastore) GetEvents(ctx context.Context, bucketID string, start, end *time.Time, limit int) ([]*models.Event, error) {
	if err := ds.requireBucket(ctx, bucketID); err != nil {
		return nil, err
	}

	query := `SELECT id, starttime, endtime, data FROM events WHERE bucket_id = ?`
	args := []any{bucketID}

	if start != nil {
		query += ` AND starttime >= ?`
		args = append(args, start.UnixNano())
	}
	if end != nil {
		query += ` AND starttime < ?`
		args = append(args, end.UnixNano())
	}

	query += ` ORDER BY starttime DESC, id DESC`

	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := ds.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events for %s: %w", bucketID, err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		var e models.Event
		var startNs, endNs int64
		var dataJSON string

		if err := rows.Scan(&e.ID, &startNs, &endNs, &dataJSON); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		e.Timestamp = time.Unix(0, startNs).UTC()
		e.Duration = time.Duration(endNs - startNs)
		if err := json.Unmarshal([]byte(dataJSON), &e.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
		}

		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// GetEventCount returns how many events the bucket holds.
// Returns store.ErrNoSuchBucket if the bucket does not exist.
func (ds *Datastore) GetEventCount(ctx context.Context, bucketID string) (int, error) {
	if err := ds.requireBucket(ctx, bucketID); err != nil {
		return 0, err
	}

	var count int
	err := ds.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE bucket_id = ?`, bucketID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events for %s: %w", bucketID, err)
	}
	return count, nil
}

// InsertEvents appends events to a bucket in one transaction. Store-local
// ids on the given events are ignored; the datastore assigns its own.
func (ds *Datastore) InsertEvents(ctx context.Context, bucketID string, events []*models.Event) error {
	if err := ds.requireBucket(ctx, bucketID); err != nil {
		return err
	}

	tx, err := ds.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, e := range events {
		if err := insertEventTx(ctx, tx, bucketID, e); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit events: %w", err)
	}
	return nil
}

// Heartbeat inserts the event, merging it into the bucket's most recent
// event when store.CanMerge allows. Returns the stored (possibly merged)
// event.
func (ds *Datastore) Heartbeat(ctx context.Context, bucketID string, event *models.Event, pulse time.Duration) (*models.Event, error) {
	last, err := ds.mostRecentEvent(ctx, bucketID)
	if err != nil {
		return nil, err
	}

	if store.CanMerge(last, event, pulse) {
		merged := store.Merge(last, event)
		query := `UPDATE events SET endtime = ? WHERE id = ?`
		if _, err := ds.conn.ExecContext(ctx, query, merged.EndTime().UnixNano(), last.ID); err != nil {
			return nil, fmt.Errorf("failed to merge heartbeat into event %d: %w", last.ID, err)
		}
		return merged, nil
	}

	inserted := *event
	res, err := ds.conn.ExecContext(ctx,
		`INSERT INTO events (bucket_id, starttime, endtime, data) VALUES (?, ?, ?, ?)`,
		bucketID, event.Timestamp.UnixNano(), event.EndTime().UnixNano(), mustMarshalData(event.Data),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert heartbeat event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		inserted.ID = id
	}
	return &inserted, nil
}

// mostRecentEvent returns the bucket's latest event, or nil if it is empty.
func (ds *Datastore) mostRecentEvent(ctx context.Context, bucketID string) (*models.Event, error) {
	events, err := ds.GetEvents(ctx, bucketID, nil, nil, 1)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return events[0], nil
}

// requireBucket fails with store.ErrNoSuchBucket if the bucket is absent.
func (ds *Datastore) requireBucket(ctx context.Context, bucketID string) error {
	var count int
	err := ds.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM buckets WHERE id = ?`, bucketID).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", bucketID, err)
	}
	if count == 0 {
		return fmt.Errorf("bucket %q: %w", bucketID, store.ErrNoSuchBucket)
	}
	return nil
}

func insertEventTx(ctx context.Context, tx *sql.Tx, bucketID string, e *models.Event) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO events (bucket_id, starttime, endtime, data) VALUES (?, ?, ?, ?)`,
		bucketID, e.Timestamp.UnixNano(), e.EndTime().UnixNano(), mustMarshalData(e.Data),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func mustMarshalData(data map[string]any) string {
	if data == nil {
		return "{}"
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
