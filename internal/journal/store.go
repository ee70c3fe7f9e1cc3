// Package journal persists recognised utterances and the replies given to
// them in PostgreSQL, keyed by device.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one dialogue turn.
type Entry struct {
	DeviceID  string
	SessionID string
	Seq       uint64
	UserText  string
	ReplyText string

	// Audio is the length of the user's utterance.
	Audio     time.Duration
	CreatedAt time.Time
}

// Recorder is the write side used by the dialogue layer.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

var _ Recorder = (*Store)(nil)

// Store is a PostgreSQL-backed journal. All methods are safe for concurrent
// use.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to the database at dsn and runs [Migrate].
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("journal: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Record appends a turn. A zero CreatedAt is stored as the database time.
func (s *Store) Record(ctx context.Context, e Entry) error {
	const q = `
		INSERT INTO dialogue_turns
		    (device_id, session_id, seq, user_text, reply_text, audio_ns, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))`

	var at *time.Time
	if !e.CreatedAt.IsZero() {
		at = &e.CreatedAt
	}
	_, err := s.pool.Exec(ctx, q,
		e.DeviceID,
		e.SessionID,
		int64(e.Seq),
		e.UserText,
		e.ReplyText,
		e.Audio.Nanoseconds(),
		at,
	)
	if err != nil {
		return fmt.Errorf("journal: record: %w", err)
	}
	return nil
}

// Recent returns up to limit turns of deviceID, newest first.
func (s *Store) Recent(ctx context.Context, deviceID string, limit int) ([]Entry, error) {
	const q = `
		SELECT device_id, session_id, seq, user_text, reply_text, audio_ns, created_at
		FROM   dialogue_turns
		WHERE  device_id = $1
		ORDER  BY created_at DESC, id DESC
		LIMIT  $2`

	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, q, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e       Entry
			seq     int64
			audioNs int64
		)
		if err := row.Scan(&e.DeviceID, &e.SessionID, &seq, &e.UserText, &e.ReplyText, &audioNs, &e.CreatedAt); err != nil {
			return Entry{}, err
		}
		e.Seq = uint64(seq)
		e.Audio = time.Duration(audioNs)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("journal: scan recent: %w", err)
	}
	return entries, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
