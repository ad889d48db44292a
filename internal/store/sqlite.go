// Package store persists bot users and download history in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"clipbot/internal/bus"
	"clipbot/internal/domain"
)

// SQLiteStore implements domain.Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ domain.Store = (*SQLiteStore)(nil)

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// UpsertUser records a user. created_at is kept from the first insert;
// username and last_seen_at are refreshed.
func (s *SQLiteStore) UpsertUser(ctx context.Context, u domain.User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.LastSeenAt.IsZero() {
		u.LastSeenAt = now
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (telegram_id, username, created_at, last_seen_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(telegram_id) DO UPDATE SET
			username = excluded.username,
			last_seen_at = excluded.last_seen_at`,
		u.TelegramID, u.Username, u.CreatedAt, u.LastSeenAt,
	)
	if err != nil {
		return fmt.Errorf("upsert user %d: %w", u.TelegramID, err)
	}
	return nil
}

// CountUsers returns the number of known users.
func (s *SQLiteStore) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) RecordDownload(ctx context.Context, rec domain.DownloadRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO downloads
			(id, chat_id, sender_id, url, category, outcome, title, size_bytes, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ChatID, rec.SenderID, rec.URL, string(rec.Category), string(rec.Outcome),
		rec.Title, rec.SizeBytes, rec.DurationMS, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record download %s: %w", rec.ID, err)
	}
	return nil
}

// RecentDownloads returns the newest records first.
func (s *SQLiteStore) RecentDownloads(ctx context.Context, limit int) ([]domain.DownloadRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, sender_id, url, category, outcome, title, size_bytes, duration_ms, created_at
		 FROM downloads ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DownloadRecord
	for rows.Next() {
		var rec domain.DownloadRecord
		var category, outcome string
		if err := rows.Scan(&rec.ID, &rec.ChatID, &rec.SenderID, &rec.URL, &category, &outcome,
			&rec.Title, &rec.SizeBytes, &rec.DurationMS, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Category = domain.SourceCategory(category)
		rec.Outcome = domain.Outcome(outcome)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountsBySender(ctx context.Context, senderID int64) (domain.OutcomeCounts, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM downloads WHERE sender_id = ? GROUP BY outcome`, senderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(domain.OutcomeCounts)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[domain.Outcome(outcome)] = n
	}
	return counts, rows.Err()
}

// Ping checks that the database answers.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Subscribe records every finished delivery that was an actual request.
// Write errors are logged; history is best-effort.
func (s *SQLiteStore) Subscribe(events *bus.EventBus) {
	events.On(bus.EventDeliveryFinished, func(e bus.Event) {
		rec, ok := e.Payload.(domain.DownloadRecord)
		if !ok || rec.Outcome == domain.OutcomeNotRequest {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.RecordDownload(ctx, rec); err != nil {
			s.logger.Warn("download history write failed", "id", rec.ID, "err", err)
		}
	})
}
