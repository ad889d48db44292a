package domain

import (
	"context"
	"time"
)

// User is a bot user recorded on /start.
type User struct {
	TelegramID int64
	Username   string
	CreatedAt  time.Time
	LastSeenAt time.Time
}

// DownloadRecord is the persisted summary of one delivery attempt.
type DownloadRecord struct {
	ID         string
	ChatID     int64
	SenderID   int64
	URL        string
	Category   SourceCategory
	Outcome    Outcome
	Title      string
	SizeBytes  int64
	DurationMS int64
	CreatedAt  time.Time
}

// OutcomeCounts is a per-outcome tally for one sender.
type OutcomeCounts map[Outcome]int

// Store persists users and download history.
type Store interface {
	UpsertUser(ctx context.Context, u User) error
	RecordDownload(ctx context.Context, rec DownloadRecord) error
	RecentDownloads(ctx context.Context, limit int) ([]DownloadRecord, error)
	CountsBySender(ctx context.Context, senderID int64) (OutcomeCounts, error)
	Close() error
}
