package store

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"clipbot/internal/bus"
	"clipbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sub", "clipbot.db"), testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// --- migrations ---

func TestRunMigrations_Idempotent(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	for i := 0; i < 2; i++ {
		if err := RunMigrations(db, testLogger()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	version, err := GetSchemaVersion(db)
	if err != nil {
		t.Fatal(err)
	}
	if version != schemaVersion {
		t.Errorf("expected schema version %d, got %d", schemaVersion, version)
	}

	for _, table := range []string{"users", "downloads", "schema_version"} {
		var name string
		if err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name); err != nil {
			t.Errorf("expected table %s: %v", table, err)
		}
	}
}

func TestGetSchemaVersion_FreshDB(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "fresh.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	v, err := GetSchemaVersion(db)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0 {
		t.Errorf("expected 0, got %d", v)
	}
}

// --- users ---

func TestUpsertUser_KeepsCreatedAt(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	first := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	if err := s.UpsertUser(ctx, domain.User{TelegramID: 42, Username: "old", CreatedAt: first, LastSeenAt: first}); err != nil {
		t.Fatal(err)
	}

	later := first.Add(48 * time.Hour)
	if err := s.UpsertUser(ctx, domain.User{TelegramID: 42, Username: "new", CreatedAt: later, LastSeenAt: later}); err != nil {
		t.Fatal(err)
	}

	var u domain.User
	err := s.db.QueryRowContext(ctx,
		`SELECT username, created_at, last_seen_at FROM users WHERE telegram_id = ?`, 42,
	).Scan(&u.Username, &u.CreatedAt, &u.LastSeenAt)
	if err != nil {
		t.Fatal(err)
	}
	if u.Username != "new" {
		t.Errorf("expected username refreshed, got %q", u.Username)
	}
	if !u.CreatedAt.Equal(first) {
		t.Errorf("expected created_at %v kept, got %v", first, u.CreatedAt)
	}
	if !u.LastSeenAt.Equal(later) {
		t.Errorf("expected last_seen_at %v, got %v", later, u.LastSeenAt)
	}

	n, err := s.CountUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 user, got %d", n)
	}
}

// --- downloads ---

func TestRecentDownloads_NewestFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		rec := domain.DownloadRecord{
			ID: id, ChatID: 1, SenderID: 7, URL: "https://youtu.be/" + id,
			Category: domain.CategoryLongForm, Outcome: domain.OutcomeDelivered,
			Title: "Video " + id, SizeBytes: 1024, DurationMS: 1500,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.RecordDownload(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	recs, err := s.RecentDownloads(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].ID != "c" || recs[1].ID != "b" {
		t.Errorf("expected [c b], got [%s %s]", recs[0].ID, recs[1].ID)
	}
	if recs[0].Category != domain.CategoryLongForm || recs[0].Outcome != domain.OutcomeDelivered {
		t.Errorf("unexpected enums: %+v", recs[0])
	}
}

func TestCountsBySender(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	outcomes := []domain.Outcome{
		domain.OutcomeDelivered, domain.OutcomeDelivered, domain.OutcomeFetchFailed, domain.OutcomeNoFile,
	}
	for i, o := range outcomes {
		s.RecordDownload(ctx, domain.DownloadRecord{
			ID: string(rune('a' + i)), SenderID: 7, URL: "https://x", Category: domain.CategoryOther, Outcome: o,
		})
	}
	s.RecordDownload(ctx, domain.DownloadRecord{ID: "other", SenderID: 8, URL: "https://x", Category: domain.CategoryOther, Outcome: domain.OutcomeDelivered})

	counts, err := s.CountsBySender(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if counts[domain.OutcomeDelivered] != 2 {
		t.Errorf("expected 2 delivered, got %d", counts[domain.OutcomeDelivered])
	}
	if counts[domain.OutcomeFetchFailed] != 1 || counts[domain.OutcomeNoFile] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

// --- event subscription ---

func TestSubscribe_RecordsFinishedDeliveries(t *testing.T) {
	s := testStore(t)
	events := bus.NewEventBus(testLogger())
	s.Subscribe(events)

	events.Emit(bus.Event{Type: bus.EventDeliveryFinished, Payload: domain.DownloadRecord{
		ID: "req-1", SenderID: 5, URL: "https://youtu.be/x", Category: domain.CategoryLongForm, Outcome: domain.OutcomeDelivered,
	}})
	events.Emit(bus.Event{Type: bus.EventDeliveryFinished, Payload: domain.DownloadRecord{
		ID: "req-2", SenderID: 5, Category: domain.CategoryOther, Outcome: domain.OutcomeNotRequest,
	}})

	recs, err := s.RecentDownloads(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].ID != "req-1" {
		t.Errorf("expected only req-1 recorded, got %+v", recs)
	}
}
