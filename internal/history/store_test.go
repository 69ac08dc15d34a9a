package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/eleven-am/parakeet-wyoming/internal/shared"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	return db
}

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func TestSQLStore_RecordAndGet(t *testing.T) {
	store := NewSQLStore(setupTestDB(t))
	if err := store.Migrate(); err != nil {
		t.Fatalf("migration failed: %v", err)
	}
	ctx := context.Background()

	r := &Record{SessionID: "sess-1", Text: "hello", Status: StatusSuccess, AudioMs: 1000}
	if err := store.Record(ctx, r); err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if r.ID == "" {
		t.Fatal("expected ID to be assigned")
	}

	got, err := store.GetByID(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if got.Text != "hello" || got.SessionID != "sess-1" {
		t.Errorf("unexpected record %+v", got)
	}

	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLStore_ListRecent(t *testing.T) {
	store := NewSQLStore(setupTestDB(t))
	_ = store.Migrate()
	ctx := context.Background()

	base := time.Now()
	for i, text := range []string{"first", "second", "third"} {
		r := &Record{SessionID: "sess-1", Text: text, Status: StatusSuccess, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := store.Record(ctx, r); err != nil {
			t.Fatalf("Record error: %v", err)
		}
	}
	_ = store.Record(ctx, &Record{SessionID: "sess-2", Text: "other", Status: StatusFailed, CreatedAt: base.Add(-time.Minute)})

	recent, err := store.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent error: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recent))
	}
	if recent[0].Text != "third" || recent[1].Text != "second" {
		t.Errorf("expected newest first, got %q, %q", recent[0].Text, recent[1].Text)
	}

	bySession, err := store.ListBySession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("ListBySession error: %v", err)
	}
	if len(bySession) != 3 || bySession[0].Text != "first" {
		t.Errorf("unexpected session records: %+v", bySession)
	}
}

func TestRedisStore_RecordAndMetrics(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	fixed := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	records := []*Record{
		{SessionID: "s1", Text: "a", Status: StatusSuccess, AudioMs: 1000, LatencyMs: 100},
		{SessionID: "s1", Text: "b", Status: StatusSuccess, AudioMs: 500, LatencyMs: 300},
		{SessionID: "s2", Status: StatusFailed, Error: "boom"},
	}
	for _, r := range records {
		if err := store.Record(ctx, r); err != nil {
			t.Fatalf("Record error: %v", err)
		}
	}

	key := MetricsRedisKey("2026-03-14", 9)
	if !mr.Exists(key) {
		t.Fatalf("expected metrics key %s", key)
	}
	if ttl := mr.TTL(key); ttl != metricsTTL {
		t.Errorf("expected ttl %v, got %v", metricsTTL, ttl)
	}

	metrics, err := store.GetMetrics(ctx, 2)
	if err != nil {
		t.Fatalf("GetMetrics error: %v", err)
	}
	if len(metrics) != 1 {
		t.Fatalf("expected 1 hour of metrics, got %d", len(metrics))
	}
	m := metrics[0]
	if m.Transcriptions != 2 || m.Failures != 1 || m.AudioMs != 1500 || m.AvgLatencyMs != 200 {
		t.Errorf("unexpected metrics %+v", m)
	}
}

func TestRedisStore_GetLast(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	if _, err := store.GetLast(ctx, "nobody"); !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	_ = store.Record(ctx, &Record{SessionID: "s1", Text: "first", Status: StatusSuccess})
	_ = store.Record(ctx, &Record{SessionID: "s1", Text: "second", Status: StatusSuccess})

	last, err := store.GetLast(ctx, "s1")
	if err != nil {
		t.Fatalf("GetLast error: %v", err)
	}
	if last.Text != "second" {
		t.Errorf("expected second, got %q", last.Text)
	}
}

type failingRecorder struct{ err error }

func (f failingRecorder) Record(context.Context, *Record) error { return f.err }

type countingRecorder struct{ n int }

func (c *countingRecorder) Record(context.Context, *Record) error {
	c.n++
	return nil
}

func TestMultiRecorder(t *testing.T) {
	counter := &countingRecorder{}
	boom := errors.New("boom")
	m := MultiRecorder{failingRecorder{err: boom}, nil, counter}

	err := m.Record(context.Background(), &Record{})
	if !errors.Is(err, boom) {
		t.Errorf("expected joined error to contain boom, got %v", err)
	}
	if counter.n != 1 {
		t.Errorf("expected remaining recorders to run, got %d calls", counter.n)
	}
}
