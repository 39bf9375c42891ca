package repo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-reading-backend/internal/domain"
)

func newIdemDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("idem_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := db.AutoMigrate(&domain.Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestIdempotency_CreateGetAndExpiry(t *testing.T) {
	db := newIdemDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec, err := CreateIdempotency(ctx, db, "u1", "k1", "r-1", time.Hour)
	if err != nil || rec.ReadingID != "r-1" {
		t.Fatalf("create: %+v err=%v", rec, err)
	}

	got, err := GetIdempotency(ctx, db, "u1", "k1", now)
	if err != nil || got.ReadingID != "r-1" {
		t.Fatalf("get: %+v err=%v", got, err)
	}

	// Expired records are invisible.
	if _, err := GetIdempotency(ctx, db, "u1", "k1", now.Add(2*time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired get: want ErrNotFound, got %v", err)
	}

	// Blank keys never match.
	if _, err := GetIdempotency(ctx, db, "u1", "  ", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("blank key: want ErrNotFound, got %v", err)
	}
}

func TestIdempotency_DuplicateKeyPerUser(t *testing.T) {
	db := newIdemDB(t)
	ctx := context.Background()

	if _, err := CreateIdempotency(ctx, db, "u1", "k1", "r-1", time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, "u1", "k1", "r-2", time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("want ErrDuplicate, got %v", err)
	}
	// Same key under a different user is a separate record.
	if _, err := CreateIdempotency(ctx, db, "u2", "k1", "r-3", time.Hour); err != nil {
		t.Fatalf("other user: %v", err)
	}
}

func TestIdempotency_PurgeExpired(t *testing.T) {
	db := newIdemDB(t)
	ctx := context.Background()

	_, _ = CreateIdempotency(ctx, db, "u1", "old", "r-1", time.Millisecond)
	_, _ = CreateIdempotency(ctx, db, "u1", "new", "r-2", time.Hour)

	n, err := PurgeExpiredIdempotency(ctx, db, time.Now().UTC().Add(time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("purge: n=%d err=%v", n, err)
	}
	if _, err := GetIdempotency(ctx, db, "u1", "new", time.Now().UTC()); err != nil {
		t.Fatalf("surviving record: %v", err)
	}
}
