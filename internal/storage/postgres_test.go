package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/address-vault/internal/config"
	"github.com/address-vault/internal/models"
	"github.com/address-vault/internal/types"
	"github.com/google/uuid"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func testPostgres(t *testing.T) *PostgresDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := &config.PostgresConfig{
		Host:           "localhost",
		Port:           "5432",
		Database:       "address_vault",
		User:           "vault",
		Password:       "vault_dev_password",
		MaxConnections: 10,
	}

	db, err := NewPostgresDB(cfg)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
	}
	t.Cleanup(db.Close)

	return db
}

func TestNewPostgresDB(t *testing.T) {
	db := testPostgres(t)

	ctx := testContext(t)
	if err := db.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	if db.Pool() == nil {
		t.Error("Pool() returned nil")
	}
}

// TestRecordAccessConcurrentQuota exercises the conditional increment
// against a real database: many racing accesses to a one-use grant must
// produce exactly one success, one counted access, and one audit row.
func TestRecordAccessConcurrentQuota(t *testing.T) {
	db := testPostgres(t)
	ctx := testContext(t)

	repo := NewPermissionRepository(db)

	maxCount := 1
	permission := &models.AddressPermission{
		UserID:         "user-" + uuid.New().String(),
		AppID:          "app_" + uuid.New().String(),
		AppName:        "Quota Race Test",
		AccessToken:    types.AccessToken(uuid.New().String() + uuid.New().String()),
		Scope:          types.DefaultScopeFlags(),
		MaxAccessCount: &maxCount,
	}
	if err := repo.Create(ctx, permission); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = db.Pool().Exec(cleanupCtx, `DELETE FROM access_logs WHERE permission_id = $1`, permission.ID)
		_, _ = db.Pool().Exec(cleanupCtx, `DELETE FROM address_permissions WHERE id = $1`, permission.ID)
	})

	const racers = 8

	var wg sync.WaitGroup
	var successes, exhausted int64
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			entry := &models.AccessLogEntry{
				PermissionID:   permission.ID,
				AccessedFields: []types.AddressField{types.FieldCity},
				IPAddress:      "203.0.113.9",
			}

			_, err := repo.RecordAccess(ctx, entry)
			switch {
			case err == nil:
				atomic.AddInt64(&successes, 1)
			case errors.Is(err, ErrQuotaExhausted):
				atomic.AddInt64(&exhausted, 1)
			default:
				t.Errorf("RecordAccess() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("successes = %d, want exactly 1", successes)
	}
	if exhausted != racers-1 {
		t.Errorf("quota-exhausted failures = %d, want %d", exhausted, racers-1)
	}

	reloaded, err := repo.GetByID(ctx, permission.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if reloaded.AccessCount != 1 {
		t.Errorf("access_count = %d, want 1", reloaded.AccessCount)
	}

	var auditRows int64
	err = db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM access_logs WHERE permission_id = $1`, permission.ID).Scan(&auditRows)
	if err != nil {
		t.Fatalf("audit count query error = %v", err)
	}
	if auditRows != 1 {
		t.Errorf("audit rows = %d, want 1", auditRows)
	}
}
