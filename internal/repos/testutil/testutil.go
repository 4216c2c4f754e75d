package testutil

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/mementolink/mementolink-backend/internal/platform/logger"
	"github.com/mementolink/mementolink-backend/internal/types"
)

var (
	dbOnce sync.Once
	db     *gorm.DB
	dbErr  error

	logOnce sync.Once
	logg    *logger.Logger
	logErr  error

	dbSeq atomic.Int64
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// DB returns a migrated handle: TEST_POSTGRES_DSN when set, otherwise an
// in-memory SQLite database so the suite runs without infrastructure.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	dbOnce.Do(func() {
		cfg := &gorm.Config{
			DisableForeignKeyConstraintWhenMigrating: true,
			Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
		}

		if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
			db, dbErr = gorm.Open(postgres.Open(dsn), cfg)
			if dbErr == nil {
				dbErr = db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error
			}
		} else {
			name := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", dbSeq.Add(1))
			db, dbErr = gorm.Open(sqlite.Open(name), cfg)
		}
		if dbErr != nil {
			return
		}

		dbErr = db.AutoMigrate(
			&types.Tenant{},
			&types.User{},
			&types.Order{},
			&types.ClaimRequest{},
			&types.Memory{},
			&types.PublicPage{},
			&types.WebhookEvent{},
		)
	})
	if dbErr != nil {
		tb.Fatalf("failed to init test db: %v", dbErr)
	}
	return db
}

// Tx begins a transaction rolled back when the test finishes, so tests never
// see each other's rows.
func Tx(tb testing.TB, db *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := db.Begin()
	if tx.Error != nil {
		tb.Fatalf("failed to begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback()
	})
	return tx
}

func SeedTenant(tb testing.TB, ctx context.Context, tx *gorm.DB, id, legacyID, companyID string) *types.Tenant {
	tb.Helper()
	t := &types.Tenant{
		ID:          id,
		LegacyID:    legacyID,
		CompanyID:   companyID,
		DisplayName: id,
	}
	if err := tx.WithContext(ctx).Create(t).Error; err != nil {
		tb.Fatalf("seed tenant: %v", err)
	}
	return t
}

func SeedClaimRequest(tb testing.TB, ctx context.Context, tx *gorm.DB, email, tenant, status string) *types.ClaimRequest {
	tb.Helper()
	cr := &types.ClaimRequest{
		ID:     uuid.New(),
		Email:  email,
		Tenant: tenant,
		LpID:   "lp-test",
		Source: types.ClaimSourceManualEntry,
		Status: status,
	}
	if err := tx.WithContext(ctx).Create(cr).Error; err != nil {
		tb.Fatalf("seed claim request: %v", err)
	}
	return cr
}

func SeedOrder(tb testing.TB, ctx context.Context, tx *gorm.DB, orderID, email, tenant string) *types.Order {
	tb.Helper()
	o := &types.Order{
		ID:            uuid.New(),
		OrderID:       orderID,
		Email:         email,
		Tenant:        tenant,
		PaymentStatus: types.PaymentStatusPending,
		Status:        types.OrderStatusDraft,
	}
	if err := tx.WithContext(ctx).Create(o).Error; err != nil {
		tb.Fatalf("seed order: %v", err)
	}
	return o
}

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, email, tenant string) *types.User {
	tb.Helper()
	u := &types.User{
		ID:       uuid.New(),
		Email:    email,
		Tenant:   tenant,
		Password: "pw",
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedMemory(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerUID uuid.UUID, tenant string) *types.Memory {
	tb.Helper()
	now := time.Now().UTC()
	m := &types.Memory{
		ID:        uuid.New(),
		OwnerUID:  ownerUID,
		Tenant:    tenant,
		Title:     "memory",
		Status:    types.MemoryStatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed memory: %v", err)
	}
	return m
}
