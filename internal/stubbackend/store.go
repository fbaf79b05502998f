package stubbackend

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ledgerStore persists wallet entries for the stub. A sum over the
// entries is the balance; there is no separate balance row to drift.
type ledgerStore struct {
	db *gorm.DB
}

func newLedgerStore(dsn string) (*ledgerStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.AutoMigrate(&WalletEntry{}); err != nil {
		return nil, fmt.Errorf("migrate wallet entries: %w", err)
	}
	return &ledgerStore{db: db}, nil
}

func (store *ledgerStore) insertEntry(entry WalletEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := store.db.Create(&entry).Error; err != nil {
		return fmt.Errorf("insert wallet entry: %w", err)
	}
	return nil
}

// spend debits the amount inside a transaction so a concurrent spend
// cannot take the balance negative. The boolean reports whether funds
// were sufficient.
func (store *ledgerStore) spend(entry WalletEntry, amountCents int64) (bool, error) {
	sufficient := false
	err := store.db.Transaction(func(tx *gorm.DB) error {
		var balance int64
		if err := tx.Model(&WalletEntry{}).
			Where("user_id = ?", entry.UserID).
			Select("COALESCE(SUM(amount_cents), 0)").
			Scan(&balance).Error; err != nil {
			return fmt.Errorf("sum balance: %w", err)
		}
		if balance < amountCents {
			return nil
		}
		sufficient = true
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = time.Now().UTC()
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("insert spend entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return sufficient, nil
}

func (store *ledgerStore) balanceCents(userID string) (int64, error) {
	var balance int64
	err := store.db.Model(&WalletEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&balance).Error
	if err != nil {
		return 0, fmt.Errorf("sum balance: %w", err)
	}
	return balance, nil
}

func (store *ledgerStore) listEntries(userID string, limit int) ([]WalletEntry, error) {
	var entries []WalletEntry
	err := store.db.
		Where("user_id = ?", userID).
		Order("created_at DESC, entry_id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list wallet entries: %w", err)
	}
	return entries, nil
}

func (store *ledgerStore) hasIdempotencyKey(key string) (bool, error) {
	var count int64
	err := store.db.Model(&WalletEntry{}).
		Where("idempotency_key = ?", key).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("lookup idempotency key: %w", err)
	}
	return count > 0, nil
}
