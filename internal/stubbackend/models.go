package stubbackend

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WalletEntry mirrors the wallet_entries table the stub persists ledger
// history in.
type WalletEntry struct {
	EntryID        string         `gorm:"primaryKey"`
	UserID         string         `gorm:"not null;index:idx_wallet_entries_user_created,priority:1"`
	Type           string         `gorm:"not null"`
	AmountCents    int64          `gorm:"not null"`
	ReservationID  string         `gorm:"not null;default:''"`
	IdempotencyKey string         `gorm:"not null;index:uniq_wallet_entry_idem,unique"`
	Metadata       datatypes.JSON `gorm:"not null"`
	CreatedAt      time.Time      `gorm:"not null;index:idx_wallet_entries_user_created,priority:2"`
}

func (WalletEntry) TableName() string { return "wallet_entries" }

func (entry *WalletEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}
