package promo

import (
	"regexp"
	"time"

	"gato-backoffice/services/ledger"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9_-]{3,}$`)

type PromoCode struct {
	ID        string          `gorm:"column:id;primaryKey" json:"id"`
	Code      string          `gorm:"column:code;not null;uniqueIndex" json:"code"`
	Amount    int64           `gorm:"column:amount;not null" json:"amount"`
	Type      ledger.Currency `gorm:"column:type;not null" json:"type"`
	MaxUses   *int64          `gorm:"column:max_uses" json:"max_uses,omitempty"`
	UsedCount int64           `gorm:"column:used_count;not null;default:0" json:"used_count"`
	ExpiresAt *time.Time      `gorm:"column:expires_at" json:"expires_at,omitempty"`
	CreatedBy string          `gorm:"column:created_by" json:"created_by"`
	CreatedAt time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (p *PromoCode) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}

func (p *PromoCode) Exhausted() bool {
	return p.MaxUses != nil && p.UsedCount >= *p.MaxUses
}

// Redemption is unique per (code, user).
type Redemption struct {
	ID            string    `gorm:"column:id;primaryKey" json:"id"`
	CodeID        string    `gorm:"column:code_id;not null;uniqueIndex:idx_redemptions_code_user,priority:1" json:"code_id"`
	UserID        string    `gorm:"column:user_id;not null;uniqueIndex:idx_redemptions_code_user,priority:2" json:"user_id"`
	TransactionID string    `gorm:"column:transaction_id" json:"transaction_id"`
	CreatedAt     time.Time `gorm:"column:created_at" json:"created_at"`
}

type RedemptionResult struct {
	Code          string          `json:"code"`
	Amount        int64           `json:"amount"`
	Currency      ledger.Currency `json:"currency"`
	UsedCount     int64           `json:"used_count"`
	TransactionID string          `json:"transaction_id"`
}
