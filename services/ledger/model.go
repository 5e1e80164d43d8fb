package ledger

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"
)

type Currency string

const (
	CurrencyPremium Currency = "PREMIUM"
	CurrencyLite    Currency = "LITE"
)

func (c Currency) Valid() bool {
	return c == CurrencyPremium || c == CurrencyLite
}

type TransactionType string

const (
	TypeDeposit TransactionType = "DEPOSIT"
	TypeSpend   TransactionType = "SPEND"
	TypeBonus   TransactionType = "BONUS"
	TypeEarn    TransactionType = "EARN"
	TypeRefund  TransactionType = "REFUND"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TypeDeposit, TypeSpend, TypeBonus, TypeEarn, TypeRefund:
		return true
	}
	return false
}

// GenesisHash is the previous hash of a user's first transaction.
const GenesisHash = "GENESIS"

// Transaction is an append-only ledger row. Rows are chained per user through
// Sequence and PreviousHash.
type Transaction struct {
	ID           string          `gorm:"column:id;primaryKey" json:"id"`
	UserID       string          `gorm:"column:user_id;not null;uniqueIndex:idx_transactions_user_seq,priority:1" json:"user_id"`
	Sequence     int64           `gorm:"column:sequence;not null;uniqueIndex:idx_transactions_user_seq,priority:2" json:"sequence"`
	Amount       int64           `gorm:"column:amount;not null" json:"amount"`
	Currency     Currency        `gorm:"column:currency;not null;index" json:"currency"`
	Type         TransactionType `gorm:"column:type;not null" json:"type"`
	Description  string          `gorm:"column:description" json:"description"`
	Reference    string          `gorm:"column:reference;index" json:"reference"`
	Metadata     datatypes.JSON  `gorm:"column:metadata" json:"metadata,omitempty"`
	PreviousHash string          `gorm:"column:previous_hash" json:"previous_hash"`
	Hash         string          `gorm:"column:hash" json:"hash"`
	CreatedAt    time.Time       `gorm:"column:created_at;index" json:"created_at"`
}

// LiteCoinBatch is one grant of LITE currency. Remaining is drawn down by
// spends; a batch past ExpiresAt counts for nothing but is kept.
type LiteCoinBatch struct {
	ID            string    `gorm:"column:id;primaryKey" json:"id"`
	UserID        string    `gorm:"column:user_id;not null;index" json:"user_id"`
	TransactionID string    `gorm:"column:transaction_id" json:"transaction_id"`
	Amount        int64     `gorm:"column:amount;not null" json:"amount"`
	Remaining     int64     `gorm:"column:remaining;not null" json:"remaining"`
	ExpiresAt     time.Time `gorm:"column:expires_at;not null;index" json:"expires_at"`
	CreatedAt     time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (b *LiteCoinBatch) Expired(now time.Time) bool {
	return !b.ExpiresAt.After(now)
}

// TimePrecision is the created_at resolution every supported store keeps.
// MySQL columns are datetime(3), so finer timestamps would not survive a
// round trip and the chain would stop verifying.
const TimePrecision = time.Millisecond

const hashTimeLayout = "2006-01-02T15:04:05.000Z07:00"

func (t *Transaction) HashFields() map[string]string {
	return map[string]string{
		"id":            t.ID,
		"user_id":       t.UserID,
		"sequence":      fmt.Sprintf("%d", t.Sequence),
		"amount":        fmt.Sprintf("%d", t.Amount),
		"currency":      string(t.Currency),
		"type":          string(t.Type),
		"description":   t.Description,
		"reference":     t.Reference,
		"created_at":    t.CreatedAt.UTC().Truncate(TimePrecision).Format(hashTimeLayout),
		"previous_hash": t.PreviousHash,
	}
}

func (t *Transaction) GenerateHash() string {
	fields := t.HashFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+fields[k])
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// GenerateReference is the fallback reference code when no sequence
// generator is configured.
func GenerateReference(now time.Time, currency Currency) (string, error) {
	r := make([]byte, 3)
	if _, err := rand.Read(r); err != nil {
		return "", err
	}
	prefix := "TX"
	if currency != "" {
		prefix += string(currency[:1])
	}
	return fmt.Sprintf("%s-%s-%X", prefix, now.UTC().Format("060102"), r), nil
}
