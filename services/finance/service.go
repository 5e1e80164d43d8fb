package finance

import (
	"context"
	"time"

	"gato-backoffice/pkg/access"
	"gato-backoffice/pkg/errutil"
	"gato-backoffice/pkg/identity"
	"gato-backoffice/pkg/logger"
	"gato-backoffice/services/ledger"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Period string

const (
	PeriodMonthly Period = "MONTHLY"
	PeriodFull    Period = "FULL"
)

func (p Period) Valid() bool {
	return p == PeriodMonthly || p == PeriodFull
}

// Row is a ledger transaction with the owner's name and email.
type Row struct {
	ledger.Transaction `gorm:"embedded"`
	UserName           string `gorm:"column:user_name" json:"user_name"`
	UserEmail          string `gorm:"column:user_email" json:"user_email"`
}

type Total struct {
	Currency ledger.Currency        `gorm:"column:currency" json:"currency"`
	Type     ledger.TransactionType `gorm:"column:type" json:"type"`
	Amount   int64                  `gorm:"column:amount" json:"amount"`
	Count    int64                  `gorm:"column:count" json:"count"`
}

type Report struct {
	Period       Period     `json:"period"`
	From         *time.Time `json:"from,omitempty"`
	To           time.Time  `json:"to"`
	Totals       []Total    `json:"totals"`
	Transactions []Row      `json:"transactions"`
}

type Service struct {
	db     *gorm.DB
	access *access.Enforcer
	now    func() time.Time
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Access *access.Enforcer
}

func NewService(p ServiceParams) *Service {
	return &Service{db: p.DB, access: p.Access, now: time.Now}
}

// StartOfMonth is 00:00 UTC on the first day of t's month.
func StartOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func (s *Service) scope(db *gorm.DB, from *time.Time, to time.Time) *gorm.DB {
	db = db.Where("t.created_at <= ?", to)
	if from != nil {
		db = db.Where("t.created_at >= ?", *from)
	}
	return db
}

// Report lists the transactions of the period newest first, with totals per
// currency and type.
func (s *Service) Report(ctx context.Context, actor identity.Actor, period Period) (*Report, error) {
	if err := s.access.Require(actor, access.FinanceRead); err != nil {
		return nil, err
	}
	if !period.Valid() {
		return nil, errutil.ValidationFailed("invalid period", nil,
			errutil.WithDetails(errutil.Detail{Field: "period", Message: "must be MONTHLY or FULL"}))
	}

	log := logger.FromContext(ctx).With(zap.String("period", string(period)))

	now := s.now().UTC()
	r := &Report{Period: period, To: now, Totals: []Total{}, Transactions: []Row{}}
	if period == PeriodMonthly {
		from := StartOfMonth(now)
		r.From = &from
	}

	db := s.db.WithContext(ctx)
	err := s.scope(db.Table("transactions AS t"), r.From, r.To).
		Select("t.*, u.name AS user_name, u.email AS user_email").
		Joins("LEFT JOIN users u ON u.id = t.user_id").
		Order("t.created_at DESC").Order("t.id DESC").
		Scan(&r.Transactions).Error
	if err != nil {
		log.Error("failed to load transactions", zap.Error(err))
		return nil, errutil.Internal("failed to build finance report", err)
	}

	err = s.scope(db.Table("transactions AS t"), r.From, r.To).
		Select("t.currency, t.type, SUM(t.amount) AS amount, COUNT(*) AS count").
		Group("t.currency").Group("t.type").
		Order("t.currency").Order("t.type").
		Scan(&r.Totals).Error
	if err != nil {
		log.Error("failed to aggregate transactions", zap.Error(err))
		return nil, errutil.Internal("failed to build finance report", err)
	}

	log.Info("finance report built", zap.Int("transactions", len(r.Transactions)), zap.String("actor_id", actor.ID))
	return r, nil
}
