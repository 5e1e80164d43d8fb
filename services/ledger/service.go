package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gato-backoffice/pkg/access"
	"gato-backoffice/pkg/config"
	"gato-backoffice/pkg/db/option"
	"gato-backoffice/pkg/db/pagination"
	"gato-backoffice/pkg/errutil"
	"gato-backoffice/pkg/identity"
	"gato-backoffice/pkg/logger"
	"gato-backoffice/pkg/repository"
	"gato-backoffice/pkg/sequence"
	"gato-backoffice/services/user"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultLiteValidityDays = 30

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	access   *access.Enforcer
	sequence sequence.Generator
	now      func() time.Time

	liteValidityDays int

	transactions repository.Repository[Transaction]
	batches      repository.Repository[LiteCoinBatch]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Access   *access.Enforcer
	Config   *config.Config     `optional:"true"`
	Sequence sequence.Generator `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	days := defaultLiteValidityDays
	if p.Config != nil && p.Config.Economy.DefaultLiteValidityDays > 0 {
		days = p.Config.Economy.DefaultLiteValidityDays
	}

	return &Service{
		db:       p.DB,
		node:     p.Node,
		access:   p.Access,
		sequence: p.Sequence,
		now:      time.Now,

		liteValidityDays: days,

		transactions: repository.ProvideStore[Transaction](p.DB),
		batches:      repository.ProvideStore[LiteCoinBatch](p.DB),
	}
}

// Change is one ledger mutation. Amount is signed; negative is a debit.
type Change struct {
	UserID      string
	Currency    Currency
	Amount      int64
	Type        TransactionType
	Description string
	Metadata    map[string]any
	// ValidForDays applies to LITE credits; zero means the configured default.
	ValidForDays int
	// Reference is the human reference code. Empty means a generated one.
	Reference string
}

type Result struct {
	Transaction *Transaction   `json:"transaction"`
	Batch       *LiteCoinBatch `json:"batch,omitempty"`
}

func (c Change) validate() error {
	if c.UserID == "" {
		return errutil.ValidationFailed("user id is required", nil)
	}
	if !c.Currency.Valid() {
		return errutil.ValidationFailed("invalid currency", nil, errutil.WithDetails(errutil.Detail{Field: "currency", Message: "must be PREMIUM or LITE"}))
	}
	if !c.Type.Valid() {
		return errutil.ValidationFailed("invalid transaction type", nil)
	}
	if c.Amount == 0 {
		return errutil.ValidationFailed("amount must not be zero", nil, errutil.WithDetails(errutil.Detail{Field: "amount", Message: "must not be zero"}))
	}
	if c.ValidForDays < 0 {
		return errutil.ValidationFailed("validity must not be negative", nil)
	}
	return nil
}

// Reference returns a reference code for a transaction in currency. Redis
// failures fall back to a random code.
func (s *Service) Reference(ctx context.Context, currency Currency) string {
	if s.sequence != nil {
		code, err := s.sequence.NextTransactionCode(ctx, string(currency))
		if err == nil {
			return code
		}
		logger.FromContext(ctx).Warn("sequence generator unavailable, using random reference", zap.Error(err))
	}
	code, err := GenerateReference(s.now(), currency)
	if err != nil {
		return ""
	}
	return code
}

// Apply runs one change in its own transaction. Touching another user's
// balance or crediting one's own requires the ledger:adjust capability.
func (s *Service) Apply(ctx context.Context, actor identity.Actor, c Change) (*Result, error) {
	if actor.Anonymous() {
		return nil, errutil.Unauthorized("authentication required", nil)
	}
	if actor.ID != c.UserID || c.Amount > 0 {
		if err := s.access.Require(actor, access.LedgerAdjust); err != nil {
			logger.FromContext(ctx).Warn("ledger change denied",
				zap.String("actor_id", actor.ID), zap.String("user_id", c.UserID))
			return nil, err
		}
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	if c.Reference == "" {
		c.Reference = s.Reference(ctx, c.Currency)
	}

	var res *Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := s.apply(ctx, tx, c)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ApplyTx runs c inside the caller's transaction. Authorization is the
// caller's job.
func (s *Service) ApplyTx(ctx context.Context, tx *gorm.DB, c Change) (*Result, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	return s.apply(ctx, tx, c)
}

func (s *Service) apply(ctx context.Context, tx *gorm.DB, c Change) (*Result, error) {
	log := logger.FromContext(ctx).With(
		zap.String("user_id", c.UserID),
		zap.String("currency", string(c.Currency)),
		zap.Int64("amount", c.Amount),
	)

	u, err := user.LockForUpdate(ctx, tx, c.UserID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC().Truncate(TimePrecision)
	meta := make(map[string]any, len(c.Metadata)+1)
	for k, v := range c.Metadata {
		meta[k] = v
	}

	res := &Result{}
	switch {
	case c.Currency == CurrencyPremium:
		if u.BalancePremium+c.Amount < 0 {
			log.Warn("insufficient premium balance", zap.Int64("balance", u.BalancePremium))
			return nil, errutil.InsufficientFunds(fmt.Sprintf("insufficient premium balance: have %d, need %d", u.BalancePremium, -c.Amount))
		}
		if err := repository.ProvideStore[user.User](tx).Update(ctx, u.ID, map[string]any{
			"balance_premium": gorm.Expr("balance_premium + ?", c.Amount),
		}); err != nil {
			log.Error("failed to update premium balance", zap.Error(err))
			return nil, errutil.Internal("failed to update balance", err)
		}

	case c.Amount > 0:
		days := c.ValidForDays
		if days == 0 {
			days = s.liteValidityDays
		}
		res.Batch = &LiteCoinBatch{
			ID:        s.node.Generate().String(),
			UserID:    u.ID,
			Amount:    c.Amount,
			Remaining: c.Amount,
			ExpiresAt: now.AddDate(0, 0, days),
		}
		meta["batch_id"] = res.Batch.ID
		meta["expires_at"] = res.Batch.ExpiresAt

	default:
		allocations, err := s.depleteLite(ctx, tx, u.ID, -c.Amount, now)
		if err != nil {
			return nil, err
		}
		meta["sources"] = allocations
	}

	last, err := s.transactions.WithTrx(tx).FindOne(ctx, &Transaction{UserID: u.ID},
		option.WithSortBy(option.QuerySortBy{SortBy: "sequence", OrderBy: "desc", Allow: map[string]bool{"sequence": true}}))
	if err != nil {
		log.Error("failed to load last transaction", zap.Error(err))
		return nil, errutil.Internal("failed to load ledger", err)
	}

	entry := &Transaction{
		ID:           s.node.Generate().String(),
		UserID:       u.ID,
		Sequence:     1,
		Amount:       c.Amount,
		Currency:     c.Currency,
		Type:         c.Type,
		Description:  c.Description,
		Reference:    c.Reference,
		PreviousHash: GenesisHash,
		CreatedAt:    now,
	}
	if last != nil {
		entry.Sequence = last.Sequence + 1
		entry.PreviousHash = last.Hash
	}
	if entry.Reference == "" {
		if entry.Reference, err = GenerateReference(now, c.Currency); err != nil {
			return nil, errutil.Internal("failed to generate reference", err)
		}
	}
	if len(meta) > 0 {
		b, err := json.Marshal(meta)
		if err != nil {
			return nil, errutil.Internal("failed to encode metadata", err)
		}
		entry.Metadata = datatypes.JSON(b)
	}
	entry.Hash = entry.GenerateHash()

	if err := s.transactions.WithTrx(tx).Create(ctx, entry); err != nil {
		log.Error("failed to append transaction", zap.Error(err))
		return nil, errutil.Internal("failed to record transaction", err)
	}
	if res.Batch != nil {
		res.Batch.TransactionID = entry.ID
		if err := s.batches.WithTrx(tx).Create(ctx, res.Batch); err != nil {
			log.Error("failed to create lite batch", zap.Error(err))
			return nil, errutil.Internal("failed to create lite batch", err)
		}
	}

	res.Transaction = entry
	log.Info("ledger change applied", zap.String("transaction_id", entry.ID), zap.String("type", string(c.Type)))
	return res, nil
}

func (s *Service) depleteLite(ctx context.Context, tx *gorm.DB, userID string, amount int64, now time.Time) ([]Allocation, error) {
	batches, err := s.batches.WithTrx(tx).Find(ctx, &LiteCoinBatch{UserID: userID},
		option.ApplyOperator(
			option.Condition{Field: "remaining", Operator: option.GT, Value: 0},
			option.Condition{Field: "expires_at", Operator: option.GT, Value: now},
		),
		option.WithLockingUpdate(),
	)
	if err != nil {
		logger.FromContext(ctx).Error("failed to load lite batches", zap.String("user_id", userID), zap.Error(err))
		return nil, errutil.Internal("failed to load lite batches", err)
	}

	allocations, ok := Allocate(batches, amount, now)
	if !ok {
		return nil, errutil.InsufficientFunds(fmt.Sprintf("insufficient lite balance: have %d, need %d", EffectiveBalance(batches, now), amount))
	}

	for _, a := range allocations {
		if err := s.batches.WithTrx(tx).Update(ctx, a.BatchID, map[string]any{
			"remaining": gorm.Expr("remaining - ?", a.Amount),
		}); err != nil {
			return nil, errutil.Internal("failed to update lite batch", err)
		}
	}
	return allocations, nil
}

// GrantLiteBatch credits amount LITE valid for validForDays as a BONUS.
func (s *Service) GrantLiteBatch(ctx context.Context, actor identity.Actor, userID string, amount int64, validForDays int, description string) (*LiteCoinBatch, error) {
	if amount <= 0 {
		return nil, errutil.ValidationFailed("amount must be positive", nil)
	}
	res, err := s.Apply(ctx, actor, Change{
		UserID:       userID,
		Currency:     CurrencyLite,
		Amount:       amount,
		Type:         TypeBonus,
		Description:  description,
		ValidForDays: validForDays,
	})
	if err != nil {
		return nil, err
	}
	return res.Batch, nil
}

// SpendLite debits amount LITE from the soonest-expiring batches first.
func (s *Service) SpendLite(ctx context.Context, actor identity.Actor, userID string, amount int64, description string) (*Transaction, error) {
	if amount <= 0 {
		return nil, errutil.ValidationFailed("amount must be positive", nil)
	}
	res, err := s.Apply(ctx, actor, Change{
		UserID:      userID,
		Currency:    CurrencyLite,
		Amount:      -amount,
		Type:        TypeSpend,
		Description: description,
	})
	if err != nil {
		return nil, err
	}
	return res.Transaction, nil
}

func (s *Service) EffectiveLiteBalance(ctx context.Context, userID string) (int64, error) {
	now := s.now().UTC()
	batches, err := s.batches.Find(ctx, &LiteCoinBatch{UserID: userID},
		option.ApplyOperator(option.Condition{Field: "expires_at", Operator: option.GT, Value: now}))
	if err != nil {
		logger.FromContext(ctx).Error("failed to query lite batches", zap.String("user_id", userID), zap.Error(err))
		return 0, errutil.Internal("failed to load lite balance", err)
	}
	return EffectiveBalance(batches, now), nil
}

type Balance struct {
	UserID  string `json:"user_id"`
	Premium int64  `json:"premium"`
	Lite    int64  `json:"lite"`
}

func (s *Service) Balance(ctx context.Context, userID string) (*Balance, error) {
	u, err := repository.ProvideStore[user.User](s.db).FindByID(ctx, userID)
	if err != nil {
		return nil, errutil.Internal("failed to load user", err)
	}
	if u == nil {
		return nil, errutil.NotFound("user not found", nil)
	}
	lite, err := s.EffectiveLiteBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Balance{UserID: userID, Premium: u.BalancePremium, Lite: lite}, nil
}

// AdjustPremium is the admin manual adjustment. Positive amounts are a BONUS,
// negative ones a SPEND.
func (s *Service) AdjustPremium(ctx context.Context, actor identity.Actor, userID string, amount int64, reason string) (*Transaction, error) {
	if err := s.access.Require(actor, access.LedgerAdjust); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, errutil.ValidationFailed("amount must not be zero", nil)
	}

	typ := TypeBonus
	if amount < 0 {
		typ = TypeSpend
	}
	res, err := s.Apply(ctx, actor, Change{
		UserID:      userID,
		Currency:    CurrencyPremium,
		Amount:      amount,
		Type:        typ,
		Description: "Admin adjustment: " + reason,
		Metadata:    map[string]any{"admin_id": actor.ID},
	})
	if err != nil {
		return nil, err
	}
	return res.Transaction, nil
}

// GrantLite is the admin LITE grant.
func (s *Service) GrantLite(ctx context.Context, actor identity.Actor, userID string, amount int64, days int) (*Result, error) {
	if err := s.access.Require(actor, access.LedgerAdjust); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, errutil.ValidationFailed("amount must be positive", nil)
	}
	if days < 1 {
		return nil, errutil.ValidationFailed("validity must be at least one day", nil)
	}

	return s.Apply(ctx, actor, Change{
		UserID:       userID,
		Currency:     CurrencyLite,
		Amount:       amount,
		Type:         TypeBonus,
		Description:  fmt.Sprintf("Admin grant: %d lite coins for %d days", amount, days),
		Metadata:     map[string]any{"admin_id": actor.ID, "valid_for_days": days},
		ValidForDays: days,
	})
}

func (s *Service) ListTransactions(ctx context.Context, userID string, p pagination.Pagination) ([]*Transaction, error) {
	txs, err := s.transactions.Find(ctx, &Transaction{UserID: userID},
		option.WithSortBy(option.QuerySortBy{SortBy: "sequence", OrderBy: "desc", Allow: map[string]bool{"sequence": true}}),
		option.ApplyPagination(p),
	)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list transactions", zap.String("user_id", userID), zap.Error(err))
		return nil, errutil.Internal("failed to list transactions", err)
	}
	return txs, nil
}

type Reconciliation struct {
	UserID         string `json:"user_id"`
	PremiumLedger  int64  `json:"premium_ledger"`
	PremiumBalance int64  `json:"premium_balance"`
	LiteLedger     int64  `json:"lite_ledger"`
	LiteBatches    int64  `json:"lite_batches"`
	LiteEffective  int64  `json:"lite_effective"`
	ChainValid     bool   `json:"chain_valid"`
	Consistent     bool   `json:"consistent"`
}

// Reconcile compares the transaction log against the stored balances and
// verifies the user's hash chain.
func (s *Service) Reconcile(ctx context.Context, userID string) (*Reconciliation, error) {
	log := logger.FromContext(ctx).With(zap.String("user_id", userID))

	u, err := repository.ProvideStore[user.User](s.db).FindByID(ctx, userID)
	if err != nil {
		return nil, errutil.Internal("failed to load user", err)
	}
	if u == nil {
		return nil, errutil.NotFound("user not found", nil)
	}

	txs, err := s.transactions.Find(ctx, &Transaction{UserID: userID},
		option.WithSortBy(option.QuerySortBy{SortBy: "sequence", OrderBy: "asc", Allow: map[string]bool{"sequence": true}}))
	if err != nil {
		log.Error("failed to load transactions", zap.Error(err))
		return nil, errutil.Internal("failed to load transactions", err)
	}
	batches, err := s.batches.Find(ctx, &LiteCoinBatch{UserID: userID})
	if err != nil {
		log.Error("failed to load lite batches", zap.Error(err))
		return nil, errutil.Internal("failed to load lite batches", err)
	}

	r := &Reconciliation{
		UserID:         userID,
		PremiumBalance: u.BalancePremium,
		LiteEffective:  EffectiveBalance(batches, s.now().UTC()),
		ChainValid:     VerifyChain(txs),
	}
	for _, t := range txs {
		switch t.Currency {
		case CurrencyPremium:
			r.PremiumLedger += t.Amount
		case CurrencyLite:
			r.LiteLedger += t.Amount
		}
	}
	for _, b := range batches {
		r.LiteBatches += b.Remaining
	}
	r.Consistent = r.ChainValid && r.PremiumLedger == r.PremiumBalance && r.LiteLedger == r.LiteBatches

	if !r.Consistent {
		log.Error("ledger reconciliation failed",
			zap.Int64("premium_ledger", r.PremiumLedger), zap.Int64("premium_balance", r.PremiumBalance),
			zap.Int64("lite_ledger", r.LiteLedger), zap.Int64("lite_batches", r.LiteBatches),
			zap.Bool("chain_valid", r.ChainValid))
	}
	return r, nil
}
