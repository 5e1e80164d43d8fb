package promo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gato-backoffice/pkg/access"
	"gato-backoffice/pkg/db/option"
	"gato-backoffice/pkg/db/pagination"
	"gato-backoffice/pkg/errutil"
	"gato-backoffice/pkg/featureflags"
	"gato-backoffice/pkg/identity"
	"gato-backoffice/pkg/logger"
	"gato-backoffice/pkg/repository"
	"gato-backoffice/services/ledger"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	access *access.Enforcer
	ledger *ledger.Service
	flags  featureflags.FeatureFlag
	now    func() time.Time

	codes       repository.Repository[PromoCode]
	redemptions repository.Repository[Redemption]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Access *access.Enforcer
	Ledger *ledger.Service
	Flags  featureflags.FeatureFlag `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	flags := p.Flags
	if flags == nil {
		flags = featureflags.Static{}
	}
	return &Service{
		db:     p.DB,
		node:   p.Node,
		access: p.Access,
		ledger: p.Ledger,
		flags:  flags,
		now:    time.Now,

		codes:       repository.ProvideStore[PromoCode](p.DB),
		redemptions: repository.ProvideStore[Redemption](p.DB),
	}
}

func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type CreateParams struct {
	Code      string          `json:"code" binding:"required"`
	Amount    int64           `json:"amount" binding:"required"`
	Type      ledger.Currency `json:"type" binding:"required"`
	MaxUses   *int64          `json:"max_uses"`
	ExpiresAt *time.Time      `json:"expires_at"`
}

func (p CreateParams) validate() error {
	var details []errutil.Detail
	if !codePattern.MatchString(p.Code) {
		details = append(details, errutil.Detail{Field: "code", Message: "must match [A-Z0-9_-]{3,}"})
	}
	if p.Amount <= 0 {
		details = append(details, errutil.Detail{Field: "amount", Message: "must be positive"})
	}
	if !p.Type.Valid() {
		details = append(details, errutil.Detail{Field: "type", Message: "must be PREMIUM or LITE"})
	}
	if p.MaxUses != nil && *p.MaxUses < 0 {
		details = append(details, errutil.Detail{Field: "max_uses", Message: "must not be negative"})
	}
	if len(details) > 0 {
		return errutil.ValidationFailed("invalid promo code", nil, errutil.WithDetails(details...))
	}
	return nil
}

func (s *Service) Create(ctx context.Context, actor identity.Actor, p CreateParams) (*PromoCode, error) {
	if err := s.access.Require(actor, access.PromoManage); err != nil {
		return nil, err
	}

	p.Code = Normalize(p.Code)
	if err := p.validate(); err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx).With(zap.String("code", p.Code))

	exist, err := s.codes.FindOne(ctx, &PromoCode{Code: p.Code})
	if err != nil {
		log.Error("failed to query promo code", zap.Error(err))
		return nil, errutil.Internal("failed to create promo code", err)
	}
	if exist != nil {
		return nil, errutil.Conflict("promo code already exists", nil)
	}

	code := &PromoCode{
		ID:        s.node.Generate().String(),
		Code:      p.Code,
		Amount:    p.Amount,
		Type:      p.Type,
		ExpiresAt: p.ExpiresAt,
		CreatedBy: actor.ID,
	}
	if p.MaxUses != nil && *p.MaxUses > 0 {
		code.MaxUses = p.MaxUses
	}

	if err := s.codes.Create(ctx, code); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errutil.Conflict("promo code already exists", err)
		}
		log.Error("failed to create promo code", zap.Error(err))
		return nil, errutil.Internal("failed to create promo code", err)
	}

	log.Info("promo code created", zap.String("admin_id", actor.ID))
	return code, nil
}

func (s *Service) Delete(ctx context.Context, actor identity.Actor, id string) error {
	if err := s.access.Require(actor, access.PromoManage); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		code, err := s.codes.WithTrx(tx).FindByID(ctx, id)
		if err != nil {
			return errutil.Internal("failed to load promo code", err)
		}
		if code == nil {
			return errutil.NotFound("promo code not found", nil)
		}
		if err := tx.Where("code_id = ?", id).Delete(&Redemption{}).Error; err != nil {
			return errutil.Internal("failed to delete redemptions", err)
		}
		if err := tx.Delete(&PromoCode{}, "id = ?", id).Error; err != nil {
			return errutil.Internal("failed to delete promo code", err)
		}
		return nil
	})
}

func (s *Service) List(ctx context.Context, actor identity.Actor, p pagination.Pagination) ([]*PromoCode, error) {
	if err := s.access.Require(actor, access.PromoManage); err != nil {
		return nil, err
	}

	codes, err := s.codes.Find(ctx, nil,
		option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}),
		option.ApplyPagination(p),
	)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list promo codes", zap.Error(err))
		return nil, errutil.Internal("failed to list promo codes", err)
	}
	return codes, nil
}

// Redeem credits the code's amount to the actor. Failures are reported in
// the order NotFound, Expired, UsageLimitReached, AlreadyRedeemed.
func (s *Service) Redeem(ctx context.Context, actor identity.Actor, raw string) (*RedemptionResult, error) {
	if actor.Anonymous() {
		return nil, errutil.Unauthorized("authentication required", nil)
	}
	if !s.flags.Enabled(ctx, featureflags.PromoRedemption, actor.ID) {
		return nil, errutil.Forbidden("promo redemption is disabled", nil)
	}

	code := Normalize(raw)
	log := logger.FromContext(ctx).With(zap.String("code", code), zap.String("user_id", actor.ID))
	if code == "" {
		return nil, errutil.NotFound("promo code not found", nil)
	}

	var result *RedemptionResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		promo, err := s.codes.WithTrx(tx).FindOne(ctx, &PromoCode{Code: code}, option.WithLockingUpdate())
		if err != nil {
			return errutil.Internal("failed to load promo code", err)
		}
		if promo == nil {
			return errutil.NotFound("promo code not found", nil)
		}
		if promo.Expired(s.now()) {
			return errutil.Expired("promo code expired")
		}
		if promo.Exhausted() {
			return errutil.UsageLimitReached("promo code usage limit reached")
		}

		prior, err := s.redemptions.WithTrx(tx).FindOne(ctx, &Redemption{CodeID: promo.ID, UserID: actor.ID})
		if err != nil {
			return errutil.Internal("failed to load redemption", err)
		}
		if prior != nil {
			return errutil.AlreadyRedeemed("promo code already redeemed")
		}

		res := tx.Model(&PromoCode{}).
			Where("id = ? AND (max_uses IS NULL OR used_count < max_uses)", promo.ID).
			Update("used_count", gorm.Expr("used_count + 1"))
		if res.Error != nil {
			return errutil.Internal("failed to update promo code", res.Error)
		}
		if res.RowsAffected == 0 {
			return errutil.UsageLimitReached("promo code usage limit reached")
		}

		applied, err := s.ledger.ApplyTx(ctx, tx, ledger.Change{
			UserID:      actor.ID,
			Currency:    promo.Type,
			Amount:      promo.Amount,
			Type:        ledger.TypeBonus,
			Description: "Promo code: " + promo.Code,
			Metadata:    map[string]any{"promo_code_id": promo.ID},
		})
		if err != nil {
			return err
		}

		if err := s.redemptions.WithTrx(tx).Create(ctx, &Redemption{
			ID:            s.node.Generate().String(),
			CodeID:        promo.ID,
			UserID:        actor.ID,
			TransactionID: applied.Transaction.ID,
		}); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errutil.AlreadyRedeemed("promo code already redeemed")
			}
			return errutil.Internal("failed to record redemption", err)
		}

		result = &RedemptionResult{
			Code:          promo.Code,
			Amount:        promo.Amount,
			Currency:      promo.Type,
			UsedCount:     promo.UsedCount + 1,
			TransactionID: applied.Transaction.ID,
		}
		return nil
	})
	if err != nil {
		if errutil.StatusOf(err) == errutil.StatusInternal {
			log.Error("promo redemption failed", zap.Error(err))
		} else {
			log.Warn("promo redemption rejected", zap.Error(err))
		}
		return nil, err
	}

	log.Info("promo code redeemed", zap.String("transaction_id", result.TransactionID))
	return result, nil
}
