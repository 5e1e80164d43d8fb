package cosmetic

import (
	"context"
	"errors"

	"gato-backoffice/pkg/access"
	"gato-backoffice/pkg/db/option"
	"gato-backoffice/pkg/errutil"
	"gato-backoffice/pkg/identity"
	"gato-backoffice/pkg/logger"
	"gato-backoffice/pkg/repository"
	"gato-backoffice/pkg/sanitize"
	"gato-backoffice/pkg/storage"
	"gato-backoffice/services/cleanup"
	"gato-backoffice/services/ledger"
	"gato-backoffice/services/user"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var validate = validator.New()

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	access  *access.Enforcer
	ledger  *ledger.Service
	store   storage.ObjectStore
	cleanup cleanup.Scheduler

	cosmetics repository.Repository[Cosmetic]
	owned     repository.Repository[UserCosmetic]
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Access  *access.Enforcer
	Ledger  *ledger.Service
	Store   storage.ObjectStore
	Cleanup cleanup.Scheduler
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		access:  p.Access,
		ledger:  p.Ledger,
		store:   p.Store,
		cleanup: p.Cleanup,

		cosmetics: repository.ProvideStore[Cosmetic](p.DB),
		owned:     repository.ProvideStore[UserCosmetic](p.DB),
	}
}

type CreateParams struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Type        Type   `json:"type" binding:"required"`
	Rarity      Rarity `json:"rarity"`
	Price       int64  `json:"price"`
	ImageURL    string `json:"image_url"`
}

func (p *CreateParams) normalize() error {
	p.Name = sanitize.Text(p.Name)
	p.Description = sanitize.Text(p.Description)
	if p.Rarity == "" {
		p.Rarity = RarityCommon
	}

	var details []errutil.Detail
	if p.Name == "" {
		details = append(details, errutil.Detail{Field: "name", Message: "required"})
	}
	if !p.Type.Valid() {
		details = append(details, errutil.Detail{Field: "type", Message: "unknown cosmetic type " + string(p.Type)})
	}
	if !p.Rarity.Valid() {
		details = append(details, errutil.Detail{Field: "rarity", Message: "unknown rarity " + string(p.Rarity)})
	}
	if p.Price < 0 {
		details = append(details, errutil.Detail{Field: "price", Message: "must not be negative"})
	}
	if err := validate.Var(p.ImageURL, "required,http_url"); err != nil {
		details = append(details, errutil.Detail{Field: "image_url", Message: "must be an absolute http(s) url"})
	}
	if len(details) > 0 {
		return errutil.ValidationFailed("invalid cosmetic", nil, errutil.WithDetails(details...))
	}
	return nil
}

func (s *Service) Create(ctx context.Context, actor identity.Actor, p CreateParams) (*Cosmetic, error) {
	if err := s.access.Require(actor, access.CosmeticManage); err != nil {
		return nil, err
	}
	if err := p.normalize(); err != nil {
		return nil, err
	}

	c := &Cosmetic{
		ID:          s.node.Generate().String(),
		Name:        p.Name,
		Description: p.Description,
		Type:        p.Type,
		Rarity:      p.Rarity,
		Price:       p.Price,
		ImageURL:    p.ImageURL,
		CreatedBy:   actor.ID,
	}
	if err := s.cosmetics.Create(ctx, c); err != nil {
		logger.FromContext(ctx).Error("failed to create cosmetic", zap.Error(err))
		return nil, errutil.Internal("failed to create cosmetic", err)
	}

	logger.FromContext(ctx).Info("cosmetic created", zap.String("cosmetic_id", c.ID), zap.String("admin_id", actor.ID))
	return c, nil
}

func (s *Service) List(ctx context.Context) ([]*Cosmetic, error) {
	items, err := s.cosmetics.Find(ctx, nil, option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}))
	if err != nil {
		return nil, errutil.Internal("failed to list cosmetics", err)
	}
	return items, nil
}

func (s *Service) find(ctx context.Context, db *gorm.DB, id string) (*Cosmetic, error) {
	c, err := s.cosmetics.WithTrx(db).FindByID(ctx, id)
	if err != nil {
		return nil, errutil.Internal("failed to load cosmetic", err)
	}
	if c == nil {
		return nil, errutil.NotFound("cosmetic not found", nil)
	}
	return c, nil
}

// Delete removes the cosmetic with every ownership row, and unequips it
// wherever it is equipped.
func (s *Service) Delete(ctx context.Context, actor identity.Actor, id string) error {
	if err := s.access.Require(actor, access.CosmeticManage); err != nil {
		return err
	}

	var imageURL string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.find(ctx, tx, id)
		if err != nil {
			return err
		}
		imageURL = c.ImageURL

		for _, column := range slotColumns {
			if err := tx.Model(&user.User{}).Where(column+" = ?", id).Update(column, nil).Error; err != nil {
				return errutil.Internal("failed to unequip cosmetic", err)
			}
		}
		if err := tx.Where("cosmetic_id = ?", id).Delete(&UserCosmetic{}).Error; err != nil {
			return errutil.Internal("failed to delete ownership", err)
		}
		if err := tx.Delete(&Cosmetic{}, "id = ?", id).Error; err != nil {
			return errutil.Internal("failed to delete cosmetic", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cleanup.Schedule(ctx, "cosmetic deleted", storage.KeysFromURLs(s.store, imageURL), 0)
	logger.FromContext(ctx).Info("cosmetic deleted", zap.String("cosmetic_id", id), zap.String("admin_id", actor.ID))
	return nil
}

// Purchase debits the price in PREMIUM and grants ownership in one
// transaction.
func (s *Service) Purchase(ctx context.Context, actor identity.Actor, cosmeticID string) (*UserCosmetic, error) {
	if actor.Anonymous() {
		return nil, errutil.Unauthorized("authentication required", nil)
	}

	log := logger.FromContext(ctx).With(zap.String("cosmetic_id", cosmeticID), zap.String("user_id", actor.ID))
	ref := s.ledger.Reference(ctx, ledger.CurrencyPremium)

	var owned *UserCosmetic
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.find(ctx, tx, cosmeticID)
		if err != nil {
			return err
		}

		prior, err := s.owned.WithTrx(tx).FindOne(ctx, &UserCosmetic{UserID: actor.ID, CosmeticID: c.ID})
		if err != nil {
			return errutil.Internal("failed to load ownership", err)
		}
		if prior != nil {
			return errutil.AlreadyOwned("cosmetic already owned")
		}

		owned = &UserCosmetic{
			ID:         s.node.Generate().String(),
			UserID:     actor.ID,
			CosmeticID: c.ID,
		}
		if c.Price > 0 {
			applied, err := s.ledger.ApplyTx(ctx, tx, ledger.Change{
				UserID:      actor.ID,
				Currency:    ledger.CurrencyPremium,
				Amount:      -c.Price,
				Type:        ledger.TypeSpend,
				Description: "Purchase: " + c.Name,
				Metadata:    map[string]any{"cosmetic_id": c.ID},
				Reference:   ref,
			})
			if err != nil {
				return err
			}
			owned.TransactionID = applied.Transaction.ID
		}

		if err := s.owned.WithTrx(tx).Create(ctx, owned); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errutil.AlreadyOwned("cosmetic already owned")
			}
			return errutil.Internal("failed to record ownership", err)
		}
		return nil
	})
	if err != nil {
		if errutil.Is(err, errutil.StatusInternal) {
			log.Error("cosmetic purchase failed", zap.Error(err))
		} else {
			log.Warn("cosmetic purchase rejected", zap.Error(err))
		}
		return nil, err
	}

	log.Info("cosmetic purchased", zap.String("transaction_id", owned.TransactionID))
	return owned, nil
}

// Equip puts an owned cosmetic into the slot matching its type, replacing
// whatever was there.
func (s *Service) Equip(ctx context.Context, actor identity.Actor, cosmeticID string, slot Slot) (*user.User, error) {
	if actor.Anonymous() {
		return nil, errutil.Unauthorized("authentication required", nil)
	}
	column, ok := slot.Column()
	if !ok {
		return nil, errutil.ValidationFailed("invalid slot", nil,
			errutil.WithDetails(errutil.Detail{Field: "slot", Message: "must be AVATAR_FRAME, PROFILE_BANNER or COMMENT_BACKGROUND"}))
	}

	c, err := s.find(ctx, s.db.WithContext(ctx), cosmeticID)
	if err != nil {
		return nil, err
	}
	if Slot(c.Type) != slot {
		return nil, errutil.ValidationFailed("cosmetic does not fit slot", nil,
			errutil.WithDetails(errutil.Detail{Field: "slot", Message: string(c.Type) + " cannot be equipped as " + string(slot)}))
	}

	var equipped *user.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := user.LockForUpdate(ctx, tx, actor.ID)
		if err != nil {
			return err
		}
		n, err := s.owned.WithTrx(tx).Count(ctx, &UserCosmetic{UserID: actor.ID, CosmeticID: c.ID})
		if err != nil {
			return errutil.Internal("failed to load ownership", err)
		}
		if n == 0 {
			return errutil.NotOwned("cosmetic not owned")
		}
		if err := tx.Model(&user.User{}).Where("id = ?", u.ID).Update(column, c.ID).Error; err != nil {
			return errutil.Internal("failed to equip cosmetic", err)
		}

		var reloaded user.User
		if err := tx.First(&reloaded, "id = ?", u.ID).Error; err != nil {
			return errutil.Internal("failed to load user", err)
		}
		equipped = &reloaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return equipped, nil
}

// Owned lists the cosmetics a user owns.
func (s *Service) Owned(ctx context.Context, actor identity.Actor, userID string) ([]*UserCosmetic, error) {
	if err := s.access.RequireSelfOr(actor, userID, access.CosmeticManage); err != nil {
		return nil, err
	}
	items, err := s.owned.Find(ctx, &UserCosmetic{UserID: userID}, option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}))
	if err != nil {
		return nil, errutil.Internal("failed to list owned cosmetics", err)
	}
	return items, nil
}
