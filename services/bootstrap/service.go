package bootstrap

import (
	"context"
	"fmt"

	"gato-backoffice/pkg/config"
	"gato-backoffice/pkg/identity"
	"gato-backoffice/pkg/repository"
	"gato-backoffice/services/catalog"
	"gato-backoffice/services/chapter"
	"gato-backoffice/services/cosmetic"
	"gato-backoffice/services/ledger"
	"gato-backoffice/services/moderation"
	"gato-backoffice/services/promo"
	"gato-backoffice/services/user"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	config *config.Config
	users  repository.Repository[user.User]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		config: p.Config,
		users:  repository.ProvideStore[user.User](p.DB),
	}
}

// Models lists every table the back office owns, in creation order.
func Models() []any {
	var models []any
	for _, m := range [][]any{
		user.Models(),
		ledger.Models(),
		promo.Models(),
		catalog.Models(),
		chapter.Models(),
		moderation.Models(),
		cosmetic.Models(),
	} {
		models = append(models, m...)
	}
	return models
}

// Migrate creates or alters the schema and seeds the owner account.
func (s *Service) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		zap.L().Error("[bootstrap] schema migration failed", zap.Error(err))
		return fmt.Errorf("auto migrate: %w", err)
	}
	zap.L().Info("[bootstrap] schema up to date", zap.Int("tables", len(Models())))

	return s.SeedOwner(ctx)
}

// SeedOwner creates the configured OWNER account once. An existing account
// with that id is left untouched.
func (s *Service) SeedOwner(ctx context.Context) error {
	owner := s.config.Bootstrap
	if owner.OwnerID == "" {
		zap.L().Info("[bootstrap] BOOTSTRAP.OWNER_ID not set, skipping owner seed")
		return nil
	}

	exist, err := s.users.FindByID(ctx, owner.OwnerID)
	if err != nil {
		return fmt.Errorf("check owner: %w", err)
	}
	if exist != nil {
		zap.L().Info("[bootstrap] owner already exists", zap.String("user_id", owner.OwnerID))
		return nil
	}

	name := owner.OwnerName
	if name == "" {
		name = "Owner"
	}
	if err := s.users.Create(ctx, &user.User{
		ID:    owner.OwnerID,
		Name:  name,
		Email: owner.OwnerEmail,
		Role:  identity.RoleOwner,
	}); err != nil {
		return fmt.Errorf("create owner: %w", err)
	}

	zap.L().Info("[bootstrap] owner created", zap.String("user_id", owner.OwnerID))
	return nil
}
