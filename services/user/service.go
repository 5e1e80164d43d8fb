package user

import (
	"context"
	"time"

	"gato-backoffice/pkg/access"
	"gato-backoffice/pkg/errutil"
	"gato-backoffice/pkg/identity"
	"gato-backoffice/pkg/logger"
	"gato-backoffice/pkg/repository"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	access *access.Enforcer
	users  repository.Repository[User]
	now    func() time.Time
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Access *access.Enforcer
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		access: p.Access,
		users:  repository.ProvideStore[User](p.DB),
		now:    time.Now,
	}
}

func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		logger.FromContext(ctx).Error("failed to query user", zap.String("user_id", id), zap.Error(err))
		return nil, errutil.Internal("failed to load user", err)
	}
	if u == nil {
		return nil, errutil.NotFound("user not found", nil)
	}
	return u, nil
}

func (s *Service) UpdateRole(ctx context.Context, actor identity.Actor, userID string, role identity.Role) (*User, error) {
	if err := s.access.Require(actor, access.UserManage); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, errutil.ValidationFailed("invalid role", nil, errutil.WithDetails(errutil.Detail{Field: "role", Message: "unknown role " + string(role)}))
	}

	var updated *User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := LockForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := s.users.WithTrx(tx).Update(ctx, u.ID, map[string]any{"role": role}); err != nil {
			return errutil.Internal("failed to update role", err)
		}
		u.Role = role
		updated = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("user role updated",
		zap.String("admin_id", actor.ID), zap.String("user_id", userID), zap.String("role", string(role)))
	return updated, nil
}

// SetSubscription sets the tier valid for days from now. TierNone clears it.
func (s *Service) SetSubscription(ctx context.Context, actor identity.Actor, userID string, tier SubscriptionTier, days int) (*User, error) {
	if err := s.access.Require(actor, access.UserManage); err != nil {
		return nil, err
	}
	if !tier.Valid() {
		return nil, errutil.ValidationFailed("invalid subscription tier", nil)
	}
	if tier != TierNone && days < 1 {
		return nil, errutil.ValidationFailed("subscription days must be at least 1", nil)
	}

	updates := map[string]any{
		"subscription_tier":        nil,
		"subscription_valid_until": nil,
	}
	var validUntil *time.Time
	if tier != TierNone {
		until := s.now().UTC().AddDate(0, 0, days)
		validUntil = &until
		updates["subscription_tier"] = tier
		updates["subscription_valid_until"] = until
	}

	var updated *User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := LockForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := s.users.WithTrx(tx).Update(ctx, u.ID, updates); err != nil {
			return errutil.Internal("failed to update subscription", err)
		}
		if tier == TierNone {
			u.SubscriptionTier = nil
		} else {
			t := tier
			u.SubscriptionTier = &t
		}
		u.SubscriptionValidUntil = validUntil
		updated = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}
