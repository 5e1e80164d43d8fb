package user

import (
	"context"
	"strings"
	"time"

	"gato-backoffice/pkg/db/option"
	"gato-backoffice/pkg/errutil"
	"gato-backoffice/pkg/identity"
	"gato-backoffice/pkg/repository"

	"gorm.io/gorm"
)

type SubscriptionTier string

const (
	TierNone    SubscriptionTier = "NONE"
	TierBasic   SubscriptionTier = "BASIC"
	TierPremium SubscriptionTier = "PREMIUM"
	TierVIP     SubscriptionTier = "VIP"
)

func (t SubscriptionTier) Valid() bool {
	switch t {
	case TierNone, TierBasic, TierPremium, TierVIP:
		return true
	}
	return false
}

// BanSentinel is the mutedUntil value of a permanent ban.
var BanSentinel = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)

type User struct {
	ID                          string            `gorm:"column:id;primaryKey" json:"id"`
	Name                        string            `gorm:"column:name" json:"name"`
	Email                       string            `gorm:"column:email;index" json:"email"`
	Role                        identity.Role     `gorm:"column:role;not null;default:READER" json:"role"`
	BalancePremium              int64             `gorm:"column:balance_premium;not null;default:0" json:"balance_premium"`
	SubscriptionTier            *SubscriptionTier `gorm:"column:subscription_tier" json:"subscription_tier,omitempty"`
	SubscriptionValidUntil      *time.Time        `gorm:"column:subscription_valid_until" json:"subscription_valid_until,omitempty"`
	MutedUntil                  *time.Time        `gorm:"column:muted_until" json:"muted_until,omitempty"`
	EquippedAvatarFrameID       *string           `gorm:"column:equipped_avatar_frame_id" json:"equipped_avatar_frame_id,omitempty"`
	EquippedProfileBannerID     *string           `gorm:"column:equipped_profile_banner_id" json:"equipped_profile_banner_id,omitempty"`
	EquippedCommentBackgroundID *string           `gorm:"column:equipped_comment_background_id" json:"equipped_comment_background_id,omitempty"`
	CreatedAt                   time.Time         `gorm:"column:created_at" json:"created_at"`
	UpdatedAt                   time.Time         `gorm:"column:updated_at" json:"updated_at"`
}

// IsMuted is the single gate for muted and banned users.
func (u *User) IsMuted(now time.Time) bool {
	return u.MutedUntil != nil && now.Before(*u.MutedUntil)
}

func (u *User) IsBanned() bool {
	return u.MutedUntil != nil && !u.MutedUntil.Before(BanSentinel)
}

func (u *User) HasActiveSubscription(now time.Time) bool {
	return u.SubscriptionTier != nil && *u.SubscriptionTier != TierNone &&
		u.SubscriptionValidUntil != nil && now.Before(*u.SubscriptionValidUntil)
}

// LockForUpdate loads a user row with SELECT ... FOR UPDATE inside tx. Every
// balance mutation goes through it, which serializes them per user.
func LockForUpdate(ctx context.Context, tx *gorm.DB, userID string) (*User, error) {
	u, err := repository.ProvideStore[User](tx).FindByID(ctx, userID, option.WithLockingUpdate())
	if err != nil {
		return nil, errutil.Internal("failed to load user", err)
	}
	if u == nil {
		return nil, errutil.NotFound("user not found", nil)
	}
	return u, nil
}

// FindByEmail looks a user up by email, ignoring case.
func FindByEmail(ctx context.Context, db *gorm.DB, email string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, errutil.NotFound("user not found", nil)
	}
	u, err := repository.ProvideStore[User](db).FindOne(ctx, &User{}, func(q *gorm.DB) *gorm.DB {
		return q.Where("LOWER(email) = ?", email)
	})
	if err != nil {
		return nil, errutil.Internal("failed to load user", err)
	}
	if u == nil {
		return nil, errutil.NotFound("user not found", nil)
	}
	return u, nil
}
