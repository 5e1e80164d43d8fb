package chapter

import (
	"context"
	"errors"

	"gato-backoffice/pkg/access"
	"gato-backoffice/pkg/db/option"
	"gato-backoffice/pkg/errutil"
	"gato-backoffice/pkg/identity"
	"gato-backoffice/pkg/logger"
	"gato-backoffice/services/ledger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type UnlockResult struct {
	Unlock  *Unlock `json:"unlock,omitempty"`
	Charged bool    `json:"charged"`
	Free    bool    `json:"free"`
}

func (c *Chapter) price(currency ledger.Currency) int64 {
	if currency == ledger.CurrencyLite {
		return c.PriceLite
	}
	return c.PricePremium
}

// Unlock buys permanent access to a published chapter for the actor. An
// existing unlock is returned without a second charge.
func (s *Service) Unlock(ctx context.Context, actor identity.Actor, chapterID string, currency ledger.Currency) (*UnlockResult, error) {
	if actor.Anonymous() {
		return nil, errutil.Unauthorized("authentication required", nil)
	}
	if !currency.Valid() {
		return nil, errutil.ValidationFailed("invalid currency", nil,
			errutil.WithDetails(errutil.Detail{Field: "currency", Message: "must be PREMIUM or LITE"}))
	}

	log := logger.FromContext(ctx).With(zap.String("chapter_id", chapterID), zap.String("user_id", actor.ID))

	ch, err := findChapter(ctx, s.db.WithContext(ctx), chapterID)
	if err != nil {
		return nil, err
	}
	if ch.WorkStatus != StatusPublished {
		return nil, errutil.InvalidState("chapter is not published")
	}
	if ch.IsFree {
		return &UnlockResult{Free: true}, nil
	}

	ref := s.ledger.Reference(ctx, currency)

	var result *UnlockResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := findChapter(ctx, tx, chapterID, option.WithLockingUpdate())
		if err != nil {
			return err
		}

		prior, err := s.unlocks.WithTrx(tx).FindOne(ctx, &Unlock{UserID: actor.ID, ChapterID: locked.ID})
		if err != nil {
			return errutil.Internal("failed to load unlock", err)
		}
		if prior != nil {
			result = &UnlockResult{Unlock: prior}
			return nil
		}

		unlock := &Unlock{
			ID:        s.node.Generate().String(),
			UserID:    actor.ID,
			ChapterID: locked.ID,
			Currency:  currency,
			Price:     locked.price(currency),
		}
		if unlock.Price > 0 {
			applied, err := s.ledger.ApplyTx(ctx, tx, ledger.Change{
				UserID:      actor.ID,
				Currency:    currency,
				Amount:      -unlock.Price,
				Type:        ledger.TypeSpend,
				Description: "Chapter unlock: " + locked.Slug,
				Metadata:    map[string]any{"chapter_id": locked.ID, "work_id": locked.WorkID},
				Reference:   ref,
			})
			if err != nil {
				return err
			}
			unlock.TransactionID = applied.Transaction.ID
		}

		if err := s.unlocks.WithTrx(tx).Create(ctx, unlock); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errutil.AlreadyOwned("chapter already unlocked")
			}
			return errutil.Internal("failed to record unlock", err)
		}
		result = &UnlockResult{Unlock: unlock, Charged: unlock.Price > 0}
		return nil
	})
	if err != nil {
		if errutil.Is(err, errutil.StatusInternal) {
			log.Error("chapter unlock failed", zap.Error(err))
		} else {
			log.Warn("chapter unlock rejected", zap.Error(err))
		}
		return nil, err
	}

	if result.Charged {
		log.Info("chapter unlocked", zap.String("currency", string(currency)), zap.Int64("price", result.Unlock.Price))
	}
	return result, nil
}

// ListUnlocks returns a user's unlocks, newest first.
func (s *Service) ListUnlocks(ctx context.Context, actor identity.Actor, userID string) ([]*Unlock, error) {
	if err := s.access.RequireSelfOr(actor, userID, access.UserManage); err != nil {
		return nil, err
	}
	unlocks, err := s.unlocks.Find(ctx, &Unlock{UserID: userID}, option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}))
	if err != nil {
		return nil, errutil.Internal("failed to list unlocks", err)
	}
	return unlocks, nil
}
