package moderation

import (
	"context"
	"time"

	"gato-backoffice/pkg/access"
	"gato-backoffice/pkg/db/option"
	"gato-backoffice/pkg/db/pagination"
	"gato-backoffice/pkg/errutil"
	"gato-backoffice/pkg/identity"
	"gato-backoffice/pkg/logger"
	"gato-backoffice/pkg/repository"
	"gato-backoffice/services/user"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db      *gorm.DB
	access  *access.Enforcer
	now     func() time.Time
	reports repository.Repository[Report]
	users   repository.Repository[user.User]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Access *access.Enforcer
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		access:  p.Access,
		now:     time.Now,
		reports: repository.ProvideStore[Report](p.DB),
		users:   repository.ProvideStore[user.User](p.DB),
	}
}

// MuteUntil is the mutedUntil a punishment sets at now. DELETE_ONLY mutes
// nobody and BAN returns the permanent sentinel.
func MuteUntil(p Punishment, now time.Time) *time.Time {
	var until time.Time
	switch p {
	case PunishMute24h:
		until = now.Add(24 * time.Hour)
	case PunishMute7d:
		until = now.Add(7 * 24 * time.Hour)
	case PunishBan:
		until = user.BanSentinel
	default:
		return nil
	}
	return &until
}

func (s *Service) ListPending(ctx context.Context, actor identity.Actor, p pagination.Pagination) ([]*Report, error) {
	if err := s.access.Require(actor, access.ModerationAct); err != nil {
		return nil, err
	}
	reports, err := s.reports.Find(ctx, &Report{Status: ReportPending},
		option.WithSortBy(option.QuerySortBy{OrderBy: "asc"}),
		option.ApplyPagination(p),
	)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list reports", zap.Error(err))
		return nil, errutil.Internal("failed to list reports", err)
	}
	return reports, nil
}

func requireReports(ids []string) error {
	if len(ids) == 0 {
		return errutil.ValidationFailed("report ids are required", nil,
			errutil.WithDetails(errutil.Detail{Field: "report_ids", Message: "must not be empty"}))
	}
	return nil
}

func (s *Service) resolve(tx *gorm.DB, ids []string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	err := tx.Model(&Report{}).Where("id IN ?", ids).
		Updates(map[string]any{"status": ReportResolved, "resolved_at": now}).Error
	if err != nil {
		return errutil.Internal("failed to resolve reports", err)
	}
	return nil
}

// Dismiss resolves the reports and leaves content and users untouched.
func (s *Service) Dismiss(ctx context.Context, actor identity.Actor, reportIDs []string) error {
	if err := s.access.Require(actor, access.ModerationAct); err != nil {
		return err
	}
	if err := requireReports(reportIDs); err != nil {
		return err
	}

	now := s.now().UTC()
	if err := s.resolve(s.db.WithContext(ctx), reportIDs, now); err != nil {
		logger.FromContext(ctx).Error("failed to dismiss reports", zap.Error(err))
		return err
	}

	logger.FromContext(ctx).Info("reports dismissed", zap.Strings("report_ids", reportIDs), zap.String("moderator_id", actor.ID))
	return nil
}

type PunishParams struct {
	ContentID    string      `json:"content_id" binding:"required"`
	ContentType  ContentType `json:"content_type" binding:"required"`
	TargetUserID string      `json:"target_user_id" binding:"required"`
	Punishment   Punishment  `json:"punishment" binding:"required"`
	ReportIDs    []string    `json:"report_ids"`
}

func (p PunishParams) validate() error {
	var details []errutil.Detail
	if p.ContentID == "" {
		details = append(details, errutil.Detail{Field: "content_id", Message: "required"})
	}
	if !p.ContentType.Valid() {
		details = append(details, errutil.Detail{Field: "content_type", Message: "must be COMMENT or POST"})
	}
	if p.TargetUserID == "" {
		details = append(details, errutil.Detail{Field: "target_user_id", Message: "required"})
	}
	if !p.Punishment.Valid() {
		details = append(details, errutil.Detail{Field: "punishment", Message: "must be DELETE_ONLY, MUTE_24H, MUTE_7D or BAN"})
	}
	if len(details) > 0 {
		return errutil.ValidationFailed("invalid punishment", nil, errutil.WithDetails(details...))
	}
	return nil
}

// Punish mutes the target, deletes the content and resolves the reports in
// one transaction. Content that is already gone is not an error.
func (s *Service) Punish(ctx context.Context, actor identity.Actor, p PunishParams) error {
	if err := s.access.Require(actor, access.ModerationAct); err != nil {
		return err
	}
	if err := p.validate(); err != nil {
		return err
	}

	log := logger.FromContext(ctx).With(
		zap.String("content_id", p.ContentID),
		zap.String("target_user_id", p.TargetUserID),
		zap.String("punishment", string(p.Punishment)),
	)

	now := s.now().UTC()
	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		target, err := user.LockForUpdate(ctx, tx, p.TargetUserID)
		if err != nil {
			return err
		}

		if until := MuteUntil(p.Punishment, now); until != nil {
			if target.MutedUntil == nil || target.MutedUntil.Before(*until) {
				if err := s.users.WithTrx(tx).Update(ctx, target.ID, map[string]any{"muted_until": *until}); err != nil {
					return errutil.Internal("failed to mute user", err)
				}
			}
		}

		switch p.ContentType {
		case ContentComment:
			res := tx.Delete(&Comment{}, "id = ?", p.ContentID)
			if res.Error != nil {
				return errutil.Internal("failed to delete comment", res.Error)
			}
			deleted = res.RowsAffected
		case ContentPost:
			if err := tx.Where("post_id = ?", p.ContentID).Delete(&Comment{}).Error; err != nil {
				return errutil.Internal("failed to delete post comments", err)
			}
			res := tx.Delete(&Post{}, "id = ?", p.ContentID)
			if res.Error != nil {
				return errutil.Internal("failed to delete post", res.Error)
			}
			deleted = res.RowsAffected
		}

		return s.resolve(tx, p.ReportIDs, now)
	})
	if err != nil {
		if errutil.Is(err, errutil.StatusInternal) {
			log.Error("punishment failed", zap.Error(err))
		}
		return err
	}

	log.Info("punishment applied",
		zap.Bool("content_deleted", deleted > 0),
		zap.Int("reports", len(p.ReportIDs)),
		zap.String("moderator_id", actor.ID))
	return nil
}
