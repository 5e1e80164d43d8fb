package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gato-backoffice/pkg/access"
	"gato-backoffice/pkg/db/option"
	"gato-backoffice/pkg/errutil"
	"gato-backoffice/pkg/identity"
	"gato-backoffice/pkg/logger"
	"gato-backoffice/pkg/repository"
	"gato-backoffice/pkg/sanitize"
	"gato-backoffice/pkg/storage"
	"gato-backoffice/services/cleanup"
	"gato-backoffice/services/user"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ContentPurger removes everything stored under a work inside the caller's
// transaction and returns the storage URLs the removed rows referenced.
type ContentPurger interface {
	PurgeWorkTx(ctx context.Context, tx *gorm.DB, workID string) ([]string, error)
}

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	access  *access.Enforcer
	store   storage.ObjectStore
	cleanup cleanup.Scheduler
	purger  ContentPurger
	now     func() time.Time

	works repository.Repository[Work]
	staff repository.Repository[WorkStaff]
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Access  *access.Enforcer
	Store   storage.ObjectStore
	Cleanup cleanup.Scheduler
	Purger  ContentPurger `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		access:  p.Access,
		store:   p.Store,
		cleanup: p.Cleanup,
		purger:  p.Purger,
		now:     time.Now,

		works: repository.ProvideStore[Work](p.DB),
		staff: repository.ProvideStore[WorkStaff](p.DB),
	}
}

// FindWork loads a work through db, which may be a transaction.
func FindWork(ctx context.Context, db *gorm.DB, id string, opts ...option.QueryOption) (*Work, error) {
	w, err := repository.ProvideStore[Work](db).FindByID(ctx, id, opts...)
	if err != nil {
		return nil, errutil.Internal("failed to load work", err)
	}
	if w == nil {
		return nil, errutil.NotFound("work not found", nil)
	}
	return w, nil
}

// HasStaffRole reports whether userID holds role on workID.
func HasStaffRole(ctx context.Context, db *gorm.DB, workID, userID string, role StaffRole) (bool, error) {
	n, err := repository.ProvideStore[WorkStaff](db).Count(ctx, &WorkStaff{WorkID: workID, UserID: userID, Role: role})
	if err != nil {
		return false, errutil.Internal("failed to load staff assignment", err)
	}
	return n > 0, nil
}

type CreateWorkParams struct {
	Title       string
	Description string
	Genres      []string
	AgeRating   AgeRating
	OwnerID     string
}

func (p *CreateWorkParams) normalize() error {
	p.Title = sanitize.Text(p.Title)
	p.Description = sanitize.Text(p.Description)
	if p.AgeRating == "" {
		p.AgeRating = RatingLivre
	}

	var details []errutil.Detail
	if p.Title == "" {
		details = append(details, errutil.Detail{Field: "title", Message: "is required"})
	} else if slug.Make(p.Title) == "" {
		details = append(details, errutil.Detail{Field: "title", Message: "must contain letters or digits"})
	}
	if !p.AgeRating.Valid() {
		details = append(details, errutil.Detail{Field: "age_rating", Message: "unknown rating " + string(p.AgeRating)})
	}
	if len(details) > 0 {
		return errutil.ValidationFailed("invalid work", nil, errutil.WithDetails(details...))
	}
	return nil
}

// CreateWork uploads the optional cover first and then inserts the work.
func (s *Service) CreateWork(ctx context.Context, actor identity.Actor, p CreateWorkParams, cover *storage.Blob) (*Work, error) {
	if err := s.access.Require(actor, access.WorkCreate); err != nil {
		return nil, err
	}
	if err := p.normalize(); err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx).With(zap.String("title", p.Title))
	workSlug := slug.Make(p.Title)

	exist, err := s.works.FindOne(ctx, &Work{Slug: workSlug})
	if err != nil {
		log.Error("failed to query work slug", zap.Error(err))
		return nil, errutil.Internal("failed to create work", err)
	}
	if exist != nil {
		return nil, errutil.Conflict("a work with this slug already exists", nil,
			errutil.WithDetails(errutil.Detail{Field: "title", Message: "slug " + workSlug + " is taken"}))
	}

	if p.OwnerID != "" {
		owner, err := repository.ProvideStore[user.User](s.db).FindByID(ctx, p.OwnerID)
		if err != nil {
			return nil, errutil.Internal("failed to load owner", err)
		}
		if owner == nil || owner.Role != identity.RoleWorkOwner {
			return nil, errutil.ValidationFailed("owner must be a work owner", nil,
				errutil.WithDetails(errutil.Detail{Field: "owner_id", Message: "must reference a WORK_OWNER user"}))
		}
	}

	work := &Work{
		ID:          s.node.Generate().String(),
		Title:       p.Title,
		Slug:        workSlug,
		Description: p.Description,
		AgeRating:   p.AgeRating,
	}
	if p.OwnerID != "" {
		work.OwnerID = &p.OwnerID
	}
	if len(p.Genres) > 0 {
		genres := make([]string, 0, len(p.Genres))
		for _, g := range p.Genres {
			if g = sanitize.Text(g); g != "" {
				genres = append(genres, g)
			}
		}
		b, err := json.Marshal(genres)
		if err != nil {
			return nil, errutil.Internal("failed to encode genres", err)
		}
		work.Genres = datatypes.JSON(b)
	}

	var coverKey string
	if cover != nil && len(cover.Data) > 0 {
		coverKey = storage.TimestampedKey("covers/"+workSlug, s.now(), cover.Name)
		url, err := s.store.Put(ctx, coverKey, cover.Data, storage.ContentType(cover.Name))
		if err != nil {
			log.Error("failed to upload cover", zap.String("key", coverKey), zap.Error(err))
			return nil, errutil.Internal("failed to upload cover", err)
		}
		work.CoverURL = url
	}

	if err := s.works.Create(ctx, work); err != nil {
		if coverKey != "" {
			s.cleanup.Schedule(ctx, "work create failed", []string{coverKey}, 0)
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errutil.Conflict("a work with this slug already exists", err)
		}
		log.Error("failed to create work", zap.Error(err))
		return nil, errutil.Internal("failed to create work", err)
	}

	log.Info("work created", zap.String("work_id", work.ID), zap.String("actor_id", actor.ID))
	return work, nil
}

func (s *Service) SetHidden(ctx context.Context, actor identity.Actor, workID string, hidden bool) (*Work, error) {
	if err := s.access.Require(actor, access.WorkCreate); err != nil {
		return nil, err
	}

	w, err := FindWork(ctx, s.db.WithContext(ctx), workID)
	if err != nil {
		return nil, err
	}
	if err := s.works.Update(ctx, w.ID, map[string]any{"is_hidden": hidden}); err != nil {
		logger.FromContext(ctx).Error("failed to update work visibility", zap.String("work_id", workID), zap.Error(err))
		return nil, errutil.Internal("failed to update work", err)
	}
	w.IsHidden = hidden
	return w, nil
}

// DeleteWork removes the work with its staff and content in one transaction,
// then queues its stored files for deletion.
func (s *Service) DeleteWork(ctx context.Context, actor identity.Actor, workID string) error {
	if err := s.access.Require(actor, access.WorkDelete); err != nil {
		return err
	}

	log := logger.FromContext(ctx).With(zap.String("work_id", workID))

	var urls []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := FindWork(ctx, tx, workID, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		urls = append(urls, w.CoverURL)

		if s.purger != nil {
			content, err := s.purger.PurgeWorkTx(ctx, tx, w.ID)
			if err != nil {
				return err
			}
			urls = append(urls, content...)
		}

		if err := tx.Where("work_id = ?", w.ID).Delete(&WorkStaff{}).Error; err != nil {
			return errutil.Internal("failed to delete staff", err)
		}
		if err := tx.Delete(&Work{}, "id = ?", w.ID).Error; err != nil {
			return errutil.Internal("failed to delete work", err)
		}
		return nil
	})
	if err != nil {
		if errutil.Is(err, errutil.StatusInternal) {
			log.Error("failed to delete work", zap.Error(err))
		}
		return err
	}

	keys := storage.KeysFromURLs(s.store, urls...)
	s.cleanup.Schedule(ctx, "work deleted", keys, 0)
	log.Info("work deleted", zap.Int("storage_keys", len(keys)), zap.String("actor_id", actor.ID))
	return nil
}

// AddStaff assigns userID to a pipeline role on workID. A reader is promoted
// to the matching global role.
func (s *Service) AddStaff(ctx context.Context, actor identity.Actor, workID, userID string, role StaffRole) (*WorkStaff, error) {
	if err := s.access.Require(actor, access.WorkStaff); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, errutil.ValidationFailed("invalid staff role", nil,
			errutil.WithDetails(errutil.Detail{Field: "role", Message: "must be TRANSLATOR, EDITOR or QC"}))
	}

	log := logger.FromContext(ctx).With(zap.String("work_id", workID), zap.String("user_id", userID))

	var assignment *WorkStaff
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := FindWork(ctx, tx, workID); err != nil {
			return err
		}
		u, err := user.LockForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}

		exists, err := HasStaffRole(ctx, tx, workID, userID, role)
		if err != nil {
			return err
		}
		if exists {
			return errutil.Conflict("user already holds this role on the work", nil)
		}

		assignment = &WorkStaff{
			ID:     s.node.Generate().String(),
			WorkID: workID,
			UserID: userID,
			Role:   role,
		}
		if err := s.staff.WithTrx(tx).Create(ctx, assignment); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errutil.Conflict("user already holds this role on the work", err)
			}
			return errutil.Internal("failed to add staff", err)
		}

		if u.Role == identity.RoleReader {
			if err := repository.ProvideStore[user.User](tx).Update(ctx, u.ID, map[string]any{"role": role.GlobalRole()}); err != nil {
				return errutil.Internal("failed to promote user", err)
			}
			log.Info("reader promoted for staff assignment", zap.String("role", string(role.GlobalRole())))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("staff added", zap.String("role", string(role)), zap.String("actor_id", actor.ID))
	return assignment, nil
}

// AddStaffByEmail is AddStaff for callers that only know the user's email.
func (s *Service) AddStaffByEmail(ctx context.Context, actor identity.Actor, workID, email string, role StaffRole) (*WorkStaff, error) {
	if err := s.access.Require(actor, access.WorkStaff); err != nil {
		return nil, err
	}
	u, err := user.FindByEmail(ctx, s.db.WithContext(ctx), email)
	if err != nil {
		return nil, err
	}
	return s.AddStaff(ctx, actor, workID, u.ID, role)
}

func (s *Service) RemoveStaff(ctx context.Context, actor identity.Actor, staffID string) error {
	if err := s.access.Require(actor, access.WorkStaff); err != nil {
		return err
	}

	assignment, err := s.staff.FindByID(ctx, staffID)
	if err != nil {
		return errutil.Internal("failed to load staff assignment", err)
	}
	if assignment == nil {
		return errutil.NotFound("staff assignment not found", nil)
	}
	if err := s.db.WithContext(ctx).Delete(&WorkStaff{}, "id = ?", staffID).Error; err != nil {
		logger.FromContext(ctx).Error("failed to remove staff", zap.String("staff_id", staffID), zap.Error(err))
		return errutil.Internal("failed to remove staff", err)
	}
	return nil
}

func (s *Service) ListStaff(ctx context.Context, workID string) ([]*WorkStaff, error) {
	if _, err := FindWork(ctx, s.db.WithContext(ctx), workID); err != nil {
		return nil, err
	}
	staff, err := s.staff.Find(ctx, &WorkStaff{WorkID: workID}, option.WithSortBy(option.QuerySortBy{}))
	if err != nil {
		return nil, errutil.Internal("failed to list staff", err)
	}
	return staff, nil
}
