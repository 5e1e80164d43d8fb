package chapter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"gato-backoffice/pkg/access"
	"gato-backoffice/pkg/archive"
	"gato-backoffice/pkg/config"
	"gato-backoffice/pkg/db/option"
	"gato-backoffice/pkg/errutil"
	"gato-backoffice/pkg/identity"
	"gato-backoffice/pkg/logger"
	"gato-backoffice/pkg/repository"
	"gato-backoffice/pkg/sanitize"
	"gato-backoffice/pkg/storage"
	"gato-backoffice/services/catalog"
	"gato-backoffice/services/cleanup"
	"gato-backoffice/services/ledger"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	defaultUploadConcurrency = 4
	defaultPricePremium      = 3
	defaultPriceLite         = 10
)

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	access  *access.Enforcer
	guard   Guard
	store   storage.ObjectStore
	cleanup cleanup.Scheduler
	ledger  *ledger.Service
	now     func() time.Time

	uploadConcurrency int
	cleanupDelay      time.Duration
	pricePremium      int64
	priceLite         int64

	chapters repository.Repository[Chapter]
	unlocks  repository.Repository[Unlock]
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Access  *access.Enforcer
	Store   storage.ObjectStore
	Cleanup cleanup.Scheduler
	Ledger  *ledger.Service
	Config  *config.Config `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	s := &Service{
		db:      p.DB,
		node:    p.Node,
		access:  p.Access,
		guard:   NewGuard(p.Access),
		store:   p.Store,
		cleanup: p.Cleanup,
		ledger:  p.Ledger,
		now:     time.Now,

		uploadConcurrency: defaultUploadConcurrency,
		pricePremium:      defaultPricePremium,
		priceLite:         defaultPriceLite,

		chapters: repository.ProvideStore[Chapter](p.DB),
		unlocks:  repository.ProvideStore[Unlock](p.DB),
	}

	if cfg := p.Config; cfg != nil {
		if cfg.Storage.UploadConcurrency > 0 {
			s.uploadConcurrency = cfg.Storage.UploadConcurrency
		}
		s.cleanupDelay = cfg.Storage.CleanupDelay
		if cfg.Economy.DefaultPricePremium > 0 {
			s.pricePremium = cfg.Economy.DefaultPricePremium
		}
		if cfg.Economy.DefaultPriceLite > 0 {
			s.priceLite = cfg.Economy.DefaultPriceLite
		}
	}
	return s
}

func findChapter(ctx context.Context, db *gorm.DB, id string, opts ...option.QueryOption) (*Chapter, error) {
	ch, err := repository.ProvideStore[Chapter](db).FindByID(ctx, id, opts...)
	if err != nil {
		return nil, errutil.Internal("failed to load chapter", err)
	}
	if ch == nil {
		return nil, errutil.NotFound("chapter not found", nil)
	}
	return ch, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Chapter, error) {
	return findChapter(ctx, s.db.WithContext(ctx), id)
}

type CreateParams struct {
	WorkID        string
	Number        float64
	Title         string
	PricePremium  *int64
	PriceLite     *int64
	IsFree        bool
	InitialStatus WorkStatus
}

func (p *CreateParams) normalize() error {
	p.Title = sanitize.Text(p.Title)
	if p.InitialStatus == "" {
		p.InitialStatus = StatusDraft
	}

	var details []errutil.Detail
	if math.IsNaN(p.Number) || math.IsInf(p.Number, 0) {
		details = append(details, errutil.Detail{Field: "number", Message: "must be a finite number"})
	} else if p.Number < 0 {
		details = append(details, errutil.Detail{Field: "number", Message: "must not be negative"})
	}
	if !p.InitialStatus.Valid() {
		details = append(details, errutil.Detail{Field: "initial_status", Message: "unknown status " + string(p.InitialStatus)})
	}
	if p.PricePremium != nil && *p.PricePremium < 0 {
		details = append(details, errutil.Detail{Field: "price_premium", Message: "must not be negative"})
	}
	if p.PriceLite != nil && *p.PriceLite < 0 {
		details = append(details, errutil.Detail{Field: "price_lite", Message: "must not be negative"})
	}
	if len(details) > 0 {
		return errutil.ValidationFailed("invalid chapter", nil, errutil.WithDetails(details...))
	}
	return nil
}

func (s *Service) checkDuplicate(ctx context.Context, db *gorm.DB, workID string, number float64, chapterSlug string) error {
	var count int64
	err := db.WithContext(ctx).Model(&Chapter{}).
		Where("work_id = ? AND (number = ? OR slug = ?)", workID, number, chapterSlug).
		Count(&count).Error
	if err != nil {
		return errutil.Internal("failed to check chapter uniqueness", err)
	}
	if count > 0 {
		return errutil.DuplicateChapter("chapter " + FormatNumber(number) + " already exists for this work")
	}
	return nil
}

// CreateChapter extracts the archive, uploads its pages and inserts the
// chapter. Uniqueness is checked before anything is uploaded.
func (s *Service) CreateChapter(ctx context.Context, actor identity.Actor, p CreateParams, zipData []byte) (*Chapter, error) {
	if err := s.access.Require(actor, access.ChapterManage); err != nil {
		return nil, err
	}
	if err := p.normalize(); err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx).With(zap.String("work_id", p.WorkID), zap.Float64("number", p.Number))

	if _, err := catalog.FindWork(ctx, s.db.WithContext(ctx), p.WorkID); err != nil {
		return nil, err
	}
	chapterSlug := Slug(p.Number)
	if err := s.checkDuplicate(ctx, s.db, p.WorkID, p.Number, chapterSlug); err != nil {
		return nil, err
	}

	files, err := extract(zipData)
	if err != nil {
		return nil, err
	}

	urls, keys, err := s.uploadPages(ctx, "chapters/"+p.WorkID+"/"+FormatNumber(p.Number), files)
	if err != nil {
		return nil, err
	}
	images, err := encodeImages(urls)
	if err != nil {
		return nil, errutil.Internal("failed to encode images", err)
	}

	ch := &Chapter{
		ID:           s.node.Generate().String(),
		WorkID:       p.WorkID,
		Number:       p.Number,
		Title:        p.Title,
		Slug:         chapterSlug,
		Images:       images,
		PricePremium: s.pricePremium,
		PriceLite:    s.priceLite,
		IsFree:       p.IsFree,
		WorkStatus:   p.InitialStatus,
	}
	if p.PricePremium != nil {
		ch.PricePremium = *p.PricePremium
	}
	if p.PriceLite != nil {
		ch.PriceLite = *p.PriceLite
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkDuplicate(ctx, tx, p.WorkID, p.Number, chapterSlug); err != nil {
			return err
		}
		if err := s.chapters.WithTrx(tx).Create(ctx, ch); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errutil.DuplicateChapter("chapter " + FormatNumber(p.Number) + " already exists for this work")
			}
			return errutil.Internal("failed to create chapter", err)
		}
		return nil
	})
	if err != nil {
		s.cleanup.Schedule(ctx, "chapter create failed", keys, 0)
		if errutil.Is(err, errutil.StatusInternal) {
			log.Error("failed to create chapter", zap.Error(err))
		}
		return nil, err
	}

	log.Info("chapter created", zap.String("chapter_id", ch.ID), zap.Int("pages", len(urls)), zap.String("actor_id", actor.ID))
	return ch, nil
}

// ReplaceImages swaps the page list of a chapter in any state. The chapter
// id, its status and every unlock tied to it are kept.
func (s *Service) ReplaceImages(ctx context.Context, actor identity.Actor, chapterID string, zipData []byte) (*Chapter, error) {
	if err := s.access.Require(actor, access.ChapterManage); err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx).With(zap.String("chapter_id", chapterID))

	ch, err := findChapter(ctx, s.db.WithContext(ctx), chapterID)
	if err != nil {
		return nil, err
	}
	files, err := extract(zipData)
	if err != nil {
		return nil, err
	}

	urls, keys, err := s.uploadPages(ctx, "chapters/"+ch.WorkID+"/"+ch.ID, files)
	if err != nil {
		return nil, err
	}
	images, err := encodeImages(urls)
	if err != nil {
		return nil, errutil.Internal("failed to encode images", err)
	}

	var old []string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := findChapter(ctx, tx, chapterID, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if old, err = locked.ImageURLs(); err != nil {
			return errutil.Internal("failed to read chapter images", err)
		}
		if err := s.chapters.WithTrx(tx).Update(ctx, locked.ID, map[string]any{"images": images}); err != nil {
			return errutil.Internal("failed to replace images", err)
		}
		ch = locked
		ch.Images = images
		return nil
	})
	if err != nil {
		s.cleanup.Schedule(ctx, "chapter image replace failed", keys, 0)
		log.Error("failed to replace chapter images", zap.Error(err))
		return nil, err
	}

	s.cleanup.Schedule(ctx, "chapter images replaced", storage.KeysFromURLs(s.store, old...), s.cleanupDelay)
	log.Info("chapter images replaced", zap.Int("pages", len(urls)), zap.String("actor_id", actor.ID))
	return ch, nil
}

// DeleteChapter removes the chapter and its unlocks, then queues its files
// for deletion.
func (s *Service) DeleteChapter(ctx context.Context, actor identity.Actor, chapterID string) error {
	if err := s.access.Require(actor, access.ChapterManage); err != nil {
		return err
	}

	var urls []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ch, err := findChapter(ctx, tx, chapterID, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if err := tx.Where("chapter_id = ?", ch.ID).Delete(&Unlock{}).Error; err != nil {
			return errutil.Internal("failed to delete unlocks", err)
		}
		if err := tx.Delete(&Chapter{}, "id = ?", ch.ID).Error; err != nil {
			return errutil.Internal("failed to delete chapter", err)
		}
		if urls, err = ch.StoredURLs(); err != nil {
			return errutil.Internal("failed to read chapter files", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cleanup.Schedule(ctx, "chapter deleted", storage.KeysFromURLs(s.store, urls...), 0)
	logger.FromContext(ctx).Info("chapter deleted", zap.String("chapter_id", chapterID), zap.String("actor_id", actor.ID))
	return nil
}

// PurgeWorkTx deletes every chapter of workID with its unlocks.
func (s *Service) PurgeWorkTx(ctx context.Context, tx *gorm.DB, workID string) ([]string, error) {
	chapters, err := s.chapters.WithTrx(tx).Find(ctx, &Chapter{WorkID: workID})
	if err != nil {
		return nil, errutil.Internal("failed to load chapters", err)
	}
	if len(chapters) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(chapters))
	var urls []string
	for _, ch := range chapters {
		ids = append(ids, ch.ID)
		stored, err := ch.StoredURLs()
		if err != nil {
			return nil, errutil.Internal("failed to read chapter files", err)
		}
		urls = append(urls, stored...)
	}

	if err := tx.Where("chapter_id IN ?", ids).Delete(&Unlock{}).Error; err != nil {
		return nil, errutil.Internal("failed to delete unlocks", err)
	}
	if err := tx.Where("work_id = ?", workID).Delete(&Chapter{}).Error; err != nil {
		return nil, errutil.Internal("failed to delete chapters", err)
	}
	return urls, nil
}

func extract(zipData []byte) ([]archive.File, error) {
	if len(zipData) == 0 {
		return nil, errutil.ValidationFailed("archive is required", nil)
	}
	files, err := archive.ExtractOrderedImages(zipData)
	if err != nil {
		return nil, errutil.ValidationFailed("invalid page archive", err,
			errutil.WithDetails(errutil.Detail{Field: "file", Message: err.Error()}))
	}
	return files, nil
}

// uploadPages writes files under prefix in parallel and returns their URLs
// in page order. Keys carry the page position so names that SafeName folds
// together stay distinct. On failure the written keys are queued for cleanup.
func (s *Service) uploadPages(ctx context.Context, prefix string, files []archive.File) ([]string, []string, error) {
	at := s.now()
	keys := make([]string, len(files))
	urls := make([]string, len(files))
	for i, f := range files {
		keys[i] = storage.TimestampedKey(prefix, at, fmt.Sprintf("%04d-%s", i+1, strings.ReplaceAll(f.Path, "/", "_")))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.uploadConcurrency)
	for i, f := range files {
		g.Go(func() error {
			url, err := s.store.Put(gctx, keys[i], f.Data, storage.ContentType(f.Name))
			if err != nil {
				return err
			}
			urls[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.FromContext(ctx).Error("failed to upload pages", zap.String("prefix", prefix), zap.Error(err))
		s.cleanup.Schedule(ctx, "page upload failed", keys, 0)
		return nil, nil, errutil.Internal("failed to upload pages", err)
	}
	return urls, keys, nil
}
