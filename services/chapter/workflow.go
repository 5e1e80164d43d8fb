package chapter

import (
	"context"
	"fmt"
	"path"

	"gato-backoffice/pkg/db/option"
	"gato-backoffice/pkg/errutil"
	"gato-backoffice/pkg/identity"
	"gato-backoffice/pkg/logger"
	"gato-backoffice/pkg/storage"
	"gato-backoffice/services/catalog"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// step is one requested pipeline move. artifact, when set, is uploaded under
// the workflow prefix and its URL handed to fields.
type step struct {
	action   Action
	stage    string
	artifact *storage.Blob
	fields   func(url string) map[string]any
}

func (s *Service) assignedRoles(ctx context.Context, workID, userID string) ([]catalog.StaffRole, error) {
	var roles []catalog.StaffRole
	err := s.db.WithContext(ctx).Model(&catalog.WorkStaff{}).
		Where("work_id = ? AND user_id = ?", workID, userID).
		Pluck("role", &roles).Error
	if err != nil {
		return nil, errutil.Internal("failed to load staff assignments", err)
	}
	return roles, nil
}

func invalidState(ch *Chapter, a Action) error {
	return errutil.InvalidState("cannot " + string(a) + " a chapter in state " + string(ch.WorkStatus))
}

// advance checks the actor's capability, then the current state, uploads the
// artifact and finally applies the move under a row lock.
func (s *Service) advance(ctx context.Context, actor identity.Actor, chapterID string, st step) (*Chapter, error) {
	if actor.Anonymous() {
		return nil, errutil.Unauthorized("authentication required", nil)
	}
	t := transitions[st.action]

	log := logger.FromContext(ctx).With(
		zap.String("chapter_id", chapterID),
		zap.String("action", string(st.action)),
		zap.String("actor_id", actor.ID),
	)

	ch, err := findChapter(ctx, s.db.WithContext(ctx), chapterID)
	if err != nil {
		return nil, err
	}
	work, err := catalog.FindWork(ctx, s.db.WithContext(ctx), ch.WorkID)
	if err != nil {
		return nil, err
	}
	assigned, err := s.assignedRoles(ctx, ch.WorkID, actor.ID)
	if err != nil {
		return nil, err
	}
	if !s.guard.CanPerform(actor.Role, assigned, st.action) {
		return nil, errutil.Forbidden("not allowed to "+string(st.action)+" on this work", nil)
	}
	if ch.WorkStatus != t.From {
		return nil, invalidState(ch, st.action)
	}

	var url, key string
	if st.artifact != nil {
		ext := path.Ext(st.artifact.Name)
		if ext != "" {
			ext = storage.SafeName(ext)
		}
		key = fmt.Sprintf("workflow/%s/%s/%s-%d%s", work.Slug, ch.Slug, st.stage, s.now().UnixMilli(), ext)
		url, err = s.store.Put(ctx, key, st.artifact.Data, storage.ContentType(st.artifact.Name))
		if err != nil {
			log.Error("failed to upload workflow artifact", zap.Error(err))
			return nil, errutil.Internal("failed to upload artifact", err)
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := findChapter(ctx, tx, chapterID, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if locked.WorkStatus != t.From {
			return invalidState(locked, st.action)
		}

		updates := map[string]any{"work_status": t.To}
		if st.fields != nil {
			for k, v := range st.fields(url) {
				updates[k] = v
			}
		}
		if err := s.chapters.WithTrx(tx).Update(ctx, locked.ID, updates); err != nil {
			return errutil.Internal("failed to update chapter", err)
		}

		reloaded, err := findChapter(ctx, tx, locked.ID)
		if err != nil {
			return err
		}
		ch = reloaded
		return nil
	})
	if err != nil {
		if key != "" {
			s.cleanup.Schedule(ctx, "workflow transition failed", []string{key}, 0)
		}
		if errutil.Is(err, errutil.StatusInternal) {
			log.Error("chapter transition failed", zap.Error(err))
		}
		return nil, err
	}

	log.Info("chapter transitioned", zap.String("from", string(t.From)), zap.String("to", string(t.To)))
	return ch, nil
}

func requireArtifact(b *storage.Blob) error {
	if b == nil || len(b.Data) == 0 {
		return errutil.ValidationFailed("artifact is required", nil,
			errutil.WithDetails(errutil.Detail{Field: "file", Message: "required"}))
	}
	return nil
}

// StartTranslation hands a DRAFT chapter to its translators.
func (s *Service) StartTranslation(ctx context.Context, actor identity.Actor, chapterID string) (*Chapter, error) {
	return s.advance(ctx, actor, chapterID, step{action: ActionStartTranslation})
}

// SubmitTranslation stores the translation artifact and moves the chapter
// from TRANSLATING to EDITING.
func (s *Service) SubmitTranslation(ctx context.Context, actor identity.Actor, chapterID string, artifact *storage.Blob) (*Chapter, error) {
	if err := requireArtifact(artifact); err != nil {
		return nil, err
	}
	return s.advance(ctx, actor, chapterID, step{
		action:   ActionSubmitTranslation,
		stage:    "translator",
		artifact: artifact,
		fields: func(url string) map[string]any {
			return map[string]any{"translation_url": url}
		},
	})
}

// SubmitEdit stores the edited archive and moves the chapter from EDITING to
// QC_PENDING.
func (s *Service) SubmitEdit(ctx context.Context, actor identity.Actor, chapterID string, artifact *storage.Blob) (*Chapter, error) {
	if err := requireArtifact(artifact); err != nil {
		return nil, err
	}
	return s.advance(ctx, actor, chapterID, step{
		action:   ActionSubmitEdit,
		stage:    "editor",
		artifact: artifact,
		fields: func(url string) map[string]any {
			return map[string]any{"edited_zip_url": url}
		},
	})
}

// ReviewQC approves a chapter to READY or rejects it back to EDITING.
func (s *Service) ReviewQC(ctx context.Context, actor identity.Actor, chapterID string, d Decision) (*Chapter, error) {
	switch d {
	case DecisionApprove:
		return s.advance(ctx, actor, chapterID, step{action: ActionApprove})
	case DecisionReject:
		return s.advance(ctx, actor, chapterID, step{action: ActionReject})
	default:
		return nil, errutil.ValidationFailed("invalid decision", nil,
			errutil.WithDetails(errutil.Detail{Field: "decision", Message: "must be APPROVE or REJECT"}))
	}
}

func (s *Service) ReopenEditing(ctx context.Context, actor identity.Actor, chapterID string) (*Chapter, error) {
	return s.advance(ctx, actor, chapterID, step{action: ActionReopen})
}

// Publish moves a READY chapter to PUBLISHED and stamps created_at with the
// publication time.
func (s *Service) Publish(ctx context.Context, actor identity.Actor, chapterID string) (*Chapter, error) {
	now := s.now().UTC()
	return s.advance(ctx, actor, chapterID, step{
		action: ActionPublish,
		fields: func(string) map[string]any {
			return map[string]any{"created_at": now}
		},
	})
}
