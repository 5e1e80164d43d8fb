package moderation

import (
	"time"
)

type ReportStatus string

const (
	ReportPending  ReportStatus = "PENDING"
	ReportResolved ReportStatus = "RESOLVED"
)

type ContentType string

const (
	ContentComment ContentType = "COMMENT"
	ContentPost    ContentType = "POST"
)

func (t ContentType) Valid() bool {
	return t == ContentComment || t == ContentPost
}

type Punishment string

const (
	PunishDeleteOnly Punishment = "DELETE_ONLY"
	PunishMute24h    Punishment = "MUTE_24H"
	PunishMute7d     Punishment = "MUTE_7D"
	PunishBan        Punishment = "BAN"
)

func (p Punishment) Valid() bool {
	switch p {
	case PunishDeleteOnly, PunishMute24h, PunishMute7d, PunishBan:
		return true
	}
	return false
}

type Comment struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	UserID    string    `gorm:"column:user_id;not null;index" json:"user_id"`
	ChapterID *string   `gorm:"column:chapter_id;index" json:"chapter_id,omitempty"`
	PostID    *string   `gorm:"column:post_id;index" json:"post_id,omitempty"`
	Content   string    `gorm:"column:content" json:"content"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

type Post struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	UserID    string    `gorm:"column:user_id;not null;index" json:"user_id"`
	Title     string    `gorm:"column:title" json:"title"`
	Content   string    `gorm:"column:content" json:"content"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

// Report flags exactly one comment or post.
type Report struct {
	ID         string       `gorm:"column:id;primaryKey" json:"id"`
	CommentID  *string      `gorm:"column:comment_id;index" json:"comment_id,omitempty"`
	PostID     *string      `gorm:"column:post_id;index" json:"post_id,omitempty"`
	ReporterID string       `gorm:"column:reporter_id;not null" json:"reporter_id"`
	Reason     string       `gorm:"column:reason" json:"reason"`
	Status     ReportStatus `gorm:"column:status;not null;default:PENDING;index" json:"status"`
	ResolvedAt *time.Time   `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
	CreatedAt  time.Time    `gorm:"column:created_at" json:"created_at"`
}
