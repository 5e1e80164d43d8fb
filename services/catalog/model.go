package catalog

import (
	"time"

	"gato-backoffice/pkg/identity"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AgeRating string

const (
	RatingLivre     AgeRating = "LIVRE"
	RatingDez       AgeRating = "DEZ"
	RatingDoze      AgeRating = "DOZE"
	RatingQuatorze  AgeRating = "QUATORZE"
	RatingDezesseis AgeRating = "DEZESSEIS"
	RatingDezoito   AgeRating = "DEZOITO"
)

func (r AgeRating) Valid() bool {
	switch r {
	case RatingLivre, RatingDez, RatingDoze, RatingQuatorze, RatingDezesseis, RatingDezoito:
		return true
	}
	return false
}

// Adult reports whether r is the top rating tier.
func (r AgeRating) Adult() bool {
	return r == RatingDezoito
}

type Work struct {
	ID          string         `gorm:"column:id;primaryKey" json:"id"`
	Title       string         `gorm:"column:title;not null" json:"title"`
	Slug        string         `gorm:"column:slug;not null;uniqueIndex" json:"slug"`
	Description string         `gorm:"column:description" json:"description"`
	Genres      datatypes.JSON `gorm:"column:genres" json:"genres,omitempty"`
	CoverURL    string         `gorm:"column:cover_url" json:"cover_url"`
	AgeRating   AgeRating      `gorm:"column:age_rating;not null;default:LIVRE" json:"age_rating"`
	IsAdult     bool           `gorm:"column:is_adult;not null;default:false" json:"is_adult"`
	OwnerID     *string        `gorm:"column:owner_id;index" json:"owner_id,omitempty"`
	IsHidden    bool           `gorm:"column:is_hidden;not null;default:false" json:"is_hidden"`
	CreatedAt   time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (w *Work) BeforeSave(*gorm.DB) error {
	w.IsAdult = w.AgeRating.Adult()
	return nil
}

type StaffRole string

const (
	StaffTranslator StaffRole = "TRANSLATOR"
	StaffEditor     StaffRole = "EDITOR"
	StaffQC         StaffRole = "QC"
)

func (r StaffRole) Valid() bool {
	return r == StaffTranslator || r == StaffEditor || r == StaffQC
}

// GlobalRole is the platform role a reader is promoted to when first
// assigned r on any work.
func (r StaffRole) GlobalRole() identity.Role {
	switch r {
	case StaffTranslator:
		return identity.RoleTranslator
	case StaffEditor:
		return identity.RoleEditor
	default:
		return identity.RoleQC
	}
}

type WorkStaff struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	WorkID    string    `gorm:"column:work_id;not null;uniqueIndex:idx_work_staff_assignment,priority:1" json:"work_id"`
	UserID    string    `gorm:"column:user_id;not null;uniqueIndex:idx_work_staff_assignment,priority:2;index" json:"user_id"`
	Role      StaffRole `gorm:"column:role;not null;uniqueIndex:idx_work_staff_assignment,priority:3" json:"role"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (WorkStaff) TableName() string {
	return "work_staff"
}
