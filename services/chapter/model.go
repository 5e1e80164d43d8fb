package chapter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"gato-backoffice/services/ledger"

	"github.com/gosimple/slug"
	"gorm.io/datatypes"
)

type WorkStatus string

const (
	StatusDraft       WorkStatus = "DRAFT"
	StatusTranslating WorkStatus = "TRANSLATING"
	StatusEditing     WorkStatus = "EDITING"
	StatusQCPending   WorkStatus = "QC_PENDING"
	StatusQCRejected  WorkStatus = "QC_REJECTED"
	StatusReady       WorkStatus = "READY"
	StatusPublished   WorkStatus = "PUBLISHED"
)

func (s WorkStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusTranslating, StatusEditing, StatusQCPending,
		StatusQCRejected, StatusReady, StatusPublished:
		return true
	}
	return false
}

type Chapter struct {
	ID             string         `gorm:"column:id;primaryKey" json:"id"`
	WorkID         string         `gorm:"column:work_id;not null;uniqueIndex:idx_chapters_work_number,priority:1;uniqueIndex:idx_chapters_work_slug,priority:1" json:"work_id"`
	Number         float64        `gorm:"column:number;not null;uniqueIndex:idx_chapters_work_number,priority:2" json:"number"`
	Title          string         `gorm:"column:title" json:"title"`
	Slug           string         `gorm:"column:slug;not null;uniqueIndex:idx_chapters_work_slug,priority:2" json:"slug"`
	Images         datatypes.JSON `gorm:"column:images" json:"images"`
	PricePremium   int64          `gorm:"column:price_premium;not null;default:0" json:"price_premium"`
	PriceLite      int64          `gorm:"column:price_lite;not null;default:0" json:"price_lite"`
	IsFree         bool           `gorm:"column:is_free;not null;default:false" json:"is_free"`
	WorkStatus     WorkStatus     `gorm:"column:work_status;not null;default:DRAFT;index" json:"work_status"`
	TranslationURL string         `gorm:"column:translation_url" json:"translation_url,omitempty"`
	EditedZipURL   string         `gorm:"column:edited_zip_url" json:"edited_zip_url,omitempty"`
	CreatedAt      time.Time      `gorm:"column:created_at;index" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

// ImageURLs decodes the page list. A corrupt column is an error, never an
// empty chapter, so callers cannot lose track of stored pages.
func (c *Chapter) ImageURLs() ([]string, error) {
	var urls []string
	if len(c.Images) == 0 {
		return urls, nil
	}
	if err := json.Unmarshal(c.Images, &urls); err != nil {
		return nil, fmt.Errorf("chapter %s: decode images: %w", c.ID, err)
	}
	return urls, nil
}

// StoredURLs lists every storage object the chapter references.
func (c *Chapter) StoredURLs() ([]string, error) {
	urls, err := c.ImageURLs()
	if err != nil {
		return nil, err
	}
	return append(urls, c.TranslationURL, c.EditedZipURL), nil
}

func encodeImages(urls []string) (datatypes.JSON, error) {
	if urls == nil {
		urls = []string{}
	}
	b, err := json.Marshal(urls)
	return datatypes.JSON(b), err
}

// FormatNumber renders 12 as "12" and 12.5 as "12.5".
func FormatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// Slug derives the chapter slug, e.g. capitulo-12-5.
func Slug(n float64) string {
	return slug.Make("capitulo-" + FormatNumber(n))
}

// Unlock grants a user permanent access to one chapter. It is keyed by the
// chapter id, so replacing pages keeps it valid.
type Unlock struct {
	ID            string          `gorm:"column:id;primaryKey" json:"id"`
	UserID        string          `gorm:"column:user_id;not null;uniqueIndex:idx_chapter_unlocks_user_chapter,priority:1" json:"user_id"`
	ChapterID     string          `gorm:"column:chapter_id;not null;uniqueIndex:idx_chapter_unlocks_user_chapter,priority:2;index" json:"chapter_id"`
	Currency      ledger.Currency `gorm:"column:currency" json:"currency"`
	Price         int64           `gorm:"column:price;not null;default:0" json:"price"`
	TransactionID string          `gorm:"column:transaction_id" json:"transaction_id,omitempty"`
	CreatedAt     time.Time       `gorm:"column:created_at" json:"created_at"`
}

func (Unlock) TableName() string {
	return "chapter_unlocks"
}
