package cosmetic

import (
	"time"
)

type Type string

const (
	TypeAvatarFrame       Type = "AVATAR_FRAME"
	TypeProfileBanner     Type = "PROFILE_BANNER"
	TypeCommentBackground Type = "COMMENT_BACKGROUND"
	TypeUsernameColor     Type = "USERNAME_COLOR"
)

func (t Type) Valid() bool {
	switch t {
	case TypeAvatarFrame, TypeProfileBanner, TypeCommentBackground, TypeUsernameColor:
		return true
	}
	return false
}

type Rarity string

const (
	RarityCommon    Rarity = "COMMON"
	RarityRare      Rarity = "RARE"
	RarityEpic      Rarity = "EPIC"
	RarityLegendary Rarity = "LEGENDARY"
)

func (r Rarity) Valid() bool {
	switch r {
	case RarityCommon, RarityRare, RarityEpic, RarityLegendary:
		return true
	}
	return false
}

// Slot is an equip position on the user profile. Username colors are owned
// but never equipped into a slot.
type Slot string

const (
	SlotAvatarFrame       Slot = Slot(TypeAvatarFrame)
	SlotProfileBanner     Slot = Slot(TypeProfileBanner)
	SlotCommentBackground Slot = Slot(TypeCommentBackground)
)

var slotColumns = map[Slot]string{
	SlotAvatarFrame:       "equipped_avatar_frame_id",
	SlotProfileBanner:     "equipped_profile_banner_id",
	SlotCommentBackground: "equipped_comment_background_id",
}

// Column is the users column holding the item equipped in s.
func (s Slot) Column() (string, bool) {
	c, ok := slotColumns[s]
	return c, ok
}

type Cosmetic struct {
	ID          string    `gorm:"column:id;primaryKey" json:"id"`
	Name        string    `gorm:"column:name;not null" json:"name"`
	Description string    `gorm:"column:description" json:"description"`
	Type        Type      `gorm:"column:type;not null;index" json:"type"`
	Rarity      Rarity    `gorm:"column:rarity;not null;default:COMMON" json:"rarity"`
	Price       int64     `gorm:"column:price;not null;default:0" json:"price"`
	ImageURL    string    `gorm:"column:image_url" json:"image_url"`
	CreatedBy   string    `gorm:"column:created_by" json:"created_by"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// UserCosmetic records ownership. One row per (user, cosmetic).
type UserCosmetic struct {
	ID            string    `gorm:"column:id;primaryKey" json:"id"`
	UserID        string    `gorm:"column:user_id;not null;uniqueIndex:idx_user_cosmetics_owner,priority:1" json:"user_id"`
	CosmeticID    string    `gorm:"column:cosmetic_id;not null;uniqueIndex:idx_user_cosmetics_owner,priority:2;index" json:"cosmetic_id"`
	TransactionID string    `gorm:"column:transaction_id" json:"transaction_id,omitempty"`
	CreatedAt     time.Time `gorm:"column:created_at" json:"created_at"`
}
