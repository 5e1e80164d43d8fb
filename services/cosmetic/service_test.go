package cosmetic

import (
	"context"
	"net/http"
	"testing"

	"gato-backoffice/pkg/access"
	"gato-backoffice/pkg/errutil"
	"gato-backoffice/pkg/identity"
	"gato-backoffice/pkg/storage"
	"gato-backoffice/services/cleanup"
	"gato-backoffice/services/ledger"
	"gato-backoffice/services/testutil"
	"gato-backoffice/services/user"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var (
	admin  = identity.Actor{ID: "admin-1", Role: identity.RoleAdmin}
	reader = identity.Actor{ID: "rd-1", Role: identity.RoleReader}
	broke  = identity.Actor{ID: "rd-2", Role: identity.RoleReader}
)

type fixture struct {
	svc      *Service
	db       *gorm.DB
	store    *storage.MemoryStore
	recorder *cleanup.Recorder
}

func setup(t *testing.T) *fixture {
	t.Helper()

	models := append(user.Models(), ledger.Models()...)
	db := testutil.NewTestDB(t, append(models, Models()...)...)
	enforcer, err := access.NewDefault()
	require.NoError(t, err)
	node, err := snowflake.NewNode(5)
	require.NoError(t, err)

	f := &fixture{db: db, store: storage.NewMemoryStore("https://cdn.test"), recorder: &cleanup.Recorder{}}
	f.svc = NewService(ServiceParams{
		DB: db, Node: node, Access: enforcer, Store: f.store, Cleanup: f.recorder,
		Ledger: ledger.NewService(ledger.ServiceParams{DB: db, Node: node, Access: enforcer}),
	})

	require.NoError(t, db.Create(&user.User{ID: admin.ID, Name: "admin", Role: admin.Role}).Error)
	require.NoError(t, db.Create(&user.User{ID: reader.ID, Name: "reader", Role: reader.Role, BalancePremium: 100}).Error)
	require.NoError(t, db.Create(&user.User{ID: broke.ID, Name: "broke", Role: broke.Role, BalancePremium: 5}).Error)
	return f
}

func (f *fixture) cosmetic(t *testing.T, name string, typ Type, price int64) *Cosmetic {
	t.Helper()
	c, err := f.svc.Create(context.Background(), admin, CreateParams{
		Name: name, Type: typ, Rarity: RarityEpic, Price: price, ImageURL: "https://cdn.test/cosmetics/" + name + ".png",
	})
	require.NoError(t, err)
	return c
}

func balance(t *testing.T, db *gorm.DB, id string) int64 {
	t.Helper()
	var u user.User
	require.NoError(t, db.First(&u, "id = ?", id).Error)
	return u.BalancePremium
}

func TestCreateValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, reader, CreateParams{Name: "x", Type: TypeAvatarFrame, ImageURL: "https://x.test/a.png"})
	require.True(t, errutil.Is(err, errutil.StatusForbidden))

	_, err = f.svc.Create(ctx, admin, CreateParams{Name: "<b></b>", Type: "HAT", Price: -1, ImageURL: "/relative.png"})
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

	c, err := f.svc.Create(ctx, admin, CreateParams{Name: "Moldura <i>Dourada</i>", Type: TypeAvatarFrame, ImageURL: "http://x.test/a.png"})
	require.NoError(t, err)
	require.Equal(t, "Moldura Dourada", c.Name)
	require.Equal(t, RarityCommon, c.Rarity)
}

func TestPurchase(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	frame := f.cosmetic(t, "frame", TypeAvatarFrame, 30)

	owned, err := f.svc.Purchase(ctx, reader, frame.ID)
	require.NoError(t, err)
	require.NotEmpty(t, owned.TransactionID)
	require.Equal(t, int64(70), balance(t, f.db, reader.ID))

	var tx ledger.Transaction
	require.NoError(t, f.db.First(&tx, "id = ?", owned.TransactionID).Error)
	require.Equal(t, "Purchase: frame", tx.Description)
	require.Equal(t, int64(-30), tx.Amount)

	_, err = f.svc.Purchase(ctx, reader, frame.ID)
	require.True(t, errutil.Is(err, errutil.StatusAlreadyOwned))
	require.Equal(t, int64(70), balance(t, f.db, reader.ID))

	_, err = f.svc.Purchase(ctx, broke, frame.ID)
	require.True(t, errutil.Is(err, errutil.StatusInsufficientFunds))
	require.Equal(t, int64(5), balance(t, f.db, broke.ID))
	var n int64
	require.NoError(t, f.db.Model(&UserCosmetic{}).Where("user_id = ?", broke.ID).Count(&n).Error)
	require.Zero(t, n, "failed debit grants nothing")

	_, err = f.svc.Purchase(ctx, reader, "missing")
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
}

func TestPurchaseFreeSkipsLedger(t *testing.T) {
	f := setup(t)
	free := f.cosmetic(t, "color", TypeUsernameColor, 0)

	owned, err := f.svc.Purchase(context.Background(), broke, free.ID)
	require.NoError(t, err)
	require.Empty(t, owned.TransactionID)

	var n int64
	require.NoError(t, f.db.Model(&ledger.Transaction{}).Count(&n).Error)
	require.Zero(t, n)
}

func TestEquip(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	frame := f.cosmetic(t, "frame", TypeAvatarFrame, 10)
	other := f.cosmetic(t, "frame2", TypeAvatarFrame, 10)
	banner := f.cosmetic(t, "banner", TypeProfileBanner, 10)

	_, err := f.svc.Equip(ctx, reader, frame.ID, SlotAvatarFrame)
	require.True(t, errutil.Is(err, errutil.StatusNotOwned))

	for _, c := range []*Cosmetic{frame, other, banner} {
		_, err := f.svc.Purchase(ctx, reader, c.ID)
		require.NoError(t, err)
	}

	_, err = f.svc.Equip(ctx, reader, banner.ID, SlotAvatarFrame)
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

	_, err = f.svc.Equip(ctx, reader, frame.ID, "USERNAME_COLOR")
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

	u, err := f.svc.Equip(ctx, reader, frame.ID, SlotAvatarFrame)
	require.NoError(t, err)
	require.Equal(t, frame.ID, *u.EquippedAvatarFrameID)

	u, err = f.svc.Equip(ctx, reader, frame.ID, SlotAvatarFrame)
	require.NoError(t, err, "re-equip is a no-op")
	require.Equal(t, frame.ID, *u.EquippedAvatarFrameID)

	u, err = f.svc.Equip(ctx, reader, other.ID, SlotAvatarFrame)
	require.NoError(t, err)
	require.Equal(t, other.ID, *u.EquippedAvatarFrameID)

	u, err = f.svc.Equip(ctx, reader, banner.ID, SlotProfileBanner)
	require.NoError(t, err)
	require.Equal(t, other.ID, *u.EquippedAvatarFrameID)
	require.Equal(t, banner.ID, *u.EquippedProfileBannerID)
}

func TestDeleteUnequips(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	frame := f.cosmetic(t, "frame", TypeAvatarFrame, 10)
	_, err := f.svc.Purchase(ctx, reader, frame.ID)
	require.NoError(t, err)
	_, err = f.svc.Equip(ctx, reader, frame.ID, SlotAvatarFrame)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, admin, frame.ID))

	var u user.User
	require.NoError(t, f.db.First(&u, "id = ?", reader.ID).Error)
	require.Nil(t, u.EquippedAvatarFrameID)

	owned, err := f.svc.Owned(ctx, reader, reader.ID)
	require.NoError(t, err)
	require.Empty(t, owned)
	require.Equal(t, []string{"cosmetics/frame.png"}, f.recorder.Keys())

	err = f.svc.Delete(ctx, admin, frame.ID)
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
}

func TestPurchaseHandler(t *testing.T) {
	f := setup(t)
	api := testutil.NewAPI(t)
	registerRoutes(api.Router, f.svc)
	frame := f.cosmetic(t, "frame", TypeAvatarFrame, 5)

	w := api.Do(t, broke, http.MethodPost, "/api/v1/cosmetics/"+frame.ID+"/purchase", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = api.Do(t, broke, http.MethodPost, "/api/v1/cosmetics/"+frame.ID+"/purchase", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, string(errutil.StatusAlreadyOwned), testutil.ErrorCode(t, w))

	w = api.Do(t, broke, http.MethodPost, "/api/v1/cosmetics/"+frame.ID+"/equip", map[string]string{"slot": "AVATAR_FRAME"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}
