package promo

import (
	"context"
	"net/http"
	"testing"
	"time"

	"gato-backoffice/pkg/access"
	"gato-backoffice/pkg/db/pagination"
	"gato-backoffice/pkg/errutil"
	"gato-backoffice/pkg/featureflags"
	"gato-backoffice/pkg/identity"
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
	owner = identity.Actor{ID: "owner-1", Role: identity.RoleOwner}
	alice = identity.Actor{ID: "alice", Role: identity.RoleReader}
	bob   = identity.Actor{ID: "bob", Role: identity.RoleReader}
)

func setupService(t *testing.T) (*Service, *ledger.Service, *gorm.DB) {
	t.Helper()

	models := append(user.Models(), ledger.Models()...)
	db := testutil.NewTestDB(t, append(models, Models()...)...)
	enforcer, err := access.NewDefault()
	require.NoError(t, err)
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	ledgerSvc := ledger.NewService(ledger.ServiceParams{DB: db, Node: node, Access: enforcer})
	svc := NewService(ServiceParams{DB: db, Node: node, Access: enforcer, Ledger: ledgerSvc})

	for _, a := range []identity.Actor{owner, alice, bob} {
		require.NoError(t, db.Create(&user.User{ID: a.ID, Name: a.ID, Role: a.Role}).Error)
	}
	return svc, ledgerSvc, db
}

func int64Ptr(v int64) *int64 { return &v }

func TestCreateValidation(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	code, err := svc.Create(ctx, owner, CreateParams{Code: " gato10 ", Amount: 10, Type: ledger.CurrencyLite, MaxUses: int64Ptr(0)})
	require.NoError(t, err)
	require.Equal(t, "GATO10", code.Code)
	require.Nil(t, code.MaxUses)

	_, err = svc.Create(ctx, owner, CreateParams{Code: "GATO10", Amount: 5, Type: ledger.CurrencyLite})
	require.True(t, errutil.Is(err, errutil.StatusConflict))

	cases := []CreateParams{
		{Code: "AB", Amount: 10, Type: ledger.CurrencyLite},
		{Code: "NO SPACES", Amount: 10, Type: ledger.CurrencyLite},
		{Code: "ZERO", Amount: 0, Type: ledger.CurrencyLite},
		{Code: "GOLD", Amount: 1, Type: "GOLD"},
	}
	for _, c := range cases {
		_, err := svc.Create(ctx, owner, c)
		require.True(t, errutil.Is(err, errutil.StatusValidationFailed), c.Code)
	}

	_, err = svc.Create(ctx, identity.Actor{ID: "a", Role: identity.RoleAdmin}, CreateParams{Code: "ADMIN1", Amount: 1, Type: ledger.CurrencyLite})
	require.True(t, errutil.Is(err, errutil.StatusForbidden))
}

func TestRedeemSingleUseCode(t *testing.T) {
	svc, ledgerSvc, db := setupService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, owner, CreateParams{Code: "GATO10", Amount: 10, Type: ledger.CurrencyLite, MaxUses: int64Ptr(1)})
	require.NoError(t, err)

	res, err := svc.Redeem(ctx, alice, "gato10")
	require.NoError(t, err)
	require.Equal(t, int64(1), res.UsedCount)

	bal, err := ledgerSvc.EffectiveLiteBalance(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10), bal)

	_, err = svc.Redeem(ctx, alice, "GATO10")
	require.True(t, errutil.Is(err, errutil.StatusUsageLimitReached))
	_, err = svc.Redeem(ctx, bob, "GATO10")
	require.True(t, errutil.Is(err, errutil.StatusUsageLimitReached))

	var stored PromoCode
	require.NoError(t, db.First(&stored, "code = ?", "GATO10").Error)
	require.Equal(t, int64(1), stored.UsedCount)

	r, err := ledgerSvc.Reconcile(ctx, alice.ID)
	require.NoError(t, err)
	require.True(t, r.Consistent)
}

func TestRedeemOncePerUser(t *testing.T) {
	svc, ledgerSvc, db := setupService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, owner, CreateParams{Code: "WELCOME", Amount: 3, Type: ledger.CurrencyPremium})
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, alice, "WELCOME")
	require.NoError(t, err)
	_, err = svc.Redeem(ctx, alice, "welcome")
	require.True(t, errutil.Is(err, errutil.StatusAlreadyRedeemed))
	_, err = svc.Redeem(ctx, bob, "WELCOME")
	require.NoError(t, err)

	var u user.User
	require.NoError(t, db.First(&u, "id = ?", alice.ID).Error)
	require.Equal(t, int64(3), u.BalancePremium)

	txs, err := ledgerSvc.ListTransactions(ctx, alice.ID, pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, "Promo code: WELCOME", txs[0].Description)
}

func TestRedeemFailureOrder(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Redeem(ctx, alice, "NOPE")
	require.True(t, errutil.Is(err, errutil.StatusNotFound))

	past := time.Now().Add(-time.Hour)
	_, err = svc.Create(ctx, owner, CreateParams{Code: "OLD", Amount: 1, Type: ledger.CurrencyLite, MaxUses: int64Ptr(1), ExpiresAt: &past})
	require.NoError(t, err)
	_, err = svc.Redeem(ctx, alice, "OLD")
	require.True(t, errutil.Is(err, errutil.StatusExpired))

	_, err = svc.Redeem(ctx, identity.Actor{}, "OLD")
	require.True(t, errutil.Is(err, errutil.StatusUnauthorized))
}

func TestRedeemKillSwitch(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, owner, CreateParams{Code: "PAUSED", Amount: 1, Type: ledger.CurrencyLite})
	require.NoError(t, err)

	svc.flags = featureflags.Static{featureflags.PromoRedemption: false}
	_, err = svc.Redeem(ctx, alice, "PAUSED")
	require.True(t, errutil.Is(err, errutil.StatusForbidden))

	svc.flags = featureflags.Static{}
	_, err = svc.Redeem(ctx, alice, "PAUSED")
	require.NoError(t, err)
}

func TestDeleteAndList(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	code, err := svc.Create(ctx, owner, CreateParams{Code: "TEMP", Amount: 1, Type: ledger.CurrencyLite})
	require.NoError(t, err)
	_, err = svc.Redeem(ctx, alice, "TEMP")
	require.NoError(t, err)

	codes, err := svc.List(ctx, owner, pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, codes, 1)

	require.NoError(t, svc.Delete(ctx, owner, code.ID))
	err = svc.Delete(ctx, owner, code.ID)
	require.True(t, errutil.Is(err, errutil.StatusNotFound))

	_, err = svc.Redeem(ctx, alice, "TEMP")
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
}

func TestRedeemHandler(t *testing.T) {
	svc, _, _ := setupService(t)
	api := testutil.NewAPI(t)
	registerRoutes(api.Router, svc)

	w := api.Do(t, owner, http.MethodPost, "/api/v1/promo-codes", map[string]any{"code": "GATO10", "amount": 10, "type": "LITE", "max_uses": 1})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = api.Do(t, alice, http.MethodPost, "/api/v1/promo-codes/redeem", map[string]any{"code": "gato10"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = api.Do(t, bob, http.MethodPost, "/api/v1/promo-codes/redeem", map[string]any{"code": "gato10"})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "USAGE_LIMIT_REACHED", testutil.ErrorCode(t, w))

	w = api.Do(t, identity.Actor{}, http.MethodPost, "/api/v1/promo-codes/redeem", map[string]any{"code": "gato10"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
