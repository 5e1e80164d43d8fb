package finance

import (
	"bytes"
	"context"
	"net/http"
	"testing"
	"time"

	"gato-backoffice/pkg/access"
	"gato-backoffice/pkg/errutil"
	"gato-backoffice/pkg/identity"
	"gato-backoffice/services/ledger"
	"gato-backoffice/services/testutil"
	"gato-backoffice/services/user"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var (
	accountant = identity.Actor{ID: "acc-1", Role: identity.RoleAccountant}
	moderator  = identity.Actor{ID: "mod-1", Role: identity.RoleModerator}
)

func setup(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, append(user.Models(), ledger.Models()...)...)
	enforcer, err := access.NewDefault()
	require.NoError(t, err)

	svc := NewService(ServiceParams{DB: db, Access: enforcer})
	now := time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	require.NoError(t, db.Create(&user.User{ID: "u1", Name: "Ana", Email: "ana@gato.test"}).Error)

	txs := []ledger.Transaction{
		{ID: "t1", UserID: "u1", Sequence: 1, Amount: 100, Currency: ledger.CurrencyPremium, Type: ledger.TypeDeposit, CreatedAt: time.Date(2026, time.February, 20, 0, 0, 0, 0, time.UTC)},
		{ID: "t2", UserID: "u1", Sequence: 2, Amount: 50, Currency: ledger.CurrencyPremium, Type: ledger.TypeDeposit, CreatedAt: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "t3", UserID: "u1", Sequence: 3, Amount: -30, Currency: ledger.CurrencyPremium, Type: ledger.TypeSpend, Description: "Purchase: frame", CreatedAt: time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)},
		{ID: "t4", UserID: "u1", Sequence: 4, Amount: 20, Currency: ledger.CurrencyLite, Type: ledger.TypeBonus, CreatedAt: time.Date(2026, time.March, 12, 0, 0, 0, 0, time.UTC)},
	}
	for i := range txs {
		require.NoError(t, db.Create(&txs[i]).Error)
	}
	return svc
}

func TestMonthlyReport(t *testing.T) {
	svc := setup(t)

	r, err := svc.Report(context.Background(), accountant, PeriodMonthly)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), *r.From)

	require.Len(t, r.Transactions, 3)
	require.Equal(t, "t4", r.Transactions[0].ID, "newest first")
	require.Equal(t, "t2", r.Transactions[2].ID)
	require.Equal(t, "Ana", r.Transactions[0].UserName)
	require.Equal(t, "ana@gato.test", r.Transactions[0].UserEmail)

	require.Equal(t, []Total{
		{Currency: ledger.CurrencyLite, Type: ledger.TypeBonus, Amount: 20, Count: 1},
		{Currency: ledger.CurrencyPremium, Type: ledger.TypeDeposit, Amount: 50, Count: 1},
		{Currency: ledger.CurrencyPremium, Type: ledger.TypeSpend, Amount: -30, Count: 1},
	}, r.Totals)
}

func TestFullReport(t *testing.T) {
	svc := setup(t)

	r, err := svc.Report(context.Background(), accountant, PeriodFull)
	require.NoError(t, err)
	require.Nil(t, r.From)
	require.Len(t, r.Transactions, 4)
	require.Contains(t, r.Totals, Total{Currency: ledger.CurrencyPremium, Type: ledger.TypeDeposit, Amount: 150, Count: 2})
}

func TestReportAuthorization(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	_, err := svc.Report(ctx, moderator, PeriodFull)
	require.True(t, errutil.Is(err, errutil.StatusForbidden))

	_, err = svc.Report(ctx, identity.Actor{}, PeriodFull)
	require.True(t, errutil.Is(err, errutil.StatusUnauthorized))

	_, err = svc.Report(ctx, accountant, "WEEKLY")
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))
}

func TestExport(t *testing.T) {
	svc := setup(t)

	b, err := svc.Export(context.Background(), accountant, PeriodMonthly)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	require.Equal(t, "Descrição", rows[0][8])
	require.Equal(t, "t3", rows[2][0])
	require.Equal(t, "10/03/2026", rows[2][1])
	require.Equal(t, "-30", rows[2][7])
	require.Equal(t, "Purchase: frame", rows[2][8])
	require.Equal(t, "-", rows[1][8])
}

func TestExportHandler(t *testing.T) {
	svc := setup(t)
	api := testutil.NewAPI(t)
	registerRoutes(api.Router, svc)

	w := api.Do(t, accountant, http.MethodGet, "/api/v1/finance/export?period=full", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, XLSXMimeType, w.Header().Get("Content-Type"))
	require.Contains(t, w.Header().Get("Content-Disposition"), "relatorio-full-2026-03-15.xlsx")

	w = api.Do(t, moderator, http.MethodGet, "/api/v1/finance/report", nil)
	require.Equal(t, http.StatusForbidden, w.Code)
}
