package chapter

import (
	"archive/zip"
	"bytes"
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"gato-backoffice/pkg/access"
	"gato-backoffice/pkg/errutil"
	"gato-backoffice/pkg/identity"
	"gato-backoffice/pkg/storage"
	"gato-backoffice/services/catalog"
	"gato-backoffice/services/cleanup"
	"gato-backoffice/services/ledger"
	"gato-backoffice/services/testutil"
	"gato-backoffice/services/user"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var (
	uploader   = identity.Actor{ID: "up-1", Role: identity.RoleUploader}
	translator = identity.Actor{ID: "tr-1", Role: identity.RoleTranslator}
	outsider   = identity.Actor{ID: "tr-2", Role: identity.RoleTranslator}
	editor     = identity.Actor{ID: "ed-1", Role: identity.RoleEditor}
	qc         = identity.Actor{ID: "qc-1", Role: identity.RoleQC}
	reader     = identity.Actor{ID: "rd-1", Role: identity.RoleReader}
)

type fixture struct {
	svc      *Service
	db       *gorm.DB
	store    *storage.MemoryStore
	recorder *cleanup.Recorder
	work     *catalog.Work
}

func setup(t *testing.T) *fixture {
	t.Helper()

	models := append(user.Models(), ledger.Models()...)
	models = append(models, catalog.Models()...)
	db := testutil.NewTestDB(t, append(models, Models()...)...)
	enforcer, err := access.NewDefault()
	require.NoError(t, err)
	node, err := snowflake.NewNode(4)
	require.NoError(t, err)

	f := &fixture{
		db:       db,
		store:    storage.NewMemoryStore("https://cdn.test"),
		recorder: &cleanup.Recorder{},
	}
	ledgerSvc := ledger.NewService(ledger.ServiceParams{DB: db, Node: node, Access: enforcer})
	f.svc = NewService(ServiceParams{
		DB: db, Node: node, Access: enforcer, Store: f.store, Cleanup: f.recorder, Ledger: ledgerSvc,
	})

	for _, a := range []identity.Actor{uploader, translator, outsider, editor, qc} {
		require.NoError(t, db.Create(&user.User{ID: a.ID, Name: a.ID, Role: a.Role}).Error)
	}
	require.NoError(t, db.Create(&user.User{ID: reader.ID, Name: reader.ID, Role: reader.Role, BalancePremium: 10}).Error)

	f.work = &catalog.Work{ID: "work-1", Title: "Gato Preto", Slug: "gato-preto", AgeRating: catalog.RatingLivre}
	require.NoError(t, db.Create(f.work).Error)

	staff := []catalog.WorkStaff{
		{ID: "s1", WorkID: f.work.ID, UserID: translator.ID, Role: catalog.StaffTranslator},
		{ID: "s2", WorkID: f.work.ID, UserID: editor.ID, Role: catalog.StaffEditor},
		{ID: "s3", WorkID: f.work.ID, UserID: qc.ID, Role: catalog.StaffQC},
	}
	for i := range staff {
		require.NoError(t, db.Create(&staff[i]).Error)
	}
	return f
}

func pages(t *testing.T, names ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, n := range names {
		w, err := zw.Create(n)
		require.NoError(t, err)
		_, err = w.Write([]byte("img:" + n))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func (f *fixture) create(t *testing.T, number float64, status WorkStatus) *Chapter {
	t.Helper()
	ch, err := f.svc.CreateChapter(context.Background(), uploader, CreateParams{
		WorkID: f.work.ID, Number: number, InitialStatus: status,
	}, pages(t, "1.jpg", "2.jpg"))
	require.NoError(t, err)
	return ch
}

func imageURLs(t *testing.T, ch *Chapter) []string {
	t.Helper()
	urls, err := ch.ImageURLs()
	require.NoError(t, err)
	return urls
}

func requireStatus(t *testing.T, err error, status errutil.CoreStatus, msgAndArgs ...any) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
	require.Equal(t, status, errutil.StatusOf(err), msgAndArgs...)
}

func TestCreateChapterOrdersPagesNaturally(t *testing.T) {
	f := setup(t)

	ch, err := f.svc.CreateChapter(context.Background(), uploader, CreateParams{
		WorkID: f.work.ID, Number: 12.5, Title: "<b>Volta</b>",
	}, pages(t, "10.jpg", "2.jpg", "1.jpg", "notes.txt"))
	require.NoError(t, err)

	require.Equal(t, "capitulo-12-5", ch.Slug)
	require.Equal(t, "Volta", ch.Title)
	require.Equal(t, StatusDraft, ch.WorkStatus)
	require.Equal(t, int64(defaultPricePremium), ch.PricePremium)
	require.Equal(t, int64(defaultPriceLite), ch.PriceLite)

	urls := imageURLs(t, ch)
	require.Len(t, urls, 3)
	for i, want := range []string{"-1.jpg", "-2.jpg", "-10.jpg"} {
		require.True(t, strings.HasSuffix(urls[i], want), urls[i])
		require.True(t, strings.HasPrefix(urls[i], "https://cdn.test/chapters/work-1/12.5/"), urls[i])
	}
	require.Len(t, f.store.Keys(), 3)
}

func TestCreateChapterKeepsFoldedNamesApart(t *testing.T) {
	f := setup(t)

	ch, err := f.svc.CreateChapter(context.Background(), uploader, CreateParams{
		WorkID: f.work.ID, Number: 3,
	}, pages(t, "a b.jpg", "a-b.jpg", "página1.jpg", "pàgina1.jpg"))
	require.NoError(t, err)

	urls := imageURLs(t, ch)
	require.Len(t, urls, 4)
	seen := map[string]bool{}
	for _, u := range urls {
		require.False(t, seen[u], "duplicate page url %s", u)
		seen[u] = true
	}
	keys := f.store.Keys()
	require.Len(t, keys, 4)
	for _, k := range keys {
		data, ok := f.store.Get(k)
		require.True(t, ok)
		require.True(t, strings.HasPrefix(string(data), "img:"))
	}
}

func TestCreateChapterRejectsDuplicateBeforeUpload(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.create(t, 1, StatusDraft)
	uploaded := len(f.store.Keys())

	_, err := f.svc.CreateChapter(ctx, uploader, CreateParams{WorkID: f.work.ID, Number: 1}, pages(t, "1.jpg"))
	requireStatus(t, err, errutil.StatusDuplicateChapter)
	require.Len(t, f.store.Keys(), uploaded)
	require.Empty(t, f.recorder.Calls())
}

func TestCreateChapterValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.CreateChapter(ctx, translator, CreateParams{WorkID: f.work.ID, Number: 1}, pages(t, "1.jpg"))
	requireStatus(t, err, errutil.StatusForbidden)

	_, err = f.svc.CreateChapter(ctx, uploader, CreateParams{WorkID: f.work.ID, Number: -1}, pages(t, "1.jpg"))
	requireStatus(t, err, errutil.StatusValidationFailed)

	for _, n := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err = f.svc.CreateChapter(ctx, uploader, CreateParams{WorkID: f.work.ID, Number: n}, pages(t, "1.jpg"))
		requireStatus(t, err, errutil.StatusValidationFailed, "number %v", n)
	}

	_, err = f.svc.CreateChapter(ctx, uploader, CreateParams{WorkID: f.work.ID, Number: 1, InitialStatus: "LOST"}, pages(t, "1.jpg"))
	requireStatus(t, err, errutil.StatusValidationFailed)

	_, err = f.svc.CreateChapter(ctx, uploader, CreateParams{WorkID: "missing", Number: 1}, pages(t, "1.jpg"))
	requireStatus(t, err, errutil.StatusNotFound)

	_, err = f.svc.CreateChapter(ctx, uploader, CreateParams{WorkID: f.work.ID, Number: 1}, []byte("not a zip"))
	requireStatus(t, err, errutil.StatusValidationFailed)

	_, err = f.svc.CreateChapter(ctx, uploader, CreateParams{WorkID: f.work.ID, Number: 1}, pages(t, "readme.txt"))
	requireStatus(t, err, errutil.StatusValidationFailed)

	require.Empty(t, f.store.Keys())
}

func TestHappyPathToPublished(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	ch := f.create(t, 1, StatusDraft)

	published := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	f.svc.now = func() time.Time { return published }

	ch, err := f.svc.StartTranslation(ctx, uploader, ch.ID)
	require.NoError(t, err)
	require.Equal(t, StatusTranslating, ch.WorkStatus)

	ch, err = f.svc.SubmitTranslation(ctx, translator, ch.ID, &storage.Blob{Name: "script.docx", Data: []byte("text")})
	require.NoError(t, err)
	require.Equal(t, StatusEditing, ch.WorkStatus)
	require.Contains(t, ch.TranslationURL, "https://cdn.test/workflow/gato-preto/capitulo-1/translator-")
	require.True(t, strings.HasSuffix(ch.TranslationURL, ".docx"))

	ch, err = f.svc.SubmitEdit(ctx, editor, ch.ID, &storage.Blob{Name: "edited.zip", Data: []byte("zip")})
	require.NoError(t, err)
	require.Equal(t, StatusQCPending, ch.WorkStatus)
	require.Contains(t, ch.EditedZipURL, "/workflow/gato-preto/capitulo-1/editor-")

	ch, err = f.svc.ReviewQC(ctx, qc, ch.ID, DecisionApprove)
	require.NoError(t, err)
	require.Equal(t, StatusReady, ch.WorkStatus)

	_, err = f.svc.Publish(ctx, qc, ch.ID)
	requireStatus(t, err, errutil.StatusForbidden)

	ch, err = f.svc.Publish(ctx, uploader, ch.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPublished, ch.WorkStatus)
	require.WithinDuration(t, published, ch.CreatedAt, time.Second)

	_, err = f.svc.Publish(ctx, uploader, ch.ID)
	requireStatus(t, err, errutil.StatusInvalidState)
}

func TestQCRejectReturnsToEditing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	ch := f.create(t, 1, StatusQCPending)

	ch, err := f.svc.ReviewQC(ctx, qc, ch.ID, DecisionReject)
	require.NoError(t, err)
	require.Equal(t, StatusEditing, ch.WorkStatus)

	_, err = f.svc.ReviewQC(ctx, qc, ch.ID, "MAYBE")
	requireStatus(t, err, errutil.StatusValidationFailed)

	rejected := f.create(t, 2, StatusQCRejected)
	_, err = f.svc.ReopenEditing(ctx, qc, rejected.ID)
	requireStatus(t, err, errutil.StatusForbidden)
	rejected, err = f.svc.ReopenEditing(ctx, editor, rejected.ID)
	require.NoError(t, err)
	require.Equal(t, StatusEditing, rejected.WorkStatus)
}

func TestTransitionGuards(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	draft := f.create(t, 1, StatusDraft)
	translating := f.create(t, 2, StatusTranslating)
	uploaded := len(f.store.Keys())
	artifact := &storage.Blob{Name: "x.zip", Data: []byte("x")}

	_, err := f.svc.SubmitEdit(ctx, editor, draft.ID, artifact)
	requireStatus(t, err, errutil.StatusInvalidState)

	_, err = f.svc.SubmitTranslation(ctx, outsider, translating.ID, artifact)
	requireStatus(t, err, errutil.StatusForbidden)

	_, err = f.svc.SubmitEdit(ctx, outsider, draft.ID, artifact)
	requireStatus(t, err, errutil.StatusForbidden, "authorization is checked before state")

	_, err = f.svc.SubmitTranslation(ctx, translator, translating.ID, nil)
	requireStatus(t, err, errutil.StatusValidationFailed)

	_, err = f.svc.SubmitTranslation(ctx, identity.Actor{}, translating.ID, artifact)
	requireStatus(t, err, errutil.StatusUnauthorized)

	require.Len(t, f.store.Keys(), uploaded, "rejected transitions never upload")

	var stored Chapter
	require.NoError(t, f.db.First(&stored, "id = ?", draft.ID).Error)
	require.Equal(t, StatusDraft, stored.WorkStatus)
}

func TestReplaceImagesKeepsIdentity(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	ch := f.create(t, 1, StatusPublished)
	oldURLs := imageURLs(t, ch)

	first, err := f.svc.Unlock(ctx, reader, ch.ID, ledger.CurrencyPremium)
	require.NoError(t, err)
	require.True(t, first.Charged)

	swapped, err := f.svc.ReplaceImages(ctx, uploader, ch.ID, pages(t, "a/1.png", "a/2.png", "a/3.png"))
	require.NoError(t, err)
	require.Equal(t, ch.ID, swapped.ID)
	require.Equal(t, StatusPublished, swapped.WorkStatus)
	require.Len(t, imageURLs(t, swapped), 3)
	require.NotEqual(t, oldURLs, imageURLs(t, swapped))
	require.Contains(t, imageURLs(t, swapped)[0], "/chapters/work-1/"+ch.ID+"/")

	again, err := f.svc.Unlock(ctx, reader, ch.ID, ledger.CurrencyPremium)
	require.NoError(t, err)
	require.False(t, again.Charged)
	require.Equal(t, first.Unlock.ID, again.Unlock.ID)

	var u user.User
	require.NoError(t, f.db.First(&u, "id = ?", reader.ID).Error)
	require.Equal(t, int64(10-defaultPricePremium), u.BalancePremium)

	old := storage.KeysFromURLs(f.store, oldURLs...)
	require.ElementsMatch(t, old, f.recorder.Keys())
}

func TestUnlock(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	ready := f.create(t, 1, StatusReady)
	_, err := f.svc.Unlock(ctx, reader, ready.ID, ledger.CurrencyPremium)
	requireStatus(t, err, errutil.StatusInvalidState)

	free, err := f.svc.CreateChapter(ctx, uploader, CreateParams{
		WorkID: f.work.ID, Number: 2, IsFree: true, InitialStatus: StatusPublished,
	}, pages(t, "1.jpg"))
	require.NoError(t, err)
	res, err := f.svc.Unlock(ctx, reader, free.ID, ledger.CurrencyPremium)
	require.NoError(t, err)
	require.True(t, res.Free)
	require.False(t, res.Charged)

	paid := f.create(t, 3, StatusPublished)
	_, err = f.svc.Unlock(ctx, reader, paid.ID, ledger.CurrencyLite)
	requireStatus(t, err, errutil.StatusInsufficientFunds)

	_, err = f.svc.Unlock(ctx, reader, paid.ID, "GOLD")
	requireStatus(t, err, errutil.StatusValidationFailed)

	res, err = f.svc.Unlock(ctx, reader, paid.ID, ledger.CurrencyPremium)
	require.NoError(t, err)
	require.True(t, res.Charged)
	require.NotEmpty(t, res.Unlock.TransactionID)

	var tx ledger.Transaction
	require.NoError(t, f.db.First(&tx, "id = ?", res.Unlock.TransactionID).Error)
	require.Equal(t, int64(-defaultPricePremium), tx.Amount)
	require.Equal(t, ledger.TypeSpend, tx.Type)

	unlocks, err := f.svc.ListUnlocks(ctx, reader, reader.ID)
	require.NoError(t, err)
	require.Len(t, unlocks, 1)

	_, err = f.svc.ListUnlocks(ctx, translator, reader.ID)
	requireStatus(t, err, errutil.StatusForbidden)
}

func TestDeleteChapter(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	ch := f.create(t, 1, StatusPublished)
	_, err := f.svc.Unlock(ctx, reader, ch.ID, ledger.CurrencyPremium)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteChapter(ctx, uploader, ch.ID))

	_, err = f.svc.Get(ctx, ch.ID)
	requireStatus(t, err, errutil.StatusNotFound)

	var unlocks int64
	require.NoError(t, f.db.Model(&Unlock{}).Where("chapter_id = ?", ch.ID).Count(&unlocks).Error)
	require.Zero(t, unlocks)

	require.ElementsMatch(t, storage.KeysFromURLs(f.store, imageURLs(t, ch)...), f.recorder.Keys())

	err = f.svc.DeleteChapter(ctx, uploader, ch.ID)
	requireStatus(t, err, errutil.StatusNotFound)
}

func TestCorruptImagesSurfaceAsError(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	ch := f.create(t, 1, StatusDraft)

	require.NoError(t, f.db.Model(&Chapter{}).Where("id = ?", ch.ID).
		Update("images", datatypes.JSON(`{"broken":`)).Error)

	stored, err := f.svc.Get(ctx, ch.ID)
	require.NoError(t, err)
	_, err = stored.ImageURLs()
	require.Error(t, err)

	err = f.svc.DeleteChapter(ctx, uploader, ch.ID)
	requireStatus(t, err, errutil.StatusInternal)
	_, err = f.svc.Get(ctx, ch.ID)
	require.NoError(t, err, "chapter survives a failed delete")
	require.Empty(t, f.recorder.Calls())
}

func TestPurgeWorkTx(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.create(t, 1, StatusDraft)
	b := f.create(t, 2, StatusDraft)

	var urls []string
	err := f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		urls, err = f.svc.PurgeWorkTx(ctx, tx, f.work.ID)
		return err
	})
	require.NoError(t, err)
	require.Len(t, storage.KeysFromURLs(f.store, urls...), len(imageURLs(t, a))+len(imageURLs(t, b)))

	var n int64
	require.NoError(t, f.db.Model(&Chapter{}).Where("work_id = ?", f.work.ID).Count(&n).Error)
	require.Zero(t, n)
}
