package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gato-backoffice/pkg/db/option"
	"gato-backoffice/pkg/db/pagination"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type widget struct {
	ID        string `gorm:"primaryKey"`
	Kind      string
	Weight    int64
	CreatedAt time.Time
}

func newDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&widget{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestStoreCRUD(t *testing.T) {
	ctx := context.Background()
	repo := ProvideStore[widget](newDB(t))

	now := time.Now().UTC()
	require.NoError(t, repo.BatchCreate(ctx, []*widget{
		{ID: "w1", Kind: "gear", Weight: 3, CreatedAt: now},
		{ID: "w2", Kind: "gear", Weight: 7, CreatedAt: now.Add(time.Second)},
		{ID: "w3", Kind: "bolt", Weight: 1, CreatedAt: now.Add(2 * time.Second)},
	}))

	missing, err := repo.FindOne(ctx, &widget{ID: "nope"})
	require.NoError(t, err)
	require.Nil(t, missing)

	empty, err := repo.FindByID(ctx, "")
	require.NoError(t, err)
	require.Nil(t, empty)

	w3, err := repo.FindByID(ctx, "w3")
	require.NoError(t, err)
	require.Equal(t, "bolt", w3.Kind)

	heavy, err := repo.Find(ctx, &widget{Kind: "gear"},
		option.ApplyOperator(option.Condition{Field: "weight", Operator: option.GT, Value: 5}))
	require.NoError(t, err)
	require.Len(t, heavy, 1)
	require.Equal(t, "w2", heavy[0].ID)

	newest, err := repo.Find(ctx, nil,
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc", Allow: map[string]bool{"created_at": true}}),
		option.ApplyPagination(pagination.Pagination{Limit: 2}))
	require.NoError(t, err)
	require.Len(t, newest, 2)
	require.Equal(t, "w3", newest[0].ID)

	require.NoError(t, repo.Update(ctx, "w1", map[string]any{"weight": gorm.Expr("weight + ?", 10)}))
	w1, err := repo.FindOne(ctx, &widget{ID: "w1"}, option.WithLockingUpdate())
	require.NoError(t, err)
	require.Equal(t, int64(13), w1.Weight)

	count, err := repo.Count(ctx, &widget{Kind: "gear"})
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}

func TestPaginationNormalize(t *testing.T) {
	require.Equal(t, pagination.DefaultLimit, pagination.Pagination{}.Normalize().Limit)
	require.Equal(t, pagination.MaxLimit, pagination.Pagination{Limit: 10_000}.Normalize().Limit)
	require.Equal(t, 7, pagination.Pagination{Limit: 7}.Normalize().Limit)
}
