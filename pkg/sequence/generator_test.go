package sequence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newGenerator(t *testing.T, now time.Time) (*RedisGenerator, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	mr.SetTime(now)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	g := NewRedisGenerator(Params{Redis: rdb}).(*RedisGenerator)
	g.now = func() time.Time { return now }
	return g, mr
}

func TestNextTransactionCode(t *testing.T) {
	ctx := context.Background()
	g, mr := newGenerator(t, time.Date(2025, 10, 17, 12, 0, 0, 0, time.UTC))

	first, err := g.NextTransactionCode(ctx, "PREMIUM")
	require.NoError(t, err)
	require.Regexp(t, `^TXP-251017-001[A-Z2-9]{2}$`, first)

	second, err := g.NextTransactionCode(ctx, "PREMIUM")
	require.NoError(t, err)
	require.Regexp(t, `^TXP-251017-002[A-Z2-9]{2}$`, second)

	lite, err := g.NextTransactionCode(ctx, "LITE")
	require.NoError(t, err)
	require.Regexp(t, `^TXL-251017-001`, lite)

	require.True(t, mr.Exists("seq:TXP:251017"))
	require.Greater(t, mr.TTL("seq:TXP:251017"), time.Duration(0))
}
