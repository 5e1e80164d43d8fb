package ledger

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, time.October, 17, 12, 0, 0, 0, time.UTC)

// buildBatches spreads expiries between two hours in the past and three in
// the future so every run mixes live and expired batches.
func buildBatches(remaining []int64) []*LiteCoinBatch {
	batches := make([]*LiteCoinBatch, 0, len(remaining))
	for i, r := range remaining {
		batches = append(batches, &LiteCoinBatch{
			ID:        fmt.Sprintf("%d", 1000+i),
			Amount:    r,
			Remaining: r,
			ExpiresAt: baseTime.Add(time.Duration((i*7)%6-2) * time.Hour),
		})
	}
	return batches
}

func TestAllocateProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("allocation covers the amount exactly or fails", prop.ForAll(
		func(remaining []int64, amount int64) bool {
			batches := buildBatches(remaining)
			allocs, ok := Allocate(batches, amount, baseTime)
			if EffectiveBalance(batches, baseTime) < amount {
				return !ok && allocs == nil
			}
			var total int64
			for _, a := range allocs {
				total += a.Amount
			}
			return ok && total == amount
		},
		gen.SliceOf(gen.Int64Range(0, 100)),
		gen.Int64Range(1, 400),
	))

	properties.Property("only the last allocated batch is partially drained", prop.ForAll(
		func(remaining []int64, amount int64) bool {
			batches := buildBatches(remaining)
			allocs, ok := Allocate(batches, amount, baseTime)
			if !ok {
				return true
			}
			for i, a := range allocs {
				if i < len(allocs)-1 && a.Remaining != 0 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Int64Range(0, 100)),
		gen.Int64Range(1, 400),
	))

	properties.Property("expired batches are never drawn", prop.ForAll(
		func(remaining []int64, amount int64) bool {
			batches := buildBatches(remaining)
			byID := make(map[string]*LiteCoinBatch, len(batches))
			for _, b := range batches {
				byID[b.ID] = b
			}
			allocs, _ := Allocate(batches, amount, baseTime)
			for _, a := range allocs {
				if byID[a.BatchID].Expired(baseTime) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Int64Range(0, 100)),
		gen.Int64Range(1, 400),
	))

	properties.Property("effective balance never grows as time passes", prop.ForAll(
		func(remaining []int64, step int64) bool {
			batches := buildBatches(remaining)
			prev := EffectiveBalance(batches, baseTime.Add(-3*time.Hour))
			for h := int64(-3); h <= 4; h += step {
				cur := EffectiveBalance(batches, baseTime.Add(time.Duration(h)*time.Hour))
				if cur > prev {
					return false
				}
				prev = cur
			}
			return prev == 0
		},
		gen.SliceOf(gen.Int64Range(0, 100)),
		gen.Int64Range(1, 3),
	))

	properties.TestingRun(t)
}

func TestAllocateDrainsSoonestExpiringFirst(t *testing.T) {
	batches := []*LiteCoinBatch{
		{ID: "3", Remaining: 10, ExpiresAt: baseTime.Add(48 * time.Hour)},
		{ID: "1", Remaining: 5, ExpiresAt: baseTime.Add(24 * time.Hour)},
		{ID: "2", Remaining: 5, ExpiresAt: baseTime.Add(24 * time.Hour)},
		{ID: "0", Remaining: 50, ExpiresAt: baseTime.Add(-time.Hour)},
	}

	allocs, ok := Allocate(batches, 12, baseTime)
	require.True(t, ok)
	require.Equal(t, []Allocation{
		{BatchID: "1", Amount: 5, Remaining: 0},
		{BatchID: "2", Amount: 5, Remaining: 0},
		{BatchID: "3", Amount: 2, Remaining: 8},
	}, allocs)

	_, ok = Allocate(batches, 21, baseTime)
	require.False(t, ok)
}

func TestSortForDepletionOrdersNumericIDs(t *testing.T) {
	at := baseTime.Add(time.Hour)
	batches := []*LiteCoinBatch{{ID: "10", ExpiresAt: at}, {ID: "9", ExpiresAt: at}}
	SortForDepletion(batches)
	require.Equal(t, "9", batches[0].ID)
}

func TestVerifyChain(t *testing.T) {
	var chain []*Transaction
	previous := GenesisHash
	for i := 1; i <= 3; i++ {
		tx := &Transaction{
			ID:           fmt.Sprintf("tx-%d", i),
			UserID:       "u1",
			Sequence:     int64(i),
			Amount:       int64(i * 10),
			Currency:     CurrencyPremium,
			Type:         TypeDeposit,
			PreviousHash: previous,
			CreatedAt:    baseTime.Add(time.Duration(i) * time.Minute),
		}
		tx.Hash = tx.GenerateHash()
		previous = tx.Hash
		chain = append(chain, tx)
	}
	require.True(t, VerifyChain(chain))
	require.True(t, VerifyChain(nil))

	chain[1].Amount = 999
	require.False(t, VerifyChain(chain))

	chain[1].Amount = 20
	require.True(t, VerifyChain(chain))
	require.False(t, VerifyChain(chain[1:]))
}

func TestHashIgnoresSubMillisecondTime(t *testing.T) {
	tx := &Transaction{
		ID:           "tx-1",
		UserID:       "u1",
		Sequence:     1,
		Amount:       10,
		Currency:     CurrencyPremium,
		Type:         TypeDeposit,
		PreviousHash: GenesisHash,
		CreatedAt:    baseTime.Add(time.Second + 499*time.Microsecond + 999),
	}
	tx.Hash = tx.GenerateHash()

	stored := *tx
	stored.CreatedAt = tx.CreatedAt.Truncate(TimePrecision)
	require.Equal(t, tx.Hash, stored.GenerateHash())
	require.True(t, VerifyChain([]*Transaction{&stored}))

	stored.CreatedAt = stored.CreatedAt.Add(TimePrecision)
	require.False(t, VerifyChain([]*Transaction{&stored}))
}
