package ledger

import (
	"slices"
	"strings"
	"time"
)

type Allocation struct {
	BatchID   string `json:"batch_id"`
	Amount    int64  `json:"amount"`
	Remaining int64  `json:"-"`
}

// SortForDepletion orders batches soonest-expiring first, then by id.
func SortForDepletion(batches []*LiteCoinBatch) {
	slices.SortStableFunc(batches, func(a, b *LiteCoinBatch) int {
		if c := a.ExpiresAt.Compare(b.ExpiresAt); c != 0 {
			return c
		}
		if len(a.ID) != len(b.ID) {
			return len(a.ID) - len(b.ID)
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// Allocate plans a LITE debit of amount across the live batches. It returns
// ok=false, and no plan, when the live total is short.
func Allocate(batches []*LiteCoinBatch, amount int64, now time.Time) ([]Allocation, bool) {
	live := make([]*LiteCoinBatch, 0, len(batches))
	for _, b := range batches {
		if b.Remaining > 0 && !b.Expired(now) {
			live = append(live, b)
		}
	}
	SortForDepletion(live)

	if EffectiveBalance(live, now) < amount {
		return nil, false
	}

	need := amount
	allocations := make([]Allocation, 0, len(live))
	for _, b := range live {
		if need == 0 {
			break
		}
		take := min(b.Remaining, need)
		allocations = append(allocations, Allocation{
			BatchID:   b.ID,
			Amount:    take,
			Remaining: b.Remaining - take,
		})
		need -= take
	}
	return allocations, true
}

// EffectiveBalance sums Remaining over batches not yet expired at now.
func EffectiveBalance(batches []*LiteCoinBatch, now time.Time) int64 {
	var total int64
	for _, b := range batches {
		if !b.Expired(now) {
			total += b.Remaining
		}
	}
	return total
}

// VerifyChain checks hashes and links of one user's transactions in
// sequence order.
func VerifyChain(txs []*Transaction) bool {
	previous := GenesisHash
	for i, t := range txs {
		if t.Sequence != int64(i+1) {
			return false
		}
		if t.PreviousHash != previous || t.Hash != t.GenerateHash() {
			return false
		}
		previous = t.Hash
	}
	return true
}
