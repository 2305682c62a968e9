package domain

import (
	"errors"
	"math"

	"github.com/sevendrop/backend/internal/entity"
	"github.com/sevendrop/backend/pkg/crypto"
	"github.com/shopspring/decimal"
)

// selectIndex maps uniformly random 64-bit seeds to an index in [0, n).
// Seeds falling in the last incomplete block of size 2^64 mod n are redrawn,
// so every index has exactly the same probability. The accepted seed is
// returned and satisfies index == seed % n.
func selectIndex(n int, randUint64 func() (uint64, error)) (int, uint64, error) {
	if n <= 0 {
		return 0, 0, errors.New("no candidate to select")
	}

	un := uint64(n)
	rem := (math.MaxUint64%un + 1) % un
	for {
		seed, err := randUint64()
		if err != nil {
			return 0, 0, err
		}

		if rem == 0 || seed <= math.MaxUint64-rem {
			return int(seed % un), seed, nil
		}
	}
}

// splitPot rounds the winner share down to precision decimal places and
// leaves the remainder to the platform, so payout+fee always equals pot.
func splitPot(pot, share decimal.Decimal, precision int32) (decimal.Decimal, decimal.Decimal) {
	payout := pot.Mul(share).Truncate(precision)
	return payout, pot.Sub(payout)
}

func snapshotDigest(entries []entity.Entry) string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}

	return crypto.SHA256Hex(ids...)
}
