package curve

// Fee parameters, fixed by the exchange program.
const (
	// FeeBps is the total trade fee: 1% = 100 basis points.
	FeeBps int64 = 100
	// PlatformShareBps is the platform's share of the fee: 70%.
	PlatformShareBps int64 = 7000
	// CreationFee is the flat market-creation fee in lamports (0.1 SOL),
	// recorded entirely as platform fee.
	CreationFee int64 = 100_000_000
)

// SplitFee splits a trade's total value into platform and creator fee parts.
// The creator part is derived by subtraction rather than floored on its own,
// so platform + creator always equals the total fee exactly and no lamport
// leaks to rounding.
//
// The program computes value*bps in u128; int64 wraps there for large trades
// (a capped-price buy can exceed 9e16 lamports), so the bps products are
// decomposed as v/10000*bps + v%10000*bps/10000, which never widens past
// int64 and floors identically.
func SplitFee(totalValue int64) (platformFee, creatorFee, totalFee int64) {
	totalFee = mulBps(totalValue, FeeBps)
	platformFee = mulBps(totalFee, PlatformShareBps)
	creatorFee = totalFee - platformFee
	return platformFee, creatorFee, totalFee
}

// mulBps computes floor(v * bps / 10000) without overflowing int64.
func mulBps(v, bps int64) int64 {
	return v/10000*bps + v%10000*bps/10000
}
