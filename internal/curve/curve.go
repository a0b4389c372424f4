// Package curve implements the bonding-curve pricing of the exchange program
// in pure integer arithmetic. The on-chain program settles with the same
// formula, so every operation here must reproduce its u64 math bit for bit:
// any divergence is an economic bug, not a cosmetic one. No floating point
// is allowed anywhere in this package.
package curve

// Curve parameters, fixed by the exchange program.
const (
	// BasePrice is the floor price in lamports (0.001 SOL).
	BasePrice int64 = 1_000_000
	// KFactor controls curve steepness.
	KFactor int64 = 5
	// ScaleFactor scales the exponent to keep intermediate values in range.
	ScaleFactor int64 = 10_000
)

// PriceAt returns the curve price, in lamports per token, at the given
// circulating supply. Approximates P = BasePrice * e^(K*S/Scale) with the
// program's integer scheme: a quadratic multiplier below exponent 10, a
// capped power of two above.
func PriceAt(supply int64) int64 {
	if supply <= 0 {
		return BasePrice
	}

	exponent := supply * KFactor / ScaleFactor

	var price int64
	if exponent < 10 {
		multiplier := 10000 + exponent*10000 + exponent*exponent*5000/10000
		price = BasePrice * multiplier / 10000
	} else {
		if exponent > 20 {
			exponent = 20
		}
		price = BasePrice << uint(exponent)
	}

	if price < BasePrice {
		price = BasePrice
	}
	return price
}

// BuyCost returns the lamports needed to mint supply units from fromSupply
// up to toSupply: the sum of PriceAt(i) for i in [fromSupply, toSupply).
// Linear in the amount; correctness over throughput. A memoized prefix-sum
// variant would be acceptable only if it preserved this exact output.
func BuyCost(fromSupply, toSupply int64) int64 {
	var total int64
	for i := fromSupply; i < toSupply; i++ {
		total += PriceAt(i)
	}
	return total
}

// SellValue returns the lamports released by redeeming supply units from
// fromSupply down to toSupply. It is the same integral as BuyCost walked in
// the opposite direction, so BuyCost(a, b) == SellValue(b, a) always holds.
func SellValue(fromSupply, toSupply int64) int64 {
	return BuyCost(toSupply, fromSupply)
}
