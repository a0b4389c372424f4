package curve

import "testing"

func TestPriceAtBaseSupply(t *testing.T) {
	if got := PriceAt(0); got != BasePrice {
		t.Fatalf("PriceAt(0) = %d, want %d", got, BasePrice)
	}
	if got := PriceAt(-1); got != BasePrice {
		t.Fatalf("PriceAt(-1) = %d, want %d", got, BasePrice)
	}
}

func TestPriceAtQuadraticRegion(t *testing.T) {
	// supply 2000 -> exponent = 2000*5/10000 = 1
	// multiplier = 10000 + 10000 + 5000/10000 = 20000
	if got := PriceAt(2000); got != 2_000_000 {
		t.Fatalf("PriceAt(2000) = %d, want 2000000", got)
	}
	// supply 6000 -> exponent 3, multiplier = 10000 + 30000 + 4500 = 44500
	if got := PriceAt(6000); got != 4_450_000 {
		t.Fatalf("PriceAt(6000) = %d, want 4450000", got)
	}
}

func TestPriceAtExponentialRegionAndCap(t *testing.T) {
	// supply 20000 -> exponent 10 -> BasePrice << 10
	if got := PriceAt(20_000); got != BasePrice<<10 {
		t.Fatalf("PriceAt(20000) = %d, want %d", got, BasePrice<<10)
	}
	// exponent caps at 20 regardless of supply
	capped := BasePrice << 20
	if got := PriceAt(1_000_000); got != capped {
		t.Fatalf("PriceAt(1000000) = %d, want capped %d", got, capped)
	}
	if got := PriceAt(100_000_000); got != capped {
		t.Fatalf("PriceAt(100000000) = %d, want capped %d", got, capped)
	}
}

func TestPriceAtMonotonicAndClamped(t *testing.T) {
	prev := int64(0)
	for s := int64(0); s <= 50_000; s += 137 {
		p := PriceAt(s)
		if p < BasePrice {
			t.Fatalf("PriceAt(%d) = %d below base price", s, p)
		}
		if p < prev {
			t.Fatalf("PriceAt(%d) = %d decreased from %d", s, p, prev)
		}
		prev = p
	}
}

func TestBuySellIntegralSymmetry(t *testing.T) {
	cases := []struct{ from, to int64 }{
		{0, 1},
		{0, 1000},
		{500, 1500},
		{1990, 2010}, // crosses an exponent step
		{19_990, 20_010},
	}
	for _, c := range cases {
		buy := BuyCost(c.from, c.to)
		sell := SellValue(c.to, c.from)
		if buy != sell {
			t.Errorf("BuyCost(%d,%d) = %d but SellValue(%d,%d) = %d",
				c.from, c.to, buy, c.to, c.from, sell)
		}
	}
}

func TestBuyCostAccumulates(t *testing.T) {
	// First 1000 units all price at BasePrice (exponent 0).
	if got := BuyCost(0, 1000); got != 1000*BasePrice {
		t.Fatalf("BuyCost(0,1000) = %d, want %d", got, 1000*BasePrice)
	}
	if got := BuyCost(5, 5); got != 0 {
		t.Fatalf("BuyCost(5,5) = %d, want 0", got)
	}
	// Adjacent ranges compose.
	if BuyCost(0, 3000) != BuyCost(0, 1700)+BuyCost(1700, 3000) {
		t.Fatal("BuyCost ranges do not compose")
	}
}

func TestSplitFee(t *testing.T) {
	platform, creator, total := SplitFee(1_000_000)
	if total != 10_000 || platform != 7_000 || creator != 3_000 {
		t.Fatalf("SplitFee(1000000) = (%d,%d,%d), want (7000,3000,10000)",
			platform, creator, total)
	}
}

func TestSplitFeeLargeTrade(t *testing.T) {
	// A capped-price buy across a large supply range pushes totalValue past
	// the point where a naive value*bps product wraps int64.
	totalValue := BuyCost(900_000, 990_000)
	if totalValue <= 0 {
		t.Fatalf("BuyCost(900000, 990000) = %d, want positive", totalValue)
	}

	platform, creator, total := SplitFee(totalValue)
	if total <= 0 || platform <= 0 || creator <= 0 {
		t.Fatalf("SplitFee(%d) = (%d,%d,%d), want all positive", totalValue, platform, creator, total)
	}
	if platform+creator != total {
		t.Fatalf("SplitFee(%d): %d + %d != %d", totalValue, platform, creator, total)
	}
	wantTotal := totalValue / 10000 * FeeBps // totalValue is a multiple of 10000 here
	if totalValue%10000 != 0 {
		wantTotal += totalValue % 10000 * FeeBps / 10000
	}
	if total != wantTotal {
		t.Fatalf("SplitFee(%d) total = %d, want %d", totalValue, total, wantTotal)
	}
}

func TestSplitFeeNeverLeaks(t *testing.T) {
	for v := int64(0); v < 25_000; v++ {
		platform, creator, total := SplitFee(v)
		if total != v*FeeBps/10000 {
			t.Fatalf("SplitFee(%d) total = %d, want %d", v, total, v*FeeBps/10000)
		}
		if platform+creator != total {
			t.Fatalf("SplitFee(%d): %d + %d != %d", v, platform, creator, total)
		}
		if platform < 0 || creator < 0 {
			t.Fatalf("SplitFee(%d) produced a negative part", v)
		}
	}
}
