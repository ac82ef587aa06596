package sizing

import (
	"math"
	"testing"
)

func TestOpenQuantities(t *testing.T) {
	q := Open(1000, 100, 50000, 0.001, 0.0005)
	if q.Contracts != 10 {
		t.Fatalf("expected 10 contracts, got %d", q.Contracts)
	}
	coinEq := 10.0 * 100 / 50000
	if math.Abs(q.CoinEquivalent-coinEq) > 1e-15 {
		t.Fatalf("expected coin equivalent %g, got %g", coinEq, q.CoinEquivalent)
	}
	wantSpot := coinEq/(1-0.001) + coinEq*0.0005
	if math.Abs(q.SpotQuantity-wantSpot) > 1e-15 {
		t.Fatalf("expected spot quantity %g, got %g", wantSpot, q.SpotQuantity)
	}
}

func TestOpenTruncatesFractionalContracts(t *testing.T) {
	q := Open(1099, 100, 50000, 0, 0)
	if q.Contracts != 10 {
		t.Fatalf("expected truncation to 10 contracts, got %d", q.Contracts)
	}
}

func TestCloseQuantities(t *testing.T) {
	q := Close(0.02, 100, 50000, 0.0005)
	if q.Contracts != 10 {
		t.Fatalf("expected 10 contracts, got %d", q.Contracts)
	}
	coinEq := 10.0 * 100 / 50000
	wantSpot := coinEq - coinEq*0.0005
	if math.Abs(q.SpotQuantity-wantSpot) > 1e-15 {
		t.Fatalf("expected spot quantity %g, got %g", wantSpot, q.SpotQuantity)
	}
}

// The closing contract count scales with price; when the price is not 1 the
// two formulas must disagree.
func TestCloseFormulaDiffersFromOpen(t *testing.T) {
	amount, multiplier, price := 1000.0, 100.0, 2.0
	open := Open(amount, multiplier, price, 0, 0)
	closing := Close(amount, multiplier, price, 0)
	if open.Contracts == closing.Contracts {
		t.Fatalf("expected differing contract counts, both %d", open.Contracts)
	}
	if closing.Contracts != int64(math.Floor(price*amount/multiplier)) {
		t.Fatalf("closing contracts must use price*amount/multiplier, got %d", closing.Contracts)
	}
}

func TestRoundPrice(t *testing.T) {
	if got := RoundPrice(50000.456, 1); got != 50000.5 {
		t.Fatalf("expected 50000.5, got %g", got)
	}
	if got := RoundPrice(50000.456, 0); got != 50000 {
		t.Fatalf("expected 50000, got %g", got)
	}
}
