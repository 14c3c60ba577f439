package services

import (
	"testing"
)

func TestCalculateStandardSplit(t *testing.T) {
	calc := NewWinningsCalculator(0.02, 0.03)

	// 1,000,000 pool, 3 winners: 20,000 creator, 30,000 platform,
	// 950,000 distributable, 316,666 each, 2 retained.
	breakdown, err := calc.Calculate(1_000_000, 3)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}

	if breakdown.CreatorReward != 20_000 {
		t.Errorf("creator reward = %d, want 20000", breakdown.CreatorReward)
	}
	if breakdown.PlatformFee != 30_000 {
		t.Errorf("platform fee = %d, want 30000", breakdown.PlatformFee)
	}
	if breakdown.Distributable != 950_000 {
		t.Errorf("distributable = %d, want 950000", breakdown.Distributable)
	}
	if breakdown.PerWinner != 316_666 {
		t.Errorf("per winner = %d, want 316666", breakdown.PerWinner)
	}
	if breakdown.Remainder != 2 {
		t.Errorf("remainder = %d, want 2", breakdown.Remainder)
	}
}

func TestCalculateConservation(t *testing.T) {
	calc := NewWinningsCalculator(0.02, 0.03)

	pools := []int64{0, 1, 7, 99, 100_000, 1_000_000, 999_999_937}
	winners := []int{0, 1, 2, 3, 7, 100}

	for _, pool := range pools {
		for _, n := range winners {
			breakdown, err := calc.Calculate(pool, n)
			if err != nil {
				t.Fatalf("Calculate(%d, %d) failed: %v", pool, n, err)
			}

			sum := breakdown.CreatorReward + breakdown.PlatformFee +
				breakdown.PerWinner*int64(breakdown.WinnerCount) + breakdown.Remainder
			if sum != pool {
				t.Errorf("Calculate(%d, %d): parts sum to %d, want %d", pool, n, sum, pool)
			}
			if n > 0 && breakdown.PerWinner*int64(n) > breakdown.Distributable {
				t.Errorf("Calculate(%d, %d): payouts %d exceed distributable %d",
					pool, n, breakdown.PerWinner*int64(n), breakdown.Distributable)
			}
		}
	}
}

func TestCalculateNoWinners(t *testing.T) {
	calc := NewWinningsCalculator(0.02, 0.03)

	breakdown, err := calc.Calculate(500_000, 0)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}

	if breakdown.PerWinner != 0 {
		t.Errorf("per winner = %d, want 0", breakdown.PerWinner)
	}
	if breakdown.Remainder != breakdown.Distributable {
		t.Errorf("remainder = %d, want full distributable %d",
			breakdown.Remainder, breakdown.Distributable)
	}
}

func TestCalculateRejectsNegativeInputs(t *testing.T) {
	calc := NewWinningsCalculator(0.02, 0.03)

	if _, err := calc.Calculate(-1, 1); err == nil {
		t.Error("expected error for negative pool")
	}
	if _, err := calc.Calculate(100, -1); err == nil {
		t.Error("expected error for negative winner count")
	}
}
