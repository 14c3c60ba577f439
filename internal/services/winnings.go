package services

import (
	"fmt"
)

// PayoutBreakdown is the result of splitting a resolved market's pool.
// All amounts are atomic units and the parts always sum back to TotalPool:
// TotalPool = CreatorReward + PlatformFee + PerWinner*WinnerCount + Remainder.
type PayoutBreakdown struct {
	TotalPool     int64 `json:"total_pool"`
	CreatorReward int64 `json:"creator_reward"`
	PlatformFee   int64 `json:"platform_fee"`
	Distributable int64 `json:"distributable"`
	WinnerCount   int   `json:"winner_count"`
	PerWinner     int64 `json:"per_winner"`
	Remainder     int64 `json:"remainder"`
}

// WinningsCalculator splits pools using integer floor division so no atomic
// unit is ever created out of thin air. The sub-unit remainder of the even
// split stays with the platform treasury.
type WinningsCalculator struct {
	creatorRewardPct float64
	platformFeePct   float64
}

func NewWinningsCalculator(creatorRewardPct, platformFeePct float64) *WinningsCalculator {
	return &WinningsCalculator{
		creatorRewardPct: creatorRewardPct,
		platformFeePct:   platformFeePct,
	}
}

// Calculate splits totalPool across the creator reward, the platform fee and
// winnerCount equal payouts.
func (c *WinningsCalculator) Calculate(totalPool int64, winnerCount int) (*PayoutBreakdown, error) {
	if totalPool < 0 {
		return nil, fmt.Errorf("pool must be non-negative, got %d", totalPool)
	}
	if winnerCount < 0 {
		return nil, fmt.Errorf("winner count must be non-negative, got %d", winnerCount)
	}

	// float truncation on a non-negative product is floor
	creatorReward := int64(float64(totalPool) * c.creatorRewardPct)
	platformFee := int64(float64(totalPool) * c.platformFeePct)
	distributable := totalPool - creatorReward - platformFee

	if distributable < 0 {
		return nil, fmt.Errorf("fees exceed pool: pool=%d creator=%d platform=%d",
			totalPool, creatorReward, platformFee)
	}

	breakdown := &PayoutBreakdown{
		TotalPool:     totalPool,
		CreatorReward: creatorReward,
		PlatformFee:   platformFee,
		Distributable: distributable,
		WinnerCount:   winnerCount,
	}

	if winnerCount == 0 {
		// No winning prediction: the whole distributable share is retained.
		breakdown.Remainder = distributable
		return breakdown, nil
	}

	breakdown.PerWinner = distributable / int64(winnerCount)
	breakdown.Remainder = distributable - breakdown.PerWinner*int64(winnerCount)

	return breakdown, nil
}
