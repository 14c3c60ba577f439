package models

// CreateMarketRequest is the payload for creating a market.
type CreateMarketRequest struct {
	FixtureID   string  `json:"fixture_id" binding:"required"`
	Title       string  `json:"title" binding:"required"`
	Description string  `json:"description"`
	EntryFee    int64   `json:"entry_fee" binding:"required,gt=0"`
	// Percentages as fractions (0.02 = 2%). Zero means platform defaults.
	CreatorRewardPct float64 `json:"creator_reward_pct"`
	PlatformFeePct   float64 `json:"platform_fee_pct"`
}

// JoinMarketRequest is the payload for placing a prediction.
type JoinMarketRequest struct {
	Prediction Outcome `json:"prediction" binding:"required"`
	Stake      int64   `json:"stake" binding:"required,gt=0"`
}

// WalletLoginRequest authenticates a user by wallet signature.
type WalletLoginRequest struct {
	WalletAddress string `json:"wallet_address" binding:"required"`
	Signature     string `json:"signature" binding:"required"`
}
