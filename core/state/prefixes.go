package state

const (
	tokenBalancePrefix   = "token/balance"
	tokenAllowancePrefix = "token/allowance"
	tokenSupplyPrefix    = "token/supply"

	schedulePrefix = "period/schedule"
	pausePrefix    = "pause"

	stakePositionPrefix = "stake/position"
	stakeTotalPrefix    = "stake/total"
	whitelistRootPrefix = "stake/whitelist"

	salePrefix            = "fund/sale"
	fundingPositionPrefix = "fund/position"

	marketPrefix  = "lending/market"
	loanPrefix    = "lending/loan"
	depositPrefix = "lending/deposit"
)
