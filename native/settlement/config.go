package settlement

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "dope/core/errors"
	"dope/core/types"
	"dope/crypto"
	"dope/native/fund"
	"dope/native/lending"
	"dope/native/period"
	"dope/native/stake"
)

// Module names used for custody derivation and pause switches.
const (
	ModuleStake    = "stake"
	ModuleFund     = "fund"
	ModuleLending  = "lending"
	moduleTreasury = "treasury"
)

// Modules lists the pausable ledgers.
func Modules() []string { return []string{ModuleStake, ModuleFund, ModuleLending} }

// Config bundles the parameters of one protocol instance.
type Config struct {
	// Periods, when set, is installed on first start if no schedule is
	// persisted yet.
	Periods *period.Schedule
	Stake   stake.Config
	Fund    fund.Config
	Lending lending.Config
}

// Validate rejects inconsistent parameters with InvalidConfig.
func (c Config) Validate() error {
	if c.Periods != nil {
		if err := c.Periods.Validate(); err != nil {
			return err
		}
	}
	if types.NormalizeSymbol(c.Stake.Token) == "" {
		return coreerrors.ErrInvalidConfig.Withf("stake token required")
	}
	if c.Stake.MinStakeAmount != nil && c.Stake.MinStakeAmount.Sign() < 0 {
		return coreerrors.ErrInvalidConfig.Withf("stake minimum must not be negative")
	}
	if c.Stake.RequiredStakeAmount != nil && c.Stake.RequiredStakeAmount.Sign() < 0 {
		return coreerrors.ErrInvalidConfig.Withf("required stake must not be negative")
	}
	saleToken := types.NormalizeSymbol(c.Fund.SaleToken)
	exchangeToken := types.NormalizeSymbol(c.Fund.ExchangeToken)
	if saleToken == "" || exchangeToken == "" {
		return coreerrors.ErrInvalidConfig.Withf("sale and exchange tokens required")
	}
	if saleToken == exchangeToken {
		return coreerrors.ErrInvalidConfig.Withf("sale and exchange tokens must differ")
	}
	if _, err := c.treasury(); err != nil {
		return err
	}
	stable := types.NormalizeSymbol(c.Lending.StableToken)
	if stable == "" {
		return coreerrors.ErrInvalidConfig.Withf("lending stable token required")
	}
	if stable == saleToken {
		return coreerrors.ErrInvalidConfig.Withf("lending stable token must differ from the sale token")
	}
	// Collateral and interest are counted in contribution units.
	if stable != exchangeToken {
		return coreerrors.ErrInvalidConfig.Withf("lending stable token %s must match the exchange token %s", stable, c.Fund.ExchangeToken)
	}
	if c.Lending.LTVBps == 0 || c.Lending.LTVBps > lending.CollateralScale.Uint64() {
		return coreerrors.ErrInvalidConfig.Withf("ltv %d outside (0, %s]", c.Lending.LTVBps, lending.CollateralScale)
	}
	for name, limit := range map[string]*big.Int{"user": c.Lending.MaxUserDeposit, "total": c.Lending.MaxTotalDeposit} {
		if limit != nil && limit.Sign() < 0 {
			return coreerrors.ErrInvalidConfig.Withf("%s deposit cap must not be negative", name)
		}
	}
	return nil
}

func (c Config) treasury() (common.Address, error) {
	raw := strings.TrimSpace(c.Fund.Treasury)
	if raw == "" {
		return crypto.ModuleAddress(moduleTreasury), nil
	}
	addr, ok := crypto.ParseAddress(raw)
	if !ok {
		return common.Address{}, coreerrors.ErrInvalidConfig.Withf("treasury %q is not an address", raw)
	}
	return addr, nil
}
