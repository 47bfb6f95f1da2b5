package config

import (
	"strings"

	coreerrors "dope/core/errors"
	"dope/observability/logging"
)

// Validate rejects inconsistent configuration eagerly.
func (c ProtocolConfig) Validate() error {
	settlementCfg, err := c.Settlement()
	if err != nil {
		return err
	}
	if err := settlementCfg.Validate(); err != nil {
		return err
	}
	if err := c.validateSale(); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Backend)) {
	case "", "memory":
	case "leveldb", "bolt":
		if strings.TrimSpace(c.Storage.Path) == "" {
			return coreerrors.ErrInvalidConfig.Withf("storage.Path required for %s", c.Storage.Backend)
		}
	default:
		return coreerrors.ErrInvalidConfig.Withf("storage.Backend %q unsupported", c.Storage.Backend)
	}
	if r := c.Telemetry.SampleRatio; r < 0 || r > 1 {
		return coreerrors.ErrInvalidConfig.Withf("telemetry.SampleRatio %v outside [0, 1]", r)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return coreerrors.ErrInvalidConfig.Withf("logging.Level: %v", err)
	}
	if c.EventLog.Enabled {
		switch strings.ToLower(strings.TrimSpace(c.EventLog.Driver)) {
		case "", "sqlite":
		case "postgres":
			if strings.TrimSpace(c.EventLog.DSN) == "" {
				return coreerrors.ErrInvalidConfig.Withf("eventlog.DSN required for postgres")
			}
		default:
			return coreerrors.ErrInvalidConfig.Withf("eventlog.Driver %q unsupported", c.EventLog.Driver)
		}
	}
	return nil
}

func (c ProtocolConfig) validateSale() error {
	s := c.Sale
	target, err := amountField("sale", "Target", s.Target)
	if err != nil {
		return err
	}
	rate, err := amountField("sale", "ExchangeRate", s.ExchangeRate)
	if err != nil {
		return err
	}
	perUserMin, err := amountField("sale", "PerUserMin", s.PerUserMin)
	if err != nil {
		return err
	}
	perUserMax, err := amountField("sale", "PerUserMax", s.PerUserMax)
	if err != nil {
		return err
	}
	if perUserMax.Sign() > 0 && perUserMin.Cmp(perUserMax) > 0 {
		return coreerrors.ErrInvalidConfig.Withf("sale.PerUserMin %s above PerUserMax %s", perUserMin, perUserMax)
	}
	if !s.HasSaleSource() {
		return nil
	}
	if _, err := s.Terms(); err != nil {
		return err
	}
	if target.Sign() == 0 {
		return coreerrors.ErrInvalidConfig.Withf("sale.Target must be positive")
	}
	if rate.Sign() == 0 {
		return coreerrors.ErrInvalidConfig.Withf("sale.ExchangeRate must be positive")
	}
	return nil
}
