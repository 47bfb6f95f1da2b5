package config

import (
	"fmt"
	"math/big"
	"strings"

	coreerrors "dope/core/errors"
	"dope/crypto"
	"dope/native/fund"
	"dope/native/lending"
	"dope/native/period"
	"dope/native/settlement"
	"dope/native/stake"
	dopeotel "dope/observability/otel"
)

// parseUintAmount decodes a non-negative base-10 amount. Empty input is zero;
// underscores may group digits.
func parseUintAmount(raw string) (*big.Int, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(raw), "_", "")
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%q is not a base-10 integer", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("%q must not be negative", raw)
	}
	return value, nil
}

func amountField(section, field, raw string) (*big.Int, error) {
	value, err := parseUintAmount(raw)
	if err != nil {
		return nil, coreerrors.ErrInvalidConfig.Withf("%s.%s: %v", section, field, err)
	}
	return value, nil
}

// Schedule converts the [periods] section.
func (p Periods) Schedule() period.Schedule {
	convert := func(r PeriodRange) period.Range { return period.Range{Start: r.Start, End: r.End} }
	return period.NewSchedule(convert(p.Stake), convert(p.Fund), convert(p.DepositLoan), convert(p.Borrow), convert(p.Claim))
}

// Settlement converts the file into the engine configuration.
func (c ProtocolConfig) Settlement() (settlement.Config, error) {
	var out settlement.Config
	schedule := c.Periods.Schedule()
	out.Periods = &schedule

	minStake, err := amountField("stake", "MinStakeAmount", c.Stake.MinStakeAmount)
	if err != nil {
		return out, err
	}
	required, err := amountField("stake", "RequiredStakeAmount", c.Stake.RequiredStakeAmount)
	if err != nil {
		return out, err
	}
	out.Stake = stake.Config{
		Token:               c.Stake.Token,
		MinStakeAmount:      minStake,
		RequiredStakeAmount: required,
		RetentionPeriod:     c.Stake.RetentionSeconds,
	}
	out.Fund = fund.Config{
		SaleToken:     c.Fund.SaleToken,
		ExchangeToken: c.Fund.ExchangeToken,
		Treasury:      c.Fund.Treasury,
	}

	userCap, err := amountField("lending", "MaxUserDeposit", c.Lending.MaxUserDeposit)
	if err != nil {
		return out, err
	}
	totalCap, err := amountField("lending", "MaxTotalDeposit", c.Lending.MaxTotalDeposit)
	if err != nil {
		return out, err
	}
	out.Lending = lending.Config{
		StableToken:     c.Lending.StableToken,
		LTVBps:          c.Lending.LTVBps,
		InterestRate:    c.Lending.InterestRate,
		MaxUserDeposit:  userCap,
		MaxTotalDeposit: totalCap,
	}
	return out, nil
}

// HasSaleSource reports whether the [sale] section names a supply source.
func (s Sale) HasSaleSource() bool { return strings.TrimSpace(s.Source) != "" }

// Terms converts the [sale] section into funding terms.
func (s Sale) Terms() (fund.SaleTerms, error) {
	var terms fund.SaleTerms
	source, ok := crypto.ParseAddress(s.Source)
	if !ok {
		return terms, coreerrors.ErrInvalidConfig.Withf("sale.Source: %q is not an address", s.Source)
	}
	target, err := amountField("sale", "Target", s.Target)
	if err != nil {
		return terms, err
	}
	rate, err := amountField("sale", "ExchangeRate", s.ExchangeRate)
	if err != nil {
		return terms, err
	}
	perUserMin, err := amountField("sale", "PerUserMin", s.PerUserMin)
	if err != nil {
		return terms, err
	}
	perUserMax, err := amountField("sale", "PerUserMax", s.PerUserMax)
	if err != nil {
		return terms, err
	}
	return fund.SaleTerms{
		Source:       source,
		Target:       target,
		ExchangeRate: rate,
		PerUserMin:   perUserMin,
		PerUserMax:   perUserMax,
	}, nil
}

// OTel converts the [telemetry] section into exporter settings.
func (t Telemetry) OTel() dopeotel.Config {
	return dopeotel.Config{
		ServiceName: t.ServiceName,
		Environment: t.Environment,
		Endpoint:    t.Endpoint,
		Insecure:    t.Insecure,
		Headers:     dopeotel.ParseHeaders(t.Headers),
		Metrics:     t.Metrics,
		Traces:      t.Traces,
		SampleRatio: t.SampleRatio,
	}
}
