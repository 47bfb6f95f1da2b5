package config

// PeriodRange is one phase window in ledger seconds, end exclusive.
type PeriodRange struct {
	Start uint64 `toml:"Start"`
	End   uint64 `toml:"End"`
}

// Periods lists the five phase windows in lifecycle order.
type Periods struct {
	Stake       PeriodRange `toml:"stake"`
	Fund        PeriodRange `toml:"fund"`
	DepositLoan PeriodRange `toml:"depositLoan"`
	Borrow      PeriodRange `toml:"borrow"`
	Claim       PeriodRange `toml:"claim"`
}

// Stake configures the stake ledger. Amounts are base-unit decimal strings.
type Stake struct {
	Token               string `toml:"Token"`
	MinStakeAmount      string `toml:"MinStakeAmount"`
	RequiredStakeAmount string `toml:"RequiredStakeAmount"`
	RetentionSeconds    uint64 `toml:"RetentionSeconds"`
}

// Fund configures the funding ledger.
type Fund struct {
	SaleToken     string `toml:"SaleToken"`
	ExchangeToken string `toml:"ExchangeToken"`
	// Treasury receives contributions. Empty selects the derived module account.
	Treasury string `toml:"Treasury"`
}

// Sale holds the terms installed by SetSaleToken. Source empty means the
// sale is configured later by an operator.
type Sale struct {
	Source       string `toml:"Source"`
	Target       string `toml:"Target"`
	ExchangeRate string `toml:"ExchangeRate"`
	PerUserMin   string `toml:"PerUserMin"`
	PerUserMax   string `toml:"PerUserMax"`
}

// Lending configures the lending pool.
type Lending struct {
	StableToken     string `toml:"StableToken"`
	LTVBps          uint64 `toml:"LTVBps"`
	InterestRate    uint64 `toml:"InterestRate"`
	MaxUserDeposit  string `toml:"MaxUserDeposit"`
	MaxTotalDeposit string `toml:"MaxTotalDeposit"`
}

// Storage selects the ledger backend.
type Storage struct {
	// Backend is "memory", "leveldb" or "bolt". Path is a directory for
	// leveldb and a file for bolt.
	Backend string `toml:"Backend"`
	Path    string `toml:"Path"`
}

// Telemetry configures OpenTelemetry export and the Prometheus textfile dump.
type Telemetry struct {
	ServiceName string `toml:"ServiceName"`
	Environment string `toml:"Environment"`
	Endpoint    string `toml:"Endpoint"`
	Insecure    bool   `toml:"Insecure"`
	// Headers is a comma separated key=value list.
	Headers     string `toml:"Headers"`
	Traces      bool   `toml:"Traces"`
	Metrics     bool   `toml:"Metrics"`
	// SampleRatio is the fraction of root spans kept. Zero keeps all.
	SampleRatio float64 `toml:"SampleRatio"`
	MetricsFile string `toml:"MetricsFile"`
}

// Logging configures the JSON logger.
type Logging struct {
	Level string `toml:"Level"`
}

// EventLog configures the SQL event sink.
type EventLog struct {
	Enabled bool   `toml:"Enabled"`
	Driver  string `toml:"Driver"`
	DSN     string `toml:"DSN"`
}

// ProtocolConfig is the complete file layout.
type ProtocolConfig struct {
	Periods   Periods   `toml:"periods"`
	Stake     Stake     `toml:"stake"`
	Fund      Fund      `toml:"fund"`
	Sale      Sale      `toml:"sale"`
	Lending   Lending   `toml:"lending"`
	Storage   Storage   `toml:"storage"`
	Telemetry Telemetry `toml:"telemetry"`
	Logging   Logging   `toml:"logging"`
	EventLog  EventLog  `toml:"eventlog"`
}
