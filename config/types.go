package config

// Pauses disables individual modules without restarting the daemon.
type Pauses struct {
	Lending    bool
	Delegation bool
	Rebalance  bool
}

// Quota defines per-address rate limits for module interactions.
type Quota struct {
	MaxRequestsPerMin uint32
	EpochSeconds      uint32 // e.g. 3600
}

// Quotas groups quotas for each mutating surface.
type Quotas struct {
	Lending    Quota
	Delegation Quota
	Rebalance  Quota
	Bank       Quota
}

// Oracle configures the price feed guard rails and the signed-quote path.
type Oracle struct {
	// Authority is the bech32 address allowed to sign price proofs. Empty
	// disables signed submissions.
	Authority string
	// Providers is the allow list for quote provider labels. Empty admits any.
	Providers []string
	// MaxQuoteAgeSeconds fails reads closed once a quote is older than this.
	MaxQuoteAgeSeconds uint64
	// MaxDeviationBps rejects quotes that jump more than this from the
	// previous accepted quote. Zero disables the check.
	MaxDeviationBps uint64
	// ProofMaxSkewSeconds bounds how far a proof timestamp may sit from the
	// daemon clock.
	ProofMaxSkewSeconds uint64
}

// Token is one [[token]] block: an asset plus its risk parameters.
type Token struct {
	Symbol                  string
	Name                    string
	Decimals                uint8
	Supported               bool
	CollateralFactorBps     uint64
	LiquidationThresholdBps uint64
	LiquidationPenaltyBps   uint64
	InterestRateBps         uint64
}

// Mint is one [[mint]] block: a genesis balance. Amount is a base-10 string in
// the asset's smallest unit.
type Mint struct {
	Address string
	Symbol  string
	Amount  string
}

// Role is one [[role]] block: a genesis role grant.
type Role struct {
	Role    string
	Address string
}

// LogFile configures optional on-disk log rotation.
type LogFile struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logging configures the structured logger.
type Logging struct {
	Environment string
	Level       string
	File        LogFile
}

// Telemetry configures the OTLP trace exporter. An empty endpoint disables
// tracing.
type Telemetry struct {
	OTLPEndpoint string
	OTLPHeaders  map[string]string
	// OTLPHeadersEnv names an environment variable holding extra exporter
	// headers as "key=value,key2=value2". Collector auth tokens go here
	// rather than in the file; entries override OTLPHeaders on conflict.
	OTLPHeadersEnv string
	Insecure       bool
}

// WebhookEndpoint is one [[webhooks.endpoint]] block.
type WebhookEndpoint struct {
	URL string
	// Events filters delivered event types; empty receives everything.
	Events []string
}

// Webhooks configures the signed event fanout.
type Webhooks struct {
	// SecretEnv names the environment variable holding the HMAC-SHA256
	// signing secret. The secret never lives in the file; an unset variable
	// disables fanout.
	SecretEnv string
	// JournalPath stores delivery state for redelivery across restarts.
	JournalPath string
	Endpoints   []WebhookEndpoint `toml:"endpoint"`
}
