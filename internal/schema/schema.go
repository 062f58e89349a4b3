// Package schema holds the entity shapes shared across the risk engine:
// mints, holders, signatures, funding hops, detector outputs and the
// terminal analysis report. Nothing here calls out to the network.
package schema

import "time"

// TokenMint describes an on-chain SPL mint. Immutable once observed.
type TokenMint struct {
	Address         string
	TotalSupply     uint64
	Decimals        uint8
	MintAuthority   string // empty if revoked
	FreezeAuthority string // empty if revoked
}

// Holder is a single top-holder entry for a mint.
type Holder struct {
	Address    string
	Balance    float64 // token units, already decimal-scaled
	Percentage float64 // 100 * balance / circulating
	Rank       int     // 1-indexed, descending balance
	IsExchange bool
}

// Signature is one entry from getSignaturesForAddress.
type Signature struct {
	Sig       string
	Slot      uint64
	BlockTime int64 // unix seconds, 0 if unknown
	WasError  bool
}

// TokenBalanceDelta captures a pre/post token-balance change for one
// account index in a parsed transaction.
type TokenBalanceDelta struct {
	Owner    string
	Mint     string
	PreUI    float64
	PostUI   float64
}

// Transaction is the parsed form of a getTransaction response that the
// detectors need: balances and account keys, plus token deltas.
type Transaction struct {
	Signature    string
	Slot         uint64
	BlockTime    int64
	AccountKeys  []string
	PreBalances  []uint64 // lamports
	PostBalances []uint64 // lamports
	TokenDeltas  []TokenBalanceDelta
	Failed       bool
}

// EntityType classifies a labelled address encountered during tracing.
type EntityType string

const (
	EntityCEX     EntityType = "cex"
	EntitySwap    EntityType = "swap"
	EntityMixer   EntityType = "mixer"
	EntityBridge  EntityType = "bridge"
	EntityWallet  EntityType = "wallet"
	EntityUnknown EntityType = "unknown"
)

// FundingHop is one backward step in a funding-flow trace.
type FundingHop struct {
	Level       int
	From        string
	To          string
	AmountSOL   float64
	Sig         string
	Timestamp   time.Time
	EntityType  EntityType
	EntityLabel string
}

// Severity orders evidence strings for stable-sort / dedup in the fusion
// layer. Lower value sorts first.
type Severity int

const (
	SeverityCritical Severity = iota
	SeverityHigh
	SeverityMedium
	SeverityLow
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "CRITICAL"
	case SeverityHigh:
		return "HIGH"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityLow:
		return "LOW"
	default:
		return "INFO"
	}
}

// Finding is one piece of evidence in the final report, carrying the
// addresses it implicates so downstream consumers can cross-reference
// the holder universe.
type Finding struct {
	Severity              Severity
	Code                  string
	Message               string
	ContributingAddresses []string
}

// DetectorName is a closed set: the aggregator fans out over exactly
// these six, never a dynamic registry.
type DetectorName string

const (
	DetectorBundle     DetectorName = "bundle"
	DetectorAgedWallet DetectorName = "aged_wallet"
	DetectorFunding    DetectorName = "funding"
	DetectorWhale      DetectorName = "whale"
	DetectorSniperFarm DetectorName = "sniper_farm"
	DetectorTimeBased  DetectorName = "time_based"
)

// AllDetectors enumerates the fixed dispatch set in stable order.
func AllDetectors() []DetectorName {
	return []DetectorName{
		DetectorBundle, DetectorAgedWallet, DetectorFunding,
		DetectorWhale, DetectorSniperFarm, DetectorTimeBased,
	}
}

// DetectorOutput is the uniform result every detector produces.
type DetectorOutput struct {
	Name         DetectorName
	PartialScore int // 0..100
	Findings     []Finding
	Evidence     map[string]interface{} // detector-specific structured fields
	Empty        bool                   // true if detector had no signal or failed
	FailedHard   bool                   // true if Empty is due to RPC/data failure, not absence of signal
}

// RiskLevel is the categorical bucket derived from SafetyScore.
type RiskLevel string

const (
	RiskSafe       RiskLevel = "SAFE"
	RiskModerate   RiskLevel = "MODERATE"
	RiskRisky      RiskLevel = "RISKY"
	RiskDangerous  RiskLevel = "DANGEROUS"
)

// RiskLevelFor buckets a safety score: >=80 SAFE, >=60 MODERATE,
// >=40 RISKY, else DANGEROUS.
func RiskLevelFor(safetyScore int) RiskLevel {
	switch {
	case safetyScore >= 80:
		return RiskSafe
	case safetyScore >= 60:
		return RiskModerate
	case safetyScore >= 40:
		return RiskRisky
	default:
		return RiskDangerous
	}
}

// AnalysisReport is the immutable terminal value of a fused analysis.
type AnalysisReport struct {
	Mint         string
	SafetyScore  int
	RiskLevel    RiskLevel
	Findings     []Finding
	Detectors    map[DetectorName]DetectorOutput
	EvaluatedAt  time.Time
	Partial      bool // true if any detector returned empty due to failure
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
