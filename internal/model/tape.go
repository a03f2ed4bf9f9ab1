package model

// Regime summarizes the market tape derived from the reference instruments.
type Regime string

const (
	RegimeRiskOn  Regime = "RISK_ON"
	RegimeNeutral Regime = "NEUTRAL"
	RegimeRiskOff Regime = "RISK_OFF"
	RegimeUnknown Regime = "UNKNOWN"
)

// TapeSnapshot is the tape context at a moment in time. RiskOffKnown is
// false when either reference instrument is stale or missing; scoring then
// treats the tape gate precondition as failed. RS30m is nil when either
// side of the relative-strength comparison is missing.
type TapeSnapshot struct {
	Regime       Regime   `json:"regime"`
	RiskOff      bool     `json:"market_risk_off"`
	RiskOffKnown bool     `json:"risk_off_known"`
	RS30m        *float64 `json:"rs_30m"`
	ComputedAt   int64    `json:"computed_at_ms"`
	Audit        []string `json:"audit,omitempty"`
}
