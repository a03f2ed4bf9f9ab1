package model

// Signal is the actionable output of the scoring engine.
type Signal string

const (
	SignalBuy    Signal = "BUY"
	SignalHold   Signal = "HOLD"
	SignalExit   Signal = "EXIT"
	SignalIgnore Signal = "IGNORE"
)

// State is the momentum state-machine state for a symbol.
type State string

const (
	StateNoMomo   State = "NO_MOMO"
	StateBuilding State = "BUILDING"
	StateActive   State = "ACTIVE"
	StatePause    State = "PAUSE"
	StateFailing  State = "FAILING"
	StateFailed   State = "FAILED"
)

// FreshState is the freshness classification of a series.
type FreshState string

const (
	Fresh   FreshState = "fresh"
	Stale   FreshState = "stale"
	Missing FreshState = "missing"
)

// GateResult is one audit entry: a gate evaluation or the state-machine
// rule that fired.
type GateResult struct {
	Gate   string `json:"gate_name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// Range is an inclusive price range.
type Range struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`
}

// ScoreResult is the full scored view of a symbol returned by /score.
type ScoreResult struct {
	Ticker     string                   `json:"ticker"`
	Signal     Signal                   `json:"signal"`
	State      State                    `json:"state"`
	Confidence float64                  `json:"confidence"`
	SizeHint   float64                  `json:"size_hint"`
	EntryRange *Range                   `json:"entry_range"`
	Stop       *float64                 `json:"stop"`
	Targets    []float64                `json:"targets"`
	Freshness  map[Timeframe]FreshState `json:"freshness"`
	MissingTFs []Timeframe              `json:"missing_tfs"`
	Tape       TapeSnapshot             `json:"tape"`
	Audit      []GateResult             `json:"audit"`

	// Support / resistance levels derived from the 15m prior extremes.
	SupportRange *Range `json:"support_range"`
	Resistance1  *Range `json:"resistance_1"`
	Resistance2  *Range `json:"resistance_2"`

	// Last traded price provenance.
	LastPrice       *float64 `json:"last_price"`
	LastPriceTS     *int64   `json:"last_price_ts"`
	LastPriceSource string   `json:"last_price_source,omitempty"`
}
