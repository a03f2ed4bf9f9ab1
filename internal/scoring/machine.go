package scoring

import "github.com/sharif3/momentum-trader/internal/model"

// Transition applies the momentum state machine: the rules are checked in
// order and the first match wins. It is a pure function of the previous
// state and the input snapshot; the fired rule is returned for the audit
// trail.
func Transition(prev model.State, in Inputs) (model.State, string) {
	switch {
	case in.Breakdown15 && in.Breakdown5:
		return model.StateFailed, "breakdown on 15m and 5m"

	case in.Breakdown5 && !in.Breakdown15:
		return model.StateFailing, "breakdown on 5m only"

	case prev == model.StateFailing && in.TrendUp5 && !in.Breakdown5:
		return model.StateBuilding, "5m trend recovered from FAILING"

	case in.TrendUp15 && in.TrendUp5 && in.StructureIntact15 && in.AboveVWAP && in.OBVConfirm:
		return model.StateActive, "full momentum alignment"

	case in.TrendUp15 && (in.TrendUp5 != in.AboveVWAP):
		return model.StateBuilding, "15m trend with partial 5m confirmation"

	case prev == model.StateActive && !in.TrendUp5 && !in.Breakdown5:
		return model.StatePause, "5m trend lost without breakdown"

	case prev == model.StatePause && in.TrendUp5 && in.AboveVWAP:
		return model.StateActive, "5m trend and anchor reclaimed"

	default:
		return model.StateNoMomo, "no momentum condition met"
	}
}
