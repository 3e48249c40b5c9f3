package engine

import (
	"time"

	"github.com/webclinic017/GDA-v2/internal/reconciliation"
	"github.com/webclinic017/GDA-v2/internal/risk"
	"github.com/webclinic017/GDA-v2/internal/strategy"
)

// Job kinds, also stored in the cycles journal.
const (
	KindCycle  = "cycle"
	KindStatus = "status"
)

// CycleReport summarises one trading cycle.
type CycleReport struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Symbols     []string                      `json:"symbols"`
	Missing     []string                      `json:"missing,omitempty"`
	Corrections []reconciliation.PositionDiff `json:"corrections,omitempty"`
	Outcomes    []strategy.Outcome            `json:"-"`
	StopMoves   []risk.StopMove               `json:"stop_moves,omitempty"`
	Stops       []risk.StopTrigger            `json:"-"`
	TakeProfits []risk.TakeProfitFill         `json:"take_profits,omitempty"`
	Orders      int                           `json:"orders"`
	Positions   int                           `json:"positions"`
}

// Actions returns the outcomes that did something, in symbol order.
func (r *CycleReport) Actions() []strategy.Outcome {
	var res []strategy.Outcome
	for _, o := range r.Outcomes {
		if o.Decision.Action != strategy.ActionNone {
			res = append(res, o)
		}
	}
	return res
}

// StatusReport is the daily account overview.
type StatusReport struct {
	Time         time.Time `json:"time"`
	Open         int       `json:"open"`
	TotalMarkets int       `json:"total_markets"`
	PctOpen      int       `json:"pct_open"`
	Longs        []string  `json:"longs"`
	Shorts       []string  `json:"shorts"`
	Wallet       float64   `json:"wallet"`
	NAV          float64   `json:"nav"`
	NAVDiffPct   float64   `json:"nav_diff_pct"`
	Message      string    `json:"message"`
}

// PositionSize is the current target size of one asset.
type PositionSize struct {
	Asset   string  `json:"asset"`
	Balance float64 `json:"balance"`
	Mult    float64 `json:"mult"`
	PctSize float64 `json:"pct_size"`
	Price   float64 `json:"price"`
	Units   float64 `json:"units"`
	Value   float64 `json:"value"`
}
