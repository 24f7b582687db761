package models

import "time"

type EngineState string

const (
	StateIdle               EngineState = "IDLE"
	StateInitializing       EngineState = "INITIALIZING"
	StateAnalyzing          EngineState = "ANALYZING"
	StateCheckingConditions EngineState = "CHECKING_CONDITIONS"
	StateInPosition         EngineState = "IN_POSITION"
	StateStopped            EngineState = "STOPPED"
	StateErrorLock          EngineState = "ERROR_LOCK"
)

// Status is a read-only snapshot of the engine.
type Status struct {
	Symbol     string         `json:"symbol"`
	State      EngineState    `json:"state"`
	Position   *Position      `json:"position,omitempty"`
	Daily      DailyRiskState `json:"daily"`
	Balance    float64        `json:"balance"`
	KillSwitch bool           `json:"kill_switch"`
	KillReason string         `json:"kill_reason,omitempty"`
	LockReason string         `json:"lock_reason,omitempty"`
	Degraded   bool           `json:"degraded"`
	LastBarAt  time.Time      `json:"last_bar_at"`
	LastReason ReasonCode     `json:"last_reason,omitempty"`
	Cycles     int64          `json:"cycles"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Clone copies the status including the position.
func (s Status) Clone() Status {
	s.Position = s.Position.Snapshot()
	return s
}

// EngineRecord is the persisted engine state.
type EngineRecord struct {
	Version    int            `json:"version"`
	Symbol     string         `json:"symbol"`
	State      EngineState    `json:"state"`
	Position   *Position      `json:"position,omitempty"`
	Daily      DailyRiskState `json:"daily"`
	KillSwitch bool           `json:"kill_switch"`
	KillReason string         `json:"kill_reason,omitempty"`
	LastBarEnd time.Time      `json:"last_bar_end"`
	SavedAt    time.Time      `json:"saved_at"`
}

type CycleAction string

const (
	ActionNone     CycleAction = "none"
	ActionSkipped  CycleAction = "skipped"
	ActionRejected CycleAction = "rejected"
	ActionPending  CycleAction = "pending"
	ActionEntered  CycleAction = "entered"
	ActionExited   CycleAction = "exited"
	ActionUpdated  CycleAction = "updated"
)

// CycleReport describes what one RunCycle call did.
type CycleReport struct {
	Action CycleAction      `json:"action"`
	State  EngineState      `json:"state"`
	Reason ReasonCode       `json:"reason,omitempty"`
	Signal *Signal          `json:"signal,omitempty"`
	Calc   *RiskCalculation `json:"calc,omitempty"`
	Exit   *ExitResult      `json:"exit,omitempty"`
	Oracle *OracleOutcome   `json:"oracle,omitempty"`
}
