package models

import "github.com/pkg/errors"

var (
	ErrDataQuality         = errors.New("data quality")
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrOracleTimeout       = errors.New("oracle timeout")
	ErrOracleUnavailable   = errors.New("oracle unavailable")
	ErrRiskRejected        = errors.New("risk validation rejected")
	ErrDailyLossLimit      = errors.New("daily loss limit breached")
	ErrOrderSubmission     = errors.New("order submission failed")
	ErrOrderTransient      = errors.New("transient order failure")
	ErrOrderAmbiguous      = errors.New("ambiguous order outcome")
	ErrOrderRejected       = errors.New("order rejected")
	ErrMarginRejected      = errors.New("margin check rejected")
	ErrPersistence         = errors.New("persistence")
	ErrInvariant           = errors.New("invariant violation")
	ErrPositionExists      = errors.New("position already open")
	ErrNoPosition          = errors.New("no open position")
	ErrNotStarted          = errors.New("engine not started")
	ErrErrorLock           = errors.New("engine in error lock")
)

// ReasonCode: причина отказа/пропуска, пишется в лог и статус.
type ReasonCode string

const (
	ReasonNone                ReasonCode = ""
	ReasonInsufficientHistory ReasonCode = "insufficient history"
	ReasonBelowMinScore       ReasonCode = "below minimum score"
	ReasonTie                 ReasonCode = "tied score"
	ReasonRegimeFilter        ReasonCode = "regime filter"
	ReasonDailyLossLimit      ReasonCode = "daily loss limit reached"
	ReasonMaxTrades           ReasonCode = "daily trade limit reached"
	ReasonConsecutiveLosses   ReasonCode = "consecutive loss limit reached"
	ReasonRiskReward          ReasonCode = "risk/reward below minimum"
	ReasonInsufficientBalance ReasonCode = "insufficient balance"
	ReasonInvalidRisk         ReasonCode = "invalid risk parameters"
	ReasonOracleRejected      ReasonCode = "oracle rejected"
	ReasonOracleFallback      ReasonCode = "oracle fallback"
	ReasonKillSwitch          ReasonCode = "kill switch active"
	ReasonStopRequested       ReasonCode = "stop requested"
	ReasonDuplicateBar        ReasonCode = "duplicate bar"
	ReasonDataQuality         ReasonCode = "data quality"
	ReasonStaleBar            ReasonCode = "stale bar"
	ReasonSymbolMismatch      ReasonCode = "symbol mismatch"
	ReasonPendingOrder        ReasonCode = "order pending"
	ReasonOrderFailed         ReasonCode = "order failed"
	ReasonMarginRejected      ReasonCode = "margin rejected"
	ReasonDuplicateFill       ReasonCode = "duplicate fill"
	ReasonErrorLock           ReasonCode = "error lock"
)
