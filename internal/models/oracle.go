package models

type OracleVerdict string

const (
	VerdictApprove   OracleVerdict = "APPROVE"
	VerdictReject    OracleVerdict = "REJECT"
	VerdictUncertain OracleVerdict = "UNCERTAIN"
)

// OracleRequest: контекст сигнала для внешнего советника.
type OracleRequest struct {
	Signal   Signal             `json:"signal"`
	Features map[string]float64 `json:"features"`
}

type OracleDecision struct {
	Verdict    OracleVerdict `json:"verdict"`
	Confidence float64       `json:"confidence"`
	Reasoning  string        `json:"reasoning,omitempty"`
	Source     string        `json:"source,omitempty"`
}

// OracleOutcome is the gated result: Proceed tells the engine whether to go on,
// Fallback marks a rule-based decision taken without a usable verdict.
type OracleOutcome struct {
	Proceed  bool           `json:"proceed"`
	Fallback bool           `json:"fallback"`
	Decision OracleDecision `json:"decision"`
	Reason   ReasonCode     `json:"reason,omitempty"`
	Error    string         `json:"error,omitempty"`
}
