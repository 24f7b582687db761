package service

import (
	"context"
	"fmt"
	"strings"

	"trade_engine/internal/models"
)

// Confirmer asks a human a yes/no question; *notify.Telegram implements it.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// TelegramClient turns a chat confirmation into a verdict. A human answer
// carries full confidence.
type TelegramClient struct {
	c Confirmer
}

func NewTelegramClient(c Confirmer) *TelegramClient {
	return &TelegramClient{c: c}
}

func (t *TelegramClient) Validate(ctx context.Context, req models.OracleRequest) (models.OracleDecision, error) {
	ok, err := t.c.Confirm(ctx, Prompt(req))
	if err != nil {
		return models.OracleDecision{}, err
	}
	d := models.OracleDecision{Verdict: models.VerdictReject, Confidence: 100, Source: "telegram", Reasoning: "declined in chat"}
	if ok {
		d.Verdict, d.Reasoning = models.VerdictApprove, "confirmed in chat"
	}
	return d, nil
}

// Prompt renders the signal for a human.
func Prompt(req models.OracleRequest) string {
	s := req.Signal
	var b strings.Builder
	arrow := "🟢 LONG"
	if s.Direction == models.DirShort {
		arrow = "🔴 SHORT"
	}
	fmt.Fprintf(&b, "%s %s @ %.6f\n", arrow, s.Symbol, s.Entry)
	fmt.Fprintf(&b, "score %d/%d (min %d), regime %s\n", s.Score, s.Total, s.MinScore, s.Regime.Kind)
	if s.SuggestedStop > 0 {
		fmt.Fprintf(&b, "SL %.6f TP %.6f\n", s.SuggestedStop, s.SuggestedTarget)
	}
	if len(s.Passed) > 0 {
		fmt.Fprintf(&b, "✔ %s\n", strings.Join(s.Passed, ", "))
	}
	b.WriteString("Входим?")
	return b.String()
}
