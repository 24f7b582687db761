package service

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"trade_engine/internal/models"
)

// wireDecision is what advisors answer with: either an explicit verdict or
// an approved flag.
type wireDecision struct {
	Verdict    string  `json:"verdict"`
	Approved   *bool   `json:"approved"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

func (w wireDecision) decision(source string) (models.OracleDecision, error) {
	d := models.OracleDecision{Confidence: w.Confidence, Reasoning: w.Reasoning, Source: source}
	switch v := models.OracleVerdict(strings.ToUpper(strings.TrimSpace(w.Verdict))); v {
	case models.VerdictApprove, models.VerdictReject, models.VerdictUncertain:
		d.Verdict = v
	case "":
		if w.Approved == nil {
			return d, errors.New("answer has neither verdict nor approved")
		}
		d.Verdict = models.VerdictReject
		if *w.Approved {
			d.Verdict = models.VerdictApprove
		}
	default:
		return d, errors.Errorf("unknown verdict %q", w.Verdict)
	}
	return d, nil
}

// HTTPClient posts the request as JSON and reads a JSON verdict.
type HTTPClient struct {
	endpoint string
	http     *http.Client
}

func NewHTTPClient(endpoint string, hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = &http.Client{}
	}
	return &HTTPClient{endpoint: endpoint, http: hc}
}

func (c *HTTPClient) Validate(ctx context.Context, req models.OracleRequest) (models.OracleDecision, error) {
	body, err := sonic.Marshal(req)
	if err != nil {
		return models.OracleDecision{}, errors.Wrap(err, "marshal oracle request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return models.OracleDecision{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return models.OracleDecision{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.OracleDecision{}, errors.Wrap(err, "read oracle response")
	}
	if resp.StatusCode != http.StatusOK {
		return models.OracleDecision{}, errors.Errorf("oracle http status %d: %s", resp.StatusCode, string(respBody))
	}

	var w wireDecision
	if err := sonic.Unmarshal(respBody, &w); err != nil {
		return models.OracleDecision{}, errors.Wrap(err, "decode oracle response")
	}
	return w.decision("http")
}
