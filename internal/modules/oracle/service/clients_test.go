package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"trade_engine/internal/models"
)

func TestHTTPClient(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		verdict models.OracleVerdict
		conf    float64
		wantErr bool
	}{
		{name: "verdict", status: 200, body: `{"verdict":"approve","confidence":72,"reasoning":"trend"}`, verdict: models.VerdictApprove, conf: 72},
		{name: "approved flag", status: 200, body: `{"approved":false,"confidence":81}`, verdict: models.VerdictReject, conf: 81},
		{name: "empty answer", status: 200, body: `{"confidence":81}`, wantErr: true},
		{name: "unknown verdict", status: 200, body: `{"verdict":"maybe"}`, wantErr: true},
		{name: "server error", status: 502, body: `bad gateway`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got models.OracleRequest
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				raw, _ := io.ReadAll(r.Body)
				_ = sonic.Unmarshal(raw, &got)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			dec, err := NewHTTPClient(srv.URL, srv.Client()).Validate(context.Background(), sampleRequest())
			if tt.wantErr {
				if err == nil {
					t.Fatalf("want error, got %+v", dec)
				}
				return
			}
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if dec.Verdict != tt.verdict || dec.Confidence != tt.conf || dec.Source != "http" {
				t.Fatalf("decision = %+v", dec)
			}
			if got.Signal.Symbol != "BTCUSDT" || got.Features["rsi"] != 55 {
				t.Fatalf("request = %+v", got)
			}
		})
	}
}

type fakeInvoker struct {
	method string
	in     *structpb.Struct
	reply  map[string]any
	err    error
}

func (f *fakeInvoker) Invoke(_ context.Context, method string, args, reply any, _ ...grpc.CallOption) error {
	f.method = method
	f.in = args.(*structpb.Struct)
	if f.err != nil {
		return f.err
	}
	s, err := structpb.NewStruct(f.reply)
	if err != nil {
		return err
	}
	reply.(*structpb.Struct).Fields = s.Fields
	return nil
}

func TestGRPCClient(t *testing.T) {
	inv := &fakeInvoker{reply: map[string]any{"verdict": "REJECT", "confidence": 90.0, "reasoning": "news"}}
	c := &GRPCClient{conn: inv, method: "/advisor.Advisor/Validate"}

	dec, err := c.Validate(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if dec.Verdict != models.VerdictReject || dec.Confidence != 90 || dec.Reasoning != "news" || dec.Source != "grpc" {
		t.Fatalf("decision = %+v", dec)
	}
	if inv.method != "/advisor.Advisor/Validate" {
		t.Fatalf("method = %s", inv.method)
	}
	sig := inv.in.GetFields()["signal"].GetStructValue().GetFields()
	if sig["symbol"].GetStringValue() != "BTCUSDT" || sig["entry"].GetNumberValue() != 100 {
		t.Fatalf("request signal = %v", sig)
	}

	inv.err = errors.New("unavailable")
	if _, err := c.Validate(context.Background(), sampleRequest()); err == nil {
		t.Fatal("want invoke error")
	}
}

type fakeConfirmer struct {
	answer bool
	err    error
	prompt string
}

func (f *fakeConfirmer) Confirm(_ context.Context, prompt string) (bool, error) {
	f.prompt = prompt
	return f.answer, f.err
}

func TestTelegramClient(t *testing.T) {
	fc := &fakeConfirmer{answer: true}
	dec, err := NewTelegramClient(fc).Validate(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if dec.Verdict != models.VerdictApprove || dec.Confidence != 100 {
		t.Fatalf("decision = %+v", dec)
	}
	if !strings.Contains(fc.prompt, "LONG BTCUSDT") || !strings.Contains(fc.prompt, "score 4/5") {
		t.Fatalf("prompt = %q", fc.prompt)
	}

	fc.answer = false
	dec, _ = NewTelegramClient(fc).Validate(context.Background(), sampleRequest())
	if dec.Verdict != models.VerdictReject {
		t.Fatalf("decision = %+v", dec)
	}

	fc.err = context.DeadlineExceeded
	if _, err := NewTelegramClient(fc).Validate(context.Background(), sampleRequest()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}
