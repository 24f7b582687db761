package service

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"trade_engine/internal/models"
)

// invoker is the part of *grpc.ClientConn the client needs.
type invoker interface {
	Invoke(ctx context.Context, method string, args, reply any, opts ...grpc.CallOption) error
}

// GRPCClient calls a unary method taking and returning google.protobuf.Struct,
// so the advisor needs no generated stubs on our side.
type GRPCClient struct {
	conn   invoker
	closer func() error
	method string
}

func DialGRPC(addr, method string) (*GRPCClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, errors.Wrap(err, "grpc dial")
	}
	return &GRPCClient{conn: conn, closer: conn.Close, method: method}, nil
}

func (c *GRPCClient) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

func (c *GRPCClient) Validate(ctx context.Context, req models.OracleRequest) (models.OracleDecision, error) {
	in, err := toStruct(req)
	if err != nil {
		return models.OracleDecision{}, err
	}
	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, c.method, in, out); err != nil {
		return models.OracleDecision{}, err
	}

	var w wireDecision
	f := out.GetFields()
	if v, ok := f["verdict"]; ok {
		w.Verdict = v.GetStringValue()
	}
	if v, ok := f["approved"]; ok {
		b := v.GetBoolValue()
		w.Approved = &b
	}
	w.Confidence = f["confidence"].GetNumberValue()
	w.Reasoning = f["reasoning"].GetStringValue()
	return w.decision("grpc")
}

// toStruct goes through JSON so field names match the HTTP body.
func toStruct(req models.OracleRequest) (*structpb.Struct, error) {
	raw, err := sonic.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "marshal oracle request")
	}
	var m map[string]any
	if err := sonic.Unmarshal(raw, &m); err != nil {
		return nil, errors.Wrap(err, "oracle request to map")
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, errors.Wrap(err, "oracle request to struct")
	}
	return s, nil
}
