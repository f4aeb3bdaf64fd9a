package codec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/adaptive-eval/internal/eval"
)

// JudgeMethod is the unary RPC that scores content. Request and response are
// google.protobuf.Struct: {prompt, item_name, component_type} -> {text}.
const JudgeMethod = "/adaptive.CodecService/Judge"

var errNoText = errors.New("judge response has no text field")

// #region client-struct
// CodecClient wraps the gRPC connection to the inference service that hosts
// the judge model.
type CodecClient struct {
	conn    *grpc.ClientConn
	cc      grpc.ClientConnInterface
	timeout time.Duration
}
// #endregion client-struct

// #region constructor
// NewCodecClient connects to the inference gRPC server. A timeout of zero
// leaves the caller's deadline in charge.
func NewCodecClient(addr string, timeout time.Duration) (*CodecClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &CodecClient{conn: conn, cc: conn, timeout: timeout}, nil
}

// NewCodecClientWithConn creates a CodecClient over an existing connection.
// Used for testing without a real server.
func NewCodecClientWithConn(cc grpc.ClientConnInterface, timeout time.Duration) *CodecClient {
	return &CodecClient{cc: cc, timeout: timeout}
}
// #endregion constructor

// #region close
// Close shuts down the gRPC connection if this client owns one.
func (c *CodecClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
// #endregion close

// #region judge
// Judge sends an evaluation prompt to the judge model and returns its raw
// text answer.
func (c *CodecClient) Judge(ctx context.Context, req eval.JudgeRequest) (string, error) {
	in, err := structpb.NewStruct(map[string]any{
		"prompt":         req.Prompt,
		"item_name":      req.ItemName,
		"component_type": req.ComponentType,
	})
	if err != nil {
		return "", fmt.Errorf("judge request: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	out := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, JudgeMethod, in, out); err != nil {
		return "", fmt.Errorf("judge rpc: %w", err)
	}
	text, ok := out.GetFields()["text"]
	if !ok {
		return "", errNoText
	}
	return text.GetStringValue(), nil
}
// #endregion judge

var _ eval.Judge = (*CodecClient)(nil)
