package control

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"go.klb.dev/tkharness/internal/ipc"
	"go.klb.dev/tkharness/internal/message"
	"go.klb.dev/tkharness/internal/wire"
)

// Client calls a scenario's gRPC service over its control socket.
type Client struct {
	conn *grpc.ClientConn
}

// Dial returns a client for the socket at path. No I/O happens until the
// first call.
func Dial(path string) (*Client, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	conn, err := grpc.NewClient("unix://"+abs,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("control: dial %s: %w", path, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }

// Call performs req. A failure the scenario reported comes back as a
// *RemoteError that unwraps to the scenario's sentinel error.
func (c *Client) Call(ctx context.Context, req *message.Request) (*message.Response, error) {
	var trailer metadata.MD
	resp := new(message.Response)
	err := c.conn.Invoke(ctx, fullMethod(req.Op), req, resp, grpc.Trailer(&trailer))
	if err == nil {
		return resp, nil
	}
	if codes := trailer.Get(errorCodeKey); len(codes) > 0 {
		return nil, &RemoteError{Code: codes[0], Message: status.Convert(err).Message()}
	}
	return nil, fmt.Errorf("control: %s: %w", methodName(req.Op), err)
}

// LineClient speaks the newline-delimited JSON protocol, for peers that
// cannot use HTTP/2.
type LineClient struct {
	wc *wire.Conn
}

// DialLine connects to the socket at path.
func DialLine(ctx context.Context, path string) (*LineClient, error) {
	conn, err := ipc.Dial(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("control: dial %s: %w", path, err)
	}
	return &LineClient{wc: wire.New(conn)}, nil
}

// Close closes the connection.
func (c *LineClient) Close() error { return c.wc.Close() }

// Call sends req and waits for its reply. Failures come back as *RemoteError
// like Client.Call.
func (c *LineClient) Call(ctx context.Context, req *message.Request) (*message.Response, error) {
	if dl, ok := ctx.Deadline(); ok {
		c.wc.SetReadDeadline(time.Until(dl))
	}
	if err := c.wc.WriteMsg(req); err != nil {
		return nil, fmt.Errorf("control: write %s: %w", req.Op, err)
	}
	resp, err := c.wc.ReadResponse()
	if err != nil {
		return nil, fmt.Errorf("control: read %s: %w", req.Op, err)
	}
	if err := ResponseError(resp.Code, resp.Error); err != nil {
		return nil, err
	}
	return resp, nil
}
