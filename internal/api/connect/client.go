package connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the player service. Unary calls return the post-intent
// snapshot along with any extra response fields.
type Client struct {
	httpClient connect.HTTPClient
	baseURL    string
	token      string
	opts       []connect.ClientOption
}

// Result is a decoded unary response.
type Result struct {
	Snapshot SnapshotView
	Fields   map[string]any // Response fields other than the snapshot
}

// NewClient creates a client for the service at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		opts:       opts,
	}
}

// Call invokes a unary method with the given arguments.
func (c *Client) Call(ctx context.Context, method string, args map[string]any) (*Result, error) {
	msg, err := EncodeArgs(args)
	if err != nil {
		return nil, err
	}

	client := connect.NewClient[structpb.Struct, structpb.Struct](c.httpClient, c.baseURL+Procedure(method), c.opts...)
	req := connect.NewRequest(msg)
	if c.token != "" {
		req.Header().Set(AdminTokenHeader, c.token)
	}

	resp, err := client.CallUnary(ctx, req)
	if err != nil {
		return nil, err
	}

	fields := resp.Msg.AsMap()
	snapMsg := resp.Msg.GetFields()["snapshot"].GetStructValue()
	delete(fields, "snapshot")
	snap, err := DecodeSnapshot(snapMsg)
	if err != nil {
		return nil, err
	}
	return &Result{Snapshot: snap, Fields: fields}, nil
}

// Watch streams snapshots to fn until ctx is done, fn returns an error or
// the server ends the stream.
func (c *Client) Watch(ctx context.Context, fn func(SnapshotView) error) error {
	client := connect.NewClient[structpb.Struct, structpb.Struct](c.httpClient, c.baseURL+Procedure(MethodWatch), c.opts...)
	stream, err := client.CallServerStream(ctx, connect.NewRequest(&structpb.Struct{}))
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		snap, err := DecodeSnapshot(stream.Msg())
		if err != nil {
			return err
		}
		if err := fn(snap); err != nil {
			return err
		}
	}
	err = stream.Err()
	if err == nil || errors.Is(err, context.Canceled) || connect.CodeOf(err) == connect.CodeCanceled {
		return nil
	}
	return err
}
