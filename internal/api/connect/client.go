package connect

import (
	"context"
	"strings"

	"connectrpc.com/connect"

	"github.com/osa030/lyricsync/internal/app/event"
)

// StateClient is a client for the StateService.
type StateClient struct {
	getSnapshot *connect.Client[GetSnapshotRequest, GetSnapshotResponse]
	watch       *connect.Client[WatchRequest, event.Event]
}

// NewStateClient creates a client for the service at baseURL.
func NewStateClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *StateClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &StateClient{
		getSnapshot: connect.NewClient[GetSnapshotRequest, GetSnapshotResponse](httpClient, baseURL+GetSnapshotProcedure, opts...),
		watch:       connect.NewClient[WatchRequest, event.Event](httpClient, baseURL+WatchProcedure, opts...),
	}
}

// GetSnapshot calls StateService.GetSnapshot.
func (c *StateClient) GetSnapshot(ctx context.Context) (*GetSnapshotResponse, error) {
	res, err := c.getSnapshot.CallUnary(ctx, connect.NewRequest(&GetSnapshotRequest{}))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

// Watch calls StateService.Watch.
func (c *StateClient) Watch(ctx context.Context, req *WatchRequest) (*connect.ServerStreamForClient[event.Event], error) {
	return c.watch.CallServerStream(ctx, connect.NewRequest(req))
}
