// Package connect provides Connect RPC service implementations.
package connect

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lyricsync/internal/app/event"
	"github.com/osa030/lyricsync/internal/app/playback"
	"github.com/osa030/lyricsync/internal/app/supervisor"
)

const (
	// StateServiceName is the fully-qualified name of the StateService.
	StateServiceName = "lyricsync.v1.StateService"

	// GetSnapshotProcedure is the path of StateService.GetSnapshot.
	GetSnapshotProcedure = "/lyricsync.v1.StateService/GetSnapshot"
	// WatchProcedure is the path of StateService.Watch.
	WatchProcedure = "/lyricsync.v1.StateService/Watch"

	watchBuffer = 64
)

// ErrSessionClosed is returned with CodeUnavailable once the session is gone.
var ErrSessionClosed = errors.New("session is closed")

// GetSnapshotRequest is the GetSnapshot request message.
type GetSnapshotRequest struct{}

// GetSnapshotResponse is the GetSnapshot response message.
type GetSnapshotResponse struct {
	SessionID         string            `json:"session_id"`
	LinkState         string            `json:"link_state"`
	ReconnectAttempts int               `json:"reconnect_attempts"`
	Snapshot          playback.Snapshot `json:"snapshot"`
}

// WatchRequest is the Watch request message.
type WatchRequest struct {
	IncludeTicks bool `json:"include_ticks"`
}

// Session is the state the service exposes.
// *session.Manager implements it.
type Session interface {
	ID() string
	Snapshot() playback.Snapshot
	LinkState() supervisor.State
	ReconnectAttempts() int
	SubscribeWithReplay(h event.Handler) string
	Unsubscribe(id string) bool
	Done() <-chan struct{}
}

// StateService implements the StateService RPC.
type StateService struct {
	session Session
}

// NewStateService creates a new StateService.
func NewStateService(session Session) *StateService {
	return &StateService{
		session: session,
	}
}

// GetSnapshot returns the current read model.
func (s *StateService) GetSnapshot(
	ctx context.Context,
	req *connect.Request[GetSnapshotRequest],
) (*connect.Response[GetSnapshotResponse], error) {
	if s.closed() {
		return nil, connect.NewError(connect.CodeUnavailable, ErrSessionClosed)
	}
	return connect.NewResponse(&GetSnapshotResponse{
		SessionID:         s.session.ID(),
		LinkState:         s.session.LinkState().String(),
		ReconnectAttempts: s.session.ReconnectAttempts(),
		Snapshot:          s.session.Snapshot(),
	}), nil
}

// Watch streams the current state followed by live events until the client
// goes away or the session closes. Events are dropped for a client that
// falls behind by more than the buffer.
func (s *StateService) Watch(
	ctx context.Context,
	req *connect.Request[WatchRequest],
	stream *connect.ServerStream[event.Event],
) error {
	if s.closed() {
		return connect.NewError(connect.CodeUnavailable, ErrSessionClosed)
	}
	includeTicks := req.Msg.IncludeTicks
	ch := make(chan event.Event, watchBuffer)

	subscriptionID := s.session.SubscribeWithReplay(func(e event.Event) {
		if e.Type == event.TypeTick && !includeTicks {
			return
		}
		select {
		case ch <- e:
		default:
			zlog.Debug().Msgf("api: watch buffer full, dropping %s event", e.Type)
		}
	})
	defer s.session.Unsubscribe(subscriptionID)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.session.Done():
			return nil
		case e := <-ch:
			if err := stream.Send(&e); err != nil {
				return err
			}
		}
	}
}

func (s *StateService) closed() bool {
	select {
	case <-s.session.Done():
		return true
	default:
		return false
	}
}

// NewStateServiceHandler builds an HTTP handler for svc and returns the path
// to mount it on.
func NewStateServiceHandler(svc *StateService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)

	getSnapshot := connect.NewUnaryHandler(GetSnapshotProcedure, svc.GetSnapshot, opts...)
	watch := connect.NewServerStreamHandler(WatchProcedure, svc.Watch, opts...)

	return "/" + StateServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case GetSnapshotProcedure:
			getSnapshot.ServeHTTP(w, r)
		case WatchProcedure:
			watch.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}
