// Package connect provides Connect RPC service implementations.
package connect

import (
	"context"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/tapedeck/internal/app/mode"
	"github.com/osa030/tapedeck/internal/app/notification"
	"github.com/osa030/tapedeck/internal/app/player"
	"github.com/osa030/tapedeck/internal/domain/playlist"
	"github.com/osa030/tapedeck/internal/domain/track"
)

// ServiceName is the fully-qualified name of the player service.
const ServiceName = "tapedeck.v1.PlayerService"

// Procedure names, relative to the service.
const (
	MethodSnapshot      = "Snapshot"
	MethodWatch         = "Watch"
	MethodSetQueue      = "SetQueue"
	MethodAdd           = "Add"
	MethodInsertNext    = "InsertNext"
	MethodRemove        = "Remove"
	MethodReorder       = "Reorder"
	MethodJumpTo        = "JumpTo"
	MethodClear         = "Clear"
	MethodNext          = "Next"
	MethodPrevious      = "Previous"
	MethodPlay          = "Play"
	MethodPause         = "Pause"
	MethodToggle        = "Toggle"
	MethodSeek          = "Seek"
	MethodSetRepeat     = "SetRepeat"
	MethodCycleRepeat   = "CycleRepeat"
	MethodSetShuffle    = "SetShuffle"
	MethodToggleShuffle = "ToggleShuffle"
	MethodAcknowledge   = "Acknowledge"
	MethodDismissNotice = "DismissNotice"
	MethodLoadSource    = "LoadSource"
)

// Procedure returns the full procedure path of a method.
func Procedure(method string) string {
	return "/" + ServiceName + "/" + method
}

// Player is the engine surface served over RPC.
type Player interface {
	SetQueue(ctx context.Context, refs []track.Ref, startIndex int) error
	Add(ctx context.Context, refs ...track.Ref) error
	InsertNext(ctx context.Context, ref track.Ref) error
	Remove(ctx context.Context, index int) error
	Reorder(ctx context.Context, from, to int) error
	JumpTo(ctx context.Context, index int) error
	Clear(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Toggle(ctx context.Context) error
	Seek(ctx context.Context, position time.Duration) error
	SetRepeat(ctx context.Context, r mode.Repeat) error
	CycleRepeat(ctx context.Context) (mode.Repeat, error)
	SetShuffle(ctx context.Context, enabled bool) error
	ToggleShuffle(ctx context.Context) (bool, error)
	Acknowledge(ctx context.Context) error
	DismissNotice(ctx context.Context, id string) error
	Snapshot(ctx context.Context) (player.Snapshot, error)
	Subscribe(ctx context.Context, buffer int) (notification.Subscription[player.Snapshot], error)
	Unsubscribe(id string)
}

// Catalog resolves collection references into playlists.
type Catalog interface {
	Fetch(ctx context.Context, ref string) (*playlist.Playlist, error)
}

var _ Player = (*player.Engine)(nil)

// PlayerService implements the PlayerService RPC.
type PlayerService struct {
	player  Player
	catalog Catalog
}

// NewPlayerService creates a new PlayerService. catalog may be nil, in which
// case LoadSource is unavailable.
func NewPlayerService(p Player, catalog Catalog) *PlayerService {
	return &PlayerService{
		player:  p,
		catalog: catalog,
	}
}

type (
	queueRequest struct {
		Tracks     []track.Ref `json:"tracks"`
		StartIndex int         `json:"start_index"`
	}
	trackRequest struct {
		Track track.Ref `json:"track"`
	}
	indexRequest struct {
		Index int `json:"index"`
	}
	reorderRequest struct {
		From int `json:"from"`
		To   int `json:"to"`
	}
	seekRequest struct {
		PositionMs int64 `json:"position_ms"`
	}
	repeatRequest struct {
		Mode string `json:"mode"`
	}
	shuffleRequest struct {
		Enabled bool `json:"enabled"`
	}
	noticeRequest struct {
		ID string `json:"id"`
	}
	loadSourceRequest struct {
		Ref        string `json:"ref"`
		StartIndex int    `json:"start_index"`
		Append     bool   `json:"append"`
	}
)

// unaryFunc handles one procedure. A non-nil extra map is merged into the
// response next to the snapshot.
type unaryFunc func(ctx context.Context, msg *structpb.Struct) (map[string]any, error)

// call decodes the request into T and runs fn.
func call[T any](fn func(ctx context.Context, req T) error) unaryFunc {
	return func(ctx context.Context, msg *structpb.Struct) (map[string]any, error) {
		var req T
		if err := decode(msg, &req); err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, errors.Wrap(err, "malformed request"))
		}
		return nil, fn(ctx, req)
	}
}

// plain adapts an argument-less intent.
func plain(fn func(ctx context.Context) error) unaryFunc {
	return func(ctx context.Context, _ *structpb.Struct) (map[string]any, error) {
		return nil, fn(ctx)
	}
}

func (s *PlayerService) procedures() map[string]unaryFunc {
	p := s.player
	return map[string]unaryFunc{
		MethodSnapshot: plain(func(context.Context) error { return nil }),
		MethodSetQueue: call(func(ctx context.Context, r queueRequest) error {
			return p.SetQueue(ctx, r.Tracks, r.StartIndex)
		}),
		MethodAdd: call(func(ctx context.Context, r queueRequest) error {
			return p.Add(ctx, r.Tracks...)
		}),
		MethodInsertNext: call(func(ctx context.Context, r trackRequest) error {
			return p.InsertNext(ctx, r.Track)
		}),
		MethodRemove: call(func(ctx context.Context, r indexRequest) error {
			return p.Remove(ctx, r.Index)
		}),
		MethodReorder: call(func(ctx context.Context, r reorderRequest) error {
			return p.Reorder(ctx, r.From, r.To)
		}),
		MethodJumpTo: call(func(ctx context.Context, r indexRequest) error {
			return p.JumpTo(ctx, r.Index)
		}),
		MethodClear:       plain(p.Clear),
		MethodNext:        plain(p.Next),
		MethodPrevious:    plain(p.Previous),
		MethodPlay:        plain(p.Play),
		MethodPause:       plain(p.Pause),
		MethodToggle:      plain(p.Toggle),
		MethodAcknowledge: plain(p.Acknowledge),
		MethodSeek: call(func(ctx context.Context, r seekRequest) error {
			return p.Seek(ctx, time.Duration(r.PositionMs)*time.Millisecond)
		}),
		MethodSetRepeat: call(func(ctx context.Context, r repeatRequest) error {
			return p.SetRepeat(ctx, mode.ParseRepeat(r.Mode))
		}),
		MethodCycleRepeat: func(ctx context.Context, _ *structpb.Struct) (map[string]any, error) {
			r, err := p.CycleRepeat(ctx)
			return map[string]any{"repeat": r.String()}, err
		},
		MethodSetShuffle: call(func(ctx context.Context, r shuffleRequest) error {
			return p.SetShuffle(ctx, r.Enabled)
		}),
		MethodToggleShuffle: func(ctx context.Context, _ *structpb.Struct) (map[string]any, error) {
			on, err := p.ToggleShuffle(ctx)
			return map[string]any{"shuffle": on}, err
		},
		MethodDismissNotice: call(func(ctx context.Context, r noticeRequest) error {
			return p.DismissNotice(ctx, r.ID)
		}),
		MethodLoadSource: s.loadSource,
	}
}

// loadSource fetches a collection from the catalog and replaces (or extends)
// the queue with it.
func (s *PlayerService) loadSource(ctx context.Context, msg *structpb.Struct) (map[string]any, error) {
	if s.catalog == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, errors.New("no catalog sources configured"))
	}
	var req loadSourceRequest
	if err := decode(msg, &req); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.Wrap(err, "malformed request"))
	}
	if req.Ref == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("ref is required"))
	}

	pl, err := s.catalog.Fetch(ctx, req.Ref)
	if err != nil {
		return nil, err
	}
	zlog.Info().Msgf("api: loading %d tracks from %s (%s)", len(pl.Tracks), pl.Name, req.Ref)

	if req.Append {
		err = s.player.Add(ctx, pl.Tracks...)
	} else {
		err = s.player.SetQueue(ctx, pl.Tracks, req.StartIndex)
	}
	return map[string]any{
		"source":      pl.Name,
		"loaded":      len(pl.Tracks),
		"duration_ms": pl.TotalDuration().Milliseconds(),
	}, err
}

// unary wraps a procedure into a Connect handler function. The response
// carries the snapshot taken after the intent under "snapshot".
func (s *PlayerService) unary(method string, fn unaryFunc) func(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return func(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
		extra, err := fn(ctx, req.Msg)
		if err != nil {
			zlog.Debug().Msgf("api: %s failed: %v", method, err)
			return nil, toConnectError(err)
		}

		snap, err := s.player.Snapshot(ctx)
		if err != nil {
			return nil, toConnectError(err)
		}
		encoded, err := EncodeSnapshot(snap)
		if err != nil {
			return nil, connect.NewError(connect.CodeInternal, err)
		}

		resp, err := structpb.NewStruct(extra)
		if err != nil {
			return nil, connect.NewError(connect.CodeInternal, errors.Wrap(err, "failed to encode response"))
		}
		resp.Fields["snapshot"] = structpb.NewStructValue(encoded)
		return connect.NewResponse(resp), nil
	}
}

// Watch streams a snapshot after every engine change until the client goes
// away or the engine stops.
func (s *PlayerService) Watch(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
	stream *connect.ServerStream[structpb.Struct],
) error {
	sub, err := s.player.Subscribe(ctx, 0)
	if err != nil {
		return toConnectError(err)
	}
	defer s.player.Unsubscribe(sub.ID)
	zlog.Debug().Msgf("api: watch started: subscription=%s peer=%s", sub.ID, req.Peer().Addr)

	for {
		select {
		case <-ctx.Done():
			zlog.Debug().Msgf("api: watch ended: subscription=%s", sub.ID)
			return nil
		case env, ok := <-sub.C:
			if !ok {
				return connect.NewError(connect.CodeUnavailable, player.ErrStopped)
			}
			msg, err := EncodeSnapshot(env.Payload)
			if err != nil {
				return connect.NewError(connect.CodeInternal, err)
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

// NewPlayerServiceHandler builds an HTTP handler that serves every procedure
// of the service. It returns the path to mount the handler on.
func NewPlayerServiceHandler(svc *PlayerService, opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	for method, fn := range svc.procedures() {
		mux.Handle(Procedure(method), connect.NewUnaryHandler(Procedure(method), svc.unary(method, fn), opts...))
	}
	mux.Handle(Procedure(MethodWatch), connect.NewServerStreamHandler(Procedure(MethodWatch), svc.Watch, opts...))
	return "/" + ServiceName + "/", mux
}
