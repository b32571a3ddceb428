package connect

import (
	"context"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"

	"github.com/osa030/tapedeck/internal/app/catalog"
	"github.com/osa030/tapedeck/internal/app/playback"
	"github.com/osa030/tapedeck/internal/app/player"
	"github.com/osa030/tapedeck/internal/app/queue"
)

// toConnectError maps engine and catalog errors to Connect status codes.
// Errors that already carry a code pass through.
func toConnectError(err error) error {
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return cerr
	}

	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs),
		errors.Is(err, queue.ErrOutOfRange),
		errors.Is(err, catalog.ErrUnsupported):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, queue.ErrEndOfQueue),
		errors.Is(err, queue.ErrEmpty),
		errors.Is(err, playback.ErrInvalidTransition):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, player.ErrNoticeNotFound),
		errors.Is(err, catalog.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, player.ErrStopped):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
