package control

import (
	"errors"

	"google.golang.org/grpc/codes"

	"go.klb.dev/tkharness/internal/dnd"
	"go.klb.dev/tkharness/internal/harness"
	"go.klb.dev/tkharness/internal/payload"
	"go.klb.dev/tkharness/internal/selection"
)

// Error codes carried in Response.Code and in the gRPC trailer.
const (
	CodeUnsupportedFormat  = "unsupported_format"
	CodeDuplicateFormat    = "duplicate_format"
	CodeInvalidFormat      = "invalid_format"
	CodeOwnershipLost      = "ownership_lost"
	CodeNoOwner            = "no_owner"
	CodeUnknownChannel     = "unknown_channel"
	CodeInvalidActionSet   = "invalid_action_set"
	CodeNoCompatibleFormat = "no_compatible_format"
	CodeNoCompatibleAction = "no_compatible_action"
	CodeInvalidState       = "invalid_state"
	CodeNoDragSession      = "no_drag_session"
	CodeNoDropFilter       = "no_drop_filter"
	CodeBadRequest         = "bad_request"
	CodeInternal           = "internal"
)

type errorClass struct {
	code     string
	sentinel error
	grpc     codes.Code
}

// errorClasses is checked in order; the first sentinel err matches wins.
var errorClasses = []errorClass{
	{CodeUnsupportedFormat, payload.ErrUnsupportedFormat, codes.NotFound},
	{CodeDuplicateFormat, payload.ErrDuplicateFormat, codes.InvalidArgument},
	{CodeInvalidFormat, payload.ErrInvalidFormat, codes.InvalidArgument},
	{CodeOwnershipLost, selection.ErrOwnershipLost, codes.FailedPrecondition},
	{CodeNoOwner, selection.ErrNoOwner, codes.NotFound},
	{CodeUnknownChannel, selection.ErrUnknownChannel, codes.InvalidArgument},
	{CodeInvalidActionSet, dnd.ErrInvalidActionSet, codes.InvalidArgument},
	{CodeNoCompatibleFormat, dnd.ErrNoCompatibleFormat, codes.FailedPrecondition},
	{CodeNoCompatibleAction, dnd.ErrNoCompatibleAction, codes.FailedPrecondition},
	{CodeInvalidState, dnd.ErrInvalidState, codes.FailedPrecondition},
	{CodeNoDragSession, harness.ErrNoDragSession, codes.NotFound},
	{CodeNoDropFilter, harness.ErrNoDropFilter, codes.NotFound},
	{CodeBadRequest, errBadRequest, codes.InvalidArgument},
}

var errBadRequest = errors.New("bad request")

// CodeOf returns the stable code for err.
func CodeOf(err error) string {
	for _, c := range errorClasses {
		if errors.Is(err, c.sentinel) {
			return c.code
		}
	}
	return CodeInternal
}

func grpcCode(code string) codes.Code {
	for _, c := range errorClasses {
		if c.code == code {
			return c.grpc
		}
	}
	return codes.Internal
}

func sentinel(code string) error {
	for _, c := range errorClasses {
		if c.code == code {
			return c.sentinel
		}
	}
	return nil
}

// RemoteError is a failure reported by the scenario process. It unwraps to
// the same sentinel the process saw, so errors.Is works across the socket.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

func (e *RemoteError) Unwrap() error { return sentinel(e.Code) }

// ResponseError turns a failed response back into an error, or returns nil.
func ResponseError(code, msg string) error {
	if code == "" {
		return nil
	}
	return &RemoteError{Code: code, Message: msg}
}
