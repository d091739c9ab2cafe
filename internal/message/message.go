// Package message defines the tkharness control protocol.
//
// A peer sends one Request and gets one Response. The same two types are the
// gRPC messages, the HTTP/JSON bodies, and the newline-delimited JSON frames
// of the line protocol. Payload bytes are always base64-encoded so that
// binary content is safe to embed in JSON strings.
package message

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"go.klb.dev/tkharness/internal/harness"
)

// Op identifies the operation a Request asks for.
type Op string

const (
	OpPing      Op = "PING"
	OpStatus    Op = "STATUS"
	OpFormats   Op = "FORMATS"
	OpResolve   Op = "RESOLVE"
	OpRelease   Op = "RELEASE"
	OpNegotiate Op = "NEGOTIATE"
	OpDrop      Op = "DROP"
	OpCancel    Op = "CANCEL"
	OpBegin     Op = "BEGIN"
	OpOffer     Op = "OFFER"
)

// ErrMalformed is returned when a frame is not a valid message.
var ErrMalformed = errors.New("malformed message")

// Ops lists every operation in the order the services register them.
var Ops = []Op{OpPing, OpStatus, OpFormats, OpResolve, OpRelease, OpNegotiate, OpDrop, OpCancel, OpBegin, OpOffer}

// Request is a peer's call. Only the fields the operation uses are set.
type Request struct {
	Op Op `json:"op"`

	// FORMATS, RESOLVE, RELEASE
	Channel string `json:"channel,omitempty"`
	// RESOLVE
	Format string `json:"format,omitempty"`

	// NEGOTIATE, DROP: an inline drop filter. All empty means the filter
	// the process registered.
	Accept  []string `json:"accept,omitempty"`
	Actions string   `json:"actions,omitempty"`
	Prefer  string   `json:"prefer,omitempty"`

	// OFFER: a hypothetical drag offer; Actions are the allowed actions.
	Offered []string `json:"offered,omitempty"`
}

// Response is the reply to one Request. Code is set together with Error and
// names the failure class so remote callers can match it.
type Response struct {
	Op Op `json:"op"`

	Formats []string `json:"formats,omitempty"`
	Format  string   `json:"format,omitempty"`
	Action  string   `json:"action,omitempty"`
	Data    string   `json:"data,omitempty"` // base64-encoded
	State   string   `json:"state,omitempty"`
	Owned   bool     `json:"owned,omitempty"`

	Status *harness.Status `json:"status,omitempty"`

	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// SetData stores raw payload bytes.
func (r *Response) SetData(b []byte) {
	r.Data = base64.StdEncoding.EncodeToString(b)
}

// DecodeData returns the raw bytes of the payload.
func (r *Response) DecodeData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(r.Data)
}

// Encode serialises v to JSON without a trailing newline.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// DecodeRequest deserialises a request from raw JSON bytes.
func DecodeRequest(b []byte) (*Request, error) {
	var r Request
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if r.Op == "" {
		return nil, fmt.Errorf("%w: missing op", ErrMalformed)
	}
	return &r, nil
}

// DecodeResponse deserialises a response from raw JSON bytes.
func DecodeResponse(b []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &r, nil
}
