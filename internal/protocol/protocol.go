// Package protocol defines the framed JSON wire format: one request or
// response per frame, each frame a 4-byte big-endian length prefix followed
// by the JSON body.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/corebank/ledgerd/internal/domain"
	"github.com/corebank/ledgerd/internal/ledger"
)

// MaxFrameSize bounds a single frame; larger announcements are treated as a
// corrupt stream.
const MaxFrameSize = 1 << 20

// Kinds carried on the wire beyond ledger operations.
const (
	KindAuthenticate = "authenticate"
	KindHeartbeat    = "heartbeat"
)

// Status is the outcome tag of a response.
type Status string

const (
	StatusSuccess           Status = "SUCCESS"
	StatusError             Status = "ERROR"
	StatusInvalidRequest    Status = "INVALID_REQUEST"
	StatusUnauthorized      Status = "UNAUTHORIZED"
	StatusAccountNotFound   Status = "ACCOUNT_NOT_FOUND"
	StatusInsufficientFunds Status = "INSUFFICIENT_FUNDS"
)

var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// Request is one client message.
type Request struct {
	Kind         string `json:"kind"`
	Timestamp    int64  `json:"timestamp"`
	ClientID     string `json:"client_id,omitempty"`
	SessionToken string `json:"session_token,omitempty"`

	AccountID string `json:"account_id,omitempty"`
	TargetID  string `json:"target_id,omitempty"`
	Amount    int64  `json:"amount,omitempty"`
	Delay     int64  `json:"delay,omitempty"`
	TimeAt    int64  `json:"time_at,omitempty"`
	N         int    `json:"n,omitempty"`
	PaymentID string `json:"payment_id,omitempty"`

	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// Operation translates the request into an operation record. Unknown kinds
// are a boundary error, reported as InvalidRequest by the caller.
func (r *Request) Operation() (domain.Operation, error) {
	kind := domain.Kind(r.Kind)
	switch kind {
	case domain.KindCreateAccount, domain.KindDeposit, domain.KindTransfer,
		domain.KindGetBalance, domain.KindTopSpenders, domain.KindSchedulePayment,
		domain.KindCancelPayment, domain.KindMergeAccounts:
	default:
		return domain.Operation{}, fmt.Errorf("unknown operation kind %q", r.Kind)
	}
	return domain.Operation{
		Kind:      kind,
		Timestamp: r.Timestamp,
		AccountID: r.AccountID,
		TargetID:  r.TargetID,
		Amount:    r.Amount,
		Delay:     r.Delay,
		TimeAt:    r.TimeAt,
		N:         r.N,
		PaymentID: r.PaymentID,
	}, nil
}

// Response is one server message.
type Response struct {
	Status    Status   `json:"status"`
	Message   string   `json:"message,omitempty"`
	Timestamp int64    `json:"timestamp"`
	Balance   *int64   `json:"balance,omitempty"`
	PaymentID string   `json:"payment_id,omitempty"`
	Spenders  []string `json:"spenders,omitempty"`
	Token     string   `json:"token,omitempty"`
}

// Error builds a failure response.
func Error(status Status, message string, ts int64) Response {
	return Response{Status: status, Message: message, Timestamp: ts}
}

// FromOutcome translates a committed outcome into a wire response.
func FromOutcome(out domain.Outcome) Response {
	if out.Err != nil {
		return Error(statusFor(out.Err), out.Err.Error(), out.Op.Timestamp)
	}
	resp := Response{Status: StatusSuccess, Timestamp: out.Op.Timestamp}
	switch out.Op.Kind {
	case domain.KindDeposit, domain.KindTransfer, domain.KindGetBalance:
		balance := out.Balance
		resp.Balance = &balance
	case domain.KindSchedulePayment:
		resp.PaymentID = out.PaymentID
	case domain.KindTopSpenders:
		resp.Spenders = out.Spenders
		if resp.Spenders == nil {
			resp.Spenders = []string{}
		}
	}
	return resp
}

func statusFor(err error) Status {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return StatusAccountNotFound
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return StatusInsufficientFunds
	case errors.Is(err, ledger.ErrInvalidArgument):
		return StatusInvalidRequest
	default:
		return StatusError
	}
}

// WriteFrame writes one length-prefixed message.
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(body)))
	if _, err := w.Write(length[:]); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed message.
func ReadFrame(r io.Reader) ([]byte, error) {
	var length [4]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(length[:])
	if n > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return body, nil
}

// WriteRequest frames and writes req.
func WriteRequest(w io.Writer, req Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return WriteFrame(w, body)
}

// ReadRequest reads and decodes one framed request.
func ReadRequest(r io.Reader) (Request, error) {
	body, err := ReadFrame(r)
	if err != nil {
		return Request{}, err
	}
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return Request{}, fmt.Errorf("unmarshal request: %w", err)
	}
	return req, nil
}

// WriteResponse frames and writes resp.
func WriteResponse(w io.Writer, resp Response) error {
	body, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	return WriteFrame(w, body)
}

// ReadResponse reads and decodes one framed response.
func ReadResponse(r io.Reader) (Response, error) {
	body, err := ReadFrame(r)
	if err != nil {
		return Response{}, err
	}
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return Response{}, fmt.Errorf("unmarshal response: %w", err)
	}
	return resp, nil
}
