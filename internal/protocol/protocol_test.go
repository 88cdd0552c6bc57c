package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corebank/ledgerd/internal/domain"
	"github.com/corebank/ledgerd/internal/ledger"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte(`{"kind":"deposit"}`)))
	require.NoError(t, WriteFrame(&buf, []byte{}))

	body, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, `{"kind":"deposit"}`, string(body))

	body, err = ReadFrame(&buf)
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestReadFrameRejectsOversizedAnnouncement(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	_, err := ReadFrame(buf)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestRequestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := Request{
		Kind:      string(domain.KindTransfer),
		Timestamp: 42,
		AccountID: "A",
		TargetID:  "B",
		Amount:    100,
	}
	require.NoError(t, WriteRequest(&buf, req))

	got, err := ReadRequest(&buf)
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestRequestOperation(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		want    domain.Operation
		wantErr bool
	}{
		{
			name: "deposit",
			req:  Request{Kind: "deposit", Timestamp: 2, AccountID: "A", Amount: 500},
			want: domain.Operation{Kind: domain.KindDeposit, Timestamp: 2, AccountID: "A", Amount: 500},
		},
		{
			name: "get balance carries time_at",
			req:  Request{Kind: "get_balance", Timestamp: 9, AccountID: "A", TimeAt: 5},
			want: domain.Operation{Kind: domain.KindGetBalance, Timestamp: 9, AccountID: "A", TimeAt: 5},
		},
		{
			name:    "authenticate is not a ledger operation",
			req:     Request{Kind: KindAuthenticate},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			req:     Request{Kind: "definitely-not"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := tt.req.Operation()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, op)
		})
	}
}

func TestFromOutcome(t *testing.T) {
	balance := int64(300)
	tests := []struct {
		name string
		out  domain.Outcome
		want Response
	}{
		{
			name: "transfer success carries new source balance",
			out: domain.Outcome{
				Op:      domain.Operation{Kind: domain.KindTransfer, Timestamp: 4},
				Balance: 300,
				OK:      true,
			},
			want: Response{Status: StatusSuccess, Timestamp: 4, Balance: &balance},
		},
		{
			name: "schedule success carries payment id",
			out: domain.Outcome{
				Op:        domain.Operation{Kind: domain.KindSchedulePayment, Timestamp: 3},
				PaymentID: "payment1",
				OK:        true,
			},
			want: Response{Status: StatusSuccess, Timestamp: 3, PaymentID: "payment1"},
		},
		{
			name: "top spenders never returns nil",
			out: domain.Outcome{
				Op: domain.Operation{Kind: domain.KindTopSpenders, Timestamp: 5},
				OK: true,
			},
			want: Response{Status: StatusSuccess, Timestamp: 5, Spenders: []string{}},
		},
		{
			name: "not found",
			out: domain.Outcome{
				Op:  domain.Operation{Kind: domain.KindDeposit, Timestamp: 7},
				Err: ledger.ErrNotFound,
			},
			want: Response{Status: StatusAccountNotFound, Message: "account not found", Timestamp: 7},
		},
		{
			name: "insufficient funds",
			out: domain.Outcome{
				Op:  domain.Operation{Kind: domain.KindTransfer, Timestamp: 8},
				Err: ledger.ErrInsufficientFunds,
			},
			want: Response{Status: StatusInsufficientFunds, Message: "insufficient funds", Timestamp: 8},
		},
		{
			name: "invalid argument",
			out: domain.Outcome{
				Op:  domain.Operation{Kind: domain.KindTransfer, Timestamp: 9},
				Err: ledger.ErrInvalidArgument,
			},
			want: Response{Status: StatusInvalidRequest, Message: "invalid argument", Timestamp: 9},
		},
		{
			name: "terminal payment maps to generic error",
			out: domain.Outcome{
				Op:  domain.Operation{Kind: domain.KindCancelPayment, Timestamp: 10},
				Err: ledger.ErrTerminal,
			},
			want: Response{Status: StatusError, Message: "payment is terminal", Timestamp: 10},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromOutcome(tt.out))
		})
	}
}
