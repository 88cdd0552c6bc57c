package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corebank/ledgerd/internal/dto"
	"github.com/corebank/ledgerd/internal/ledger"
	"github.com/corebank/ledgerd/internal/processor"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	proc := processor.New(ledger.NewSafe(ledger.NewEngine()), 1, 0)
	h := New(proc, nil)

	router := chi.NewRouter()
	h.InitRoutes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHandlersLifecycle(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/accounts", dto.CreateAccountRequestDTO{Timestamp: 1, AccountID: "A"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/accounts", dto.CreateAccountRequestDTO{Timestamp: 2, AccountID: "A"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/accounts/A/deposit", dto.DepositRequestDTO{Timestamp: 3, Amount: 500})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	balance := decode[dto.BalanceResponseDTO](t, resp)
	assert.Equal(t, int64(500), balance.Balance)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/accounts", dto.CreateAccountRequestDTO{Timestamp: 4, AccountID: "B"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/transfers", dto.TransferRequestDTO{Timestamp: 5, SourceID: "A", TargetID: "B", Amount: 200})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	balance = decode[dto.BalanceResponseDTO](t, resp)
	assert.Equal(t, int64(300), balance.Balance)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/accounts/B/balance?timestamp=6&time_at=5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	balance = decode[dto.BalanceResponseDTO](t, resp)
	assert.Equal(t, int64(200), balance.Balance)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/spenders/top?timestamp=7&n=5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	top := decode[dto.TopSpendersResponseDTO](t, resp)
	assert.Equal(t, []string{"A(200)", "B(0)"}, top.Spenders)
}

func TestHandlersPayments(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/accounts", dto.CreateAccountRequestDTO{Timestamp: 1, AccountID: "A"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/accounts/A/deposit", dto.DepositRequestDTO{Timestamp: 2, Amount: 1000})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/accounts/A/payments", dto.SchedulePaymentRequestDTO{Timestamp: 3, Amount: 400, Delay: 5})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	scheduled := decode[dto.SchedulePaymentResponseDTO](t, resp)
	assert.Equal(t, "payment1", scheduled.PaymentID)

	resp = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/accounts/A/payments/%s?timestamp=4", srv.URL, scheduled.PaymentID), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Cancel is not idempotent: the payment is already terminal.
	resp = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/accounts/A/payments/%s?timestamp=5", srv.URL, scheduled.PaymentID), nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/accounts/A/deposit", dto.DepositRequestDTO{Timestamp: 10, Amount: 0})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	balance := decode[dto.BalanceResponseDTO](t, resp)
	assert.Equal(t, int64(1000), balance.Balance)
}

func TestHandlersMerge(t *testing.T) {
	srv := newTestServer(t)

	for _, id := range []string{"A", "B"} {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/accounts", dto.CreateAccountRequestDTO{Timestamp: 1, AccountID: id})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/accounts/B/deposit", dto.DepositRequestDTO{Timestamp: 2, Amount: 50})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/merges", dto.MergeAccountsRequestDTO{Timestamp: 3, AccountID: "A", MergeID: "B"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/accounts/A/balance?timestamp=4&time_at=4", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	balance := decode[dto.BalanceResponseDTO](t, resp)
	assert.Equal(t, int64(50), balance.Balance)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/accounts/B/balance?timestamp=4&time_at=4", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	// Self-merge is invalid.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/merges", dto.MergeAccountsRequestDTO{Timestamp: 5, AccountID: "A", MergeID: "A"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestHandlersValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "malformed create body", method: http.MethodPost, path: "/api/accounts", body: "{", want: http.StatusBadRequest},
		{name: "missing account id", method: http.MethodPost, path: "/api/accounts", body: `{"timestamp":1}`, want: http.StatusBadRequest},
		{name: "deposit to unknown account", method: http.MethodPost, path: "/api/accounts/X/deposit", body: `{"timestamp":1,"amount":5}`, want: http.StatusNotFound},
		{name: "balance with bad timestamp", method: http.MethodGet, path: "/api/accounts/X/balance?timestamp=abc&time_at=1", want: http.StatusBadRequest},
		{name: "top spenders with bad n", method: http.MethodGet, path: "/api/spenders/top?timestamp=1&n=x", want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, bytes.NewBufferString(tt.body))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
