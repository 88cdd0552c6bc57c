package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/corebank/ledgerd/internal/domain"
	"github.com/corebank/ledgerd/internal/dto"
	"github.com/corebank/ledgerd/internal/ledger"
	"github.com/corebank/ledgerd/pkg/auth"
	"github.com/corebank/ledgerd/pkg/utils"
)

// Executor is the processor surface the HTTP transport drives: one
// synchronous commit per request.
type Executor interface {
	Execute(op domain.Operation) domain.Outcome
}

type Handlers struct {
	exec Executor
	auth *auth.Authenticator
}

// New builds the HTTP handler set. authenticator may be nil; the API is then
// served without sessions.
func New(exec Executor, authenticator *auth.Authenticator) *Handlers {
	return &Handlers{
		exec: exec,
		auth: authenticator,
	}
}

func (h *Handlers) InitRoutes(r chi.Router) chi.Router {
	r.Use(
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
	)
	r.Route("/api", func(r chi.Router) {
		r.Post("/session", h.CreateSession)

		r.Group(func(r chi.Router) {
			if h.auth != nil {
				r.Use(auth.AuthMiddleware)
			}
			r.Post("/accounts", h.CreateAccount)
			r.Route("/accounts/{accountID}", func(r chi.Router) {
				r.Post("/deposit", h.Deposit)
				r.Get("/balance", h.GetBalance)
				r.Post("/payments", h.SchedulePayment)
				r.Delete("/payments/{paymentID}", h.CancelPayment)
			})
			r.Post("/transfers", h.Transfer)
			r.Post("/merges", h.MergeAccounts)
			r.Get("/spenders/top", h.TopSpenders)
		})
	})
	return r
}

// CreateSession exchanges client credentials for a bearer token.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	if h.auth == nil {
		utils.RespondWithError(w, http.StatusNotFound, "sessions are not configured")
		return
	}
	var req dto.SessionRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token, err := h.auth.Authenticate(req.ClientID, req.Password)
	if err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "bad credentials")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dto.SessionResponseDTO{Token: token})
}

func (h *Handlers) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateAccountRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AccountID == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "account_id is required")
		return
	}
	out := h.exec.Execute(domain.Operation{
		Kind:      domain.KindCreateAccount,
		Timestamp: req.Timestamp,
		AccountID: req.AccountID,
	})
	if out.Err != nil {
		respondWithOutcomeError(w, out.Err)
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated, dto.BalanceResponseDTO{AccountID: req.AccountID})
}

func (h *Handlers) Deposit(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	var req dto.DepositRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out := h.exec.Execute(domain.Operation{
		Kind:      domain.KindDeposit,
		Timestamp: req.Timestamp,
		AccountID: accountID,
		Amount:    req.Amount,
	})
	if out.Err != nil {
		respondWithOutcomeError(w, out.Err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dto.BalanceResponseDTO{AccountID: accountID, Balance: out.Balance})
}

func (h *Handlers) Transfer(w http.ResponseWriter, r *http.Request) {
	var req dto.TransferRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out := h.exec.Execute(domain.Operation{
		Kind:      domain.KindTransfer,
		Timestamp: req.Timestamp,
		AccountID: req.SourceID,
		TargetID:  req.TargetID,
		Amount:    req.Amount,
	})
	if out.Err != nil {
		respondWithOutcomeError(w, out.Err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dto.BalanceResponseDTO{AccountID: req.SourceID, Balance: out.Balance})
}

func (h *Handlers) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	timestamp, err := queryInt64(r, "timestamp")
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid timestamp")
		return
	}
	timeAt, err := queryInt64(r, "time_at")
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid time_at")
		return
	}
	out := h.exec.Execute(domain.Operation{
		Kind:      domain.KindGetBalance,
		Timestamp: timestamp,
		AccountID: accountID,
		TimeAt:    timeAt,
	})
	if out.Err != nil {
		respondWithOutcomeError(w, out.Err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dto.BalanceResponseDTO{AccountID: accountID, Balance: out.Balance})
}

func (h *Handlers) SchedulePayment(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	var req dto.SchedulePaymentRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out := h.exec.Execute(domain.Operation{
		Kind:      domain.KindSchedulePayment,
		Timestamp: req.Timestamp,
		AccountID: accountID,
		Amount:    req.Amount,
		Delay:     req.Delay,
	})
	if out.Err != nil {
		respondWithOutcomeError(w, out.Err)
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated, dto.SchedulePaymentResponseDTO{PaymentID: out.PaymentID})
}

func (h *Handlers) CancelPayment(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	paymentID := chi.URLParam(r, "paymentID")
	timestamp, err := queryInt64(r, "timestamp")
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid timestamp")
		return
	}
	out := h.exec.Execute(domain.Operation{
		Kind:      domain.KindCancelPayment,
		Timestamp: timestamp,
		AccountID: accountID,
		PaymentID: paymentID,
	})
	if out.Err != nil {
		respondWithOutcomeError(w, out.Err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, "payment canceled")
}

func (h *Handlers) MergeAccounts(w http.ResponseWriter, r *http.Request) {
	var req dto.MergeAccountsRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out := h.exec.Execute(domain.Operation{
		Kind:      domain.KindMergeAccounts,
		Timestamp: req.Timestamp,
		AccountID: req.AccountID,
		TargetID:  req.MergeID,
	})
	if out.Err != nil {
		respondWithOutcomeError(w, out.Err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, "accounts merged")
}

func (h *Handlers) TopSpenders(w http.ResponseWriter, r *http.Request) {
	timestamp, err := queryInt64(r, "timestamp")
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid timestamp")
		return
	}
	n, err := strconv.Atoi(r.URL.Query().Get("n"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid n")
		return
	}
	out := h.exec.Execute(domain.Operation{
		Kind:      domain.KindTopSpenders,
		Timestamp: timestamp,
		N:         n,
	})
	spenders := out.Spenders
	if spenders == nil {
		spenders = []string{}
	}
	utils.RespondWithJSON(w, http.StatusOK, dto.TopSpendersResponseDTO{Spenders: spenders})
}

func queryInt64(r *http.Request, key string) (int64, error) {
	return strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
}

func respondWithOutcomeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		utils.RespondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds):
		utils.RespondWithError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, ledger.ErrAlreadyExists):
		utils.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrTerminal):
		utils.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrInvalidArgument):
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}
