// Package api exposes the ledger over HTTP. It parses and validates
// requests, maps service results to responses and never leaks internal
// store details to callers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/DmitryOnishchenko/accounting-notebook/internal/ledger"
	"github.com/DmitryOnishchenko/accounting-notebook/internal/lock"
	"github.com/DmitryOnishchenko/accounting-notebook/internal/models"
	"github.com/DmitryOnishchenko/accounting-notebook/pkg/validator"
)

// Error codes returned in the response body alongside the HTTP status.
const (
	CodeValidationFailed     = "VALIDATION.FAILED"
	CodeNotEnoughBalance     = "ADD_TRANSACTION.NOT_ENOUGH_BALANCE"
	CodeLockUnavailable      = "ADD_TRANSACTION.LOCK_UNAVAILABLE"
	CodeInvalidTransactionID = "TRANSACTION.INVALID_ID"
	CodeInternalError        = "INTERNAL.ERROR"
)

// defaultAccountID stands in for the authenticated user.
// TODO: derive the account from request credentials once auth middleware lands.
const defaultAccountID = "1"

type Handler struct {
	svc            *ledger.Ledger
	logger         *slog.Logger
	requestTimeout time.Duration
}

func NewHandler(svc *ledger.Ledger, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		svc:            svc,
		logger:         logger,
		requestTimeout: 30 * time.Second,
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /info/healthcheck/ping", h.Ping)
	mux.HandleFunc("GET /info/balance", h.GetBalance)
	mux.HandleFunc("POST /transactions", h.AddTransaction)
	mux.HandleFunc("GET /transactions", h.GetHistory)
	mux.HandleFunc("GET /transactions/{id}", h.GetTransaction)
}

type addTransactionRequest struct {
	Type   string `json:"type"`
	Amount string `json:"amount"`
}

type addTransactionResponse struct {
	TransactionID int64  `json:"transactionId"`
	Balance       string `json:"balance"`
}

type balanceResponse struct {
	Balance string `json:"balance"`
}

type historyResponse struct {
	Total        int                  `json:"total"`
	Transactions []models.Transaction `json:"transactions"`
}

type errorResponse struct {
	ErrorCode string `json:"errorCode"`
	Error     string `json:"error"`
}

func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, map[string]string{"message": "Pong!"}, http.StatusOK)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	balance, err := h.svc.GetBalance(ctx, defaultAccountID)
	if err != nil {
		h.sendInternalError(w, r, err)
		return
	}
	h.sendJSON(w, balanceResponse{Balance: balance.String()}, http.StatusOK)
}

func (h *Handler) AddTransaction(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	var req addTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "invalid request body", http.StatusBadRequest, CodeValidationFailed)
		return
	}
	if err := validator.ValidateTransactionType(req.Type); err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest, CodeValidationFailed)
		return
	}
	if err := validator.ValidateAmountString(req.Amount); err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest, CodeValidationFailed)
		return
	}

	res, err := h.svc.AddTransaction(ctx, defaultAccountID, models.TransactionType(req.Type), req.Amount)
	if err != nil {
		var insufficient *ledger.InsufficientBalanceError
		switch {
		case errors.As(err, &insufficient):
			h.sendError(w,
				fmt.Sprintf("Not enough balance. Current balance: %s", insufficient.CurrentBalance),
				http.StatusBadRequest, CodeNotEnoughBalance)
		case errors.Is(err, lock.ErrLockUnavailable):
			h.sendError(w, "account is busy, retry the request", http.StatusServiceUnavailable, CodeLockUnavailable)
		case errors.Is(err, ledger.ErrInvalidTransactionType):
			h.sendError(w, err.Error(), http.StatusBadRequest, CodeValidationFailed)
		default:
			h.sendInternalError(w, r, err)
		}
		return
	}

	h.sendJSON(w, addTransactionResponse{
		TransactionID: res.TransactionID,
		Balance:       res.Balance.String(),
	}, http.StatusOK)
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	page, err := validator.ParsePositiveInt(r.URL.Query().Get("page"), 1, 1)
	if err != nil {
		h.sendError(w, "page "+err.Error(), http.StatusBadRequest, CodeValidationFailed)
		return
	}
	pageSize, err := validator.ParsePositiveInt(r.URL.Query().Get("pageSize"), 1, ledger.MaxPageSize)
	if err != nil {
		h.sendError(w, "pageSize "+err.Error(), http.StatusBadRequest, CodeValidationFailed)
		return
	}

	history, err := h.svc.GetHistory(ctx, defaultAccountID, page, pageSize)
	if err != nil {
		h.sendInternalError(w, r, err)
		return
	}

	// Keep the JSON shape stable: an empty page is [], not null.
	if history.Transactions == nil {
		history.Transactions = []models.Transaction{}
	}
	h.sendJSON(w, historyResponse{Total: history.Total, Transactions: history.Transactions}, http.StatusOK)
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		h.sendError(w, "Invalid transaction id", http.StatusBadRequest, CodeInvalidTransactionID)
		return
	}

	tx, err := h.svc.GetTransaction(ctx, defaultAccountID, id)
	if err != nil {
		if errors.Is(err, models.ErrTransactionNotFound) {
			h.sendError(w, "Invalid transaction id", http.StatusBadRequest, CodeInvalidTransactionID)
			return
		}
		h.sendInternalError(w, r, err)
		return
	}

	h.sendJSON(w, tx, http.StatusOK)
}

// requestContext bounds both lock acquisition and the critical section so
// an unbounded lock retry configuration cannot stall a request forever.
func (h *Handler) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.requestTimeout)
}

func (h *Handler) sendJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func (h *Handler) sendError(w http.ResponseWriter, message string, statusCode int, code string) {
	h.sendJSON(w, errorResponse{ErrorCode: code, Error: message}, statusCode)

	h.logger.Warn("request rejected",
		slog.String("error_code", code),
		slog.String("message", message),
		slog.Int("status", statusCode))
}

func (h *Handler) sendInternalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("request failed",
		slog.String("path", r.URL.Path),
		slog.String("account_id", defaultAccountID),
		slog.String("error", err.Error()))
	h.sendError(w, "internal error", http.StatusInternalServerError, CodeInternalError)
}
