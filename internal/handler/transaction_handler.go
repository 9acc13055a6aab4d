package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"ledger-core/internal/service"
)

type TransactionHandler struct {
	ledgerService      *service.LedgerService
	transactionService *service.TransactionService
}

func NewTransactionHandler(ledgerService *service.LedgerService, transactionService *service.TransactionService) *TransactionHandler {
	return &TransactionHandler{
		ledgerService:      ledgerService,
		transactionService: transactionService,
	}
}

type AmountRequest struct {
	Amount      string `json:"amount" validate:"required,positive_amount"`
	Description string `json:"description"`
}

type TransferRequest struct {
	FromAccountID string `json:"from_account_id" validate:"required"`
	ToAccountID   string `json:"to_account_id" validate:"required"`
	Amount        string `json:"amount" validate:"required,positive_amount"`
	Description   string `json:"description"`
}

type TransferByNumberRequest struct {
	FromAccountID   string `json:"from_account_id" validate:"required"`
	ToAccountNumber string `json:"to_account_number" validate:"required"`
	Amount          string `json:"amount" validate:"required,positive_amount"`
	Description     string `json:"description"`
}

type MultiTransferItem struct {
	ToAccountID string `json:"to_account_id" validate:"required"`
	Amount      string `json:"amount" validate:"required,positive_amount"`
}

type MultiTransferRequest struct {
	FromAccountID string              `json:"from_account_id" validate:"required"`
	Transfers     []MultiTransferItem `json:"transfers" validate:"dive"`
	Description   string              `json:"description"`
}

func (h *TransactionHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	receipt, err := h.ledgerService.Deposit(r.Context(), mux.Vars(r)["account_id"], parseAmount(req.Amount), req.Description)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, receipt)
}

func (h *TransactionHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	receipt, err := h.ledgerService.Withdraw(r.Context(), mux.Vars(r)["account_id"], parseAmount(req.Amount), req.Description)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, receipt)
}

func (h *TransactionHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	receipt, err := h.ledgerService.Transfer(r.Context(), req.FromAccountID, req.ToAccountID, parseAmount(req.Amount), req.Description)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, receipt)
}

func (h *TransactionHandler) TransferByNumber(w http.ResponseWriter, r *http.Request) {
	var req TransferByNumberRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	receipt, err := h.ledgerService.TransferByNumber(r.Context(), req.FromAccountID, req.ToAccountNumber, parseAmount(req.Amount), req.Description)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, receipt)
}

func (h *TransactionHandler) MultiTransfer(w http.ResponseWriter, r *http.Request) {
	var req MultiTransferRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	legs := make([]service.TransferLeg, 0, len(req.Transfers))
	for _, item := range req.Transfers {
		legs = append(legs, service.TransferLeg{
			ToAccountID: item.ToAccountID,
			Amount:      parseAmount(item.Amount),
		})
	}

	results, err := h.ledgerService.MultiTransfer(r.Context(), req.FromAccountID, legs, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, results)
}

func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.transactionService.GetTransaction(r.Context(), mux.Vars(r)["transaction_id"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

func (h *TransactionHandler) AccountTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.transactionService.ByAccount(r.Context(), mux.Vars(r)["account_id"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, txs)
}

func (h *TransactionHandler) UserTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.transactionService.ByUser(r.Context(), mux.Vars(r)["user_id"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, txs)
}
