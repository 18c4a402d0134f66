package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sahaana/coopvault/backend/internal/domain"
	"github.com/sahaana/coopvault/backend/internal/service"
)

// AdminHandlers exposes the admin review endpoints.
type AdminHandlers struct {
	logger    *slog.Logger
	approvals *service.ApprovalService
	listings  *service.ListingService
}

// NewAdminHandlers constructs an AdminHandlers instance.
func NewAdminHandlers(logger *slog.Logger, approvals *service.ApprovalService, listings *service.ListingService) *AdminHandlers {
	return &AdminHandlers{
		logger:    logger,
		approvals: approvals,
		listings:  listings,
	}
}

func (h *AdminHandlers) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	status := r.URL.Query().Get("status")
	items, err := h.listings.PendingQueue(r.Context(), status)
	if err != nil {
		h.logger.Error("failed to list transactions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}

	respondJSON(w, http.StatusOK, transactionListResponse{
		Items: toTransactionResponses(items),
	})
}

// handleTransactionAction serves POST /admin/transactions/{ref}/approve.
func (h *AdminHandlers) handleTransactionAction(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/admin/transactions/")
	rest = strings.Trim(rest, "/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "approve" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	ref := parts[0]
	if ref == "" {
		writeError(w, http.StatusBadRequest, "transaction reference is required")
		return
	}

	result, err := h.approvals.Approve(r.Context(), ref)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeError(w, http.StatusNotFound, "transaction not found")
			return
		}
		h.logger.Error("approval failed", "error", err, "transactionId", ref)
		writeError(w, http.StatusInternalServerError, "failed to approve transaction")
		return
	}

	resp := approveResponse{
		Transaction:  toTransactionResponse(result.Transaction),
		SoftFailures: []softFailureResponse{},
	}
	for _, failure := range result.SoftFailures {
		resp.SoftFailures = append(resp.SoftFailures, softFailureResponse{
			Stage: failure.Stage,
			Error: failure.Err.Error(),
		})
	}

	respondJSON(w, http.StatusOK, resp)
}

func (h *AdminHandlers) handleUserTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	query := r.URL.Query()
	email := query.Get("email")
	userID := query.Get("userId")
	if email == "" && userID == "" {
		writeError(w, http.StatusBadRequest, "email or userId is required")
		return
	}

	items, err := h.listings.UserTransactions(r.Context(), email, userID)
	if err != nil {
		h.logger.Error("failed to list user transactions", "error", err, "userId", userID)
		writeError(w, http.StatusInternalServerError, "failed to list user transactions")
		return
	}

	respondJSON(w, http.StatusOK, transactionListResponse{
		Items: toTransactionResponses(items),
	})
}

// --- Request & Response DTOs ---

type transactionListResponse struct {
	Items []transactionResponse `json:"items"`
}

type approveResponse struct {
	Transaction  transactionResponse   `json:"transaction"`
	SoftFailures []softFailureResponse `json:"softFailures"`
}

type softFailureResponse struct {
	Stage string `json:"stage"`
	Error string `json:"error"`
}

type transactionResponse struct {
	ID                string  `json:"id"`
	TransactionID     string  `json:"transactionId,omitempty"`
	Type              string  `json:"type"`
	Amount            float64 `json:"amount"`
	Currency          string  `json:"currency"`
	Status            string  `json:"status"`
	Timestamp         string  `json:"timestamp"`
	UserID            string  `json:"userId,omitempty"`
	UserName          string  `json:"userName,omitempty"`
	UserEmail         string  `json:"userEmail,omitempty"`
	Description       string  `json:"description,omitempty"`
	CollateralBTC     float64 `json:"collateralBTC,omitempty"`
	LoanAmount        float64 `json:"loanAmount,omitempty"`
	AppliedToBalances bool    `json:"appliedToBalances"`
	CreatedAt         string  `json:"createdAt"`
	UpdatedAt         string  `json:"updatedAt"`
}

// --- Helpers ---

func toTransactionResponses(items []domain.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toTransactionResponse(item))
	}
	return out
}

func toTransactionResponse(tx domain.Transaction) transactionResponse {
	return transactionResponse{
		ID:                tx.ID,
		TransactionID:     tx.ExternalID,
		Type:              tx.Type,
		Amount:            tx.Amount,
		Currency:          tx.Currency,
		Status:            tx.Status,
		Timestamp:         formatTime(tx.Timestamp),
		UserID:            tx.UserID,
		UserName:          tx.UserName,
		UserEmail:         tx.UserEmail,
		Description:       tx.Description,
		CollateralBTC:     tx.CollateralBTC,
		LoanAmount:        tx.LoanAmount,
		AppliedToBalances: tx.AppliedToBalances,
		CreatedAt:         formatTime(tx.CreatedAt),
		UpdatedAt:         formatTime(tx.UpdatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{
		"error": msg,
	})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
