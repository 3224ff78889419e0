package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"chartgate/internal/subscription"
	"chartgate/pkg/storage/postgres"

	"go.uber.org/zap"
)

type meResponse struct {
	*postgres.UserRecord
	HasAccess     bool `json:"hasAccess"`
	DaysRemaining *int `json:"daysRemaining,omitempty"`
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	now := h.now()

	resp := meResponse{UserRecord: user, HasAccess: subscription.HasAccess(user, now)}
	if subscription.IsActive(user, now) {
		days := subscription.DaysRemaining(*user.ExpirationDate, now)
		resp.DaysRemaining = &days
	}
	writeData(w, http.StatusOK, "User fetched successfully", resp)
}

// SubmitTransaction records a payment hash for later on-chain verification.
// The expiration is fixed here from the purchase time and cadence.
func (h *Handler) SubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var req submitTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, "Failed to save transaction hash", err)
		return
	}
	if err := req.validate(); err != nil {
		h.fail(w, r, "Failed to save transaction hash", err)
		return
	}

	ctx := r.Context()
	if _, err := h.store.GetPlan(ctx, req.PlanID); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			err = fmt.Errorf("%w: %d", subscription.ErrPlanNotFound, req.PlanID)
		}
		h.fail(w, r, "Failed to save transaction hash", err)
		return
	}

	purchase := h.now().UTC().Truncate(time.Millisecond)
	expiration, err := subscription.ExpirationFor(purchase, req.PurchaseType)
	if err != nil {
		h.fail(w, r, "Failed to save transaction hash", err)
		return
	}

	user := userFrom(ctx)
	record := &postgres.TransactionRecord{
		UserID:         user.ID,
		Hash:           req.TxHash,
		PurchaseDate:   purchase,
		ExpirationDate: expiration,
		PlanID:         req.PlanID,
		Cadence:        req.PurchaseType,
	}
	if err := h.store.CreateTransaction(ctx, record); err != nil {
		h.fail(w, r, "Failed to save transaction hash", err)
		return
	}

	h.logger.Info("transaction submitted",
		zapRequestID(r),
		zap.String("hash", record.Hash),
		zap.Uint("user_id", user.ID),
		zap.String("cadence", string(record.Cadence)),
	)
	writeData(w, http.StatusCreated, "Transaction hash saved successfully", record)
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			h.fail(w, r, "Failed to fetch transactions", &ValidationError{Problems: []string{"limit must be a positive integer"}})
			return
		}
		limit = n
	}

	txs, err := h.store.ListTransactions(r.Context(), limit)
	if err != nil {
		h.fail(w, r, "Failed to fetch transactions", err)
		return
	}
	writeData(w, http.StatusOK, "Transactions fetched successfully", txs)
}
