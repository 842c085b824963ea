package engine

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const receiptURLExpiry = 15 * time.Minute

// handleReceiptURL returns a presigned download URL for an archived
// receipt so staff tooling never talks to the bucket directly.
func (o *Ops) handleReceiptURL(w http.ResponseWriter, r *http.Request) {
	if o.engine.receipts == nil {
		respondError(w, http.StatusNotFound, errors.New("receipt archiving is disabled"))
		return
	}

	receiptID := chi.URLParam(r, "receiptID")
	if receiptID == "" {
		respondError(w, http.StatusBadRequest, errors.New("receipt id is required"))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	url, err := o.engine.receipts.PresignURL(ctx, receiptID, receiptURLExpiry)
	if err != nil {
		respondError(w, http.StatusNotFound, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"url":        url,
		"expires_in": int(receiptURLExpiry.Seconds()),
	})
}
