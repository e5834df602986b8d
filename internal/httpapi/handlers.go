package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"paylog/internal/core"
	"paylog/internal/log"
	"paylog/internal/store"
)

const maxSubmitBody = 64 * 1024

type submitRequest struct {
	RawText          string `json:"raw_text"`
	UserID           string `json:"user_id"`
	IdempotencyToken string `json:"idempotency_token"`
}

type submitResponse struct {
	CommitID     string            `json:"commit_id"`
	Kind         string            `json:"kind"`
	Amount       string            `json:"amount"`
	Category     string            `json:"category,omitempty"`
	Merchant     string            `json:"merchant,omitempty"`
	Counterparty string            `json:"counterparty,omitempty"`
	OccurredAt   string            `json:"occurred_at"`
	Wallets      map[string]string `json:"wallets"`
	DebtCleared  bool              `json:"debt_cleared,omitempty"`
	Surplus      string            `json:"surplus,omitempty"`
	Replayed     bool              `json:"replayed,omitempty"`
	Hint         string            `json:"hint,omitempty"`
	Sources      map[string]string `json:"sources,omitempty"`
}

type errorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message,omitempty"`
	Fields  []string `json:"fields,omitempty"`
	Reason  string   `json:"reason,omitempty"`
	Field   string   `json:"field,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, "method-not-allowed", "use POST")
		return
	}

	var req submitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad-request", "invalid JSON body")
		return
	}

	if req.IdempotencyToken == "" {
		req.IdempotencyToken = r.Header.Get("Idempotency-Key")
	}

	switch {
	case strings.TrimSpace(req.RawText) == "":
		writeError(w, http.StatusBadRequest, "bad-request", "raw_text is required")
		return
	case strings.TrimSpace(req.UserID) == "":
		writeError(w, http.StatusBadRequest, "bad-request", "user_id is required")
		return
	case strings.TrimSpace(req.IdempotencyToken) == "":
		writeError(w, http.StatusBadRequest, "bad-request", "idempotency_token is required")
		return
	}

	result, err := s.submit.Submit(r.Context(), req.RawText, req.UserID, time.Now(), req.IdempotencyToken)
	if err != nil {
		s.writeSubmitError(w, r, err)
		return
	}

	tx := result.Transaction
	resp := submitResponse{
		CommitID:     result.Commit.CommitID,
		Kind:         string(tx.Kind),
		Amount:       tx.Amount.String(),
		Category:     tx.Category,
		Merchant:     tx.Merchant,
		Counterparty: tx.Counterparty,
		OccurredAt:   tx.OccurredAt.Format("2006-01-02"),
		Wallets: map[string]string{
			string(core.TotalStack): result.Commit.Wallets.TotalStack.String(),
			string(core.Wallet):     result.Commit.Wallets.Wallet.String(),
		},
		DebtCleared: result.Commit.DebtCleared,
		Replayed:    result.Commit.Replayed,
		Hint:        result.Hint,
	}
	if result.Commit.Surplus.IsPositive() {
		resp.Surplus = result.Commit.Surplus.String()
	}
	if len(tx.Sources) > 0 {
		resp.Sources = make(map[string]string, len(tx.Sources))
		for field, source := range tx.Sources {
			resp.Sources[field] = string(source)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// writeSubmitError maps pipeline errors to structured HTTP responses.
// Unresolved fields and ledger rejections are client errors; transient
// storage failures ask the client to retry with the same token.
func (s *Server) writeSubmitError(w http.ResponseWriter, r *http.Request, err error) {
	var unresolved *core.UnresolvedError
	if errors.As(err, &unresolved) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:   "unresolved",
			Message: "some required fields could not be resolved, please restate",
			Fields:  unresolved.Fields,
		})
		return
	}

	var rejection *core.RejectionError
	if errors.As(err, &rejection) {
		status := http.StatusUnprocessableEntity
		if rejection.Reason == core.ReasonDuplicateMismatch {
			status = http.StatusConflict
		}
		writeJSON(w, status, errorResponse{
			Error:   "rejected",
			Message: rejection.Message,
			Reason:  string(rejection.Reason),
			Field:   rejection.Field,
		})
		return
	}

	if store.IsTransient(err) {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "storage-unavailable", "storage is busy, retry with the same idempotency_token")
		return
	}

	s.logger.ErrorContext(r.Context(), "Submit failed",
		log.FieldError, err)
	writeError(w, http.StatusInternalServerError, "internal", "internal error")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}
