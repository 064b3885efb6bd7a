package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/capitalcayman/netbank/internal/infrastructure/auth"
	"github.com/capitalcayman/netbank/internal/models"
	"github.com/capitalcayman/netbank/internal/withdraw"
	pkgerrors "github.com/capitalcayman/netbank/pkg/errors"
)

// WithdrawHandler exposes the withdrawal state machine over HTTP. Each
// session is addressed by id; the client walks it through the gates with
// successive POSTs and reads the current state back from every response.
type WithdrawHandler struct {
	orchestrator *withdraw.Orchestrator
}

func NewWithdrawHandler(orchestrator *withdraw.Orchestrator) *WithdrawHandler {
	return &WithdrawHandler{orchestrator: orchestrator}
}

func (h *WithdrawHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/withdrawals", h.Begin).Methods("POST")
	r.HandleFunc("/withdrawals/{id}", h.Get).Methods("GET")
	r.HandleFunc("/withdrawals/{id}", h.Cancel).Methods("DELETE")
	r.HandleFunc("/withdrawals/{id}/vat", h.SubmitVAT).Methods("POST")
	r.HandleFunc("/withdrawals/{id}/cot", h.SubmitCOT).Methods("POST")
	r.HandleFunc("/withdrawals/{id}/otp", h.SubmitOTP).Methods("POST")
	r.HandleFunc("/withdrawals/{id}/resubmit", h.Resubmit).Methods("POST")
}

func (h *WithdrawHandler) Begin(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	var req models.WithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	snap, err := h.orchestrator.Begin(r.Context(), userID, req)
	if err != nil {
		h.writeWithdrawError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, snap)
}

func (h *WithdrawHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	snap, err := h.orchestrator.Get(mux.Vars(r)["id"], userID)
	if err != nil {
		h.writeWithdrawError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

func (h *WithdrawHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	if err := h.orchestrator.Cancel(r.Context(), mux.Vars(r)["id"], userID); err != nil {
		h.writeWithdrawError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *WithdrawHandler) SubmitVAT(w http.ResponseWriter, r *http.Request) {
	h.submitCode(w, r, h.orchestrator.SubmitVAT)
}

func (h *WithdrawHandler) SubmitCOT(w http.ResponseWriter, r *http.Request) {
	h.submitCode(w, r, h.orchestrator.SubmitCOT)
}

func (h *WithdrawHandler) SubmitOTP(w http.ResponseWriter, r *http.Request) {
	h.submitCode(w, r, h.orchestrator.SubmitOTP)
}

func (h *WithdrawHandler) submitCode(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, sessionID, userID, code string) (withdraw.Snapshot, error)) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	snap, err := fn(r.Context(), mux.Vars(r)["id"], userID, req.Code)
	if err != nil {
		// Recoverable failures still carry the current state so the client
		// can render it next to the error.
		h.writeWithdrawErrorWithState(w, err, snap)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

func (h *WithdrawHandler) Resubmit(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	var req *models.WithdrawalRequest
	if r.ContentLength > 0 {
		req = &models.WithdrawalRequest{}
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	snap, err := h.orchestrator.Resubmit(r.Context(), mux.Vars(r)["id"], userID, req)
	if err != nil {
		h.writeWithdrawErrorWithState(w, err, snap)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

type withdrawErrorResponse struct {
	Error string             `json:"error"`
	State *withdraw.Snapshot `json:"session,omitempty"`
}

func (h *WithdrawHandler) writeWithdrawError(w http.ResponseWriter, err error) {
	h.writeWithdrawErrorWithState(w, err, withdraw.Snapshot{})
}

func (h *WithdrawHandler) writeWithdrawErrorWithState(w http.ResponseWriter, err error, snap withdraw.Snapshot) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, pkgerrors.ErrSessionNotFound), errors.Is(err, pkgerrors.ErrAccountNotFound):
		status = http.StatusNotFound
	case errors.Is(err, pkgerrors.ErrInvalidInput), errors.Is(err, pkgerrors.ErrInvalidGateCode),
		errors.Is(err, pkgerrors.ErrInvalidOTP), errors.Is(err, pkgerrors.ErrOTPExpired):
		status = http.StatusBadRequest
	case errors.Is(err, pkgerrors.ErrGateRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, pkgerrors.ErrInvalidState), errors.Is(err, pkgerrors.ErrOperationInFlight):
		status = http.StatusConflict
	case errors.Is(err, pkgerrors.ErrLedgerUnavailable):
		status = http.StatusServiceUnavailable
	}

	resp := withdrawErrorResponse{Error: err.Error()}
	if snap.ID != "" {
		resp.State = &snap
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
