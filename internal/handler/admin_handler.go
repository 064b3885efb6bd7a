package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/capitalcayman/netbank/internal/infrastructure/auth"
	"github.com/capitalcayman/netbank/internal/models"
	service "github.com/capitalcayman/netbank/internal/services"
	pkgerrors "github.com/capitalcayman/netbank/pkg/errors"
)

type AdminHandler struct {
	admin service.AdminService
}

func NewAdminHandler(admin service.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

func (h *AdminHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/pending", h.ListPending).Methods("GET")
	r.HandleFunc("/pending/{id}/approve", h.Approve).Methods("POST")
	r.HandleFunc("/pending/{id}/reject", h.Reject).Methods("POST")
	r.HandleFunc("/accounts/{id}/balance", h.AdjustBalance).Methods("POST")
	r.HandleFunc("/accounts/{id}/status", h.SetAccountStatus).Methods("POST")
	r.HandleFunc("/users", h.ListUsers).Methods("GET")
	r.HandleFunc("/users/{id}", h.GetUserDetail).Methods("GET")
}

func (h *AdminHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.admin.ListPending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	adminID := auth.UserID(r.Context())
	pendingID := mux.Vars(r)["id"]

	txID, err := h.admin.Approve(r.Context(), adminID, pendingID)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrPendingNotFound) {
			writeError(w, http.StatusNotFound, err)
		} else if errors.Is(err, pkgerrors.ErrNotActionable) {
			writeError(w, http.StatusConflict, err)
		} else if errors.Is(err, pkgerrors.ErrInsufficientFunds) || errors.Is(err, pkgerrors.ErrAccountFrozen) {
			writeError(w, http.StatusBadRequest, err)
		} else if errors.Is(err, pkgerrors.ErrLedgerUnavailable) {
			writeError(w, http.StatusServiceUnavailable, err)
		} else {
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"transaction_id": txID})
}

func (h *AdminHandler) Reject(w http.ResponseWriter, r *http.Request) {
	adminID := auth.UserID(r.Context())
	pendingID := mux.Vars(r)["id"]

	var req struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	if err := h.admin.Reject(r.Context(), adminID, pendingID, req.Reason); err != nil {
		if errors.Is(err, pkgerrors.ErrPendingNotFound) {
			writeError(w, http.StatusNotFound, err)
		} else if errors.Is(err, pkgerrors.ErrNotActionable) {
			writeError(w, http.StatusConflict, err)
		} else {
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

func (h *AdminHandler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	adminID := auth.UserID(r.Context())
	accountID := mux.Vars(r)["id"]

	var req struct {
		Operation   string          `json:"operation"`
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	balance, err := h.admin.AdjustBalance(r.Context(), adminID, accountID, service.BalanceOperation(req.Operation), req.Amount, req.Description)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err)
		} else if errors.Is(err, pkgerrors.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, err)
		} else if errors.Is(err, pkgerrors.ErrLedgerUnavailable) {
			writeError(w, http.StatusServiceUnavailable, err)
		} else {
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"balance": balance.StringFixed(2)})
}

func (h *AdminHandler) SetAccountStatus(w http.ResponseWriter, r *http.Request) {
	adminID := auth.UserID(r.Context())
	accountID := mux.Vars(r)["id"]

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	err := h.admin.SetAccountStatus(r.Context(), adminID, accountID, models.AccountStatus(req.Status))
	if err != nil {
		if errors.Is(err, pkgerrors.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err)
		} else if errors.Is(err, pkgerrors.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, err)
		} else {
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.admin.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *AdminHandler) GetUserDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := h.admin.GetUserDetail(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, pkgerrors.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, err)
		} else {
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, detail)
}
