package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/capitalcayman/netbank/internal/infrastructure/auth"
	"github.com/capitalcayman/netbank/internal/models"
	"github.com/capitalcayman/netbank/internal/repository"
	service "github.com/capitalcayman/netbank/internal/services"
	pkgerrors "github.com/capitalcayman/netbank/pkg/errors"
)

type Handler struct {
	auth    service.AuthService
	banking service.BankingService
}

func NewHandler(authSvc service.AuthService, banking service.BankingService) *Handler {
	return &Handler{auth: authSvc, banking: banking}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/register", h.Register).Methods("POST")
	r.HandleFunc("/login", h.Login).Methods("POST")
}

func (h *Handler) RegisterProtectedRoutes(r *mux.Router) {
	r.HandleFunc("/accounts", h.ListAccounts).Methods("GET")
	r.HandleFunc("/accounts/{id}/deposit", h.Deposit).Methods("POST")
	r.HandleFunc("/accounts/{id}/statements", h.Statements).Methods("GET")
	r.HandleFunc("/transfers", h.Transfer).Methods("POST")
	r.HandleFunc("/profile", h.GetProfile).Methods("GET")
	r.HandleFunc("/profile", h.UpdateProfile).Methods("PUT")
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		FullName string `json:"full_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	userID, err := h.auth.Register(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrEmailExists) {
			writeError(w, http.StatusConflict, err)
		} else if errors.Is(err, pkgerrors.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err)
		} else {
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"user_id": userID})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	token, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err)
		} else {
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	accounts, err := h.banking.ListAccounts(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, accounts)
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}
	accountID := mux.Vars(r)["id"]

	var req struct {
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	balance, err := h.banking.Deposit(r.Context(), userID, accountID, req.Amount, req.Description)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err)
		} else if errors.Is(err, pkgerrors.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, err)
		} else if errors.Is(err, pkgerrors.ErrAccountFrozen) {
			writeError(w, http.StatusForbidden, err)
		} else if errors.Is(err, pkgerrors.ErrLedgerUnavailable) {
			writeError(w, http.StatusServiceUnavailable, err)
		} else {
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"balance": balance.StringFixed(2)})
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	var req struct {
		FromAccountID string          `json:"from_account_id"`
		ToAccountID   string          `json:"to_account_id"`
		Amount        decimal.Decimal `json:"amount"`
		Description   string          `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	err := h.banking.Transfer(r.Context(), userID, req.FromAccountID, req.ToAccountID, req.Amount, req.Description)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrInsufficientFunds) {
			writeError(w, http.StatusBadRequest, err)
		} else if errors.Is(err, pkgerrors.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err)
		} else if errors.Is(err, pkgerrors.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, err)
		} else if errors.Is(err, pkgerrors.ErrAccountFrozen) {
			writeError(w, http.StatusForbidden, err)
		} else if errors.Is(err, pkgerrors.ErrLedgerUnavailable) {
			writeError(w, http.StatusServiceUnavailable, err)
		} else {
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (h *Handler) Statements(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}
	accountID := mux.Vars(r)["id"]

	filter := repository.StatementFilter{Type: models.TransactionType(r.URL.Query().Get("type"))}
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid from date, expected YYYY-MM-DD"))
			return
		}
		filter.From = &t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid to date, expected YYYY-MM-DD"))
			return
		}
		// Include the whole day.
		end := t.AddDate(0, 0, 1)
		filter.To = &end
	}

	statements, err := h.banking.GetStatements(r.Context(), userID, accountID, filter)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, err)
		} else {
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, statements)
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	profile, err := h.banking.GetProfile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, err)
		} else {
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	var req struct {
		FullName string `json:"full_name"`
		Phone    string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.banking.UpdateProfile(r.Context(), userID, req.FullName, req.Phone); err != nil {
		if errors.Is(err, pkgerrors.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err)
		} else {
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
